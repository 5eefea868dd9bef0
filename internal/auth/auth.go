// Package auth validates login-session tokens. A login session is the
// campus-level authenticated session a student already holds before
// entering the proctoring workflow.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"proctor/pkg/interfaces"
	"proctor/pkg/types"
)

// LoginStore is the slice of the database layer the auth service needs.
type LoginStore interface {
	GetLoginSession(ctx context.Context, token string) (*types.LoginSession, error)
	CreateLoginSession(ctx context.Context, ls *types.LoginSession) error
	DeleteLoginSession(ctx context.Context, token string) error
	GetStudent(ctx context.Context, studentID string) (*types.StudentRecord, error)
}

// Service implements interfaces.AuthService over the login store.
type Service struct {
	store  LoginStore
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates an auth service.
func NewService(store LoginStore, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// ValidateLoginSession resolves a token to a student ID. Unknown and
// expired tokens both come back as ErrInvalidLoginSession; an expired
// token is also deleted so the table does not accumulate dead rows.
func (s *Service) ValidateLoginSession(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", interfaces.ErrInvalidLoginSession
	}

	ls, err := s.store.GetLoginSession(ctx, token)
	if err != nil {
		return "", err
	}

	if ls.ExpiresAt.Before(s.now()) {
		s.logger.Info("expired login session presented",
			zap.String("student_id", ls.StudentID))
		if err := s.store.DeleteLoginSession(ctx, token); err != nil {
			s.logger.Warn("failed to delete expired login session", zap.Error(err))
		}
		return "", interfaces.ErrInvalidLoginSession
	}

	return ls.StudentID, nil
}

// IssueLoginSession creates a login session for a known student and
// returns its token.
func (s *Service) IssueLoginSession(ctx context.Context, studentID string, ttl time.Duration) (string, error) {
	if _, err := s.store.GetStudent(ctx, studentID); err != nil {
		return "", fmt.Errorf("cannot issue login session: %w", err)
	}

	ls := &types.LoginSession{
		Token:     uuid.New().String(),
		StudentID: studentID,
		ExpiresAt: s.now().Add(ttl),
	}
	if err := s.store.CreateLoginSession(ctx, ls); err != nil {
		return "", err
	}

	s.logger.Info("login session issued", zap.String("student_id", studentID))
	return ls.Token, nil
}
