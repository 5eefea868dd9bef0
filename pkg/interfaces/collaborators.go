package interfaces

import (
	"context"
	"time"

	"proctor/pkg/types"
)

// AuthService validates login-session tokens against the external
// authentication store and issues new ones for operational use.
type AuthService interface {
	// ValidateLoginSession resolves a login token to a student ID.
	// Unknown and expired tokens return ErrInvalidLoginSession.
	ValidateLoginSession(ctx context.Context, token string) (string, error)

	// IssueLoginSession creates a login session for a student and
	// returns its token.
	IssueLoginSession(ctx context.Context, studentID string, ttl time.Duration) (string, error)
}

// StudentStore resolves student identities and exam catalog entries.
type StudentStore interface {
	// GetStudent returns the student record, or ErrStudentNotFound.
	GetStudent(ctx context.Context, studentID string) (*types.StudentRecord, error)

	// GetExam returns the catalog entry for an exam, or ErrExamNotFound.
	GetExam(ctx context.Context, examID string) (*types.Exam, error)
}

// EligibilityProvider computes the exams a student may currently attempt
// within one menu category.
type EligibilityProvider interface {
	// Title is the category heading shown in the exam menu.
	Title() string

	// ListEligibleExams returns the eligible exams for the student at
	// the given time. An empty slice is a normal result, not an error.
	ListEligibleExams(ctx context.Context, studentID string, now time.Time) ([]types.ExamEntry, error)
}
