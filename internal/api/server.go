// Package api exposes the operational HTTP surface: health checks,
// login-session issuance and session administration.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"proctor/pkg/interfaces"
	"proctor/pkg/types"
)

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type Server struct {
	registry interfaces.SessionRegistry
	auth     interfaces.AuthService
	health   HealthChecker
	loginTTL time.Duration
	router   *http.ServeMux
	logger   *zap.Logger
}

func NewServer(registry interfaces.SessionRegistry, auth interfaces.AuthService, health HealthChecker, loginTTL time.Duration, logger *zap.Logger) *Server {
	s := &Server{
		registry: registry,
		auth:     auth,
		health:   health,
		loginTTL: loginTTL,
		router:   http.NewServeMux(),
		logger:   logger,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/sessions", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleSessions))))
	s.router.Handle("/api/sessions/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleSessionByID))))
	s.router.Handle("/api/login-sessions", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleLoginSessions))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listSessions(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	sessionID := strings.Split(path, "/")[0]
	if sessionID == "" {
		s.sendError(w, "Session ID required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getSession(w, r, sessionID)
	case http.MethodDelete:
		s.endSession(w, r, sessionID)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleLoginSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createLoginSession(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type CreateLoginSessionRequest struct {
	StudentID string `json:"student_id"`
}

type CreateLoginSessionResponse struct {
	Token     string `json:"token"`
	StudentID string `json:"student_id"`
}

type SessionResponse struct {
	Session types.Session `json:"session"`
}

type ListSessionsResponse struct {
	Sessions []types.Session `json:"sessions"`
	Count    int             `json:"count"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database"`
	Sessions  int       `json:"sessions"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// POST /api/login-sessions issues a login token for a known student.
func (s *Server) createLoginSession(w http.ResponseWriter, r *http.Request) {
	var req CreateLoginSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.StudentID == "" {
		s.sendError(w, "Student ID is required", http.StatusBadRequest)
		return
	}

	token, err := s.auth.IssueLoginSession(r.Context(), req.StudentID, s.loginTTL)
	if err != nil {
		if errors.Is(err, interfaces.ErrStudentNotFound) {
			s.sendError(w, "Student not found", http.StatusNotFound)
		} else {
			s.logger.Error("login session issue failed", zap.String("student_id", req.StudentID), zap.Error(err))
			s.sendError(w, "Failed to issue login session", http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(CreateLoginSessionResponse{Token: token, StudentID: req.StudentID})
}

// GET /api/sessions lists every live proctoring session.
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.registry.ActiveSessions()
	json.NewEncoder(w).Encode(ListSessionsResponse{Sessions: sessions, Count: len(sessions)})
}

// GET /api/sessions/{id} returns one session snapshot.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	session, ok := s.registry.LookupByID(sessionID)
	if !ok {
		s.sendError(w, "Session not found", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(SessionResponse{Session: session})
}

// DELETE /api/sessions/{id} force-terminates a session.
func (s *Server) endSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if _, ok := s.registry.LookupByID(sessionID); !ok {
		s.sendError(w, "Session not found", http.StatusNotFound)
		return
	}

	s.registry.Remove(sessionID)
	s.logger.Info("session terminated via API", zap.String("session_id", sessionID))

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"message": "Session terminated"})
}

// GET /health reports store connectivity and live session count.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	if err := s.health.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Database:  dbStatus,
		Sessions:  s.registry.Count(),
	}

	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(response)
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
