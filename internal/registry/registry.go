// Package registry holds the process-wide store of live proctoring
// sessions. One instance exists per process; it is constructed at the
// composition root and injected into every component that needs it.
package registry

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"proctor/pkg/interfaces"
	"proctor/pkg/types"
)

// Registry implements interfaces.SessionRegistry. Both maps are guarded
// by one mutex so no caller can ever observe a session present in one map
// and absent from the other.
type Registry struct {
	mu            sync.Mutex
	byID          map[string]*types.Session
	byStudent     map[string]*types.Session
	timeoutWindow time.Duration
	logger        *zap.Logger
}

// New creates a registry whose sessions idle out after timeoutWindow.
func New(timeoutWindow time.Duration, logger *zap.Logger) *Registry {
	return &Registry{
		byID:          make(map[string]*types.Session),
		byStudent:     make(map[string]*types.Session),
		timeoutWindow: timeoutWindow,
		logger:        logger,
	}
}

// Add registers a session in both maps. A nil session or one failing its
// field contract is a caller bug and is rejected. A student who already
// has a live session is rejected with ErrStudentActive so two racing
// "start" attempts converge on one session instead of orphaning the first.
func (r *Registry) Add(session *types.Session) error {
	if session == nil {
		return ErrNilSession
	}
	if err := session.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byStudent[session.StudentID]; exists {
		return interfaces.ErrStudentActive
	}
	if _, exists := r.byID[session.ID]; exists {
		return ErrDuplicateSessionID
	}

	stored := *session
	r.byID[stored.ID] = &stored
	r.byStudent[stored.StudentID] = &stored

	r.logger.Info("proctoring session registered",
		zap.String("session_id", stored.ID),
		zap.String("student_id", stored.StudentID),
		zap.String("exam_id", stored.ExamID))
	return nil
}

// Remove deletes a session from both maps. Removing an absent session is
// a no-op.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(sessionID)
}

func (r *Registry) removeLocked(sessionID string) {
	session, exists := r.byID[sessionID]
	if !exists {
		return
	}
	delete(r.byID, sessionID)
	delete(r.byStudent, session.StudentID)
}

// LookupByStudent returns a snapshot of the live session for a student.
func (r *Registry) LookupByStudent(studentID string) (types.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.byStudent[studentID]
	if !exists {
		return types.Session{}, false
	}
	return *session, true
}

// LookupByID returns a snapshot of the session with the given ID.
func (r *Registry) LookupByID(sessionID string) (types.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.byID[sessionID]
	if !exists {
		return types.Session{}, false
	}
	return *session, true
}

// Advance applies a state-machine trigger under the registry lock and
// extends the session's timeout. An illegal transition returns
// ErrIllegalTransition and leaves the session untouched.
//
// The assessment trigger sets JustStarted when the session enters
// ASSESSMENT from SHOWING_INSTRUCTIONS and clears it on a resume from
// ASSESSMENT itself, so the client can tell a fresh start from a rejoin.
func (r *Registry) Advance(sessionID string, trigger types.Trigger, now time.Time) (types.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.byID[sessionID]
	if !exists {
		return types.Session{}, interfaces.ErrSessionNotFound
	}

	next, ok := types.Next(session.State, trigger)
	if !ok {
		return *session, interfaces.ErrIllegalTransition
	}

	if trigger == types.TriggerAssessmentStarted {
		session.JustStarted = session.State == types.StateShowingInstructions
	}
	session.State = next
	session.TimeoutAt = now.Add(r.timeoutWindow)

	r.logger.Debug("proctoring session advanced",
		zap.String("session_id", session.ID),
		zap.String("trigger", string(trigger)),
		zap.String("state", string(session.State)))
	return *session, nil
}

// Touch extends a session's timeout without changing its state. Used for
// rejoin, ping, and keepalive messages.
func (r *Registry) Touch(sessionID string, now time.Time) (types.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.byID[sessionID]
	if !exists {
		return types.Session{}, false
	}
	session.TimeoutAt = now.Add(r.timeoutWindow)
	return *session, true
}

// Sweep removes every session whose timeout has elapsed, from both maps,
// and returns the number removed. Runs under the same lock as every other
// operation so no session is observed mid-removal.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []string
	for id, session := range r.byID {
		if session.TimeoutAt.Before(now) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		session := r.byID[id]
		r.logger.Info("proctoring session expired",
			zap.String("session_id", id),
			zap.String("student_id", session.StudentID),
			zap.Time("timeout_at", session.TimeoutAt))
		r.removeLocked(id)
	}
	return len(expired)
}

// ActiveSessions returns snapshots of every live session.
func (r *Registry) ActiveSessions() []types.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions := make([]types.Session, 0, len(r.byID))
	for _, session := range r.byID {
		sessions = append(sessions, *session)
	}
	return sessions
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
