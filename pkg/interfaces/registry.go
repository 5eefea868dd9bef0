package interfaces

import (
	"time"

	"proctor/pkg/types"
)

// SessionRegistry is the process-wide store of live proctoring sessions,
// keyed both by session ID and by student ID. Implementations must keep
// the two views consistent under concurrent use and must return value
// snapshots rather than references into their own storage.
type SessionRegistry interface {
	// Add registers a new session in both maps. Contract violations
	// (nil session, blank IDs) and a student with a live session are
	// rejected.
	Add(session *types.Session) error

	// Remove deletes a session from both maps. Removing an absent
	// session is a no-op.
	Remove(sessionID string)

	// LookupByStudent returns the live session for a student, if any.
	LookupByStudent(studentID string) (types.Session, bool)

	// LookupByID returns the live session with the given ID, if any.
	LookupByID(sessionID string) (types.Session, bool)

	// Advance applies a state-machine trigger to a session and extends
	// its timeout. Illegal transitions leave the session untouched.
	Advance(sessionID string, trigger types.Trigger, now time.Time) (types.Session, error)

	// Touch extends a session's timeout without changing state.
	Touch(sessionID string, now time.Time) (types.Session, bool)

	// Sweep removes every session whose timeout has elapsed and returns
	// how many were removed.
	Sweep(now time.Time) int

	// ActiveSessions returns snapshots of all live sessions.
	ActiveSessions() []types.Session

	// Count returns the number of live sessions.
	Count() int
}
