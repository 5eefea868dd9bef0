package interfaces

import "errors"

// Common errors shared across component boundaries.
var (
	ErrSessionNotFound     = errors.New("proctoring session not found")
	ErrStudentActive       = errors.New("student already has a live proctoring session")
	ErrInvalidLoginSession = errors.New("login session invalid or expired")
	ErrStudentNotFound     = errors.New("student record not found")
	ErrExamNotFound        = errors.New("exam not found in catalog")
	ErrIllegalTransition   = errors.New("illegal session state transition")
)
