package types

import "errors"

var (
	ErrMissingSessionID = errors.New("session ID cannot be empty")
	ErrInvalidStudentID = errors.New("student ID must be 1-50 characters, alphanumeric + underscore/hyphen only")
	ErrMissingExamID    = errors.New("exam ID cannot be empty")
	ErrInvalidState     = errors.New("invalid session state")
)
