package registry

import "errors"

var (
	ErrNilSession         = errors.New("session cannot be nil")
	ErrDuplicateSessionID = errors.New("session ID already registered")
)
