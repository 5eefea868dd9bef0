package types

import "regexp"

var (
	studentIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	examIDRegex    = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
)

// Validate checks the contract fields a session must carry before it can
// be registered. Violations are caller bugs, not recoverable conditions.
func (s *Session) Validate() error {
	if s.ID == "" {
		return ErrMissingSessionID
	}
	if !IsValidStudentID(s.StudentID) {
		return ErrInvalidStudentID
	}
	if s.ExamID == "" {
		return ErrMissingExamID
	}
	if !IsValidState(s.State) {
		return ErrInvalidState
	}
	return nil
}

// IsValidStudentID checks if a student ID meets format requirements.
func IsValidStudentID(studentID string) bool {
	if len(studentID) < 1 || len(studentID) > 50 {
		return false
	}
	return studentIDRegex.MatchString(studentID)
}

// IsValidExamID checks if an exam ID meets format requirements.
func IsValidExamID(examID string) bool {
	if len(examID) < 1 || len(examID) > 50 {
		return false
	}
	return examIDRegex.MatchString(examID)
}
