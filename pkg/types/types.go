package types

import (
	"time"
)

// Exam kinds grouped into the fixed menu categories. Course exams are
// offered before tutorial exams, which are offered before placement exams.
const (
	ExamKindCourse    = "course"
	ExamKindTutorial  = "tutorial"
	ExamKindPlacement = "placement"
)

// Session is one student's live proctoring session. The registry owns the
// canonical record; lookups hand out value snapshots, and all mutation goes
// through the registry's Advance and Touch operations.
type Session struct {
	ID        string    `json:"psid"`
	StudentID string    `json:"stuid"`
	CourseID  string    `json:"courseid"`
	ExamID    string    `json:"examid"`
	State     State     `json:"state"`
	TimeoutAt time.Time `json:"-"`
	// JustStarted distinguishes entering the assessment from resuming it
	// after a reload. Set only by the assessment trigger.
	JustStarted bool `json:"-"`
}

// StudentRecord is the externally owned student identity this service
// references but does not manage.
type StudentRecord struct {
	StudentID string `json:"student_id" db:"student_id"`
	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`
}

// Exam is a proctorable exam catalog row.
type Exam struct {
	ExamID   string `json:"exam_id" db:"exam_id"`
	CourseID string `json:"course_id" db:"course_id"`
	Kind     string `json:"kind" db:"kind"`
	Label    string `json:"label" db:"label"`
}

// ExamEntry is one selectable exam in the eligibility menu.
type ExamEntry struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Note  string `json:"note,omitempty"`
}

// ExamCategory groups eligible exams under a menu heading. Categories with
// no exams are omitted from the menu entirely.
type ExamCategory struct {
	Title string      `json:"title"`
	Exams []ExamEntry `json:"exams"`
}

// LoginSession is an authenticated-user session issued outside the
// proctoring workflow and required to enter it.
type LoginSession struct {
	Token     string    `json:"token" db:"token"`
	StudentID string    `json:"student_id" db:"student_id"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
}
