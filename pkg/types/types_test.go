package types

import (
	"testing"
	"time"
)

func TestNextLegalTransitions(t *testing.T) {
	cases := []struct {
		from    State
		trigger Trigger
		want    State
	}{
		{StateAwaitingStudentPhoto, TriggerPhotoCaptured, StateAwaitingStudentID},
		{StateAwaitingStudentID, TriggerIDCaptured, StateEnvironment},
		{StateEnvironment, TriggerEnvironmentScanned, StateShowingInstructions},
		{StateShowingInstructions, TriggerAssessmentStarted, StateAssessment},
		{StateAssessment, TriggerAssessmentStarted, StateAssessment},
	}

	for _, tc := range cases {
		got, ok := Next(tc.from, tc.trigger)
		if !ok {
			t.Errorf("Next(%s, %s): expected legal transition", tc.from, tc.trigger)
			continue
		}
		if got != tc.want {
			t.Errorf("Next(%s, %s) = %s, want %s", tc.from, tc.trigger, got, tc.want)
		}
	}
}

func TestNextRejectsEverythingElse(t *testing.T) {
	states := []State{
		StateAwaitingStudentPhoto, StateAwaitingStudentID, StateEnvironment,
		StateShowingInstructions, StateAssessment, StateFinished,
	}
	triggers := []Trigger{
		TriggerPhotoCaptured, TriggerIDCaptured,
		TriggerEnvironmentScanned, TriggerAssessmentStarted,
	}

	legal := map[State]Trigger{
		StateAwaitingStudentPhoto: TriggerPhotoCaptured,
		StateAwaitingStudentID:    TriggerIDCaptured,
		StateEnvironment:          TriggerEnvironmentScanned,
		StateShowingInstructions:  TriggerAssessmentStarted,
		StateAssessment:           TriggerAssessmentStarted,
	}

	for _, s := range states {
		for _, tr := range triggers {
			if legal[s] == tr {
				continue
			}
			if next, ok := Next(s, tr); ok {
				t.Errorf("Next(%s, %s) = %s, want illegal", s, tr, next)
			}
		}
	}
}

func TestSessionValidate(t *testing.T) {
	valid := Session{
		ID:        "M6A1BCxxxxxxxxxxxxxxxxxxx",
		StudentID: "823456789",
		CourseID:  "M 117",
		ExamID:    "171UE",
		State:     StateAwaitingStudentPhoto,
		TimeoutAt: time.Now().Add(30 * time.Minute),
	}

	if err := valid.Validate(); err != nil {
		t.Fatalf("valid session rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Session)
		want   error
	}{
		{"missing id", func(s *Session) { s.ID = "" }, ErrMissingSessionID},
		{"missing student", func(s *Session) { s.StudentID = "" }, ErrInvalidStudentID},
		{"bad student chars", func(s *Session) { s.StudentID = "abc def" }, ErrInvalidStudentID},
		{"missing exam", func(s *Session) { s.ExamID = "" }, ErrMissingExamID},
		{"bad state", func(s *Session) { s.State = "LIMBO" }, ErrInvalidState},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := valid
			tc.mutate(&s)
			if err := s.Validate(); err != tc.want {
				t.Errorf("Validate() = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestIsValidStudentID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"823456789", true},
		{"stu_01-a", true},
		{"", false},
		{"has space", false},
		{"exam#1", false},
	}
	for _, tc := range tests {
		if got := IsValidStudentID(tc.id); got != tc.want {
			t.Errorf("IsValidStudentID(%q) = %v, want %v", tc.id, got, tc.want)
		}
	}
}
