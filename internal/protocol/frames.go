package protocol

import (
	"encoding/json"
	"fmt"

	"proctor/pkg/types"
)

// Outbound frame keywords.
const (
	frameError              = "ERROR"
	frameConnectedNoSession = "CONNECTED-NO-SESSION"
	frameConnectedSession   = "CONNECTED-SESSION"
	frameSession            = "SESSION"
	frameTerminated         = "TERMINATED"
	frameClosed             = "CLOSED"
)

// menuPayload is the JSON body of menu-bearing frames. Categories is
// always present, an empty array rather than null when nothing is
// eligible.
type menuPayload struct {
	Categories []types.ExamCategory `json:"categories"`
}

// sessionPayload is the JSON body of session-bearing frames.
type sessionPayload struct {
	PSID     string `json:"psid"`
	StuID    string `json:"stuid"`
	CourseID string `json:"courseid"`
	ExamID   string `json:"examid"`
	State    string `json:"state"`
}

// ErrorFrame is sent on authentication or lookup failure. It carries no
// payload; clients map it to a generic retry state.
func ErrorFrame() string {
	return frameError
}

// ConnectedNoSession announces a fresh connection with no live session
// and carries the eligible-exam menu.
func ConnectedNoSession(menu []types.ExamCategory) (string, error) {
	return menuFrame(frameConnectedNoSession, menu)
}

// ConnectedSession announces a reconnect to an existing live session.
func ConnectedSession(session types.Session) (string, error) {
	return sessionFrame(frameConnectedSession, session)
}

// SessionFrame reports session state after any state-advancing operation.
func SessionFrame(session types.Session) (string, error) {
	return sessionFrame(frameSession, session)
}

// Terminated is sent after start-over, carrying the fresh menu.
func Terminated(menu []types.ExamCategory) (string, error) {
	return menuFrame(frameTerminated, menu)
}

// Closed is sent after the session finishes.
func Closed() string {
	return frameClosed
}

func menuFrame(keyword string, menu []types.ExamCategory) (string, error) {
	if menu == nil {
		menu = []types.ExamCategory{}
	}
	data, err := json.Marshal(menuPayload{Categories: menu})
	if err != nil {
		return "", fmt.Errorf("failed to encode %s frame: %w", keyword, err)
	}
	return keyword + string(data), nil
}

func sessionFrame(keyword string, session types.Session) (string, error) {
	data, err := json.Marshal(sessionPayload{
		PSID:     session.ID,
		StuID:    session.StudentID,
		CourseID: session.CourseID,
		ExamID:   session.ExamID,
		State:    string(session.State),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode %s frame: %w", keyword, err)
	}
	return keyword + string(data), nil
}
