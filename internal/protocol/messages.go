// Package protocol defines the proctoring wire protocol: inbound text
// frames carrying a one-character opcode, and outbound keyword-prefixed
// reply frames. Frames are parsed into tagged message values at the
// transport boundary so the rest of the system never branches on raw
// characters.
package protocol

import "errors"

// ErrEmptyFrame and ErrUnknownOpcode classify unparseable inbound frames.
var (
	ErrEmptyFrame    = errors.New("empty protocol frame")
	ErrUnknownOpcode = errors.New("unknown protocol opcode")
)

// Message is an inbound client message.
type Message interface {
	isMessage()
}

// Connect authenticates the connection with a login-session token.
type Connect struct {
	LoginSessionID string
}

// Query asks for the current session state.
type Query struct{}

// Start begins a new proctoring session for one exam.
type Start struct {
	ExamID string
}

// PhotoCaptured reports the student photo step is complete.
type PhotoCaptured struct{}

// IDCaptured reports the student ID step is complete.
type IDCaptured struct{}

// EnvironmentScanned reports the environment scan is complete.
type EnvironmentScanned struct{}

// AssessmentStarted reports the assessment has started or resumed.
type AssessmentStarted struct{}

// Finished reports the assessment is done.
type Finished struct{}

// StartOver abandons the current session and asks for a fresh menu.
type StartOver struct {
	LoginSessionID string
}

// Rejoin re-attaches after a page reload, refreshing the timeout.
type Rejoin struct{}

// Ping refreshes the timeout and expects a state frame back.
type Ping struct{}

// Keepalive refreshes the timeout and expects no reply.
type Keepalive struct{}

func (Connect) isMessage()            {}
func (Query) isMessage()              {}
func (Start) isMessage()              {}
func (PhotoCaptured) isMessage()      {}
func (IDCaptured) isMessage()         {}
func (EnvironmentScanned) isMessage() {}
func (AssessmentStarted) isMessage()  {}
func (Finished) isMessage()           {}
func (StartOver) isMessage()          {}
func (Rejoin) isMessage()             {}
func (Ping) isMessage()               {}
func (Keepalive) isMessage()          {}

// ParseMessage converts one inbound frame into its message value. The
// first character is the opcode; the remainder is the opcode's payload.
func ParseMessage(frame string) (Message, error) {
	if frame == "" {
		return nil, ErrEmptyFrame
	}

	payload := frame[1:]
	switch frame[0] {
	case '!':
		return Connect{LoginSessionID: payload}, nil
	case '?':
		return Query{}, nil
	case 'S':
		return Start{ExamID: payload}, nil
	case 'P':
		return PhotoCaptured{}, nil
	case 'I':
		return IDCaptured{}, nil
	case 'E':
		return EnvironmentScanned{}, nil
	case 'A':
		return AssessmentStarted{}, nil
	case 'F':
		return Finished{}, nil
	case 'X':
		return StartOver{LoginSessionID: payload}, nil
	case 'R':
		return Rejoin{}, nil
	case '~':
		return Ping{}, nil
	case '.':
		return Keepalive{}, nil
	default:
		return nil, ErrUnknownOpcode
	}
}
