package types

// State identifies where a session is in the identity-verification and
// exam-taking workflow.
type State string

const (
	StateAwaitingStudentPhoto State = "AWAITING_STUDENT_PHOTO"
	StateAwaitingStudentID    State = "AWAITING_STUDENT_ID"
	StateEnvironment          State = "ENVIRONMENT"
	StateShowingInstructions  State = "SHOWING_INSTRUCTIONS"
	StateAssessment           State = "ASSESSMENT"
	StateFinished             State = "FINISHED"
)

// Trigger is a state-advancing event delivered over the wire. Finish,
// start-over, rejoin, and keepalive never change state and therefore have
// no trigger here.
type Trigger string

const (
	TriggerPhotoCaptured      Trigger = "photo_captured"
	TriggerIDCaptured         Trigger = "id_captured"
	TriggerEnvironmentScanned Trigger = "environment_scanned"
	TriggerAssessmentStarted  Trigger = "assessment_started"
)

// transitions is the complete legal transition graph. Anything absent from
// this table leaves the session state unchanged.
var transitions = map[State]map[Trigger]State{
	StateAwaitingStudentPhoto: {
		TriggerPhotoCaptured: StateAwaitingStudentID,
	},
	StateAwaitingStudentID: {
		TriggerIDCaptured: StateEnvironment,
	},
	StateEnvironment: {
		TriggerEnvironmentScanned: StateShowingInstructions,
	},
	StateShowingInstructions: {
		TriggerAssessmentStarted: StateAssessment,
	},
	StateAssessment: {
		TriggerAssessmentStarted: StateAssessment,
	},
}

// Next returns the state reached by applying trigger in state, and whether
// that transition is legal.
func Next(state State, trigger Trigger) (State, bool) {
	next, ok := transitions[state][trigger]
	return next, ok
}

// IsValidState reports whether s is one of the defined workflow states.
func IsValidState(s State) bool {
	switch s {
	case StateAwaitingStudentPhoto, StateAwaitingStudentID, StateEnvironment,
		StateShowingInstructions, StateAssessment, StateFinished:
		return true
	default:
		return false
	}
}
