// Package endpoint drives the proctoring protocol for one client
// connection. The hosting transport owns the socket and invokes the
// EventHandler methods; everything here is plain logic with no transport
// coupling, and inbound frames for one connection arrive strictly in
// order.
package endpoint

import (
	"context"
	"time"

	"go.uber.org/zap"

	"proctor/internal/eligibility"
	"proctor/internal/protocol"
	"proctor/pkg/interfaces"
	"proctor/pkg/sessionid"
	"proctor/pkg/types"
)

// AttemptRecorder persists finished proctored attempts.
type AttemptRecorder interface {
	RecordExamAttempt(ctx context.Context, session types.Session, finishedAt time.Time) error
}

// Endpoint handles one connection. The registry is the only shared state
// it touches; the resolved student ID is connection-local, set by a
// successful connect or start-over, and every session access re-acquires
// the session from the registry by student ID so a reconnect picks up
// where the old connection left off.
type Endpoint struct {
	registry      interfaces.SessionRegistry
	auth          interfaces.AuthService
	students      interfaces.StudentStore
	providers     []interfaces.EligibilityProvider
	attempts      AttemptRecorder
	timeoutWindow time.Duration
	logger        *zap.Logger

	now        func() time.Time
	generateID func(time.Time) string

	conn      interfaces.Connection
	studentID string
}

// New creates an endpoint for one connection-to-be.
func New(
	registry interfaces.SessionRegistry,
	auth interfaces.AuthService,
	students interfaces.StudentStore,
	providers []interfaces.EligibilityProvider,
	attempts AttemptRecorder,
	timeoutWindow time.Duration,
	logger *zap.Logger,
) *Endpoint {
	return &Endpoint{
		registry:      registry,
		auth:          auth,
		students:      students,
		providers:     providers,
		attempts:      attempts,
		timeoutWindow: timeoutWindow,
		logger:        logger,
		now:           time.Now,
		generateID:    sessionid.Generate,
	}
}

// OnOpen records the connection this endpoint drives.
func (e *Endpoint) OnOpen(conn interfaces.Connection) {
	e.conn = conn
	e.logger.Info("proctoring connection opened", zap.String("remote", conn.RemoteAddr()))
}

// OnClose is invoked when the transport drops the connection. The session
// record deliberately survives: the student can reconnect and rejoin
// until the idle timeout expires.
func (e *Endpoint) OnClose() {
	e.logger.Info("proctoring connection closed",
		zap.String("student_id", e.studentID))
}

// OnError is invoked for transport-level failures.
func (e *Endpoint) OnError(err error) {
	e.logger.Warn("proctoring connection error",
		zap.String("student_id", e.studentID),
		zap.Error(err))
}

// OnMessage parses and dispatches one inbound frame. Unknown opcodes are
// logged and dropped without a reply; every other message produces at
// most one reply frame.
func (e *Endpoint) OnMessage(ctx context.Context, frame string) {
	message, err := protocol.ParseMessage(frame)
	if err != nil {
		e.logger.Warn("unparseable protocol frame",
			zap.String("frame", frame),
			zap.Error(err))
		return
	}

	switch m := message.(type) {
	case protocol.Connect:
		e.handleConnect(ctx, m.LoginSessionID)
	case protocol.Query:
		e.handleQuery()
	case protocol.Start:
		e.handleStart(ctx, m.ExamID)
	case protocol.PhotoCaptured:
		e.handleAdvance(types.TriggerPhotoCaptured)
	case protocol.IDCaptured:
		e.handleAdvance(types.TriggerIDCaptured)
	case protocol.EnvironmentScanned:
		e.handleAdvance(types.TriggerEnvironmentScanned)
	case protocol.AssessmentStarted:
		e.handleAdvance(types.TriggerAssessmentStarted)
	case protocol.Finished:
		e.handleFinished(ctx)
	case protocol.StartOver:
		e.handleStartOver(ctx, m.LoginSessionID)
	case protocol.Rejoin:
		e.handleTouch(true)
	case protocol.Ping:
		e.handleTouch(true)
	case protocol.Keepalive:
		e.handleTouch(false)
	}
}

// handleConnect validates the login token, resolves the student, and
// reports either the live session or the eligible-exam menu.
func (e *Endpoint) handleConnect(ctx context.Context, token string) {
	studentID, err := e.auth.ValidateLoginSession(ctx, token)
	if err != nil {
		e.logger.Warn("connect with unresolvable login session", zap.Error(err))
		e.send(protocol.ErrorFrame())
		return
	}

	if _, err := e.students.GetStudent(ctx, studentID); err != nil {
		e.logger.Warn("connect for unresolvable student",
			zap.String("student_id", studentID),
			zap.Error(err))
		e.send(protocol.ErrorFrame())
		return
	}

	e.studentID = studentID

	if session, ok := e.registry.LookupByStudent(studentID); ok {
		e.registry.Touch(session.ID, e.now())
		e.reply(protocol.ConnectedSession(session))
		return
	}

	menu, err := eligibility.BuildMenu(ctx, e.providers, studentID, e.now(), e.logger)
	if err != nil {
		e.send(protocol.ErrorFrame())
		return
	}
	e.reply(protocol.ConnectedNoSession(menu))
}

// handleQuery reports the current session state.
func (e *Endpoint) handleQuery() {
	session, ok := e.attachedSession()
	if !ok {
		e.logger.Warn("state query with no attached session",
			zap.String("student_id", e.studentID))
		e.send(protocol.ErrorFrame())
		return
	}
	e.reply(protocol.SessionFrame(session))
}

// handleStart creates a new proctoring session for the given exam. If
// this student already has a live session, including one created by a
// racing tab, the endpoint attaches to it instead of replacing it.
func (e *Endpoint) handleStart(ctx context.Context, examID string) {
	if e.studentID == "" {
		e.logger.Warn("start before connect", zap.String("exam_id", examID))
		e.send(protocol.ErrorFrame())
		return
	}

	if existing, ok := e.registry.LookupByStudent(e.studentID); ok {
		e.registry.Touch(existing.ID, e.now())
		e.reply(protocol.SessionFrame(existing))
		return
	}

	exam, err := e.students.GetExam(ctx, examID)
	if err != nil {
		e.logger.Warn("start for unknown exam",
			zap.String("exam_id", examID),
			zap.Error(err))
		e.send(protocol.ErrorFrame())
		return
	}

	now := e.now()
	session := &types.Session{
		ID:        e.generateID(now),
		StudentID: e.studentID,
		CourseID:  exam.CourseID,
		ExamID:    exam.ExamID,
		State:     types.StateAwaitingStudentPhoto,
		TimeoutAt: now.Add(e.timeoutWindow),
	}

	if err := e.registry.Add(session); err != nil {
		if existing, ok := e.registry.LookupByStudent(e.studentID); ok {
			// Lost a create race; the other connection's session wins.
			e.reply(protocol.SessionFrame(existing))
			return
		}
		e.logger.Error("failed to register proctoring session", zap.Error(err))
		e.send(protocol.ErrorFrame())
		return
	}

	e.reply(protocol.SessionFrame(*session))
}

// handleAdvance applies a state-machine trigger. Without a session these
// messages are advisory and dropped with a warning; an illegal trigger
// leaves the state alone and reports it unchanged.
func (e *Endpoint) handleAdvance(trigger types.Trigger) {
	session, ok := e.attachedSession()
	if !ok {
		e.logger.Warn("state trigger with no attached session",
			zap.String("trigger", string(trigger)),
			zap.String("student_id", e.studentID))
		return
	}

	updated, err := e.registry.Advance(session.ID, trigger, e.now())
	if err != nil {
		e.logger.Warn("rejected state trigger",
			zap.String("trigger", string(trigger)),
			zap.String("state", string(session.State)),
			zap.Error(err))
	}
	// On rejection Advance returns the unchanged session.
	e.reply(protocol.SessionFrame(updated))
}

// handleFinished removes the session, records the attempt, and tells the
// client the workflow is over.
func (e *Endpoint) handleFinished(ctx context.Context) {
	session, ok := e.attachedSession()
	if !ok {
		e.logger.Warn("finish with no attached session",
			zap.String("student_id", e.studentID))
		e.send(protocol.ErrorFrame())
		return
	}

	e.registry.Remove(session.ID)

	if err := e.attempts.RecordExamAttempt(ctx, session, e.now()); err != nil {
		// The session is already gone; the record is best-effort.
		e.logger.Error("failed to record finished exam attempt",
			zap.String("session_id", session.ID),
			zap.Error(err))
	}

	e.logger.Info("proctoring session finished",
		zap.String("session_id", session.ID),
		zap.String("student_id", session.StudentID),
		zap.String("exam_id", session.ExamID))
	e.send(protocol.Closed())
}

// handleStartOver abandons any current session and re-offers the menu.
func (e *Endpoint) handleStartOver(ctx context.Context, token string) {
	studentID, err := e.auth.ValidateLoginSession(ctx, token)
	if err != nil {
		e.logger.Warn("start-over with unresolvable login session", zap.Error(err))
		e.send(protocol.ErrorFrame())
		return
	}
	e.studentID = studentID

	if session, ok := e.registry.LookupByStudent(studentID); ok {
		e.registry.Remove(session.ID)
		e.logger.Info("proctoring session abandoned",
			zap.String("session_id", session.ID),
			zap.String("student_id", studentID))
	}

	menu, err := eligibility.BuildMenu(ctx, e.providers, studentID, e.now(), e.logger)
	if err != nil {
		e.send(protocol.ErrorFrame())
		return
	}
	e.reply(protocol.Terminated(menu))
}

// handleTouch extends the session timeout. Rejoin and ping answer with
// the current state; keepalive answers with nothing. None of them send an
// error frame when no session is attached.
func (e *Endpoint) handleTouch(respond bool) {
	session, ok := e.attachedSession()
	if !ok {
		e.logger.Debug("timeout refresh with no attached session",
			zap.String("student_id", e.studentID))
		return
	}

	updated, ok := e.registry.Touch(session.ID, e.now())
	if !ok {
		// Swept between lookup and touch; nothing left to refresh.
		return
	}
	if respond {
		e.reply(protocol.SessionFrame(updated))
	}
}

// attachedSession re-acquires this connection's session from the
// registry by student ID.
func (e *Endpoint) attachedSession() (types.Session, bool) {
	if e.studentID == "" {
		return types.Session{}, false
	}
	return e.registry.LookupByStudent(e.studentID)
}

// reply sends a built frame, or logs when the frame itself could not be
// encoded.
func (e *Endpoint) reply(frame string, err error) {
	if err != nil {
		e.logger.Error("failed to build reply frame", zap.Error(err))
		e.send(protocol.ErrorFrame())
		return
	}
	e.send(frame)
}

// send writes one frame. Write failures are logged and otherwise ignored;
// the transport notices the dead connection through its own read loop.
func (e *Endpoint) send(frame string) {
	if e.conn == nil {
		return
	}
	if err := e.conn.WriteText(frame); err != nil {
		e.logger.Warn("failed to write frame",
			zap.String("student_id", e.studentID),
			zap.Error(err))
	}
}
