package endpoint

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"proctor/internal/registry"
	"proctor/pkg/interfaces"
	"proctor/pkg/types"
)

const window = 30 * time.Minute

type mockConnection struct {
	frames []string
}

func (m *mockConnection) WriteText(frame string) error {
	m.frames = append(m.frames, frame)
	return nil
}

func (m *mockConnection) Close() error       { return nil }
func (m *mockConnection) RemoteAddr() string { return "test:0" }

func (m *mockConnection) last(t *testing.T) string {
	t.Helper()
	if len(m.frames) == 0 {
		t.Fatal("no frames sent")
	}
	return m.frames[len(m.frames)-1]
}

type mockAuth struct {
	tokens map[string]string
}

func (m *mockAuth) ValidateLoginSession(ctx context.Context, token string) (string, error) {
	studentID, ok := m.tokens[token]
	if !ok {
		return "", interfaces.ErrInvalidLoginSession
	}
	return studentID, nil
}

func (m *mockAuth) IssueLoginSession(ctx context.Context, studentID string, ttl time.Duration) (string, error) {
	return "", errors.New("not implemented")
}

type mockStudentStore struct {
	students map[string]*types.StudentRecord
	exams    map[string]*types.Exam
}

func (m *mockStudentStore) GetStudent(ctx context.Context, studentID string) (*types.StudentRecord, error) {
	record, ok := m.students[studentID]
	if !ok {
		return nil, interfaces.ErrStudentNotFound
	}
	return record, nil
}

func (m *mockStudentStore) GetExam(ctx context.Context, examID string) (*types.Exam, error) {
	exam, ok := m.exams[examID]
	if !ok {
		return nil, interfaces.ErrExamNotFound
	}
	return exam, nil
}

type mockProvider struct {
	title   string
	entries []types.ExamEntry
	err     error
}

func (m *mockProvider) Title() string { return m.title }

func (m *mockProvider) ListEligibleExams(ctx context.Context, studentID string, now time.Time) ([]types.ExamEntry, error) {
	return m.entries, m.err
}

type mockRecorder struct {
	recorded []types.Session
	err      error
}

func (m *mockRecorder) RecordExamAttempt(ctx context.Context, session types.Session, finishedAt time.Time) error {
	if m.err != nil {
		return m.err
	}
	m.recorded = append(m.recorded, session)
	return nil
}

type fixture struct {
	endpoint *Endpoint
	registry *registry.Registry
	conn     *mockConnection
	recorder *mockRecorder
}

func newFixture(t *testing.T, providers ...interfaces.EligibilityProvider) *fixture {
	t.Helper()

	reg := registry.New(window, zap.NewNop())
	auth := &mockAuth{tokens: map[string]string{"validtoken": "823456789"}}
	store := &mockStudentStore{
		students: map[string]*types.StudentRecord{
			"823456789": {StudentID: "823456789", FirstName: "Test", LastName: "Student"},
		},
		exams: map[string]*types.Exam{
			"171UE": {ExamID: "171UE", CourseID: "M 117", Kind: types.ExamKindCourse, Label: "Unit 1 Exam"},
		},
	}
	recorder := &mockRecorder{}

	ep := New(reg, auth, store, providers, recorder, window, zap.NewNop())
	conn := &mockConnection{}
	ep.OnOpen(conn)

	return &fixture{endpoint: ep, registry: reg, conn: conn, recorder: recorder}
}

func courseAndPlacementProviders() []interfaces.EligibilityProvider {
	return []interfaces.EligibilityProvider{
		&mockProvider{title: "Course Exams", entries: []types.ExamEntry{
			{ID: "171UE", Label: "Unit 1 Exam"},
			{ID: "172UE", Label: "Unit 2 Exam"},
		}},
		&mockProvider{title: "Tutorial Exams"},
		&mockProvider{title: "Placement Exams", entries: []types.ExamEntry{
			{ID: "MPTTC", Label: "Math Placement Tool"},
		}},
	}
}

func sessionPayload(t *testing.T, frame, prefix string) map[string]string {
	t.Helper()
	if !strings.HasPrefix(frame, prefix+"{") {
		t.Fatalf("frame = %q, want %s payload", frame, prefix)
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(strings.TrimPrefix(frame, prefix)), &payload); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	return payload
}

func TestConnectOffersMenu(t *testing.T) {
	f := newFixture(t, courseAndPlacementProviders()...)
	ctx := context.Background()

	f.endpoint.OnMessage(ctx, "!validtoken")

	frame := f.conn.last(t)
	if !strings.HasPrefix(frame, "CONNECTED-NO-SESSION{") {
		t.Fatalf("frame = %q", frame)
	}

	var payload struct {
		Categories []types.ExamCategory `json:"categories"`
	}
	if err := json.Unmarshal([]byte(strings.TrimPrefix(frame, "CONNECTED-NO-SESSION")), &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	// Empty tutorial category is omitted; course exams come first.
	if len(payload.Categories) != 2 {
		t.Fatalf("categories = %d, want 2", len(payload.Categories))
	}
	if payload.Categories[0].Title != "Course Exams" || len(payload.Categories[0].Exams) != 2 {
		t.Errorf("first category: %+v", payload.Categories[0])
	}
	if payload.Categories[1].Title != "Placement Exams" {
		t.Errorf("second category: %+v", payload.Categories[1])
	}
}

func TestConnectBadTokenSendsError(t *testing.T) {
	f := newFixture(t)
	f.endpoint.OnMessage(context.Background(), "!wrong")

	if f.conn.last(t) != "ERROR" {
		t.Errorf("frame = %q, want ERROR", f.conn.last(t))
	}
	if f.registry.Count() != 0 {
		t.Error("no session should exist")
	}
}

func TestConnectReattachesToLiveSession(t *testing.T) {
	f := newFixture(t, courseAndPlacementProviders()...)
	ctx := context.Background()

	f.endpoint.OnMessage(ctx, "!validtoken")
	f.endpoint.OnMessage(ctx, "S171UE")
	started := sessionPayload(t, f.conn.last(t), "SESSION")

	// A fresh connection (page reload) connects with the same login.
	reconnect := newFixtureSharing(t, f)
	reconnect.endpoint.OnMessage(ctx, "!validtoken")

	payload := sessionPayload(t, reconnect.conn.last(t), "CONNECTED-SESSION")
	if payload["psid"] != started["psid"] {
		t.Errorf("reconnect psid = %q, want %q", payload["psid"], started["psid"])
	}
	if payload["state"] != string(types.StateAwaitingStudentPhoto) {
		t.Errorf("state = %q", payload["state"])
	}
}

// newFixtureSharing builds a second endpoint over the same registry, as a
// second connection from the same student.
func newFixtureSharing(t *testing.T, f *fixture) *fixture {
	t.Helper()

	auth := &mockAuth{tokens: map[string]string{"validtoken": "823456789"}}
	store := &mockStudentStore{
		students: map[string]*types.StudentRecord{
			"823456789": {StudentID: "823456789"},
		},
		exams: map[string]*types.Exam{
			"171UE": {ExamID: "171UE", CourseID: "M 117", Kind: types.ExamKindCourse, Label: "Unit 1 Exam"},
		},
	}
	ep := New(f.registry, auth, store, courseAndPlacementProviders(), &mockRecorder{}, window, zap.NewNop())
	conn := &mockConnection{}
	ep.OnOpen(conn)
	return &fixture{endpoint: ep, registry: f.registry, conn: conn}
}

func TestStartWalksVerificationLadder(t *testing.T) {
	f := newFixture(t, courseAndPlacementProviders()...)
	ctx := context.Background()

	f.endpoint.OnMessage(ctx, "!validtoken")
	f.endpoint.OnMessage(ctx, "S171UE")

	started := sessionPayload(t, f.conn.last(t), "SESSION")
	if started["state"] != string(types.StateAwaitingStudentPhoto) {
		t.Fatalf("state after start = %q", started["state"])
	}
	if started["courseid"] != "M 117" || started["examid"] != "171UE" {
		t.Errorf("start payload: %+v", started)
	}
	psid := started["psid"]

	f.endpoint.OnMessage(ctx, "P")
	after := sessionPayload(t, f.conn.last(t), "SESSION")
	if after["state"] != string(types.StateAwaitingStudentID) || after["psid"] != psid {
		t.Errorf("after P: %+v", after)
	}

	f.endpoint.OnMessage(ctx, "I")
	after = sessionPayload(t, f.conn.last(t), "SESSION")
	if after["state"] != string(types.StateEnvironment) || after["psid"] != psid {
		t.Errorf("after I: %+v", after)
	}

	f.endpoint.OnMessage(ctx, "E")
	f.endpoint.OnMessage(ctx, "A")
	after = sessionPayload(t, f.conn.last(t), "SESSION")
	if after["state"] != string(types.StateAssessment) {
		t.Errorf("after A: %+v", after)
	}
}

func TestStartBeforeConnectSendsError(t *testing.T) {
	f := newFixture(t)
	f.endpoint.OnMessage(context.Background(), "S171UE")

	if f.conn.last(t) != "ERROR" {
		t.Errorf("frame = %q, want ERROR", f.conn.last(t))
	}
}

func TestStartUnknownExamSendsError(t *testing.T) {
	f := newFixture(t, courseAndPlacementProviders()...)
	ctx := context.Background()

	f.endpoint.OnMessage(ctx, "!validtoken")
	f.endpoint.OnMessage(ctx, "SNOPE")

	if f.conn.last(t) != "ERROR" {
		t.Errorf("frame = %q, want ERROR", f.conn.last(t))
	}
}

func TestStartWithLiveSessionAttaches(t *testing.T) {
	f := newFixture(t, courseAndPlacementProviders()...)
	ctx := context.Background()

	f.endpoint.OnMessage(ctx, "!validtoken")
	f.endpoint.OnMessage(ctx, "S171UE")
	first := sessionPayload(t, f.conn.last(t), "SESSION")

	f.endpoint.OnMessage(ctx, "S171UE")
	second := sessionPayload(t, f.conn.last(t), "SESSION")

	if first["psid"] != second["psid"] {
		t.Errorf("second start created a new session: %q vs %q", first["psid"], second["psid"])
	}
	if f.registry.Count() != 1 {
		t.Errorf("registry count = %d, want 1", f.registry.Count())
	}
}

func TestIllegalTriggerLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t, courseAndPlacementProviders()...)
	ctx := context.Background()

	f.endpoint.OnMessage(ctx, "!validtoken")
	f.endpoint.OnMessage(ctx, "S171UE")

	// "I" is not legal from AWAITING_STUDENT_PHOTO.
	f.endpoint.OnMessage(ctx, "I")
	payload := sessionPayload(t, f.conn.last(t), "SESSION")
	if payload["state"] != string(types.StateAwaitingStudentPhoto) {
		t.Errorf("state = %q, want unchanged AWAITING_STUDENT_PHOTO", payload["state"])
	}
}

func TestAdvanceWithoutSessionIsSilent(t *testing.T) {
	f := newFixture(t)
	f.endpoint.OnMessage(context.Background(), "P")

	if len(f.conn.frames) != 0 {
		t.Errorf("expected no reply, got %v", f.conn.frames)
	}
}

func TestFinishedClosesAndRemoves(t *testing.T) {
	f := newFixture(t, courseAndPlacementProviders()...)
	ctx := context.Background()

	f.endpoint.OnMessage(ctx, "!validtoken")
	f.endpoint.OnMessage(ctx, "S171UE")
	f.endpoint.OnMessage(ctx, "F")

	if f.conn.last(t) != "CLOSED" {
		t.Fatalf("frame = %q, want CLOSED", f.conn.last(t))
	}
	if f.registry.Count() != 0 {
		t.Error("session should be removed after finish")
	}
	if len(f.recorder.recorded) != 1 {
		t.Errorf("recorded attempts = %d, want 1", len(f.recorder.recorded))
	}
}

func TestFinishedWithoutSessionSendsError(t *testing.T) {
	f := newFixture(t)
	f.endpoint.OnMessage(context.Background(), "F")

	if f.conn.last(t) != "ERROR" {
		t.Errorf("frame = %q, want ERROR", f.conn.last(t))
	}
}

func TestStartOverTerminatesAndReoffersMenu(t *testing.T) {
	f := newFixture(t, courseAndPlacementProviders()...)
	ctx := context.Background()

	f.endpoint.OnMessage(ctx, "!validtoken")
	f.endpoint.OnMessage(ctx, "S171UE")
	f.endpoint.OnMessage(ctx, "Xvalidtoken")

	frame := f.conn.last(t)
	if !strings.HasPrefix(frame, "TERMINATED{") {
		t.Fatalf("frame = %q", frame)
	}
	if f.registry.Count() != 0 {
		t.Error("session should be removed after start-over")
	}
}

func TestSweepThenConnectOffersMenu(t *testing.T) {
	f := newFixture(t, courseAndPlacementProviders()...)
	ctx := context.Background()

	f.endpoint.OnMessage(ctx, "!validtoken")
	f.endpoint.OnMessage(ctx, "S171UE")

	// Idle past the timeout window with no keepalive.
	if removed := f.registry.Sweep(time.Now().Add(window + time.Minute)); removed != 1 {
		t.Fatalf("Sweep removed %d, want 1", removed)
	}

	f.endpoint.OnMessage(ctx, "!validtoken")
	if !strings.HasPrefix(f.conn.last(t), "CONNECTED-NO-SESSION{") {
		t.Errorf("frame = %q, want CONNECTED-NO-SESSION", f.conn.last(t))
	}
}

func TestPingRefreshesTimeoutAndReports(t *testing.T) {
	f := newFixture(t, courseAndPlacementProviders()...)
	ctx := context.Background()

	f.endpoint.OnMessage(ctx, "!validtoken")
	f.endpoint.OnMessage(ctx, "S171UE")
	before, _ := f.registry.LookupByStudent("823456789")

	time.Sleep(5 * time.Millisecond)
	f.endpoint.OnMessage(ctx, "~")

	payload := sessionPayload(t, f.conn.last(t), "SESSION")
	if payload["state"] != string(types.StateAwaitingStudentPhoto) {
		t.Errorf("ping changed state: %q", payload["state"])
	}

	after, _ := f.registry.LookupByStudent("823456789")
	if !after.TimeoutAt.After(before.TimeoutAt) {
		t.Error("ping did not extend timeout")
	}
}

func TestKeepaliveIsSilent(t *testing.T) {
	f := newFixture(t, courseAndPlacementProviders()...)
	ctx := context.Background()

	f.endpoint.OnMessage(ctx, "!validtoken")
	f.endpoint.OnMessage(ctx, "S171UE")
	sent := len(f.conn.frames)

	f.endpoint.OnMessage(ctx, ".")

	if len(f.conn.frames) != sent {
		t.Errorf("keepalive sent a reply: %v", f.conn.frames[sent:])
	}

	// Keepalive with no session attached is also silent.
	bare := newFixture(t)
	bare.endpoint.OnMessage(ctx, ".")
	if len(bare.conn.frames) != 0 {
		t.Errorf("detached keepalive sent a reply: %v", bare.conn.frames)
	}
}

func TestUnknownOpcodeIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.endpoint.OnMessage(context.Background(), "Zwhatever")

	if len(f.conn.frames) != 0 {
		t.Errorf("expected no reply, got %v", f.conn.frames)
	}
}

func TestConnectFailsWhenEligibilityFails(t *testing.T) {
	failing := &mockProvider{title: "Course Exams", err: errors.New("database unavailable")}
	f := newFixture(t, failing)

	f.endpoint.OnMessage(context.Background(), "!validtoken")

	if f.conn.last(t) != "ERROR" {
		t.Errorf("frame = %q, want ERROR", f.conn.last(t))
	}
}
