package loop

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/loomhq/loom/internal/embedding"
	"github.com/loomhq/loom/internal/errs"
	"github.com/loomhq/loom/internal/memory"
	"github.com/loomhq/loom/internal/modelhost"
	"github.com/loomhq/loom/internal/sandbox"
	"github.com/loomhq/loom/internal/session"
	"github.com/loomhq/loom/internal/tools"
	"github.com/loomhq/loom/internal/vectorstore"
	"github.com/loomhq/loom/internal/wire"
	"github.com/stretchr/testify/require"
)

// stubHost answers send_message with whatever script it's handed, one
// response per call, simulating a scripted model host.
type stubHost struct {
	responses []string
	calls     int
}

func (s *stubHost) handler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	var result any
	switch req.Method {
	case "send_message":
		text := "{}"
		if s.calls < len(s.responses) {
			text = s.responses[s.calls]
		}
		s.calls++
		result = map[string]any{"text": text}
	case "get_or_create_session":
		result = true
	default:
		result = map[string]any{}
	}

	resultBytes, _ := json.Marshal(result)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"result":  json.RawMessage(resultBytes),
	})
}

type stubEmitter struct {
	events []emittedEvent
}

type emittedEvent struct {
	sessionID string
	eventType string
	payload   map[string]any
}

func (e *stubEmitter) Emit(sessionID, eventType string, payload map[string]any) {
	e.events = append(e.events, emittedEvent{sessionID, eventType, payload})
}

type stubSessionOps struct{ confirmAnswer bool }

func (s *stubSessionOps) ListSessions() ([]string, error) { return nil, nil }
func (s *stubSessionOps) LoadSession(sessionID, name string) ([]memory.Turn, error) {
	return nil, nil
}
func (s *stubSessionOps) SaveSession(sessionID, name string) error { return nil }
func (s *stubSessionOps) DeleteSession(name string) error          { return nil }
func (s *stubSessionOps) AwaitConfirmation(sessionID, prompt string) (bool, error) {
	return s.confirmAnswer, nil
}
func (s *stubSessionOps) MarkComplete(sessionID, summary string) {}

func newTestHarness(t *testing.T, host *stubHost) (*session.ActiveSession, *tools.Context, *stubEmitter) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(host.handler))
	t.Cleanup(srv.Close)
	addr := strings.TrimPrefix(srv.URL, "http://")

	store, err := vectorstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	engine := embedding.NewLocalEngine(16)
	mem, err := memory.New(context.Background(), "conn-1", 20, store, engine)
	require.NoError(t, err)

	proxy := modelhost.New(addr, "", 0)

	guard, err := sandbox.NewGuard(t.TempDir())
	require.NoError(t, err)

	emitter := &stubEmitter{}
	hc := &tools.Context{
		SessionID: "conn-1",
		Guard:     guard,
		Sessions:  &stubSessionOps{confirmAnswer: true},
		Events:    emitter,
	}

	registry := session.NewRegistry(session.Config{Store: store, Engine: engine, SegmentThreshold: 20})
	connected, err := registry.Connect(context.Background(), "conn-1")
	require.NoError(t, err)
	connected.ModelProxy = proxy
	_ = mem

	return connected, hc, emitter
}

func TestExecute_SimpleAnswerCompletesInOneIteration(t *testing.T) {
	host := &stubHost{responses: []string{`{"action":"task_complete","parameters":{"answer":"Hi."}}`}}
	active, hc, emitter := newTestHarness(t, host)

	l := New(tools.Default, Config{AbsoluteMaxIterations: 10, NominalMaxIterations: 3})
	err := l.Execute(context.Background(), active, hc, "hello")
	require.NoError(t, err)

	done, answer := active.Completed()
	require.True(t, done)
	require.Equal(t, "Hi.", answer)

	var sawFinal bool
	for _, e := range emitter.events {
		if e.eventType == wire.EventLogMessage && e.payload["type"] == wire.LogTypeFinalAnswer {
			sawFinal = true
		}
	}
	require.True(t, sawFinal)
}

func TestExecute_ConfirmationFlowResumesWithYes(t *testing.T) {
	host := &stubHost{responses: []string{
		`{"action":"request_confirmation","parameters":{"prompt":"delete old.txt?"}}`,
		`{"action":"task_complete","parameters":{"answer":"deleted"}}`,
	}}
	active, hc, emitter := newTestHarness(t, host)

	l := New(tools.Default, Config{AbsoluteMaxIterations: 10, NominalMaxIterations: 3})
	err := l.Execute(context.Background(), active, hc, "delete old.txt")
	require.NoError(t, err)

	done, answer := active.Completed()
	require.True(t, done)
	require.Equal(t, "deleted", answer)

	var sawConfirmRequest bool
	for _, e := range emitter.events {
		if e.eventType == wire.EventRequestUserConfirmation {
			sawConfirmRequest = true
		}
	}
	require.True(t, sawConfirmRequest)
}

func TestExecute_UnknownActionContinuesLoop(t *testing.T) {
	host := &stubHost{responses: []string{
		`{"action":"not_a_real_tool","parameters":{}}`,
		`{"action":"task_complete","parameters":{"answer":"done anyway"}}`,
	}}
	active, hc, _ := newTestHarness(t, host)

	l := New(tools.Default, Config{AbsoluteMaxIterations: 10, NominalMaxIterations: 3})
	err := l.Execute(context.Background(), active, hc, "do something odd")
	require.NoError(t, err)

	done, answer := active.Completed()
	require.True(t, done)
	require.Equal(t, "done anyway", answer)
}

func TestExecute_IterationCapExhaustionEndsLoopWithoutAnswer(t *testing.T) {
	host := &stubHost{responses: []string{
		`{"action":"list_directory","parameters":{}}`,
		`{"action":"list_directory","parameters":{}}`,
		`{"action":"list_directory","parameters":{}}`,
		`{"action":"list_directory","parameters":{}}`,
	}}
	active, hc, emitter := newTestHarness(t, host)

	l := New(tools.Default, Config{AbsoluteMaxIterations: 4, NominalMaxIterations: 2})
	err := l.Execute(context.Background(), active, hc, "loop forever")
	require.NoError(t, err)

	done, _ := active.Completed()
	require.False(t, done)

	var sawDiagnostic bool
	for _, e := range emitter.events {
		if e.eventType == wire.EventLogMessage && e.payload["type"] == wire.LogTypeInfo {
			if text, ok := e.payload["data"].(string); ok && strings.Contains(text, "stopped after") {
				sawDiagnostic = true
			}
		}
	}
	require.True(t, sawDiagnostic)
}

func TestExecute_DeleteFileWithoutConfirmationIsRejected(t *testing.T) {
	host := &stubHost{responses: []string{
		`{"action":"delete_file","parameters":{"filename":"notes.txt"}}`,
		`{"action":"task_complete","parameters":{"answer":"gave up"}}`,
	}}
	active, hc, emitter := newTestHarness(t, host)

	l := New(tools.Default, Config{AbsoluteMaxIterations: 10, NominalMaxIterations: 3})
	err := l.Execute(context.Background(), active, hc, "delete notes.txt")
	require.NoError(t, err)

	var sawRejection bool
	for _, e := range emitter.events {
		if e.eventType == wire.EventToolLog && e.payload["action"] == "delete_file" {
			if result, ok := e.payload["result"].(*tools.Result); ok && strings.Contains(result.Message, "destructive") {
				sawRejection = true
			}
		}
	}
	require.True(t, sawRejection)
}

func TestExecute_DeleteFileAfterConfirmationProceeds(t *testing.T) {
	host := &stubHost{responses: []string{
		`{"action":"request_confirmation","parameters":{"prompt":"delete notes.txt?"}}`,
		`{"action":"delete_file","parameters":{"filename":"notes.txt"}}`,
		`{"action":"task_complete","parameters":{"answer":"deleted"}}`,
	}}
	active, hc, emitter := newTestHarness(t, host)

	l := New(tools.Default, Config{AbsoluteMaxIterations: 10, NominalMaxIterations: 3})
	err := l.Execute(context.Background(), active, hc, "delete notes.txt")
	require.NoError(t, err)

	var sawRejection bool
	for _, e := range emitter.events {
		if e.eventType == wire.EventToolLog && e.payload["action"] == "delete_file" {
			if result, ok := e.payload["result"].(*tools.Result); ok && strings.Contains(result.Message, "destructive") {
				sawRejection = true
			}
		}
	}
	require.False(t, sawRejection)

	done, answer := active.Completed()
	require.True(t, done)
	require.Equal(t, "deleted", answer)
}

func TestExecute_ModelHostUnavailableTerminatesLoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	addr := strings.TrimPrefix(srv.URL, "http://")

	store, err := vectorstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	engine := embedding.NewLocalEngine(16)

	guard, err := sandbox.NewGuard(t.TempDir())
	require.NoError(t, err)
	emitter := &stubEmitter{}
	hc := &tools.Context{SessionID: "conn-2", Guard: guard, Sessions: &stubSessionOps{confirmAnswer: true}, Events: emitter}

	registry := session.NewRegistry(session.Config{Store: store, Engine: engine, SegmentThreshold: 20})
	active, err := registry.Connect(context.Background(), "conn-2")
	require.NoError(t, err)
	active.ModelProxy = modelhost.New(addr, "", 0)

	l := New(tools.Default, Config{AbsoluteMaxIterations: 10, NominalMaxIterations: 3})
	err = l.Execute(context.Background(), active, hc, "hello")
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.ModelHostUnavailable))

	var sawUnavailable bool
	for _, e := range emitter.events {
		if e.eventType == wire.EventLogMessage && e.payload["data"] == "model host is unavailable" {
			sawUnavailable = true
		}
	}
	require.True(t, sawUnavailable)
}

func TestExecute_ModelHostTimeoutObservesAndContinues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0", "id": 1, "result": json.RawMessage(`{"text":"{}"}`),
		})
	}))
	t.Cleanup(srv.Close)
	addr := strings.TrimPrefix(srv.URL, "http://")

	store, err := vectorstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	engine := embedding.NewLocalEngine(16)

	guard, err := sandbox.NewGuard(t.TempDir())
	require.NoError(t, err)
	emitter := &stubEmitter{}
	hc := &tools.Context{SessionID: "conn-3", Guard: guard, Sessions: &stubSessionOps{confirmAnswer: true}, Events: emitter}

	registry := session.NewRegistry(session.Config{Store: store, Engine: engine, SegmentThreshold: 20})
	active, err := registry.Connect(context.Background(), "conn-3")
	require.NoError(t, err)
	active.ModelProxy = modelhost.New(addr, "", 0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	l := New(tools.Default, Config{AbsoluteMaxIterations: 2, NominalMaxIterations: 2})
	err = l.Execute(ctx, active, hc, "hello")
	require.NoError(t, err)

	done, _ := active.Completed()
	require.False(t, done)

	var sawTimeoutObservation bool
	for _, e := range emitter.events {
		if e.eventType == wire.EventToolLog && e.payload["result"] == "model call timed out" {
			sawTimeoutObservation = true
		}
	}
	require.True(t, sawTimeoutObservation)
}
