package bridge

import (
	"context"
	"strings"
	"time"

	"github.com/loomhq/loom/internal/auditlog"
	"github.com/loomhq/loom/internal/errs"
	"github.com/loomhq/loom/internal/logging"
	"github.com/loomhq/loom/internal/loop"
	"github.com/loomhq/loom/internal/session"
	"github.com/loomhq/loom/internal/tools"
	"github.com/loomhq/loom/internal/wire"
	"go.uber.org/zap"
)

// dispatcher routes one connection's inbound envelopes to the right
// handler.
type dispatcher struct {
	server *Server
	active *session.ActiveSession
	conn   *connection
	hc     *tools.Context
}

func (d *dispatcher) handle(env wire.Envelope) {
	log := logging.Get(logging.CategoryBridge)

	switch env.Event {
	case wire.EventStartTask:
		d.startTask(env.Payload)
	case wire.EventUserConfirmation:
		d.userConfirmation(env.Payload)
	case wire.EventRequestSessionList:
		d.sessionList()
	case wire.EventRequestSessionName:
		d.sessionName()
	case wire.EventLogAuditEvent:
		d.logAuditEvent(env.Payload)
	case wire.EventRequestDBCollections:
		d.dbCollections()
	case wire.EventRequestDBCollectionData:
		d.dbCollectionData(env.Payload)
	case wire.EventRequestTraceLog:
		d.traceLog()
	case wire.EventRequestHavenTraceLog:
		d.havenTraceLog()
	default:
		log.Debug("unrecognized inbound event", zap.String("event", env.Event), zap.String("session_id", d.active.SessionID))
	}
}

// startTask runs the reasoning loop for one prompt. A second start_task
// arriving while a loop is already in flight is rejected with a busy
// notice rather than running two loops over the same Memory Manager
// concurrently.
func (d *dispatcher) startTask(payload map[string]any) {
	prompt, _ := payload["prompt"].(string)

	if strings.TrimSpace(prompt) == "" {
		err := errs.Wrap(errs.InvalidArgument, "bridge: start_task requires a non-empty prompt")
		d.conn.Emit(d.active.SessionID, wire.EventLogMessage, map[string]any{
			"type": wire.LogTypeInfo,
			"data": err.Error(),
		})
		return
	}

	if !d.active.TryBeginTask() {
		d.conn.Emit(d.active.SessionID, wire.EventLogMessage, map[string]any{
			"type": wire.LogTypeInfo,
			"data": "a task is already running for this session",
		})
		return
	}

	go func() {
		defer d.active.EndTask()

		l := loop.New(d.server.Tools, d.server.LoopConfig())
		err := d.server.Pool.Submit(context.Background(), func(ctx context.Context) error {
			return l.Execute(ctx, d.active, d.hc, prompt)
		})
		if err != nil {
			logging.Get(logging.CategoryBridge).Warn("task failed", zap.String("session_id", d.active.SessionID), zap.Error(err))
			d.conn.Emit(d.active.SessionID, wire.EventLogMessage, map[string]any{
				"type": wire.LogTypeInfo,
				"data": "task failed: " + err.Error(),
			})
		}
	}()
}

// userConfirmation resolves the session's outstanding ConfirmationSlot
// directly. It cannot go through tools.SessionOps.AwaitConfirmation — that
// call is the one already blocked inside the loop goroutine waiting for
// this very answer.
func (d *dispatcher) userConfirmation(payload map[string]any) {
	yes, _ := payload["confirmed"].(bool)
	d.active.Confirmation.Resolve(yes)
}

func (d *dispatcher) sessionList() {
	names, err := d.server.Registry.ListSessions()
	if err != nil {
		logging.Get(logging.CategoryBridge).Warn("list sessions failed", zap.Error(err))
	}
	d.conn.Emit(d.active.SessionID, wire.EventSessionListUpdate, map[string]any{"sessions": names})
}

func (d *dispatcher) sessionName() {
	d.conn.Emit(d.active.SessionID, wire.EventSessionNameUpdate, map[string]any{"name": d.active.SessionName()})
}

func (d *dispatcher) logAuditEvent(payload map[string]any) {
	if d.server.Audit == nil {
		return
	}
	ev := auditlog.Event{
		EventName:   stringField(payload, "event"),
		Details:     stringField(payload, "details"),
		Source:      stringField(payload, "source"),
		Destination: stringField(payload, "destination"),
		ControlFlow: stringField(payload, "control_flow"),
	}
	d.server.Audit.Record(ev)
}

func (d *dispatcher) dbCollections() {
	if d.server.Store == nil {
		return
	}
	collections, err := d.server.Store.ListCollections()
	if err != nil {
		logging.Get(logging.CategoryBridge).Warn("list collections failed", zap.Error(err))
		return
	}
	d.conn.Emit(d.active.SessionID, wire.EventLogMessage, map[string]any{
		"type": wire.LogTypeInfo,
		"data": collections,
	})
}

func (d *dispatcher) dbCollectionData(payload map[string]any) {
	if d.server.Store == nil {
		return
	}
	collection := stringField(payload, "collection")
	records, err := d.server.Store.GetAllRecords(collection)
	if err != nil {
		logging.Get(logging.CategoryBridge).Warn("read collection failed", zap.String("collection", collection), zap.Error(err))
		return
	}
	d.conn.Emit(d.active.SessionID, wire.EventLogMessage, map[string]any{
		"type": wire.LogTypeInfo,
		"data": records,
	})
}

// traceLog answers request_trace_log. Nothing retains the session's
// transition history past one Execute call, so this reports the gap
// rather than returning any history.
func (d *dispatcher) traceLog() {
	d.conn.Emit(d.active.SessionID, wire.EventLogMessage, map[string]any{
		"type": wire.LogTypeInfo,
		"data": "local trace history is not retained between tasks",
	})
}

func (d *dispatcher) havenTraceLog() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	events, err := d.active.ModelProxy.GetTraceLog(ctx)
	if err != nil {
		logging.Get(logging.CategoryBridge).Warn("fetch haven trace log failed", zap.Error(err))
		d.conn.Emit(d.active.SessionID, wire.EventLogMessage, map[string]any{"type": wire.LogTypeInfo, "data": "model host trace log unavailable"})
		return
	}
	d.conn.Emit(d.active.SessionID, wire.EventLogMessage, map[string]any{"type": wire.LogTypeInfo, "data": events})
}

func stringField(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}
