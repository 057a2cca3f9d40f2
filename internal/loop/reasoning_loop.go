// Package loop implements the reasoning loop: a single cooperative task
// per active user prompt, pumping prompt → model → parse → render →
// {tool | confirm | done | error} until a terminator or an iteration cap
// fires. An explicit State type, a transition log, and small per-state
// step methods keep the state machine legible without a framework.
package loop

import (
	"context"
	"errors"
	"fmt"

	"github.com/loomhq/loom/internal/errs"
	"github.com/loomhq/loom/internal/logging"
	"github.com/loomhq/loom/internal/memory"
	"github.com/loomhq/loom/internal/parser"
	"github.com/loomhq/loom/internal/session"
	"github.com/loomhq/loom/internal/tools"
	"github.com/loomhq/loom/internal/wire"
	"go.uber.org/zap"
)

// State is one node of the reasoning loop's state machine.
type State string

const (
	StateIdle      State = "idle"
	StatePrompting State = "prompting"
	StateParsing   State = "parsing"
	StateRendering State = "rendering"
	StateExecuting State = "executing"
	StateObserving State = "observing"
	StateWaiting   State = "waiting"
	StateDone      State = "done"
	StateError     State = "error"
)

// Config holds the loop's two iteration caps.
type Config struct {
	AbsoluteMaxIterations int
	NominalMaxIterations  int
}

// Loop drives one execute() call to completion. It is not reused across
// calls — a fresh Loop is built per start_task.
type Loop struct {
	cfg      Config
	registry *tools.Registry

	state   State
	history []Transition

	// destructionConfirmed gates delete_file/delete_session: it is set
	// true only by a "yes" answer to the immediately preceding
	// request_confirmation, and cleared after every tool dispatch so a
	// stale confirmation can't cover an unrelated later action.
	destructionConfirmed bool
}

var destructiveActions = map[string]bool{
	"delete_file":    true,
	"delete_session": true,
}

// Transition records one state-machine edge for diagnostics.
type Transition struct {
	From State
	To   State
}

// New builds a Loop bound to registry's tool set and cfg's iteration
// caps.
func New(registry *tools.Registry, cfg Config) *Loop {
	return &Loop{cfg: cfg, registry: registry, state: StateIdle}
}

func (l *Loop) transition(to State) {
	l.history = append(l.history, Transition{From: l.state, To: to})
	l.state = to
}

// Execute runs one task to completion: record the user turn, augment the
// prompt, then iterate model calls until a terminator fires, a
// confirmation suspension resolves, or the iteration cap is exhausted.
func (l *Loop) Execute(ctx context.Context, active *session.ActiveSession, hc *tools.Context, initialPrompt string) error {
	log := logging.Get(logging.CategoryLoop)

	l.transition(StatePrompting)
	emit(hc, active.SessionID, wire.EventDisplayUserPrompt, map[string]any{"prompt": initialPrompt})

	mem := active.Memory()
	augmented, err := mem.PrepareAugmentedPrompt(ctx, initialPrompt)
	if err != nil {
		return err
	}
	if err := mem.AddTurn(ctx, memory.RoleUser, initialPrompt, augmented); err != nil {
		return err
	}

	currentPrompt := augmented
	absoluteMax := l.cfg.AbsoluteMaxIterations
	if absoluteMax <= 0 {
		absoluteMax = 10
	}
	nominalMax := l.cfg.NominalMaxIterations
	if nominalMax <= 0 {
		nominalMax = 3
	}

	for iteration := 1; iteration <= absoluteMax; iteration++ {
		if iteration == nominalMax+1 {
			currentPrompt = currentPrompt + "\n\nOBSERVATION: You are taking longer than expected. If the task is complete, call task_complete now."
		}

		l.transition(StatePrompting)
		text, err := active.ModelProxy.SendMessage(ctx, active.SessionName(), currentPrompt)
		if err != nil {
			log.Warn("model host call failed", zap.Error(err), zap.Int("iteration", iteration))

			// ModelHostUnavailable means Haven itself is unreachable, which
			// no amount of retrying within this task will fix. Every other
			// kind (timeout, transport hiccup) is treated as an observation
			// the model can react to on the next iteration.
			if errors.Is(err, errs.ModelHostUnavailable) {
				emit(hc, active.SessionID, wire.EventLogMessage, map[string]any{"type": wire.LogTypeInfo, "data": "model host is unavailable"})
				l.transition(StateError)
				return err
			}

			msg := "model call failed: " + err.Error()
			if errors.Is(err, errs.ModelHostTimeout) {
				msg = "model call timed out"
			}
			l.transition(StateObserving)
			emit(hc, active.SessionID, wire.EventToolLog, map[string]any{"action": "model_call", "result": msg})
			currentPrompt = "OBSERVATION: " + msg + ". Try again."
			continue
		}

		l.transition(StateParsing)
		parsed := parser.Parse(text)

		l.transition(StateRendering)
		if parsed.Prose != "" {
			emit(hc, active.SessionID, wire.EventLogMessage, map[string]any{"type": wire.LogTypeInfo, "data": parsed.Prose})
			_ = mem.AddTurn(ctx, memory.RoleModel, parsed.Prose, "")
		}

		if parsed.Command == nil {
			raw := parsed.Prose
			if raw == "" {
				raw = text
			}
			currentPrompt = fmt.Sprintf("OBSERVATION: your last response contained no actionable command and could not be parsed:\n\n%s\n\nRespond with a JSON action object.", raw)
			continue
		}

		done, next, err := l.step(ctx, active, hc, mem, parsed.Command)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		currentPrompt = next
	}

	emit(hc, active.SessionID, wire.EventLogMessage, map[string]any{
		"type": wire.LogTypeInfo,
		"data": fmt.Sprintf("stopped after %d iterations without a final answer", absoluteMax),
	})
	l.transition(StateDone)
	return nil
}

// step dispatches a single parsed command. It returns done=true once the
// loop should stop, and otherwise the next prompt to send the model.
func (l *Loop) step(ctx context.Context, active *session.ActiveSession, hc *tools.Context, mem *memory.Manager, cmd *tools.Command) (done bool, nextPrompt string, err error) {
	switch cmd.Action {
	case "request_confirmation":
		return l.confirm(ctx, active, hc, mem, cmd)
	case "task_complete":
		answer, _ := cmd.Parameters["answer"].(string)
		active.MarkComplete(answer)
		emit(hc, active.SessionID, wire.EventLogMessage, map[string]any{"type": wire.LogTypeFinalAnswer, "data": answer})
		_ = mem.AddTurn(ctx, memory.RoleModel, answer, "")
		l.transition(StateDone)
		return true, "", nil
	default:
		if destructiveActions[cmd.Action] && !l.destructionConfirmed {
			observation := fmt.Sprintf("OBSERVATION (%s): status=%s message=action '%s' is destructive, use request_confirmation first", cmd.Action, tools.StatusError, cmd.Action)
			emit(hc, active.SessionID, wire.EventToolLog, map[string]any{"action": cmd.Action, "result": tools.Error("action '" + cmd.Action + "' is destructive, use request_confirmation first")})
			_ = mem.AddTurn(ctx, memory.RoleToolObservation, observation, "")
			return false, observation, nil
		}

		l.transition(StateExecuting)
		result := l.registry.Dispatch(ctx, cmd, hc)
		l.transition(StateObserving)
		l.destructionConfirmed = false

		emit(hc, active.SessionID, wire.EventToolLog, map[string]any{"action": cmd.Action, "result": result})
		observation := fmt.Sprintf("OBSERVATION (%s): status=%s message=%s content=%v", cmd.Action, result.Status, result.Message, result.Content)
		_ = mem.AddTurn(ctx, memory.RoleToolObservation, observation, "")
		return false, observation, nil
	}
}

// confirm emits request_user_confirmation, arms the session's
// ConfirmationSlot, and suspends on it. A disconnect during the wait
// resolves the slot "no" and the loop observes that as an ordinary
// negative answer, then continues; events it emits after the disconnect
// are dropped by the closed connection.
func (l *Loop) confirm(ctx context.Context, active *session.ActiveSession, hc *tools.Context, mem *memory.Manager, cmd *tools.Command) (done bool, nextPrompt string, err error) {
	prompt, _ := cmd.Parameters["prompt"].(string)

	l.transition(StateWaiting)
	emit(hc, active.SessionID, wire.EventRequestUserConfirmation, map[string]any{"prompt": prompt})

	yes, err := hc.Sessions.AwaitConfirmation(active.SessionID, prompt)
	if err != nil {
		return false, "", err
	}

	answer := "no"
	if yes {
		answer = "yes"
	}
	l.destructionConfirmed = yes
	emit(hc, active.SessionID, wire.EventLogMessage, map[string]any{"type": wire.LogTypeSystemConfirm, "data": prompt + " -> " + answer})
	_ = mem.AddTurn(ctx, memory.RoleToolObservation, "USER_CONFIRMATION: '"+answer+"'", "")

	return false, "USER_CONFIRMATION: '" + answer + "'", nil
}

// emit forwards to hc.Events when one is wired; handlers and tests that
// omit an EventEmitter simply get silent rendering.
func emit(hc *tools.Context, sessionID, eventType string, payload map[string]any) {
	if hc.Events == nil {
		return
	}
	hc.Events.Emit(sessionID, eventType, payload)
}
