package tools

import (
	"context"
	"strings"

	"github.com/loomhq/loom/internal/memory"
	"github.com/loomhq/loom/internal/wire"
)

func init() {
	Default.MustRegister(&Tool{
		Name:        "list_sessions",
		Description: "List the union of named model-host sessions and on-disk collections under the session namespace.",
		Decode:      decodeNoParams("list_sessions"),
		Handler:     handleListSessions,
	})
	Default.MustRegister(&Tool{
		Name:        "load_session",
		Description: "Rehydrate memory and model-host history from a named collection and replay rendering to the client.",
		Decode:      decodeSessionNameParams("load_session"),
		Handler:     handleLoadSession,
	})
	Default.MustRegister(&Tool{
		Name:        "save_session",
		Description: "Copy the active session's records into a collection under session_name and register it with the model host.",
		Decode:      decodeSessionNameParams("save_session"),
		Handler:     handleSaveSession,
	})
	Default.MustRegister(&Tool{
		Name:        "delete_session",
		Description: "Drop a session's collections and model-host session, then emit the updated list.",
		Decode:      decodeSessionNameParams("delete_session"),
		Handler:     handleDeleteSession,
	})
}

func handleListSessions(_ context.Context, _ Params, hc *Context) (*Result, error) {
	names, err := hc.Sessions.ListSessions()
	if err != nil {
		return Error(err.Error()), nil
	}
	return Success("sessions listed", names), nil
}

func handleLoadSession(_ context.Context, params Params, hc *Context) (*Result, error) {
	p := params.(SessionNameParams)
	turns, err := hc.Sessions.LoadSession(hc.SessionID, p.Name)
	if err != nil {
		return Error(err.Error()), nil
	}
	replayTurns(hc, turns)
	return Success("session loaded: "+p.Name, map[string]any{"session_name": p.Name}), nil
}

// replayTurns re-emits the rendering events the client would have seen
// originally for each turn in the rehydrated buffer: the user's prompts as
// display_user_prompt, tool/confirmation observations as tool_log, and
// everything the model said as log_message.
func replayTurns(hc *Context, turns []memory.Turn) {
	if hc.Events == nil {
		return
	}
	for _, t := range turns {
		switch t.Role {
		case memory.RoleUser:
			hc.Events.Emit(hc.SessionID, wire.EventDisplayUserPrompt, map[string]any{"prompt": t.Content})
		case memory.RoleToolObservation:
			if strings.HasPrefix(t.Content, "USER_CONFIRMATION:") {
				hc.Events.Emit(hc.SessionID, wire.EventLogMessage, map[string]any{"type": wire.LogTypeSystemConfirmReplayed, "data": t.Content})
				continue
			}
			hc.Events.Emit(hc.SessionID, wire.EventToolLog, map[string]any{"action": "replayed", "result": t.Content})
		default:
			hc.Events.Emit(hc.SessionID, wire.EventLogMessage, map[string]any{"type": wire.LogTypeInfo, "data": t.Content})
		}
	}
}

func handleSaveSession(_ context.Context, params Params, hc *Context) (*Result, error) {
	p := params.(SessionNameParams)
	if err := hc.Sessions.SaveSession(hc.SessionID, p.Name); err != nil {
		return Error(err.Error()), nil
	}
	return Success("session saved: "+p.Name, map[string]any{"session_name": p.Name}), nil
}

func handleDeleteSession(_ context.Context, params Params, hc *Context) (*Result, error) {
	p := params.(SessionNameParams)
	if err := hc.Sessions.DeleteSession(p.Name); err != nil {
		return Error(err.Error()), nil
	}
	names, err := hc.Sessions.ListSessions()
	if err != nil {
		return Error(err.Error()), nil
	}
	if hc.Events != nil {
		hc.Events.Emit(hc.SessionID, wire.EventSessionListUpdate, map[string]any{"sessions": names})
	}
	return Success("session deleted: "+p.Name, map[string]any{"session_name": p.Name, "sessions": names}), nil
}
