package tools

import (
	"github.com/loomhq/loom/internal/memory"
	"github.com/loomhq/loom/internal/sandbox"
)

// EventEmitter is the minimal side-channel a handler needs to push
// UI-visible events (confirmation prompts, progress notices) without
// importing the bridge package directly. Satisfied by the event bridge.
type EventEmitter interface {
	Emit(sessionID string, eventType string, payload map[string]any)
}

// SessionOps is the subset of the session registry a handler needs to
// satisfy list_sessions/load_session/save_session/delete_session and
// request_confirmation, without importing internal/session directly and
// risking an import cycle (session owns ActiveSession values that may
// eventually need tool metadata).
type SessionOps interface {
	ListSessions() ([]string, error)
	// LoadSession returns the rehydrated Tier 1 buffer in timestamp order
	// so the caller can replay the rendering events the client would have
	// seen originally.
	LoadSession(sessionID, name string) ([]memory.Turn, error)
	SaveSession(sessionID, name string) error
	DeleteSession(name string) error
	AwaitConfirmation(sessionID string, prompt string) (bool, error)
	MarkComplete(sessionID string, summary string)
}

// Context is the dispatch-time context handed to every Handler: the
// sandboxed filesystem root for the active session, the session registry,
// and the UI event side-channel.
type Context struct {
	SessionID string
	Guard     *sandbox.Guard
	Sessions  SessionOps
	Events    EventEmitter

	// AllowedProjectFiles is the server-configured, read-only whitelist
	// backing read_project_file / list_allowed_project_files. Keys are
	// the names the model references; values are absolute paths.
	AllowedProjectFiles map[string]string
}
