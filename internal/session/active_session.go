package session

import (
	"sync"

	"github.com/loomhq/loom/internal/memory"
	"github.com/loomhq/loom/internal/modelhost"
)

// ActiveSession bundles per-connection state. The registry owns these
// values exclusively; tool handlers and the reasoning loop receive them by
// borrow (a pointer handed across one call), never a clone.
type ActiveSession struct {
	SessionID   string
	ModelProxy  *modelhost.Proxy
	Confirmation *ConfirmationSlot

	mu          sync.Mutex
	sessionName string
	memory      *memory.Manager
	completed   bool
	finalAnswer string
	taskRunning bool
}

func newActiveSession(sessionID string, mem *memory.Manager, proxy *modelhost.Proxy) *ActiveSession {
	return &ActiveSession{
		SessionID:    sessionID,
		sessionName:  defaultSessionName,
		memory:       mem,
		ModelProxy:   proxy,
		Confirmation: NewConfirmationSlot(),
	}
}

const defaultSessionName = "[New Session]"

// Memory returns the session's Memory Manager.
func (a *ActiveSession) Memory() *memory.Manager {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.memory
}

// SessionName returns the human-readable label, defaulting to "[New
// Session]" until a save_session names it.
func (a *ActiveSession) SessionName() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionName
}

func (a *ActiveSession) setSessionName(name string) {
	a.mu.Lock()
	a.sessionName = name
	a.mu.Unlock()
}

func (a *ActiveSession) setMemory(m *memory.Manager) {
	a.mu.Lock()
	a.memory = m
	a.mu.Unlock()
}

// MarkComplete records the loop's final answer. Reasoning loop state
// lives here rather than in the loop package so a disconnect can inspect
// completion without racing the loop goroutine.
func (a *ActiveSession) MarkComplete(answer string) {
	a.mu.Lock()
	a.completed = true
	a.finalAnswer = answer
	a.mu.Unlock()
}

// Completed reports whether task_complete has fired for this session's
// current task.
func (a *ActiveSession) Completed() (bool, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.completed, a.finalAnswer
}

// ResetTask clears completion state ahead of a new user prompt.
func (a *ActiveSession) ResetTask() {
	a.mu.Lock()
	a.completed = false
	a.finalAnswer = ""
	a.mu.Unlock()
}

// TryBeginTask claims the session's single reasoning-loop slot. It reports
// false if a loop is already in flight, which the bridge turns into a
// "busy" notice rather than starting a second concurrent loop over the
// same Memory Manager.
func (a *ActiveSession) TryBeginTask() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.taskRunning {
		return false
	}
	a.taskRunning = true
	a.completed = false
	a.finalAnswer = ""
	return true
}

// EndTask releases the reasoning-loop slot claimed by TryBeginTask.
func (a *ActiveSession) EndTask() {
	a.mu.Lock()
	a.taskRunning = false
	a.mu.Unlock()
}
