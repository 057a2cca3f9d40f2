package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/loomhq/loom/internal/logging"
	"go.uber.org/zap"
)

// Registry holds all registered actions and dispatches commands to their
// handlers.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool. It returns ErrToolAlreadyRegistered for a duplicate
// name and ErrToolNameEmpty/ErrToolHandlerNil for malformed tools.
func (r *Registry) Register(tool *Tool) error {
	if tool.Name == "" {
		return ErrToolNameEmpty
	}
	if tool.Handler == nil {
		return ErrToolHandlerNil
	}
	if tool.Decode == nil {
		tool.Decode = decodeNoParams(tool.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, tool.Name)
	}
	r.tools[tool.Name] = tool
	return nil
}

// MustRegister registers a tool and panics on error. Used for static
// registration at init time.
func (r *Registry) MustRegister(tool *Tool) {
	if err := r.Register(tool); err != nil {
		panic(fmt.Sprintf("tools: failed to register %q: %v", tool.Name, err))
	}
}

// Get returns a tool by name, or nil if not found.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns all registered action names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch looks up cmd.Action, decodes its raw parameters into the
// action's typed Params, and runs it. An unknown action or a parameter
// decode failure both come back as a Result{Status: StatusError} — the
// reasoning loop hands those straight back to the model — never as a Go
// error. A Go error return from Handler means the registry itself hit a
// bug, not that the model's command was bad.
func (r *Registry) Dispatch(ctx context.Context, cmd *Command, hc *Context) *Result {
	log := logging.Get(logging.CategoryTools)

	tool := r.Get(cmd.Action)
	if tool == nil {
		log.Warn("unknown action", zap.String("action", cmd.Action))
		return Error(fmt.Sprintf("unknown action %q", cmd.Action))
	}

	params, err := tool.Decode(cmd.Parameters)
	if err != nil {
		return Error(fmt.Sprintf("%s: %v", cmd.Action, err))
	}

	start := time.Now()
	result, err := tool.Handler(ctx, params, hc)
	if err != nil {
		log.Error("handler returned unexpected error", zap.String("action", cmd.Action), zap.Error(err))
		return Error(fmt.Sprintf("%s: %v", cmd.Action, err))
	}
	log.Debug("action dispatched",
		zap.String("action", cmd.Action),
		zap.Duration("duration", time.Since(start)),
		zap.Bool("error", result.IsError()))
	return result
}

// Default is the process-wide registry populated by each handler file's
// init().
var Default = NewRegistry()
