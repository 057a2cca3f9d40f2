// Package session implements Loom's session layer: a Registry that
// exclusively owns ActiveSession values as fields of an explicit struct
// rather than package-level globals, plus the ConfirmationSlot rendezvous
// primitive.
package session

import (
	"context"
	"sync"

	"github.com/loomhq/loom/internal/embedding"
	"github.com/loomhq/loom/internal/errs"
	"github.com/loomhq/loom/internal/logging"
	"github.com/loomhq/loom/internal/memory"
	"github.com/loomhq/loom/internal/modelhost"
	"github.com/loomhq/loom/internal/vectorstore"
	"go.uber.org/zap"
)

// Registry owns every connected session. It is a field of the server, not
// a package-level global.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*ActiveSession

	store            *vectorstore.Store
	engine           embedding.Engine
	proxyAddr        string
	proxyAuthKey     string
	segmentThreshold int
}

// Config carries the dependencies every session's Memory Manager and
// Model Host Proxy need.
type Config struct {
	Store            *vectorstore.Store
	Engine           embedding.Engine
	HavenAddress     string
	HavenAuthKey     string
	SegmentThreshold int
}

// NewRegistry builds an empty Registry bound to cfg's shared dependencies.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		sessions:         make(map[string]*ActiveSession),
		store:            cfg.Store,
		engine:           cfg.Engine,
		proxyAddr:        cfg.HavenAddress,
		proxyAuthKey:     cfg.HavenAuthKey,
		segmentThreshold: cfg.SegmentThreshold,
	}
}

// Connect creates a fresh ActiveSession for sessionID. Its Memory Manager
// starts out keyed by sessionID itself — an ephemeral, per-connection
// collection — until save_session gives it a durable, human-chosen name.
func (r *Registry) Connect(ctx context.Context, sessionID string) (*ActiveSession, error) {
	mem, err := memory.New(ctx, sessionID, r.segmentThreshold, r.store, r.engine)
	if err != nil {
		return nil, err
	}
	proxy := modelhost.New(r.proxyAddr, r.proxyAuthKey, 0)

	active := newActiveSession(sessionID, mem, proxy)

	r.mu.Lock()
	r.sessions[sessionID] = active
	r.mu.Unlock()

	logging.Get(logging.CategorySession).Info("session connected", zap.String("session_id", sessionID))
	return active, nil
}

// Disconnect removes sessionID from the registry and signals any
// outstanding confirmation with "no" so the loop goroutine doesn't block
// forever on an answer that will never arrive.
func (r *Registry) Disconnect(sessionID string) {
	r.mu.Lock()
	active, ok := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	if !ok {
		return
	}
	active.Confirmation.Cancel()
	logging.Get(logging.CategorySession).Info("session disconnected", zap.String("session_id", sessionID))
}

// Get returns the active session for sessionID, or nil.
func (r *Registry) Get(sessionID string) *ActiveSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[sessionID]
}

// ListSessions implements tools.SessionOps: the union of named model-host
// sessions and on-disk collections under the session namespace.
func (r *Registry) ListSessions() ([]string, error) {
	seen := make(map[string]bool)
	var names []string

	collections, err := r.store.ListCollections()
	if err != nil {
		return nil, err
	}
	for _, c := range collections {
		base := stripCollectionSuffix(c)
		if base != "" && !seen[base] {
			seen[base] = true
			names = append(names, base)
		}
	}

	hostSessions, err := r.proxy().ListSessions(context.Background())
	if err != nil {
		return names, err // partial result plus error: the caller can still report what on-disk state showed
	}
	for _, n := range hostSessions {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	return names, nil
}

func stripCollectionSuffix(sanitized string) string {
	for _, suffix := range []string{"turns", "code"} {
		if len(sanitized) > len(suffix) && sanitized[len(sanitized)-len(suffix):] == suffix {
			return sanitized[:len(sanitized)-len(suffix)]
		}
	}
	return ""
}

// proxy returns a scratch Model Host Proxy for registry-wide calls that
// aren't scoped to one ActiveSession.
func (r *Registry) proxy() *modelhost.Proxy {
	return modelhost.New(r.proxyAddr, r.proxyAuthKey, 0)
}

// LoadSession rehydrates sessionID's Memory Manager and model-host history
// from the named collection. It prefers the persisted records and
// overwrites host-side history rather than trusting whatever the model
// host already has under that name.
func (r *Registry) LoadSession(sessionID, name string) ([]memory.Turn, error) {
	active := r.Get(sessionID)
	if active == nil {
		return nil, errs.Wrapf(errs.NotFound, "session: no active session %s", sessionID)
	}

	ctx := context.Background()
	mem, err := memory.New(ctx, name, r.segmentThreshold, r.store, r.engine)
	if err != nil {
		return nil, err
	}

	buffer := mem.GetConversationalBuffer()
	var history []modelhost.Turn
	for _, t := range buffer {
		history = append(history, modelhost.Turn{Role: t.Role, Content: t.Content})
	}
	if _, err := active.ModelProxy.GetOrCreateSession(ctx, name, history); err != nil {
		return nil, err
	}

	active.setMemory(mem)
	active.setSessionName(name)
	return buffer, nil
}

// SaveSession copies sessionID's active records into a collection under
// name and registers name with the model host. name is checked against
// every other existing session name first, since two names that differ
// before sanitization but collapse to the same collection identifier
// would otherwise silently overwrite each other's records.
func (r *Registry) SaveSession(sessionID, name string) error {
	active := r.Get(sessionID)
	if active == nil {
		return errs.Wrapf(errs.NotFound, "session: no active session %s", sessionID)
	}

	if err := r.checkNameCollision(name); err != nil {
		return err
	}

	ctx := context.Background()
	mem := active.Memory()

	target, err := memory.New(ctx, name, r.segmentThreshold, r.store, r.engine)
	if err != nil {
		return err
	}
	for _, t := range mem.GetConversationalBuffer() {
		if err := target.AddTurn(ctx, t.Role, t.Content, ""); err != nil {
			return err
		}
	}

	var history []modelhost.Turn
	for _, t := range mem.GetConversationalBuffer() {
		history = append(history, modelhost.Turn{Role: t.Role, Content: t.Content})
	}
	if _, err := active.ModelProxy.GetOrCreateSession(ctx, name, history); err != nil {
		return err
	}

	active.setMemory(target)
	active.setSessionName(name)
	return nil
}

// checkNameCollision returns SessionConflict if some other existing
// session name sanitizes to the same collection identifier as name. The
// on-disk list is used even if the model host's half of ListSessions
// failed — a host outage shouldn't block a collision check that only
// needs the vector store's collection names.
func (r *Registry) checkNameCollision(name string) error {
	existing, _ := r.ListSessions()
	sanitized := vectorstore.SanitizeCollectionName(name)
	for _, other := range existing {
		if other == name {
			continue
		}
		if vectorstore.SanitizeCollectionName(other) == sanitized {
			return errs.Wrapf(errs.SessionConflict, "session: name %q collides with existing session %q after sanitization", name, other)
		}
	}
	return nil
}

// DeleteSession drops a named session's collections and model-host
// session entirely.
func (r *Registry) DeleteSession(name string) error {
	ctx := context.Background()
	mem, err := memory.New(ctx, name, r.segmentThreshold, r.store, r.engine)
	if err != nil {
		return err
	}
	if err := mem.DeleteMemoryCollection(); err != nil {
		return err
	}
	if err := r.proxy().DeleteSession(ctx, name); err != nil {
		return err
	}
	return nil
}

// AwaitConfirmation arms sessionID's ConfirmationSlot and blocks on it,
// implementing tools.SessionOps for request_confirmation.
func (r *Registry) AwaitConfirmation(sessionID, prompt string) (bool, error) {
	active := r.Get(sessionID)
	if active == nil {
		return false, errs.Wrapf(errs.NotFound, "session: no active session %s", sessionID)
	}
	if err := active.Confirmation.Arm(); err != nil {
		return false, err
	}
	return active.Confirmation.Await(context.Background())
}

// MarkComplete records the final answer for sessionID's current task.
func (r *Registry) MarkComplete(sessionID, summary string) {
	if active := r.Get(sessionID); active != nil {
		active.MarkComplete(summary)
	}
}
