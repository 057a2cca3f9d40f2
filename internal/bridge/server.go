package bridge

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/loomhq/loom/internal/auditlog"
	"github.com/loomhq/loom/internal/loop"
	"github.com/loomhq/loom/internal/logging"
	"github.com/loomhq/loom/internal/sandbox"
	"github.com/loomhq/loom/internal/session"
	"github.com/loomhq/loom/internal/tools"
	"github.com/loomhq/loom/internal/vectorstore"
	"github.com/loomhq/loom/internal/worker"
	"go.uber.org/zap"
)

// Server upgrades incoming HTTP connections to WebSocket and runs the
// per-connection read/write/dispatch loop. One Server serves every
// session; per-session state lives in the session.Registry it wraps. Every
// connection shares the single sandbox Guard built at startup — the
// sandbox is the server's one `./sandbox/` tree, not a directory scoped to
// a disposable per-connection UUID, so files a task creates stay reachable
// across disconnect, save_session, and load_session.
type Server struct {
	Registry            *session.Registry
	Tools               *tools.Registry
	Pool                *worker.Pool
	Audit               *auditlog.Recorder
	Store               *vectorstore.Store
	Guard               *sandbox.Guard
	AllowedProjectFiles map[string]string

	upgrader websocket.Upgrader

	loopCfgMu sync.RWMutex
	loopCfg   loop.Config
}

// New builds a Server and resolves its single sandbox Guard under
// sandboxRoot. Origin checking is left permissive, matching a local-only
// agent server with no browser-facing deployment target.
func New(registry *session.Registry, toolRegistry *tools.Registry, pool *worker.Pool, audit *auditlog.Recorder, store *vectorstore.Store, loopCfg loop.Config, sandboxRoot string, allowedProjectFiles map[string]string) (*Server, error) {
	guard, err := sandbox.NewGuard(sandboxRoot)
	if err != nil {
		return nil, fmt.Errorf("bridge: build sandbox guard: %w", err)
	}

	return &Server{
		Registry:            registry,
		Tools:               toolRegistry,
		Pool:                pool,
		Audit:               audit,
		Store:               store,
		Guard:               guard,
		loopCfg:             loopCfg,
		AllowedProjectFiles: allowedProjectFiles,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}, nil
}

// LoopConfig returns the iteration caps currently in effect.
func (s *Server) LoopConfig() loop.Config {
	s.loopCfgMu.RLock()
	defer s.loopCfgMu.RUnlock()
	return s.loopCfg
}

// SetLoopConfig updates the iteration caps applied to loops started after
// this call returns, letting a config file reload take effect without a
// restart.
func (s *Server) SetLoopConfig(cfg loop.Config) {
	s.loopCfgMu.Lock()
	s.loopCfg = cfg
	s.loopCfgMu.Unlock()
}

// HandleWS is the http.HandlerFunc mounted at the server's WebSocket
// endpoint. Each accepted connection gets its own session, created fresh
// on connect.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	log := logging.Get(logging.CategoryBridge)

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("upgrade failed", zap.Error(err))
		return
	}

	sessionID := uuid.NewString()
	ctx := r.Context()

	active, err := s.Registry.Connect(ctx, sessionID)
	if err != nil {
		log.Error("failed to open session", zap.String("session_id", sessionID), zap.Error(err))
		_ = ws.Close()
		return
	}
	defer s.Registry.Disconnect(sessionID)

	conn := newConnection(sessionID, ws)
	defer conn.close()
	go conn.writePump()

	hc := &tools.Context{
		SessionID:           sessionID,
		Guard:               s.Guard,
		Sessions:            s.Registry,
		Events:              conn,
		AllowedProjectFiles: s.AllowedProjectFiles,
	}

	log.Info("session opened", zap.String("session_id", sessionID))
	d := &dispatcher{server: s, active: active, conn: conn, hc: hc}
	conn.readPump(d.handle)
	log.Info("session closed", zap.String("session_id", sessionID))
}
