// Package bridge implements the event channel: a persistent, bidirectional
// WebSocket connection per session carrying the inbound and outbound
// events named in internal/wire. Built on gorilla/websocket's own idiom —
// an Upgrader, a per-connection read loop, and a single writer goroutine
// draining a buffered channel — while keeping the rest of the module's
// conventions: zap logging through logging.Get(logging.CategoryBridge).
package bridge

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/loomhq/loom/internal/logging"
	"github.com/loomhq/loom/internal/wire"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	outboundBuffer = 64
)

// connection wraps one client's socket with a single writer goroutine, so
// that every event the reasoning loop emits for a session lands on the
// wire in the order it was produced.
type connection struct {
	sessionID string
	ws        *websocket.Conn

	out    chan wire.Envelope
	closed chan struct{}
	once   sync.Once
}

func newConnection(sessionID string, ws *websocket.Conn) *connection {
	return &connection{
		sessionID: sessionID,
		ws:        ws,
		out:       make(chan wire.Envelope, outboundBuffer),
		closed:    make(chan struct{}),
	}
}

// Emit implements tools.EventEmitter and loop's EventEmitter contract. A
// send on a closed connection is dropped silently — the session is gone,
// there is nobody left to render it for.
func (c *connection) Emit(sessionID, eventType string, payload map[string]any) {
	if sessionID != c.sessionID {
		return
	}
	select {
	case c.out <- wire.Envelope{Event: eventType, Payload: payload}:
	case <-c.closed:
	}
}

// writePump owns the socket for writing. It is the only goroutine that
// ever calls ws.Write*, per gorilla/websocket's single-writer requirement.
func (c *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case env, ok := <-c.out:
			if !ok {
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(env); err != nil {
				logging.Get(logging.CategoryBridge).Warn("write failed", zap.String("session_id", c.sessionID), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// readPump owns the socket for reading and hands each decoded envelope to
// handle. It returns when the client disconnects or a read fails; a
// frame that is not a valid envelope is logged and skipped.
func (c *connection) readPump(handle func(wire.Envelope)) {
	c.ws.SetReadLimit(1 << 20)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var env wire.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			logging.Get(logging.CategoryBridge).Debug("dropped malformed frame", zap.String("session_id", c.sessionID), zap.Error(err))
			continue
		}
		handle(env)
	}
}

func (c *connection) close() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}
