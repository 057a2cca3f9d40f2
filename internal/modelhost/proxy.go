// Package modelhost implements the Model Host Proxy: a JSON-RPC-over-HTTP
// client to "Haven", the out-of-process holder of model credentials and
// per-session chat histories. A single request/response JSON-RPC envelope
// and a single POST-to-baseURL call shape cover every RPC the proxy needs.
package modelhost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/loomhq/loom/internal/errs"
)

// Turn is the {role, content} shape get_or_create_session seeds history
// with; it mirrors memory.Turn without importing that package, since the
// proxy has no other reason to depend on the memory manager.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Proxy is a session-scoped client to the model host: every call is
// serialized per session name since Haven's internal history map is keyed
// by session_name and concurrent appends would race.
type Proxy struct {
	baseURL string
	authKey string
	timeout time.Duration
	client  *http.Client

	mu        sync.Mutex
	sessionMu map[string]*sync.Mutex
}

// New builds a Proxy pointed at address (host:port) with the given
// per-call timeout. A timeout <= 0 defaults to 120s.
func New(address, authKey string, timeout time.Duration) *Proxy {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Proxy{
		baseURL:   "http://" + address + "/rpc",
		authKey:   authKey,
		timeout:   timeout,
		client:    &http.Client{Timeout: timeout},
		sessionMu: make(map[string]*sync.Mutex),
	}
}

func (p *Proxy) lockFor(sessionName string) func() {
	p.mu.Lock()
	m, ok := p.sessionMu[sessionName]
	if !ok {
		m = &sync.Mutex{}
		p.sessionMu[sessionName] = m
	}
	p.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// GetOrCreateSession registers sessionName with the host, seeding it with
// history if it doesn't already exist.
func (p *Proxy) GetOrCreateSession(ctx context.Context, sessionName string, history []Turn) (bool, error) {
	defer p.lockFor(sessionName)()

	var result struct {
		Created bool `json:"created"`
	}
	if err := p.call(ctx, "get_or_create_session", map[string]any{
		"name": sessionName, "history": history,
	}, &result); err != nil {
		return false, err
	}
	return result.Created, nil
}

// SendMessage sends prompt as sessionName's next turn and returns the
// model's reply text. Haven appends both sides to its own host-side
// history.
func (p *Proxy) SendMessage(ctx context.Context, sessionName, prompt string) (string, error) {
	defer p.lockFor(sessionName)()

	var result struct {
		Text string `json:"text"`
	}
	if err := p.call(ctx, "send_message", map[string]any{
		"name": sessionName, "prompt": prompt,
	}, &result); err != nil {
		return "", err
	}
	return result.Text, nil
}

// ListSessions returns every session name Haven currently holds.
func (p *Proxy) ListSessions(ctx context.Context) ([]string, error) {
	var result struct {
		Sessions []string `json:"sessions"`
	}
	if err := p.call(ctx, "list_sessions", nil, &result); err != nil {
		return nil, err
	}
	return result.Sessions, nil
}

// DeleteSession removes sessionName from the host.
func (p *Proxy) DeleteSession(ctx context.Context, sessionName string) error {
	defer p.lockFor(sessionName)()

	var result struct {
		Status string `json:"status"`
	}
	return p.call(ctx, "delete_session", map[string]any{"name": sessionName}, &result)
}

// HasSession reports whether Haven currently holds sessionName.
func (p *Proxy) HasSession(ctx context.Context, sessionName string) (bool, error) {
	var result struct {
		Exists bool `json:"exists"`
	}
	if err := p.call(ctx, "has_session", map[string]any{"name": sessionName}, &result); err != nil {
		return false, err
	}
	return result.Exists, nil
}

// TraceEvent is one entry of Haven's internal call trace.
type TraceEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	Method    string         `json:"method"`
	Detail    map[string]any `json:"detail"`
}

// GetTraceLog returns Haven's trace log, used by the inspector UI.
func (p *Proxy) GetTraceLog(ctx context.Context) ([]TraceEvent, error) {
	var result struct {
		Events []TraceEvent `json:"events"`
	}
	if err := p.call(ctx, "get_trace_log", nil, &result); err != nil {
		return nil, err
	}
	return result.Events, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// call performs one JSON-RPC request, translating transport and host-side
// failures into the ModelHostUnavailable / ModelHostTimeout error kinds.
func (p *Proxy) call(ctx context.Context, method string, params any, out any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return errs.Wrapf(errs.Unknown, "modelhost: marshal request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(body))
	if err != nil {
		return errs.Wrapf(errs.Unknown, "modelhost: build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.authKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.authKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		var netErr net.Error
		if ctx.Err() != nil || (errors.As(err, &netErr) && netErr.Timeout()) {
			return errs.Wrapf(errs.ModelHostTimeout, "modelhost: %s timed out: %v", method, err)
		}
		return errs.Wrapf(errs.ModelHostUnavailable, "modelhost: %s: %v", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return errs.Wrapf(errs.ModelHostUnavailable, "modelhost: %s: server returned %d", method, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		return errs.Wrapf(errs.Unknown, "modelhost: %s: status %d: %s", method, resp.StatusCode, string(b))
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return errs.Wrapf(errs.Unknown, "modelhost: %s: decode response: %v", method, err)
	}
	if rpcResp.Error != nil {
		return errs.Wrapf(errs.Unknown, "modelhost: %s: rpc error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if out == nil || len(rpcResp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return errs.Wrapf(errs.Unknown, "modelhost: %s: unmarshal result: %v", method, err)
	}
	return nil
}
