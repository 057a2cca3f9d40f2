package modelhost

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/loomhq/loom/internal/errs"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler func(method string, params json.RawMessage) (any, *rpcError)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		paramsJSON, _ := json.Marshal(req.Params)
		result, rpcErr := handler(req.Method, paramsJSON)

		resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
		if rpcErr == nil {
			resultJSON, _ := json.Marshal(result)
			resp.Result = resultJSON
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func proxyFor(t *testing.T, srv *httptest.Server) *Proxy {
	t.Helper()
	addr := strings.TrimPrefix(srv.URL, "http://")
	p := New(addr, "", time.Second)
	p.baseURL = srv.URL + "/rpc"
	return p
}

func TestGetOrCreateSession_Success(t *testing.T) {
	srv := newTestServer(t, func(method string, params json.RawMessage) (any, *rpcError) {
		require.Equal(t, "get_or_create_session", method)
		return map[string]any{"created": true}, nil
	})
	p := proxyFor(t, srv)

	created, err := p.GetOrCreateSession(context.Background(), "demo", nil)
	require.NoError(t, err)
	require.True(t, created)
}

func TestSendMessage_ReturnsText(t *testing.T) {
	srv := newTestServer(t, func(method string, params json.RawMessage) (any, *rpcError) {
		return map[string]any{"text": "hello back"}, nil
	})
	p := proxyFor(t, srv)

	text, err := p.SendMessage(context.Background(), "demo", "hi")
	require.NoError(t, err)
	require.Equal(t, "hello back", text)
}

func TestCall_RPCErrorSurfacesAsUnknown(t *testing.T) {
	srv := newTestServer(t, func(method string, params json.RawMessage) (any, *rpcError) {
		return nil, &rpcError{Code: 42, Message: "boom"}
	})
	p := proxyFor(t, srv)

	_, err := p.SendMessage(context.Background(), "demo", "hi")
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")
}

func TestCall_ServerErrorIsModelHostUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	p := proxyFor(t, srv)

	_, err := p.SendMessage(context.Background(), "demo", "hi")
	require.ErrorIs(t, err, errs.ModelHostUnavailable)
}

func TestCall_ContextTimeoutIsModelHostTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()
	p := proxyFor(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := p.SendMessage(ctx, "demo", "hi")
	require.ErrorIs(t, err, errs.ModelHostTimeout)
}

func TestHasSession(t *testing.T) {
	srv := newTestServer(t, func(method string, params json.RawMessage) (any, *rpcError) {
		return map[string]any{"exists": true}, nil
	})
	p := proxyFor(t, srv)

	exists, err := p.HasSession(context.Background(), "demo")
	require.NoError(t, err)
	require.True(t, exists)
}
