package tools

import (
	"context"
	"testing"

	"github.com/loomhq/loom/internal/memory"
	"github.com/loomhq/loom/internal/sandbox"
	"github.com/stretchr/testify/require"
)

type stubSessionOps struct{}

func (s *stubSessionOps) ListSessions() ([]string, error) { return []string{"demo"}, nil }
func (s *stubSessionOps) LoadSession(sessionID, name string) ([]memory.Turn, error) {
	return nil, nil
}
func (s *stubSessionOps) SaveSession(sessionID, name string) error { return nil }
func (s *stubSessionOps) DeleteSession(name string) error          { return nil }
func (s *stubSessionOps) AwaitConfirmation(sessionID, prompt string) (bool, error) {
	return true, nil
}
func (s *stubSessionOps) MarkComplete(sessionID, summary string) {}

func newTestContext(t *testing.T) *Context {
	t.Helper()
	guard, err := sandbox.NewGuard(t.TempDir())
	require.NoError(t, err)
	return &Context{
		SessionID: "session-1",
		Guard:     guard,
		Sessions:  &stubSessionOps{},
	}
}

func TestRegistry_DispatchUnknownAction(t *testing.T) {
	hc := newTestContext(t)
	res := Default.Dispatch(context.Background(), &Command{Action: "does_not_exist"}, hc)
	require.True(t, res.IsError())
}

func TestRegistry_DispatchMissingRequiredParam(t *testing.T) {
	hc := newTestContext(t)
	res := Default.Dispatch(context.Background(), &Command{Action: "create_file", Parameters: map[string]any{}}, hc)
	require.True(t, res.IsError())
	require.Contains(t, res.Message, "filename")
}

func TestRegistry_CreateThenReadFile(t *testing.T) {
	hc := newTestContext(t)

	createRes := Default.Dispatch(context.Background(), &Command{
		Action: "create_file",
		Parameters: map[string]any{
			"filename": "notes/todo.txt",
			"content":  "buy milk",
		},
	}, hc)
	require.False(t, createRes.IsError())

	readRes := Default.Dispatch(context.Background(), &Command{
		Action:     "read_file",
		Parameters: map[string]any{"filename": "notes/todo.txt"},
	}, hc)
	require.False(t, readRes.IsError())
	require.Equal(t, "buy milk", readRes.Content)
}

func TestRegistry_ListAllowedProjectFiles(t *testing.T) {
	hc := newTestContext(t)
	hc.AllowedProjectFiles = map[string]string{"README.md": "/srv/README.md"}

	res := Default.Dispatch(context.Background(), &Command{Action: "list_allowed_project_files"}, hc)
	require.False(t, res.IsError())
	require.Equal(t, []string{"README.md"}, res.Content)
}

func TestRegistry_Names(t *testing.T) {
	names := Default.Names()
	require.Contains(t, names, "create_file")
	require.Contains(t, names, "apply_patch")
	require.Contains(t, names, "delete_session")
}
