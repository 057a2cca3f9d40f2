package auditlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecord_AppendsOneJSONLinePerEvent(t *testing.T) {
	dir := t.TempDir()
	r, err := Open(dir)
	require.NoError(t, err)

	r.Record(Event{EventName: "tool_invoked", Details: "create_file", Source: "model", Destination: "sandbox"})
	r.Record(Event{EventName: "confirmation_requested", Details: "delete old.txt", Source: "model", Destination: "user"})
	require.NoError(t, r.Close())

	f, err := os.Open(filepath.Join(dir, "audit.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 2)

	var ev Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &ev))
	require.Equal(t, "tool_invoked", ev.EventName)
	require.False(t, ev.Timestamp.IsZero())
}

func TestOpen_AppendsAcrossInstances(t *testing.T) {
	dir := t.TempDir()

	r1, err := Open(dir)
	require.NoError(t, err)
	r1.Record(Event{EventName: "first"})
	require.NoError(t, r1.Close())

	r2, err := Open(dir)
	require.NoError(t, err)
	r2.Record(Event{EventName: "second"})
	require.NoError(t, r2.Close())

	data, err := os.ReadFile(filepath.Join(dir, "audit.jsonl"))
	require.NoError(t, err)
	require.Contains(t, string(data), "first")
	require.Contains(t, string(data), "second")
}
