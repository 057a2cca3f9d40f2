// Package auditlog implements the log_audit_event inbound event: an
// append-only JSONL sink that accepts every well-formed audit fact without
// ever erroring back to the client. A mutex-guarded file handle fed
// structured events, one JSON object per line.
package auditlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/loomhq/loom/internal/logging"
	"go.uber.org/zap"
)

// Event is a log_audit_event payload.
type Event struct {
	Timestamp    time.Time `json:"ts"`
	EventName    string    `json:"event"`
	Details      string    `json:"details"`
	Source       string    `json:"source"`
	Destination  string    `json:"destination"`
	ControlFlow  string    `json:"control_flow,omitempty"`
}

// Recorder appends Events to a JSONL file, one object per line.
type Recorder struct {
	mu   sync.Mutex
	file *os.File
}

// Open creates (or appends to) the audit log file at dir/audit.jsonl.
func Open(dir string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "audit.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &Recorder{file: f}, nil
}

// Close closes the underlying file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}

// Record appends ev as one JSON line. A marshal or write failure is
// logged, not returned — log_audit_event never errors back to the client.
func (r *Recorder) Record(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		logging.Get(logging.CategoryAudit).Warn("marshal audit event failed", zap.Error(err))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.file.Write(append(data, '\n')); err != nil {
		logging.Get(logging.CategoryAudit).Warn("write audit event failed", zap.Error(err))
	}
}
