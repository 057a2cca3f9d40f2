// Package logging provides zap-backed categorized logging for the Loom agent
// server. Categories name the subsystem (reasoning loop, tool dispatch,
// vector store, event bridge, ...) and become the logger name on every
// log line.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies the subsystem emitting a log line.
type Category string

const (
	CategoryBoot       Category = "boot"
	CategoryBridge     Category = "bridge"
	CategorySession    Category = "session"
	CategoryLoop       Category = "loop"
	CategoryTools      Category = "tools"
	CategorySandbox    Category = "sandbox"
	CategoryPatch      Category = "patch"
	CategoryParser     Category = "parser"
	CategoryMemory     Category = "memory"
	CategoryVecStore   Category = "vectorstore"
	CategoryEmbedding  Category = "embedding"
	CategoryModelHost  Category = "modelhost"
	CategoryWorker     Category = "worker"
	CategoryAudit      Category = "audit"
	CategoryInterp     Category = "interp"
)

var (
	mu      sync.RWMutex
	base    *zap.Logger
	named   = make(map[Category]*zap.Logger)
	initted bool
)

// Init configures the process-wide root logger. debug selects development
// (console, debug level) encoding; otherwise the root logger uses the
// production JSON encoding. Init is idempotent; later calls replace the
// root logger and clear cached category loggers.
func Init(debug bool) error {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	l, err := cfg.Build()
	if err != nil {
		return err
	}

	mu.Lock()
	base = l
	named = make(map[Category]*zap.Logger)
	initted = true
	mu.Unlock()
	return nil
}

// Get returns the logger scoped to category, initializing a no-op fallback
// logger if Init has not been called (useful in unit tests).
func Get(category Category) *zap.Logger {
	mu.RLock()
	if l, ok := named[category]; ok {
		mu.RUnlock()
		return l
	}
	b := base
	mu.RUnlock()

	if b == nil {
		b = zap.NewNop()
	}

	l := b.Named(string(category))

	mu.Lock()
	named[category] = l
	mu.Unlock()
	return l
}

// Sync flushes the root logger's buffered log entries, if any.
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if base == nil {
		return nil
	}
	return base.Sync()
}

// IsInitialized reports whether Init has run.
func IsInitialized() bool {
	mu.RLock()
	defer mu.RUnlock()
	return initted
}
