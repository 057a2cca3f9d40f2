package tools

import "errors"

// Registry-level sentinel errors.
var (
	ErrToolNotFound          = errors.New("tool not found")
	ErrToolNameEmpty         = errors.New("tool name cannot be empty")
	ErrToolHandlerNil        = errors.New("tool handler cannot be nil")
	ErrToolAlreadyRegistered = errors.New("tool already registered")
)
