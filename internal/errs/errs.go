// Package errs defines the error kinds shared across Loom's subsystems, as
// sentinel values so callers can use errors.Is.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies a class of error for propagation-policy decisions in the
// reasoning loop (terminate vs. observe-and-continue).
type Kind error

var (
	// InvalidArgument marks a malformed or missing caller-supplied value.
	InvalidArgument Kind = errors.New("invalid argument")

	// PathEscape marks a sandbox containment violation.
	PathEscape Kind = errors.New("path escapes sandbox")

	// NotFound marks a missing file, session, or collection.
	NotFound Kind = errors.New("not found")

	// PatchNotApplicable marks a unified diff that cannot be applied cleanly.
	PatchNotApplicable Kind = errors.New("patch not applicable")

	// ParseError marks a malformed model response.
	ParseError Kind = errors.New("parse error")

	// ModelHostUnavailable marks a Haven connection failure (terminates the loop).
	ModelHostUnavailable Kind = errors.New("model host unavailable")

	// ModelHostTimeout marks an expired model-host RPC deadline.
	ModelHostTimeout Kind = errors.New("model host timeout")

	// StoreError marks a vector-store or session-store failure.
	StoreError Kind = errors.New("store error")

	// SessionConflict marks a naming collision or concurrent-loop rejection.
	SessionConflict Kind = errors.New("session conflict")

	// Unknown is the catch-all for anything not otherwise classified.
	Unknown Kind = errors.New("unknown error")
)

// Wrap attaches kind as the error chain root while preserving msg as the
// visible text, so errors.Is(err, errs.PathEscape) keeps working after
// wrapping with additional context.
func Wrap(kind Kind, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// Wrapf is Wrap with fmt-style formatting.
func Wrapf(kind Kind, format string, args ...any) error {
	return &kindError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

type kindError struct {
	kind Kind
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }
