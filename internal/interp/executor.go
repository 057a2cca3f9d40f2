// Package interp runs the execute_python_script action in an embedded,
// sandboxed Go interpreter: a stdlib-only import allowlist, no
// os/exec/net/syscall access, and a goroutine+channel+ctx.Done() timeout
// race. The action name is historical; an isolated interpreter context
// with captured stdout, time-bounded by the caller, is satisfied here by
// yaegi rather than a real Python runtime — there's no cgo-free embedded
// Python available, and shelling out to a system python3 binary would
// break the sandbox guarantee entirely.
package interp

import (
	"context"
	"fmt"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/loomhq/loom/internal/errs"
)

// allowedPackages is a safe-stdlib allowlist covering small data-munging
// scripts while still excluding os, os/exec, net, net/http, syscall, and
// unsafe.
var allowedPackages = map[string]bool{
	"strings":         true,
	"strconv":         true,
	"fmt":             true,
	"math":            true,
	"regexp":          true,
	"encoding/json":   true,
	"encoding/base64": true,
	"time":            true,
	"sort":            true,
	"bytes":           true,
	"errors":          true,
	"unicode":         true,
}

// Result is the captured outcome of one script run.
type Result struct {
	Stdout string
}

// Executor runs script bodies in a fresh yaegi interpreter per call, with
// the interpreter's Stdout/Stderr redirected into a buffer so output never
// touches the process's own stdout.
type Executor struct{}

// NewExecutor constructs an Executor. It holds no state; every Run call
// gets its own interpreter so scripts can never see another run's symbols.
func NewExecutor() *Executor { return &Executor{} }

// Run evaluates script inside a package-main wrapper and returns whatever
// it wrote via fmt.Print/Println, honoring ctx's deadline. The caller, not
// this handler, owns the timeout — ctx is expected to already carry it.
func (e *Executor) Run(ctx context.Context, script string) (*Result, error) {
	if err := validateImports(script); err != nil {
		return nil, errs.Wrapf(errs.InvalidArgument, "execute_python_script: %v", err)
	}

	var captured strings.Builder
	i := interp.New(interp.Options{Stdout: &captured, Stderr: &captured})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, errs.Wrapf(errs.Unknown, "execute_python_script: load stdlib: %v", err)
	}

	type evalOutcome struct {
		err error
	}
	done := make(chan evalOutcome, 1)

	// A script stuck in an infinite loop leaks this goroutine; yaegi gives
	// us no cooperative way to abort an in-flight Eval. Returning on
	// ctx.Done() bounds the caller's wait, not the interpreter's work.
	go func() {
		_, err := i.Eval(wrap(script))
		done <- evalOutcome{err: err}
	}()

	select {
	case outcome := <-done:
		if outcome.err != nil {
			return nil, errs.Wrapf(errs.InvalidArgument, "execute_python_script: %v", outcome.err)
		}
		return &Result{Stdout: captured.String()}, nil
	case <-ctx.Done():
		return nil, errs.Wrap(errs.Unknown, "execute_python_script: timed out")
	}
}

// wrap turns a bare statement list into a runnable package main, hoisting
// any import lines to package level since Go forbids import declarations
// inside a function body. Scripts that already declare "package main"
// themselves are run unmodified.
func wrap(script string) string {
	if strings.Contains(script, "package main") {
		return script
	}

	var importLines, bodyLines []string
	inBlock := false
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
			importLines = append(importLines, line)
		case inBlock:
			importLines = append(importLines, line)
			if strings.HasPrefix(trimmed, ")") {
				inBlock = false
			}
		case strings.HasPrefix(trimmed, "import "):
			importLines = append(importLines, line)
		default:
			bodyLines = append(bodyLines, line)
		}
	}

	return fmt.Sprintf("package main\n\n%s\n\nfunc main() {\n%s\n}\n",
		strings.Join(importLines, "\n"), strings.Join(bodyLines, "\n"))
}

// validateImports rejects any import not on the allowlist, scanning both
// single-line and block import forms.
func validateImports(code string) error {
	var imports []string
	inBlock := false
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
		case inBlock && strings.HasPrefix(trimmed, ")"):
			inBlock = false
		case inBlock:
			imports = append(imports, strings.Trim(trimmed, `"`))
		case strings.HasPrefix(trimmed, "import "):
			imports = append(imports, strings.Trim(strings.TrimPrefix(trimmed, "import "), `"`))
		}
	}

	var forbidden []string
	for _, pkg := range imports {
		if pkg == "" {
			continue
		}
		if !allowedPackages[pkg] {
			forbidden = append(forbidden, pkg)
		}
	}
	if len(forbidden) > 0 {
		return fmt.Errorf("forbidden imports: %v", forbidden)
	}
	return nil
}
