// Package sandbox resolves user-supplied paths against a fixed root
// directory and rejects any path that would escape it: resolve to an
// absolute, symlink-free path, then check it against the root by prefix.
package sandbox

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/loomhq/loom/internal/errs"
	"github.com/loomhq/loom/internal/logging"
	"go.uber.org/zap"
)

// Guard resolves paths against a single canonicalized base directory.
type Guard struct {
	base string // canonical, symlink-resolved absolute path
}

// NewGuard resolves baseDirName relative to the process working directory,
// creating it if absent, and canonicalizes it (including symlinks) so every
// later containment check compares against a stable root.
func NewGuard(baseDirName string) (*Guard, error) {
	if strings.TrimSpace(baseDirName) == "" {
		return nil, errs.Wrap(errs.InvalidArgument, "sandbox: base directory name is empty")
	}

	abs, err := filepath.Abs(baseDirName)
	if err != nil {
		return nil, errs.Wrapf(errs.InvalidArgument, "sandbox: resolve base dir: %v", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, errs.Wrapf(errs.Unknown, "sandbox: create base dir: %v", err)
	}

	canonical, err := canonicalize(abs)
	if err != nil {
		return nil, errs.Wrapf(errs.Unknown, "sandbox: resolve symlinks for base dir: %v", err)
	}

	return &Guard{base: canonical}, nil
}

// Base returns the canonical sandbox root.
func (g *Guard) Base() string { return g.base }

// SafePath joins the sandbox root with userPath, canonicalizes the result,
// and fails with PathEscape if it does not live under the base. Symlinks
// are resolved before the containment check so a symlink planted inside the
// sandbox cannot be used to point outside it.
func (g *Guard) SafePath(userPath string) (string, error) {
	if strings.TrimSpace(userPath) == "" {
		return "", errs.Wrap(errs.InvalidArgument, "sandbox: path is empty")
	}

	if filepath.IsAbs(userPath) {
		logging.Get(logging.CategorySandbox).Warn("path escape attempt",
			zap.String("user_path", userPath))
		return "", errs.Wrapf(errs.PathEscape, "sandbox: %q escapes %q", userPath, g.base)
	}

	joined := filepath.Join(g.base, userPath)

	resolved, err := resolveExisting(joined)
	if err != nil {
		return "", errs.Wrapf(errs.Unknown, "sandbox: resolve path: %v", err)
	}

	if !withinBase(g.base, resolved) {
		logging.Get(logging.CategorySandbox).Warn("path escape attempt",
			zap.String("user_path", userPath), zap.String("resolved", resolved))
		return "", errs.Wrapf(errs.PathEscape, "sandbox: %q escapes %q", userPath, g.base)
	}

	return resolved, nil
}

// withinBase reports whether candidate is base itself or a descendant of it.
func withinBase(base, candidate string) bool {
	if candidate == base {
		return true
	}
	rel, err := filepath.Rel(base, candidate)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// resolveExisting canonicalizes path, resolving symlinks on every existing
// ancestor. For a path that does not yet exist (e.g. a file about to be
// created), it walks up to the nearest existing ancestor, resolves that,
// and rejoins the remaining non-existent suffix.
func resolveExisting(path string) (string, error) {
	if _, err := os.Lstat(path); err == nil {
		return canonicalize(path)
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if dir == path {
		return path, nil
	}

	resolvedDir, err := resolveExisting(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedDir, base), nil
}

func canonicalize(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(resolved), nil
}
