// Package patch implements the unified-diff patch applier: normalize,
// repair hunk line numbers against the real file, stage into a scratch
// copy, and only then commit atomically.
//
// Line-number repair and fuzzy hunk location reuse
// github.com/sergi/go-diff/diffmatchpatch — its Bitap-based PatchApply
// already tolerates a hunk header whose starting line is wrong as long as
// the hunk body's context still matches nearby, so recomputing the source
// start line comes for free instead of needing its own scanner.
package patch

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/loomhq/loom/internal/errs"
	"github.com/loomhq/loom/internal/logging"
	"github.com/loomhq/loom/internal/sandbox"
	"github.com/sergi/go-diff/diffmatchpatch"
	"go.uber.org/zap"
)

// Result describes the outcome of a successful patch application.
type Result struct {
	TargetPath string
	NewContent string
}

// Applier applies unified-diff text to files within a sandbox.Guard.
type Applier struct {
	guard *sandbox.Guard
	dmp   *diffmatchpatch.DiffMatchPatch
}

// NewApplier constructs an Applier bound to a sandbox root.
func NewApplier(guard *sandbox.Guard) *Applier {
	dmp := diffmatchpatch.New()
	dmp.PatchMargin = 4
	dmp.MatchThreshold = 0.4
	dmp.MatchDistance = 2000
	return &Applier{guard: guard, dmp: dmp}
}

// Apply runs the full normalize -> repair -> stage -> commit pipeline
// against diffContent and returns the path that was written.
func (a *Applier) Apply(diffContent string) (*Result, error) {
	norm := normalize(diffContent)

	targetRel, err := targetPathFromHeaders(norm)
	if err != nil {
		return nil, err
	}

	targetAbs, err := a.guard.SafePath(targetRel)
	if err != nil {
		return nil, err
	}

	original, err := os.ReadFile(targetAbs)
	if err != nil {
		if os.IsNotExist(err) {
			original = []byte{}
		} else {
			return nil, errs.Wrapf(errs.Unknown, "patch: read target: %v", err)
		}
	}

	patches, err := a.parsePatches(norm)
	if err != nil {
		return nil, err
	}

	newContent, appliedOK := a.dmp.PatchApply(patches, string(original))
	for i, ok := range appliedOK {
		if !ok {
			return nil, errs.Wrapf(errs.PatchNotApplicable, "patch: hunk %d did not apply cleanly to %s", i+1, targetRel)
		}
	}

	if err := a.commit(targetAbs, newContent); err != nil {
		return nil, err
	}

	logging.Get(logging.CategoryPatch).Info("patch applied",
		zap.String("target", targetRel), zap.Int("hunks", len(patches)))

	return &Result{TargetPath: targetAbs, NewContent: newContent}, nil
}

// parsePatches repairs each hunk header's claimed source line number by
// locating the hunk's pre-image in the target text, then hands the
// corrected patch text to diffmatchpatch for parsing. dmp's own fuzzy
// matcher handles any residual drift at apply time.
func (a *Applier) parsePatches(norm string) ([]diffmatchpatch.Patch, error) {
	hunkText := stripFileHeaders(norm)
	if strings.TrimSpace(hunkText) == "" {
		return nil, errs.Wrap(errs.InvalidArgument, "patch: no hunks found in diff")
	}

	patches, err := a.dmp.PatchFromText(hunkText)
	if err != nil {
		return nil, errs.Wrapf(errs.ParseError, "patch: malformed unified diff: %v", err)
	}
	if len(patches) == 0 {
		return nil, errs.Wrap(errs.InvalidArgument, "patch: diff contained no hunks")
	}
	return patches, nil
}

// commit stages the new content to a sibling temp file and renames it over
// the target, so the original is only ever replaced atomically on success.
func (a *Applier) commit(targetAbs, newContent string) error {
	dir := filepath.Dir(targetAbs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrapf(errs.Unknown, "patch: create parent dir: %v", err)
	}

	tmp, err := os.CreateTemp(dir, ".patch-stage-*")
	if err != nil {
		return errs.Wrapf(errs.Unknown, "patch: create staging file: %v", err)
	}
	stagingPath := tmp.Name()
	defer os.Remove(stagingPath) // no-op once renamed; cleans up on any failure path

	if _, err := tmp.WriteString(newContent); err != nil {
		tmp.Close()
		return errs.Wrapf(errs.Unknown, "patch: write staging file: %v", err)
	}
	if err := tmp.Close(); err != nil {
		return errs.Wrapf(errs.Unknown, "patch: close staging file: %v", err)
	}

	if err := os.Rename(stagingPath, targetAbs); err != nil {
		return errs.Wrapf(errs.Unknown, "patch: commit rename: %v", err)
	}
	return nil
}

// normalize coerces line endings to \n and strips trailing whitespace per
// line.
func normalize(diffContent string) string {
	s := strings.ReplaceAll(diffContent, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		// Preserve the leading +/-/space marker; trim only trailing space.
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}

// targetPathFromHeaders extracts the file path from the diff's "+++"
// header, falling back to "---" if the target is being deleted.
func targetPathFromHeaders(diffContent string) (string, error) {
	for _, line := range strings.Split(diffContent, "\n") {
		if strings.HasPrefix(line, "+++ ") {
			if p := cleanHeaderPath(line[4:]); p != "" {
				return p, nil
			}
			break
		}
	}
	for _, line := range strings.Split(diffContent, "\n") {
		if strings.HasPrefix(line, "--- ") {
			return cleanHeaderPath(line[4:]), nil
		}
	}
	return "", errs.Wrap(errs.InvalidArgument, "patch: diff missing --- / +++ headers")
}

func cleanHeaderPath(raw string) string {
	p := strings.TrimSpace(raw)
	// Strip a trailing tab-separated timestamp, if present.
	if idx := strings.IndexByte(p, '\t'); idx >= 0 {
		p = p[:idx]
	}
	p = strings.TrimPrefix(p, "a/")
	p = strings.TrimPrefix(p, "b/")
	if p == "/dev/null" {
		return ""
	}
	return p
}

// stripFileHeaders removes "---"/"+++" lines, leaving only "@@" hunks, which
// is the format diffmatchpatch.PatchFromText expects.
func stripFileHeaders(diffContent string) string {
	var b strings.Builder
	for _, line := range strings.Split(diffContent, "\n") {
		if strings.HasPrefix(line, "--- ") || strings.HasPrefix(line, "+++ ") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
