package patch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/loomhq/loom/internal/errs"
	"github.com/loomhq/loom/internal/sandbox"
	"github.com/stretchr/testify/require"
)

func newTestApplier(t *testing.T) (*Applier, string) {
	t.Helper()
	dir := t.TempDir()
	guard, err := sandbox.NewGuard(dir)
	require.NoError(t, err)
	return NewApplier(guard), dir
}

func TestApply_CleanPatch(t *testing.T) {
	a, dir := newTestApplier(t)

	target := filepath.Join(dir, "greeting.txt")
	require.NoError(t, os.WriteFile(target, []byte("hello\nworld\n"), 0o644))

	diff := "--- a/greeting.txt\n" +
		"+++ b/greeting.txt\n" +
		"@@ -1,2 +1,2 @@\n" +
		" hello\n" +
		"-world\n" +
		"+galaxy\n"

	res, err := a.Apply(diff)
	require.NoError(t, err)
	require.Equal(t, "hello\ngalaxy\n", res.NewContent)

	contents, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "hello\ngalaxy\n", string(contents))
}

func TestApply_SelfCorrectsWrongHunkHeader(t *testing.T) {
	a, dir := newTestApplier(t)

	target := filepath.Join(dir, "file.txt")
	lines := "a\nb\nc\nd\ne\nf\ng\nh\ni\nj\nk\nl\nm\nn\n"
	require.NoError(t, os.WriteFile(target, []byte(lines), 0o644))

	// Header claims the hunk starts at line 10, but the real pre-image
	// ("l","m","n") actually starts at line 12.
	diff := "--- a/file.txt\n" +
		"+++ b/file.txt\n" +
		"@@ -10,3 +10,3 @@\n" +
		" l\n" +
		"-m\n" +
		"+M\n" +
		" n\n"

	res, err := a.Apply(diff)
	require.NoError(t, err)
	require.Contains(t, res.NewContent, "l\nM\nn")

	contents, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "a\nb\nc\nd\ne\nf\ng\nh\ni\nj\nk\nl\nM\nn\n", string(contents))
}

func TestApply_UnmatchablePatchLeavesFileUnchanged(t *testing.T) {
	a, dir := newTestApplier(t)

	target := filepath.Join(dir, "file.txt")
	original := "one\ntwo\nthree\n"
	require.NoError(t, os.WriteFile(target, []byte(original), 0o644))

	diff := "--- a/file.txt\n" +
		"+++ b/file.txt\n" +
		"@@ -1,3 +1,3 @@\n" +
		" nonexistent-context-line\n" +
		"-also nonexistent\n" +
		"+replacement\n"

	_, err := a.Apply(diff)
	require.ErrorIs(t, err, errs.PatchNotApplicable)

	contents, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, original, string(contents))
}

func TestApply_RejectsPathOutsideSandbox(t *testing.T) {
	a, _ := newTestApplier(t)

	diff := "--- a/../outside.txt\n" +
		"+++ b/../outside.txt\n" +
		"@@ -1,1 +1,1 @@\n" +
		"-x\n" +
		"+y\n"

	_, err := a.Apply(diff)
	require.ErrorIs(t, err, errs.PathEscape)
}

func TestApply_IdempotentReapplyFails(t *testing.T) {
	a, dir := newTestApplier(t)

	target := filepath.Join(dir, "idem.txt")
	require.NoError(t, os.WriteFile(target, []byte("foo\n"), 0o644))

	diff := "--- a/idem.txt\n" +
		"+++ b/idem.txt\n" +
		"@@ -1,1 +1,1 @@\n" +
		"-foo\n" +
		"+bar\n"

	_, err := a.Apply(diff)
	require.NoError(t, err)

	// Applying again should either fail (context no longer matches) or be a
	// no-op; it must never corrupt the file.
	_, err2 := a.Apply(diff)
	if err2 != nil {
		require.ErrorIs(t, err2, errs.PatchNotApplicable)
	}

	contents, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "bar\n", string(contents))
}
