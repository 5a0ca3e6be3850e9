package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/patchstudio/model"
)

func init() {
	color.NoColor = true
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func fixture(t *testing.T) (dir, patch string) {
	t.Helper()
	dir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("foo\nbar\nbaz\n"), 0644))
	patch = filepath.Join(t.TempDir(), "change.diff")
	require.NoError(t, os.WriteFile(patch, []byte("--- a.txt\n+++ a.txt\n@@ -1,3 +1,3 @@\n foo\n-bar\n+qux\n baz\n"), 0644))
	return dir, patch
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitFailure, exitCode(errors.New("x")))
	assert.Equal(t, exitBlocked, exitCode(fmt.Errorf("wrapped: %w", model.ErrBlocked)))
	assert.Equal(t, exitBlocked, exitCode(model.ErrConfirmationRequired))
	assert.Equal(t, exitSelfCheck, exitCode(&exitError{code: exitSelfCheck, err: errors.New("failed")}))
}

func TestPreviewCommand(t *testing.T) {
	dir, patch := fixture(t)
	out, err := run(t, "preview", "--root", dir, "--diff", patch)
	require.NoError(t, err)
	assert.Contains(t, out, "Verdict: clear")
	assert.Contains(t, out, "-bar\n+qux\n")

	data, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "foo\nbar\nbaz\n", string(data))
}

func TestApplyNeedsConfirmation(t *testing.T) {
	dir, patch := fixture(t)
	_, err := run(t, "apply", "--root", dir, "--no-tui", patch)
	assert.ErrorIs(t, err, model.ErrConfirmationRequired)
	assert.Equal(t, exitBlocked, exitCode(err))

	out, err := run(t, "apply", "--root", dir, "--yes", patch)
	require.NoError(t, err)
	assert.Contains(t, out, "Modified (1):")

	data, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "foo\nqux\nbaz\n", string(data))

	out, err = run(t, "backups", "list", "--root", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "success")

	out, err = run(t, "backups", "restore", "--root", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Restored (1):")
	data, err = os.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "foo\nbar\nbaz\n", string(data))
}

func TestApplyConflictExitsBlocked(t *testing.T) {
	dir, _ := fixture(t)
	patch := filepath.Join(t.TempDir(), "bad.diff")
	require.NoError(t, os.WriteFile(patch, []byte("--- a.txt\n+++ a.txt\n@@ -2 +2 @@\n-nope\n+x\n"), 0644))
	out, err := run(t, "apply", "--root", dir, "--yes", patch)
	assert.ErrorIs(t, err, model.ErrBlocked)
	assert.Contains(t, out, "conflict at line 2")
}

func TestDiffCommand(t *testing.T) {
	dir := t.TempDir()
	oldPath, newPath := filepath.Join(dir, "old.txt"), filepath.Join(dir, "new.txt")
	require.NoError(t, os.WriteFile(oldPath, []byte("a\nb\n"), 0644))
	require.NoError(t, os.WriteFile(newPath, []byte("a\nc\n"), 0644))
	out, err := run(t, "diff", "-U", "1", oldPath, newPath)
	require.NoError(t, err)
	assert.Contains(t, out, "@@ -1,2 +1,2 @@\n a\n-b\n+c\n")
	assert.Contains(t, out, "diff --git a/old.txt b/new.txt\n--- a/old.txt\n+++ b/new.txt\n")
	assert.NotContains(t, out, "a//")
}

func TestHeaderName(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	tests := map[string]string{
		"sub/x.txt":                        "sub/x.txt",
		"./sub/../y.txt":                   "y.txt",
		"../outside.txt":                   "outside.txt",
		filepath.Join(wd, "sub", "z.txt"):  "sub/z.txt",
		filepath.Join(os.TempDir(), "t.c"): "t.c",
	}
	for in, want := range tests {
		assert.Equal(t, want, headerName(in), "input %q", in)
	}
}

func TestSelfCheckCommand(t *testing.T) {
	out, err := run(t, "selfcheck")
	require.NoError(t, err)
	assert.Contains(t, out, "OK: apply with backup")
	assert.NotContains(t, out, "FAIL:")
}
