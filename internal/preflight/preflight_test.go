package preflight

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/patchstudio/internal/fs"
	"github.com/sokinpui/patchstudio/internal/parser"
	"github.com/sokinpui/patchstudio/model"
)

func setup(t *testing.T, files map[string]string) *fs.Root {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	root, err := fs.NewRoot(dir)
	require.NoError(t, err)
	return root
}

func run(t *testing.T, root *fs.Root, patch string, cfg model.Config) *Report {
	t.Helper()
	doc, err := parser.ParseBytes([]byte(patch))
	require.NoError(t, err)
	report, err := Run(context.Background(), root, doc, cfg)
	require.NoError(t, err)
	require.Len(t, report.Entries, len(doc.Files))
	return report
}

const escapePatch = "--- ../outside.txt\n+++ ../outside.txt\n@@ -1 +1 @@\n-a\n+b\n"

func TestOutsideRootBlocksUnderEveryConfig(t *testing.T) {
	root := setup(t, nil)
	permissive := model.DefaultConfig()
	permissive.AllowPartialApply = true
	permissive.AllowRenameDeleteModeChange = true
	permissive.AllowConflictedOutput = true
	permissive.FuzzyApply = true

	for _, cfg := range []model.Config{model.DefaultConfig(), permissive} {
		report := run(t, root, escapePatch, cfg)
		assert.Equal(t, StatusOutsideRoot, report.Entries[0].Status)
		assert.Equal(t, VerdictBlocked, report.Verdict)
		var outside *model.OutsideRootError
		assert.ErrorAs(t, report.Entries[0].Err, &outside)
	}
}

func TestRenameIsGated(t *testing.T) {
	root := setup(t, map[string]string{"old.txt": "x\n"})
	patch := "diff --git a/old.txt b/new.txt\nsimilarity index 100%\nrename from old.txt\nrename to new.txt\n"

	report := run(t, root, patch, model.DefaultConfig())
	assert.Equal(t, StatusGatedOperation, report.Entries[0].Status)
	assert.Equal(t, VerdictBlocked, report.Verdict)

	cfg := model.DefaultConfig()
	cfg.AllowRenameDeleteModeChange = true
	report = run(t, root, patch, cfg)
	e := report.Entries[0]
	assert.Equal(t, StatusOk, e.Status)
	assert.Equal(t, "old.txt", e.Source)
	assert.Equal(t, "new.txt", e.Target)
	assert.Equal(t, VerdictClear, report.Verdict)
}

func TestModifyTargetSelection(t *testing.T) {
	root := setup(t, map[string]string{"pkg/util.go": "x\n"})
	patch := "--- src/pkg/util.go\n+++ src/pkg/util.go\n@@ -1 +1 @@\n-x\n+y\n"

	report := run(t, root, patch, model.DefaultConfig())
	assert.Equal(t, StatusOk, report.Entries[0].Status)
	assert.Equal(t, "pkg/util.go", report.Entries[0].Target)

	cfg := model.DefaultConfig()
	cfg.StrictFilenameMatch = true
	report = run(t, root, patch, cfg)
	assert.Equal(t, StatusMissingTarget, report.Entries[0].Status)
}

func TestStrictRequiresIdenticalPaths(t *testing.T) {
	root := setup(t, map[string]string{"a.txt": "x\n", "b.txt": "x\n"})
	patch := "--- a.txt\n+++ b.txt\n@@ -1 +1 @@\n-x\n+y\n"

	cfg := model.DefaultConfig()
	cfg.StrictFilenameMatch = true
	report := run(t, root, patch, cfg)
	assert.Equal(t, StatusMissingTarget, report.Entries[0].Status)

	report = run(t, root, patch, model.DefaultConfig())
	assert.Equal(t, StatusOk, report.Entries[0].Status)
	assert.Equal(t, "b.txt", report.Entries[0].Target)
}

func TestCreateOverExistingAndDeleteThenCreate(t *testing.T) {
	root := setup(t, map[string]string{"f.txt": "old\n"})
	create := "--- /dev/null\n+++ b/f.txt\n@@ -0,0 +1 @@\n+new\n"
	report := run(t, root, create, model.DefaultConfig())
	assert.Equal(t, StatusTargetExists, report.Entries[0].Status)

	cfg := model.DefaultConfig()
	cfg.AllowRenameDeleteModeChange = true
	deleteThenCreate := "--- a/f.txt\n+++ /dev/null\n@@ -1 +0,0 @@\n-old\n" + create
	report = run(t, root, deleteThenCreate, cfg)
	assert.Equal(t, StatusOk, report.Entries[0].Status)
	assert.Equal(t, StatusOk, report.Entries[1].Status)
	assert.Equal(t, VerdictClear, report.Verdict)
}

func TestBinaryOmittedAndVerdicts(t *testing.T) {
	root := setup(t, map[string]string{"a.txt": "x\n"})
	patch := "diff --git a/img.png b/img.png\nBinary files a/img.png and b/img.png differ\n" +
		"--- a/missing.txt\n+++ b/missing.txt\n@@ -1 +1 @@\n-x\n+y\n"

	report := run(t, root, patch, model.DefaultConfig())
	assert.Equal(t, StatusUnsupportedBinary, report.Entries[0].Status)
	assert.False(t, report.Entries[0].Omitted)
	assert.Equal(t, StatusMissingTarget, report.Entries[1].Status)
	assert.Equal(t, VerdictBlocked, report.Verdict)

	cfg := model.DefaultConfig()
	cfg.SkipUnsupportedBinary = true
	cfg.AllowPartialApply = true
	report = run(t, root, patch, cfg)
	assert.True(t, report.Entries[0].Omitted)
	assert.Equal(t, VerdictOverridable, report.Verdict)
	assert.Len(t, report.Issues(), 2)

	binaryOnly := "diff --git a/img.png b/img.png\nBinary files a/img.png and b/img.png differ\n"
	cfg = model.DefaultConfig()
	cfg.SkipUnsupportedBinary = true
	report = run(t, root, binaryOnly, cfg)
	assert.Equal(t, VerdictClear, report.Verdict)
}

func TestLookup(t *testing.T) {
	root := setup(t, map[string]string{"a.txt": "x\n"})
	doc, err := parser.ParseBytes([]byte("--- a.txt\n+++ a.txt\n@@ -1 +1 @@\n-x\n+y\n"))
	require.NoError(t, err)
	report, err := Run(context.Background(), root, doc, model.DefaultConfig(), WithConcurrency(1))
	require.NoError(t, err)

	e, ok := report.Lookup(doc.Files[0])
	require.True(t, ok)
	assert.True(t, e.Ok())
	_, ok = report.Lookup(&model.FileChange{})
	assert.False(t, ok)
}

func TestRunCancelled(t *testing.T) {
	root := setup(t, map[string]string{"a.txt": "x\n"})
	doc, err := parser.ParseBytes([]byte("--- a.txt\n+++ a.txt\n@@ -1 +1 @@\n-x\n+y\n"))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Run(ctx, root, doc, model.DefaultConfig())
	assert.ErrorIs(t, err, context.Canceled)
}
