package ui

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/patchstudio/internal/fs"
	"github.com/sokinpui/patchstudio/internal/parser"
	"github.com/sokinpui/patchstudio/internal/patcher"
	"github.com/sokinpui/patchstudio/internal/preflight"
	"github.com/sokinpui/patchstudio/internal/selfcheck"
	"github.com/sokinpui/patchstudio/model"
)

func init() {
	color.NoColor = true
}

func previewFixture(t *testing.T) *patcher.Result {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x\nfoo\nbar\nbaz\n"), 0644))
	root, err := fs.NewRoot(dir)
	require.NoError(t, err)
	doc, err := parser.ParseBytes([]byte("--- a.txt\n+++ a.txt\n@@ -1,3 +1,3 @@\n foo\n-bar\n+qux\n baz\n" +
		"--- ../x.txt\n+++ ../x.txt\n@@ -1 +1 @@\n-a\n+b\n"))
	require.NoError(t, err)
	cfg := model.DefaultConfig()
	cfg.FuzzyApply = true
	report, err := preflight.Run(context.Background(), root, doc, cfg)
	require.NoError(t, err)
	res, err := patcher.Preview(context.Background(), root, doc, report, cfg)
	require.NoError(t, err)
	return res
}

func TestPrintReportAndPreview(t *testing.T) {
	res := previewFixture(t)

	var buf bytes.Buffer
	PrintReport(&buf, res.Report)
	out := buf.String()
	assert.Contains(t, out, "ok")
	assert.Contains(t, out, "outside-root")
	assert.Contains(t, out, "Verdict: blocked")

	buf.Reset()
	PrintPreview(&buf, res, true)
	out = buf.String()
	assert.Contains(t, out, "hunk #1 applied at line 2 (offset +1)")
	assert.Contains(t, out, "skipped  ../x.txt")
	assert.Contains(t, out, "-bar\n+qux\n")
	assert.Contains(t, out, "Status: has-blocked (some hunks applied at an offset)")
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	PrintSummary(&buf, model.Summary{Modified: []string{"a.txt"}, Failed: []string{"b.txt"}, BackupDir: ".patchstudio_backups/x", Status: "rolled-back"})
	out := buf.String()
	assert.Contains(t, out, "Modified (1):\n  - a.txt\n")
	assert.Contains(t, out, "Failed (1):\n  - b.txt\n")
	assert.Contains(t, out, "Backups: .patchstudio_backups/x")

	buf.Reset()
	PrintSummary(&buf, model.Summary{})
	assert.Contains(t, buf.String(), "No files were updated.")
}

func TestPrintSelfCheckAndProgress(t *testing.T) {
	var buf bytes.Buffer
	PrintSelfCheck(&buf, []selfcheck.Result{{Name: "a"}})
	assert.Equal(t, "OK: a\n", buf.String())

	buf.Reset()
	bar := NewProgressBar(&buf, "Applying")
	bar.Update(1, 2)
	assert.Contains(t, buf.String(), "[1/2] 50.0%")
}

func TestStatusHelpersWriteMessages(t *testing.T) {
	var buf bytes.Buffer
	messages = &buf
	t.Cleanup(func() { messages = os.Stderr })

	Header("Restoring %s", "run")
	Info("info")
	Success("done")
	Path("%s", "a.txt")
	assert.Equal(t, "Restoring run\ninfo\ndone\n  a.txt\n", buf.String())
}

func TestOmittedBinaries(t *testing.T) {
	var buf bytes.Buffer
	messages = &buf
	t.Cleanup(func() { messages = os.Stderr })

	dir := t.TempDir()
	root, err := fs.NewRoot(dir)
	require.NoError(t, err)
	doc, err := parser.ParseBytes([]byte("diff --git a/img.png b/img.png\nBinary files a/img.png and b/img.png differ\n"))
	require.NoError(t, err)
	cfg := model.DefaultConfig()
	cfg.SkipUnsupportedBinary = true
	report, err := preflight.Run(context.Background(), root, doc, cfg)
	require.NoError(t, err)
	res, err := patcher.Preview(context.Background(), root, doc, report, cfg)
	require.NoError(t, err)

	OmittedBinaries(res)
	assert.Contains(t, buf.String(), "Binary files are not patched")
	assert.Contains(t, buf.String(), "  img.png\n")

	buf.Reset()
	OmittedBinaries(previewFixture(t))
	assert.Empty(t, buf.String())
}
