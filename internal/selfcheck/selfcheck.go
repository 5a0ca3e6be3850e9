// Package selfcheck runs the whole pipeline against throwaway fixtures and
// reports one line per check.
package selfcheck

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sokinpui/patchstudio/internal/apply"
	"github.com/sokinpui/patchstudio/internal/diffgen"
	"github.com/sokinpui/patchstudio/internal/fs"
	"github.com/sokinpui/patchstudio/internal/normalizer"
	"github.com/sokinpui/patchstudio/internal/parser"
	"github.com/sokinpui/patchstudio/internal/patcher"
	"github.com/sokinpui/patchstudio/internal/preflight"
	"github.com/sokinpui/patchstudio/model"
)

// Result is the outcome of one check.
type Result struct {
	Name string
	Err  error
}

// OK reports whether the check passed.
func (r Result) OK() bool { return r.Err == nil }

func (r Result) String() string {
	if r.OK() {
		return "OK: " + r.Name
	}
	return fmt.Sprintf("FAIL: %s: %v", r.Name, r.Err)
}

type check struct {
	name string
	run  func(ctx context.Context, dir string) error
}

var checks = []check{
	{"normalize CRLF and BOM input", checkNormalize},
	{"parse git, index and classic dialects", checkDialects},
	{"parse binary markers", checkBinary},
	{"preview create and delete", checkCreateDelete},
	{"preview fuzzy offset", checkFuzzy},
	{"preview conflict markers", checkConflict},
	{"apply with backup", checkApply},
	{"rollback after induced write failure", checkRollback},
	{"generate, parse and apply round trip", checkRoundTrip},
}

// Run executes every check in its own directory under a fresh temp dir and
// returns the results in order. The temp dir is removed afterwards.
func Run(ctx context.Context) ([]Result, error) {
	base, err := os.MkdirTemp("", "patchstudio-selfcheck-")
	if err != nil {
		return nil, fmt.Errorf("create fixture directory: %w", err)
	}
	defer os.RemoveAll(base)

	results := make([]Result, 0, len(checks))
	for i, c := range checks {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		dir := filepath.Join(base, fmt.Sprintf("check-%02d", i))
		if err := os.Mkdir(dir, 0755); err != nil {
			return results, err
		}
		results = append(results, Result{Name: c.name, Err: c.run(ctx, dir)})
	}
	return results, nil
}

// Passed reports whether every result is OK.
func Passed(results []Result) bool {
	for _, r := range results {
		if !r.OK() {
			return false
		}
	}
	return true
}

func writeFixtures(dir string, files map[string]string) (*fs.Root, error) {
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return nil, err
		}
	}
	return fs.NewRoot(dir)
}

func preview(ctx context.Context, fsys fs.FS, patch string, cfg model.Config) (*patcher.Result, error) {
	doc, err := parser.ParseBytes([]byte(patch))
	if err != nil {
		return nil, err
	}
	report, err := preflight.Run(ctx, fsys, doc, cfg)
	if err != nil {
		return nil, err
	}
	return patcher.Preview(ctx, fsys, doc, report, cfg)
}

func expectContent(fr patcher.FileResult, want string) error {
	if fr.Err != nil {
		return fr.Err
	}
	if string(fr.Content) != want {
		return fmt.Errorf("%s: got %q, want %q", fr.Target, fr.Content, want)
	}
	return nil
}

func expectFile(root *fs.Root, rel, want string) error {
	data, err := root.ReadFile(rel)
	if err != nil {
		return err
	}
	if string(data) != want {
		return fmt.Errorf("%s on disk: got %q, want %q", rel, data, want)
	}
	return nil
}

func checkNormalize(_ context.Context, _ string) error {
	raw := "\ufeff--- a.txt\r\n+++ a.txt\r\n@@ -1 +1 @@\r\n-x\r\n+y\r\n"
	doc, err := normalizer.Normalize([]byte(raw))
	if err != nil {
		return err
	}
	if doc.EOL != "\r\n" {
		return fmt.Errorf("detected EOL %q, want CRLF", doc.EOL)
	}
	parsed, err := parser.Parse(doc)
	if err != nil {
		return err
	}
	if n := parsed.TotalHunks(); n != 1 {
		return fmt.Errorf("got %d hunks, want 1", n)
	}
	return nil
}

func checkDialects(_ context.Context, _ string) error {
	raw := "diff --git a/g.txt b/g.txt\n--- a/g.txt\n+++ b/g.txt\n@@ -1 +1 @@\n-a\n+b\n" +
		"Index: i.txt\n===================================================================\n--- i.txt\n+++ i.txt\n@@ -1 +1 @@\n-a\n+b\n" +
		"--- c.txt\t2024-01-01 00:00:00\n+++ c.txt\t2024-01-02 00:00:00\n@@ -1 +1 @@\n-a\n+b\n"
	doc, err := parser.ParseBytes([]byte(raw))
	if err != nil {
		return err
	}
	if doc.Dialect != model.DialectMixed {
		return fmt.Errorf("dialect %s, want mixed", doc.Dialect)
	}
	want := []string{"g.txt", "i.txt", "c.txt"}
	if len(doc.Files) != len(want) {
		return fmt.Errorf("got %d files, want %d", len(doc.Files), len(want))
	}
	for i, fc := range doc.Files {
		if fc.NewPath != want[i] {
			return fmt.Errorf("file %d is %q, want %q", i, fc.NewPath, want[i])
		}
	}
	return nil
}

func checkBinary(ctx context.Context, dir string) error {
	root, err := writeFixtures(dir, map[string]string{"img.png": "\x89PNG"})
	if err != nil {
		return err
	}
	raw := "diff --git a/img.png b/img.png\nindex 1111111..2222222 100644\nBinary files a/img.png and b/img.png differ\n"
	cfg := model.DefaultConfig()
	doc, err := parser.ParseBytes([]byte(raw))
	if err != nil {
		return err
	}
	if !doc.Files[0].IsBinary {
		return errors.New("binary marker not detected")
	}
	report, err := preflight.Run(ctx, root, doc, cfg)
	if err != nil {
		return err
	}
	if report.Entries[0].Status != preflight.StatusUnsupportedBinary {
		return fmt.Errorf("status %s, want unsupported-binary", report.Entries[0].Status)
	}
	return nil
}

func checkCreateDelete(ctx context.Context, dir string) error {
	root, err := writeFixtures(dir, map[string]string{"old.txt": "bye\n"})
	if err != nil {
		return err
	}
	cfg := model.DefaultConfig()
	cfg.AllowRenameDeleteModeChange = true
	patch := "diff --git a/new.txt b/new.txt\nnew file mode 100644\n--- /dev/null\n+++ b/new.txt\n@@ -0,0 +1,2 @@\n+hello\n+world\n" +
		"diff --git a/old.txt b/old.txt\ndeleted file mode 100644\n--- a/old.txt\n+++ /dev/null\n@@ -1 +0,0 @@\n-bye\n"
	res, err := preview(ctx, root, patch, cfg)
	if err != nil {
		return err
	}
	if err := expectContent(res.Files[0], "hello\nworld\n"); err != nil {
		return err
	}
	if del := res.Files[1]; del.Err != nil || del.Content != nil {
		return fmt.Errorf("delete preview: content %q, err %v", del.Content, del.Err)
	}
	return nil
}

func checkFuzzy(ctx context.Context, dir string) error {
	root, err := writeFixtures(dir, map[string]string{"f.txt": "x\nx\nx\nfoo\nbar\nbaz\n"})
	if err != nil {
		return err
	}
	cfg := model.DefaultConfig()
	cfg.FuzzyApply = true
	res, err := preview(ctx, root, "--- f.txt\n+++ f.txt\n@@ -1,3 +1,3 @@\n foo\n-bar\n+qux\n baz\n", cfg)
	if err != nil {
		return err
	}
	fr := res.Files[0]
	if err := expectContent(fr, "x\nx\nx\nfoo\nqux\nbaz\n"); err != nil {
		return err
	}
	if fr.Hunks[0].Offset != 3 {
		return fmt.Errorf("offset %d, want 3", fr.Hunks[0].Offset)
	}
	return nil
}

func checkConflict(ctx context.Context, dir string) error {
	root, err := writeFixtures(dir, map[string]string{"f.txt": "foo\nBAR\nbaz\n"})
	if err != nil {
		return err
	}
	cfg := model.DefaultConfig()
	cfg.AllowConflictedOutput = true
	res, err := preview(ctx, root, "--- f.txt\n+++ f.txt\n@@ -1,3 +1,3 @@\n foo\n-bar\n+qux\n baz\n", cfg)
	if err != nil {
		return err
	}
	want := "<<<<<<< current\nfoo\nBAR\nbaz\n||||||| base\nfoo\nbar\nbaz\n=======\nfoo\nqux\nbaz\n>>>>>>> patch\n"
	if !res.AnyConflict {
		return errors.New("conflict not reported")
	}
	return expectContent(res.Files[0], want)
}

func checkApply(ctx context.Context, dir string) error {
	root, err := writeFixtures(dir, map[string]string{"f.txt": "foo\nbar\nbaz\n"})
	if err != nil {
		return err
	}
	res, err := preview(ctx, root, "--- f.txt\n+++ f.txt\n@@ -2 +2 @@\n-bar\n+qux\n", model.DefaultConfig())
	if err != nil {
		return err
	}
	tx, err := apply.Apply(ctx, root, res)
	if err != nil {
		return err
	}
	if err := expectFile(root, "f.txt", "foo\nqux\nbaz\n"); err != nil {
		return err
	}
	if len(tx.Ops) != 1 || tx.Ops[0].Backup == nil {
		return errors.New("no backup recorded")
	}
	return expectFile(root, tx.Ops[0].Backup.BackupPath, "foo\nbar\nbaz\n")
}

func checkRollback(ctx context.Context, dir string) error {
	root, err := writeFixtures(dir, map[string]string{"a.txt": "a\n", "b.txt": "b\n"})
	if err != nil {
		return err
	}
	fsys := &fs.FaultFS{FS: root, Inject: fs.FailOn(fs.OpWrite, "b.txt", errors.New("induced failure"))}
	patch := "--- a.txt\n+++ a.txt\n@@ -1 +1 @@\n-a\n+A\n--- b.txt\n+++ b.txt\n@@ -1 +1 @@\n-b\n+B\n"
	res, err := preview(ctx, fsys, patch, model.DefaultConfig())
	if err != nil {
		return err
	}
	tx, err := apply.Apply(ctx, fsys, res)
	var perr *model.PartialApplyError
	if !errors.As(err, &perr) {
		return fmt.Errorf("expected a partial apply error, got %v", err)
	}
	if tx.Status != apply.StatusRolledBack {
		return fmt.Errorf("status %s, want rolled-back", tx.Status)
	}
	if err := expectFile(root, "a.txt", "a\n"); err != nil {
		return err
	}
	return expectFile(root, "b.txt", "b\n")
}

func checkRoundTrip(ctx context.Context, dir string) error {
	before := "one\ntwo\nthree\nfour\nfive\nsix\nseven\neight\n"
	after := "one\n2\nthree\nfour\nfive\nsix\nseven\neight\nnine"
	root, err := writeFixtures(dir, map[string]string{"r.txt": before})
	if err != nil {
		return err
	}
	patch, err := diffgen.Generate(diffgen.File{OldPath: "r.txt", NewPath: "r.txt", Old: []byte(before), New: []byte(after)}, diffgen.DefaultContext)
	if err != nil {
		return err
	}
	res, err := preview(ctx, root, string(patch), model.DefaultConfig())
	if err != nil {
		return err
	}
	if _, err := apply.Apply(ctx, root, res); err != nil {
		return err
	}
	return expectFile(root, "r.txt", after)
}
