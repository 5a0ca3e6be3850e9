package diffgen

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/patchstudio/internal/fs"
	"github.com/sokinpui/patchstudio/internal/parser"
	"github.com/sokinpui/patchstudio/internal/patcher"
	"github.com/sokinpui/patchstudio/internal/preflight"
	"github.com/sokinpui/patchstudio/model"
)

func TestGenerateSimpleReplace(t *testing.T) {
	out, err := Generate(File{OldPath: "a.txt", NewPath: "a.txt", Old: []byte("foo\nbar\nbaz\n"), New: []byte("foo\nqux\nbaz\n")}, 3)
	require.NoError(t, err)
	want := "diff --git a/a.txt b/a.txt\n" +
		"--- a/a.txt\n" +
		"+++ b/a.txt\n" +
		"@@ -1,3 +1,3 @@\n" +
		" foo\n" +
		"-bar\n" +
		"+qux\n" +
		" baz\n"
	assert.Equal(t, want, string(out))
}

func TestGenerateIdentical(t *testing.T) {
	out, err := Generate(File{OldPath: "a", NewPath: "a", Old: []byte("x\n"), New: []byte("x\n")}, 3)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestGenerateSplitsDistantChanges(t *testing.T) {
	var before, after string
	for i := range 20 {
		line := string(rune('a'+i)) + "\n"
		before += line
		if i == 1 || i == 18 {
			line = "changed\n"
		}
		after += line
	}
	out, err := Generate(File{OldPath: "f", NewPath: "f", Old: []byte(before), New: []byte(after)}, 3)
	require.NoError(t, err)
	doc, err := parser.ParseBytes(out)
	require.NoError(t, err)
	require.Len(t, doc.Files, 1)
	require.Len(t, doc.Files[0].Hunks, 2)
	assert.Equal(t, 1, doc.Files[0].Hunks[0].OldStart)
	assert.Equal(t, 16, doc.Files[0].Hunks[1].OldStart)
}

func TestGenerateNoNewlineAndCreate(t *testing.T) {
	out, err := Generate(File{OldPath: "a", NewPath: "a", Old: []byte("x\ny"), New: []byte("x\ny\n")}, 3)
	require.NoError(t, err)
	assert.Contains(t, string(out), "-y\n\\ No newline at end of file\n+y\n")

	out, err = Generate(File{NewPath: "new.txt", New: []byte("hi\n")}, 3)
	require.NoError(t, err)
	assert.Contains(t, string(out), "new file mode 100644\n--- /dev/null\n+++ b/new.txt\n@@ -0,0 +1,1 @@\n+hi\n")
}

func TestRoundTripThroughPreview(t *testing.T) {
	cases := []struct {
		name   string
		before string
		after  string
	}{
		{"replace", "foo\nbar\nbaz\n", "foo\nqux\nbaz\n"},
		{"append", "one\ntwo\n", "one\ntwo\nthree\n"},
		{"prepend", "one\ntwo\n", "zero\none\ntwo\n"},
		{"drop final newline", "a\nb\n", "a\nb"},
		{"add final newline", "a\nb", "a\nb\n"},
		{"empty to content", "", "a\n"},
		{"content to empty", "a\nb\n", ""},
		{"carriage return in untouched line", "progress 10%\rprogress 100%\nfoo\nbar\n", "progress 10%\rprogress 100%\nfoo\nqux\n"},
		{"carriage return in changed line", "a\nx\ry\n", "a\nx\rz\n"},
		{"many", "1\n2\n3\n4\n5\n6\n7\n8\n9\n10\n11\n12\n", "1\nX\n3\n4\n5\n6\n7\n8\n9\n10\nY\n12\n13\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte(tc.before), 0644))
			root, err := fs.NewRoot(dir)
			require.NoError(t, err)

			patch, err := Generate(File{OldPath: "f.txt", NewPath: "f.txt", Old: []byte(tc.before), New: []byte(tc.after)}, DefaultContext)
			require.NoError(t, err)
			doc, err := parser.ParseBytes(patch)
			require.NoError(t, err)

			cfg := model.DefaultConfig()
			report, err := preflight.Run(context.Background(), root, doc, cfg)
			require.NoError(t, err)
			res, err := patcher.Preview(context.Background(), root, doc, report, cfg)
			require.NoError(t, err)
			require.Len(t, res.Files, 1)
			require.NoError(t, res.Files[0].Err)
			assert.Equal(t, tc.after, string(res.Files[0].Content))
		})
	}
}
