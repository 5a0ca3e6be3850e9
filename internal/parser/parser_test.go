package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/patchstudio/model"
)

func TestParseGitExtended(t *testing.T) {
	raw := "diff --git a/src/main.go b/src/main.go\n" +
		"index 83db48f..bf269f4 100644\n" +
		"--- a/src/main.go\n" +
		"+++ b/src/main.go\n" +
		"@@ -1,3 +1,3 @@ package main\n" +
		" a\n" +
		"-b\n" +
		"+B\n" +
		" c\n" +
		"diff --git a/new.txt b/new.txt\n" +
		"new file mode 100755\n" +
		"--- /dev/null\n" +
		"+++ b/new.txt\n" +
		"@@ -0,0 +1,2 @@\n" +
		"+one\n" +
		"+two\n" +
		"\\ No newline at end of file\n" +
		"diff --git a/gone.txt b/gone.txt\n" +
		"deleted file mode 100644\n" +
		"--- a/gone.txt\n" +
		"+++ /dev/null\n" +
		"@@ -1 +0,0 @@\n" +
		"-bye\n"

	doc, err := ParseBytes([]byte(raw))
	require.NoError(t, err)
	require.Len(t, doc.Files, 3)
	assert.Equal(t, model.DialectGitExtended, doc.Dialect)

	mod := doc.Files[0]
	assert.Equal(t, model.OpModify, mod.Operation)
	assert.Equal(t, "src/main.go", mod.OldPath)
	assert.Equal(t, "src/main.go", mod.NewPath)
	require.Len(t, mod.Hunks, 1)
	assert.Equal(t, "package main", mod.Hunks[0].Section)
	assert.Equal(t, []string{"a", "b", "c"}, mod.Hunks[0].OldSide())
	assert.Equal(t, []string{"a", "B", "c"}, mod.Hunks[0].NewSide())

	create := doc.Files[1]
	assert.Equal(t, model.OpCreate, create.Operation)
	assert.Equal(t, model.DevNull, create.OldPath)
	assert.Equal(t, "new.txt", create.NewPath)
	assert.Equal(t, uint32(0o100755), create.NewMode)
	assert.True(t, create.Hunks[0].NewNoNewline)
	assert.False(t, create.Hunks[0].OldNoNewline)

	del := doc.Files[2]
	assert.Equal(t, model.OpDelete, del.Operation)
	assert.Equal(t, "gone.txt", del.OldPath)
	assert.Equal(t, model.DevNull, del.NewPath)
}

func TestParseRenameAndModeChange(t *testing.T) {
	raw := "diff --git a/old name.txt b/new name.txt\n" +
		"similarity index 100%\n" +
		"rename from old name.txt\n" +
		"rename to new name.txt\n" +
		"diff --git a/run.sh b/run.sh\n" +
		"old mode 100644\n" +
		"new mode 100755\n"

	doc, err := ParseBytes([]byte(raw))
	require.NoError(t, err)
	require.Len(t, doc.Files, 2)

	assert.Equal(t, model.OpRename, doc.Files[0].Operation)
	assert.Equal(t, "old name.txt", doc.Files[0].OldPath)
	assert.Equal(t, "new name.txt", doc.Files[0].NewPath)
	assert.Empty(t, doc.Files[0].Hunks)

	assert.Equal(t, model.OpModeChange, doc.Files[1].Operation)
	assert.Equal(t, uint32(0o100644), doc.Files[1].OldMode)
	assert.Equal(t, uint32(0o100755), doc.Files[1].NewMode)
}

func TestParseSegmentWithoutFileHeadersFollowedByClassic(t *testing.T) {
	tests := map[string]struct {
		raw   string
		first model.Operation
	}{
		"git rename": {
			raw: "diff --git a/old.txt b/new.txt\n" +
				"similarity index 100%\n" +
				"rename from old.txt\n" +
				"rename to new.txt\n",
			first: model.OpRename,
		},
		"git mode change": {
			raw: "diff --git a/run.sh b/run.sh\n" +
				"old mode 100644\n" +
				"new mode 100755\n",
			first: model.OpModeChange,
		},
		"git empty create": {
			raw: "diff --git a/empty b/empty\n" +
				"new file mode 100644\n" +
				"index 0000000..e69de29\n",
			first: model.OpCreate,
		},
		"index binary": {
			raw: "Index: icon.gif\n" +
				"===================================================================\n" +
				"Cannot display: file marked as a binary type.\n" +
				"svn:mime-type = application/octet-stream\n",
			first: model.OpModify,
		},
	}
	classic := "--- c.txt\n+++ c.txt\n@@ -1 +1 @@\n-a\n+b\n"
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			doc, err := ParseBytes([]byte(tt.raw + classic))
			require.NoError(t, err)
			require.Len(t, doc.Files, 2)
			assert.Equal(t, tt.first, doc.Files[0].Operation)
			assert.NotEqual(t, "c.txt", doc.Files[0].NewPath)
			assert.Empty(t, doc.Files[0].Hunks)

			fc := doc.Files[1]
			assert.Equal(t, model.DialectClassicUnified, fc.Dialect)
			assert.Equal(t, "c.txt", fc.OldPath)
			assert.Equal(t, "c.txt", fc.NewPath)
			require.Len(t, fc.Hunks, 1)
			assert.Equal(t, []string{"b"}, fc.Hunks[0].NewSide())
		})
	}
}

func TestParseRenameWithContentKeepsFileHeaders(t *testing.T) {
	raw := "diff --git a/old.txt b/new.txt\n" +
		"similarity index 80%\n" +
		"rename from old.txt\n" +
		"rename to new.txt\n" +
		"index 1111111..2222222 100644\n" +
		"--- a/old.txt\n" +
		"+++ b/new.txt\n" +
		"@@ -1 +1 @@\n" +
		"-a\n" +
		"+b\n"
	doc, err := ParseBytes([]byte(raw))
	require.NoError(t, err)
	require.Len(t, doc.Files, 1)
	fc := doc.Files[0]
	assert.Equal(t, model.OpRename, fc.Operation)
	assert.Equal(t, "old.txt", fc.OldPath)
	assert.Equal(t, "new.txt", fc.NewPath)
	assert.Len(t, fc.Hunks, 1)
}

func TestParseKeepsLoneCarriageReturn(t *testing.T) {
	raw := "--- log.txt\r\n+++ log.txt\r\n@@ -1 +1 @@\r\n-10%\r100%\r\n+done\r\n"
	doc, err := ParseBytes([]byte(raw))
	require.NoError(t, err)
	require.Len(t, doc.Files, 1)
	assert.Equal(t, []string{"10%\r100%"}, doc.Files[0].Hunks[0].OldSide())
	assert.Equal(t, []string{"done"}, doc.Files[0].Hunks[0].NewSide())
}

func TestParseBinaryMarkers(t *testing.T) {
	raw := "diff --git a/logo.png b/logo.png\n" +
		"index 1111111..2222222 100644\n" +
		"GIT binary patch\n" +
		"literal 12\n" +
		"zcmZ?wbhEHbRA5kGW?*1oVPIeY0000\n" +
		"\n" +
		"Index: icon.gif\n" +
		"===================================================================\n" +
		"Cannot display: file marked as a binary type.\n"

	doc, err := ParseBytes([]byte(raw))
	require.NoError(t, err)
	require.Len(t, doc.Files, 2)
	assert.Equal(t, model.DialectMixed, doc.Dialect)
	assert.True(t, doc.Files[0].IsBinary)
	assert.Equal(t, "logo.png", doc.Files[0].DisplayPath())
	assert.True(t, doc.Files[1].IsBinary)
	assert.Equal(t, "icon.gif", doc.Files[1].DisplayPath())
}

func TestParseClassicWithTimestamps(t *testing.T) {
	raw := "--- lib/util.c\t2024-01-01 10:00:00.000000000 +0000\n" +
		"+++ lib/util.c\t2024-01-02 10:00:00.000000000 +0000\n" +
		"@@ -2 +2,2 @@\n" +
		"-old\n" +
		"+new\n" +
		"+more\n"
	doc, err := ParseBytes([]byte(raw))
	require.NoError(t, err)
	require.Len(t, doc.Files, 1)
	fc := doc.Files[0]
	assert.Equal(t, model.DialectClassicUnified, fc.Dialect)
	assert.Equal(t, "lib/util.c", fc.OldPath)
	assert.Equal(t, model.OpModify, fc.Operation)
	assert.Equal(t, 1, fc.Hunks[0].OldCount)
	assert.Equal(t, 2, fc.Hunks[0].NewCount)
}

func TestParseHunkCountMismatch(t *testing.T) {
	tests := map[string]string{
		"short body": "--- a\n+++ a\n@@ -1,3 +1,3 @@\n a\n-b\n+B\n",
		"extra body": "--- a\n+++ a\n@@ -1 +1 @@\n-a\n+A\n+extra\n",
		"early stop": "--- a\n+++ a\n@@ -1,2 +1,2 @@\n a\nnot a body line\n b\n",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseBytes([]byte(raw))
			var perr *model.ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, "a", perr.File)
			var merr *model.HunkCountMismatchError
			require.ErrorAs(t, err, &merr)
			assert.Equal(t, 0, merr.HunkIndex)
		})
	}
}

func TestParseErrorLocatesLine(t *testing.T) {
	raw := "preamble\n--- a\n+++ a\n@@ -1,2 +1,2 @@\n x\n"
	_, err := ParseBytes([]byte(raw))
	var perr *model.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 6, perr.Line)
	assert.Equal(t, len(raw), perr.Offset)
}

func TestParseOffsetsReferToRawInput(t *testing.T) {
	raw := "--- a\r\n+++ a\r\n@@ -1 +1 @@\r\n-x\r\n+y\r\n" +
		"--- b\r\n+++ b\r\n@@ -1,2 +1,2 @@\r\n-x\r\n"
	_, err := ParseBytes([]byte(raw))
	var perr *model.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "b", perr.File)
	assert.Equal(t, len(raw), perr.Offset)

	doc, err := ParseBytes([]byte(raw[:35] + "--- b\r\n+++ b\r\n@@ -1 +1 @@\r\n-x\r\n+y\r\n"))
	require.NoError(t, err)
	require.Len(t, doc.Files, 2)
	assert.Equal(t, 0, doc.Files[0].Offset)
	assert.Equal(t, 35, doc.Files[1].Offset)
}

func TestParseToleratesSignatureAndBlankLines(t *testing.T) {
	raw := "--- a/x\n+++ b/x\n@@ -1 +1 @@\n-1\n+2\n\n@@ -5 +5 @@\n-5\n+6\n-- \n2.43.0\n\n"
	doc, err := ParseBytes([]byte(raw))
	require.NoError(t, err)
	require.Len(t, doc.Files[0].Hunks, 2)
	assert.Equal(t, "x", doc.Files[0].NewPath)
}

func TestParseRemovedLineLooksLikeHeader(t *testing.T) {
	raw := "--- a/notes.md\n+++ b/notes.md\n@@ -1,2 +1,2 @@\n--- not a header\n+++ still body\n keep\n"
	doc, err := ParseBytes([]byte(raw))
	require.NoError(t, err)
	require.Len(t, doc.Files, 1)
	h := doc.Files[0].Hunks[0]
	assert.Equal(t, []string{"-- not a header", "keep"}, h.OldSide())
	assert.Equal(t, []string{"++ still body", "keep"}, h.NewSide())
}
