// Package diffgen produces unified diffs in the git dialect the parser reads.
// Line matching is done by diffmatchpatch in line mode; hunks are rendered
// with sourcegraph/go-diff.
package diffgen

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	godiff "github.com/sourcegraph/go-diff/diff"

	"github.com/sokinpui/patchstudio/internal/fs"
	"github.com/sokinpui/patchstudio/model"
)

// DefaultContext is the number of context lines around each change.
const DefaultContext = 3

const noNewlineMarker = "\\ No newline at end of file\n"

// eofMark tags a final line that has no newline so it never compares equal to
// the same text followed by one.
const eofMark = "\x00"

type edit struct {
	kind byte
	text string
	eof  bool
}

// File describes one side-by-side comparison. An empty OldPath means the file
// is created, an empty NewPath means it is deleted.
type File struct {
	OldPath string
	NewPath string
	Old     []byte
	New     []byte
	Mode    uint32
}

// Generate renders the diff of f with context lines around each change. It
// returns nil when both sides are identical.
func Generate(f File, context int) ([]byte, error) {
	if context < 0 {
		context = DefaultContext
	}
	edits := lineEdits(f.Old, f.New)
	hunks := buildHunks(edits, context)
	if len(hunks) == 0 {
		return nil, nil
	}

	oldName, newName := "a/"+f.OldPath, "b/"+f.NewPath
	gitOld, gitNew := f.OldPath, f.NewPath
	var extended []string
	switch {
	case f.OldPath == "" && f.NewPath == "":
		return nil, fmt.Errorf("diff needs at least one path")
	case f.OldPath == "":
		oldName, gitOld = model.DevNull, f.NewPath
		extended = append(extended, fmt.Sprintf("new file mode %o", gitMode(f.Mode)))
	case f.NewPath == "":
		newName, gitNew = model.DevNull, f.OldPath
		extended = append(extended, fmt.Sprintf("deleted file mode %o", gitMode(f.Mode)))
	}
	extended = append([]string{fmt.Sprintf("diff --git a/%s b/%s", gitOld, gitNew)}, extended...)

	out, err := godiff.PrintFileDiff(&godiff.FileDiff{
		OrigName: oldName,
		NewName:  newName,
		Extended: extended,
		Hunks:    hunks,
	})
	if err != nil {
		return nil, fmt.Errorf("render diff of %s: %w", displayName(f), err)
	}
	return out, nil
}

func displayName(f File) string {
	if f.NewPath != "" {
		return f.NewPath
	}
	return f.OldPath
}

func gitMode(mode uint32) uint32 {
	if mode == 0 {
		return 0o100644
	}
	if mode&0o170000 == 0 {
		return 0o100000 | mode&0o777
	}
	return mode
}

// lineEdits diffs before against after line by line.
func lineEdits(before, after []byte) []edit {
	a, b := diffText(before), diffText(after)
	dmp := diffmatchpatch.New()
	ca, cb, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(ca, cb, false), lines)

	var edits []edit
	for _, d := range diffs {
		kind := byte(' ')
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			kind = '-'
		case diffmatchpatch.DiffInsert:
			kind = '+'
		}
		for _, l := range strings.SplitAfter(d.Text, "\n") {
			if l == "" {
				continue
			}
			l = strings.TrimSuffix(l, "\n")
			text, eof := strings.CutSuffix(l, eofMark)
			edits = append(edits, edit{kind: kind, text: text, eof: eof})
		}
	}
	return edits
}

// diffText joins the lines of data with LF, tagging a final unterminated line.
func diffText(data []byte) string {
	lines, trailing := fs.SplitLines(data)
	if len(lines) == 0 {
		return ""
	}
	var b strings.Builder
	for i, l := range lines {
		b.WriteString(l)
		if i == len(lines)-1 && !trailing {
			b.WriteString(eofMark)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// buildHunks groups edits into hunks, merging changes separated by at most
// 2*context unchanged lines.
func buildHunks(edits []edit, context int) []*godiff.Hunk {
	oldPos := make([]int, len(edits)+1)
	newPos := make([]int, len(edits)+1)
	for i, e := range edits {
		oldPos[i+1], newPos[i+1] = oldPos[i], newPos[i]
		if e.kind != '+' {
			oldPos[i+1]++
		}
		if e.kind != '-' {
			newPos[i+1]++
		}
	}

	var hunks []*godiff.Hunk
	for i := 0; i < len(edits); {
		if edits[i].kind == ' ' {
			i++
			continue
		}
		start := max(i-context, 0)
		last := i
		for j := i + 1; j < len(edits) && j-last <= 2*context+1; j++ {
			if edits[j].kind != ' ' {
				last = j
			}
		}
		end := min(last+context+1, len(edits))
		hunks = append(hunks, renderHunk(edits[start:end], oldPos[start], newPos[start]))
		i = end
	}
	return hunks
}

func renderHunk(edits []edit, oldStart, newStart int) *godiff.Hunk {
	var body bytes.Buffer
	var oldLines, newLines int32
	for _, e := range edits {
		if e.kind != '+' {
			oldLines++
		}
		if e.kind != '-' {
			newLines++
		}
		body.WriteByte(e.kind)
		body.WriteString(e.text)
		body.WriteByte('\n')
		if e.eof {
			body.WriteString(noNewlineMarker)
		}
	}
	h := &godiff.Hunk{
		OrigStartLine: int32(oldStart) + 1,
		OrigLines:     oldLines,
		NewStartLine:  int32(newStart) + 1,
		NewLines:      newLines,
		Body:          body.Bytes(),
	}
	if oldLines == 0 {
		h.OrigStartLine--
	}
	if newLines == 0 {
		h.NewStartLine--
	}
	return h
}
