package model

import (
	"strconv"
	"strings"
)

// DevNull is the placeholder path used by diffs for a missing side.
const DevNull = "/dev/null"

// Dialect identifies the header syntax of a diff segment.
type Dialect int

const (
	DialectClassicUnified Dialect = iota
	DialectGitExtended
	DialectIndexFormat
	// DialectMixed is only used for documents whose segments disagree.
	DialectMixed
)

func (d Dialect) String() string {
	switch d {
	case DialectGitExtended:
		return "git"
	case DialectIndexFormat:
		return "index"
	case DialectMixed:
		return "mixed"
	default:
		return "classic"
	}
}

// Operation is the kind of change a FileChange describes.
type Operation int

const (
	OpModify Operation = iota
	OpCreate
	OpDelete
	OpRename
	OpModeChange
)

func (o Operation) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpDelete:
		return "delete"
	case OpRename:
		return "rename"
	case OpModeChange:
		return "mode-change"
	default:
		return "modify"
	}
}

// Destructive reports whether applying the operation overwrites or removes
// existing content, and therefore needs a backup first.
func (o Operation) Destructive() bool {
	return o != OpCreate
}

// Gated reports whether the operation needs explicit consent in Config.
func (o Operation) Gated() bool {
	return o == OpRename || o == OpDelete || o == OpModeChange
}

// LineKind classifies a hunk body line.
type LineKind int

const (
	LineContext LineKind = iota
	LineAdd
	LineRemove
)

// Line is one hunk body line without its prefix character.
type Line struct {
	Kind LineKind
	Text string
}

// Hunk is one contiguous block of a diff.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	// Section is the optional text following the closing "@@".
	Section string
	Lines   []Line

	OldNoNewline bool
	NewNoNewline bool
}

// OldSide returns the lines the hunk expects to find (context and removals).
func (h *Hunk) OldSide() []string {
	out := make([]string, 0, h.OldCount)
	for _, l := range h.Lines {
		if l.Kind != LineAdd {
			out = append(out, l.Text)
		}
	}
	return out
}

// NewSide returns the lines the hunk produces (context and additions).
func (h *Hunk) NewSide() []string {
	out := make([]string, 0, h.NewCount)
	for _, l := range h.Lines {
		if l.Kind != LineRemove {
			out = append(out, l.Text)
		}
	}
	return out
}

// Header renders the hunk header line.
func (h *Hunk) Header() string {
	var b strings.Builder
	b.WriteString("@@ -")
	writeRange(&b, h.OldStart, h.OldCount)
	b.WriteString(" +")
	writeRange(&b, h.NewStart, h.NewCount)
	b.WriteString(" @@")
	if h.Section != "" {
		b.WriteString(" ")
		b.WriteString(h.Section)
	}
	return b.String()
}

func writeRange(b *strings.Builder, start, count int) {
	b.WriteString(strconv.Itoa(start))
	if count != 1 {
		b.WriteString(",")
		b.WriteString(strconv.Itoa(count))
	}
}

// FileChange is the structured form of one file's section of a diff.
type FileChange struct {
	Operation Operation
	OldPath   string
	NewPath   string
	// OldMode and NewMode hold the git mode bits (e.g. 0100644); zero when absent.
	OldMode uint32
	NewMode uint32

	IsBinary     bool
	BinaryReason string

	Dialect Dialect
	// Offset is the byte offset of the file's segment in the raw input.
	Offset int
	Hunks  []Hunk
}

// DisplayPath is the path a human would use to refer to the change.
func (fc *FileChange) DisplayPath() string {
	if fc.NewPath == "" || fc.NewPath == DevNull {
		return fc.OldPath
	}
	return fc.NewPath
}

// PatchDocument is a fully parsed diff. It is never mutated after parsing.
type PatchDocument struct {
	Files   []*FileChange
	Dialect Dialect
	// EOL is the dominant line ending of the raw document ("\n" or "\r\n").
	EOL string
}

// TotalHunks returns the number of hunks across all files.
func (d *PatchDocument) TotalHunks() int {
	n := 0
	for _, f := range d.Files {
		n += len(f.Hunks)
	}
	return n
}

// Summary holds the results of an operation for display.
type Summary struct {
	Created    []string
	Modified   []string
	Deleted    []string
	Renamed    []string
	Skipped    []string
	Failed     []string
	RolledBack []string
	BackupDir  string
	Status     string
	Message    string
}
