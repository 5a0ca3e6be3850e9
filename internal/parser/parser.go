// Package parser turns normalized diff segments into structured file changes.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sokinpui/patchstudio/internal/normalizer"
	"github.com/sokinpui/patchstudio/model"
)

// headerParser reads the dialect-specific header of a segment into fc and
// returns the index of the first line after the header.
type headerParser interface {
	parseHeader(lines []string, fc *model.FileChange, h *headerInfo) (int, error)
}

// headerInfo carries header facts that only matter for operation inference.
type headerInfo struct {
	newFile bool
	deleted bool
	renamed bool
}

var headerParsers = map[model.Dialect]headerParser{
	model.DialectGitExtended:    gitHeader{},
	model.DialectIndexFormat:    indexHeader{},
	model.DialectClassicUnified: classicHeader{},
}

// Parse converts every segment of doc into a FileChange. The first failure
// aborts the whole document with a *model.ParseError.
func Parse(doc *normalizer.Document) (*model.PatchDocument, error) {
	out := &model.PatchDocument{EOL: doc.EOL}
	for i, seg := range doc.Segments {
		fc, err := parseSegment(doc, seg)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			out.Dialect = seg.Dialect
		} else if out.Dialect != seg.Dialect {
			out.Dialect = model.DialectMixed
		}
		out.Files = append(out.Files, fc)
	}
	return out, nil
}

// ParseBytes normalizes and parses raw patch text.
func ParseBytes(raw []byte) (*model.PatchDocument, error) {
	doc, err := normalizer.Normalize(raw)
	if err != nil {
		return nil, err
	}
	return Parse(doc)
}

func parseSegment(doc *normalizer.Document, seg normalizer.Segment) (*model.FileChange, error) {
	hp, ok := headerParsers[seg.Dialect]
	if !ok {
		return nil, fmt.Errorf("no header parser for dialect %s", seg.Dialect)
	}
	fc := &model.FileChange{Dialect: seg.Dialect, Offset: doc.RawOffset(seg.Line)}
	var info headerInfo

	next, err := hp.parseHeader(seg.Lines, fc, &info)
	if err != nil {
		return nil, segmentError(doc, seg, fc, next, err)
	}
	if !fc.IsBinary {
		hunks, at, err := parseHunks(seg.Lines[next:], fc.DisplayPath())
		if err != nil {
			return nil, segmentError(doc, seg, fc, next+at, err)
		}
		fc.Hunks = hunks
	}
	fc.Operation = inferOperation(fc, info)
	if fc.Operation == model.OpCreate {
		fc.OldPath = model.DevNull
	}
	if fc.Operation == model.OpDelete {
		fc.NewPath = model.DevNull
	}
	return fc, nil
}

func segmentError(doc *normalizer.Document, seg normalizer.Segment, fc *model.FileChange, idx int, err error) error {
	offset := doc.RawOffset(seg.Line + idx)
	file := fc.DisplayPath()
	if file == "" && len(seg.Lines) > 0 {
		file = seg.Lines[0]
	}
	return &model.ParseError{File: file, Offset: offset, Line: seg.Line + idx, Err: err}
}

func inferOperation(fc *model.FileChange, info headerInfo) model.Operation {
	switch {
	case info.newFile || fc.OldPath == model.DevNull:
		return model.OpCreate
	case info.deleted || fc.NewPath == model.DevNull:
		return model.OpDelete
	case info.renamed:
		return model.OpRename
	case fc.OldMode != 0 && fc.NewMode != 0 && fc.OldMode != fc.NewMode:
		return model.OpModeChange
	}
	return model.OpModify
}

// headerPath extracts the path of a "--- " or "+++ " line. The path ends at
// the first TAB; git-quoted paths are unquoted.
func headerPath(line, prefix string) string {
	rest := strings.TrimPrefix(line, prefix)
	if i := strings.IndexByte(rest, '\t'); i >= 0 {
		rest = rest[:i]
	}
	return unquote(strings.TrimRight(rest, " "))
}

func unquote(p string) string {
	if len(p) >= 2 && p[0] == '"' && p[len(p)-1] == '"' {
		if s, err := strconv.Unquote(p); err == nil {
			return s
		}
	}
	return p
}

func stripPrefix(p, prefix string) string {
	if p == model.DevNull {
		return p
	}
	if strings.HasPrefix(p, prefix) && len(p) > len(prefix) {
		return p[len(prefix):]
	}
	return p
}

func parseMode(s string) (uint32, error) {
	m, err := strconv.ParseUint(strings.TrimSpace(s), 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid file mode %q: %w", s, err)
	}
	return uint32(m), nil
}

// readFileHeaders reads a "--- " line at lines[i] and the "+++ " line that
// must follow it.
func readFileHeaders(lines []string, i int) (oldPath, newPath string, next int, err error) {
	if i+1 >= len(lines) || !strings.HasPrefix(lines[i+1], "+++ ") {
		return "", "", i, fmt.Errorf("%q is not followed by a +++ header", lines[i])
	}
	return headerPath(lines[i], "--- "), headerPath(lines[i+1], "+++ "), i + 2, nil
}
