// Package normalizer canonicalizes raw patch text and splits it into
// per-file segments.
package normalizer

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf16"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/sokinpui/patchstudio/internal/fs"
	"github.com/sokinpui/patchstudio/model"
)

var (
	utf8BOM    = []byte{0xEF, 0xBB, 0xBF}
	utf16LEBOM = []byte{0xFF, 0xFE}
	utf16BEBOM = []byte{0xFE, 0xFF}

	hunkHeaderRegex = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@(.*)$`)
)

// Segment is the raw text of one file's section of a diff.
type Segment struct {
	Dialect model.Dialect
	// Offset is the byte offset of the first line in Document.Text.
	Offset int
	// Line is the 1-based line number of the first line.
	Line  int
	Lines []string
}

// Document is normalized patch text: LF line endings, no byte-order mark.
type Document struct {
	Text     string
	EOL      string
	Segments []Segment

	// lineStarts holds the raw input offset of each line of Text.
	lineStarts []int
	rawLen     int
}

// RawOffset returns the byte offset in the raw input of the 1-based line of
// Text. Lines past the end map to the input length.
func (d *Document) RawOffset(line int) int {
	if line < 1 || line > len(d.lineStarts) {
		return d.rawLen
	}
	return d.lineStarts[line-1]
}

// Normalize strips byte-order marks, converts line endings to LF, records
// the dominant line ending and splits the text into file segments. Lines
// inside a hunk body are never treated as segment boundaries.
func Normalize(raw []byte) (*Document, error) {
	data, wide, err := decode(raw)
	if err != nil {
		return nil, err
	}
	eol := fs.DetectEOL(data)
	// A lone CR is content, not a terminator.
	text := strings.ReplaceAll(string(data), "\r\n", "\n")

	doc := &Document{Text: text, EOL: eol, rawLen: len(raw)}
	prefix := len(raw) - len(data)
	if wide {
		prefix = len(utf16LEBOM)
	}
	doc.lineStarts = rawLineStarts(data, prefix, wide)
	lines := strings.Split(text, "\n")
	if n := len(lines); lines[n-1] == "" {
		lines = lines[:n-1]
	}
	doc.Segments = split(lines)
	if len(doc.Segments) == 0 {
		return nil, &model.UnrecognizedFormatError{}
	}
	return doc, nil
}

// decode strips a byte-order mark and converts UTF-16 input to UTF-8. wide
// reports that the input was UTF-16.
func decode(raw []byte) (data []byte, wide bool, err error) {
	switch {
	case bytes.HasPrefix(raw, utf8BOM):
		return raw[len(utf8BOM):], false, nil
	case bytes.HasPrefix(raw, utf16LEBOM), bytes.HasPrefix(raw, utf16BEBOM):
		dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
		out, _, err := transform.Bytes(dec, raw)
		if err != nil {
			return nil, true, fmt.Errorf("decode utf-16 patch: %w", err)
		}
		return out, true, nil
	}
	return raw, false, nil
}

// rawLineStarts maps each LF-separated line of data back to its byte offset
// in the raw input, which starts after prefix bytes of byte-order mark.
func rawLineStarts(data []byte, prefix int, wide bool) []int {
	starts := []int{prefix}
	pos := prefix
	if !wide {
		for i, b := range data {
			if b == '\n' && i+1 < len(data) {
				starts = append(starts, pos+i+1)
			}
		}
		return starts
	}
	text := string(data)
	for i, r := range text {
		pos += 2 * max(1, utf16.RuneLen(r))
		if r == '\n' && i+1 < len(text) {
			starts = append(starts, pos)
		}
	}
	return starts
}

// splitter tracks the segment being built while scanning lines.
type splitter struct {
	segments []Segment
	cur      *Segment
	// inHeader is true until the current segment's ---/+++ pair or first hunk.
	inHeader bool
	oldLeft  int
	newLeft  int

	// gitPaths is the operand of the current "diff --git" line.
	gitPaths string
	// preamble is true while an Index segment has seen only its "Index:"
	// and "====" lines.
	preamble bool
}

func split(lines []string) []Segment {
	s := &splitter{}
	offset := 0
	for i, line := range lines {
		if s.inBody() {
			s.consumeBody(line)
			s.cur.Lines = append(s.cur.Lines, line)
			offset += len(line) + 1
			continue
		}
		if d, ok := s.boundary(lines, i); ok {
			s.start(d, offset, i+1, line)
		}
		if s.cur != nil {
			s.observe(line)
			s.cur.Lines = append(s.cur.Lines, line)
		}
		offset += len(line) + 1
	}
	s.flush()
	return s.segments
}

func (s *splitter) inBody() bool {
	return s.cur != nil && (s.oldLeft > 0 || s.newLeft > 0)
}

// consumeBody counts a hunk body line. A line that cannot be part of a body
// ends tracking early so that the next boundary is still recognized; the
// parser reports the count mismatch.
func (s *splitter) consumeBody(line string) {
	if line == "" {
		s.oldLeft--
		s.newLeft--
		return
	}
	switch line[0] {
	case ' ':
		s.oldLeft--
		s.newLeft--
	case '-':
		s.oldLeft--
	case '+':
		s.newLeft--
	case '\\':
	default:
		s.oldLeft, s.newLeft = 0, 0
	}
	if s.oldLeft < 0 || s.newLeft < 0 {
		s.oldLeft, s.newLeft = 0, 0
	}
}

// observe updates header and hunk state for a line outside any hunk body.
func (s *splitter) observe(line string) {
	if s.preamble && !strings.HasPrefix(line, "Index: ") && !strings.HasPrefix(line, "====") {
		s.preamble = false
	}
	if strings.HasPrefix(line, "+++ ") || strings.HasPrefix(line, "Binary files ") ||
		strings.HasPrefix(line, "GIT binary patch") {
		s.inHeader = false
		return
	}
	if h, ok := ParseHunkHeader(line); ok {
		s.inHeader = false
		s.oldLeft, s.newLeft = h.OldCount, h.NewCount
	}
}

func (s *splitter) start(d model.Dialect, offset, line int, text string) {
	s.flush()
	s.cur = &Segment{Dialect: d, Offset: offset, Line: line}
	s.inHeader = true
	s.oldLeft, s.newLeft = 0, 0
	s.gitPaths = strings.TrimPrefix(text, "diff --git ")
	s.preamble = d == model.DialectIndexFormat
}

func (s *splitter) flush() {
	if s.cur == nil {
		return
	}
	s.segments = append(s.segments, *s.cur)
	s.cur = nil
}

// boundary reports whether lines[i] starts a new segment.
func (s *splitter) boundary(lines []string, i int) (model.Dialect, bool) {
	line := lines[i]
	switch {
	case strings.HasPrefix(line, "diff --git "):
		return model.DialectGitExtended, true
	case strings.HasPrefix(line, "Index: "):
		return model.DialectIndexFormat, true
	case strings.HasPrefix(line, "--- "):
		if i+1 < len(lines) && strings.HasPrefix(lines[i+1], "+++ ") && !s.ownsFileHeaders(line, lines[i+1]) {
			return model.DialectClassicUnified, true
		}
	}
	return 0, false
}

// ownsFileHeaders reports whether a ---/+++ pair is the file header of the
// current git or Index segment. A git segment owns the pair only when both
// paths appear in its "diff --git" line; an Index segment only directly
// after its preamble. Anything else starts a classic segment, so a rename
// or binary section without file headers never swallows the next file.
func (s *splitter) ownsFileHeaders(oldLine, newLine string) bool {
	if s.cur == nil || !s.inHeader {
		return false
	}
	switch s.cur.Dialect {
	case model.DialectGitExtended:
		return s.gitOwns(headerPath(oldLine)) && s.gitOwns(headerPath(newLine))
	case model.DialectIndexFormat:
		return s.preamble
	}
	return false
}

func (s *splitter) gitOwns(p string) bool {
	if p == model.DevNull {
		return true
	}
	rest := s.gitPaths
	for from := 0; ; {
		j := strings.Index(rest[from:], p)
		if j < 0 {
			return false
		}
		j += from
		end := j + len(p)
		if (j == 0 || rest[j-1] == ' ') && (end == len(rest) || rest[end] == ' ') {
			return true
		}
		from = j + 1
	}
}

// headerPath returns the path of a "--- "/"+++ " line without timestamp.
func headerPath(line string) string {
	p := line[4:]
	if i := strings.IndexByte(p, '\t'); i >= 0 {
		p = p[:i]
	}
	return strings.TrimRight(p, " ")
}

// ParseHunkHeader parses "@@ -a[,b] +c[,d] @@[section]". Missing counts
// default to 1. The returned hunk has no body.
func ParseHunkHeader(line string) (model.Hunk, bool) {
	m := hunkHeaderRegex.FindStringSubmatch(line)
	if m == nil {
		return model.Hunk{}, false
	}
	h := model.Hunk{
		OldStart: atoi(m[1], 0),
		OldCount: atoi(m[2], 1),
		NewStart: atoi(m[3], 0),
		NewCount: atoi(m[4], 1),
		Section:  strings.TrimSpace(m[5]),
	}
	return h, true
}

func atoi(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
