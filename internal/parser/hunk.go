package parser

import (
	"fmt"
	"strings"

	"github.com/sokinpui/patchstudio/internal/normalizer"
	"github.com/sokinpui/patchstudio/model"
)

// parseHunks reads every hunk in lines. On error it also returns the index
// of the offending line.
func parseHunks(lines []string, file string) ([]model.Hunk, int, error) {
	var hunks []model.Hunk
	i := 0
	for i < len(lines) {
		line := lines[i]
		h, ok := normalizer.ParseHunkHeader(line)
		if !ok {
			if len(hunks) > 0 && isBodyLine(line) {
				if signature(lines, i) {
					return hunks, i, nil
				}
				if blankTail(lines, i) {
					i++
					continue
				}
				last := &hunks[len(hunks)-1]
				oldExtra, newExtra := countExtra(lines[i:])
				return nil, i, &model.HunkCountMismatchError{
					File: file, HunkIndex: len(hunks) - 1,
					OldWant: last.OldCount, OldGot: last.OldCount + oldExtra,
					NewWant: last.NewCount, NewGot: last.NewCount + newExtra,
				}
			}
			i++
			continue
		}
		next, err := readBody(lines, i+1, &h, file, len(hunks))
		if err != nil {
			return nil, next, err
		}
		hunks = append(hunks, h)
		i = next
	}
	return hunks, i, nil
}

// readBody consumes hunk body lines starting at lines[i] until both header
// counts are satisfied, then one trailing no-newline marker if present.
func readBody(lines []string, i int, h *model.Hunk, file string, index int) (int, error) {
	oldLeft, newLeft := h.OldCount, h.NewCount
	mismatch := func() error {
		return &model.HunkCountMismatchError{
			File: file, HunkIndex: index,
			OldWant: h.OldCount, OldGot: h.OldCount - oldLeft,
			NewWant: h.NewCount, NewGot: h.NewCount - newLeft,
		}
	}
	for oldLeft > 0 || newLeft > 0 {
		if i >= len(lines) {
			return i, mismatch()
		}
		line := lines[i]
		if strings.HasPrefix(line, `\`) {
			if err := markNoNewline(h); err != nil {
				return i, err
			}
			i++
			continue
		}
		kind, text, ok := classify(line)
		if !ok {
			return i, mismatch()
		}
		switch kind {
		case model.LineContext:
			oldLeft--
			newLeft--
		case model.LineRemove:
			oldLeft--
		case model.LineAdd:
			newLeft--
		}
		if oldLeft < 0 || newLeft < 0 {
			return i, mismatch()
		}
		h.Lines = append(h.Lines, model.Line{Kind: kind, Text: text})
		i++
	}
	if i < len(lines) && strings.HasPrefix(lines[i], `\`) {
		if err := markNoNewline(h); err != nil {
			return i, err
		}
		i++
	}
	return i, nil
}

func classify(line string) (model.LineKind, string, bool) {
	if line == "" {
		return model.LineContext, "", true
	}
	switch line[0] {
	case ' ':
		return model.LineContext, line[1:], true
	case '-':
		return model.LineRemove, line[1:], true
	case '+':
		return model.LineAdd, line[1:], true
	}
	return 0, "", false
}

// markNoNewline applies a "\ No newline at end of file" marker to the line
// before it.
func markNoNewline(h *model.Hunk) error {
	if len(h.Lines) == 0 {
		return fmt.Errorf("no-newline marker without a preceding line")
	}
	switch h.Lines[len(h.Lines)-1].Kind {
	case model.LineRemove:
		h.OldNoNewline = true
	case model.LineAdd:
		h.NewNoNewline = true
	default:
		h.OldNoNewline = true
		h.NewNoNewline = true
	}
	return nil
}

func isBodyLine(line string) bool {
	_, _, ok := classify(line)
	return ok
}

// signature reports whether lines[i] starts a mail signature ("-- ").
func signature(lines []string, i int) bool {
	return lines[i] == "-- "
}

// blankTail reports whether lines[i:] up to the next non-body line are all
// empty. Blank separators between sections are not body lines.
func blankTail(lines []string, i int) bool {
	for ; i < len(lines); i++ {
		if lines[i] != "" {
			return !isBodyLine(lines[i])
		}
	}
	return true
}

func countExtra(lines []string) (oldExtra, newExtra int) {
	for _, line := range lines {
		kind, _, ok := classify(line)
		if !ok {
			break
		}
		switch kind {
		case model.LineContext:
			oldExtra++
			newExtra++
		case model.LineRemove:
			oldExtra++
		case model.LineAdd:
			newExtra++
		}
	}
	return oldExtra, newExtra
}
