package patcher

import (
	"strings"

	"github.com/sokinpui/patchstudio/model"
)

// matcher compares hunk lines with file lines under one configuration.
type matcher struct {
	ignoreWhitespace bool
	fuzzy            bool
	window           int
}

func newMatcher(cfg model.Config) matcher {
	w := cfg.FuzzWindow
	if w <= 0 {
		w = model.DefaultFuzzWindow
	}
	return matcher{ignoreWhitespace: cfg.IgnoreWhitespace, fuzzy: cfg.FuzzyApply, window: w}
}

// normalizeLineForMatching trims a line and collapses internal whitespace
// runs to a single space.
func normalizeLineForMatching(line string) string {
	return strings.Join(strings.Fields(line), " ")
}

// equal compares a hunk line with a file line. Trailing spaces and tabs
// never affect a match.
func (m matcher) equal(want, have string) bool {
	if m.ignoreWhitespace {
		return normalizeLineForMatching(want) == normalizeLineForMatching(have)
	}
	return strings.TrimRight(want, " \t") == strings.TrimRight(have, " \t")
}

// matchAt reports whether block matches lines starting at pos.
func (m matcher) matchAt(lines, block []string, pos int) bool {
	if pos < 0 || pos+len(block) > len(lines) {
		return false
	}
	for j, want := range block {
		if !m.equal(want, lines[pos+j]) {
			return false
		}
	}
	return true
}

// locate finds block at expected or, when fuzzy matching is on, at the
// nearest position within the window. For each distance d the position
// above (expected-d) is tried before the one below.
func (m matcher) locate(lines, block []string, expected int) (int, bool) {
	if m.matchAt(lines, block, expected) {
		return expected, true
	}
	if !m.fuzzy {
		return expected, false
	}
	for d := 1; d <= m.window; d++ {
		if m.matchAt(lines, block, expected-d) {
			return expected - d, true
		}
		if m.matchAt(lines, block, expected+d) {
			return expected + d, true
		}
	}
	return expected, false
}
