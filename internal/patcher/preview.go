// Package patcher simulates a parsed patch in memory. Nothing here writes
// to disk.
package patcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/sokinpui/patchstudio/internal/fs"
	"github.com/sokinpui/patchstudio/internal/preflight"
	"github.com/sokinpui/patchstudio/model"
)

// HunkStatus is the outcome of simulating one hunk.
type HunkStatus int

const (
	HunkApplied HunkStatus = iota
	HunkAppliedFuzzy
	// HunkConflictMarked means the hunk did not match and markers were written.
	HunkConflictMarked
	// HunkConflict means the hunk did not match and the file failed.
	HunkConflict
)

func (s HunkStatus) String() string {
	switch s {
	case HunkAppliedFuzzy:
		return "applied-fuzzy"
	case HunkConflictMarked:
		return "conflict-marked"
	case HunkConflict:
		return "conflict"
	default:
		return "applied"
	}
}

// HunkOutcome describes where and how a hunk was applied.
type HunkOutcome struct {
	Index  int
	Status HunkStatus
	// Expected and Line are 1-based; Line is where the hunk landed.
	Expected int
	Line     int
	Offset   int
	Err      error
	// ExpectedLines and ActualLines are short excerpts for conflict diagnostics.
	ExpectedLines []string
	ActualLines   []string
}

// FileResult is the simulated outcome for one FileChange.
type FileResult struct {
	Change *model.FileChange
	Entry  preflight.Entry
	Source string
	Target string

	// Original is the source content the simulation started from.
	Original   []byte
	SourceHash string
	// Content is the bytes to write to Target. Nil for deletes.
	Content []byte
	Mode    os.FileMode

	Hunks       []HunkOutcome
	HasConflict bool
	Failed      bool
	Skipped     bool
	Err         error
}

// Fuzzy reports whether any hunk landed away from its declared position.
func (fr *FileResult) Fuzzy() bool {
	for _, h := range fr.Hunks {
		if h.Status == HunkAppliedFuzzy {
			return true
		}
	}
	return false
}

// Status summarizes a whole preview.
type Status int

const (
	StatusClean Status = iota
	StatusHasConflicts
	StatusHasBlocked
)

func (s Status) String() string {
	switch s {
	case StatusHasConflicts:
		return "has-conflicts"
	case StatusHasBlocked:
		return "has-blocked"
	default:
		return "clean"
	}
}

// Result is a complete dry run.
type Result struct {
	Files  []FileResult
	Report *preflight.Report
	Config model.Config

	AnyConflict bool
	AnyBlocked  bool
	AnyFuzzy    bool
	Status      Status
}

type options struct {
	logger *slog.Logger
}

// Option configures Preview.
type Option func(*options)

// WithLogger sets the logger for per-hunk diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Preview simulates every Ok entry of report. Other entries pass through as
// skipped. The result depends only on file contents, doc and cfg.
func Preview(ctx context.Context, fsys fs.FS, doc *model.PatchDocument, report *preflight.Report, cfg model.Config, opts ...Option) (*Result, error) {
	o := options{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}

	res := &Result{Report: report, Config: cfg, Files: make([]FileResult, 0, len(doc.Files))}
	sim := &simulator{fsys: fsys, cfg: cfg, m: newMatcher(cfg), docEOL: doc.EOL, logger: o.logger}

	for _, fc := range doc.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry, ok := report.Lookup(fc)
		if !ok {
			return nil, fmt.Errorf("no preflight entry for %s", fc.DisplayPath())
		}
		fr := FileResult{Change: fc, Entry: *entry, Source: entry.Source, Target: entry.Target}
		if !entry.Ok() {
			fr.Skipped = true
			fr.Err = entry.Err
			if !entry.Omitted {
				res.AnyBlocked = true
			}
		} else {
			sim.simulate(&fr)
		}

		if fr.Failed {
			res.AnyBlocked = true
		}
		if fr.HasConflict {
			res.AnyConflict = true
		}
		if fr.Fuzzy() {
			res.AnyFuzzy = true
		}
		res.Files = append(res.Files, fr)
	}

	switch {
	case res.AnyBlocked:
		res.Status = StatusHasBlocked
	case res.AnyConflict:
		res.Status = StatusHasConflicts
	default:
		res.Status = StatusClean
	}
	o.logger.Info("preview complete",
		"files", len(res.Files),
		"status", res.Status.String(),
		"fuzzy", res.AnyFuzzy)
	return res, nil
}

type simulator struct {
	fsys   fs.FS
	cfg    model.Config
	m      matcher
	docEOL string
	logger *slog.Logger
}

func (s *simulator) simulate(fr *FileResult) {
	fc := fr.Change

	if fc.Operation == model.OpCreate {
		fr.Mode = fs.PermFromGitMode(fc.NewMode)
		s.applyHunks(fr, nil, s.docEOL)
		return
	}

	original, err := s.fsys.ReadFile(fr.Source)
	if err != nil {
		fr.Failed = true
		fr.Err = fmt.Errorf("read %s: %w", fr.Source, err)
		return
	}
	info, err := s.fsys.Stat(fr.Source)
	if err != nil {
		fr.Failed = true
		fr.Err = fmt.Errorf("stat %s: %w", fr.Source, err)
		return
	}
	fr.Original = original
	fr.SourceHash = fs.HashBytes(original)
	fr.Mode = info.Mode().Perm()
	if fc.NewMode != 0 {
		fr.Mode = fs.PermFromGitMode(fc.NewMode)
	}

	switch {
	case fc.Operation == model.OpDelete:
		return
	case len(fc.Hunks) == 0:
		fr.Content = original
		return
	}

	eol := s.docEOL
	if s.cfg.PreserveLineEndings {
		eol = fs.DetectEOL(original)
	}
	s.applyHunks(fr, original, eol)
}

// applyHunks runs every hunk of fr.Change against original and renders the
// result with eol.
func (s *simulator) applyHunks(fr *FileResult, original []byte, eol string) {
	fc := fr.Change
	lines, trailing := fs.SplitLines(original)
	if len(lines) == 0 {
		// An empty file gains a final newline unless a hunk says otherwise.
		trailing = true
	}
	delta := 0

	for i := range fc.Hunks {
		h := &fc.Hunks[i]
		old, repl := h.OldSide(), h.NewSide()

		expected := h.OldStart - 1
		if h.OldCount == 0 {
			expected = h.OldStart
		}
		expected += delta
		expected = max(0, min(expected, len(lines)))

		out := HunkOutcome{Index: i, Expected: expected + 1}
		pos, ok := s.m.locate(lines, old, expected)
		if ok {
			out.Line = pos + 1
			out.Offset = pos - expected
			out.Status = HunkApplied
			if out.Offset != 0 {
				out.Status = HunkAppliedFuzzy
				s.logger.Debug("hunk applied with offset",
					"path", fc.DisplayPath(), "hunk", i+1, "offset", out.Offset)
			}
			touchesEOF := pos+len(old) == len(lines)
			lines = splice(lines, pos, h)
			delta += len(repl) - len(old)
			if touchesEOF {
				switch {
				case h.NewNoNewline:
					trailing = false
				case h.OldNoNewline:
					trailing = true
				}
			}
			fr.Hunks = append(fr.Hunks, out)
			continue
		}

		out.Line = expected + 1
		out.ExpectedLines = excerpt(old, 0, 5)
		out.ActualLines = excerpt(lines, expected-2, expected+3)
		out.Err = &model.ConflictError{Path: fc.DisplayPath(), HunkIndex: i, Line: expected + 1}
		s.logger.Debug("hunk conflict", "path", fc.DisplayPath(), "hunk", i+1, "line", expected+1)

		if !s.cfg.AllowConflictedOutput {
			out.Status = HunkConflict
			fr.Failed = true
			if fr.Err == nil {
				fr.Err = out.Err
			}
			fr.Hunks = append(fr.Hunks, out)
			continue
		}

		end := min(expected+len(old), len(lines))
		block := conflictBlock(s.cfg.ConflictMarkerMode, lines[expected:end], h)
		lines = replaceRange(lines, expected, end, block)
		delta += len(block) - (end - expected)
		out.Status = HunkConflictMarked
		fr.HasConflict = true
		fr.Hunks = append(fr.Hunks, out)
	}

	if fr.Failed {
		fr.Content = nil
		return
	}
	fr.Content = fs.JoinLines(lines, eol, trailing)
}

// splice replaces the matched window with the hunk's new side. Context lines
// keep the file's own text so whitespace-insensitive matches do not rewrite
// them.
func splice(lines []string, pos int, h *model.Hunk) []string {
	mid := make([]string, 0, len(h.Lines))
	k := pos
	for _, l := range h.Lines {
		switch l.Kind {
		case model.LineContext:
			mid = append(mid, lines[k])
			k++
		case model.LineRemove:
			k++
		case model.LineAdd:
			mid = append(mid, l.Text)
		}
	}
	return replaceRange(lines, pos, k, mid)
}

func replaceRange(lines []string, start, end int, repl []string) []string {
	out := make([]string, 0, len(lines)-(end-start)+len(repl))
	out = append(out, lines[:start]...)
	out = append(out, repl...)
	out = append(out, lines[end:]...)
	return out
}

func excerpt(lines []string, from, to int) []string {
	from = max(0, from)
	to = min(len(lines), to)
	if from >= to {
		return nil
	}
	return append([]string(nil), lines[from:to]...)
}
