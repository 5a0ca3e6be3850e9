// Package preflight validates parsed changes against the project root and
// the current state of the filesystem before anything is simulated.
package preflight

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sokinpui/patchstudio/internal/fs"
	"github.com/sokinpui/patchstudio/model"
)

// Status is the outcome of validating one FileChange.
type Status int

const (
	StatusOk Status = iota
	StatusOutsideRoot
	StatusMissingTarget
	StatusTargetExists
	StatusUnsupportedBinary
	StatusGatedOperation
)

func (s Status) String() string {
	switch s {
	case StatusOutsideRoot:
		return "outside-root"
	case StatusMissingTarget:
		return "missing-target"
	case StatusTargetExists:
		return "target-exists"
	case StatusUnsupportedBinary:
		return "unsupported-binary"
	case StatusGatedOperation:
		return "gated-operation"
	default:
		return "ok"
	}
}

// Verdict aggregates every entry of a report.
type Verdict int

const (
	VerdictClear Verdict = iota
	VerdictBlocked
	VerdictOverridable
)

func (v Verdict) String() string {
	switch v {
	case VerdictBlocked:
		return "blocked"
	case VerdictOverridable:
		return "overridable"
	default:
		return "clear"
	}
}

// Entry is the validation result for one FileChange.
type Entry struct {
	Change *model.FileChange
	Status Status
	// Source is the root-relative file the change reads; empty for creates.
	Source string
	// Target is the root-relative file the change writes; empty for deletes.
	Target string
	// Omitted marks binary changes skipped by SkipUnsupportedBinary.
	Omitted bool
	Err     error
}

// Ok reports whether the entry may be simulated and applied.
func (e *Entry) Ok() bool { return e.Status == StatusOk }

// Report holds one Entry per FileChange, in document order.
type Report struct {
	Entries []Entry
	Verdict Verdict

	index map[*model.FileChange]int
}

// Lookup returns the entry for fc.
func (r *Report) Lookup(fc *model.FileChange) (*Entry, bool) {
	i, ok := r.index[fc]
	if !ok {
		return nil, false
	}
	return &r.Entries[i], true
}

// Issues returns the entries that are not Ok.
func (r *Report) Issues() []Entry {
	var out []Entry
	for _, e := range r.Entries {
		if e.Status != StatusOk {
			out = append(out, e)
		}
	}
	return out
}

type options struct {
	logger      *slog.Logger
	concurrency int
}

// Option configures Run.
type Option func(*options)

// WithLogger sets the logger used for per-entry diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithConcurrency bounds the number of concurrent existence checks.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// fileState is the result of one existence check.
type fileState struct {
	exists  bool
	regular bool
}

// Run validates every change in doc. Existence checks run concurrently, but
// statuses are assigned sequentially so that earlier deletes and renames can
// free a path for later creates.
func Run(ctx context.Context, fsys fs.FS, doc *model.PatchDocument, cfg model.Config, opts ...Option) (*Report, error) {
	o := options{logger: slog.New(slog.DiscardHandler), concurrency: 8}
	for _, opt := range opts {
		opt(&o)
	}

	states, err := statAll(ctx, fsys, doc, o.concurrency)
	if err != nil {
		return nil, err
	}

	v := &validator{
		root:     fsys.Root(),
		cfg:      cfg,
		states:   states,
		vacated:  make(map[string]bool),
		occupied: make(map[string]bool),
	}
	report := &Report{
		Entries: make([]Entry, 0, len(doc.Files)),
		index:   make(map[*model.FileChange]int, len(doc.Files)),
	}
	for _, fc := range doc.Files {
		e := v.check(fc)
		report.index[fc] = len(report.Entries)
		report.Entries = append(report.Entries, e)
		o.logger.Debug("preflight entry",
			"path", fc.DisplayPath(),
			"operation", fc.Operation.String(),
			"status", e.Status.String(),
			"omitted", e.Omitted)
	}
	report.Verdict = verdict(report.Entries, cfg)
	o.logger.Info("preflight complete",
		"files", len(report.Entries),
		"issues", len(report.Issues()),
		"verdict", report.Verdict.String())
	return report, nil
}

func verdict(entries []Entry, cfg model.Config) Verdict {
	fatal := false
	for _, e := range entries {
		switch {
		case e.Status == StatusOutsideRoot:
			return VerdictBlocked
		case e.Status != StatusOk && !e.Omitted:
			fatal = true
		}
	}
	if !fatal {
		return VerdictClear
	}
	if cfg.AllowPartialApply {
		return VerdictOverridable
	}
	return VerdictBlocked
}

// statAll checks every path any change might touch.
func statAll(ctx context.Context, fsys fs.FS, doc *model.PatchDocument, limit int) (map[string]fileState, error) {
	seen := make(map[string]bool)
	var paths []string
	for _, fc := range doc.Files {
		for _, p := range candidatePaths(fc) {
			if !seen[p] {
				seen[p] = true
				paths = append(paths, p)
			}
		}
	}

	results := make([]fileState, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			info, err := fsys.Stat(p)
			if err != nil {
				// Missing, unreadable and escaping paths all count as absent.
				return nil
			}
			results[i] = fileState{exists: true, regular: info.Mode().IsRegular()}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	states := make(map[string]fileState, len(paths))
	for i, p := range paths {
		states[p] = results[i]
	}
	return states, nil
}

func candidatePaths(fc *model.FileChange) []string {
	var out []string
	for _, p := range []string{fc.NewPath, fc.OldPath} {
		if p == "" || p == model.DevNull {
			continue
		}
		out = append(out, p)
		if s := stripFirst(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// stripFirst removes the leading path component, as patch -p1 would.
func stripFirst(p string) string {
	i := strings.IndexByte(p, '/')
	if i < 0 || i == len(p)-1 {
		return ""
	}
	return p[i+1:]
}
