// Package session owns one pipeline run: the loaded document, the config it
// is evaluated under, and the preflight and preview results derived from
// them. Stages run one at a time.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gofrs/flock"

	"github.com/sokinpui/patchstudio/internal/apply"
	"github.com/sokinpui/patchstudio/internal/fs"
	"github.com/sokinpui/patchstudio/internal/parser"
	"github.com/sokinpui/patchstudio/internal/patcher"
	"github.com/sokinpui/patchstudio/internal/preflight"
	"github.com/sokinpui/patchstudio/internal/state"
	"github.com/sokinpui/patchstudio/model"
)

// Session is the pipeline state machine for one project root.
type Session struct {
	fsys   fs.FS
	logger *slog.Logger

	// busy is held for the whole of a stage; a second caller fails fast.
	busy sync.Mutex

	mu         sync.Mutex
	cfg        model.Config
	generation uint64
	doc        *model.PatchDocument
	report     *preflight.Report
	reportGen  uint64
	preview    *patcher.Result
	previewGen uint64
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger passed down to every stage.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// New creates a session rooted at fsys. cfg must be valid.
func New(fsys fs.FS, cfg model.Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Session{fsys: fsys, cfg: cfg, logger: slog.New(slog.DiscardHandler), generation: 1}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the project root.
func (s *Session) Root() *fs.Root { return s.fsys.Root() }

// Config returns the current configuration.
func (s *Session) Config() model.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Document returns the loaded document, or nil.
func (s *Session) Document() *model.PatchDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

// Generation increases whenever the document or the config changes.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *Session) acquire() error {
	if !s.busy.TryLock() {
		return model.ErrBusy
	}
	return nil
}

// invalidate drops every derived result. Callers hold mu.
func (s *Session) invalidate() {
	s.generation++
	s.report, s.preview = nil, nil
}

// Load parses raw and makes it the current document.
func (s *Session) Load(raw []byte) (*model.PatchDocument, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.busy.Unlock()

	doc, err := parser.ParseBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("load patch: %w", err)
	}
	s.mu.Lock()
	s.doc = doc
	s.invalidate()
	s.mu.Unlock()
	s.logger.Info("patch loaded", "files", len(doc.Files), "hunks", doc.TotalHunks(), "dialect", doc.Dialect.String())
	return doc, nil
}

// SetConfig replaces the configuration and invalidates derived results.
func (s *Session) SetConfig(cfg model.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.busy.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.invalidate()
	return nil
}

// Preflight validates the loaded document against the root.
func (s *Session) Preflight(ctx context.Context) (*preflight.Report, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.busy.Unlock()
	return s.preflight(ctx)
}

func (s *Session) preflight(ctx context.Context) (*preflight.Report, error) {
	s.mu.Lock()
	doc, cfg, gen := s.doc, s.cfg, s.generation
	if s.report != nil && s.reportGen == gen {
		report := s.report
		s.mu.Unlock()
		return report, nil
	}
	s.mu.Unlock()
	if doc == nil {
		return nil, model.ErrNoDocument
	}

	report, err := preflight.Run(ctx, s.fsys, doc, cfg, preflight.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.report, s.reportGen = report, gen
	s.mu.Unlock()
	return report, nil
}

// Preview simulates the loaded document, running preflight first when its
// report is out of date. Nothing is written.
func (s *Session) Preview(ctx context.Context) (*patcher.Result, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.busy.Unlock()

	report, err := s.preflight(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	doc, cfg, gen := s.doc, s.cfg, s.generation
	s.mu.Unlock()

	res, err := patcher.Preview(ctx, s.fsys, doc, report, cfg, patcher.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.preview, s.previewGen = res, gen
	s.mu.Unlock()
	return res, nil
}

// Apply writes the current preview. It needs a preview computed for the
// current document and config, and holds a file lock in the backup directory
// so two processes cannot apply into the same root at once.
func (s *Session) Apply(ctx context.Context, opts ...apply.Option) (*apply.Transaction, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.busy.Unlock()

	s.mu.Lock()
	res, fresh := s.preview, s.preview != nil && s.previewGen == s.generation
	s.mu.Unlock()
	if !fresh {
		return nil, model.ErrNotPreviewed
	}

	store := state.New(s.fsys)
	if err := store.EnsureDir(); err != nil {
		return nil, &model.BackupFailureError{Path: state.BackupDirName, Err: err}
	}
	lock := flock.New(store.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire apply lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s is held by another process", model.ErrBusy, store.LockPath())
	}
	defer func() { _ = lock.Unlock() }()

	opts = append([]apply.Option{apply.WithLogger(s.logger)}, opts...)
	tx, err := apply.Apply(ctx, s.fsys, res, opts...)

	if tx != nil {
		// The tree was touched, so the preview no longer describes it.
		s.mu.Lock()
		s.preview, s.report = nil, nil
		s.mu.Unlock()
	}
	return tx, err
}
