// Package apply writes a previewed patch to disk as one transaction:
// backups first, atomic writes, and journal-driven rollback on failure.
package apply

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/sokinpui/patchstudio/internal/fs"
	"github.com/sokinpui/patchstudio/internal/patcher"
	"github.com/sokinpui/patchstudio/internal/preflight"
	"github.com/sokinpui/patchstudio/internal/state"
	"github.com/sokinpui/patchstudio/model"
)

// Status is the final state of a transaction.
type Status int

const (
	StatusSuccess Status = iota
	StatusPartialSuccess
	StatusFailed
	StatusRolledBack
)

func (s Status) String() string {
	switch s {
	case StatusPartialSuccess:
		return "partial-success"
	case StatusFailed:
		return "failed"
	case StatusRolledBack:
		return "rolled-back"
	default:
		return "success"
	}
}

// BackupRecord is the saved original of a file, taken right before a
// destructive step.
type BackupRecord struct {
	Path string
	// BackupPath is the root-relative location of the stored copy.
	BackupPath string
	Timestamp  time.Time
	Content    []byte
	Mode       os.FileMode
}

// Op is one executed FileChange.
type Op struct {
	Operation model.Operation
	Source    string
	Target    string
	Backup    *BackupRecord
	// ResultHash is the SHA-256 of the bytes written to Target.
	ResultHash string
	Completed  bool
}

// Transaction records one apply run.
type Transaction struct {
	ID        string
	Timestamp time.Time
	Ops       []Op
	Status    Status
	// BackupDir is the root-relative run directory.
	BackupDir string

	Completed  []string
	RolledBack []string
	Failed     []string
	Skipped    []string
	Err        error
}

// Summary converts the transaction for display.
func (t *Transaction) Summary() model.Summary {
	s := model.Summary{
		Skipped:    t.Skipped,
		Failed:     t.Failed,
		RolledBack: t.RolledBack,
		BackupDir:  t.BackupDir,
		Status:     t.Status.String(),
	}
	for _, op := range t.Ops {
		if !op.Completed {
			continue
		}
		switch op.Operation {
		case model.OpCreate:
			s.Created = append(s.Created, op.Target)
		case model.OpDelete:
			s.Deleted = append(s.Deleted, op.Source)
		case model.OpRename:
			s.Renamed = append(s.Renamed, op.Source+" -> "+op.Target)
		default:
			s.Modified = append(s.Modified, op.Target)
		}
	}
	if t.Err != nil {
		s.Message = t.Err.Error()
	}
	return s
}

type options struct {
	logger      *slog.Logger
	now         func() time.Time
	skipBlocked bool
	progress    func(done, total int)
}

// Option configures Apply.
type Option func(*options)

// WithLogger sets the transaction logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock sets the clock used to name the backup run.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithProgress registers a callback invoked after each file is written.
func WithProgress(fn func(done, total int)) Option {
	return func(o *options) { o.progress = fn }
}

// WithSkipBlocked acknowledges that blocked and failed files are left out.
// It only takes effect together with AllowPartialApply.
func WithSkipBlocked() Option {
	return func(o *options) { o.skipBlocked = true }
}

// Apply executes res in document order. On failure the failing file is
// always restored; earlier files are restored too unless AllowPartialApply
// is set. The returned error is a *model.PartialApplyError in that case.
func Apply(ctx context.Context, fsys fs.FS, res *patcher.Result, opts ...Option) (*Transaction, error) {
	o := options{logger: slog.New(slog.DiscardHandler), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if res == nil || res.Report == nil {
		return nil, model.ErrNotPreviewed
	}
	cfg := res.Config
	if res.Report.Verdict == preflight.VerdictBlocked {
		return nil, fmt.Errorf("%w: preflight verdict is blocked", model.ErrBlocked)
	}
	if res.AnyBlocked && !(cfg.AllowPartialApply && o.skipBlocked) {
		return nil, fmt.Errorf("%w: preview has blocked or failed files", model.ErrBlocked)
	}

	now := o.now()
	run, err := state.New(fsys).NewRun(now)
	if err != nil {
		return nil, &model.BackupFailureError{Path: state.BackupDirName, Err: err}
	}

	tx := &Transaction{ID: uuid.NewString(), Timestamp: now, BackupDir: run.Dir}
	e := &executor{fsys: fsys, run: run, j: &journal{}, now: now, logger: o.logger}
	o.logger.Info("apply started", "transaction", tx.ID, "files", len(res.Files), "backup_dir", run.Dir)
	report := func(done int) {
		if o.progress != nil {
			o.progress(done, len(res.Files))
		}
	}
	report(0)

	for i := range res.Files {
		fr := &res.Files[i]
		name := fr.Change.DisplayPath()
		if fr.Skipped || fr.Failed {
			tx.Skipped = append(tx.Skipped, name)
			report(i + 1)
			continue
		}

		e.j.begin(name)
		op := Op{Operation: fr.Change.Operation, Source: fr.Source, Target: fr.Target}
		err := ctx.Err()
		if err == nil {
			err = e.applyFile(fr, &op)
		}
		if err != nil {
			tx.Ops = append(tx.Ops, op)
			e.fail(tx, name, err, cfg.AllowPartialApply)
			break
		}
		op.Completed = true
		tx.Ops = append(tx.Ops, op)
		tx.Completed = append(tx.Completed, name)
		o.logger.Debug("file applied", "path", name, "operation", op.Operation.String())
		report(i + 1)
	}

	if tx.Err == nil {
		tx.Status = StatusSuccess
		if len(tx.Skipped) > 0 {
			tx.Status = StatusPartialSuccess
		}
	}

	if err := run.WriteManifest(manifest(tx)); err != nil {
		o.logger.Warn("could not write backup manifest", "error", err)
		if tx.Err == nil {
			return tx, err
		}
	}
	o.logger.Info("apply finished", "transaction", tx.ID, "status", tx.Status.String())
	if tx.Err != nil {
		return tx, tx.Err
	}
	return tx, nil
}

type executor struct {
	fsys   fs.FS
	run    *state.Run
	j      *journal
	now    time.Time
	logger *slog.Logger
}

// fail rolls back after name failed and records the outcome on tx.
func (e *executor) fail(tx *Transaction, name string, cause error, keepCompleted bool) {
	perr := &model.PartialApplyError{Failed: []string{name}, Err: cause}
	e.logger.Warn("apply failed, rolling back", "path", name, "error", cause)

	if errs := e.j.last().replay(); len(errs) > 0 {
		perr.RollbackFailed = append(perr.RollbackFailed, name)
		e.logger.Error("rollback of failed file incomplete", "path", name, "error", errors.Join(errs...))
	}

	if keepCompleted {
		perr.RollbackSuppressed = true
		perr.Completed = append([]string(nil), tx.Completed...)
		tx.Status = StatusFailed
	} else {
		for _, g := range e.j.earlier() {
			if errs := g.replay(); len(errs) > 0 {
				perr.RollbackFailed = append(perr.RollbackFailed, g.path)
				e.logger.Error("rollback incomplete", "path", g.path, "error", errors.Join(errs...))
				continue
			}
			perr.RolledBack = append(perr.RolledBack, g.path)
		}
		for i := range tx.Ops {
			tx.Ops[i].Completed = false
		}
		tx.Completed = nil
		tx.RolledBack = perr.RolledBack
		tx.Status = StatusRolledBack
		if len(perr.RollbackFailed) > 0 {
			tx.Status = StatusFailed
		}
	}
	tx.Failed = perr.Failed
	tx.Err = perr
}

func (e *executor) applyFile(fr *patcher.FileResult, op *Op) error {
	switch fr.Change.Operation {
	case model.OpCreate:
		return e.create(fr, op)
	case model.OpDelete:
		return e.delete(fr, op)
	case model.OpRename:
		return e.rename(fr, op)
	default:
		return e.modify(fr, op)
	}
}

func (e *executor) modify(fr *patcher.FileResult, op *Op) error {
	rec, err := e.verifyAndBackup(fr)
	if err != nil {
		return err
	}
	op.Backup = rec
	e.j.push("restore "+fr.Target, func() error { return e.restore(fr.Target, rec) })
	op.ResultHash = fs.HashBytes(fr.Content)
	return e.fsys.WriteFileAtomic(fr.Target, fr.Content, fr.Mode)
}

func (e *executor) delete(fr *patcher.FileResult, op *Op) error {
	rec, err := e.verifyAndBackup(fr)
	if err != nil {
		return err
	}
	op.Backup = rec
	e.j.push("restore "+fr.Source, func() error { return e.restore(fr.Source, rec) })
	return e.fsys.Remove(fr.Source)
}

func (e *executor) create(fr *patcher.FileResult, op *Op) error {
	if err := e.writeNew(fr); err != nil {
		return err
	}
	op.ResultHash = fs.HashBytes(fr.Content)
	return nil
}

func (e *executor) rename(fr *patcher.FileResult, op *Op) error {
	rec, err := e.verifyAndBackup(fr)
	if err != nil {
		return err
	}
	op.Backup = rec
	if err := e.writeNew(fr); err != nil {
		return err
	}
	op.ResultHash = fs.HashBytes(fr.Content)
	e.j.push("restore "+fr.Source, func() error { return e.restore(fr.Source, rec) })
	return e.fsys.Remove(fr.Source)
}

// writeNew writes fr.Content to a target that must not exist yet, creating
// missing parent directories.
func (e *executor) writeNew(fr *patcher.FileResult) error {
	if _, err := e.fsys.Stat(fr.Target); err == nil {
		return &model.TargetExistsError{Path: fr.Target}
	} else if !errors.Is(err, iofs.ErrNotExist) {
		return err
	}

	created, err := e.fsys.MkdirAll(path.Dir(fr.Target))
	e.j.push("remove directories for "+fr.Target, func() error {
		for i := len(created) - 1; i >= 0; i-- {
			if err := e.fsys.RemoveDir(created[i]); err != nil && !errors.Is(err, iofs.ErrNotExist) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("create directories for %s: %w", fr.Target, err)
	}

	e.j.push("remove "+fr.Target, func() error {
		if err := e.fsys.Remove(fr.Target); err != nil && !errors.Is(err, iofs.ErrNotExist) {
			return err
		}
		return nil
	})
	return e.fsys.WriteFileAtomic(fr.Target, fr.Content, fr.Mode)
}

// restore puts rec back at rel. A file that already holds the original
// bytes and mode is left untouched.
func (e *executor) restore(rel string, rec *BackupRecord) error {
	if current, err := e.fsys.ReadFile(rel); err == nil && bytes.Equal(current, rec.Content) {
		if info, err := e.fsys.Stat(rel); err == nil && info.Mode().Perm() == rec.Mode {
			return nil
		}
	}
	return e.fsys.WriteFileAtomic(rel, rec.Content, rec.Mode)
}

// verifyAndBackup re-reads the source, checks it against the preview hash
// and stores a backup copy.
func (e *executor) verifyAndBackup(fr *patcher.FileResult) (*BackupRecord, error) {
	current, err := e.fsys.ReadFile(fr.Source)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fr.Source, err)
	}
	if fs.HashBytes(current) != fr.SourceHash {
		return nil, &model.StaleContentError{Path: fr.Source}
	}
	info, err := e.fsys.Stat(fr.Source)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", fr.Source, err)
	}
	mode := info.Mode().Perm()
	rel, err := e.run.Backup(fr.Source, current, mode)
	if err != nil {
		return nil, &model.BackupFailureError{Path: fr.Source, Err: err}
	}
	return &BackupRecord{
		Path:       fr.Source,
		BackupPath: path.Join(e.run.Dir, rel),
		Timestamp:  e.now,
		Content:    current,
		Mode:       mode,
	}, nil
}

func manifest(tx *Transaction) *state.Manifest {
	m := &state.Manifest{
		Transaction: tx.ID,
		Timestamp:   tx.Timestamp,
		Status:      tx.Status.String(),
	}
	if tx.Err != nil {
		m.Message = tx.Err.Error()
	}
	for _, op := range tx.Ops {
		rec := state.Operation{
			Action:     op.Operation.String(),
			Path:       op.Source,
			ResultHash: op.ResultHash,
			Completed:  op.Completed,
		}
		switch op.Operation {
		case model.OpCreate:
			rec.Path = op.Target
		case model.OpRename:
			rec.NewPath = op.Target
		}
		if op.Backup != nil {
			rec.Backup = op.Backup.Path
			rec.Mode = uint32(op.Backup.Mode)
			rec.ContentHash = fs.HashBytes(op.Backup.Content)
		}
		m.Operations = append(m.Operations, rec)
	}
	return m
}
