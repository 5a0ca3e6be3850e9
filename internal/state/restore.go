package state

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"os"

	"github.com/sokinpui/patchstudio/internal/fs"
	"github.com/sokinpui/patchstudio/model"
)

// RestoreResult lists what a restore did.
type RestoreResult struct {
	Restored []string
	Removed  []string
	// Skipped lists paths modified since the run, which are left alone.
	Skipped []string
}

// Restore undoes the completed operations of run, newest first. A file
// whose content no longer matches what the run wrote is skipped.
func (m *Manager) Restore(run *Run) (*RestoreResult, error) {
	if run.Manifest == nil {
		return nil, fmt.Errorf("run %s has no manifest", run.Name)
	}
	res := &RestoreResult{}
	ops := run.Manifest.Operations
	for i := len(ops) - 1; i >= 0; i-- {
		op := ops[i]
		if !op.Completed {
			continue
		}
		if err := m.restoreOp(run, op, res); err != nil {
			return res, fmt.Errorf("restore %s: %w", op.Path, err)
		}
	}
	return res, nil
}

func (m *Manager) restoreOp(run *Run, op Operation, res *RestoreResult) error {
	written := op.Path
	if op.NewPath != "" {
		written = op.NewPath
	}

	if op.Action != model.OpDelete.String() {
		ok, err := m.unchanged(written, op.ResultHash)
		if err != nil {
			return err
		}
		if !ok {
			res.Skipped = append(res.Skipped, written)
			return nil
		}
	}

	switch op.Action {
	case model.OpCreate.String():
		if err := m.fsys.Remove(written); err != nil && !errors.Is(err, iofs.ErrNotExist) {
			return err
		}
		res.Removed = append(res.Removed, written)
		return nil
	case model.OpRename.String():
		if err := m.fsys.Remove(written); err != nil && !errors.Is(err, iofs.ErrNotExist) {
			return err
		}
		res.Removed = append(res.Removed, written)
	}

	if op.Backup == "" {
		return fmt.Errorf("no backup recorded")
	}
	data, err := run.ReadBackup(op.Backup)
	if err != nil {
		return err
	}
	if fs.HashBytes(data) != op.ContentHash {
		return fmt.Errorf("backup of %s is corrupt", op.Path)
	}
	if _, err := m.fsys.MkdirAll(parentDir(op.Path)); err != nil {
		return err
	}
	if err := m.fsys.WriteFileAtomic(op.Path, data, os.FileMode(op.Mode)&os.ModePerm); err != nil {
		return err
	}
	res.Restored = append(res.Restored, op.Path)
	return nil
}

// unchanged reports whether rel still holds the content a run wrote. A
// missing file counts as changed.
func (m *Manager) unchanged(rel, hash string) (bool, error) {
	data, err := m.fsys.ReadFile(rel)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return fs.HashBytes(data) == hash, nil
}

func parentDir(rel string) string {
	for i := len(rel) - 1; i >= 0; i-- {
		if rel[i] == '/' {
			return rel[:i]
		}
	}
	return ""
}
