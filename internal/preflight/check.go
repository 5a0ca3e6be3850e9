package preflight

import (
	"github.com/sokinpui/patchstudio/internal/fs"
	"github.com/sokinpui/patchstudio/model"
)

type validator struct {
	root   *fs.Root
	cfg    model.Config
	states map[string]fileState
	// vacated holds paths an earlier Ok delete or rename removes.
	vacated map[string]bool
	// occupied holds paths an earlier Ok create or rename produces.
	occupied map[string]bool
}

func (v *validator) check(fc *model.FileChange) Entry {
	e := Entry{Change: fc}

	for _, p := range []string{fc.OldPath, fc.NewPath} {
		if p == model.DevNull || p == "" {
			continue
		}
		if _, err := v.root.Resolve(p); err != nil {
			e.Status, e.Err = StatusOutsideRoot, err
			return e
		}
	}

	if fc.IsBinary {
		e.Status = StatusUnsupportedBinary
		e.Err = &model.UnsupportedBinaryError{Path: fc.DisplayPath(), Reason: fc.BinaryReason}
		e.Omitted = v.cfg.SkipUnsupportedBinary
		return e
	}

	if fc.Operation.Gated() && !v.cfg.AllowRenameDeleteModeChange {
		e.Status = StatusGatedOperation
		e.Err = &model.GatedOperationError{Path: fc.DisplayPath(), Operation: fc.Operation}
		return e
	}

	switch fc.Operation {
	case model.OpModify:
		target, err := v.selectModifyTarget(fc)
		if err != nil {
			e.Status, e.Err = StatusMissingTarget, err
			return e
		}
		e.Source, e.Target = target, target
	case model.OpCreate:
		e.Target = fc.NewPath
	case model.OpDelete:
		e.Source = fc.OldPath
	case model.OpRename:
		e.Source, e.Target = fc.OldPath, fc.NewPath
	case model.OpModeChange:
		e.Source, e.Target = fc.OldPath, fc.OldPath
	}

	if e.Source != "" && fc.Operation != model.OpModify && !v.present(e.Source) {
		e.Status = StatusMissingTarget
		e.Err = &model.MissingTargetError{Path: e.Source}
		return e
	}

	if fc.Operation == model.OpCreate || fc.Operation == model.OpRename {
		if v.taken(e.Target) {
			e.Status = StatusTargetExists
			e.Err = &model.TargetExistsError{Path: e.Target}
			return e
		}
	}

	switch fc.Operation {
	case model.OpDelete:
		v.vacated[e.Source] = true
	case model.OpRename:
		v.vacated[e.Source] = true
		delete(v.occupied, e.Source)
		v.occupied[e.Target] = true
	case model.OpCreate:
		v.occupied[e.Target] = true
	}
	return e
}

// present reports whether p is an existing regular file not removed by an
// earlier change.
func (v *validator) present(p string) bool {
	if v.vacated[p] {
		return false
	}
	return v.states[p].regular || v.occupied[p]
}

// taken reports whether a create or rename would overwrite something.
func (v *validator) taken(p string) bool {
	if v.occupied[p] {
		return true
	}
	return v.states[p].exists && !v.vacated[p]
}

func (v *validator) selectModifyTarget(fc *model.FileChange) (string, error) {
	if v.cfg.StrictFilenameMatch {
		if fc.OldPath != fc.NewPath {
			return "", &model.MissingTargetError{
				Path:   fc.NewPath,
				Reason: "strict filename match requires identical old and new paths, got " + fc.OldPath,
			}
		}
		if !v.existing(fc.NewPath) {
			return "", &model.MissingTargetError{Path: fc.NewPath}
		}
		return fc.NewPath, nil
	}
	for _, c := range []string{fc.NewPath, fc.OldPath, stripFirst(fc.NewPath), stripFirst(fc.OldPath)} {
		if c != "" && v.existing(c) {
			return c, nil
		}
	}
	return "", &model.MissingTargetError{Path: fc.DisplayPath(), Reason: "no candidate path exists"}
}

// existing is present for paths on disk only; stripped candidates that
// escape the root never resolve.
func (v *validator) existing(p string) bool {
	if _, err := v.root.Resolve(p); err != nil {
		return false
	}
	return v.states[p].regular && !v.vacated[p]
}
