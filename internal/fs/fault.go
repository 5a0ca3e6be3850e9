package fs

import (
	"os"

	"github.com/sokinpui/patchstudio/model"
)

// Op names a mutating or reading filesystem call for fault injection.
type Op string

const (
	OpRead   Op = "read"
	OpStat   Op = "stat"
	OpWrite  Op = "write"
	OpRemove Op = "remove"
	OpMkdir  Op = "mkdir"
	OpRmdir  Op = "rmdir"
	OpChmod  Op = "chmod"
)

// FaultFS wraps an FS and fails the calls Inject returns an error for.
// Tests and the self-check use it to force failures at a chosen step.
type FaultFS struct {
	FS
	Inject func(op Op, rel string) error
}

func (f *FaultFS) fault(op Op, rel string) error {
	if f.Inject == nil {
		return nil
	}
	return f.Inject(op, rel)
}

func (f *FaultFS) ReadFile(rel string) ([]byte, error) {
	if err := f.fault(OpRead, rel); err != nil {
		return nil, err
	}
	return f.FS.ReadFile(rel)
}

func (f *FaultFS) Stat(rel string) (os.FileInfo, error) {
	if err := f.fault(OpStat, rel); err != nil {
		return nil, err
	}
	return f.FS.Stat(rel)
}

func (f *FaultFS) WriteFileAtomic(rel string, data []byte, perm os.FileMode) error {
	if err := f.fault(OpWrite, rel); err != nil {
		return &model.AtomicWriteFailureError{Path: rel, Err: err}
	}
	return f.FS.WriteFileAtomic(rel, data, perm)
}

func (f *FaultFS) Remove(rel string) error {
	if err := f.fault(OpRemove, rel); err != nil {
		return err
	}
	return f.FS.Remove(rel)
}

func (f *FaultFS) MkdirAll(rel string) ([]string, error) {
	if err := f.fault(OpMkdir, rel); err != nil {
		return nil, err
	}
	return f.FS.MkdirAll(rel)
}

func (f *FaultFS) RemoveDir(rel string) error {
	if err := f.fault(OpRmdir, rel); err != nil {
		return err
	}
	return f.FS.RemoveDir(rel)
}

func (f *FaultFS) Chmod(rel string, perm os.FileMode) error {
	if err := f.fault(OpChmod, rel); err != nil {
		return err
	}
	return f.FS.Chmod(rel, perm)
}

// FailOn returns an Inject func that fails op on path with err.
func FailOn(op Op, path string, err error) func(Op, string) error {
	return func(o Op, rel string) error {
		if o == op && rel == path {
			return err
		}
		return nil
	}
}
