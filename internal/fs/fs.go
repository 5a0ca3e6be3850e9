package fs

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sokinpui/patchstudio/model"
)

const (
	// DefaultFileMode is used for created files when the patch gives no mode.
	DefaultFileMode os.FileMode = 0644
	dirMode         os.FileMode = 0755
)

// FS is the set of root-relative file operations the engine needs. Every
// path goes through Root.Resolve, so no implementation can reach outside
// the project root.
type FS interface {
	Root() *Root
	ReadFile(rel string) ([]byte, error)
	Stat(rel string) (os.FileInfo, error)
	WriteFileAtomic(rel string, data []byte, perm os.FileMode) error
	Remove(rel string) error
	MkdirAll(rel string) ([]string, error)
	RemoveDir(rel string) error
	Chmod(rel string, perm os.FileMode) error
}

// Root is the canonical project root every path is validated against.
type Root struct {
	dir string
}

// NewRoot canonicalizes dir (absolute, symlinks resolved) and checks that it
// is an existing directory.
func NewRoot(dir string) (*Root, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("could not get current working directory: %w", err)
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid root %q: %w", dir, err)
	}
	canon, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("invalid root %q: %w", dir, err)
	}
	info, err := os.Stat(canon)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", canon)
	}
	return &Root{dir: canon}, nil
}

// Dir returns the absolute canonical root directory.
func (r *Root) Dir() string { return r.dir }

// Root lets *Root satisfy FS.
func (r *Root) Root() *Root { return r }

// Resolve maps a slash-separated relative path to an absolute path inside the
// root. Absolute paths, paths whose ".." segments climb above the root, and
// paths routed through a symlink that leaves the root are rejected with an
// OutsideRootError. No configuration can relax this check.
func (r *Root) Resolve(rel string) (string, error) {
	native := filepath.FromSlash(rel)
	if rel == "" || filepath.IsAbs(native) || strings.HasPrefix(rel, "/") || !filepath.IsLocal(native) {
		return "", &model.OutsideRootError{Path: rel, Root: r.dir}
	}
	clean := filepath.Clean(native)
	if err := r.checkSymlinks(clean); err != nil {
		return "", err
	}
	return filepath.Join(r.dir, clean), nil
}

// checkSymlinks walks the existing components of clean and rejects any
// symlink whose target lies outside the root.
func (r *Root) checkSymlinks(clean string) error {
	cur := r.dir
	for _, part := range strings.Split(clean, string(filepath.Separator)) {
		cur = filepath.Join(cur, part)
		info, err := os.Lstat(cur)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return fmt.Errorf("lstat %s: %w", cur, err)
		}
		if info.Mode()&os.ModeSymlink == 0 {
			continue
		}
		target, err := filepath.EvalSymlinks(cur)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// A dangling link could later be created outside the root.
				return &model.OutsideRootError{Path: filepath.ToSlash(clean), Root: r.dir}
			}
			return fmt.Errorf("resolve symlink %s: %w", cur, err)
		}
		if !r.contains(target) {
			return &model.OutsideRootError{Path: filepath.ToSlash(clean), Root: r.dir}
		}
	}
	return nil
}

func (r *Root) contains(abs string) bool {
	rel, err := filepath.Rel(r.dir, abs)
	if err != nil {
		return false
	}
	return rel == "." || filepath.IsLocal(rel)
}

// ReadFile reads a file under the root.
func (r *Root) ReadFile(rel string) ([]byte, error) {
	path, err := r.Resolve(rel)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// Stat stats a file under the root.
func (r *Root) Stat(rel string) (os.FileInfo, error) {
	path, err := r.Resolve(rel)
	if err != nil {
		return nil, err
	}
	return os.Stat(path)
}

// WriteFileAtomic writes data to a temp file in the destination directory,
// syncs it and renames it over the destination. The destination is never
// observed partially written.
func (r *Root) WriteFileAtomic(rel string, data []byte, perm os.FileMode) error {
	path, err := r.Resolve(rel)
	if err != nil {
		return err
	}
	if err := writeAtomic(path, data, perm); err != nil {
		return &model.AtomicWriteFailureError{Path: rel, Err: err}
	}
	return nil
}

func writeAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".patchstudio-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		return fail(err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	syncDir(dir)
	return nil
}

// syncDir flushes the directory entry of a rename. Failures are ignored:
// some platforms cannot open directories for syncing.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}

// Remove deletes a file under the root.
func (r *Root) Remove(rel string) error {
	path, err := r.Resolve(rel)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

// MkdirAll creates the directory rel and any missing parents. It returns the
// directories it created, outermost first, so callers can undo the creation.
func (r *Root) MkdirAll(rel string) ([]string, error) {
	if rel == "" || rel == "." {
		return nil, nil
	}
	if _, err := r.Resolve(rel); err != nil {
		return nil, err
	}
	var created []string
	cur := ""
	for _, part := range strings.Split(filepath.ToSlash(filepath.Clean(filepath.FromSlash(rel))), "/") {
		if cur == "" {
			cur = part
		} else {
			cur = cur + "/" + part
		}
		path, err := r.Resolve(cur)
		if err != nil {
			return created, err
		}
		info, err := os.Stat(path)
		if err == nil {
			if !info.IsDir() {
				return created, fmt.Errorf("%s exists and is not a directory", cur)
			}
			continue
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return created, err
		}
		if err := os.Mkdir(path, dirMode); err != nil {
			return created, err
		}
		created = append(created, cur)
	}
	return created, nil
}

// RemoveDir removes an empty directory under the root.
func (r *Root) RemoveDir(rel string) error {
	path, err := r.Resolve(rel)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

// Chmod changes the permission bits of a file under the root.
func (r *Root) Chmod(rel string, perm os.FileMode) error {
	path, err := r.Resolve(rel)
	if err != nil {
		return err
	}
	return os.Chmod(path, perm)
}

// HashBytes returns the hex SHA-256 of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// PermFromGitMode extracts permission bits from a git mode such as 0100755.
func PermFromGitMode(mode uint32) os.FileMode {
	if mode == 0 {
		return DefaultFileMode
	}
	return os.FileMode(mode & 0o777)
}
