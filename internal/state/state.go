// Package state manages the backup store under the project root: one
// directory per apply run, mirroring the relative paths it backed up, plus a
// YAML manifest describing the run.
package state

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sokinpui/patchstudio/internal/fs"
)

const (
	// BackupDirName is the root-relative directory holding every run.
	BackupDirName = ".patchstudio_backups"
	ManifestName  = "manifest.yaml"
	LockName      = ".lock"

	runLayout = "20060102_150405"
)

// Operation is one manifest record.
type Operation struct {
	Action  string `yaml:"action"`
	Path    string `yaml:"path"`
	NewPath string `yaml:"new_path,omitempty"`
	// Backup is the backup file path relative to the run directory.
	Backup string `yaml:"backup,omitempty"`
	Mode   uint32 `yaml:"mode,omitempty"`
	// ContentHash is the SHA-256 of the original content; ResultHash is the
	// SHA-256 of what the run wrote.
	ContentHash string `yaml:"content_hash,omitempty"`
	ResultHash  string `yaml:"result_hash,omitempty"`
	Completed   bool   `yaml:"completed"`
}

// Manifest describes one apply run.
type Manifest struct {
	Transaction string      `yaml:"transaction"`
	Timestamp   time.Time   `yaml:"timestamp"`
	Status      string      `yaml:"status"`
	Message     string      `yaml:"message,omitempty"`
	Operations  []Operation `yaml:"operations"`
}

// Run is one backup run directory.
type Run struct {
	Name string
	// Dir is the run directory relative to the project root.
	Dir      string
	Manifest *Manifest

	fsys fs.FS
}

// Manager owns the backup directory of one project root.
type Manager struct {
	fsys fs.FS
}

// New returns a manager storing backups under fsys's root.
func New(fsys fs.FS) *Manager {
	return &Manager{fsys: fsys}
}

// Dir returns the absolute backup directory.
func (m *Manager) Dir() string {
	return filepath.Join(m.fsys.Root().Dir(), BackupDirName)
}

// LockPath returns the absolute path of the cross-process apply lock.
func (m *Manager) LockPath() string {
	return filepath.Join(m.Dir(), LockName)
}

// EnsureDir creates the backup directory if it is missing.
func (m *Manager) EnsureDir() error {
	if _, err := m.fsys.MkdirAll(BackupDirName); err != nil {
		return fmt.Errorf("could not create backup directory: %w", err)
	}
	return nil
}

// NewRun creates a fresh run directory named after now. A numeric suffix
// keeps names unique when several runs start within one second.
func (m *Manager) NewRun(now time.Time) (*Run, error) {
	if err := m.EnsureDir(); err != nil {
		return nil, err
	}
	base := now.Format(runLayout)
	for n := 0; n < 1000; n++ {
		name := base
		if n > 0 {
			name = base + "-" + strconv.Itoa(n)
		}
		dir := path.Join(BackupDirName, name)
		created, err := m.fsys.MkdirAll(dir)
		if err != nil {
			return nil, fmt.Errorf("could not create run directory: %w", err)
		}
		if len(created) > 0 {
			return &Run{Name: name, Dir: dir, fsys: m.fsys}, nil
		}
	}
	return nil, fmt.Errorf("could not allocate a run directory for %s", base)
}

// Backup stores data under the run directory at rel and returns the backup
// path relative to the run directory.
func (r *Run) Backup(rel string, data []byte, perm os.FileMode) (string, error) {
	dst := path.Join(r.Dir, rel)
	if _, err := r.fsys.MkdirAll(path.Dir(dst)); err != nil {
		return "", err
	}
	if err := r.fsys.WriteFileAtomic(dst, data, perm); err != nil {
		return "", err
	}
	return rel, nil
}

// ReadBackup returns the stored copy of rel.
func (r *Run) ReadBackup(rel string) ([]byte, error) {
	return r.fsys.ReadFile(path.Join(r.Dir, rel))
}

// WriteManifest stores m as the run's manifest.
func (r *Run) WriteManifest(m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := r.fsys.WriteFileAtomic(path.Join(r.Dir, ManifestName), data, 0644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	r.Manifest = m
	return nil
}

// List returns every run that has a readable manifest, oldest first.
func (m *Manager) List() ([]*Run, error) {
	entries, err := os.ReadDir(m.Dir())
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not list backups: %w", err)
	}
	var runs []*Run
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		run, err := m.Load(e.Name())
		if err != nil {
			continue
		}
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Name < runs[j].Name })
	return runs, nil
}

// Load reads the run called name.
func (m *Manager) Load(name string) (*Run, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("invalid run name %q", name)
	}
	dir := path.Join(BackupDirName, name)
	data, err := m.fsys.ReadFile(path.Join(dir, ManifestName))
	if err != nil {
		return nil, fmt.Errorf("could not read manifest of %s: %w", name, err)
	}
	var man Manifest
	if err := yaml.Unmarshal(data, &man); err != nil {
		return nil, fmt.Errorf("invalid manifest in %s: %w", name, err)
	}
	return &Run{Name: name, Dir: dir, Manifest: &man, fsys: m.fsys}, nil
}

// Latest returns the most recent run, or nil when there is none.
func (m *Manager) Latest() (*Run, error) {
	runs, err := m.List()
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return runs[len(runs)-1], nil
}
