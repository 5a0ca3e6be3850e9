package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/patchstudio/internal/fs"
)

func newRoot(t *testing.T) *fs.Root {
	t.Helper()
	root, err := fs.NewRoot(t.TempDir())
	require.NoError(t, err)
	return root
}

func TestNewRunNamesAreUnique(t *testing.T) {
	m := New(newRoot(t))
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	first, err := m.NewRun(now)
	require.NoError(t, err)
	second, err := m.NewRun(now)
	require.NoError(t, err)

	assert.Equal(t, "20240102_030405", first.Name)
	assert.Equal(t, "20240102_030405-1", second.Name)
	assert.Equal(t, filepath.Join(m.Dir(), LockName), m.LockPath())
}

func TestListSkipsRunsWithoutManifest(t *testing.T) {
	m := New(newRoot(t))
	runs, err := m.List()
	require.NoError(t, err)
	assert.Empty(t, runs)

	run, err := m.NewRun(time.Unix(0, 0).UTC())
	require.NoError(t, err)
	_, err = m.NewRun(time.Unix(60, 0).UTC())
	require.NoError(t, err)
	require.NoError(t, run.WriteManifest(&Manifest{Transaction: "t1", Status: "success"}))

	runs, err = m.List()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "t1", runs[0].Manifest.Transaction)

	latest, err := m.Latest()
	require.NoError(t, err)
	assert.Equal(t, run.Name, latest.Name)
}

func TestLoadRejectsTraversal(t *testing.T) {
	m := New(newRoot(t))
	for _, name := range []string{"", "..", "../x", "a/b"} {
		_, err := m.Load(name)
		assert.Error(t, err, name)
	}
}

func TestRestoreSkipsFilesModifiedSinceRun(t *testing.T) {
	root := newRoot(t)
	m := New(root)
	require.NoError(t, root.WriteFileAtomic("a.txt", []byte("new a\n"), 0644))
	require.NoError(t, root.WriteFileAtomic("b.txt", []byte("edited later\n"), 0644))

	run, err := m.NewRun(time.Now())
	require.NoError(t, err)
	backupA, err := run.Backup("a.txt", []byte("old a\n"), 0644)
	require.NoError(t, err)
	backupB, err := run.Backup("b.txt", []byte("old b\n"), 0644)
	require.NoError(t, err)
	require.NoError(t, run.WriteManifest(&Manifest{
		Transaction: "t",
		Status:      "success",
		Operations: []Operation{
			{Action: "modify", Path: "a.txt", Backup: backupA, Mode: 0644,
				ContentHash: fs.HashBytes([]byte("old a\n")), ResultHash: fs.HashBytes([]byte("new a\n")), Completed: true},
			{Action: "modify", Path: "b.txt", Backup: backupB, Mode: 0644,
				ContentHash: fs.HashBytes([]byte("old b\n")), ResultHash: fs.HashBytes([]byte("new b\n")), Completed: true},
		},
	}))

	loaded, err := m.Load(run.Name)
	require.NoError(t, err)
	res, err := m.Restore(loaded)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, res.Restored)
	assert.Equal(t, []string{"b.txt"}, res.Skipped)

	data, err := os.ReadFile(filepath.Join(root.Dir(), "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "old a\n", string(data))
	data, err = os.ReadFile(filepath.Join(root.Dir(), "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "edited later\n", string(data))
}

func TestRestoreDetectsCorruptBackup(t *testing.T) {
	root := newRoot(t)
	m := New(root)
	require.NoError(t, root.WriteFileAtomic("a.txt", []byte("new\n"), 0644))
	run, err := m.NewRun(time.Now())
	require.NoError(t, err)
	rel, err := run.Backup("a.txt", []byte("tampered\n"), 0644)
	require.NoError(t, err)
	run.Manifest = &Manifest{Operations: []Operation{{
		Action: "modify", Path: "a.txt", Backup: rel,
		ContentHash: fs.HashBytes([]byte("old\n")), ResultHash: fs.HashBytes([]byte("new\n")), Completed: true,
	}}}

	_, err = m.Restore(run)
	assert.ErrorContains(t, err, "corrupt")
}
