package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateVerifyRestoreRoundTrip(t *testing.T) {
	projectDir := t.TempDir()
	cacheDir := t.TempDir()
	filePath := filepath.Join(projectDir, "a.txt")
	require.NoError(t, os.WriteFile(filePath, []byte("x"), 0o644))

	m := New(cacheDir)
	snap, err := m.Create([]string{filePath}, "before fix")
	require.NoError(t, err)
	assert.True(t, m.Verify(snap))

	require.NoError(t, os.WriteFile(filePath, []byte("y"), 0o644))
	require.NoError(t, m.Restore(snap))

	data, err := os.ReadFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestCreateTombstonesNonexistentFile(t *testing.T) {
	projectDir := t.TempDir()
	cacheDir := t.TempDir()
	missing := filepath.Join(projectDir, "new.txt")

	m := New(cacheDir)
	snap, err := m.Create([]string{missing}, "")
	require.NoError(t, err)
	require.Len(t, snap.Entries, 1)
	assert.True(t, snap.Entries[0].Tombstone)

	require.NoError(t, os.WriteFile(missing, []byte("created by fix"), 0o644))
	require.NoError(t, m.Restore(snap))
	_, err = os.Stat(missing)
	assert.True(t, os.IsNotExist(err))
}

func TestSnapshotIDsAreTimeOrdered(t *testing.T) {
	cacheDir := t.TempDir()
	m := New(cacheDir)
	first, err := m.Create(nil, "")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := m.Create(nil, "")
	require.NoError(t, err)
	assert.Less(t, first.ID, second.ID)
}

func TestGCDeletesOldUnreferencedSnapshots(t *testing.T) {
	cacheDir := t.TempDir()
	m := New(cacheDir)
	snap, err := m.Create(nil, "")
	require.NoError(t, err)

	require.NoError(t, m.GC(-time.Hour, func(string) bool { return false }))
	_, statErr := os.Stat(filepath.Join(cacheDir, "snapshots", snap.ID))
	assert.True(t, os.IsNotExist(statErr))
}

func TestGCKeepsReferencedSnapshots(t *testing.T) {
	cacheDir := t.TempDir()
	m := New(cacheDir)
	snap, err := m.Create(nil, "")
	require.NoError(t, err)

	require.NoError(t, m.GC(-time.Hour, func(id string) bool { return id == snap.ID }))
	_, statErr := os.Stat(filepath.Join(cacheDir, "snapshots", snap.ID))
	assert.NoError(t, statErr)
}
