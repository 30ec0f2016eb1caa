// Package snapshot implements the Snapshot Manager (C9): creating,
// verifying, and restoring filesystem snapshots of a declared file set so
// the Auto Fixer (C10) can roll back a failed fix. Grounded on the source
// engine's CreateTestBranch (types.go/mcp_client.go), which snapshots a
// branch before applying changes so it can be deleted on cleanup;
// generalized from "a disposable git branch" to "a local directory per
// snapshot id, with SHA-256-checked contents and exact byte/mode
// recreation."
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/wardenci/warden/internal/atomicfile"
	"github.com/wardenci/warden/internal/errs"
	"github.com/wardenci/warden/internal/model"
)

// Manager creates, verifies, and restores Snapshots under cacheRoot.
type Manager struct {
	cacheRoot string
}

// New builds a Manager rooted at cacheRoot/snapshots.
func New(cacheRoot string) *Manager {
	return &Manager{cacheRoot: cacheRoot}
}

func (m *Manager) dir(id string) string {
	return filepath.Join(m.cacheRoot, "snapshots", id)
}

// Create records each path's content, SHA-256, and mode under a new
// snapshot directory with 0700 permissions, 0600 for files. A nonexistent
// path is recorded as a tombstone so Restore can delete a file that was
// created by the fix being rolled back.
func (m *Manager) Create(fileSet []string, description string) (model.Snapshot, error) {
	id := uuid.Must(uuid.NewV7()).String()
	dir := m.dir(id)
	filesDir := filepath.Join(dir, "files")
	if err := os.MkdirAll(filesDir, 0o700); err != nil {
		return model.Snapshot{}, errs.Wrap(errs.KindIO, "create snapshot directory", err)
	}

	var entries []model.SnapshotEntry
	for idx, path := range fileSet {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				entries = append(entries, model.SnapshotEntry{OriginalPath: path, Tombstone: true})
				continue
			}
			return model.Snapshot{}, errs.Wrap(errs.KindIO, "read "+path+" for snapshot", err)
		}
		info, err := os.Stat(path)
		if err != nil {
			return model.Snapshot{}, errs.Wrap(errs.KindIO, "stat "+path+" for snapshot", err)
		}
		sum := sha256.Sum256(data)
		storedPath := filepath.Join("files", strconv.Itoa(idx))
		if err := atomicfile.Write(filepath.Join(dir, storedPath), data, 0o600); err != nil {
			return model.Snapshot{}, errs.Wrap(errs.KindIO, "write snapshot content for "+path, err)
		}
		entries = append(entries, model.SnapshotEntry{
			OriginalPath: path,
			StoredPath:   storedPath,
			SHA256:       hex.EncodeToString(sum[:]),
			Mode:         uint32(info.Mode().Perm()),
			Size:         info.Size(),
		})
	}

	snap := model.Snapshot{ID: id, CreatedAt: time.Now().UTC(), Entries: entries, Description: description}
	manifest, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return model.Snapshot{}, err
	}
	if err := atomicfile.Write(filepath.Join(dir, "manifest.json"), manifest, 0o600); err != nil {
		return model.Snapshot{}, errs.Wrap(errs.KindIO, "write snapshot manifest", err)
	}
	return snap, nil
}

// Verify reports whether every non-tombstone entry's stored content still
// hashes to its recorded SHA-256.
func (m *Manager) Verify(snap model.Snapshot) bool {
	dir := m.dir(snap.ID)
	for _, e := range snap.Entries {
		if e.Tombstone {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.StoredPath))
		if err != nil {
			return false
		}
		sum := sha256.Sum256(data)
		if hex.EncodeToString(sum[:]) != e.SHA256 {
			return false
		}
	}
	return true
}

// Restore recreates every recorded path's exact bytes and mode, deleting
// paths that were tombstoned (did not exist at snapshot time).
func (m *Manager) Restore(snap model.Snapshot) error {
	dir := m.dir(snap.ID)
	for _, e := range snap.Entries {
		if e.Tombstone {
			if err := os.Remove(e.OriginalPath); err != nil && !os.IsNotExist(err) {
				return errs.Wrap(errs.KindRollbackFailed, "remove "+e.OriginalPath+" during rollback", err)
			}
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.StoredPath))
		if err != nil {
			return errs.Wrap(errs.KindRollbackFailed, "read snapshot content for "+e.OriginalPath, err)
		}
		if err := atomicfile.Write(e.OriginalPath, data, fs.FileMode(e.Mode)); err != nil {
			return errs.Wrap(errs.KindRollbackFailed, "restore "+e.OriginalPath, err)
		}
	}
	return nil
}

// GC deletes snapshots older than retention, skipping any id for which
// stillReferenced reports true (an un-reclaimed FixResult still points at
// it).
func (m *Manager) GC(retention time.Duration, stillReferenced func(id string) bool) error {
	root := filepath.Join(m.cacheRoot, "snapshots")
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.Wrap(errs.KindIO, "list snapshots for gc", err)
	}
	cutoff := time.Now().Add(-retention)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id := e.Name()
		if stillReferenced != nil && stillReferenced(id) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(root, id, "manifest.json"))
		if err != nil {
			continue
		}
		var snap model.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			continue
		}
		if snap.CreatedAt.Before(cutoff) {
			if err := os.RemoveAll(filepath.Join(root, id)); err != nil {
				return errs.Wrap(errs.KindIO, fmt.Sprintf("gc snapshot %s", id), err)
			}
		}
	}
	return nil
}
