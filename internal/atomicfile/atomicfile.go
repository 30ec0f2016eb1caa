// Package atomicfile implements the write-temp-fsync-rename pattern used by
// the Snapshot Manager (C9) and the Auto Fixer (C10) for every durable file
// mutation (§4.10 step 3: "perform atomic write"). Grounded on the source
// engine's applyFileChange (types.go), which already writes through a
// temp-file-then-rename path for GitHub content updates; generalized here
// to local filesystem writes with explicit fsync and mode control.
package atomicfile

import (
	"os"
	"path/filepath"
)

// Write atomically writes data to path with the given mode: a sibling
// temp file in the same directory is written, fsynced, then renamed over
// path so readers never observe a partial write.
func Write(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
