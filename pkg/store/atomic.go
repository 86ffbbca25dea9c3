package store

import (
	"fmt"
	"os"
)

// atomicWrite persists data crash-safely: write to <path>.tmp, fsync, then
// rename into place. The rename is the commit point; a crash before it leaves
// at worst a stale .tmp file that readers never look at and later writes
// overwrite.
func atomicWrite(path string, data []byte) error {
	tmpPath := path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmpPath, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", tmpPath, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync %s: %w", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to commit %s: %w", path, err)
	}
	return nil
}
