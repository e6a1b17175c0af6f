package app

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// acquireLock takes a non-blocking flock on a lock file inside the store
// directory so overlapping autosave batches don't interleave. The stamp
// still does the coarse debouncing; this only guards the batch itself.
func acquireLock(storeDir string) (func(), error) {
	if err := os.MkdirAll(storeDir, 0o755); err != nil {
		return nil, err
	}
	lockPath := filepath.Join(storeDir, ".tbox-autosave.lock")
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("autosave already running")
	}
	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		_ = f.Close()
	}, nil
}
