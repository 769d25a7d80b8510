//go:build unix

package executor

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"
)

// orphanedTmpMaxAge is the minimum age for a .dupenukem.tmp file to be
// considered orphaned. Files younger than this are assumed to belong to an
// active run.
const orphanedTmpMaxAge = 1 * time.Minute

// createSymlinkAtomic creates a symlink at target pointing to relSource by
// linking a temp path alongside target, then renaming it over target. If a
// stale temp file from a previous run is in the way, it is cleaned up and
// the attempt retried once.
func createSymlinkAtomic(target, relSource string) error {
	tmp := target + ".dupenukem.tmp"

	err := os.Symlink(relSource, tmp)
	if errors.Is(err, syscall.EEXIST) {
		if cleanupErr := tryCleanupOrphanedTmp(tmp); cleanupErr != nil {
			return fmt.Errorf("tmp file exists and cannot be cleaned: %w", cleanupErr)
		}
		err = os.Symlink(relSource, tmp)
	}
	if err != nil {
		return err
	}

	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// tryCleanupOrphanedTmp removes a leftover .dupenukem.tmp symlink, but only
// if it is old enough that it cannot belong to a run still in flight.
func tryCleanupOrphanedTmp(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("lstat: %w", err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return fmt.Errorf("not a symlink (mode %v)", info.Mode())
	}
	cutoff := time.Now().Add(-orphanedTmpMaxAge)
	if info.ModTime().After(cutoff) {
		return fmt.Errorf("file too recent (mtime %v, cutoff %v)", info.ModTime(), cutoff)
	}
	return os.Remove(path)
}
