package txn

import (
	"os"
	"path/filepath"
	"time"

	"github.com/x49dev/tpm/internal/errors"
)

// StaleBackupAge is how long an orphaned transaction backup directory
// is kept before the janitor removes it. Live transactions clean up
// their own backup directory on commit/rollback, so anything the
// janitor finds belongs to a process that crashed or was killed before
// it could unwind — never to a transaction still in flight, since each
// transaction gets its own backup subdirectory keyed by its id.
const StaleBackupAge = time.Hour

// Sweep removes backup subdirectories under tmpDir/backup older than
// StaleBackupAge. Intended to run at the start of an operation, before
// any transaction begins.
func Sweep(tmpDir string) error {
	root := filepath.Join(tmpDir, "backup")
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.NewFilesystemError(root, err)
	}

	cutoff := time.Now().Add(-StaleBackupAge)
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.RemoveAll(filepath.Join(root, entry.Name()))
		}
	}
	return nil
}
