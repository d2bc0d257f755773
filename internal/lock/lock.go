// Package lock provides cross-process mutual exclusion scoped per
// operation: a ToolId for install/update/remove, or the manifest for
// global read operations.
package lock

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofrs/flock"

	"github.com/x49dev/tpm/internal/errors"
)

// ManifestKey is the literal lock name used for manifest-wide operations
// (list, info) that need to read a consistent snapshot.
const ManifestKey = "manifest"

// Lock is an exclusive, PID-tracked lock file under TMP_DIR/locks.
type Lock struct {
	key      string
	path     string
	fileLock *flock.Flock
	held     bool
}

// New creates a Lock for key rooted at tmpDir/locks/<key>.lock. key is
// either a sanitized ToolId or ManifestKey.
func New(tmpDir, key string) *Lock {
	path := filepath.Join(tmpDir, "locks", sanitizeKey(key)+".lock")
	return &Lock{
		key:      key,
		path:     path,
		fileLock: flock.New(path),
	}
}

// TryLock acquires the lock without blocking. On conflict it returns a
// Busy error carrying the PID of the current holder, read from the
// lock file, rather than corrupting shared state.
func (l *Lock) TryLock() error {
	if l.held {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return errors.NewFilesystemError(filepath.Dir(l.path), err)
	}

	ok, err := l.fileLock.TryLock()
	if err != nil {
		return errors.NewFilesystemError(l.path, err)
	}
	if !ok {
		holder, _ := l.readHolderPID()
		return errors.NewBusyError(l.key, holder)
	}

	if err := os.WriteFile(l.path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		_ = l.fileLock.Unlock()
		return errors.NewFilesystemError(l.path, err)
	}

	l.held = true
	return nil
}

// Unlock releases the lock. Safe to call even if TryLock never
// succeeded.
func (l *Lock) Unlock() error {
	if !l.held {
		return nil
	}
	if err := l.fileLock.Unlock(); err != nil {
		return errors.NewFilesystemError(l.path, err)
	}
	l.held = false
	return nil
}

func (l *Lock) readHolderPID() (int, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(data))
}

// sanitizeKey makes a ToolId or other key safe for use as a filename.
func sanitizeKey(key string) string {
	out := make([]rune, 0, len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
