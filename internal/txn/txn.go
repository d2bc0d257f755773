// Package txn implements tpm's compensating-action transaction log: a
// LIFO stack of reversing closures recorded before each mutation, run
// on rollback, discarded on commit.
package txn

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/x49dev/tpm/internal/errors"
)

// Action is a single compensating action: a human-readable description
// for logging, and the closure that reverses the mutation it follows.
type Action struct {
	Description string
	Undo        func() error
}

// Transaction records compensating actions for one logical operation
// (install/<id>, update/<id>, remove/<id>) and unwinds them in LIFO
// order on rollback.
//
// Each transaction gets its own backup subdirectory under
// TMP_DIR/backup/<id>/, rather than sharing one timestamp-keyed tree,
// and removes it itself on commit or rollback. The janitor sweep only
// removes subdirectories older than StaleBackupAge, i.e. those left
// behind by a process that exited without unwinding.
type Transaction struct {
	id      string
	kind    string
	tmpDir  string
	log     *slog.Logger
	actions []Action
	active  bool
}

// Begin starts a new transaction of the given kind (e.g. "install",
// "update", "remove") scoped to context (typically a ToolId). Only one
// Transaction value should be active at a time per process; callers
// enforce that via internal/lock.
func Begin(tmpDir, kind, context string) *Transaction {
	id := fmt.Sprintf("%s-%s-%d", kind, sanitize(context), time.Now().UnixNano())
	return &Transaction{
		id:     id,
		kind:   kind,
		tmpDir: tmpDir,
		log:    slog.With("txn", id),
		active: true,
	}
}

// backupDir is this transaction's private backup subdirectory.
func (t *Transaction) backupDir() string {
	return filepath.Join(t.tmpDir, "backup", t.id)
}

// Record appends a compensating action. No-op with a warning if the
// transaction is not active.
func (t *Transaction) Record(description string, undo func() error) {
	if !t.active {
		slog.Warn("record called outside an active transaction", "description", description)
		return
	}
	t.actions = append(t.actions, Action{Description: description, Undo: undo})
}

// Commit clears the transaction's action stack without executing any
// of them, then sweeps this transaction's own backup directory.
func (t *Transaction) Commit() error {
	if !t.active {
		return nil
	}
	t.active = false
	t.actions = nil
	if err := os.RemoveAll(t.backupDir()); err != nil && !os.IsNotExist(err) {
		t.log.Warn("failed to clean up transaction backup directory", "error", err)
	}
	return nil
}

// Rollback executes recorded actions in LIFO order. Individual
// failures never short-circuit the unwind; the count of failed steps
// is returned alongside any error from the triggering cause.
func (t *Transaction) Rollback(cause error) error {
	if !t.active {
		return nil
	}
	t.active = false

	failed := 0
	for i := len(t.actions) - 1; i >= 0; i-- {
		action := t.actions[i]
		if err := action.Undo(); err != nil {
			failed++
			t.log.Warn("rollback step failed", "description", action.Description, "error", err)
		}
	}
	t.actions = nil

	if err := os.RemoveAll(t.backupDir()); err != nil && !os.IsNotExist(err) {
		t.log.Warn("failed to clean up transaction backup directory", "error", err)
	}

	return errors.NewTransactionAbortedError(cause, failed)
}

// RecordRemove backs up path (if it exists) under this transaction's
// backup directory, then records a compensator that restores it.
func (t *Transaction) RecordRemove(path string) error {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.NewFilesystemError(path, err)
	}

	backupPath := filepath.Join(t.backupDir(), sanitize(path))
	if err := backupPath0(path, backupPath, info); err != nil {
		return errors.NewFilesystemError(path, err)
	}

	t.Record(fmt.Sprintf("restore %s", path), func() error {
		return restoreBackup(backupPath, path)
	})
	return nil
}

// RecordSymlink captures any prior state at link — a symlink, a
// regular file/dir, or nothing — so rollback restores exactly what was
// there before Store.create_symlink (or similar) replaces it.
func (t *Transaction) RecordSymlink(link string) error {
	return t.RecordRemove(link)
}

// RecordMkdir records a compensating removal for path, but only if the
// directory did not already exist.
func (t *Transaction) RecordMkdir(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	t.Record(fmt.Sprintf("remove directory %s", path), func() error {
		return os.RemoveAll(path)
	})
	return nil
}

// SafeMove moves src to dst atomically (via os.Rename on the same
// filesystem, falling back to copy+remove across filesystems),
// recording a compensator that reverses it and restores any
// pre-existing dst from backup.
func (t *Transaction) SafeMove(src, dst string) error {
	if err := t.RecordRemove(dst); err != nil {
		return err
	}

	if err := os.Rename(src, dst); err != nil {
		if err := copyThenRemove(src, dst); err != nil {
			return errors.NewFilesystemError(dst, err)
		}
	}

	t.Record(fmt.Sprintf("move %s back from %s", dst, src), func() error {
		return os.Rename(dst, src)
	})
	return nil
}

// SafeCopy copies src to dst, recording a compensator that removes dst
// (restoring any pre-existing dst from backup first).
func (t *Transaction) SafeCopy(src, dst string) error {
	if err := t.RecordRemove(dst); err != nil {
		return err
	}
	if err := copyFile(src, dst); err != nil {
		return errors.NewFilesystemError(dst, err)
	}
	t.Record(fmt.Sprintf("remove copy at %s", dst), func() error {
		return os.RemoveAll(dst)
	})
	return nil
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
