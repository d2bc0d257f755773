package txn

import (
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio"
)

// backupPath0 copies path (file, dir, or symlink) to backupPath,
// creating parent directories as needed.
func backupPath0(path, backupPath string, info os.FileInfo) error {
	if err := os.MkdirAll(filepath.Dir(backupPath), 0o755); err != nil {
		return err
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(path)
		if err != nil {
			return err
		}
		return os.Symlink(target, backupPath)
	case info.IsDir():
		return copyDir(path, backupPath)
	default:
		return copyFile(path, backupPath)
	}
}

// restoreBackup moves the backup back into place, replacing whatever
// (if anything) currently occupies dst.
func restoreBackup(backupPath, dst string) error {
	if _, err := os.Lstat(backupPath); os.IsNotExist(err) {
		return os.RemoveAll(dst)
	}
	if err := os.RemoveAll(dst); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.Rename(backupPath, dst)
}

// copyFile copies a regular file's contents and mode, writing the
// destination atomically via renameio so a crash mid-copy can never
// leave a half-written file in place.
func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	t, err := renameio.TempFile("", dst)
	if err != nil {
		return err
	}
	defer t.Cleanup()

	if _, err := io.Copy(t, in); err != nil {
		return err
	}
	if err := t.Chmod(info.Mode()); err != nil {
		return err
	}
	return t.CloseAtomicallyReplace()
}

// copyDir recursively copies a directory tree.
func copyDir(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}
		if info.Mode()&os.ModeSymlink != 0 {
			linkTarget, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(linkTarget, target)
		}
		return copyFile(path, target)
	})
}

// copyThenRemove implements a cross-filesystem "move" when os.Rename
// fails with EXDEV: copy then remove the source.
func copyThenRemove(src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		if err := copyDir(src, dst); err != nil {
			return err
		}
	} else if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.RemoveAll(src)
}
