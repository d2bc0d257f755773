package manifest

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/renameio"

	"github.com/x49dev/tpm/internal/errors"
)

// Save writes the manifest to disk, but only if dirty. A timestamped
// backup of the existing file is taken first and removed once the new
// file is safely in place, so a write that fails partway never loses
// the prior manifest. Writes themselves are atomic via renameio, and
// the file is mode 0600 since the manifest records local filesystem
// paths.
func (m *Manifest) Save() error {
	if !m.dirty {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return errors.NewFilesystemError(m.path, err)
	}

	backupPath, err := backupExisting(m.path)
	if err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString(header)
	for _, id := range m.order {
		rec := m.records[id]
		fields := rec.toFields()
		sb.WriteString("---\n")
		for _, name := range fieldOrder {
			v := fields[name]
			if v == "" {
				continue
			}
			fmt.Fprintf(&sb, "%s=%s\n", name, v)
			delete(fields, name)
		}
		extraKeys := make([]string, 0, len(fields))
		for k := range fields {
			extraKeys = append(extraKeys, k)
		}
		sort.Strings(extraKeys)
		for _, k := range extraKeys {
			fmt.Fprintf(&sb, "%s=%s\n", k, fields[k])
		}
	}

	if err := renameio.WriteFile(m.path, []byte(sb.String()), 0o600); err != nil {
		return errors.NewFilesystemError(m.path, err)
	}

	if backupPath != "" {
		if err := os.Remove(backupPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove manifest backup after save", "path", backupPath, "error", err)
		}
	}

	m.dirty = false
	return nil
}

// backupExisting copies path's current contents to a timestamped
// sibling file before it is overwritten. Returns "" if path doesn't
// yet exist, in which case there is nothing to back up.
func backupExisting(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", errors.NewFilesystemError(path, err)
	}

	backupPath := fmt.Sprintf("%s.bak.%d", path, time.Now().UnixNano())
	if err := os.WriteFile(backupPath, data, 0o600); err != nil {
		return "", errors.NewFilesystemError(backupPath, err)
	}
	return backupPath, nil
}
