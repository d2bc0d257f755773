// Package manifest implements tpm's installed-tool ledger: a
// `---`-delimited, `key=value` text file, one block per installed
// tool, indexed by ToolId.
package manifest

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/x49dev/tpm/internal/errors"
)

// fieldOrder is the fixed field output order required on save.
var fieldOrder = []string{
	"tool", "version", "binary", "store_path", "symlink_path",
	"installed_at", "checksum", "files",
}

var requiredFields = []string{"tool", "version", "binary", "store_path", "symlink_path"}

const header = "# tpm manifest — do not edit while tpm is running\n"

// ToolId identifies an installed tool by its "owner/repo" form.
type ToolId string

// InstalledTool is one manifest record.
type InstalledTool struct {
	Tool        ToolId
	Version     string
	Binary      string
	StorePath   string
	SymlinkPath string
	InstalledAt time.Time
	Checksum    string
	Files       []string

	// Extras holds any key=value pairs found in a record's block that
	// are not among the known fields above. They are preserved
	// verbatim across load/save so a newer tpm, or a hand-edited
	// manifest, doesn't have its unrecognized keys silently dropped.
	Extras map[string]string
}

// knownFields is the set of field names recordFromFields assigns to a
// named struct field rather than Extras.
var knownFields = map[string]bool{
	"tool": true, "version": true, "binary": true, "store_path": true,
	"symlink_path": true, "installed_at": true, "checksum": true, "files": true,
}

func (r *InstalledTool) toFields() map[string]string {
	f := map[string]string{
		"tool":         string(r.Tool),
		"version":      r.Version,
		"binary":       r.Binary,
		"store_path":   r.StorePath,
		"symlink_path": r.SymlinkPath,
		"checksum":     r.Checksum,
	}
	if !r.InstalledAt.IsZero() {
		f["installed_at"] = r.InstalledAt.Format(time.RFC3339)
	}
	if len(r.Files) > 0 {
		f["files"] = strings.Join(r.Files, ",")
	}
	for k, v := range r.Extras {
		f[k] = v
	}
	return f
}

func recordFromFields(f map[string]string) *InstalledTool {
	r := &InstalledTool{
		Tool:        ToolId(f["tool"]),
		Version:     f["version"],
		Binary:      f["binary"],
		StorePath:   f["store_path"],
		SymlinkPath: f["symlink_path"],
		Checksum:    f["checksum"],
	}
	if v := f["installed_at"]; v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			r.InstalledAt = t
		}
	}
	if v := f["files"]; v != "" {
		r.Files = strings.Split(v, ",")
	}
	for k, v := range f {
		if knownFields[k] {
			continue
		}
		if r.Extras == nil {
			r.Extras = make(map[string]string)
		}
		r.Extras[k] = v
	}
	return r
}

// Manifest is the in-memory, load-once, save-on-dirty ledger of
// installed tools.
type Manifest struct {
	path    string
	records map[ToolId]*InstalledTool
	order   []ToolId // insertion order, preserved across save
	dirty   bool
}

// Load reads path, or returns an empty Manifest if it doesn't exist.
// Blocks missing a tool key are skipped with a warning.
func Load(path string) (*Manifest, error) {
	m := &Manifest{
		path:    path,
		records: make(map[ToolId]*InstalledTool),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, errors.NewFilesystemError(path, err)
	}

	blocks := splitBlocks(string(data))
	for _, block := range blocks {
		fields := parseBlock(block)
		if fields["tool"] == "" {
			slog.Warn("skipping manifest block without a tool key", "path", path)
			continue // recovery: skip, not failure
		}
		rec := recordFromFields(fields)
		m.records[rec.Tool] = rec
		m.order = append(m.order, rec.Tool)
	}

	return m, nil
}

// splitBlocks splits manifest text on "---" delimiter lines.
func splitBlocks(data string) []string {
	var blocks []string
	var current strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "---" {
			if current.Len() > 0 {
				blocks = append(blocks, current.String())
				current.Reset()
			}
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
	}
	if current.Len() > 0 {
		blocks = append(blocks, current.String())
	}
	return blocks
}

// parseBlock parses key=value lines, trimming whitespace and ignoring
// empty or #-prefixed lines.
func parseBlock(block string) map[string]string {
	fields := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(block))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		fields[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return fields
}

// Installed reports whether id has a record.
func (m *Manifest) Installed(id ToolId) bool {
	_, ok := m.records[id]
	return ok
}

// Get returns the record for id.
func (m *Manifest) Get(id ToolId) (*InstalledTool, error) {
	rec, ok := m.records[id]
	if !ok {
		return nil, errors.NewToolNotInstalledError(string(id))
	}
	return rec, nil
}

// Add inserts a new record. Fails with AlreadyExists if id is already
// present, or MissingRequiredField if a required field is empty.
// installed_at defaults to now; files defaults to a scan of the
// version directory (the store_path's parent) if absent.
func (m *Manifest) Add(rec *InstalledTool) error {
	if m.Installed(rec.Tool) {
		return errors.NewAlreadyInstalledError(string(rec.Tool), rec.Version)
	}
	if err := validateRequired(rec); err != nil {
		return err
	}

	cp := *rec
	if cp.InstalledAt.IsZero() {
		cp.InstalledAt = time.Now()
	}
	if len(cp.Files) == 0 {
		cp.Files = scanFiles(filepath.Dir(cp.StorePath))
	}

	m.records[cp.Tool] = &cp
	m.order = append(m.order, cp.Tool)
	m.dirty = true
	return nil
}

// Update applies patch to the record at id. Unspecified (zero-value)
// fields in patch are preserved from the existing record. The tool
// field itself may never change.
func (m *Manifest) Update(id ToolId, patch *InstalledTool) error {
	rec, ok := m.records[id]
	if !ok {
		return errors.NewToolNotInstalledError(string(id))
	}

	merged := *rec
	if patch.Version != "" {
		merged.Version = patch.Version
	}
	if patch.Binary != "" {
		merged.Binary = patch.Binary
	}
	if patch.StorePath != "" {
		merged.StorePath = patch.StorePath
	}
	if patch.SymlinkPath != "" {
		merged.SymlinkPath = patch.SymlinkPath
	}
	if !patch.InstalledAt.IsZero() {
		merged.InstalledAt = patch.InstalledAt
	}
	if patch.Checksum != "" {
		merged.Checksum = patch.Checksum
	}
	if len(patch.Files) > 0 {
		merged.Files = patch.Files
	}
	if len(patch.Extras) > 0 {
		merged.Extras = patch.Extras
	}
	merged.Tool = rec.Tool

	m.records[id] = &merged
	m.dirty = true
	return nil
}

// Remove deletes the record at id.
func (m *Manifest) Remove(id ToolId) error {
	if !m.Installed(id) {
		return errors.NewToolNotInstalledError(string(id))
	}
	delete(m.records, id)
	for i, tid := range m.order {
		if tid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.dirty = true
	return nil
}

// List returns all records in insertion order.
func (m *Manifest) List() []*InstalledTool {
	out := make([]*InstalledTool, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.records[id])
	}
	return out
}

// Validate checks every record has required fields, an existing
// store_path, and a symlink_path that is a symlink resolving to
// store_path.
func (m *Manifest) Validate() []error {
	var errs []error
	for _, id := range m.order {
		rec := m.records[id]
		if err := validateRequired(rec); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := os.Stat(rec.StorePath); err != nil {
			errs = append(errs, errors.NewFilesystemError(rec.StorePath, err))
			continue
		}
		target, err := os.Readlink(rec.SymlinkPath)
		if err != nil {
			errs = append(errs, errors.NewFilesystemError(rec.SymlinkPath, err))
			continue
		}
		resolved := target
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(filepath.Dir(rec.SymlinkPath), resolved)
		}
		if filepath.Clean(resolved) != filepath.Clean(rec.StorePath) {
			errs = append(errs, errors.NewFilesystemError(rec.SymlinkPath, fmt.Errorf("symlink resolves to %s, want %s", resolved, rec.StorePath)))
		}
	}
	return errs
}

// RepairSymlinks recreates every record's symlink that is missing or
// points elsewhere, returning the number repaired.
func (m *Manifest) RepairSymlinks() (int, error) {
	repaired := 0
	for _, id := range m.order {
		rec := m.records[id]
		target, err := os.Readlink(rec.SymlinkPath)
		resolved := target
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(filepath.Dir(rec.SymlinkPath), resolved)
		}
		if err == nil && filepath.Clean(resolved) == filepath.Clean(rec.StorePath) {
			continue
		}
		if err := os.RemoveAll(rec.SymlinkPath); err != nil {
			return repaired, errors.NewFilesystemError(rec.SymlinkPath, err)
		}
		if err := os.MkdirAll(filepath.Dir(rec.SymlinkPath), 0o755); err != nil {
			return repaired, errors.NewFilesystemError(rec.SymlinkPath, err)
		}
		if err := os.Symlink(rec.StorePath, rec.SymlinkPath); err != nil {
			return repaired, errors.NewFilesystemError(rec.SymlinkPath, err)
		}
		repaired++
	}
	return repaired, nil
}

// Dirty reports whether the manifest has unsaved changes.
func (m *Manifest) Dirty() bool { return m.dirty }

func validateRequired(rec *InstalledTool) error {
	fields := rec.toFields()
	for _, name := range requiredFields {
		if fields[name] == "" {
			return errors.NewUsageError(errors.CodeBadToolID, fmt.Sprintf("missing required manifest field %q", name), string(rec.Tool))
		}
	}
	return nil
}

func scanFiles(dir string) []string {
	var files []string
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		files = append(files, path)
		return nil
	})
	sort.Strings(files)
	return files
}
