// Package store implements tpm's content-addressed tool store: a
// per-version directory tree under STORE_ROOT/<owner>/<repo>/<version>,
// a `current` symlink pointing at the active version, and the symlinks
// under BIN_DIR that make installed tools reachable on PATH.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/x49dev/tpm/internal/config"
	"github.com/x49dev/tpm/internal/errors"
	"github.com/x49dev/tpm/internal/txn"
	"github.com/x49dev/tpm/internal/version"
)

// Store resolves paths under a configured root and mutates them inside
// a caller-supplied transaction.
type Store struct {
	root   string // STORE_ROOT
	binDir string // BIN_DIR
}

// New returns a Store rooted at cfg's StoreRoot and BinDir.
func New(cfg *config.Config) *Store {
	return &Store{root: cfg.StoreRoot, binDir: cfg.BinDir}
}

func (s *Store) toolDir(owner, repo string) string {
	return filepath.Join(s.root, owner, repo)
}

func (s *Store) versionDir(owner, repo, ver string) string {
	return filepath.Join(s.toolDir(owner, repo), version.Sanitize(ver))
}

func (s *Store) currentLink(owner, repo string) string {
	return filepath.Join(s.toolDir(owner, repo), "current")
}

// storeManifest is the per-version `manifest.json` written by
// InstallToStore, distinct from tpm's top-level manifest ledger.
type storeManifest struct {
	Tool         string    `json:"tool"`
	Version      string    `json:"version"`
	Architecture string    `json:"architecture"`
	InstalledAt  time.Time `json:"installed_at"`
	StorePath    string    `json:"store_path"`
	Binary       string    `json:"binary"`
	BinaryPath   string    `json:"binary_path"`
	Files        []string  `json:"files"`
}

// InstallToStore prepares owner/repo's version directory, extracts
// archivePath into it, selects the principal binary, moves it into
// bin/<name>, and best-effort copies any lib/, share/, or other
// top-level directories alongside it. It returns the installed
// binary's store path and chosen name.
func (s *Store) InstallToStore(t *txn.Transaction, owner, repo, ver, archivePath, expectedBinary string, arch config.Arch) (string, string, error) {
	toolID := fmt.Sprintf("%s/%s", owner, repo)
	destDir := s.versionDir(owner, repo, ver)

	if err := t.RecordRemove(destDir); err != nil {
		return "", "", err
	}
	if err := os.RemoveAll(destDir); err != nil {
		return "", "", errors.NewFilesystemError(destDir, err)
	}

	extractDir, err := os.MkdirTemp(filepath.Dir(archivePath), "extract-")
	if err != nil {
		return "", "", errors.NewFilesystemError(archivePath, err)
	}
	defer os.RemoveAll(extractDir)

	if err := extractArchive(archivePath, extractDir); err != nil {
		return "", "", err
	}

	binPath, err := selectBinary(extractDir, expectedBinary, toolID, true)
	if err != nil {
		binPath, err = selectBinary(extractDir, expectedBinary, toolID, false)
		if err != nil {
			return "", "", err
		}
	}
	binaryName := filepath.Base(binPath)
	if expectedBinary != "" {
		binaryName = expectedBinary
	}

	if err := t.RecordMkdir(destDir); err != nil {
		return "", "", err
	}
	binDir := filepath.Join(destDir, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return "", "", errors.NewFilesystemError(binDir, err)
	}

	storeBinPath := filepath.Join(binDir, binaryName)
	if err := t.SafeMove(binPath, storeBinPath); err != nil {
		return "", "", err
	}
	if err := os.Chmod(storeBinPath, 0o755); err != nil {
		return "", "", errors.NewFilesystemError(storeBinPath, err)
	}

	copyAuxiliaryDirs(extractDir, destDir, binPath)

	files := listFiles(destDir)
	mf := storeManifest{
		Tool:         toolID,
		Version:      ver,
		Architecture: string(arch),
		InstalledAt:  time.Now(),
		StorePath:    destDir,
		Binary:       binaryName,
		BinaryPath:   storeBinPath,
		Files:        files,
	}
	if err := writeStoreManifest(destDir, mf); err != nil {
		slog.Warn("failed to write store manifest", "tool", toolID, "error", err)
	}

	return storeBinPath, binaryName, nil
}

// copyAuxiliaryDirs best-effort copies every top-level entry of
// extractDir other than binPath's own directory into destDir. Failures
// are logged, never fatal — auxiliary trees (lib/, share/, docs) are
// not required for a tool to function.
func copyAuxiliaryDirs(extractDir, destDir, binPath string) {
	entries, err := os.ReadDir(extractDir)
	if err != nil {
		slog.Warn("failed to list extraction root for auxiliary copy", "error", err)
		return
	}
	binParent := filepath.Dir(binPath)

	for _, e := range entries {
		src := filepath.Join(extractDir, e.Name())
		if src == binParent {
			continue
		}
		if e.Name() == "bin" {
			continue // already handled via the principal binary move
		}
		dst := filepath.Join(destDir, e.Name())
		if err := copyTree(src, dst); err != nil {
			slog.Warn("auxiliary copy failed", "src", src, "error", err)
		}
	}
}

func writeStoreManifest(destDir string, mf storeManifest) error {
	data, err := json.MarshalIndent(mf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(destDir, "manifest.json"), data, 0o644)
}

func listFiles(dir string) []string {
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

// CreateSymlink places BIN_DIR/<name> as a symlink to storeBinPath. If
// overrideName is non-empty, it is used in place of name.
func (s *Store) CreateSymlink(t *txn.Transaction, storeBinPath, name, overrideName string) (string, error) {
	if overrideName != "" {
		name = overrideName
	}
	link := filepath.Join(s.binDir, name)

	if target, err := os.Readlink(link); err == nil {
		resolved := target
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(filepath.Dir(link), resolved)
		}
		if filepath.Clean(resolved) == filepath.Clean(storeBinPath) {
			return link, nil
		}
	}

	if err := t.RecordSymlink(link); err != nil {
		return "", err
	}
	if err := os.RemoveAll(link); err != nil {
		return "", errors.NewFilesystemError(link, err)
	}
	if err := os.MkdirAll(s.binDir, 0o755); err != nil {
		return "", errors.NewFilesystemError(s.binDir, err)
	}
	if err := os.Symlink(storeBinPath, link); err != nil {
		return "", errors.NewFilesystemError(link, err)
	}
	return link, nil
}

// RemoveInstalled deletes owner/repo's ver version directory and, if
// current points at it, the current symlink too.
func (s *Store) RemoveInstalled(t *txn.Transaction, owner, repo, ver string) error {
	dir := s.versionDir(owner, repo, ver)
	if err := t.RecordRemove(dir); err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return errors.NewFilesystemError(dir, err)
	}

	link := s.currentLink(owner, repo)
	if target, err := os.Readlink(link); err == nil && filepath.Clean(target) == filepath.Clean(dir) {
		if err := t.RecordSymlink(link); err != nil {
			return err
		}
		if err := os.RemoveAll(link); err != nil {
			return errors.NewFilesystemError(link, err)
		}
	}
	return nil
}

// InstalledVersions returns owner/repo's installed versions, sorted by
// normalized version ascending.
func (s *Store) InstalledVersions(owner, repo string) ([]string, error) {
	dir := s.toolDir(owner, repo)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewFilesystemError(dir, err)
	}

	var versions []string
	for _, e := range entries {
		if !e.IsDir() || e.Name() == "current" {
			continue
		}
		versions = append(versions, e.Name())
	}
	sort.Slice(versions, func(i, j int) bool {
		return version.Less(versions[i], versions[j])
	})
	return versions, nil
}

// CurrentVersion reads the `current` symlink; if absent or broken, it
// falls back to fallbackVersion (typically the manifest's record).
func (s *Store) CurrentVersion(owner, repo, fallbackVersion string) string {
	link := s.currentLink(owner, repo)
	target, err := os.Readlink(link)
	if err != nil {
		return fallbackVersion
	}
	return filepath.Base(target)
}

// SetCurrent atomically repoints owner/repo's `current` symlink at ver.
// Fails if ver's version directory does not exist.
func (s *Store) SetCurrent(t *txn.Transaction, owner, repo, ver string) error {
	dir := s.versionDir(owner, repo, ver)
	if _, err := os.Stat(dir); err != nil {
		return errors.NewFilesystemError(dir, err)
	}

	link := s.currentLink(owner, repo)
	if err := t.RecordSymlink(link); err != nil {
		return err
	}
	if err := os.RemoveAll(link); err != nil {
		return errors.NewFilesystemError(link, err)
	}
	if err := os.Symlink(dir, link); err != nil {
		return errors.NewFilesystemError(link, err)
	}
	return nil
}

// CleanupOldVersions deletes the oldest installed versions of
// owner/repo until at most keep remain, never deleting the current
// version regardless of age ordering.
//
// Matches the upstream tool's behavior literally: the deletion
// candidates are the oldest (len(versions)-keep) entries of the
// ascending-sorted list, a fixed-size window rather than an
// open-ended scan. The current version is skipped if it falls inside
// that window, but the window is not extended to compensate — so if
// current is the oldest version, fewer than (total - keep) versions
// end up removed.
func (s *Store) CleanupOldVersions(owner, repo string, keep int, fallbackCurrent string) (int, error) {
	versions, err := s.InstalledVersions(owner, repo)
	if err != nil {
		return 0, err
	}
	if len(versions) <= keep {
		return 0, nil
	}

	current := s.CurrentVersion(owner, repo, fallbackCurrent)
	toRemove := len(versions) - keep
	removed := 0

	for _, v := range versions[:toRemove] {
		if v == current {
			continue
		}
		dir := s.versionDir(owner, repo, v)
		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("failed to remove old version directory", "dir", dir, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// ValidateStore walks the store tree and reports broken `current`
// symlinks and version directories with no populated bin/.
func (s *Store) ValidateStore() []error {
	var errs []error

	owners, err := os.ReadDir(s.root)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return []error{errors.NewFilesystemError(s.root, err)}
	}

	for _, ownerEntry := range owners {
		if !ownerEntry.IsDir() {
			continue
		}
		ownerDir := filepath.Join(s.root, ownerEntry.Name())
		repos, err := os.ReadDir(ownerDir)
		if err != nil {
			errs = append(errs, errors.NewFilesystemError(ownerDir, err))
			continue
		}
		for _, repoEntry := range repos {
			if !repoEntry.IsDir() {
				continue
			}
			toolDir := filepath.Join(ownerDir, repoEntry.Name())
			errs = append(errs, s.validateTool(toolDir)...)
		}
	}
	return errs
}

func (s *Store) validateTool(toolDir string) []error {
	var errs []error

	link := filepath.Join(toolDir, "current")
	if target, err := os.Readlink(link); err != nil {
		if !os.IsNotExist(err) {
			errs = append(errs, errors.NewFilesystemError(link, err))
		}
	} else {
		resolved := target
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(toolDir, resolved)
		}
		if _, err := os.Stat(resolved); err != nil {
			errs = append(errs, errors.NewFilesystemError(link, fmt.Errorf("current symlink target %s missing", resolved)))
		}
	}

	entries, err := os.ReadDir(toolDir)
	if err != nil {
		return append(errs, errors.NewFilesystemError(toolDir, err))
	}
	for _, e := range entries {
		if !e.IsDir() || e.Name() == "current" {
			continue
		}
		binDir := filepath.Join(toolDir, e.Name(), "bin")
		binEntries, err := os.ReadDir(binDir)
		if err != nil || len(binEntries) == 0 {
			errs = append(errs, errors.NewFilesystemError(binDir, fmt.Errorf("version directory has no populated bin/")))
		}
	}
	return errs
}
