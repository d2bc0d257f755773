// Package orchestrator composes the config, transaction, manifest,
// store, and release-resolver layers into tpm's seven verbs: install,
// update, remove, repair, cleanup, list, info.
package orchestrator

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/vbauerster/mpb/v8"

	"github.com/x49dev/tpm/internal/config"
	"github.com/x49dev/tpm/internal/errors"
	"github.com/x49dev/tpm/internal/lock"
	"github.com/x49dev/tpm/internal/manifest"
	"github.com/x49dev/tpm/internal/release"
	"github.com/x49dev/tpm/internal/store"
	"github.com/x49dev/tpm/internal/txn"
	"github.com/x49dev/tpm/internal/version"
)

// keepVersions is the default retention count passed to
// cleanup_old_versions, per spec.
const keepVersions = 3

// Context bundles the injected, construct-once collaborators every
// verb needs. One Context is built at process startup and threaded
// through every command.
type Context struct {
	Config   *config.Config
	Log      *slog.Logger
	Manifest *manifest.Manifest
	Store    *store.Store
	Release  *release.Client
	HTTP     *http.Client
	Progress *mpb.Progress // optional; nil draws no download progress bar, and New leaves it nil
}

// New builds a Context from cfg. token may be empty for unauthenticated
// GitHub access.
func New(cfg *config.Config, log *slog.Logger, mf *manifest.Manifest, token string) *Context {
	cacheDir := filepath.Join(cfg.TmpDir, "release-cache")
	return &Context{
		Config:   cfg,
		Log:      log,
		Manifest: mf,
		Store:    store.New(cfg),
		Release:  release.NewClient(token, cacheDir, cfg.NetworkTimeout, cfg.MaxRetries),
		HTTP:     &http.Client{Timeout: cfg.NetworkTimeout * 3},
	}
}

// UpdateResult is one tool's outcome within an --all update sweep.
type UpdateResult struct {
	Tool    manifest.ToolId
	Updated bool
	Err     error
}

// RepairReport summarizes a repair run.
type RepairReport struct {
	SymlinksRepaired int
	StoreIssues      []error
}

// CleanupReport summarizes a cleanup run.
type CleanupReport struct {
	Removed int
	PerTool map[manifest.ToolId]int
}

func (c *Context) withLock(key string, fn func() error) error {
	l := lock.New(c.Config.TmpDir, key)
	if err := l.TryLock(); err != nil {
		return err
	}
	defer l.Unlock()
	return fn()
}

// Install resolves owner/repo's latest release and installs it.
// Refuses an already-installed tool unless force is set.
func (c *Context) Install(ctx context.Context, rawID string, force bool) error {
	id, owner, repo, err := manifest.ParseToolID(rawID)
	if err != nil {
		return err
	}
	if c.Manifest.Installed(id) && !force {
		rec, _ := c.Manifest.Get(id)
		return errors.NewAlreadyInstalledError(string(id), rec.Version)
	}

	return c.withLock(string(id), func() error {
		return c.installLocked(ctx, id, owner, repo, force)
	})
}

func (c *Context) installLocked(ctx context.Context, id manifest.ToolId, owner, repo string, replace bool) error {
	tx := txn.Begin(c.Config.TmpDir, "install", string(id))

	rel, err := c.Release.GetLatestRelease(ctx, owner, repo)
	if err != nil {
		return tx.Rollback(err)
	}

	if err := c.installRelease(ctx, tx, id, owner, repo, rel, replace); err != nil {
		return tx.Rollback(err)
	}

	if err := tx.Commit(); err != nil {
		c.Log.Warn("commit reported an error", "tool", id, "error", err)
	}
	if err := c.Manifest.Save(); err != nil {
		c.Log.Warn("manifest save failed after commit; in-memory state is ahead of disk", "tool", id, "error", err)
	}
	return nil
}

// installRelease performs the download/store/symlink/manifest steps
// shared by install and update, against an already-begun transaction.
func (c *Context) installRelease(ctx context.Context, tx *txn.Transaction, id manifest.ToolId, owner, repo string, rel *release.Release, replace bool) error {
	asset, err := release.SelectAsset(string(id), rel.Assets, c.Config.Arch)
	if err != nil {
		return err
	}
	expectedChecksum := release.ChecksumForAsset(rel.Body, asset.Name)

	downloadDir := filepath.Join(c.Config.TmpDir, "downloads", sanitizeForPath(string(id)))
	archivePath, err := release.DownloadAsset(ctx, c.HTTP, c.Progress, asset.Name, asset.URL, downloadDir, expectedChecksum, c.Config.NetworkTimeout, c.Config.MaxRetries)
	if err != nil {
		return err
	}
	defer os.RemoveAll(downloadDir)

	storeBinPath, binaryName, err := c.Store.InstallToStore(tx, owner, repo, rel.TagName, archivePath, repo, c.Config.Arch)
	if err != nil {
		return err
	}
	if err := c.Store.SetCurrent(tx, owner, repo, rel.TagName); err != nil {
		return err
	}
	symlinkPath, err := c.Store.CreateSymlink(tx, storeBinPath, binaryName, "")
	if err != nil {
		return err
	}

	rec := &manifest.InstalledTool{
		Tool:        id,
		Version:     rel.TagName,
		Binary:      binaryName,
		StorePath:   storeBinPath,
		SymlinkPath: symlinkPath,
		Checksum:    expectedChecksum,
	}
	if replace && c.Manifest.Installed(id) {
		return c.Manifest.Update(id, rec)
	}
	return c.Manifest.Add(rec)
}

// Update resolves rawID's latest release; if it is no newer than the
// installed version, it is a no-op. Otherwise it installs the new
// version and prunes old versions to keepVersions.
func (c *Context) Update(ctx context.Context, rawID string) error {
	id, owner, repo, err := manifest.ParseToolID(rawID)
	if err != nil {
		return err
	}
	rec, err := c.Manifest.Get(id)
	if err != nil {
		return err
	}

	return c.withLock(string(id), func() error {
		rel, err := c.Release.GetLatestRelease(ctx, owner, repo)
		if err != nil {
			return err
		}
		if version.Compare(rel.TagName, rec.Version) <= 0 {
			c.Log.Info("already at latest version", "tool", id, "version", rec.Version)
			return nil
		}

		tx := txn.Begin(c.Config.TmpDir, "update", string(id))
		if err := c.installRelease(ctx, tx, id, owner, repo, rel, true); err != nil {
			return tx.Rollback(err)
		}
		if err := tx.Commit(); err != nil {
			c.Log.Warn("commit reported an error", "tool", id, "error", err)
		}
		if err := c.Manifest.Save(); err != nil {
			c.Log.Warn("manifest save failed after commit", "tool", id, "error", err)
		}

		if _, err := c.Store.CleanupOldVersions(owner, repo, keepVersions, rel.TagName); err != nil {
			c.Log.Warn("post-update cleanup failed", "tool", id, "error", err)
		}
		return nil
	})
}

// UpdateAll updates every installed tool, tolerating individual
// failures — one tool's error does not stop the remaining tools.
func (c *Context) UpdateAll(ctx context.Context) []UpdateResult {
	var results []UpdateResult
	for _, rec := range c.Manifest.List() {
		before := rec.Version
		err := c.Update(ctx, string(rec.Tool))
		updated := false
		if err == nil {
			if after, getErr := c.Manifest.Get(rec.Tool); getErr == nil && after.Version != before {
				updated = true
			}
		}
		results = append(results, UpdateResult{Tool: rec.Tool, Updated: updated, Err: err})
	}
	return results
}

// Remove deletes id's symlink, version directory, and manifest record.
func (c *Context) Remove(rawID string) error {
	id, owner, repo, err := manifest.ParseToolID(rawID)
	if err != nil {
		return err
	}
	rec, err := c.Manifest.Get(id)
	if err != nil {
		return err
	}

	return c.withLock(string(id), func() error {
		tx := txn.Begin(c.Config.TmpDir, "remove", string(id))

		if err := tx.RecordRemove(rec.SymlinkPath); err != nil {
			return tx.Rollback(err)
		}
		if err := os.RemoveAll(rec.SymlinkPath); err != nil {
			return tx.Rollback(errors.NewFilesystemError(rec.SymlinkPath, err))
		}
		if err := c.Store.RemoveInstalled(tx, owner, repo, rec.Version); err != nil {
			return tx.Rollback(err)
		}
		if err := c.Manifest.Remove(id); err != nil {
			return tx.Rollback(err)
		}

		if err := tx.Commit(); err != nil {
			c.Log.Warn("commit reported an error", "tool", id, "error", err)
		}
		if err := c.Manifest.Save(); err != nil {
			c.Log.Warn("manifest save failed after commit", "tool", id, "error", err)
		}
		return nil
	})
}

// Repair recreates any installed tool's symlink that is missing or
// stale, then validates the store tree.
func (c *Context) Repair() (RepairReport, error) {
	repaired, err := c.Manifest.RepairSymlinks()
	if err != nil {
		return RepairReport{}, err
	}
	if repaired > 0 {
		if err := c.Manifest.Save(); err != nil {
			c.Log.Warn("manifest save failed after repair", "error", err)
		}
	}
	return RepairReport{
		SymlinksRepaired: repaired,
		StoreIssues:      c.Store.ValidateStore(),
	}, nil
}

// Cleanup prunes old versions for every installed (owner, repo),
// keeping keepVersions.
func (c *Context) Cleanup() (CleanupReport, error) {
	report := CleanupReport{PerTool: make(map[manifest.ToolId]int)}

	seen := make(map[string]bool)
	for _, rec := range c.Manifest.List() {
		id, owner, repo, err := manifest.ParseToolID(string(rec.Tool))
		if err != nil {
			continue
		}
		key := owner + "/" + repo
		if seen[key] {
			continue
		}
		seen[key] = true

		n, err := c.Store.CleanupOldVersions(owner, repo, keepVersions, rec.Version)
		if err != nil {
			return report, err
		}
		report.Removed += n
		report.PerTool[id] = n
	}
	return report, nil
}

// List returns every installed tool, taken under the manifest lock so
// a concurrent install/update/remove can't be observed half-applied.
func (c *Context) List() []*manifest.InstalledTool {
	var out []*manifest.InstalledTool
	_ = c.withLock(lock.ManifestKey, func() error {
		out = c.Manifest.List()
		return nil
	})
	return out
}

// Info returns the manifest record for rawID, taken under the
// manifest lock for the same reason as List.
func (c *Context) Info(rawID string) (*manifest.InstalledTool, error) {
	id, _, _, err := manifest.ParseToolID(rawID)
	if err != nil {
		return nil, err
	}

	var rec *manifest.InstalledTool
	err = c.withLock(lock.ManifestKey, func() error {
		var getErr error
		rec, getErr = c.Manifest.Get(id)
		return getErr
	})
	return rec, err
}

func sanitizeForPath(s string) string {
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
