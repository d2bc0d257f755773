package orchestrator

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x49dev/tpm/internal/config"
	"github.com/x49dev/tpm/internal/manifest"
)

// buildArchive writes a single-file tar.gz release asset containing a
// binary at bin/<name>.
func buildArchive(t *testing.T, dir, filename, binaryName, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	gw := pgzip.NewWriter(f)
	tw := tar.NewWriter(gw)
	hdr := &tar.Header{Name: "bin/" + binaryName, Mode: 0o755, Size: int64(len(content))}
	require.NoError(t, tw.WriteHeader(hdr))
	_, err = tw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())
	return path
}

// releaseHandler serves a fake GitHub "latest release" endpoint for
// one owner/repo, pointing its single asset at assetURL.
func releaseHandler(t *testing.T, tag, assetName, assetURL string, notFound bool) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if notFound {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message":"Not Found"}`)
			return
		}
		w.Header().Set("X-RateLimit-Remaining", "59")
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(time.Hour).Unix()))
		fmt.Fprintf(w, `{
			"tag_name": %q,
			"body": "",
			"assets": [{"name": %q, "browser_download_url": %q, "size": 7}]
		}`, tag, assetName, assetURL)
	}
}

func assetHandler(archivePath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := os.Open(archivePath)
		if err != nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		defer f.Close()
		io.Copy(w, f)
	}
}

func zeroByteAssetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}

func newTestContext(t *testing.T) *Context {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		Prefix:         root,
		BinDir:         filepath.Join(root, "bin"),
		LibDir:         filepath.Join(root, "lib"),
		StoreRoot:      filepath.Join(root, "store"),
		TmpDir:         filepath.Join(root, "tmp"),
		ManifestFile:   filepath.Join(root, "manifest"),
		Arch:           config.ArchARM64,
		NetworkTimeout: 2 * time.Second,
		MaxRetries:     0,
	}
	mf, err := manifest.Load(cfg.ManifestFile)
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := New(cfg, log, mf, "")
	return c
}

func pointAtFakeGitHub(t *testing.T, c *Context, handler http.HandlerFunc) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	require.NoError(t, c.Release.SetBaseURL(server.URL+"/"))
}

func TestInstall_FreshToolScenario(t *testing.T) {
	c := newTestContext(t)
	assetDir := t.TempDir()
	archivePath := buildArchive(t, assetDir, "hello-linux-arm64.tar.gz", "hello", "binary content")

	assetServer := httptest.NewServer(assetHandler(archivePath))
	t.Cleanup(assetServer.Close)

	pointAtFakeGitHub(t, c, releaseHandler(t, "v1.2.3", "hello-linux-arm64.tar.gz", assetServer.URL+"/hello-linux-arm64.tar.gz", false))

	require.NoError(t, c.Install(context.Background(), "example/hello", false))

	binPath := filepath.Join(c.Config.StoreRoot, "example", "hello", "1.2.3", "bin", "hello")
	info, err := os.Stat(binPath)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o111, "binary should be executable")

	link := filepath.Join(c.Config.BinDir, "hello")
	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, binPath, target)

	records := c.Manifest.List()
	require.Len(t, records, 1)
	assert.Equal(t, manifest.ToolId("example/hello"), records[0].Tool)
	assert.Equal(t, "v1.2.3", records[0].Version)
	assert.Equal(t, "hello", records[0].Binary)
}

func TestInstall_ZeroByteArchiveRollsBackCleanly(t *testing.T) {
	c := newTestContext(t)
	assetServer := httptest.NewServer(zeroByteAssetHandler())
	t.Cleanup(assetServer.Close)

	pointAtFakeGitHub(t, c, releaseHandler(t, "v1.2.3", "hello-linux-arm64.tar.gz", assetServer.URL+"/hello-linux-arm64.tar.gz", false))

	err := c.Install(context.Background(), "example/hello", false)
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(c.Config.StoreRoot, "example", "hello"))
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Lstat(filepath.Join(c.Config.BinDir, "hello"))
	assert.True(t, os.IsNotExist(statErr))
	assert.Empty(t, c.Manifest.List())
}

func TestUpdate_ReplacesCurrentKeepsPrevious(t *testing.T) {
	c := newTestContext(t)
	assetDir := t.TempDir()

	archiveV1 := buildArchive(t, assetDir, "hello-linux-arm64-v1.tar.gz", "hello", "binary v1")
	assetServerV1 := httptest.NewServer(assetHandler(archiveV1))
	t.Cleanup(assetServerV1.Close)
	pointAtFakeGitHub(t, c, releaseHandler(t, "v1.2.3", "hello-linux-arm64.tar.gz", assetServerV1.URL+"/a", false))
	require.NoError(t, c.Install(context.Background(), "example/hello", false))

	archiveV2 := buildArchive(t, assetDir, "hello-linux-arm64-v2.tar.gz", "hello", "binary v2")
	assetServerV2 := httptest.NewServer(assetHandler(archiveV2))
	t.Cleanup(assetServerV2.Close)
	require.NoError(t, os.RemoveAll(filepath.Join(c.Config.TmpDir, "release-cache")))
	pointAtFakeGitHub(t, c, releaseHandler(t, "v1.2.4", "hello-linux-arm64.tar.gz", assetServerV2.URL+"/b", false))

	require.NoError(t, c.Update(context.Background(), "example/hello"))

	rec, err := c.Manifest.Get("example/hello")
	require.NoError(t, err)
	assert.Equal(t, "v1.2.4", rec.Version)

	_, err = os.Stat(filepath.Join(c.Config.StoreRoot, "example", "hello", "1.2.3", "bin", "hello"))
	require.NoError(t, err, "previous version should still exist")
	_, err = os.Stat(filepath.Join(c.Config.StoreRoot, "example", "hello", "1.2.4", "bin", "hello"))
	require.NoError(t, err, "new version should exist")

	current, err := os.Readlink(filepath.Join(c.Config.StoreRoot, "example", "hello", "current"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(c.Config.StoreRoot, "example", "hello", "1.2.4"), current)

	symlinkTarget, err := os.Readlink(filepath.Join(c.Config.BinDir, "hello"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(c.Config.StoreRoot, "example", "hello", "1.2.4", "bin", "hello"), symlinkTarget)
}

func TestRemove_LeavesNoTracesInManifestOrBin(t *testing.T) {
	c := newTestContext(t)
	assetDir := t.TempDir()
	archivePath := buildArchive(t, assetDir, "hello-linux-arm64.tar.gz", "hello", "binary content")
	assetServer := httptest.NewServer(assetHandler(archivePath))
	t.Cleanup(assetServer.Close)
	pointAtFakeGitHub(t, c, releaseHandler(t, "v1.2.3", "hello-linux-arm64.tar.gz", assetServer.URL+"/a", false))
	require.NoError(t, c.Install(context.Background(), "example/hello", false))

	require.NoError(t, c.Remove("example/hello"))

	assert.Empty(t, c.Manifest.List())
	_, err := os.Lstat(filepath.Join(c.Config.BinDir, "hello"))
	assert.True(t, os.IsNotExist(err))
}

func TestRepair_RestoresBrokenSymlink(t *testing.T) {
	c := newTestContext(t)
	assetDir := t.TempDir()
	archivePath := buildArchive(t, assetDir, "hello-linux-arm64.tar.gz", "hello", "binary content")
	assetServer := httptest.NewServer(assetHandler(archivePath))
	t.Cleanup(assetServer.Close)
	pointAtFakeGitHub(t, c, releaseHandler(t, "v1.2.3", "hello-linux-arm64.tar.gz", assetServer.URL+"/a", false))
	require.NoError(t, c.Install(context.Background(), "example/hello", false))

	link := filepath.Join(c.Config.BinDir, "hello")
	require.NoError(t, os.Remove(link))

	report, err := c.Repair()
	require.NoError(t, err)
	assert.Equal(t, 1, report.SymlinksRepaired)

	rec, err := c.Manifest.Get("example/hello")
	require.NoError(t, err)
	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, rec.StorePath, target)
}

func TestUpdateAll_ToleratesSingleFailure(t *testing.T) {
	c := newTestContext(t)
	assetDir := t.TempDir()

	archiveA1 := buildArchive(t, assetDir, "a-linux-arm64-v1.tar.gz", "toola", "a v1")
	serverA1 := httptest.NewServer(assetHandler(archiveA1))
	t.Cleanup(serverA1.Close)
	archiveB1 := buildArchive(t, assetDir, "b-linux-arm64-v1.tar.gz", "toolb", "b v1")
	serverB1 := httptest.NewServer(assetHandler(archiveB1))
	t.Cleanup(serverB1.Close)

	githubServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "teamA/toola"):
			releaseHandler(t, "v1.0.0", "a-linux-arm64.tar.gz", serverA1.URL+"/a", false)(w, r)
		case strings.Contains(r.URL.Path, "teamB/toolb"):
			releaseHandler(t, "v1.0.0", "b-linux-arm64.tar.gz", serverB1.URL+"/b", false)(w, r)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(githubServer.Close)
	require.NoError(t, c.Release.SetBaseURL(githubServer.URL+"/"))

	require.NoError(t, c.Install(context.Background(), "teamA/toola", false))
	require.NoError(t, c.Install(context.Background(), "teamB/toolb", false))

	archiveB2 := buildArchive(t, assetDir, "b-linux-arm64-v2.tar.gz", "toolb", "b v2")
	serverB2 := httptest.NewServer(assetHandler(archiveB2))
	t.Cleanup(serverB2.Close)
	require.NoError(t, os.RemoveAll(filepath.Join(c.Config.TmpDir, "release-cache")))

	failing := false
	githubServer2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "teamA/toola"):
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"message":"internal error"}`)
			failing = true
		case strings.Contains(r.URL.Path, "teamB/toolb"):
			releaseHandler(t, "v1.0.1", "b-linux-arm64.tar.gz", serverB2.URL+"/b2", false)(w, r)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(githubServer2.Close)
	require.NoError(t, c.Release.SetBaseURL(githubServer2.URL+"/"))

	results := c.UpdateAll(context.Background())
	assert.True(t, failing)
	require.Len(t, results, 2)

	var gotA, gotB UpdateResult
	for _, r := range results {
		switch r.Tool {
		case "teamA/toola":
			gotA = r
		case "teamB/toolb":
			gotB = r
		}
	}
	assert.Error(t, gotA.Err)
	assert.False(t, gotA.Updated)
	assert.NoError(t, gotB.Err)
	assert.True(t, gotB.Updated)

	recA, err := c.Manifest.Get("teamA/toola")
	require.NoError(t, err)
	assert.Equal(t, "v1.0.0", recA.Version)

	recB, err := c.Manifest.Get("teamB/toolb")
	require.NoError(t, err)
	assert.Equal(t, "v1.0.1", recB.Version)
}

func TestInstall_AlreadyInstalledFailsWithoutForce(t *testing.T) {
	c := newTestContext(t)
	assetDir := t.TempDir()
	archivePath := buildArchive(t, assetDir, "hello-linux-arm64.tar.gz", "hello", "binary content")
	assetServer := httptest.NewServer(assetHandler(archivePath))
	t.Cleanup(assetServer.Close)
	pointAtFakeGitHub(t, c, releaseHandler(t, "v1.2.3", "hello-linux-arm64.tar.gz", assetServer.URL+"/a", false))
	require.NoError(t, c.Install(context.Background(), "example/hello", false))

	err := c.Install(context.Background(), "example/hello", false)
	require.Error(t, err)
}
