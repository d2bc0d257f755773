package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newTestRecord(id ToolId) *InstalledTool {
	return &InstalledTool{
		Tool:        id,
		Version:     "v1.2.3",
		Binary:      "hello",
		StorePath:   "/prefix/tpm/store/example/hello/1.2.3/bin/hello",
		SymlinkPath: "/prefix/bin/hello",
		InstalledAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestLoadMissingFileReturnsEmptyManifest(t *testing.T) {
	dir := t.TempDir()
	m, err := Load(filepath.Join(dir, "manifest"))
	require.NoError(t, err)
	assert.Empty(t, m.List())
	assert.False(t, m.Dirty())
}

func TestAddThenSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest")

	m, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, m.Add(newTestRecord("example/hello")))
	require.True(t, m.Dirty())
	require.NoError(t, m.Save())
	require.False(t, m.Dirty())

	m2, err := Load(path)
	require.NoError(t, err)
	require.True(t, m2.Installed("example/hello"))

	rec, err := m2.Get("example/hello")
	require.NoError(t, err)
	assert.Equal(t, "v1.2.3", rec.Version)
	assert.Equal(t, "hello", rec.Binary)
	assert.Equal(t, "/prefix/bin/hello", rec.SymlinkPath)

	if diff := cmp.Diff(newTestRecord("example/hello"), rec); diff != "" {
		t.Errorf("round-tripped record differs from original (-want +got):\n%s", diff)
	}
}

func TestUnknownKeysPreservedAcrossSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest")

	m, err := Load(path)
	require.NoError(t, err)

	rec := newTestRecord("example/hello")
	rec.Extras = map[string]string{"source": "aqua", "notes": "pinned"}
	require.NoError(t, m.Add(rec))
	require.NoError(t, m.Save())

	m2, err := Load(path)
	require.NoError(t, err)
	got, err := m2.Get("example/hello")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"source": "aqua", "notes": "pinned"}, got.Extras)
}

func TestAddAlreadyInstalledFails(t *testing.T) {
	dir := t.TempDir()
	m, err := Load(filepath.Join(dir, "manifest"))
	require.NoError(t, err)

	require.NoError(t, m.Add(newTestRecord("example/hello")))
	err = m.Add(newTestRecord("example/hello"))
	require.Error(t, err)
}

func TestAddMissingRequiredFieldFails(t *testing.T) {
	dir := t.TempDir()
	m, err := Load(filepath.Join(dir, "manifest"))
	require.NoError(t, err)

	rec := newTestRecord("example/hello")
	rec.Binary = ""
	err = m.Add(rec)
	require.Error(t, err)
}

func TestUpdatePreservesUnspecifiedFields(t *testing.T) {
	dir := t.TempDir()
	m, err := Load(filepath.Join(dir, "manifest"))
	require.NoError(t, err)
	require.NoError(t, m.Add(newTestRecord("example/hello")))

	require.NoError(t, m.Update("example/hello", &InstalledTool{Version: "v1.2.4"}))

	rec, err := m.Get("example/hello")
	require.NoError(t, err)
	assert.Equal(t, "v1.2.4", rec.Version)
	assert.Equal(t, "hello", rec.Binary)
	assert.Equal(t, ToolId("example/hello"), rec.Tool)
}

func TestRemoveDeletesRecord(t *testing.T) {
	dir := t.TempDir()
	m, err := Load(filepath.Join(dir, "manifest"))
	require.NoError(t, err)
	require.NoError(t, m.Add(newTestRecord("example/hello")))

	require.NoError(t, m.Remove("example/hello"))
	assert.False(t, m.Installed("example/hello"))

	err = m.Remove("example/hello")
	require.Error(t, err)
}

func TestSkipsBlockMissingToolKeyWithoutFailing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest")
	content := "# header\n---\nversion=v1.0.0\n---\ntool=example/hello\nversion=v1.0.0\nbinary=hello\nstore_path=/a\nsymlink_path=/b\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, m.List(), 1)
}

func TestSaveOmitsEmptyFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest")
	m, err := Load(path)
	require.NoError(t, err)

	rec := newTestRecord("example/hello")
	require.NoError(t, m.Add(rec))
	require.NoError(t, m.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "checksum=")
}

// TestProperty_RoundTripPreservesRecords verifies add -> save -> load
// reproduces every record's required fields for arbitrary tool sets.
func TestProperty_RoundTripPreservesRecords(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "manifest")

		n := rapid.IntRange(0, 8).Draw(t, "n")
		var ids []ToolId
		m, err := Load(path)
		if err != nil {
			t.Fatal(err)
		}

		for i := 0; i < n; i++ {
			id := ToolId(rapid.StringMatching(`[a-z]{2,8}/[a-z]{2,8}`).Draw(t, "id"))
			if m.Installed(id) {
				continue
			}
			rec := newTestRecord(id)
			if err := m.Add(rec); err != nil {
				t.Fatalf("add failed: %v", err)
			}
			ids = append(ids, id)
		}

		if err := m.Save(); err != nil {
			t.Fatalf("save failed: %v", err)
		}

		m2, err := Load(path)
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}

		for _, id := range ids {
			if !m2.Installed(id) {
				t.Fatalf("record %s lost on round trip", id)
			}
			rec, err := m2.Get(id)
			if err != nil {
				t.Fatalf("get failed: %v", err)
			}
			if rec.Binary != "hello" || rec.Version != "v1.2.3" {
				t.Fatalf("record %s corrupted on round trip: %+v", id, rec)
			}
		}
	})
}
