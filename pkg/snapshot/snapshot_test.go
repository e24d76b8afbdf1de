package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fatcrapinmybutt/the-manbearpig/pkg/config"
)

func setup(t *testing.T, files map[string]string) (*config.Config, *Archiver) {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Root = t.TempDir()
	for rel, content := range files {
		p := filepath.Join(cfg.Root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	clock := func() time.Time { return time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC) }
	return cfg, New(cfg, nil, WithClock(clock))
}

func TestCreate(t *testing.T) {
	cfg, a := setup(t, map[string]string{
		"core.py":               "import os",
		"docs/readme.md":        "# hi",
		"MANIFEST.json":         "{}",
		"VERSIONS/v0000/old.py": "old",
		"output/x.json":         "{}",
		".converge/state.json":  "{}",
		"photo.png":             "bin",
	})

	m, err := a.Create(context.Background(), "v0001")
	require.NoError(t, err)

	assert.Equal(t, "v0001", m.Version)
	assert.Equal(t, []string{"MANIFEST.json", "core.py", "docs/readme.md"}, m.Files)
	assert.Equal(t, 3, m.FileCount)

	dest := filepath.Join(cfg.VersionsDir(), "v0001")
	data, err := os.ReadFile(filepath.Join(dest, "docs", "readme.md"))
	require.NoError(t, err)
	assert.Equal(t, "# hi", string(data))
	assert.NoFileExists(t, filepath.Join(dest, "photo.png"))
	assert.NoDirExists(t, filepath.Join(dest, "VERSIONS"))

	loaded, err := a.Load("v0001")
	require.NoError(t, err)
	assert.Equal(t, m, loaded)
}

func TestCreate_IsolatedFromLaterEdits(t *testing.T) {
	cfg, a := setup(t, map[string]string{"core.py": "v1"})
	_, err := a.Create(context.Background(), "v0001")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(cfg.Root, "core.py"), []byte("v2"), 0o644))
	_, err = a.Create(context.Background(), "v0002")
	require.NoError(t, err)

	first, err := os.ReadFile(filepath.Join(a.Dir("v0001"), "core.py"))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(first))

	versions, err := a.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"v0001", "v0002"}, versions)

	n, err := a.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// The second snapshot must not contain the first.
	second, err := a.Load("v0002")
	require.NoError(t, err)
	assert.Equal(t, []string{"core.py"}, second.Files)
}

func TestCreate_PreservesModTime(t *testing.T) {
	cfg, a := setup(t, map[string]string{"core.py": "x"})
	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(filepath.Join(cfg.Root, "core.py"), old, old))

	_, err := a.Create(context.Background(), "v0001")
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(a.Dir("v0001"), "core.py"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(old))
}

func TestList_Empty(t *testing.T) {
	_, a := setup(t, nil)
	versions, err := a.List()
	require.NoError(t, err)
	assert.Empty(t, versions)

	_, err = a.Create(context.Background(), "")
	assert.Error(t, err)
	_, err = a.Load("v0009")
	assert.Error(t, err)
}

// onDisk lists the files under dir, excluding the snapshot manifest.
func onDisk(t *testing.T, dir string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || d.Name() == ManifestName {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		files = append(files, filepath.ToSlash(rel))
		return err
	})
	require.NoError(t, err)
	return files
}

func TestCreate_ReplacesExistingSnapshot(t *testing.T) {
	cfg, a := setup(t, map[string]string{"a.py": "a", "b.py": "b"})
	m, err := a.Create(context.Background(), "v0001")
	require.NoError(t, err)
	assert.Equal(t, 2, m.FileCount)

	require.NoError(t, os.Remove(filepath.Join(cfg.Root, "b.py")))
	m, err = a.Create(context.Background(), "v0001")
	require.NoError(t, err)

	assert.Equal(t, 1, m.FileCount)
	assert.Equal(t, []string{"a.py"}, onDisk(t, a.Dir("v0001")))

	entries, err := os.ReadDir(cfg.VersionsDir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "v0001", entries[0].Name())
}

func TestCreate_FailureKeepsPreviousSnapshot(t *testing.T) {
	cfg, a := setup(t, map[string]string{"a.py": "a", "b.py": "b"})
	_, err := a.Create(context.Background(), "v0001")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Create(ctx, "v0001")
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, []string{"a.py", "b.py"}, onDisk(t, a.Dir("v0001")))
	versions, err := a.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"v0001"}, versions)

	entries, err := os.ReadDir(cfg.VersionsDir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
