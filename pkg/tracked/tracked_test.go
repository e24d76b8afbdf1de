package tracked

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fatcrapinmybutt/the-manbearpig/pkg/config"
)

func writeTree(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, f := range files {
		p := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(f), 0o644))
	}
}

func TestInclude(t *testing.T) {
	r := New("/work", Options{
		Extensions:   []string{".py", "md"},
		ExcludeDirs:  []string{"__pycache__", "venv"},
		ExcludePaths: []string{"VERSIONS", "output", "MANIFEST.json"},
	})

	tests := []struct {
		path string
		want bool
	}{
		{"main.py", true},
		{"pkg/mod.py", true},
		{"README.md", true},
		{"README.MD", true},
		{"data.bin", false},
		{"pkg/__pycache__/mod.py", false},
		{"venv/lib/x.py", false},
		{".hidden/x.py", false},
		{"pkg/.secret.py", false},
		{"VERSIONS/v0001/main.py", false},
		{"output/x.md", false},
		{"outputs/x.md", true},
		{"../escape.py", false},
		{"./main.py", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Include(tt.path))
		})
	}
}

func TestIncludeHidden(t *testing.T) {
	r := New("/work", Options{Extensions: []string{".py"}, IncludeHidden: true})
	assert.True(t, r.Include(".tools/gen.py"))
	assert.False(t, r.SkipDir(".tools"))
}

func TestFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root,
		"b.py",
		"a/z.py",
		"a/notes.md",
		"a/image.png",
		"__pycache__/c.py",
		".git/config.py",
		"VERSIONS/v0001/b.py",
		"logs/smoke_tests.log",
	)

	cfg := config.NewConfig()
	cfg.Root = root
	cfg.Track.Extensions = []string{".py", ".md"}

	files, err := FromConfig(cfg).Files(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a/notes.md", "a/z.py", "b.py"}, files)
}

func TestFromConfigExcludesManifest(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "MANIFEST.json", "settings.json")

	cfg := config.NewConfig()
	cfg.Root = root

	files, err := FromConfig(cfg).Files(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"settings.json"}, files)
}

func TestWalkCancelled(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "a.py")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(root, Options{Extensions: []string{".py"}}).Files(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTopLevel(t *testing.T) {
	assert.Equal(t, "", TopLevel("main.py"))
	assert.Equal(t, "pkg", TopLevel("pkg/a/b.py"))
	assert.Equal(t, "pkg", TopLevel("./pkg/b.py"))
}
