package changes

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fatcrapinmybutt/the-manbearpig/pkg/config"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/tracked"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func rulesFor(t *testing.T, root string) *tracked.Rules {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Root = root
	return tracked.FromConfig(cfg)
}

func TestNewChangeSet_Normalizes(t *testing.T) {
	cs := NewChangeSet("x", []string{"b.py", "./a.py", "b.py", "", "  ", "dir\\c.py"})
	assert.Equal(t, "x", cs.Source)
	assert.Contains(t, cs.Paths, "a.py")
	assert.Contains(t, cs.Paths, "b.py")
	assert.Equal(t, 3, cs.Len())
	assert.True(t, slicesSorted(cs.Paths))
}

func slicesSorted(s []string) bool {
	for i := 1; i < len(s); i++ {
		if s[i-1] >= s[i] {
			return false
		}
	}
	return true
}

func TestChangeSet_TopLevelDirs(t *testing.T) {
	cs := NewChangeSet("x", []string{"README.md", "a/x.py", "a/b/y.py", "c/z.py", "root.py"})
	assert.Equal(t, []string{"a", "c"}, cs.TopLevelDirs())

	var nilSet *ChangeSet
	assert.Nil(t, nilSet.TopLevelDirs())
	assert.True(t, nilSet.IsEmpty())
	assert.False(t, nilSet.IsAdded("a"))
}

func TestParseNameStatus(t *testing.T) {
	out := []byte("M\x00src/a.py\x00A\x00src/new.py\x00D\x00old.py\x00R087\x00x/from.py\x00x/to.py\x00")
	st := newStatusSet()
	parseNameStatus(out, st)
	cs := st.changeSet("git")

	assert.Equal(t, []string{"old.py", "src/a.py", "src/new.py", "x/from.py", "x/to.py"}, cs.Paths)
	assert.True(t, cs.IsAdded("src/new.py"))
	assert.True(t, cs.IsAdded("x/to.py"))
	assert.False(t, cs.IsAdded("src/a.py"))
	assert.Equal(t, []string{"old.py", "x/from.py"}, cs.Deleted)
}

func TestParsePorcelain(t *testing.T) {
	out := []byte(" M mod.py\x00?? fresh.py\x00A  staged.py\x00 D gone.py\x00R  renamed.py\x00orig.py\x00")
	st := newStatusSet()
	parsePorcelain(out, st)
	cs := st.changeSet("git")

	assert.Equal(t, []string{"fresh.py", "gone.py", "mod.py", "orig.py", "renamed.py", "staged.py"}, cs.Paths)
	assert.True(t, cs.IsAdded("fresh.py"))
	assert.True(t, cs.IsAdded("staged.py"))
	assert.True(t, cs.IsAdded("renamed.py"))
	assert.Equal(t, []string{"gone.py", "orig.py"}, cs.Deleted)
}

func TestStatusSet_Prefix(t *testing.T) {
	st := newStatusSet()
	st.prefix = "proj/"
	parseNameStatus([]byte("M\x00proj/a.py\x00M\x00other/x.py\x00R100\x00other/y.py\x00proj/y.py\x00"), st)
	parsePorcelain([]byte("?? proj/lib/new.py\x00?? projection.py\x00"), st)
	cs := st.changeSet("git")

	assert.Equal(t, []string{"a.py", "lib/new.py", "y.py"}, cs.Paths)
	assert.True(t, cs.IsAdded("y.py"))
	assert.True(t, cs.IsAdded("lib/new.py"))
	assert.Empty(t, cs.Deleted)
}

func TestParse_Empty(t *testing.T) {
	st := newStatusSet()
	parseNameStatus(nil, st)
	parsePorcelain([]byte("\n"), st)
	assert.Equal(t, 0, st.changeSet("git").Len())
}

func TestChangeSet_FilterByRules(t *testing.T) {
	root := t.TempDir()
	st := newStatusSet()
	parseNameStatus([]byte("A\x00a.py\x00A\x00img.png\x00D\x00node_modules/x.js\x00M\x00VERSIONS/v0001/a.py\x00"), st)
	cs := st.changeSet("git")
	cs.filter(rulesFor(t, root))

	assert.Equal(t, []string{"a.py"}, cs.Paths)
	assert.True(t, cs.IsAdded("a.py"))
	assert.False(t, cs.IsAdded("img.png"))
	assert.Empty(t, cs.Deleted)
}

func TestMTimeSource(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "fresh.py", "x")
	writeFile(t, root, "stale.py", "x")
	writeFile(t, root, "skip.bin", "x")

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(filepath.Join(root, "fresh.py"), now, now.Add(-time.Hour)))
	require.NoError(t, os.Chtimes(filepath.Join(root, "stale.py"), now, now.Add(-48*time.Hour)))
	require.NoError(t, os.Chtimes(filepath.Join(root, "skip.bin"), now, now))

	src := NewMTimeSource(rulesFor(t, root), 24*time.Hour)
	src.Now = func() time.Time { return now }

	cs, err := src.Changes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "mtime", cs.Source)
	assert.Equal(t, []string{"fresh.py"}, cs.Paths)
	assert.Empty(t, cs.Added)
}

func TestChain_FirstSuccessWins(t *testing.T) {
	boom := errors.New("boom")
	chain := NewChain(nil,
		Static{Label: "broken", Err: boom},
		Static{Label: "good", Set: NewChangeSet("", []string{"a.py"})},
		Static{Label: "never", Set: NewChangeSet("never", []string{"b.py"})},
	)

	cs, err := chain.Changes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "good", cs.Source)
	assert.Equal(t, []string{"a.py"}, cs.Paths)
	assert.Equal(t, "broken,good,never", chain.Name())
}

func TestChain_AllFail(t *testing.T) {
	boom := errors.New("boom")
	chain := NewChain(nil, Static{Label: "a", Err: boom}, Static{Label: "b", Err: boom})

	_, err := chain.Changes(context.Background())
	assert.ErrorIs(t, err, ErrNoSource)
	assert.ErrorIs(t, err, boom)
}

func TestChain_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewChain(nil, Static{}).Changes(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFromConfig(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Root = t.TempDir()

	chain, err := FromConfig(cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "git,mtime", chain.Name())

	cfg.Changes.Sources = []string{"index", "mtime"}
	_, err = FromConfig(cfg, nil, nil)
	assert.Error(t, err)

	chain, err = FromConfig(cfg, nil, map[string]Source{"index": Static{Label: "index"}})
	require.NoError(t, err)
	assert.Equal(t, "index,mtime", chain.Name())

	cfg.Changes.Sources = nil
	_, err = FromConfig(cfg, nil, nil)
	assert.Error(t, err)
}

func git(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		"GIT_CONFIG_NOSYSTEM=1", "HOME="+dir,
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
}

func TestGitSource(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	root := t.TempDir()
	git(t, root, "init", "-q")
	writeFile(t, root, "a.py", "1")
	writeFile(t, root, "lib/b.py", "1")
	git(t, root, "add", ".")
	git(t, root, "commit", "-q", "-m", "one")

	writeFile(t, root, "lib/b.py", "2")
	writeFile(t, root, "lib/c.py", "1")
	git(t, root, "add", ".")
	git(t, root, "commit", "-q", "-m", "two")

	writeFile(t, root, "untracked.md", "new")
	writeFile(t, root, "a.py", "dirty")

	src := NewGitSource(rulesFor(t, root), "HEAD~1..HEAD", true, 10*time.Second)
	cs, err := src.Changes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py", "lib/b.py", "lib/c.py", "untracked.md"}, cs.Paths)
	assert.True(t, cs.IsAdded("lib/c.py"))
	assert.True(t, cs.IsAdded("untracked.md"))
	assert.False(t, cs.IsAdded("lib/b.py"))

	src.IncludeWorktree = false
	cs, err = src.Changes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"lib/b.py", "lib/c.py"}, cs.Paths)
}

func TestGitSource_SingleCommitFails(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	root := t.TempDir()
	git(t, root, "init", "-q")
	writeFile(t, root, "a.py", "1")
	git(t, root, "add", ".")
	git(t, root, "commit", "-q", "-m", "one")

	src := NewGitSource(rulesFor(t, root), "HEAD~1..HEAD", true, 10*time.Second)
	_, err := src.Changes(context.Background())
	assert.Error(t, err)
}

func TestGitSource_RootBelowTopLevel(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	repo := t.TempDir()
	git(t, repo, "init", "-q")
	writeFile(t, repo, "proj/a.py", "1")
	writeFile(t, repo, "other/x.py", "1")
	git(t, repo, "add", ".")
	git(t, repo, "commit", "-q", "-m", "one")

	writeFile(t, repo, "proj/a.py", "2")
	writeFile(t, repo, "other/x.py", "2")
	git(t, repo, "add", ".")
	git(t, repo, "commit", "-q", "-m", "two")

	writeFile(t, repo, "proj/lib/new.py", "1")
	writeFile(t, repo, "other/dirty.py", "1")

	root := filepath.Join(repo, "proj")
	src := NewGitSource(rulesFor(t, root), "HEAD~1..HEAD", true, 10*time.Second)
	cs, err := src.Changes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py", "lib/new.py"}, cs.Paths)
	assert.True(t, cs.IsAdded("lib/new.py"))
	assert.False(t, cs.IsAdded("a.py"))
}
