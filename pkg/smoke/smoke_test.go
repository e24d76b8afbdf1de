package smoke

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fatcrapinmybutt/the-manbearpig/internal/runner"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/config"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/manifest"
)

type fakeExtractor struct {
	fail map[string]bool
}

func (f fakeExtractor) Extract(_ context.Context, rel string) ([]string, error) {
	if f.fail[rel] {
		return nil, errors.New("syntax error")
	}
	return []string{"os"}, nil
}

// project writes a tree with every critical file and a fresh manifest.
func project(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Root = t.TempDir()
	cfg.Manifest.References = "regex"
	cfg.Smoke.CoreModules = []string{"core", "brain"}

	files := map[string]string{
		"core.py":      "import os\n",
		"lib/brain.py": "import core\n",
		"VERSION":      "v0001",
		"CURRENT":      "v0001",
		"CHANGELOG.md": "# CHANGELOG\n",
	}
	for rel, content := range files {
		p := filepath.Join(cfg.Root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}

	b, err := manifest.NewBuilder(cfg, nil)
	require.NoError(t, err)
	m, err := b.Build(context.Background(), "v0001")
	require.NoError(t, err)
	require.NoError(t, m.Write(cfg.ManifestFile()))
	return cfg
}

var clock = func() time.Time { return time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC) }

func run(t *testing.T, cfg *config.Config, x Extractor) *Report {
	t.Helper()
	r, err := New(cfg, x, nil, WithClock(clock))
	require.NoError(t, err)
	rep, err := r.Run(context.Background(), "v0001")
	require.NoError(t, err)
	return rep
}

func TestRun_AllPass(t *testing.T) {
	cfg := project(t)
	rep := run(t, cfg, fakeExtractor{})

	assert.True(t, rep.Passed)
	assert.Len(t, rep.Results, 2+1+4)
	assert.Empty(t, rep.Failures())

	data, err := os.ReadFile(cfg.LogFile(config.SmokeLogName))
	require.NoError(t, err)
	log := string(data)
	assert.Contains(t, log, "Smoke Test Run - v0001 - 2026-04-01T10:00:00Z")
	assert.Contains(t, log, "✓ Module core: PASS")
	assert.Contains(t, log, "✓ Manifest integrity: PASS")
	assert.Contains(t, log, "✓ Critical file CURRENT: PASS")
	assert.Contains(t, log, "Overall: PASS")
}

func TestRun_EveryCheckRunsAfterFailure(t *testing.T) {
	cfg := project(t)
	require.NoError(t, os.Remove(filepath.Join(cfg.Root, "CURRENT")))

	rep := run(t, cfg, fakeExtractor{fail: map[string]bool{"core.py": true}})

	assert.False(t, rep.Passed)
	assert.Len(t, rep.Results, 7)

	var failed []string
	for _, res := range rep.Failures() {
		failed = append(failed, res.Name)
	}
	assert.Equal(t, []string{"Module core", "Critical file CURRENT"}, failed)

	data, err := os.ReadFile(cfg.LogFile(config.SmokeLogName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "✗ Critical file CURRENT: FAIL - missing")
	assert.Contains(t, string(data), "Overall: FAIL")
}

func TestRun_TamperedFileFailsManifestCheck(t *testing.T) {
	cfg := project(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Root, "core.py"), []byte("import sys\n"), 0o644))

	rep := run(t, cfg, fakeExtractor{})
	assert.False(t, rep.Passed)
	require.Len(t, rep.Failures(), 1)
	assert.Equal(t, "Manifest integrity", rep.Failures()[0].Name)
	assert.Contains(t, rep.Failures()[0].Message, "core.py")
}

func TestModuleCheck_UnknownModule(t *testing.T) {
	cfg := project(t)
	res := ModuleCheck{Module: "ghost", ManifestPath: cfg.ManifestFile(), Extractor: fakeExtractor{}}.Run(context.Background())
	assert.False(t, res.Passed)
	assert.Equal(t, "not in manifest", res.Message)
}

func TestModuleCheck_WithBuilder(t *testing.T) {
	cfg := project(t)
	b, err := manifest.NewBuilder(cfg, nil)
	require.NoError(t, err)

	res := ModuleCheck{Module: "brain", ManifestPath: cfg.ManifestFile(), Extractor: b}.Run(context.Background())
	assert.True(t, res.Passed, res.Message)
	assert.Equal(t, "lib/brain.py (1 references)", res.Message)
}

func TestSuiteCheck_Advisory(t *testing.T) {
	if runtime.GOOS == "windows" || !runner.Available("sh") {
		t.Skip("requires sh")
	}
	cfg := project(t)
	cfg.Smoke.TestCommand = []string{"sh", "-c", "echo failing >&2; exit 1"}

	rep := run(t, cfg, fakeExtractor{})
	assert.True(t, rep.Passed)
	warnings := rep.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, "Test suite", warnings[0].Name)
	assert.True(t, strings.Contains(warnings[0].Message, "failing"))
}

func TestSuiteCheck_Timeout(t *testing.T) {
	if runtime.GOOS == "windows" || !runner.Available("sh") {
		t.Skip("requires sh")
	}
	res := SuiteCheck{Root: t.TempDir(), Command: []string{"sh", "-c", "sleep 5"}, Timeout: 50 * time.Millisecond}.Run(context.Background())
	assert.False(t, res.Passed)
	assert.True(t, res.Advisory)
	assert.Equal(t, "TIMEOUT", res.Message)
	assert.Equal(t, "FAIL", res.Status())
}

func TestSuiteCheck_Missing(t *testing.T) {
	res := SuiteCheck{Root: t.TempDir(), Command: []string{"converge-no-such-tool"}}.Run(context.Background())
	assert.True(t, res.Skipped)
	assert.Equal(t, "SKIP", res.Status())

	res = SuiteCheck{}.Run(context.Background())
	assert.True(t, res.Skipped)
}

func TestSuiteCheck_Argv(t *testing.T) {
	assert.Equal(t, []string{"pytest", "tests/", "-q"}, SuiteCheck{Command: []string{"pytest tests/ -q"}}.Argv())
	assert.Equal(t, []string{"go", "test"}, SuiteCheck{Command: []string{"go", "test"}}.Argv())
}

func TestDefaultChecks(t *testing.T) {
	cfg := config.NewConfig()
	checks := DefaultChecks(cfg, fakeExtractor{})
	require.Len(t, checks, 1+1+4)
	assert.Equal(t, "Core modules", checks[0].Name())

	cfg.Smoke.CoreModules = []string{"a"}
	cfg.Smoke.TestCommand = []string{"make test"}
	checks = DefaultChecks(cfg, fakeExtractor{})
	require.Len(t, checks, 1+1+4+1)
	assert.Equal(t, "Module a", checks[0].Name())
	assert.Equal(t, "Test suite", checks[len(checks)-1].Name())
}

func TestRun_NoCoreModulesIsReported(t *testing.T) {
	cfg := project(t)
	cfg.Smoke.CoreModules = nil
	rep := run(t, cfg, fakeExtractor{})

	assert.True(t, rep.Passed)
	warnings := rep.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, "Core modules", warnings[0].Name)
	assert.Equal(t, "SKIP", warnings[0].Status())
	assert.Contains(t, warnings[0].Message, "smoke.core_modules")

	data, err := os.ReadFile(cfg.LogFile(config.SmokeLogName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Core modules: SKIP")
}
