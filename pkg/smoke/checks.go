package smoke

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatcrapinmybutt/the-manbearpig/internal/runner"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/manifest"
)

// Result is the outcome of one check.
type Result struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`

	// Advisory results are reported but never fail the gate.
	Advisory bool `json:"advisory,omitempty"`

	// Skipped marks an advisory check that could not run.
	Skipped bool `json:"skipped,omitempty"`
}

// Status renders PASS, FAIL or SKIP.
func (r Result) Status() string {
	switch {
	case r.Skipped:
		return "SKIP"
	case r.Passed:
		return "PASS"
	default:
		return "FAIL"
	}
}

// Check is one health check.
type Check interface {
	Name() string
	Run(ctx context.Context) Result
}

// Extractor loads a source file and returns its references. The
// manifest builder satisfies it.
type Extractor interface {
	Extract(ctx context.Context, rel string) ([]string, error)
}

// UnconfiguredModulesCheck stands in for the module checks when no core
// modules are configured, so the gap shows up as a skipped result.
type UnconfiguredModulesCheck struct{}

// Name implements Check.
func (UnconfiguredModulesCheck) Name() string { return "Core modules" }

// Run implements Check.
func (c UnconfiguredModulesCheck) Run(context.Context) Result {
	return Result{Name: c.Name(), Advisory: true, Skipped: true, Message: "no core modules configured (smoke.core_modules)"}
}

// ModuleCheck requires a core module to be listed in the manifest and to
// load: readable, with its references extracted without error.
type ModuleCheck struct {
	Module       string
	ManifestPath string
	Extractor    Extractor
}

// Name implements Check.
func (c ModuleCheck) Name() string { return "Module " + c.Module }

// Run implements Check.
func (c ModuleCheck) Run(ctx context.Context) Result {
	res := Result{Name: c.Name()}
	m, err := manifest.Load(c.ManifestPath)
	if err != nil {
		res.Message = err.Error()
		return res
	}
	entry, ok := m.Lookup(c.Module)
	if !ok {
		res.Message = "not in manifest"
		return res
	}
	refs, err := c.Extractor.Extract(ctx, entry.Path)
	if err != nil {
		res.Message = err.Error()
		return res
	}
	res.Passed = true
	res.Message = fmt.Sprintf("%s (%d references)", entry.Path, len(refs))
	return res
}

// ManifestCheck re-verifies every manifest entry against the tree.
type ManifestCheck struct {
	Root         string
	ManifestPath string
}

// Name implements Check.
func (ManifestCheck) Name() string { return "Manifest integrity" }

// Run implements Check.
func (c ManifestCheck) Run(ctx context.Context) Result {
	res := Result{Name: c.Name()}
	m, err := manifest.Load(c.ManifestPath)
	if err != nil {
		res.Message = err.Error()
		return res
	}
	if err := manifest.Verify(ctx, c.Root, m); err != nil {
		res.Message = err.Error()
		return res
	}
	res.Passed = true
	res.Message = fmt.Sprintf("%d entries verified", m.Len())
	return res
}

// FileCheck requires a file to exist.
type FileCheck struct {
	Root string
	Path string
}

// Name implements Check.
func (c FileCheck) Name() string { return "Critical file " + c.Path }

// Run implements Check.
func (c FileCheck) Run(context.Context) Result {
	res := Result{Name: c.Name()}
	if _, err := os.Stat(filepath.Join(c.Root, filepath.FromSlash(c.Path))); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			res.Message = "missing"
		} else {
			res.Message = err.Error()
		}
		return res
	}
	res.Passed = true
	return res
}

// SuiteCheck runs an external test command. It is advisory: failure and
// timeout are reported as warnings only.
type SuiteCheck struct {
	Root    string
	Command []string
	Timeout time.Duration
}

// Name implements Check.
func (SuiteCheck) Name() string { return "Test suite" }

// Argv returns the command vector. A single element containing spaces is
// split into fields.
func (c SuiteCheck) Argv() []string {
	if len(c.Command) == 1 && strings.ContainsAny(c.Command[0], " \t") {
		return strings.Fields(c.Command[0])
	}
	return c.Command
}

// Run implements Check.
func (c SuiteCheck) Run(ctx context.Context) Result {
	res := Result{Name: c.Name(), Advisory: true}
	argv := c.Argv()
	if len(argv) == 0 {
		res.Skipped = true
		res.Message = "no test command configured"
		return res
	}
	r := runner.New(runner.WithDir(c.Root), runner.WithTimeout(c.Timeout))
	out, err := r.Run(ctx, argv)
	switch {
	case errors.Is(err, runner.ErrNotFound):
		res.Skipped = true
		res.Message = err.Error()
	case errors.Is(err, runner.ErrTimeout):
		res.Message = "TIMEOUT"
	case err != nil:
		res.Message = err.Error()
		if out != nil {
			if combined := out.Combined(); combined != "" {
				res.Message += "\n" + combined
			}
		}
	default:
		res.Passed = true
		res.Message = fmt.Sprintf("completed in %s", out.Duration.Round(time.Millisecond))
	}
	return res
}
