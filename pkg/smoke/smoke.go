// Package smoke runs the health checks that gate a release.
package smoke

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fatcrapinmybutt/the-manbearpig/internal/log"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/config"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/logbook"
)

// Report is the outcome of one smoke run.
type Report struct {
	Version string    `json:"version"`
	Time    time.Time `json:"time"`
	Results []Result  `json:"results"`
	Passed  bool      `json:"passed"`
}

// Warnings returns advisory results that did not pass.
func (r *Report) Warnings() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Advisory && !res.Passed {
			out = append(out, res)
		}
	}
	return out
}

// Failures returns gating results that did not pass.
func (r *Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.Advisory && !res.Passed {
			out = append(out, res)
		}
	}
	return out
}

// Runner executes every check and records the results.
type Runner struct {
	checks []Check
	book   *logbook.Logbook
	now    func() time.Time
	log    *zap.SugaredLogger
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock sets the time source for report headers.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithChecks replaces the configured checks.
func WithChecks(checks ...Check) Option {
	return func(r *Runner) { r.checks = checks }
}

// New creates a runner with the checks configured in cfg: one module
// check per core module (or a skipped placeholder when there are none),
// manifest integrity, one file check per critical
// file and, when a test command is set, the advisory suite.
func New(cfg *config.Config, x Extractor, logger *zap.SugaredLogger, opts ...Option) (*Runner, error) {
	book, err := logbook.New(cfg.LogFile(config.SmokeLogName))
	if err != nil {
		return nil, fmt.Errorf("failed to open smoke log: %w", err)
	}
	r := &Runner{
		checks: DefaultChecks(cfg, x),
		book:   book,
		now:    time.Now,
		log:    log.Named(logger, "smoke"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// DefaultChecks returns the checks configured in cfg.
func DefaultChecks(cfg *config.Config, x Extractor) []Check {
	var checks []Check
	for _, m := range cfg.Smoke.CoreModules {
		checks = append(checks, ModuleCheck{Module: m, ManifestPath: cfg.ManifestFile(), Extractor: x})
	}
	if len(cfg.Smoke.CoreModules) == 0 {
		checks = append(checks, UnconfiguredModulesCheck{})
	}
	checks = append(checks, ManifestCheck{Root: cfg.Root, ManifestPath: cfg.ManifestFile()})
	for _, f := range cfg.CriticalFiles() {
		checks = append(checks, FileCheck{Root: cfg.Root, Path: f})
	}
	if len(cfg.Smoke.TestCommand) > 0 {
		checks = append(checks, SuiteCheck{Root: cfg.Root, Command: cfg.Smoke.TestCommand, Timeout: cfg.Smoke.TestTimeout})
	}
	return checks
}

// Run executes every check, even after a failure, and appends the
// results to the smoke log. The returned error reports a log write
// failure only; check failures are in the report.
func (r *Runner) Run(ctx context.Context, version string) (*Report, error) {
	rep := &Report{Version: version, Time: r.now(), Passed: true}
	for _, c := range r.checks {
		res := c.Run(ctx)
		rep.Results = append(rep.Results, res)
		switch {
		case res.Passed:
			r.log.Infow("check passed", "check", res.Name)
		case res.Advisory:
			r.log.Warnw("advisory check failed", "check", res.Name, "status", res.Status(), "message", res.Message)
		default:
			rep.Passed = false
			r.log.Errorw("check failed", "check", res.Name, "message", res.Message)
		}
	}

	if err := r.book.Write(block(rep)); err != nil {
		return rep, err
	}
	return rep, nil
}

func block(rep *Report) *logbook.Block {
	b := &logbook.Block{Title: fmt.Sprintf("Smoke Test Run - %s - %s", rep.Version, rep.Time.Format(time.RFC3339))}
	b.Add("")
	for _, res := range rep.Results {
		mark := "✓"
		if !res.Passed {
			mark = "✗"
		}
		line := fmt.Sprintf("%s %s: %s", mark, res.Name, res.Status())
		if res.Message != "" {
			line += " - " + res.Message
		}
		b.Add("%s", line)
	}
	b.Add("")
	overall := "FAIL"
	if rep.Passed {
		overall = "PASS"
	}
	b.Add("Overall: %s", overall)
	return b
}
