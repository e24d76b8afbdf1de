// Package cycle runs the convergence cycle: version increment, change
// detection, changelog, manifest, snapshot, smoke gate, size policy and
// packaging, as one linear sequence of stages.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fatcrapinmybutt/the-manbearpig/internal/log"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/changes"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/config"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/ledger"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/lock"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/manifest"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/smoke"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/snapshot"
)

// Refresher updates auxiliary state after the manifest is written.
type Refresher func(ctx context.Context) error

// Engine runs cycles against one configuration. Runs are serialized.
type Engine struct {
	cfg       *config.Config
	logger    *zap.Logger
	now       func() time.Time
	source    changes.Source
	extra     map[string]changes.Source
	refresh   Refresher
	smokeOpts []smoke.Option
	useLock   bool
	trace     bool
	builder   *manifest.Builder

	mu sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the base logger. Defaults to the global logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock sets the time source used for every timestamp of a run.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithChangeSource replaces the configured source chain.
func WithChangeSource(s changes.Source) Option {
	return func(e *Engine) { e.source = s }
}

// WithNamedSource provides a source the configuration may name in
// changes.sources.
func WithNamedSource(name string, s changes.Source) Option {
	return func(e *Engine) { e.extra[name] = s }
}

// WithRefresher runs fn after each manifest update. Its failure is
// logged and does not fail the cycle.
func WithRefresher(fn Refresher) Option {
	return func(e *Engine) { e.refresh = fn }
}

// WithSmokeOptions passes options to the smoke runner.
func WithSmokeOptions(opts ...smoke.Option) Option {
	return func(e *Engine) { e.smokeOpts = append(e.smokeOpts, opts...) }
}

// WithLock overrides cycle.lock from the configuration.
func WithLock(enabled bool) Option {
	return func(e *Engine) { e.useLock = enabled }
}

// WithTraceLog enables or disables the per-run trace log file.
func WithTraceLog(enabled bool) Option {
	return func(e *Engine) { e.trace = enabled }
}

// New creates an engine for cfg.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("cycle requires a configuration")
	}
	e := &Engine{
		cfg:     cfg,
		now:     time.Now,
		extra:   map[string]changes.Source{},
		useLock: cfg.Cycle.Lock,
		trace:   true,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = log.Logger()
	}

	b, err := manifest.NewBuilder(cfg, e.logger.Sugar(), manifest.WithClock(e.now))
	if err != nil {
		return nil, err
	}
	e.builder = b
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() *config.Config { return e.cfg }

// Builder returns the manifest builder shared by every run.
func (e *Engine) Builder() *manifest.Builder { return e.builder }

// Ledger returns the version ledger.
func (e *Engine) Ledger() *ledger.Ledger {
	return ledger.New(e.cfg, e.logger.Sugar())
}

// Snapshots returns the snapshot archiver.
func (e *Engine) Snapshots() *snapshot.Archiver {
	return snapshot.New(e.cfg, e.logger.Sugar(), snapshot.WithClock(e.now))
}

func (e *Engine) changeSource(logger *zap.SugaredLogger) (changes.Source, error) {
	if e.source != nil {
		return e.source, nil
	}
	return changes.FromConfig(e.cfg, logger, e.extra)
}

func (e *Engine) acquire(logger *zap.SugaredLogger) (release func(), err error) {
	if !e.useLock {
		return func() {}, nil
	}
	l, err := lock.Acquire(e.cfg.StateDir())
	if err != nil {
		return nil, err
	}
	if l.Stale != 0 {
		logger.Warnw("took over stale cycle lock", "pid", l.Stale)
	}
	return func() {
		if err := l.Release(); err != nil {
			logger.Warnw("failed to release cycle lock", "error", err)
		}
	}, nil
}

// traceLogger returns the run logger, teed into the cycle log when
// enabled.
func (e *Engine) traceLogger() (*zap.Logger, func()) {
	if !e.trace {
		return e.logger, func() {}
	}
	l, closeFn, err := log.Tee(e.logger, e.cfg.LogFile(config.CycleLogName))
	if err != nil {
		e.logger.Sugar().Warnw("cycle trace log unavailable", "error", err)
		return e.logger, func() {}
	}
	return l, func() { _ = closeFn() }
}

// Snapshot freezes the current version without incrementing it.
func (e *Engine) Snapshot(ctx context.Context) (*snapshot.Manifest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	logger := e.logger.Sugar().With("component", "cycle")
	release, err := e.acquire(logger)
	if err != nil {
		return nil, err
	}
	defer release()

	v, err := e.Ledger().Read()
	if err != nil {
		return nil, err
	}
	if v.IsZero() {
		return nil, fmt.Errorf("no version to snapshot; run a cycle first")
	}
	return e.Snapshots().Create(ctx, v.String())
}
