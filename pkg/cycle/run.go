package cycle

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fatcrapinmybutt/the-manbearpig/pkg/changelog"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/changes"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/ledger"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/lock"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/release"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/sizepolicy"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/smoke"
)

// run holds the state carried between the stages of one cycle.
type run struct {
	e       *Engine
	res     *Result
	log     *zap.SugaredLogger
	journal *lock.Journal
	version ledger.Version
}

type step struct {
	stage Stage
	fn    func(context.Context) error
}

// Run executes one cycle. Stages run in order; the first failure stops
// the cycle and is reported in Result.Err as a *StageError. Nothing that
// already completed is undone.
func (e *Engine) Run(ctx context.Context) *Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := &Result{Stage: StageStart, Started: e.now()}
	base, closeTrace := e.traceLogger()
	defer closeTrace()
	logger := base.Sugar().With("component", "cycle")

	unlock, err := e.acquire(logger)
	if err != nil {
		res.Err = &StageError{Stage: StageStart, Err: err}
		logger.Errorw("cycle not started", "error", err)
		return res
	}
	defer unlock()

	if left, err := lock.ReadIntent(e.cfg.StateDir()); err == nil && left != nil {
		msg := "previous cycle was interrupted"
		if left.Failed() {
			msg = "previous cycle failed"
		}
		logger.Warnw(msg, "cycle_id", left.CycleID, "version", left.Version,
			"stage", left.Stage, "started_at", left.StartedAt, "error", left.Error)
	}
	journal, err := lock.Begin(e.cfg.StateDir(), e.now)
	if err != nil {
		res.Err = &StageError{Stage: StageStart, Err: err}
		logger.Errorw("cycle not started", "error", err)
		return res
	}
	res.CycleID = journal.CycleID()
	logger = logger.With("cycle_id", res.CycleID)

	r := &run{e: e, res: res, log: logger, journal: journal}
	logger.Infow("convergence cycle started", "root", e.cfg.Root)

	steps := []step{
		{StageVersionIncrement, r.incrementVersion},
		{StagePointerUpdate, r.updatePointer},
		{StageChangeDetect, r.detectChanges},
		{StageChangelogUpdate, r.updateChangelog},
		{StageManifestUpdate, r.updateManifest},
		{StageSnapshotCreate, r.createSnapshot},
		{StageSmokeTest, r.smokeTest},
		{StageSizePolicy, r.sizePolicy},
		{StageReleaseDecision, r.releaseDecision},
	}
	for _, s := range steps {
		if err := r.enter(ctx, s); err != nil {
			return r.fail(err)
		}
	}
	final := step{StageSkip, r.skip}
	if res.ReleaseReason != "" {
		final = step{StagePackage, r.pack}
	}
	if err := r.enter(ctx, final); err != nil {
		return r.fail(err)
	}
	return r.done()
}

func (r *run) enter(ctx context.Context, s step) error {
	r.res.Stage = s.stage
	if err := r.journal.Record(string(s.stage), r.res.Version); err != nil {
		return &StageError{Stage: s.stage, Err: err}
	}
	r.log.Infow("stage started", "stage", string(s.stage))
	return guard(ctx, s.stage, s.fn)
}

func (r *run) fail(err error) *Result {
	r.res.Err = err
	r.res.Duration = r.e.now().Sub(r.res.Started)
	stage := r.res.Stage
	var se *StageError
	if errors.As(err, &se) {
		stage = se.Stage
	}
	if se != nil && se.Panicked() {
		r.log.Errorw("convergence cycle failed", "stage", string(stage), "version", r.res.Version,
			"error", se.Err, "stack", string(se.Stack))
	} else {
		r.log.Errorw("convergence cycle failed", "stage", string(stage), "version", r.res.Version, "error", err)
	}
	// the record stays behind so the next cycle and status can report it
	if err := r.journal.Fail(string(stage), err); err != nil {
		r.log.Warnw("failed cycle not recorded", "error", err)
	}
	return r.res
}

func (r *run) done() *Result {
	r.res.Stage = StageDone
	r.res.Duration = r.e.now().Sub(r.res.Started)
	if err := r.journal.Done(); err != nil {
		r.log.Warnw("intent record not cleared", "error", err)
	}
	r.log.Infow("convergence cycle complete",
		"version", r.res.Version,
		"modules", r.res.ModuleCount,
		"changed", r.res.Changes.Len(),
		"smoke", passFail(r.res.SmokePassed),
		"patches_mode", r.res.PatchesMode,
		"duration", r.res.Duration.Round(time.Millisecond).String())
	return r.res
}

func passFail(ok bool) string {
	if ok {
		return "PASS"
	}
	return "FAIL"
}

func (r *run) incrementVersion(context.Context) error {
	l := ledger.New(r.e.cfg, r.log)
	next, prev, err := l.Increment()
	if err != nil {
		return err
	}
	r.version = next
	r.res.Version, r.res.Previous = next.String(), prev.String()
	return nil
}

func (r *run) updatePointer(context.Context) error {
	return ledger.New(r.e.cfg, r.log).SetCurrent(r.version)
}

func (r *run) detectChanges(ctx context.Context) error {
	src, err := r.e.changeSource(r.log)
	if err != nil {
		return err
	}
	cs, err := src.Changes(ctx)
	if errors.Is(err, changes.ErrNoSource) {
		r.log.Warnw("no change source succeeded, continuing with no changes", "error", err)
		cs, err = changes.NewChangeSet("none", nil), nil
	}
	if err != nil {
		return err
	}
	r.res.Changes = cs
	r.log.Infow("changes detected", "source", cs.Source, "count", cs.Len())
	return nil
}

func (r *run) updateChangelog(context.Context) error {
	w := changelog.New(r.e.cfg.ChangelogFile(), r.e.cfg.Changelog)
	return w.Append(r.res.Version, r.e.now(), r.res.Changes)
}

func (r *run) updateManifest(ctx context.Context) error {
	m, err := r.e.builder.Using(r.log).Build(ctx, r.res.Version)
	if err != nil {
		return err
	}
	if err := m.Write(r.e.cfg.ManifestFile()); err != nil {
		return err
	}
	r.res.ModuleCount = m.Len()

	if r.e.refresh != nil {
		if err := r.e.refresh(ctx); err != nil {
			r.log.Warnw("fingerprint refresh failed", "error", err)
		}
	}
	return nil
}

func (r *run) createSnapshot(ctx context.Context) error {
	m, err := r.e.Snapshots().Create(ctx, r.res.Version)
	if err != nil {
		return err
	}
	r.res.Snapshot = m.FileCount
	return nil
}

func (r *run) smokeTest(ctx context.Context) error {
	runner, err := smoke.New(r.e.cfg, r.e.builder, r.log, append([]smoke.Option{smoke.WithClock(r.e.now)}, r.e.smokeOpts...)...)
	if err != nil {
		return err
	}
	rep, err := runner.Run(ctx, r.res.Version)
	if err != nil {
		return err
	}
	r.res.Smoke = rep
	r.res.SmokePassed = rep.Passed
	return nil
}

func (r *run) sizePolicy(ctx context.Context) error {
	enf, err := sizepolicy.New(r.e.cfg, r.log)
	if err != nil {
		return err
	}
	rep, err := enf.Enforce(ctx, r.res.Version)
	if err != nil {
		return err
	}
	r.res.Size = rep
	r.res.SizeOK = rep.OK()
	r.res.PatchesMode = rep.PatchesMode
	return nil
}

func (r *run) releaseDecision(context.Context) error {
	ok, reason := release.ShouldBuild(r.res.Changes, r.e.cfg.Release.MinChanges)
	r.log.Infow("release decision", "build", ok, "reason", reason)
	if ok {
		r.res.ReleaseReason = reason
	}
	return nil
}

func (r *run) pack(ctx context.Context) error {
	p, err := release.New(r.e.cfg, r.log, release.WithClock(r.e.now))
	if err != nil {
		return err
	}
	var total int64
	if r.res.Size != nil {
		total = r.res.Size.Total
	}
	art, err := p.Build(ctx, release.Request{
		Version:     r.res.Version,
		ChangeSet:   r.res.Changes,
		PatchesMode: r.res.PatchesMode,
		ModuleCount: r.res.ModuleCount,
		TotalSize:   total,
	})
	if err != nil {
		return err
	}
	r.res.Artifact = art
	return nil
}

func (r *run) skip(context.Context) error {
	r.log.Infow("skipping release build")
	return nil
}
