package patch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/fatcrapinmybutt/the-manbearpig/internal/log"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/release"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/util"
)

// HistoryName is the patch history file inside the state directory.
const HistoryName = "patch_history.json"

// Outcome statuses.
const (
	StatusApplied    = "applied"
	StatusSkipped    = "skipped"
	StatusFailed     = "failed"
	StatusRolledBack = "rolled_back"
)

// Outcome records what happened to one target.
type Outcome struct {
	Archive   string    `json:"archive"`
	Version   string    `json:"version"`
	Strategy  string    `json:"strategy"`
	Target    string    `json:"target"`
	Backup    string    `json:"backup,omitempty"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Report is the result of one Apply.
type Report struct {
	Archive  string    `json:"archive"`
	Version  string    `json:"version"`
	Strategy string    `json:"strategy"`
	Outcomes []Outcome `json:"outcomes"`
}

// Count returns the number of outcomes with status.
func (r *Report) Count(status string) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

type options struct {
	stateDir string
	now      func() time.Time
	log      *zap.SugaredLogger
}

// Option configures Apply.
type Option func(*options)

// WithStateDir sets where backups and the history file live. Defaults to
// <root>/.converge.
func WithStateDir(dir string) Option {
	return func(o *options) { o.stateDir = dir }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) { o.log = l }
}

// written tracks a target changed by this run so it can be restored.
type written struct {
	index  int
	path   string
	backup string
}

// Apply writes the payloads of the patches archive at archivePath into
// root using the strategy strategyID. Every existing target is backed up
// before it is overwritten. On the first failure all targets written so
// far are restored and the error is returned with the report. Every
// outcome is appended to the patch history.
func Apply(ctx context.Context, archivePath, root, strategyID string, opts ...Option) (*Report, error) {
	o := options{stateDir: filepath.Join(root, ".converge"), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	logger := log.Named(o.log, "patch")

	strat, err := Lookup(strategyID)
	if err != nil {
		return nil, err
	}
	r, err := release.OpenArchive(archivePath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	pm, err := r.PatchesManifest()
	if err != nil {
		return nil, fmt.Errorf("%s is not a patches archive: %w", filepath.Base(archivePath), err)
	}
	stored := map[string]bool{}
	for _, name := range r.Names() {
		stored[name] = true
	}
	for _, rel := range pm.Patches {
		if !stored[rel] {
			return nil, fmt.Errorf("%s: %s is listed but not stored in the archive", filepath.Base(archivePath), rel)
		}
	}

	started := o.now()
	rep := &Report{Archive: filepath.Base(archivePath), Version: pm.Version, Strategy: strat.ID()}
	backupDir := filepath.Join(o.stateDir, "backups", pm.Version+"-"+started.UTC().Format("20060102T150405"))
	outcome := func(rel string) Outcome {
		return Outcome{Archive: rep.Archive, Version: pm.Version, Strategy: strat.ID(), Target: rel, Timestamp: o.now().UTC()}
	}

	var done []written
	var failure error
	patches := slices.Clone(pm.Patches)
	slices.Sort(patches)
	for _, rel := range patches {
		oc := outcome(rel)
		err := func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !filepath.IsLocal(filepath.FromSlash(rel)) {
				return fmt.Errorf("%s: path escapes the tree", rel)
			}
			payload, err := r.ReadFile(rel)
			if err != nil {
				return err
			}
			t := Target{
				Rel:      rel,
				Path:     filepath.Join(root, filepath.FromSlash(rel)),
				Payload:  payload,
				Recorded: pm.Hashes[rel],
				Digest:   pm.Digest,
			}
			info, statErr := os.Stat(t.Path)
			t.Exists = statErr == nil
			action, err := strat.Plan(t)
			if err != nil {
				return err
			}
			if action == Skip {
				oc.Status = StatusSkipped
				return nil
			}

			perm := os.FileMode(0o644)
			if t.Exists {
				perm = info.Mode().Perm()
				oc.Backup = filepath.Join(backupDir, filepath.FromSlash(rel))
				if _, err := util.CopyFile(t.Path, oc.Backup); err != nil {
					return fmt.Errorf("backup failed: %w", err)
				}
			}
			if err := util.WriteFileAtomic(t.Path, payload, perm); err != nil {
				return err
			}
			oc.Status = StatusApplied
			done = append(done, written{index: len(rep.Outcomes), path: t.Path, backup: oc.Backup})
			return nil
		}()
		if err != nil {
			oc.Status, oc.Error = StatusFailed, err.Error()
			rep.Outcomes = append(rep.Outcomes, oc)
			failure = fmt.Errorf("patch %s: %w", rel, err)
			logger.Errorw("patch failed", "target", rel, "error", err)
			break
		}
		logger.Infow("patch "+oc.Status, "target", rel)
		rep.Outcomes = append(rep.Outcomes, oc)
	}

	if failure != nil {
		if err := rollback(rep, done); err != nil {
			failure = errors.Join(failure, err)
		}
		logger.Warnw("patches rolled back", "count", len(done))
	}

	if err := appendHistory(filepath.Join(o.stateDir, HistoryName), rep.Outcomes); err != nil {
		failure = errors.Join(failure, err)
	}
	return rep, failure
}

// rollback restores written targets, newest first.
func rollback(rep *Report, done []written) error {
	var errs []error
	for i := len(done) - 1; i >= 0; i-- {
		w := done[i]
		var err error
		if w.backup != "" {
			_, err = util.CopyFile(w.backup, w.path)
		} else {
			err = os.Remove(w.path)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", w.path, err))
			continue
		}
		rep.Outcomes[w.index].Status = StatusRolledBack
	}
	return errors.Join(errs...)
}

// History reads the patch history in dir, oldest first.
func History(stateDir string) ([]Outcome, error) {
	var out []Outcome
	if err := util.ReadJSON(filepath.Join(stateDir, HistoryName), &out); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

func appendHistory(path string, outcomes []Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	hist, err := History(filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("failed to read patch history: %w", err)
	}
	return util.WriteJSONAtomic(path, append(hist, outcomes...))
}
