package cycle

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fatcrapinmybutt/the-manbearpig/pkg/changelog"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/changes"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/ledger"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/lock"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/manifest"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/release"
)

// Status is a read-only view of the engine state.
type Status struct {
	Root        string       `json:"root"`
	Version     string       `json:"version"`
	Current     string       `json:"current"`
	Modules     int          `json:"modules"`
	Snapshots   int          `json:"snapshots"`
	Artifacts   int          `json:"artifacts"`
	Pending     int          `json:"pending_changes"`
	Source      string       `json:"change_source,omitempty"`
	PendingErr  string       `json:"change_error,omitempty"`
	Interrupted *lock.Intent `json:"interrupted,omitempty"`
	Lock        lock.Status  `json:"lock"`
	Warnings    []string     `json:"warnings,omitempty"`
}

// Status reports the version, the number of tracked modules, snapshots and
// artifacts, and the changes a cycle would pick up now. It changes nothing.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	st := &Status{Root: e.cfg.Root}
	logger := e.logger.Sugar()
	l := e.Ledger()

	// a malformed marker reads as the zero version, as a cycle would
	// recover it
	readMarker := func(name string, read func() (ledger.Version, error)) (ledger.Version, error) {
		v, err := read()
		var perr *ledger.ParseError
		if errors.As(err, &perr) {
			msg := fmt.Sprintf("%s is malformed (%q), reported as %s", name, perr.Raw, l.Zero())
			logger.Warnw("version marker unreadable", "file", name, "raw", perr.Raw)
			st.Warnings = append(st.Warnings, msg)
			return l.Zero(), nil
		}
		return v, err
	}
	v, err := readMarker(e.cfg.Paths.VersionFile, l.Read)
	if err != nil {
		return nil, err
	}
	cur, err := readMarker(e.cfg.Paths.CurrentFile, l.Current)
	if err != nil {
		return nil, err
	}
	st.Version, st.Current = v.String(), cur.String()
	if v.Less(cur) {
		st.Warnings = append(st.Warnings, fmt.Sprintf("%s points at %s, ahead of %s %s",
			e.cfg.Paths.CurrentFile, cur, e.cfg.Paths.VersionFile, v))
	}

	m, err := manifest.Load(e.cfg.ManifestFile())
	switch {
	case err == nil:
		st.Modules = m.Len()
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	if st.Snapshots, err = e.Snapshots().Count(); err != nil {
		return nil, err
	}

	names, err := release.List(e.cfg)
	if err != nil {
		return nil, err
	}
	st.Artifacts = len(names)

	src, err := e.changeSource(logger)
	if err != nil {
		return nil, err
	}
	cs, err := src.Changes(ctx)
	if err != nil {
		if !errors.Is(err, changes.ErrNoSource) {
			return nil, err
		}
		st.PendingErr = err.Error()
	} else {
		st.Pending, st.Source = cs.Len(), cs.Source
	}

	if st.Interrupted, err = lock.ReadIntent(e.cfg.StateDir()); err != nil {
		return nil, err
	}
	st.Lock = lock.Inspect(e.cfg.StateDir())
	return st, nil
}

// History returns up to n changelog section headers, most recent first.
func (e *Engine) History(n int) ([]string, error) {
	if n <= 0 {
		n = 10
	}
	return changelog.New(e.cfg.ChangelogFile(), e.cfg.Changelog).History(n)
}
