package incremental

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatcrapinmybutt/the-manbearpig/pkg/changes"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/config"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/tracked"
)

// SourceName is the change source name the configuration uses for the
// fingerprint index.
const SourceName = "index"

// ErrNoState means no index has been recorded yet.
var ErrNoState = errors.New("no fingerprint index recorded yet")

// Tracker compares the tree against the last recorded index.
type Tracker struct {
	store   Store
	scanner *Scanner
	rules   *tracked.Rules
}

// NewTracker creates a tracker for cfg. The index lives in the state
// directory.
func NewTracker(cfg *config.Config) *Tracker {
	rules := tracked.FromConfig(cfg)
	return NewTrackerWith(NewJSONStore(cfg.StateDir()), rules)
}

// NewTrackerWith creates a tracker over an explicit store and rules.
func NewTrackerWith(store Store, rules *tracked.Rules) *Tracker {
	return &Tracker{store: store, scanner: NewScanner(rules), rules: rules}
}

// Status reports what changed since the last Refresh without modifying
// state. Files whose mtime and size are unchanged are not hashed.
func (t *Tracker) Status(ctx context.Context) (*changes.ChangeSet, error) {
	old, err := t.store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	fast, err := t.scanner.ScanFast(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan tree: %w", err)
	}
	return diff(old, fast, func(path string, _, _ *Entry) string {
		h, err := HashFile(t.rules.Abs(path))
		if err != nil {
			return ""
		}
		return h
	}), nil
}

// Refresh records the current tree as the new baseline.
func (t *Tracker) Refresh(ctx context.Context) error {
	idx, err := t.scanner.Scan(ctx)
	if err != nil {
		return fmt.Errorf("failed to scan tree: %w", err)
	}
	if err := t.store.Save(idx); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// HasState returns true if a previous index exists.
func (t *Tracker) HasState() bool {
	return t.store.Exists()
}

// TrackedFileCount returns the number of files in the stored index, or 0.
func (t *Tracker) TrackedFileCount() int {
	idx, err := t.store.Load()
	if err != nil {
		return 0
	}
	return idx.Len()
}

// Name implements changes.Source.
func (t *Tracker) Name() string { return SourceName }

// Changes implements changes.Source. Without a recorded index it fails
// with ErrNoState so the chain falls through to the next source.
func (t *Tracker) Changes(ctx context.Context) (*changes.ChangeSet, error) {
	if !t.HasState() {
		return nil, ErrNoState
	}
	return t.Status(ctx)
}

var _ changes.Source = (*Tracker)(nil)
