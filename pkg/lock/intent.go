package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/fatcrapinmybutt/the-manbearpig/pkg/util"
)

// IntentName is the intent record file name inside the state directory.
const IntentName = "intent.json"

// Intent records what the running cycle is doing. It is rewritten before
// each mutating stage and removed when the cycle completes. A failed
// cycle leaves it behind with Error set; a leftover record without Error
// means the cycle was interrupted.
type Intent struct {
	CycleID   string    `json:"cycle_id"`
	PID       int       `json:"pid"`
	Version   string    `json:"version,omitempty"`
	Stage     string    `json:"stage"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Error     string    `json:"error,omitempty"`
}

// Failed reports whether the cycle stopped on an error rather than being
// interrupted.
func (in *Intent) Failed() bool { return in.Error != "" }

// Journal owns the intent record of one cycle.
type Journal struct {
	path   string
	intent Intent
	now    func() time.Time
}

// Begin starts a journal for a new cycle with a fresh cycle ID.
func Begin(dir string, now func() time.Time) (*Journal, error) {
	if now == nil {
		now = time.Now
	}
	t := now().UTC()
	j := &Journal{
		path: filepath.Join(dir, IntentName),
		intent: Intent{
			CycleID:   uuid.NewString(),
			PID:       os.Getpid(),
			Stage:     "Start",
			StartedAt: t,
			UpdatedAt: t,
		},
		now: now,
	}
	if err := util.WriteJSONAtomic(j.path, j.intent); err != nil {
		return nil, fmt.Errorf("failed to record intent: %w", err)
	}
	return j, nil
}

// CycleID returns the cycle's identifier.
func (j *Journal) CycleID() string { return j.intent.CycleID }

// Intent returns the current record.
func (j *Journal) Intent() Intent { return j.intent }

// Record persists the stage about to run. An empty version keeps the
// last known one.
func (j *Journal) Record(stage, version string) error {
	j.intent.Stage = stage
	if version != "" {
		j.intent.Version = version
	}
	j.intent.UpdatedAt = j.now().UTC()
	if err := util.WriteJSONAtomic(j.path, j.intent); err != nil {
		return fmt.Errorf("failed to record intent: %w", err)
	}
	return nil
}

// Fail keeps the record, marking stage as the one that failed with err.
func (j *Journal) Fail(stage string, err error) error {
	j.intent.Stage = stage
	j.intent.Error = "unknown error"
	if err != nil {
		j.intent.Error = err.Error()
	}
	j.intent.UpdatedAt = j.now().UTC()
	if err := util.WriteJSONAtomic(j.path, j.intent); err != nil {
		return fmt.Errorf("failed to record intent: %w", err)
	}
	return nil
}

// Done removes the record.
func (j *Journal) Done() error {
	if err := os.Remove(j.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear intent: %w", err)
	}
	return nil
}

// ReadIntent returns the intent record left in dir, or nil when there is
// none.
func ReadIntent(dir string) (*Intent, error) {
	var in Intent
	if err := util.ReadJSON(filepath.Join(dir, IntentName), &in); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return &in, nil
}
