package cycle

import (
	"time"

	"github.com/fatcrapinmybutt/the-manbearpig/pkg/changes"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/release"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/sizepolicy"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/smoke"
)

// Result summarizes one cycle.
type Result struct {
	CycleID  string `json:"cycle_id"`
	Version  string `json:"version"`
	Previous string `json:"previous"`

	// Stage is the last stage entered.
	Stage Stage `json:"stage"`

	Changes     *changes.ChangeSet `json:"changes,omitempty"`
	ModuleCount int                `json:"module_count"`
	Snapshot    int                `json:"snapshot_files"`

	SmokePassed bool          `json:"smoke_passed"`
	Smoke       *smoke.Report `json:"smoke,omitempty"`

	SizeOK      bool               `json:"size_ok"`
	PatchesMode bool               `json:"patches_mode"`
	Size        *sizepolicy.Report `json:"size,omitempty"`

	ReleaseReason string            `json:"release_reason,omitempty"`
	Artifact      *release.Artifact `json:"artifact,omitempty"`

	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`

	Err error `json:"-"`
}

// OK reports whether the cycle completed and the smoke gate passed.
// It decides the process exit status.
func (r *Result) OK() bool {
	return r != nil && r.Err == nil && r.SmokePassed
}

// Failure returns the failure message, or "".
func (r *Result) Failure() string {
	if r == nil || r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
