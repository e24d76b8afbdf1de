package cycle

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
)

// Stage names a step of the cycle.
type Stage string

const (
	StageStart            Stage = "Start"
	StageVersionIncrement Stage = "VersionIncrement"
	StagePointerUpdate    Stage = "PointerUpdate"
	StageChangeDetect     Stage = "ChangeDetect"
	StageChangelogUpdate  Stage = "ChangelogUpdate"
	StageManifestUpdate   Stage = "ManifestUpdate"
	StageSnapshotCreate   Stage = "SnapshotCreate"
	StageSmokeTest        Stage = "SmokeTest"
	StageSizePolicy       Stage = "SizePolicy"
	StageReleaseDecision  Stage = "ReleaseDecision"
	StagePackage          Stage = "Package"
	StageSkip             Stage = "Skip"
	StageDone             Stage = "Done"
)

// StageError is a stage failure as reported by the cycle. Earlier
// stages' effects are kept.
type StageError struct {
	Stage Stage
	Err   error

	// Stack is set when the stage panicked.
	Stack []byte
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Panicked reports whether the stage failed by panicking.
func (e *StageError) Panicked() bool { return e.Stack != nil }

// errPanic wraps recovered panic values.
var errPanic = errors.New("panic")

// guard runs fn as stage and converts an error or a panic into a
// *StageError.
func guard(ctx context.Context, stage Stage, fn func(context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &StageError{Stage: stage, Err: fmt.Errorf("%w: %v", errPanic, p), Stack: debug.Stack()}
		}
	}()
	if err := ctx.Err(); err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	if err := fn(ctx); err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	return nil
}
