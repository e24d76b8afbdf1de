// Package lock guards the engine state against concurrent cycles with
// an advisory PID lock file, and records the intent of the running
// cycle so an interrupted run can be recognized afterwards.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// LockName is the lock file name inside the state directory.
const LockName = "cycle.lock"

// ErrLocked reports a lock held by another live process.
type ErrLocked struct {
	PID  int
	Path string
}

func (e *ErrLocked) Error() string {
	return fmt.Sprintf("another cycle is running (pid %d, lock %s)", e.PID, e.Path)
}

// Lock is an acquired cycle lock.
type Lock struct {
	path string
	pid  int

	// Stale is the PID of a dead holder whose lock was taken over, or 0.
	Stale int
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Acquire creates dir/cycle.lock holding the current PID. A lock left by
// a process that is no longer running is taken over; one held by a live
// process yields *ErrLocked.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	path := filepath.Join(dir, LockName)
	pid := os.Getpid()

	l, err := create(path, pid)
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, os.ErrExist) {
		return nil, err
	}

	holder, rerr := ReadPID(path)
	if rerr == nil && IsProcessRunning(holder) {
		return nil, &ErrLocked{PID: holder, Path: path}
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove stale lock: %w", err)
	}
	l, err = create(path, pid)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			// Lost the race to another process.
			winner, _ := ReadPID(path)
			return nil, &ErrLocked{PID: winner, Path: path}
		}
		return nil, err
	}
	l.Stale = holder
	return l, nil
}

func create(path string, pid int) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create lock: %w", err)
	}
	_, werr := f.WriteString(strconv.Itoa(pid))
	cerr := f.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to write lock: %w", errors.Join(werr, cerr))
	}
	return &Lock{path: path, pid: pid}, nil
}

// Release removes the lock if this process still owns it.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	holder, err := ReadPID(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if holder != l.pid {
		return fmt.Errorf("lock %s is held by pid %d", l.path, holder)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock: %w", err)
	}
	return nil
}

// ReadPID reads the process ID from a lock file.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid lock file contents: %w", err)
	}
	return pid, nil
}

// Status describes the lock without touching it.
type Status struct {
	Held  bool `json:"held"`
	PID   int  `json:"pid,omitempty"`
	Stale bool `json:"stale,omitempty"` // lock file exists but its process is gone
}

// Inspect reports the lock state in dir.
func Inspect(dir string) Status {
	pid, err := ReadPID(filepath.Join(dir, LockName))
	if err != nil {
		return Status{}
	}
	if IsProcessRunning(pid) {
		return Status{Held: true, PID: pid}
	}
	return Status{PID: pid, Stale: true}
}

// IsProcessRunning checks if a process with the given PID is running.
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix, FindProcess always succeeds. Send signal 0 to check if process exists.
	err = process.Signal(syscall.Signal(0))
	return err == nil
}
