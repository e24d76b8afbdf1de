// Package runner executes external commands (git, the optional test
// suite) with a bounded run time.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ErrTimeout is returned when a command exceeds its time budget.
var ErrTimeout = errors.New("command timed out")

// ErrNotFound is returned when the command binary cannot be located.
var ErrNotFound = errors.New("command not found")

// Runner runs commands in a fixed working directory.
type Runner struct {
	dir     string
	timeout time.Duration
	env     []string
}

// Option configures a Runner.
type Option func(*Runner)

// WithDir sets the working directory.
func WithDir(dir string) Option {
	return func(r *Runner) {
		r.dir = dir
	}
}

// WithTimeout bounds every command. Zero means no bound beyond the
// caller's context.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.timeout = d
	}
}

// WithEnv appends KEY=VALUE pairs to the inherited environment.
func WithEnv(env ...string) Option {
	return func(r *Runner) {
		r.env = append(r.env, env...)
	}
}

// New creates a new Runner with the given options.
func New(opts ...Option) *Runner {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Result is the outcome of a completed command.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Combined returns stdout followed by stderr, trimmed.
func (r *Result) Combined() string {
	return strings.TrimSpace(string(r.Stdout) + string(r.Stderr))
}

// Run executes argv and waits for it. A non-zero exit is reported both in
// Result.ExitCode and as an error; a run past the timeout returns
// ErrTimeout.
func (r *Runner) Run(ctx context.Context, argv []string) (*Result, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, argv[0])
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, argv[1:]...)
	cmd.Dir = r.dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}
	cmd.WaitDelay = time.Second

	start := time.Now()
	err = cmd.Run()
	res := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: cmd.ProcessState.ExitCode(),
		Duration: time.Since(start),
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return res, fmt.Errorf("%w after %s: %s", ErrTimeout, r.timeout, strings.Join(argv, " "))
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return res, fmt.Errorf("%s exited with code %d: %s", argv[0], res.ExitCode, firstLine(res.Stderr))
		}
		return res, err
	}
	return res, nil
}

// Output runs name with args and returns its stdout.
func (r *Runner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	res, err := r.Run(ctx, append([]string{name}, args...))
	if err != nil {
		return nil, err
	}
	return res.Stdout, nil
}

// Available reports whether name resolves on PATH.
func Available(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	line, _, _ := strings.Cut(s, "\n")
	return line
}
