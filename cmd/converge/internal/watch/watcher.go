package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fatcrapinmybutt/the-manbearpig/pkg/cycle"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/tracked"
)

// DefaultDebounce is the quiet window used when Config.Debounce is zero.
const DefaultDebounce = 2 * time.Second

// Runner runs one cycle.
type Runner interface {
	Run(ctx context.Context) *cycle.Result
}

// Config configures the watcher.
type Config struct {
	Rules    *tracked.Rules
	Runner   Runner
	Debounce time.Duration

	// Ignore lists root-relative files the cycle itself rewrites.
	Ignore []string

	// FileCount is reported in the ready message.
	FileCount func() int

	Writer  io.Writer
	Verbose bool
	NoColor bool
	JSON    bool
}

// Watcher runs a cycle whenever tracked files change.
type Watcher struct {
	config    Config
	root      string
	ignore    map[string]bool
	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer
	logger    *Logger

	// cycleMu serializes cycles
	cycleMu sync.Mutex
	ctx     context.Context
}

// New creates a watcher.
func New(cfg Config) (*Watcher, error) {
	if cfg.Rules == nil || cfg.Runner == nil {
		return nil, errors.New("watch requires tracking rules and a cycle runner")
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	ignore := make(map[string]bool, len(cfg.Ignore))
	for _, p := range cfg.Ignore {
		ignore[tracked.Clean(p)] = true
	}

	w := &Watcher{
		config:    cfg,
		root:      cfg.Rules.Root(),
		ignore:    ignore,
		fsWatcher: fsWatcher,
		logger: NewLogger(LoggerConfig{
			Writer:  cfg.Writer,
			Verbose: cfg.Verbose,
			NoColor: cfg.NoColor,
			JSON:    cfg.JSON,
		}),
		ctx: context.Background(),
	}
	w.debouncer = NewDebouncer(cfg.Debounce, w.runCycle)
	return w, nil
}

// Run blocks until ctx is cancelled, running a cycle after each settled
// batch of changes.
func (w *Watcher) Run(ctx context.Context) error {
	w.cycleMu.Lock()
	w.ctx = ctx
	w.cycleMu.Unlock()
	defer w.debouncer.Stop()

	if err := w.addRecursive(w.root); err != nil {
		return fmt.Errorf("failed to watch tree: %w", err)
	}

	files := 0
	if w.config.FileCount != nil {
		files = w.config.FileCount()
	}
	w.logger.Ready(files, w.root)

	for {
		select {
		case <-ctx.Done():
			w.logger.Shutdown()
			return nil

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error(err)
		}
	}
}

func (w *Watcher) rel(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// addRecursive watches dir and every directory below it the tracking
// rules do not skip.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if !os.IsPermission(err) || w.config.Verbose {
				w.logger.Error(fmt.Errorf("walk error at %s: %w", path, err))
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel, ok := w.rel(path); ok && rel != "." && w.config.Rules.SkipDir(rel) {
			return filepath.SkipDir
		}
		if err := w.fsWatcher.Add(path); err != nil {
			if isWatchLimitError(err) {
				return fmt.Errorf("%w at %s: %v\n"+
					"Increase limit with: sudo sysctl fs.inotify.max_user_watches=524288", ErrWatchLimitReached, path, err)
			}
			if w.config.Verbose {
				w.logger.Error(fmt.Errorf("failed to watch %s: %w", path, err))
			}
		}
		return nil
	})
}

// isWatchLimitError checks if an error is due to inotify watch limits.
func isWatchLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "no space left on device") ||
		strings.Contains(errStr, "too many open files")
}

// handleEvent filters one event down to a tracked file and queues it.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	rel, ok := w.rel(event.Name)
	if !ok {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !w.config.Rules.SkipDir(rel) {
				if err := w.addRecursive(event.Name); err != nil {
					w.logger.Error(fmt.Errorf("failed to watch new directory %s: %w", rel, err))
				}
			}
			return
		}
	}

	if w.ignore[rel] || !w.config.Rules.Include(rel) {
		return
	}

	var change ChangeType
	switch {
	case event.Has(fsnotify.Create):
		change = ChangeAdded
	case event.Has(fsnotify.Write):
		change = ChangeModified
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		change = ChangeDeleted
	default:
		return // chmod
	}

	w.logger.FileChanged(rel, change)
	w.debouncer.Add(rel)
}

// runCycle is the debouncer's flush handler.
func (w *Watcher) runCycle(paths []string) {
	w.cycleMu.Lock()
	defer w.cycleMu.Unlock()

	if w.ctx.Err() != nil {
		return
	}
	w.logger.CycleStarted(paths)
	res := w.config.Runner.Run(w.ctx)
	w.logger.CycleFinished(summarize(res))
	if n := w.debouncer.PendingCount(); n > 0 {
		w.logger.Queued(n)
	}
}

func summarize(res *cycle.Result) CycleSummary {
	if res == nil {
		return CycleSummary{Err: errors.New("cycle returned no result")}
	}
	s := CycleSummary{
		Version:  res.Version,
		Changed:  res.Changes.Len(),
		Smoke:    res.SmokePassed,
		Duration: res.Duration,
		Err:      res.Err,
	}
	if res.Artifact != nil {
		s.Artifact = filepath.Base(res.Artifact.Path)
	}
	return s
}

// Close closes the watcher and releases resources.
func (w *Watcher) Close() error {
	if w.fsWatcher != nil {
		return w.fsWatcher.Close()
	}
	return nil
}

// ErrWatchLimitReached is returned when the OS watch limit is exceeded.
var ErrWatchLimitReached = errors.New("filesystem watch limit reached")
