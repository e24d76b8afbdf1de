package watch

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// ChangeType represents the type of file change.
type ChangeType string

const (
	ChangeAdded    ChangeType = "+"
	ChangeModified ChangeType = "~"
	ChangeDeleted  ChangeType = "-"
)

// CycleSummary is what the logger reports about a finished cycle.
type CycleSummary struct {
	Version  string
	Changed  int
	Smoke    bool
	Artifact string
	Duration time.Duration
	Err      error
}

// Logger writes watch mode progress for humans or as JSON lines.
type Logger struct {
	writer  io.Writer
	verbose bool
	jsonOut bool
	now     func() time.Time

	green  *color.Color
	yellow *color.Color
	red    *color.Color

	statsMu sync.Mutex
	stats   WatchStats
}

// WatchStats tracks statistics for the watch session.
type WatchStats struct {
	Cycles    int
	Failures  int
	Errors    int
	StartTime time.Time
}

// LoggerConfig configures the logger.
type LoggerConfig struct {
	Writer  io.Writer
	Verbose bool
	NoColor bool
	JSON    bool
}

// NewLogger creates a new logger. Color is used only on a terminal.
func NewLogger(cfg LoggerConfig) *Logger {
	writer := cfg.Writer
	if writer == nil {
		writer = os.Stdout
	}
	isTTY := false
	if f, ok := writer.(*os.File); ok {
		isTTY = term.IsTerminal(int(f.Fd()))
	}

	l := &Logger{
		writer:  writer,
		verbose: cfg.Verbose,
		jsonOut: cfg.JSON,
		now:     time.Now,
		green:   color.New(color.FgGreen),
		yellow:  color.New(color.FgYellow),
		red:     color.New(color.FgRed),
	}
	for _, c := range []*color.Color{l.green, l.yellow, l.red} {
		if cfg.NoColor || !isTTY {
			c.DisableColor()
		} else {
			c.EnableColor()
		}
	}
	l.stats.StartTime = l.now()
	return l
}

// Ready logs the initial ready message.
func (l *Logger) Ready(fileCount int, root string) {
	if l.jsonOut {
		l.writeJSON(map[string]any{"event": "ready", "files": fileCount, "path": root})
		return
	}
	l.printf("converge: watching %d files in %s\n", fileCount, root)
	l.println("converge: ready")
	l.println()
}

// FileChanged logs a file change event in verbose mode.
func (l *Logger) FileChanged(path string, change ChangeType) {
	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event":  "file_changed",
			"path":   path,
			"change": string(change),
			"time":   l.now().Format(time.RFC3339),
		})
		return
	}
	if l.verbose {
		l.printf("[%s] %s %s\n", l.timestamp(), l.colorize(string(change), change), path)
	}
}

// CycleStarted logs that a batch of changes triggered a cycle.
func (l *Logger) CycleStarted(paths []string) {
	if l.jsonOut {
		l.writeJSON(map[string]any{"event": "cycle_started", "paths": paths, "time": l.now().Format(time.RFC3339)})
		return
	}
	if len(paths) == 1 {
		l.printf("[%s] %s changed, running cycle...\n", l.timestamp(), paths[0])
	} else {
		l.printf("[%s] %d files changed, running cycle...\n", l.timestamp(), len(paths))
	}
}

// CycleFinished logs the outcome of a cycle.
func (l *Logger) CycleFinished(s CycleSummary) {
	l.statsMu.Lock()
	l.stats.Cycles++
	if s.Err != nil || !s.Smoke {
		l.stats.Failures++
	}
	l.statsMu.Unlock()

	if l.jsonOut {
		ev := map[string]any{
			"event":    "cycle_finished",
			"version":  s.Version,
			"changed":  s.Changed,
			"smoke":    s.Smoke,
			"duration": s.Duration.String(),
			"time":     l.now().Format(time.RFC3339),
		}
		if s.Artifact != "" {
			ev["artifact"] = s.Artifact
		}
		if s.Err != nil {
			ev["error"] = s.Err.Error()
		}
		l.writeJSON(ev)
		return
	}

	switch {
	case s.Err != nil:
		l.printf("[%s] %s cycle failed: %v\n", l.timestamp(), l.red.Sprint("✗"), s.Err)
	case !s.Smoke:
		l.printf("[%s] %s %s built, smoke FAIL\n", l.timestamp(), l.yellow.Sprint("!"), s.Version)
	default:
		l.printf("[%s] %s %s built (%d changed, %s)\n", l.timestamp(), l.green.Sprint("✓"), s.Version,
			s.Changed, s.Duration.Round(time.Millisecond))
	}
	if s.Artifact != "" {
		l.printf("           packaged %s\n", s.Artifact)
	}
}

// Queued logs changes that arrived while a cycle was running.
func (l *Logger) Queued(n int) {
	if l.jsonOut {
		l.writeJSON(map[string]any{"event": "queued", "pending": n, "time": l.now().Format(time.RFC3339)})
		return
	}
	noun := "changes"
	if n == 1 {
		noun = "change"
	}
	l.printf("[%s] %d %s queued for the next cycle\n", l.timestamp(), n, noun)
}

// Error logs an error.
func (l *Logger) Error(err error) {
	l.statsMu.Lock()
	l.stats.Errors++
	l.statsMu.Unlock()

	if l.jsonOut {
		l.writeJSON(map[string]any{"event": "error", "error": err.Error(), "time": l.now().Format(time.RFC3339)})
		return
	}
	l.printf("[%s] %s error: %v\n", l.timestamp(), l.red.Sprint("✗"), err)
}

// Shutdown logs the shutdown message with statistics.
func (l *Logger) Shutdown() {
	stats := l.Stats()
	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event":    "shutdown",
			"cycles":   stats.Cycles,
			"failures": stats.Failures,
			"errors":   stats.Errors,
			"duration": l.now().Sub(stats.StartTime).String(),
		})
		return
	}
	l.println()
	l.printf("converge: shutting down (%d cycles, %d failed, %d errors)\n", stats.Cycles, stats.Failures, stats.Errors)
}

// Stats returns the current watch statistics.
func (l *Logger) Stats() WatchStats {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	return l.stats
}

func (l *Logger) timestamp() string {
	return l.now().Format("15:04:05")
}

func (l *Logger) colorize(s string, change ChangeType) string {
	switch change {
	case ChangeAdded:
		return l.green.Sprint(s)
	case ChangeModified:
		return l.yellow.Sprint(s)
	case ChangeDeleted:
		return l.red.Sprint(s)
	}
	return s
}

func (l *Logger) writeJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		l.println(`{"event":"internal_error","error":"json marshal failed"}`)
		return
	}
	l.println(string(data))
}

// printf and println ignore write errors; the output is informational.
func (l *Logger) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(l.writer, format, args...)
}

func (l *Logger) println(args ...any) {
	_, _ = fmt.Fprintln(l.writer, args...)
}
