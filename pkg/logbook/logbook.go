// Package logbook appends human-readable report blocks (smoke results,
// size reports, build records) to plain text files under the logs
// directory.
package logbook

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const rule = "============================================================"

// Logbook is an append-only text file.
type Logbook struct {
	path string
	mu   sync.Mutex
}

// New creates a logbook that writes to path, creating its directory.
func New(path string) (*Logbook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &Logbook{path: path}, nil
}

// Path returns the file backing this logbook.
func (l *Logbook) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Block is one titled report.
type Block struct {
	Title string
	Lines []string
}

// Add appends a formatted line.
func (b *Block) Add(format string, args ...any) {
	b.Lines = append(b.Lines, fmt.Sprintf(format, args...))
}

// String renders the block framed by rules.
func (b *Block) String() string {
	var sb strings.Builder
	sb.WriteString("\n" + rule + "\n")
	sb.WriteString(b.Title + "\n")
	sb.WriteString(rule + "\n")
	for _, line := range b.Lines {
		sb.WriteString(strings.TrimRight(line, "\n") + "\n")
	}
	return sb.String()
}

// Write appends the block in a single write.
func (l *Logbook) Write(b *Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filepath.Base(l.path), err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("failed to append to %s: %w", filepath.Base(l.path), err)
	}
	return nil
}

// Lines returns every line in the file. A missing file has no lines.
func (l *Logbook) Lines() ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}

// Last returns the last line for which match returns true.
func (l *Logbook) Last(match func(line string) bool) (string, bool) {
	lines, err := l.Lines()
	if err != nil {
		return "", false
	}
	for i := len(lines) - 1; i >= 0; i-- {
		if match(lines[i]) {
			return lines[i], true
		}
	}
	return "", false
}
