// Package changelog maintains CHANGELOG.md: one dated section per
// version, newest first.
package changelog

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/fatcrapinmybutt/the-manbearpig/pkg/changes"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/config"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/util"
)

// Header is the first line of a new changelog.
const Header = "# CHANGELOG"

const sectionPrefix = "## ["

// Writer appends sections to a changelog file.
type Writer struct {
	path  string
	rules config.ChangelogConfig
}

// New creates a writer for the changelog at path.
func New(path string, rules config.ChangelogConfig) *Writer {
	return &Writer{path: path, rules: rules}
}

// Path returns the changelog location.
func (w *Writer) Path() string { return w.path }

// Buckets groups changelog lines by section.
type Buckets struct {
	Added   []string
	Changed []string
	Fixed   []string
}

// Categorize sorts the change set into buckets. Paths matching no rule
// are omitted.
func (w *Writer) Categorize(cs *changes.ChangeSet) Buckets {
	var b Buckets
	if cs == nil {
		return b
	}
	for _, p := range cs.Paths {
		lower := strings.ToLower(p)
		ext := path.Ext(lower)
		switch {
		case cs.IsAdded(p):
			b.Added = append(b.Added, "- Added "+p)
		case containsAny(lower, w.rules.TestMarkers):
			b.Fixed = append(b.Fixed, "- Updated tests in "+p)
		case slices.Contains(w.rules.SourceExtensions, ext):
			b.Changed = append(b.Changed, "- Modified "+p)
		case slices.Contains(w.rules.DocExtensions, ext):
			b.Changed = append(b.Changed, "- Updated documentation: "+p)
		}
	}
	return b
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(s, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

// Section renders the section for version.
func (w *Writer) Section(version string, date time.Time, cs *changes.ChangeSet) string {
	b := w.Categorize(cs)
	var sb strings.Builder
	fmt.Fprintf(&sb, "## [%s] - %s\n\n", version, date.Format("2006-01-02"))
	writeBucket(&sb, "Added", b.Added)
	writeBucket(&sb, "Changed", b.Changed)
	writeBucket(&sb, "Fixed", b.Fixed)
	return sb.String()
}

func writeBucket(sb *strings.Builder, title string, lines []string) {
	sb.WriteString("### " + title + "\n")
	if len(lines) == 0 {
		sb.WriteString("- N/A\n")
	}
	for _, l := range lines {
		sb.WriteString(l + "\n")
	}
	sb.WriteString("\n")
}

// Append inserts a new section for version directly below the header,
// ahead of every earlier section. The file is created when absent.
func (w *Writer) Append(version string, date time.Time, cs *changes.ChangeSet) error {
	content, err := os.ReadFile(w.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to read changelog: %w", err)
		}
		content = []byte(Header + "\n\n")
	}

	section := w.Section(version, date, cs)
	lines := strings.SplitAfter(string(content), "\n")
	at := slices.IndexFunc(lines, func(l string) bool { return strings.HasPrefix(l, sectionPrefix) })

	var out string
	if at < 0 {
		out = strings.TrimRight(string(content), "\n") + "\n\n" + section
	} else {
		out = strings.Join(lines[:at], "") + section + strings.Join(lines[at:], "")
	}

	if err := util.WriteFileAtomic(w.path, []byte(out), 0o644); err != nil {
		return fmt.Errorf("failed to write changelog: %w", err)
	}
	return nil
}

// History returns up to n section headers, most recent first.
func (w *Writer) History(n int) ([]string, error) {
	content, err := os.ReadFile(w.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var headers []string
	sc := bufio.NewScanner(bytes.NewReader(content))
	for sc.Scan() && len(headers) < n {
		if line := sc.Text(); strings.HasPrefix(line, sectionPrefix) {
			headers = append(headers, line)
		}
	}
	return headers, sc.Err()
}
