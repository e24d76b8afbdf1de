package changes

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatcrapinmybutt/the-manbearpig/internal/runner"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/tracked"
)

// GitSource reads changes from git: the diff over a revision range and,
// optionally, uncommitted work-tree changes.
type GitSource struct {
	Range           string
	IncludeWorktree bool
	Rules           *tracked.Rules

	run *runner.Runner
}

// NewGitSource creates a git source rooted at rules.Root().
func NewGitSource(rules *tracked.Rules, rangeSpec string, worktree bool, timeout time.Duration) *GitSource {
	return &GitSource{
		Range:           rangeSpec,
		IncludeWorktree: worktree,
		Rules:           rules,
		run:             runner.New(runner.WithDir(rules.Root()), runner.WithTimeout(timeout)),
	}
}

// Name implements Source.
func (g *GitSource) Name() string { return "git" }

// Changes implements Source. Paths are reported relative to the root
// even when the root is a subdirectory of the repository; changes
// outside it are dropped.
func (g *GitSource) Changes(ctx context.Context) (*ChangeSet, error) {
	prefix, err := g.run.Output(ctx, "git", "rev-parse", "--show-prefix")
	if err != nil {
		return nil, fmt.Errorf("git rev-parse: %w", err)
	}
	st := newStatusSet()
	st.prefix = strings.TrimSpace(string(prefix))

	// diff and porcelain status both print paths from the top level
	out, err := g.run.Output(ctx, "git", "diff", "--name-status", "-z", g.Range)
	if err != nil {
		return nil, fmt.Errorf("git diff %s: %w", g.Range, err)
	}
	parseNameStatus(out, st)

	if g.IncludeWorktree {
		out, err := g.run.Output(ctx, "git", "status", "--porcelain", "-z", "--untracked-files=all")
		if err != nil {
			return nil, fmt.Errorf("git status: %w", err)
		}
		parsePorcelain(out, st)
	}

	cs := st.changeSet(g.Name())
	cs.filter(g.Rules)
	return cs, nil
}

type statusSet struct {
	// prefix is the root's path below the repository top level, with a
	// trailing slash, or "" at the top level.
	prefix  string
	paths   []string
	added   map[string]bool
	deleted map[string]bool
}

func newStatusSet() *statusSet {
	return &statusSet{added: map[string]bool{}, deleted: map[string]bool{}}
}

func (s *statusSet) record(code byte, p string) {
	if s.prefix != "" {
		rel, ok := strings.CutPrefix(p, s.prefix)
		if !ok {
			return
		}
		p = rel
	}
	p = tracked.Clean(p)
	if p == "" {
		return
	}
	s.paths = append(s.paths, p)
	switch code {
	case 'A', '?':
		s.added[p] = true
		delete(s.deleted, p)
	case 'D':
		s.deleted[p] = true
		delete(s.added, p)
	}
}

func (s *statusSet) changeSet(source string) *ChangeSet {
	cs := NewChangeSet(source, s.paths)
	for _, p := range cs.Paths {
		if s.added[p] {
			cs.Added[p] = true
		}
		if s.deleted[p] {
			cs.Deleted = append(cs.Deleted, p)
		}
	}
	return cs
}

func splitNUL(out []byte) []string {
	out = bytes.TrimRight(out, "\x00\n")
	if len(out) == 0 {
		return nil
	}
	return strings.Split(string(out), "\x00")
}

// parseNameStatus reads `git diff --name-status -z`: a status field
// followed by one path, or two for renames and copies.
func parseNameStatus(out []byte, st *statusSet) {
	fields := splitNUL(out)
	for i := 0; i < len(fields); i++ {
		status := strings.TrimSpace(fields[i])
		if status == "" {
			continue
		}
		switch status[0] {
		case 'R', 'C':
			if i+2 >= len(fields) {
				return
			}
			from, to := fields[i+1], fields[i+2]
			i += 2
			if status[0] == 'R' {
				st.record('D', from)
			}
			st.record('A', to)
		default:
			if i+1 >= len(fields) {
				return
			}
			st.record(status[0], fields[i+1])
			i++
		}
	}
}

// parsePorcelain reads `git status --porcelain -z`: "XY path", with the
// original path as an extra field after renames.
func parsePorcelain(out []byte, st *statusSet) {
	fields := splitNUL(out)
	for i := 0; i < len(fields); i++ {
		entry := fields[i]
		if len(entry) < 4 {
			continue
		}
		x, y, p := entry[0], entry[1], entry[3:]
		switch {
		case x == '?' && y == '?':
			st.record('?', p)
		case x == 'R' || x == 'C':
			st.record('A', p)
			if i+1 < len(fields) {
				if x == 'R' {
					st.record('D', fields[i+1])
				}
				i++
			}
		case x == 'A':
			st.record('A', p)
		case x == 'D' || y == 'D':
			st.record('D', p)
		default:
			st.record('M', p)
		}
	}
}
