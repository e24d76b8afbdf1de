// Package changes determines which tracked files changed since the last
// cycle. Sources are tried in a configured order and the first that
// succeeds wins.
package changes

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/fatcrapinmybutt/the-manbearpig/internal/log"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/tracked"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/util"
)

// ErrNoSource is returned when every configured source failed.
var ErrNoSource = errors.New("no change source succeeded")

// ChangeSet is the set of changed paths for one cycle.
type ChangeSet struct {
	// Paths are root-relative, slash-separated, sorted and unique.
	Paths []string `json:"paths"`

	// Added marks paths the source knows to be new.
	Added map[string]bool `json:"added,omitempty"`

	// Deleted lists paths known to be gone. They are never archived.
	Deleted []string `json:"deleted,omitempty"`

	// Source names the source that produced the set.
	Source string `json:"source"`
}

// NewChangeSet builds a normalized set from paths.
func NewChangeSet(source string, paths []string) *ChangeSet {
	cs := &ChangeSet{Source: source, Added: map[string]bool{}}
	cs.Paths = normalize(paths)
	return cs
}

// Len returns the number of changed paths; nil-safe.
func (cs *ChangeSet) Len() int {
	if cs == nil {
		return 0
	}
	return len(cs.Paths)
}

// IsEmpty reports whether nothing changed.
func (cs *ChangeSet) IsEmpty() bool { return cs.Len() == 0 }

// IsAdded reports whether p was explicitly added.
func (cs *ChangeSet) IsAdded(p string) bool {
	return cs != nil && cs.Added[p]
}

// TopLevelDirs returns the sorted distinct top-level directories the
// paths span. Root-level files contribute nothing.
func (cs *ChangeSet) TopLevelDirs() []string {
	if cs == nil {
		return nil
	}
	seen := map[string]struct{}{}
	for _, p := range cs.Paths {
		if top := tracked.TopLevel(p); top != "" {
			seen[top] = struct{}{}
		}
	}
	dirs := make([]string, 0, len(seen))
	for d := range seen {
		dirs = append(dirs, d)
	}
	slices.Sort(dirs)
	return dirs
}

// filter keeps only paths accepted by rules.
func (cs *ChangeSet) filter(rules *tracked.Rules) {
	if rules == nil {
		return
	}
	kept := cs.Paths[:0]
	for _, p := range cs.Paths {
		if rules.Include(p) {
			kept = append(kept, p)
		} else {
			delete(cs.Added, p)
		}
	}
	cs.Paths = kept

	deleted := cs.Deleted[:0]
	for _, p := range cs.Deleted {
		if rules.Include(p) {
			deleted = append(deleted, p)
		}
	}
	cs.Deleted = deleted
}

func normalize(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p = tracked.Clean(strings.TrimSpace(p)); p != "" && p != "." {
			out = append(out, p)
		}
	}
	return util.SortedUnique(out)
}

// Source produces a ChangeSet.
type Source interface {
	Name() string
	Changes(ctx context.Context) (*ChangeSet, error)
}

// Chain tries its sources in order.
type Chain struct {
	Sources []Source
	log     *zap.SugaredLogger
}

// NewChain creates a chain over sources.
func NewChain(logger *zap.SugaredLogger, sources ...Source) *Chain {
	return &Chain{Sources: sources, log: log.Named(logger, "changes")}
}

// Name implements Source.
func (c *Chain) Name() string {
	names := make([]string, len(c.Sources))
	for i, s := range c.Sources {
		names[i] = s.Name()
	}
	return strings.Join(names, ",")
}

// Changes returns the result of the first source that succeeds. Each
// failure is logged; when all fail the error wraps ErrNoSource.
func (c *Chain) Changes(ctx context.Context) (*ChangeSet, error) {
	var errs []error
	for _, s := range c.Sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cs, err := s.Changes(ctx)
		if err != nil {
			c.log.Warnw("change source failed", "source", s.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		if cs.Source == "" {
			cs.Source = s.Name()
		}
		c.log.Debugw("changes detected", "source", cs.Source, "count", cs.Len())
		return cs, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrNoSource, errors.Join(errs...))
}

// Static is a fixed source, useful when the caller already knows what
// changed.
type Static struct {
	Label string
	Set   *ChangeSet
	Err   error
}

// Name implements Source.
func (s Static) Name() string {
	if s.Label == "" {
		return "static"
	}
	return s.Label
}

// Changes implements Source.
func (s Static) Changes(context.Context) (*ChangeSet, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Set == nil {
		return NewChangeSet(s.Name(), nil), nil
	}
	return s.Set, nil
}
