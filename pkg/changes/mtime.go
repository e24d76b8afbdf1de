package changes

import (
	"context"
	"io/fs"
	"time"

	"github.com/fatcrapinmybutt/the-manbearpig/pkg/tracked"
)

// MTimeSource reports tracked files modified within a recency window. It
// is a heuristic: it cannot see deletions and may include files touched
// without changing.
type MTimeSource struct {
	Rules  *tracked.Rules
	Window time.Duration
	Now    func() time.Time
}

// NewMTimeSource creates an mtime source with the wall clock.
func NewMTimeSource(rules *tracked.Rules, window time.Duration) *MTimeSource {
	return &MTimeSource{Rules: rules, Window: window, Now: time.Now}
}

// Name implements Source.
func (m *MTimeSource) Name() string { return "mtime" }

// Changes implements Source.
func (m *MTimeSource) Changes(ctx context.Context) (*ChangeSet, error) {
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	cutoff := now().Add(-m.Window)

	var paths []string
	err := m.Rules.Walk(ctx, func(rel string, d fs.DirEntry) error {
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(cutoff) {
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return NewChangeSet(m.Name(), paths), nil
}
