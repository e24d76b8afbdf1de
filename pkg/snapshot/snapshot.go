// Package snapshot freezes the tracked tree of a version under
// VERSIONS/<version>/.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fatcrapinmybutt/the-manbearpig/internal/log"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/config"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/tracked"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/util"
)

// ManifestName is the file written into every snapshot directory.
const ManifestName = "SNAPSHOT_MANIFEST.json"

// Manifest lists the files copied into a snapshot.
type Manifest struct {
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	FileCount int       `json:"file_count"`
	Files     []string  `json:"files"`
}

// Archiver creates and reads snapshots.
type Archiver struct {
	dir   string
	rules *tracked.Rules
	extra []string
	now   func() time.Time
	log   *zap.SugaredLogger
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithClock sets the time source for snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Archiver) { a.now = now }
}

// New creates an archiver for cfg. Besides the tracked files, the
// persisted manifest is frozen with each snapshot.
func New(cfg *config.Config, logger *zap.SugaredLogger, opts ...Option) *Archiver {
	a := &Archiver{
		dir:   cfg.VersionsDir(),
		rules: tracked.FromConfig(cfg),
		extra: []string{tracked.Clean(cfg.Paths.Manifest)},
		now:   time.Now,
		log:   log.Named(logger, "snapshot"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Dir returns the snapshot directory of version.
func (a *Archiver) Dir(version string) string {
	return filepath.Join(a.dir, version)
}

// Create copies every tracked file into the version's directory,
// preserving relative paths, and writes its snapshot manifest. The copy
// is staged in a hidden sibling directory and swapped in once complete,
// so an existing snapshot of the same version is replaced as a whole.
func (a *Archiver) Create(ctx context.Context, version string) (m *Manifest, err error) {
	if version == "" {
		return nil, errors.New("snapshot requires a version")
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	dest, err := os.MkdirTemp(a.dir, "."+version+".tmp-")
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(dest)
		}
	}()
	if err := os.Chmod(dest, 0o755); err != nil {
		return nil, err
	}

	files := []string{}
	copyOne := func(rel string) error {
		if rel == ManifestName {
			return nil
		}
		if _, err := util.CopyFile(a.rules.Abs(rel), filepath.Join(dest, filepath.FromSlash(rel))); err != nil {
			return fmt.Errorf("%s: %w", rel, err)
		}
		files = append(files, rel)
		return nil
	}

	err = a.rules.Walk(ctx, func(rel string, _ fs.DirEntry) error { return copyOne(rel) })
	if err != nil {
		return nil, err
	}
	for _, rel := range a.extra {
		if util.FileExists(a.rules.Abs(rel)) && !slices.Contains(files, rel) {
			if err := copyOne(rel); err != nil {
				return nil, err
			}
		}
	}
	slices.Sort(files)

	m = &Manifest{
		Version:   version,
		Timestamp: a.now().UTC(),
		FileCount: len(files),
		Files:     files,
	}
	if err := util.WriteJSONAtomic(filepath.Join(dest, ManifestName), m); err != nil {
		return nil, err
	}

	final := a.Dir(version)
	if err := os.RemoveAll(final); err != nil {
		return nil, fmt.Errorf("failed to replace snapshot %s: %w", version, err)
	}
	if err := os.Rename(dest, final); err != nil {
		return nil, fmt.Errorf("failed to replace snapshot %s: %w", version, err)
	}
	a.log.Infow("snapshot created", "version", version, "files", m.FileCount, "dir", final)
	return m, nil
}

// Load reads the snapshot manifest of version.
func (a *Archiver) Load(version string) (*Manifest, error) {
	var m Manifest
	if err := util.ReadJSON(filepath.Join(a.Dir(version), ManifestName), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// List returns the versions with a snapshot directory, in order. Hidden
// directories, including in-progress copies, are skipped.
func (a *Archiver) List() ([]string, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var versions []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			versions = append(versions, e.Name())
		}
	}
	slices.Sort(versions)
	return versions, nil
}

// Count returns the number of snapshots.
func (a *Archiver) Count() (int, error) {
	versions, err := a.List()
	return len(versions), err
}
