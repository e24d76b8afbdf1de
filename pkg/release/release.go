// Package release decides when a cycle warrants a release and packages
// full or patches archives into the output directory.
package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/fatcrapinmybutt/the-manbearpig/internal/log"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/changes"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/config"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/logbook"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/manifest"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/tracked"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/util"
)

// Kind distinguishes full releases from patch archives.
type Kind string

const (
	KindFull    Kind = "full"
	KindPatches Kind = "patches"
)

// Build types recorded in embedded manifests.
const (
	BuildTypeFull    = "FULL_RELEASE"
	BuildTypePatches = "PATCHES"
)

// PatchesManifestName is the metadata file embedded in patch archives.
const PatchesManifestName = "PATCHES_MANIFEST.json"

const stampLayout = "20060102_150405"

// Artifact describes a built archive.
type Artifact struct {
	Kind         Kind     `json:"kind"`
	Version      string   `json:"version"`
	Path         string   `json:"path"`
	ManifestPath string   `json:"manifest_path"`
	Files        []string `json:"files"`
	Size         int64    `json:"size"`
}

// BuildManifest is embedded in full releases and written beside them.
type BuildManifest struct {
	Version      string    `json:"version"`
	Timestamp    time.Time `json:"timestamp"`
	BuildType    string    `json:"build_type"`
	ModuleCount  int       `json:"module_count"`
	ChangedFiles []string  `json:"changed_files"`
	SizeBytes    int64     `json:"size_bytes"`
}

// PatchesManifest is embedded in patch archives and written beside them.
// Hashes maps each patched path to its digest at build time.
type PatchesManifest struct {
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	BuildType string            `json:"build_type"`
	Digest    manifest.Digest   `json:"digest"`
	Patches   []string          `json:"patches"`
	Hashes    map[string]string `json:"hashes"`
}

// Request carries what the cycle knows at packaging time.
type Request struct {
	Version     string
	ChangeSet   *changes.ChangeSet
	PatchesMode bool
	ModuleCount int
	TotalSize   int64
}

// Packager writes release archives.
type Packager struct {
	outDir    string
	rules     *tracked.Rules
	cfg       *config.Config
	largeFile int64
	digest    manifest.Digest
	book      *logbook.Logbook
	now       func() time.Time
	log       *zap.SugaredLogger
}

// Option configures a Packager.
type Option func(*Packager)

// WithClock sets the time source for names and timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Packager) { p.now = now }
}

// New creates a packager for cfg.
func New(cfg *config.Config, logger *zap.SugaredLogger, opts ...Option) (*Packager, error) {
	book, err := logbook.New(cfg.LogFile(config.BuildLogName))
	if err != nil {
		return nil, fmt.Errorf("failed to open build log: %w", err)
	}
	p := &Packager{
		outDir:    cfg.OutputDir(),
		rules:     tracked.FromConfig(cfg),
		cfg:       cfg,
		largeFile: int64(cfg.Size.LargeFile),
		digest:    manifest.Digest(cfg.Manifest.Digest),
		book:      book,
		now:       time.Now,
		log:       log.Named(logger, "release"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Build packages a patches archive when req.PatchesMode is set and a
// full release otherwise.
func (p *Packager) Build(ctx context.Context, req Request) (*Artifact, error) {
	if req.Version == "" {
		return nil, errors.New("release requires a version")
	}
	if req.PatchesMode {
		return p.buildPatches(ctx, req)
	}
	return p.buildFull(ctx, req)
}

func (p *Packager) archivePath(prefix, version string, at time.Time) string {
	return filepath.Join(p.outDir, fmt.Sprintf("%s_%s_%s.zip", prefix, version, at.Format(stampLayout)))
}

func (p *Packager) buildFull(ctx context.Context, req Request) (*Artifact, error) {
	at := p.now()
	path := p.archivePath(p.cfg.Release.FullPrefix, req.Version, at)
	bm := BuildManifest{
		Version:      req.Version,
		Timestamp:    at.UTC(),
		BuildType:    BuildTypeFull,
		ModuleCount:  req.ModuleCount,
		ChangedFiles: changedPaths(req.ChangeSet),
		SizeBytes:    req.TotalSize,
	}
	bmName := fmt.Sprintf("build_manifest_%s.json", req.Version)
	bmPath := filepath.Join(p.outDir, bmName)
	if err := util.WriteJSONAtomic(bmPath, bm); err != nil {
		return nil, err
	}
	bmData, err := json.MarshalIndent(bm, "", "  ")
	if err != nil {
		return nil, err
	}

	a, err := createArchive(path)
	if err != nil {
		return nil, err
	}
	var skipped int
	err = p.rules.Walk(ctx, func(rel string, d fs.DirEntry) error {
		info, err := d.Info()
		if err != nil {
			return err
		}
		if p.largeFile > 0 && info.Size() > p.largeFile {
			skipped++
			p.log.Warnw("skipping large file", "path", rel, "size", humanize.IBytes(uint64(info.Size())))
			return nil
		}
		if a.has(rel) {
			return nil
		}
		return a.addFile(rel, p.rules.Abs(rel))
	})
	if err == nil {
		err = a.addBytes(bmName, bmData, at)
	}
	for _, f := range []string{p.cfg.Paths.VersionFile, p.cfg.Paths.CurrentFile, p.cfg.Paths.Manifest} {
		name := tracked.Clean(f)
		if err != nil || a.has(name) || !util.FileExists(p.cfg.Path(f)) {
			continue
		}
		err = a.addFile(name, p.cfg.Path(f))
	}
	if err != nil {
		a.abort()
		return nil, fmt.Errorf("failed to build release: %w", err)
	}
	files := util.SortedKeys(a.names)
	size, err := a.close()
	if err != nil {
		return nil, err
	}

	art := &Artifact{Kind: KindFull, Version: req.Version, Path: path, ManifestPath: bmPath, Files: files, Size: size}
	p.log.Infow("full release built", "path", path, "files", len(files), "skipped", skipped, "size", humanize.IBytes(uint64(size)))
	return art, p.record("Full Release Build", req, art, at)
}

func (p *Packager) buildPatches(ctx context.Context, req Request) (*Artifact, error) {
	at := p.now()
	path := p.archivePath(p.cfg.Release.PatchesPrefix, req.Version, at)
	pm := PatchesManifest{
		Version:   req.Version,
		Timestamp: at.UTC(),
		BuildType: BuildTypePatches,
		Digest:    p.digest,
		Patches:   []string{},
		Hashes:    map[string]string{},
	}

	a, err := createArchive(path)
	if err != nil {
		return nil, err
	}
	for _, rel := range changedPaths(req.ChangeSet) {
		if err = ctx.Err(); err != nil {
			break
		}
		abs := p.rules.Abs(rel)
		info, statErr := os.Stat(abs)
		if statErr != nil || !info.Mode().IsRegular() {
			continue
		}
		sum, _, hashErr := p.digest.HashFile(abs)
		if hashErr != nil {
			err = hashErr
			break
		}
		if err = a.addFile(rel, abs); err != nil {
			break
		}
		pm.Patches = append(pm.Patches, rel)
		pm.Hashes[rel] = sum
	}
	var pmData []byte
	if err == nil {
		pmData, err = json.MarshalIndent(pm, "", "  ")
	}
	if err == nil {
		err = a.addBytes(PatchesManifestName, pmData, at)
	}
	if err != nil {
		a.abort()
		return nil, fmt.Errorf("failed to build patches archive: %w", err)
	}
	size, err := a.close()
	if err != nil {
		return nil, err
	}

	pmPath := filepath.Join(p.outDir, fmt.Sprintf("patches_manifest_%s.json", req.Version))
	if err := util.WriteJSONAtomic(pmPath, pm); err != nil {
		return nil, err
	}

	art := &Artifact{Kind: KindPatches, Version: req.Version, Path: path, ManifestPath: pmPath, Files: pm.Patches, Size: size}
	p.log.Infow("patches archive built", "path", path, "patches", len(pm.Patches), "size", humanize.IBytes(uint64(size)))
	return art, p.record("Patches Build", req, art, at)
}

func (p *Packager) record(title string, req Request, art *Artifact, at time.Time) error {
	b := &logbook.Block{Title: title + " - " + req.Version}
	b.Add("Timestamp: %s", at.Format(time.RFC3339))
	b.Add("Package: %s", art.Path)
	b.Add("Size: %s", humanize.IBytes(uint64(art.Size)))
	b.Add("Modules: %d", req.ModuleCount)
	b.Add("Changed files: %d", req.ChangeSet.Len())
	return p.book.Write(b)
}

func changedPaths(cs *changes.ChangeSet) []string {
	if cs == nil {
		return []string{}
	}
	return slices.Clone(cs.Paths)
}

// List returns the archive file names in the output directory, sorted.
func (p *Packager) List() ([]string, error) { return listArchives(p.outDir) }

// List returns the archive file names in cfg's output directory without
// opening a packager; it creates nothing.
func List(cfg *config.Config) ([]string, error) { return listArchives(cfg.OutputDir()) }

func listArchives(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".zip") && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

// Find returns the most recent artifact for version, with its sibling
// manifest, or os.ErrNotExist.
func (p *Packager) Find(version string) (*Artifact, error) {
	names, err := p.List()
	if err != nil {
		return nil, err
	}
	var best *Artifact
	var bestStamp string
	for _, name := range names {
		var kind Kind
		var prefix, manifestName string
		switch {
		case strings.HasPrefix(name, p.cfg.Release.FullPrefix+"_"+version+"_"):
			kind, prefix, manifestName = KindFull, p.cfg.Release.FullPrefix, "build_manifest_"+version+".json"
		case strings.HasPrefix(name, p.cfg.Release.PatchesPrefix+"_"+version+"_"):
			kind, prefix, manifestName = KindPatches, p.cfg.Release.PatchesPrefix, "patches_manifest_"+version+".json"
		default:
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, prefix+"_"+version+"_"), ".zip")
		info, err := os.Stat(filepath.Join(p.outDir, name))
		if err != nil || (best != nil && stamp <= bestStamp) {
			continue
		}
		best = &Artifact{
			Kind:         kind,
			Version:      version,
			Path:         filepath.Join(p.outDir, name),
			ManifestPath: filepath.Join(p.outDir, manifestName),
			Size:         info.Size(),
		}
		bestStamp = stamp
	}
	if best == nil {
		return nil, fmt.Errorf("no artifact for %s: %w", version, os.ErrNotExist)
	}
	return best, nil
}
