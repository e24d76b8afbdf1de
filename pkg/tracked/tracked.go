// Package tracked defines which files of a working tree the engine sees.
//
// Every component that walks the tree (manifest, snapshot, release,
// fingerprint index, watch) uses the same Rules so they agree on the
// tracked file set:
//
//   - a file is tracked when its extension is in the allow-list;
//   - directories named in the exclusion set are skipped at any depth;
//   - hidden files and directories are skipped unless enabled;
//   - engine-owned paths (snapshots, output, logs, state, the manifest
//     itself) are never tracked.
//
// Paths handed out by this package are root-relative and slash-separated.
package tracked

import (
	"context"
	"io/fs"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/fatcrapinmybutt/the-manbearpig/pkg/config"
)

// Options configures Rules.
type Options struct {
	Extensions    []string
	ExcludeDirs   []string // directory names, any depth
	ExcludePaths  []string // root-relative files or directories
	IncludeHidden bool
}

// Rules decides which paths under Root are tracked.
type Rules struct {
	root          string
	extensions    map[string]bool
	excludeDirs   map[string]bool
	excludePaths  []string
	includeHidden bool
}

// New creates Rules for the tree at root.
func New(root string, opts Options) *Rules {
	r := &Rules{
		root:          root,
		extensions:    make(map[string]bool, len(opts.Extensions)),
		excludeDirs:   make(map[string]bool, len(opts.ExcludeDirs)),
		includeHidden: opts.IncludeHidden,
	}
	for _, ext := range opts.Extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		r.extensions[ext] = true
	}
	for _, d := range opts.ExcludeDirs {
		r.excludeDirs[d] = true
	}
	for _, p := range opts.ExcludePaths {
		if p = Clean(p); p != "" && p != "." {
			r.excludePaths = append(r.excludePaths, p)
		}
	}
	return r
}

// FromConfig builds the Rules for cfg, excluding the engine's own state.
func FromConfig(cfg *config.Config) *Rules {
	excluded := append(cfg.EngineDirs(), cfg.Paths.Manifest)
	return New(cfg.Root, Options{
		Extensions:    cfg.Track.Extensions,
		ExcludeDirs:   cfg.Track.ExcludeDirs,
		ExcludePaths:  excluded,
		IncludeHidden: cfg.Track.IncludeHidden,
	})
}

// Root returns the tree root.
func (r *Rules) Root() string { return r.root }

// Abs converts a root-relative slash path to an absolute OS path.
func (r *Rules) Abs(rel string) string {
	return filepath.Join(r.root, filepath.FromSlash(rel))
}

// HasExtension reports whether the file name carries a tracked extension.
func (r *Rules) HasExtension(name string) bool {
	return r.extensions[strings.ToLower(filepath.Ext(name))]
}

// SkipDir reports whether the directory at rel must not be descended into.
func (r *Rules) SkipDir(rel string) bool {
	rel = Clean(rel)
	if rel == "." || rel == "" {
		return false
	}
	name := path.Base(rel)
	if r.excludeDirs[name] {
		return true
	}
	if !r.includeHidden && isHidden(name) {
		return true
	}
	return r.excludedPath(rel)
}

// Include reports whether the file at rel is tracked. Every parent
// directory is checked too, so Include is valid without a walk.
func (r *Rules) Include(rel string) bool {
	rel = Clean(rel)
	if rel == "" || rel == "." || strings.HasPrefix(rel, "../") {
		return false
	}
	if !r.HasExtension(rel) {
		return false
	}
	if r.excludedPath(rel) {
		return false
	}
	parts := strings.Split(rel, "/")
	if !r.includeHidden && isHidden(parts[len(parts)-1]) {
		return false
	}
	for _, dir := range parts[:len(parts)-1] {
		if r.excludeDirs[dir] || (!r.includeHidden && isHidden(dir)) {
			return false
		}
	}
	return true
}

// Walk calls fn for every tracked file in lexical order.
func (r *Rules) Walk(ctx context.Context, fn func(rel string, d fs.DirEntry) error) error {
	return filepath.WalkDir(r.root, func(p string, d fs.DirEntry, err error) error {
		// Check context cancellation
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return err
		}

		rel, err := filepath.Rel(r.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if r.SkipDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !r.Include(rel) {
			return nil
		}
		return fn(rel, d)
	})
}

// Files returns every tracked file, sorted.
func (r *Rules) Files(ctx context.Context) ([]string, error) {
	var files []string
	err := r.Walk(ctx, func(rel string, _ fs.DirEntry) error {
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(files)
	return files, nil
}

// Clean normalizes a path to root-relative slash form.
func Clean(p string) string {
	p = filepath.ToSlash(p)
	p = strings.TrimPrefix(p, "./")
	if p == "" {
		return ""
	}
	return path.Clean(p)
}

// TopLevel returns the first path component of rel, or "" for files at
// the root.
func TopLevel(rel string) string {
	rel = Clean(rel)
	i := strings.IndexByte(rel, '/')
	if i < 0 {
		return ""
	}
	return rel[:i]
}

func (r *Rules) excludedPath(rel string) bool {
	for _, p := range r.excludePaths {
		if rel == p || strings.HasPrefix(rel, p+"/") {
			return true
		}
	}
	return false
}

func isHidden(name string) bool {
	return len(name) > 1 && strings.HasPrefix(name, ".") && name != ".."
}
