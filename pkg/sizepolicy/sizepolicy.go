// Package sizepolicy measures the tree against the size budget and
// decides whether releases switch to patches mode.
package sizepolicy

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/fatcrapinmybutt/the-manbearpig/internal/log"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/config"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/logbook"
)

// LargeFile is a file above the large-file threshold.
type LargeFile struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Report is the outcome of one measurement.
type Report struct {
	Version        string      `json:"version"`
	Total          int64       `json:"total"`
	Previous       int64       `json:"previous"`
	Growth         int64       `json:"growth"`
	Files          int         `json:"files"`
	LargeFiles     []LargeFile `json:"large_files"`
	PatchesMode    bool        `json:"patches_mode"`
	GrowthExceeded bool        `json:"growth_exceeded"`
}

// OK reports whether the build fits the budget.
func (r *Report) OK() bool { return !r.PatchesMode }

// Enforcer measures the tree.
type Enforcer struct {
	root    string
	limits  config.SizeConfig
	exclude []string
	engine  []string
	book    *logbook.Logbook
	log     *zap.SugaredLogger
}

// New creates an enforcer for cfg. Invalid exclusion patterns are
// rejected here rather than silently never matching. The configured
// engine directories are always excluded, wherever they live.
func New(cfg *config.Config, logger *zap.SugaredLogger) (*Enforcer, error) {
	for _, p := range cfg.Size.Exclude {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid size exclusion pattern %q", p)
		}
	}
	book, err := logbook.New(cfg.LogFile(config.SizeReportLog))
	if err != nil {
		return nil, fmt.Errorf("failed to open size report: %w", err)
	}
	var engine []string
	for _, d := range cfg.EngineDirs() {
		if d = path.Clean(filepath.ToSlash(d)); d != "." && d != "" {
			engine = append(engine, d)
		}
	}
	return &Enforcer{
		root:    cfg.Root,
		limits:  cfg.Size,
		exclude: cfg.Size.Exclude,
		engine:  engine,
		book:    book,
		log:     log.Named(logger, "size"),
	}, nil
}

// Excluded reports whether rel lies in an engine directory or matches an
// exclusion pattern, either as a whole path, by base name, or through any
// directory component.
func (e *Enforcer) Excluded(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, d := range e.engine {
		if rel == d || strings.HasPrefix(rel, d+"/") {
			return true
		}
	}
	parts := strings.Split(rel, "/")
	for _, p := range e.exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
		for _, part := range parts {
			if ok, _ := doublestar.Match(p, part); ok {
				return true
			}
		}
	}
	return false
}

// Measure walks the tree and sums the sizes of files not excluded.
// Excluded directories are pruned.
func (e *Enforcer) Measure(ctx context.Context) (total int64, files int, large []LargeFile, err error) {
	err = filepath.WalkDir(e.root, func(p string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(e.root, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if e.Excluded(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		files++
		if info.Size() > int64(e.limits.LargeFile) {
			large = append(large, LargeFile{Path: filepath.ToSlash(rel), Size: info.Size()})
		}
		return nil
	})
	slices.SortFunc(large, func(a, b LargeFile) int {
		if a.Size != b.Size {
			if a.Size > b.Size {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Path, b.Path)
	})
	return total, files, large, err
}

var totalLine = regexp.MustCompile(`^Total size: (\d+) bytes`)

// Previous returns the total recorded by the most recent report, or 0.
func (e *Enforcer) Previous() int64 {
	line, ok := e.book.Last(totalLine.MatchString)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(totalLine.FindStringSubmatch(line)[1], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Enforce measures the tree, compares it with the previous report and
// appends a new report block.
func (e *Enforcer) Enforce(ctx context.Context, version string) (*Report, error) {
	total, files, large, err := e.Measure(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to measure tree: %w", err)
	}
	rep := &Report{
		Version:    version,
		Total:      total,
		Previous:   e.Previous(),
		Files:      files,
		LargeFiles: large,
	}
	if rep.Previous > 0 {
		rep.Growth = rep.Total - rep.Previous
	}
	rep.PatchesMode = rep.Total > int64(e.limits.MaxTotal)
	rep.GrowthExceeded = rep.Growth > int64(e.limits.MaxGrowth)

	if rep.PatchesMode {
		e.log.Warnw("build exceeds size budget, using patches mode",
			"total", humanize.IBytes(uint64(rep.Total)), "limit", e.limits.MaxTotal.String())
	}
	if rep.GrowthExceeded {
		e.log.Warnw("size growth exceeds threshold",
			"growth", humanize.IBytes(uint64(rep.Growth)), "limit", e.limits.MaxGrowth.String())
	}
	e.log.Infow("size policy checked", "total", humanize.IBytes(uint64(rep.Total)),
		"files", rep.Files, "patches_mode", rep.PatchesMode)

	if err := e.book.Write(e.block(rep)); err != nil {
		return rep, err
	}
	return rep, nil
}

func signedBytes(n int64) string {
	if n < 0 {
		return "-" + humanize.IBytes(uint64(-n))
	}
	return humanize.IBytes(uint64(n))
}

func (e *Enforcer) block(rep *Report) *logbook.Block {
	b := &logbook.Block{Title: "Size Policy Report - " + rep.Version}
	b.Add("")
	b.Add("Total size: %d bytes (%s)", rep.Total, humanize.IBytes(uint64(rep.Total)))
	b.Add("Previous size: %d bytes (%s)", rep.Previous, humanize.IBytes(uint64(rep.Previous)))
	b.Add("Growth: %d bytes (%s)", rep.Growth, signedBytes(rep.Growth))
	b.Add("Files counted: %s", humanize.Comma(int64(rep.Files)))
	b.Add("")

	if rep.PatchesMode {
		b.Add("WARNING: Build size exceeds %s threshold", e.limits.MaxTotal)
		b.Add("   Switching to PATCHES mode for incremental updates")
	} else {
		b.Add("Build size within %s limit", e.limits.MaxTotal)
	}
	if rep.GrowthExceeded {
		b.Add("WARNING: Size growth exceeds %s threshold", e.limits.MaxGrowth)
	}

	if n := len(rep.LargeFiles); n > 0 {
		b.Add("")
		b.Add("Large files detected (%d):", n)
		limit := min(e.limits.ReportLimit, n)
		for _, f := range rep.LargeFiles[:limit] {
			b.Add("  - %s: %s", f.Path, humanize.IBytes(uint64(f.Size)))
		}
		if n > limit {
			b.Add("  ... and %d more", n-limit)
		}
	}

	b.Add("")
	b.Add("PATCHES mode: %s", map[bool]string{true: "ENABLED", false: "DISABLED"}[rep.PatchesMode])
	return b
}
