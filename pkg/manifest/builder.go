package manifest

import (
	"context"
	"fmt"
	"os"
	"path"
	"runtime"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fatcrapinmybutt/the-manbearpig/internal/log"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/config"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/tracked"
)

// parsed is what the builder remembers per file content.
type parsed struct {
	refs    []string
	summary string
}

// Builder walks the tracked tree and produces a Manifest.
type Builder struct {
	rules      *tracked.Rules
	digest     Digest
	classifier Classifier
	extractor  ReferenceExtractor
	workers    int
	cache      *lru.Cache[string, parsed]
	now        func() time.Time
	log        *zap.SugaredLogger
}

// Option configures a Builder.
type Option func(*Builder)

// WithClassifier replaces the keyword classifier.
func WithClassifier(c Classifier) Option {
	return func(b *Builder) { b.classifier = c }
}

// WithExtractor replaces the configured reference extractor.
func WithExtractor(x ReferenceExtractor) Option {
	return func(b *Builder) { b.extractor = x }
}

// WithWorkers bounds concurrent hashing.
func WithWorkers(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithClock sets the time source for GeneratedAt.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// NewBuilder creates a builder from cfg.
func NewBuilder(cfg *config.Config, logger *zap.SugaredLogger, opts ...Option) (*Builder, error) {
	b := &Builder{
		rules:      tracked.FromConfig(cfg),
		digest:     Digest(cfg.Manifest.Digest),
		classifier: NewKeywordClassifier(cfg.Manifest),
		workers:    cfg.Manifest.Workers,
		now:        time.Now,
		log:        log.Named(logger, "manifest"),
	}
	if b.workers <= 0 {
		b.workers = runtime.GOMAXPROCS(0)
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.extractor == nil {
		x, err := NewExtractor(cfg.Manifest.References)
		if err != nil {
			return nil, err
		}
		b.extractor = x
	}
	if _, err := b.digest.New(); err != nil {
		return nil, err
	}

	cache, err := lru.New[string, parsed](cfg.Manifest.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create reference cache: %w", err)
	}
	b.cache = cache
	return b, nil
}

// Build hashes every tracked file and returns the manifest for version.
// Hashing runs in parallel; entry order is the sorted path order.
func (b *Builder) Build(ctx context.Context, version string) (*Manifest, error) {
	start := b.now()
	files, err := b.rules.Files(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan tree: %w", err)
	}

	entries := make([]Entry, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, rel := range files {
		g.Go(func() error {
			e, err := b.entry(gctx, rel)
			if err != nil {
				return err
			}
			entries[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	b.log.Infow("manifest built", "version", version, "modules", len(entries),
		"digest", string(b.digest), "elapsed", time.Since(start).String())
	return &Manifest{
		Version:     version,
		GeneratedAt: b.now().UTC(),
		Digest:      b.digest,
		Entries:     entries,
	}, nil
}

func (b *Builder) entry(ctx context.Context, rel string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	abs := b.rules.Abs(rel)
	sum, size, err := b.digest.HashFile(abs)
	if err != nil {
		return Entry{}, fmt.Errorf("%s: %w", rel, err)
	}

	e := Entry{
		Module:     ModuleName(rel),
		Path:       rel,
		Hash:       sum,
		Category:   b.classifier.Classify(rel),
		References: []string{},
		Size:       size,
	}

	if !b.extractor.Supports(rel) {
		return e, nil
	}

	key := path.Ext(rel) + ":" + sum
	if p, ok := b.cache.Get(key); ok {
		e.References, e.Summary = p.refs, p.summary
		return e, nil
	}

	src, err := os.ReadFile(abs)
	if err != nil {
		return Entry{}, fmt.Errorf("%s: %w", rel, err)
	}
	refs, err := b.extractor.Extract(ctx, rel, src)
	if err != nil {
		// Unparsable sources still get an entry, without references.
		b.log.Warnw("reference extraction failed", "path", rel, "error", err)
		refs = nil
	}
	p := parsed{refs: normalize(refs), summary: Summarize(rel, src)}
	b.cache.Add(key, p)
	log.Trace("references extracted", zap.String("path", rel), zap.Strings("references", p.refs))

	e.References, e.Summary = p.refs, p.summary
	return e, nil
}

// Extract runs the builder's extractor over a single file. The smoke
// gate uses it to prove a core module still loads.
func (b *Builder) Extract(ctx context.Context, rel string) ([]string, error) {
	src, err := os.ReadFile(b.rules.Abs(rel))
	if err != nil {
		return nil, err
	}
	if !b.extractor.Supports(rel) {
		return []string{}, nil
	}
	refs, err := b.extractor.Extract(ctx, rel, src)
	if err != nil {
		return nil, err
	}
	return normalize(refs), nil
}

// Using returns a copy of the builder that logs to logger. The copy
// shares the reference cache.
func (b *Builder) Using(logger *zap.SugaredLogger) *Builder {
	c := *b
	c.log = log.Named(logger, "manifest")
	return &c
}

// Rules returns the inclusion rules the builder walks with.
func (b *Builder) Rules() *tracked.Rules { return b.rules }

