// Package publish uploads release artifacts to object storage.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fatcrapinmybutt/the-manbearpig/internal/log"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/release"
)

// ErrNotFound is returned by Get for a missing object.
var ErrNotFound = errors.New("object not found")

// Store is an object store keyed by slash-separated paths.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}

// Publisher uploads artifacts under <prefix>/<version>/<file>.
type Publisher struct {
	store  Store
	prefix string
	log    *zap.SugaredLogger
}

// New creates a publisher writing to store.
func New(store Store, prefix string, logger *zap.SugaredLogger) *Publisher {
	return &Publisher{store: store, prefix: strings.Trim(prefix, "/"), log: log.Named(logger, "publish")}
}

// Key returns the object key of file for version.
func (p *Publisher) Key(version, file string) string {
	return strings.TrimLeft(path.Join(p.prefix, version, path.Base(filepath.ToSlash(file))), "/")
}

// Publish uploads the artifact archive and its sibling manifest, and
// returns the keys written.
func (p *Publisher) Publish(ctx context.Context, art *release.Artifact) ([]string, error) {
	if art == nil {
		return nil, errors.New("no artifact to publish")
	}
	var keys []string
	for _, f := range []string{art.Path, art.ManifestPath} {
		if f == "" {
			continue
		}
		key := p.Key(art.Version, f)
		if err := p.upload(ctx, key, f); err != nil {
			return keys, fmt.Errorf("upload %s: %w", filepath.Base(f), err)
		}
		p.log.Infow("uploaded", "key", key)
		keys = append(keys, key)
	}
	return keys, nil
}

func (p *Publisher) upload(ctx context.Context, key, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	return p.store.Put(ctx, key, f, info.Size(), contentType(file))
}

func contentType(file string) string {
	switch filepath.Ext(file) {
	case ".zip":
		return "application/zip"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// MemoryStore keeps objects in memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("key is required")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = data
	return nil
}

// Get returns a copy of the object at key.
func (s *MemoryStore) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), raw...), nil
}

// Keys returns the stored keys, sorted.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
