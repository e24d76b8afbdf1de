package publish

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fatcrapinmybutt/the-manbearpig/pkg/config"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/release"
)

func artifact(t *testing.T) *release.Artifact {
	t.Helper()
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "RELEASE_v0004_20260607_080910.zip")
	manPath := filepath.Join(dir, "build_manifest_v0004.json")
	require.NoError(t, os.WriteFile(zipPath, []byte("PK"), 0o644))
	require.NoError(t, os.WriteFile(manPath, []byte("{}"), 0o644))
	return &release.Artifact{Kind: release.KindFull, Version: "v0004", Path: zipPath, ManifestPath: manPath}
}

func TestPublish(t *testing.T) {
	store := NewMemoryStore()
	p := New(store, "/releases/", nil)

	keys, err := p.Publish(context.Background(), artifact(t))
	require.NoError(t, err)
	want := []string{
		"releases/v0004/RELEASE_v0004_20260607_080910.zip",
		"releases/v0004/build_manifest_v0004.json",
	}
	assert.Equal(t, want, keys)
	assert.ElementsMatch(t, want, store.Keys())

	data, err := store.Get(want[0])
	require.NoError(t, err)
	assert.Equal(t, "PK", string(data))

	_, err = store.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPublishWithoutPrefix(t *testing.T) {
	p := New(NewMemoryStore(), "", nil)
	assert.Equal(t, "v0001/a.zip", p.Key("v0001", "/tmp/out/a.zip"))
}

func TestPublishErrors(t *testing.T) {
	p := New(NewMemoryStore(), "x", nil)
	_, err := p.Publish(context.Background(), nil)
	assert.Error(t, err)

	art := artifact(t)
	art.ManifestPath = filepath.Join(t.TempDir(), "gone.json")
	keys, err := p.Publish(context.Background(), art)
	require.Error(t, err)
	assert.Len(t, keys, 1)
}

type failingStore struct{}

func (failingStore) Put(context.Context, string, io.Reader, int64, string) error {
	return errors.New("denied")
}

func TestPublishStoreFailure(t *testing.T) {
	_, err := New(failingStore{}, "", nil).Publish(context.Background(), artifact(t))
	assert.ErrorContains(t, err, "denied")
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/zip", contentType("a.zip"))
	assert.Equal(t, "application/json", contentType("a.json"))
	assert.Equal(t, "application/octet-stream", contentType("a.bin"))
}

func TestNewS3Store(t *testing.T) {
	valid := config.PublishConfig{Endpoint: "localhost:9000", Bucket: "releases", AccessKey: "a", SecretKey: "b"}

	s, err := NewS3Store(valid)
	require.NoError(t, err)
	assert.Equal(t, "releases", s.Bucket())
	assert.Equal(t, "us-east-1", s.region)

	tests := []struct {
		name   string
		mutate func(*config.PublishConfig)
	}{
		{"no endpoint", func(c *config.PublishConfig) { c.Endpoint = "" }},
		{"no bucket", func(c *config.PublishConfig) { c.Bucket = " " }},
		{"no credentials", func(c *config.PublishConfig) { c.SecretKey = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			_, err := NewS3Store(cfg)
			assert.Error(t, err)
		})
	}
}
