// Package manifest builds and verifies the tamper-evident listing of
// tracked files: one entry per file with its content digest, category tag
// and declared references.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fatcrapinmybutt/the-manbearpig/pkg/util"
)

// Entry describes one tracked file.
type Entry struct {
	Module     string   `json:"module"`
	Path       string   `json:"path"` // root-relative, slash-separated
	Hash       string   `json:"hash"`
	Category   string   `json:"category"`
	References []string `json:"references"`
	Size       int64    `json:"size"`
	Summary    string   `json:"summary,omitempty"`
}

// Manifest is the ordered list of entries for one version. Entries are
// sorted by Path.
type Manifest struct {
	Version     string    `json:"version"`
	GeneratedAt time.Time `json:"generated_at"`
	Digest      Digest    `json:"digest"`
	Entries     []Entry   `json:"entries"`
}

// Len returns the number of entries; nil-safe.
func (m *Manifest) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Entries)
}

// Lookup returns the first entry whose module name matches.
func (m *Manifest) Lookup(module string) (Entry, bool) {
	if m == nil {
		return Entry{}, false
	}
	for _, e := range m.Entries {
		if e.Module == module {
			return e, true
		}
	}
	return Entry{}, false
}

// Write persists the manifest atomically as indented JSON.
func (m *Manifest) Write(path string) error {
	if m == nil {
		return errors.New("cannot write nil manifest")
	}
	if err := util.WriteJSONAtomic(path, m); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// Load reads a manifest written by Write.
func Load(path string) (*Manifest, error) {
	var m Manifest
	if err := util.ReadJSON(path, &m); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("manifest not found: %w", err)
		}
		return nil, err
	}
	if m.Digest == "" {
		m.Digest = SHA256
	}
	return &m, nil
}
