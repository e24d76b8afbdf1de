package incremental

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatcrapinmybutt/the-manbearpig/pkg/util"
)

// StateFile is the index file name inside the state directory.
const StateFile = "state.json"

// Store defines the interface for index persistence.
type Store interface {
	Load() (*Index, error)
	Save(idx *Index) error
	Exists() bool
}

// JSONStore keeps the index as a JSON file.
type JSONStore struct {
	path string
	now  func() time.Time
}

// NewJSONStore creates a store for <stateDir>/state.json.
func NewJSONStore(stateDir string) *JSONStore {
	return &JSONStore{path: filepath.Join(stateDir, StateFile), now: time.Now}
}

// Path returns the state file path.
func (s *JSONStore) Path() string { return s.path }

// Load reads the index from disk. A missing file yields an empty index.
func (s *JSONStore) Load() (*Index, error) {
	var idx Index
	if err := util.ReadJSON(s.path, &idx); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewIndex(), nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	if idx.Version > IndexVersion {
		return nil, fmt.Errorf("state file version %d is newer than supported version %d", idx.Version, IndexVersion)
	}
	if idx.Entries == nil {
		idx.Entries = make(map[string]*Entry)
	}
	return &idx, nil
}

// Save writes the index atomically.
func (s *JSONStore) Save(idx *Index) error {
	if idx == nil {
		return fmt.Errorf("cannot save nil index")
	}
	idx.UpdatedAt = s.now().UTC()
	idx.Version = IndexVersion
	return util.WriteJSONAtomic(s.path, idx)
}

// Exists returns true if the state file exists.
func (s *JSONStore) Exists() bool {
	return util.FileExists(s.path)
}
