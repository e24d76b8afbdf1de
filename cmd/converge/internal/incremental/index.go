// Package incremental keeps a fingerprint index of the tracked tree so
// that a cycle can tell exactly which files were added, modified or
// deleted since the previous one.
package incremental

import (
	"slices"
	"time"

	"github.com/fatcrapinmybutt/the-manbearpig/pkg/changes"
)

// IndexVersion is the current version of the index format.
const IndexVersion = 2

// Entry is one file's fingerprint.
type Entry struct {
	Path    string `json:"path"`
	Hash    string `json:"hash"`     // xxHash64 hex
	ModTime int64  `json:"mtime_ns"` // UnixNano
	Size    int64  `json:"size"`
}

// Index maps root-relative paths to fingerprints.
type Index struct {
	Version   int               `json:"version"`
	UpdatedAt time.Time         `json:"updated_at"`
	Entries   map[string]*Entry `json:"entries"`
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		Version: IndexVersion,
		Entries: make(map[string]*Entry),
	}
}

// Add adds or updates an entry.
func (idx *Index) Add(e *Entry) {
	if idx == nil || e == nil {
		return
	}
	if idx.Entries == nil {
		idx.Entries = make(map[string]*Entry)
	}
	idx.Entries[e.Path] = e
}

// Get retrieves an entry by path.
func (idx *Index) Get(path string) (*Entry, bool) {
	if idx == nil || idx.Entries == nil {
		return nil, false
	}
	e, ok := idx.Entries[path]
	return e, ok
}

// Len returns the number of entries; nil-safe.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.Entries)
}

// Diff compares idx (old) against other (new). An entry whose mtime and
// size are unchanged is unchanged; otherwise hash decides, and an entry
// with no hash on either side counts as modified.
func (idx *Index) Diff(other *Index) *changes.ChangeSet {
	return diff(idx, other, func(_ string, _, n *Entry) string { return n.Hash })
}

// diff is Diff with a hook that supplies the new hash lazily.
func diff(old, cur *Index, hash func(path string, o, n *Entry) string) *changes.ChangeSet {
	var paths, deleted []string
	added := map[string]bool{}

	for path, n := range entries(cur) {
		o, ok := old.Get(path)
		if !ok {
			paths = append(paths, path)
			added[path] = true
			continue
		}
		if o.ModTime == n.ModTime && o.Size == n.Size {
			continue
		}
		if h := hash(path, o, n); h == "" || o.Hash == "" || h != o.Hash {
			paths = append(paths, path)
		}
	}
	for path := range entries(old) {
		if _, ok := cur.Get(path); !ok {
			paths = append(paths, path)
			deleted = append(deleted, path)
		}
	}

	cs := changes.NewChangeSet(SourceName, paths)
	cs.Added = added
	slices.Sort(deleted)
	cs.Deleted = deleted
	return cs
}

func entries(idx *Index) map[string]*Entry {
	if idx == nil {
		return nil
	}
	return idx.Entries
}
