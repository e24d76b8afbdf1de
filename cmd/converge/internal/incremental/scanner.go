package incremental

import (
	"context"
	"io/fs"

	"github.com/fatcrapinmybutt/the-manbearpig/pkg/tracked"
)

// Scanner builds an Index by walking the tracked tree.
type Scanner struct {
	rules *tracked.Rules
}

// NewScanner creates a scanner over the files rules accepts.
func NewScanner(rules *tracked.Rules) *Scanner {
	return &Scanner{rules: rules}
}

// Scan fingerprints every tracked file.
func (s *Scanner) Scan(ctx context.Context) (*Index, error) {
	return s.scan(ctx, true)
}

// ScanFast records mtime and size only. Hashes are left empty.
func (s *Scanner) ScanFast(ctx context.Context) (*Index, error) {
	return s.scan(ctx, false)
}

func (s *Scanner) scan(ctx context.Context, hash bool) (*Index, error) {
	idx := NewIndex()
	err := s.rules.Walk(ctx, func(rel string, d fs.DirEntry) error {
		info, err := d.Info()
		if err != nil {
			return err
		}
		e := &Entry{
			Path:    rel,
			ModTime: info.ModTime().UnixNano(),
			Size:    info.Size(),
		}
		if hash {
			if e.Hash, err = HashFile(s.rules.Abs(rel)); err != nil {
				return err
			}
		}
		idx.Add(e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return idx, nil
}
