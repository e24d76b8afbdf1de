package manifest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// MissingFileError reports a manifest path that no longer exists.
type MissingFileError struct {
	Path string
}

func (e *MissingFileError) Error() string {
	return fmt.Sprintf("missing file: %s", e.Path)
}

// HashMismatchError reports a file whose content no longer matches its
// recorded digest.
type HashMismatchError struct {
	Path string
	Want string
	Got  string
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("hash mismatch: %s (recorded %s, found %s)", e.Path, short(e.Want), short(e.Got))
}

func short(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// Verify recomputes each entry's digest in manifest order and returns the
// first *MissingFileError or *HashMismatchError encountered.
func Verify(ctx context.Context, root string, m *Manifest) error {
	if m == nil {
		return errors.New("no manifest to verify")
	}
	for _, e := range m.Entries {
		if err := verifyEntry(ctx, root, m.Digest, e); err != nil {
			return err
		}
	}
	return nil
}

// VerifyAll checks every entry and returns all problems found.
func VerifyAll(ctx context.Context, root string, m *Manifest) []error {
	if m == nil {
		return []error{errors.New("no manifest to verify")}
	}
	var problems []error
	for _, e := range m.Entries {
		err := verifyEntry(ctx, root, m.Digest, e)
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return append(problems, err)
		}
		problems = append(problems, err)
	}
	return problems
}

func verifyEntry(ctx context.Context, root string, d Digest, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	abs := filepath.Join(root, filepath.FromSlash(e.Path))
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return &MissingFileError{Path: e.Path}
		}
		return fmt.Errorf("%s: %w", e.Path, err)
	}
	got, _, err := d.HashFile(abs)
	if err != nil {
		return fmt.Errorf("%s: %w", e.Path, err)
	}
	if got != e.Hash {
		return &HashMismatchError{Path: e.Path, Want: e.Hash, Got: got}
	}
	return nil
}
