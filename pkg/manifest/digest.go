package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"golang.org/x/crypto/blake2b"
)

// Digest names a content digest algorithm.
type Digest string

const (
	// SHA256 is the default digest.
	SHA256 Digest = "sha256"

	// BLAKE2b is BLAKE2b-256.
	BLAKE2b Digest = "blake2b"
)

// New returns a fresh hasher for the algorithm.
func (d Digest) New() (hash.Hash, error) {
	switch d {
	case SHA256, "":
		return sha256.New(), nil
	case BLAKE2b:
		return blake2b.New256(nil)
	default:
		return nil, fmt.Errorf("unknown digest %q", d)
	}
}

// HashFile streams the file at path through the digest and returns the
// hex sum and the number of bytes read.
func (d Digest) HashFile(path string) (string, int64, error) {
	h, err := d.New()
	if err != nil {
		return "", 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	n, err := io.Copy(h, f)
	if err != nil {
		return "", n, fmt.Errorf("failed to hash file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// HashBytes digests data and returns the hex sum.
func (d Digest) HashBytes(data []byte) (string, error) {
	h, err := d.New()
	if err != nil {
		return "", err
	}
	_, _ = h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}
