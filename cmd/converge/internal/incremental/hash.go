package incremental

import (
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// fingerprint is an xxHash64 digest. Its string form is 16 hex digits.
type fingerprint uint64

func (f fingerprint) String() string { return fmt.Sprintf("%016x", uint64(f)) }

// HashFile fingerprints the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	d := xxhash.New()
	if _, err := io.Copy(d, f); err != nil {
		return "", fmt.Errorf("failed to fingerprint %s: %w", path, err)
	}
	return fingerprint(d.Sum64()).String(), nil
}

// HashBytes fingerprints data.
func HashBytes(data []byte) string {
	return fingerprint(xxhash.Sum64(data)).String()
}
