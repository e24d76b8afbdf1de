package release

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"
)

// Reader reads a release archive.
type Reader struct {
	zr *zip.ReadCloser
}

// OpenArchive opens the archive at path.
func OpenArchive(path string) (*Reader, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	return &Reader{zr: zr}, nil
}

// Close closes the archive.
func (r *Reader) Close() error { return r.zr.Close() }

// Names returns the archive entry names in stored order.
func (r *Reader) Names() []string {
	names := make([]string, 0, len(r.zr.File))
	for _, f := range r.zr.File {
		names = append(names, f.Name)
	}
	return names
}

// ReadFile returns the content of the named entry.
func (r *Reader) ReadFile(name string) ([]byte, error) {
	for _, f := range r.zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer func() { _ = rc.Close() }()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s: not in archive", name)
}

// PatchesManifest decodes the embedded patches manifest.
func (r *Reader) PatchesManifest() (*PatchesManifest, error) {
	data, err := r.ReadFile(PatchesManifestName)
	if err != nil {
		return nil, err
	}
	var pm PatchesManifest
	if err := json.Unmarshal(data, &pm); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", PatchesManifestName, err)
	}
	return &pm, nil
}
