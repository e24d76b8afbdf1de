package release

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zip"
)

// archive writes a deflated zip to a temp file and renames it into place
// on Close. Abort removes the temp file.
type archive struct {
	path  string
	tmp   *os.File
	zw    *zip.Writer
	names map[string]bool
}

func createArchive(path string) (*archive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}
	return &archive{path: path, tmp: tmp, zw: zip.NewWriter(tmp), names: map[string]bool{}}, nil
}

// has reports whether name was already written.
func (a *archive) has(name string) bool { return a.names[name] }

// addFile copies the file at src into the archive under name.
func (a *archive) addFile(name, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate
	w, err := a.zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to archive %s: %w", name, err)
	}
	a.names[name] = true
	return nil
}

// addBytes stores data under name.
func (a *archive) addBytes(name string, data []byte, mod time.Time) error {
	w, err := a.zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: mod})
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	a.names[name] = true
	return nil
}

// close finalizes the archive and returns its size.
func (a *archive) close() (int64, error) {
	if err := a.zw.Close(); err != nil {
		a.abort()
		return 0, fmt.Errorf("failed to finalize archive: %w", err)
	}
	if err := a.tmp.Sync(); err != nil {
		a.abort()
		return 0, err
	}
	info, err := a.tmp.Stat()
	if err != nil {
		a.abort()
		return 0, err
	}
	if err := a.tmp.Close(); err != nil {
		_ = os.Remove(a.tmp.Name())
		return 0, err
	}
	if err := os.Rename(a.tmp.Name(), a.path); err != nil {
		_ = os.Remove(a.tmp.Name())
		return 0, fmt.Errorf("failed to move archive into place: %w", err)
	}
	return info.Size(), nil
}

func (a *archive) abort() {
	_ = a.tmp.Close()
	_ = os.Remove(a.tmp.Name())
}
