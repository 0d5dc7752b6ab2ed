// Package blob persists uploaded document bytes and serves them back by
// name. The local-disk implementation stands in for cloud object storage;
// references are paths under /uploads/.
package blob

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// Store persists raw bytes and returns a retrievable reference.
type Store interface {
	Save(data []byte, originalName string) (string, error)
	Open(name string) (io.ReadCloser, error)
}

// ErrNotFound is returned by Open for unknown names.
var ErrNotFound = eris.New("blob: not found")

// Local stores blobs as files in a single directory.
type Local struct {
	dir string
}

// NewLocal creates the directory if needed and returns a Local store.
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "blob: create dir %s", dir)
	}
	return &Local{dir: dir}, nil
}

// Save writes the bytes under a fresh UUID name, preserving the original
// extension, and returns the /uploads/ reference.
func (l *Local) Save(data []byte, originalName string) (string, error) {
	ext := filepath.Ext(originalName)
	if ext == "" {
		ext = ".bin"
	}
	name := uuid.New().String() + ext

	if err := os.WriteFile(filepath.Join(l.dir, name), data, 0o644); err != nil {
		return "", eris.Wrap(err, "blob: write file")
	}
	return "/uploads/" + name, nil
}

// Open returns a reader for a previously saved blob. Names containing path
// separators are rejected so callers can pass URL segments directly.
func (l *Local) Open(name string) (io.ReadCloser, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return nil, ErrNotFound
	}

	f, err := os.Open(filepath.Join(l.dir, name))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "blob: open %s", name)
	}
	return f, nil
}

// ContentTypeFor infers the response content type from the file extension.
func ContentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
