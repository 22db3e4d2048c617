// Package artifact provides the fallback sources report PDFs are read from
// when the remote artifact store cannot serve them.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when a named artifact does not exist in a source.
var ErrNotFound = errors.New("artifact not found")

// Source looks up artifacts by exact file name. Implementations must be safe
// for concurrent use.
type Source interface {
	Open(ctx context.Context, name string) (*Object, error)
	Name() string
}

// Object is an opened artifact. The caller must close Body.
type Object struct {
	Body io.ReadCloser
	Size int64
}

// DirSource reads artifacts from a flat directory on local disk.
type DirSource struct {
	dir string
}

// NewDirSource creates a DirSource rooted at dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

func (s *DirSource) Name() string { return "fs" }

// Open opens dir/name. Names containing path separators are rejected so a
// candidate can never escape the directory.
func (s *DirSource) Open(_ context.Context, name string) (*Object, error) {
	if name == "" || name != filepath.Base(name) {
		return nil, fmt.Errorf("invalid artifact name %q", name)
	}

	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("open %s: %w", name, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrNotFound, name)
	}

	return &Object{Body: f, Size: info.Size()}, nil
}

var _ Source = (*DirSource)(nil)
