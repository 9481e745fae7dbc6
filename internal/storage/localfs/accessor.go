// Package localfs gives the directory read access to shared local files.
package localfs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/yndnr/dirmesh-go/internal/core/domain"
)

// Accessor opens shared files by their file:// URI.
type Accessor struct {
	// root, when set, confines shared files to one directory tree.
	root string
}

// Option configures the Accessor.
type Option func(*Accessor)

// WithRoot confines shared files to dir.
func WithRoot(dir string) Option {
	return func(a *Accessor) {
		a.root = filepath.Clean(dir)
	}
}

// New creates an Accessor.
func New(opts ...Option) *Accessor {
	a := &Accessor{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Path maps a file URI to a local path.
func (a *Accessor) Path(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	if u.Scheme != domain.FileScheme || u.Host != "" || u.Path == "" {
		return "", fmt.Errorf("localfs: not a local file uri: %q", uri)
	}
	p := filepath.Clean(filepath.FromSlash(u.Path))
	if a.root == "" {
		return p, nil
	}
	if !within(a.root, p) {
		return "", fmt.Errorf("localfs: %q is outside %s", p, a.root)
	}

	// Symlinks under the root must not lead out of it.
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		return "", fmt.Errorf("localfs: resolve %q: %w", p, err)
	}
	root := a.root
	if r, err := filepath.EvalSymlinks(root); err == nil {
		root = r
	}
	if !within(root, resolved) {
		return "", fmt.Errorf("localfs: %q resolves outside %s", p, a.root)
	}
	return resolved, nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Readable reports whether uri names a regular file the node can read.
func (a *Accessor) Readable(uri string) bool {
	p, err := a.Path(uri)
	if err != nil {
		return false
	}
	f, err := os.Open(p)
	if err != nil {
		return false
	}
	defer f.Close()
	info, err := f.Stat()
	return err == nil && info.Mode().IsRegular()
}

// Open opens the file behind uri for reading and returns its length.
// A missing file yields domain.ErrFileNotFound.
func (a *Accessor) Open(uri string) (int64, io.ReadCloser, error) {
	p, err := a.Path(uri)
	if err != nil {
		return 0, nil, domain.ErrFileNotFound.WithCause(err)
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return 0, nil, domain.ErrFileNotFound.WithCause(err)
		}
		return 0, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return 0, nil, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return 0, nil, domain.ErrFileNotFound.WithDetails(p)
	}
	return info.Size(), f, nil
}
