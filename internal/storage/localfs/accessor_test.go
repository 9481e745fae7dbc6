package localfs

import (
	"errors"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/yndnr/dirmesh-go/internal/core/domain"
)

func fileURI(p string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(p)}).String()
}

func TestAccessor_OpenAndReadable(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(p, []byte("twelve bytes"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	a := New()
	uri := fileURI(p)

	if !a.Readable(uri) {
		t.Fatalf("Readable(%q) = false, want true", uri)
	}

	size, rc, err := a.Open(uri)
	if err != nil {
		t.Fatalf("Open error = %v", err)
	}
	defer rc.Close()
	if size != 12 {
		t.Errorf("size = %d, want 12", size)
	}
	data, _ := io.ReadAll(rc)
	if string(data) != "twelve bytes" {
		t.Errorf("content = %q", data)
	}
}

func TestAccessor_Missing(t *testing.T) {
	a := New()
	uri := fileURI(filepath.Join(t.TempDir(), "gone.txt"))

	if a.Readable(uri) {
		t.Error("Readable should be false for a missing file")
	}
	_, _, err := a.Open(uri)
	if !errors.Is(err, domain.ErrFileNotFound) {
		t.Errorf("Open error = %v, want ErrFileNotFound", err)
	}
}

func TestAccessor_RejectsNonFileURIs(t *testing.T) {
	a := New()
	for _, uri := range []string{"http://example.com/x", "file://host/tmp/x", "file:", "::bad"} {
		if a.Readable(uri) {
			t.Errorf("Readable(%q) = true, want false", uri)
		}
	}
}

func TestAccessor_DirectoryIsNotReadable(t *testing.T) {
	a := New()
	if a.Readable(fileURI(t.TempDir())) {
		t.Error("a directory should not be shareable")
	}
}

func TestAccessor_Root(t *testing.T) {
	root := t.TempDir()
	inside := filepath.Join(root, "a.txt")
	if err := os.WriteFile(inside, []byte("a"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	outside := filepath.Join(t.TempDir(), "b.txt")
	if err := os.WriteFile(outside, []byte("b"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	a := New(WithRoot(root))
	if !a.Readable(fileURI(inside)) {
		t.Error("file under root should be readable")
	}
	if a.Readable(fileURI(outside)) {
		t.Error("file outside root should not be readable")
	}
}

func TestAccessor_RootSymlinks(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(t.TempDir(), "secret.txt")
	if err := os.WriteFile(outside, []byte("s"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	inside := filepath.Join(root, "a.txt")
	if err := os.WriteFile(inside, []byte("a"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	escape := filepath.Join(root, "escape.txt")
	if err := os.Symlink(outside, escape); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	alias := filepath.Join(root, "alias.txt")
	if err := os.Symlink(inside, alias); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	a := New(WithRoot(root))
	if a.Readable(fileURI(escape)) {
		t.Error("symlink leading outside root should not be readable")
	}
	if _, _, err := a.Open(fileURI(escape)); !errors.Is(err, domain.ErrFileNotFound) {
		t.Errorf("Open(escape) error = %v, want ErrFileNotFound", err)
	}
	if !a.Readable(fileURI(alias)) {
		t.Error("symlink to a file under root should be readable")
	}
}
