package fsutil

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"
)

func TestOSFileSystemRoundTrip(t *testing.T) {
	fs := OSFileSystem{}
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "file.txt")

	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := fs.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if !fs.Exists(path) {
		t.Error("Exists = false for written file")
	}
	data, err := fs.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(data, []byte("hello")) {
		t.Errorf("ReadFile = %q", data)
	}
	info, err := fs.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != 5 {
		t.Errorf("Size = %d, want 5", info.Size())
	}
}

func TestOSFileSystemCreate(t *testing.T) {
	fs := OSFileSystem{}
	path := filepath.Join(t.TempDir(), "created.bin")

	f, err := fs.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.Write([]byte("abc")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	data, err := fs.ReadFile(path)
	if err != nil || string(data) != "abc" {
		t.Errorf("ReadFile = (%q, %v)", data, err)
	}
}

func TestMemoryFileSystemRoundTrip(t *testing.T) {
	fs := NewMemoryFileSystem()

	if fs.Exists("a/b.txt") {
		t.Error("Exists = true on empty filesystem")
	}
	if _, err := fs.ReadFile("a/b.txt"); err == nil {
		t.Error("ReadFile on missing file succeeded")
	}

	if err := fs.MkdirAll("a/b/c", 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if !fs.Exists("a/b") {
		t.Error("parent directory not created")
	}

	if err := fs.WriteFile("a/b.txt", []byte("data"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := fs.ReadFile("a/b.txt")
	if err != nil || string(data) != "data" {
		t.Errorf("ReadFile = (%q, %v)", data, err)
	}

	info, err := fs.Stat("a/b.txt")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != 4 || info.IsDir() {
		t.Errorf("Stat = size %d isdir %v", info.Size(), info.IsDir())
	}
}

func TestMemoryFileSystemCreateAndOpen(t *testing.T) {
	fs := NewMemoryFileSystem()

	w, err := fs.Create("out.jpg")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := w.Write([]byte("jpegbytes")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := fs.Open("out.jpg")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil || string(data) != "jpegbytes" {
		t.Errorf("read = (%q, %v)", data, err)
	}
}

func TestMemoryFileSystemWriteIsolation(t *testing.T) {
	fs := NewMemoryFileSystem()
	buf := []byte("mutable")
	if err := fs.WriteFile("f", buf, 0o644); err != nil {
		t.Fatal(err)
	}
	buf[0] = 'X'
	data, _ := fs.ReadFile("f")
	if string(data) != "mutable" {
		t.Errorf("stored data aliased caller's buffer: %q", data)
	}
}
