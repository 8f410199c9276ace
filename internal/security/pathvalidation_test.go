package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	safeDir := t.TempDir()

	inside := filepath.Join(safeDir, "evidence.jpg")
	if err := ValidatePathWithinDirectory(inside, safeDir); err != nil {
		t.Errorf("path inside safe dir rejected: %v", err)
	}

	nested := filepath.Join(safeDir, "2026", "08", "evidence.jpg")
	if err := ValidatePathWithinDirectory(nested, safeDir); err != nil {
		t.Errorf("nested path rejected: %v", err)
	}

	traversal := filepath.Join(safeDir, "..", "escape.txt")
	if err := ValidatePathWithinDirectory(traversal, safeDir); err == nil {
		t.Error("traversal path accepted")
	}

	if err := ValidatePathWithinDirectory("/etc/passwd", safeDir); err == nil {
		t.Error("absolute path outside safe dir accepted")
	}

	if err := ValidatePathWithinDirectory(safeDir+"-sibling/file", safeDir); err == nil {
		t.Error("prefix-sibling directory accepted")
	}
}

func TestValidatePathWithinDirectorySymlinkEscape(t *testing.T) {
	safeDir := t.TempDir()
	outside := t.TempDir()

	link := filepath.Join(safeDir, "link")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	if err := ValidatePathWithinDirectory(filepath.Join(link, "file.txt"), safeDir); err == nil {
		t.Error("symlink escape accepted")
	}
}
