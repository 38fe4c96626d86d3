package vault

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dupe-go/internal/dupe"
)

func newTestFSVault(t *testing.T) *FileSystemVault {
	t.Helper()
	v, err := NewFileSystemVault("test", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}
	return v
}

func TestNewFileSystemVault(t *testing.T) {
	t.Run("creates directory structure", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "vault")

		v, err := NewFileSystemVault("test", root)
		if err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}

		if _, err := os.Stat(filepath.Join(root, "snapshots")); err != nil {
			t.Errorf("snapshots directory not created: %v", err)
		}
		if v.name != "test" {
			t.Errorf("name = %q, want %q", v.name, "test")
		}
	})

	t.Run("works with existing directory", func(t *testing.T) {
		if _, err := NewFileSystemVault("test", t.TempDir()); err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}
	})
}

func TestFileSystemVault_PutSnapshot(t *testing.T) {
	v := newTestFSVault(t)
	data := "encrypted ledger"

	if err := v.PutSnapshot("host-123", strings.NewReader(data), int64(len(data)), 1700000000000); err != nil {
		t.Fatalf("PutSnapshot() error = %v", err)
	}

	content, err := os.ReadFile(filepath.Join(v.snapshotDir, "host-123.snapshot"))
	if err != nil {
		t.Fatalf("failed to read snapshot file: %v", err)
	}
	if string(content) != data {
		t.Errorf("snapshot = %q, want %q", string(content), data)
	}

	version, err := v.GetSnapshotVersion("host-123")
	if err != nil {
		t.Fatalf("GetSnapshotVersion() error = %v", err)
	}
	if version != 1700000000000 {
		t.Errorf("GetSnapshotVersion() = %d, want 1700000000000", version)
	}
}

func TestFileSystemVault_PutSnapshot_Overwrites(t *testing.T) {
	v := newTestFSVault(t)

	for i, data := range []string{"version 1", "version 2"} {
		if err := v.PutSnapshot("host", strings.NewReader(data), int64(len(data)), int64(i+1)); err != nil {
			t.Fatalf("PutSnapshot() iteration %d error = %v", i+1, err)
		}
	}

	var buf bytes.Buffer
	if err := v.GetSnapshot("host", &buf); err != nil {
		t.Fatalf("GetSnapshot() error = %v", err)
	}
	if buf.String() != "version 2" {
		t.Errorf("snapshot = %q, want %q", buf.String(), "version 2")
	}
}

func TestFileSystemVault_PutSnapshot_SizeMismatch(t *testing.T) {
	v := newTestFSVault(t)

	if err := v.PutSnapshot("host", strings.NewReader("abc"), 10, 1); err == nil {
		t.Fatal("PutSnapshot() expected error for size mismatch")
	}
	if _, err := os.Stat(filepath.Join(v.snapshotDir, "host.snapshot")); !os.IsNotExist(err) {
		t.Errorf("snapshot file should not exist after a failed put: %v", err)
	}
}

func TestFileSystemVault_GetSnapshot(t *testing.T) {
	v := newTestFSVault(t)

	t.Run("not found", func(t *testing.T) {
		var buf bytes.Buffer
		err := v.GetSnapshot("nonexistent", &buf)
		if !errors.Is(err, dupe.ErrSnapshotNotFound) {
			t.Errorf("GetSnapshot() error = %v, want %v", err, dupe.ErrSnapshotNotFound)
		}

		version, err := v.GetSnapshotVersion("nonexistent")
		if err != nil || version != 0 {
			t.Errorf("GetSnapshotVersion() = %d, %v, want 0, nil", version, err)
		}
	})

	t.Run("invalid names", func(t *testing.T) {
		for _, name := range []string{"", "..", "../escape", `a\b`} {
			var buf bytes.Buffer
			if err := v.GetSnapshot(name, &buf); err == nil {
				t.Errorf("GetSnapshot(%q) expected error", name)
			}
		}
	})
}

func TestFileSystemVault_ValidateSetup(t *testing.T) {
	t.Run("valid setup", func(t *testing.T) {
		if err := newTestFSVault(t).ValidateSetup(); err != nil {
			t.Errorf("ValidateSetup() error = %v", err)
		}
	})

	t.Run("missing root directory", func(t *testing.T) {
		v := &FileSystemVault{
			name:        "test",
			root:        "/nonexistent/path",
			snapshotDir: "/nonexistent/path/snapshots",
		}
		if err := v.ValidateSetup(); err == nil {
			t.Error("ValidateSetup() expected error for missing root")
		}
	})
}

func TestFileSystemVault_AtomicWrite(t *testing.T) {
	v := newTestFSVault(t)
	data := "hello world"

	if err := v.PutSnapshot("host", strings.NewReader(data), int64(len(data)), 1); err != nil {
		t.Fatalf("PutSnapshot() error = %v", err)
	}

	entries, err := os.ReadDir(v.snapshotDir)
	if err != nil {
		t.Fatalf("failed to read snapshot dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", entry.Name())
		}
	}
}
