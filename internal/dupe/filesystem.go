package dupe

import (
	"io"
	"io/fs"
)

// FilesystemManager provides an interface for filesystem operations.
// It abstracts file access to enable testing without touching the real filesystem.
type FilesystemManager interface {
	// Resolve validates a raw path and returns a Path object.
	// It resolves the path to an absolute path, stats it, and validates
	// it's a regular file or directory (not a symlink, device, etc.).
	Resolve(rawPath string) (*Path, error)

	// FindFiles returns the regular files under a directory, skipping ignored
	// ones. When recursive is false only direct children are returned.
	FindFiles(path *Path, recursive bool) ([]*Path, error)

	// Open opens a file for reading.
	Open(path string) (io.ReadCloser, error)

	// Stat returns fresh file info for a path. A missing path yields an error
	// matching fs.ErrNotExist.
	Stat(path string) (fs.FileInfo, error)

	// MkdirAll creates a directory and any missing parents.
	MkdirAll(dir string) error

	// Move relocates src to dst. dst must not exist.
	Move(src, dst string) error

	// Copy duplicates src at dst, leaving src in place. dst must not exist.
	Copy(src, dst string) error
}
