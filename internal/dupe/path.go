package dupe

import "io/fs"

// Path is a scan target that FilesystemManager.Resolve has checked: it
// exists, it is not a symlink, and it is absolute. The stat result taken at
// resolve time is kept so a failed hash can still record the file's size.
type Path struct {
	absPath string
	isDir   bool
	info    fs.FileInfo
}

// NewPath builds a Path. FilesystemManager implementations call it from
// Resolve and FindFiles; other callers should go through Resolve.
func NewPath(absPath string, isDir bool, info fs.FileInfo) *Path {
	return &Path{absPath: absPath, isDir: isDir, info: info}
}

// String returns the absolute path, the form stored as FilePath in the ledger.
func (p *Path) String() string {
	return p.absPath
}

// IsDir reports whether ScanPath should walk this path rather than hash it.
func (p *Path) IsDir() bool {
	return p.isDir
}

// Info returns the stat result from resolve time. It may be nil for paths
// built by hand.
func (p *Path) Info() fs.FileInfo {
	return p.info
}
