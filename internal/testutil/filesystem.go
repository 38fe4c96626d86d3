package testutil

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"dupe-go/internal/dupe"
)

// MockFile represents a file in the mock filesystem.
type MockFile struct {
	Content     []byte
	Permissions fs.FileMode
	ModTime     time.Time
}

// MockFilesystemManager is an in-memory filesystem for testing.
// Paths are absolute and slash separated.
type MockFilesystemManager struct {
	files map[string]*MockFile
	dirs  map[string]bool

	openFailures map[string]*failure
	moveFailures map[string]error
	copyFailures map[string]error

	// Moves and Copies record successful relocations as "src -> dst".
	Moves  []string
	Copies []string
	// Opens counts Open calls per path, including failed ones.
	Opens map[string]int
}

type failure struct {
	err       error
	remaining int
}

// NewMockFilesystemManager creates a new mock filesystem containing only "/".
func NewMockFilesystemManager() *MockFilesystemManager {
	return &MockFilesystemManager{
		files:        make(map[string]*MockFile),
		dirs:         map[string]bool{"/": true},
		openFailures: make(map[string]*failure),
		moveFailures: make(map[string]error),
		copyFailures: make(map[string]error),
		Opens:        make(map[string]int),
	}
}

// AddFile adds a file and its parent directories to the mock filesystem.
func (m *MockFilesystemManager) AddFile(path string, content []byte) {
	m.addParents(path)
	m.files[path] = &MockFile{
		Content:     content,
		Permissions: 0644,
		ModTime:     time.Now(),
	}
}

// AddDirectory adds a directory and its parents to the mock filesystem.
func (m *MockFilesystemManager) AddDirectory(path string) {
	m.addParents(path)
	m.dirs[path] = true
}

// RemoveFile deletes a file, simulating a file that disappeared after scanning.
func (m *MockFilesystemManager) RemoveFile(path string) {
	delete(m.files, path)
}

// FailOpen makes the next times calls to Open(path) return err.
// times < 0 fails forever; times == 0 clears the failure.
func (m *MockFilesystemManager) FailOpen(path string, err error, times int) {
	m.openFailures[path] = &failure{err: err, remaining: times}
}

// FailMove makes every Move from src return err. A nil err clears it.
func (m *MockFilesystemManager) FailMove(src string, err error) {
	m.moveFailures[src] = err
}

// FailCopy makes every Copy from src return err. A nil err clears it.
func (m *MockFilesystemManager) FailCopy(src string, err error) {
	m.copyFailures[src] = err
}

// Exists reports whether a file is present at path.
func (m *MockFilesystemManager) Exists(path string) bool {
	_, ok := m.files[path]
	return ok
}

// Content returns the bytes stored at path, or nil.
func (m *MockFilesystemManager) Content(path string) []byte {
	if f, ok := m.files[path]; ok {
		return f.Content
	}
	return nil
}

// Files returns every file path, sorted.
func (m *MockFilesystemManager) Files() []string {
	paths := make([]string, 0, len(m.files))
	for p := range m.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (m *MockFilesystemManager) addParents(path string) {
	for dir := filepath.Dir(path); !m.dirs[dir]; dir = filepath.Dir(dir) {
		m.dirs[dir] = true
	}
}

func notExist(op, path string) error {
	return &fs.PathError{Op: op, Path: path, Err: fs.ErrNotExist}
}

func (m *MockFilesystemManager) Resolve(rawPath string) (*dupe.Path, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, err
	}

	info, err := m.Stat(absPath)
	if err != nil {
		return nil, err
	}
	return dupe.NewPath(absPath, info.IsDir(), info), nil
}

func (m *MockFilesystemManager) FindFiles(path *dupe.Path, recursive bool) ([]*dupe.Path, error) {
	if !path.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", path.String())
	}

	prefix := strings.TrimSuffix(path.String(), "/") + "/"
	var paths []*dupe.Path
	for _, p := range m.Files() {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		if !recursive && strings.Contains(p[len(prefix):], "/") {
			continue
		}
		info, _ := m.Stat(p)
		paths = append(paths, dupe.NewPath(p, false, info))
	}
	return paths, nil
}

func (m *MockFilesystemManager) Open(path string) (io.ReadCloser, error) {
	m.Opens[path]++
	if f, ok := m.openFailures[path]; ok && f.remaining != 0 {
		if f.remaining > 0 {
			f.remaining--
		}
		return nil, f.err
	}

	file, ok := m.files[path]
	if !ok {
		if m.dirs[path] {
			return nil, fmt.Errorf("cannot open directory: %s", path)
		}
		return nil, notExist("open", path)
	}
	return io.NopCloser(bytes.NewReader(file.Content)), nil
}

func (m *MockFilesystemManager) Stat(path string) (fs.FileInfo, error) {
	if m.dirs[path] {
		return &mockFileInfo{name: filepath.Base(path), mode: fs.ModeDir | 0755, isDir: true}, nil
	}
	file, ok := m.files[path]
	if !ok {
		return nil, notExist("stat", path)
	}
	return &mockFileInfo{
		name:    filepath.Base(path),
		size:    int64(len(file.Content)),
		mode:    file.Permissions,
		modTime: file.ModTime,
	}, nil
}

func (m *MockFilesystemManager) MkdirAll(dir string) error {
	if _, ok := m.files[dir]; ok {
		return fmt.Errorf("mkdir %s: not a directory", dir)
	}
	m.AddDirectory(dir)
	return nil
}

func (m *MockFilesystemManager) Move(src, dst string) error {
	if err := m.moveFailures[src]; err != nil {
		return err
	}
	if err := m.checkRelocation(src, dst); err != nil {
		return err
	}
	m.files[dst] = m.files[src]
	delete(m.files, src)
	m.Moves = append(m.Moves, src+" -> "+dst)
	return nil
}

func (m *MockFilesystemManager) Copy(src, dst string) error {
	if err := m.copyFailures[src]; err != nil {
		return err
	}
	if err := m.checkRelocation(src, dst); err != nil {
		return err
	}
	f := *m.files[src]
	f.Content = append([]byte(nil), f.Content...)
	m.files[dst] = &f
	m.Copies = append(m.Copies, src+" -> "+dst)
	return nil
}

func (m *MockFilesystemManager) checkRelocation(src, dst string) error {
	if _, ok := m.files[src]; !ok {
		return notExist("rename", src)
	}
	if _, ok := m.files[dst]; ok {
		return &fs.PathError{Op: "rename", Path: dst, Err: fs.ErrExist}
	}
	if !m.dirs[filepath.Dir(dst)] {
		return notExist("rename", filepath.Dir(dst))
	}
	return nil
}

// mockFileInfo implements fs.FileInfo
type mockFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
	isDir   bool
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() fs.FileMode  { return m.mode }
func (m *mockFileInfo) ModTime() time.Time { return m.modTime }
func (m *mockFileInfo) IsDir() bool        { return m.isDir }
func (m *mockFileInfo) Sys() any           { return nil }

// Compile-time check
var _ dupe.FilesystemManager = (*MockFilesystemManager)(nil)
