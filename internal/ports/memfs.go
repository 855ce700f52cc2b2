package ports

import (
	"io/fs"
	"sync"
	"time"
)

// MemFileSystem is an in-memory FileSystem test double. The zero value is
// not usable; construct one with NewMemFileSystem. Its methods are safe for
// concurrent use since test graphs build many nodes concurrently.
type MemFileSystem struct {
	mu      sync.Mutex
	content map[string][]byte
	mtime   map[string]time.Time
	dirs    map[string]bool
}

// NewMemFileSystem returns an empty MemFileSystem.
func NewMemFileSystem() *MemFileSystem {
	return &MemFileSystem{
		content: make(map[string][]byte),
		mtime:   make(map[string]time.Time),
		dirs:    make(map[string]bool),
	}
}

// WriteFile seeds path with contents and stamps it with modTime, simulating
// a file already present on disk (e.g. a source input) or the output of a
// command that has just run.
func (m *MemFileSystem) WriteFile(path string, contents []byte, modTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(contents))
	copy(buf, contents)
	m.content[path] = buf
	m.mtime[path] = modTime
}

func (m *MemFileSystem) ModTime(path string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.mtime[path]
	if !ok {
		return time.Time{}, &fs.PathError{Op: "stat", Path: path, Err: fs.ErrNotExist}
	}
	return t, nil
}

func (m *MemFileSystem) ReadFile(path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.content[path]
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: path, Err: fs.ErrNotExist}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (m *MemFileSystem) MkdirAll(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[path] = true
	return nil
}

var _ FileSystem = (*MemFileSystem)(nil)
