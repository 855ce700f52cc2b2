// Package ports defines the capability boundaries the engine is built
// against: FileSystem, Database and Console. Each has a real,
// disk/terminal-backed implementation and an in-memory test double, the
// same shape the teacher uses for CommandRunner-equivalent seams (compare
// internal/batch.scheduler.build, the real command path, against
// scheduler.buildDry, its simulated twin).
package ports

import (
	"os"
	"time"
)

// FileSystem is the disk capability boundary: stat, read, and create
// directories. Injected into the engine so tests can swap in an in-memory
// double instead of touching the real disk.
type FileSystem interface {
	// ModTime returns path's last-modified time as the platform reports it.
	// It returns an *fs.PathError when path does not exist.
	ModTime(path string) (time.Time, error)

	// ReadFile returns path's full contents.
	ReadFile(path string) ([]byte, error)

	// MkdirAll creates path and any missing parents, matching os.MkdirAll.
	MkdirAll(path string) error
}

// OSFileSystem is the real, disk-backed FileSystem.
type OSFileSystem struct{}

func (OSFileSystem) ModTime(path string) (time.Time, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return fi.ModTime(), nil
}

func (OSFileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (OSFileSystem) MkdirAll(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0755)
}

var _ FileSystem = OSFileSystem{}
