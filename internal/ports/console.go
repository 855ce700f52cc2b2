package ports

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// Console is the terminal capability boundary. Callers hold the lock
// (Lock/Unlock) around their WriteStderr/WriteStdout calls; the executor
// takes it twice per node, once for the early description write and once
// for the later output write, as two separate, non-overlapping critical
// sections (see internal/exec), per the global lock order: job permit before
// console.
type Console interface {
	sync.Locker

	// WriteStderr writes p to the console's stderr stream. Callers must hold
	// the lock.
	WriteStderr(p []byte) error

	// WriteStdout writes p to the console's stdout stream. Callers must hold
	// the lock.
	WriteStdout(p []byte) error

	// UpdateStatus redraws the multi-line "building foo, building bar" status
	// area above the scroll-back region, matching batch.refreshStatus; a
	// non-terminal Console silently does nothing.
	UpdateStatus(lines []string)
}

// OSConsole is the real terminal-backed Console: stdout/stderr go straight
// to os.Stdout/os.Stderr, and UpdateStatus redraws in place only when
// os.Stdout is a TTY (go-isatty), the same guard batch.isTerminal uses.
type OSConsole struct {
	mu         sync.Mutex
	isTerminal bool
	lastLines  []string
}

// NewOSConsole constructs an OSConsole, probing os.Stdout once at startup.
func NewOSConsole() *OSConsole {
	return &OSConsole{isTerminal: isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())}
}

func (c *OSConsole) Lock()   { c.mu.Lock() }
func (c *OSConsole) Unlock() { c.mu.Unlock() }

func (c *OSConsole) WriteStderr(p []byte) error {
	_, err := os.Stderr.Write(p)
	return err
}

func (c *OSConsole) WriteStdout(p []byte) error {
	_, err := os.Stdout.Write(p)
	return err
}

func (c *OSConsole) UpdateStatus(lines []string) {
	if !c.isTerminal {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	maxLen := 0
	for _, l := range append(append([]string{}, lines...), c.lastLines...) {
		if len(l) > maxLen {
			maxLen = len(l)
		}
	}
	for _, line := range lines {
		if pad := maxLen - len(line); pad > 0 {
			line += strings.Repeat(" ", pad)
		}
		fmt.Println(line)
	}
	if len(lines) > 0 {
		fmt.Printf("\033[%dA", len(lines))
	}
	c.lastLines = append([]string(nil), lines...)
}

var _ Console = (*OSConsole)(nil)

// MemConsole is an in-memory Console test double: every write is appended
// to Stdout/Stderr buffers under the same lock a real executor would hold,
// so tests can assert on contiguous per-node output.
type MemConsole struct {
	mu     sync.Mutex
	Stdout strings.Builder
	Stderr strings.Builder
	Status []string
}

func NewMemConsole() *MemConsole { return &MemConsole{} }

func (c *MemConsole) Lock()   { c.mu.Lock() }
func (c *MemConsole) Unlock() { c.mu.Unlock() }

func (c *MemConsole) WriteStderr(p []byte) error {
	c.Stderr.Write(p)
	return nil
}

func (c *MemConsole) WriteStdout(p []byte) error {
	c.Stdout.Write(p)
	return nil
}

func (c *MemConsole) UpdateStatus(lines []string) {
	c.Status = append([]string(nil), lines...)
}

var _ Console = (*MemConsole)(nil)
