package ports

import (
	"sort"
	"sync"

	"github.com/stapelberg/nbuild/internal/ir"
)

// MemDatabase is an in-memory Database test double.
type MemDatabase struct {
	mu      sync.Mutex
	hashes  map[ir.BuildId]ir.BuildHash
	outputs map[string]struct{}
}

func NewMemDatabase() *MemDatabase {
	return &MemDatabase{
		hashes:  make(map[ir.BuildId]ir.BuildHash),
		outputs: make(map[string]struct{}),
	}
}

func (m *MemDatabase) Get(id ir.BuildId) (ir.BuildHash, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[id]
	return h, ok, nil
}

func (m *MemDatabase) Set(id ir.BuildId, hash ir.BuildHash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashes[id] = hash
	return nil
}

func (m *MemDatabase) RecordOutput(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputs[path] = struct{}{}
	return nil
}

func (m *MemDatabase) ListOutputs() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.outputs))
	for p := range m.outputs {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemDatabase) Flush() error { return nil }
func (m *MemDatabase) Close() error { return nil }

var _ Database = (*MemDatabase)(nil)
