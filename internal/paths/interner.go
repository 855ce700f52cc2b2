// Package paths implements the path interner shared by a Configuration: every
// path string that appears as a build output or input is assigned a stable,
// small integer id so that graph edges and hash inputs can be compared and
// stored by id rather than by repeatedly hashing strings.
package paths

import "sync"

// Id is an opaque handle for an interned path string. Ids are comparable and
// only meaningful relative to the Interner that produced them.
type Id int32

// Interner assigns stable ids to path strings. The zero value is not usable;
// construct one with New. An Interner is safe for concurrent use, since
// dynamic-dependency resolution may intern new paths while build tasks are
// running concurrently.
type Interner struct {
	mu     sync.RWMutex
	byName map[string]Id
	names  []string
}

// New returns an empty Interner.
func New() *Interner {
	return &Interner{byName: make(map[string]Id)}
}

// Intern returns the Id for name, assigning a new one if name was not seen
// before.
func (in *Interner) Intern(name string) Id {
	in.mu.RLock()
	id, ok := in.byName[name]
	in.mu.RUnlock()
	if ok {
		return id
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := in.byName[name]; ok {
		return id
	}
	id = Id(len(in.names))
	in.names = append(in.names, name)
	in.byName[name] = id
	return id
}

// Lookup returns the Id already assigned to name, if any.
func (in *Interner) Lookup(name string) (Id, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	id, ok := in.byName[name]
	return id, ok
}

// Name returns the path string interned as id. It panics if id was never
// produced by this Interner, since that indicates a programming error
// (ids must never cross Interner instances).
func (in *Interner) Name(id Id) string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.names[id]
}

// Len returns the number of distinct interned paths.
func (in *Interner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.names)
}
