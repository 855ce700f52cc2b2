// Package futures is the shared, cloneable per-node result handle the
// scheduler uses to make sure each BuildId's build runs at most once, no
// matter how many other nodes depend on it.
//
// Grounded on original_source/src/run/run.rs's build_futures map
// (Arc<RwLock<HashMap<BuildId, Shared<...>>>>) and trigger_build's
// "exclusive write lock, check-then-insert" visibility rule: a node's
// build future must become visible to every other goroutine that might
// concurrently request it in the same atomic step it is inserted, or two
// goroutines could both observe "absent" and spawn the same build twice.
package futures

import (
	"context"
	"sync"

	"github.com/stapelberg/nbuild/internal/ir"
)

// Future is a single node's in-flight (or already-finished) build result.
// Any number of goroutines may Wait on the same Future concurrently, the
// same way Rust's futures::future::Shared lets many callers poll one
// underlying future.
type Future struct {
	done chan struct{}

	mu  sync.Mutex
	err error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
	close(f.done)
}

// Wait blocks until f completes or ctx is cancelled, whichever comes first.
// Cancelling ctx does not stop f's underlying goroutine; it only stops this
// particular caller from waiting on it further.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Map is the shared BuildId→Future table. The zero value is not usable;
// use New.
type Map struct {
	mu      sync.Mutex
	futures map[ir.BuildId]*Future
}

// New returns an empty Map.
func New() *Map {
	return &Map{futures: make(map[ir.BuildId]*Future)}
}

// Start registers id's build future and, if id was not already present,
// runs fn in a new goroutine to completion. The check for "already present"
// and the insertion happen under a single exclusive lock, so concurrent
// callers racing to build the same id are guaranteed to see the same
// Future: the first caller's fn is the only one that ever runs.
//
// Start returns the Future to wait on and whether this call is the one
// that launched fn (started == false means some other caller already owns
// this id's build).
func (m *Map) Start(id ir.BuildId, fn func() error) (f *Future, started bool) {
	m.mu.Lock()
	if existing, ok := m.futures[id]; ok {
		m.mu.Unlock()
		return existing, false
	}
	f = newFuture()
	m.futures[id] = f
	m.mu.Unlock()

	go func() {
		f.complete(fn())
	}()
	return f, true
}

// WaitAll waits for every future in fs, returning the first non-nil error
// encountered. It does not wait for the remaining futures once one has
// failed — matching futures::future::try_join_all, which resolves as soon
// as one input errors, while whatever it was driving (here, a goroutine
// already started by Start) keeps running to completion on its own rather
// than being forcibly cancelled.
func WaitAll(ctx context.Context, fs []*Future) error {
	if len(fs) == 0 {
		return nil
	}
	errCh := make(chan error, len(fs))
	for _, f := range fs {
		f := f
		go func() { errCh <- f.Wait(ctx) }()
	}
	var firstErr error
	for range fs {
		if err := <-errCh; err != nil {
			firstErr = err
			break
		}
	}
	return firstErr
}
