package ports

import "github.com/stapelberg/nbuild/internal/ir"

// Database is the persistent-state capability boundary: the per-node hash
// record used to decide whether a Build is up to date, plus the output-path
// record set a (non-goal) dead-output sweep would consult.
//
// Get reports ok=false, err=nil for a BuildId never recorded before; that is
// the ordinary "never built" case, not an error.
type Database interface {
	Get(id ir.BuildId) (hash ir.BuildHash, ok bool, err error)
	Set(id ir.BuildId, hash ir.BuildHash) error

	RecordOutput(path string) error
	ListOutputs() ([]string, error)

	// Flush makes all writes so far durable. The engine's contract only
	// requires durability at Flush, not after every Set.
	Flush() error

	Close() error
}
