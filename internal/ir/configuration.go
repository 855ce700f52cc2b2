package ir

import "github.com/stapelberg/nbuild/internal/paths"

// Configuration is the compiled, ready-to-execute build graph produced by
// the (out-of-scope) manifest compiler. It is immutable once built and
// shared read-only across every build task.
type Configuration struct {
	// Outputs maps an output path string to the Build that produces it.
	Outputs map[string]*Build

	// DefaultOutputs are the output paths to build when the caller
	// requests no explicit targets.
	DefaultOutputs map[string]struct{}

	// SourceMap maps a generated output back to a human-readable source
	// name, used only when rendering error messages.
	SourceMap map[string]string

	// BuildDirectory is where persistent engine state (the build database)
	// is stored. Empty means "caller must supply one".
	BuildDirectory string

	// Paths is the path interner shared by every Build in Outputs.
	Paths *paths.Interner
}

// BuildHash is the pair of hashes stored per BuildId: a cheap
// modification-time digest and an expensive content digest.
type BuildHash struct {
	Timestamp uint64
	Content   uint64
}

// DynamicBuild is one entry of a DynamicConfiguration: the extra implicit
// inputs a dyndep file declares for a single output.
type DynamicBuild struct {
	Inputs []string
}

// DynamicConfiguration is the result of compiling a dyndep file: a mapping
// from output path to the extra inputs discovered for it.
type DynamicConfiguration struct {
	Outputs map[string]*DynamicBuild
}
