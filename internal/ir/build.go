package ir

import (
	"hash/fnv"

	"github.com/stapelberg/nbuild/internal/paths"
)

// BuildId stably identifies a Build across process runs, derived from its
// outputs and implicit outputs (in order). It is the key under which the
// build database stores a node's BuildHash.
type BuildId uint64

// Bytes returns the little-endian encoding of id, the exact key format the
// build database persists.
func (id BuildId) Bytes() [8]byte {
	var b [8]byte
	v := uint64(id)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

// CalculateBuildId derives a BuildId from a node's outputs and implicit
// outputs. The calculation only depends on those two ordered sequences —
// never on rule, inputs, or command — so a node keeps the same database key
// when its command line changes (the changed command still changes the
// node's hashes, so it is rebuilt).
func CalculateBuildId(outputs, implicitOutputs []paths.Id) BuildId {
	h := fnv.New64a()
	var buf [4]byte
	write := func(id paths.Id) {
		v := uint32(id)
		buf[0] = byte(v)
		buf[1] = byte(v >> 8)
		buf[2] = byte(v >> 16)
		buf[3] = byte(v >> 24)
		h.Write(buf[:])
	}
	for _, id := range outputs {
		write(id)
	}
	h.Write([]byte{0xff}) // separator so outputs=[a,b],implicit=[] cannot collide with outputs=[a],implicit=[b]
	for _, id := range implicitOutputs {
		write(id)
	}
	return BuildId(h.Sum64())
}

// Build is a node of the build DAG: zero or more outputs produced by zero or
// one command from zero or more inputs.
type Build struct {
	Id BuildId

	Outputs         []paths.Id
	ImplicitOutputs []paths.Id

	// Rule is nil for a phony build: a pure aggregator producing no file.
	Rule *Rule

	Inputs          []paths.Id
	OrderOnlyInputs []paths.Id

	// DynamicModule, if non-empty, names a dyndep file to be consulted at
	// build time for extra implicit inputs.
	DynamicModule string
}

// NewBuild constructs a Build and computes its BuildId.
func NewBuild(outputs, implicitOutputs []paths.Id, rule *Rule, inputs, orderOnlyInputs []paths.Id, dynamicModule string) *Build {
	return &Build{
		Id:              CalculateBuildId(outputs, implicitOutputs),
		Outputs:         outputs,
		ImplicitOutputs: implicitOutputs,
		Rule:            rule,
		Inputs:          inputs,
		OrderOnlyInputs: orderOnlyInputs,
		DynamicModule:   dynamicModule,
	}
}

// Phony reports whether b is a pure aggregator with no rule.
func (b *Build) Phony() bool {
	return b.Rule == nil
}
