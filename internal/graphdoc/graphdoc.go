// Package graphdoc loads an already-compiled build graph from a flat JSON
// document into an ir.Configuration. Compiling a real build-manifest
// language (variables, rule templates, generator rules) is explicitly out
// of scope for this engine (SPEC_FULL.md §3 calls manifest compilation an
// external collaborator); graphdoc is the minimal stand-in a caller can
// feed the core engine with directly, in the same spirit as
// cmd/zi's runJob reading a flat JSON buildctx off disk rather than
// invoking a manifest compiler itself.
package graphdoc

import (
	"encoding/json"
	"fmt"

	"github.com/stapelberg/nbuild/internal/ir"
	"github.com/stapelberg/nbuild/internal/paths"
)

// Document is the on-disk JSON shape: every build node plus which outputs
// are built by default when the caller names no explicit targets.
type Document struct {
	Builds         []BuildDoc `json:"builds"`
	DefaultOutputs []string   `json:"default_outputs"`
	BuildDirectory string     `json:"build_directory"`
}

// BuildDoc is one build node. Rule is nil for a phony aggregator.
type BuildDoc struct {
	Outputs         []string `json:"outputs"`
	ImplicitOutputs []string `json:"implicit_outputs,omitempty"`
	Rule            *RuleDoc `json:"rule,omitempty"`
	Inputs          []string `json:"inputs,omitempty"`
	OrderOnlyInputs []string `json:"order_only_inputs,omitempty"`
	DynamicModule   string   `json:"dynamic_module,omitempty"`
}

// RuleDoc is the command a BuildDoc runs.
type RuleDoc struct {
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
}

// Load parses contents as a Document and compiles it into a Configuration,
// interning every path it sees and computing each Build's BuildId.
func Load(contents []byte) (*ir.Configuration, error) {
	var doc Document
	if err := json.Unmarshal(contents, &doc); err != nil {
		return nil, fmt.Errorf("graphdoc: %w", err)
	}
	return Compile(&doc)
}

// Compile turns a parsed Document into a Configuration.
func Compile(doc *Document) (*ir.Configuration, error) {
	interner := paths.New()
	outputs := make(map[string]*ir.Build, len(doc.Builds))
	sourceMap := make(map[string]string)

	for _, b := range doc.Builds {
		if len(b.Outputs) == 0 {
			return nil, fmt.Errorf("graphdoc: build with no outputs")
		}

		var rule *ir.Rule
		if b.Rule != nil {
			rule = &ir.Rule{Command: b.Rule.Command, Description: b.Rule.Description}
		}

		build := ir.NewBuild(
			internAll(interner, b.Outputs),
			internAll(interner, b.ImplicitOutputs),
			rule,
			internAll(interner, b.Inputs),
			internAll(interner, b.OrderOnlyInputs),
			b.DynamicModule,
		)

		for _, output := range b.Outputs {
			outputs[output] = build
			sourceMap[output] = output
		}
		for _, output := range b.ImplicitOutputs {
			outputs[output] = build
			sourceMap[output] = output
		}
	}

	defaultOutputs := make(map[string]struct{}, len(doc.DefaultOutputs))
	for _, output := range doc.DefaultOutputs {
		defaultOutputs[output] = struct{}{}
	}

	return &ir.Configuration{
		Outputs:        outputs,
		DefaultOutputs: defaultOutputs,
		SourceMap:      sourceMap,
		BuildDirectory: doc.BuildDirectory,
		Paths:          interner,
	}, nil
}

func internAll(interner *paths.Interner, names []string) []paths.Id {
	if len(names) == 0 {
		return nil
	}
	ids := make([]paths.Id, len(names))
	for i, n := range names {
		ids[i] = interner.Intern(n)
	}
	return ids
}
