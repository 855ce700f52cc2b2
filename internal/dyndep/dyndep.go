// Package dyndep parses and compiles dynamic-dependency files: a small,
// line-oriented format naming extra implicit inputs for already-declared
// build outputs, discovered only once the rest of the graph has started
// building.
//
// Grounded on the textual grammar in SPEC_FULL.md §6 ("ninja_dyndep_version
// = N" followed by "build OUT: dyndep [| IN1 IN2 ...]" lines) and the IR
// shape in original_source/src/ir/dynamic_{configuration,build}.rs; the
// parser itself is hand-rolled rather than ported from
// original_source/src/parse (that package implements the grammar for the
// full build-manifest language compile/build_id_calculator.rs consumes,
// out of scope here — see SPEC_FULL.md §3 for why manifest compilation is
// an external collaborator).
package dyndep

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/stapelberg/nbuild/internal/ir"
)

// supportedVersion is the only ninja_dyndep_version this resolver accepts.
const supportedVersion = 1

// ParseError reports a malformed dyndep file, with the 1-based line number
// at which parsing failed.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("dyndep file: line %d: %s", e.Line, e.Message)
}

// Parse reads a dyndep file's contents and compiles it directly into a
// DynamicConfiguration. There is no separate untyped AST stage: the
// grammar is small enough that parsing and compiling are the same pass.
func Parse(contents string) (*ir.DynamicConfiguration, error) {
	lines := strings.Split(contents, "\n")

	lineno := 0
	var version string
	for lineno < len(lines) {
		lineno++
		line := strings.TrimSpace(lines[lineno-1])
		if line == "" {
			continue
		}
		version = line
		break
	}
	if version == "" {
		return nil, &ParseError{Line: lineno, Message: "missing ninja_dyndep_version line"}
	}
	if err := parseVersionLine(lineno, version); err != nil {
		return nil, err
	}

	outputs := make(map[string]*ir.DynamicBuild)
	for lineno++; lineno <= len(lines); lineno++ {
		line := strings.TrimSpace(lines[lineno-1])
		if line == "" {
			continue
		}
		output, inputs, err := parseBuildLine(lineno, line)
		if err != nil {
			return nil, err
		}
		outputs[output] = &ir.DynamicBuild{Inputs: inputs}
	}

	return &ir.DynamicConfiguration{Outputs: outputs}, nil
}

func parseVersionLine(lineno int, line string) error {
	const prefix = "ninja_dyndep_version"
	if !strings.HasPrefix(line, prefix) {
		return &ParseError{Line: lineno, Message: "expected ninja_dyndep_version declaration"}
	}
	rest := strings.TrimSpace(line[len(prefix):])
	rest = strings.TrimPrefix(rest, "=")
	rest = strings.TrimSpace(rest)
	version, err := strconv.Atoi(rest)
	if err != nil {
		return &ParseError{Line: lineno, Message: "invalid version number " + strconv.Quote(rest)}
	}
	if version != supportedVersion {
		return &ParseError{Line: lineno, Message: fmt.Sprintf("unsupported dyndep version %d", version)}
	}
	return nil
}

func parseBuildLine(lineno int, line string) (output string, inputs []string, err error) {
	const buildPrefix = "build "
	if !strings.HasPrefix(line, buildPrefix) {
		return "", nil, &ParseError{Line: lineno, Message: "expected a build line"}
	}
	rest := line[len(buildPrefix):]

	colon := strings.Index(rest, ":")
	if colon < 0 {
		return "", nil, &ParseError{Line: lineno, Message: "missing ':' in build line"}
	}
	output = strings.TrimSpace(rest[:colon])
	if output == "" {
		return "", nil, &ParseError{Line: lineno, Message: "empty output in build line"}
	}

	rule := strings.TrimSpace(rest[colon+1:])
	rule = strings.TrimPrefix(rule, "dyndep")
	rule = strings.TrimSpace(rule)

	if rule == "" {
		return output, nil, nil
	}
	if !strings.HasPrefix(rule, "|") {
		return "", nil, &ParseError{Line: lineno, Message: "expected '|' before implicit inputs"}
	}
	rule = strings.TrimSpace(rule[1:])
	if rule == "" {
		return output, nil, nil
	}
	return output, strings.Fields(rule), nil
}
