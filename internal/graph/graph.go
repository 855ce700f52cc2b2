// Package graph implements the build graph validator: it models the static
// (and, after dyndep resolution, dynamic) dependency graph as a directed
// graph of output paths and detects cycles.
package graph

import (
	"sort"
	"sync"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/stapelberg/nbuild/internal/ir"
	"github.com/stapelberg/nbuild/internal/paths"
)

// CircularDependencyError is returned by Validate/Insert when the graph
// contains a cycle. Paths lists the member output/input paths of the
// largest strongly connected component containing the node that toposort
// got stuck on, matching the ordering gonum's TarjanSCC reports them in.
type CircularDependencyError struct {
	Paths []string
}

func (e *CircularDependencyError) Error() string {
	s := "circular dependency:"
	for _, p := range e.Paths {
		s += " " + p
	}
	return s
}

type node struct {
	id   int64
	path string
}

func (n node) ID() int64 { return n.id }

// BuildGraph is the directed graph of output→input edges (both explicit and
// order-only). It is mutated in place by Insert when a node's dyndep file
// is resolved, under mu, so that concurrent build tasks can safely request
// insertion of their own dynamic edges.
type BuildGraph struct {
	mu    sync.Mutex
	g     *simple.DirectedGraph
	nodes map[string]int64
	next  int64

	// selfLoops lists paths that name themselves as an input. A
	// simple.DirectedGraph cannot hold a self edge, so these cycles are
	// tracked here instead.
	selfLoops []string
}

// New builds the static graph from a Configuration's outputs map and
// validates it. interner resolves each Build's PathId-valued inputs back to
// path strings, which is what the graph's nodes are keyed by.
func New(outputs map[string]*ir.Build, interner *paths.Interner) (*BuildGraph, error) {
	bg := &BuildGraph{
		g:     simple.NewDirectedGraph(),
		nodes: make(map[string]int64),
	}
	for output, build := range outputs {
		bg.addNodeLocked(output) // ensure outputs with no inputs still appear
		for _, input := range build.Inputs {
			bg.addEdgeLocked(output, interner.Name(input))
		}
		for _, input := range build.OrderOnlyInputs {
			bg.addEdgeLocked(output, interner.Name(input))
		}
	}
	if err := bg.validateLocked(); err != nil {
		return nil, err
	}
	return bg, nil
}

func (bg *BuildGraph) addNodeLocked(path string) int64 {
	if id, ok := bg.nodes[path]; ok {
		return id
	}
	id := bg.next
	bg.next++
	bg.nodes[path] = id
	bg.g.AddNode(node{id: id, path: path})
	return id
}

func (bg *BuildGraph) addEdgeLocked(output, input string) {
	if output == input {
		bg.addNodeLocked(output)
		bg.selfLoops = append(bg.selfLoops, output)
		return
	}
	from := bg.addNodeLocked(output)
	to := bg.addNodeLocked(input)
	bg.g.SetEdge(bg.g.NewEdge(bg.g.Node(from), bg.g.Node(to)))
}

// Validate reports whether the graph is currently acyclic.
func (bg *BuildGraph) Validate() error {
	bg.mu.Lock()
	defer bg.mu.Unlock()
	return bg.validateLocked()
}

func (bg *BuildGraph) validateLocked() error {
	if len(bg.selfLoops) > 0 {
		return &CircularDependencyError{Paths: []string{bg.selfLoops[0]}}
	}
	if _, err := topo.Sort(bg.g); err == nil {
		return nil
	} else {
		return bg.reportCycle(err)
	}
}

// reportCycle turns a topo.Unorderable error into a CircularDependencyError
// naming the largest strongly connected component that contains one of the
// nodes toposort could not place, breaking ties deterministically: sort all
// components by size ascending, then take the last (i.e. largest,
// last-encountered-at-that-size) one that contains the offending node.
func (bg *BuildGraph) reportCycle(err error) error {
	unorderable, ok := err.(topo.Unorderable)
	if !ok || len(unorderable) == 0 || len(unorderable[0]) == 0 {
		return &CircularDependencyError{}
	}
	offending := unorderable[0][0].ID()

	components := topo.TarjanSCC(bg.g)
	sort.Slice(components, func(i, j int) bool { return len(components[i]) < len(components[j]) })

	for i := len(components) - 1; i >= 0; i-- {
		for _, n := range components[i] {
			if n.ID() == offending {
				return &CircularDependencyError{Paths: pathsOf(components[i])}
			}
		}
	}
	return &CircularDependencyError{}
}

func pathsOf(nodes []graph.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.(node).path
	}
	return out
}

// Insert adds new edges (output → each dynamic input) discovered from a
// dyndep file and revalidates the whole graph.
func (bg *BuildGraph) Insert(cfg *ir.DynamicConfiguration) error {
	bg.mu.Lock()
	defer bg.mu.Unlock()
	for output, build := range cfg.Outputs {
		for _, input := range build.Inputs {
			bg.addEdgeLocked(output, input)
		}
	}
	return bg.validateLocked()
}
