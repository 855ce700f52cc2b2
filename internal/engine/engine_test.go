package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stapelberg/nbuild/internal/engineerr"
	"github.com/stapelberg/nbuild/internal/graph"
	"github.com/stapelberg/nbuild/internal/ir"
	"github.com/stapelberg/nbuild/internal/paths"
	"github.com/stapelberg/nbuild/internal/ports"
)

func countingRule(t *testing.T, counterPath string) *ir.Rule {
	t.Helper()
	return &ir.Rule{Command: "printf x >> " + counterPath}
}

func readCounter(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return ""
	}
	if err != nil {
		t.Fatalf("ReadFile(%q) = %v", path, err)
	}
	return string(b)
}

func TestRunSkipsUnchangedBuildOnSecondRun(t *testing.T) {
	dir := t.TempDir()
	counter := filepath.Join(dir, "counter")

	interner := paths.New()
	mainC := interner.Intern("main.c")
	fooO := interner.Intern("foo.o")
	build := ir.NewBuild([]paths.Id{fooO}, nil, countingRule(t, counter), []paths.Id{mainC}, nil, "")

	cfg := &ir.Configuration{
		Outputs: map[string]*ir.Build{"foo.o": build},
		Paths:   interner,
	}

	fs := ports.NewMemFileSystem()
	fixed := time.Unix(1000, 0)
	fs.WriteFile("main.c", []byte("int main(){}"), fixed)

	db := ports.NewMemDatabase()
	console := ports.NewMemConsole()

	if err := Run(context.Background(), cfg, fs, db, console, []string{"foo.o"}, Options{JobLimit: 1}); err != nil {
		t.Fatalf("first Run() = %v", err)
	}
	if got := readCounter(t, counter); got != "x" {
		t.Fatalf("counter after first run = %q, want %q", got, "x")
	}

	// Simulate the rule's command having produced foo.o on disk.
	fs.WriteFile("foo.o", []byte("object"), fixed)

	if err := Run(context.Background(), cfg, fs, db, console, []string{"foo.o"}, Options{JobLimit: 1}); err != nil {
		t.Fatalf("second Run() = %v", err)
	}
	if got := readCounter(t, counter); got != "x" {
		t.Errorf("counter after second (no-op) run = %q, want still %q", got, "x")
	}
}

func TestAtMostOneCommandRunsPerBuildId(t *testing.T) {
	dir := t.TempDir()
	counter := filepath.Join(dir, "counter")

	interner := paths.New()
	commonO := interner.Intern("common.o")
	leftO := interner.Intern("left.o")
	rightO := interner.Intern("right.o")
	topO := interner.Intern("top.o")

	common := ir.NewBuild([]paths.Id{commonO}, nil, countingRule(t, counter), nil, nil, "")
	left := ir.NewBuild([]paths.Id{leftO}, nil, &ir.Rule{Command: "true"}, []paths.Id{commonO}, nil, "")
	right := ir.NewBuild([]paths.Id{rightO}, nil, &ir.Rule{Command: "true"}, []paths.Id{commonO}, nil, "")
	top := ir.NewBuild([]paths.Id{topO}, nil, &ir.Rule{Command: "true"}, []paths.Id{leftO, rightO}, nil, "")

	cfg := &ir.Configuration{
		Outputs: map[string]*ir.Build{
			"common.o": common,
			"left.o":   left,
			"right.o":  right,
			"top.o":    top,
		},
		Paths: interner,
	}

	fs := ports.NewMemFileSystem()
	// The rules' commands only touch the real counter file, so simulate the
	// intermediate outputs existing for their dependents to stat.
	for _, name := range []string{"common.o", "left.o", "right.o"} {
		fs.WriteFile(name, []byte(name), time.Unix(1, 0))
	}
	db := ports.NewMemDatabase()
	console := ports.NewMemConsole()

	if err := Run(context.Background(), cfg, fs, db, console, []string{"top.o"}, Options{JobLimit: 4}); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if got := readCounter(t, counter); got != "x" {
		t.Errorf("common.o's rule ran %d times (counter=%q), want exactly once", len(got), got)
	}
}

func TestDefaultOutputNotFoundError(t *testing.T) {
	cfg := &ir.Configuration{Outputs: map[string]*ir.Build{}, Paths: paths.New()}
	fs := ports.NewMemFileSystem()
	db := ports.NewMemDatabase()
	console := ports.NewMemConsole()

	err := Run(context.Background(), cfg, fs, db, console, []string{"missing"}, Options{JobLimit: 1})
	if _, ok := err.(*engineerr.DefaultOutputNotFound); !ok {
		t.Fatalf("Run() error = %v (%T), want *engineerr.DefaultOutputNotFound", err, err)
	}
}

func TestOrderOnlyMissingInputCausesErrorNotRebuild(t *testing.T) {
	interner := paths.New()
	outO := interner.Intern("out.o")
	missing := interner.Intern("missing.txt")
	build := ir.NewBuild([]paths.Id{outO}, nil, &ir.Rule{Command: "true"}, nil, []paths.Id{missing}, "")

	cfg := &ir.Configuration{Outputs: map[string]*ir.Build{"out.o": build}, Paths: interner}
	fs := ports.NewMemFileSystem()
	db := ports.NewMemDatabase()
	console := ports.NewMemConsole()

	err := Run(context.Background(), cfg, fs, db, console, []string{"out.o"}, Options{JobLimit: 1})
	if err == nil {
		t.Fatal("Run() = nil error, want error for missing order-only input")
	}
}

func TestPhonyWithNoInputsAlwaysDirty(t *testing.T) {
	interner := paths.New()
	build := ir.NewBuild([]paths.Id{interner.Intern("all")}, nil, nil, nil, nil, "")
	cfg := &ir.Configuration{Outputs: map[string]*ir.Build{"all": build}, Paths: interner}
	fs := ports.NewMemFileSystem()
	db := ports.NewMemDatabase()
	console := ports.NewMemConsole()

	if err := Run(context.Background(), cfg, fs, db, console, []string{"all"}, Options{JobLimit: 1}); err != nil {
		t.Fatalf("first Run() = %v", err)
	}
	first, _, _ := db.Get(build.Id)

	if err := Run(context.Background(), cfg, fs, db, console, []string{"all"}, Options{JobLimit: 1}); err != nil {
		t.Fatalf("second Run() = %v", err)
	}
	second, _, _ := db.Get(build.Id)

	if first == second {
		t.Error("phony node with no inputs recorded the same hash twice; want a fresh value each run")
	}
}

// recordingConsole wraps MemConsole and keeps every UpdateStatus call, so
// tests can assert the status area was actually pushed to while a rule's
// command was running, not just in its final (always empty) state.
type recordingConsole struct {
	*ports.MemConsole
	mu      sync.Mutex
	history [][]string
}

func newRecordingConsole() *recordingConsole {
	return &recordingConsole{MemConsole: ports.NewMemConsole()}
}

func (c *recordingConsole) UpdateStatus(lines []string) {
	c.MemConsole.UpdateStatus(lines)
	c.mu.Lock()
	c.history = append(c.history, append([]string(nil), lines...))
	c.mu.Unlock()
}

func TestRunReportsBuildingStatusWhileRuleRuns(t *testing.T) {
	dir := t.TempDir()
	counter := filepath.Join(dir, "counter")

	interner := paths.New()
	fooO := interner.Intern("foo.o")
	build := ir.NewBuild([]paths.Id{fooO}, nil, countingRule(t, counter), nil, nil, "")

	cfg := &ir.Configuration{
		Outputs: map[string]*ir.Build{"foo.o": build},
		Paths:   interner,
	}

	fs := ports.NewMemFileSystem()
	db := ports.NewMemDatabase()
	console := newRecordingConsole()

	if err := Run(context.Background(), cfg, fs, db, console, []string{"foo.o"}, Options{JobLimit: 1}); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	var sawBuilding bool
	for _, lines := range console.history {
		for _, line := range lines {
			if line == "building foo.o" {
				sawBuilding = true
			}
		}
	}
	if !sawBuilding {
		t.Fatalf("console.UpdateStatus history = %v, want a call containing %q", console.history, "building foo.o")
	}

	if last := console.Status; len(last) != 0 {
		t.Errorf("console status after Run() = %v, want empty (popped after the rule finished)", last)
	}
}

func TestCycleIntroducedOnlyThroughDyndepIsDetected(t *testing.T) {
	interner := paths.New()
	fooId := interner.Intern("foo")
	barId := interner.Intern("bar")

	foo := ir.NewBuild([]paths.Id{fooId}, nil, nil, nil, nil, "foo.dyndep")
	bar := ir.NewBuild([]paths.Id{barId}, nil, nil, []paths.Id{fooId}, nil, "")

	cfg := &ir.Configuration{
		Outputs: map[string]*ir.Build{"foo": foo, "bar": bar},
		Paths:   interner,
	}

	fs := ports.NewMemFileSystem()
	fs.WriteFile("foo.dyndep", []byte("ninja_dyndep_version = 1\nbuild foo: dyndep | bar\n"), time.Unix(1, 0))
	db := ports.NewMemDatabase()
	console := ports.NewMemConsole()

	err := Run(context.Background(), cfg, fs, db, console, []string{"bar"}, Options{JobLimit: 1})
	if _, ok := err.(*graph.CircularDependencyError); !ok {
		t.Fatalf("Run() error = %v (%T), want *graph.CircularDependencyError", err, err)
	}
}
