// Package engine is the top-level build orchestrator: it validates the
// graph, then recursively drives each requested output's Build (and
// everything it depends on) to completion, deduplicating concurrent
// requests for the same node via internal/futures and deciding whether a
// node needs to rerun via internal/hashengine.
//
// Grounded on original_source/src/run/run.rs's run/trigger_build/
// spawn_build, translated from tokio's async_recursion + Arc<RwLock<...>>
// + Shared futures into goroutines, a plain sync.Mutex-guarded
// futures.Map, and engineerr-wrapped errors in the teacher's style.
package engine

import (
	"context"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/stapelberg/nbuild/internal/dyndep"
	"github.com/stapelberg/nbuild/internal/engineerr"
	"github.com/stapelberg/nbuild/internal/exec"
	"github.com/stapelberg/nbuild/internal/futures"
	"github.com/stapelberg/nbuild/internal/graph"
	"github.com/stapelberg/nbuild/internal/hashengine"
	"github.com/stapelberg/nbuild/internal/ir"
	"github.com/stapelberg/nbuild/internal/paths"
	"github.com/stapelberg/nbuild/internal/ports"
)

// Options mirrors SPEC_FULL.md §3.1's Options record: the only knobs the
// core engine itself exposes, everything else (flags, config files,
// manifest syntax) belongs to a caller outside this package.
type Options struct {
	Debug    bool
	Profile  bool
	JobLimit int // 0 means runtime.NumCPU()
}

type engine struct {
	cfg     *ir.Configuration
	graph   *graph.BuildGraph
	db      ports.Database
	fs      ports.FileSystem
	console ports.Console
	exec    *exec.Executor
	futures *futures.Map

	statusMu sync.Mutex
	active   map[ir.BuildId]string
}

// Run validates cfg's build graph and builds targets (or cfg's
// DefaultOutputs, when targets is empty), returning the first error
// encountered. Run returns as soon as one build fails; builds already in
// flight are not cancelled, but Run does not wait for them. A cycle in the
// static graph or an unknown target is reported before any build starts;
// once builds have started, the database is flushed exactly once, on both
// the success and failure paths.
func Run(ctx context.Context, cfg *ir.Configuration, fs ports.FileSystem, db ports.Database, console ports.Console, targets []string, options Options) error {
	bg, err := graph.New(cfg.Outputs, cfg.Paths)
	if err != nil {
		return err
	}

	jobLimit := options.JobLimit
	if jobLimit <= 0 {
		jobLimit = runtime.NumCPU()
	}

	e := &engine{
		cfg:     cfg,
		graph:   bg,
		db:      db,
		fs:      fs,
		console: console,
		exec:    exec.New(int64(jobLimit), console, options.Debug, options.Profile),
		futures: futures.New(),
		active:  make(map[ir.BuildId]string),
	}

	if len(targets) == 0 {
		for output := range cfg.DefaultOutputs {
			targets = append(targets, output)
		}
	}

	builds := make([]*ir.Build, 0, len(targets))
	for _, target := range targets {
		build, ok := cfg.Outputs[target]
		if !ok {
			return &engineerr.DefaultOutputNotFound{Output: target}
		}
		builds = append(builds, build)
	}

	var roots []*futures.Future
	for _, build := range builds {
		roots = append(roots, e.triggerBuild(ctx, build))
	}

	buildErr := futures.WaitAll(ctx, roots)
	if flushErr := db.Flush(); flushErr != nil && buildErr == nil {
		return flushErr
	}
	return buildErr
}

// triggerBuild registers build.Id's future if it isn't already registered,
// and returns the (possibly pre-existing) future either way.
func (e *engine) triggerBuild(ctx context.Context, build *ir.Build) *futures.Future {
	f, _ := e.futures.Start(build.Id, func() error {
		return e.spawnBuild(ctx, build)
	})
	return f
}

// spawnBuild is one node's full procedure: wait for static inputs, resolve
// and wait for dynamic inputs, decide whether the node is up to date, and
// if not, run its rule and record the new hash.
func (e *engine) spawnBuild(ctx context.Context, build *ir.Build) error {
	staticInputs := namesOf(e.cfg.Paths, build.Inputs)
	orderOnlyInputs := namesOf(e.cfg.Paths, build.OrderOnlyInputs)

	if err := e.awaitInputs(ctx, append(append([]string{}, staticInputs...), orderOnlyInputs...)); err != nil {
		return err
	}

	var dynamicInputs []string
	if build.DynamicModule != "" {
		configuration, err := e.resolveDynamicModule(ctx, build)
		if err != nil {
			return err
		}
		dynamicInputs = configuration
		if err := e.awaitInputs(ctx, dynamicInputs); err != nil {
			return err
		}
	}

	outputNames := append(namesOf(e.cfg.Paths, build.Outputs), namesOf(e.cfg.Paths, build.ImplicitOutputs)...)
	outputsExist := true
	for _, output := range outputNames {
		if _, err := e.fs.ModTime(output); err != nil {
			outputsExist = false
			break
		}
	}

	oldHash, hadOld, err := e.db.Get(build.Id)
	if err != nil {
		return err
	}

	hashInputs := append(append([]string{}, staticInputs...), dynamicInputs...)
	fileInputs, phonyInputs := hashengine.PartitionInputs(e.cfg, hashInputs)

	timestampHash, err := hashengine.CalculateTimestampHash(e.fs, e.db, e.cfg, build, fileInputs, phonyInputs)
	if err != nil {
		return err
	}
	if outputsExist && hadOld && timestampHash == oldHash.Timestamp {
		return nil
	}

	contentHash, err := hashengine.CalculateContentHash(e.fs, e.db, e.cfg, build, fileInputs, phonyInputs)
	if err != nil {
		return err
	}
	if outputsExist && hadOld && contentHash == oldHash.Content {
		return nil
	}

	if build.Rule != nil {
		for _, output := range outputNames {
			if err := e.fs.MkdirAll(filepath.Dir(output)); err != nil {
				return engineerr.Wrap("prepare directory for "+output, err)
			}
		}
		var name string
		if len(outputNames) > 0 {
			name = outputNames[0]
		}
		e.pushStatus(build.Id, name)
		err := e.exec.Run(ctx, build.Rule)
		e.popStatus(build.Id)
		if err != nil {
			return err
		}
	}

	if err := e.db.Set(build.Id, ir.BuildHash{Timestamp: timestampHash, Content: contentHash}); err != nil {
		return err
	}
	for _, output := range outputNames {
		if err := e.db.RecordOutput(output); err != nil {
			return err
		}
	}
	return nil
}

// awaitInputs triggers (or joins) the build for every input that names a
// known output, and directly checks existence for every input that
// doesn't (a raw source file).
func (e *engine) awaitInputs(ctx context.Context, inputs []string) error {
	var pending []*futures.Future
	for _, input := range inputs {
		if build, ok := e.cfg.Outputs[input]; ok {
			pending = append(pending, e.triggerBuild(ctx, build))
			continue
		}
		if _, err := e.fs.ModTime(input); err != nil {
			return engineerr.Wrap("stat "+input, err)
		}
	}
	return futures.WaitAll(ctx, pending)
}

// resolveDynamicModule reads and parses build's dyndep file, merges its
// edges into the graph (revalidating for new cycles), and returns the
// extra inputs it declares for build's own output(s).
func (e *engine) resolveDynamicModule(ctx context.Context, build *ir.Build) ([]string, error) {
	contents, err := e.fs.ReadFile(build.DynamicModule)
	if err != nil {
		return nil, engineerr.Wrap("read dynamic module "+build.DynamicModule, err)
	}
	configuration, err := dyndep.Parse(string(contents))
	if err != nil {
		return nil, err
	}
	if err := e.graph.Insert(configuration); err != nil {
		return nil, err
	}

	outputNames := namesOf(e.cfg.Paths, build.Outputs)
	for _, output := range outputNames {
		if db, ok := configuration.Outputs[output]; ok {
			return db.Inputs, nil
		}
	}
	for _, output := range namesOf(e.cfg.Paths, build.ImplicitOutputs) {
		if db, ok := configuration.Outputs[output]; ok {
			return db.Inputs, nil
		}
	}
	var name string
	if len(outputNames) > 0 {
		name = outputNames[0]
	}
	return nil, &engineerr.DynamicDependencyNotFound{Output: name}
}

// pushStatus and popStatus keep the console's "building foo, building bar"
// status area (Console.UpdateStatus) in sync with the set of nodes
// currently running their rule's command. A non-terminal Console ignores
// the update, so this costs nothing when stdout isn't a TTY.
func (e *engine) pushStatus(id ir.BuildId, name string) {
	e.statusMu.Lock()
	e.active[id] = name
	e.updateStatusLocked()
	e.statusMu.Unlock()
}

func (e *engine) popStatus(id ir.BuildId) {
	e.statusMu.Lock()
	delete(e.active, id)
	e.updateStatusLocked()
	e.statusMu.Unlock()
}

func (e *engine) updateStatusLocked() {
	lines := make([]string, 0, len(e.active))
	for _, name := range e.active {
		lines = append(lines, "building "+name)
	}
	sort.Strings(lines)
	e.console.UpdateStatus(lines)
}

func namesOf(interner *paths.Interner, ids []paths.Id) []string {
	if len(ids) == 0 {
		return nil
	}
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = interner.Name(id)
	}
	return names
}
