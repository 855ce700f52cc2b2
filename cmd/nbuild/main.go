// Command nbuild drives an incremental build from a compiled build graph
// document, the same way cmd/distri's top-level verb dispatch reads flags
// with the standard library's flag package and returns a single wrapped
// error from funcmain for main to report and turn into an exit code.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/stapelberg/nbuild/internal/database"
	"github.com/stapelberg/nbuild/internal/engine"
	"github.com/stapelberg/nbuild/internal/env"
	"github.com/stapelberg/nbuild/internal/graphdoc"
	"github.com/stapelberg/nbuild/internal/ports"
)

var (
	buildDirectory = flag.String("C", "", "change to this build directory before loading the build graph document")
	graphDocument  = flag.String("f", "build.json", "path of the compiled build graph document to load")
	jobLimit       = flag.Int("j", 0, "maximum number of commands to run in parallel (0 means number of CPUs)")
	debug          = flag.Bool("debug", false, "print each command before running it")
	profile        = flag.Bool("profile", false, "print each command's wall-clock duration")
	exportOutputs  = flag.String("export-outputs", "", "if set, write the recorded output path list to this file and exit")
)

func funcmain() error {
	flag.Parse()

	dir := *buildDirectory
	if dir == "" {
		dir = env.BuildDirectory
	}
	if dir != "" {
		if err := os.Chdir(dir); err != nil {
			return err
		}
	}

	dir, err := os.Getwd()
	if err != nil {
		return err
	}

	db, err := database.Open(dir)
	if err != nil {
		return err
	}
	defer db.Close()

	if *exportOutputs != "" {
		return db.ExportOutputList(*exportOutputs)
	}

	contents, err := os.ReadFile(*graphDocument)
	if err != nil {
		return err
	}
	cfg, err := graphdoc.Load(contents)
	if err != nil {
		return err
	}
	if cfg.BuildDirectory == "" {
		cfg.BuildDirectory = dir
	}

	console := ports.NewOSConsole()

	// On the first SIGINT/SIGTERM, flush the database before cancelling ctx,
	// so a build interrupted mid-run doesn't lose the hashes already
	// recorded for nodes that finished. A second signal is left to the
	// default disposition and kills the process immediately, in case the
	// flush itself hangs.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		signal.Stop(sig)
		console.Lock()
		console.WriteStderr([]byte("build interrupted, flushing database\n"))
		console.Unlock()
		if err := db.Flush(); err != nil {
			console.Lock()
			console.WriteStderr([]byte("flush after interrupt: " + err.Error() + "\n"))
			console.Unlock()
		}
		cancel()
	}()

	options := engine.Options{
		Debug:    *debug,
		Profile:  *profile,
		JobLimit: *jobLimit,
	}

	targets := flag.Args()
	return engine.Run(ctx, cfg, ports.OSFileSystem{}, db, console, targets, options)
}

func main() {
	if err := funcmain(); err != nil {
		fmt.Fprintln(os.Stderr, filepath.Base(os.Args[0])+": "+err.Error())
		os.Exit(1)
	}
}
