// Package exec runs a Rule's command and writes its description and
// captured output to the Console, under a job-count semaphore.
//
// Grounded on original_source/src/run/run.rs's run_rule: POSIX commands run
// via "sh -ec", Windows commands are whitespace-split and run directly: a
// job permit is acquired before the console is locked for the description
// write and released the moment the command exits, before its output is
// written to the console, establishing a fixed lock
// order (semaphore, then console) so two nodes can never deadlock waiting
// on each other's lock.
package exec

import (
	"bytes"
	"context"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/stapelberg/nbuild/internal/engineerr"
	"github.com/stapelberg/nbuild/internal/ir"
	"github.com/stapelberg/nbuild/internal/ports"
)

// Executor runs rule commands, limiting how many run concurrently.
type Executor struct {
	sem     *semaphore.Weighted
	console ports.Console
	debug   bool
	profile bool
}

// New returns an Executor allowing at most jobLimit commands to run
// concurrently. debug and profile gate extra diagnostic lines written to
// stderr alongside the command's own output, matching Options.debug and
// Options.profile in SPEC_FULL.md §3.1.
func New(jobLimit int64, console ports.Console, debug, profile bool) *Executor {
	return &Executor{
		sem:     semaphore.NewWeighted(jobLimit),
		console: console,
		debug:   debug,
		profile: profile,
	}
}

// Run executes rule's command, returning engineerr.ErrBuild if it exits
// non-zero.
func (e *Executor) Run(ctx context.Context, rule *ir.Rule) error {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return engineerr.Wrap("acquire job permit", err)
	}

	e.console.Lock()
	if rule.Description != "" {
		e.console.WriteStderr([]byte(rule.Description + "\n"))
	}
	if e.debug {
		e.console.WriteStderr([]byte("command: " + rule.Command + "\n"))
	}
	e.console.Unlock()

	start := time.Now()
	stdout, stderr, runErr := runCommand(ctx, rule.Command)
	duration := time.Since(start)
	e.sem.Release(1)

	e.console.Lock()
	defer e.console.Unlock()
	if e.profile {
		e.console.WriteStderr([]byte("duration: " + duration.String() + "\n"))
	}
	if len(stdout) > 0 {
		e.console.WriteStdout(stdout)
	}
	if len(stderr) > 0 {
		e.console.WriteStderr(stderr)
	}

	if runErr != nil {
		if e.debug {
			e.console.WriteStderr([]byte("exit status: " + runErr.Error() + "\n"))
		}
		return engineerr.ErrBuild
	}
	return nil
}

// runCommand runs command via "sh -ec" on POSIX platforms, or by
// whitespace-splitting it into argv[0] plus arguments on Windows, where no
// POSIX shell is guaranteed to be on PATH.
func runCommand(ctx context.Context, command string) (stdout, stderr []byte, err error) {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		fields := strings.Fields(command)
		if len(fields) == 0 {
			return nil, nil, nil
		}
		cmd = exec.CommandContext(ctx, fields[0], fields[1:]...)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-ec", command)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf
	err = cmd.Run()
	return stdoutBuf.Bytes(), stderrBuf.Bytes(), err
}
