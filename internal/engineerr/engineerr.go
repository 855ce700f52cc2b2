// Package engineerr holds the error values a build run can fail with,
// distinct from Go's generic I/O errors, matching the teacher's preference
// for xerrors.Errorf-wrapped sentinel/typed errors over bare fmt.Errorf
// (see internal/build/build.go throughout distr1-distri).
package engineerr

import (
	"golang.org/x/xerrors"
)

// ErrBuild is returned when a rule's command exits with a non-zero status.
// The caller is expected to have already written the command's stdout and
// stderr to the console; this sentinel only signals "stop the run".
var ErrBuild = xerrors.New("build: command failed")

// DefaultOutputNotFound is returned when a requested target, or a default
// output named by the Configuration, does not appear in its Outputs map.
type DefaultOutputNotFound struct {
	Output string
}

func (e *DefaultOutputNotFound) Error() string {
	return xerrors.Errorf("default output %q not found", e.Output).Error()
}

// DynamicDependencyNotFound is returned when a build names a DynamicModule
// but the compiled dyndep file has no entry for any of that build's
// outputs.
type DynamicDependencyNotFound struct {
	Output string
}

func (e *DynamicDependencyNotFound) Error() string {
	return xerrors.Errorf("dynamic dependency for output %q not found in dyndep file", e.Output).Error()
}

// InputNotFound is returned when a phony-classified input does not name any
// build in the Configuration's Outputs map.
type InputNotFound struct {
	Input string
}

func (e *InputNotFound) Error() string {
	return xerrors.Errorf("input %q not found", e.Input).Error()
}

// InputNotBuilt is returned when a phony input's build has never recorded a
// hash in the database, so its timestamp/content hash cannot be looked up.
type InputNotBuilt struct {
	Input string
}

func (e *InputNotBuilt) Error() string {
	return xerrors.Errorf("input %q not built yet", e.Input).Error()
}

// Wrap prefixes err with a operation description, matching the teacher's
// xerrors.Errorf("%s: %w", op, err) convention.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return xerrors.Errorf("%s: %w", op, err)
}
