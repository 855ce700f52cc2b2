// Package env captures nbuild's process-wide environment defaults.
package env

import "os"

// BuildDirectory is the default build directory used when -C is not
// given: the NBUILD_BUILD_DIR environment variable if set, else empty,
// in which case the caller falls back to the current working directory.
var BuildDirectory = findBuildDirectory()

func findBuildDirectory() string {
	return os.Getenv("NBUILD_BUILD_DIR")
}
