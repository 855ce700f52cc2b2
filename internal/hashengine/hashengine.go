// Package hashengine computes the two per-node digests the engine uses to
// decide whether a Build is up to date: a cheap timestamp hash and, only
// when that is inconclusive, a more expensive content hash. Grounded on
// original_source/src/run/hash.rs, translated from tokio/DefaultHasher into
// hash/fnv, the same hash family internal/build.Digest uses for its own
// per-unit digest in the teacher repo.
package hashengine

import (
	"encoding/binary"
	"hash"
	"hash/fnv"
	"math/rand"

	"github.com/stapelberg/nbuild/internal/engineerr"
	"github.com/stapelberg/nbuild/internal/ir"
	"github.com/stapelberg/nbuild/internal/ports"
)

// bufferCapacity is the initial size of the buffer reused across
// CalculateContentHash's successive file reads, matching hash.rs's
// BUFFER_CAPACITY (2 << 10 = 2KiB).
const bufferCapacity = 2 << 10

// PartitionInputs splits a build's combined (static ++ dynamic) input list
// into file_inputs — sources and rule-having builds' outputs, whose state
// is read straight off disk — and phony_inputs — other phony builds, whose
// hash is instead looked up by BuildId in the database, since a phony build
// never produces a file to stat or read.
func PartitionInputs(cfg *ir.Configuration, inputs []string) (fileInputs, phonyInputs []string) {
	for _, input := range inputs {
		if build, ok := cfg.Outputs[input]; ok && build.Phony() {
			phonyInputs = append(phonyInputs, input)
		} else {
			fileInputs = append(fileInputs, input)
		}
	}
	return fileInputs, phonyInputs
}

// CalculateTimestampHash computes the cheap digest: the rule's command
// line, each file input's modification time, and each phony input's own
// recorded timestamp hash.
func CalculateTimestampHash(fs ports.FileSystem, db ports.Database, cfg *ir.Configuration, build *ir.Build, fileInputs, phonyInputs []string) (uint64, error) {
	if h, ok := fallbackHash(build, fileInputs, phonyInputs); ok {
		return h, nil
	}

	h := fnv.New64a()
	hashCommand(build, h)

	for _, input := range fileInputs {
		mtime, err := fs.ModTime(input)
		if err != nil {
			return 0, engineerr.Wrap("stat "+input, err)
		}
		hashInt64(h, mtime.UnixNano())
	}

	for _, input := range phonyInputs {
		bh, err := buildHashOf(db, cfg, input)
		if err != nil {
			return 0, err
		}
		hashUint64(h, bh.Timestamp)
	}

	return h.Sum64(), nil
}

// CalculateContentHash computes the expensive digest: the rule's command
// line, each file input's full byte contents, and each phony input's own
// recorded content hash.
func CalculateContentHash(fsys ports.FileSystem, db ports.Database, cfg *ir.Configuration, build *ir.Build, fileInputs, phonyInputs []string) (uint64, error) {
	if h, ok := fallbackHash(build, fileInputs, phonyInputs); ok {
		return h, nil
	}

	h := fnv.New64a()
	hashCommand(build, h)

	buf := make([]byte, 0, bufferCapacity)
	for _, input := range fileInputs {
		contents, err := fsys.ReadFile(input)
		if err != nil {
			return 0, engineerr.Wrap("read "+input, err)
		}
		buf = append(buf[:0], contents...)
		h.Write(buf)
	}

	for _, input := range phonyInputs {
		bh, err := buildHashOf(db, cfg, input)
		if err != nil {
			return 0, err
		}
		hashUint64(h, bh.Content)
	}

	return h.Sum64(), nil
}

// fallbackHash reports whether build has no rule and no inputs of either
// kind at all — a phony aggregator with nothing to depend on. Such a node
// is always considered out of date, by returning a fresh random hash on
// every call rather than a stable digest (see DESIGN.md's Open Question
// decision on this).
func fallbackHash(build *ir.Build, fileInputs, phonyInputs []string) (uint64, bool) {
	if build.Rule == nil && len(fileInputs) == 0 && len(phonyInputs) == 0 {
		return rand.Uint64(), true
	}
	return 0, false
}

func hashCommand(build *ir.Build, h hash.Hash64) {
	if build.Rule == nil {
		h.Write([]byte{0})
		return
	}
	h.Write([]byte{1})
	h.Write([]byte(build.Rule.Command))
}

func hashInt64(h hash.Hash64, v int64) {
	hashUint64(h, uint64(v))
}

func hashUint64(h hash.Hash64, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	h.Write(buf[:])
}

func buildHashOf(db ports.Database, cfg *ir.Configuration, input string) (ir.BuildHash, error) {
	build, ok := cfg.Outputs[input]
	if !ok {
		return ir.BuildHash{}, &engineerr.InputNotFound{Input: input}
	}
	hash, ok, err := db.Get(build.Id)
	if err != nil {
		return ir.BuildHash{}, engineerr.Wrap("database get", err)
	}
	if !ok {
		return ir.BuildHash{}, &engineerr.InputNotBuilt{Input: input}
	}
	return hash, nil
}
