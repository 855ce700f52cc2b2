// Package database is the persistent build state store: a Badger-backed
// key/value database mapping a BuildId to its last-recorded BuildHash, plus
// a record of every path any build has ever produced, exported on demand
// for a dead-output sweep (out of scope for this engine, but the record set
// it would consult is not).
//
// Grounded on the badger usage shown in
// _examples/jinterlante1206-AleutianLocal/services/trace/storage/badger
// (Open/OpenInMemory/db.Update/db.View/txn.Set/txn.Get), adapted to the two
// record kinds original_source/src/run/build_database.rs and
// src/run/hash.rs actually need (BuildHash per BuildId, not a single u64
// per path).
package database

import (
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/renameio"

	"github.com/stapelberg/nbuild/internal/engineerr"
	"github.com/stapelberg/nbuild/internal/ir"
	"github.com/stapelberg/nbuild/internal/ports"
)

// hashKeyPrefix and outputKeyPrefix namespace the two record kinds sharing
// one Badger keyspace.
const (
	hashKeyPrefix   = "h:"
	outputKeyPrefix = "o:"

	// databaseDirName is the directory created under a build directory to
	// hold the Badger files.
	databaseDirName = ".nbuild-db"
)

// Database is a Badger-backed ports.Database.
type Database struct {
	db *badger.DB
}

// Open opens (creating if necessary) the build database at
// <buildDirectory>/.nbuild-db.
func Open(buildDirectory string) (*Database, error) {
	opts := badger.DefaultOptions(buildDirectory + "/" + databaseDirName)
	opts.Logger = nil // the scheduler owns all console output, not badger
	db, err := badger.Open(opts)
	if err != nil {
		return nil, engineerr.Wrap("open build database", err)
	}
	return &Database{db: db}, nil
}

func hashKey(id ir.BuildId) []byte {
	b := id.Bytes()
	key := make([]byte, 0, len(hashKeyPrefix)+len(b))
	key = append(key, hashKeyPrefix...)
	key = append(key, b[:]...)
	return key
}

func outputKey(path string) []byte {
	return append([]byte(outputKeyPrefix), path...)
}

func (d *Database) Get(id ir.BuildId) (ir.BuildHash, bool, error) {
	var hash ir.BuildHash
	found := false
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(hashKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			if len(val) != 16 {
				return errors.New("corrupt build hash record")
			}
			hash.Timestamp = leUint64(val[0:8])
			hash.Content = leUint64(val[8:16])
			return nil
		})
	})
	if err != nil {
		return ir.BuildHash{}, false, engineerr.Wrap("database get", err)
	}
	return hash, found, nil
}

func (d *Database) Set(id ir.BuildId, hash ir.BuildHash) error {
	var val [16]byte
	putLeUint64(val[0:8], hash.Timestamp)
	putLeUint64(val[8:16], hash.Content)
	err := d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(hashKey(id), val[:])
	})
	return engineerr.Wrap("database set", err)
}

func (d *Database) RecordOutput(path string) error {
	err := d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(outputKey(path), nil)
	})
	return engineerr.Wrap("database record output", err)
}

func (d *Database) ListOutputs() ([]string, error) {
	var outputs []string
	err := d.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(outputKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			outputs = append(outputs, string(key[len(outputKeyPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, engineerr.Wrap("database list outputs", err)
	}
	return outputs, nil
}

// Flush makes every write so far durable. Per the engine's contract,
// durability is only required here, not after every Set.
func (d *Database) Flush() error {
	return engineerr.Wrap("database flush", d.db.Sync())
}

func (d *Database) Close() error {
	return engineerr.Wrap("database close", d.db.Close())
}

// ExportOutputList atomically writes the newline-separated list of every
// recorded output path to path, for the (non-goal) dead-output sweep tool
// to consume. The write is atomic (write-to-temp-then-rename) via renameio,
// so a concurrent reader never observes a partially written snapshot.
func (d *Database) ExportOutputList(path string) error {
	outputs, err := d.ListOutputs()
	if err != nil {
		return err
	}
	var buf []byte
	for _, o := range outputs {
		buf = append(buf, o...)
		buf = append(buf, '\n')
	}
	return engineerr.Wrap("export output list", renameio.WriteFile(path, buf, 0644))
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func putLeUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

var _ ports.Database = (*Database)(nil)
