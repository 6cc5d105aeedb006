// Package checkpoint persists walk progress so a long-running tree
// iteration can be resumed after a restart.
//
// Checkpoints are stored in an embedded BadgerDB keyed by walk name and
// serialized as XDR, so a checkpoint written by one build can be read by
// another regardless of host byte order.
package checkpoint

import (
	"bytes"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	xdr "github.com/rasky/go-xdr/xdr2"

	"github.com/truenas/osfs/pkg/fsiter"
)

// ErrNotFound is returned by Load when no checkpoint exists under the
// given name.
var ErrNotFound = errors.New("checkpoint not found")

var keyPrefix = []byte("checkpoint/")

// Checkpoint is one saved walk position plus its progress counters.
type Checkpoint struct {
	// Snapshot is the directory stack to resume from.
	Snapshot fsiter.DirStackSnapshot

	// Count and Bytes mirror the iterator stats at snapshot time.
	Count uint64
	Bytes uint64

	// UpdatedAt is the save time in Unix seconds.
	UpdatedAt int64
}

// Store is a BadgerDB-backed checkpoint repository. Safe for concurrent
// use; Badger transactions provide the isolation.
type Store struct {
	db *badger.DB
}

// Open opens (creating if needed) the checkpoint database at dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint database at %s: %w", dir, err)
	}

	return &Store{db: db}, nil
}

func key(name string) []byte {
	return append(append([]byte{}, keyPrefix...), name...)
}

// Save writes cp under name, replacing any previous checkpoint.
func (s *Store) Save(name string, cp *Checkpoint) error {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, cp); err != nil {
		return fmt.Errorf("encode checkpoint %q: %w", name, err)
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(name), buf.Bytes())
	})
	if err != nil {
		return fmt.Errorf("save checkpoint %q: %w", name, err)
	}
	return nil
}

// Load reads the checkpoint saved under name, or ErrNotFound.
func (s *Store) Load(name string) (*Checkpoint, error) {
	var cp Checkpoint

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(name))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			_, err := xdr.Unmarshal(bytes.NewReader(val), &cp)
			return err
		})
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("checkpoint %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("load checkpoint %q: %w", name, err)
	}

	return &cp, nil
}

// Delete removes the checkpoint saved under name. Deleting a missing
// checkpoint is not an error.
func (s *Store) Delete(name string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(name))
	})
	if err != nil {
		return fmt.Errorf("delete checkpoint %q: %w", name, err)
	}
	return nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
