// Package factstore persists extracted Java files in BadgerDB so that
// unchanged sources are not parsed again.
package factstore

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/715d/topcallers/pkg/javasrc"
)

// schemaVersion is part of every key. Bump it when javasrc.File changes shape
// or extraction changes meaning.
const schemaVersion = "v1"

const keyPrefix = "javasrc:file:" + schemaVersion + ":"

// Store is a content-addressed cache of extracted files. It implements
// javasrc.Cache and is safe for concurrent use.
type Store struct {
	db *badger.DB

	hits   atomic.Int64
	misses atomic.Int64
}

var _ javasrc.Cache = (*Store)(nil)

// Open opens the store in dir, creating it if needed. An empty dir keeps
// everything in memory.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open fact store %q: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the file extracted from content with the given hash. Read
// errors are logged and reported as a miss.
func (s *Store) Get(hash string) (*javasrc.File, bool) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + hash))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			slog.Warn("reading fact store failed", "hash", hash, "error", err)
		}
		s.misses.Add(1)
		return nil, false
	}

	f, err := decode(data)
	if err != nil {
		slog.Warn("decoding cached file failed", "hash", hash, "error", err)
		s.misses.Add(1)
		return nil, false
	}
	s.hits.Add(1)
	return f, true
}

// Put stores f under hash.
func (s *Store) Put(hash string, f *javasrc.File) error {
	data, err := encode(f)
	if err != nil {
		return fmt.Errorf("encode %s: %w", f.Path, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+hash), data)
	})
	if err != nil {
		return fmt.Errorf("store %s: %w", f.Path, err)
	}
	return nil
}

// Len counts the stored files.
func (s *Store) Len() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Stats returns the number of cache hits and misses since Open.
func (s *Store) Stats() (hits, misses int64) {
	return s.hits.Load(), s.misses.Load()
}

// Purge deletes every stored file, including entries written by older
// schema versions.
func (s *Store) Purge() error {
	if err := s.db.DropPrefix([]byte("javasrc:file:")); err != nil {
		return fmt.Errorf("purge fact store: %w", err)
	}
	return nil
}

func encode(f *javasrc.File) ([]byte, error) {
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(raw); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte) (*javasrc.File, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gr.Close()
	raw, err := io.ReadAll(gr)
	if err != nil {
		return nil, err
	}
	var f javasrc.File
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	return &f, nil
}
