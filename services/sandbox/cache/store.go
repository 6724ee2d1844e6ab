// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache persists pipeline outcomes in BadgerDB.
//
// The sandbox pipeline is a pure function of a module's bytes, so both
// accepted and rejected outcomes can be reused for identical resubmissions.
// Records are addressed by Key, encoded as deterministic CBOR, optionally
// compressed, and expire after the configured TTL.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
)

// keyPrefix namespaces module records inside the database.
const keyPrefix = "sbx/module/"

// Config holds configuration for a Store.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// TTL is how long a record stays readable. Zero means no expiry.
	TTL time.Duration

	// Compression is applied to record payloads.
	Compression Compression

	// GCInterval is how often to run value log garbage collection.
	// Zero disables it. Ignored for in-memory stores.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	GCDiscardRatio float64

	// Logger receives BadgerDB and compaction messages. If nil, BadgerDB's
	// internal logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns defaults for a persistent store at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		TTL:            24 * time.Hour,
		Compression:    CompressionZstd,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests: no disk I/O, no GC.
func InMemoryConfig() Config {
	return Config{
		InMemory:    true,
		TTL:         time.Hour,
		Compression: CompressionLZ4,
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// envelope is the stored form of one record.
type envelope struct {
	Compression Compression `cbor:"1,keyasint"`
	Size        int         `cbor:"2,keyasint"`
	StoredAt    int64       `cbor:"3,keyasint"`
	Payload     []byte      `cbor:"4,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("cache: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("cache: CBOR decoder initialization failed: " + err.Error())
	}
}

// Stats reports store activity since Open.
type Stats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Writes      int64 `json:"writes"`
	Corrupt     int64 `json:"corrupt"`
	Compactions int64 `json:"compactions"`
}

// Store is a BadgerDB-backed outcome cache.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Store struct {
	db          *badger.DB
	compactor   *compactor
	stopCompact context.CancelFunc
	compactDone chan struct{}
	ttl         time.Duration
	compression Compression
	logger      *slog.Logger

	closeOnce sync.Once
	closed    atomic.Bool

	hits, misses, writes, corrupt atomic.Int64
}

// Open opens a Store.
//
// Inputs:
//
//	cfg - Store configuration. Path is required unless InMemory is true.
//
// Outputs:
//
//	*Store - The opened store. Caller must call Close() when done.
//	error - Non-nil if the path is missing or the database cannot open.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("%w: path is required for persistent cache", ErrInvalidConfig)
	}
	if cfg.TTL < 0 {
		return nil, fmt.Errorf("%w: ttl must not be negative", ErrInvalidConfig)
	}
	if cfg.Compression > CompressionZstd {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCompression, uint8(cfg.Compression))
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		db:          db,
		ttl:         cfg.TTL,
		compression: cfg.Compression,
		logger:      logger,
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		c, err := newCompactor(db, cfg.GCInterval, cfg.GCDiscardRatio, logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		ctx, cancel := context.WithCancel(context.Background())
		s.compactor, s.stopCompact, s.compactDone = c, cancel, make(chan struct{})
		go func() {
			defer close(s.compactDone)
			c.run(ctx)
		}()
	}
	return s, nil
}

// Close stops compaction and closes the database. Safe to call more
// than once.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.stopCompact != nil {
			s.stopCompact()
			<-s.compactDone
		}
		err = s.db.Close()
	})
	return err
}

// Put stores v under key, replacing any existing record.
//
// Inputs:
//
//	ctx - Checked before the write starts.
//	key - The record address.
//	v - Any value CBOR can encode.
//
// Outputs:
//
//	error - Non-nil if encoding or the write fails.
func (s *Store) Put(ctx context.Context, key Key, v any) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	payload, err := encMode.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	body, used, err := compress(payload, s.compression)
	if err != nil {
		return err
	}
	data, err := encMode.Marshal(envelope{
		Compression: used,
		Size:        len(payload),
		StoredAt:    time.Now().UnixMilli(),
		Payload:     body,
	})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	entry := badger.NewEntry(dbKey(key), data)
	if s.ttl > 0 {
		entry = entry.WithTTL(s.ttl)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(entry)
	}); err != nil {
		return fmt.Errorf("write record %s: %w", key, err)
	}
	s.writes.Add(1)
	return nil
}

// Get decodes the record stored under key into v.
//
// Outputs:
//
//	error - ErrNotFound if no live record exists, ErrCorrupt if the
//	stored bytes cannot be decoded.
func (s *Store) Get(ctx context.Context, key Key, v any) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dbKey(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		s.misses.Add(1)
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read record %s: %w", key, err)
	}

	if err := s.decode(data, v); err != nil {
		s.corrupt.Add(1)
		s.logger.Warn("discarding corrupt cache record",
			slog.String("key", key.String()),
			slog.String("error", err.Error()),
		)
		return err
	}
	s.hits.Add(1)
	return nil
}

func (s *Store) decode(data []byte, v any) error {
	var env envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: envelope: %v", ErrCorrupt, err)
	}
	payload, err := decompress(env.Payload, env.Compression, env.Size)
	if err != nil {
		return err
	}
	if err := decMode.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: record: %v", ErrCorrupt, err)
	}
	return nil
}

// Delete removes the record under key. Deleting a missing key is not an
// error.
func (s *Store) Delete(ctx context.Context, key Key) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(dbKey(key))
	})
}

// Len counts live records.
func (s *Store) Len() (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
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

// Stats returns activity counters.
func (s *Store) Stats() Stats {
	st := Stats{
		Hits:    s.hits.Load(),
		Misses:  s.misses.Load(),
		Writes:  s.writes.Load(),
		Corrupt: s.corrupt.Load(),
	}
	if s.compactor != nil {
		st.Compactions = s.compactor.rewrites.Load()
	}
	return st
}

func dbKey(key Key) []byte {
	out := make([]byte, 0, len(keyPrefix)+len(key))
	out = append(out, keyPrefix...)
	return append(out, key[:]...)
}
