// Package storage is the persistence core: a single-key-per-record
// BadgerDB layout with denormalized identity indexes, optimistic
// transactions for every cross-key mutation, and in-process aggregate
// computation over prefix scans.
package storage

import (
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/mvdwal/meditrack/internal/config"
	apperr "github.com/mvdwal/meditrack/internal/errors"
)

const (
	defaultMaxTxnAttempts = 10
	defaultScanPageSize   = 64
)

// Store is the storage facade consumed by the HTTP layer and the cron
// sweeps. It is safe for concurrent use; cross-request consistency
// relies entirely on Badger's optimistic transaction conflict detection,
// never on in-process locks.
type Store struct {
	db     *badger.DB
	keys   keyspace
	logger *zap.Logger

	maxTxnAttempts int
	scanPageSize   int

	// now is swapped out by tests that need deterministic calendars.
	now func() time.Time
}

// Open opens (or creates) the backing BadgerDB and returns the facade.
// The connection is long-lived and shared; callers must Close on
// shutdown.
func Open(cfg *config.Config, logger *zap.Logger) (*Store, error) {
	var opts badger.Options
	if cfg.Storage.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Storage.BadgerPath).
			WithNumVersionsToKeep(1).
			WithCompactL0OnClose(true).
			WithValueLogFileSize(16 << 20).
			WithMemTableSize(16 << 20)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindConnection, "STORE_003", "failed to open store")
	}

	return &Store{
		db: db,
		keys: keyspace{
			namespace:   cfg.App.Namespace,
			environment: cfg.App.Environment,
		},
		logger:         logger,
		maxTxnAttempts: defaultMaxTxnAttempts,
		scanPageSize:   defaultScanPageSize,
		now:            time.Now,
	}, nil
}

// Close releases the shared store connection.
func (s *Store) Close() error {
	return s.db.Close()
}
