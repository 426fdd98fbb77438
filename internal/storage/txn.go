package storage

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	apperr "github.com/mvdwal/meditrack/internal/errors"
	"github.com/mvdwal/meditrack/internal/metrics"
)

// runGuarded executes body as an optimistic read-modify-write
// transaction. Every key the body reads through the transaction is
// conflict-checked at commit: if another transaction wrote one of them
// in the window, the commit is discarded and the body re-runs from
// scratch, up to maxTxnAttempts. Writes queued by the body are buffered
// and land atomically on commit.
//
// An error returned by the body (a business condition such as "medicine
// not found") aborts the whole operation immediately, not just the
// attempt. Exhausting the retry bound returns ErrTxnRetries so callers
// can tell contention from outright store failure.
func (s *Store) runGuarded(op string, body func(txn *badger.Txn) error) error {
	for attempt := 1; attempt <= s.maxTxnAttempts; attempt++ {
		txn := s.db.NewTransaction(true)
		if err := body(txn); err != nil {
			txn.Discard()
			return err
		}

		err := txn.Commit()
		if err == nil {
			if attempt > 1 {
				s.logger.Debug("guarded transaction committed after retries",
					zap.String("op", op),
					zap.Int("attempts", attempt),
				)
			}
			return nil
		}
		txn.Discard()

		if !errors.Is(err, badger.ErrConflict) {
			return apperr.Operation(op+" failed", err)
		}
		metrics.TxnConflictsTotal.Inc()
	}

	metrics.TxnRetriesExhaustedTotal.Inc()
	s.logger.Warn("guarded transaction gave up",
		zap.String("op", op),
		zap.Int("max_attempts", s.maxTxnAttempts),
	)
	return apperr.New(apperr.KindOperation, "STORE_004",
		fmt.Sprintf("%s: transaction retries exhausted after %d attempts", op, s.maxTxnAttempts))
}
