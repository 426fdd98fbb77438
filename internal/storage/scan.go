package storage

import (
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	apperr "github.com/mvdwal/meditrack/internal/errors"
	"github.com/mvdwal/meditrack/internal/metrics"
)

// scanKeys enumerates every key under prefix with cursor-paged
// iteration: each page runs in its own read transaction and resumes
// from just past the last key of the previous page. Completeness is
// best-effort under concurrent mutation; a key created after the scan
// started may be missed, and one deleted mid-scan may still be
// returned here and skipped on fetch.
func (s *Store) scanKeys(prefix string) ([]string, error) {
	pfx := []byte(prefix)
	cursor := append([]byte{}, pfx...)

	var keys []string
	for {
		var (
			page int
			last []byte
		)
		err := s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Seek(cursor); it.ValidForPrefix(pfx); it.Next() {
				k := it.Item().KeyCopy(nil)
				keys = append(keys, string(k))
				last = k
				page++
				if page == s.scanPageSize {
					break
				}
			}
			return nil
		})
		if err != nil {
			return nil, apperr.Operation("key scan failed", err)
		}
		metrics.ScanPagesTotal.Inc()
		if page < s.scanPageSize {
			return keys, nil
		}
		// Resume just past the last key seen.
		cursor = append(last, 0x00)
	}
}

// fetchAll bulk-fetches keys and decodes each value as T. Keys whose
// value is gone or undecodable are skipped: a corrupt stray record must
// not break an entire listing.
func fetchAll[T any](s *Store, keys []string) ([]T, error) {
	out := make([]T, 0, len(keys))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, key := range keys {
			item, err := txn.Get([]byte(key))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			var v T
			decodeErr := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &v)
			})
			if decodeErr != nil {
				s.logger.Warn("skipping undecodable record",
					zap.String("key", key),
					zap.Error(decodeErr),
				)
				continue
			}
			out = append(out, v)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Operation("bulk fetch failed", err)
	}
	return out, nil
}

// scanAndFetch is the common list path: enumerate an owner's prefix,
// then bulk-fetch the records.
func scanAndFetch[T any](s *Store, prefix string) ([]T, error) {
	keys, err := s.scanKeys(prefix)
	if err != nil {
		return nil, err
	}
	return fetchAll[T](s, keys)
}
