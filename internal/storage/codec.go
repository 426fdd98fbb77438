package storage

import (
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v4"

	apperr "github.com/mvdwal/meditrack/internal/errors"
)

// Records are stored as JSON blobs. Decoding tolerates unknown fields,
// so older binaries can read records written by newer ones.

func encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, apperr.Serialization("failed to encode record", err)
	}
	return data, nil
}

// getOne fetches and decodes a single record. Unlike bulk scans, a
// present-but-undecodable value is reported as a serialization error so
// the caller can tell "not found" from "found but corrupt".
func getOne[T any](s *Store, key, entity string) (*T, error) {
	var v T
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &v); err != nil {
				return apperr.Serialization(entity+" record is corrupt", err)
			}
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, apperr.NotFound(entity)
		}
		var ae *apperr.AppError
		if errors.As(err, &ae) {
			return nil, ae
		}
		return nil, apperr.Operation("failed to fetch "+entity, err)
	}
	return &v, nil
}

// getInTxn is getOne inside a guarded transaction; the read registers
// the key for conflict detection at commit.
func getInTxn[T any](txn *badger.Txn, key, entity string) (*T, error) {
	item, err := txn.Get([]byte(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, apperr.NotFound(entity)
		}
		return nil, apperr.Operation("failed to fetch "+entity, err)
	}
	var v T
	err = item.Value(func(val []byte) error {
		if err := json.Unmarshal(val, &v); err != nil {
			return apperr.Serialization(entity+" record is corrupt", err)
		}
		return nil
	})
	if err != nil {
		var ae *apperr.AppError
		if errors.As(err, &ae) {
			return nil, ae
		}
		return nil, apperr.Operation("failed to read "+entity, err)
	}
	return &v, nil
}

func setInTxn(txn *badger.Txn, key string, v any) error {
	data, err := encode(v)
	if err != nil {
		return err
	}
	if err := txn.Set([]byte(key), data); err != nil {
		return apperr.Operation("failed to queue write", err)
	}
	return nil
}
