package storage

import (
	"errors"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "github.com/mvdwal/meditrack/internal/errors"
)

func seedKey(t *testing.T, s *Store, key, val string) {
	t.Helper()
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(val))
	})
	require.NoError(t, err)
}

// A write landing between the guarded read and the commit must force a
// retry, and the re-run body must observe the new value.
func TestRunGuarded_RetriesOnConflict(t *testing.T) {
	s := newTestStore(t)
	key := s.keys.userIDKey("contended")
	seedKey(t, s, key, "v0")

	attempts := 0
	err := s.runGuarded("test op", func(txn *badger.Txn) error {
		attempts++
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		// First attempt only: an external writer sneaks in after the
		// read, invalidating the commit.
		if attempts == 1 {
			seedKey(t, s, key, "external")
		} else {
			assert.Equal(t, "external", string(val))
		}
		return txn.Set([]byte(key), append(val, '!'))
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRunGuarded_ExhaustsRetries(t *testing.T) {
	s := newTestStore(t)
	s.maxTxnAttempts = 3
	key := s.keys.userIDKey("contended")
	seedKey(t, s, key, "v0")

	attempts := 0
	err := s.runGuarded("test op", func(txn *badger.Txn) error {
		attempts++
		if _, err := txn.Get([]byte(key)); err != nil {
			return err
		}
		// Every attempt loses the race.
		seedKey(t, s, key, "external")
		return txn.Set([]byte(key), []byte("mine"))
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrTxnRetries))
	assert.Equal(t, 3, attempts)
}

// A business error from the body aborts the operation outright; it must
// not be retried and nothing queued may land.
func TestRunGuarded_BodyErrorAborts(t *testing.T) {
	s := newTestStore(t)
	key := s.keys.userIDKey("u1")

	attempts := 0
	sentinel := errors.New("nope")
	err := s.runGuarded("test op", func(txn *badger.Txn) error {
		attempts++
		if err := txn.Set([]byte(key), []byte("partial")); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, attempts)

	err = s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	assert.True(t, errors.Is(err, badger.ErrKeyNotFound))
}
