package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apperr "github.com/mvdwal/meditrack/internal/errors"
)

// newHistoryID builds a timestamp-sortable id: a zero-padded nanosecond
// stamp plus a short random suffix. Lexicographic key order therefore
// matches chronological order, and the descending listing falls out of
// a reverse prefix scan.
func newHistoryID(takenAt time.Time) string {
	return fmt.Sprintf("%020d-%s", takenAt.UnixNano(), uuid.NewString()[:8])
}

// CreateDosageHistory records a taken dose and decrements the
// medicine's stock in one atomic commit. The medicine read registers
// conflict detection, so concurrent doses against the same medicine
// serialize through the retry loop and no decrement is lost. When is
// optional; nil means now. Stock may go negative; enforcing a floor is
// a caller concern.
func (s *Store) CreateDosageHistory(ownerID, medicineID string, amount float64, scheduledTime string, when *time.Time) (*DosageHistory, error) {
	takenAt := s.now()
	if when != nil {
		takenAt = *when
	}
	medKey := s.keys.entityKey(ownerID, typeMedicine, medicineID)

	var created *DosageHistory
	err := s.runGuarded("record dose", func(txn *badger.Txn) error {
		med, err := getInTxn[Medicine](txn, medKey, "medicine")
		if err != nil {
			return err
		}
		med.Stock -= amount

		h := DosageHistory{
			ID:            newHistoryID(takenAt),
			OwnerID:       ownerID,
			MedicineID:    medicineID,
			Amount:        amount,
			TakenAt:       takenAt,
			ScheduledTime: scheduledTime,
		}
		if err := setInTxn(txn, medKey, med); err != nil {
			return err
		}
		if err := setInTxn(txn, s.keys.entityKey(ownerID, typeDosageHistory, h.ID), h); err != nil {
			return err
		}
		created = &h
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// DeleteDosageHistory removes a history record and restores the
// decremented stock to its medicine in one atomic commit. Both keys are
// read inside the transaction, so a concurrent dose or deletion against
// either forces a retry.
func (s *Store) DeleteDosageHistory(ownerID, historyID string) error {
	histKey := s.keys.entityKey(ownerID, typeDosageHistory, historyID)

	return s.runGuarded("delete dose", func(txn *badger.Txn) error {
		h, err := getInTxn[DosageHistory](txn, histKey, "dosage history")
		if err != nil {
			return err
		}
		medKey := s.keys.entityKey(ownerID, typeMedicine, h.MedicineID)
		med, err := getInTxn[Medicine](txn, medKey, "medicine")
		if err != nil {
			return err
		}
		med.Stock += h.Amount

		if err := txn.Delete([]byte(histKey)); err != nil {
			return apperr.Operation("failed to queue delete", err)
		}
		return setInTxn(txn, medKey, med)
	})
}

func (s *Store) GetDosageHistory(ownerID, historyID string) (*DosageHistory, error) {
	return getOne[DosageHistory](s, s.keys.entityKey(ownerID, typeDosageHistory, historyID), "dosage history")
}

// GetAllDosageHistories lists the owner's history newest first. History
// ids are timestamp-sortable, so a reverse prefix iteration yields the
// descending order directly.
func (s *Store) GetAllDosageHistories(ownerID string) ([]DosageHistory, error) {
	prefix := []byte(s.keys.entityPrefix(ownerID, typeDosageHistory))
	seek := append(append([]byte{}, prefix...), 0xFF)

	var out []DosageHistory
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			var h DosageHistory
			decodeErr := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &h)
			})
			if decodeErr != nil {
				s.logger.Warn("skipping undecodable history record",
					zap.String("key", string(it.Item().Key())),
					zap.Error(decodeErr),
				)
				continue
			}
			out = append(out, h)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Operation("history scan failed", err)
	}
	return out, nil
}
