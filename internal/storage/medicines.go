package storage

import (
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	apperr "github.com/mvdwal/meditrack/internal/errors"
)

// CreateMedicine stores a new medicine under the owner's namespace and
// returns it with its assigned id.
func (s *Store) CreateMedicine(ownerID string, m Medicine) (*Medicine, error) {
	if strings.TrimSpace(m.Name) == "" {
		return nil, apperr.Operation("medicine name is required")
	}
	m.ID = uuid.NewString()
	m.OwnerID = ownerID

	key := s.keys.entityKey(ownerID, typeMedicine, m.ID)
	err := s.db.Update(func(txn *badger.Txn) error {
		return setInTxn(txn, key, m)
	})
	if err != nil {
		return nil, asAppError(err, "create medicine")
	}
	return &m, nil
}

func (s *Store) GetMedicine(ownerID, id string) (*Medicine, error) {
	return getOne[Medicine](s, s.keys.entityKey(ownerID, typeMedicine, id), "medicine")
}

// UpdateMedicine overwrites an existing medicine. The read and the
// write run in one guarded transaction so a concurrent stock change
// forces a retry instead of being silently clobbered.
func (s *Store) UpdateMedicine(ownerID string, m Medicine) (*Medicine, error) {
	if m.ID == "" {
		return nil, apperr.NotFound("medicine")
	}
	key := s.keys.entityKey(ownerID, typeMedicine, m.ID)

	err := s.runGuarded("update medicine", func(txn *badger.Txn) error {
		if _, err := getInTxn[Medicine](txn, key, "medicine"); err != nil {
			return err
		}
		m.OwnerID = ownerID
		return setInTxn(txn, key, m)
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) DeleteMedicine(ownerID, id string) error {
	key := s.keys.entityKey(ownerID, typeMedicine, id)
	return s.runGuarded("delete medicine", func(txn *badger.Txn) error {
		if _, err := getInTxn[Medicine](txn, key, "medicine"); err != nil {
			return err
		}
		if err := txn.Delete([]byte(key)); err != nil {
			return apperr.Operation("failed to queue delete", err)
		}
		return nil
	})
}

// GetAllMedicines lists the owner's medicines sorted by name.
func (s *Store) GetAllMedicines(ownerID string) ([]Medicine, error) {
	meds, err := scanAndFetch[Medicine](s, s.keys.entityPrefix(ownerID, typeMedicine))
	if err != nil {
		return nil, err
	}
	sort.Slice(meds, func(i, j int) bool {
		return strings.ToLower(meds[i].Name) < strings.ToLower(meds[j].Name)
	})
	return meds, nil
}

// AddStock atomically increments a medicine's stock. Concurrent dose
// recording against the same medicine serializes through the guarded
// retry loop.
func (s *Store) AddStock(ownerID, medicineID string, amount float64) (*Medicine, error) {
	key := s.keys.entityKey(ownerID, typeMedicine, medicineID)

	var updated *Medicine
	err := s.runGuarded("add stock", func(txn *badger.Txn) error {
		med, err := getInTxn[Medicine](txn, key, "medicine")
		if err != nil {
			return err
		}
		med.Stock += amount
		if err := setInTxn(txn, key, med); err != nil {
			return err
		}
		updated = med
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// asAppError normalizes plain badger failures from unguarded writes.
func asAppError(err error, op string) error {
	if _, ok := err.(*apperr.AppError); ok {
		return err
	}
	return apperr.Operation(op+" failed", err)
}
