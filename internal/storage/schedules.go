package storage

import (
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	apperr "github.com/mvdwal/meditrack/internal/errors"
)

// CreateSchedule stores a new dosing schedule. The referenced medicine
// must exist; the reference is not ownership, so deleting the medicine
// later leaves the schedule dangling (it simply stops matching).
func (s *Store) CreateSchedule(ownerID string, sch Schedule) (*Schedule, error) {
	if !validTimeOfDay(sch.TimeOfDay) {
		return nil, apperr.Operation("schedule time must be HH:MM")
	}
	if _, err := s.GetMedicine(ownerID, sch.MedicineID); err != nil {
		return nil, err
	}
	sch.ID = uuid.NewString()
	sch.OwnerID = ownerID

	key := s.keys.entityKey(ownerID, typeSchedule, sch.ID)
	err := s.db.Update(func(txn *badger.Txn) error {
		return setInTxn(txn, key, sch)
	})
	if err != nil {
		return nil, asAppError(err, "create schedule")
	}
	return &sch, nil
}

func (s *Store) GetSchedule(ownerID, id string) (*Schedule, error) {
	return getOne[Schedule](s, s.keys.entityKey(ownerID, typeSchedule, id), "schedule")
}

func (s *Store) UpdateSchedule(ownerID string, sch Schedule) (*Schedule, error) {
	if sch.ID == "" {
		return nil, apperr.NotFound("schedule")
	}
	if !validTimeOfDay(sch.TimeOfDay) {
		return nil, apperr.Operation("schedule time must be HH:MM")
	}
	key := s.keys.entityKey(ownerID, typeSchedule, sch.ID)

	err := s.runGuarded("update schedule", func(txn *badger.Txn) error {
		if _, err := getInTxn[Schedule](txn, key, "schedule"); err != nil {
			return err
		}
		sch.OwnerID = ownerID
		return setInTxn(txn, key, sch)
	})
	if err != nil {
		return nil, err
	}
	return &sch, nil
}

func (s *Store) DeleteSchedule(ownerID, id string) error {
	key := s.keys.entityKey(ownerID, typeSchedule, id)
	return s.runGuarded("delete schedule", func(txn *badger.Txn) error {
		if _, err := getInTxn[Schedule](txn, key, "schedule"); err != nil {
			return err
		}
		if err := txn.Delete([]byte(key)); err != nil {
			return apperr.Operation("failed to queue delete", err)
		}
		return nil
	})
}

// GetAllSchedules lists the owner's schedules sorted by time of day.
func (s *Store) GetAllSchedules(ownerID string) ([]Schedule, error) {
	schedules, err := scanAndFetch[Schedule](s, s.keys.entityPrefix(ownerID, typeSchedule))
	if err != nil {
		return nil, err
	}
	sort.Slice(schedules, func(i, j int) bool {
		return schedules[i].TimeOfDay < schedules[j].TimeOfDay
	})
	return schedules, nil
}

// validTimeOfDay accepts zero-padded 24h "HH:MM".
func validTimeOfDay(t string) bool {
	if len(t) != 5 || t[2] != ':' {
		return false
	}
	hh := int(t[0]-'0')*10 + int(t[1]-'0')
	mm := int(t[3]-'0')*10 + int(t[4]-'0')
	for _, c := range []byte{t[0], t[1], t[3], t[4]} {
		if c < '0' || c > '9' {
			return false
		}
	}
	return hh < 24 && mm < 60
}
