package storage

import (
	"sort"
	"strings"
	"time"
)

// Derived reports. All three aggregates are computed in-process from
// full prefix scans of the owner's records; nothing here is cached or
// persisted.

// scheduleAppliesOn reports whether a schedule is due on the given
// weekday. An empty DaysOfWeek means every day.
func scheduleAppliesOn(sch Schedule, day time.Weekday) bool {
	if len(sch.DaysOfWeek) == 0 {
		return true
	}
	for _, d := range sch.DaysOfWeek {
		if time.Weekday(d) == day {
			return true
		}
	}
	return false
}

// applicableDaysPerWeek counts how many weekdays a schedule fires on,
// ignoring out-of-range entries.
func applicableDaysPerWeek(sch Schedule) int {
	if len(sch.DaysOfWeek) == 0 {
		return 7
	}
	seen := map[int]bool{}
	for _, d := range sch.DaysOfWeek {
		if d >= 0 && d <= 6 {
			seen[d] = true
		}
	}
	return len(seen)
}

// GetDailySchedule returns today's doses grouped by time slot in
// ascending time order. Schedules whose medicine has been deleted are
// dropped rather than reported half-populated.
func (s *Store) GetDailySchedule(ownerID string, day time.Time) ([]DailyTimeSlot, error) {
	schedules, err := s.GetAllSchedules(ownerID)
	if err != nil {
		return nil, err
	}
	meds, err := s.GetAllMedicines(ownerID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Medicine, len(meds))
	for _, m := range meds {
		byID[m.ID] = m
	}

	weekday := day.Weekday()
	slots := map[string][]DailyScheduleItem{}
	for _, sch := range schedules {
		if !scheduleAppliesOn(sch, weekday) {
			continue
		}
		med, ok := byID[sch.MedicineID]
		if !ok {
			continue
		}
		slots[sch.TimeOfDay] = append(slots[sch.TimeOfDay], DailyScheduleItem{
			ScheduleID:   sch.ID,
			MedicineID:   med.ID,
			MedicineName: med.Name,
			Amount:       sch.Amount,
			Unit:         med.Unit,
		})
	}

	times := make([]string, 0, len(slots))
	for t := range slots {
		times = append(times, t)
	}
	sort.Strings(times)

	out := make([]DailyTimeSlot, 0, len(times))
	for _, t := range times {
		out = append(out, DailyTimeSlot{Time: t, Items: slots[t]})
	}
	return out, nil
}

// GetWeeklyAdherence reports the trailing seven full days, oldest
// first. Today is excluded: it is still in progress, so counting it
// would misreport every not-yet-due dose as missed. Per day, expected
// is the number of schedule firings due that weekday and taken is the
// raw number of recorded doses for scheduled medicines on that date; a
// day is COMPLETE when taken meets or exceeds expected, and NONE when
// nothing was expected.
func (s *Store) GetWeeklyAdherence(ownerID string) ([]AdherenceDay, error) {
	schedules, err := s.GetAllSchedules(ownerID)
	if err != nil {
		return nil, err
	}
	histories, err := s.GetAllDosageHistories(ownerID)
	if err != nil {
		return nil, err
	}

	scheduledMeds := map[string]bool{}
	for _, sch := range schedules {
		scheduledMeds[sch.MedicineID] = true
	}

	// Doses per calendar date, scheduled medicines only.
	takenByDate := map[string]int{}
	for _, h := range histories {
		if !scheduledMeds[h.MedicineID] {
			continue
		}
		takenByDate[h.TakenAt.Format("2006-01-02")]++
	}

	today := s.now()
	days := make([]AdherenceDay, 0, 7)
	for offset := 7; offset >= 1; offset-- {
		day := today.AddDate(0, 0, -offset)
		expected := 0
		for _, sch := range schedules {
			if scheduleAppliesOn(sch, day.Weekday()) {
				expected++
			}
		}
		date := day.Format("2006-01-02")
		taken := takenByDate[date]

		// A day with nothing expected is NONE, not COMPLETE; there was
		// no obligation to meet. Extra doses beyond expected still
		// count as COMPLETE.
		status := AdherenceNone
		switch {
		case expected == 0:
			status = AdherenceNone
		case taken >= expected:
			status = AdherenceComplete
		case taken > 0:
			status = AdherencePartial
		}

		days = append(days, AdherenceDay{
			Date:     date,
			Weekday:  day.Weekday().String(),
			Expected: expected,
			Taken:    taken,
			Status:   status,
		})
	}
	return days, nil
}

// GetMedicineExpiry projects, per scheduled medicine, when the current
// stock runs out at the scheduled consumption rate. Daily use averages
// the weekly schedule (amount times firing days over seven); medicines
// with no schedule are excluded, and a zero rate yields a nil expiry
// date. Results are sorted by medicine name.
func (s *Store) GetMedicineExpiry(ownerID string, asOf time.Time) ([]MedicineExpiry, error) {
	meds, err := s.GetAllMedicines(ownerID)
	if err != nil {
		return nil, err
	}
	schedules, err := s.GetAllSchedules(ownerID)
	if err != nil {
		return nil, err
	}

	dailyUse := map[string]float64{}
	for _, sch := range schedules {
		dailyUse[sch.MedicineID] += sch.Amount * float64(applicableDaysPerWeek(sch)) / 7.0
	}

	out := make([]MedicineExpiry, 0, len(dailyUse))
	for _, med := range meds {
		use, scheduled := dailyUse[med.ID]
		if !scheduled {
			continue
		}
		entry := MedicineExpiry{Medicine: med, DailyUse: use}
		if use > 0 {
			days := int(med.Stock / use)
			if days < 0 {
				days = 0
			}
			expires := asOf.AddDate(0, 0, days)
			entry.ExpiresAt = &expires
		}
		out = append(out, entry)
	}

	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Medicine.Name) < strings.ToLower(out[j].Medicine.Name)
	})
	return out, nil
}
