package storage

import "time"

// User is the canonical account record. Usernames are NOT unique; the
// username index fans out to every id registered under the same name.
// Emails are unique while claimed in the email index.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"password_hash"`
	Active       bool      `json:"active"`
	FirstName    string    `json:"first_name,omitempty"`
	LastName     string    `json:"last_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Medicine tracks a single medicine and its remaining stock. Stock is a
// float so fractional doses (half pills, ml) work; the storage layer
// does not floor it at zero.
type Medicine struct {
	ID          string  `json:"id"`
	OwnerID     string  `json:"owner_id"`
	Name        string  `json:"name"`
	Dose        float64 `json:"dose"`
	Unit        string  `json:"unit"`
	Stock       float64 `json:"stock"`
	Description string  `json:"description,omitempty"`
}

// Schedule plans a recurring dose of a medicine. An empty DaysOfWeek
// means every day; entries are time.Weekday values (0 = Sunday).
type Schedule struct {
	ID         string  `json:"id"`
	OwnerID    string  `json:"owner_id"`
	MedicineID string  `json:"medicine_id"`
	TimeOfDay  string  `json:"time_of_day"` // "HH:MM"
	Amount     float64 `json:"amount"`
	DaysOfWeek []int   `json:"days_of_week,omitempty"`
}

// DosageHistory records one taken dose. It is created atomically with
// the medicine's stock decrement, and deleting it atomically restores
// that stock.
type DosageHistory struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	MedicineID    string    `json:"medicine_id"`
	Amount        float64   `json:"amount"`
	TakenAt       time.Time `json:"taken_at"`
	ScheduledTime string    `json:"scheduled_time,omitempty"`
}

// Derived views. None of these are persisted.

// DailyScheduleItem is one dose due at a time slot today.
type DailyScheduleItem struct {
	ScheduleID   string  `json:"schedule_id"`
	MedicineID   string  `json:"medicine_id"`
	MedicineName string  `json:"medicine_name"`
	Amount       float64 `json:"amount"`
	Unit         string  `json:"unit"`
}

// DailyTimeSlot groups today's doses by time of day.
type DailyTimeSlot struct {
	Time  string              `json:"time"`
	Items []DailyScheduleItem `json:"items"`
}

// AdherenceStatus classifies a day's expected-vs-taken outcome.
type AdherenceStatus string

const (
	AdherenceComplete AdherenceStatus = "COMPLETE"
	AdherencePartial  AdherenceStatus = "PARTIAL"
	AdherenceNone     AdherenceStatus = "NONE"
)

// AdherenceDay is one day of the trailing-week adherence report.
type AdherenceDay struct {
	Date     string          `json:"date"` // "2006-01-02"
	Weekday  string          `json:"weekday"`
	Expected int             `json:"expected"`
	Taken    int             `json:"taken"`
	Status   AdherenceStatus `json:"status"`
}

// MedicineExpiry projects when a scheduled medicine runs out. ExpiresAt
// is nil when the computed daily consumption is zero.
type MedicineExpiry struct {
	Medicine  Medicine   `json:"medicine"`
	DailyUse  float64    `json:"daily_use"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}
