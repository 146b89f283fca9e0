package models

import "time"

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
	BookingNoShow    BookingStatus = "no_show"
)

// CanTransition reports whether the booking state machine allows from -> to.
// completed, cancelled and no_show are terminal.
func CanTransition(from, to BookingStatus) bool {
	switch from {
	case BookingPending:
		return to == BookingConfirmed || to == BookingCancelled
	case BookingConfirmed:
		return to == BookingCompleted || to == BookingCancelled || to == BookingNoShow
	default:
		return false
	}
}

// Occupies reports whether a booking in this status holds its time interval.
func (s BookingStatus) Occupies() bool {
	return s == BookingPending || s == BookingConfirmed || s == BookingCompleted
}

type Tenant struct {
	ID                   string  `db:"id"`
	Name                 string  `db:"name"`
	Timezone             string  `db:"timezone"`
	SlotDurationMinutes  int     `db:"slot_duration_minutes"`
	BufferMinutes        int     `db:"buffer_minutes"`
	CancellationMinHours float64 `db:"cancellation_min_hours"`
}

type Staff struct {
	ID       string `db:"id"`
	TenantID string `db:"tenant_id"`
	Name     string `db:"name"`
	IsActive bool   `db:"is_active"`
}

type Service struct {
	ID              string `db:"id"`
	TenantID        string `db:"tenant_id"`
	Name            string `db:"name"`
	DurationMinutes int    `db:"duration_minutes"`
}

// ScheduleRule is one row of a weekly schedule. StaffID nil means the rule is
// tenant-wide and applies to any staff member without an own rule for that
// weekday. Times are wall-clock "HH:MM" strings in the tenant timezone.
type ScheduleRule struct {
	ID         string  `db:"id"`
	TenantID   string  `db:"tenant_id"`
	StaffID    *string `db:"staff_id"`
	Weekday    int     `db:"weekday"` // 0 = Sunday
	StartTime  string  `db:"start_time"`
	EndTime    string  `db:"end_time"`
	BreakStart *string `db:"break_start"`
	BreakEnd   *string `db:"break_end"`
	Active     bool    `db:"active"`
}

// Block is an absolute-time closed interval. StaffID nil blocks all staff.
type Block struct {
	ID       string    `db:"id"`
	TenantID string    `db:"tenant_id"`
	StaffID  *string   `db:"staff_id"`
	StartsAt time.Time `db:"starts_at"`
	EndsAt   time.Time `db:"ends_at"`
	Reason   string    `db:"reason"`
}

type Booking struct {
	ID         string        `db:"id"`
	TenantID   string        `db:"tenant_id"`
	StaffID    string        `db:"staff_id"`
	CustomerID string        `db:"customer_id"`
	ServiceID  string        `db:"service_id"`
	StartsAt   time.Time     `db:"starts_at"`
	EndsAt     time.Time     `db:"ends_at"`
	Status     BookingStatus `db:"status"`
}

// RecurringSlot is a standing weekly reservation. It is never stored per date;
// occurrences are expanded on demand for dates >= StartDate on the matching
// weekday.
type RecurringSlot struct {
	ID              string    `db:"id"`
	TenantID        string    `db:"tenant_id"`
	CustomerID      string    `db:"customer_id"`
	StaffID         string    `db:"staff_id"`
	ServiceID       *string   `db:"service_id"`
	Weekday         int       `db:"weekday"`
	StartTime       string    `db:"start_time"`
	DurationMinutes int       `db:"duration_minutes"`
	StartDate       time.Time `db:"start_date"`
	Active          bool      `db:"active"`
}

// Slot is a computed candidate interval, never persisted.
type Slot struct {
	StaffID        string    `json:"staff_id"`
	StartsAt       time.Time `json:"starts_at"`
	EndsAt         time.Time `json:"ends_at"`
	Available      bool      `json:"available"`
	ConflictReason string    `json:"conflict_reason,omitempty"`
}
