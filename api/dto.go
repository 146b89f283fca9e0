package api

import "time"

// Wall-clock fields ("HH:MM") are interpreted in the tenant's timezone;
// absolute fields are RFC3339.

type SlotResponse struct {
	StaffID        string    `json:"staff_id"`
	StartsAt       time.Time `json:"starts_at"`
	EndsAt         time.Time `json:"ends_at"`
	Available      bool      `json:"available"`
	ConflictReason string    `json:"conflict_reason,omitempty"`
}

type BookingRequest struct {
	TenantID   string `json:"tenant_id"`
	StaffID    string `json:"staff_id"`
	CustomerID string `json:"customer_id"`
	ServiceID  string `json:"service_id"`
	StartsAt   string `json:"starts_at"`
	// Confirmed marks the booking paid-for upfront; otherwise it starts pending.
	Confirmed bool `json:"confirmed"`
}

type BookingResponse struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	StaffID    string    `json:"staff_id"`
	CustomerID string    `json:"customer_id"`
	ServiceID  string    `json:"service_id"`
	StartsAt   time.Time `json:"starts_at"`
	EndsAt     time.Time `json:"ends_at"`
	Status     string    `json:"status"`
}

type CancelRequest struct {
	TenantID string `json:"tenant_id"`
	// CancellationMinHours overrides the tenant's refund threshold when set.
	CancellationMinHours *float64 `json:"cancellation_min_hours,omitempty"`
}

// CancelResponse surfaces the refund policy decision; refund execution is the
// caller's side effect, never this service's.
type CancelResponse struct {
	Booking         BookingResponse `json:"booking"`
	RefundEligible  bool            `json:"refund_eligible"`
	HoursUntilStart float64         `json:"hours_until_start"`
}

type ScheduleRuleRequest struct {
	TenantID   string  `json:"tenant_id"`
	StaffID    *string `json:"staff_id,omitempty"`
	Weekday    int     `json:"weekday"`
	StartTime  string  `json:"start_time"`
	EndTime    string  `json:"end_time"`
	BreakStart *string `json:"break_start,omitempty"`
	BreakEnd   *string `json:"break_end,omitempty"`
	Active     bool    `json:"active"`
}

type ScheduleRuleResponse struct {
	ID         string  `json:"id"`
	TenantID   string  `json:"tenant_id"`
	StaffID    *string `json:"staff_id,omitempty"`
	Weekday    int     `json:"weekday"`
	StartTime  string  `json:"start_time"`
	EndTime    string  `json:"end_time"`
	BreakStart *string `json:"break_start,omitempty"`
	BreakEnd   *string `json:"break_end,omitempty"`
	Active     bool    `json:"active"`
}

type BlockRequest struct {
	TenantID string  `json:"tenant_id"`
	StaffID  *string `json:"staff_id,omitempty"`
	StartsAt string  `json:"starts_at"`
	EndsAt   string  `json:"ends_at"`
	Reason   string  `json:"reason"`
}

type BlockResponse struct {
	ID       string    `json:"id"`
	TenantID string    `json:"tenant_id"`
	StaffID  *string   `json:"staff_id,omitempty"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	Reason   string    `json:"reason"`
}

type RecurringSlotRequest struct {
	TenantID        string  `json:"tenant_id"`
	CustomerID      string  `json:"customer_id"`
	StaffID         string  `json:"staff_id"`
	ServiceID       *string `json:"service_id,omitempty"`
	Weekday         int     `json:"weekday"`
	StartTime       string  `json:"start_time"`
	DurationMinutes int     `json:"duration_minutes"`
	StartDate       string  `json:"start_date"`
	Active          bool    `json:"active"`
}

type RecurringSlotResponse struct {
	ID              string  `json:"id"`
	TenantID        string  `json:"tenant_id"`
	CustomerID      string  `json:"customer_id"`
	StaffID         string  `json:"staff_id"`
	ServiceID       *string `json:"service_id,omitempty"`
	Weekday         int     `json:"weekday"`
	StartTime       string  `json:"start_time"`
	DurationMinutes int     `json:"duration_minutes"`
	StartDate       string  `json:"start_date"`
	Active          bool    `json:"active"`
}
