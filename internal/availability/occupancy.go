package availability

import (
	"sort"
	"time"

	"agenda-service/internal/models"
)

// Conflict reasons surfaced on unavailable slots.
const (
	ReasonBooking      = "booking"
	ReasonBlock        = "block"
	ReasonBreak        = "break"
	ReasonOutsideHours = "outside_hours"
	ReasonPast         = "past"
)

type busyInterval struct {
	Interval
	Reason string
}

// Index holds the occupied absolute-time intervals for one staff member on
// one day: non-cancelled bookings dilated by the buffer on both ends, plus
// blocks (staff-specific and tenant-wide) taken as-is.
type Index struct {
	busy []busyInterval
}

// BuildIndex builds the occupancy set. Bookings that do not occupy time
// (cancelled, no_show) are skipped; blocks for other staff are skipped.
func BuildIndex(staffID string, bookings []models.Booking, blocks []models.Block, buffer time.Duration) Index {
	var busy []busyInterval

	for _, b := range bookings {
		if b.StaffID != staffID || !b.Status.Occupies() {
			continue
		}
		iv := Interval{Start: b.StartsAt, End: b.EndsAt}.Dilate(buffer)
		busy = append(busy, busyInterval{Interval: iv, Reason: ReasonBooking})
	}

	for _, bl := range blocks {
		if bl.StaffID != nil && *bl.StaffID != staffID {
			continue
		}
		busy = append(busy, busyInterval{
			Interval: Interval{Start: bl.StartsAt, End: bl.EndsAt},
			Reason:   ReasonBlock,
		})
	}

	sort.Slice(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })

	return Index{busy: busy}
}

// Conflict tests a candidate [start, end) against the occupancy set using the
// half-open overlap rule. On conflict it returns the reason and the end of
// the latest conflicting interval, so the caller can resume enumeration right
// after the obstacle.
func (ix Index) Conflict(start, end time.Time) (reason string, resumeAt time.Time, ok bool) {
	candidate := Interval{Start: start, End: end}

	for _, b := range ix.busy {
		if !candidate.Overlaps(b.Interval) {
			continue
		}
		if !ok || b.End.After(resumeAt) {
			reason = b.Reason
			resumeAt = b.End
			ok = true
		}
	}

	return reason, resumeAt, ok
}
