// Package recurrence expands standing weekly reservations into concrete
// virtual occurrences for a target date range. Occurrences are Booking-shaped
// but never persisted; a real booking for the same staff and customer near
// the computed start takes precedence and suppresses the virtual one.
package recurrence

import (
	"fmt"
	"time"

	"agenda-service/internal/models"
	"agenda-service/internal/timegrid"
)

// SuppressionWindow is how close a real booking's start must be to a computed
// occurrence start for the occurrence to be suppressed.
const SuppressionWindow = 60 * time.Second

// Occurrence is a virtual booking projected from a recurring slot.
type Occurrence struct {
	Booking models.Booking
	SlotID  string
}

// Expand projects every active recurring slot onto the days of [from, to]
// (inclusive, calendar days in loc) and returns the surviving virtual
// occurrences. A slot contributes on days >= its start date whose weekday
// matches. A slot with an unparsable start time fails the expansion: the
// caller cannot know when the reservation holds, so it must fail closed.
func Expand(slots []models.RecurringSlot, real []models.Booking, from, to time.Time, loc *time.Location) ([]Occurrence, error) {
	const op = "recurrence.Expand"

	fromDay, _ := timegrid.DayBounds(from, loc)
	toDay, _ := timegrid.DayBounds(to, loc)
	if toDay.Before(fromDay) {
		return nil, fmt.Errorf("%s: range end before start", op)
	}

	var out []Occurrence

	for day := fromDay; !day.After(toDay); day = day.AddDate(0, 0, 1) {
		for _, rs := range slots {
			if !rs.Active || int(day.Weekday()) != rs.Weekday {
				continue
			}
			startDay, _ := timegrid.DayBounds(rs.StartDate, loc)
			if day.Before(startDay) {
				continue
			}

			minute, err := timegrid.ParseClock(rs.StartTime)
			if err != nil {
				return nil, fmt.Errorf("%s: slot %s: %w", op, rs.ID, err)
			}

			startsAt := timegrid.At(day, minute, loc)
			if suppressed(rs, startsAt, real) {
				continue
			}

			out = append(out, Occurrence{
				SlotID: rs.ID,
				Booking: models.Booking{
					TenantID:   rs.TenantID,
					StaffID:    rs.StaffID,
					CustomerID: rs.CustomerID,
					ServiceID:  deref(rs.ServiceID),
					StartsAt:   startsAt,
					EndsAt:     startsAt.Add(time.Duration(rs.DurationMinutes) * time.Minute),
					Status:     models.BookingConfirmed,
				},
			})
		}
	}

	return out, nil
}

// suppressed reports whether a real booking for the same staff+customer
// starts within the suppression window of the computed start. Status is not
// considered: a cancelled real booking means that week's occurrence was
// called off, not that the virtual one should reappear.
func suppressed(rs models.RecurringSlot, startsAt time.Time, real []models.Booking) bool {
	for _, b := range real {
		if b.StaffID != rs.StaffID || b.CustomerID != rs.CustomerID {
			continue
		}
		delta := b.StartsAt.Sub(startsAt)
		if delta < 0 {
			delta = -delta
		}
		if delta <= SuppressionWindow {
			return true
		}
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
