package availability

import (
	"sort"
	"time"

	"agenda-service/internal/models"
	"agenda-service/internal/timegrid"
)

// GenerateParams carries everything slot generation needs for one staff
// member on one day. Now is injected so past-slot filtering is deterministic.
type GenerateParams struct {
	StaffID         string
	Date            time.Time
	Location        *time.Location
	ServiceDuration time.Duration
	Step            time.Duration
	Now             time.Time
	Schedule        DaySchedule
	Occupancy       Index
}

// GenerateSlots enumerates candidate slots between the first window open and
// the last window close. Candidates advance by Step; after a collision the
// cursor snaps to the end of the obstacle, so the first bookable moment after
// a booking's buffer or a break is offered even when it is off-grid.
//
// A fully closed day yields no slots. That is a valid result, not an error.
func GenerateSlots(p GenerateParams) []models.Slot {
	if p.ServiceDuration <= 0 || p.Step <= 0 {
		return nil
	}

	bounds, ok := p.Schedule.Bounds()
	if !ok {
		return nil
	}

	var slots []models.Slot

	cursor := timegrid.At(p.Date, bounds.Start, p.Location)
	dayEnd := timegrid.At(p.Date, bounds.End, p.Location)

	for !cursor.Add(p.ServiceDuration).After(dayEnd) {
		start := cursor
		end := start.Add(p.ServiceDuration)

		slot := models.Slot{StaffID: p.StaffID, StartsAt: start, EndsAt: end}
		next := start.Add(p.Step)

		switch {
		case !p.withinOpenWindow(start, end):
			slot.ConflictReason = p.closedReason(start, end)
			if resume, ok := p.nextOpening(start, end); ok && resume.After(next) {
				next = resume
			}

		case start.Before(p.Now):
			slot.ConflictReason = ReasonPast

		default:
			if reason, resume, conflict := p.Occupancy.Conflict(start, end); conflict {
				slot.ConflictReason = reason
				if resume.After(next) {
					next = resume
				}
			} else {
				slot.Available = true
			}
		}

		slots = append(slots, slot)
		cursor = next
	}

	return slots
}

func (p GenerateParams) withinOpenWindow(start, end time.Time) bool {
	for _, w := range p.Schedule.Open {
		ws := timegrid.At(p.Date, w.Start, p.Location)
		we := timegrid.At(p.Date, w.End, p.Location)
		if !start.Before(ws) && !end.After(we) {
			return true
		}
	}
	return false
}

func (p GenerateParams) closedReason(start, end time.Time) string {
	candidate := Interval{Start: start, End: end}
	for _, b := range p.Schedule.Breaks {
		bi := Interval{
			Start: timegrid.At(p.Date, b.Start, p.Location),
			End:   timegrid.At(p.Date, b.End, p.Location),
		}
		if candidate.Overlaps(bi) {
			return ReasonBreak
		}
	}
	return ReasonOutsideHours
}

// nextOpening finds the start of the first open window from which a candidate
// overlapping closed time could resume.
func (p GenerateParams) nextOpening(start, end time.Time) (time.Time, bool) {
	for _, w := range p.Schedule.Open {
		ws := timegrid.At(p.Date, w.Start, p.Location)
		if ws.After(start) {
			return ws, true
		}
	}
	return time.Time{}, false
}

// MergeByStart collapses slots from different staff that share a start time
// into one representative slot, preferring an available one. Used for the
// any-staff availability query; booking creation still names concrete staff.
func MergeByStart(slots []models.Slot) []models.Slot {
	byStart := make(map[int64]models.Slot)
	for _, s := range slots {
		key := s.StartsAt.Unix()
		cur, seen := byStart[key]
		if !seen || (!cur.Available && s.Available) {
			byStart[key] = s
		}
	}

	merged := make([]models.Slot, 0, len(byStart))
	for _, s := range byStart {
		merged = append(merged, s)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].StartsAt.Before(merged[j].StartsAt) })

	return merged
}
