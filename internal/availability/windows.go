package availability

import (
	"errors"
	"fmt"

	"agenda-service/internal/models"
	"agenda-service/internal/timegrid"
)

// ErrInvalidRule marks schedule data the resolver refuses to interpret
// (start >= end, break outside the window). The caller treats the day as
// fully closed: availability must never offer a slot it cannot honor.
var ErrInvalidRule = errors.New("invalid schedule rule")

// DaySchedule is the resolved working time of one staff member on one day.
// Open spans are normalized (sorted, disjoint); Breaks keep the excluded
// break intervals so slot generation can name them in conflict reasons.
type DaySchedule struct {
	Open   []timegrid.Span
	Breaks []timegrid.Span
}

// Closed reports whether the day has no open time at all.
func (d DaySchedule) Closed() bool {
	return len(d.Open) == 0
}

// Bounds returns the outermost open span of the day.
func (d DaySchedule) Bounds() (timegrid.Span, bool) {
	if d.Closed() {
		return timegrid.Span{}, false
	}
	return timegrid.Span{Start: d.Open[0].Start, End: d.Open[len(d.Open)-1].End}, true
}

// ResolveWindows merges the schedule rules that apply to staffID on weekday
// into a DaySchedule. Staff-specific rules win; tenant-wide rules (nil staff)
// apply only when the staff member has no own rule for that weekday. Multiple
// rules for the same staff+weekday are unioned via span normalization.
func ResolveWindows(rules []models.ScheduleRule, staffID string, weekday int) (DaySchedule, error) {
	const op = "availability.ResolveWindows"

	var own, tenantWide []models.ScheduleRule
	for _, r := range rules {
		if !r.Active || r.Weekday != weekday {
			continue
		}
		switch {
		case r.StaffID != nil && *r.StaffID == staffID:
			own = append(own, r)
		case r.StaffID == nil:
			tenantWide = append(tenantWide, r)
		}
	}

	applicable := own
	if len(applicable) == 0 {
		applicable = tenantWide
	}
	if len(applicable) == 0 {
		return DaySchedule{}, nil
	}

	var open, breaks []timegrid.Span
	for _, r := range applicable {
		window, brk, err := ruleSpans(r)
		if err != nil {
			return DaySchedule{}, fmt.Errorf("%s: rule %s: %w", op, r.ID, err)
		}

		if brk != nil {
			open = append(open, timegrid.Subtract(window, *brk)...)
			breaks = append(breaks, *brk)
		} else {
			open = append(open, window)
		}
	}

	return DaySchedule{
		Open:   timegrid.Normalize(open),
		Breaks: timegrid.Normalize(breaks),
	}, nil
}

// ValidateRule checks a schedule rule the same way the resolver interprets
// it, so management writes reject data the read path would fail closed on.
func ValidateRule(r models.ScheduleRule) error {
	_, _, err := ruleSpans(r)
	return err
}

func ruleSpans(r models.ScheduleRule) (timegrid.Span, *timegrid.Span, error) {
	start, err := timegrid.ParseClock(r.StartTime)
	if err != nil {
		return timegrid.Span{}, nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	end, err := timegrid.ParseClock(r.EndTime)
	if err != nil {
		return timegrid.Span{}, nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	window := timegrid.Span{Start: start, End: end}
	if !window.Valid() {
		return timegrid.Span{}, nil, fmt.Errorf("%w: start %s >= end %s", ErrInvalidRule, r.StartTime, r.EndTime)
	}

	if r.BreakStart == nil && r.BreakEnd == nil {
		return window, nil, nil
	}
	if r.BreakStart == nil || r.BreakEnd == nil {
		return timegrid.Span{}, nil, fmt.Errorf("%w: break bounds must both be set", ErrInvalidRule)
	}

	bs, err := timegrid.ParseClock(*r.BreakStart)
	if err != nil {
		return timegrid.Span{}, nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	be, err := timegrid.ParseClock(*r.BreakEnd)
	if err != nil {
		return timegrid.Span{}, nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	brk := timegrid.Span{Start: bs, End: be}
	if !brk.Valid() || !window.Contains(brk) {
		return timegrid.Span{}, nil, fmt.Errorf("%w: break %s-%s outside window", ErrInvalidRule, *r.BreakStart, *r.BreakEnd)
	}

	return window, &brk, nil
}
