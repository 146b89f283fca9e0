// Package timegrid provides minute-of-day arithmetic for schedule windows.
// All spans are half-open [start, end) offsets in minutes from local midnight,
// independent of timezone. Conversion to absolute instants happens only at the
// edges, via At and DayBounds.
package timegrid

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const MinutesPerDay = 24 * 60

// ParseClock parses "HH:MM" or "HH:MM:SS" into minutes from midnight.
// Seconds are accepted for compatibility with TIME columns and discarded.
func ParseClock(s string) (int, error) {
	const op = "timegrid.ParseClock"

	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("%s: invalid clock value %q", op, s)
	}

	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%s: invalid hour in %q", op, s)
	}

	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%s: invalid minute in %q", op, s)
	}

	return h*60 + m, nil
}

// FormatClock renders minutes from midnight as "HH:MM".
func FormatClock(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// Span is a half-open [Start, End) interval in minutes from midnight.
type Span struct {
	Start int
	End   int
}

func (s Span) Valid() bool {
	return s.Start >= 0 && s.End <= MinutesPerDay && s.Start < s.End
}

// Contains reports whether inner lies entirely within s.
func (s Span) Contains(inner Span) bool {
	return inner.Start >= s.Start && inner.End <= s.End
}

// Overlaps uses half-open semantics: touching spans do not overlap.
func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && s.End > o.Start
}

// Normalize sorts spans and merges overlapping ones into a disjoint union.
// Touching spans ([9:00,12:00) and [12:00,14:00)) are merged as well, since a
// slot may straddle the seam. Invalid spans are dropped.
func Normalize(spans []Span) []Span {
	valid := make([]Span, 0, len(spans))
	for _, s := range spans {
		if s.Valid() {
			valid = append(valid, s)
		}
	}
	if len(valid) == 0 {
		return nil
	}

	sort.Slice(valid, func(i, j int) bool {
		if valid[i].Start != valid[j].Start {
			return valid[i].Start < valid[j].Start
		}
		return valid[i].End < valid[j].End
	})

	merged := []Span{valid[0]}
	for _, s := range valid[1:] {
		last := &merged[len(merged)-1]
		if s.Start <= last.End {
			if s.End > last.End {
				last.End = s.End
			}
			continue
		}
		merged = append(merged, s)
	}

	return merged
}

// Subtract removes cut from s, producing zero, one or two remaining spans.
func Subtract(s, cut Span) []Span {
	if !s.Overlaps(cut) {
		return []Span{s}
	}

	var out []Span
	if cut.Start > s.Start {
		out = append(out, Span{Start: s.Start, End: cut.Start})
	}
	if cut.End < s.End {
		out = append(out, Span{Start: cut.End, End: s.End})
	}
	return out
}

// At converts a minute offset on date's calendar day to an absolute instant in
// loc. Only the year/month/day of date are used.
func At(date time.Time, minute int, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), minute/60, minute%60, 0, 0, loc)
}

// DayBounds returns local midnight of date's day and of the following day.
func DayBounds(date time.Time, loc *time.Location) (time.Time, time.Time) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
