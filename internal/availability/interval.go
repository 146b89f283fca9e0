// Package availability implements the read path of the booking engine:
// resolving working windows from schedule rules, indexing occupied time, and
// generating candidate slots. All interval logic is half-open [start, end):
// a booking ending exactly when another starts is not a conflict.
package availability

import "time"

// Interval is a half-open [Start, End) absolute-time interval.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals intersect.
// This is the single conflict rule used everywhere in the engine.
func (iv Interval) Overlaps(o Interval) bool {
	return iv.Start.Before(o.End) && iv.End.After(o.Start)
}

// Dilate grows the interval by d on both ends. Used to apply the booking
// buffer during availability checks; the stored interval stays undilated.
func (iv Interval) Dilate(d time.Duration) Interval {
	if d <= 0 {
		return iv
	}
	return Interval{Start: iv.Start.Add(-d), End: iv.End.Add(d)}
}
