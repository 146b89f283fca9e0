package availability

import (
	"testing"
	"time"

	"agenda-service/internal/models"
	"agenda-service/internal/timegrid"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tz = time.FixedZone("UTC-3", -3*60*60)

type slotCase struct {
	start     string
	available bool
	reason    string
}

func assertSlots(t *testing.T, want []slotCase, got []models.Slot) {
	t.Helper()

	require.Len(t, got, len(want))
	for i, w := range want {
		assert.Equal(t, w.start, got[i].StartsAt.Format("15:04"), "slot %d start", i)
		assert.Equal(t, w.available, got[i].Available, "slot %d available", i)
		assert.Equal(t, w.reason, got[i].ConflictReason, "slot %d reason", i)
		assert.Equal(t, got[i].StartsAt.Add(30*time.Minute), got[i].EndsAt, "slot %d end", i)
	}
}

// Full working day: 09:00-18:00 with a 12:00-13:00 break, a buffered booking
// 14:00-14:30 and a 30-minute grid. The cursor snaps to the buffer's end, so
// the first slot after the booking starts off-grid at 14:40.
func TestGenerateSlots_FullDay(t *testing.T) {
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, tz)

	sched := DaySchedule{
		Open:   []timegrid.Span{{Start: 540, End: 720}, {Start: 780, End: 1080}},
		Breaks: []timegrid.Span{{Start: 720, End: 780}},
	}

	bookings := []models.Booking{
		{
			StaffID:  "st1",
			Status:   models.BookingConfirmed,
			StartsAt: time.Date(2026, 3, 2, 14, 0, 0, 0, tz),
			EndsAt:   time.Date(2026, 3, 2, 14, 30, 0, 0, tz),
		},
	}

	slots := GenerateSlots(GenerateParams{
		StaffID:         "st1",
		Date:            date,
		Location:        tz,
		ServiceDuration: 30 * time.Minute,
		Step:            30 * time.Minute,
		Now:             date, // midnight, nothing is past
		Schedule:        sched,
		Occupancy:       BuildIndex("st1", bookings, nil, 10*time.Minute),
	})

	assertSlots(t, []slotCase{
		{"09:00", true, ""},
		{"09:30", true, ""},
		{"10:00", true, ""},
		{"10:30", true, ""},
		{"11:00", true, ""},
		{"11:30", true, ""},
		{"12:00", false, ReasonBreak},
		{"13:00", true, ""},
		{"13:30", false, ReasonBooking}, // 13:30-14:00 hits the 13:50 buffer edge
		{"14:40", true, ""},             // resumes at the buffered booking's end
		{"15:10", true, ""},
		{"15:40", true, ""},
		{"16:10", true, ""},
		{"16:40", true, ""},
		{"17:10", true, ""},
	}, slots)
}

func TestGenerateSlots_PastFilter(t *testing.T) {
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, tz)
	sched := DaySchedule{Open: []timegrid.Span{{Start: 540, End: 720}}}

	slots := GenerateSlots(GenerateParams{
		StaffID:         "st1",
		Date:            date,
		Location:        tz,
		ServiceDuration: 30 * time.Minute,
		Step:            30 * time.Minute,
		Now:             time.Date(2026, 3, 2, 10, 15, 0, 0, tz),
		Schedule:        sched,
	})

	assertSlots(t, []slotCase{
		{"09:00", false, ReasonPast},
		{"09:30", false, ReasonPast},
		{"10:00", false, ReasonPast},
		{"10:30", true, ""},
		{"11:00", true, ""},
		{"11:30", true, ""},
	}, slots)
}

// Adjacent intervals never conflict: a booking [11:00, 11:30) leaves both
// [10:30, 11:00) and [11:30, 12:00) free when the buffer is zero.
func TestGenerateSlots_HalfOpenAdjacency(t *testing.T) {
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, tz)
	sched := DaySchedule{Open: []timegrid.Span{{Start: 630, End: 720}}}

	bookings := []models.Booking{
		{
			StaffID:  "st1",
			Status:   models.BookingPending,
			StartsAt: time.Date(2026, 3, 2, 11, 0, 0, 0, tz),
			EndsAt:   time.Date(2026, 3, 2, 11, 30, 0, 0, tz),
		},
	}

	slots := GenerateSlots(GenerateParams{
		StaffID:         "st1",
		Date:            date,
		Location:        tz,
		ServiceDuration: 30 * time.Minute,
		Step:            30 * time.Minute,
		Now:             date,
		Schedule:        sched,
		Occupancy:       BuildIndex("st1", bookings, nil, 0),
	})

	assertSlots(t, []slotCase{
		{"10:30", true, ""},
		{"11:00", false, ReasonBooking},
		{"11:30", true, ""},
	}, slots)
}

func TestGenerateSlots_ClosedDay(t *testing.T) {
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, tz)

	slots := GenerateSlots(GenerateParams{
		StaffID:         "st1",
		Date:            date,
		Location:        tz,
		ServiceDuration: 30 * time.Minute,
		Step:            30 * time.Minute,
		Now:             date,
		Schedule:        DaySchedule{},
	})

	assert.Empty(t, slots)
}

func TestMergeByStart(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, tz)

	slots := []models.Slot{
		{StaffID: "st1", StartsAt: start, EndsAt: start.Add(30 * time.Minute), ConflictReason: ReasonBooking},
		{StaffID: "st2", StartsAt: start, EndsAt: start.Add(30 * time.Minute), Available: true},
		{StaffID: "st1", StartsAt: start.Add(30 * time.Minute), EndsAt: start.Add(time.Hour), Available: true},
	}

	merged := MergeByStart(slots)

	require.Len(t, merged, 2)
	assert.Equal(t, "st2", merged[0].StaffID) // available wins over conflicted
	assert.True(t, merged[0].Available)
	assert.Equal(t, start.Add(30*time.Minute), merged[1].StartsAt)
}
