package recurrence

import (
	"testing"
	"time"

	"agenda-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2026-03-02 is a Monday.
var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func weeklySlot() models.RecurringSlot {
	return models.RecurringSlot{
		ID:              "rs1",
		TenantID:        "t1",
		CustomerID:      "cust1",
		StaffID:         "st1",
		Weekday:         1, // Monday
		StartTime:       "10:00",
		DurationMinutes: 60,
		StartDate:       time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Active:          true,
	}
}

func TestExpand_ProjectsMatchingWeekday(t *testing.T) {
	occs, err := Expand([]models.RecurringSlot{weeklySlot()}, nil, monday, monday, time.UTC)
	require.NoError(t, err)
	require.Len(t, occs, 1)

	occ := occs[0]
	assert.Equal(t, "rs1", occ.SlotID)
	assert.Equal(t, "st1", occ.Booking.StaffID)
	assert.Equal(t, "cust1", occ.Booking.CustomerID)
	assert.Equal(t, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), occ.Booking.StartsAt)
	assert.Equal(t, time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC), occ.Booking.EndsAt)
	assert.Equal(t, models.BookingConfirmed, occ.Booking.Status)
}

func TestExpand_SkipsNonMatchingDays(t *testing.T) {
	tuesday := monday.AddDate(0, 0, 1)

	occs, err := Expand([]models.RecurringSlot{weeklySlot()}, nil, tuesday, tuesday, time.UTC)
	require.NoError(t, err)
	assert.Empty(t, occs)
}

func TestExpand_RespectsStartDate(t *testing.T) {
	slot := weeklySlot()
	slot.StartDate = monday.AddDate(0, 0, 7)

	occs, err := Expand([]models.RecurringSlot{slot}, nil, monday, monday, time.UTC)
	require.NoError(t, err)
	assert.Empty(t, occs)
}

func TestExpand_SkipsInactive(t *testing.T) {
	slot := weeklySlot()
	slot.Active = false

	occs, err := Expand([]models.RecurringSlot{slot}, nil, monday, monday, time.UTC)
	require.NoError(t, err)
	assert.Empty(t, occs)
}

func TestExpand_MultiDayRange(t *testing.T) {
	occs, err := Expand([]models.RecurringSlot{weeklySlot()}, nil, monday, monday.AddDate(0, 0, 13), time.UTC)
	require.NoError(t, err)
	require.Len(t, occs, 2)
	assert.Equal(t, monday.AddDate(0, 0, 7).Add(10*time.Hour), occs[1].Booking.StartsAt)
}

func TestExpand_SuppressedByRealBooking(t *testing.T) {
	tests := []struct {
		name string
		real models.Booking
		want int
	}{
		{
			name: "exact start suppresses",
			real: models.Booking{StaffID: "st1", CustomerID: "cust1",
				StartsAt: monday.Add(10 * time.Hour), Status: models.BookingConfirmed},
			want: 0,
		},
		{
			name: "cancelled booking still suppresses",
			real: models.Booking{StaffID: "st1", CustomerID: "cust1",
				StartsAt: monday.Add(10*time.Hour + 30*time.Second), Status: models.BookingCancelled},
			want: 0,
		},
		{
			name: "start outside the window does not suppress",
			real: models.Booking{StaffID: "st1", CustomerID: "cust1",
				StartsAt: monday.Add(10*time.Hour + 2*time.Minute), Status: models.BookingConfirmed},
			want: 1,
		},
		{
			name: "different customer does not suppress",
			real: models.Booking{StaffID: "st1", CustomerID: "cust2",
				StartsAt: monday.Add(10 * time.Hour), Status: models.BookingConfirmed},
			want: 1,
		},
		{
			name: "different staff does not suppress",
			real: models.Booking{StaffID: "st2", CustomerID: "cust1",
				StartsAt: monday.Add(10 * time.Hour), Status: models.BookingConfirmed},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			occs, err := Expand([]models.RecurringSlot{weeklySlot()}, []models.Booking{tt.real}, monday, monday, time.UTC)
			require.NoError(t, err)
			assert.Len(t, occs, tt.want)
		})
	}
}

func TestExpand_FailsOnBadStartTime(t *testing.T) {
	slot := weeklySlot()
	slot.StartTime = "25:99"

	_, err := Expand([]models.RecurringSlot{slot}, nil, monday, monday, time.UTC)
	require.Error(t, err)
}

func TestExpand_FailsOnInvertedRange(t *testing.T) {
	_, err := Expand(nil, nil, monday, monday.AddDate(0, 0, -1), time.UTC)
	require.Error(t, err)
}
