package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"agenda-service/api"
	"agenda-service/internal/models"
	"agenda-service/pkg/response"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2026-03-02 is a Monday.
var testNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]bool)}
}

func (l *fakeLocker) Lock(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *fakeLocker) Unlock(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

// fakeStore is an in-memory Store. CreateBooking mirrors the transactional
// re-check: buffered overlap against occupying bookings, undilated overlap
// against blocks.
type fakeStore struct {
	mu        sync.Mutex
	tenants   map[string]models.Tenant
	services  map[string]models.Service
	staff     map[string]models.Staff
	rules     []models.ScheduleRule
	blocks    []models.Block
	recurring []models.RecurringSlot
	bookings  map[string]models.Booking
	nextID    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tenants:  make(map[string]models.Tenant),
		services: make(map[string]models.Service),
		staff:    make(map[string]models.Staff),
		bookings: make(map[string]models.Booking),
	}
}

func (f *fakeStore) GetTenant(_ context.Context, id string) (*models.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tenants[id]
	if !ok {
		return nil, response.ErrNotFound
	}
	return &t, nil
}

func (f *fakeStore) GetService(_ context.Context, tenantID, id string) (*models.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.services[id]
	if !ok || s.TenantID != tenantID {
		return nil, response.ErrNotFound
	}
	return &s, nil
}

func (f *fakeStore) GetStaff(_ context.Context, tenantID, id string) (*models.Staff, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.staff[id]
	if !ok || st.TenantID != tenantID {
		return nil, response.ErrNotFound
	}
	return &st, nil
}

func (f *fakeStore) ListActiveStaff(_ context.Context, tenantID string) ([]*models.Staff, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Staff
	for id := range f.staff {
		st := f.staff[id]
		if st.TenantID == tenantID && st.IsActive {
			out = append(out, &st)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateScheduleRule(_ context.Context, r *models.ScheduleRule) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	r.ID = fmt.Sprintf("rule-%d", f.nextID)
	f.rules = append(f.rules, *r)
	return r.ID, nil
}

func (f *fakeStore) GetScheduleRule(_ context.Context, tenantID, id string) (*models.ScheduleRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rules {
		if r.TenantID == tenantID && r.ID == id {
			return &r, nil
		}
	}
	return nil, response.ErrNotFound
}

func (f *fakeStore) ListScheduleRules(_ context.Context, tenantID string, weekday *int) ([]models.ScheduleRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ScheduleRule
	for _, r := range f.rules {
		if r.TenantID != tenantID {
			continue
		}
		if weekday != nil && r.Weekday != *weekday {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeStore) DeleteScheduleRule(_ context.Context, tenantID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.rules {
		if r.TenantID == tenantID && r.ID == id {
			f.rules = append(f.rules[:i], f.rules[i+1:]...)
			return nil
		}
	}
	return response.ErrNotFound
}

func (f *fakeStore) CreateBlock(_ context.Context, b *models.Block) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	b.ID = fmt.Sprintf("block-%d", f.nextID)
	f.blocks = append(f.blocks, *b)
	return b.ID, nil
}

func (f *fakeStore) GetBlock(_ context.Context, tenantID, id string) (*models.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.blocks {
		if b.TenantID == tenantID && b.ID == id {
			return &b, nil
		}
	}
	return nil, response.ErrNotFound
}

func (f *fakeStore) ListBlocks(_ context.Context, tenantID string, staffID *string, from, to time.Time) ([]models.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Block
	for _, b := range f.blocks {
		if b.TenantID != tenantID || !b.StartsAt.Before(to) || !b.EndsAt.After(from) {
			continue
		}
		if staffID != nil && b.StaffID != nil && *b.StaffID != *staffID {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeStore) DeleteBlock(_ context.Context, tenantID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, b := range f.blocks {
		if b.TenantID == tenantID && b.ID == id {
			f.blocks = append(f.blocks[:i], f.blocks[i+1:]...)
			return nil
		}
	}
	return response.ErrNotFound
}

func (f *fakeStore) CreateRecurringSlot(_ context.Context, rs *models.RecurringSlot) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	rs.ID = fmt.Sprintf("recurring-%d", f.nextID)
	f.recurring = append(f.recurring, *rs)
	return rs.ID, nil
}

func (f *fakeStore) GetRecurringSlot(_ context.Context, tenantID, id string) (*models.RecurringSlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rs := range f.recurring {
		if rs.TenantID == tenantID && rs.ID == id {
			return &rs, nil
		}
	}
	return nil, response.ErrNotFound
}

func (f *fakeStore) ListRecurringSlots(_ context.Context, tenantID string) ([]models.RecurringSlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.RecurringSlot
	for _, rs := range f.recurring {
		if rs.TenantID == tenantID && rs.Active {
			out = append(out, rs)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteRecurringSlot(_ context.Context, tenantID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, rs := range f.recurring {
		if rs.TenantID == tenantID && rs.ID == id {
			f.recurring = append(f.recurring[:i], f.recurring[i+1:]...)
			return nil
		}
	}
	return response.ErrNotFound
}

func (f *fakeStore) GetBooking(_ context.Context, tenantID, id string) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok || b.TenantID != tenantID {
		return nil, response.ErrNotFound
	}
	return &b, nil
}

func (f *fakeStore) ListBookings(_ context.Context, tenantID string, staffID *string, from, to time.Time, statuses []models.BookingStatus) ([]models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Booking
	for _, b := range f.bookings {
		if b.TenantID != tenantID || !b.StartsAt.Before(to) || !b.EndsAt.After(from) {
			continue
		}
		if staffID != nil && b.StaffID != *staffID {
			continue
		}
		if len(statuses) > 0 {
			match := false
			for _, st := range statuses {
				if b.Status == st {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeStore) CreateBooking(_ context.Context, b *models.Booking, buffer time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.bookings {
		if existing.TenantID != b.TenantID || existing.StaffID != b.StaffID || !existing.Status.Occupies() {
			continue
		}
		if existing.StartsAt.Before(b.EndsAt.Add(buffer)) && existing.EndsAt.After(b.StartsAt.Add(-buffer)) {
			return "", response.ErrSlotConflict
		}
	}

	for _, bl := range f.blocks {
		if bl.TenantID != b.TenantID {
			continue
		}
		if bl.StaffID != nil && *bl.StaffID != b.StaffID {
			continue
		}
		if bl.StartsAt.Before(b.EndsAt) && bl.EndsAt.After(b.StartsAt) {
			return "", response.ErrSlotConflict
		}
	}

	f.nextID++
	id := fmt.Sprintf("booking-%d", f.nextID)
	stored := *b
	stored.ID = id
	f.bookings[id] = stored
	return id, nil
}

func (f *fakeStore) UpdateBookingStatus(_ context.Context, tenantID, id string, from, to models.BookingStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok || b.TenantID != tenantID || b.Status != from {
		return response.ErrNotFound
	}
	b.Status = to
	f.bookings[id] = b
	return nil
}

func newTestService(store *fakeStore, locker *fakeLocker) *Service {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, locker, fixedClock{t: testNow}, log)
}

func seedTenant(store *fakeStore) {
	store.tenants["t1"] = models.Tenant{
		ID: "t1", Name: "Clinic", Timezone: "UTC",
		SlotDurationMinutes: 30, BufferMinutes: 0, CancellationMinHours: 2,
	}
	store.services["svc1"] = models.Service{ID: "svc1", TenantID: "t1", Name: "Consult", DurationMinutes: 30}
	store.staff["st1"] = models.Staff{ID: "st1", TenantID: "t1", Name: "Ana", IsActive: true}

	staffID := "st1"
	store.rules = append(store.rules, models.ScheduleRule{
		ID: "rule-1", TenantID: "t1", StaffID: &staffID,
		Weekday: 1, StartTime: "09:00", EndTime: "12:00", Active: true,
	})
}

func TestGetAvailableSlots(t *testing.T) {
	store := newFakeStore()
	seedTenant(store)
	store.bookings["b1"] = models.Booking{
		ID: "b1", TenantID: "t1", StaffID: "st1", CustomerID: "c1", ServiceID: "svc1",
		StartsAt: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		EndsAt:   time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC),
		Status:   models.BookingConfirmed,
	}

	svc := newTestService(store, newFakeLocker())
	staffID := "st1"

	slots, err := svc.GetAvailableSlots(context.Background(), "t1", "2026-03-02", "svc1", &staffID)
	require.NoError(t, err)
	require.Len(t, slots, 6)

	for i, want := range []struct {
		start     string
		available bool
		reason    string
	}{
		{"09:00", true, ""},
		{"09:30", true, ""},
		{"10:00", false, "booking"},
		{"10:30", true, ""},
		{"11:00", true, ""},
		{"11:30", true, ""},
	} {
		assert.Equal(t, want.start, slots[i].StartsAt.Format("15:04"), "slot %d", i)
		assert.Equal(t, want.available, slots[i].Available, "slot %d", i)
		assert.Equal(t, want.reason, slots[i].ConflictReason, "slot %d", i)
	}

	// Read-only: a second identical query yields the same answer.
	again, err := svc.GetAvailableSlots(context.Background(), "t1", "2026-03-02", "svc1", &staffID)
	require.NoError(t, err)
	assert.Equal(t, slots, again)
}

func TestGetAvailableSlots_UnknownRefs(t *testing.T) {
	store := newFakeStore()
	seedTenant(store)
	svc := newTestService(store, newFakeLocker())

	_, err := svc.GetAvailableSlots(context.Background(), "ghost", "2026-03-02", "svc1", nil)
	assert.ErrorIs(t, err, response.ErrValidation)

	_, err = svc.GetAvailableSlots(context.Background(), "t1", "2026-03-02", "ghost", nil)
	assert.ErrorIs(t, err, response.ErrValidation)

	ghost := "ghost"
	_, err = svc.GetAvailableSlots(context.Background(), "t1", "2026-03-02", "svc1", &ghost)
	assert.ErrorIs(t, err, response.ErrValidation)

	_, err = svc.GetAvailableSlots(context.Background(), "t1", "not-a-date", "svc1", nil)
	assert.ErrorIs(t, err, response.ErrValidation)
}

func TestGetAvailableSlots_InactiveStaffIsEmpty(t *testing.T) {
	store := newFakeStore()
	seedTenant(store)
	st := store.staff["st1"]
	st.IsActive = false
	store.staff["st1"] = st

	svc := newTestService(store, newFakeLocker())
	staffID := "st1"

	slots, err := svc.GetAvailableSlots(context.Background(), "t1", "2026-03-02", "svc1", &staffID)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestCreateBooking_SecondWriterLoses(t *testing.T) {
	store := newFakeStore()
	seedTenant(store)
	svc := newTestService(store, newFakeLocker())

	req := &api.BookingRequest{
		TenantID: "t1", StaffID: "st1", CustomerID: "c1", ServiceID: "svc1",
		StartsAt: "2026-03-02T10:00:00Z",
	}

	first, err := svc.CreateBooking(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "pending", first.Status)
	assert.Equal(t, time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC), first.EndsAt.UTC())

	req2 := &api.BookingRequest{
		TenantID: "t1", StaffID: "st1", CustomerID: "c2", ServiceID: "svc1",
		StartsAt: "2026-03-02T10:15:00Z",
	}
	_, err = svc.CreateBooking(context.Background(), req2)
	assert.ErrorIs(t, err, response.ErrSlotConflict)
}

func TestCreateBooking_HeldLock(t *testing.T) {
	store := newFakeStore()
	seedTenant(store)
	locker := newFakeLocker()
	svc := newTestService(store, locker)

	// Simulate a concurrent create holding the staff+day lock.
	_, err := locker.Lock(context.Background(), "booking:t1:st1:2026-03-02", time.Second)
	require.NoError(t, err)

	_, err = svc.CreateBooking(context.Background(), &api.BookingRequest{
		TenantID: "t1", StaffID: "st1", CustomerID: "c1", ServiceID: "svc1",
		StartsAt: "2026-03-02T10:00:00Z",
	})
	assert.ErrorIs(t, err, response.ErrLocked)
}

func TestCreateBooking_RecurringReservationWins(t *testing.T) {
	store := newFakeStore()
	seedTenant(store)
	store.recurring = append(store.recurring, models.RecurringSlot{
		ID: "rs1", TenantID: "t1", CustomerID: "regular", StaffID: "st1",
		Weekday: 1, StartTime: "10:00", DurationMinutes: 60,
		StartDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), Active: true,
	})

	svc := newTestService(store, newFakeLocker())

	_, err := svc.CreateBooking(context.Background(), &api.BookingRequest{
		TenantID: "t1", StaffID: "st1", CustomerID: "c1", ServiceID: "svc1",
		StartsAt: "2026-03-02T10:30:00Z",
	})
	assert.ErrorIs(t, err, response.ErrSlotConflict)

	// Outside the standing reservation the create goes through.
	created, err := svc.CreateBooking(context.Background(), &api.BookingRequest{
		TenantID: "t1", StaffID: "st1", CustomerID: "c1", ServiceID: "svc1",
		StartsAt: "2026-03-02T11:00:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, "c1", created.CustomerID)
}

func TestCreateBooking_Confirmed(t *testing.T) {
	store := newFakeStore()
	seedTenant(store)
	svc := newTestService(store, newFakeLocker())

	created, err := svc.CreateBooking(context.Background(), &api.BookingRequest{
		TenantID: "t1", StaffID: "st1", CustomerID: "c1", ServiceID: "svc1",
		StartsAt: "2026-03-02T09:00:00Z", Confirmed: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "confirmed", created.Status)
}

func seedBooking(store *fakeStore, id string, startsAt time.Time, status models.BookingStatus) {
	store.bookings[id] = models.Booking{
		ID: id, TenantID: "t1", StaffID: "st1", CustomerID: "c1", ServiceID: "svc1",
		StartsAt: startsAt, EndsAt: startsAt.Add(30 * time.Minute), Status: status,
	}
}

func TestCancelBooking_RefundPolicy(t *testing.T) {
	store := newFakeStore()
	seedTenant(store)
	// Starts 3h after "now"; tenant threshold is 2h.
	seedBooking(store, "b1", testNow.Add(3*time.Hour), models.BookingConfirmed)
	seedBooking(store, "b2", testNow.Add(3*time.Hour+30*time.Minute), models.BookingConfirmed)

	svc := newTestService(store, newFakeLocker())

	res, err := svc.CancelBooking(context.Background(), "t1", "b1", nil)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", res.Booking.Status)
	assert.True(t, res.RefundEligible)
	assert.InDelta(t, 3.0, res.HoursUntilStart, 0.01)

	// Per-request override tightens the threshold past the actual lead time.
	override := 4.0
	res, err = svc.CancelBooking(context.Background(), "t1", "b2", &override)
	require.NoError(t, err)
	assert.False(t, res.RefundEligible)
}

func TestCancelBooking_Twice(t *testing.T) {
	store := newFakeStore()
	seedTenant(store)
	seedBooking(store, "b1", testNow.Add(3*time.Hour), models.BookingPending)

	svc := newTestService(store, newFakeLocker())

	_, err := svc.CancelBooking(context.Background(), "t1", "b1", nil)
	require.NoError(t, err)

	_, err = svc.CancelBooking(context.Background(), "t1", "b1", nil)
	assert.ErrorIs(t, err, response.ErrAlreadyCancelled)
}

func TestBookingTransitions(t *testing.T) {
	store := newFakeStore()
	seedTenant(store)
	seedBooking(store, "pending", testNow.Add(time.Hour), models.BookingPending)
	seedBooking(store, "confirmed", testNow.Add(2*time.Hour), models.BookingConfirmed)
	seedBooking(store, "done", testNow.Add(3*time.Hour), models.BookingCompleted)

	svc := newTestService(store, newFakeLocker())
	ctx := context.Background()

	// pending -> confirmed -> completed
	b, err := svc.ConfirmBooking(ctx, "t1", "pending")
	require.NoError(t, err)
	assert.Equal(t, "confirmed", b.Status)

	b, err = svc.CompleteBooking(ctx, "t1", "pending")
	require.NoError(t, err)
	assert.Equal(t, "completed", b.Status)

	// no_show only applies to confirmed bookings.
	_, err = svc.MarkNoShow(ctx, "t1", "done")
	assert.ErrorIs(t, err, response.ErrInvalidTransition)

	b, err = svc.MarkNoShow(ctx, "t1", "confirmed")
	require.NoError(t, err)
	assert.Equal(t, "no_show", b.Status)

	// Terminal states reject everything.
	_, err = svc.ConfirmBooking(ctx, "t1", "pending")
	assert.ErrorIs(t, err, response.ErrInvalidTransition)
	_, err = svc.CancelBooking(ctx, "t1", "done", nil)
	assert.ErrorIs(t, err, response.ErrInvalidTransition)

	_, err = svc.ConfirmBooking(ctx, "t1", "ghost")
	assert.ErrorIs(t, err, response.ErrNotFound)
}

func TestCreateScheduleRule_Validation(t *testing.T) {
	store := newFakeStore()
	seedTenant(store)
	svc := newTestService(store, newFakeLocker())
	ctx := context.Background()

	staffID := "st1"
	rule, err := svc.CreateScheduleRule(ctx, &api.ScheduleRuleRequest{
		TenantID: "t1", StaffID: &staffID, Weekday: 2,
		StartTime: "09:00", EndTime: "17:00", Active: true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rule.ID)

	_, err = svc.CreateScheduleRule(ctx, &api.ScheduleRuleRequest{
		TenantID: "t1", Weekday: 2, StartTime: "17:00", EndTime: "09:00", Active: true,
	})
	assert.ErrorIs(t, err, response.ErrValidation)

	ghost := "ghost"
	_, err = svc.CreateScheduleRule(ctx, &api.ScheduleRuleRequest{
		TenantID: "t1", StaffID: &ghost, Weekday: 2,
		StartTime: "09:00", EndTime: "17:00", Active: true,
	})
	assert.ErrorIs(t, err, response.ErrValidation)
}
