package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"agenda-service/api"
	"agenda-service/internal/availability"
	"agenda-service/internal/lock"
	"agenda-service/internal/models"
	"agenda-service/internal/recurrence"
	"agenda-service/internal/timegrid"
	"agenda-service/pkg/response"
	"agenda-service/pkg/sl"
)

const createLockTTL = 10 * time.Second

// Clock abstracts "now" so past-slot filtering and refund windows are
// deterministic under test.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func SystemClock() Clock { return systemClock{} }

type Service struct {
	store  Store
	locker lock.Locker
	clock  Clock
	log    *slog.Logger
}

func NewService(store Store, locker lock.Locker, clock Clock, log *slog.Logger) *Service {
	if clock == nil {
		clock = SystemClock()
	}
	return &Service{store: store, locker: locker, clock: clock, log: log}
}

type Store interface {
	// Tenant / catalog reads
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	GetService(ctx context.Context, tenantID, id string) (*models.Service, error)
	GetStaff(ctx context.Context, tenantID, id string) (*models.Staff, error)
	ListActiveStaff(ctx context.Context, tenantID string) ([]*models.Staff, error)

	// Schedule rules
	CreateScheduleRule(ctx context.Context, r *models.ScheduleRule) (string, error)
	GetScheduleRule(ctx context.Context, tenantID, id string) (*models.ScheduleRule, error)
	ListScheduleRules(ctx context.Context, tenantID string, weekday *int) ([]models.ScheduleRule, error)
	DeleteScheduleRule(ctx context.Context, tenantID, id string) error

	// Blocks
	CreateBlock(ctx context.Context, b *models.Block) (string, error)
	GetBlock(ctx context.Context, tenantID, id string) (*models.Block, error)
	ListBlocks(ctx context.Context, tenantID string, staffID *string, from, to time.Time) ([]models.Block, error)
	DeleteBlock(ctx context.Context, tenantID, id string) error

	// Recurring slots
	CreateRecurringSlot(ctx context.Context, rs *models.RecurringSlot) (string, error)
	GetRecurringSlot(ctx context.Context, tenantID, id string) (*models.RecurringSlot, error)
	ListRecurringSlots(ctx context.Context, tenantID string) ([]models.RecurringSlot, error)
	DeleteRecurringSlot(ctx context.Context, tenantID, id string) error

	// Bookings
	GetBooking(ctx context.Context, tenantID, id string) (*models.Booking, error)
	ListBookings(ctx context.Context, tenantID string, staffID *string, from, to time.Time, statuses []models.BookingStatus) ([]models.Booking, error)
	// CreateBooking is the atomic check-then-write: it must re-verify the
	// interval is free under serialization and insert in one operation,
	// returning response.ErrSlotConflict when the interval was taken.
	CreateBooking(ctx context.Context, b *models.Booking, buffer time.Duration) (string, error)
	UpdateBookingStatus(ctx context.Context, tenantID, id string, from, to models.BookingStatus) error
}

// tenantContext is the per-request view of tenant settings: resolved
// location plus the knobs the engine needs.
type tenantContext struct {
	tenant *models.Tenant
	loc    *time.Location
	step   time.Duration
	buffer time.Duration
}

func (s *Service) tenantContext(ctx context.Context, tenantID string) (*tenantContext, error) {
	tenant, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("unknown tenant %q: %w", tenantID, response.ErrValidation)
		}
		return nil, err
	}

	loc, err := time.LoadLocation(tenant.Timezone)
	if err != nil {
		return nil, fmt.Errorf("tenant %q has invalid timezone %q: %w", tenantID, tenant.Timezone, err)
	}

	step := time.Duration(tenant.SlotDurationMinutes) * time.Minute
	if step <= 0 {
		step = 15 * time.Minute
	}

	return &tenantContext{
		tenant: tenant,
		loc:    loc,
		step:   step,
		buffer: time.Duration(tenant.BufferMinutes) * time.Minute,
	}, nil
}

// #### availability ####

// GetAvailableSlots computes the ordered candidate slots for one calendar day.
// The computation is read-only: every call works from its own snapshot of
// rules, blocks, bookings and recurring slots, so identical inputs with no
// intervening writes yield identical output.
func (s *Service) GetAvailableSlots(ctx context.Context, tenantID, date, serviceID string, staffID *string) ([]api.SlotResponse, error) {
	const op = "service.GetAvailableSlots"

	tc, err := s.tenantContext(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	svc, err := s.store.GetService(ctx, tenantID, serviceID)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: unknown service %q: %w", op, serviceID, response.ErrValidation)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	day, err := time.ParseInLocation("2006-01-02", date, tc.loc)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid date %q: %w", op, date, response.ErrValidation)
	}

	staffList, err := s.candidateStaff(ctx, tenantID, staffID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(staffList) == 0 {
		// Zero active staff is an empty day, not an error.
		return []api.SlotResponse{}, nil
	}

	weekday := int(day.Weekday())
	rules, err := s.store.ListScheduleRules(ctx, tenantID, &weekday)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	dayStart, dayEnd := timegrid.DayBounds(day, tc.loc)

	var staffFilter *string
	if len(staffList) == 1 {
		staffFilter = &staffList[0].ID
	}

	// Fetch with buffer-dilated bounds so a booking just outside the day
	// whose buffer reaches in is still counted.
	bookings, err := s.store.ListBookings(ctx, tenantID, staffFilter,
		dayStart.Add(-tc.buffer), dayEnd.Add(tc.buffer), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	blocks, err := s.store.ListBlocks(ctx, tenantID, staffFilter, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	occupying, err := s.dayOccupancy(ctx, tenantID, bookings, day, tc.loc)
	if err != nil {
		// Recurring data we cannot interpret: fail closed, never offer a
		// slot a standing reservation may hold.
		s.log.Error("Recurring expansion failed, closing day", sl.Err(err),
			slog.String("tenant_id", tenantID), slog.String("date", date))
		return []api.SlotResponse{}, nil
	}

	duration := time.Duration(svc.DurationMinutes) * time.Minute
	now := s.clock.Now().In(tc.loc)

	var slots []models.Slot
	for _, st := range staffList {
		sched, err := availability.ResolveWindows(rules, st.ID, weekday)
		if err != nil {
			// Fail closed on inconsistent schedule data for this staff
			// member; the rest of the roster still resolves.
			s.log.Error("Invalid schedule rule, closing day for staff", sl.Err(err),
				slog.String("tenant_id", tenantID), slog.String("staff_id", st.ID))
			continue
		}
		if sched.Closed() {
			continue
		}

		idx := availability.BuildIndex(st.ID, occupying, blocks, tc.buffer)
		slots = append(slots, availability.GenerateSlots(availability.GenerateParams{
			StaffID:         st.ID,
			Date:            day,
			Location:        tc.loc,
			ServiceDuration: duration,
			Step:            tc.step,
			Now:             now,
			Schedule:        sched,
			Occupancy:       idx,
		})...)
	}

	if staffID == nil {
		slots = availability.MergeByStart(slots)
	} else {
		sort.Slice(slots, func(i, j int) bool { return slots[i].StartsAt.Before(slots[j].StartsAt) })
	}

	result := make([]api.SlotResponse, 0, len(slots))
	for _, slot := range slots {
		result = append(result, api.SlotResponse{
			StaffID:        slot.StaffID,
			StartsAt:       slot.StartsAt,
			EndsAt:         slot.EndsAt,
			Available:      slot.Available,
			ConflictReason: slot.ConflictReason,
		})
	}

	return result, nil
}

func (s *Service) candidateStaff(ctx context.Context, tenantID string, staffID *string) ([]*models.Staff, error) {
	if staffID == nil {
		return s.store.ListActiveStaff(ctx, tenantID)
	}

	st, err := s.store.GetStaff(ctx, tenantID, *staffID)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("unknown staff %q: %w", *staffID, response.ErrValidation)
		}
		return nil, err
	}
	if !st.IsActive {
		return nil, nil
	}

	return []*models.Staff{st}, nil
}

// dayOccupancy returns the real bookings plus the surviving virtual
// occurrences of recurring slots for the given day.
func (s *Service) dayOccupancy(ctx context.Context, tenantID string, bookings []models.Booking, day time.Time, loc *time.Location) ([]models.Booking, error) {
	recurring, err := s.store.ListRecurringSlots(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	occurrences, err := recurrence.Expand(recurring, bookings, day, day, loc)
	if err != nil {
		return nil, err
	}

	occupying := bookings
	for _, occ := range occurrences {
		occupying = append(occupying, occ.Booking)
	}

	return occupying, nil
}

// #### bookings ####

// CreateBooking re-validates the target interval under serialization before
// inserting. The redis lock narrows the race window per staff+day; the
// storage layer's transactional re-check is the actual guarantee: two
// concurrent creates for overlapping intervals end as one booking and one
// ErrSlotConflict.
func (s *Service) CreateBooking(ctx context.Context, req *api.BookingRequest) (*api.BookingResponse, error) {
	const op = "service.CreateBooking"

	tc, err := s.tenantContext(ctx, req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	svc, err := s.store.GetService(ctx, req.TenantID, req.ServiceID)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: unknown service %q: %w", op, req.ServiceID, response.ErrValidation)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	staff, err := s.store.GetStaff(ctx, req.TenantID, req.StaffID)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: unknown staff %q: %w", op, req.StaffID, response.ErrValidation)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !staff.IsActive {
		return nil, fmt.Errorf("%s: staff %q is inactive: %w", op, req.StaffID, response.ErrValidation)
	}

	startsAt, err := time.Parse(time.RFC3339, req.StartsAt)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid starts_at: %w", op, response.ErrValidation)
	}
	startsAt = startsAt.In(tc.loc)
	endsAt := startsAt.Add(time.Duration(svc.DurationMinutes) * time.Minute)

	lockKey := lock.BookingKey(req.TenantID, req.StaffID, startsAt)
	locked, err := s.locker.Lock(ctx, lockKey, createLockTTL)
	if err != nil {
		return nil, fmt.Errorf("%s: lock error: %w", op, err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", op, response.ErrLocked)
	}
	defer func() {
		_ = s.locker.Unlock(ctx, lockKey)
	}()

	// Recurring reservations are not persisted as bookings, so the storage
	// re-check cannot see them. Check their virtual occupancy here, before
	// the write.
	if err := s.checkRecurringConflict(ctx, req.TenantID, req.StaffID, startsAt, endsAt, tc); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	status := models.BookingPending
	if req.Confirmed {
		status = models.BookingConfirmed
	}

	booking := &models.Booking{
		TenantID:   req.TenantID,
		StaffID:    req.StaffID,
		CustomerID: req.CustomerID,
		ServiceID:  req.ServiceID,
		StartsAt:   startsAt,
		EndsAt:     endsAt,
		Status:     status,
	}

	id, err := s.store.CreateBooking(ctx, booking, tc.buffer)
	if err != nil {
		if errors.Is(err, response.ErrSlotConflict) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrSlotConflict)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s.GetBooking(ctx, req.TenantID, id)
}

func (s *Service) checkRecurringConflict(ctx context.Context, tenantID, staffID string, startsAt, endsAt time.Time, tc *tenantContext) error {
	dayStart, dayEnd := timegrid.DayBounds(startsAt, tc.loc)

	real, err := s.store.ListBookings(ctx, tenantID, &staffID,
		dayStart.Add(-tc.buffer), dayEnd.Add(tc.buffer), nil)
	if err != nil {
		return err
	}

	recurring, err := s.store.ListRecurringSlots(ctx, tenantID)
	if err != nil {
		return err
	}

	occurrences, err := recurrence.Expand(recurring, real, startsAt, startsAt, tc.loc)
	if err != nil {
		return err
	}

	candidate := availability.Interval{Start: startsAt, End: endsAt}
	for _, occ := range occurrences {
		if occ.Booking.StaffID != staffID {
			continue
		}
		held := availability.Interval{Start: occ.Booking.StartsAt, End: occ.Booking.EndsAt}.Dilate(tc.buffer)
		if candidate.Overlaps(held) {
			return response.ErrSlotConflict
		}
	}

	return nil
}

func (s *Service) GetBooking(ctx context.Context, tenantID, id string) (*api.BookingResponse, error) {
	const op = "service.GetBooking"

	booking, err := s.store.GetBooking(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return bookingResponse(booking), nil
}

func (s *Service) ListBookings(ctx context.Context, tenantID string, staffID *string, from, to time.Time) ([]*api.BookingResponse, error) {
	const op = "service.ListBookings"

	bookings, err := s.store.ListBookings(ctx, tenantID, staffID, from, to, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := make([]*api.BookingResponse, 0, len(bookings))
	for _, b := range bookings {
		result = append(result, bookingResponse(&b))
	}

	return result, nil
}

// CancelBooking transitions to cancelled and reports whether the associated
// payment is refund-eligible under the tenant's threshold. Cancelling twice
// is a hard failure so a double refund can never be triggered.
func (s *Service) CancelBooking(ctx context.Context, tenantID, bookingID string, overrideMinHours *float64) (*api.CancelResponse, error) {
	const op = "service.CancelBooking"

	booking, err := s.transition(ctx, tenantID, bookingID, models.BookingCancelled)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	minHours := overrideMinHours
	if minHours == nil {
		tenant, err := s.store.GetTenant(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		minHours = &tenant.CancellationMinHours
	}

	hoursUntilStart := booking.StartsAt.Sub(s.clock.Now()).Hours()

	return &api.CancelResponse{
		Booking:         *bookingResponse(booking),
		RefundEligible:  hoursUntilStart >= *minHours,
		HoursUntilStart: hoursUntilStart,
	}, nil
}

// ConfirmBooking moves pending -> confirmed.
func (s *Service) ConfirmBooking(ctx context.Context, tenantID, bookingID string) (*api.BookingResponse, error) {
	const op = "service.ConfirmBooking"

	booking, err := s.transition(ctx, tenantID, bookingID, models.BookingConfirmed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return bookingResponse(booking), nil
}

// CompleteBooking moves confirmed -> completed.
func (s *Service) CompleteBooking(ctx context.Context, tenantID, bookingID string) (*api.BookingResponse, error) {
	const op = "service.CompleteBooking"

	booking, err := s.transition(ctx, tenantID, bookingID, models.BookingCompleted)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return bookingResponse(booking), nil
}

// MarkNoShow moves confirmed -> no_show. The slot is not freed: the
// historical record stays occupied.
func (s *Service) MarkNoShow(ctx context.Context, tenantID, bookingID string) (*api.BookingResponse, error) {
	const op = "service.MarkNoShow"

	booking, err := s.transition(ctx, tenantID, bookingID, models.BookingNoShow)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return bookingResponse(booking), nil
}

// transition enforces the booking state machine via a conditional single-row
// update. A conditional miss means another transition won the race; re-read
// and try again from the fresh status so the failure reported is the real one.
func (s *Service) transition(ctx context.Context, tenantID, bookingID string, to models.BookingStatus) (*models.Booking, error) {
	const maxAttempts = 3

	for attempt := 0; attempt < maxAttempts; attempt++ {
		booking, err := s.store.GetBooking(ctx, tenantID, bookingID)
		if err != nil {
			return nil, err
		}

		if err := checkTransition(booking.Status, to); err != nil {
			return nil, err
		}

		err = s.store.UpdateBookingStatus(ctx, tenantID, bookingID, booking.Status, to)
		if err == nil {
			booking.Status = to
			return booking, nil
		}
		if !errors.Is(err, response.ErrNotFound) {
			return nil, err
		}
	}

	return nil, response.ErrInvalidTransition
}

func checkTransition(from, to models.BookingStatus) error {
	if to == models.BookingCancelled && from == models.BookingCancelled {
		return response.ErrAlreadyCancelled
	}
	if !models.CanTransition(from, to) {
		return fmt.Errorf("%s -> %s: %w", from, to, response.ErrInvalidTransition)
	}
	return nil
}

func bookingResponse(b *models.Booking) *api.BookingResponse {
	return &api.BookingResponse{
		ID:         b.ID,
		TenantID:   b.TenantID,
		StaffID:    b.StaffID,
		CustomerID: b.CustomerID,
		ServiceID:  b.ServiceID,
		StartsAt:   b.StartsAt,
		EndsAt:     b.EndsAt,
		Status:     string(b.Status),
	}
}
