package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"agenda-service/internal/models"
	"agenda-service/pkg/response"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type Storage struct {
	db *sql.DB
}

func New(storagePath string) (*Storage, error) {
	const op = "storage.postgres.New"

	db, err := sql.Open("postgres", storagePath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

// #### tenants / catalog ####

func (s *Storage) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	const op = "storage.postgres.GetTenant"

	var t models.Tenant
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, timezone, slot_duration_minutes, buffer_minutes, cancellation_min_hours
		FROM tenants WHERE id=$1`, id,
	).Scan(&t.ID, &t.Name, &t.Timezone, &t.SlotDurationMinutes, &t.BufferMinutes, &t.CancellationMinHours)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &t, nil
}

func (s *Storage) GetService(ctx context.Context, tenantID, id string) (*models.Service, error) {
	const op = "storage.postgres.GetService"

	var svc models.Service
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, duration_minutes
		FROM services WHERE tenant_id=$1 AND id=$2`, tenantID, id,
	).Scan(&svc.ID, &svc.TenantID, &svc.Name, &svc.DurationMinutes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &svc, nil
}

func (s *Storage) GetStaff(ctx context.Context, tenantID, id string) (*models.Staff, error) {
	const op = "storage.postgres.GetStaff"

	var st models.Staff
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, is_active
		FROM staff WHERE tenant_id=$1 AND id=$2`, tenantID, id,
	).Scan(&st.ID, &st.TenantID, &st.Name, &st.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &st, nil
}

func (s *Storage) ListActiveStaff(ctx context.Context, tenantID string) ([]*models.Staff, error) {
	const op = "storage.postgres.ListActiveStaff"

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, is_active
		FROM staff WHERE tenant_id=$1 AND is_active=true
		ORDER BY name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var result []*models.Staff
	for rows.Next() {
		var st models.Staff
		if err := rows.Scan(&st.ID, &st.TenantID, &st.Name, &st.IsActive); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &st)
	}

	return result, rows.Err()
}

// #### schedule rules ####

func (s *Storage) CreateScheduleRule(ctx context.Context, r *models.ScheduleRule) (string, error) {
	const op = "storage.postgres.CreateScheduleRule"

	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedule_rules (id, tenant_id, staff_id, weekday, start_time, end_time, break_start, break_end, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, r.TenantID, r.StaffID, r.Weekday, r.StartTime, r.EndTime, r.BreakStart, r.BreakEnd, r.Active)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func (s *Storage) GetScheduleRule(ctx context.Context, tenantID, id string) (*models.ScheduleRule, error) {
	const op = "storage.postgres.GetScheduleRule"

	var r models.ScheduleRule
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, staff_id, weekday, start_time, end_time, break_start, break_end, active
		FROM schedule_rules WHERE tenant_id=$1 AND id=$2`, tenantID, id,
	).Scan(&r.ID, &r.TenantID, &r.StaffID, &r.Weekday, &r.StartTime, &r.EndTime, &r.BreakStart, &r.BreakEnd, &r.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &r, nil
}

func (s *Storage) ListScheduleRules(ctx context.Context, tenantID string, weekday *int) ([]models.ScheduleRule, error) {
	const op = "storage.postgres.ListScheduleRules"

	query := `
		SELECT id, tenant_id, staff_id, weekday, start_time, end_time, break_start, break_end, active
		FROM schedule_rules WHERE tenant_id=$1`
	args := []any{tenantID}
	if weekday != nil {
		query += ` AND weekday=$2`
		args = append(args, *weekday)
	}
	query += ` ORDER BY weekday, start_time`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var result []models.ScheduleRule
	for rows.Next() {
		var r models.ScheduleRule
		if err := rows.Scan(&r.ID, &r.TenantID, &r.StaffID, &r.Weekday, &r.StartTime, &r.EndTime, &r.BreakStart, &r.BreakEnd, &r.Active); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, r)
	}

	return result, rows.Err()
}

func (s *Storage) DeleteScheduleRule(ctx context.Context, tenantID, id string) error {
	const op = "storage.postgres.DeleteScheduleRule"

	res, err := s.db.ExecContext(ctx, `DELETE FROM schedule_rules WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}

	return nil
}

// #### blocks ####

func (s *Storage) CreateBlock(ctx context.Context, b *models.Block) (string, error) {
	const op = "storage.postgres.CreateBlock"

	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blocks (id, tenant_id, staff_id, starts_at, ends_at, reason)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, b.TenantID, b.StaffID, b.StartsAt, b.EndsAt, b.Reason)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func (s *Storage) GetBlock(ctx context.Context, tenantID, id string) (*models.Block, error) {
	const op = "storage.postgres.GetBlock"

	var b models.Block
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, staff_id, starts_at, ends_at, reason
		FROM blocks WHERE tenant_id=$1 AND id=$2`, tenantID, id,
	).Scan(&b.ID, &b.TenantID, &b.StaffID, &b.StartsAt, &b.EndsAt, &b.Reason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &b, nil
}

// ListBlocks returns blocks overlapping [from, to): staff-specific rows for
// staffID plus tenant-wide rows (staff_id IS NULL). With staffID nil, all
// blocks in range are returned.
func (s *Storage) ListBlocks(ctx context.Context, tenantID string, staffID *string, from, to time.Time) ([]models.Block, error) {
	const op = "storage.postgres.ListBlocks"

	query := `
		SELECT id, tenant_id, staff_id, starts_at, ends_at, reason
		FROM blocks
		WHERE tenant_id=$1 AND starts_at < $2 AND ends_at > $3`
	args := []any{tenantID, to, from}
	if staffID != nil {
		query += ` AND (staff_id=$4 OR staff_id IS NULL)`
		args = append(args, *staffID)
	}
	query += ` ORDER BY starts_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var result []models.Block
	for rows.Next() {
		var b models.Block
		if err := rows.Scan(&b.ID, &b.TenantID, &b.StaffID, &b.StartsAt, &b.EndsAt, &b.Reason); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, b)
	}

	return result, rows.Err()
}

func (s *Storage) DeleteBlock(ctx context.Context, tenantID, id string) error {
	const op = "storage.postgres.DeleteBlock"

	res, err := s.db.ExecContext(ctx, `DELETE FROM blocks WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}

	return nil
}

// #### recurring slots ####

func (s *Storage) CreateRecurringSlot(ctx context.Context, rs *models.RecurringSlot) (string, error) {
	const op = "storage.postgres.CreateRecurringSlot"

	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recurring_slots (id, tenant_id, customer_id, staff_id, service_id, weekday, start_time, duration_minutes, start_date, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, rs.TenantID, rs.CustomerID, rs.StaffID, rs.ServiceID, rs.Weekday, rs.StartTime, rs.DurationMinutes, rs.StartDate, rs.Active)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func (s *Storage) GetRecurringSlot(ctx context.Context, tenantID, id string) (*models.RecurringSlot, error) {
	const op = "storage.postgres.GetRecurringSlot"

	var rs models.RecurringSlot
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, customer_id, staff_id, service_id, weekday, start_time, duration_minutes, start_date, active
		FROM recurring_slots WHERE tenant_id=$1 AND id=$2`, tenantID, id,
	).Scan(&rs.ID, &rs.TenantID, &rs.CustomerID, &rs.StaffID, &rs.ServiceID, &rs.Weekday, &rs.StartTime, &rs.DurationMinutes, &rs.StartDate, &rs.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &rs, nil
}

func (s *Storage) ListRecurringSlots(ctx context.Context, tenantID string) ([]models.RecurringSlot, error) {
	const op = "storage.postgres.ListRecurringSlots"

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, customer_id, staff_id, service_id, weekday, start_time, duration_minutes, start_date, active
		FROM recurring_slots WHERE tenant_id=$1 AND active=true
		ORDER BY weekday, start_time`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var result []models.RecurringSlot
	for rows.Next() {
		var rs models.RecurringSlot
		if err := rows.Scan(&rs.ID, &rs.TenantID, &rs.CustomerID, &rs.StaffID, &rs.ServiceID, &rs.Weekday, &rs.StartTime, &rs.DurationMinutes, &rs.StartDate, &rs.Active); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, rs)
	}

	return result, rows.Err()
}

func (s *Storage) DeleteRecurringSlot(ctx context.Context, tenantID, id string) error {
	const op = "storage.postgres.DeleteRecurringSlot"

	res, err := s.db.ExecContext(ctx, `DELETE FROM recurring_slots WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}

	return nil
}

// #### bookings ####

func (s *Storage) GetBooking(ctx context.Context, tenantID, id string) (*models.Booking, error) {
	const op = "storage.postgres.GetBooking"

	var b models.Booking
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, staff_id, customer_id, service_id, starts_at, ends_at, status
		FROM bookings WHERE tenant_id=$1 AND id=$2`, tenantID, id,
	).Scan(&b.ID, &b.TenantID, &b.StaffID, &b.CustomerID, &b.ServiceID, &b.StartsAt, &b.EndsAt, &b.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &b, nil
}

// ListBookings returns bookings overlapping [from, to), optionally filtered
// by staff and status set.
func (s *Storage) ListBookings(ctx context.Context, tenantID string, staffID *string, from, to time.Time, statuses []models.BookingStatus) ([]models.Booking, error) {
	const op = "storage.postgres.ListBookings"

	query := `
		SELECT id, tenant_id, staff_id, customer_id, service_id, starts_at, ends_at, status
		FROM bookings
		WHERE tenant_id=$1 AND starts_at < $2 AND ends_at > $3`
	args := []any{tenantID, to, from}
	if staffID != nil {
		args = append(args, *staffID)
		query += fmt.Sprintf(` AND staff_id=$%d`, len(args))
	}
	if len(statuses) > 0 {
		names := make([]string, 0, len(statuses))
		for _, st := range statuses {
			names = append(names, string(st))
		}
		args = append(args, pq.Array(names))
		query += fmt.Sprintf(` AND status = ANY($%d)`, len(args))
	}
	query += ` ORDER BY starts_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var result []models.Booking
	for rows.Next() {
		var b models.Booking
		if err := rows.Scan(&b.ID, &b.TenantID, &b.StaffID, &b.CustomerID, &b.ServiceID, &b.StartsAt, &b.EndsAt, &b.Status); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, b)
	}

	return result, rows.Err()
}

// CreateBooking inserts a booking only if its interval is still free for the
// staff member: inside one transaction it locks the overlapping candidate
// rows, re-runs the half-open overlap test with the buffer applied to
// bookings (blocks are checked undilated), and inserts. The schema's
// exclusion constraint on (staff_id, interval) is the commit-time backstop;
// both paths surface as ErrSlotConflict.
func (s *Storage) CreateBooking(ctx context.Context, b *models.Booking, buffer time.Duration) (string, error) {
	const op = "storage.postgres.CreateBooking"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var conflicts int
	err = tx.QueryRowContext(ctx, `
		SELECT count(*) FROM (
			SELECT id FROM bookings
			WHERE tenant_id=$1 AND staff_id=$2
			  AND status IN ('pending', 'confirmed', 'completed')
			  AND starts_at < $3 AND ends_at > $4
			FOR UPDATE
		) locked`,
		b.TenantID, b.StaffID, b.EndsAt.Add(buffer), b.StartsAt.Add(-buffer),
	).Scan(&conflicts)
	if err != nil {
		return "", fmt.Errorf("%s: lock overlapping: %w", op, err)
	}
	if conflicts > 0 {
		return "", fmt.Errorf("%s: %w", op, response.ErrSlotConflict)
	}

	var blocked int
	err = tx.QueryRowContext(ctx, `
		SELECT count(*) FROM blocks
		WHERE tenant_id=$1 AND (staff_id=$2 OR staff_id IS NULL)
		  AND starts_at < $3 AND ends_at > $4`,
		b.TenantID, b.StaffID, b.EndsAt, b.StartsAt,
	).Scan(&blocked)
	if err != nil {
		return "", fmt.Errorf("%s: check blocks: %w", op, err)
	}
	if blocked > 0 {
		return "", fmt.Errorf("%s: %w", op, response.ErrSlotConflict)
	}

	id := uuid.NewString()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO bookings (id, tenant_id, staff_id, customer_id, service_id, starts_at, ends_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, b.TenantID, b.StaffID, b.CustomerID, b.ServiceID, b.StartsAt, b.EndsAt, b.Status)
	if err != nil {
		if isExclusionViolation(err) {
			return "", fmt.Errorf("%s: %w", op, response.ErrSlotConflict)
		}
		return "", fmt.Errorf("%s: insert: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		if isExclusionViolation(err) {
			return "", fmt.Errorf("%s: %w", op, response.ErrSlotConflict)
		}
		return "", fmt.Errorf("%s: commit: %w", op, err)
	}

	return id, nil
}

// UpdateBookingStatus performs a single-row conditional transition. Zero rows
// affected means the booking is gone or no longer in the expected status; the
// caller re-reads to tell those apart.
func (s *Storage) UpdateBookingStatus(ctx context.Context, tenantID, id string, from, to models.BookingStatus) error {
	const op = "storage.postgres.UpdateBookingStatus"

	res, err := s.db.ExecContext(ctx, `
		UPDATE bookings SET status=$1
		WHERE tenant_id=$2 AND id=$3 AND status=$4`,
		to, tenantID, id, from)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}

	return nil
}

func isExclusionViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23P01" || pqErr.Code == "23505"
	}
	return false
}
