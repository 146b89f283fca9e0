package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agenda-service/api"
	"agenda-service/internal/availability"
	"agenda-service/internal/models"
	"agenda-service/internal/timegrid"
	"agenda-service/pkg/response"
)

// Management writes for the engine's inputs: schedule rules, blocks and
// recurring slots. Validation mirrors what the read path would fail closed
// on, so bad data is rejected at the door instead of silently closing days.

// #### schedule rules ####

func (s *Service) CreateScheduleRule(ctx context.Context, req *api.ScheduleRuleRequest) (*api.ScheduleRuleResponse, error) {
	const op = "service.CreateScheduleRule"

	if _, err := s.tenantContext(ctx, req.TenantID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.validateStaffRef(ctx, req.TenantID, req.StaffID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if req.Weekday < 0 || req.Weekday > 6 {
		return nil, fmt.Errorf("%s: weekday %d out of range: %w", op, req.Weekday, response.ErrValidation)
	}

	rule := &models.ScheduleRule{
		TenantID:   req.TenantID,
		StaffID:    req.StaffID,
		Weekday:    req.Weekday,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		BreakStart: req.BreakStart,
		BreakEnd:   req.BreakEnd,
		Active:     req.Active,
	}
	if err := availability.ValidateRule(*rule); err != nil {
		return nil, fmt.Errorf("%s: %v: %w", op, err, response.ErrValidation)
	}

	id, err := s.store.CreateScheduleRule(ctx, rule)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s.GetScheduleRule(ctx, req.TenantID, id)
}

func (s *Service) GetScheduleRule(ctx context.Context, tenantID, id string) (*api.ScheduleRuleResponse, error) {
	const op = "service.GetScheduleRule"

	rule, err := s.store.GetScheduleRule(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return scheduleRuleResponse(rule), nil
}

func (s *Service) ListScheduleRules(ctx context.Context, tenantID string) ([]*api.ScheduleRuleResponse, error) {
	const op = "service.ListScheduleRules"

	rules, err := s.store.ListScheduleRules(ctx, tenantID, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := make([]*api.ScheduleRuleResponse, 0, len(rules))
	for i := range rules {
		result = append(result, scheduleRuleResponse(&rules[i]))
	}

	return result, nil
}

func (s *Service) DeleteScheduleRule(ctx context.Context, tenantID, id string) error {
	const op = "service.DeleteScheduleRule"

	if err := s.store.DeleteScheduleRule(ctx, tenantID, id); err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// #### blocks ####

func (s *Service) CreateBlock(ctx context.Context, req *api.BlockRequest) (*api.BlockResponse, error) {
	const op = "service.CreateBlock"

	if _, err := s.tenantContext(ctx, req.TenantID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.validateStaffRef(ctx, req.TenantID, req.StaffID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	startsAt, err := time.Parse(time.RFC3339, req.StartsAt)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid starts_at: %w", op, response.ErrValidation)
	}
	endsAt, err := time.Parse(time.RFC3339, req.EndsAt)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid ends_at: %w", op, response.ErrValidation)
	}
	if !endsAt.After(startsAt) {
		return nil, fmt.Errorf("%s: ends_at must be after starts_at: %w", op, response.ErrValidation)
	}

	block := &models.Block{
		TenantID: req.TenantID,
		StaffID:  req.StaffID,
		StartsAt: startsAt,
		EndsAt:   endsAt,
		Reason:   req.Reason,
	}

	id, err := s.store.CreateBlock(ctx, block)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s.GetBlock(ctx, req.TenantID, id)
}

func (s *Service) GetBlock(ctx context.Context, tenantID, id string) (*api.BlockResponse, error) {
	const op = "service.GetBlock"

	block, err := s.store.GetBlock(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return blockResponse(block), nil
}

func (s *Service) ListBlocks(ctx context.Context, tenantID string, staffID *string, from, to time.Time) ([]*api.BlockResponse, error) {
	const op = "service.ListBlocks"

	blocks, err := s.store.ListBlocks(ctx, tenantID, staffID, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := make([]*api.BlockResponse, 0, len(blocks))
	for i := range blocks {
		result = append(result, blockResponse(&blocks[i]))
	}

	return result, nil
}

func (s *Service) DeleteBlock(ctx context.Context, tenantID, id string) error {
	const op = "service.DeleteBlock"

	if err := s.store.DeleteBlock(ctx, tenantID, id); err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// #### recurring slots ####

func (s *Service) CreateRecurringSlot(ctx context.Context, req *api.RecurringSlotRequest) (*api.RecurringSlotResponse, error) {
	const op = "service.CreateRecurringSlot"

	if _, err := s.tenantContext(ctx, req.TenantID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	staffID := req.StaffID
	if err := s.validateStaffRef(ctx, req.TenantID, &staffID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if req.Weekday < 0 || req.Weekday > 6 {
		return nil, fmt.Errorf("%s: weekday %d out of range: %w", op, req.Weekday, response.ErrValidation)
	}
	if req.DurationMinutes <= 0 {
		return nil, fmt.Errorf("%s: duration must be positive: %w", op, response.ErrValidation)
	}
	if _, err := timegrid.ParseClock(req.StartTime); err != nil {
		return nil, fmt.Errorf("%s: %v: %w", op, err, response.ErrValidation)
	}

	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid start_date: %w", op, response.ErrValidation)
	}

	slot := &models.RecurringSlot{
		TenantID:        req.TenantID,
		CustomerID:      req.CustomerID,
		StaffID:         req.StaffID,
		ServiceID:       req.ServiceID,
		Weekday:         req.Weekday,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
		StartDate:       startDate,
		Active:          req.Active,
	}

	id, err := s.store.CreateRecurringSlot(ctx, slot)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s.GetRecurringSlot(ctx, req.TenantID, id)
}

func (s *Service) GetRecurringSlot(ctx context.Context, tenantID, id string) (*api.RecurringSlotResponse, error) {
	const op = "service.GetRecurringSlot"

	slot, err := s.store.GetRecurringSlot(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return recurringSlotResponse(slot), nil
}

func (s *Service) ListRecurringSlots(ctx context.Context, tenantID string) ([]*api.RecurringSlotResponse, error) {
	const op = "service.ListRecurringSlots"

	slots, err := s.store.ListRecurringSlots(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := make([]*api.RecurringSlotResponse, 0, len(slots))
	for i := range slots {
		result = append(result, recurringSlotResponse(&slots[i]))
	}

	return result, nil
}

func (s *Service) DeleteRecurringSlot(ctx context.Context, tenantID, id string) error {
	const op = "service.DeleteRecurringSlot"

	if err := s.store.DeleteRecurringSlot(ctx, tenantID, id); err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Service) validateStaffRef(ctx context.Context, tenantID string, staffID *string) error {
	if staffID == nil {
		return nil
	}

	if _, err := s.store.GetStaff(ctx, tenantID, *staffID); err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return fmt.Errorf("unknown staff %q: %w", *staffID, response.ErrValidation)
		}
		return err
	}

	return nil
}

func scheduleRuleResponse(r *models.ScheduleRule) *api.ScheduleRuleResponse {
	return &api.ScheduleRuleResponse{
		ID:         r.ID,
		TenantID:   r.TenantID,
		StaffID:    r.StaffID,
		Weekday:    r.Weekday,
		StartTime:  r.StartTime,
		EndTime:    r.EndTime,
		BreakStart: r.BreakStart,
		BreakEnd:   r.BreakEnd,
		Active:     r.Active,
	}
}

func blockResponse(b *models.Block) *api.BlockResponse {
	return &api.BlockResponse{
		ID:       b.ID,
		TenantID: b.TenantID,
		StaffID:  b.StaffID,
		StartsAt: b.StartsAt,
		EndsAt:   b.EndsAt,
		Reason:   b.Reason,
	}
}

func recurringSlotResponse(rs *models.RecurringSlot) *api.RecurringSlotResponse {
	return &api.RecurringSlotResponse{
		ID:              rs.ID,
		TenantID:        rs.TenantID,
		CustomerID:      rs.CustomerID,
		StaffID:         rs.StaffID,
		ServiceID:       rs.ServiceID,
		Weekday:         rs.Weekday,
		StartTime:       rs.StartTime,
		DurationMinutes: rs.DurationMinutes,
		StartDate:       rs.StartDate.Format("2006-01-02"),
		Active:          rs.Active,
	}
}
