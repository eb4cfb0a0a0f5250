package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/workforce-calendar/internal/persistence"
)

// ScheduleTrigger starts follow-up calendar syncs for schedule changes.
type ScheduleTrigger interface {
	SchedulePublished(ctx context.Context, scheduleID, businessID string)
	ShiftChanged(ctx context.Context, shiftID, businessID string)
}

// CreateScheduleInput carries the fields of a new draft schedule.
type CreateScheduleInput struct {
	BusinessID string
	Name       string
	Timezone   string
	StartDate  time.Time
	EndDate    time.Time
}

// AddShiftInput carries the fields of a new shift.
type AddShiftInput struct {
	ScheduleID         string
	EmployeePositionID *string
	Title              string
	PositionTitle      string
	StartTime          time.Time
	EndTime            time.Time
	BreakMinutes       int
	Location           string
	Notes              string
}

// EditShiftInput lists the shift fields to change. Nil fields are kept.
// Unassign clears the employee and wins over EmployeePositionID.
type EditShiftInput struct {
	ShiftID            string
	EmployeePositionID *string
	Unassign           bool
	Title              *string
	PositionTitle      *string
	StartTime          *time.Time
	EndTime            *time.Time
	BreakMinutes       *int
	Location           *string
	Notes              *string
}

// ScheduleServiceDeps groups the collaborators of a ScheduleService.
type ScheduleServiceDeps struct {
	Schedules   persistence.ScheduleRepository
	Directory   persistence.DirectoryRepository
	Syncer      ShiftSyncer
	Trigger     ScheduleTrigger
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// ScheduleService owns the schedule and shift lifecycle.
type ScheduleService struct {
	schedules   persistence.ScheduleRepository
	directory   persistence.DirectoryRepository
	syncer      ShiftSyncer
	trigger     ScheduleTrigger
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewScheduleService wires dependencies for schedule operations.
func NewScheduleService(deps ScheduleServiceDeps) *ScheduleService {
	if deps.IDGenerator == nil {
		deps.IDGenerator = func() string { return "" }
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &ScheduleService{
		schedules:   deps.Schedules,
		directory:   deps.Directory,
		syncer:      deps.Syncer,
		trigger:     deps.Trigger,
		idGenerator: deps.IDGenerator,
		now:         deps.Now,
		logger:      defaultLogger(deps.Logger),
	}
}

// CreateSchedule stores a new DRAFT schedule.
func (s *ScheduleService) CreateSchedule(ctx context.Context, input CreateScheduleInput) (persistence.Schedule, error) {
	logger := serviceLogger(ctx, s.logger, "ScheduleService", "CreateSchedule", "business_id", input.BusinessID)

	vErr := &ValidationError{}
	if strings.TrimSpace(input.BusinessID) == "" {
		vErr.add("businessId", "is required")
	}
	if strings.TrimSpace(input.Name) == "" {
		vErr.add("name", "is required")
	}
	if input.Timezone != "" {
		if _, err := time.LoadLocation(input.Timezone); err != nil {
			vErr.add("timezone", "is not a valid IANA time zone")
		}
	}
	if input.StartDate.IsZero() || input.EndDate.IsZero() {
		vErr.add("startDate", "start and end dates are required")
	} else if input.EndDate.Before(input.StartDate) {
		vErr.add("endDate", "must not be before startDate")
	}
	if vErr.HasErrors() {
		return persistence.Schedule{}, vErr
	}

	if _, err := s.directory.GetBusiness(ctx, input.BusinessID); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return persistence.Schedule{}, &ValidationError{FieldErrors: map[string]string{"businessId": "does not exist"}}
		}
		return persistence.Schedule{}, mapRepoError(err)
	}

	now := s.now()
	schedule := persistence.Schedule{
		ID:         s.idGenerator(),
		BusinessID: input.BusinessID,
		Name:       strings.TrimSpace(input.Name),
		Status:     persistence.ScheduleDraft,
		Timezone:   input.Timezone,
		StartDate:  input.StartDate,
		EndDate:    input.EndDate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.schedules.CreateSchedule(ctx, schedule); err != nil {
		logger.ErrorContext(ctx, "failed to create schedule", "error", err, "error_kind", ErrorKind(err))
		return persistence.Schedule{}, mapRepoError(err)
	}
	logger.InfoContext(ctx, "schedule created", "schedule_id", schedule.ID)
	return schedule, nil
}

// AddShift stores a new shift on a schedule that is not archived.
func (s *ScheduleService) AddShift(ctx context.Context, input AddShiftInput) (persistence.ScheduleShift, error) {
	logger := serviceLogger(ctx, s.logger, "ScheduleService", "AddShift", "schedule_id", input.ScheduleID)

	schedule, err := s.schedules.GetSchedule(ctx, input.ScheduleID)
	if err != nil {
		return persistence.ScheduleShift{}, mapRepoError(err)
	}
	if schedule.Status == persistence.ScheduleArchived {
		return persistence.ScheduleShift{}, fmt.Errorf("%w: schedule is archived", ErrInvalidTransition)
	}

	vErr := &ValidationError{}
	validateShiftTimes(input.StartTime, input.EndTime, input.BreakMinutes, vErr)
	if vErr.HasErrors() {
		return persistence.ScheduleShift{}, vErr
	}
	if err := s.ensureAssignable(ctx, schedule.BusinessID, input.EmployeePositionID); err != nil {
		return persistence.ScheduleShift{}, err
	}

	now := s.now()
	shift := persistence.ScheduleShift{
		ID:                 s.idGenerator(),
		ScheduleID:         schedule.ID,
		BusinessID:         schedule.BusinessID,
		EmployeePositionID: input.EmployeePositionID,
		Title:              strings.TrimSpace(input.Title),
		PositionTitle:      strings.TrimSpace(input.PositionTitle),
		StartTime:          input.StartTime,
		EndTime:            input.EndTime,
		BreakMinutes:       input.BreakMinutes,
		Location:           strings.TrimSpace(input.Location),
		Notes:              strings.TrimSpace(input.Notes),
		Metadata:           map[string]any{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.schedules.CreateShift(ctx, shift); err != nil {
		logger.ErrorContext(ctx, "failed to create shift", "error", err, "error_kind", ErrorKind(err))
		return persistence.ScheduleShift{}, mapRepoError(err)
	}

	logger.InfoContext(ctx, "shift added", "shift_id", shift.ID)
	s.trigger.ShiftChanged(ctx, shift.ID, shift.BusinessID)
	return shift, nil
}

// Publish moves a DRAFT schedule to PUBLISHED and syncs all of its shifts.
func (s *ScheduleService) Publish(ctx context.Context, scheduleID string) (persistence.Schedule, error) {
	logger := serviceLogger(ctx, s.logger, "ScheduleService", "Publish", "schedule_id", scheduleID)

	schedule, err := s.schedules.GetSchedule(ctx, scheduleID)
	if err != nil {
		return persistence.Schedule{}, mapRepoError(err)
	}
	if schedule.Status != persistence.ScheduleDraft {
		return persistence.Schedule{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, schedule.Status, persistence.SchedulePublished)
	}

	now := s.now()
	if err := s.schedules.UpdateScheduleStatus(ctx, scheduleID, persistence.ScheduleDraft, persistence.SchedulePublished, &now, now); err != nil {
		if errors.Is(err, persistence.ErrConflict) {
			return persistence.Schedule{}, fmt.Errorf("%w: schedule already published", ErrInvalidTransition)
		}
		logger.ErrorContext(ctx, "failed to publish schedule", "error", err, "error_kind", ErrorKind(err))
		return persistence.Schedule{}, mapRepoError(err)
	}
	schedule.Status = persistence.SchedulePublished
	schedule.PublishedAt = &now
	schedule.UpdatedAt = now

	logger.InfoContext(ctx, "schedule published")
	s.trigger.SchedulePublished(ctx, schedule.ID, schedule.BusinessID)
	return schedule, nil
}

// EditShift applies the requested changes and re-syncs the shift.
func (s *ScheduleService) EditShift(ctx context.Context, input EditShiftInput) (persistence.ScheduleShift, error) {
	logger := serviceLogger(ctx, s.logger, "ScheduleService", "EditShift", "shift_id", input.ShiftID)

	shift, err := s.schedules.GetShift(ctx, input.ShiftID)
	if err != nil {
		return persistence.ScheduleShift{}, mapRepoError(err)
	}

	switch {
	case input.Unassign:
		shift.EmployeePositionID = nil
	case input.EmployeePositionID != nil:
		if err := s.ensureAssignable(ctx, shift.BusinessID, input.EmployeePositionID); err != nil {
			return persistence.ScheduleShift{}, err
		}
		positionID := *input.EmployeePositionID
		shift.EmployeePositionID = &positionID
	}
	if input.Title != nil {
		shift.Title = strings.TrimSpace(*input.Title)
	}
	if input.PositionTitle != nil {
		shift.PositionTitle = strings.TrimSpace(*input.PositionTitle)
	}
	if input.StartTime != nil {
		shift.StartTime = *input.StartTime
	}
	if input.EndTime != nil {
		shift.EndTime = *input.EndTime
	}
	if input.BreakMinutes != nil {
		shift.BreakMinutes = *input.BreakMinutes
	}
	if input.Location != nil {
		shift.Location = strings.TrimSpace(*input.Location)
	}
	if input.Notes != nil {
		shift.Notes = strings.TrimSpace(*input.Notes)
	}

	vErr := &ValidationError{}
	validateShiftTimes(shift.StartTime, shift.EndTime, shift.BreakMinutes, vErr)
	if vErr.HasErrors() {
		return persistence.ScheduleShift{}, vErr
	}

	shift.UpdatedAt = s.now()
	if err := s.schedules.UpdateShift(ctx, shift); err != nil {
		logger.ErrorContext(ctx, "failed to update shift", "error", err, "error_kind", ErrorKind(err))
		return persistence.ScheduleShift{}, mapRepoError(err)
	}

	logger.InfoContext(ctx, "shift updated", "assigned", shift.EmployeePositionID != nil)
	s.trigger.ShiftChanged(ctx, shift.ID, shift.BusinessID)
	return shift, nil
}

// ResyncSchedule re-projects every shift of a published schedule synchronously.
func (s *ScheduleService) ResyncSchedule(ctx context.Context, scheduleID string) (BatchResult, error) {
	schedule, err := s.schedules.GetSchedule(ctx, scheduleID)
	if err != nil {
		return BatchResult{ScheduleID: scheduleID}, mapRepoError(err)
	}
	return s.syncer.SyncPublishedSchedule(ctx, schedule.ID, schedule.BusinessID)
}

// ResyncShift re-projects one shift synchronously.
func (s *ScheduleService) ResyncShift(ctx context.Context, shiftID string) (ShiftSyncResult, error) {
	shift, err := s.schedules.GetShift(ctx, shiftID)
	if err != nil {
		return ShiftSyncResult{ShiftID: shiftID}, mapRepoError(err)
	}
	return s.syncer.SyncSingleShift(ctx, shift.ID, shift.BusinessID)
}

func (s *ScheduleService) ensureAssignable(ctx context.Context, businessID string, positionID *string) error {
	if positionID == nil {
		return nil
	}
	position, err := s.directory.GetEmployeePosition(ctx, *positionID)
	if errors.Is(err, persistence.ErrNotFound) {
		return &ValidationError{FieldErrors: map[string]string{"employeePositionId": "does not exist"}}
	}
	if err != nil {
		return mapRepoError(err)
	}
	switch {
	case position.BusinessID != businessID:
		return &ValidationError{FieldErrors: map[string]string{"employeePositionId": "belongs to another business"}}
	case !position.Active:
		return &ValidationError{FieldErrors: map[string]string{"employeePositionId": "is inactive"}}
	}
	return nil
}

func validateShiftTimes(start, end time.Time, breakMinutes int, vErr *ValidationError) {
	if start.IsZero() {
		vErr.add("startTime", "is required")
	}
	if end.IsZero() {
		vErr.add("endTime", "is required")
	}
	if !start.IsZero() && !end.IsZero() && !end.After(start) {
		vErr.add("endTime", "must be after startTime")
	}
	if breakMinutes < 0 {
		vErr.add("breakMinutes", "must not be negative")
	} else if !start.IsZero() && end.After(start) && time.Duration(breakMinutes)*time.Minute >= end.Sub(start) {
		vErr.add("breakMinutes", "must be shorter than the shift")
	}
}
