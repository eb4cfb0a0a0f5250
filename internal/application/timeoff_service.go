package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/workforce-calendar/internal/persistence"
	"github.com/example/workforce-calendar/internal/timeoff"
)

// TimeOffTrigger starts a follow-up calendar sync for a request.
type TimeOffTrigger interface {
	TimeOffChanged(ctx context.Context, requestID string)
}

// SubmitTimeOffInput carries the fields of a new request.
type SubmitTimeOffInput struct {
	BusinessID         string
	EmployeePositionID string
	Type               persistence.TimeOffType
	StartDate          time.Time
	EndDate            time.Time
	Reason             string
}

// DecisionInput carries the actor and note of a status change.
type DecisionInput struct {
	RequestID string
	ActorID   string
	Note      string
}

// TimeOffServiceDeps groups the collaborators of a TimeOffService.
type TimeOffServiceDeps struct {
	Requests    persistence.TimeOffRepository
	Directory   persistence.DirectoryRepository
	Transactor  persistence.Transactor
	Syncer      TimeOffSyncer
	Trigger     TimeOffTrigger
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// TimeOffService owns the time-off request lifecycle. Every committed change
// is followed by a calendar sync through the trigger.
type TimeOffService struct {
	requests    persistence.TimeOffRepository
	directory   persistence.DirectoryRepository
	tx          persistence.Transactor
	syncer      TimeOffSyncer
	trigger     TimeOffTrigger
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewTimeOffService wires dependencies for time-off operations.
func NewTimeOffService(deps TimeOffServiceDeps) *TimeOffService {
	if deps.IDGenerator == nil {
		deps.IDGenerator = func() string { return "" }
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Transactor == nil {
		deps.Transactor = noTransaction{}
	}
	return &TimeOffService{
		requests:    deps.Requests,
		directory:   deps.Directory,
		tx:          deps.Transactor,
		syncer:      deps.Syncer,
		trigger:     deps.Trigger,
		idGenerator: deps.IDGenerator,
		now:         deps.Now,
		logger:      defaultLogger(deps.Logger),
	}
}

// Submit validates and stores a new PENDING request. Requests overlapping any
// pending or approved request of the same employee are rejected regardless of
// type. The overlap check and the insert share one transaction.
func (s *TimeOffService) Submit(ctx context.Context, input SubmitTimeOffInput) (persistence.TimeOffRequest, error) {
	logger := serviceLogger(ctx, s.logger, "TimeOffService", "Submit",
		"business_id", input.BusinessID, "employee_position_id", input.EmployeePositionID)

	vErr := &ValidationError{}
	if strings.TrimSpace(input.BusinessID) == "" {
		vErr.add("businessId", "is required")
	}
	if strings.TrimSpace(input.EmployeePositionID) == "" {
		vErr.add("employeePositionId", "is required")
	}
	vErr.merge(timeoff.Validate(input.Type, input.StartDate, input.EndDate))
	if vErr.HasErrors() {
		logger.WarnContext(ctx, "time-off submission rejected", "error_kind", ErrorKind(vErr), "fields", vErr.FieldErrors)
		return persistence.TimeOffRequest{}, vErr
	}

	if err := s.ensurePosition(ctx, input); err != nil {
		return persistence.TimeOffRequest{}, err
	}

	start, end := timeoff.Date(input.StartDate), timeoff.Date(input.EndDate)
	now := s.now()
	request := persistence.TimeOffRequest{
		BusinessID:         input.BusinessID,
		EmployeePositionID: input.EmployeePositionID,
		Type:               input.Type,
		StartDate:          start,
		EndDate:            end,
		Reason:             strings.TrimSpace(input.Reason),
		Status:             persistence.TimeOffPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		existing, err := s.requests.ListTimeOffRequests(ctx, persistence.TimeOffFilter{
			EmployeePositionID: input.EmployeePositionID,
			Statuses:           timeoff.ActiveStatuses,
			StartsOnOrBefore:   &end,
			EndsOnOrAfter:      &start,
		})
		if err != nil {
			return mapRepoError(err)
		}
		if overlap := timeoff.FindOverlap(existing, start, end, ""); overlap != nil {
			return &ValidationError{FieldErrors: map[string]string{
				"startDate": fmt.Sprintf("overlaps request %s", overlap.ID),
			}}
		}
		request.ID = s.idGenerator()
		if err := s.requests.CreateTimeOffRequest(ctx, request); err != nil {
			logger.ErrorContext(ctx, "failed to create time-off request", "error", err, "error_kind", ErrorKind(err))
			return mapRepoError(err)
		}
		return nil
	})
	if err != nil {
		return persistence.TimeOffRequest{}, err
	}

	logger.InfoContext(ctx, "time-off request submitted", "request_id", request.ID, "days", timeoff.DaysRequested(start, end))
	s.trigger.TimeOffChanged(ctx, request.ID)
	return request, nil
}

func (s *TimeOffService) ensurePosition(ctx context.Context, input SubmitTimeOffInput) error {
	position, err := s.directory.GetEmployeePosition(ctx, input.EmployeePositionID)
	if errors.Is(err, persistence.ErrNotFound) {
		return &ValidationError{FieldErrors: map[string]string{"employeePositionId": "does not exist"}}
	}
	if err != nil {
		return mapRepoError(err)
	}
	switch {
	case position.BusinessID != input.BusinessID:
		return &ValidationError{FieldErrors: map[string]string{"employeePositionId": "belongs to another business"}}
	case !position.Active:
		return &ValidationError{FieldErrors: map[string]string{"employeePositionId": "is inactive"}}
	}
	return nil
}

// Get returns a request by id.
func (s *TimeOffService) Get(ctx context.Context, requestID string) (persistence.TimeOffRequest, error) {
	request, err := s.requests.GetTimeOffRequest(ctx, requestID)
	if err != nil {
		return persistence.TimeOffRequest{}, mapRepoError(err)
	}
	return request, nil
}

// Approve moves a pending request to APPROVED.
func (s *TimeOffService) Approve(ctx context.Context, input DecisionInput) (persistence.TimeOffRequest, error) {
	return s.decide(ctx, "Approve", input, persistence.TimeOffApproved)
}

// Deny moves a pending request to DENIED.
func (s *TimeOffService) Deny(ctx context.Context, input DecisionInput) (persistence.TimeOffRequest, error) {
	return s.decide(ctx, "Deny", input, persistence.TimeOffDenied)
}

// Cancel withdraws a pending request.
func (s *TimeOffService) Cancel(ctx context.Context, input DecisionInput) (persistence.TimeOffRequest, error) {
	return s.decide(ctx, "Cancel", input, persistence.TimeOffCanceled)
}

func (s *TimeOffService) decide(ctx context.Context, operation string, input DecisionInput, to persistence.TimeOffStatus) (persistence.TimeOffRequest, error) {
	logger := serviceLogger(ctx, s.logger, "TimeOffService", operation, "request_id", input.RequestID)

	if strings.TrimSpace(input.ActorID) == "" {
		return persistence.TimeOffRequest{}, &ValidationError{FieldErrors: map[string]string{"actorId": "is required"}}
	}

	request, err := s.requests.GetTimeOffRequest(ctx, input.RequestID)
	if err != nil {
		return persistence.TimeOffRequest{}, mapRepoError(err)
	}
	from := request.Status
	if !timeoff.CanTransition(from, to) {
		return persistence.TimeOffRequest{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
	}

	now := s.now()
	actor := input.ActorID
	request.Status = to
	request.DecidedByID = &actor
	request.DecidedAt = &now
	request.UpdatedAt = now
	if note := strings.TrimSpace(input.Note); note != "" {
		request.ManagerNote = note
	}

	if err := s.requests.UpdateTimeOffDecision(ctx, request, from); err != nil {
		if errors.Is(err, persistence.ErrConflict) {
			return persistence.TimeOffRequest{}, fmt.Errorf("%w: request already decided", ErrInvalidTransition)
		}
		logger.ErrorContext(ctx, "failed to record decision", "error", err, "error_kind", ErrorKind(err))
		return persistence.TimeOffRequest{}, mapRepoError(err)
	}

	logger.InfoContext(ctx, "time-off request decided", "from", from, "to", to, "actor_id", actor)
	s.trigger.TimeOffChanged(ctx, request.ID)
	return request, nil
}

// Resync projects the request synchronously and reports the result.
func (s *TimeOffService) Resync(ctx context.Context, requestID string) (TimeOffSyncResult, error) {
	return s.syncer.SyncTimeOffRequest(ctx, requestID)
}

// noTransaction runs fn directly for callers that wire no Transactor.
type noTransaction struct{}

func (noTransaction) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
