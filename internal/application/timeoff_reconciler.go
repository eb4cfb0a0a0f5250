package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/example/workforce-calendar/internal/metrics"
	"github.com/example/workforce-calendar/internal/persistence"
)

// TimeOffSyncResult reports the events a time-off request is projected onto.
type TimeOffSyncResult struct {
	RequestID       string
	ScheduleEventID string
	PersonalEventID string
	// Skipped is set when the employee could not be resolved.
	Skipped bool
}

// TimeOffReconcilerDeps groups the collaborators of a TimeOffReconciler.
type TimeOffReconcilerDeps struct {
	Requests    persistence.TimeOffRepository
	Directory   persistence.DirectoryRepository
	Transactor  persistence.Transactor
	Provisioner *Provisioner
	Projector   *Projector
	Now         func() time.Time
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// TimeOffReconciler projects a time-off request onto the business Schedule
// calendar and the employee's personal calendar.
type TimeOffReconciler struct {
	requests    persistence.TimeOffRepository
	directory   persistence.DirectoryRepository
	tx          persistence.Transactor
	provisioner *Provisioner
	projector   *Projector
	now         func() time.Time
	logger      *slog.Logger
	metrics     *metrics.Metrics
	// locks serializes syncs of the same request so each one reads the
	// back-references the previous one wrote.
	locks *keyedMutex
}

// NewTimeOffReconciler wires dependencies for time-off reconciliation.
func NewTimeOffReconciler(deps TimeOffReconcilerDeps) *TimeOffReconciler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &TimeOffReconciler{
		requests:    deps.Requests,
		directory:   deps.Directory,
		tx:          deps.Transactor,
		provisioner: deps.Provisioner,
		projector:   deps.Projector,
		now:         deps.Now,
		logger:      defaultLogger(deps.Logger),
		metrics:     deps.Metrics,
		locks:       newKeyedMutex(),
	}
}

// SyncTimeOffRequest fully re-projects the request. Repeated calls without an
// intervening change update the same two events. Concurrent calls for one
// request run one after another.
func (r *TimeOffReconciler) SyncTimeOffRequest(ctx context.Context, requestID string) (result TimeOffSyncResult, err error) {
	logger := serviceLogger(ctx, r.logger, "TimeOffReconciler", "SyncTimeOffRequest", "request_id", requestID)
	started := r.now()
	result.RequestID = requestID

	defer func() {
		outcome := "synced"
		switch {
		case err != nil:
			outcome = "failed"
			logger.ErrorContext(ctx, "time-off sync failed", "error", err, "error_kind", ErrorKind(err))
		case result.Skipped:
			outcome = "skipped"
		}
		r.metrics.ObserveReconciliation("time_off", outcome, r.now().Sub(started))
	}()

	unlock := r.locks.Lock(requestID)
	defer unlock()

	request, err := r.requests.GetTimeOffRequest(ctx, requestID)
	if err != nil {
		return result, mapRepoError(err)
	}

	user, ok, err := r.resolveEmployee(ctx, logger, request)
	if err != nil {
		return result, err
	}
	if !ok {
		result.Skipped = true
		return result, nil
	}

	business, err := r.directory.GetBusiness(ctx, request.BusinessID)
	if err != nil {
		return result, mapRepoError(err)
	}

	scheduleCalendarID, err := r.provisioner.EnsureBusinessScheduleCalendar(ctx, request.BusinessID)
	if err != nil {
		return result, err
	}
	if err := r.provisioner.EnsureMembership(ctx, scheduleCalendarID, request.BusinessID, []string{user.ID}); err != nil {
		return result, err
	}
	personalCalendarID, err := r.provisioner.EnsurePersonalCalendar(ctx, user.ID)
	if err != nil {
		return result, err
	}

	startAt, endAt := allDaySpan(request.StartDate, request.EndDate)
	_, tz := loadLocation(business.Timezone)
	base := EventDraft{
		Title:       timeOffTitle(employeeName(user), request.Type),
		Description: timeOffDescription(request),
		StartAt:     startAt,
		EndAt:       endAt,
		Status:      timeOffEventStatus(request.Status),
		AllDay:      true,
		Timezone:    tz,
		Attendee:    &Attendee{UserID: user.ID, Email: user.Email},
	}

	err = r.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		scheduleDraft := base
		scheduleDraft.ExistingEventID = request.ScheduleEventID
		scheduleDraft.CalendarID = scheduleCalendarID
		scheduleEventID, err := r.projector.UpsertEvent(ctx, scheduleDraft)
		if err != nil {
			return err
		}

		personalDraft := base
		personalDraft.ExistingEventID = request.PersonalEventID
		personalDraft.CalendarID = personalCalendarID
		personalDraft.PersonalProjection = true
		personalEventID, err := r.projector.UpsertEvent(ctx, personalDraft)
		if err != nil {
			return err
		}

		if err := r.requests.SetTimeOffEventLinks(ctx, request.ID, &scheduleEventID, &personalEventID, r.now()); err != nil {
			return mapRepoError(err)
		}
		result.ScheduleEventID = scheduleEventID
		result.PersonalEventID = personalEventID
		return nil
	})
	if err != nil {
		result.ScheduleEventID, result.PersonalEventID = "", ""
		return result, err
	}

	logger.InfoContext(ctx, "time-off request synced",
		"status", request.Status,
		"schedule_event_id", result.ScheduleEventID,
		"personal_event_id", result.PersonalEventID,
	)
	return result, nil
}

// resolveEmployee loads the request's employee. ok is false when the position
// or user no longer exists.
func (r *TimeOffReconciler) resolveEmployee(ctx context.Context, logger *slog.Logger, request persistence.TimeOffRequest) (persistence.User, bool, error) {
	position, err := r.directory.GetEmployeePosition(ctx, request.EmployeePositionID)
	if errors.Is(err, persistence.ErrNotFound) {
		logger.WarnContext(ctx, "employee position not found, skipping sync", "employee_position_id", request.EmployeePositionID)
		return persistence.User{}, false, nil
	}
	if err != nil {
		return persistence.User{}, false, err
	}

	user, err := r.directory.GetUser(ctx, position.UserID)
	if errors.Is(err, persistence.ErrNotFound) {
		logger.WarnContext(ctx, "employee user not found, skipping sync", "user_id", position.UserID)
		return persistence.User{}, false, nil
	}
	if err != nil {
		return persistence.User{}, false, err
	}
	return user, true, nil
}
