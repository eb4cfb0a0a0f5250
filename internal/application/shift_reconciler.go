package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/workforce-calendar/internal/metrics"
	"github.com/example/workforce-calendar/internal/persistence"
)

// ShiftSyncResult reports the outcome of reconciling one shift.
type ShiftSyncResult struct {
	ShiftID         string
	ScheduleEventID string
	// PersonalEventID is empty for open shifts.
	PersonalEventID string
	// StaleDeletion is set when a prior personal event had to be removed.
	StaleDeletion *StaleDeletion
	// Skipped is set when the parent schedule is not published.
	Skipped bool
}

// BatchResult collects the per-shift outcomes of a schedule sync. Failures of
// individual shifts are recorded here and never abort their siblings.
type BatchResult struct {
	ScheduleID string
	Synced     []ShiftSyncResult
	Failures   []*ShiftSyncError
	// Skipped lists shifts left untouched because the caller's context ended.
	Skipped []string
}

// ShiftReconcilerDeps groups the collaborators of a ShiftReconciler.
type ShiftReconcilerDeps struct {
	Schedules   persistence.ScheduleRepository
	Events      persistence.EventRepository
	Directory   persistence.DirectoryRepository
	Transactor  persistence.Transactor
	Provisioner *Provisioner
	Projector   *Projector
	Concurrency int
	Now         func() time.Time
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// ShiftReconciler projects published shifts onto the Schedule calendar and
// the assignees' personal calendars.
type ShiftReconciler struct {
	schedules   persistence.ScheduleRepository
	events      persistence.EventRepository
	directory   persistence.DirectoryRepository
	tx          persistence.Transactor
	provisioner *Provisioner
	projector   *Projector
	concurrency int
	now         func() time.Time
	logger      *slog.Logger
	metrics     *metrics.Metrics
	// locks serializes syncs of the same shift; the metadata they merge is
	// read under the lock.
	locks *keyedMutex
}

// NewShiftReconciler wires dependencies for shift reconciliation.
func NewShiftReconciler(deps ShiftReconcilerDeps) *ShiftReconciler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Concurrency < 1 {
		deps.Concurrency = 1
	}
	return &ShiftReconciler{
		schedules:   deps.Schedules,
		events:      deps.Events,
		directory:   deps.Directory,
		tx:          deps.Transactor,
		provisioner: deps.Provisioner,
		projector:   deps.Projector,
		concurrency: deps.Concurrency,
		now:         deps.Now,
		logger:      defaultLogger(deps.Logger),
		metrics:     deps.Metrics,
		locks:       newKeyedMutex(),
	}
}

// syncTarget is the per-schedule context shared by every shift of a run.
type syncTarget struct {
	schedule   persistence.Schedule
	business   persistence.Business
	calendarID string
	location   *time.Location
	timezone   string
}

// SyncPublishedSchedule reconciles every shift of a published schedule. An
// error is returned only when the run cannot start; per-shift failures are
// reported in the result. businessID must match the schedule's business when
// set.
func (r *ShiftReconciler) SyncPublishedSchedule(ctx context.Context, scheduleID, businessID string) (BatchResult, error) {
	logger := serviceLogger(ctx, r.logger, "ShiftReconciler", "SyncPublishedSchedule", "schedule_id", scheduleID, "business_id", businessID)
	result := BatchResult{ScheduleID: scheduleID}

	schedule, err := r.schedules.GetSchedule(ctx, scheduleID)
	if err != nil {
		return result, mapRepoError(err)
	}
	if err := checkBusiness("schedule", scheduleID, schedule.BusinessID, businessID); err != nil {
		return result, err
	}
	if schedule.Status != persistence.SchedulePublished {
		return result, ErrScheduleNotPublished
	}

	target, err := r.prepare(ctx, schedule)
	if err != nil {
		logger.ErrorContext(ctx, "schedule sync could not start", "error", err, "error_kind", ErrorKind(err))
		return result, err
	}

	shifts, err := r.schedules.ListShifts(ctx, scheduleID)
	if err != nil {
		return result, mapRepoError(err)
	}

	// Each goroutine writes only its own index.
	var (
		outcomes = make([]*ShiftSyncResult, len(shifts))
		failures = make([]*ShiftSyncError, len(shifts))
		skipped  = make([]bool, len(shifts))
	)
	g := new(errgroup.Group)
	g.SetLimit(r.concurrency)
	for i, shift := range shifts {
		if ctx.Err() != nil {
			skipped[i] = true
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				skipped[i] = true
				return nil
			}
			outcome, err := r.syncShift(ctx, target, shift)
			if err != nil {
				failures[i] = &ShiftSyncError{ShiftID: shift.ID, Err: err}
				return nil
			}
			outcomes[i] = &outcome
			return nil
		})
	}
	_ = g.Wait()

	for i, shift := range shifts {
		switch {
		case outcomes[i] != nil:
			result.Synced = append(result.Synced, *outcomes[i])
		case failures[i] != nil:
			result.Failures = append(result.Failures, failures[i])
			logger.ErrorContext(ctx, "shift sync failed",
				"shift_id", shift.ID,
				"error", failures[i].Err,
				"error_kind", ErrorKind(failures[i].Err),
			)
		case skipped[i]:
			result.Skipped = append(result.Skipped, shift.ID)
		}
	}

	if len(result.Skipped) > 0 {
		logger.WarnContext(ctx, "schedule sync interrupted", "skipped", len(result.Skipped), "error", ctx.Err())
	}
	logger.InfoContext(ctx, "schedule synced",
		"shifts", len(shifts),
		"synced", len(result.Synced),
		"failed", len(result.Failures),
	)
	return result, nil
}

// SyncSingleShift reconciles one shift after an edit. It does nothing when the
// parent schedule is not published.
func (r *ShiftReconciler) SyncSingleShift(ctx context.Context, shiftID, businessID string) (ShiftSyncResult, error) {
	logger := serviceLogger(ctx, r.logger, "ShiftReconciler", "SyncSingleShift", "shift_id", shiftID, "business_id", businessID)
	result := ShiftSyncResult{ShiftID: shiftID}

	shift, err := r.schedules.GetShift(ctx, shiftID)
	if err != nil {
		return result, &ShiftSyncError{ShiftID: shiftID, Err: mapRepoError(err)}
	}
	if err := checkBusiness("shift", shiftID, shift.BusinessID, businessID); err != nil {
		return result, &ShiftSyncError{ShiftID: shiftID, Err: err}
	}
	schedule, err := r.schedules.GetSchedule(ctx, shift.ScheduleID)
	if err != nil {
		return result, &ShiftSyncError{ShiftID: shiftID, Err: mapRepoError(err)}
	}
	if schedule.Status != persistence.SchedulePublished {
		logger.DebugContext(ctx, "schedule not published, skipping shift sync", "schedule_id", schedule.ID, "status", schedule.Status)
		result.Skipped = true
		return result, nil
	}

	target, err := r.prepare(ctx, schedule)
	if err != nil {
		return result, &ShiftSyncError{ShiftID: shiftID, Err: err}
	}
	result, err = r.syncShift(ctx, target, shift)
	if err != nil {
		logger.ErrorContext(ctx, "shift sync failed", "error", err, "error_kind", ErrorKind(err))
		return ShiftSyncResult{ShiftID: shiftID}, &ShiftSyncError{ShiftID: shiftID, Err: err}
	}
	return result, nil
}

// checkBusiness rejects a caller-supplied business id that differs from the
// record's own. An empty id defers to the record.
func checkBusiness(kind, id, owner, businessID string) error {
	if businessID == "" || businessID == owner {
		return nil
	}
	return fmt.Errorf("%w: %s %s does not belong to business %s", ErrNotFound, kind, id, businessID)
}

func (r *ShiftReconciler) prepare(ctx context.Context, schedule persistence.Schedule) (syncTarget, error) {
	business, err := r.directory.GetBusiness(ctx, schedule.BusinessID)
	if err != nil {
		return syncTarget{}, mapRepoError(err)
	}
	calendarID, err := r.provisioner.EnsureBusinessScheduleCalendar(ctx, schedule.BusinessID)
	if err != nil {
		return syncTarget{}, err
	}
	loc, tz := loadLocation(schedule.Timezone, business.Timezone)
	return syncTarget{
		schedule:   schedule,
		business:   business,
		calendarID: calendarID,
		location:   loc,
		timezone:   tz,
	}, nil
}

// assignee is the resolved employee of an assigned shift.
type assignee struct {
	user               persistence.User
	position           persistence.EmployeePosition
	personalCalendarID string
}

func (r *ShiftReconciler) syncShift(ctx context.Context, target syncTarget, shift persistence.ScheduleShift) (result ShiftSyncResult, err error) {
	logger := serviceLogger(ctx, r.logger, "ShiftReconciler", "syncShift", "shift_id", shift.ID)
	started := r.now()
	result.ShiftID = shift.ID
	defer func() {
		outcome := "synced"
		if err != nil {
			outcome = "failed"
		}
		r.metrics.ObserveReconciliation("shift", outcome, r.now().Sub(started))
	}()

	unlock := r.locks.Lock(shift.ID)
	defer unlock()

	// A sync that finished while this one waited may have written new links.
	shift, err = r.schedules.GetShift(ctx, shift.ID)
	if err != nil {
		return result, mapRepoError(err)
	}
	links := linksFromMetadata(shift.Metadata)

	employee, err := r.resolveAssignee(ctx, target, shift)
	if err != nil {
		return result, err
	}

	var position *persistence.EmployeePosition
	if employee != nil {
		position = &employee.position
	}
	positionTitle := shiftPositionTitle(shift, position)
	timeRange := shiftTimeRange(shift.StartTime, shift.EndTime, target.location)

	// Decide what happens to the previously recorded personal event before any
	// Schedule-calendar write.
	var reusePersonal *string
	if links.PersonalEventID != nil {
		owned, err := r.ownsPersonalEvent(ctx, employee, *links.PersonalEventID)
		if err != nil {
			return result, err
		}
		if owned {
			reusePersonal = links.PersonalEventID
		} else {
			deletion := r.projector.DeleteStaleEvent(ctx, *links.PersonalEventID)
			result.StaleDeletion = &deletion
		}
	}

	draft := EventDraft{
		ExistingEventID: links.ScheduleEventID,
		CalendarID:      target.calendarID,
		Title:           openShiftTitle(positionTitle, timeRange),
		Description:     shiftDescription(target.schedule.Name, shift, positionTitle),
		StartAt:         shift.StartTime,
		EndAt:           shift.EndTime,
		Status:          persistence.EventStatusConfirmed,
		Timezone:        target.timezone,
	}
	if employee != nil {
		draft.Title = assignedShiftTitle(employeeName(employee.user), positionTitle, timeRange)
		draft.Attendee = &Attendee{UserID: employee.user.ID, Email: employee.user.Email}
	}

	err = r.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		scheduleEventID, err := r.projector.UpsertEvent(ctx, draft)
		if err != nil {
			return err
		}

		updated := CalendarLinks{ScheduleEventID: &scheduleEventID}
		if employee != nil {
			personal := draft
			personal.ExistingEventID = reusePersonal
			personal.CalendarID = employee.personalCalendarID
			personal.PersonalProjection = true
			personalEventID, err := r.projector.UpsertEvent(ctx, personal)
			if err != nil {
				return err
			}
			updated.PersonalEventID = &personalEventID
		}

		if err := r.schedules.MergeShiftMetadata(ctx, shift.ID, calendarEventsKey, updated, r.now()); err != nil {
			return mapRepoError(err)
		}
		result.ScheduleEventID = scheduleEventID
		if updated.PersonalEventID != nil {
			result.PersonalEventID = *updated.PersonalEventID
		}
		return nil
	})
	if err != nil {
		return ShiftSyncResult{ShiftID: shift.ID, StaleDeletion: result.StaleDeletion}, err
	}

	logger.DebugContext(ctx, "shift synced",
		"assigned", employee != nil,
		"schedule_event_id", result.ScheduleEventID,
		"personal_event_id", result.PersonalEventID,
	)
	return result, nil
}

// resolveAssignee loads the shift's employee and makes sure they can see the
// Schedule calendar and own a personal calendar. It returns nil for open shifts.
func (r *ShiftReconciler) resolveAssignee(ctx context.Context, target syncTarget, shift persistence.ScheduleShift) (*assignee, error) {
	if shift.EmployeePositionID == nil || *shift.EmployeePositionID == "" {
		return nil, nil
	}
	position, err := r.directory.GetEmployeePosition(ctx, *shift.EmployeePositionID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	user, err := r.directory.GetUser(ctx, position.UserID)
	if err != nil {
		return nil, mapRepoError(err)
	}

	if err := r.provisioner.EnsureMembership(ctx, target.calendarID, target.business.ID, []string{user.ID}); err != nil {
		return nil, err
	}
	personalCalendarID, err := r.provisioner.EnsurePersonalCalendar(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &assignee{user: user, position: position, personalCalendarID: personalCalendarID}, nil
}

// ownsPersonalEvent reports whether eventID lives in the assignee's personal
// calendar.
func (r *ShiftReconciler) ownsPersonalEvent(ctx context.Context, employee *assignee, eventID string) (bool, error) {
	if employee == nil {
		return false, nil
	}
	event, err := r.events.GetEvent(ctx, eventID)
	switch {
	case err == nil:
		return event.CalendarID == employee.personalCalendarID, nil
	case errors.Is(err, persistence.ErrNotFound):
		return false, nil
	default:
		return false, mapRepoError(err)
	}
}
