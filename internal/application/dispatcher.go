package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/workforce-calendar/internal/metrics"
)

// TimeOffSyncer re-projects a time-off request.
type TimeOffSyncer interface {
	SyncTimeOffRequest(ctx context.Context, requestID string) (TimeOffSyncResult, error)
}

// ShiftSyncer re-projects schedule shifts.
type ShiftSyncer interface {
	SyncPublishedSchedule(ctx context.Context, scheduleID, businessID string) (BatchResult, error)
	SyncSingleShift(ctx context.Context, shiftID, businessID string) (ShiftSyncResult, error)
}

// DispatcherConfig controls how follow-up syncs run.
type DispatcherConfig struct {
	// Async runs syncs on their own goroutine. When false the trigger blocks
	// until the sync finished, which is what tests and the CLI want.
	Async   bool
	Timeout time.Duration
}

// SyncDispatcher runs reconciliation as a fire-and-forget follow-up to a
// committed mutation. Failures are logged and counted, never returned.
type SyncDispatcher struct {
	timeOff TimeOffSyncer
	shifts  ShiftSyncer
	cfg     DispatcherConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
	wg      sync.WaitGroup
}

// NewSyncDispatcher wires the reconcilers behind the trigger methods.
func NewSyncDispatcher(timeOff TimeOffSyncer, shifts ShiftSyncer, cfg DispatcherConfig, logger *slog.Logger, m *metrics.Metrics) *SyncDispatcher {
	return &SyncDispatcher{
		timeOff: timeOff,
		shifts:  shifts,
		cfg:     cfg,
		logger:  defaultLogger(logger),
		metrics: m,
	}
}

// TimeOffChanged schedules a sync of the request.
func (d *SyncDispatcher) TimeOffChanged(ctx context.Context, requestID string) {
	d.dispatch(ctx, "time_off", []any{"request_id", requestID}, func(ctx context.Context) error {
		_, err := d.timeOff.SyncTimeOffRequest(ctx, requestID)
		return err
	})
}

// SchedulePublished schedules a sync of every shift of the schedule.
func (d *SyncDispatcher) SchedulePublished(ctx context.Context, scheduleID, businessID string) {
	d.dispatch(ctx, "schedule", []any{"schedule_id", scheduleID, "business_id", businessID}, func(ctx context.Context) error {
		_, err := d.shifts.SyncPublishedSchedule(ctx, scheduleID, businessID)
		return err
	})
}

// ShiftChanged schedules a sync of one shift.
func (d *SyncDispatcher) ShiftChanged(ctx context.Context, shiftID, businessID string) {
	d.dispatch(ctx, "shift", []any{"shift_id", shiftID, "business_id", businessID}, func(ctx context.Context) error {
		_, err := d.shifts.SyncSingleShift(ctx, shiftID, businessID)
		return err
	})
}

// Wait blocks until in-flight syncs finish or ctx ends.
func (d *SyncDispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *SyncDispatcher) dispatch(ctx context.Context, kind string, attrs []any, fn func(context.Context) error) {
	if d == nil {
		return
	}
	// The sync outlives the request that triggered it but keeps its values.
	ctx = context.WithoutCancel(ctx)

	run := func() {
		defer d.wg.Done()
		logger := serviceLogger(ctx, d.logger, "SyncDispatcher", kind, attrs...)

		runCtx := ctx
		if d.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
			defer cancel()
		}

		defer func() {
			if p := recover(); p != nil {
				d.metrics.Dispatched(kind, "panicked")
				logger.ErrorContext(ctx, "calendar sync panicked", "panic", p)
			}
		}()

		if err := fn(runCtx); err != nil {
			d.metrics.Dispatched(kind, "failed")
			logger.ErrorContext(ctx, "calendar sync failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		d.metrics.Dispatched(kind, "succeeded")
	}

	d.wg.Add(1)
	if d.cfg.Async {
		go run()
		return
	}
	run()
}
