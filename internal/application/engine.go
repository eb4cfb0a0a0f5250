package application

import (
	"log/slog"
	"time"

	"github.com/example/workforce-calendar/internal/metrics"
	"github.com/example/workforce-calendar/internal/persistence"
)

// Repositories is the storage surface the engine runs on.
type Repositories struct {
	Calendars  persistence.CalendarRepository
	Events     persistence.EventRepository
	Settings   persistence.SettingsRepository
	Directory  persistence.DirectoryRepository
	TimeOff    persistence.TimeOffRepository
	Schedules  persistence.ScheduleRepository
	Transactor persistence.Transactor
}

// EngineConfig tunes the reconcilers and the dispatcher.
type EngineConfig struct {
	DefaultTimezone  string
	ShiftConcurrency int
	Dispatcher       DispatcherConfig
}

// Engine is the fully wired reconciliation stack.
type Engine struct {
	Provisioner       *Provisioner
	Projector         *Projector
	TimeOffReconciler *TimeOffReconciler
	ShiftReconciler   *ShiftReconciler
	Dispatcher        *SyncDispatcher
	TimeOff           *TimeOffService
	Schedules         *ScheduleService
}

// NewEngine builds every component on top of repos.
func NewEngine(repos Repositories, cfg EngineConfig, idGenerator func() string, now func() time.Time, logger *slog.Logger, m *metrics.Metrics) *Engine {
	if now == nil {
		now = time.Now
	}
	logger = defaultLogger(logger)

	provisioner := NewProvisioner(ProvisionerDeps{
		Calendars:       repos.Calendars,
		Settings:        repos.Settings,
		Directory:       repos.Directory,
		IDGenerator:     idGenerator,
		Now:             now,
		DefaultTimezone: cfg.DefaultTimezone,
		Logger:          logger,
		Metrics:         m,
	})
	projector := NewProjector(repos.Events, idGenerator, now, logger, m)

	timeOffReconciler := NewTimeOffReconciler(TimeOffReconcilerDeps{
		Requests:    repos.TimeOff,
		Directory:   repos.Directory,
		Transactor:  repos.Transactor,
		Provisioner: provisioner,
		Projector:   projector,
		Now:         now,
		Logger:      logger,
		Metrics:     m,
	})
	shiftReconciler := NewShiftReconciler(ShiftReconcilerDeps{
		Schedules:   repos.Schedules,
		Events:      repos.Events,
		Directory:   repos.Directory,
		Transactor:  repos.Transactor,
		Provisioner: provisioner,
		Projector:   projector,
		Concurrency: cfg.ShiftConcurrency,
		Now:         now,
		Logger:      logger,
		Metrics:     m,
	})
	dispatcher := NewSyncDispatcher(timeOffReconciler, shiftReconciler, cfg.Dispatcher, logger, m)

	return &Engine{
		Provisioner:       provisioner,
		Projector:         projector,
		TimeOffReconciler: timeOffReconciler,
		ShiftReconciler:   shiftReconciler,
		Dispatcher:        dispatcher,
		TimeOff: NewTimeOffService(TimeOffServiceDeps{
			Requests:    repos.TimeOff,
			Directory:   repos.Directory,
			Transactor:  repos.Transactor,
			Syncer:      timeOffReconciler,
			Trigger:     dispatcher,
			IDGenerator: idGenerator,
			Now:         now,
			Logger:      logger,
		}),
		Schedules: NewScheduleService(ScheduleServiceDeps{
			Schedules:   repos.Schedules,
			Directory:   repos.Directory,
			Syncer:      shiftReconciler,
			Trigger:     dispatcher,
			IDGenerator: idGenerator,
			Now:         now,
			Logger:      logger,
		}),
	}
}
