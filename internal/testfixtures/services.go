package testfixtures

import (
	"io"
	"log/slog"
	"time"

	"github.com/example/workforce-calendar/internal/application"
	"github.com/example/workforce-calendar/internal/metrics"
)

// ServiceFactory builds application components with deterministic
// identifiers and clocks and a synchronous dispatcher.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Config      application.EngineConfig
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewTickingClock(time.Time{}, time.Second),
		IDGenerator: NewIDGenerator("id"),
		Config: application.EngineConfig{
			DefaultTimezone:  "UTC",
			ShiftConcurrency: 1,
			Dispatcher:       application.DispatcherConfig{Async: false},
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(factory)
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithShiftConcurrency sets the number of shifts synced in parallel.
func WithShiftConcurrency(n int) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Config.ShiftConcurrency = n
	}
}

// WithMetrics records into m.
func WithMetrics(m *metrics.Metrics) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Metrics = m
	}
}

// WithLogger overrides the discarding default logger.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Logger = logger
	}
}

// NewEngine wires the full engine over repos.
func (f *ServiceFactory) NewEngine(repos application.Repositories) *application.Engine {
	return application.NewEngine(repos, f.Config, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), f.Logger, f.Metrics)
}
