package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/example/workforce-calendar/internal/application"
	"github.com/example/workforce-calendar/internal/config"
	httptransport "github.com/example/workforce-calendar/internal/http"
	"github.com/example/workforce-calendar/internal/logging"
	"github.com/example/workforce-calendar/internal/metrics"
	"github.com/example/workforce-calendar/internal/persistence/sqlite"
)

const (
	shutdownTimeout   = 10 * time.Second
	poolStatsInterval = 15 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "calsync:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(stdout, cfg.Log.Level, cfg.Log.Format)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app, err := newApp(ctx, cfg, logger, reg)
	if err != nil {
		logger.Error("failed to start", "error", err)
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.HTTPPort))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return app.Serve(ctx, listener)
}

// app is the wired service: storage, reconciliation engine, and HTTP handler.
type app struct {
	store   *sqlite.Store
	engine  *application.Engine
	metrics *metrics.Metrics
	handler http.Handler
	logger  *slog.Logger
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger, reg *prometheus.Registry) (*app, error) {
	dbConfig := sqlite.DefaultConfig(cfg.SQLite.Path)
	dbConfig.BusyTimeout = cfg.SQLite.BusyTimeout
	dbConfig.MaxOpenConns = cfg.SQLite.MaxOpenConns

	store, err := sqlite.Open(ctx, dbConfig, cfg.SQLite.Migrate, logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	m := metrics.New(reg)
	engine := application.NewEngine(application.Repositories{
		Calendars:  store.Calendars,
		Events:     store.Events,
		Settings:   store.Settings,
		Directory:  store.Directory,
		TimeOff:    store.TimeOff,
		Schedules:  store.Schedules,
		Transactor: store.Pool,
	}, application.EngineConfig{
		DefaultTimezone:  cfg.Reconcile.DefaultTimezone,
		ShiftConcurrency: cfg.Reconcile.ShiftConcurrency,
		Dispatcher: application.DispatcherConfig{
			Async:   cfg.Reconcile.AsyncSync,
			Timeout: cfg.Reconcile.SyncTimeout,
		},
	}, uuid.NewString, time.Now, logger, m)

	handler := httptransport.NewRouter(httptransport.RouterConfig{
		TimeOff:   httptransport.NewTimeOffHandler(engine.TimeOff, logger),
		Schedules: httptransport.NewScheduleHandler(engine.Schedules, logger),
		Shifts:    httptransport.NewShiftHandler(engine.Schedules, logger),
		Health:    store.Pool,
		Gatherer:  reg,
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			httptransport.RequestMetrics(m),
		},
	})

	return &app{store: store, engine: engine, metrics: m, handler: handler, logger: logger}, nil
}

// Serve runs the HTTP server on listener until ctx ends, then drains
// in-flight requests and pending calendar syncs.
func (a *app) Serve(ctx context.Context, listener net.Listener) error {
	server := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go a.recordPoolStats(ctx)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("calendar sync API listening", "addr", listener.Addr().String())
		errCh <- server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("failed to shutdown server", "error", err)
	}
	if err := a.engine.Dispatcher.Wait(shutdownCtx); err != nil {
		a.logger.Warn("calendar syncs still running at shutdown", "error", err)
	}
	a.logger.Info("calendar sync API stopped")
	return nil
}

func (a *app) recordPoolStats(ctx context.Context) {
	ticker := time.NewTicker(poolStatsInterval)
	defer ticker.Stop()
	for {
		a.samplePoolStats()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *app) samplePoolStats() {
	stats := a.store.Pool.DB().Stats()
	a.metrics.RecordDBPoolStats(stats.OpenConnections, stats.InUse, stats.Idle, stats.WaitCount, stats.WaitDuration)
}

func (a *app) Close() error {
	return a.store.Close()
}
