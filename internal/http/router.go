package http

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker reports whether the service can reach its dependencies.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	TimeOff    *TimeOffHandler
	Schedules  *ScheduleHandler
	Shifts     *ShiftHandler
	Health     HealthChecker
	Gatherer   prometheus.Gatherer
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	if cfg.TimeOff != nil {
		mux.HandleFunc("POST /time-off-requests", cfg.TimeOff.Submit)
		mux.HandleFunc("GET /time-off-requests/{id}", cfg.TimeOff.Get)
		mux.HandleFunc("POST /time-off-requests/{id}/approve", cfg.TimeOff.Approve)
		mux.HandleFunc("POST /time-off-requests/{id}/deny", cfg.TimeOff.Deny)
		mux.HandleFunc("POST /time-off-requests/{id}/cancel", cfg.TimeOff.Cancel)
		mux.HandleFunc("POST /time-off-requests/{id}/sync", cfg.TimeOff.Sync)
	}

	if cfg.Schedules != nil {
		mux.HandleFunc("POST /schedules", cfg.Schedules.Create)
		mux.HandleFunc("POST /schedules/{id}/shifts", cfg.Schedules.AddShift)
		mux.HandleFunc("POST /schedules/{id}/publish", cfg.Schedules.Publish)
		mux.HandleFunc("POST /schedules/{id}/sync", cfg.Schedules.Sync)
	}

	if cfg.Shifts != nil {
		mux.HandleFunc("PATCH /shifts/{id}", cfg.Shifts.Edit)
		mux.HandleFunc("POST /shifts/{id}/sync", cfg.Shifts.Sync)
	}

	mux.HandleFunc("GET /healthz", healthHandler(cfg.Health))

	if cfg.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	var handler http.Handler = mux
	if len(cfg.Middleware) > 0 {
		for i := len(cfg.Middleware) - 1; i >= 0; i-- {
			if cfg.Middleware[i] != nil {
				handler = cfg.Middleware[i](handler)
			}
		}
	}

	return handler
}

func healthHandler(checker HealthChecker) http.HandlerFunc {
	responder := newResponder(nil)
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.Ping(r.Context()); err != nil {
				responder.writeJSON(r.Context(), w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
				return
			}
		}
		responder.writeJSON(r.Context(), w, http.StatusOK, healthResponse{Status: "ok"})
	}
}

type healthResponse struct {
	Status string `json:"status"`
}
