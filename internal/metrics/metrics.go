// Package metrics exposes the Prometheus collectors of the calendar sync service.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "calsync"

// Metrics holds the collectors registered for one process.
type Metrics struct {
	Reconciliations      *prometheus.CounterVec
	ReconcileDuration    *prometheus.HistogramVec
	StaleDeletions       *prometheus.CounterVec
	CalendarsProvisioned *prometheus.CounterVec
	MembershipChanges    *prometheus.CounterVec
	Dispatches           *prometheus.CounterVec
	RequestCounter       *prometheus.CounterVec
	RequestDuration      *prometheus.HistogramVec
	DBConnPoolStats      *prometheus.GaugeVec
}

// New registers the collectors on reg. A nil reg falls back to the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Reconciliations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconciliations_total",
				Help:      "Reconciliation runs by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		ReconcileDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reconcile_duration_seconds",
				Help:      "Reconciliation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		StaleDeletions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stale_event_deletions_total",
				Help:      "Stale personal event deletions by outcome",
			},
			[]string{"outcome"},
		),
		CalendarsProvisioned: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calendars_provisioned_total",
				Help:      "Calendars created by context type",
			},
			[]string{"context_type"},
		),
		MembershipChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "membership_changes_total",
				Help:      "Calendar membership writes by action",
			},
			[]string{"action"},
		),
		Dispatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatches_total",
				Help:      "Fire-and-forget sync triggers by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		RequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		DBConnPoolStats: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connection_pool",
				Help:      "Database connection pool statistics",
			},
			[]string{"stat"},
		),
	}
}

// ObserveReconciliation records one reconciliation run.
func (m *Metrics) ObserveReconciliation(kind, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Reconciliations.WithLabelValues(kind, outcome).Inc()
	m.ReconcileDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// StaleDeletion counts a stale event deletion attempt.
func (m *Metrics) StaleDeletion(outcome string) {
	if m == nil {
		return
	}
	m.StaleDeletions.WithLabelValues(outcome).Inc()
}

// CalendarProvisioned counts a newly created calendar.
func (m *Metrics) CalendarProvisioned(contextType string) {
	if m == nil {
		return
	}
	m.CalendarsProvisioned.WithLabelValues(contextType).Inc()
}

// MembershipChanged counts a created or escalated membership.
func (m *Metrics) MembershipChanged(action string) {
	if m == nil {
		return
	}
	m.MembershipChanges.WithLabelValues(action).Inc()
}

// Dispatched counts a background sync trigger.
func (m *Metrics) Dispatched(kind, outcome string) {
	if m == nil {
		return
	}
	m.Dispatches.WithLabelValues(kind, outcome).Inc()
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(route, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestCounter.WithLabelValues(route, status).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// RecordDBPoolStats records database connection pool statistics.
func (m *Metrics) RecordDBPoolStats(open, inUse, idle int, waitCount int64, waitDuration time.Duration) {
	if m == nil {
		return
	}
	m.DBConnPoolStats.WithLabelValues("open").Set(float64(open))
	m.DBConnPoolStats.WithLabelValues("in_use").Set(float64(inUse))
	m.DBConnPoolStats.WithLabelValues("idle").Set(float64(idle))
	m.DBConnPoolStats.WithLabelValues("wait_count").Set(float64(waitCount))
	m.DBConnPoolStats.WithLabelValues("wait_duration_ms").Set(float64(waitDuration.Milliseconds()))
}
