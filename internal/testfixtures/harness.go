package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/example/workforce-calendar/internal/application"
	"github.com/example/workforce-calendar/internal/persistence"
	"github.com/example/workforce-calendar/internal/persistence/memory"
	"github.com/example/workforce-calendar/internal/persistence/sqlite"
)

// Harness bundles a store with the repository views the engine needs.
type Harness struct {
	Name   string
	Repos  application.Repositories
	Writer persistence.DirectoryWriter
	// Memory is set for in-memory harnesses and offers list helpers.
	Memory *memory.Store
	// SQLite is set for SQLite harnesses.
	SQLite *sqlite.Store
}

// NewMemoryHarness returns a harness over a fresh in-memory store.
func NewMemoryHarness(tb testing.TB) *Harness {
	tb.Helper()

	store := memory.New()
	return &Harness{
		Name: "memory",
		Repos: application.Repositories{
			Calendars:  store,
			Events:     store,
			Settings:   store,
			Directory:  store,
			TimeOff:    store,
			Schedules:  store,
			Transactor: store,
		},
		Writer: store,
		Memory: store,
	}
}

// NewSQLiteHarness returns a harness over a migrated SQLite database in a
// temporary directory. The database is closed when the test ends.
func NewSQLiteHarness(tb testing.TB) *Harness {
	tb.Helper()

	cfg := sqlite.DefaultConfig(filepath.Join(tb.TempDir(), "calendar.db"))
	store, err := sqlite.Open(context.Background(), cfg, true, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		tb.Fatalf("failed to open sqlite store: %v", err)
	}
	tb.Cleanup(func() { _ = store.Close() })

	return &Harness{
		Name: "sqlite",
		Repos: application.Repositories{
			Calendars:  store.Calendars,
			Events:     store.Events,
			Settings:   store.Settings,
			Directory:  store.Directory,
			TimeOff:    store.TimeOff,
			Schedules:  store.Schedules,
			Transactor: store.Pool,
		},
		Writer: store.Directory,
		SQLite: store,
	}
}

// Harnesses returns one harness per store implementation.
func Harnesses(tb testing.TB) []*Harness {
	tb.Helper()
	return []*Harness{NewMemoryHarness(tb), NewSQLiteHarness(tb)}
}

// SeedWorkforce writes w into the harness directory.
func (h *Harness) SeedWorkforce(tb testing.TB, w Workforce) {
	tb.Helper()
	if err := w.Seed(context.Background(), h.Writer); err != nil {
		tb.Fatalf("failed to seed workforce: %v", err)
	}
}

// SeedSchedule stores a schedule with its shifts.
func (h *Harness) SeedSchedule(tb testing.TB, schedule persistence.Schedule, shifts ...persistence.ScheduleShift) {
	tb.Helper()
	ctx := context.Background()
	if err := h.Repos.Schedules.CreateSchedule(ctx, schedule); err != nil {
		tb.Fatalf("failed to seed schedule %s: %v", schedule.ID, err)
	}
	for _, shift := range shifts {
		if err := h.Repos.Schedules.CreateShift(ctx, shift); err != nil {
			tb.Fatalf("failed to seed shift %s: %v", shift.ID, err)
		}
	}
}

// SeedTimeOff stores time-off requests.
func (h *Harness) SeedTimeOff(tb testing.TB, requests ...persistence.TimeOffRequest) {
	tb.Helper()
	for _, request := range requests {
		if err := h.Repos.TimeOff.CreateTimeOffRequest(context.Background(), request); err != nil {
			tb.Fatalf("failed to seed time-off request %s: %v", request.ID, err)
		}
	}
}
