package sqlite

import (
	"context"
	"log/slog"
)

// Store bundles the SQLite repositories sharing one connection pool.
type Store struct {
	Pool      *ConnectionPool
	Calendars *CalendarRepository
	Events    *EventRepository
	Settings  *SettingsRepository
	Directory *DirectoryRepository
	TimeOff   *TimeOffRepository
	Schedules *ScheduleRepository
}

// NewStore builds the repositories on top of pool.
func NewStore(pool *ConnectionPool) *Store {
	return &Store{
		Pool:      pool,
		Calendars: NewCalendarRepository(pool),
		Events:    NewEventRepository(pool),
		Settings:  NewSettingsRepository(pool),
		Directory: NewDirectoryRepository(pool),
		TimeOff:   NewTimeOffRepository(pool),
		Schedules: NewScheduleRepository(pool),
	}
}

// Open connects to the database, optionally applies migrations, and returns
// the repositories.
func Open(ctx context.Context, cfg Config, migrate bool, logger *slog.Logger) (*Store, error) {
	pool, err := NewConnectionPool(cfg, logger)
	if err != nil {
		return nil, err
	}
	if migrate {
		if err := Migrate(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return NewStore(pool), nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.Pool.Close()
}
