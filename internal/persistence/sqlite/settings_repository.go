package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/example/workforce-calendar/internal/persistence"
)

// SettingsRepository implements persistence.SettingsRepository using SQLite.
type SettingsRepository struct {
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewSettingsRepository creates a new SQLite settings repository.
func NewSettingsRepository(pool *ConnectionPool) *SettingsRepository {
	return &SettingsRepository{
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// GetBusinessSettings retrieves the settings row of a business.
func (r *SettingsRepository) GetBusinessSettings(ctx context.Context, businessID string) (persistence.BusinessSettings, error) {
	query := `SELECT business_id, schedule_calendar_id, created_at, updated_at
		FROM business_settings WHERE business_id = ?`

	var (
		settings             persistence.BusinessSettings
		calendarID           sql.NullString
		createdAt, updatedAt string
	)
	err := r.helper.QueryRow(ctx, query, businessID).Scan(&settings.BusinessID, &calendarID, &createdAt, &updatedAt)
	if err != nil {
		return persistence.BusinessSettings{}, r.mapper.MapError(err)
	}
	settings.ScheduleCalendarID = stringPtr(calendarID)
	if settings.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.BusinessSettings{}, err
	}
	if settings.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.BusinessSettings{}, err
	}
	return settings, nil
}

// CreateBusinessSettings inserts the settings row. The primary key on
// business_id turns a concurrent second insert into ErrDuplicate.
func (r *SettingsRepository) CreateBusinessSettings(ctx context.Context, settings persistence.BusinessSettings) error {
	query := `INSERT INTO business_settings (business_id, schedule_calendar_id, created_at, updated_at)
		VALUES (?, ?, ?, ?)`
	_, err := r.helper.Exec(ctx, query,
		settings.BusinessID,
		nullableString(settings.ScheduleCalendarID),
		formatTime(settings.CreatedAt),
		formatTime(settings.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// SwapScheduleCalendar installs calendarID only when the stored value still
// equals expected.
func (r *SettingsRepository) SwapScheduleCalendar(ctx context.Context, businessID string, expected *string, calendarID string, updatedAt time.Time) error {
	query := `UPDATE business_settings
		SET schedule_calendar_id = ?, updated_at = ?
		WHERE business_id = ? AND schedule_calendar_id IS ?`
	err := r.helper.ExecAffectingOne(ctx, query,
		calendarID,
		formatTime(updatedAt),
		businessID,
		nullableString(expected),
	)
	if errors.Is(err, persistence.ErrNotFound) {
		// Either the row is missing or another writer changed the value.
		if _, getErr := r.GetBusinessSettings(ctx, businessID); getErr != nil {
			return getErr
		}
		return persistence.ErrConflict
	}
	return err
}
