package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/example/workforce-calendar/internal/persistence"
)

// CalendarRepository implements persistence.CalendarRepository using SQLite.
type CalendarRepository struct {
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewCalendarRepository creates a new SQLite calendar repository.
func NewCalendarRepository(pool *ConnectionPool) *CalendarRepository {
	return &CalendarRepository{
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const calendarColumns = `id, name, context_type, context_id, timezone, is_primary, is_system, is_deletable, created_at, updated_at`

// CreateCalendar inserts a calendar. A second primary personal calendar for
// the same user fails with ErrDuplicate.
func (r *CalendarRepository) CreateCalendar(ctx context.Context, calendar persistence.Calendar) error {
	if calendar.ID == "" {
		return persistence.ErrConstraintViolation
	}

	query := `INSERT INTO calendars (` + calendarColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.helper.Exec(ctx, query,
		calendar.ID,
		calendar.Name,
		string(calendar.ContextType),
		calendar.ContextID,
		calendar.Timezone,
		calendar.IsPrimary,
		calendar.IsSystem,
		calendar.IsDeletable,
		formatTime(calendar.CreatedAt),
		formatTime(calendar.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// GetCalendar retrieves a calendar by ID.
func (r *CalendarRepository) GetCalendar(ctx context.Context, id string) (persistence.Calendar, error) {
	query := `SELECT ` + calendarColumns + ` FROM calendars WHERE id = ?`
	return scanCalendar(r.helper.QueryRow(ctx, query, id))
}

// FindPrimaryPersonalCalendar returns the user's primary PERSONAL calendar.
func (r *CalendarRepository) FindPrimaryPersonalCalendar(ctx context.Context, userID string) (persistence.Calendar, error) {
	query := `SELECT ` + calendarColumns + ` FROM calendars
		WHERE context_type = 'PERSONAL' AND context_id = ? AND is_primary = 1`
	return scanCalendar(r.helper.QueryRow(ctx, query, userID))
}

// DeleteCalendar removes a calendar. Members and events cascade.
func (r *CalendarRepository) DeleteCalendar(ctx context.Context, id string) error {
	return r.helper.ExecAffectingOne(ctx, `DELETE FROM calendars WHERE id = ?`, id)
}

// GetMember retrieves one membership row.
func (r *CalendarRepository) GetMember(ctx context.Context, calendarID, userID string) (persistence.CalendarMember, error) {
	query := `SELECT calendar_id, user_id, role, created_at, updated_at
		FROM calendar_members WHERE calendar_id = ? AND user_id = ?`

	var (
		member               persistence.CalendarMember
		role                 string
		createdAt, updatedAt string
	)
	err := r.helper.QueryRow(ctx, query, calendarID, userID).Scan(
		&member.CalendarID, &member.UserID, &role, &createdAt, &updatedAt,
	)
	if err != nil {
		return persistence.CalendarMember{}, r.mapper.MapError(err)
	}
	member.Role = persistence.CalendarRole(role)
	if member.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.CalendarMember{}, err
	}
	if member.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.CalendarMember{}, err
	}
	return member, nil
}

// CreateMember inserts a membership row.
func (r *CalendarRepository) CreateMember(ctx context.Context, member persistence.CalendarMember) error {
	query := `INSERT INTO calendar_members (calendar_id, user_id, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`
	_, err := r.helper.Exec(ctx, query,
		member.CalendarID,
		member.UserID,
		string(member.Role),
		formatTime(member.CreatedAt),
		formatTime(member.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// UpdateMemberRole changes the role of an existing member.
func (r *CalendarRepository) UpdateMemberRole(ctx context.Context, calendarID, userID string, role persistence.CalendarRole, updatedAt time.Time) error {
	query := `UPDATE calendar_members SET role = ?, updated_at = ? WHERE calendar_id = ? AND user_id = ?`
	return r.helper.ExecAffectingOne(ctx, query, string(role), formatTime(updatedAt), calendarID, userID)
}

func scanCalendar(row rowScanner) (persistence.Calendar, error) {
	var (
		calendar             persistence.Calendar
		contextType          string
		createdAt, updatedAt string
	)
	err := row.Scan(
		&calendar.ID,
		&calendar.Name,
		&contextType,
		&calendar.ContextID,
		&calendar.Timezone,
		&calendar.IsPrimary,
		&calendar.IsSystem,
		&calendar.IsDeletable,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.Calendar{}, mapDriverError(err)
	}
	calendar.ContextType = persistence.CalendarContextType(contextType)
	if calendar.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Calendar{}, err
	}
	if calendar.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.Calendar{}, fmt.Errorf("calendar %s: %w", calendar.ID, err)
	}
	return calendar, nil
}
