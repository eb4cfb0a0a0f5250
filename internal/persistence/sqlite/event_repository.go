package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/example/workforce-calendar/internal/persistence"
)

// EventRepository implements persistence.EventRepository using SQLite.
// Attendee sets are always written together with their event.
type EventRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewEventRepository creates a new SQLite event repository.
func NewEventRepository(pool *ConnectionPool) *EventRepository {
	return &EventRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const eventColumns = `id, calendar_id, title, description, start_at, end_at, all_day, timezone, status, created_at, updated_at`

// CreateEvent inserts an event and its attendees.
func (r *EventRepository) CreateEvent(ctx context.Context, event persistence.Event) error {
	if event.ID == "" {
		return persistence.ErrConstraintViolation
	}

	return r.pool.WithinTransaction(ctx, func(ctx context.Context) error {
		query := `INSERT INTO events (` + eventColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		_, err := r.helper.Exec(ctx, query,
			event.ID,
			event.CalendarID,
			event.Title,
			event.Description,
			formatTime(event.StartAt),
			formatTime(event.EndAt),
			event.AllDay,
			event.Timezone,
			string(event.Status),
			formatTime(event.CreatedAt),
			formatTime(event.UpdatedAt),
		)
		if err != nil {
			return r.mapper.MapError(err)
		}
		return r.insertAttendees(ctx, event.ID, event.Attendees)
	})
}

// UpdateEvent rewrites the event fields and replaces its attendee set.
func (r *EventRepository) UpdateEvent(ctx context.Context, event persistence.Event) error {
	return r.pool.WithinTransaction(ctx, func(ctx context.Context) error {
		query := `UPDATE events
			SET calendar_id = ?, title = ?, description = ?, start_at = ?, end_at = ?,
			    all_day = ?, timezone = ?, status = ?, updated_at = ?
			WHERE id = ?`
		err := r.helper.ExecAffectingOne(ctx, query,
			event.CalendarID,
			event.Title,
			event.Description,
			formatTime(event.StartAt),
			formatTime(event.EndAt),
			event.AllDay,
			event.Timezone,
			string(event.Status),
			formatTime(event.UpdatedAt),
			event.ID,
		)
		if err != nil {
			return err
		}

		if _, err := r.helper.Exec(ctx, `DELETE FROM event_attendees WHERE event_id = ?`, event.ID); err != nil {
			return r.mapper.MapError(err)
		}
		return r.insertAttendees(ctx, event.ID, event.Attendees)
	})
}

// GetEvent retrieves an event with its attendees.
func (r *EventRepository) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = ?`

	var (
		event                persistence.Event
		status               string
		startAt, endAt       string
		createdAt, updatedAt string
	)
	err := r.helper.QueryRow(ctx, query, id).Scan(
		&event.ID,
		&event.CalendarID,
		&event.Title,
		&event.Description,
		&startAt,
		&endAt,
		&event.AllDay,
		&event.Timezone,
		&status,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.Event{}, r.mapper.MapError(err)
	}
	event.Status = persistence.EventStatus(status)

	for _, field := range []struct {
		column string
		value  string
		dest   *time.Time
	}{
		{"start_at", startAt, &event.StartAt},
		{"end_at", endAt, &event.EndAt},
		{"created_at", createdAt, &event.CreatedAt},
		{"updated_at", updatedAt, &event.UpdatedAt},
	} {
		if *field.dest, err = parseTime(field.column, field.value); err != nil {
			return persistence.Event{}, err
		}
	}

	attendees, err := r.loadAttendees(ctx, id)
	if err != nil {
		return persistence.Event{}, err
	}
	event.Attendees = attendees
	return event, nil
}

// DeleteEvent removes an event. Attendees cascade.
func (r *EventRepository) DeleteEvent(ctx context.Context, id string) error {
	return r.helper.ExecAffectingOne(ctx, `DELETE FROM events WHERE id = ?`, id)
}

func (r *EventRepository) insertAttendees(ctx context.Context, eventID string, attendees []persistence.EventAttendee) error {
	for _, attendee := range attendees {
		_, err := r.helper.Exec(ctx,
			`INSERT INTO event_attendees (id, event_id, user_id, email, response) VALUES (?, ?, ?, ?, ?)`,
			attendee.ID,
			eventID,
			nullableString(attendee.UserID),
			nullableString(attendee.Email),
			string(attendee.Response),
		)
		if err != nil {
			return r.mapper.MapError(err)
		}
	}
	return nil
}

func (r *EventRepository) loadAttendees(ctx context.Context, eventID string) ([]persistence.EventAttendee, error) {
	rows, err := r.helper.Query(ctx,
		`SELECT id, event_id, user_id, email, response FROM event_attendees WHERE event_id = ? ORDER BY id`,
		eventID,
	)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var attendees []persistence.EventAttendee
	for rows.Next() {
		var (
			attendee persistence.EventAttendee
			userID   sql.NullString
			email    sql.NullString
			response string
		)
		if err := rows.Scan(&attendee.ID, &attendee.EventID, &userID, &email, &response); err != nil {
			return nil, r.mapper.MapError(err)
		}
		attendee.UserID = stringPtr(userID)
		attendee.Email = stringPtr(email)
		attendee.Response = persistence.AttendeeResponse(response)
		attendees = append(attendees, attendee)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return attendees, nil
}
