package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/example/workforce-calendar/internal/persistence"
)

// TimeOffRepository implements persistence.TimeOffRepository using SQLite.
type TimeOffRepository struct {
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewTimeOffRepository creates a new SQLite time-off repository.
func NewTimeOffRepository(pool *ConnectionPool) *TimeOffRepository {
	return &TimeOffRepository{
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const timeOffColumns = `id, business_id, employee_position_id, type, start_date, end_date, reason, status,
	manager_note, decided_by_id, decided_at, schedule_event_id, personal_event_id, created_at, updated_at`

// CreateTimeOffRequest inserts a request.
func (r *TimeOffRepository) CreateTimeOffRequest(ctx context.Context, request persistence.TimeOffRequest) error {
	if request.ID == "" {
		return persistence.ErrConstraintViolation
	}
	query := `INSERT INTO time_off_requests (` + timeOffColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.helper.Exec(ctx, query,
		request.ID,
		request.BusinessID,
		request.EmployeePositionID,
		string(request.Type),
		formatTime(request.StartDate),
		formatTime(request.EndDate),
		request.Reason,
		string(request.Status),
		request.ManagerNote,
		nullableString(request.DecidedByID),
		nullableTime(request.DecidedAt),
		nullableString(request.ScheduleEventID),
		nullableString(request.PersonalEventID),
		formatTime(request.CreatedAt),
		formatTime(request.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// GetTimeOffRequest retrieves a request by ID.
func (r *TimeOffRepository) GetTimeOffRequest(ctx context.Context, id string) (persistence.TimeOffRequest, error) {
	query := `SELECT ` + timeOffColumns + ` FROM time_off_requests WHERE id = ?`
	return scanTimeOff(r.helper.QueryRow(ctx, query, id))
}

// ListTimeOffRequests returns requests matching the filter ordered by start date.
func (r *TimeOffRepository) ListTimeOffRequests(ctx context.Context, filter persistence.TimeOffFilter) ([]persistence.TimeOffRequest, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.EmployeePositionID != "" {
		conditions = append(conditions, "employee_position_id = ?")
		args = append(args, filter.EmployeePositionID)
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		conditions = append(conditions, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.StartsOnOrBefore != nil {
		conditions = append(conditions, "start_date <= ?")
		args = append(args, formatTime(*filter.StartsOnOrBefore))
	}
	if filter.EndsOnOrAfter != nil {
		conditions = append(conditions, "end_date >= ?")
		args = append(args, formatTime(*filter.EndsOnOrAfter))
	}

	query := `SELECT ` + timeOffColumns + ` FROM time_off_requests`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY start_date ASC, id ASC"

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	requests := make([]persistence.TimeOffRequest, 0)
	for rows.Next() {
		request, err := scanTimeOff(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return requests, nil
}

// UpdateTimeOffDecision persists a status transition guarded by from.
func (r *TimeOffRepository) UpdateTimeOffDecision(ctx context.Context, request persistence.TimeOffRequest, from persistence.TimeOffStatus) error {
	query := `UPDATE time_off_requests
		SET status = ?, manager_note = ?, decided_by_id = ?, decided_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`
	err := r.helper.ExecAffectingOne(ctx, query,
		string(request.Status),
		request.ManagerNote,
		nullableString(request.DecidedByID),
		nullableTime(request.DecidedAt),
		formatTime(request.UpdatedAt),
		request.ID,
		string(from),
	)
	if errors.Is(err, persistence.ErrNotFound) {
		if _, getErr := r.GetTimeOffRequest(ctx, request.ID); getErr != nil {
			return getErr
		}
		return persistence.ErrConflict
	}
	return err
}

// SetTimeOffEventLinks records the derived event ids.
func (r *TimeOffRepository) SetTimeOffEventLinks(ctx context.Context, id string, scheduleEventID, personalEventID *string, updatedAt time.Time) error {
	query := `UPDATE time_off_requests
		SET schedule_event_id = ?, personal_event_id = ?, updated_at = ?
		WHERE id = ?`
	return r.helper.ExecAffectingOne(ctx, query,
		nullableString(scheduleEventID),
		nullableString(personalEventID),
		formatTime(updatedAt),
		id,
	)
}

func scanTimeOff(row rowScanner) (persistence.TimeOffRequest, error) {
	var (
		request                          persistence.TimeOffRequest
		requestType, status              string
		startDate, endDate               string
		createdAt, updatedAt             string
		decidedBy, decidedAt             sql.NullString
		scheduleEventID, personalEventID sql.NullString
	)
	err := row.Scan(
		&request.ID,
		&request.BusinessID,
		&request.EmployeePositionID,
		&requestType,
		&startDate,
		&endDate,
		&request.Reason,
		&status,
		&request.ManagerNote,
		&decidedBy,
		&decidedAt,
		&scheduleEventID,
		&personalEventID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.TimeOffRequest{}, mapDriverError(err)
	}

	request.Type = persistence.TimeOffType(requestType)
	request.Status = persistence.TimeOffStatus(status)
	request.DecidedByID = stringPtr(decidedBy)
	request.ScheduleEventID = stringPtr(scheduleEventID)
	request.PersonalEventID = stringPtr(personalEventID)

	if request.StartDate, err = parseTime("start_date", startDate); err != nil {
		return persistence.TimeOffRequest{}, err
	}
	if request.EndDate, err = parseTime("end_date", endDate); err != nil {
		return persistence.TimeOffRequest{}, err
	}
	if request.DecidedAt, err = parseNullableTime("decided_at", decidedAt); err != nil {
		return persistence.TimeOffRequest{}, err
	}
	if request.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.TimeOffRequest{}, err
	}
	if request.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.TimeOffRequest{}, err
	}
	return request, nil
}
