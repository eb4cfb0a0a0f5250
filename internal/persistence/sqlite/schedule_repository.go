package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/example/workforce-calendar/internal/persistence"
)

// ScheduleRepository implements persistence.ScheduleRepository using SQLite.
type ScheduleRepository struct {
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewScheduleRepository creates a new SQLite schedule repository.
func NewScheduleRepository(pool *ConnectionPool) *ScheduleRepository {
	return &ScheduleRepository{
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const scheduleColumns = `id, business_id, name, status, timezone, start_date, end_date, published_at, created_at, updated_at`

const shiftColumns = `id, schedule_id, business_id, employee_position_id, title, position_title, start_time, end_time,
	break_minutes, location, notes, metadata, created_at, updated_at`

// CreateSchedule inserts a schedule.
func (r *ScheduleRepository) CreateSchedule(ctx context.Context, schedule persistence.Schedule) error {
	if schedule.ID == "" {
		return persistence.ErrConstraintViolation
	}
	query := `INSERT INTO schedules (` + scheduleColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.helper.Exec(ctx, query,
		schedule.ID,
		schedule.BusinessID,
		schedule.Name,
		string(schedule.Status),
		schedule.Timezone,
		formatTime(schedule.StartDate),
		formatTime(schedule.EndDate),
		nullableTime(schedule.PublishedAt),
		formatTime(schedule.CreatedAt),
		formatTime(schedule.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// GetSchedule retrieves a schedule by ID.
func (r *ScheduleRepository) GetSchedule(ctx context.Context, id string) (persistence.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = ?`

	var (
		schedule             persistence.Schedule
		status               string
		startDate, endDate   string
		publishedAt          sql.NullString
		createdAt, updatedAt string
	)
	err := r.helper.QueryRow(ctx, query, id).Scan(
		&schedule.ID,
		&schedule.BusinessID,
		&schedule.Name,
		&status,
		&schedule.Timezone,
		&startDate,
		&endDate,
		&publishedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.Schedule{}, r.mapper.MapError(err)
	}
	schedule.Status = persistence.ScheduleStatus(status)

	if schedule.StartDate, err = parseTime("start_date", startDate); err != nil {
		return persistence.Schedule{}, err
	}
	if schedule.EndDate, err = parseTime("end_date", endDate); err != nil {
		return persistence.Schedule{}, err
	}
	if schedule.PublishedAt, err = parseNullableTime("published_at", publishedAt); err != nil {
		return persistence.Schedule{}, err
	}
	if schedule.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Schedule{}, err
	}
	if schedule.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.Schedule{}, err
	}
	return schedule, nil
}

// UpdateScheduleStatus transitions a schedule guarded by its previous status.
func (r *ScheduleRepository) UpdateScheduleStatus(ctx context.Context, id string, from, to persistence.ScheduleStatus, publishedAt *time.Time, updatedAt time.Time) error {
	query := `UPDATE schedules SET status = ?, published_at = ?, updated_at = ? WHERE id = ? AND status = ?`
	err := r.helper.ExecAffectingOne(ctx, query,
		string(to),
		nullableTime(publishedAt),
		formatTime(updatedAt),
		id,
		string(from),
	)
	if errors.Is(err, persistence.ErrNotFound) {
		if _, getErr := r.GetSchedule(ctx, id); getErr != nil {
			return getErr
		}
		return persistence.ErrConflict
	}
	return err
}

// CreateShift inserts a shift.
func (r *ScheduleRepository) CreateShift(ctx context.Context, shift persistence.ScheduleShift) error {
	if shift.ID == "" {
		return persistence.ErrConstraintViolation
	}
	metadata := shift.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("sqlite: encode shift metadata: %w", err)
	}

	query := `INSERT INTO schedule_shifts (` + shiftColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.helper.Exec(ctx, query,
		shift.ID,
		shift.ScheduleID,
		shift.BusinessID,
		nullableString(shift.EmployeePositionID),
		shift.Title,
		shift.PositionTitle,
		formatTime(shift.StartTime),
		formatTime(shift.EndTime),
		shift.BreakMinutes,
		shift.Location,
		shift.Notes,
		string(encoded),
		formatTime(shift.CreatedAt),
		formatTime(shift.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// ListShifts returns the shifts of a schedule ordered by start time.
func (r *ScheduleRepository) ListShifts(ctx context.Context, scheduleID string) ([]persistence.ScheduleShift, error) {
	query := `SELECT ` + shiftColumns + ` FROM schedule_shifts WHERE schedule_id = ? ORDER BY start_time ASC, id ASC`
	rows, err := r.helper.Query(ctx, query, scheduleID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	shifts := make([]persistence.ScheduleShift, 0)
	for rows.Next() {
		shift, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, shift)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return shifts, nil
}

// GetShift retrieves a shift by ID.
func (r *ScheduleRepository) GetShift(ctx context.Context, id string) (persistence.ScheduleShift, error) {
	query := `SELECT ` + shiftColumns + ` FROM schedule_shifts WHERE id = ?`
	return scanShift(r.helper.QueryRow(ctx, query, id))
}

// UpdateShift rewrites the shift columns. The metadata column is not touched.
func (r *ScheduleRepository) UpdateShift(ctx context.Context, shift persistence.ScheduleShift) error {
	query := `UPDATE schedule_shifts
		SET employee_position_id = ?, title = ?, position_title = ?, start_time = ?, end_time = ?,
		    break_minutes = ?, location = ?, notes = ?, updated_at = ?
		WHERE id = ?`
	return r.helper.ExecAffectingOne(ctx, query,
		nullableString(shift.EmployeePositionID),
		shift.Title,
		shift.PositionTitle,
		formatTime(shift.StartTime),
		formatTime(shift.EndTime),
		shift.BreakMinutes,
		shift.Location,
		shift.Notes,
		formatTime(shift.UpdatedAt),
		shift.ID,
	)
}

// MergeShiftMetadata sets one top-level metadata key in a single statement so
// concurrent writers of other keys are never overwritten.
func (r *ScheduleRepository) MergeShiftMetadata(ctx context.Context, shiftID, key string, value any, updatedAt time.Time) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("sqlite: encode metadata %s: %w", key, err)
	}
	query := `UPDATE schedule_shifts
		SET metadata = json_set(COALESCE(NULLIF(metadata, ''), '{}'), ?, json(?)), updated_at = ?
		WHERE id = ?`
	return r.helper.ExecAffectingOne(ctx, query,
		"$."+strconv.Quote(key),
		string(encoded),
		formatTime(updatedAt),
		shiftID,
	)
}

func scanShift(row rowScanner) (persistence.ScheduleShift, error) {
	var (
		shift                persistence.ScheduleShift
		positionID           sql.NullString
		startTime, endTime   string
		metadata             string
		createdAt, updatedAt string
	)
	err := row.Scan(
		&shift.ID,
		&shift.ScheduleID,
		&shift.BusinessID,
		&positionID,
		&shift.Title,
		&shift.PositionTitle,
		&startTime,
		&endTime,
		&shift.BreakMinutes,
		&shift.Location,
		&shift.Notes,
		&metadata,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.ScheduleShift{}, mapDriverError(err)
	}
	shift.EmployeePositionID = stringPtr(positionID)

	shift.Metadata = map[string]any{}
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &shift.Metadata); err != nil {
			return persistence.ScheduleShift{}, fmt.Errorf("sqlite: decode metadata of shift %s: %w", shift.ID, err)
		}
	}

	if shift.StartTime, err = parseTime("start_time", startTime); err != nil {
		return persistence.ScheduleShift{}, err
	}
	if shift.EndTime, err = parseTime("end_time", endTime); err != nil {
		return persistence.ScheduleShift{}, err
	}
	if shift.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.ScheduleShift{}, err
	}
	if shift.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.ScheduleShift{}, err
	}
	return shift, nil
}
