package persistence

import (
	"context"
	"time"
)

// CalendarRepository stores calendars and their members.
type CalendarRepository interface {
	CreateCalendar(ctx context.Context, calendar Calendar) error
	GetCalendar(ctx context.Context, id string) (Calendar, error)
	// FindPrimaryPersonalCalendar returns the user's primary PERSONAL calendar.
	FindPrimaryPersonalCalendar(ctx context.Context, userID string) (Calendar, error)
	DeleteCalendar(ctx context.Context, id string) error

	GetMember(ctx context.Context, calendarID, userID string) (CalendarMember, error)
	// CreateMember returns ErrDuplicate when the (calendar, user) pair exists.
	CreateMember(ctx context.Context, member CalendarMember) error
	UpdateMemberRole(ctx context.Context, calendarID, userID string, role CalendarRole, updatedAt time.Time) error
}

// EventRepository stores events together with their attendee set.
type EventRepository interface {
	CreateEvent(ctx context.Context, event Event) error
	// UpdateEvent rewrites the event fields and replaces the attendee set.
	UpdateEvent(ctx context.Context, event Event) error
	GetEvent(ctx context.Context, id string) (Event, error)
	DeleteEvent(ctx context.Context, id string) error
}

// SettingsRepository stores the per-business settings row.
type SettingsRepository interface {
	GetBusinessSettings(ctx context.Context, businessID string) (BusinessSettings, error)
	// CreateBusinessSettings returns ErrDuplicate when the business already has a row.
	CreateBusinessSettings(ctx context.Context, settings BusinessSettings) error
	// SwapScheduleCalendar sets the cached calendar id only if the stored value
	// still equals expected (nil meaning unset). It returns ErrConflict otherwise.
	SwapScheduleCalendar(ctx context.Context, businessID string, expected *string, calendarID string, updatedAt time.Time) error
}

// DirectoryRepository exposes the organizational directory.
type DirectoryRepository interface {
	GetUser(ctx context.Context, id string) (User, error)
	GetBusiness(ctx context.Context, id string) (Business, error)
	GetBusinessMember(ctx context.Context, businessID, userID string) (BusinessMember, error)
	ListActiveBusinessMembers(ctx context.Context, businessID string) ([]BusinessMember, error)
	GetEmployeePosition(ctx context.Context, id string) (EmployeePosition, error)
}

// DirectoryWriter maintains directory records. Each Save call inserts or
// replaces the record identified by its key.
type DirectoryWriter interface {
	SaveUser(ctx context.Context, user User) error
	SaveBusiness(ctx context.Context, business Business) error
	SaveBusinessMember(ctx context.Context, member BusinessMember) error
	SaveEmployeePosition(ctx context.Context, position EmployeePosition) error
}

// TimeOffFilter narrows time-off queries.
type TimeOffFilter struct {
	EmployeePositionID string
	Statuses           []TimeOffStatus
	StartsOnOrBefore   *time.Time
	EndsOnOrAfter      *time.Time
}

// TimeOffRepository stores time-off requests.
type TimeOffRepository interface {
	CreateTimeOffRequest(ctx context.Context, request TimeOffRequest) error
	GetTimeOffRequest(ctx context.Context, id string) (TimeOffRequest, error)
	ListTimeOffRequests(ctx context.Context, filter TimeOffFilter) ([]TimeOffRequest, error)
	// UpdateTimeOffDecision persists a status transition. It returns ErrConflict
	// when the stored status no longer equals from.
	UpdateTimeOffDecision(ctx context.Context, request TimeOffRequest, from TimeOffStatus) error
	SetTimeOffEventLinks(ctx context.Context, id string, scheduleEventID, personalEventID *string, updatedAt time.Time) error
}

// ScheduleRepository stores schedules and their shifts.
type ScheduleRepository interface {
	CreateSchedule(ctx context.Context, schedule Schedule) error
	CreateShift(ctx context.Context, shift ScheduleShift) error
	GetSchedule(ctx context.Context, id string) (Schedule, error)
	UpdateScheduleStatus(ctx context.Context, id string, from, to ScheduleStatus, publishedAt *time.Time, updatedAt time.Time) error
	ListShifts(ctx context.Context, scheduleID string) ([]ScheduleShift, error)
	GetShift(ctx context.Context, id string) (ScheduleShift, error)
	// UpdateShift rewrites the shift columns. Metadata is left untouched.
	UpdateShift(ctx context.Context, shift ScheduleShift) error
	// MergeShiftMetadata sets one top-level metadata key, preserving all others.
	MergeShiftMetadata(ctx context.Context, shiftID, key string, value any, updatedAt time.Time) error
}

// Transactor scopes a group of repository calls to one transaction. Repositories
// called with the context passed to fn participate in that transaction.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
