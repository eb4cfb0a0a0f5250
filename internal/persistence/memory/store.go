// Package memory provides a map-backed implementation of the persistence
// repositories. It enforces the same uniqueness rules as the SQLite schema and
// is used by tests and fixtures.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/example/workforce-calendar/internal/persistence"
)

type memberKey struct {
	calendarID string
	userID     string
}

type businessMemberKey struct {
	businessID string
	userID     string
}

// Store keeps every record in process memory guarded by a single RWMutex.
type Store struct {
	mu sync.RWMutex
	// txMu is held for the whole of a WithinTransaction call.
	txMu sync.Mutex

	calendars map[string]persistence.Calendar
	members   map[memberKey]persistence.CalendarMember
	events    map[string]persistence.Event
	settings  map[string]persistence.BusinessSettings

	users      map[string]persistence.User
	businesses map[string]persistence.Business
	bizMembers map[businessMemberKey]persistence.BusinessMember
	positions  map[string]persistence.EmployeePosition

	timeOff   map[string]persistence.TimeOffRequest
	schedules map[string]persistence.Schedule
	shifts    map[string]persistence.ScheduleShift
}

// New returns an empty store.
func New() *Store {
	return &Store{
		calendars:  make(map[string]persistence.Calendar),
		members:    make(map[memberKey]persistence.CalendarMember),
		events:     make(map[string]persistence.Event),
		settings:   make(map[string]persistence.BusinessSettings),
		users:      make(map[string]persistence.User),
		businesses: make(map[string]persistence.Business),
		bizMembers: make(map[businessMemberKey]persistence.BusinessMember),
		positions:  make(map[string]persistence.EmployeePosition),
		timeOff:    make(map[string]persistence.TimeOffRequest),
		schedules:  make(map[string]persistence.Schedule),
		shifts:     make(map[string]persistence.ScheduleShift),
	}
}

type txKey struct{}

// WithinTransaction runs fn while holding the store's transaction lock, so
// transactions never interleave with one another. A nested call joins the
// outer transaction. There is no rollback.
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(context.WithValue(ctx, txKey{}, true))
}

// --- CalendarRepository ---

// CreateCalendar stores a new calendar.
func (s *Store) CreateCalendar(ctx context.Context, calendar persistence.Calendar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.calendars[calendar.ID]; ok {
		return fmt.Errorf("memory: calendar %s: %w", calendar.ID, persistence.ErrDuplicate)
	}
	if calendar.ContextType == persistence.CalendarContextPersonal && calendar.IsPrimary {
		for _, existing := range s.calendars {
			if existing.ContextType == persistence.CalendarContextPersonal && existing.IsPrimary && existing.ContextID == calendar.ContextID {
				return fmt.Errorf("memory: primary calendar for %s: %w", calendar.ContextID, persistence.ErrDuplicate)
			}
		}
	}
	s.calendars[calendar.ID] = calendar
	return nil
}

// GetCalendar retrieves a calendar by ID.
func (s *Store) GetCalendar(ctx context.Context, id string) (persistence.Calendar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	calendar, ok := s.calendars[id]
	if !ok {
		return persistence.Calendar{}, persistence.ErrNotFound
	}
	return calendar, nil
}

// FindPrimaryPersonalCalendar returns the user's primary personal calendar.
func (s *Store) FindPrimaryPersonalCalendar(ctx context.Context, userID string) (persistence.Calendar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, calendar := range s.calendars {
		if calendar.ContextType == persistence.CalendarContextPersonal && calendar.IsPrimary && calendar.ContextID == userID {
			return calendar, nil
		}
	}
	return persistence.Calendar{}, persistence.ErrNotFound
}

// DeleteCalendar removes a calendar with its members and events.
func (s *Store) DeleteCalendar(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.calendars[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.calendars, id)
	for key := range s.members {
		if key.calendarID == id {
			delete(s.members, key)
		}
	}
	for eventID, event := range s.events {
		if event.CalendarID == id {
			delete(s.events, eventID)
		}
	}
	return nil
}

// GetMember retrieves one membership row.
func (s *Store) GetMember(ctx context.Context, calendarID, userID string) (persistence.CalendarMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	member, ok := s.members[memberKey{calendarID, userID}]
	if !ok {
		return persistence.CalendarMember{}, persistence.ErrNotFound
	}
	return member, nil
}

// CreateMember stores a membership row.
func (s *Store) CreateMember(ctx context.Context, member persistence.CalendarMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.calendars[member.CalendarID]; !ok {
		return persistence.ErrForeignKeyViolation
	}
	key := memberKey{member.CalendarID, member.UserID}
	if _, ok := s.members[key]; ok {
		return persistence.ErrDuplicate
	}
	s.members[key] = member
	return nil
}

// UpdateMemberRole changes the role of an existing member.
func (s *Store) UpdateMemberRole(ctx context.Context, calendarID, userID string, role persistence.CalendarRole, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memberKey{calendarID, userID}
	member, ok := s.members[key]
	if !ok {
		return persistence.ErrNotFound
	}
	member.Role = role
	member.UpdatedAt = updatedAt
	s.members[key] = member
	return nil
}

// ListMembers returns the members of a calendar ordered by user ID.
func (s *Store) ListMembers(ctx context.Context, calendarID string) ([]persistence.CalendarMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := make([]persistence.CalendarMember, 0)
	for key, member := range s.members {
		if key.calendarID == calendarID {
			members = append(members, member)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })
	return members, nil
}

// ListCalendars returns all calendars of a context ordered by ID.
func (s *Store) ListCalendars(ctx context.Context, contextType persistence.CalendarContextType, contextID string) ([]persistence.Calendar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	calendars := make([]persistence.Calendar, 0)
	for _, calendar := range s.calendars {
		if calendar.ContextType == contextType && calendar.ContextID == contextID {
			calendars = append(calendars, calendar)
		}
	}
	sort.Slice(calendars, func(i, j int) bool { return calendars[i].ID < calendars[j].ID })
	return calendars, nil
}

// --- EventRepository ---

// CreateEvent stores a new event with its attendees.
func (s *Store) CreateEvent(ctx context.Context, event persistence.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[event.ID]; ok {
		return persistence.ErrDuplicate
	}
	if _, ok := s.calendars[event.CalendarID]; !ok {
		return persistence.ErrForeignKeyViolation
	}
	s.events[event.ID] = cloneEvent(event)
	return nil
}

// UpdateEvent rewrites an event and replaces its attendees.
func (s *Store) UpdateEvent(ctx context.Context, event persistence.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.events[event.ID]
	if !ok {
		return persistence.ErrNotFound
	}
	event.CreatedAt = existing.CreatedAt
	s.events[event.ID] = cloneEvent(event)
	return nil
}

// GetEvent retrieves an event by ID.
func (s *Store) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, ok := s.events[id]
	if !ok {
		return persistence.Event{}, persistence.ErrNotFound
	}
	return cloneEvent(event), nil
}

// DeleteEvent removes an event by ID.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.events, id)
	return nil
}

// ListEvents returns the events of a calendar ordered by start time.
func (s *Store) ListEvents(ctx context.Context, calendarID string) ([]persistence.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]persistence.Event, 0)
	for _, event := range s.events {
		if event.CalendarID == calendarID {
			events = append(events, cloneEvent(event))
		}
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].StartAt.Equal(events[j].StartAt) {
			return events[i].ID < events[j].ID
		}
		return events[i].StartAt.Before(events[j].StartAt)
	})
	return events, nil
}

// --- SettingsRepository ---

// GetBusinessSettings retrieves the settings row of a business.
func (s *Store) GetBusinessSettings(ctx context.Context, businessID string) (persistence.BusinessSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings, ok := s.settings[businessID]
	if !ok {
		return persistence.BusinessSettings{}, persistence.ErrNotFound
	}
	return cloneSettings(settings), nil
}

// CreateBusinessSettings stores the settings row of a business.
func (s *Store) CreateBusinessSettings(ctx context.Context, settings persistence.BusinessSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.settings[settings.BusinessID]; ok {
		return persistence.ErrDuplicate
	}
	s.settings[settings.BusinessID] = cloneSettings(settings)
	return nil
}

// SwapScheduleCalendar installs a calendar id if the cached one still matches expected.
func (s *Store) SwapScheduleCalendar(ctx context.Context, businessID string, expected *string, calendarID string, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, ok := s.settings[businessID]
	if !ok {
		return persistence.ErrNotFound
	}
	if !equalOptional(settings.ScheduleCalendarID, expected) {
		return persistence.ErrConflict
	}
	settings.ScheduleCalendarID = &calendarID
	settings.UpdatedAt = updatedAt
	s.settings[businessID] = settings
	return nil
}

// --- DirectoryRepository / DirectoryWriter ---

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (persistence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return persistence.User{}, persistence.ErrNotFound
	}
	return user, nil
}

// GetBusiness retrieves a business by ID.
func (s *Store) GetBusiness(ctx context.Context, id string) (persistence.Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	business, ok := s.businesses[id]
	if !ok {
		return persistence.Business{}, persistence.ErrNotFound
	}
	return business, nil
}

// GetBusinessMember retrieves the membership of a user in a business.
func (s *Store) GetBusinessMember(ctx context.Context, businessID, userID string) (persistence.BusinessMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	member, ok := s.bizMembers[businessMemberKey{businessID, userID}]
	if !ok {
		return persistence.BusinessMember{}, persistence.ErrNotFound
	}
	return member, nil
}

// ListActiveBusinessMembers returns active members of a business ordered by user ID.
func (s *Store) ListActiveBusinessMembers(ctx context.Context, businessID string) ([]persistence.BusinessMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := make([]persistence.BusinessMember, 0)
	for key, member := range s.bizMembers {
		if key.businessID == businessID && member.Active {
			members = append(members, member)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })
	return members, nil
}

// GetEmployeePosition retrieves an employee position by ID.
func (s *Store) GetEmployeePosition(ctx context.Context, id string) (persistence.EmployeePosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	position, ok := s.positions[id]
	if !ok {
		return persistence.EmployeePosition{}, persistence.ErrNotFound
	}
	return position, nil
}

// SaveUser inserts or replaces a user.
func (s *Store) SaveUser(ctx context.Context, user persistence.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
	return nil
}

// SaveBusiness inserts or replaces a business.
func (s *Store) SaveBusiness(ctx context.Context, business persistence.Business) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.businesses[business.ID] = business
	return nil
}

// SaveBusinessMember inserts or replaces a business membership.
func (s *Store) SaveBusinessMember(ctx context.Context, member persistence.BusinessMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bizMembers[businessMemberKey{member.BusinessID, member.UserID}] = member
	return nil
}

// SaveEmployeePosition inserts or replaces an employee position.
func (s *Store) SaveEmployeePosition(ctx context.Context, position persistence.EmployeePosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[position.ID] = position
	return nil
}

// --- TimeOffRepository ---

// CreateTimeOffRequest stores a new request.
func (s *Store) CreateTimeOffRequest(ctx context.Context, request persistence.TimeOffRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.timeOff[request.ID]; ok {
		return persistence.ErrDuplicate
	}
	s.timeOff[request.ID] = cloneTimeOff(request)
	return nil
}

// GetTimeOffRequest retrieves a request by ID.
func (s *Store) GetTimeOffRequest(ctx context.Context, id string) (persistence.TimeOffRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	request, ok := s.timeOff[id]
	if !ok {
		return persistence.TimeOffRequest{}, persistence.ErrNotFound
	}
	return cloneTimeOff(request), nil
}

// ListTimeOffRequests returns requests matching the filter ordered by start date.
func (s *Store) ListTimeOffRequests(ctx context.Context, filter persistence.TimeOffFilter) ([]persistence.TimeOffRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	requests := make([]persistence.TimeOffRequest, 0)
	for _, request := range s.timeOff {
		if filter.EmployeePositionID != "" && request.EmployeePositionID != filter.EmployeePositionID {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, request.Status) {
			continue
		}
		if filter.StartsOnOrBefore != nil && request.StartDate.After(*filter.StartsOnOrBefore) {
			continue
		}
		if filter.EndsOnOrAfter != nil && request.EndDate.Before(*filter.EndsOnOrAfter) {
			continue
		}
		requests = append(requests, cloneTimeOff(request))
	}
	sort.Slice(requests, func(i, j int) bool {
		if requests[i].StartDate.Equal(requests[j].StartDate) {
			return requests[i].ID < requests[j].ID
		}
		return requests[i].StartDate.Before(requests[j].StartDate)
	})
	return requests, nil
}

// UpdateTimeOffDecision persists a status transition guarded by the previous status.
func (s *Store) UpdateTimeOffDecision(ctx context.Context, request persistence.TimeOffRequest, from persistence.TimeOffStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.timeOff[request.ID]
	if !ok {
		return persistence.ErrNotFound
	}
	if existing.Status != from {
		return persistence.ErrConflict
	}
	existing.Status = request.Status
	existing.ManagerNote = request.ManagerNote
	existing.DecidedByID = cloneString(request.DecidedByID)
	existing.DecidedAt = cloneTime(request.DecidedAt)
	existing.UpdatedAt = request.UpdatedAt
	s.timeOff[request.ID] = existing
	return nil
}

// SetTimeOffEventLinks records the derived event ids on a request.
func (s *Store) SetTimeOffEventLinks(ctx context.Context, id string, scheduleEventID, personalEventID *string, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.timeOff[id]
	if !ok {
		return persistence.ErrNotFound
	}
	existing.ScheduleEventID = cloneString(scheduleEventID)
	existing.PersonalEventID = cloneString(personalEventID)
	existing.UpdatedAt = updatedAt
	s.timeOff[id] = existing
	return nil
}

// --- ScheduleRepository ---

// CreateSchedule stores a new schedule.
func (s *Store) CreateSchedule(ctx context.Context, schedule persistence.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.schedules[schedule.ID]; ok {
		return persistence.ErrDuplicate
	}
	schedule.PublishedAt = cloneTime(schedule.PublishedAt)
	s.schedules[schedule.ID] = schedule
	return nil
}

// CreateShift stores a new shift.
func (s *Store) CreateShift(ctx context.Context, shift persistence.ScheduleShift) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.shifts[shift.ID]; ok {
		return persistence.ErrDuplicate
	}
	if _, ok := s.schedules[shift.ScheduleID]; !ok {
		return persistence.ErrForeignKeyViolation
	}
	metadata, err := normalizeMetadata(shift.Metadata)
	if err != nil {
		return err
	}
	shift.Metadata = metadata
	shift.EmployeePositionID = cloneString(shift.EmployeePositionID)
	s.shifts[shift.ID] = shift
	return nil
}

// GetSchedule retrieves a schedule by ID.
func (s *Store) GetSchedule(ctx context.Context, id string) (persistence.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schedule, ok := s.schedules[id]
	if !ok {
		return persistence.Schedule{}, persistence.ErrNotFound
	}
	schedule.PublishedAt = cloneTime(schedule.PublishedAt)
	return schedule, nil
}

// UpdateScheduleStatus transitions a schedule guarded by its previous status.
func (s *Store) UpdateScheduleStatus(ctx context.Context, id string, from, to persistence.ScheduleStatus, publishedAt *time.Time, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedule, ok := s.schedules[id]
	if !ok {
		return persistence.ErrNotFound
	}
	if schedule.Status != from {
		return persistence.ErrConflict
	}
	schedule.Status = to
	schedule.PublishedAt = cloneTime(publishedAt)
	schedule.UpdatedAt = updatedAt
	s.schedules[id] = schedule
	return nil
}

// ListShifts returns the shifts of a schedule ordered by start time.
func (s *Store) ListShifts(ctx context.Context, scheduleID string) ([]persistence.ScheduleShift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shifts := make([]persistence.ScheduleShift, 0)
	for _, shift := range s.shifts {
		if shift.ScheduleID == scheduleID {
			shifts = append(shifts, cloneShift(shift))
		}
	}
	sort.Slice(shifts, func(i, j int) bool {
		if shifts[i].StartTime.Equal(shifts[j].StartTime) {
			return shifts[i].ID < shifts[j].ID
		}
		return shifts[i].StartTime.Before(shifts[j].StartTime)
	})
	return shifts, nil
}

// GetShift retrieves a shift by ID.
func (s *Store) GetShift(ctx context.Context, id string) (persistence.ScheduleShift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shift, ok := s.shifts[id]
	if !ok {
		return persistence.ScheduleShift{}, persistence.ErrNotFound
	}
	return cloneShift(shift), nil
}

// UpdateShift rewrites the shift columns and keeps the stored metadata.
func (s *Store) UpdateShift(ctx context.Context, shift persistence.ScheduleShift) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.shifts[shift.ID]
	if !ok {
		return persistence.ErrNotFound
	}
	shift.Metadata = existing.Metadata
	shift.CreatedAt = existing.CreatedAt
	shift.EmployeePositionID = cloneString(shift.EmployeePositionID)
	s.shifts[shift.ID] = shift
	return nil
}

// MergeShiftMetadata sets one metadata key under the store lock.
func (s *Store) MergeShiftMetadata(ctx context.Context, shiftID, key string, value any, updatedAt time.Time) error {
	normalized, err := normalizeValue(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	shift, ok := s.shifts[shiftID]
	if !ok {
		return persistence.ErrNotFound
	}
	merged := make(map[string]any, len(shift.Metadata)+1)
	for k, v := range shift.Metadata {
		merged[k] = v
	}
	merged[key] = normalized
	shift.Metadata = merged
	shift.UpdatedAt = updatedAt
	s.shifts[shiftID] = shift
	return nil
}

// --- helpers ---

func cloneEvent(event persistence.Event) persistence.Event {
	if event.Attendees == nil {
		return event
	}
	attendees := make([]persistence.EventAttendee, len(event.Attendees))
	for i, attendee := range event.Attendees {
		attendee.UserID = cloneString(attendee.UserID)
		attendee.Email = cloneString(attendee.Email)
		attendees[i] = attendee
	}
	event.Attendees = attendees
	return event
}

func cloneSettings(settings persistence.BusinessSettings) persistence.BusinessSettings {
	settings.ScheduleCalendarID = cloneString(settings.ScheduleCalendarID)
	return settings
}

func cloneTimeOff(request persistence.TimeOffRequest) persistence.TimeOffRequest {
	request.DecidedByID = cloneString(request.DecidedByID)
	request.DecidedAt = cloneTime(request.DecidedAt)
	request.ScheduleEventID = cloneString(request.ScheduleEventID)
	request.PersonalEventID = cloneString(request.PersonalEventID)
	return request
}

func cloneShift(shift persistence.ScheduleShift) persistence.ScheduleShift {
	shift.EmployeePositionID = cloneString(shift.EmployeePositionID)
	if shift.Metadata != nil {
		// Values were normalized through JSON on write, so a round trip is a deep copy.
		copied, err := normalizeMetadata(shift.Metadata)
		if err == nil {
			shift.Metadata = copied
		}
	}
	return shift
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

func equalOptional(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// normalizeMetadata round-trips metadata through JSON so the stored shape
// matches what the SQLite store returns.
func normalizeMetadata(metadata map[string]any) (map[string]any, error) {
	if metadata == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("memory: encode metadata: %w", err)
	}
	out := make(map[string]any)
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("memory: decode metadata: %w", err)
	}
	return out, nil
}

func normalizeValue(value any) (any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("memory: encode metadata value: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("memory: decode metadata value: %w", err)
	}
	return out, nil
}
