package testfixtures

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/workforce-calendar/internal/persistence"
)

var (
	scheduleCounter uint64
	shiftCounter    uint64
	timeOffCounter  uint64
)

// referenceTime is a Monday morning in UTC.
var referenceTime = time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// Date returns midnight UTC of the given day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ----------------------------- Workforce -----------------------------

// Workforce is a small business directory: an admin, a manager, and two
// employees with active positions.
type Workforce struct {
	Business      persistence.Business
	Admin         persistence.User
	Manager       persistence.User
	Alice         persistence.User
	Bob           persistence.User
	Members       []persistence.BusinessMember
	AlicePosition persistence.EmployeePosition
	BobPosition   persistence.EmployeePosition
}

// WorkforceOption configures the generated workforce.
type WorkforceOption func(*Workforce)

// NewWorkforce returns the default directory for business "biz-1".
func NewWorkforce(opts ...WorkforceOption) Workforce {
	w := Workforce{
		Business: persistence.Business{ID: "biz-1", Name: "Corner Cafe", Timezone: "America/New_York"},
		Admin:    persistence.User{ID: "user-admin", Email: "admin@example.com", DisplayName: "Ada Admin"},
		Manager:  persistence.User{ID: "user-manager", Email: "manager@example.com", DisplayName: "Max Manager"},
		Alice:    persistence.User{ID: "user-alice", Email: "alice@example.com", DisplayName: "Alice Smith", DefaultWorkspaceName: "Alice's Workspace"},
		Bob:      persistence.User{ID: "user-bob", Email: "bob@example.com", DisplayName: "Bob Jones"},
	}
	w.AlicePosition = persistence.EmployeePosition{
		ID: "pos-alice", BusinessID: w.Business.ID, UserID: w.Alice.ID,
		PositionTitle: "Barista", DepartmentName: "Front of House", Active: true,
	}
	w.BobPosition = persistence.EmployeePosition{
		ID: "pos-bob", BusinessID: w.Business.ID, UserID: w.Bob.ID,
		PositionTitle: "Line Cook", DepartmentName: "Kitchen", Active: true,
	}
	w.Members = []persistence.BusinessMember{
		{BusinessID: w.Business.ID, UserID: w.Admin.ID, Role: persistence.BusinessRoleAdmin, Active: true},
		{BusinessID: w.Business.ID, UserID: w.Manager.ID, Role: persistence.BusinessRoleManager, Active: true},
		{BusinessID: w.Business.ID, UserID: w.Alice.ID, Role: persistence.BusinessRoleEmployee, Active: true},
		{BusinessID: w.Business.ID, UserID: w.Bob.ID, Role: persistence.BusinessRoleEmployee, Active: true},
	}
	for _, opt := range opts {
		opt(&w)
	}
	return w
}

// WithBusinessTimezone overrides the business time zone.
func WithBusinessTimezone(tz string) WorkforceOption {
	return func(w *Workforce) {
		w.Business.Timezone = tz
	}
}

// WithMemberRole overrides the business role and manage flag of one member.
func WithMemberRole(userID string, role persistence.BusinessRole, canManage bool) WorkforceOption {
	return func(w *Workforce) {
		for i := range w.Members {
			if w.Members[i].UserID == userID {
				w.Members[i].Role = role
				w.Members[i].CanManage = canManage
			}
		}
	}
}

// Users lists every user of the workforce.
func (w Workforce) Users() []persistence.User {
	return []persistence.User{w.Admin, w.Manager, w.Alice, w.Bob}
}

// Seed writes the workforce into a directory store.
func (w Workforce) Seed(ctx context.Context, writer persistence.DirectoryWriter) error {
	if err := writer.SaveBusiness(ctx, w.Business); err != nil {
		return fmt.Errorf("seed business: %w", err)
	}
	for _, user := range w.Users() {
		if err := writer.SaveUser(ctx, user); err != nil {
			return fmt.Errorf("seed user %s: %w", user.ID, err)
		}
	}
	for _, member := range w.Members {
		if err := writer.SaveBusinessMember(ctx, member); err != nil {
			return fmt.Errorf("seed member %s: %w", member.UserID, err)
		}
	}
	for _, position := range []persistence.EmployeePosition{w.AlicePosition, w.BobPosition} {
		if err := writer.SaveEmployeePosition(ctx, position); err != nil {
			return fmt.Errorf("seed position %s: %w", position.ID, err)
		}
	}
	return nil
}

// ----------------------------- Schedules -----------------------------

// ScheduleOption configures the generated schedule.
type ScheduleOption func(*persistence.Schedule)

// NewSchedule returns a DRAFT schedule for the week starting at ReferenceTime.
func NewSchedule(businessID string, opts ...ScheduleOption) persistence.Schedule {
	idx := atomic.AddUint64(&scheduleCounter, 1)
	week := Date(referenceTime.Year(), referenceTime.Month(), referenceTime.Day())
	schedule := persistence.Schedule{
		ID:         fmt.Sprintf("sched-%03d", idx),
		BusinessID: businessID,
		Name:       fmt.Sprintf("Week %d", idx),
		Status:     persistence.ScheduleDraft,
		StartDate:  week,
		EndDate:    week.AddDate(0, 0, 6),
		CreatedAt:  referenceTime,
		UpdatedAt:  referenceTime,
	}
	for _, opt := range opts {
		opt(&schedule)
	}
	return schedule
}

// WithScheduleID overrides the generated schedule ID.
func WithScheduleID(id string) ScheduleOption {
	return func(s *persistence.Schedule) {
		s.ID = id
	}
}

// WithScheduleName overrides the schedule name.
func WithScheduleName(name string) ScheduleOption {
	return func(s *persistence.Schedule) {
		s.Name = name
	}
}

// WithScheduleTimezone sets the schedule's own time zone.
func WithScheduleTimezone(tz string) ScheduleOption {
	return func(s *persistence.Schedule) {
		s.Timezone = tz
	}
}

// Published marks the schedule as PUBLISHED at ReferenceTime.
func Published() ScheduleOption {
	return func(s *persistence.Schedule) {
		published := referenceTime
		s.Status = persistence.SchedulePublished
		s.PublishedAt = &published
	}
}

// ShiftOption configures the generated shift.
type ShiftOption func(*persistence.ScheduleShift)

// NewShift returns an open 9:00-17:00 UTC shift on the schedule's first day.
func NewShift(schedule persistence.Schedule, opts ...ShiftOption) persistence.ScheduleShift {
	idx := atomic.AddUint64(&shiftCounter, 1)
	start := schedule.StartDate.Add(9 * time.Hour)
	shift := persistence.ScheduleShift{
		ID:            fmt.Sprintf("shift-%03d", idx),
		ScheduleID:    schedule.ID,
		BusinessID:    schedule.BusinessID,
		Title:         "Opening",
		PositionTitle: "Barista",
		StartTime:     start,
		EndTime:       start.Add(8 * time.Hour),
		Metadata:      map[string]any{},
		CreatedAt:     referenceTime,
		UpdatedAt:     referenceTime,
	}
	for _, opt := range opts {
		opt(&shift)
	}
	return shift
}

// WithShiftID overrides the generated shift ID.
func WithShiftID(id string) ShiftOption {
	return func(s *persistence.ScheduleShift) {
		s.ID = id
	}
}

// AssignedTo assigns the shift to an employee position.
func AssignedTo(positionID string) ShiftOption {
	return func(s *persistence.ScheduleShift) {
		id := positionID
		s.EmployeePositionID = &id
	}
}

// WithShiftTimes overrides the shift start and end.
func WithShiftTimes(start, end time.Time) ShiftOption {
	return func(s *persistence.ScheduleShift) {
		s.StartTime = start
		s.EndTime = end
	}
}

// WithShiftDetails sets the optional descriptive fields.
func WithShiftDetails(location string, breakMinutes int, notes string) ShiftOption {
	return func(s *persistence.ScheduleShift) {
		s.Location = location
		s.BreakMinutes = breakMinutes
		s.Notes = notes
	}
}

// WithShiftMetadata replaces the shift metadata.
func WithShiftMetadata(metadata map[string]any) ShiftOption {
	return func(s *persistence.ScheduleShift) {
		s.Metadata = metadata
	}
}

// ----------------------------- Time off -----------------------------

// TimeOffOption configures the generated request.
type TimeOffOption func(*persistence.TimeOffRequest)

// NewTimeOffRequest returns a PENDING PTO request for 2024-03-01..2024-03-03.
func NewTimeOffRequest(businessID, positionID string, opts ...TimeOffOption) persistence.TimeOffRequest {
	idx := atomic.AddUint64(&timeOffCounter, 1)
	request := persistence.TimeOffRequest{
		ID:                 fmt.Sprintf("tor-%03d", idx),
		BusinessID:         businessID,
		EmployeePositionID: positionID,
		Type:               persistence.TimeOffPTO,
		StartDate:          Date(2024, time.March, 1),
		EndDate:            Date(2024, time.March, 3),
		Reason:             "Family visit",
		Status:             persistence.TimeOffPending,
		CreatedAt:          referenceTime,
		UpdatedAt:          referenceTime,
	}
	for _, opt := range opts {
		opt(&request)
	}
	return request
}

// WithTimeOffID overrides the generated request ID.
func WithTimeOffID(id string) TimeOffOption {
	return func(r *persistence.TimeOffRequest) {
		r.ID = id
	}
}

// WithTimeOffStatus overrides the request status.
func WithTimeOffStatus(status persistence.TimeOffStatus) TimeOffOption {
	return func(r *persistence.TimeOffRequest) {
		r.Status = status
	}
}

// WithTimeOffDates overrides the inclusive date range.
func WithTimeOffDates(start, end time.Time) TimeOffOption {
	return func(r *persistence.TimeOffRequest) {
		r.StartDate = start
		r.EndDate = end
	}
}

// WithTimeOffType overrides the request type.
func WithTimeOffType(t persistence.TimeOffType) TimeOffOption {
	return func(r *persistence.TimeOffRequest) {
		r.Type = t
	}
}
