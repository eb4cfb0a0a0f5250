package persistence

import "time"

// CalendarContextType identifies who a calendar belongs to.
type CalendarContextType string

const (
	CalendarContextPersonal  CalendarContextType = "PERSONAL"
	CalendarContextBusiness  CalendarContextType = "BUSINESS"
	CalendarContextHousehold CalendarContextType = "HOUSEHOLD"
)

// CalendarRole is the access level a member holds on a calendar.
type CalendarRole string

const (
	CalendarRoleOwner    CalendarRole = "OWNER"
	CalendarRoleAdmin    CalendarRole = "ADMIN"
	CalendarRoleEditor   CalendarRole = "EDITOR"
	CalendarRoleReader   CalendarRole = "READER"
	CalendarRoleFreeBusy CalendarRole = "FREE_BUSY"
)

// Rank orders roles by privilege. Unknown roles rank below FREE_BUSY.
func (r CalendarRole) Rank() int {
	switch r {
	case CalendarRoleOwner:
		return 5
	case CalendarRoleAdmin:
		return 4
	case CalendarRoleEditor:
		return 3
	case CalendarRoleReader:
		return 2
	case CalendarRoleFreeBusy:
		return 1
	default:
		return 0
	}
}

// EventStatus is the confirmation state of a calendar event.
type EventStatus string

const (
	EventStatusConfirmed EventStatus = "CONFIRMED"
	EventStatusTentative EventStatus = "TENTATIVE"
	EventStatusCanceled  EventStatus = "CANCELED"
)

// AttendeeResponse records how an attendee acknowledged an event.
type AttendeeResponse string

const (
	AttendeeNeedsAction AttendeeResponse = "NEEDS_ACTION"
	AttendeeAccepted    AttendeeResponse = "ACCEPTED"
	AttendeeDeclined    AttendeeResponse = "DECLINED"
	AttendeeTentative   AttendeeResponse = "TENTATIVE"
)

// Calendar is a container of events owned by a user, business, or household.
type Calendar struct {
	ID          string
	Name        string
	ContextType CalendarContextType
	ContextID   string
	Timezone    string
	IsPrimary   bool
	IsSystem    bool
	IsDeletable bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CalendarMember grants a user a role on a calendar.
type CalendarMember struct {
	CalendarID string
	UserID     string
	Role       CalendarRole
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Event is a calendar entry. Attendees are stored alongside the event and are
// always written as a full set.
type Event struct {
	ID          string
	CalendarID  string
	Title       string
	Description string
	StartAt     time.Time
	EndAt       time.Time
	AllDay      bool
	Timezone    string
	Status      EventStatus
	Attendees   []EventAttendee
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EventAttendee is a participant of an event identified by user id, email, or both.
type EventAttendee struct {
	ID       string
	EventID  string
	UserID   *string
	Email    *string
	Response AttendeeResponse
}

// BusinessSettings is the single per-business settings row. It caches the id of
// the shared Schedule calendar.
type BusinessSettings struct {
	BusinessID         string
	ScheduleCalendarID *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Business is an organization whose members share a Schedule calendar.
type Business struct {
	ID       string
	Name     string
	Timezone string
}

// BusinessRole is a member's organizational role inside a business.
type BusinessRole string

const (
	BusinessRoleAdmin    BusinessRole = "ADMIN"
	BusinessRoleManager  BusinessRole = "MANAGER"
	BusinessRoleEmployee BusinessRole = "EMPLOYEE"
)

// User is a directory entry for a person.
type User struct {
	ID                   string
	Email                string
	DisplayName          string
	DefaultWorkspaceName string
}

// BusinessMember links a user to a business with an organizational role.
type BusinessMember struct {
	BusinessID string
	UserID     string
	Role       BusinessRole
	CanManage  bool
	Active     bool
}

// EmployeePosition is an employee's assignment to a position in a business.
type EmployeePosition struct {
	ID             string
	BusinessID     string
	UserID         string
	PositionTitle  string
	DepartmentName string
	Active         bool
}

// TimeOffStatus is the lifecycle state of a time-off request.
type TimeOffStatus string

const (
	TimeOffPending  TimeOffStatus = "PENDING"
	TimeOffApproved TimeOffStatus = "APPROVED"
	TimeOffDenied   TimeOffStatus = "DENIED"
	TimeOffCanceled TimeOffStatus = "CANCELED"
)

// TimeOffType classifies a time-off request.
type TimeOffType string

const (
	TimeOffPTO         TimeOffType = "PTO"
	TimeOffSick        TimeOffType = "SICK"
	TimeOffPersonal    TimeOffType = "PERSONAL"
	TimeOffUnpaid      TimeOffType = "UNPAID"
	TimeOffBereavement TimeOffType = "BEREAVEMENT"
	TimeOffJuryDuty    TimeOffType = "JURY_DUTY"
	TimeOffOther       TimeOffType = "OTHER"
)

// TimeOffRequest is an employee's request for days off. StartDate and EndDate
// are calendar dates stored as UTC midnight; both are inclusive.
type TimeOffRequest struct {
	ID                 string
	BusinessID         string
	EmployeePositionID string
	Type               TimeOffType
	StartDate          time.Time
	EndDate            time.Time
	Reason             string
	Status             TimeOffStatus
	ManagerNote        string
	DecidedByID        *string
	DecidedAt          *time.Time
	ScheduleEventID    *string
	PersonalEventID    *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ScheduleStatus is the publication state of a work schedule.
type ScheduleStatus string

const (
	ScheduleDraft     ScheduleStatus = "DRAFT"
	SchedulePublished ScheduleStatus = "PUBLISHED"
	ScheduleArchived  ScheduleStatus = "ARCHIVED"
)

// Schedule groups shifts for a business over a period.
type Schedule struct {
	ID          string
	BusinessID  string
	Name        string
	Status      ScheduleStatus
	Timezone    string
	StartDate   time.Time
	EndDate     time.Time
	PublishedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ScheduleShift is one shift of a schedule. A nil EmployeePositionID marks an
// open shift. Metadata is a free-form JSON object.
type ScheduleShift struct {
	ID                 string
	ScheduleID         string
	BusinessID         string
	EmployeePositionID *string
	Title              string
	PositionTitle      string
	StartTime          time.Time
	EndTime            time.Time
	BreakMinutes       int
	Location           string
	Notes              string
	Metadata           map[string]any
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
