package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/example/workforce-calendar/internal/persistence"
)

func TestTimeOffEventStatus(t *testing.T) {
	tests := map[persistence.TimeOffStatus]persistence.EventStatus{
		persistence.TimeOffPending:  persistence.EventStatusTentative,
		persistence.TimeOffApproved: persistence.EventStatusConfirmed,
		persistence.TimeOffDenied:   persistence.EventStatusCanceled,
		persistence.TimeOffCanceled: persistence.EventStatusCanceled,
	}
	for status, want := range tests {
		assert.Equal(t, want, timeOffEventStatus(status), "status %s", status)
	}
}

func TestAttendeeResponse(t *testing.T) {
	assert.Equal(t, persistence.AttendeeDeclined, attendeeResponse(persistence.EventStatusCanceled, true))
	assert.Equal(t, persistence.AttendeeDeclined, attendeeResponse(persistence.EventStatusCanceled, false))
	assert.Equal(t, persistence.AttendeeAccepted, attendeeResponse(persistence.EventStatusTentative, true))
	assert.Equal(t, persistence.AttendeeNeedsAction, attendeeResponse(persistence.EventStatusConfirmed, false))
}

func TestAllDaySpan(t *testing.T) {
	start, end := allDaySpan(
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC),
	)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), end)
}

func TestTimeOffTitleAndDescription(t *testing.T) {
	request := persistence.TimeOffRequest{
		Type:        persistence.TimeOffJuryDuty,
		Status:      persistence.TimeOffApproved,
		StartDate:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC),
		Reason:      " Summoned ",
		ManagerNote: "Covered by Bob",
	}

	assert.Equal(t, "Alice Smith – Jury Duty", timeOffTitle("Alice Smith", request.Type))
	assert.Equal(t, "Status: Approved\n"+
		"Type: Jury Duty\n"+
		"Dates: Mar 1, 2024 - Mar 3, 2024 (3 days)\n"+
		"Reason: Summoned\n"+
		"Manager note: Covered by Bob", timeOffDescription(request))

	request.EndDate = request.StartDate
	request.Reason, request.ManagerNote = "", ""
	assert.Equal(t, "Status: Approved\nType: Jury Duty\nDates: Mar 1, 2024 (1 day)", timeOffDescription(request))
}

func TestEmployeeName(t *testing.T) {
	assert.Equal(t, "Alice", employeeName(persistence.User{DisplayName: " Alice ", Email: "a@example.com"}))
	assert.Equal(t, "a@example.com", employeeName(persistence.User{Email: "a@example.com"}))
	assert.Equal(t, "Employee", employeeName(persistence.User{}))
}

func TestFormatBreak(t *testing.T) {
	assert.Equal(t, "30 min", formatBreak(30))
	assert.Equal(t, "1 hr", formatBreak(60))
	assert.Equal(t, "1 hr 15 min", formatBreak(75))
	assert.Equal(t, "2 hr 5 min", formatBreak(125))
}

func TestShiftTimeRangeUsesLocation(t *testing.T) {
	loc, name := loadLocation("", "America/New_York")
	assert.Equal(t, "America/New_York", name)

	start := time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC)
	assert.Equal(t, "9:00 AM - 5:30 PM", shiftTimeRange(start, start.Add(8*time.Hour+30*time.Minute), loc))

	utc, name := loadLocation("Not/AZone", "")
	assert.Equal(t, "UTC", name)
	assert.Equal(t, "2:00 PM - 10:30 PM", shiftTimeRange(start, start.Add(8*time.Hour+30*time.Minute), utc))
}

func TestShiftDescription(t *testing.T) {
	shift := persistence.ScheduleShift{
		Title:        "Opening",
		Location:     "Main St",
		BreakMinutes: 75,
		Notes:        "Count the till",
	}
	assert.Equal(t, "Schedule: Week 10\n"+
		"Shift: Opening\n"+
		"Position: Barista\n"+
		"Location: Main St\n"+
		"Break: 1 hr 15 min\n"+
		"Notes: Count the till", shiftDescription("Week 10", shift, "Barista"))

	assert.Equal(t, "Schedule: Week 10\nPosition: Barista", shiftDescription("Week 10", persistence.ScheduleShift{}, "Barista"))
}

func TestShiftPositionTitle(t *testing.T) {
	position := &persistence.EmployeePosition{PositionTitle: "Line Cook"}

	assert.Equal(t, "Barista", shiftPositionTitle(persistence.ScheduleShift{PositionTitle: "Barista"}, position))
	assert.Equal(t, "Line Cook", shiftPositionTitle(persistence.ScheduleShift{Title: "Close"}, position))
	assert.Equal(t, "Close", shiftPositionTitle(persistence.ScheduleShift{Title: "Close"}, nil))
	assert.Equal(t, "Shift", shiftPositionTitle(persistence.ScheduleShift{}, nil))
	assert.Equal(t, "Open Shift - Barista - 9:00 AM - 5:00 PM", openShiftTitle("Barista", "9:00 AM - 5:00 PM"))
	assert.Equal(t, "Alice - Barista - 9:00 AM - 5:00 PM", assignedShiftTitle("Alice", "Barista", "9:00 AM - 5:00 PM"))
}

func TestCalendarRoleFor(t *testing.T) {
	tests := []struct {
		member persistence.BusinessMember
		want   persistence.CalendarRole
	}{
		{persistence.BusinessMember{Role: persistence.BusinessRoleAdmin}, persistence.CalendarRoleEditor},
		{persistence.BusinessMember{Role: persistence.BusinessRoleManager}, persistence.CalendarRoleEditor},
		{persistence.BusinessMember{Role: persistence.BusinessRoleEmployee, CanManage: true}, persistence.CalendarRoleEditor},
		{persistence.BusinessMember{Role: persistence.BusinessRoleEmployee}, persistence.CalendarRoleReader},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, calendarRoleFor(tt.member), "member %+v", tt.member)
	}
}

func TestLinksFromMetadata(t *testing.T) {
	links := linksFromMetadata(map[string]any{
		"color": "blue",
		calendarEventsKey: map[string]any{
			"scheduleEventId": "evt-1",
			"personalEventId": nil,
		},
	})
	if assert.NotNil(t, links.ScheduleEventID) {
		assert.Equal(t, "evt-1", *links.ScheduleEventID)
	}
	assert.Nil(t, links.PersonalEventID)

	assert.Equal(t, CalendarLinks{}, linksFromMetadata(nil))
	assert.Equal(t, CalendarLinks{}, linksFromMetadata(map[string]any{calendarEventsKey: "garbage"}))
}
