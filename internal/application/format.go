package application

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/example/workforce-calendar/internal/persistence"
	"github.com/example/workforce-calendar/internal/timeoff"
)

const (
	clockLayout = "3:04 PM"
	dateLayout  = "Jan 2, 2006"
)

func employeeName(user persistence.User) string {
	switch {
	case strings.TrimSpace(user.DisplayName) != "":
		return strings.TrimSpace(user.DisplayName)
	case user.Email != "":
		return user.Email
	default:
		return "Employee"
	}
}

func timeOffTypeLabel(t persistence.TimeOffType) string {
	switch t {
	case persistence.TimeOffPTO:
		return "PTO"
	case persistence.TimeOffSick:
		return "Sick Leave"
	case persistence.TimeOffPersonal:
		return "Personal"
	case persistence.TimeOffUnpaid:
		return "Unpaid Leave"
	case persistence.TimeOffBereavement:
		return "Bereavement"
	case persistence.TimeOffJuryDuty:
		return "Jury Duty"
	case persistence.TimeOffOther:
		return "Other"
	default:
		return string(t)
	}
}

func timeOffStatusLabel(s persistence.TimeOffStatus) string {
	switch s {
	case persistence.TimeOffPending:
		return "Pending"
	case persistence.TimeOffApproved:
		return "Approved"
	case persistence.TimeOffDenied:
		return "Denied"
	case persistence.TimeOffCanceled:
		return "Canceled"
	default:
		return string(s)
	}
}

// timeOffEventStatus maps a request status onto its calendar projection.
func timeOffEventStatus(s persistence.TimeOffStatus) persistence.EventStatus {
	switch s {
	case persistence.TimeOffApproved:
		return persistence.EventStatusConfirmed
	case persistence.TimeOffDenied, persistence.TimeOffCanceled:
		return persistence.EventStatusCanceled
	default:
		return persistence.EventStatusTentative
	}
}

func timeOffTitle(name string, t persistence.TimeOffType) string {
	return fmt.Sprintf("%s – %s", name, timeOffTypeLabel(t))
}

func timeOffDescription(request persistence.TimeOffRequest) string {
	days := timeoff.DaysRequested(request.StartDate, request.EndDate)
	unit := "days"
	if days == 1 {
		unit = "day"
	}

	dates := request.StartDate.Format(dateLayout)
	if !sameDate(request.StartDate, request.EndDate) {
		dates += " - " + request.EndDate.Format(dateLayout)
	}

	lines := []string{
		"Status: " + timeOffStatusLabel(request.Status),
		"Type: " + timeOffTypeLabel(request.Type),
		fmt.Sprintf("Dates: %s (%d %s)", dates, days, unit),
	}
	if reason := strings.TrimSpace(request.Reason); reason != "" {
		lines = append(lines, "Reason: "+reason)
	}
	if note := strings.TrimSpace(request.ManagerNote); note != "" {
		lines = append(lines, "Manager note: "+note)
	}
	return strings.Join(lines, "\n")
}

// allDaySpan returns the half-open instant range covering the inclusive dates.
func allDaySpan(start, end time.Time) (time.Time, time.Time) {
	from := timeoff.Date(start)
	return from, timeoff.Date(end).AddDate(0, 0, 1)
}

func sameDate(a, b time.Time) bool {
	return timeoff.Date(a).Equal(timeoff.Date(b))
}

func shiftTimeRange(start, end time.Time, loc *time.Location) string {
	return start.In(loc).Format(clockLayout) + " - " + end.In(loc).Format(clockLayout)
}

func assignedShiftTitle(employee, position, timeRange string) string {
	return fmt.Sprintf("%s - %s - %s", employee, position, timeRange)
}

func openShiftTitle(position, timeRange string) string {
	return fmt.Sprintf("Open Shift - %s - %s", position, timeRange)
}

func shiftDescription(scheduleName string, shift persistence.ScheduleShift, position string) string {
	lines := []string{"Schedule: " + scheduleName}
	if title := strings.TrimSpace(shift.Title); title != "" {
		lines = append(lines, "Shift: "+title)
	}
	lines = append(lines, "Position: "+position)
	if location := strings.TrimSpace(shift.Location); location != "" {
		lines = append(lines, "Location: "+location)
	}
	if shift.BreakMinutes > 0 {
		lines = append(lines, "Break: "+formatBreak(shift.BreakMinutes))
	}
	if notes := strings.TrimSpace(shift.Notes); notes != "" {
		lines = append(lines, "Notes: "+notes)
	}
	return strings.Join(lines, "\n")
}

// formatBreak renders minutes as "30 min", "1 hr" or "1 hr 15 min".
func formatBreak(minutes int) string {
	hours, rest := minutes/60, minutes%60
	switch {
	case hours == 0:
		return fmt.Sprintf("%d min", rest)
	case rest == 0:
		return fmt.Sprintf("%d hr", hours)
	default:
		return fmt.Sprintf("%d hr %d min", hours, rest)
	}
}

// shiftPositionTitle picks the most specific label available for a shift.
func shiftPositionTitle(shift persistence.ScheduleShift, position *persistence.EmployeePosition) string {
	switch {
	case strings.TrimSpace(shift.PositionTitle) != "":
		return strings.TrimSpace(shift.PositionTitle)
	case position != nil && position.PositionTitle != "":
		return position.PositionTitle
	case strings.TrimSpace(shift.Title) != "":
		return strings.TrimSpace(shift.Title)
	default:
		return "Shift"
	}
}

// loadLocation resolves the first valid zone name, falling back to UTC.
func loadLocation(names ...string) (*time.Location, string) {
	for _, name := range names {
		if name == "" {
			continue
		}
		if loc, err := time.LoadLocation(name); err == nil {
			return loc, name
		}
	}
	return time.UTC, "UTC"
}
