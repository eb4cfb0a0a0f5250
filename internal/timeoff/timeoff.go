// Package timeoff holds the pure rules of time-off requests: date arithmetic,
// overlap detection, and lifecycle transitions.
package timeoff

import (
	"time"

	"github.com/example/workforce-calendar/internal/persistence"
)

// ActiveStatuses are the statuses that block an overlapping submission.
var ActiveStatuses = []persistence.TimeOffStatus{persistence.TimeOffPending, persistence.TimeOffApproved}

// DaysRequested counts the calendar days in the inclusive range [start, end].
// It returns 0 when end precedes start.
func DaysRequested(start, end time.Time) int {
	from, to := Date(start), Date(end)
	if to.Before(from) {
		return 0
	}
	return int(to.Sub(from).Hours()/24) + 1
}

// Date truncates t to its UTC calendar date.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Overlaps reports whether the inclusive date ranges share at least one day.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !Date(aStart).After(Date(bEnd)) && !Date(bStart).After(Date(aEnd))
}

// FindOverlap returns the first active request in existing that overlaps
// [start, end], skipping the request named by excludeID.
func FindOverlap(existing []persistence.TimeOffRequest, start, end time.Time, excludeID string) *persistence.TimeOffRequest {
	for i := range existing {
		request := existing[i]
		if request.ID == excludeID || !IsActive(request.Status) {
			continue
		}
		if Overlaps(request.StartDate, request.EndDate, start, end) {
			return &request
		}
	}
	return nil
}

// IsActive reports whether a request in status s still claims its dates.
func IsActive(s persistence.TimeOffStatus) bool {
	return s == persistence.TimeOffPending || s == persistence.TimeOffApproved
}

// KnownType reports whether t is a supported request type.
func KnownType(t persistence.TimeOffType) bool {
	switch t {
	case persistence.TimeOffPTO,
		persistence.TimeOffSick,
		persistence.TimeOffPersonal,
		persistence.TimeOffUnpaid,
		persistence.TimeOffBereavement,
		persistence.TimeOffJuryDuty,
		persistence.TimeOffOther:
		return true
	}
	return false
}

// CanTransition reports whether a request may move from one status to another.
// Only PENDING requests change state, and only once.
func CanTransition(from, to persistence.TimeOffStatus) bool {
	if from != persistence.TimeOffPending {
		return false
	}
	switch to {
	case persistence.TimeOffApproved, persistence.TimeOffDenied, persistence.TimeOffCanceled:
		return true
	}
	return false
}

// Validate checks the user-supplied fields of a new request and returns
// field level messages keyed by JSON field name.
func Validate(requestType persistence.TimeOffType, start, end time.Time) map[string]string {
	fields := map[string]string{}
	if !KnownType(requestType) {
		fields["type"] = "must be one of PTO, SICK, PERSONAL, UNPAID, BEREAVEMENT, JURY_DUTY, OTHER"
	}
	if start.IsZero() {
		fields["startDate"] = "is required"
	}
	if end.IsZero() {
		fields["endDate"] = "is required"
	}
	if !start.IsZero() && !end.IsZero() && Date(end).Before(Date(start)) {
		fields["endDate"] = "must not be before startDate"
	}
	return fields
}
