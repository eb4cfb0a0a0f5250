// Package http exposes the calendar sync service over HTTP.
//
// The router exposes the following endpoints:
//   - POST /time-off-requests: submits a request. Body: submitTimeOffRequest in
//     timeoff_handler.go with dates formatted as YYYY-MM-DD.
//   - GET /time-off-requests/{id}: returns the stored request including its
//     calendar event links.
//   - POST /time-off-requests/{id}/approve, /deny, /cancel: decides a pending
//     request. Body: {"actorId","note"}. A second decision returns 409.
//   - POST /time-off-requests/{id}/sync: re-projects the request onto the
//     business and personal calendars and returns the event ids.
//   - POST /schedules, POST /schedules/{id}/shifts: create a draft schedule and
//     add shifts to it.
//   - POST /schedules/{id}/publish: publishes a draft and projects its shifts.
//   - POST /schedules/{id}/sync: re-projects every shift. Per-shift failures are
//     listed in the 200 response.
//   - PATCH /shifts/{id}, POST /shifts/{id}/sync: edit or re-project one shift.
//   - GET /healthz, GET /metrics.
//
// Mutations trigger calendar syncs after they commit. A failed sync is logged
// and counted but never changes the status of the mutating request.
package http
