package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/example/workforce-calendar/internal/metrics"
	"github.com/example/workforce-calendar/internal/persistence"
)

// Attendee identifies the single participant of a derived event.
type Attendee struct {
	UserID string
	Email  string
}

// EventDraft describes the desired state of a derived event.
type EventDraft struct {
	// ExistingEventID is the previously recorded back-reference, if any.
	ExistingEventID    *string
	CalendarID         string
	Title              string
	Description        string
	StartAt            time.Time
	EndAt              time.Time
	Status             persistence.EventStatus
	AllDay             bool
	Timezone           string
	Attendee           *Attendee
	PersonalProjection bool
}

// StaleOutcome classifies a best-effort deletion.
type StaleOutcome int

const (
	StaleDeleted StaleOutcome = iota
	StaleAlreadyAbsent
	StaleFailed
)

func (o StaleOutcome) String() string {
	switch o {
	case StaleDeleted:
		return "deleted"
	case StaleAlreadyAbsent:
		return "already_absent"
	default:
		return "failed"
	}
}

// StaleDeletion is the result of removing an event that no longer belongs to
// its calendar. Err is set only for StaleFailed.
type StaleDeletion struct {
	EventID string
	Outcome StaleOutcome
	Err     error
}

// Projector writes derived events into calendars.
type Projector struct {
	events      persistence.EventRepository
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// NewProjector wires dependencies for event projection.
func NewProjector(events persistence.EventRepository, idGenerator func() string, now func() time.Time, logger *slog.Logger, m *metrics.Metrics) *Projector {
	if now == nil {
		now = time.Now
	}
	return &Projector{
		events:      events,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
		metrics:     m,
	}
}

// UpsertEvent updates the event named by draft.ExistingEventID in place, or
// creates a new one, and returns the event id. A recorded id whose event has
// disappeared is recreated under a new id.
func (p *Projector) UpsertEvent(ctx context.Context, draft EventDraft) (string, error) {
	now := p.now()
	event := persistence.Event{
		CalendarID:  draft.CalendarID,
		Title:       draft.Title,
		Description: draft.Description,
		StartAt:     draft.StartAt,
		EndAt:       draft.EndAt,
		AllDay:      draft.AllDay,
		Timezone:    draft.Timezone,
		Status:      draft.Status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if draft.ExistingEventID != nil && *draft.ExistingEventID != "" {
		event.ID = *draft.ExistingEventID
		event.Attendees = p.attendees(event.ID, draft)
		err := p.events.UpdateEvent(ctx, event)
		if err == nil {
			return event.ID, nil
		}
		if !errors.Is(err, persistence.ErrNotFound) {
			return "", mapRepoError(err)
		}
		serviceLogger(ctx, p.logger, "Projector", "UpsertEvent", "event_id", event.ID).
			WarnContext(ctx, "linked event missing, recreating", "calendar_id", draft.CalendarID)
	}

	event.ID = p.idGenerator()
	event.Attendees = p.attendees(event.ID, draft)
	if err := p.events.CreateEvent(ctx, event); err != nil {
		return "", mapRepoError(err)
	}
	return event.ID, nil
}

func (p *Projector) attendees(eventID string, draft EventDraft) []persistence.EventAttendee {
	if draft.Attendee == nil {
		return nil
	}
	attendee := persistence.EventAttendee{
		ID:       p.idGenerator(),
		EventID:  eventID,
		Response: attendeeResponse(draft.Status, draft.PersonalProjection),
	}
	if draft.Attendee.UserID != "" {
		userID := draft.Attendee.UserID
		attendee.UserID = &userID
	}
	if draft.Attendee.Email != "" {
		email := draft.Attendee.Email
		attendee.Email = &email
	}
	return []persistence.EventAttendee{attendee}
}

func attendeeResponse(status persistence.EventStatus, personal bool) persistence.AttendeeResponse {
	switch {
	case status == persistence.EventStatusCanceled:
		return persistence.AttendeeDeclined
	case personal:
		return persistence.AttendeeAccepted
	default:
		return persistence.AttendeeNeedsAction
	}
}

// DeleteStaleEvent removes an event that no longer belongs where it is. It
// never fails the caller; the outcome says what happened.
func (p *Projector) DeleteStaleEvent(ctx context.Context, eventID string) StaleDeletion {
	logger := serviceLogger(ctx, p.logger, "Projector", "DeleteStaleEvent", "event_id", eventID)

	result := StaleDeletion{EventID: eventID, Outcome: StaleDeleted}
	err := p.events.DeleteEvent(ctx, eventID)
	switch {
	case err == nil:
		logger.DebugContext(ctx, "stale event deleted")
	case errors.Is(err, persistence.ErrNotFound):
		result.Outcome = StaleAlreadyAbsent
		logger.DebugContext(ctx, "stale event already gone")
	default:
		result.Outcome = StaleFailed
		result.Err = err
		logger.WarnContext(ctx, "failed to delete stale event", "error", err, "error_kind", ErrorKind(err))
	}
	p.metrics.StaleDeletion(result.Outcome.String())
	return result
}
