package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/workforce-calendar/internal/application"
	"github.com/example/workforce-calendar/internal/persistence"
)

type scheduleService interface {
	CreateSchedule(ctx context.Context, input application.CreateScheduleInput) (persistence.Schedule, error)
	AddShift(ctx context.Context, input application.AddShiftInput) (persistence.ScheduleShift, error)
	Publish(ctx context.Context, scheduleID string) (persistence.Schedule, error)
	ResyncSchedule(ctx context.Context, scheduleID string) (application.BatchResult, error)
}

// ScheduleHandler serves the schedule endpoints.
type ScheduleHandler struct {
	service   scheduleService
	responder responder
	logger    *slog.Logger
}

func NewScheduleHandler(service scheduleService, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{service: service, responder: newResponder(logger), logger: logger}
}

func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req createScheduleRequest
	if err := decodeRequest(r, &req); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	schedule, err := h.service.CreateSchedule(r.Context(), req.toInput())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toScheduleDTO(schedule))
}

func (h *ScheduleHandler) AddShift(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	scheduleID, ok := pathID(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidScheduleID)
		return
	}

	var req addShiftRequest
	if err := decodeRequest(r, &req); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	shift, err := h.service.AddShift(r.Context(), req.toInput(scheduleID))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toShiftDTO(shift))
}

func (h *ScheduleHandler) Publish(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	scheduleID, ok := pathID(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidScheduleID)
		return
	}

	schedule, err := h.service.Publish(r.Context(), scheduleID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	handlerLogger(r.Context(), h.logger, "ScheduleHandler", "Publish", "schedule_id", schedule.ID).
		InfoContext(r.Context(), "schedule published")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toScheduleDTO(schedule))
}

// Sync re-projects every shift of a published schedule. Per-shift failures
// are part of the 200 response body.
func (h *ScheduleHandler) Sync(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	scheduleID, ok := pathID(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidScheduleID)
		return
	}

	result, err := h.service.ResyncSchedule(r.Context(), scheduleID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toBatchResultDTO(result))
}

type createScheduleRequest struct {
	BusinessID string `json:"businessId" validate:"required"`
	Name       string `json:"name" validate:"required,max=200"`
	Timezone   string `json:"timezone" validate:"omitempty,timezone"`
	StartDate  string `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate    string `json:"endDate" validate:"required,datetime=2006-01-02"`
}

func (r createScheduleRequest) toInput() application.CreateScheduleInput {
	start, _ := time.Parse(dateLayout, r.StartDate)
	end, _ := time.Parse(dateLayout, r.EndDate)
	return application.CreateScheduleInput{
		BusinessID: r.BusinessID,
		Name:       r.Name,
		Timezone:   r.Timezone,
		StartDate:  start,
		EndDate:    end,
	}
}

type addShiftRequest struct {
	EmployeePositionID *string   `json:"employeePositionId"`
	Title              string    `json:"title" validate:"max=200"`
	PositionTitle      string    `json:"positionTitle" validate:"max=200"`
	StartTime          time.Time `json:"startTime" validate:"required"`
	EndTime            time.Time `json:"endTime" validate:"required"`
	BreakMinutes       int       `json:"breakMinutes" validate:"min=0"`
	Location           string    `json:"location" validate:"max=500"`
	Notes              string    `json:"notes" validate:"max=2000"`
}

func (r addShiftRequest) toInput(scheduleID string) application.AddShiftInput {
	return application.AddShiftInput{
		ScheduleID:         scheduleID,
		EmployeePositionID: r.EmployeePositionID,
		Title:              r.Title,
		PositionTitle:      r.PositionTitle,
		StartTime:          r.StartTime,
		EndTime:            r.EndTime,
		BreakMinutes:       r.BreakMinutes,
		Location:           r.Location,
		Notes:              r.Notes,
	}
}

type scheduleDTO struct {
	ID          string     `json:"id"`
	BusinessID  string     `json:"businessId"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	Timezone    string     `json:"timezone,omitempty"`
	StartDate   string     `json:"startDate"`
	EndDate     string     `json:"endDate"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

func toScheduleDTO(schedule persistence.Schedule) scheduleDTO {
	return scheduleDTO{
		ID:          schedule.ID,
		BusinessID:  schedule.BusinessID,
		Name:        schedule.Name,
		Status:      string(schedule.Status),
		Timezone:    schedule.Timezone,
		StartDate:   schedule.StartDate.Format(dateLayout),
		EndDate:     schedule.EndDate.Format(dateLayout),
		PublishedAt: schedule.PublishedAt,
	}
}

type shiftSyncDTO struct {
	ShiftID         string `json:"shiftId"`
	ScheduleEventID string `json:"scheduleEventId,omitempty"`
	PersonalEventID string `json:"personalEventId,omitempty"`
	StaleDeletion   string `json:"staleDeletion,omitempty"`
	Skipped         bool   `json:"skipped"`
}

func toShiftSyncDTO(result application.ShiftSyncResult) shiftSyncDTO {
	dto := shiftSyncDTO{
		ShiftID:         result.ShiftID,
		ScheduleEventID: result.ScheduleEventID,
		PersonalEventID: result.PersonalEventID,
		Skipped:         result.Skipped,
	}
	if result.StaleDeletion != nil {
		dto.StaleDeletion = result.StaleDeletion.Outcome.String()
	}
	return dto
}

type shiftFailureDTO struct {
	ShiftID string `json:"shiftId"`
	Error   string `json:"error"`
}

type batchResultDTO struct {
	ScheduleID string            `json:"scheduleId"`
	Synced     []shiftSyncDTO    `json:"synced"`
	Failures   []shiftFailureDTO `json:"failures"`
	Skipped    []string          `json:"skipped"`
}

func toBatchResultDTO(result application.BatchResult) batchResultDTO {
	dto := batchResultDTO{
		ScheduleID: result.ScheduleID,
		Synced:     make([]shiftSyncDTO, 0, len(result.Synced)),
		Failures:   make([]shiftFailureDTO, 0, len(result.Failures)),
		Skipped:    append([]string{}, result.Skipped...),
	}
	for _, synced := range result.Synced {
		dto.Synced = append(dto.Synced, toShiftSyncDTO(synced))
	}
	for _, failure := range result.Failures {
		dto.Failures = append(dto.Failures, shiftFailureDTO{ShiftID: failure.ShiftID, Error: failure.Error()})
	}
	return dto
}
