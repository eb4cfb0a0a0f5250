package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/workforce-calendar/internal/application"
	"github.com/example/workforce-calendar/internal/persistence"
)

type shiftService interface {
	EditShift(ctx context.Context, input application.EditShiftInput) (persistence.ScheduleShift, error)
	ResyncShift(ctx context.Context, shiftID string) (application.ShiftSyncResult, error)
}

// ShiftHandler serves the single shift endpoints.
type ShiftHandler struct {
	service   shiftService
	responder responder
}

func NewShiftHandler(service shiftService, logger *slog.Logger) *ShiftHandler {
	return &ShiftHandler{service: service, responder: newResponder(logger)}
}

func (h *ShiftHandler) Edit(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	shiftID, ok := pathID(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidShiftID)
		return
	}

	var req editShiftRequest
	if err := decodeRequest(r, &req); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	shift, err := h.service.EditShift(r.Context(), req.toInput(shiftID))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toShiftDTO(shift))
}

func (h *ShiftHandler) Sync(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	shiftID, ok := pathID(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidShiftID)
		return
	}

	result, err := h.service.ResyncShift(r.Context(), shiftID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toShiftSyncDTO(result))
}

// editShiftRequest is a partial update. Absent fields are left unchanged and
// "unassign": true turns the shift into an open shift.
type editShiftRequest struct {
	EmployeePositionID *string    `json:"employeePositionId" validate:"omitempty,min=1"`
	Unassign           bool       `json:"unassign"`
	Title              *string    `json:"title" validate:"omitempty,max=200"`
	PositionTitle      *string    `json:"positionTitle" validate:"omitempty,max=200"`
	StartTime          *time.Time `json:"startTime"`
	EndTime            *time.Time `json:"endTime"`
	BreakMinutes       *int       `json:"breakMinutes" validate:"omitempty,min=0"`
	Location           *string    `json:"location" validate:"omitempty,max=500"`
	Notes              *string    `json:"notes" validate:"omitempty,max=2000"`
}

func (r editShiftRequest) toInput(shiftID string) application.EditShiftInput {
	return application.EditShiftInput{
		ShiftID:            shiftID,
		EmployeePositionID: r.EmployeePositionID,
		Unassign:           r.Unassign,
		Title:              r.Title,
		PositionTitle:      r.PositionTitle,
		StartTime:          r.StartTime,
		EndTime:            r.EndTime,
		BreakMinutes:       r.BreakMinutes,
		Location:           r.Location,
		Notes:              r.Notes,
	}
}

type shiftDTO struct {
	ID                 string         `json:"id"`
	ScheduleID         string         `json:"scheduleId"`
	BusinessID         string         `json:"businessId"`
	EmployeePositionID *string        `json:"employeePositionId"`
	Title              string         `json:"title,omitempty"`
	PositionTitle      string         `json:"positionTitle,omitempty"`
	StartTime          time.Time      `json:"startTime"`
	EndTime            time.Time      `json:"endTime"`
	BreakMinutes       int            `json:"breakMinutes"`
	Location           string         `json:"location,omitempty"`
	Notes              string         `json:"notes,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

func toShiftDTO(shift persistence.ScheduleShift) shiftDTO {
	return shiftDTO{
		ID:                 shift.ID,
		ScheduleID:         shift.ScheduleID,
		BusinessID:         shift.BusinessID,
		EmployeePositionID: shift.EmployeePositionID,
		Title:              shift.Title,
		PositionTitle:      shift.PositionTitle,
		StartTime:          shift.StartTime,
		EndTime:            shift.EndTime,
		BreakMinutes:       shift.BreakMinutes,
		Location:           shift.Location,
		Notes:              shift.Notes,
		Metadata:           shift.Metadata,
	}
}
