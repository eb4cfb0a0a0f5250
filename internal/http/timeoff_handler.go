package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/workforce-calendar/internal/application"
	"github.com/example/workforce-calendar/internal/persistence"
)

const dateLayout = "2006-01-02"

type timeOffService interface {
	Submit(ctx context.Context, input application.SubmitTimeOffInput) (persistence.TimeOffRequest, error)
	Get(ctx context.Context, requestID string) (persistence.TimeOffRequest, error)
	Approve(ctx context.Context, input application.DecisionInput) (persistence.TimeOffRequest, error)
	Deny(ctx context.Context, input application.DecisionInput) (persistence.TimeOffRequest, error)
	Cancel(ctx context.Context, input application.DecisionInput) (persistence.TimeOffRequest, error)
	Resync(ctx context.Context, requestID string) (application.TimeOffSyncResult, error)
}

// TimeOffHandler serves the time-off request endpoints.
type TimeOffHandler struct {
	service   timeOffService
	responder responder
	logger    *slog.Logger
}

func NewTimeOffHandler(service timeOffService, logger *slog.Logger) *TimeOffHandler {
	return &TimeOffHandler{service: service, responder: newResponder(logger), logger: logger}
}

func (h *TimeOffHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req submitTimeOffRequest
	if err := decodeRequest(r, &req); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	request, err := h.service.Submit(r.Context(), req.toInput())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	handlerLogger(r.Context(), h.logger, "TimeOffHandler", "Submit", "request_id", request.ID).
		InfoContext(r.Context(), "time-off request accepted")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toTimeOffDTO(request))
}

func (h *TimeOffHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	requestID, ok := pathID(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidRequestID)
		return
	}

	request, err := h.service.Get(r.Context(), requestID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toTimeOffDTO(request))
}

func (h *TimeOffHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(s timeOffService) decisionFunc { return s.Approve })
}

func (h *TimeOffHandler) Deny(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(s timeOffService) decisionFunc { return s.Deny })
}

func (h *TimeOffHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(s timeOffService) decisionFunc { return s.Cancel })
}

// Sync re-projects the request synchronously. Unlike the mutations, sync
// failures are reported to the caller.
func (h *TimeOffHandler) Sync(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	requestID, ok := pathID(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidRequestID)
		return
	}

	result, err := h.service.Resync(r.Context(), requestID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, timeOffSyncDTO{
		RequestID:       result.RequestID,
		ScheduleEventID: result.ScheduleEventID,
		PersonalEventID: result.PersonalEventID,
		Skipped:         result.Skipped,
	})
}

type decisionFunc func(ctx context.Context, input application.DecisionInput) (persistence.TimeOffRequest, error)

func (h *TimeOffHandler) decide(w http.ResponseWriter, r *http.Request, pick func(timeOffService) decisionFunc) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	requestID, ok := pathID(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidRequestID)
		return
	}

	var req decisionRequest
	if err := decodeRequest(r, &req); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	request, err := pick(h.service)(r.Context(), application.DecisionInput{
		RequestID: requestID,
		ActorID:   req.ActorID,
		Note:      req.Note,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toTimeOffDTO(request))
}

func pathID(r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	return id, id != ""
}

type submitTimeOffRequest struct {
	BusinessID         string `json:"businessId" validate:"required"`
	EmployeePositionID string `json:"employeePositionId" validate:"required"`
	Type               string `json:"type" validate:"required,oneof=PTO SICK PERSONAL UNPAID BEREAVEMENT JURY_DUTY OTHER"`
	StartDate          string `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate            string `json:"endDate" validate:"required,datetime=2006-01-02"`
	Reason             string `json:"reason" validate:"max=2000"`
}

// toInput assumes the request passed validation, so the dates parse.
func (r submitTimeOffRequest) toInput() application.SubmitTimeOffInput {
	start, _ := time.Parse(dateLayout, r.StartDate)
	end, _ := time.Parse(dateLayout, r.EndDate)
	return application.SubmitTimeOffInput{
		BusinessID:         r.BusinessID,
		EmployeePositionID: r.EmployeePositionID,
		Type:               persistence.TimeOffType(r.Type),
		StartDate:          start,
		EndDate:            end,
		Reason:             r.Reason,
	}
}

type decisionRequest struct {
	ActorID string `json:"actorId" validate:"required"`
	Note    string `json:"note" validate:"max=2000"`
}

type timeOffDTO struct {
	ID                 string     `json:"id"`
	BusinessID         string     `json:"businessId"`
	EmployeePositionID string     `json:"employeePositionId"`
	Type               string     `json:"type"`
	StartDate          string     `json:"startDate"`
	EndDate            string     `json:"endDate"`
	Reason             string     `json:"reason,omitempty"`
	Status             string     `json:"status"`
	ManagerNote        string     `json:"managerNote,omitempty"`
	DecidedByID        *string    `json:"decidedById,omitempty"`
	DecidedAt          *time.Time `json:"decidedAt,omitempty"`
	ScheduleEventID    *string    `json:"scheduleEventId,omitempty"`
	PersonalEventID    *string    `json:"personalEventId,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

func toTimeOffDTO(request persistence.TimeOffRequest) timeOffDTO {
	return timeOffDTO{
		ID:                 request.ID,
		BusinessID:         request.BusinessID,
		EmployeePositionID: request.EmployeePositionID,
		Type:               string(request.Type),
		StartDate:          request.StartDate.Format(dateLayout),
		EndDate:            request.EndDate.Format(dateLayout),
		Reason:             request.Reason,
		Status:             string(request.Status),
		ManagerNote:        request.ManagerNote,
		DecidedByID:        request.DecidedByID,
		DecidedAt:          request.DecidedAt,
		ScheduleEventID:    request.ScheduleEventID,
		PersonalEventID:    request.PersonalEventID,
		CreatedAt:          request.CreatedAt,
		UpdatedAt:          request.UpdatedAt,
	}
}

type timeOffSyncDTO struct {
	RequestID       string `json:"requestId"`
	ScheduleEventID string `json:"scheduleEventId,omitempty"`
	PersonalEventID string `json:"personalEventId,omitempty"`
	Skipped         bool   `json:"skipped"`
}
