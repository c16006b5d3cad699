package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/chatrelay/chatrelay/internal/scheduler/app"
	"github.com/chatrelay/chatrelay/internal/scheduler/domain"
)

// DispatchService is the slice of the application service the handler needs.
type DispatchService interface {
	ScheduleOrSendNow(ctx context.Context, req app.SendRequest) (*app.SendResult, error)
	GetJob(ctx context.Context, id uuid.UUID) (*domain.ScheduledJob, error)
}

type MessageHandler struct {
	service  DispatchService
	logger   *slog.Logger
	validate *validator.Validate
}

func NewMessageHandler(service DispatchService, logger *slog.Logger, validate *validator.Validate) *MessageHandler {
	return &MessageHandler{
		service:  service,
		logger:   logger.With("handler", "message"),
		validate: validate,
	}
}

// RegisterRoutes registers message routes with the given router.
func (h *MessageHandler) RegisterRoutes(r chi.Router) {
	r.Post("/messages", h.handleSendMessage)
	r.Get("/messages/{jobID}", h.handleGetJob)
}

func (h *MessageHandler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := chi_middleware.GetReqID(ctx)
	logger := h.logger.With("request_id", requestID)

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "Failed to decode send message request", "error", err)
		h.jsonError(w, logger, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		logger.WarnContext(ctx, "Send message request failed validation", "error", err)
		h.jsonError(w, logger, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	contentBlob, err := json.Marshal(req.Content)
	if err != nil {
		h.jsonError(w, logger, "Invalid content payload", http.StatusBadRequest)
		return
	}
	var optionsBlob json.RawMessage
	if req.Options != nil {
		optionsBlob, err = json.Marshal(req.Options)
		if err != nil {
			h.jsonError(w, logger, "Invalid options payload", http.StatusBadRequest)
			return
		}
	}

	result, err := h.service.ScheduleOrSendNow(ctx, app.SendRequest{
		Destination:  req.Destination,
		Content:      contentBlob,
		Options:      optionsBlob,
		ScheduleExpr: req.Schedule,
	})
	if err != nil {
		status, message := mapDomainError(err)
		logger.WarnContext(ctx, "Message submission rejected", "error", err, "status_code", status)
		h.jsonError(w, logger, message, status)
		return
	}

	resp := SendMessageResponse{Sent: !result.Scheduled, Scheduled: result.Scheduled}
	status := http.StatusOK
	if result.Scheduled {
		resp.JobID = result.JobID.String()
		scheduledAt := result.ScheduledAt
		resp.ScheduledAt = &scheduledAt
		status = http.StatusAccepted
		logger.InfoContext(ctx, "Message accepted for scheduled delivery", "job_id", resp.JobID)
	} else {
		resp.DeliveryHandle = result.DeliveryHandle
		logger.InfoContext(ctx, "Message delivered immediately", "delivery_handle", resp.DeliveryHandle)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func (h *MessageHandler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := chi_middleware.GetReqID(ctx)
	logger := h.logger.With("request_id", requestID)

	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		h.jsonError(w, logger, "Invalid job ID format", http.StatusBadRequest)
		return
	}

	job, err := h.service.GetJob(ctx, jobID)
	if err != nil {
		status, message := mapDomainError(err)
		h.jsonError(w, logger, message, status)
		return
	}

	resp := JobResponse{
		ID:          job.ID.String(),
		Destination: job.Destination,
		Status:      job.Status,
		ScheduledAt: job.ScheduledAt,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
	}
	if job.LastError.Valid {
		resp.LastError = &job.LastError.String
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// mapDomainError translates the engine's error taxonomy into HTTP statuses.
func mapDomainError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidScheduleFormat):
		return http.StatusBadRequest, "Invalid schedule format, expected YYYY-MM-DD HH:MM:SS"
	case errors.Is(err, domain.ErrScheduleInPast):
		return http.StatusBadRequest, "Scheduled time must be in the future"
	case errors.Is(err, domain.ErrInvalidRecipient):
		return http.StatusBadRequest, "Recipient not found on the messaging platform"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "Message not found"
	case errors.Is(err, domain.ErrStatusConflict):
		return http.StatusConflict, "Message is already in a terminal status"
	case errors.Is(err, domain.ErrDeliveryTimeout):
		return http.StatusRequestTimeout, "Delivery attempt timed out"
	case errors.Is(err, domain.ErrClientNotReady):
		return http.StatusServiceUnavailable, "Messaging client is not ready"
	case errors.Is(err, domain.ErrTransientPlatform):
		return http.StatusServiceUnavailable, "Messaging platform temporarily unavailable"
	case errors.Is(err, domain.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "Storage temporarily unavailable"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func (h *MessageHandler) jsonError(w http.ResponseWriter, logger *slog.Logger, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(GenericErrorResponse{Error: message})
}
