package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/clinicflow/libs/httpx"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/queue"
)

type QueueService interface {
	Enqueue(ctx context.Context, in queue.EnqueueInput) (model.QueueEntry, error)
	List(ctx context.Context, clinicID, status string, day model.Date) ([]model.QueueEntry, error)
	Update(ctx context.Context, in queue.UpdateInput) (model.QueueEntry, error)
	CallNext(ctx context.Context, clinicID, staffID string) (model.QueueEntry, error)
	Position(ctx context.Context, id string) (queue.Position, error)
	Stats(ctx context.Context, clinicID string, day model.Date) (queue.Stats, error)
}

type QueueHandler struct {
	queue  QueueService
	logger *slog.Logger
}

func NewQueueHandler(q QueueService, logger *slog.Logger) *QueueHandler {
	return &QueueHandler{queue: q, logger: logger}
}

type enqueueRequest struct {
	ClinicID        string `json:"clinic_id" validate:"required"`
	CustomerID      string `json:"customer_id"`
	CustomerName    string `json:"customer_name" validate:"required"`
	StaffID         string `json:"staff_id"`
	AppointmentType string `json:"appointment_type"`
	Priority        string `json:"priority" validate:"omitempty,oneof=emergency urgent normal"`
	Notes           string `json:"notes"`
}

type enqueueResponse struct {
	Success bool             `json:"success"`
	Entry   model.QueueEntry `json:"entry"`
	Message string           `json:"message"`
}

// Enqueue serves POST /api/v1/queue/enqueue.
func (h *QueueHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req enqueueRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	entry, err := h.queue.Enqueue(r.Context(), queue.EnqueueInput{
		ClinicID:        strings.TrimSpace(req.ClinicID),
		CustomerID:      strings.TrimSpace(req.CustomerID),
		CustomerName:    strings.TrimSpace(req.CustomerName),
		StaffID:         strings.TrimSpace(req.StaffID),
		AppointmentType: strings.TrimSpace(req.AppointmentType),
		Priority:        model.Priority(req.Priority),
		Notes:           req.Notes,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, enqueueResponse{
		Success: true,
		Entry:   entry,
		Message: fmt.Sprintf("Checked in as number %d, estimated wait %d minutes", entry.QueueNumber, entry.EstimatedWait),
	})
}

// List serves GET /api/v1/queue?clinic_id&status&date. Date defaults to the
// clinic's today.
func (h *QueueHandler) List(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	day, err := queryDate(r, "date", false)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	q := r.URL.Query()
	entries, err := h.queue.List(r.Context(), strings.TrimSpace(q.Get("clinic_id")), strings.TrimSpace(q.Get("status")), day)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if entries == nil {
		entries = []model.QueueEntry{}
	}
	writeOK(w, http.StatusOK, entries)
}

type updateQueueRequest struct {
	ID                 string  `json:"id" validate:"required"`
	Status             string  `json:"status" validate:"required,oneof=waiting called in-service completed cancelled"`
	Notes              *string `json:"notes"`
	StaffID            string  `json:"staff_id"`
	CancellationReason string  `json:"cancellation_reason"`
}

// Update serves POST /api/v1/queue/update.
func (h *QueueHandler) Update(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req updateQueueRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	entry, err := h.queue.Update(r.Context(), queue.UpdateInput{
		ID:                 strings.TrimSpace(req.ID),
		Status:             req.Status,
		Notes:              req.Notes,
		StaffID:            strings.TrimSpace(req.StaffID),
		CancellationReason: strings.TrimSpace(req.CancellationReason),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusOK, entry)
}

type callNextRequest struct {
	ClinicID string `json:"clinic_id" validate:"required"`
	StaffID  string `json:"staff_id"`
}

// CallNext serves POST /api/v1/queue/call-next.
func (h *QueueHandler) CallNext(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req callNextRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	entry, err := h.queue.CallNext(r.Context(), strings.TrimSpace(req.ClinicID), strings.TrimSpace(req.StaffID))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusOK, entry)
}

// Position serves GET /api/v1/queue/position?id.
func (h *QueueHandler) Position(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	id, err := requiredQuery(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	pos, err := h.queue.Position(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusOK, pos)
}

// Stats serves GET /api/v1/queue/stats?clinic_id&date.
func (h *QueueHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	clinicID, err := requiredQuery(r, "clinic_id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	day, err := queryDate(r, "date", false)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	stats, err := h.queue.Stats(r.Context(), clinicID, day)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusOK, stats)
}
