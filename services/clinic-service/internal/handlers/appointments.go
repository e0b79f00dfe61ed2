package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicflow/libs/httpx"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/booking"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/cancellation"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/model"
	"github.com/shopspring/decimal"
)

type Booker interface {
	Book(ctx context.Context, in booking.BookInput) (model.Appointment, bool, error)
	List(ctx context.Context, f booking.ListFilter) ([]model.Appointment, error)
	UpdateStatus(ctx context.Context, id, status string) (model.Appointment, error)
}

type Canceller interface {
	Cancel(ctx context.Context, req cancellation.Request) (cancellation.Result, error)
}

type AppointmentHandler struct {
	bookings Booker
	cancels  Canceller
	logger   *slog.Logger
}

func NewAppointmentHandler(bookings Booker, cancels Canceller, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{bookings: bookings, cancels: cancels, logger: logger}
}

type bookRequest struct {
	ClinicID   string           `json:"clinic_id" validate:"required"`
	StaffID    string           `json:"staff_id" validate:"required"`
	CustomerID string           `json:"customer_id" validate:"required"`
	Date       string           `json:"date" validate:"required"`
	StartTime  string           `json:"start_time" validate:"required"`
	EndTime    string           `json:"end_time" validate:"required"`
	PaidAmount *decimal.Decimal `json:"paid_amount"`
}

type bookResponse struct {
	Success  bool              `json:"success"`
	Data     model.Appointment `json:"data"`
	Replayed bool              `json:"replayed"`
}

// Book serves POST /api/v1/appointments/book. A retried request carrying the
// same Idempotency-Key gets the original appointment back with 200.
func (h *AppointmentHandler) Book(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req bookRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	in := booking.BookInput{
		ClinicID:       strings.TrimSpace(req.ClinicID),
		StaffID:        strings.TrimSpace(req.StaffID),
		CustomerID:     strings.TrimSpace(req.CustomerID),
		PaidAmount:     decimal.Zero,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}
	if req.PaidAmount != nil {
		in.PaidAmount = *req.PaidAmount
	}
	var err error
	if in.Date, err = parseDate("date", req.Date); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if in.StartTime, err = parseTime("start_time", req.StartTime); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if in.EndTime, err = parseTime("end_time", req.EndTime); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	appt, replayed, err := h.bookings.Book(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	httpx.WriteJSON(w, status, bookResponse{Success: true, Data: appt, Replayed: replayed})
}

// List serves GET /api/v1/appointments?clinic_id&staff_id&date&status.
func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	date, err := queryDate(r, "date", false)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	q := r.URL.Query()
	appts, err := h.bookings.List(r.Context(), booking.ListFilter{
		ClinicID: strings.TrimSpace(q.Get("clinic_id")),
		StaffID:  strings.TrimSpace(q.Get("staff_id")),
		Date:     date,
		Status:   strings.TrimSpace(q.Get("status")),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if appts == nil {
		appts = []model.Appointment{}
	}
	writeOK(w, http.StatusOK, appts)
}

type statusRequest struct {
	ID     string `json:"id" validate:"required"`
	Status string `json:"status" validate:"required"`
}

// UpdateStatus serves POST /api/v1/appointments/status.
func (h *AppointmentHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req statusRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	appt, err := h.bookings.UpdateStatus(r.Context(), strings.TrimSpace(req.ID), strings.TrimSpace(req.Status))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusOK, appt)
}

type cancelRequest struct {
	AppointmentID      string `json:"appointment_id" validate:"required"`
	CancelledByUserID  string `json:"cancelled_by_user_id" validate:"required"`
	CancelledByRole    string `json:"cancelled_by_role" validate:"required"`
	CancellationReason string `json:"cancellation_reason" validate:"required"`
	CancellationType   string `json:"cancellation_type" validate:"required,oneof=customer_request clinic_request no_show emergency other"`
	RescheduleOffered  bool   `json:"reschedule_offered"`
}

type cancelData struct {
	ID                 string          `json:"id"`
	Status             string          `json:"status"`
	CancelledAt        *time.Time      `json:"cancelled_at"`
	CancelledBy        string          `json:"cancelled_by"`
	CancellationReason string          `json:"cancellation_reason"`
	CancellationFee    decimal.Decimal `json:"cancellation_fee"`
}

// Cancel serves POST /api/v1/appointments/cancel.
func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req cancelRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	res, err := h.cancels.Cancel(r.Context(), cancellation.Request{
		AppointmentID:     strings.TrimSpace(req.AppointmentID),
		CancelledByUserID: strings.TrimSpace(req.CancelledByUserID),
		CancelledByRole:   strings.TrimSpace(req.CancelledByRole),
		Reason:            strings.TrimSpace(req.CancellationReason),
		Type:              req.CancellationType,
		RescheduleOffered: req.RescheduleOffered,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	a := res.Appointment
	writeOK(w, http.StatusOK, cancelData{
		ID:                 a.ID,
		Status:             a.Status,
		CancelledAt:        a.CancelledAt,
		CancelledBy:        a.CancelledBy,
		CancellationReason: a.CancellationReason,
		CancellationFee:    a.CancellationFee,
	})
}
