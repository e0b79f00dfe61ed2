package booking

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicflow/libs/clock"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/policy"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/reminders"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Write is everything a booking persists atomically.
type Write struct {
	Appointment    model.Appointment
	Reminders      []reminders.Job
	Events         []outbox.Event
	IdempotencyKey string
}

type Store interface {
	// CreateBooking inserts only if no active appointment for the same staff
	// overlaps the interval, and returns Conflict otherwise. With an
	// idempotency key already used, it returns the earlier appointment and
	// replayed=true.
	CreateBooking(ctx context.Context, w Write) (appt model.Appointment, replayed bool, err error)
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	ListAppointments(ctx context.Context, f ListFilter) ([]model.Appointment, error)
	// UpdateStatus moves the appointment only while it is still in from.
	UpdateStatus(ctx context.Context, id, from, to string) (model.Appointment, error)
}

type ListFilter struct {
	ClinicID string
	StaffID  string
	Date     model.Date
	Status   string
}

type WindowChecker interface {
	Window(ctx context.Context, clinicID, staffID string, date model.Date, start, end model.TimeOfDay) (model.AvailabilityRule, bool, error)
}

type Service struct {
	store    Store
	windows  WindowChecker
	settings policy.Provider
	events   outbox.Emitter
	clock    clock.Clock
	loc      *time.Location
	logger   *slog.Logger
}

type Options struct {
	Store    Store
	Windows  WindowChecker
	Settings policy.Provider
	Events   outbox.Emitter
	Clock    clock.Clock
	Location *time.Location
	Logger   *slog.Logger
}

func NewService(opts Options) *Service {
	if opts.Events == nil {
		opts.Events = outbox.Discard{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = clock.System(opts.Location)
	}
	return &Service{
		store:    opts.Store,
		windows:  opts.Windows,
		settings: opts.Settings,
		events:   opts.Events,
		clock:    opts.Clock,
		loc:      opts.Location,
		logger:   opts.Logger,
	}
}

type BookInput struct {
	ClinicID       string
	StaffID        string
	CustomerID     string
	Date           model.Date
	StartTime      model.TimeOfDay
	EndTime        model.TimeOfDay
	PaidAmount     decimal.Decimal
	IdempotencyKey string
}

func validateBook(in BookInput) error {
	switch {
	case strings.TrimSpace(in.ClinicID) == "":
		return apperr.Validation("clinic_id", "clinic_id is required")
	case strings.TrimSpace(in.StaffID) == "":
		return apperr.Validation("staff_id", "staff_id is required")
	case strings.TrimSpace(in.CustomerID) == "":
		return apperr.Validation("customer_id", "customer_id is required")
	case in.Date.IsZero():
		return apperr.Validation("date", "date is required")
	case in.EndTime <= in.StartTime:
		return apperr.Validation("end_time", "end_time must be after start_time")
	case in.PaidAmount.IsNegative():
		return apperr.Validation("paid_amount", "paid_amount must not be negative")
	}
	return nil
}

// Book creates an appointment. A previously listed slot is not a
// reservation: the store re-checks overlap when it writes.
func (s *Service) Book(ctx context.Context, in BookInput) (model.Appointment, bool, error) {
	ctx, span := otel.Tracer("booking").Start(ctx, "booking.book")
	defer span.End()

	if err := validateBook(in); err != nil {
		return model.Appointment{}, false, err
	}

	if _, ok, err := s.windows.Window(ctx, in.ClinicID, in.StaffID, in.Date, in.StartTime, in.EndTime); err != nil {
		span.RecordError(err)
		return model.Appointment{}, false, err
	} else if !ok {
		return model.Appointment{}, false, apperr.Validation("start_time", "requested time is outside staff availability")
	}

	now := s.clock.Now().In(s.loc)
	paymentStatus := model.PaymentPending
	if in.PaidAmount.IsPositive() {
		paymentStatus = model.PaymentPaid
	}
	appt := model.Appointment{
		ID:              uuid.NewString(),
		ClinicID:        in.ClinicID,
		StaffID:         in.StaffID,
		CustomerID:      in.CustomerID,
		Date:            in.Date,
		StartTime:       in.StartTime,
		EndTime:         in.EndTime,
		Status:          model.AppointmentScheduled,
		PaymentStatus:   paymentStatus,
		PaidAmount:      in.PaidAmount,
		CancellationFee: decimal.Zero,
		CreatedAt:       now,
	}

	offsets, err := s.settings.ReminderOffsets(ctx, in.ClinicID)
	if err != nil {
		s.logger.Warn("reminder offsets unavailable; booking without reminders", "clinic_id", in.ClinicID, "err", err)
		offsets = nil
	}
	jobs := reminders.Plan(appt.ID, appt.ClinicID, appt.CustomerID, appt.StartsAt(s.loc), offsets, now)

	evt, err := outbox.NewEvent("appointment", appt.ID, outbox.AppointmentBooked, map[string]any{
		"appointment_id": appt.ID,
		"clinic_id":      appt.ClinicID,
		"staff_id":       appt.StaffID,
		"customer_id":    appt.CustomerID,
		"starts_at":      appt.StartsAt(s.loc).Format(time.RFC3339),
		"ends_at":        appt.Date.At(appt.EndTime, s.loc).Format(time.RFC3339),
	})
	if err != nil {
		return model.Appointment{}, false, apperr.Internal("failed to build event payload", err)
	}

	created, replayed, err := s.store.CreateBooking(ctx, Write{
		Appointment:    appt,
		Reminders:      jobs,
		Events:         []outbox.Event{evt},
		IdempotencyKey: strings.TrimSpace(in.IdempotencyKey),
	})
	if err != nil {
		span.RecordError(err)
		return model.Appointment{}, false, err
	}
	span.SetAttributes(
		attribute.String("appointment.id", created.ID),
		attribute.Bool("booking.replayed", replayed),
	)
	return created, replayed, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]model.Appointment, error) {
	if strings.TrimSpace(f.ClinicID) == "" {
		return nil, apperr.Validation("clinic_id", "clinic_id is required")
	}
	if f.Status != "" && !model.IsAppointmentStatus(f.Status) {
		return nil, apperr.Validation("status", "unknown appointment status")
	}
	return s.store.ListAppointments(ctx, f)
}

// UpdateStatus moves an appointment along its non-cancelling lifecycle.
func (s *Service) UpdateStatus(ctx context.Context, id, status string) (model.Appointment, error) {
	if strings.TrimSpace(id) == "" {
		return model.Appointment{}, apperr.Validation("id", "id is required")
	}
	if !model.IsAppointmentStatus(status) {
		return model.Appointment{}, apperr.Validation("status", "unknown appointment status")
	}
	if status == model.AppointmentCancelled {
		return model.Appointment{}, apperr.Validation("status", "use the cancel operation to cancel an appointment")
	}

	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if appt.Terminal() {
		return model.Appointment{}, apperr.Conflict("appointment is already " + appt.Status)
	}
	if !model.CanTransitionAppointment(appt.Status, status) {
		return model.Appointment{}, apperr.Conflict("cannot move appointment from " + appt.Status + " to " + status)
	}

	updated, err := s.store.UpdateStatus(ctx, id, appt.Status, status)
	if err != nil {
		return model.Appointment{}, err
	}

	evt, err := outbox.NewEvent("appointment", id, outbox.AppointmentStatusChanged, map[string]any{
		"appointment_id": id,
		"from":           appt.Status,
		"to":             status,
	})
	if err == nil {
		err = s.events.Emit(ctx, evt)
	}
	if err != nil {
		s.logger.Warn("status event not recorded", "appointment_id", id, "err", err)
	}
	return updated, nil
}
