package cancellation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicflow/libs/clock"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/fee"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/outbox"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

type Store interface {
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	// MarkCancelled moves a non-terminal appointment to cancelled and keeps
	// rec with it. It returns Conflict when the appointment is already
	// cancelled or completed.
	MarkCancelled(ctx context.Context, rec model.CancellationRecord) (model.Appointment, error)
	// CancellationOf returns the record kept by MarkCancelled.
	CancellationOf(ctx context.Context, appointmentID string) (model.CancellationRecord, error)
	// InsertRecord writes rec together with events unless a record for the
	// appointment exists. It reports whether anything was written.
	InsertRecord(ctx context.Context, rec model.CancellationRecord, events ...outbox.Event) (bool, error)
	// Unsettled lists kept records whose audit row or reminder withdrawal is
	// still outstanding, oldest first.
	Unsettled(ctx context.Context, limit int) ([]model.CancellationRecord, error)
}

type ReminderCanceller interface {
	Cancel(ctx context.Context, appointmentID string) (int64, error)
}

type Request struct {
	AppointmentID     string
	CancelledByUserID string
	CancelledByRole   string
	Reason            string
	Type              string
	RescheduleOffered bool
}

type Result struct {
	Appointment model.Appointment
	Record      model.CancellationRecord
}

type Engine struct {
	store      Store
	fees       fee.Calculator
	reminders  ReminderCanceller
	clock      clock.Clock
	loc        *time.Location
	feeTimeout time.Duration
	logger     *slog.Logger
}

type Options struct {
	Store      Store
	Fees       fee.Calculator
	Reminders  ReminderCanceller
	Clock      clock.Clock
	Location   *time.Location
	FeeTimeout time.Duration
	Logger     *slog.Logger
}

func NewEngine(opts Options) *Engine {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = clock.System(opts.Location)
	}
	if opts.FeeTimeout <= 0 {
		opts.FeeTimeout = 3 * time.Second
	}
	return &Engine{
		store:      opts.Store,
		fees:       opts.Fees,
		reminders:  opts.Reminders,
		clock:      opts.Clock,
		loc:        opts.Location,
		feeTimeout: opts.FeeTimeout,
		logger:     opts.Logger,
	}
}

func validate(req Request) error {
	switch {
	case strings.TrimSpace(req.AppointmentID) == "":
		return apperr.Validation("appointment_id", "appointment_id is required")
	case strings.TrimSpace(req.CancelledByUserID) == "":
		return apperr.Validation("cancelled_by_user_id", "cancelled_by_user_id is required")
	case strings.TrimSpace(req.CancelledByRole) == "":
		return apperr.Validation("cancelled_by_role", "cancelled_by_role is required")
	case strings.TrimSpace(req.Reason) == "":
		return apperr.Validation("cancellation_reason", "cancellation_reason is required")
	case !model.IsCancellationType(req.Type):
		return apperr.Validation("cancellation_type", "unknown cancellation_type")
	}
	return nil
}

// Cancel prices and applies a cancellation. Only the status change can fail
// the call. The audit record (with its event) and the reminder withdrawal are
// idempotent; when either fails it is logged and finished later from the
// record kept with the appointment, by the next Cancel call or by Reconcile.
func (e *Engine) Cancel(ctx context.Context, req Request) (Result, error) {
	ctx, span := otel.Tracer("cancellation").Start(ctx, "cancellation.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("appointment.id", req.AppointmentID))

	if err := validate(req); err != nil {
		return Result{}, err
	}

	appt, err := e.store.GetAppointment(ctx, req.AppointmentID)
	if err != nil {
		return Result{}, err
	}
	if appt.Status == model.AppointmentCancelled {
		e.resume(ctx, appt)
		return Result{}, apperr.Conflict("appointment is already cancelled")
	}
	if appt.Status == model.AppointmentCompleted {
		return Result{}, apperr.Conflict("appointment is already completed")
	}

	now := e.clock.Now().In(e.loc)
	hours := appt.StartsAt(e.loc).Sub(now).Hours()
	tier := fee.TierFor(hours)

	amount, degraded := e.price(ctx, appt, hours)
	percent := tier.Percent
	if degraded {
		percent = 0
	}

	rec := model.CancellationRecord{
		AppointmentID:          appt.ID,
		CancelledByUserID:      req.CancelledByUserID,
		CancelledByRole:        req.CancelledByRole,
		Reason:                 req.Reason,
		Type:                   req.Type,
		HoursBeforeAppointment: hours,
		Fee:                    amount,
		FeePercent:             percent,
		FeeDegraded:            degraded,
		RefundAmount:           fee.Refund(appt.PaidAmount, amount),
		PolicyTier:             tier.Label,
		RescheduleOffered:      req.RescheduleOffered,
		CreatedAt:              now,
	}
	cancelled, err := e.store.MarkCancelled(ctx, rec)
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}
	e.settle(ctx, cancelled, rec)

	span.SetAttributes(
		attribute.String("cancellation.tier", tier.Label),
		attribute.Bool("cancellation.fee_degraded", degraded),
	)
	return Result{Appointment: cancelled, Record: rec}, nil
}

// Reconcile settles up to limit cancellations with outstanding steps and
// returns how many it visited.
func (e *Engine) Reconcile(ctx context.Context, limit int) (int, error) {
	pending, err := e.store.Unsettled(ctx, limit)
	if err != nil {
		return 0, err
	}
	for _, rec := range pending {
		appt, err := e.store.GetAppointment(ctx, rec.AppointmentID)
		if err != nil {
			e.logger.Warn("reconcile: appointment unavailable", "appointment_id", rec.AppointmentID, "err", err)
			continue
		}
		e.settle(ctx, appt, rec)
	}
	return len(pending), nil
}

// RunReconciler calls Reconcile every interval until ctx is cancelled.
func (e *Engine) RunReconciler(ctx context.Context, every time.Duration, limit int) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		n, err := e.Reconcile(ctx, limit)
		if err != nil && ctx.Err() == nil {
			e.logger.Error("cancellation reconcile failed", "err", err)
			continue
		}
		if n > 0 {
			e.logger.Info("cancellations reconciled", "count", n)
		}
	}
}

func (e *Engine) resume(ctx context.Context, appt model.Appointment) {
	rec, err := e.store.CancellationOf(ctx, appt.ID)
	if err != nil {
		e.logger.Warn("cancellation record unavailable", "appointment_id", appt.ID, "err", err)
		return
	}
	e.settle(ctx, appt, rec)
}

func (e *Engine) settle(ctx context.Context, appt model.Appointment, rec model.CancellationRecord) {
	evt, err := cancelledEvent(appt, rec)
	if err != nil {
		e.logger.Error("cancellation event not built", "appointment_id", appt.ID, "err", err)
		return
	}
	if _, err := e.store.InsertRecord(ctx, rec, evt); err != nil {
		e.logger.Error("cancellation record not written", "appointment_id", appt.ID, "err", err)
	}
	if _, err := e.reminders.Cancel(ctx, appt.ID); err != nil {
		e.logger.Warn("reminder cancellation failed", "appointment_id", appt.ID, "err", err)
	}
}

// price asks the fee calculator under its own deadline. Any failure yields a
// zero fee and flags the cancellation for review.
func (e *Engine) price(ctx context.Context, appt model.Appointment, hours float64) (decimal.Decimal, bool) {
	feeCtx, cancel := context.WithTimeout(ctx, e.feeTimeout)
	defer cancel()

	quote, err := e.fees.Calculate(feeCtx, appt.PaidAmount, hours)
	if err != nil {
		e.logger.Error("cancellation fee calculation failed; charging zero",
			"appointment_id", appt.ID,
			"err", apperr.Upstream("fee calculation failed", err),
			"review", true,
		)
		return decimal.Zero, true
	}
	if quote.Amount.IsNegative() {
		return decimal.Zero, false
	}
	return quote.Amount, false
}

func cancelledEvent(appt model.Appointment, rec model.CancellationRecord) (outbox.Event, error) {
	return outbox.NewEvent("appointment", appt.ID, outbox.AppointmentCancelled, map[string]any{
		"appointment_id":    appt.ID,
		"clinic_id":         appt.ClinicID,
		"customer_id":       appt.CustomerID,
		"cancellation_type": rec.Type,
		"cancellation_fee":  rec.Fee.String(),
		"refund_amount":     rec.RefundAmount.String(),
		"policy_tier":       rec.PolicyTier,
		"fee_degraded":      rec.FeeDegraded,
	})
}
