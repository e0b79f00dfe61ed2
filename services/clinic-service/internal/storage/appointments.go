package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicflow/libs/db"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/booking"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/cancellation"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/reminders"
	"github.com/shopspring/decimal"
)

const msgSlotTaken = "time slot already booked"

type AppointmentRepository struct {
	pool      *db.Pool
	reminders *reminders.Repository
	outbox    *outbox.Repository
}

func NewAppointmentRepository(pool *db.Pool, rem *reminders.Repository, out *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{pool: pool, reminders: rem, outbox: out}
}

var (
	_ booking.Store      = (*AppointmentRepository)(nil)
	_ cancellation.Store = (*AppointmentRepository)(nil)
)

var appointmentColumns = fmt.Sprintf(`
	id::text, clinic_id, staff_id, customer_id, appointment_date, %s, %s,
	status, payment_status, paid_amount::text, cancelled_at, COALESCE(cancelled_by, ''),
	COALESCE(cancellation_reason, ''), cancellation_fee::text, created_at`,
	seconds("start_time"), seconds("end_time"))

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var (
		a          model.Appointment
		date       time.Time
		start, end int
		paid, fee  string
	)
	err := row.Scan(
		&a.ID,
		&a.ClinicID,
		&a.StaffID,
		&a.CustomerID,
		&date,
		&start,
		&end,
		&a.Status,
		&a.PaymentStatus,
		&paid,
		&a.CancelledAt,
		&a.CancelledBy,
		&a.CancellationReason,
		&fee,
		&a.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Date = model.DateOf(date)
	a.StartTime = model.TimeOfDay(start)
	a.EndTime = model.TimeOfDay(end)
	if a.PaidAmount, err = parseMoney(paid); err != nil {
		return model.Appointment{}, err
	}
	if a.CancellationFee, err = parseMoney(fee); err != nil {
		return model.Appointment{}, err
	}
	return a, nil
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CreateBooking writes the appointment, its reminder jobs and outbox events
// in one transaction. The exclusion constraint on appointments rejects an
// overlapping active booking for the same staff member.
func (r *AppointmentRepository) CreateBooking(ctx context.Context, w booking.Write) (model.Appointment, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt := w.Appointment
	if w.IdempotencyKey != "" {
		existingID, err := lockIdempotencyKey(ctx, tx, appt.ClinicID, w.IdempotencyKey)
		if err != nil {
			return model.Appointment{}, false, err
		}
		if existingID != "" {
			prior, err := r.getAppointment(ctx, tx, existingID)
			if err != nil {
				return model.Appointment{}, false, err
			}
			return prior, true, tx.Commit(ctx)
		}
	}

	created, err := scanAppointment(tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, clinic_id, staff_id, customer_id, appointment_date, start_time, end_time,
			 status, payment_status, paid_amount, cancellation_fee, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::date, $6::time, $7::time, $8, $9, $10::numeric, $11::numeric, $12, $12)
		RETURNING `+appointmentColumns,
		appt.ID, appt.ClinicID, appt.StaffID, appt.CustomerID, dateArg(appt.Date),
		appt.StartTime.String(), appt.EndTime.String(), appt.Status, appt.PaymentStatus,
		appt.PaidAmount.String(), appt.CancellationFee.String(), appt.CreatedAt,
	))
	if err != nil {
		return model.Appointment{}, false, translate(err, "appointment not found", msgSlotTaken)
	}

	if err := r.reminders.Insert(ctx, tx, w.Reminders); err != nil {
		return model.Appointment{}, false, fmt.Errorf("insert reminders: %w", err)
	}
	for _, evt := range w.Events {
		if err := r.outbox.Insert(ctx, tx, evt); err != nil {
			return model.Appointment{}, false, fmt.Errorf("insert outbox event: %w", err)
		}
	}
	if w.IdempotencyKey != "" {
		if _, err := tx.Exec(ctx, `
			UPDATE booking_idempotency_keys
			SET appointment_id = $3
			WHERE clinic_id = $1 AND idempotency_key = $2
		`, appt.ClinicID, w.IdempotencyKey, created.ID); err != nil {
			return model.Appointment{}, false, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, false, translate(err, "appointment not found", msgSlotTaken)
	}
	return created, false, nil
}

// lockIdempotencyKey claims the key row and returns the appointment it
// already points at, if any. Concurrent callers with the same key serialize
// on the row lock.
func lockIdempotencyKey(ctx context.Context, tx pgx.Tx, clinicID, key string) (string, error) {
	if _, err := tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (clinic_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (clinic_id, idempotency_key) DO NOTHING
	`, clinicID, key); err != nil {
		return "", err
	}
	var appointmentID *string
	err := tx.QueryRow(ctx, `
		SELECT appointment_id::text
		FROM booking_idempotency_keys
		WHERE clinic_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, clinicID, key).Scan(&appointmentID)
	if err != nil {
		return "", err
	}
	if appointmentID == nil {
		return "", nil
	}
	return *appointmentID, nil
}

func (r *AppointmentRepository) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	return r.getAppointment(ctx, r.pool, id)
}

func (r *AppointmentRepository) getAppointment(ctx context.Context, q db.DBTX, id string) (model.Appointment, error) {
	a, err := scanAppointment(q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id::text = $1
	`, id))
	if err != nil {
		return model.Appointment{}, translate(err, "appointment not found", msgSlotTaken)
	}
	return a, nil
}

func (r *AppointmentRepository) ListAppointments(ctx context.Context, f booking.ListFilter) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE clinic_id = $1
			AND ($2 = '' OR staff_id = $2)
			AND ($3::date IS NULL OR appointment_date = $3::date)
			AND ($4 = '' OR status = $4)
		ORDER BY appointment_date, start_time, id
	`, f.ClinicID, f.StaffID, dateArg(f.Date), f.Status)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// ListStaffAppointments returns the appointments still holding time on date.
func (r *AppointmentRepository) ListStaffAppointments(ctx context.Context, clinicID, staffID string, date model.Date) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE clinic_id = $1
			AND staff_id = $2
			AND appointment_date = $3::date
			AND status IN ('scheduled', 'confirmed', 'in-progress')
		ORDER BY start_time
	`, clinicID, staffID, dateArg(date))
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *AppointmentRepository) UpdateStatus(ctx context.Context, id, from, to string) (model.Appointment, error) {
	a, err := scanAppointment(r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3, updated_at = now()
		WHERE id::text = $1 AND status = $2
		RETURNING `+appointmentColumns,
		id, from, to))
	if err == nil {
		return a, nil
	}
	if !db.IsNotFound(err) {
		return model.Appointment{}, translate(err, "appointment not found", msgSlotTaken)
	}
	return model.Appointment{}, r.explainMiss(ctx, id, "appointment status changed concurrently")
}

// MarkCancelled only touches appointments that are neither cancelled nor
// completed, so two racing cancellations produce one winner. The record is
// kept on the row until InsertRecord has written it.
func (r *AppointmentRepository) MarkCancelled(ctx context.Context, rec model.CancellationRecord) (model.Appointment, error) {
	snapshot, err := json.Marshal(rec)
	if err != nil {
		return model.Appointment{}, err
	}
	a, err := scanAppointment(r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = $2,
			cancelled_by = $3,
			cancellation_reason = $4,
			cancellation_fee = $5::numeric,
			cancellation_snapshot = $6::jsonb,
			updated_at = now()
		WHERE id::text = $1 AND status NOT IN ('cancelled', 'completed')
		RETURNING `+appointmentColumns,
		rec.AppointmentID, rec.CreatedAt, rec.CancelledByUserID, rec.Reason, rec.Fee.String(), string(snapshot)))
	if err == nil {
		return a, nil
	}
	if !db.IsNotFound(err) {
		return model.Appointment{}, err
	}
	return model.Appointment{}, r.explainMiss(ctx, rec.AppointmentID, "appointment is already cancelled or completed")
}

func (r *AppointmentRepository) CancellationOf(ctx context.Context, appointmentID string) (model.CancellationRecord, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `
		SELECT cancellation_snapshot
		FROM appointments
		WHERE id::text = $1 AND cancellation_snapshot IS NOT NULL
	`, appointmentID).Scan(&raw)
	if err != nil {
		return model.CancellationRecord{}, translate(err, "cancellation not found", msgSlotTaken)
	}
	return decodeSnapshot(raw)
}

// Unsettled finds cancellations missing their audit row or still holding
// pending reminder jobs.
func (r *AppointmentRepository) Unsettled(ctx context.Context, limit int) ([]model.CancellationRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.cancellation_snapshot
		FROM appointments a
		WHERE a.status = 'cancelled'
			AND a.cancellation_snapshot IS NOT NULL
			AND (
				NOT EXISTS (SELECT 1 FROM cancellation_records c WHERE c.appointment_id = a.id)
				OR EXISTS (SELECT 1 FROM reminder_jobs j WHERE j.appointment_id = a.id AND j.status = 'pending')
			)
		ORDER BY a.cancelled_at, a.id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.CancellationRecord, error) {
		var raw []byte
		if err := row.Scan(&raw); err != nil {
			return model.CancellationRecord{}, err
		}
		return decodeSnapshot(raw)
	})
}

func decodeSnapshot(raw []byte) (model.CancellationRecord, error) {
	var rec model.CancellationRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.CancellationRecord{}, fmt.Errorf("decode cancellation snapshot: %w", err)
	}
	return rec, nil
}

// explainMiss tells a missing row apart from one whose status moved.
func (r *AppointmentRepository) explainMiss(ctx context.Context, id, conflict string) error {
	if _, err := r.GetAppointment(ctx, id); err != nil {
		return err
	}
	return apperr.Conflict(conflict)
}

// InsertRecord writes the audit row and its events in one transaction. A
// second call for the same appointment writes nothing.
func (r *AppointmentRepository) InsertRecord(ctx context.Context, rec model.CancellationRecord, events ...outbox.Event) (bool, error) {
	var wrote bool
	err := r.pool.WithTx(ctx, func(q db.DBTX) error {
		tag, err := q.Exec(ctx, `
			INSERT INTO cancellation_records
				(appointment_id, cancelled_by_user_id, cancelled_by_role, reason, cancellation_type,
				 hours_before_appointment, fee, fee_percent, fee_degraded, refund_amount, policy_tier,
				 reschedule_offered, created_at)
			VALUES ($1::uuid, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10::numeric, $11, $12, $13)
			ON CONFLICT (appointment_id) DO NOTHING
		`, rec.AppointmentID, rec.CancelledByUserID, rec.CancelledByRole, rec.Reason, rec.Type,
			rec.HoursBeforeAppointment, rec.Fee.String(), rec.FeePercent, rec.FeeDegraded,
			rec.RefundAmount.String(), rec.PolicyTier, rec.RescheduleOffered, rec.CreatedAt)
		if err != nil || tag.RowsAffected() == 0 {
			return err
		}
		for _, evt := range events {
			if err := r.outbox.Insert(ctx, q, evt); err != nil {
				return fmt.Errorf("insert outbox event: %w", err)
			}
		}
		wrote = true
		return nil
	})
	return wrote, err
}

// ApplyPayment records a settled or refunded payment against an appointment
// inside the caller's transaction.
func (r *AppointmentRepository) ApplyPayment(ctx context.Context, q db.DBTX, appointmentID, status string, amount decimal.Decimal) error {
	tag, err := q.Exec(ctx, `
		UPDATE appointments
		SET payment_status = $2, paid_amount = $3::numeric, updated_at = now()
		WHERE id::text = $1
	`, appointmentID, status, amount.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("appointment not found")
	}
	return nil
}
