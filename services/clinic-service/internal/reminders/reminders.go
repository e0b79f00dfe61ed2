// Package reminders plans reminder jobs when an appointment is booked and
// withdraws them when it is cancelled. Delivery belongs to the notification
// system, which reads pending jobs.
package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/clinicflow/libs/db"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/outbox"
)

const (
	StatusPending   = "pending"
	StatusCancelled = "cancelled"
)

type Job struct {
	IdempotencyKey string
	AppointmentID  string
	ClinicID       string
	CustomerID     string
	Channel        string
	RemindAt       time.Time
}

// Plan returns one job per offset whose reminder time is still in the future.
func Plan(appointmentID, clinicID, customerID string, startsAt time.Time, offsets []time.Duration, now time.Time) []Job {
	var jobs []Job
	for _, offset := range offsets {
		remindAt := startsAt.Add(-offset)
		if !remindAt.After(now) {
			continue
		}
		jobs = append(jobs, Job{
			IdempotencyKey: fmt.Sprintf("%s:%d", appointmentID, int(offset.Minutes())),
			AppointmentID:  appointmentID,
			ClinicID:       clinicID,
			CustomerID:     customerID,
			Channel:        "default",
			RemindAt:       remindAt.UTC(),
		})
	}
	return jobs
}

type Store interface {
	CancelPending(ctx context.Context, appointmentID string) (int64, error)
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert writes jobs through q; replays of the same booking are ignored.
func (r *Repository) Insert(ctx context.Context, q db.DBTX, jobs []Job) error {
	for _, j := range jobs {
		_, err := q.Exec(ctx, `
			INSERT INTO reminder_jobs (idempotency_key, appointment_id, clinic_id, customer_id, channel, remind_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (idempotency_key) DO NOTHING
		`, j.IdempotencyKey, j.AppointmentID, j.ClinicID, j.CustomerID, j.Channel, j.RemindAt)
		if err != nil {
			return err
		}
	}
	return nil
}

// CancelPending flips every pending job for the appointment. Running it twice
// is harmless.
func (r *Repository) CancelPending(ctx context.Context, appointmentID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE reminder_jobs
		SET status = 'cancelled', updated_at = now()
		WHERE appointment_id = $1 AND status = 'pending'
	`, appointmentID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type Canceller struct {
	store  Store
	events outbox.Emitter
}

func NewCanceller(store Store, events outbox.Emitter) *Canceller {
	if events == nil {
		events = outbox.Discard{}
	}
	return &Canceller{store: store, events: events}
}

// Cancel withdraws pending reminders and announces it when any were pending.
func (c *Canceller) Cancel(ctx context.Context, appointmentID string) (int64, error) {
	n, err := c.store.CancelPending(ctx, appointmentID)
	if err != nil {
		return 0, fmt.Errorf("cancel reminders: %w", err)
	}
	if n == 0 {
		return 0, nil
	}
	evt, err := outbox.NewEvent("appointment", appointmentID, outbox.ReminderCancelled, map[string]any{
		"appointment_id": appointmentID,
		"cancelled_jobs": n,
	})
	if err != nil {
		return n, err
	}
	if err := c.events.Emit(ctx, evt); err != nil {
		return n, fmt.Errorf("record reminder event: %w", err)
	}
	return n, nil
}
