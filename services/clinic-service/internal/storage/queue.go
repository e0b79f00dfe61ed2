package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicflow/libs/db"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/queue"
)

type QueueRepository struct {
	pool *db.Pool
}

func NewQueueRepository(pool *db.Pool) *QueueRepository {
	return &QueueRepository{pool: pool}
}

var (
	_ queue.Store   = (*QueueRepository)(nil)
	_ queue.Counter = (*QueueRepository)(nil)
)

const queueColumns = `
	id::text, clinic_id, queue_date, queue_number, COALESCE(customer_id, ''), customer_name,
	COALESCE(staff_id, ''), COALESCE(appointment_type, ''), priority, status, check_in_time,
	called_time, service_start_time, service_end_time, estimated_wait_time, estimated_call_time,
	COALESCE(cancellation_reason, ''), COALESCE(notes, '')`

func scanEntry(row pgx.Row) (model.QueueEntry, error) {
	var (
		e        model.QueueEntry
		day      time.Time
		priority string
	)
	err := row.Scan(
		&e.ID,
		&e.ClinicID,
		&day,
		&e.QueueNumber,
		&e.CustomerID,
		&e.CustomerName,
		&e.StaffID,
		&e.AppointmentType,
		&priority,
		&e.Status,
		&e.CheckInTime,
		&e.CalledTime,
		&e.ServiceStartTime,
		&e.ServiceEndTime,
		&e.EstimatedWait,
		&e.EstimatedCallTime,
		&e.CancellationReason,
		&e.Notes,
	)
	if err != nil {
		return model.QueueEntry{}, err
	}
	e.QueueDate = model.DateOf(day)
	e.Priority = model.Priority(priority)
	return e, nil
}

func (r *QueueRepository) InsertEntry(ctx context.Context, e model.QueueEntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO queue_entries
			(id, clinic_id, queue_date, queue_number, customer_id, customer_name, staff_id,
			 appointment_type, priority, status, check_in_time, estimated_wait_time,
			 estimated_call_time, notes)
		VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, e.ID, e.ClinicID, dateArg(e.QueueDate), e.QueueNumber, nullable(e.CustomerID), e.CustomerName,
		nullable(e.StaffID), nullable(e.AppointmentType), string(e.Priority), e.Status, e.CheckInTime,
		e.EstimatedWait, e.EstimatedCallTime, nullable(e.Notes))
	return translate(err, "queue entry not found", "queue number already issued")
}

func (r *QueueRepository) GetEntry(ctx context.Context, id string) (model.QueueEntry, error) {
	e, err := scanEntry(r.pool.QueryRow(ctx, `
		SELECT `+queueColumns+`
		FROM queue_entries
		WHERE id::text = $1
	`, id))
	if err != nil {
		return model.QueueEntry{}, translate(err, "queue entry not found", "queue entry conflict")
	}
	return e, nil
}

func (r *QueueRepository) ListEntries(ctx context.Context, clinicID string, day model.Date, status string) ([]model.QueueEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+queueColumns+`
		FROM queue_entries
		WHERE clinic_id = $1 AND queue_date = $2::date AND ($3 = '' OR status = $3)
		ORDER BY queue_number
	`, clinicID, dateArg(day), status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.QueueEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpdateEntry is a compare-and-set on status; losing a race to another
// caller surfaces as Conflict.
func (r *QueueRepository) UpdateEntry(ctx context.Context, e model.QueueEntry, fromStatus string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE queue_entries
		SET status = $3,
			staff_id = $4,
			called_time = $5,
			service_start_time = $6,
			service_end_time = $7,
			estimated_wait_time = $8,
			estimated_call_time = $9,
			cancellation_reason = $10,
			notes = $11
		WHERE id::text = $1 AND status = $2
	`, e.ID, fromStatus, e.Status, nullable(e.StaffID), e.CalledTime, e.ServiceStartTime,
		e.ServiceEndTime, e.EstimatedWait, e.EstimatedCallTime, nullable(e.CancellationReason), nullable(e.Notes))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.GetEntry(ctx, e.ID); err != nil {
		return err
	}
	return apperr.Conflict("queue entry status changed concurrently")
}

// Next issues the next queue number for the clinic day. The upsert takes a
// row lock, so concurrent check-ins receive distinct numbers.
func (r *QueueRepository) Next(ctx context.Context, clinicID string, day model.Date) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		INSERT INTO queue_counters (clinic_id, queue_date, last_number)
		VALUES ($1, $2::date, 1)
		ON CONFLICT (clinic_id, queue_date)
		DO UPDATE SET last_number = queue_counters.last_number + 1
		RETURNING last_number
	`, clinicID, dateArg(day)).Scan(&n)
	return n, err
}
