package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicflow/libs/db"
	otelx "github.com/md-rashed-zaman/clinicflow/libs/otel"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores evt with the caller's trace context. Pass the booking or
// cancellation transaction as q to make the event atomic with the write.
func (r *Repository) Insert(ctx context.Context, q db.DBTX, evt Event) error {
	trace := otelx.CaptureTrace(ctx)
	_, err := q.Exec(ctx, `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))
	`, evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, trace.Traceparent, trace.Tracestate)
	return err
}

// Emit implements Emitter outside any caller transaction.
func (r *Repository) Emit(ctx context.Context, evt Event) error {
	return r.Insert(ctx, r.pool, evt)
}

// Record is a stored event awaiting publication.
type Record struct {
	ID          int64
	EventID     string
	AggregateID string
	EventType   string
	Payload     []byte
	Trace       otelx.StoredTrace
	CreatedAt   time.Time
	Attempts    int
}

// FetchDue locks up to limit unpublished rows whose retry time has come.
// Rows locked by another replica are skipped.
func (r *Repository) FetchDue(ctx context.Context, tx pgx.Tx, limit int) ([]Record, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id::text, aggregate_id, event_type, payload,
			COALESCE(traceparent, ''), COALESCE(tracestate, ''), created_at, attempts
		FROM outbox_events
		WHERE published_at IS NULL AND next_attempt_at <= now()
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var rec Record
		err := row.Scan(&rec.ID, &rec.EventID, &rec.AggregateID, &rec.EventType, &rec.Payload,
			&rec.Trace.Traceparent, &rec.Trace.Tracestate, &rec.CreatedAt, &rec.Attempts)
		return rec, err
	})
}

func (r *Repository) MarkPublished(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE outbox_events
		SET published_at = now(), last_error = NULL
		WHERE id = ANY($1)
	`, ids)
	return err
}

// MarkFailed pushes the rows back by base doubled per previous attempt,
// never more than ceiling.
func (r *Repository) MarkFailed(ctx context.Context, q db.DBTX, ids []int64, reason string, base, ceiling time.Duration) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := q.Exec(ctx, `
		UPDATE outbox_events
		SET attempts = attempts + 1,
			last_error = $2,
			next_attempt_at = now() + LEAST($3::bigint * (2 ^ LEAST(attempts, 16))::bigint, $4::bigint) * interval '1 millisecond'
		WHERE id = ANY($1) AND published_at IS NULL
	`, ids, truncate(reason, 512), base.Milliseconds(), ceiling.Milliseconds())
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
