package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicflow/libs/db"
	"github.com/md-rashed-zaman/clinicflow/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type txPool interface {
	db.DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

type recordStore interface {
	FetchDue(ctx context.Context, tx pgx.Tx, limit int) ([]Record, error)
	MarkPublished(ctx context.Context, tx pgx.Tx, ids []int64) error
	MarkFailed(ctx context.Context, q db.DBTX, ids []int64, reason string, base, ceiling time.Duration) error
}

// Publisher drains outbox_events to Kafka. Rows are marked published in the
// transaction that locked them, so a crash mid-batch republishes and
// consumers dedupe on event_id. A failed write backs the batch off.
type Publisher struct {
	pool       txPool
	repo       recordStore
	logger     *slog.Logger
	brokers    []string
	pollEvery  time.Duration
	batchSize  int
	maxBackoff time.Duration
}

type PublisherConfig struct {
	Brokers    string
	PollEvery  time.Duration
	BatchSize  int
	MaxBackoff time.Duration
}

func NewPublisher(pool *db.Pool, repo *Repository, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	return newPublisher(pool, repo, logger, cfg)
}

func newPublisher(pool txPool, repo recordStore, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxBackoff < cfg.PollEvery {
		cfg.MaxBackoff = 5 * time.Minute
	}
	return &Publisher{
		pool:       pool,
		repo:       repo,
		logger:     logger,
		brokers:    kafkax.SplitBrokers(cfg.Brokers),
		pollEvery:  cfg.PollEvery,
		batchSize:  cfg.BatchSize,
		maxBackoff: cfg.MaxBackoff,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	if len(p.brokers) == 0 {
		p.logger.Warn("outbox publisher disabled (no kafka brokers configured)")
		return
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(p.brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	defer writer.Close()
	p.logger.Info("outbox publisher started", "brokers", p.brokers, "batch_size", p.batchSize)

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		p.drain(ctx, writer)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// drain publishes full batches back to back and stops at the first short
// or failed one.
func (p *Publisher) drain(ctx context.Context, writer messageWriter) {
	for ctx.Err() == nil {
		n, err := p.publishBatch(ctx, writer)
		if err != nil {
			p.logger.Error("outbox publish failed", "err", err)
			return
		}
		if n < p.batchSize {
			return
		}
	}
}

func (p *Publisher) publishBatch(ctx context.Context, writer messageWriter) (int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	records, err := p.repo.FetchDue(ctx, tx, p.batchSize)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, tx.Commit(ctx)
	}

	ids := make([]int64, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
		if r.Attempts > 0 {
			p.logger.Info("retrying outbox event", "event_id", r.EventID, "event_type", r.EventType, "attempts", r.Attempts)
		}
	}

	if err := writer.WriteMessages(ctx, toMessages(ctx, records)...); err != nil {
		// Release the row locks before recording the failure on the pool.
		_ = tx.Rollback(ctx)
		if markErr := p.repo.MarkFailed(ctx, p.pool, ids, err.Error(), p.pollEvery, p.maxBackoff); markErr != nil {
			p.logger.Warn("outbox failure not recorded", "err", markErr)
		}
		return 0, fmt.Errorf("write %d events: %w", len(records), err)
	}

	if err := p.repo.MarkPublished(ctx, tx, ids); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	p.logger.Debug("outbox batch published", "count", len(records))
	return len(records), nil
}

func toMessages(ctx context.Context, records []Record) []kafka.Message {
	msgs := make([]kafka.Message, 0, len(records))
	for _, r := range records {
		meta := kafkax.EventMeta{EventID: r.EventID, EventType: r.EventType, OccurredAt: r.CreatedAt}
		msgCtx := r.Trace.Resume(ctx)
		msgs = append(msgs, kafka.Message{
			Topic:   r.EventType,
			Key:     []byte(r.AggregateID),
			Value:   r.Payload,
			Headers: kafkax.InjectTraceHeaders(msgCtx, meta.Headers()),
		})
	}
	return msgs
}
