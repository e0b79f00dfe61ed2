package consumer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicflow/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrMalformed marks a message that no amount of retrying will fix.
var ErrMalformed = errors.New("malformed message")

type Handler func(ctx context.Context, msg kafka.Message) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
	// MaxAttempts bounds handler retries before a message is skipped.
	MaxAttempts int
}

type Consumer struct {
	reader      messageReader
	logger      *slog.Logger
	handler     Handler
	backoff     time.Duration
	maxAttempts int
}

func New(logger *slog.Logger, cfg Config, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  kafkax.SplitBrokers(cfg.Brokers),
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 5
	}
	return &Consumer{reader: reader, logger: logger, handler: handler, backoff: time.Second, maxAttempts: attempts}
}

// Run fetches until ctx is cancelled. Offsets are committed once a message
// is handled, found malformed, or out of attempts. A message whose handling
// is interrupted by shutdown stays uncommitted and is redelivered.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka fetch error", "err", err)
			if !c.sleep(ctx, c.backoff) {
				return
			}
			continue
		}
		if !c.process(ctx, msg) {
			return
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit error", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

// process reports false when ctx ended before the message was settled.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	meta := kafkax.ExtractEventMeta(msg)
	wait := c.backoff
	for attempt := 1; ; attempt++ {
		err := c.dispatch(ctx, msg, attempt)
		switch {
		case err == nil:
			return true
		case ctx.Err() != nil:
			return false
		case errors.Is(err, ErrMalformed):
			c.logger.Error("dropping malformed message", "err", err, "event_id", meta.EventID, "topic", msg.Topic, "offset", msg.Offset)
			return true
		case attempt >= c.maxAttempts:
			c.logger.Error("giving up on message", "err", err, "event_id", meta.EventID, "topic", msg.Topic, "offset", msg.Offset, "attempts", attempt)
			return true
		}
		c.logger.Warn("handler error, retrying", "err", err, "event_id", meta.EventID, "attempt", attempt, "retry_in", wait)
		if !c.sleep(ctx, wait) {
			return false
		}
		wait *= 2
	}
}

func (c *Consumer) dispatch(ctx context.Context, msg kafka.Message, attempt int) error {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
			attribute.Int("messaging.attempt", attempt),
		),
	)
	defer span.End()

	err := c.handler(ctxSpan, msg)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (c *Consumer) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
