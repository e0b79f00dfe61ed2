package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/md-rashed-zaman/clinicflow/libs/db"
	"github.com/md-rashed-zaman/clinicflow/libs/kafkax"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

// PaymentEvent is the body of a payment message from the billing system.
type PaymentEvent struct {
	AppointmentID string          `json:"appointment_id"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
}

type TxRunner interface {
	WithTx(ctx context.Context, fn func(q db.DBTX) error) error
}

type Inbox interface {
	Record(ctx context.Context, q db.DBTX, eventID, eventType string) (bool, error)
}

type PaymentWriter interface {
	ApplyPayment(ctx context.Context, q db.DBTX, appointmentID, status string, amount decimal.Decimal) error
}

// PaymentHandler records the inbox claim and the payment change in one
// transaction, so a redelivered message is applied at most once.
type PaymentHandler struct {
	tx       TxRunner
	inbox    Inbox
	payments PaymentWriter
	logger   *slog.Logger
}

func NewPaymentHandler(tx TxRunner, in Inbox, payments PaymentWriter, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{tx: tx, inbox: in, payments: payments, logger: logger}
}

func (h *PaymentHandler) Handle(ctx context.Context, msg kafka.Message) error {
	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID == "" {
		return fmt.Errorf("%w: payment message without event id on %s", ErrMalformed, msg.Topic)
	}

	var evt PaymentEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return fmt.Errorf("%w: decode payment event %s: %v", ErrMalformed, meta.EventID, err)
	}
	if evt.AppointmentID == "" {
		return fmt.Errorf("%w: payment event %s: missing appointment_id", ErrMalformed, meta.EventID)
	}
	if evt.Status == "" {
		evt.Status = model.PaymentPaid
	}
	switch evt.Status {
	case model.PaymentPending, model.PaymentPaid, model.PaymentRefunded:
	default:
		return fmt.Errorf("%w: payment event %s: unknown status %q", ErrMalformed, meta.EventID, evt.Status)
	}
	if evt.Amount.IsNegative() {
		return fmt.Errorf("%w: payment event %s: negative amount", ErrMalformed, meta.EventID)
	}

	return h.tx.WithTx(ctx, func(q db.DBTX) error {
		fresh, err := h.inbox.Record(ctx, q, meta.EventID, meta.EventType)
		if err != nil {
			return fmt.Errorf("inbox record: %w", err)
		}
		if !fresh {
			h.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
			return nil
		}
		if err := h.payments.ApplyPayment(ctx, q, evt.AppointmentID, evt.Status, evt.Amount); err != nil {
			return fmt.Errorf("apply payment: %w", err)
		}
		h.logger.Info("payment applied", "event_id", meta.EventID, "appointment_id", evt.AppointmentID, "status", evt.Status)
		return nil
	})
}
