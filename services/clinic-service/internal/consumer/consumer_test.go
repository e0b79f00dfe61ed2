package consumer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicflow/libs/db"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	errs      []error
	committed []string
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, string(m.Key))
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *fakeReader) commits() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.committed...)
}

func startConsumer(c *Consumer) (context.CancelFunc, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	return cancel, done
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("consumer did not stop")
	}
}

func TestRun_RetriesThenCommits(t *testing.T) {
	reader := &fakeReader{
		errs: []error{errors.New("broker down")},
		msgs: []kafka.Message{
			{Topic: "t", Key: []byte("flaky")},
			{Topic: "t", Key: []byte("bad")},
			{Topic: "t", Key: []byte("stuck")},
		},
	}

	var mu sync.Mutex
	calls := map[string]int{}
	c := &Consumer{
		reader:      reader,
		logger:      testLogger(),
		backoff:     time.Millisecond,
		maxAttempts: 3,
		handler: func(_ context.Context, msg kafka.Message) error {
			key := string(msg.Key)
			mu.Lock()
			calls[key]++
			n := calls[key]
			mu.Unlock()
			switch key {
			case "flaky":
				if n == 1 {
					return errors.New("transient")
				}
				return nil
			case "bad":
				return fmt.Errorf("%w: no body", ErrMalformed)
			default:
				return errors.New("still failing")
			}
		},
	}

	cancel, done := startConsumer(c)
	deadline := time.Now().Add(2 * time.Second)
	for len(reader.commits()) < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	waitDone(t, done)

	got := reader.commits()
	if len(got) != 3 || got[0] != "flaky" || got[1] != "bad" || got[2] != "stuck" {
		t.Fatalf("unexpected commits %v", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls["flaky"] != 2 || calls["bad"] != 1 || calls["stuck"] != 3 {
		t.Fatalf("unexpected attempt counts %v", calls)
	}
	if !reader.closed {
		t.Fatalf("expected reader to be closed")
	}
}

func TestRun_ShutdownLeavesMessageUncommitted(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{{Topic: "t", Key: []byte("a")}}}
	failed := make(chan struct{}, 1)
	c := &Consumer{
		reader:      reader,
		logger:      testLogger(),
		backoff:     time.Hour,
		maxAttempts: 5,
		handler: func(context.Context, kafka.Message) error {
			select {
			case failed <- struct{}{}:
			default:
			}
			return errors.New("db unavailable")
		},
	}

	cancel, done := startConsumer(c)
	<-failed
	cancel()
	waitDone(t, done)

	if got := reader.commits(); len(got) != 0 {
		t.Fatalf("expected no commits, got %v", got)
	}
}

type fakeTx struct {
	runs int
}

func (f *fakeTx) WithTx(_ context.Context, fn func(q db.DBTX) error) error {
	f.runs++
	return fn(nil)
}

type fakeInbox struct {
	seen map[string]bool
}

func (f *fakeInbox) Record(_ context.Context, _ db.DBTX, eventID, _ string) (bool, error) {
	if f.seen[eventID] {
		return false, nil
	}
	f.seen[eventID] = true
	return true, nil
}

type applied struct {
	appointmentID string
	status        string
	amount        decimal.Decimal
}

type fakePayments struct {
	calls []applied
	err   error
}

func (f *fakePayments) ApplyPayment(_ context.Context, _ db.DBTX, id, status string, amount decimal.Decimal) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, applied{id, status, amount})
	return nil
}

func paymentMsg(eventID, body string) kafka.Message {
	return kafka.Message{
		Topic:   "billing.payment.captured.v1",
		Headers: []kafka.Header{{Key: "event_id", Value: []byte(eventID)}},
		Value:   []byte(body),
	}
}

func TestPaymentHandler_AppliesOnceAndDedupes(t *testing.T) {
	tx := &fakeTx{}
	payments := &fakePayments{}
	h := NewPaymentHandler(tx, &fakeInbox{seen: map[string]bool{}}, payments, testLogger())

	msg := paymentMsg("evt-1", `{"appointment_id":"appt-1","status":"paid","amount":"200000"}`)
	for i := 0; i < 2; i++ {
		if err := h.Handle(context.Background(), msg); err != nil {
			t.Fatalf("handle #%d: %v", i, err)
		}
	}

	if len(payments.calls) != 1 {
		t.Fatalf("expected a single payment write, got %d", len(payments.calls))
	}
	got := payments.calls[0]
	if got.appointmentID != "appt-1" || got.status != "paid" || !got.amount.Equal(decimal.NewFromInt(200000)) {
		t.Fatalf("unexpected payment %+v", got)
	}
	if tx.runs != 2 {
		t.Fatalf("expected both deliveries to open a transaction, got %d", tx.runs)
	}
}

func TestPaymentHandler_DefaultsStatusToPaid(t *testing.T) {
	payments := &fakePayments{}
	h := NewPaymentHandler(&fakeTx{}, &fakeInbox{seen: map[string]bool{}}, payments, testLogger())

	if err := h.Handle(context.Background(), paymentMsg("evt-2", `{"appointment_id":"appt-2","amount":12.5}`)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(payments.calls) != 1 || payments.calls[0].status != "paid" {
		t.Fatalf("unexpected calls %+v", payments.calls)
	}
}

func TestPaymentHandler_RejectsBadMessages(t *testing.T) {
	cases := []struct {
		name string
		msg  kafka.Message
	}{
		{"no event id", kafka.Message{Topic: "t", Value: []byte(`{"appointment_id":"a"}`)}},
		{"bad json", paymentMsg("e1", `{`)},
		{"no appointment", paymentMsg("e2", `{"status":"paid"}`)},
		{"unknown status", paymentMsg("e3", `{"appointment_id":"a","status":"void"}`)},
		{"negative amount", paymentMsg("e4", `{"appointment_id":"a","amount":"-1"}`)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tx := &fakeTx{}
			h := NewPaymentHandler(tx, &fakeInbox{seen: map[string]bool{}}, &fakePayments{}, testLogger())
			if err := h.Handle(context.Background(), tc.msg); !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected malformed error, got %v", err)
			}
			if tx.runs != 0 {
				t.Fatalf("bad message must not open a transaction")
			}
		})
	}
}

func TestPaymentHandler_WriteFailureSurfaces(t *testing.T) {
	h := NewPaymentHandler(&fakeTx{}, &fakeInbox{seen: map[string]bool{}}, &fakePayments{err: errors.New("boom")}, testLogger())
	err := h.Handle(context.Background(), paymentMsg("evt-9", `{"appointment_id":"a"}`))
	if err == nil || errors.Is(err, ErrMalformed) {
		t.Fatalf("expected a retryable error, got %v", err)
	}
}
