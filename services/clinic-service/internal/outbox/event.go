package outbox

import (
	"context"
	"encoding/json"
)

// Event types. The Kafka topic equals the event type.
const (
	AppointmentBooked        = "clinic.appointment.booked.v1"
	AppointmentStatusChanged = "clinic.appointment.status_changed.v1"
	AppointmentCancelled     = "clinic.appointment.cancelled.v1"
	ReminderCancelled        = "clinic.reminder.cancelled.v1"
	QueueCheckedIn           = "clinic.queue.checked_in.v1"
	QueueStatusChanged       = "clinic.queue.status_changed.v1"
)

// Event is the domain event envelope written to the outbox table.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

func NewEvent(aggregateType, aggregateID, eventType string, payload any) (Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       b,
	}, nil
}

// Emitter records an event outside any caller transaction.
type Emitter interface {
	Emit(ctx context.Context, evt Event) error
}

// Discard drops every event; used when no outbox is wired.
type Discard struct{}

func (Discard) Emit(context.Context, Event) error { return nil }
