package model

import "time"

type Priority string

const (
	PriorityEmergency Priority = "emergency"
	PriorityUrgent    Priority = "urgent"
	PriorityNormal    Priority = "normal"
)

// Rank orders priorities; lower is served first.
func (p Priority) Rank() int {
	switch p {
	case PriorityEmergency:
		return 0
	case PriorityUrgent:
		return 1
	default:
		return 2
	}
}

func (p Priority) Valid() bool {
	return p == PriorityEmergency || p == PriorityUrgent || p == PriorityNormal
}

const (
	QueueWaiting   = "waiting"
	QueueCalled    = "called"
	QueueInService = "in-service"
	QueueCompleted = "completed"
	QueueCancelled = "cancelled"
)

type QueueEntry struct {
	ID                 string     `json:"id"`
	ClinicID           string     `json:"clinic_id"`
	QueueDate          Date       `json:"queue_date"`
	QueueNumber        int        `json:"queue_number"`
	CustomerID         string     `json:"customer_id,omitempty"`
	CustomerName       string     `json:"customer_name"`
	StaffID            string     `json:"staff_id,omitempty"`
	AppointmentType    string     `json:"appointment_type,omitempty"`
	Priority           Priority   `json:"priority"`
	Status             string     `json:"status"`
	CheckInTime        time.Time  `json:"check_in_time"`
	CalledTime         *time.Time `json:"called_time,omitempty"`
	ServiceStartTime   *time.Time `json:"service_start_time,omitempty"`
	ServiceEndTime     *time.Time `json:"service_end_time,omitempty"`
	EstimatedWait      int        `json:"estimated_wait_time"`
	EstimatedCallTime  time.Time  `json:"estimated_call_time"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	Notes              string     `json:"notes,omitempty"`
}

func (e QueueEntry) Terminal() bool {
	return e.Status == QueueCompleted || e.Status == QueueCancelled
}

var queueTransitions = map[string][]string{
	QueueWaiting:   {QueueCalled, QueueCancelled},
	QueueCalled:    {QueueInService, QueueCancelled},
	QueueInService: {QueueCompleted},
}

func CanTransitionQueue(from, to string) bool {
	for _, next := range queueTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func IsQueueStatus(s string) bool {
	switch s {
	case QueueWaiting, QueueCalled, QueueInService, QueueCompleted, QueueCancelled:
		return true
	}
	return false
}
