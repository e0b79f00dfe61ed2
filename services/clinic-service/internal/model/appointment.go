package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	AppointmentScheduled  = "scheduled"
	AppointmentConfirmed  = "confirmed"
	AppointmentInProgress = "in-progress"
	AppointmentCompleted  = "completed"
	AppointmentCancelled  = "cancelled"
)

const (
	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentRefunded = "refunded"
)

type Appointment struct {
	ID                 string          `json:"id"`
	ClinicID           string          `json:"clinic_id"`
	StaffID            string          `json:"staff_id"`
	CustomerID         string          `json:"customer_id"`
	Date               Date            `json:"date"`
	StartTime          TimeOfDay       `json:"start_time"`
	EndTime            TimeOfDay       `json:"end_time"`
	Status             string          `json:"status"`
	PaymentStatus      string          `json:"payment_status"`
	PaidAmount         decimal.Decimal `json:"paid_amount"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty"`
	CancelledBy        string          `json:"cancelled_by,omitempty"`
	CancellationReason string          `json:"cancellation_reason,omitempty"`
	CancellationFee    decimal.Decimal `json:"cancellation_fee"`
	CreatedAt          time.Time       `json:"created_at"`
}

// BlocksSlots reports whether the appointment still occupies its interval.
func (a Appointment) BlocksSlots() bool {
	switch a.Status {
	case AppointmentScheduled, AppointmentConfirmed, AppointmentInProgress:
		return true
	}
	return false
}

func (a Appointment) Terminal() bool {
	return a.Status == AppointmentCompleted || a.Status == AppointmentCancelled
}

// StartsAt is the appointment start as an instant in the clinic zone.
func (a Appointment) StartsAt(loc *time.Location) time.Time {
	return a.Date.At(a.StartTime, loc)
}

var appointmentTransitions = map[string][]string{
	AppointmentScheduled:  {AppointmentConfirmed, AppointmentInProgress},
	AppointmentConfirmed:  {AppointmentInProgress},
	AppointmentInProgress: {AppointmentCompleted},
}

// CanTransition covers ordinary status moves. Cancellation has its own path.
func CanTransitionAppointment(from, to string) bool {
	for _, next := range appointmentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func IsAppointmentStatus(s string) bool {
	switch s {
	case AppointmentScheduled, AppointmentConfirmed, AppointmentInProgress, AppointmentCompleted, AppointmentCancelled:
		return true
	}
	return false
}
