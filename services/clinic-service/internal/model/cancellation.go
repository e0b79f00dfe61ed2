package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	CancelCustomerRequest = "customer_request"
	CancelClinicRequest   = "clinic_request"
	CancelNoShow          = "no_show"
	CancelEmergency       = "emergency"
	CancelOther           = "other"
)

func IsCancellationType(s string) bool {
	switch s {
	case CancelCustomerRequest, CancelClinicRequest, CancelNoShow, CancelEmergency, CancelOther:
		return true
	}
	return false
}

// CancellationRecord is written once per cancelled appointment and never updated.
type CancellationRecord struct {
	AppointmentID          string          `json:"appointment_id"`
	CancelledByUserID      string          `json:"cancelled_by_user_id"`
	CancelledByRole        string          `json:"cancelled_by_role"`
	Reason                 string          `json:"cancellation_reason"`
	Type                   string          `json:"cancellation_type"`
	HoursBeforeAppointment float64         `json:"hours_before_appointment"`
	Fee                    decimal.Decimal `json:"cancellation_fee"`
	FeePercent             int             `json:"fee_percent"`
	FeeDegraded            bool            `json:"fee_degraded"`
	RefundAmount           decimal.Decimal `json:"refund_amount"`
	PolicyTier             string          `json:"policy_tier"`
	RescheduleOffered      bool            `json:"reschedule_offered"`
	CreatedAt              time.Time       `json:"created_at"`
}
