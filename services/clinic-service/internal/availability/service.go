package availability

import (
	"context"
	"strings"

	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// AppointmentLister returns the appointments held by one staff member on a date.
type AppointmentLister interface {
	ListStaffAppointments(ctx context.Context, clinicID, staffID string, date model.Date) ([]model.Appointment, error)
}

type DaySlots struct {
	Date      model.Date `json:"date"`
	DayOfWeek int        `json:"day_of_week"`
	Slots     []Slot     `json:"available_slots"`
	Total     int        `json:"total_slots"`
}

type Service struct {
	resolver *Resolver
	appts    AppointmentLister
}

func NewService(resolver *Resolver, appts AppointmentLister) *Service {
	return &Service{resolver: resolver, appts: appts}
}

// Slots lists bookable intervals for date. The list is advisory; booking
// re-checks for overlap when it writes.
func (s *Service) Slots(ctx context.Context, clinicID, staffID string, date model.Date) (DaySlots, error) {
	ctx, span := otel.Tracer("availability").Start(ctx, "availability.slots")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.id", clinicID),
		attribute.String("date", date.String()),
	)

	if strings.TrimSpace(clinicID) == "" {
		return DaySlots{}, apperr.Validation("clinic_id", "clinic_id is required")
	}
	if date.IsZero() {
		return DaySlots{}, apperr.Validation("date", "date is required")
	}

	rules, err := s.resolver.Resolve(ctx, clinicID, staffID, date)
	if err != nil {
		span.RecordError(err)
		return DaySlots{}, err
	}

	out := DaySlots{Date: date, DayOfWeek: int(date.Weekday()), Slots: []Slot{}}
	busyByStaff := map[string][]Interval{}
	for _, rule := range rules {
		busy, ok := busyByStaff[rule.StaffID]
		if !ok {
			appts, err := s.appts.ListStaffAppointments(ctx, clinicID, rule.StaffID, date)
			if err != nil {
				span.RecordError(err)
				return DaySlots{}, err
			}
			busy = BusyIntervals(appts)
			busyByStaff[rule.StaffID] = busy
		}
		out.Slots = append(out.Slots, GenerateSlots(rule, busy)...)
	}
	out.Total = len(out.Slots)
	span.SetAttributes(attribute.Int("slots.total", out.Total))
	return out, nil
}

// Window returns the first rule covering date for staffID whose window and
// break admit [start,end).
func (s *Service) Window(ctx context.Context, clinicID, staffID string, date model.Date, start, end model.TimeOfDay) (model.AvailabilityRule, bool, error) {
	rules, err := s.resolver.Resolve(ctx, clinicID, staffID, date)
	if err != nil {
		return model.AvailabilityRule{}, false, err
	}
	for _, rule := range rules {
		if rule.Contains(start, end) {
			return rule, true, nil
		}
	}
	return model.AvailabilityRule{}, false, nil
}
