package availability

import (
	"testing"

	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/model"
)

func tod(t *testing.T, raw string) model.TimeOfDay {
	t.Helper()
	v, err := model.ParseTimeOfDay(raw)
	if err != nil {
		t.Fatalf("ParseTimeOfDay(%q): %v", raw, err)
	}
	return v
}

func todPtr(t *testing.T, raw string) *model.TimeOfDay {
	v := tod(t, raw)
	return &v
}

func starts(slots []Slot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.StartTime.String()
	}
	return out
}

func TestGenerateSlots_BreakAndBooking(t *testing.T) {
	rule := model.AvailabilityRule{
		StaffID:      "staff-1",
		StartTime:    tod(t, "09:00"),
		EndTime:      tod(t, "12:00"),
		SlotDuration: 30,
		BreakStart:   todPtr(t, "10:00"),
		BreakEnd:     todPtr(t, "10:30"),
		IsAvailable:  true,
	}
	busy := []Interval{{Start: tod(t, "11:00"), End: tod(t, "11:30")}}

	slots := GenerateSlots(rule, busy)
	want := []string{"09:00:00", "09:30:00", "10:30:00", "11:30:00"}
	got := starts(slots)
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	for _, s := range slots {
		if s.StaffID != "staff-1" || s.DurationMinutes != 30 || !s.IsAvailable {
			t.Fatalf("unexpected slot %+v", s)
		}
		if s.EndTime.Sub(s.StartTime).Minutes() != 30 {
			t.Fatalf("unexpected slot length %+v", s)
		}
	}
}

func TestGenerateSlots_DropsTrailingPartial(t *testing.T) {
	rule := model.AvailabilityRule{
		StartTime:    tod(t, "09:00"),
		EndTime:      tod(t, "10:40"),
		SlotDuration: 30,
	}
	slots := GenerateSlots(rule, nil)
	if len(slots) != 3 {
		t.Fatalf("expected 3 slots, got %v", starts(slots))
	}
	if last := slots[len(slots)-1]; last.EndTime != tod(t, "10:30") {
		t.Fatalf("last slot should end at 10:30, got %s", last.EndTime)
	}
}

func TestGenerateSlots_WindowClosingAtMidnight(t *testing.T) {
	from, _ := model.ParseDate("2025-03-01")
	rule := model.AvailabilityRule{
		ClinicID:      "clinic-1",
		StaffID:       "staff-1",
		DayOfWeek:     1,
		StartTime:     tod(t, "22:00"),
		EndTime:       tod(t, "24:00"),
		SlotDuration:  60,
		EffectiveFrom: from,
		IsAvailable:   true,
	}
	if err := ValidateRule(rule); err != nil {
		t.Fatalf("midnight close must be a valid rule: %v", err)
	}
	slots := GenerateSlots(rule, nil)
	got := starts(slots)
	if len(got) != 2 || got[0] != "22:00:00" || got[1] != "23:00:00" {
		t.Fatalf("unexpected slots %v", got)
	}
	if slots[1].EndTime.String() != "24:00:00" {
		t.Fatalf("last slot should end at 24:00:00, got %s", slots[1].EndTime)
	}
}

func TestGenerateSlots_PartialBreakOverlapExcludes(t *testing.T) {
	rule := model.AvailabilityRule{
		StartTime:    tod(t, "09:00"),
		EndTime:      tod(t, "11:00"),
		SlotDuration: 30,
		BreakStart:   todPtr(t, "09:45"),
		BreakEnd:     todPtr(t, "10:00"),
	}
	got := starts(GenerateSlots(rule, nil))
	want := []string{"09:00:00", "10:00:00", "10:30:00"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestGenerateSlots_NeverOverlapOrEscape(t *testing.T) {
	durations := []int{10, 15, 25, 30, 45, 60, 90}
	for _, d := range durations {
		rule := model.AvailabilityRule{
			StartTime:    tod(t, "08:00"),
			EndTime:      tod(t, "17:10"),
			SlotDuration: d,
			BreakStart:   todPtr(t, "12:00"),
			BreakEnd:     todPtr(t, "13:00"),
		}
		busy := []Interval{{Start: tod(t, "09:20"), End: tod(t, "10:05")}}
		slots := GenerateSlots(rule, busy)
		for i, s := range slots {
			if s.EndTime > rule.EndTime {
				t.Fatalf("duration %d: slot %s past end", d, s.StartTime)
			}
			if model.Overlaps(s.StartTime, s.EndTime, *rule.BreakStart, *rule.BreakEnd) {
				t.Fatalf("duration %d: slot %s overlaps break", d, s.StartTime)
			}
			if model.Overlaps(s.StartTime, s.EndTime, busy[0].Start, busy[0].End) {
				t.Fatalf("duration %d: slot %s overlaps booking", d, s.StartTime)
			}
			if i > 0 && model.Overlaps(slots[i-1].StartTime, slots[i-1].EndTime, s.StartTime, s.EndTime) {
				t.Fatalf("duration %d: slots %d and %d overlap", d, i-1, i)
			}
		}
	}
}

func TestGenerateSlots_InvalidRule(t *testing.T) {
	if got := GenerateSlots(model.AvailabilityRule{StartTime: tod(t, "10:00"), EndTime: tod(t, "09:00"), SlotDuration: 30}, nil); got != nil {
		t.Fatalf("expected nil for inverted window, got %v", got)
	}
	if got := GenerateSlots(model.AvailabilityRule{StartTime: tod(t, "09:00"), EndTime: tod(t, "10:00")}, nil); got != nil {
		t.Fatalf("expected nil for zero duration, got %v", got)
	}
}

func TestBusyIntervals_IgnoresReleasedAppointments(t *testing.T) {
	appts := []model.Appointment{
		{Status: model.AppointmentScheduled, StartTime: tod(t, "09:00"), EndTime: tod(t, "09:30")},
		{Status: model.AppointmentConfirmed, StartTime: tod(t, "10:00"), EndTime: tod(t, "10:30")},
		{Status: model.AppointmentInProgress, StartTime: tod(t, "11:00"), EndTime: tod(t, "11:30")},
		{Status: model.AppointmentCancelled, StartTime: tod(t, "12:00"), EndTime: tod(t, "12:30")},
		{Status: model.AppointmentCompleted, StartTime: tod(t, "13:00"), EndTime: tod(t, "13:30")},
	}
	if got := BusyIntervals(appts); len(got) != 3 {
		t.Fatalf("expected 3 busy intervals, got %d", len(got))
	}
}
