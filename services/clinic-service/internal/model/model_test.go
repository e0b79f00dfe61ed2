package model

import (
	"encoding/json"
	"testing"
	"time"
)

func mustTime(t *testing.T, raw string) TimeOfDay {
	t.Helper()
	v, err := ParseTimeOfDay(raw)
	if err != nil {
		t.Fatalf("ParseTimeOfDay(%q): %v", raw, err)
	}
	return v
}

func TestParseTimeOfDay(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"09:00", "09:00:00", true},
		{"17:30:15", "17:30:15", true},
		{"24:00", "24:00:00", true},
		{"24:00:00", "24:00:00", true},
		{"24:01", "", false},
		{"24:00:01", "", false},
		{"25:00", "", false},
		{"9:00", "", false},
		{"09:60", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseTimeOfDay(tc.in)
		if tc.ok && err != nil {
			t.Errorf("%q: unexpected error %v", tc.in, err)
			continue
		}
		if !tc.ok {
			if err == nil {
				t.Errorf("%q: expected error", tc.in)
			}
			continue
		}
		if got.String() != tc.want {
			t.Errorf("%q: expected %s, got %s", tc.in, tc.want, got)
		}
	}
}

func TestDate_JSONAndWeekday(t *testing.T) {
	var d Date
	if err := json.Unmarshal([]byte(`"2025-03-10"`), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.Weekday() != time.Monday {
		t.Fatalf("expected Monday, got %s", d.Weekday())
	}
	b, _ := json.Marshal(d)
	if string(b) != `"2025-03-10"` {
		t.Fatalf("unexpected json %s", b)
	}

	loc := time.FixedZone("UTC+7", 7*3600)
	at := d.At(mustTime(t, "09:30"), loc)
	if at.Hour() != 9 || at.Minute() != 30 || at.Location() != loc {
		t.Fatalf("unexpected instant %s", at)
	}
}

func TestAvailabilityRule_Covers(t *testing.T) {
	from, _ := ParseDate("2025-03-01")
	to, _ := ParseDate("2025-03-31")
	rule := AvailabilityRule{DayOfWeek: int(time.Monday), EffectiveFrom: from, EffectiveTo: &to, IsAvailable: true}

	monday, _ := ParseDate("2025-03-10")
	tuesday, _ := ParseDate("2025-03-11")
	aprilMonday, _ := ParseDate("2025-04-07")

	if !rule.Covers(monday) {
		t.Fatalf("expected rule to cover %s", monday)
	}
	if rule.Covers(tuesday) {
		t.Fatalf("rule should not cover a different weekday")
	}
	if rule.Covers(aprilMonday) {
		t.Fatalf("rule should not cover dates past effective_to")
	}

	rule.EffectiveTo = nil
	if !rule.Covers(aprilMonday) {
		t.Fatalf("open-ended rule should cover %s", aprilMonday)
	}
	rule.IsAvailable = false
	if rule.Covers(monday) {
		t.Fatalf("unavailable rule should never cover")
	}
}

func TestAvailabilityRule_EffectiveOverlaps(t *testing.T) {
	d := func(raw string) Date {
		v, _ := ParseDate(raw)
		return v
	}
	marchEnd := d("2025-03-31")
	a := AvailabilityRule{EffectiveFrom: d("2025-03-01"), EffectiveTo: &marchEnd}
	b := AvailabilityRule{EffectiveFrom: d("2025-04-01")}
	c := AvailabilityRule{EffectiveFrom: d("2025-03-31")}

	if a.EffectiveOverlaps(b) || b.EffectiveOverlaps(a) {
		t.Fatalf("adjacent ranges should not overlap")
	}
	if !a.EffectiveOverlaps(c) {
		t.Fatalf("shared last day should overlap")
	}
	if !b.EffectiveOverlaps(c) {
		t.Fatalf("two open-ended ranges always overlap")
	}
}

func TestOverlaps_HalfOpen(t *testing.T) {
	nine, ten, eleven := mustTime(t, "09:00"), mustTime(t, "10:00"), mustTime(t, "11:00")
	if Overlaps(nine, ten, ten, eleven) {
		t.Fatalf("touching intervals must not overlap")
	}
	if !Overlaps(nine, eleven, ten, eleven) {
		t.Fatalf("nested intervals must overlap")
	}
}

func TestPriorityRank(t *testing.T) {
	if !(PriorityEmergency.Rank() < PriorityUrgent.Rank() && PriorityUrgent.Rank() < PriorityNormal.Rank()) {
		t.Fatalf("unexpected rank order")
	}
}

func TestTransitions(t *testing.T) {
	if !CanTransitionQueue(QueueWaiting, QueueCalled) || !CanTransitionQueue(QueueCalled, QueueCancelled) {
		t.Fatalf("expected allowed queue transitions")
	}
	if CanTransitionQueue(QueueInService, QueueCancelled) || CanTransitionQueue(QueueCompleted, QueueWaiting) {
		t.Fatalf("unexpected allowed queue transition")
	}
	if !CanTransitionAppointment(AppointmentScheduled, AppointmentConfirmed) {
		t.Fatalf("expected scheduled -> confirmed")
	}
	if CanTransitionAppointment(AppointmentCancelled, AppointmentScheduled) || CanTransitionAppointment(AppointmentScheduled, AppointmentCancelled) {
		t.Fatalf("cancellation must not be an ordinary transition")
	}
}
