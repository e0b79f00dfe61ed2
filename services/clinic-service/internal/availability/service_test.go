package availability

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/model"
)

type fakeRules struct {
	mu    sync.Mutex
	rules []model.AvailabilityRule
}

func (f *fakeRules) ListRules(_ context.Context, clinicID, staffID string) ([]model.AvailabilityRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.AvailabilityRule
	for _, r := range f.rules {
		if r.ClinicID == clinicID && (staffID == "" || r.StaffID == staffID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRules) InsertRule(_ context.Context, rule model.AvailabilityRule) (model.AvailabilityRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rule.ID = fmt.Sprintf("rule-%d", len(f.rules)+1)
	f.rules = append(f.rules, rule)
	return rule, nil
}

type fakeAppts map[string][]model.Appointment

func (f fakeAppts) ListStaffAppointments(_ context.Context, _ string, staffID string, _ model.Date) ([]model.Appointment, error) {
	return f[staffID], nil
}

func date(t *testing.T, raw string) model.Date {
	t.Helper()
	d, err := model.ParseDate(raw)
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	return d
}

func mondayRule(t *testing.T, id, staff, start, end string) model.AvailabilityRule {
	return model.AvailabilityRule{
		ID:            id,
		ClinicID:      "clinic-1",
		StaffID:       staff,
		DayOfWeek:     1,
		StartTime:     tod(t, start),
		EndTime:       tod(t, end),
		SlotDuration:  30,
		EffectiveFrom: date(t, "2025-01-01"),
		IsAvailable:   true,
	}
}

func TestService_SlotsAcrossStaff(t *testing.T) {
	rules := &fakeRules{rules: []model.AvailabilityRule{
		mondayRule(t, "r2", "staff-b", "09:00", "10:00"),
		mondayRule(t, "r1", "staff-a", "09:00", "10:00"),
		mondayRule(t, "r3", "staff-a", "14:00", "15:00"),
	}}
	appts := fakeAppts{"staff-a": {{Status: model.AppointmentScheduled, StartTime: tod(t, "09:00"), EndTime: tod(t, "09:30")}}}
	svc := NewService(NewResolver(rules), appts)

	day, err := svc.Slots(context.Background(), "clinic-1", "", date(t, "2025-03-10"))
	if err != nil {
		t.Fatalf("Slots: %v", err)
	}
	if day.DayOfWeek != 1 || day.Total != 5 || len(day.Slots) != 5 {
		t.Fatalf("unexpected result %+v", day)
	}
	want := []string{"staff-a 09:30:00", "staff-a 14:00:00", "staff-a 14:30:00", "staff-b 09:00:00", "staff-b 09:30:00"}
	for i, s := range day.Slots {
		if got := s.StaffID + " " + s.StartTime.String(); got != want[i] {
			t.Fatalf("slot %d: expected %s, got %s", i, want[i], got)
		}
	}
}

func TestService_SlotsEmptyAndValidation(t *testing.T) {
	svc := NewService(NewResolver(&fakeRules{}), fakeAppts{})

	day, err := svc.Slots(context.Background(), "clinic-1", "staff-a", date(t, "2025-03-10"))
	if err != nil {
		t.Fatalf("Slots: %v", err)
	}
	if day.Total != 0 || day.Slots == nil {
		t.Fatalf("expected empty non-nil slot list, got %+v", day)
	}

	if _, err := svc.Slots(context.Background(), "", "", date(t, "2025-03-10")); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.Slots(context.Background(), "clinic-1", "", model.Date{}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for missing date, got %v", err)
	}
}

func TestService_Window(t *testing.T) {
	rule := mondayRule(t, "r1", "staff-a", "09:00", "12:00")
	rule.BreakStart, rule.BreakEnd = todPtr(t, "10:00"), todPtr(t, "10:30")
	svc := NewService(NewResolver(&fakeRules{rules: []model.AvailabilityRule{rule}}), fakeAppts{})
	monday := date(t, "2025-03-10")

	if _, ok, _ := svc.Window(context.Background(), "clinic-1", "staff-a", monday, tod(t, "09:00"), tod(t, "09:30")); !ok {
		t.Fatalf("expected 09:00-09:30 inside window")
	}
	if _, ok, _ := svc.Window(context.Background(), "clinic-1", "staff-a", monday, tod(t, "09:45"), tod(t, "10:15")); ok {
		t.Fatalf("interval touching the break must not fit")
	}
	if _, ok, _ := svc.Window(context.Background(), "clinic-1", "staff-a", monday, tod(t, "11:45"), tod(t, "12:15")); ok {
		t.Fatalf("interval past end_time must not fit")
	}
}

func TestCreateRule_RejectsOverlapAndBadShape(t *testing.T) {
	rules := &fakeRules{}
	r := NewResolver(rules)
	ctx := context.Background()

	base := mondayRule(t, "", "staff-a", "09:00", "17:00")
	if _, err := r.CreateRule(ctx, base); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	dup := base
	dup.EffectiveFrom = date(t, "2025-06-01")
	if _, err := r.CreateRule(ctx, dup); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	tuesday := base
	tuesday.DayOfWeek = 2
	if _, err := r.CreateRule(ctx, tuesday); err != nil {
		t.Fatalf("different weekday should be accepted: %v", err)
	}

	badBreak := mondayRule(t, "", "staff-b", "09:00", "12:00")
	badBreak.BreakStart = todPtr(t, "11:30")
	badBreak.BreakEnd = todPtr(t, "12:30")
	err := func() error { _, err := r.CreateRule(ctx, badBreak); return err }()
	if e := apperr.As(err); e == nil || e.Kind != apperr.KindValidation || e.Field != "break_start" {
		t.Fatalf("expected break validation error, got %v", err)
	}

	halfBreak := mondayRule(t, "", "staff-b", "09:00", "12:00")
	halfBreak.BreakStart = todPtr(t, "10:00")
	if _, err := r.CreateRule(ctx, halfBreak); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for half-set break, got %v", err)
	}
}

func TestCreateRule_AdjacentEffectiveRangesAllowed(t *testing.T) {
	r := NewResolver(&fakeRules{})
	ctx := context.Background()

	first := mondayRule(t, "", "staff-a", "09:00", "17:00")
	end := date(t, "2025-03-31")
	first.EffectiveTo = &end
	if _, err := r.CreateRule(ctx, first); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	second := mondayRule(t, "", "staff-a", "10:00", "18:00")
	second.EffectiveFrom = date(t, "2025-04-01")
	if _, err := r.CreateRule(ctx, second); err != nil {
		t.Fatalf("expected adjacent range accepted, got %v", err)
	}
}
