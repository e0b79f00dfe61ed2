package policy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestParseReminderOffsets(t *testing.T) {
	got := ParseReminderOffsets("1440, 60,abc,-5,", discard)
	if len(got) != 2 || got[0] != 24*time.Hour || got[1] != time.Hour {
		t.Fatalf("unexpected offsets %v", got)
	}
	if got := ParseReminderOffsets("", discard); len(got) != 1 || got[0] != 24*time.Hour {
		t.Fatalf("expected one-day fallback, got %v", got)
	}
	got = ParseReminderOffsets("60,1440,60,99999", discard)
	if len(got) != 2 || got[0] != 24*time.Hour || got[1] != time.Hour {
		t.Fatalf("expected deduped, capped, earliest first; got %v", got)
	}
}

type fakeSettings struct {
	rows map[string]ClinicSettings
	err  error
}

func (f fakeSettings) GetClinicSettings(_ context.Context, clinicID string) (ClinicSettings, bool, error) {
	if f.err != nil {
		return ClinicSettings{}, false, f.err
	}
	s, ok := f.rows[clinicID]
	return s, ok, nil
}

func TestStoreProvider_OverridesAndFallback(t *testing.T) {
	fallback := NewStaticProvider([]time.Duration{time.Hour}, 0)
	p := NewStoreProvider(fakeSettings{rows: map[string]ClinicSettings{
		"clinic-1": {ClinicID: "clinic-1", ServiceMinutes: 20, ReminderOffsetsMinutes: []int{30}},
	}}, fallback, discard)
	ctx := context.Background()

	if mins, _ := p.ServiceMinutes(ctx, "clinic-1"); mins != 20 {
		t.Fatalf("expected override 20, got %d", mins)
	}
	if mins, _ := p.ServiceMinutes(ctx, "clinic-2"); mins != DefaultServiceMinutes {
		t.Fatalf("expected default %d, got %d", DefaultServiceMinutes, mins)
	}
	if offsets, _ := p.ReminderOffsets(ctx, "clinic-1"); len(offsets) != 1 || offsets[0] != 30*time.Minute {
		t.Fatalf("unexpected offsets %v", offsets)
	}

	broken := NewStoreProvider(fakeSettings{err: errors.New("db down")}, fallback, discard)
	if mins, err := broken.ServiceMinutes(ctx, "clinic-1"); err != nil || mins != DefaultServiceMinutes {
		t.Fatalf("expected fallback on store error, got %d %v", mins, err)
	}
}
