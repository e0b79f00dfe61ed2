package clock

import (
	"testing"
	"time"
)

func TestZone_Offset(t *testing.T) {
	loc := Zone(7)
	_, offset := time.Date(2025, 1, 1, 0, 0, 0, 0, loc).Zone()
	if offset != 7*3600 {
		t.Fatalf("unexpected offset %d", offset)
	}
	if loc.String() != "UTC+7" {
		t.Fatalf("unexpected name %q", loc.String())
	}
}

func TestFixed_Advance(t *testing.T) {
	start := time.Date(2025, 3, 10, 8, 0, 0, 0, Zone(7))
	c := NewFixed(start)
	c.Advance(90 * time.Minute)
	if !c.Now().Equal(start.Add(90 * time.Minute)) {
		t.Fatalf("unexpected now %s", c.Now())
	}
}

func TestSystem_UsesLocation(t *testing.T) {
	loc := Zone(7)
	if System(loc).Now().Location() != loc {
		t.Fatalf("expected clock in %s", loc)
	}
}
