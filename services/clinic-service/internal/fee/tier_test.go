package fee

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
)

func TestTierFor_Boundaries(t *testing.T) {
	cases := []struct {
		hours   float64
		percent int
	}{
		{-3, 100},
		{0, 100},
		{5, 100},
		{5.99, 100},
		{6, 75},
		{10, 75},
		{12, 50},
		{20, 50},
		{23.9, 50},
		{24, 0},
		{48, 0},
	}
	for _, tc := range cases {
		if got := TierFor(tc.hours); got.Percent != tc.percent {
			t.Errorf("%.2fh: expected %d%%, got %d%% (%s)", tc.hours, tc.percent, got.Percent, got.Label)
		}
	}
}

func TestPercentCalculator_RoundsToMinorUnit(t *testing.T) {
	calc := NewPercentCalculator(2)
	ctx := context.Background()

	cases := []struct {
		paid  string
		hours float64
		want  string
	}{
		{"100.00", 5, "100"},
		{"100.00", 10, "75"},
		{"100.00", 20, "50"},
		{"100.00", 48, "0"},
		{"33.33", 10, "25"},
		{"10.01", 20, "5.01"},
	}
	for _, tc := range cases {
		q, err := calc.Calculate(ctx, decimal.RequireFromString(tc.paid), tc.hours)
		if err != nil {
			t.Fatalf("Calculate: %v", err)
		}
		if !q.Amount.Equal(decimal.RequireFromString(tc.want)) {
			t.Errorf("paid %s at %.0fh: expected %s, got %s", tc.paid, tc.hours, tc.want, q.Amount)
		}
		if q.Tier != TierFor(tc.hours) {
			t.Errorf("quote tier %+v disagrees with TierFor", q.Tier)
		}
	}
}

func TestPercentCalculator_Errors(t *testing.T) {
	calc := NewPercentCalculator(2)
	if _, err := calc.Calculate(context.Background(), decimal.NewFromInt(-1), 10); err == nil {
		t.Fatalf("expected error for negative paid amount")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := calc.Calculate(ctx, decimal.NewFromInt(10), 10); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
}

func TestRefund_FlooredAtZero(t *testing.T) {
	if got := Refund(decimal.NewFromInt(100), decimal.NewFromInt(75)); !got.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("expected 25, got %s", got)
	}
	if got := Refund(decimal.NewFromInt(10), decimal.NewFromInt(15)); !got.IsZero() {
		t.Fatalf("expected 0, got %s", got)
	}
}
