package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReadyz_ReportsFailingCheck(t *testing.T) {
	mux := NewBaseMuxWithReady(
		ReadyCheck{Name: "db", Check: func(context.Context) error { return nil }},
		ReadyCheck{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }},
		ReadyCheck{Name: "kafka"},
	)

	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rw.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rw.Code)
	}

	var report Report
	if err := json.Unmarshal(rw.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Checks["db"] != "ok" {
		t.Fatalf("expected db ok, got %q", report.Checks["db"])
	}
	if report.Checks["redis"] != "connection refused" {
		t.Fatalf("expected redis failure, got %q", report.Checks["redis"])
	}
	if _, ok := report.Checks["kafka"]; ok {
		t.Fatal("nil check should be skipped")
	}
}

func TestHealthz(t *testing.T) {
	mux := NewBaseMuxWithReady()
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]string{
		"debug":   "DEBUG",
		"WARN":    "WARN",
		"error":   "ERROR",
		"":        "INFO",
		"verbose": "INFO",
	}
	for in, want := range cases {
		if got := ParseLevel(in).String(); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestCheckAll(t *testing.T) {
	ok := CheckAll(ReadyCheck{Name: "db", Check: func(context.Context) error { return nil }}, ReadyCheck{Name: "skipped"})
	if err := ok(context.Background()); err != nil {
		t.Fatalf("expected pass, got %v", err)
	}

	bad := CheckAll(ReadyCheck{Name: "redis", Check: func(context.Context) error { return errors.New("down") }})
	err := bad(context.Background())
	if err == nil || err.Error() != "redis: down" {
		t.Fatalf("unexpected error %v", err)
	}

	both := CheckAll(
		ReadyCheck{Name: "redis", Check: func(context.Context) error { return errors.New("down") }},
		ReadyCheck{Name: "db", Check: func(context.Context) error { return errors.New("refused") }},
	)
	if err := both(context.Background()); err == nil || err.Error() != "db: refused\nredis: down" {
		t.Fatalf("expected failures in name order, got %v", err)
	}
}

func TestRunChecks_AppliesTimeout(t *testing.T) {
	report := RunChecks(context.Background(), ReadyCheck{Name: "slow", Check: func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("no deadline")
		}
		return nil
	}})
	if !report.OK() || report.Checks["slow"] != "ok" {
		t.Fatalf("unexpected report %+v", report)
	}
}
