package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEnvOverridesDotenv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("CLINICFLOW_TEST_PORT=9000\nCLINICFLOW_TEST_NAME=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("CLINICFLOW_TEST_NAME", "from-env")

	v := New(envFile)
	if got := String(v, "CLINICFLOW_TEST_NAME", ""); got != "from-env" {
		t.Fatalf("expected env to win, got %q", got)
	}
	port, err := Port(v, "CLINICFLOW_TEST_PORT", "8080")
	if err != nil {
		t.Fatalf("Port: %v", err)
	}
	if port != "9000" {
		t.Fatalf("expected port from file, got %q", port)
	}
}

func TestPortRejectsGarbage(t *testing.T) {
	t.Setenv("CLINICFLOW_TEST_BADPORT", "99999")
	if _, err := Port(New(""), "CLINICFLOW_TEST_BADPORT", "8080"); err == nil {
		t.Fatal("expected error for out of range port")
	}
}

func TestRequiredString(t *testing.T) {
	v := New("")
	if _, err := RequiredString(v, "CLINICFLOW_TEST_MISSING"); err == nil {
		t.Fatal("expected error for missing key")
	}
}

func TestDurationAndInt(t *testing.T) {
	t.Setenv("CLINICFLOW_TEST_TIMEOUT", "250ms")
	t.Setenv("CLINICFLOW_TEST_COUNT", "abc")
	v := New("")

	d, err := Duration(v, "CLINICFLOW_TEST_TIMEOUT", time.Second)
	if err != nil || d != 250*time.Millisecond {
		t.Fatalf("Duration = %v, %v", d, err)
	}
	d, err = Duration(v, "CLINICFLOW_TEST_UNSET", time.Second)
	if err != nil || d != time.Second {
		t.Fatalf("Duration fallback = %v, %v", d, err)
	}
	if _, err := Int(v, "CLINICFLOW_TEST_COUNT", 1); err == nil {
		t.Fatal("expected error for non-numeric int")
	}
}

func TestList(t *testing.T) {
	t.Setenv("CLINICFLOW_TEST_LIST", " a, ,b ,c")
	got := List(New(""), "CLINICFLOW_TEST_LIST")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected list %v", got)
	}
}
