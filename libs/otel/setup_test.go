package otelx

import (
	"context"
	"testing"

	"github.com/spf13/viper"
)

func TestConfigFrom_Defaults(t *testing.T) {
	cfg := ConfigFrom(viper.New(), "clinic-service")
	if cfg.Enabled {
		t.Fatalf("expected tracing disabled by default")
	}
	if cfg.SampleRatio != 1 || cfg.OTLPEndpoint != "localhost:4317" || !cfg.Insecure || cfg.Environment != "local" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestResourceAttributes_IncludesVersionWhenSet(t *testing.T) {
	v := viper.New()
	v.Set("DEPLOY_ENV", "staging")
	v.Set("SERVICE_VERSION", "1.4.0")
	v.Set("OTEL_EXPORTER_OTLP_INSECURE", "false")
	cfg := ConfigFrom(v, "clinic-service")
	if cfg.Insecure {
		t.Fatalf("expected secure exporter")
	}

	got := map[string]string{}
	for _, kv := range resourceAttributes(cfg) {
		got[string(kv.Key)] = kv.Value.AsString()
	}
	if got["service.name"] != "clinic-service" || got["deployment.environment"] != "staging" || got["service.version"] != "1.4.0" {
		t.Fatalf("unexpected attributes %v", got)
	}
}

func TestConfigFrom_RejectsBadRatio(t *testing.T) {
	v := viper.New()
	v.Set("OTEL_ENABLED", "true")
	v.Set("OTEL_SAMPLING_RATIO", "4")
	cfg := ConfigFrom(v, "clinic-service")
	if !cfg.Enabled || cfg.SampleRatio != 1 {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestSetup_DisabledIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
