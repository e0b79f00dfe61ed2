package config

import (
	"strings"
	"testing"
	"time"

	libconfig "github.com/md-rashed-zaman/clinicflow/libs/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/clinic")
	t.Setenv("REDIS_URL", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("PORT", "")
	cfg, err := Load(libconfig.New(""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" || cfg.GRPCPort != "9090" {
		t.Fatalf("unexpected ports %q %q", cfg.Port, cfg.GRPCPort)
	}
	if cfg.ClinicUTCOffsetHours != 7 || cfg.DefaultServiceMinutes != 15 || cfg.CurrencyMinorUnits != 2 {
		t.Fatalf("unexpected clinic defaults %+v", cfg)
	}
	if cfg.FeeTimeout != 3*time.Second || cfg.RequestTimeout != 10*time.Second {
		t.Fatalf("unexpected timeouts %v %v", cfg.FeeTimeout, cfg.RequestTimeout)
	}
	if cfg.QueueCounter != CounterPostgres {
		t.Fatalf("expected postgres counter without redis, got %q", cfg.QueueCounter)
	}
	if cfg.KafkaEnabled() {
		t.Fatalf("kafka should be off without brokers")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoad_RedisSelectsRedisCounter(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/clinic")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	cfg, err := Load(libconfig.New(""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.QueueCounter != CounterRedis {
		t.Fatalf("expected redis counter, got %q", cfg.QueueCounter)
	}
}

func TestLoad_CollectsParseErrors(t *testing.T) {
	t.Setenv("PORT", "nope")
	t.Setenv("FEE_TIMEOUT", "-1s")
	_, err := Load(libconfig.New(""))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "PORT") || !strings.Contains(err.Error(), "FEE_TIMEOUT") {
		t.Fatalf("expected both keys in error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		DatabaseURL:           "postgres://x",
		QueueCounter:          CounterMemory,
		ClinicUTCOffsetHours:  7,
		DefaultServiceMinutes: 15,
		CurrencyMinorUnits:    2,
		DBMaxConns:            10,
		DBMinConns:            1,
		OutboxBatchSize:       100,
		OutboxMaxBackoff:      5 * time.Minute,
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config invalid: %v", err)
	}

	cases := map[string]func(c *Config){
		"missing db":         func(c *Config) { c.DatabaseURL = "" },
		"redis without url":  func(c *Config) { c.QueueCounter = CounterRedis },
		"unknown counter":    func(c *Config) { c.QueueCounter = "etcd" },
		"offset range":       func(c *Config) { c.ClinicUTCOffsetHours = 20 },
		"service minutes":    func(c *Config) { c.DefaultServiceMinutes = 0 },
		"minor units":        func(c *Config) { c.CurrencyMinorUnits = 9 },
		"min above max":      func(c *Config) { c.DBMinConns = 20 },
		"negative rate":      func(c *Config) { c.RateLimitPerMinute = -1 },
		"outbox batch empty": func(c *Config) { c.OutboxBatchSize = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base
			mutate(&c)
			if err := c.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
