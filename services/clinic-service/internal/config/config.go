// Package config loads clinic-service settings from the environment (and an
// optional dotenv file) into a typed Config.
package config

import (
	"errors"
	"fmt"
	"time"

	libconfig "github.com/md-rashed-zaman/clinicflow/libs/config"
	"github.com/spf13/viper"
)

const (
	CounterMemory   = "memory"
	CounterRedis    = "redis"
	CounterPostgres = "postgres"
)

type Config struct {
	ServiceName string
	Port        string
	GRPCPort    string
	LogLevel    string

	DatabaseURL string
	DBMaxConns  int
	DBMinConns  int
	RedisURL    string

	QueueCounter          string
	ClinicUTCOffsetHours  int
	DefaultServiceMinutes int
	ReminderOffsets       string
	CurrencyMinorUnits    int

	RequestTimeout time.Duration
	FeeTimeout     time.Duration
	// ReconcileEvery paces the sweep that finishes interrupted cancellations.
	ReconcileEvery time.Duration

	KafkaBrokers      string
	KafkaGroupID      string
	KafkaPaymentTopic string
	KafkaMaxAttempts  int
	OutboxPollEvery   time.Duration
	OutboxBatchSize   int
	OutboxMaxBackoff  time.Duration

	RateLimitPerMinute int
	CORSOrigins        []string
}

// Load reads every key, applying defaults. It does not validate; call
// Validate before using the result.
func Load(v *viper.Viper) (Config, error) {
	var (
		cfg  Config
		err  error
		errs []error
	)
	collect := func(e error) {
		if e != nil {
			errs = append(errs, e)
		}
	}

	cfg.ServiceName = libconfig.String(v, "SERVICE_NAME", "clinic-service")
	cfg.Port, err = libconfig.Port(v, "PORT", "8080")
	collect(err)
	cfg.GRPCPort, err = libconfig.Port(v, "GRPC_PORT", "9090")
	collect(err)
	cfg.LogLevel = libconfig.String(v, "LOG_LEVEL", "info")

	cfg.DatabaseURL = libconfig.String(v, "DATABASE_URL", "")
	cfg.DBMaxConns, err = libconfig.Int(v, "DB_MAX_CONNS", 10)
	collect(err)
	cfg.DBMinConns, err = libconfig.Int(v, "DB_MIN_CONNS", 1)
	collect(err)
	cfg.RedisURL = libconfig.String(v, "REDIS_URL", "")

	cfg.QueueCounter = libconfig.String(v, "QUEUE_COUNTER", "")
	cfg.ClinicUTCOffsetHours, err = libconfig.Int(v, "CLINIC_UTC_OFFSET_HOURS", 7)
	collect(err)
	cfg.DefaultServiceMinutes, err = libconfig.Int(v, "QUEUE_DEFAULT_SERVICE_MINUTES", 15)
	collect(err)
	cfg.ReminderOffsets = libconfig.String(v, "REMINDER_OFFSETS_MINUTES", "1440,60")
	cfg.CurrencyMinorUnits, err = libconfig.Int(v, "CURRENCY_MINOR_UNITS", 2)
	collect(err)

	cfg.RequestTimeout, err = libconfig.Duration(v, "REQUEST_TIMEOUT", 10*time.Second)
	collect(err)
	cfg.FeeTimeout, err = libconfig.Duration(v, "FEE_TIMEOUT", 3*time.Second)
	collect(err)
	cfg.ReconcileEvery, err = libconfig.Duration(v, "CANCELLATION_RECONCILE_INTERVAL", time.Minute)
	collect(err)

	cfg.KafkaBrokers = libconfig.String(v, "KAFKA_BROKERS", "")
	cfg.KafkaGroupID = libconfig.String(v, "KAFKA_GROUP_ID", "clinic-service")
	cfg.KafkaPaymentTopic = libconfig.String(v, "KAFKA_PAYMENT_TOPIC", "billing.payment.captured.v1")
	cfg.KafkaMaxAttempts, err = libconfig.Int(v, "KAFKA_CONSUMER_MAX_ATTEMPTS", 5)
	collect(err)
	cfg.OutboxPollEvery, err = libconfig.Duration(v, "OUTBOX_POLL_INTERVAL", time.Second)
	collect(err)
	cfg.OutboxBatchSize, err = libconfig.Int(v, "OUTBOX_BATCH_SIZE", 100)
	collect(err)
	cfg.OutboxMaxBackoff, err = libconfig.Duration(v, "OUTBOX_MAX_BACKOFF", 5*time.Minute)
	collect(err)

	cfg.RateLimitPerMinute, err = libconfig.Int(v, "RATE_LIMIT_PER_MINUTE", 120)
	collect(err)
	cfg.CORSOrigins = libconfig.List(v, "CORS_ORIGINS")

	if cfg.QueueCounter == "" {
		cfg.QueueCounter = CounterPostgres
		if cfg.RedisURL != "" {
			cfg.QueueCounter = CounterRedis
		}
	}
	return cfg, errors.Join(errs...)
}

// Validate checks the settings serve needs.
func (c Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	switch c.QueueCounter {
	case CounterMemory, CounterPostgres:
	case CounterRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("QUEUE_COUNTER=redis requires REDIS_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("QUEUE_COUNTER must be memory, redis or postgres (got %q)", c.QueueCounter))
	}
	if c.ClinicUTCOffsetHours < -12 || c.ClinicUTCOffsetHours > 14 {
		errs = append(errs, fmt.Errorf("CLINIC_UTC_OFFSET_HOURS out of range (got %d)", c.ClinicUTCOffsetHours))
	}
	if c.DefaultServiceMinutes <= 0 {
		errs = append(errs, errors.New("QUEUE_DEFAULT_SERVICE_MINUTES must be positive"))
	}
	if c.CurrencyMinorUnits < 0 || c.CurrencyMinorUnits > 4 {
		errs = append(errs, errors.New("CURRENCY_MINOR_UNITS must be between 0 and 4"))
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		errs = append(errs, errors.New("DB_MIN_CONNS/DB_MAX_CONNS out of range"))
	}
	if c.RateLimitPerMinute < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_MINUTE must not be negative"))
	}
	if c.OutboxBatchSize <= 0 {
		errs = append(errs, errors.New("OUTBOX_BATCH_SIZE must be positive"))
	}
	return errors.Join(errs...)
}

// KafkaEnabled reports whether the outbox publisher and payment consumer run.
func (c Config) KafkaEnabled() bool {
	return c.KafkaBrokers != ""
}
