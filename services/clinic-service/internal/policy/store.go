package policy

import (
	"context"
	"log/slog"
	"time"
)

// ClinicSettings is the per-clinic override row. Zero values mean "use the
// service default".
type ClinicSettings struct {
	ClinicID               string
	ServiceMinutes         int
	ReminderOffsetsMinutes []int
}

type SettingsStore interface {
	GetClinicSettings(ctx context.Context, clinicID string) (ClinicSettings, bool, error)
}

type storeProvider struct {
	store    SettingsStore
	fallback Provider
	logger   *slog.Logger
}

// NewStoreProvider reads clinic overrides from store and falls back to
// fallback when a clinic has none or the lookup fails.
func NewStoreProvider(store SettingsStore, fallback Provider, logger *slog.Logger) Provider {
	return &storeProvider{store: store, fallback: fallback, logger: logger}
}

func (p *storeProvider) ReminderOffsets(ctx context.Context, clinicID string) ([]time.Duration, error) {
	s, ok := p.lookup(ctx, clinicID)
	if !ok || len(s.ReminderOffsetsMinutes) == 0 {
		return p.fallback.ReminderOffsets(ctx, clinicID)
	}
	offsets := normalizeOffsets(s.ReminderOffsetsMinutes)
	if len(offsets) == 0 {
		return p.fallback.ReminderOffsets(ctx, clinicID)
	}
	return offsets, nil
}

func (p *storeProvider) ServiceMinutes(ctx context.Context, clinicID string) (int, error) {
	s, ok := p.lookup(ctx, clinicID)
	if !ok || s.ServiceMinutes <= 0 {
		return p.fallback.ServiceMinutes(ctx, clinicID)
	}
	return s.ServiceMinutes, nil
}

func (p *storeProvider) lookup(ctx context.Context, clinicID string) (ClinicSettings, bool) {
	s, ok, err := p.store.GetClinicSettings(ctx, clinicID)
	if err != nil {
		p.logger.Warn("clinic settings lookup failed; using defaults", "clinic_id", clinicID, "err", err)
		return ClinicSettings{}, false
	}
	return s, ok
}
