// Package policy resolves per-clinic settings: reminder offsets and the
// average service duration used for queue wait estimates.
package policy

import (
	"context"
	"time"
)

const DefaultServiceMinutes = 15

type Provider interface {
	ReminderOffsets(ctx context.Context, clinicID string) ([]time.Duration, error)
	ServiceMinutes(ctx context.Context, clinicID string) (int, error)
}

type staticProvider struct {
	offsets        []time.Duration
	serviceMinutes int
}

func NewStaticProvider(offsets []time.Duration, serviceMinutes int) Provider {
	if serviceMinutes <= 0 {
		serviceMinutes = DefaultServiceMinutes
	}
	return &staticProvider{offsets: offsets, serviceMinutes: serviceMinutes}
}

func (p *staticProvider) ReminderOffsets(_ context.Context, _ string) ([]time.Duration, error) {
	return p.offsets, nil
}

func (p *staticProvider) ServiceMinutes(_ context.Context, _ string) (int, error) {
	return p.serviceMinutes, nil
}
