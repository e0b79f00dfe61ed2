package storage

import (
	"context"

	"github.com/md-rashed-zaman/clinicflow/libs/db"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/policy"
)

type SettingsRepository struct {
	pool *db.Pool
}

func NewSettingsRepository(pool *db.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

var _ policy.SettingsStore = (*SettingsRepository)(nil)

func (r *SettingsRepository) GetClinicSettings(ctx context.Context, clinicID string) (policy.ClinicSettings, bool, error) {
	s := policy.ClinicSettings{ClinicID: clinicID}
	err := r.pool.QueryRow(ctx, `
		SELECT service_minutes, reminder_offsets_minutes
		FROM clinic_settings
		WHERE clinic_id = $1
	`, clinicID).Scan(&s.ServiceMinutes, &s.ReminderOffsetsMinutes)
	if db.IsNotFound(err) {
		return policy.ClinicSettings{}, false, nil
	}
	if err != nil {
		return policy.ClinicSettings{}, false, err
	}
	return s, true, nil
}

// PutClinicSettings upserts the clinic's overrides.
func (r *SettingsRepository) PutClinicSettings(ctx context.Context, s policy.ClinicSettings) error {
	offsets := s.ReminderOffsetsMinutes
	if offsets == nil {
		offsets = []int{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO clinic_settings (clinic_id, service_minutes, reminder_offsets_minutes)
		VALUES ($1, $2, $3)
		ON CONFLICT (clinic_id)
		DO UPDATE SET service_minutes = EXCLUDED.service_minutes,
			reminder_offsets_minutes = EXCLUDED.reminder_offsets_minutes
	`, s.ClinicID, s.ServiceMinutes, offsets)
	return err
}
