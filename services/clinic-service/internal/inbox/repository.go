package inbox

import (
	"context"

	"github.com/md-rashed-zaman/clinicflow/libs/db"
)

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Record claims eventID through q. It reports false when the event was
// already processed, so the caller can skip it. The insert never raises a
// unique violation, which would abort the surrounding transaction.
func (r *Repository) Record(ctx context.Context, q db.DBTX, eventID, eventType string) (bool, error) {
	tag, err := q.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
