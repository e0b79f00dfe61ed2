package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicflow/libs/db"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/availability"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/model"
)

type RuleRepository struct {
	pool *db.Pool
}

func NewRuleRepository(pool *db.Pool) *RuleRepository {
	return &RuleRepository{pool: pool}
}

var _ availability.RuleStore = (*RuleRepository)(nil)

var ruleColumns = fmt.Sprintf(`
	id::text, clinic_id, staff_id, day_of_week, %s, %s, slot_duration_minutes,
	%s, %s, effective_from, effective_to, is_available, created_at`,
	seconds("start_time"), seconds("end_time"), seconds("break_start"), seconds("break_end"))

func scanRule(row pgx.Row) (model.AvailabilityRule, error) {
	var (
		r                    model.AvailabilityRule
		start, end           int
		breakStart, breakEnd *int
		from                 time.Time
		to                   *time.Time
	)
	err := row.Scan(
		&r.ID,
		&r.ClinicID,
		&r.StaffID,
		&r.DayOfWeek,
		&start,
		&end,
		&r.SlotDuration,
		&breakStart,
		&breakEnd,
		&from,
		&to,
		&r.IsAvailable,
		&r.CreatedAt,
	)
	if err != nil {
		return model.AvailabilityRule{}, err
	}
	r.StartTime = model.TimeOfDay(start)
	r.EndTime = model.TimeOfDay(end)
	r.BreakStart = optionalTimeOfDay(breakStart)
	r.BreakEnd = optionalTimeOfDay(breakEnd)
	r.EffectiveFrom = model.DateOf(from)
	r.EffectiveTo = optionalDate(to)
	return r, nil
}

// ListRules returns every rule for the staff member; date filtering happens
// in the resolver. An empty staffID lists the whole clinic.
func (r *RuleRepository) ListRules(ctx context.Context, clinicID, staffID string) ([]model.AvailabilityRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM availability_rules
		WHERE clinic_id = $1 AND ($2 = '' OR staff_id = $2)
		ORDER BY staff_id, start_time, id
	`, clinicID, staffID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AvailabilityRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (r *RuleRepository) InsertRule(ctx context.Context, rule model.AvailabilityRule) (model.AvailabilityRule, error) {
	created, err := scanRule(r.pool.QueryRow(ctx, `
		INSERT INTO availability_rules
			(clinic_id, staff_id, day_of_week, start_time, end_time, slot_duration_minutes,
			 break_start, break_end, effective_from, effective_to, is_available)
		VALUES ($1, $2, $3, $4::time, $5::time, $6, $7::time, $8::time, $9::date, $10::date, $11)
		RETURNING `+ruleColumns,
		rule.ClinicID, rule.StaffID, rule.DayOfWeek, rule.StartTime.String(), rule.EndTime.String(),
		rule.SlotDuration, optionalTimeArg(rule.BreakStart), optionalTimeArg(rule.BreakEnd),
		dateArg(rule.EffectiveFrom), optionalDateArg(rule.EffectiveTo), rule.IsAvailable,
	))
	if err != nil {
		return model.AvailabilityRule{}, translate(err, "rule not found", "availability rule overlaps an existing rule")
	}
	return created, nil
}
