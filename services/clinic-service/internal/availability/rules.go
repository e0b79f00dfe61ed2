package availability

import (
	"context"
	"strings"

	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/model"
)

const maxSlotMinutes = 24 * 60

// ValidateRule checks a rule's shape before it is stored.
func ValidateRule(rule model.AvailabilityRule) error {
	if strings.TrimSpace(rule.ClinicID) == "" {
		return apperr.Validation("clinic_id", "clinic_id is required")
	}
	if strings.TrimSpace(rule.StaffID) == "" {
		return apperr.Validation("staff_id", "staff_id is required")
	}
	if rule.DayOfWeek < 0 || rule.DayOfWeek > 6 {
		return apperr.Validation("day_of_week", "day_of_week must be between 0 and 6")
	}
	if !rule.StartTime.Valid() || !rule.EndTime.Valid() || rule.StartTime >= rule.EndTime {
		return apperr.Validation("end_time", "start_time must be before end_time")
	}
	if rule.SlotDuration <= 0 || rule.SlotDuration > maxSlotMinutes {
		return apperr.Validation("slot_duration_minutes", "slot_duration_minutes must be positive")
	}
	if (rule.BreakStart == nil) != (rule.BreakEnd == nil) {
		return apperr.Validation("break_end", "break_start and break_end must be set together")
	}
	if rule.HasBreak() {
		bs, be := *rule.BreakStart, *rule.BreakEnd
		if bs >= be {
			return apperr.Validation("break_end", "break_start must be before break_end")
		}
		if bs < rule.StartTime || be > rule.EndTime {
			return apperr.Validation("break_start", "break must lie within working hours")
		}
	}
	if rule.EffectiveFrom.IsZero() {
		return apperr.Validation("effective_from", "effective_from is required")
	}
	if rule.EffectiveTo != nil && rule.EffectiveTo.Before(rule.EffectiveFrom) {
		return apperr.Validation("effective_to", "effective_to must not precede effective_from")
	}
	return nil
}

// CreateRule validates rule and stores it unless another available rule for the
// same staff and weekday already covers part of its effective range.
func (r *Resolver) CreateRule(ctx context.Context, rule model.AvailabilityRule) (model.AvailabilityRule, error) {
	if err := ValidateRule(rule); err != nil {
		return model.AvailabilityRule{}, err
	}
	if rule.IsAvailable {
		existing, err := r.rules.ListRules(ctx, rule.ClinicID, rule.StaffID)
		if err != nil {
			return model.AvailabilityRule{}, err
		}
		for _, other := range existing {
			if other.StaffID != rule.StaffID || other.DayOfWeek != rule.DayOfWeek || !other.IsAvailable {
				continue
			}
			if other.EffectiveOverlaps(rule) {
				return model.AvailabilityRule{}, apperr.Conflict("an availability rule already covers this staff and weekday")
			}
		}
	}
	return r.rules.InsertRule(ctx, rule)
}

func (r *Resolver) ListRules(ctx context.Context, clinicID, staffID string) ([]model.AvailabilityRule, error) {
	if strings.TrimSpace(clinicID) == "" {
		return nil, apperr.Validation("clinic_id", "clinic_id is required")
	}
	rules, err := r.rules.ListRules(ctx, clinicID, staffID)
	if err != nil {
		return nil, err
	}
	SortRules(rules)
	return rules, nil
}
