package availability

import (
	"context"
	"sort"

	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/model"
)

type RuleStore interface {
	ListRules(ctx context.Context, clinicID, staffID string) ([]model.AvailabilityRule, error)
	InsertRule(ctx context.Context, rule model.AvailabilityRule) (model.AvailabilityRule, error)
}

type Resolver struct {
	rules RuleStore
}

func NewResolver(rules RuleStore) *Resolver {
	return &Resolver{rules: rules}
}

// Resolve returns the rules that apply to date. An empty staffID selects every
// staff member at the clinic. No match is an empty result, not an error.
func (r *Resolver) Resolve(ctx context.Context, clinicID, staffID string, date model.Date) ([]model.AvailabilityRule, error) {
	all, err := r.rules.ListRules(ctx, clinicID, staffID)
	if err != nil {
		return nil, err
	}
	var out []model.AvailabilityRule
	for _, rule := range all {
		if rule.ClinicID != clinicID {
			continue
		}
		if staffID != "" && rule.StaffID != staffID {
			continue
		}
		if rule.Covers(date) {
			out = append(out, rule)
		}
	}
	SortRules(out)
	return out, nil
}

// SortRules fixes the rule order slot output follows: staff, then window start,
// then id.
func SortRules(rules []model.AvailabilityRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		a, b := rules[i], rules[j]
		if a.StaffID != b.StaffID {
			return a.StaffID < b.StaffID
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.ID < b.ID
	})
}
