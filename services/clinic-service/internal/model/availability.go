package model

import (
	"time"
)

// AvailabilityRule is a recurring weekly working window for one staff member.
type AvailabilityRule struct {
	ID            string     `json:"id"`
	ClinicID      string     `json:"clinic_id"`
	StaffID       string     `json:"staff_id"`
	DayOfWeek     int        `json:"day_of_week"`
	StartTime     TimeOfDay  `json:"start_time"`
	EndTime       TimeOfDay  `json:"end_time"`
	SlotDuration  int        `json:"slot_duration_minutes"`
	BreakStart    *TimeOfDay `json:"break_start,omitempty"`
	BreakEnd      *TimeOfDay `json:"break_end,omitempty"`
	EffectiveFrom Date       `json:"effective_from"`
	EffectiveTo   *Date      `json:"effective_to,omitempty"`
	IsAvailable   bool       `json:"is_available"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (r AvailabilityRule) HasBreak() bool {
	return r.BreakStart != nil && r.BreakEnd != nil
}

func (r AvailabilityRule) SlotLength() time.Duration {
	return time.Duration(r.SlotDuration) * time.Minute
}

// Covers reports whether the rule applies on d: weekday matches, d lies in the
// effective range and the rule is marked available.
func (r AvailabilityRule) Covers(d Date) bool {
	if !r.IsAvailable || int(d.Weekday()) != r.DayOfWeek {
		return false
	}
	if d.Before(r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && d.After(*r.EffectiveTo) {
		return false
	}
	return true
}

// EffectiveOverlaps reports whether two rules' effective ranges intersect.
// A missing effective_to is open-ended.
func (r AvailabilityRule) EffectiveOverlaps(o AvailabilityRule) bool {
	if r.EffectiveTo != nil && r.EffectiveTo.Before(o.EffectiveFrom) {
		return false
	}
	if o.EffectiveTo != nil && o.EffectiveTo.Before(r.EffectiveFrom) {
		return false
	}
	return true
}

// Contains reports whether [start,end) fits inside the working window and
// does not touch the break.
func (r AvailabilityRule) Contains(start, end TimeOfDay) bool {
	if start < r.StartTime || end > r.EndTime || start >= end {
		return false
	}
	if r.HasBreak() && Overlaps(start, end, *r.BreakStart, *r.BreakEnd) {
		return false
	}
	return true
}

// Overlaps is the half-open interval test: [aStart,aEnd) and [bStart,bEnd)
// share time unless one ends at or before the other starts.
func Overlaps(aStart, aEnd, bStart, bEnd TimeOfDay) bool {
	return !(aEnd <= bStart || aStart >= bEnd)
}
