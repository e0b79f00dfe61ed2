package availability

import (
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/model"
)

type Interval struct {
	Start model.TimeOfDay
	End   model.TimeOfDay
}

type Slot struct {
	StaffID         string          `json:"staff_id"`
	StartTime       model.TimeOfDay `json:"start_time"`
	EndTime         model.TimeOfDay `json:"end_time"`
	DurationMinutes int             `json:"duration_minutes"`
	IsAvailable     bool            `json:"is_available"`
}

// GenerateSlots walks the rule's window in steps of its slot duration and
// returns every [cursor, cursor+duration) that stays inside the window, misses
// the break and misses every busy interval. A trailing remainder shorter than
// one slot is dropped.
func GenerateSlots(rule model.AvailabilityRule, busy []Interval) []Slot {
	step := rule.SlotLength()
	if step <= 0 || rule.EndTime <= rule.StartTime {
		return nil
	}

	var slots []Slot
	for cursor := rule.StartTime; ; cursor = cursor.Add(step) {
		end := cursor.Add(step)
		if end > rule.EndTime {
			break
		}
		if rule.HasBreak() && model.Overlaps(cursor, end, *rule.BreakStart, *rule.BreakEnd) {
			continue
		}
		if overlapsAny(cursor, end, busy) {
			continue
		}
		slots = append(slots, Slot{
			StaffID:         rule.StaffID,
			StartTime:       cursor,
			EndTime:         end,
			DurationMinutes: rule.SlotDuration,
			IsAvailable:     true,
		})
	}
	return slots
}

func overlapsAny(start, end model.TimeOfDay, busy []Interval) bool {
	for _, b := range busy {
		if model.Overlaps(start, end, b.Start, b.End) {
			return true
		}
	}
	return false
}

// BusyIntervals keeps the appointments that still hold their time.
func BusyIntervals(appts []model.Appointment) []Interval {
	out := make([]Interval, 0, len(appts))
	for _, a := range appts {
		if !a.BlocksSlots() {
			continue
		}
		out = append(out, Interval{Start: a.StartTime, End: a.EndTime})
	}
	return out
}
