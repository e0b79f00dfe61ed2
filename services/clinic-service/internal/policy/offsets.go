package policy

import (
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"
)

// MaxReminderOffsetMinutes caps how early a reminder may go out (30 days).
const MaxReminderOffsetMinutes = 30 * 24 * 60

var defaultOffsets = []time.Duration{24 * time.Hour}

// ParseReminderOffsets reads minutes before the appointment, e.g. "1440,60".
// Entries that are not whole minutes in (0, MaxReminderOffsetMinutes] are
// logged and skipped. An empty result falls back to one day.
func ParseReminderOffsets(raw string, logger *slog.Logger) []time.Duration {
	var mins []int
	for _, field := range strings.Split(raw, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		m, err := strconv.Atoi(field)
		if err != nil || !validOffset(m) {
			if logger != nil {
				logger.Warn("invalid reminder offset", "value", field)
			}
			continue
		}
		mins = append(mins, m)
	}
	if offsets := normalizeOffsets(mins); len(offsets) > 0 {
		return offsets
	}
	return slices.Clone(defaultOffsets)
}

func validOffset(mins int) bool {
	return mins > 0 && mins <= MaxReminderOffsetMinutes
}

// normalizeOffsets drops invalid and repeated values and orders the rest
// earliest reminder first.
func normalizeOffsets(mins []int) []time.Duration {
	kept := make([]int, 0, len(mins))
	for _, m := range mins {
		if validOffset(m) && !slices.Contains(kept, m) {
			kept = append(kept, m)
		}
	}
	slices.Sort(kept)
	slices.Reverse(kept)

	offsets := make([]time.Duration, 0, len(kept))
	for _, m := range kept {
		offsets = append(offsets, time.Duration(m)*time.Minute)
	}
	return offsets
}
