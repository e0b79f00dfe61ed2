package queue

import (
	"sort"

	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/model"
)

// SortEntries puts entries in staff-facing order: priority rank, then queue
// number.
func SortEntries(entries []model.QueueEntry) {
	sort.Slice(entries, func(i, j int) bool {
		ri, rj := entries[i].Priority.Rank(), entries[j].Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		return entries[i].QueueNumber < entries[j].QueueNumber
	})
}

// EstimateWait is the minutes until an entry of priority p is called: every
// waiting entry at the same or a higher priority plus everyone in service,
// times the average service duration.
func EstimateWait(entries []model.QueueEntry, p model.Priority, serviceMinutes int) int {
	ahead := 0
	for _, e := range entries {
		switch e.Status {
		case model.QueueWaiting:
			if e.Priority.Rank() <= p.Rank() {
				ahead++
			}
		case model.QueueInService:
			ahead++
		}
	}
	return ahead * serviceMinutes
}
