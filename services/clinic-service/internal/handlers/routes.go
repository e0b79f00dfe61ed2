package handlers

import "net/http"

type Routes struct {
	Availability *AvailabilityHandler
	Appointments *AppointmentHandler
	Queue        *QueueHandler
	Settings     *SettingsHandler
}

// Register mounts the clinic API on mux. Nil handlers are skipped.
func (rt Routes) Register(mux *http.ServeMux) {
	if h := rt.Availability; h != nil {
		mux.HandleFunc("/api/v1/slots", h.Slots)
		mux.HandleFunc("/api/v1/availability/rules", h.Rules)
	}
	if h := rt.Appointments; h != nil {
		mux.HandleFunc("/api/v1/appointments", h.List)
		mux.HandleFunc("/api/v1/appointments/book", h.Book)
		mux.HandleFunc("/api/v1/appointments/status", h.UpdateStatus)
		mux.HandleFunc("/api/v1/appointments/cancel", h.Cancel)
	}
	if h := rt.Queue; h != nil {
		mux.HandleFunc("/api/v1/queue", h.List)
		mux.HandleFunc("/api/v1/queue/enqueue", h.Enqueue)
		mux.HandleFunc("/api/v1/queue/update", h.Update)
		mux.HandleFunc("/api/v1/queue/call-next", h.CallNext)
		mux.HandleFunc("/api/v1/queue/position", h.Position)
		mux.HandleFunc("/api/v1/queue/stats", h.Stats)
	}
	if h := rt.Settings; h != nil {
		mux.HandleFunc("/api/v1/clinics/settings", h.Settings)
	}
}
