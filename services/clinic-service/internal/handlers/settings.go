package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/policy"
)

type SettingsStore interface {
	GetClinicSettings(ctx context.Context, clinicID string) (policy.ClinicSettings, bool, error)
	PutClinicSettings(ctx context.Context, s policy.ClinicSettings) error
}

type SettingsHandler struct {
	store    SettingsStore
	defaults policy.Provider
	logger   *slog.Logger
}

func NewSettingsHandler(store SettingsStore, defaults policy.Provider, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{store: store, defaults: defaults, logger: logger}
}

type settingsBody struct {
	ClinicID               string `json:"clinic_id" validate:"required"`
	ServiceMinutes         int    `json:"service_minutes" validate:"min=0,max=480"`
	ReminderOffsetsMinutes []int  `json:"reminder_offsets_minutes" validate:"max=10,dive,gt=0"`
	UsingDefaults          bool   `json:"using_defaults"`
}

// Settings serves GET and PUT on /api/v1/clinics/settings. GET for a clinic
// without overrides returns the process defaults.
func (h *SettingsHandler) Settings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.get(w, r)
	case http.MethodPut:
		h.put(w, r)
	default:
		methodNotAllowed(w, "GET, PUT")
	}
}

func (h *SettingsHandler) get(w http.ResponseWriter, r *http.Request) {
	clinicID, err := requiredQuery(r, "clinic_id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	s, ok, err := h.store.GetClinicSettings(r.Context(), clinicID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if ok {
		writeOK(w, http.StatusOK, settingsBody{
			ClinicID:               clinicID,
			ServiceMinutes:         s.ServiceMinutes,
			ReminderOffsetsMinutes: s.ReminderOffsetsMinutes,
		})
		return
	}

	minutes, err := h.defaults.ServiceMinutes(r.Context(), clinicID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	offsets, err := h.defaults.ReminderOffsets(r.Context(), clinicID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	body := settingsBody{ClinicID: clinicID, ServiceMinutes: minutes, ReminderOffsetsMinutes: []int{}, UsingDefaults: true}
	for _, o := range offsets {
		body.ReminderOffsetsMinutes = append(body.ReminderOffsetsMinutes, int(o.Minutes()))
	}
	writeOK(w, http.StatusOK, body)
}

func (h *SettingsHandler) put(w http.ResponseWriter, r *http.Request) {
	var req settingsBody
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	s := policy.ClinicSettings{
		ClinicID:               strings.TrimSpace(req.ClinicID),
		ServiceMinutes:         req.ServiceMinutes,
		ReminderOffsetsMinutes: req.ReminderOffsetsMinutes,
	}
	if err := h.store.PutClinicSettings(r.Context(), s); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	req.UsingDefaults = false
	writeOK(w, http.StatusOK, req)
}
