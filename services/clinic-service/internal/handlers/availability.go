package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/clinicflow/libs/httpx"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/availability"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/model"
)

type SlotFinder interface {
	Slots(ctx context.Context, clinicID, staffID string, date model.Date) (availability.DaySlots, error)
}

type RuleManager interface {
	CreateRule(ctx context.Context, rule model.AvailabilityRule) (model.AvailabilityRule, error)
	ListRules(ctx context.Context, clinicID, staffID string) ([]model.AvailabilityRule, error)
}

type AvailabilityHandler struct {
	slots  SlotFinder
	rules  RuleManager
	logger *slog.Logger
}

func NewAvailabilityHandler(slots SlotFinder, rules RuleManager, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{slots: slots, rules: rules, logger: logger}
}

type slotsResponse struct {
	Success bool `json:"success"`
	availability.DaySlots
}

// Slots serves GET /api/v1/slots?clinic_id&staff_id&date.
func (h *AvailabilityHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	clinicID, err := requiredQuery(r, "clinic_id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	date, err := queryDate(r, "date", true)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	staffID := strings.TrimSpace(r.URL.Query().Get("staff_id"))

	day, err := h.slots.Slots(r.Context(), clinicID, staffID, date)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, slotsResponse{Success: true, DaySlots: day})
}

type createRuleRequest struct {
	ClinicID      string `json:"clinic_id" validate:"required"`
	StaffID       string `json:"staff_id" validate:"required"`
	DayOfWeek     *int   `json:"day_of_week" validate:"required,min=0,max=6"`
	StartTime     string `json:"start_time" validate:"required"`
	EndTime       string `json:"end_time" validate:"required"`
	SlotDuration  int    `json:"slot_duration_minutes" validate:"required,gt=0"`
	BreakStart    string `json:"break_start"`
	BreakEnd      string `json:"break_end"`
	EffectiveFrom string `json:"effective_from" validate:"required"`
	EffectiveTo   string `json:"effective_to"`
	IsAvailable   *bool  `json:"is_available"`
}

func (req createRuleRequest) toRule() (model.AvailabilityRule, error) {
	rule := model.AvailabilityRule{
		ClinicID:     strings.TrimSpace(req.ClinicID),
		StaffID:      strings.TrimSpace(req.StaffID),
		DayOfWeek:    *req.DayOfWeek,
		SlotDuration: req.SlotDuration,
		IsAvailable:  true,
	}
	if req.IsAvailable != nil {
		rule.IsAvailable = *req.IsAvailable
	}
	var err error
	if rule.StartTime, err = parseTime("start_time", req.StartTime); err != nil {
		return rule, err
	}
	if rule.EndTime, err = parseTime("end_time", req.EndTime); err != nil {
		return rule, err
	}
	if rule.BreakStart, err = parseOptionalTime("break_start", req.BreakStart); err != nil {
		return rule, err
	}
	if rule.BreakEnd, err = parseOptionalTime("break_end", req.BreakEnd); err != nil {
		return rule, err
	}
	if rule.EffectiveFrom, err = parseDate("effective_from", req.EffectiveFrom); err != nil {
		return rule, err
	}
	if strings.TrimSpace(req.EffectiveTo) != "" {
		to, err := parseDate("effective_to", req.EffectiveTo)
		if err != nil {
			return rule, err
		}
		rule.EffectiveTo = &to
	}
	return rule, nil
}

// Rules serves POST (create) and GET (list) on /api/v1/availability/rules.
func (h *AvailabilityHandler) Rules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createRule(w, r)
	case http.MethodGet:
		h.listRules(w, r)
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

func (h *AvailabilityHandler) createRule(w http.ResponseWriter, r *http.Request) {
	var req createRuleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	rule, err := req.toRule()
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	created, err := h.rules.CreateRule(r.Context(), rule)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusCreated, created)
}

func (h *AvailabilityHandler) listRules(w http.ResponseWriter, r *http.Request) {
	clinicID, err := requiredQuery(r, "clinic_id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	rules, err := h.rules.ListRules(r.Context(), clinicID, strings.TrimSpace(r.URL.Query().Get("staff_id")))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if rules == nil {
		rules = []model.AvailabilityRule{}
	}
	writeOK(w, http.StatusOK, rules)
}
