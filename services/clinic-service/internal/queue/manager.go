package queue

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicflow/libs/clock"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/policy"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

type Store interface {
	InsertEntry(ctx context.Context, e model.QueueEntry) error
	GetEntry(ctx context.Context, id string) (model.QueueEntry, error)
	ListEntries(ctx context.Context, clinicID string, day model.Date, status string) ([]model.QueueEntry, error)
	// UpdateEntry writes e only while the stored status still equals
	// fromStatus, and returns a Conflict error otherwise.
	UpdateEntry(ctx context.Context, e model.QueueEntry, fromStatus string) error
}

type Manager struct {
	store    Store
	counter  Counter
	settings policy.Provider
	events   outbox.Emitter
	clock    clock.Clock
	loc      *time.Location
	logger   *slog.Logger
}

type Options struct {
	Store    Store
	Counter  Counter
	Settings policy.Provider
	Events   outbox.Emitter
	Clock    clock.Clock
	Location *time.Location
	Logger   *slog.Logger
}

func NewManager(opts Options) *Manager {
	if opts.Events == nil {
		opts.Events = outbox.Discard{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = clock.System(opts.Location)
	}
	return &Manager{
		store:    opts.Store,
		counter:  opts.Counter,
		settings: opts.Settings,
		events:   opts.Events,
		clock:    opts.Clock,
		loc:      opts.Location,
		logger:   opts.Logger,
	}
}

func (m *Manager) now() time.Time {
	return m.clock.Now().In(m.loc)
}

// Today is the clinic-local operational day.
func (m *Manager) Today() model.Date {
	return model.DateOf(m.now())
}

type EnqueueInput struct {
	ClinicID        string
	CustomerID      string
	CustomerName    string
	StaffID         string
	AppointmentType string
	Priority        model.Priority
	Notes           string
}

func (m *Manager) Enqueue(ctx context.Context, in EnqueueInput) (model.QueueEntry, error) {
	ctx, span := otel.Tracer("queue").Start(ctx, "queue.enqueue")
	defer span.End()

	if strings.TrimSpace(in.ClinicID) == "" {
		return model.QueueEntry{}, apperr.Validation("clinic_id", "clinic_id is required")
	}
	if strings.TrimSpace(in.CustomerName) == "" {
		return model.QueueEntry{}, apperr.Validation("customer_name", "customer_name is required")
	}
	if in.Priority == "" {
		in.Priority = model.PriorityNormal
	}
	if !in.Priority.Valid() {
		return model.QueueEntry{}, apperr.Validation("priority", "priority must be emergency, urgent or normal")
	}

	now := m.now()
	day := model.DateOf(now)

	number, err := m.counter.Next(ctx, in.ClinicID, day)
	if err != nil {
		span.RecordError(err)
		return model.QueueEntry{}, apperr.Internal("failed to assign queue number", err)
	}

	current, err := m.store.ListEntries(ctx, in.ClinicID, day, "")
	if err != nil {
		return model.QueueEntry{}, err
	}
	wait := EstimateWait(current, in.Priority, m.serviceMinutes(ctx, in.ClinicID))

	entry := model.QueueEntry{
		ID:                uuid.NewString(),
		ClinicID:          in.ClinicID,
		QueueDate:         day,
		QueueNumber:       number,
		CustomerID:        in.CustomerID,
		CustomerName:      strings.TrimSpace(in.CustomerName),
		StaffID:           in.StaffID,
		AppointmentType:   in.AppointmentType,
		Priority:          in.Priority,
		Status:            model.QueueWaiting,
		CheckInTime:       now,
		EstimatedWait:     wait,
		EstimatedCallTime: now.Add(time.Duration(wait) * time.Minute),
		Notes:             in.Notes,
	}
	if err := m.store.InsertEntry(ctx, entry); err != nil {
		span.RecordError(err)
		return model.QueueEntry{}, err
	}
	span.SetAttributes(
		attribute.String("clinic.id", entry.ClinicID),
		attribute.Int("queue.number", entry.QueueNumber),
	)

	m.emit(ctx, outbox.QueueCheckedIn, entry)
	return entry, nil
}

func (m *Manager) serviceMinutes(ctx context.Context, clinicID string) int {
	mins, err := m.settings.ServiceMinutes(ctx, clinicID)
	if err != nil || mins <= 0 {
		if err != nil {
			m.logger.Warn("service minutes lookup failed; using default", "clinic_id", clinicID, "err", err)
		}
		return policy.DefaultServiceMinutes
	}
	return mins
}

// List returns a day's entries in staff-facing order. A zero day means today.
func (m *Manager) List(ctx context.Context, clinicID, status string, day model.Date) ([]model.QueueEntry, error) {
	if strings.TrimSpace(clinicID) == "" {
		return nil, apperr.Validation("clinic_id", "clinic_id is required")
	}
	if status != "" && !model.IsQueueStatus(status) {
		return nil, apperr.Validation("status", "unknown queue status")
	}
	if day.IsZero() {
		day = m.Today()
	}
	entries, err := m.store.ListEntries(ctx, clinicID, day, status)
	if err != nil {
		return nil, err
	}
	SortEntries(entries)
	return entries, nil
}

type UpdateInput struct {
	ID                 string
	Status             string
	Notes              *string
	StaffID            string
	CancellationReason string
}

// Update applies a status transition and its timestamp side effects. An empty
// Status only edits notes and staff.
func (m *Manager) Update(ctx context.Context, in UpdateInput) (model.QueueEntry, error) {
	if strings.TrimSpace(in.ID) == "" {
		return model.QueueEntry{}, apperr.Validation("id", "id is required")
	}
	if in.Status != "" && !model.IsQueueStatus(in.Status) {
		return model.QueueEntry{}, apperr.Validation("status", "unknown queue status")
	}

	entry, err := m.store.GetEntry(ctx, in.ID)
	if err != nil {
		return model.QueueEntry{}, err
	}
	if entry.Terminal() {
		return model.QueueEntry{}, apperr.Conflict("queue entry is already " + entry.Status)
	}

	from := entry.Status
	if in.Status != "" && in.Status != from {
		if !model.CanTransitionQueue(from, in.Status) {
			return model.QueueEntry{}, apperr.Conflict("cannot move queue entry from " + from + " to " + in.Status)
		}
		m.applyTransition(&entry, in.Status, in.CancellationReason)
	}
	if in.Notes != nil {
		entry.Notes = *in.Notes
	}
	if in.StaffID != "" {
		entry.StaffID = in.StaffID
	}

	if err := m.store.UpdateEntry(ctx, entry, from); err != nil {
		return model.QueueEntry{}, err
	}
	if entry.Status != from {
		m.emit(ctx, outbox.QueueStatusChanged, entry)
	}
	return entry, nil
}

func (m *Manager) applyTransition(e *model.QueueEntry, to, reason string) {
	now := m.now()
	e.Status = to
	switch to {
	case model.QueueCalled:
		e.CalledTime = &now
	case model.QueueInService:
		e.ServiceStartTime = &now
	case model.QueueCompleted:
		e.ServiceEndTime = &now
	case model.QueueCancelled:
		e.CancellationReason = reason
	}
}

const callNextAttempts = 3

// CallNext calls the head of today's waiting line. With staffID set, entries
// assigned to someone else are skipped.
func (m *Manager) CallNext(ctx context.Context, clinicID, staffID string) (model.QueueEntry, error) {
	if strings.TrimSpace(clinicID) == "" {
		return model.QueueEntry{}, apperr.Validation("clinic_id", "clinic_id is required")
	}

	for attempt := 0; attempt < callNextAttempts; attempt++ {
		waiting, err := m.List(ctx, clinicID, model.QueueWaiting, model.Date{})
		if err != nil {
			return model.QueueEntry{}, err
		}
		var next *model.QueueEntry
		for i := range waiting {
			if staffID == "" || waiting[i].StaffID == "" || waiting[i].StaffID == staffID {
				next = &waiting[i]
				break
			}
		}
		if next == nil {
			return model.QueueEntry{}, apperr.NotFound("no one is waiting")
		}

		called, err := m.Update(ctx, UpdateInput{ID: next.ID, Status: model.QueueCalled, StaffID: staffID})
		if apperr.Is(err, apperr.KindConflict) {
			// Another desk called this entry first.
			continue
		}
		return called, err
	}
	return model.QueueEntry{}, apperr.Conflict("queue changed while calling next; retry")
}

type Position struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Position      int    `json:"position"`
	EstimatedWait int    `json:"estimated_wait_time"`
}

// Position is 1-based among waiting entries in staff order, 0 when the entry
// is no longer waiting.
func (m *Manager) Position(ctx context.Context, id string) (Position, error) {
	if strings.TrimSpace(id) == "" {
		return Position{}, apperr.Validation("id", "id is required")
	}
	entry, err := m.store.GetEntry(ctx, id)
	if err != nil {
		return Position{}, err
	}
	out := Position{ID: entry.ID, Status: entry.Status}
	if entry.Status != model.QueueWaiting {
		return out, nil
	}

	all, err := m.store.ListEntries(ctx, entry.ClinicID, entry.QueueDate, "")
	if err != nil {
		return Position{}, err
	}
	SortEntries(all)
	rank, inService := 0, 0
	for _, e := range all {
		switch e.Status {
		case model.QueueInService:
			inService++
		case model.QueueWaiting:
			if out.Position == 0 {
				rank++
				if e.ID == entry.ID {
					out.Position = rank
				}
			}
		}
	}
	if out.Position == 0 {
		return out, nil
	}
	out.EstimatedWait = (out.Position - 1 + inService) * m.serviceMinutes(ctx, entry.ClinicID)
	return out, nil
}

type Stats struct {
	Date                  model.Date     `json:"date"`
	Total                 int            `json:"total"`
	ByStatus              map[string]int `json:"by_status"`
	AverageWaitMinutes    int            `json:"average_wait_time"`
	AverageServiceMinutes int            `json:"average_service_time"`
}

// Stats summarises a day. Averages cover completed entries only.
func (m *Manager) Stats(ctx context.Context, clinicID string, day model.Date) (Stats, error) {
	entries, err := m.List(ctx, clinicID, "", day)
	if err != nil {
		return Stats{}, err
	}
	if day.IsZero() {
		day = m.Today()
	}
	out := Stats{Date: day, Total: len(entries), ByStatus: map[string]int{
		model.QueueWaiting: 0, model.QueueCalled: 0, model.QueueInService: 0,
		model.QueueCompleted: 0, model.QueueCancelled: 0,
	}}

	var waitSum, serviceSum time.Duration
	var waitN, serviceN int
	for _, e := range entries {
		out.ByStatus[e.Status]++
		if e.Status != model.QueueCompleted {
			continue
		}
		if e.CalledTime != nil {
			waitSum += e.CalledTime.Sub(e.CheckInTime)
			waitN++
		}
		if e.ServiceStartTime != nil && e.ServiceEndTime != nil {
			serviceSum += e.ServiceEndTime.Sub(*e.ServiceStartTime)
			serviceN++
		}
	}
	out.AverageWaitMinutes = averageMinutes(waitSum, waitN)
	out.AverageServiceMinutes = averageMinutes(serviceSum, serviceN)
	return out, nil
}

func averageMinutes(sum time.Duration, n int) int {
	if n == 0 {
		return 0
	}
	return int(math.Round(sum.Minutes() / float64(n)))
}

func (m *Manager) emit(ctx context.Context, eventType string, e model.QueueEntry) {
	evt, err := outbox.NewEvent("queue_entry", e.ID, eventType, map[string]any{
		"id":           e.ID,
		"clinic_id":    e.ClinicID,
		"queue_date":   e.QueueDate.String(),
		"queue_number": e.QueueNumber,
		"priority":     e.Priority,
		"status":       e.Status,
		"staff_id":     e.StaffID,
	})
	if err == nil {
		err = m.events.Emit(ctx, evt)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Warn("queue event not recorded", "event_type", eventType, "entry_id", e.ID, "err", err)
	}
}
