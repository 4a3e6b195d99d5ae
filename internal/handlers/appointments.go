package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mtorres-dev/apptsync/internal/availability"
	"github.com/mtorres-dev/apptsync/internal/booking"
	"github.com/mtorres-dev/apptsync/internal/cache"
	"github.com/mtorres-dev/apptsync/internal/events"
	"github.com/mtorres-dev/apptsync/internal/model"
	"github.com/mtorres-dev/apptsync/internal/store"
)

// AppointmentHandler serves the booking surface. Writes are cache-first: the
// record lands locally with a pending flag, then is pushed through the store
// selector; a failed push is invisible to the caller and drained later by the
// reconciler.
type AppointmentHandler struct {
	cache   cache.AppointmentCache
	backend store.Store
	events  *events.Publisher
	logger  *slog.Logger
	now     func() time.Time
}

func NewAppointmentHandler(c cache.AppointmentCache, backend store.Store, pub *events.Publisher, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{
		cache:   c,
		backend: backend,
		events:  pub,
		logger:  logger,
		now:     time.Now,
	}
}

type createAppointmentRequest struct {
	CustomerID      string `json:"customer_id"`
	ServiceID       string `json:"service_id"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration_minutes"`
	Notes           string `json:"notes"`
}

type appointmentIDResponse struct {
	AppointmentID string `json:"appointment_id"`
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.Date = strings.TrimSpace(req.Date)
	req.Time = strings.TrimSpace(req.Time)
	if req.CustomerID == "" || req.ServiceID == "" || req.Date == "" || req.Time == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	duration := req.DurationMinutes
	if duration <= 0 {
		svc, err := h.backend.GetService(ctx, req.ServiceID)
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "unknown service", http.StatusBadRequest)
			return
		}
		if err != nil {
			h.logger.Error("service lookup failed", "service_id", req.ServiceID, "err", err)
			http.Error(w, "service lookup failed", http.StatusInternalServerError)
			return
		}
		duration = svc.DurationMinutes
	}

	if code, msg := h.validate(ctx, booking.Candidate{
		Date:            req.Date,
		Time:            req.Time,
		DurationMinutes: duration,
		ServiceID:       req.ServiceID,
	}); code != 0 {
		http.Error(w, msg, code)
		return
	}

	now := h.now()
	appt := model.Appointment{
		ID:              uuid.NewString(),
		CustomerID:      req.CustomerID,
		ServiceID:       req.ServiceID,
		Date:            req.Date,
		Time:            req.Time,
		DurationMinutes: duration,
		Status:          model.StatusPending,
		Notes:           strings.TrimSpace(req.Notes),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := h.cache.Put(ctx, appt); err != nil {
		h.logger.Error("cache write failed", "err", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	h.push(ctx, appt)
	h.events.Publish(ctx, events.TypeBooked, appt.ID, appt.WithoutSyncFlags())

	respondJSON(w, http.StatusCreated, appointmentIDResponse{AppointmentID: appt.ID})
}

type updateAppointmentRequest struct {
	AppointmentID   string  `json:"appointment_id"`
	Date            string  `json:"date"`
	Time            string  `json:"time"`
	DurationMinutes int     `json:"duration_minutes"`
	Status          string  `json:"status"`
	Notes           *string `json:"notes"`
}

func (h *AppointmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req updateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	appt, err := h.cache.Get(ctx, strings.TrimSpace(req.AppointmentID))
	if errors.Is(err, cache.ErrNotFound) || (err == nil && appt.PendingDelete) {
		http.Error(w, "appointment not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}

	rescheduled := false
	if req.Date != "" && req.Date != appt.Date {
		appt.Date = req.Date
		rescheduled = true
	}
	if req.Time != "" && req.Time != appt.Time {
		appt.Time = req.Time
		rescheduled = true
	}
	if req.DurationMinutes > 0 && req.DurationMinutes != appt.DurationMinutes {
		appt.DurationMinutes = req.DurationMinutes
		rescheduled = true
	}
	if req.Status != "" {
		status := model.Status(req.Status)
		if !status.Valid() {
			http.Error(w, "invalid status", http.StatusBadRequest)
			return
		}
		appt.Status = status
	}
	if req.Notes != nil {
		appt.Notes = *req.Notes
	}

	if rescheduled {
		if code, msg := h.validate(ctx, booking.Candidate{
			Date:            appt.Date,
			Time:            appt.Time,
			DurationMinutes: appt.DurationMinutes,
			ServiceID:       appt.ServiceID,
			ExcludeID:       appt.ID,
		}); code != 0 {
			http.Error(w, msg, code)
			return
		}
	}

	appt.UpdatedAt = h.now()
	if err := h.cache.Put(ctx, appt); err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	h.push(ctx, appt)

	respondJSON(w, http.StatusOK, appt.WithoutSyncFlags())
}

type cancelAppointmentRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	appt, err := h.cache.Get(ctx, strings.TrimSpace(req.AppointmentID))
	if errors.Is(err, cache.ErrNotFound) || (err == nil && appt.PendingDelete) {
		http.Error(w, "appointment not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}

	if !appt.Canceled() {
		appt.Status = model.StatusCanceled
		if reason := strings.TrimSpace(req.Reason); reason != "" {
			appt.Notes = strings.TrimSpace(appt.Notes + "\ncanceled: " + reason)
		}
		appt.UpdatedAt = h.now()
		if err := h.cache.Put(ctx, appt); err != nil {
			http.Error(w, "storage error", http.StatusInternalServerError)
			return
		}
		h.push(ctx, appt)
		h.events.Publish(ctx, events.TypeCanceled, appt.ID, appt.WithoutSyncFlags())
	}

	respondJSON(w, http.StatusOK, appt.WithoutSyncFlags())
}

type deleteAppointmentRequest struct {
	AppointmentID string `json:"appointment_id"`
}

func (h *AppointmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req deleteAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	id := strings.TrimSpace(req.AppointmentID)

	ctx := r.Context()
	if err := h.cache.MarkDeleted(ctx, id); err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}

	// Best effort toward the backend. The tombstone always stays: a nil or
	// not-found result here may come from the fallback, which says nothing
	// about the primary's copy. Only the reconciler, which talks to the
	// primary directly, confirms the delete and drops the tombstone.
	if err := h.backend.DeleteAppointment(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		h.logger.Warn("backend delete failed", "id", id, "err", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	from := strings.TrimSpace(r.URL.Query().Get("from"))
	to := strings.TrimSpace(r.URL.Query().Get("to"))

	var (
		appts []model.Appointment
		err   error
	)
	if from != "" && to != "" {
		appts, err = h.cache.GetByDateRange(ctx, from, to)
	} else {
		appts, err = h.cache.GetAll(ctx)
	}
	if err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}

	out := make([]model.Appointment, 0, len(appts))
	for _, a := range appts {
		if a.PendingDelete {
			continue
		}
		out = append(out, a)
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	appt, err := h.cache.Get(r.Context(), strings.TrimSpace(r.URL.Query().Get("id")))
	if errors.Is(err, cache.ErrNotFound) || (err == nil && appt.PendingDelete) {
		http.Error(w, "appointment not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, appt)
}

type slotsResponse struct {
	Date      string   `json:"date"`
	ServiceID string   `json:"service_id"`
	Slots     []string `json:"slots"`
}

func (h *AppointmentHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	serviceID := strings.TrimSpace(r.URL.Query().Get("service_id"))
	if date == "" || serviceID == "" {
		http.Error(w, "date and service_id are required", http.StatusBadRequest)
		return
	}

	duration, settings, existing, ok := h.slotInputs(ctx, w, date, serviceID)
	if !ok {
		return
	}

	slots := availability.SlotsForDate(date, serviceID, duration, settings, existing, h.now())
	if slots == nil {
		slots = []string{}
	}
	respondJSON(w, http.StatusOK, slotsResponse{Date: date, ServiceID: serviceID, Slots: slots})
}

func (h *AppointmentHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	serviceID := strings.TrimSpace(r.URL.Query().Get("service_id"))
	if date == "" || serviceID == "" {
		http.Error(w, "date and service_id are required", http.StatusBadRequest)
		return
	}

	duration, settings, existing, ok := h.slotInputs(ctx, w, date, serviceID)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK,
		availability.ForDate(date, serviceID, duration, settings, existing, h.now()))
}

// slotInputs gathers the service duration, settings and same-date snapshot
// shared by the slot and availability queries. On failure it writes the
// response itself and returns ok=false.
func (h *AppointmentHandler) slotInputs(ctx context.Context, w http.ResponseWriter, date, serviceID string) (int, model.BusinessSettings, []model.Appointment, bool) {
	svc, err := h.backend.GetService(ctx, serviceID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "unknown service", http.StatusBadRequest)
		return 0, model.BusinessSettings{}, nil, false
	}
	if err != nil {
		h.logger.Error("service lookup failed", "service_id", serviceID, "err", err)
		http.Error(w, "service lookup failed", http.StatusInternalServerError)
		return 0, model.BusinessSettings{}, nil, false
	}

	settings, err := h.cache.Settings(ctx)
	if err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return 0, model.BusinessSettings{}, nil, false
	}
	existing, err := h.cache.GetByDateRange(ctx, date, date)
	if err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return 0, model.BusinessSettings{}, nil, false
	}
	return svc.DurationMinutes, settings, existing, true
}

// validate runs the conflict guard and maps its rejections to HTTP codes.
// A zero return code means the candidate passed.
func (h *AppointmentHandler) validate(ctx context.Context, c booking.Candidate) (int, string) {
	settings, err := h.cache.Settings(ctx)
	if err != nil {
		return http.StatusInternalServerError, "storage error"
	}
	existing, err := h.cache.GetByDateRange(ctx, c.Date, c.Date)
	if err != nil {
		return http.StatusInternalServerError, "storage error"
	}

	switch err := booking.Validate(c, settings, existing, h.now()); {
	case err == nil:
		return 0, ""
	case errors.Is(err, booking.ErrDayOff),
		errors.Is(err, booking.ErrOutsideHours),
		errors.Is(err, booking.ErrInPast),
		errors.Is(err, booking.ErrOverlap):
		return http.StatusUnprocessableEntity, err.Error()
	default:
		return http.StatusBadRequest, err.Error()
	}
}

// push sends a local write toward the backend. The selector picks the live
// store; on success the cached copy drops its pending flag.
func (h *AppointmentHandler) push(ctx context.Context, appt model.Appointment) {
	if err := h.backend.PutAppointment(ctx, appt); err != nil {
		h.logger.Warn("backend push failed, record stays pending", "id", appt.ID, "err", err)
		return
	}
	if err := h.cache.PutSynced(ctx, appt); err != nil {
		h.logger.Warn("pending flag clear failed", "id", appt.ID, "err", err)
	}
}

func respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
