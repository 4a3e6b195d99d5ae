package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mtorres-dev/apptsync/internal/cache"
	"github.com/mtorres-dev/apptsync/internal/model"
	"github.com/mtorres-dev/apptsync/internal/store"
)

// SettingsHandler reads and writes the business-hours configuration. The
// cached copy is authoritative for slot math and a change takes effect on the
// next availability query; the backend copy is updated best-effort and again
// by every reconcile run.
type SettingsHandler struct {
	cache   cache.AppointmentCache
	backend store.Store
	logger  *slog.Logger
}

func NewSettingsHandler(c cache.AppointmentCache, backend store.Store, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{cache: c, backend: backend, logger: logger}
}

func (h *SettingsHandler) Handle(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.get(w, r)
	case http.MethodPost, http.MethodPut:
		h.update(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SettingsHandler) get(w http.ResponseWriter, r *http.Request) {
	settings, err := h.cache.Settings(r.Context())
	if err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

func (h *SettingsHandler) update(w http.ResponseWriter, r *http.Request) {
	var settings model.BusinessSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if err := validateSettings(settings); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if err := h.cache.PutSettings(ctx, settings); err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	if err := h.backend.SaveSettings(ctx, settings); err != nil {
		h.logger.Warn("settings backend push failed", "err", err)
	}
	respondJSON(w, http.StatusOK, settings)
}

func validateSettings(s model.BusinessSettings) error {
	if _, err := model.ParseClock(s.WorkingHours.Start); err != nil {
		return err
	}
	if _, err := model.ParseClock(s.WorkingHours.End); err != nil {
		return err
	}
	for _, day := range s.DaysOpen {
		if day.Start != "" {
			if _, err := model.ParseClock(day.Start); err != nil {
				return err
			}
		}
		if day.End != "" {
			if _, err := model.ParseClock(day.End); err != nil {
				return err
			}
		}
	}
	return nil
}
