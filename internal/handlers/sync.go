package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	syncpkg "github.com/mtorres-dev/apptsync/internal/sync"
)

type SyncHandler struct {
	runner *syncpkg.Runner
	status *syncpkg.StatusStore
	logger *slog.Logger
}

func NewSyncHandler(runner *syncpkg.Runner, status *syncpkg.StatusStore, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{runner: runner, status: status, logger: logger}
}

type triggerResponse struct {
	JobID   string `json:"job_id"`
	Started bool   `json:"started"`
}

// Trigger acknowledges immediately with a job ticket; the run proceeds in the
// background and its outcome is only visible through the status endpoint.
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	jobID, started := h.runner.Trigger()
	if !started {
		h.logger.Info("sync already running", "job_id", jobID)
	}
	respondJSON(w, http.StatusAccepted, triggerResponse{JobID: jobID, Started: started})
}

func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	status, err := h.status.Read()
	if errors.Is(err, syncpkg.ErrNoStatus) {
		http.Error(w, "no sync has run yet", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "status read failed", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, status)
}
