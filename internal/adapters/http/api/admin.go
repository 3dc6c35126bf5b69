package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// AdminHandler handles maintenance endpoints.
type AdminHandler struct {
	deps Dependencies
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps Dependencies) *AdminHandler {
	return &AdminHandler{deps: deps}
}

type cleanupRequest struct {
	Before string `json:"before"` // RFC3339
}

type cleanupResponse struct {
	Status  string `json:"status"`
	Deleted int    `json:"deleted"`
}

// HandleCleanup handles POST /admin/cleanup. It removes abandoned sessions
// that never reached completion before the cutoff.
func (h *AdminHandler) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req cleanupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if req.Before == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("missing before"))
		return
	}
	before, err := time.Parse(time.RFC3339, req.Before)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	deleted, err := h.deps.CleanupSessions(r.Context(), before)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "unknown", err)
		return
	}
	writeJSON(w, http.StatusOK, cleanupResponse{Status: "success", Deleted: deleted})
}
