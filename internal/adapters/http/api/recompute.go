package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/okian/sonder/internal/batch"
)

// RecomputeHandler handles batch recompute requests.
type RecomputeHandler struct {
	deps Dependencies
}

// NewRecomputeHandler creates a new recompute handler.
func NewRecomputeHandler(deps Dependencies) *RecomputeHandler {
	return &RecomputeHandler{deps: deps}
}

type recomputeRequest struct {
	SessionIDs []string `json:"session_ids,omitempty"`
	Since      string   `json:"since,omitempty"` // RFC3339
	Limit      int      `json:"limit,omitempty"`
	RatePerMin int      `json:"rate_per_min,omitempty"`
	DryRun     bool     `json:"dry_run"`
}

type recomputeResponse struct {
	Status  string        `json:"status"`
	Scanned int           `json:"scanned"`
	OK      int           `json:"ok"`
	Fail    int           `json:"fail"`
	Summary batch.Summary `json:"summary"`
}

// HandleRecompute handles POST /recompute.
func (h *RecomputeHandler) HandleRecompute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req recomputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	var since time.Time
	if req.Since != "" {
		t, err := time.Parse(time.RFC3339, req.Since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err)
			return
		}
		since = t
	}

	summary, err := h.deps.Recompute(r.Context(), batch.Request{
		SessionIDs: req.SessionIDs,
		Since:      since,
		Limit:      req.Limit,
		RatePerMin: req.RatePerMin,
		DryRun:     req.DryRun,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "unknown", err)
		return
	}

	writeJSON(w, http.StatusOK, recomputeResponse{
		Status:  "success",
		Scanned: summary.Scanned,
		OK:      summary.Succeeded + summary.Skipped,
		Fail:    summary.Failed,
		Summary: summary,
	})
}
