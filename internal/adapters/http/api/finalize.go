package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/okian/sonder/internal/adapters/repository"
	"github.com/okian/sonder/internal/domain/fc"
	"github.com/okian/sonder/internal/domain/model"
	"github.com/okian/sonder/internal/domain/traits"
	"github.com/okian/sonder/internal/pipeline"
)

// FinalizeHandler handles finalize and score-fc requests.
type FinalizeHandler struct {
	deps Dependencies
}

// NewFinalizeHandler creates a new finalize handler.
func NewFinalizeHandler(deps Dependencies) *FinalizeHandler {
	return &FinalizeHandler{deps: deps}
}

type finalizeRequest struct {
	SessionID string `json:"session_id"`
	FCVersion string `json:"fc_version,omitempty"`
}

type finalizeResponse struct {
	Status     string        `json:"status"`
	Profile    model.Profile `json:"profile"`
	ResultsURL string        `json:"results_url"`
	ShareToken string        `json:"share_token,omitempty"`
	Noop       bool          `json:"noop,omitempty"`
}

// HandleFinalize handles POST /finalize. Re-posting for a session already
// finalized at the same version returns the stored profile unchanged.
func (h *FinalizeHandler) HandleFinalize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req finalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("missing session_id"))
		return
	}

	res, err := h.deps.Finalize(r.Context(), req.SessionID, req.FCVersion)
	if err != nil {
		writeFinalizeError(w, err)
		return
	}

	resp := finalizeResponse{
		Status:     "success",
		Profile:    res.Profile,
		ResultsURL: "/results?session_id=" + req.SessionID,
		Noop:       res.Noop,
	}
	// A share token is minted on the first finalization only; sessions that
	// already hold one keep it, and callers rotate explicitly when needed.
	if token, err := h.deps.EnsureShareToken(r.Context(), req.SessionID); err == nil && token != "" {
		resp.ShareToken = token
	}
	writeJSON(w, http.StatusOK, resp)
}

type scoreFCRequest struct {
	SessionID string `json:"session_id"`
	Version   string `json:"version"`
	Basis     string `json:"basis,omitempty"`
}

type scoreFCResponse struct {
	Status         string             `json:"status"`
	BlocksAnswered int                `json:"blocks_answered"`
	Scores         map[string]float64 `json:"scores"`
}

// HandleScoreFC handles POST /score-fc.
func (h *FinalizeHandler) HandleScoreFC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req scoreFCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if strings.TrimSpace(req.SessionID) == "" || strings.TrimSpace(req.Version) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("missing session_id or version"))
		return
	}

	sc, err := h.deps.ScoreFC(r.Context(), req.SessionID, req.Version, req.Basis)
	if err != nil {
		writeFinalizeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scoreFCResponse{
		Status:         "success",
		BlocksAnswered: sc.BlocksAnswered,
		Scores:         sc.Scores,
	})
}

// writeFinalizeError maps pipeline errors to stable codes. Callers can
// distinguish "try again later" (transient) from "this session cannot be
// scored" (structural) from "not allowed".
func writeFinalizeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fc.ErrInsufficientData):
		writeError(w, http.StatusUnprocessableEntity, "insufficient_data", err)
	case errors.Is(err, traits.ErrMissingRequiredTags):
		writeError(w, http.StatusUnprocessableEntity, "missing_required_tags", err)
	case errors.Is(err, repository.ErrStaleVersion):
		writeError(w, http.StatusConflict, "stale_version", err)
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, pipeline.ErrTransient):
		writeError(w, http.StatusServiceUnavailable, "transient", err)
	default:
		writeError(w, http.StatusInternalServerError, "unknown", err)
	}
}
