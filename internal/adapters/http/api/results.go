package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/okian/sonder/internal/access"
	"github.com/okian/sonder/pkg/metrics"
)

// ResultsHandler handles profile read requests.
type ResultsHandler struct {
	deps Dependencies
}

// NewResultsHandler creates a new results handler.
func NewResultsHandler(deps Dependencies) *ResultsHandler {
	return &ResultsHandler{deps: deps}
}

type resultsResponse struct {
	Status string          `json:"status"`
	Data   access.Envelope `json:"data"`
}

// HandleResults handles GET /results?session_id=... The caller proves
// identity with X-Owner-ID or a bearer share token; owner wins when both
// are present.
func (h *ResultsHandler) HandleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("missing session_id"))
		return
	}

	req := access.Request{
		SessionID:  sessionID,
		OwnerID:    r.Header.Get("X-Owner-ID"),
		ShareToken: bearerToken(r),
	}
	if req.ShareToken == "" {
		req.ShareToken = r.URL.Query().Get("token")
	}

	env, err := h.deps.Results(r.Context(), req)
	if err != nil {
		writeResultsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultsResponse{Status: "success", Data: env})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return token
	}
	return ""
}

func writeResultsError(w http.ResponseWriter, err error) {
	if errors.Is(err, access.ErrNoProfile) {
		// A session that simply has no profile yet is benign; booking it
		// under its own category keeps unknown a real triage signal.
		metrics.RecordResultsRequest("no_profile")
		writeError(w, http.StatusNotFound, "no_profile", err)
		return
	}
	switch access.Classify(err) {
	case access.CategoryInvalidToken:
		writeError(w, http.StatusUnauthorized, access.CategoryInvalidToken, err)
	case access.CategoryNotAuth:
		writeError(w, http.StatusForbidden, access.CategoryNotAuth, err)
	case access.CategoryTransient:
		writeError(w, http.StatusServiceUnavailable, access.CategoryTransient, err)
	default:
		writeError(w, http.StatusInternalServerError, access.CategoryUnknown, err)
	}
}
