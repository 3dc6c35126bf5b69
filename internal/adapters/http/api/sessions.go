package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/okian/sonder/internal/adapters/repository"
	"github.com/okian/sonder/internal/domain/model"
)

// SessionsHandler handles session lifecycle requests.
type SessionsHandler struct {
	deps Dependencies
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps Dependencies) *SessionsHandler {
	return &SessionsHandler{deps: deps}
}

type createSessionRequest struct {
	OwnerID string `json:"owner_id"`
}

type createSessionResponse struct {
	Status  string        `json:"status"`
	Session model.Session `json:"session"`
}

// HandleCollection handles POST /sessions.
func (h *SessionsHandler) HandleCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req createSessionRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req) // empty body means anonymous session
	}
	sess, err := h.deps.CreateSession(r.Context(), req.OwnerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "unknown", err)
		return
	}
	writeJSON(w, http.StatusCreated, createSessionResponse{Status: "success", Session: sess})
}

type responseItem struct {
	QuestionID string  `json:"question_id"`
	Kind       string  `json:"kind"`
	Tag        string  `json:"tag"`
	BlockID    string  `json:"block_id,omitempty"`
	Value      float64 `json:"value"`
}

type submitResponsesRequest struct {
	Responses []responseItem `json:"responses"`
}

type submitResponsesResponse struct {
	Status   string `json:"status"`
	Inserted int    `json:"inserted"`
}

type shareTokenResponse struct {
	Status     string `json:"status"`
	ShareToken string `json:"share_token"`
}

// HandleItem routes /sessions/{id}, /sessions/{id}/responses,
// /sessions/{id}/complete and /sessions/{id}/share-token.
func (h *SessionsHandler) HandleItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/sessions/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	switch {
	case action == "" && r.Method == http.MethodDelete:
		h.handleDelete(w, r, id)
	case action == "responses" && r.Method == http.MethodPost:
		h.handleResponses(w, r, id)
	case action == "complete" && r.Method == http.MethodPost:
		h.handleComplete(w, r, id)
	case action == "share-token" && r.Method == http.MethodPost:
		h.handleShareToken(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (h *SessionsHandler) handleDelete(w http.ResponseWriter, r *http.Request, id string) {
	// Deleting an already-deleted session is a no-op, not an error.
	if err := h.deps.DeleteSession(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "unknown", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (h *SessionsHandler) handleResponses(w http.ResponseWriter, r *http.Request, id string) {
	var req submitResponsesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if len(req.Responses) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	now := time.Now().UTC()
	rs := make([]model.Response, 0, len(req.Responses))
	for _, item := range req.Responses {
		kind := model.ResponseKind(item.Kind)
		if kind != model.KindForcedChoice && kind != model.KindLikert {
			writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
			return
		}
		rs = append(rs, model.Response{
			SessionID:    id,
			QuestionID:   item.QuestionID,
			Kind:         kind,
			Tag:          item.Tag,
			BlockID:      item.BlockID,
			Value:        item.Value,
			ScaleVersion: 1,
			SubmittedAt:  now,
		})
	}

	inserted, err := h.deps.SubmitResponses(r.Context(), id, rs)
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submitResponsesResponse{Status: "success", Inserted: inserted})
}

func (h *SessionsHandler) handleComplete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.deps.CompleteSession(r.Context(), id); err != nil {
		h.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (h *SessionsHandler) handleShareToken(w http.ResponseWriter, r *http.Request, id string) {
	token, err := h.deps.IssueShareToken(r.Context(), id)
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shareTokenResponse{Status: "success", ShareToken: token})
}

func (h *SessionsHandler) writeSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", err)
		return
	}
	writeError(w, http.StatusInternalServerError, "unknown", err)
}
