// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/okian/sonder/internal/access"
	"github.com/okian/sonder/internal/batch"
	"github.com/okian/sonder/internal/domain/model"
	"github.com/okian/sonder/internal/pipeline"
	"github.com/okian/sonder/pkg/metrics"
)

// Dependencies required by HTTP handlers. An interface bundle keeps the
// handler layer loosely coupled to the service implementation.
type Dependencies interface {
	// Session lifecycle
	CreateSession(ctx context.Context, ownerID string) (model.Session, error)
	SubmitResponses(ctx context.Context, sessionID string, rs []model.Response) (int, error)
	CompleteSession(ctx context.Context, sessionID string) error
	DeleteSession(ctx context.Context, sessionID string) error
	CleanupSessions(ctx context.Context, before time.Time) (int, error)

	// Scoring pipeline
	Finalize(ctx context.Context, sessionID, fcVersion string) (pipeline.Result, error)
	ScoreFC(ctx context.Context, sessionID, version, basis string) (model.FCScore, error)
	Recompute(ctx context.Context, req batch.Request) (batch.Summary, error)

	// Results read path
	Results(ctx context.Context, req access.Request) (access.Envelope, error)
	IssueShareToken(ctx context.Context, sessionID string) (string, error)
	EnsureShareToken(ctx context.Context, sessionID string) (string, error)

	// Monitoring
	Stats(ctx context.Context) map[string]interface{}
}

// Server wires HTTP routes for the business API.
type Server struct {
	sessionsHandler  *SessionsHandler
	finalizeHandler  *FinalizeHandler
	recomputeHandler *RecomputeHandler
	resultsHandler   *ResultsHandler
	adminHandler     *AdminHandler
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		sessionsHandler:  NewSessionsHandler(deps),
		finalizeHandler:  NewFinalizeHandler(deps),
		recomputeHandler: NewRecomputeHandler(deps),
		resultsHandler:   NewResultsHandler(deps),
		adminHandler:     NewAdminHandler(deps),
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/sessions", MetricsMiddleware(s.sessionsHandler.HandleCollection, "sessions"))
	mux.HandleFunc("/sessions/", MetricsMiddleware(s.sessionsHandler.HandleItem, "sessions"))
	mux.HandleFunc("/finalize", MetricsMiddleware(s.finalizeHandler.HandleFinalize, "finalize"))
	mux.HandleFunc("/score-fc", MetricsMiddleware(s.finalizeHandler.HandleScoreFC, "score_fc"))
	mux.HandleFunc("/recompute", MetricsMiddleware(s.recomputeHandler.HandleRecompute, "recompute"))
	mux.HandleFunc("/results", MetricsMiddleware(s.resultsHandler.HandleResults, "results"))
	mux.HandleFunc("/admin/cleanup", MetricsMiddleware(s.adminHandler.HandleCleanup, "admin_cleanup"))
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Status string    `json:"status"`
	Error  errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Status: "error", Error: errorBody{Code: code, Message: msg}})
}
