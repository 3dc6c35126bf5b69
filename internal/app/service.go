// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/sonder/internal/access"
	"github.com/okian/sonder/internal/adapters/repository"
	"github.com/okian/sonder/internal/batch"
	"github.com/okian/sonder/internal/config"
	"github.com/okian/sonder/internal/domain/fc"
	"github.com/okian/sonder/internal/domain/model"
	"github.com/okian/sonder/internal/pipeline"
	"github.com/okian/sonder/pkg/logger"
)

// Service implements the API dependencies for the assessment pipeline.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	// Core components
	store      *repository.SQLiteStore
	orch       *pipeline.Orchestrator
	controller *batch.Controller
	gateway    *access.Gateway
	fcScorer   *fc.Scorer

	// State
	started   bool
	startedAt time.Time

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Service from cfg. Call Start before serving traffic.
func New(cfg *config.Config, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		logger: logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store and wires the scoring pipeline, batch controller
// and results gateway. It is idempotent.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	store, err := repository.Open(ctx, s.cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	s.store = store

	s.orch = pipeline.New(store, s.cfg.Scoring,
		pipeline.WithLogger(s.logger.Named("pipeline")))
	s.fcScorer = fc.New(store, s.cfg.Scoring)
	s.controller = batch.New(store, s.orch,
		batch.WithRatePerMin(s.cfg.BatchRatePerMin),
		batch.WithMaxInFlight(s.cfg.BatchMaxInFlight),
		batch.WithBreaker(s.cfg.BatchFailureRateLimit, s.cfg.BatchMinSample),
		batch.WithLogger(s.logger.Named("batch")),
	)
	s.gateway = access.New(store, s.cfg.ShareTokenSecret,
		time.Duration(s.cfg.ShareTokenTTLMinutes)*time.Minute)

	s.started = true
	s.startedAt = time.Now().UTC()
	s.logger.Info(ctx, "service started",
		logger.String("db_path", s.cfg.DBPath),
		logger.String("results_version", s.cfg.Scoring.ResultsVersion()),
	)
	return nil
}

// Stop closes the store. It is safe to call multiple times.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error(context.Background(), "closing store", logger.Error(err))
	}
	s.started = false
}

// CreateSession starts a new assessment session for ownerID (empty for
// anonymous sessions).
func (s *Service) CreateSession(ctx context.Context, ownerID string) (model.Session, error) {
	return s.store.CreateSession(ctx, ownerID)
}

// SubmitResponses stores a batch of answers for the session. Replayed
// question ids are dropped silently; the count of newly stored answers is
// returned.
func (s *Service) SubmitResponses(ctx context.Context, sessionID string, rs []model.Response) (int, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return 0, err
	}
	return s.store.SaveResponses(ctx, rs)
}

// CompleteSession marks the session ready for finalization.
func (s *Service) CompleteSession(ctx context.Context, sessionID string) error {
	return s.store.SetSessionStatus(ctx, sessionID, model.StatusCompleted)
}

// DeleteSession removes the session and everything derived from it.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	return s.store.DeleteSession(ctx, sessionID)
}

// CleanupSessions deletes in-progress sessions untouched since before.
func (s *Service) CleanupSessions(ctx context.Context, before time.Time) (int, error) {
	return s.store.CleanupSessions(ctx, before)
}

// Finalize runs the scoring pipeline for one session.
func (s *Service) Finalize(ctx context.Context, sessionID, fcVersion string) (pipeline.Result, error) {
	return s.orch.Finalize(ctx, sessionID, fcVersion)
}

// ScoreFC computes and stores a forced-choice score independent of the
// full pipeline.
func (s *Service) ScoreFC(ctx context.Context, sessionID, version, basis string) (model.FCScore, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return model.FCScore{}, err
	}
	return s.fcScorer.Score(ctx, sessionID, version, basis)
}

// Recompute runs one batch recompute pass.
func (s *Service) Recompute(ctx context.Context, req batch.Request) (batch.Summary, error) {
	return s.controller.Run(ctx, req)
}

// Results serves the token-gated read path.
func (s *Service) Results(ctx context.Context, req access.Request) (access.Envelope, error) {
	return s.gateway.Results(ctx, req)
}

// IssueShareToken mints a fresh share token for the session, revoking any
// previously issued one.
func (s *Service) IssueShareToken(ctx context.Context, sessionID string) (string, error) {
	return s.gateway.IssueShareToken(ctx, sessionID)
}

// EnsureShareToken mints a token only when the session has never had one.
// It returns the empty string when a token already exists, so finalization
// replays never revoke a link the owner has shared.
func (s *Service) EnsureShareToken(ctx context.Context, sessionID string) (string, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if sess.ShareTokenID != "" {
		return "", nil
	}
	return s.gateway.IssueShareToken(ctx, sessionID)
}

// Stats reports service-level runtime information.
func (s *Service) Stats(ctx context.Context) map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]interface{}{
		"started":          s.started,
		"uptime_seconds":   int(time.Since(s.startedAt).Seconds()),
		"results_version":  s.cfg.Scoring.ResultsVersion(),
		"engine_version":   s.cfg.Scoring.EngineVersion,
		"fc_version":       s.cfg.Scoring.FCVersion,
		"calibration":      s.cfg.Scoring.CalibrationVersion,
		"batch_rate_per_m": s.cfg.BatchRatePerMin,
	}
}
