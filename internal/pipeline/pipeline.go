// Package pipeline drives a session from "responses complete" to "profile
// available": forced-choice scoring, trait scoring, calibration, assembly
// and the final persisted profile.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/sonder/internal/adapters/repository"
	"github.com/okian/sonder/internal/config"
	"github.com/okian/sonder/internal/domain/assemble"
	"github.com/okian/sonder/internal/domain/calibration"
	"github.com/okian/sonder/internal/domain/fc"
	"github.com/okian/sonder/internal/domain/model"
	"github.com/okian/sonder/internal/domain/traits"
	"github.com/okian/sonder/pkg/logger"
	"github.com/okian/sonder/pkg/metrics"
)

// Stage names, in execution order.
const (
	StagePending     = "pending"
	StageFcScored    = "fc_scored"
	StageTraitScored = "trait_scored"
	StageCalibrated  = "calibrated"
	StageAssembled   = "assembled"
	StageFinalized   = "finalized"
)

// Default retry policy for transient stage failures.
const (
	defaultMaxAttempts = 2
	defaultRetryDelay  = 50 * time.Millisecond
)

// Result is the outcome of one finalization run.
type Result struct {
	Profile model.Profile
	// Noop is true when the session was already finalized at the requested
	// version and the stored profile was returned untouched.
	Noop bool
}

// Orchestrator sequences the finalization stages for one session at a time.
// It is stateless across invocations; partial progress (the FC Score row)
// lives in the store and is reused on retry.
type Orchestrator struct {
	store       repository.Store
	cfg         config.ScoringConfig
	fcScorer    *fc.Scorer
	traitScorer *traits.Scorer
	calibrator  *calibration.Calibrator
	maxAttempts int
	retryDelay  time.Duration
	now         func() time.Time
	log         logger.Logger
}

// Option applies a configuration option to the Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the orchestrator's time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRetryPolicy overrides the per-stage attempt bound and delay.
func WithRetryPolicy(attempts int, delay time.Duration) Option {
	return func(o *Orchestrator) {
		if attempts > 0 {
			o.maxAttempts = attempts
		}
		if delay >= 0 {
			o.retryDelay = delay
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// New constructs an Orchestrator bound to one scoring configuration.
// The configuration (and with it the calibration table version) is fixed
// for every run this orchestrator performs; config-service swaps only take
// effect through a new orchestrator.
func New(store repository.Store, cfg config.ScoringConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:       store,
		cfg:         cfg,
		fcScorer:    fc.New(store, cfg),
		traitScorer: traits.New(store, cfg),
		calibrator:  calibration.New(store),
		maxAttempts: defaultMaxAttempts,
		retryDelay:  defaultRetryDelay,
		now:         time.Now,
		log:         logger.Get().Named("pipeline"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Config returns the scoring configuration this orchestrator is bound to.
func (o *Orchestrator) Config() config.ScoringConfig { return o.cfg }

// Finalize runs the full pipeline for one session. Re-invoking for a session
// already finalized at the same results_version is a pure no-op returning
// the stored profile. A newer version triggers a fresh pass; the store's
// version-ordering gate decides what persists.
func (o *Orchestrator) Finalize(ctx context.Context, sessionID, fcVersion string) (Result, error) {
	if fcVersion == "" {
		fcVersion = o.cfg.FCVersion
	}
	resultsVersion := o.cfg.ResultsVersion()

	if _, err := o.store.GetSession(ctx, sessionID); err != nil {
		return Result{}, err
	}

	// Idempotent re-entry: same version already finalized means the stored
	// profile is the answer, byte for byte.
	if stored, err := o.store.GetProfile(ctx, sessionID); err == nil {
		if model.CompareResultsVersions(stored.ResultsVersion, resultsVersion) == 0 {
			metrics.RecordFinalization("noop")
			return Result{Profile: stored, Noop: true}, nil
		}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return Result{}, err
	}

	p, err := o.run(ctx, sessionID, fcVersion, resultsVersion, true)
	if err != nil {
		if errors.Is(err, repository.ErrStaleVersion) {
			// Benign: a concurrent newer-version run already won.
			metrics.RecordStaleVersion()
			o.log.Info(ctx, "finalization lost version race",
				logger.String("session", sessionID),
				logger.String("results_version", resultsVersion))
		} else {
			metrics.RecordFinalization("failed")
		}
		return Result{}, err
	}

	if err := o.stage(ctx, StageFinalized, func(ctx context.Context) error {
		return o.store.StampFinalized(ctx, sessionID, o.cfg.EngineVersion, fcVersion)
	}); err != nil {
		return Result{}, err
	}

	metrics.RecordFinalization("success")
	return Result{Profile: p}, nil
}

// Preview computes the would-be profile without persisting anything. The
// batch controller's dry-run mode reports diffs against the stored profile.
func (o *Orchestrator) Preview(ctx context.Context, sessionID, fcVersion string) (model.Profile, error) {
	if fcVersion == "" {
		fcVersion = o.cfg.FCVersion
	}
	return o.run(ctx, sessionID, fcVersion, o.cfg.ResultsVersion(), false)
}

// run executes the scoring stages. With persist set, the FC Score row and
// the profile are written; otherwise everything stays in memory.
func (o *Orchestrator) run(ctx context.Context, sessionID, fcVersion, resultsVersion string, persist bool) (model.Profile, error) {
	var fcScore model.FCScore
	err := o.stage(ctx, StageFcScored, func(ctx context.Context) error {
		// Reuse partial progress: an FC row from an earlier attempt at the
		// same version is already correct, so retries stay cheap.
		if existing, err := o.store.GetFCScore(ctx, sessionID, fcVersion); err == nil {
			fcScore = existing
			return nil
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		var err error
		if persist {
			fcScore, err = o.fcScorer.Score(ctx, sessionID, fcVersion, fc.BasisFunctions)
		} else {
			fcScore, err = o.fcScorer.Compute(ctx, sessionID, fcVersion, fc.BasisFunctions)
		}
		return err
	})
	if err != nil {
		return model.Profile{}, err
	}

	var traitResult traits.Result
	err = o.stage(ctx, StageTraitScored, func(ctx context.Context) error {
		var err error
		traitResult, err = o.traitScorer.Score(ctx, sessionID)
		return err
	})
	if err != nil {
		return model.Profile{}, err
	}

	// Calibration binds one table snapshot for the whole run. A missing
	// table is recovered via raw pass-through, never surfaced as failure.
	var table *calibration.Table
	err = o.stage(ctx, StageCalibrated, func(ctx context.Context) error {
		t, err := o.calibrator.Load(ctx, o.cfg.CalibrationVersion)
		if errors.Is(err, repository.ErrNoCalibration) {
			metrics.RecordCalibrationFallback()
			o.log.Warn(ctx, "no calibration table; falling back to raw scores",
				logger.String("version", o.cfg.CalibrationVersion))
			return nil
		}
		if err != nil {
			return err
		}
		table = t
		return nil
	})
	if err != nil {
		return model.Profile{}, err
	}

	var profile model.Profile
	err = o.stage(ctx, StageAssembled, func(ctx context.Context) error {
		p, err := assemble.Build(o.cfg, assemble.Inputs{
			FC:             fcScore,
			Traits:         traitResult,
			Table:          table,
			ResultsVersion: resultsVersion,
			FinalizedAt:    o.now(),
		})
		if err != nil {
			return err
		}
		if persist {
			if err := o.store.SaveProfile(ctx, p); err != nil {
				return err
			}
		}
		profile = p
		return nil
	})
	if err != nil {
		return model.Profile{}, err
	}
	return profile, nil
}

// stage runs one pipeline stage, retrying transient failures up to the
// attempt bound. Structural errors abort immediately; the stage's already
// committed side effects (e.g. the FC row) are kept for the next attempt.
func (o *Orchestrator) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	start := o.now()
	defer func() {
		metrics.RecordStageLatency(name, float64(time.Since(start).Milliseconds()))
	}()

	var err error
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if isFatal(err) || ctx.Err() != nil {
			return fmt.Errorf("stage %s: %w", name, err)
		}
		if attempt < o.maxAttempts {
			metrics.RecordStageRetry()
			o.log.Warn(ctx, "stage failed; retrying",
				logger.String("stage", name),
				logger.Int("attempt", attempt),
				logger.Error(err))
			select {
			case <-ctx.Done():
				return fmt.Errorf("stage %s: %w", name, ctx.Err())
			case <-time.After(o.retryDelay):
			}
		}
	}
	return fmt.Errorf("stage %s exhausted %d attempts: %w: %w", name, o.maxAttempts, ErrTransient, err)
}

// isFatal reports whether an error is structural: retrying without new
// input cannot succeed.
func isFatal(err error) bool {
	return errors.Is(err, fc.ErrInsufficientData) ||
		errors.Is(err, fc.ErrUnknownBasis) ||
		errors.Is(err, traits.ErrMissingRequiredTags) ||
		errors.Is(err, assemble.ErrNoCandidates) ||
		errors.Is(err, calibration.ErrMalformed) ||
		errors.Is(err, repository.ErrNotFound) ||
		errors.Is(err, repository.ErrStaleVersion)
}
