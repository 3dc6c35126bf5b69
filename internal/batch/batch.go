// Package batch applies the finalization pipeline across a bounded,
// throttled set of sessions, producing an auditable run summary.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/okian/sonder/internal/adapters/repository"
	"github.com/okian/sonder/internal/domain/model"
	"github.com/okian/sonder/internal/pipeline"
	"github.com/okian/sonder/pkg/logger"
	"github.com/okian/sonder/pkg/metrics"
)

// Run modes.
const (
	ModeDryRun = "dry_run"
	ModeApply  = "apply"
)

// Per-session outcomes.
const (
	OutcomeSucceeded   = "succeeded"
	OutcomeFailed      = "failed"
	OutcomeSkipped     = "skipped_already_current"
	OutcomeWouldChange = "would_change"
	OutcomeUnchanged   = "unchanged"
)

// Default controller limits.
const (
	defaultRatePerMin  = 60
	defaultMaxInFlight = 4
	defaultFailureRate = 0.25
	defaultMinSample   = 8
	defaultQueryLimit  = 500
	defaultWindow      = time.Minute
)

// Orchestrator is the slice of the pipeline the controller drives.
type Orchestrator interface {
	Finalize(ctx context.Context, sessionID, fcVersion string) (pipeline.Result, error)
	Preview(ctx context.Context, sessionID, fcVersion string) (model.Profile, error)
}

// Store is the slice of the repository the controller needs.
type Store interface {
	ListCompletedSessions(ctx context.Context, since time.Time, limit int) ([]string, error)
	GetProfile(ctx context.Context, sessionID string) (model.Profile, error)
	NormalizeLikertScale(ctx context.Context, sessionID string) (int, error)
}

// Request bounds one recompute run. Either SessionIDs is explicit or the
// controller queries completed sessions since Since, capped by Limit.
type Request struct {
	SessionIDs []string
	Since      time.Time
	Limit      int
	DryRun     bool
	// RatePerMin overrides the controller's throttle for this run; 0 keeps it.
	RatePerMin int
}

// SessionOutcome is one line of the run's audit trail. FromVersion and
// ToVersion identify what changed, which is the rollback record for safe
// retroactive rescoring.
type SessionOutcome struct {
	SessionID   string `json:"session_id"`
	Outcome     string `json:"outcome"`
	Detail      string `json:"detail,omitempty"`
	FromVersion string `json:"from_version,omitempty"`
	ToVersion   string `json:"to_version,omitempty"`
}

// Summary is the auditable artifact of one run.
type Summary struct {
	RunID      string           `json:"run_id"`
	Mode       string           `json:"mode"`
	Scanned    int              `json:"scanned"`
	Succeeded  int              `json:"succeeded"`
	Failed     int              `json:"failed"`
	Skipped    int              `json:"skipped"`
	Halted     bool             `json:"halted"`
	HaltReason string           `json:"halt_reason,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Sessions   []SessionOutcome `json:"sessions"`

	// Invocations timestamps every pipeline invocation. Admission is gated
	// on this log, so no rolling window holds more than the rate budget;
	// it doubles as the conformance audit trail.
	Invocations []time.Time `json:"-"`
}

// Controller schedules sessions through the orchestrator under a
// rolling-window throttle. The throttle is the primary concurrency
// control; the in-flight bound only caps memory.
type Controller struct {
	store       Store
	orch        Orchestrator
	ratePerMin  int
	maxInFlight int
	failureRate float64
	minSample   int
	window      time.Duration
	now         func() time.Time
	log         logger.Logger
}

// New creates a Controller with default limits.
func New(store Store, orch Orchestrator, opts ...Option) *Controller {
	c := &Controller{
		store:       store,
		orch:        orch,
		ratePerMin:  defaultRatePerMin,
		maxInFlight: defaultMaxInFlight,
		failureRate: defaultFailureRate,
		minSample:   defaultMinSample,
		window:      defaultWindow,
		now:         time.Now,
		log:         logger.Get().Named("batch"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes one recompute pass. The run halts (stops scheduling, lets
// in-flight sessions finish) when the failure rate trips the breaker; the
// summary reports the halt instead of silently corrupting the cohort.
func (c *Controller) Run(ctx context.Context, req Request) (Summary, error) {
	ids, err := c.resolveSessions(ctx, req)
	if err != nil {
		return Summary{}, err
	}

	mode := ModeApply
	if req.DryRun {
		mode = ModeDryRun
	}
	metrics.RecordBatchRun(mode)

	ratePerMin := c.ratePerMin
	if req.RatePerMin > 0 {
		ratePerMin = req.RatePerMin
	}
	// Pacing bucket: capacity N with continuous refill. The bucket alone
	// would let the initial burst plus refill pack up to 2N invocations
	// into one window, so admission is additionally gated on the rolling
	// invocation log below.
	limiter := rate.NewLimiter(rate.Limit(float64(ratePerMin)/c.window.Seconds()), ratePerMin)

	run := &runState{
		summary: Summary{
			RunID:     uuid.NewString(),
			Mode:      mode,
			Scanned:   len(ids),
			StartedAt: c.now().UTC(),
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxInFlight)

	for _, id := range ids {
		if run.halted() || gctx.Err() != nil {
			break
		}

		waitStart := c.now()
		if err := limiter.Wait(gctx); err != nil {
			break
		}
		if err := run.admit(gctx, c.now, ratePerMin, c.window); err != nil {
			break
		}
		metrics.RecordThrottleWait(float64(c.now().Sub(waitStart).Milliseconds()))

		id := id
		g.Go(func() error {
			outcome := c.processSession(gctx, id, req.DryRun)
			run.record(outcome)
			metrics.RecordBatchSession(outcome.Outcome)
			c.checkBreaker(gctx, run)
			return nil
		})
	}

	_ = g.Wait()

	run.mu.Lock()
	s := run.summary
	run.mu.Unlock()
	s.FinishedAt = c.now().UTC()

	c.log.Info(ctx, "batch run finished",
		logger.String("run_id", s.RunID),
		logger.String("mode", s.Mode),
		logger.Int("scanned", s.Scanned),
		logger.Int("succeeded", s.Succeeded),
		logger.Int("failed", s.Failed),
		logger.Int("skipped", s.Skipped),
	)
	return s, nil
}

func (c *Controller) resolveSessions(ctx context.Context, req Request) ([]string, error) {
	if len(req.SessionIDs) > 0 {
		return req.SessionIDs, nil
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	ids, err := c.store.ListCompletedSessions(ctx, req.Since, limit)
	if err != nil {
		return nil, fmt.Errorf("resolving session set: %w", err)
	}
	return ids, nil
}

func (c *Controller) processSession(ctx context.Context, id string, dryRun bool) SessionOutcome {
	out := SessionOutcome{SessionID: id}

	if stored, err := c.store.GetProfile(ctx, id); err == nil {
		out.FromVersion = stored.ResultsVersion
	}

	if dryRun {
		return c.preview(ctx, out)
	}

	// Normalization is an idempotent pre-step; a no-op for current data.
	if _, err := c.store.NormalizeLikertScale(ctx, id); err != nil {
		out.Outcome = OutcomeFailed
		out.Detail = err.Error()
		return out
	}

	res, err := c.orch.Finalize(ctx, id, "")
	switch {
	case errors.Is(err, repository.ErrStaleVersion):
		out.Outcome = OutcomeSkipped
		out.Detail = "newer profile already stored"
	case err != nil:
		out.Outcome = OutcomeFailed
		out.Detail = err.Error()
	case res.Noop:
		out.Outcome = OutcomeSkipped
		out.ToVersion = res.Profile.ResultsVersion
	default:
		out.Outcome = OutcomeSucceeded
		out.ToVersion = res.Profile.ResultsVersion
	}
	return out
}

func (c *Controller) preview(ctx context.Context, out SessionOutcome) SessionOutcome {
	p, err := c.orch.Preview(ctx, out.SessionID, "")
	if err != nil {
		out.Outcome = OutcomeFailed
		out.Detail = err.Error()
		return out
	}
	out.ToVersion = p.ResultsVersion

	stored, err := c.store.GetProfile(ctx, out.SessionID)
	if errors.Is(err, repository.ErrNotFound) {
		out.Outcome = OutcomeWouldChange
		out.Detail = "no stored profile"
		return out
	}
	if err != nil {
		out.Outcome = OutcomeFailed
		out.Detail = err.Error()
		return out
	}

	if cmp.Equal(stored, p, cmpopts.IgnoreFields(model.Profile{}, "FinalizedAt")) {
		out.Outcome = OutcomeUnchanged
		return out
	}
	out.Outcome = OutcomeWouldChange
	out.Detail = fmt.Sprintf("type %s->%s fit %.4f->%.4f",
		stored.TypeCode, p.TypeCode, stored.FitCalibrated, p.FitCalibrated)
	return out
}

func (c *Controller) checkBreaker(ctx context.Context, run *runState) {
	run.mu.Lock()
	defer run.mu.Unlock()
	if run.summary.Halted {
		return
	}
	processed := run.summary.Succeeded + run.summary.Failed + run.summary.Skipped
	if processed < c.minSample {
		return
	}
	failRate := float64(run.summary.Failed) / float64(processed)
	if failRate > c.failureRate {
		run.summary.Halted = true
		run.summary.HaltReason = fmt.Sprintf("failure rate %.2f exceeded limit %.2f after %d sessions",
			failRate, c.failureRate, processed)
		metrics.RecordBatchHalt()
		c.log.Error(ctx, "batch halted by circuit breaker",
			logger.String("run_id", run.summary.RunID),
			logger.Float64("failure_rate", failRate))
	}
}

// runState guards the summary across worker goroutines.
type runState struct {
	mu      sync.Mutex
	summary Summary
}

func (r *runState) record(out SessionOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary.Sessions = append(r.summary.Sessions, out)
	switch out.Outcome {
	case OutcomeSucceeded, OutcomeWouldChange, OutcomeUnchanged:
		r.summary.Succeeded++
	case OutcomeFailed:
		r.summary.Failed++
	default:
		r.summary.Skipped++
	}
}

// admit blocks until the trailing window has room for one more invocation,
// then records it. Invocations aged past the window stop counting against
// the budget; everything stays in the log for the audit trail.
func (r *runState) admit(ctx context.Context, now func() time.Time, budget int, window time.Duration) error {
	for {
		r.mu.Lock()
		t := now()
		cutoff := t.Add(-window)
		inv := r.summary.Invocations
		aged := 0
		for aged < len(inv) && !inv[aged].After(cutoff) {
			aged++
		}
		if len(inv)-aged < budget {
			r.summary.Invocations = append(inv, t)
			r.mu.Unlock()
			return nil
		}
		wait := inv[aged].Add(window).Sub(t)
		r.mu.Unlock()
		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (r *runState) halted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summary.Halted
}
