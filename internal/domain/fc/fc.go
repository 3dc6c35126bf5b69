// Package fc converts forced-choice block answers into per-function scores.
package fc

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/sonder/internal/config"
	"github.com/okian/sonder/internal/domain/model"
)

// Scoring basis flags.
const (
	BasisFunctions = "functions" // points-weighted per-function scores
	BasisBlocks    = "blocks"    // raw block tally per function
)

// Store is the slice of the repository the scorer needs.
type Store interface {
	ListResponses(ctx context.Context, sessionID string, kind model.ResponseKind) ([]model.Response, error)
	UpsertFCScore(ctx context.Context, s model.FCScore) error
}

// Scorer computes and persists forced-choice scores.
type Scorer struct {
	store Store
	cfg   config.ScoringConfig
	now   func() time.Time
}

// New creates a Scorer bound to one scoring configuration.
func New(store Store, cfg config.ScoringConfig) *Scorer {
	return &Scorer{store: store, cfg: cfg, now: time.Now}
}

// Score computes the forced-choice result and upserts the FC Score row for
// (session, version). An existing row for the same version is replaced
// entirely, so re-invocation with identical inputs is idempotent. Returns
// ErrInsufficientData without any side effect when fewer blocks than
// fc_expected_min were answered.
func (s *Scorer) Score(ctx context.Context, sessionID, version, basis string) (model.FCScore, error) {
	sc, err := s.Compute(ctx, sessionID, version, basis)
	if err != nil {
		return model.FCScore{}, err
	}
	if err := s.store.UpsertFCScore(ctx, sc); err != nil {
		return model.FCScore{}, fmt.Errorf("persisting fc score: %w", err)
	}
	return sc, nil
}

// Compute derives the forced-choice result without persisting anything.
// Batch dry-runs use this to report would-be diffs.
func (s *Scorer) Compute(ctx context.Context, sessionID, version, basis string) (model.FCScore, error) {
	if basis == "" {
		basis = BasisFunctions
	}
	if basis != BasisFunctions && basis != BasisBlocks {
		return model.FCScore{}, fmt.Errorf("basis %q: %w", basis, ErrUnknownBasis)
	}

	responses, err := s.store.ListResponses(ctx, sessionID, model.KindForcedChoice)
	if err != nil {
		return model.FCScore{}, fmt.Errorf("reading fc responses: %w", err)
	}

	blocks := map[string]bool{}
	for _, r := range responses {
		blocks[r.BlockID] = true
	}
	if len(blocks) < s.cfg.FCExpectedMin {
		return model.FCScore{}, fmt.Errorf("%d of %d blocks answered: %w",
			len(blocks), s.cfg.FCExpectedMin, ErrInsufficientData)
	}

	return model.FCScore{
		SessionID:      sessionID,
		Version:        version,
		Basis:          basis,
		BlocksAnswered: len(blocks),
		Scores:         tally(responses, basis, len(blocks)),
		ComputedAt:     s.now().UTC(),
	}, nil
}

// tally builds the per-function score map. Every known function appears in
// the map even when unanswered, keeping downstream fit computation total.
func tally(responses []model.Response, basis string, blocksAnswered int) map[string]float64 {
	scores := make(map[string]float64, 8)
	for _, f := range model.Functions() {
		scores[f] = 0
	}
	for _, r := range responses {
		if _, known := scores[r.Tag]; !known {
			continue
		}
		switch basis {
		case BasisBlocks:
			scores[r.Tag]++
		default:
			scores[r.Tag] += r.Value
		}
	}
	if basis == BasisFunctions && blocksAnswered > 0 {
		// Normalize against the leading function: the strongest scores 1.0
		// and the rest become fractions of it, keeping scores comparable
		// across sessions with different block counts.
		max := 0.0
		for _, v := range scores {
			if v > max {
				max = v
			}
		}
		if max > 0 {
			for f, v := range scores {
				scores[f] = v / max
			}
		}
	}
	return scores
}
