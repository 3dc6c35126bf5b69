// Package traits scores Likert responses into dimension strengths, trait
// means and the neuroticism state overlay.
package traits

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/okian/sonder/internal/config"
	"github.com/okian/sonder/internal/domain/model"
)

// Tag prefixes on Likert items.
const (
	dimPrefix   = "dim:"
	traitPrefix = "trait:"
	neuroTrait  = "neuro"
)

// Overlay regulation labels, from the neuroticism z-score band.
const (
	OverlayLow     = "low"
	OverlayNeutral = "neutral"
	OverlayHigh    = "high"
)

// Dimension strength bands, from the three configured cut points.
var dimBands = [4]string{"faint", "moderate", "pronounced", "dominant"}

// Store is the slice of the repository the scorer needs.
type Store interface {
	ListResponses(ctx context.Context, sessionID string, kind model.ResponseKind) ([]model.Response, error)
}

// Result carries everything the trait scorer derives for one session.
type Result struct {
	DimScores     map[string]model.DimScore
	TraitScores   map[string]float64
	NeuroMean     float64
	NeuroZ        float64
	Overlay       string
	LowConfidence bool
}

// Scorer computes dimension and trait scores for a session.
type Scorer struct {
	store Store
	cfg   config.ScoringConfig
}

// New creates a Scorer bound to one scoring configuration.
func New(store Store, cfg config.ScoringConfig) *Scorer {
	return &Scorer{store: store, cfg: cfg}
}

// Score reads the session's Likert responses and derives dimension scores,
// trait means, the neuroticism z-score and the overlay label.
//
// When any required tag is absent the behavior depends on gate_strict_mode:
// strict aborts with ErrMissingRequiredTags; lenient proceeds on partial
// data and flags the result low-confidence.
func (s *Scorer) Score(ctx context.Context, sessionID string) (Result, error) {
	responses, err := s.store.ListResponses(ctx, sessionID, model.KindLikert)
	if err != nil {
		return Result{}, fmt.Errorf("reading likert responses: %w", err)
	}

	byTag := map[string][]float64{}
	for _, r := range responses {
		byTag[r.Tag] = append(byTag[r.Tag], r.Value)
	}

	missing := s.missingTags(byTag)
	if len(missing) > 0 && s.cfg.GateStrictMode {
		return Result{}, fmt.Errorf("tags %s: %w", strings.Join(missing, ","), ErrMissingRequiredTags)
	}

	res := Result{
		DimScores:     map[string]model.DimScore{},
		TraitScores:   map[string]float64{},
		Overlay:       OverlayNeutral,
		LowConfidence: len(missing) > 0,
	}

	for tag, values := range byTag {
		switch {
		case strings.HasPrefix(tag, dimPrefix):
			name := strings.TrimPrefix(tag, dimPrefix)
			score := strength(mean(values))
			res.DimScores[name] = model.DimScore{
				Score: score,
				Band:  s.dimBand(score),
			}
		case strings.HasPrefix(tag, traitPrefix):
			name := strings.TrimPrefix(tag, traitPrefix)
			res.TraitScores[name] = mean(values)
		}
	}

	if m, ok := res.TraitScores[neuroTrait]; ok {
		res.NeuroMean = m
		res.NeuroZ = (m - s.cfg.NeuroMean) / s.cfg.NeuroSD
		res.Overlay = s.overlay(res.NeuroZ)
	}
	return res, nil
}

func (s *Scorer) missingTags(byTag map[string][]float64) []string {
	var missing []string
	for _, tag := range s.cfg.RequiredQuestionTags {
		if _, ok := byTag[tag]; !ok {
			missing = append(missing, tag)
		}
	}
	sort.Strings(missing)
	return missing
}

// dimBand maps a 0..1 strength score onto the four configured bands.
func (s *Scorer) dimBand(score float64) string {
	t := s.cfg.DimThresholds
	switch {
	case score < t[0]:
		return dimBands[0]
	case score < t[1]:
		return dimBands[1]
	case score < t[2]:
		return dimBands[2]
	default:
		return dimBands[3]
	}
}

// overlay is derived purely from the z-score against the configured cut
// points; there is no independent state measurement.
func (s *Scorer) overlay(z float64) string {
	switch {
	case z < s.cfg.OverlayLowZ:
		return OverlayLow
	case z > s.cfg.OverlayHighZ:
		return OverlayHigh
	default:
		return OverlayNeutral
	}
}

// strength rebases a 1..5 Likert mean onto 0..1.
func strength(m float64) float64 {
	v := (m - 1) / 4
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
