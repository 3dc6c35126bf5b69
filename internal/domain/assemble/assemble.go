// Package assemble merges forced-choice, trait and calibration outputs into
// one immutable profile record.
package assemble

import (
	"fmt"
	"sort"
	"time"

	"github.com/okian/sonder/internal/config"
	"github.com/okian/sonder/internal/domain/calibration"
	"github.com/okian/sonder/internal/domain/model"
	"github.com/okian/sonder/internal/domain/traits"
)

// confGapScale maps top_gap onto the raw 0..1 confidence scale: a gap at or
// above this value means full separation between the top two types.
const confGapScale = 0.25

// lowConfidencePenalty halves confidence for profiles scored on partial data.
const lowConfidencePenalty = 0.5

// Fallback band cuts used when no calibration table is available.
var fallbackBandCuts = []struct {
	below float64
	band  string
}{
	{0.25, "low"},
	{0.5, "moderate"},
	{0.75, "high"},
}

const fallbackTopBand = "very_high"

// Inputs collects everything the assembler merges.
type Inputs struct {
	FC             model.FCScore
	Traits         traits.Result
	Table          *calibration.Table // nil means uncalibrated pass-through
	ResultsVersion string
	FinalizedAt    time.Time
}

// Build computes the profile for one session. It is a pure function: the
// same inputs always produce the same profile, which is what makes repeated
// finalization byte-identical. Persisting (and the version-ordering gate)
// belongs to the store.
func Build(cfg config.ScoringConfig, in Inputs) (model.Profile, error) {
	ranked := rankTypes(cfg, in.FC.Scores)
	if len(ranked) < 2 {
		return model.Profile{}, fmt.Errorf("%d candidate types: %w", len(ranked), ErrNoCandidates)
	}

	top := ranked[0]
	topGap := top.Fit - ranked[1].Fit

	spec, ok := model.TypeByCode(top.TypeCode)
	if !ok {
		return model.Profile{}, fmt.Errorf("type %s: %w", top.TypeCode, ErrNoCandidates)
	}

	confRaw := clamp01(topGap / confGapScale)
	if in.Traits.LowConfidence {
		confRaw *= lowConfidencePenalty
	}

	typeScores := make(map[string]float64, len(ranked))
	for _, t := range ranked {
		typeScores[t.TypeCode] = t.Fit
	}

	p := model.Profile{
		SessionID:        in.FC.SessionID,
		ResultsVersion:   in.ResultsVersion,
		TypeCode:         top.TypeCode,
		BaseFunction:     spec.Base,
		CreativeFunction: spec.Creative,
		DimScores:        in.Traits.DimScores,
		TraitScores:      in.Traits.TraitScores,
		NeuroMean:        in.Traits.NeuroMean,
		NeuroZ:           in.Traits.NeuroZ,
		Overlay:          in.Traits.Overlay,
		FitRaw:           top.Fit,
		ConfidenceRaw:    confRaw,
		CloseCall:        topGap < cfg.CloseCallThreshold,
		TopGap:           topGap,
		TopTypes:         ranked,
		TypeScores:       typeScores,
		LowConfidence:    in.Traits.LowConfidence,
		FinalizedAt:      in.FinalizedAt.UTC(),
	}

	if in.Table != nil {
		fit := in.Table.Fit(top.Fit)
		conf := in.Table.Confidence(confRaw)
		p.FitCalibrated = fit.Value
		p.FitBand = fit.Band
		p.ConfidenceCal = conf.Value
		p.ConfidenceBand = conf.Band
		p.Source = model.SourceCalibrated
	} else {
		// Fail-open: raw values pass through as calibrated so a profile
		// still exists when the table for this version is missing.
		p.FitCalibrated = top.Fit
		p.FitBand = fallbackBand(top.Fit)
		p.ConfidenceCal = confRaw
		p.ConfidenceBand = fallbackBand(confRaw)
		p.Source = model.SourceUncalibrated
	}
	return p, nil
}

// rankTypes orders all candidate types by raw fit descending. Ties break on
// the creative-function score, then lexicographic type code: a total,
// deterministic order is required for idempotent re-assembly.
func rankTypes(cfg config.ScoringConfig, fnScores map[string]float64) []model.TypeFit {
	specs := model.Types()
	ranked := make([]model.TypeFit, 0, len(specs))
	secondary := make(map[string]float64, len(specs))

	weightSum := cfg.BaseWeight + cfg.CreativeWeight
	if weightSum <= 0 {
		weightSum = 1
	}
	for _, t := range specs {
		fit := (cfg.BaseWeight*fnScores[t.Base] + cfg.CreativeWeight*fnScores[t.Creative]) / weightSum
		ranked = append(ranked, model.TypeFit{TypeCode: t.Code, Fit: fit})
		secondary[t.Code] = fnScores[t.Creative]
	}

	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Fit != b.Fit {
			return a.Fit > b.Fit
		}
		if secondary[a.TypeCode] != secondary[b.TypeCode] {
			return secondary[a.TypeCode] > secondary[b.TypeCode]
		}
		return a.TypeCode < b.TypeCode
	})
	return ranked
}

func fallbackBand(v float64) string {
	for _, cut := range fallbackBandCuts {
		if v < cut.below {
			return cut.band
		}
	}
	return fallbackTopBand
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
