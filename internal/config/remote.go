package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// remoteScoring mirrors the JSON body served by the config service. All
// fields are pointers so absent keys leave the layered value alone.
type remoteScoring struct {
	EngineVersion        *string    `json:"engine_version"`
	FCVersion            *string    `json:"fc_version"`
	CalibrationVersion   *string    `json:"calibration_version"`
	RequiredQuestionTags *[]string  `json:"required_question_tags"`
	DimThresholds        *[]float64 `json:"dim_thresholds"`
	NeuroMean            *float64   `json:"neuro_mean"`
	NeuroSD              *float64   `json:"neuro_sd"`
	FCExpectedMin        *int       `json:"fc_expected_min"`
	GateStrictMode       *bool      `json:"gate_strict_mode"`
	CloseCallThreshold   *float64   `json:"close_call_threshold"`
	OverlayLowZ          *float64   `json:"overlay_low_z"`
	OverlayHighZ         *float64   `json:"overlay_high_z"`
}

func fetchRemoteScoring(ctx context.Context, url string, timeoutMS int) (*remoteScoring, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMS)*time.Millisecond)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemoteFetch, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemoteFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrRemoteFetch, resp.StatusCode)
	}

	var remote remoteScoring
	if err := json.NewDecoder(resp.Body).Decode(&remote); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemoteFetch, err)
	}
	return &remote, nil
}

func applyRemoteScoring(s *ScoringConfig, r *remoteScoring) {
	if r.EngineVersion != nil {
		s.EngineVersion = *r.EngineVersion
	}
	if r.FCVersion != nil {
		s.FCVersion = *r.FCVersion
	}
	if r.CalibrationVersion != nil {
		s.CalibrationVersion = *r.CalibrationVersion
	}
	if r.RequiredQuestionTags != nil {
		s.RequiredQuestionTags = *r.RequiredQuestionTags
	}
	if r.DimThresholds != nil && len(*r.DimThresholds) == 3 {
		s.DimThresholds = *r.DimThresholds
	}
	if r.NeuroMean != nil {
		s.NeuroMean = *r.NeuroMean
	}
	if r.NeuroSD != nil && *r.NeuroSD > 0 {
		s.NeuroSD = *r.NeuroSD
	}
	if r.FCExpectedMin != nil && *r.FCExpectedMin > 0 {
		s.FCExpectedMin = *r.FCExpectedMin
	}
	if r.GateStrictMode != nil {
		s.GateStrictMode = *r.GateStrictMode
	}
	if r.CloseCallThreshold != nil {
		s.CloseCallThreshold = *r.CloseCallThreshold
	}
	if r.OverlayLowZ != nil {
		s.OverlayLowZ = *r.OverlayLowZ
	}
	if r.OverlayHighZ != nil {
		s.OverlayHighZ = *r.OverlayHighZ
	}
}
