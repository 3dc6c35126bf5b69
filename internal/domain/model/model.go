// Package model contains domain models passed between layers.
package model

import "time"

// SessionStatus tracks the lifecycle of a respondent session.
type SessionStatus string

const (
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
	StatusFinalized  SessionStatus = "finalized"
)

// Session represents one respondent's assessment run.
type Session struct {
	ID            string
	Status        SessionStatus
	OwnerID       string // empty until linked to an account
	ShareTokenID  string // jti of the currently valid share token
	EngineVersion string // stamped at finalization
	FCVersion     string // stamped at finalization
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ResponseKind separates forced-choice block answers from Likert items.
type ResponseKind string

const (
	KindForcedChoice ResponseKind = "fc"
	KindLikert       ResponseKind = "likert"
)

// Response is one stored answer. Insert-only, except for the idempotent
// Likert normalization pass which rebases legacy values in place.
type Response struct {
	SessionID    string
	QuestionID   string
	Kind         ResponseKind
	Tag          string  // e.g. "dim:energy", "trait:neuro", or a function code for FC items
	BlockID      string  // forced-choice block identifier, empty for Likert
	Value        float64 // Likert 1..5 after normalization; FC points
	ScaleVersion int     // 0 = legacy 0-based scale, 1 = normalized
	SubmittedAt  time.Time
}

// FCScore holds the forced-choice result for one (session, version) pair.
// At most one row per pair; upserts replace the row entirely.
type FCScore struct {
	SessionID      string
	Version        string
	Basis          string // "functions" or "blocks"
	BlocksAnswered int
	Scores         map[string]float64 // per-function scores
	ComputedAt     time.Time
}

// DimScore is a scored dimension with its strength band.
type DimScore struct {
	Score float64 `json:"score"`
	Band  string  `json:"band"`
}

// TypeFit pairs a candidate type code with its raw fit.
type TypeFit struct {
	TypeCode string  `json:"type_code"`
	Fit      float64 `json:"fit"`
}

// Calibration source markers for profiles.
const (
	SourceCalibrated   = "calibrated"
	SourceUncalibrated = "uncalibrated"
)

// Profile is the immutable scored output for a session. Exactly one current
// profile per session; a newer results_version supersedes in place.
type Profile struct {
	SessionID        string               `json:"session_id"`
	ResultsVersion   string               `json:"results_version"`
	TypeCode         string               `json:"type_code"`
	BaseFunction     string               `json:"base_function"`
	CreativeFunction string               `json:"creative_function"`
	DimScores        map[string]DimScore  `json:"dim_scores"`
	TraitScores      map[string]float64   `json:"trait_scores"`
	NeuroMean        float64              `json:"neuro_mean"`
	NeuroZ           float64              `json:"neuro_z"`
	Overlay          string               `json:"overlay"` // regulation label from the neuroticism z-score
	FitRaw           float64              `json:"fit_raw"`
	FitCalibrated    float64              `json:"fit_calibrated"`
	FitBand          string               `json:"fit_band"`
	ConfidenceRaw    float64              `json:"confidence_raw"`
	ConfidenceCal    float64              `json:"confidence_calibrated"`
	ConfidenceBand   string               `json:"confidence_band"`
	CloseCall        bool                 `json:"close_call"`
	TopGap           float64              `json:"top_gap"`
	TopTypes         []TypeFit            `json:"top_types"`
	TypeScores       map[string]float64   `json:"type_scores"`
	Source           string               `json:"source"` // calibrated | uncalibrated
	LowConfidence    bool                 `json:"low_confidence"`
	FinalizedAt      time.Time            `json:"finalized_at"`
}
