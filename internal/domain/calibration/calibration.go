// Package calibration maps raw fit/confidence scores to cohort-relative
// values using a fitted anchor table.
package calibration

import (
	"context"
	"fmt"
	"sort"
)

// Metric names for anchor tables.
const (
	MetricFit        = "fit"
	MetricConfidence = "confidence"
)

// Anchor is one fitted point of the raw -> calibrated transform.
type Anchor struct {
	Raw        float64
	Calibrated float64
	Band       string
}

// AnchorSource supplies fitted anchors for a table version. The repository
// implements it; the table itself is read-only to the pipeline and swapped
// by an external calibration job.
type AnchorSource interface {
	CalibrationAnchors(ctx context.Context, version, metric string) ([]Anchor, error)
}

// Result is one calibrated value with its band label.
type Result struct {
	Value float64
	Band  string
}

// Table is a bound snapshot of one calibration version. A session-run loads
// the table once and keeps using that snapshot even if the external job
// swaps the stored anchors mid-run.
type Table struct {
	Version    string
	fit        []Anchor
	confidence []Anchor
}

// Calibrator loads bound tables from an anchor source.
type Calibrator struct {
	src AnchorSource
}

// New creates a Calibrator reading from src.
func New(src AnchorSource) *Calibrator {
	return &Calibrator{src: src}
}

// Load fetches and validates both metric anchor sets for a version. The
// source's not-found error passes through untouched so callers can decide
// on a fallback.
func (c *Calibrator) Load(ctx context.Context, version string) (*Table, error) {
	fit, err := c.src.CalibrationAnchors(ctx, version, MetricFit)
	if err != nil {
		return nil, fmt.Errorf("loading fit anchors: %w", err)
	}
	conf, err := c.src.CalibrationAnchors(ctx, version, MetricConfidence)
	if err != nil {
		return nil, fmt.Errorf("loading confidence anchors: %w", err)
	}
	t := &Table{Version: version, fit: fit, confidence: conf}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// validate enforces the monotonicity invariant: calibrated values must be
// non-decreasing in raw within one table version.
func (t *Table) validate() error {
	for _, anchors := range [][]Anchor{t.fit, t.confidence} {
		if !sort.SliceIsSorted(anchors, func(i, j int) bool { return anchors[i].Raw < anchors[j].Raw }) {
			return fmt.Errorf("version %s: %w", t.Version, ErrMalformed)
		}
		for i := 1; i < len(anchors); i++ {
			if anchors[i].Calibrated < anchors[i-1].Calibrated {
				return fmt.Errorf("version %s: %w", t.Version, ErrMalformed)
			}
		}
	}
	return nil
}

// Fit calibrates a raw fit score.
func (t *Table) Fit(raw float64) Result { return interpolate(t.fit, raw) }

// Confidence calibrates a raw confidence score.
func (t *Table) Confidence(raw float64) Result { return interpolate(t.confidence, raw) }

// interpolate linearly maps raw between the two nearest anchors, clamping
// outside the fitted range. The band comes from the nearest anchor at or
// below raw (the first anchor when raw sits below the range).
func interpolate(anchors []Anchor, raw float64) Result {
	first, last := anchors[0], anchors[len(anchors)-1]
	if raw <= first.Raw {
		return Result{Value: first.Calibrated, Band: first.Band}
	}
	if raw >= last.Raw {
		return Result{Value: last.Calibrated, Band: last.Band}
	}

	hi := sort.Search(len(anchors), func(i int) bool { return anchors[i].Raw >= raw })
	lo := hi - 1
	a, b := anchors[lo], anchors[hi]
	frac := (raw - a.Raw) / (b.Raw - a.Raw)
	return Result{
		Value: a.Calibrated + frac*(b.Calibrated-a.Calibrated),
		Band:  a.Band,
	}
}
