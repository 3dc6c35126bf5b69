package assemble

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/sonder/internal/config"
	"github.com/okian/sonder/internal/domain/calibration"
	"github.com/okian/sonder/internal/domain/model"
	"github.com/okian/sonder/internal/domain/traits"
)

type anchorSource struct {
	anchors []calibration.Anchor
}

func (a *anchorSource) CalibrationAnchors(_ context.Context, _, _ string) ([]calibration.Anchor, error) {
	return a.anchors, nil
}

func loadTable(t *testing.T) *calibration.Table {
	t.Helper()
	src := &anchorSource{anchors: []calibration.Anchor{
		{Raw: 0.0, Calibrated: 0.0, Band: "low"},
		{Raw: 0.5, Calibrated: 0.6, Band: "moderate"},
		{Raw: 1.0, Calibrated: 1.0, Band: "high"},
	}}
	table, err := calibration.New(src).Load(context.Background(), "1")
	if err != nil {
		t.Fatalf("loading table: %v", err)
	}
	return table
}

// fnScores fills all eight functions at base, overriding selected ones.
func fnScores(overrides map[string]float64) map[string]float64 {
	scores := map[string]float64{}
	for _, f := range model.Functions() {
		scores[f] = 0.1
	}
	for f, v := range overrides {
		scores[f] = v
	}
	return scores
}

func inputs(scores map[string]float64) Inputs {
	return Inputs{
		FC: model.FCScore{
			SessionID: "s1",
			Version:   "2",
			Scores:    scores,
		},
		Traits: traits.Result{
			DimScores:   map[string]model.DimScore{"energy": {Score: 0.8, Band: "dominant"}},
			TraitScores: map[string]float64{"neuro": 3.2},
			Overlay:     traits.OverlayNeutral,
		},
		ResultsVersion: "3.1",
		FinalizedAt:    time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestBuild(t *testing.T) {
	cfg := config.FallbackScoring()

	Convey("Given a dominant Te/Ni score pattern", t, func() {
		in := inputs(fnScores(map[string]float64{"Te": 1.0, "Ni": 0.7}))

		Convey("When building without a calibration table", func() {
			p, err := Build(cfg, in)
			So(err, ShouldBeNil)

			Convey("Then the top type is TeNi with weighted fit", func() {
				So(p.TypeCode, ShouldEqual, "TeNi")
				So(p.BaseFunction, ShouldEqual, "Te")
				So(p.CreativeFunction, ShouldEqual, "Ni")
				So(p.FitRaw, ShouldAlmostEqual, (2.0*1.0+1.0*0.7)/3.0, 1e-9)
			})

			Convey("Then top_gap separates the two leading types", func() {
				// runner-up is NiTe at (2*0.7 + 1*1.0)/3
				So(p.TopGap, ShouldAlmostEqual, 0.9-0.8, 1e-9)
				So(p.CloseCall, ShouldBeFalse)
			})

			Convey("Then raw confidence scales with the gap", func() {
				So(p.ConfidenceRaw, ShouldAlmostEqual, 0.4, 1e-9)
			})

			Convey("Then raw values pass through as calibrated", func() {
				So(p.Source, ShouldEqual, model.SourceUncalibrated)
				So(p.FitCalibrated, ShouldAlmostEqual, p.FitRaw, 1e-9)
				So(p.FitBand, ShouldEqual, "very_high")
				So(p.ConfidenceBand, ShouldEqual, "moderate")
			})

			Convey("Then all sixteen types are ranked and scored", func() {
				So(len(p.TopTypes), ShouldEqual, 16)
				So(len(p.TypeScores), ShouldEqual, 16)
				So(p.TopTypes[0].TypeCode, ShouldEqual, "TeNi")
			})
		})

		Convey("When building with a calibration table", func() {
			in.Table = loadTable(t)
			p, err := Build(cfg, in)
			So(err, ShouldBeNil)

			So(p.Source, ShouldEqual, model.SourceCalibrated)
			So(p.FitCalibrated, ShouldAlmostEqual, 0.6+(0.9-0.5)/0.5*0.4, 1e-9)
			So(p.FitBand, ShouldEqual, "moderate")
		})

		Convey("When building twice from the same inputs", func() {
			p1, err1 := Build(cfg, in)
			p2, err2 := Build(cfg, in)
			So(err1, ShouldBeNil)
			So(err2, ShouldBeNil)
			So(p2, ShouldResemble, p1)
		})
	})

	Convey("Given two types with identical fit and creative scores", t, func() {
		in := inputs(fnScores(map[string]float64{"Te": 1.0, "Fe": 1.0, "Ni": 0.6}))

		p, err := Build(cfg, in)
		So(err, ShouldBeNil)

		Convey("Then the tie breaks on lexicographic type code", func() {
			So(p.TypeCode, ShouldEqual, "FeNi")
			So(p.TopTypes[1].TypeCode, ShouldEqual, "TeNi")
			So(p.TopGap, ShouldAlmostEqual, 0, 1e-9)
		})

		Convey("Then a zero gap is a close call with zero raw confidence", func() {
			So(p.CloseCall, ShouldBeTrue)
			So(p.ConfidenceRaw, ShouldAlmostEqual, 0, 1e-9)
		})
	})

	Convey("Given a low-confidence trait result", t, func() {
		in := inputs(fnScores(map[string]float64{"Te": 1.0, "Ni": 0.7}))
		in.Traits.LowConfidence = true

		p, err := Build(cfg, in)
		So(err, ShouldBeNil)

		Convey("Then raw confidence is halved and the flag carries through", func() {
			So(p.ConfidenceRaw, ShouldAlmostEqual, 0.2, 1e-9)
			So(p.LowConfidence, ShouldBeTrue)
		})
	})
}
