package traits

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/sonder/internal/config"
	"github.com/okian/sonder/internal/domain/model"
)

type fakeStore struct {
	responses []model.Response
}

func (f *fakeStore) ListResponses(_ context.Context, _ string, _ model.ResponseKind) ([]model.Response, error) {
	return f.responses, nil
}

func likert(tag string, values ...float64) []model.Response {
	rs := make([]model.Response, 0, len(values))
	for _, v := range values {
		rs = append(rs, model.Response{
			SessionID: "s1", Kind: model.KindLikert, Tag: tag, Value: v,
		})
	}
	return rs
}

// fullSet answers every required tag.
func fullSet() []model.Response {
	var rs []model.Response
	rs = append(rs, likert("dim:energy", 5, 5, 5)...)
	rs = append(rs, likert("dim:information", 3, 3, 3)...)
	rs = append(rs, likert("dim:decision", 1, 2, 3)...)
	rs = append(rs, likert("dim:structure", 1, 1, 1)...)
	rs = append(rs, likert("trait:neuro", 4, 4, 4)...)
	return rs
}

func TestScore(t *testing.T) {
	cfg := config.FallbackScoring()

	Convey("Given a trait scorer with a complete answer set", t, func() {
		scorer := New(&fakeStore{responses: fullSet()}, cfg)
		res, err := scorer.Score(context.Background(), "s1")
		So(err, ShouldBeNil)

		Convey("Then dimension means rebase onto 0..1 with band labels", func() {
			So(res.DimScores["energy"].Score, ShouldEqual, 1.0)
			So(res.DimScores["energy"].Band, ShouldEqual, "dominant")
			So(res.DimScores["information"].Score, ShouldEqual, 0.5)
			So(res.DimScores["information"].Band, ShouldEqual, "pronounced")
			So(res.DimScores["decision"].Score, ShouldEqual, 0.25)
			So(res.DimScores["decision"].Band, ShouldEqual, "moderate")
			So(res.DimScores["structure"].Score, ShouldEqual, 0.0)
			So(res.DimScores["structure"].Band, ShouldEqual, "faint")
		})

		Convey("Then the neuroticism z-score uses the configured norms", func() {
			So(res.NeuroMean, ShouldEqual, 4.0)
			So(res.NeuroZ, ShouldAlmostEqual, (4.0-3.0)/0.8, 1e-9)
		})

		Convey("Then a high z lands in the high overlay", func() {
			So(res.Overlay, ShouldEqual, OverlayHigh)
		})

		Convey("Then the result is not low-confidence", func() {
			So(res.LowConfidence, ShouldBeFalse)
		})
	})

	Convey("Given overlay cut points", t, func() {
		Convey("When the neuro mean sits at the cohort mean", func() {
			rs := fullSet()[:12]
			rs = append(rs, likert("trait:neuro", 3, 3, 3)...)
			scorer := New(&fakeStore{responses: rs}, cfg)

			res, err := scorer.Score(context.Background(), "s1")
			So(err, ShouldBeNil)
			So(res.NeuroZ, ShouldAlmostEqual, 0, 1e-9)
			So(res.Overlay, ShouldEqual, OverlayNeutral)
		})

		Convey("When the neuro mean sits well below", func() {
			rs := fullSet()[:12]
			rs = append(rs, likert("trait:neuro", 1, 1, 1)...)
			scorer := New(&fakeStore{responses: rs}, cfg)

			res, err := scorer.Score(context.Background(), "s1")
			So(err, ShouldBeNil)
			So(res.Overlay, ShouldEqual, OverlayLow)
		})

		Convey("When a z lands exactly on a cut point it stays neutral", func() {
			lenient := cfg
			lenient.OverlayHighZ = (4.0 - 3.0) / 0.8
			scorer := New(&fakeStore{responses: fullSet()}, lenient)

			res, err := scorer.Score(context.Background(), "s1")
			So(err, ShouldBeNil)
			So(res.Overlay, ShouldEqual, OverlayNeutral)
		})
	})

	Convey("Given a session missing a required tag", t, func() {
		partial := fullSet()[:12] // drops trait:neuro

		Convey("When the gate runs strict", func() {
			scorer := New(&fakeStore{responses: partial}, cfg)

			_, err := scorer.Score(context.Background(), "s1")

			Convey("Then scoring aborts with the missing tags named", func() {
				So(err, ShouldWrap, ErrMissingRequiredTags)
				So(err.Error(), ShouldContainSubstring, "trait:neuro")
			})
		})

		Convey("When the gate runs lenient", func() {
			lenient := cfg
			lenient.GateStrictMode = false
			scorer := New(&fakeStore{responses: partial}, lenient)

			res, err := scorer.Score(context.Background(), "s1")

			Convey("Then scoring proceeds flagged low-confidence", func() {
				So(err, ShouldBeNil)
				So(res.LowConfidence, ShouldBeTrue)
				So(res.Overlay, ShouldEqual, OverlayNeutral)
				So(len(res.DimScores), ShouldEqual, 4)
			})
		})
	})
}
