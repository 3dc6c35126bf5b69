package fc

import (
	"context"
	"fmt"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/sonder/internal/config"
	"github.com/okian/sonder/internal/domain/model"
)

// fakeStore records upserts and serves canned responses.
type fakeStore struct {
	responses []model.Response
	listErr   error
	upserts   []model.FCScore
}

func (f *fakeStore) ListResponses(_ context.Context, _ string, _ model.ResponseKind) ([]model.Response, error) {
	return f.responses, f.listErr
}

func (f *fakeStore) UpsertFCScore(_ context.Context, s model.FCScore) error {
	f.upserts = append(f.upserts, s)
	return nil
}

// blockResponses builds n forced-choice blocks awarding points to fn.
func blockResponses(n int, fn string, points float64) []model.Response {
	rs := make([]model.Response, 0, n)
	for i := 0; i < n; i++ {
		rs = append(rs, model.Response{
			SessionID:  "s1",
			QuestionID: fmt.Sprintf("q%d", i),
			Kind:       model.KindForcedChoice,
			Tag:        fn,
			BlockID:    fmt.Sprintf("b%d", i),
			Value:      points,
		})
	}
	return rs
}

func TestScorer(t *testing.T) {
	cfg := config.FallbackScoring()
	cfg.FCExpectedMin = 4

	Convey("Given a forced-choice scorer", t, func() {
		Convey("When fewer blocks than the minimum were answered", func() {
			store := &fakeStore{responses: blockResponses(3, "Te", 2)}
			scorer := New(store, cfg)

			_, err := scorer.Score(context.Background(), "s1", "2", BasisFunctions)

			Convey("Then it fails with ErrInsufficientData and stores nothing", func() {
				So(err, ShouldWrap, ErrInsufficientData)
				So(store.upserts, ShouldBeEmpty)
			})
		})

		Convey("When enough blocks were answered", func() {
			responses := append(blockResponses(4, "Te", 2),
				model.Response{SessionID: "s1", QuestionID: "q10", Kind: model.KindForcedChoice,
					Tag: "Ni", BlockID: "b0", Value: 1})
			store := &fakeStore{responses: responses}
			scorer := New(store, cfg)

			sc, err := scorer.Score(context.Background(), "s1", "2", BasisFunctions)
			So(err, ShouldBeNil)

			Convey("Then distinct blocks are counted, not rows", func() {
				So(sc.BlocksAnswered, ShouldEqual, 4)
			})

			Convey("Then scores cover every function and normalize to the leader", func() {
				So(len(sc.Scores), ShouldEqual, 8)
				So(sc.Scores["Te"], ShouldEqual, 1.0)
				So(sc.Scores["Ni"], ShouldEqual, 0.125) // 1 point over 8 leading points
				So(sc.Scores["Fe"], ShouldEqual, 0.0)
			})

			Convey("Then the score row was upserted once", func() {
				So(len(store.upserts), ShouldEqual, 1)
				So(store.upserts[0].Version, ShouldEqual, "2")
			})

			Convey("And re-scoring the same inputs yields the identical result", func() {
				again, err := scorer.Compute(context.Background(), "s1", "2", BasisFunctions)
				So(err, ShouldBeNil)
				So(again.Scores, ShouldResemble, sc.Scores)
				So(again.BlocksAnswered, ShouldEqual, sc.BlocksAnswered)
			})
		})

		Convey("When scoring on the blocks basis", func() {
			store := &fakeStore{responses: blockResponses(5, "Fi", 2)}
			scorer := New(store, cfg)

			sc, err := scorer.Compute(context.Background(), "s1", "2", BasisBlocks)
			So(err, ShouldBeNil)

			Convey("Then raw counts pass through unnormalized", func() {
				So(sc.Scores["Fi"], ShouldEqual, 5.0)
			})
		})

		Convey("When the basis is unknown", func() {
			store := &fakeStore{responses: blockResponses(5, "Fi", 2)}
			scorer := New(store, cfg)

			_, err := scorer.Compute(context.Background(), "s1", "2", "vibes")
			So(err, ShouldWrap, ErrUnknownBasis)
		})

		Convey("When the basis is empty it defaults to functions", func() {
			store := &fakeStore{responses: blockResponses(5, "Fi", 2)}
			scorer := New(store, cfg)

			sc, err := scorer.Compute(context.Background(), "s1", "2", "")
			So(err, ShouldBeNil)
			So(sc.Basis, ShouldEqual, BasisFunctions)
		})
	})
}
