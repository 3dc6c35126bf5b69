package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/sonder/internal/adapters/repository"
	"github.com/okian/sonder/internal/domain/model"
	"github.com/okian/sonder/internal/pipeline"
	"github.com/okian/sonder/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type fakeOrch struct {
	mu         sync.Mutex
	finalized  []string
	previewed  []string
	finalizeFn func(id string) (pipeline.Result, error)
	previewFn  func(id string) (model.Profile, error)
}

func (f *fakeOrch) Finalize(_ context.Context, id, _ string) (pipeline.Result, error) {
	f.mu.Lock()
	f.finalized = append(f.finalized, id)
	f.mu.Unlock()
	return f.finalizeFn(id)
}

func (f *fakeOrch) Preview(_ context.Context, id, _ string) (model.Profile, error) {
	f.mu.Lock()
	f.previewed = append(f.previewed, id)
	f.mu.Unlock()
	return f.previewFn(id)
}

type fakeStore struct {
	mu         sync.Mutex
	listIDs    []string
	profiles   map[string]model.Profile
	normalized []string
}

func (f *fakeStore) ListCompletedSessions(_ context.Context, _ time.Time, limit int) ([]string, error) {
	if limit < len(f.listIDs) {
		return f.listIDs[:limit], nil
	}
	return f.listIDs, nil
}

func (f *fakeStore) GetProfile(_ context.Context, id string) (model.Profile, error) {
	p, ok := f.profiles[id]
	if !ok {
		return model.Profile{}, fmt.Errorf("profile %s: %w", id, repository.ErrNotFound)
	}
	return p, nil
}

func (f *fakeStore) NormalizeLikertScale(_ context.Context, id string) (int, error) {
	f.mu.Lock()
	f.normalized = append(f.normalized, id)
	f.mu.Unlock()
	return 0, nil
}

func profileAt(id, version string, finalizedAt time.Time) model.Profile {
	return model.Profile{
		SessionID:      id,
		ResultsVersion: version,
		TypeCode:       "TeNi",
		FinalizedAt:    finalizedAt,
	}
}

// maxInWindow is the throttle conformance check: the densest sliding window
// of the invocation log must stay within the per-minute budget.
func maxInWindow(invocations []time.Time, window time.Duration) int {
	max := 0
	for i := range invocations {
		n := 0
		for j := i; j < len(invocations); j++ {
			if invocations[j].Sub(invocations[i]) < window {
				n++
			}
		}
		if n > max {
			max = n
		}
	}
	return max
}

func TestRunApply(t *testing.T) {
	ctx := context.Background()

	Convey("Given sessions to recompute", t, func() {
		ids := []string{"a", "b", "c", "d"}
		orch := &fakeOrch{
			finalizeFn: func(id string) (pipeline.Result, error) {
				switch id {
				case "b":
					return pipeline.Result{Profile: profileAt(id, "3.1", time.Now()), Noop: true}, nil
				case "c":
					return pipeline.Result{}, fmt.Errorf("write lost: %w", repository.ErrStaleVersion)
				case "d":
					return pipeline.Result{}, errors.New("boom")
				default:
					return pipeline.Result{Profile: profileAt(id, "3.1", time.Now())}, nil
				}
			},
		}
		store := &fakeStore{
			profiles: map[string]model.Profile{"a": profileAt("a", "2.1", time.Now())},
		}
		ctrl := New(store, orch, WithRatePerMin(600))

		Convey("When running in apply mode", func() {
			sum, err := ctrl.Run(ctx, Request{SessionIDs: ids})
			So(err, ShouldBeNil)

			Convey("Then outcomes split by result", func() {
				So(sum.Mode, ShouldEqual, ModeApply)
				So(sum.Scanned, ShouldEqual, 4)
				So(sum.Succeeded, ShouldEqual, 1)
				So(sum.Skipped, ShouldEqual, 2) // noop and stale-version both skip
				So(sum.Failed, ShouldEqual, 1)
				So(sum.Halted, ShouldBeFalse)
			})

			Convey("Then every session was normalized before finalizing", func() {
				So(len(store.normalized), ShouldEqual, 4)
				So(len(orch.finalized), ShouldEqual, 4)
			})

			Convey("Then the audit trail records version transitions", func() {
				byID := map[string]SessionOutcome{}
				for _, s := range sum.Sessions {
					byID[s.SessionID] = s
				}
				So(byID["a"].Outcome, ShouldEqual, OutcomeSucceeded)
				So(byID["a"].FromVersion, ShouldEqual, "2.1")
				So(byID["a"].ToVersion, ShouldEqual, "3.1")
				So(byID["c"].Outcome, ShouldEqual, OutcomeSkipped)
				So(byID["d"].Outcome, ShouldEqual, OutcomeFailed)
			})

			Convey("Then the invocation log satisfies the throttle budget", func() {
				So(len(sum.Invocations), ShouldEqual, 4)
				So(maxInWindow(sum.Invocations, time.Minute), ShouldBeLessThanOrEqualTo, 600)
			})
		})

		Convey("When no explicit ids are given the store list drives the run", func() {
			store.listIDs = []string{"a", "b"}
			sum, err := ctrl.Run(ctx, Request{Limit: 1})
			So(err, ShouldBeNil)
			So(sum.Scanned, ShouldEqual, 1)
		})
	})
}

func TestRunDry(t *testing.T) {
	ctx := context.Background()
	finalizedAt := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	Convey("Given a dry-run over stored profiles", t, func() {
		orch := &fakeOrch{
			previewFn: func(id string) (model.Profile, error) {
				if id == "broken" {
					return model.Profile{}, errors.New("boom")
				}
				// The would-be profile; FinalizedAt differs from storage.
				return profileAt(id, "3.1", finalizedAt.Add(time.Hour)), nil
			},
		}
		store := &fakeStore{profiles: map[string]model.Profile{
			"same":  profileAt("same", "3.1", finalizedAt),
			"drift": profileAt("drift", "2.1", finalizedAt),
		}}
		ctrl := New(store, orch, WithRatePerMin(600))

		Convey("When running", func() {
			sum, err := ctrl.Run(ctx, Request{
				SessionIDs: []string{"same", "drift", "fresh", "broken"},
				DryRun:     true,
			})
			So(err, ShouldBeNil)
			So(sum.Mode, ShouldEqual, ModeDryRun)

			byID := map[string]SessionOutcome{}
			for _, s := range sum.Sessions {
				byID[s.SessionID] = s
			}

			Convey("Then only FinalizedAt drift counts as unchanged", func() {
				So(byID["same"].Outcome, ShouldEqual, OutcomeUnchanged)
			})

			Convey("Then real differences and missing profiles would change", func() {
				So(byID["drift"].Outcome, ShouldEqual, OutcomeWouldChange)
				So(byID["fresh"].Outcome, ShouldEqual, OutcomeWouldChange)
				So(byID["fresh"].Detail, ShouldEqual, "no stored profile")
			})

			Convey("Then preview failures report as failed", func() {
				So(byID["broken"].Outcome, ShouldEqual, OutcomeFailed)
			})

			Convey("Then nothing was finalized or normalized", func() {
				So(orch.finalized, ShouldBeEmpty)
				So(store.normalized, ShouldBeEmpty)
			})
		})
	})
}

func TestThrottleWindow(t *testing.T) {
	ctx := context.Background()

	Convey("Given a cohort larger than the per-window budget", t, func() {
		ids := make([]string, 10)
		for i := range ids {
			ids[i] = fmt.Sprintf("s%02d", i)
		}
		orch := &fakeOrch{
			finalizeFn: func(id string) (pipeline.Result, error) {
				return pipeline.Result{Profile: profileAt(id, "3.1", time.Now())}, nil
			},
		}
		ctrl := New(&fakeStore{}, orch, WithRatePerMin(4), WithMaxInFlight(10))
		// A short window keeps the test fast; the budget math is identical
		// to the per-minute default.
		ctrl.window = 200 * time.Millisecond

		Convey("When running in apply mode", func() {
			sum, err := ctrl.Run(ctx, Request{SessionIDs: ids})
			So(err, ShouldBeNil)
			So(len(sum.Invocations), ShouldEqual, 10)

			Convey("Then no rolling window exceeds the budget", func() {
				// The bucket's initial burst must not stack on top of the
				// refill: at most 4 invocations land in any one window.
				So(maxInWindow(sum.Invocations, ctrl.window), ShouldBeLessThanOrEqualTo, 4)
			})

			Convey("Then admissions past the first burst wait out the window", func() {
				So(sum.Invocations[4].Sub(sum.Invocations[0]), ShouldBeGreaterThanOrEqualTo, ctrl.window)
			})
		})
	})
}

func TestCircuitBreaker(t *testing.T) {
	ctx := context.Background()

	Convey("Given a cohort where every finalization fails", t, func() {
		ids := make([]string, 40)
		for i := range ids {
			ids[i] = fmt.Sprintf("s%02d", i)
		}
		orch := &fakeOrch{
			finalizeFn: func(string) (pipeline.Result, error) {
				return pipeline.Result{}, errors.New("boom")
			},
		}
		ctrl := New(&fakeStore{}, orch,
			WithRatePerMin(6000),
			WithMaxInFlight(1),
			WithBreaker(0.5, 4),
		)

		Convey("When running in apply mode", func() {
			sum, err := ctrl.Run(ctx, Request{SessionIDs: ids})
			So(err, ShouldBeNil)

			Convey("Then the breaker halts the run early", func() {
				So(sum.Halted, ShouldBeTrue)
				So(sum.HaltReason, ShouldContainSubstring, "failure rate")
				So(len(sum.Sessions), ShouldBeLessThan, len(ids))
				So(sum.Failed, ShouldBeGreaterThanOrEqualTo, 4)
			})
		})
	})
}
