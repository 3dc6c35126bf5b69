package access

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/sonder/internal/adapters/repository"
	"github.com/okian/sonder/internal/domain/model"
	"github.com/okian/sonder/internal/pipeline"
)

const testSecret = "test-secret"

func openStore(t *testing.T) *repository.SQLiteStore {
	t.Helper()
	store, err := repository.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// seedProfile creates a session owned by owner with a stored profile.
func seedProfile(t *testing.T, store *repository.SQLiteStore, owner string) string {
	t.Helper()
	ctx := context.Background()
	sess, err := store.CreateSession(ctx, owner)
	if err != nil {
		t.Fatalf("creating session: %v", err)
	}
	p := model.Profile{
		SessionID:      sess.ID,
		ResultsVersion: "3.1",
		TypeCode:       "TeNi",
		DimScores:      map[string]model.DimScore{},
		TraitScores:    map[string]float64{},
		TopTypes:       []model.TypeFit{},
		TypeScores:     map[string]float64{},
		Source:         model.SourceUncalibrated,
		FinalizedAt:    time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := store.SaveProfile(ctx, p); err != nil {
		t.Fatalf("saving profile: %v", err)
	}
	return sess.ID
}

func TestResults(t *testing.T) {
	ctx := context.Background()

	Convey("Given a finalized session with a profile", t, func() {
		store := openStore(t)
		id := seedProfile(t, store, "owner-1")
		gw := New(store, testSecret, time.Hour)

		Convey("When the owner reads their results", func() {
			env, err := gw.Results(ctx, Request{SessionID: id, OwnerID: "owner-1"})
			So(err, ShouldBeNil)
			So(env.Profile.TypeCode, ShouldEqual, "TeNi")
			So(env.Session.ID, ShouldEqual, id)
		})

		Convey("When a different owner tries", func() {
			_, err := gw.Results(ctx, Request{SessionID: id, OwnerID: "intruder"})
			So(err, ShouldWrap, ErrNotAuthorized)
		})

		Convey("When no credentials are presented", func() {
			_, err := gw.Results(ctx, Request{SessionID: id})
			So(err, ShouldWrap, ErrNotAuthorized)
		})

		Convey("When a share token is issued", func() {
			token, err := gw.IssueShareToken(ctx, id)
			So(err, ShouldBeNil)
			So(token, ShouldNotBeEmpty)

			Convey("Then the token grants access", func() {
				env, err := gw.Results(ctx, Request{SessionID: id, ShareToken: token})
				So(err, ShouldBeNil)
				So(env.Profile.SessionID, ShouldEqual, id)
			})

			Convey("Then rotation revokes it", func() {
				fresh, err := gw.IssueShareToken(ctx, id)
				So(err, ShouldBeNil)

				_, err = gw.Results(ctx, Request{SessionID: id, ShareToken: token})
				So(err, ShouldWrap, ErrInvalidToken)

				env, err := gw.Results(ctx, Request{SessionID: id, ShareToken: fresh})
				So(err, ShouldBeNil)
				So(env.Profile.SessionID, ShouldEqual, id)
			})

			Convey("Then a garbage token is invalid", func() {
				_, err := gw.Results(ctx, Request{SessionID: id, ShareToken: "not-a-jwt"})
				So(err, ShouldWrap, ErrInvalidToken)
			})

			Convey("Then a token signed with another secret is invalid", func() {
				other := New(store, "other-secret", time.Hour)
				forged, err := other.IssueShareToken(ctx, id)
				So(err, ShouldBeNil)
				_, err = gw.Results(ctx, Request{SessionID: id, ShareToken: forged})
				So(err, ShouldWrap, ErrInvalidToken)
			})
		})

		Convey("When the token has expired", func() {
			expired := New(store, testSecret, -time.Minute)
			token, err := expired.IssueShareToken(ctx, id)
			So(err, ShouldBeNil)

			_, err = expired.Results(ctx, Request{SessionID: id, ShareToken: token})
			So(err, ShouldWrap, ErrInvalidToken)
		})
	})

	Convey("Given an unknown session", t, func() {
		store := openStore(t)
		gw := New(store, testSecret, time.Hour)

		Convey("Then the read is indistinguishable from unauthorized", func() {
			_, err := gw.Results(ctx, Request{SessionID: "ghost", OwnerID: "owner-1"})
			So(err, ShouldWrap, ErrNotAuthorized)
		})

		Convey("Then tokens cannot be minted for it", func() {
			_, err := gw.IssueShareToken(ctx, "ghost")
			So(err, ShouldWrap, repository.ErrNotFound)
		})
	})

	Convey("Given a session without a profile yet", t, func() {
		store := openStore(t)
		sess, err := store.CreateSession(ctx, "owner-1")
		So(err, ShouldBeNil)
		gw := New(store, testSecret, time.Hour)

		_, err = gw.Results(ctx, Request{SessionID: sess.ID, OwnerID: "owner-1"})
		So(err, ShouldWrap, ErrNoProfile)
	})
}

func TestClassify(t *testing.T) {
	Convey("Given gateway errors", t, func() {
		Convey("Then each maps to its stable category", func() {
			So(Classify(ErrInvalidToken), ShouldEqual, CategoryInvalidToken)
			So(Classify(ErrNotAuthorized), ShouldEqual, CategoryNotAuth)
			So(Classify(ErrTransient), ShouldEqual, CategoryTransient)
			So(Classify(pipeline.ErrTransient), ShouldEqual, CategoryTransient)
			So(Classify(context.DeadlineExceeded), ShouldEqual, CategoryUnknown)
		})
	})
}
