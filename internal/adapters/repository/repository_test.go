package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/okian/twinpot/internal/adapters/repository"
	"github.com/okian/twinpot/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func newSession(status model.Status) *model.Session {
	return &model.Session{
		ID:        uuid.New(),
		Mode:      model.ModeStaked,
		Status:    status,
		CreatedAt: time.Now().UTC(),
		Participants: []*model.Participant{
			{UserID: "alice", Wallet: "wallet-a", Role: model.RoleInitiator},
		},
	}
}

func TestMemStore(t *testing.T) {
	ctx := context.Background()

	Convey("Given an empty session store", t, func() {
		store := repository.NewMemStore()

		Convey("Then lookups miss", func() {
			_, err := store.Get(ctx, uuid.New())
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			So(store.Count(ctx), ShouldEqual, 0)
		})

		Convey("When sessions are registered", func() {
			waiting := repository.NewRuntime(newSession(model.StatusWaiting))
			active := repository.NewRuntime(newSession(model.StatusActive))
			store.Put(ctx, waiting)
			store.Put(ctx, active)

			Convey("Then they are retrievable by id", func() {
				got, err := store.Get(ctx, waiting.ID())
				So(err, ShouldBeNil)
				So(got.ID(), ShouldEqual, waiting.ID())
				So(store.Count(ctx), ShouldEqual, 2)
			})

			Convey("Then ByStatus filters on current status", func() {
				found := store.ByStatus(ctx, model.StatusWaiting)
				So(len(found), ShouldEqual, 1)
				So(found[0].ID(), ShouldEqual, waiting.ID())
			})

			Convey("Then Delete removes the session", func() {
				store.Delete(ctx, waiting.ID())
				_, err := store.Get(ctx, waiting.ID())
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
				So(store.Count(ctx), ShouldEqual, 1)
			})
		})
	})

	Convey("Given a store with a single shard", t, func() {
		store := repository.NewMemStore(repository.WithShardCount(1))
		rt := repository.NewRuntime(newSession(model.StatusActive))
		store.Put(ctx, rt)

		Convey("Then it still behaves correctly", func() {
			got, err := store.Get(ctx, rt.ID())
			So(err, ShouldBeNil)
			So(got.ID(), ShouldEqual, rt.ID())
		})
	})
}

func TestRuntime(t *testing.T) {
	Convey("Given a session runtime", t, func() {
		sess := newSession(model.StatusActive)
		rt := repository.NewRuntime(sess)
		start := time.Now().UTC()

		Convey("When a player is started inside the session lock", func() {
			err := rt.WithState(func(st *repository.State) error {
				st.StartPlayer("alice", start)
				return nil
			})
			So(err, ShouldBeNil)

			Convey("Then the player's state is accessible", func() {
				err := rt.WithPlayer("alice", func(p *repository.PlayerState) error {
					So(p.StartedAt, ShouldEqual, start)
					So(p.Score, ShouldEqual, 0)
					So(p.Finished, ShouldBeFalse)
					p.Score = 700
					p.Matched[0] = struct{}{}
					return nil
				})
				So(err, ShouldBeNil)
				So(rt.WithState(func(st *repository.State) error {
					So(st.PlayerScore("alice"), ShouldEqual, 700)
					return nil
				}), ShouldBeNil)
			})

			Convey("Then an unknown player is not found", func() {
				err := rt.WithPlayer("mallory", func(p *repository.PlayerState) error { return nil })
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			})

			Convey("Then concurrent mutation of one player stays consistent", func() {
				var wg sync.WaitGroup
				for i := 0; i < 50; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						_ = rt.WithPlayer("alice", func(p *repository.PlayerState) error {
							p.Score += 10
							return nil
						})
					}()
				}
				wg.Wait()

				_ = rt.WithPlayer("alice", func(p *repository.PlayerState) error {
					So(p.Score, ShouldEqual, 500)
					return nil
				})
			})
		})

		Convey("When taking a snapshot", func() {
			snap := rt.Snapshot()
			snap.Participants[0].Score = 9999
			snap.Status = model.StatusCancelled

			Convey("Then mutating the snapshot does not touch the runtime", func() {
				So(rt.Status(), ShouldEqual, model.StatusActive)
				fresh := rt.Snapshot()
				So(fresh.Participants[0].Score, ShouldEqual, 0)
			})
		})

		Convey("When a state callback fails", func() {
			wantErr := errors.New("boom")
			err := rt.WithState(func(st *repository.State) error { return wantErr })

			Convey("Then the error propagates", func() {
				So(errors.Is(err, wantErr), ShouldBeTrue)
			})
		})
	})
}
