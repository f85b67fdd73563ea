package service_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/okian/twinpot/internal/adapters/board"
	"github.com/okian/twinpot/internal/adapters/ledger"
	"github.com/okian/twinpot/internal/adapters/persistence"
	service "github.com/okian/twinpot/internal/app"
	"github.com/okian/twinpot/internal/domain/anticheat"
	"github.com/okian/twinpot/internal/domain/model"
	"github.com/okian/twinpot/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	_ = logger.Init()
	os.Exit(m.Run())
}

// testClock is a mutable time source shared by the service and the guard.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// harness bundles the service with the fakes the assertions need.
type harness struct {
	svc     *service.Service
	clock   *testClock
	sim     *ledger.SimLedger
	store   *persistence.MemStore
	boardID uuid.UUID
}

// newHarness starts a service over in-memory ports. The guard tolerates the
// frozen clock unless strictGuard asks for real anti-cheat limits.
func newHarness(strictGuard bool) *harness {
	clock := newTestClock()
	sim := ledger.NewSimLedger(ledger.WithLatencyRange(0, 0))
	store := persistence.NewMemStore()

	boardID := uuid.New()
	pairs := make([]board.Pair, 0, model.PairTarget)
	for i := 0; i < model.PairTarget; i++ {
		id := uuid.New()
		pairs = append(pairs, board.Pair{ID: id, Image1URL: "a", Image2URL: "b"})
	}
	catalog := board.NewCatalog(board.WithBoards(board.Board{
		ID: boardID, Name: "classic", Active: true, Pairs: pairs,
	}))

	guardOpts := []anticheat.Option{anticheat.WithClock(clock.Now)}
	if !strictGuard {
		guardOpts = append(guardOpts, anticheat.WithMaxStrikes(1_000_000))
	}

	svc := service.New(
		service.WithClock(clock.Now),
		service.WithBoardProvider(catalog),
		service.WithLedger(sim),
		service.WithPersistence(store),
		service.WithGuard(anticheat.NewGuard(guardOpts...)),
		service.WithSweepInterval(0),
		service.WithWorkerCount(2),
	)
	if err := svc.Start(context.Background()); err != nil {
		panic(err)
	}
	return &harness{svc: svc, clock: clock, sim: sim, store: store, boardID: boardID}
}

// playAllPairs submits the nine correct moves for a player.
func (h *harness) playAllPairs(ctx context.Context, sessionID uuid.UUID, userID string) (service.MoveResult, error) {
	var last service.MoveResult
	for pair := 0; pair < model.PairTarget; pair++ {
		res, err := h.svc.SubmitMove(ctx, sessionID, userID, pair*2, pair*2+1, 1000)
		if err != nil {
			return service.MoveResult{}, err
		}
		last = res
	}
	return last, nil
}

// eventually polls cond until it holds or the deadline passes.
func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestFreeSession(t *testing.T) {
	ctx := context.Background()

	Convey("Given a running engine", t, func() {
		h := newHarness(false)
		Reset(h.svc.Stop)

		Convey("When creating a free session", func() {
			sess, err := h.svc.CreateFree(ctx, model.PlayerRef{UserID: "alice"}, h.boardID)
			So(err, ShouldBeNil)

			Convey("Then it is active immediately with a full deal", func() {
				So(sess.Mode, ShouldEqual, model.ModeFree)
				So(sess.Status, ShouldEqual, model.StatusActive)
				So(len(sess.Cards), ShouldEqual, model.PairTarget*2)
				So(sess.LayoutHash, ShouldNotBeEmpty)
				So(len(sess.Participants), ShouldEqual, 1)
				So(sess.StartedAt, ShouldNotBeNil)
			})

			Convey("When matching all nine pairs instantly", func() {
				last, err := h.playAllPairs(ctx, sess.ID, "alice")
				So(err, ShouldBeNil)

				Convey("Then the streak multiplier compounds the score", func() {
					So(last.Finished, ShouldBeTrue)
					So(last.RemainingPairs, ShouldEqual, 0)
					So(last.Score, ShouldEqual, 8820)
					So(last.Streak, ShouldEqual, model.PairTarget)
				})

				Convey("Then the session completes and survives in the durable store", func() {
					got, err := h.svc.GetSession(ctx, sess.ID)
					So(err, ShouldBeNil)
					So(got.Status, ShouldEqual, model.StatusCompleted)
					So(got.Participant("alice").Score, ShouldEqual, 8820)
					So(got.Participant("alice").CompletedAt, ShouldNotBeNil)
					So(len(h.store.Moves(sess.ID)), ShouldEqual, model.PairTarget)
				})
			})

			Convey("When submitting an incorrect pair", func() {
				res, err := h.svc.SubmitMove(ctx, sess.ID, "alice", 0, 2, 500)
				So(err, ShouldBeNil)

				Convey("Then the flat penalty applies and the streak resets", func() {
					So(res.Correct, ShouldBeFalse)
					So(res.Points, ShouldEqual, -50)
					So(res.Score, ShouldEqual, -50)
					So(res.Streak, ShouldEqual, 0)
				})
			})

			Convey("When re-matching an already matched pair", func() {
				_, err := h.svc.SubmitMove(ctx, sess.ID, "alice", 0, 1, 500)
				So(err, ShouldBeNil)
				_, err = h.svc.SubmitMove(ctx, sess.ID, "alice", 0, 1, 600)

				Convey("Then the move is rejected", func() {
					So(errors.Is(err, model.ErrAlreadyMatched), ShouldBeTrue)
				})
			})

			Convey("When an incorrect move reuses a matched card", func() {
				_, err := h.svc.SubmitMove(ctx, sess.ID, "alice", 0, 1, 500)
				So(err, ShouldBeNil)

				_, err = h.svc.SubmitMove(ctx, sess.ID, "alice", 1, 4, 600)
				So(errors.Is(err, model.ErrAlreadyMatched), ShouldBeTrue)
				_, err = h.svc.SubmitMove(ctx, sess.ID, "alice", 4, 0, 600)
				So(errors.Is(err, model.ErrAlreadyMatched), ShouldBeTrue)

				Convey("Then the rejected moves leave score and streak untouched", func() {
					res, err := h.svc.SubmitMove(ctx, sess.ID, "alice", 2, 3, 700)
					So(err, ShouldBeNil)
					So(res.Points, ShouldEqual, 770)
					So(res.Streak, ShouldEqual, 2)
					So(res.Score, ShouldEqual, 1470)
				})
			})

			Convey("When submitting malformed cards", func() {
				_, err := h.svc.SubmitMove(ctx, sess.ID, "alice", 3, 3, 500)
				So(errors.Is(err, model.ErrInvalidArgument), ShouldBeTrue)

				_, err = h.svc.SubmitMove(ctx, sess.ID, "alice", 0, model.PairTarget*2, 500)
				So(errors.Is(err, model.ErrInvalidArgument), ShouldBeTrue)

				_, err = h.svc.SubmitMove(ctx, sess.ID, "alice", -1, 1, 500)
				So(errors.Is(err, model.ErrInvalidArgument), ShouldBeTrue)
			})

			Convey("When a stranger submits a move", func() {
				_, err := h.svc.SubmitMove(ctx, sess.ID, "mallory", 0, 1, 500)
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			})

			Convey("When the time budget runs out", func() {
				h.clock.Advance(61 * time.Second)
				res, err := h.svc.SubmitMove(ctx, sess.ID, "alice", 0, 1, 61_000)
				So(err, ShouldBeNil)

				Convey("Then the closing move scores without a time bonus and ends the run", func() {
					So(res.Correct, ShouldBeTrue)
					So(res.Points, ShouldEqual, 100)
					So(res.Finished, ShouldBeTrue)

					got, gerr := h.svc.GetSession(ctx, sess.ID)
					So(gerr, ShouldBeNil)
					So(got.Status, ShouldEqual, model.StatusCompleted)
				})

				Convey("Then further moves are rejected", func() {
					_, merr := h.svc.SubmitMove(ctx, sess.ID, "alice", 2, 3, 62_000)
					So(errors.Is(merr, model.ErrInvalidState), ShouldBeTrue)
				})
			})

			Convey("When the time budget runs out on an incorrect pair", func() {
				h.clock.Advance(61 * time.Second)
				res, err := h.svc.SubmitMove(ctx, sess.ID, "alice", 0, 2, 61_000)
				So(err, ShouldBeNil)

				Convey("Then the flat penalty still applies and the run ends", func() {
					So(res.Correct, ShouldBeFalse)
					So(res.Points, ShouldEqual, -50)
					So(res.Finished, ShouldBeTrue)
				})
			})
		})

		Convey("When creating with an unknown board", func() {
			_, err := h.svc.CreateFree(ctx, model.PlayerRef{UserID: "alice"}, uuid.New())
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})

		Convey("When creating without a user", func() {
			_, err := h.svc.CreateFree(ctx, model.PlayerRef{}, h.boardID)
			So(errors.Is(err, model.ErrInvalidArgument), ShouldBeTrue)
		})
	})
}

func TestStakedSession(t *testing.T) {
	ctx := context.Background()
	alice := model.PlayerRef{UserID: "alice", Wallet: "wallet-a"}
	bob := model.PlayerRef{UserID: "bob", Wallet: "wallet-b"}

	Convey("Given a running engine", t, func() {
		h := newHarness(false)
		Reset(h.svc.Stop)

		Convey("When opening a staked session", func() {
			sess, err := h.svc.CreatePaid(ctx, alice, h.boardID, model.Coins(10))
			So(err, ShouldBeNil)

			Convey("Then it waits for a joiner with escrow open", func() {
				So(sess.Status, ShouldEqual, model.StatusWaiting)
				So(sess.EscrowAddress, ShouldStartWith, "EQ")
				So(sess.JoinDeadline, ShouldNotBeNil)
				So(sess.JoinDeadline.Sub(sess.CreatedAt), ShouldEqual, 10*time.Minute)
			})

			Convey("Then it shows up in the lobby list", func() {
				lobbies := h.svc.ListWaitingSessions(ctx, 0, 10)
				So(len(lobbies), ShouldEqual, 1)
				So(lobbies[0].ID, ShouldEqual, sess.ID)
			})

			Convey("Then moves are rejected before a joiner arrives", func() {
				_, err := h.svc.SubmitMove(ctx, sess.ID, "alice", 0, 1, 100)
				So(errors.Is(err, model.ErrInvalidState), ShouldBeTrue)
			})

			Convey("When the second player joins", func() {
				joined, err := h.svc.Join(ctx, sess.ID, bob)
				So(err, ShouldBeNil)

				Convey("Then the session activates with both clocks started", func() {
					So(joined.Status, ShouldEqual, model.StatusActive)
					So(len(joined.Participants), ShouldEqual, 2)
					So(joined.StartedAt, ShouldNotBeNil)
					So(joined.Participant("bob").Role, ShouldEqual, model.RoleJoiner)
				})

				Convey("Then a third join attempt fails", func() {
					_, err := h.svc.Join(ctx, sess.ID, model.PlayerRef{UserID: "carol", Wallet: "wallet-c"})
					So(errors.Is(err, model.ErrInvalidState), ShouldBeTrue)
				})

				Convey("When both players finish", func() {
					_, err := h.playAllPairs(ctx, sess.ID, "alice")
					So(err, ShouldBeNil)

					_, err = h.svc.SubmitMove(ctx, sess.ID, "bob", 0, 2, 700)
					So(err, ShouldBeNil)
					out, err := h.svc.Complete(ctx, sess.ID, "bob")
					So(err, ShouldBeNil)

					Convey("Then the pot settles with exact fee splits", func() {
						So(out.Settled, ShouldBeTrue)
						So(out.Plan, ShouldNotBeNil)
						So(out.Plan.WinnerUserID, ShouldEqual, "alice")
						So(out.Plan.Pot, ShouldEqual, model.Coins(20))
						So(out.Plan.PlatformFee, ShouldEqual, model.Coins(3))
						So(out.Plan.AffiliateFee, ShouldEqual, model.Amount(600_000_000))
						So(out.Plan.WinnerPayout, ShouldEqual, model.Amount(16_400_000_000))
						So(h.sim.PayoutCalls(), ShouldEqual, 1)
					})

					Convey("Then participants carry the outcome", func() {
						got, err := h.svc.GetSession(ctx, sess.ID)
						So(err, ShouldBeNil)
						So(got.Status, ShouldEqual, model.StatusSettled)
						So(*got.Participant("alice").Winner, ShouldBeTrue)
						So(*got.Participant("alice").Payout, ShouldEqual, model.Amount(16_400_000_000))
						So(*got.Participant("bob").Winner, ShouldBeFalse)
						So(got.Participant("bob").Payout, ShouldBeNil)
					})

					Convey("Then completing again replays the result without another payout", func() {
						again, err := h.svc.Complete(ctx, sess.ID, "bob")
						So(err, ShouldBeNil)
						So(again.Settled, ShouldBeTrue)
						So(again.Plan, ShouldNotBeNil)
						So(again.Plan.WinnerUserID, ShouldEqual, "alice")
						So(h.sim.PayoutCalls(), ShouldEqual, 1)
					})

					Convey("Then stake and payout transactions are on record", func() {
						txs := h.store.Transactions(sess.ID)
						var stakes, payouts int
						for _, tx := range txs {
							switch tx.Type {
							case persistence.TxStake:
								stakes++
							case persistence.TxPayout:
								payouts++
								So(tx.Amount, ShouldEqual, model.Amount(16_400_000_000))
							}
						}
						So(stakes, ShouldEqual, 2)
						So(payouts, ShouldEqual, 1)
					})

					Convey("Then the winner tops the leaderboard", func() {
						entries, err := h.svc.Leaderboard(ctx, 10)
						So(err, ShouldBeNil)
						So(len(entries), ShouldEqual, 1)
						So(entries[0].UserID, ShouldEqual, "alice")
						So(entries[0].TotalWinnings, ShouldEqual, model.Amount(16_400_000_000))
					})
				})

				Convey("When the winner was referred by an affiliate", func() {
					So(h.svc.RegisterAffiliate(ctx, "ref-1", "alice"), ShouldBeNil)

					_, err := h.playAllPairs(ctx, sess.ID, "alice")
					So(err, ShouldBeNil)
					out, err := h.svc.Complete(ctx, sess.ID, "bob")
					So(err, ShouldBeNil)

					Convey("Then the affiliate fee accrues to the referrer", func() {
						So(out.Plan.ReferrerID, ShouldEqual, "ref-1")
						So(h.store.LinkEarnings("ref-1"), ShouldEqual, model.Amount(600_000_000))
					})
				})
			})

			Convey("When two players race to join", func() {
				var wg sync.WaitGroup
				results := make([]error, 2)
				players := []model.PlayerRef{bob, {UserID: "carol", Wallet: "wallet-c"}}
				for i := range players {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						_, results[i] = h.svc.Join(ctx, sess.ID, players[i])
					}(i)
				}
				wg.Wait()

				Convey("Then exactly one admission succeeds", func() {
					var successes int
					for _, err := range results {
						if err == nil {
							successes++
						} else {
							So(errors.Is(err, model.ErrInvalidState), ShouldBeTrue)
						}
					}
					So(successes, ShouldEqual, 1)

					got, err := h.svc.GetSession(ctx, sess.ID)
					So(err, ShouldBeNil)
					So(len(got.Participants), ShouldEqual, 2)
					So(got.Status, ShouldEqual, model.StatusActive)
				})
			})
		})

		Convey("When opening with a non-positive stake", func() {
			_, err := h.svc.CreatePaid(ctx, alice, h.boardID, 0)
			So(errors.Is(err, model.ErrInvalidArgument), ShouldBeTrue)
		})

		Convey("When opening without a wallet", func() {
			_, err := h.svc.CreatePaid(ctx, model.PlayerRef{UserID: "alice"}, h.boardID, model.Coins(1))
			So(errors.Is(err, model.ErrInvalidArgument), ShouldBeTrue)
		})
	})
}

func TestExpirySweep(t *testing.T) {
	ctx := context.Background()
	alice := model.PlayerRef{UserID: "alice", Wallet: "wallet-a"}

	Convey("Given a waiting staked session", t, func() {
		h := newHarness(false)
		Reset(h.svc.Stop)

		sess, err := h.svc.CreatePaid(ctx, alice, h.boardID, model.Coins(10))
		So(err, ShouldBeNil)

		Convey("When the deadline has not passed", func() {
			n, err := h.svc.SweepExpired(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)
		})

		Convey("When the join deadline passes", func() {
			h.clock.Advance(11 * time.Minute)

			n, err := h.svc.SweepExpired(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)

			Convey("Then the session is cancelled durably", func() {
				got, err := h.svc.GetSession(ctx, sess.ID)
				So(err, ShouldBeNil)
				So(got.Status, ShouldEqual, model.StatusCancelled)
			})

			Convey("Then the initiator's stake is refunded exactly once", func() {
				So(eventually(func() bool { return h.sim.RefundCalls() == 1 }), ShouldBeTrue)
				amount, ok := h.sim.RefundFor(sess.ID)
				So(ok, ShouldBeTrue)
				So(amount, ShouldEqual, model.Coins(10))

				n, err := h.svc.SweepExpired(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
				So(h.sim.RefundCalls(), ShouldEqual, 1)
			})

			Convey("Then a late joiner is turned away", func() {
				_, err := h.svc.Join(ctx, sess.ID, model.PlayerRef{UserID: "bob", Wallet: "wallet-b"})
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestAntiCheatIntegration(t *testing.T) {
	ctx := context.Background()

	Convey("Given an engine with strict anti-cheat limits", t, func() {
		h := newHarness(true)
		Reset(h.svc.Stop)

		sess, err := h.svc.CreateFree(ctx, model.PlayerRef{UserID: "bot"}, h.boardID)
		So(err, ShouldBeNil)

		Convey("When moves arrive with no gap at all", func() {
			_, err := h.svc.SubmitMove(ctx, sess.ID, "bot", 0, 1, 10)
			So(err, ShouldBeNil)
			_, err = h.svc.SubmitMove(ctx, sess.ID, "bot", 2, 3, 20) // strike 1
			So(err, ShouldBeNil)
			_, err = h.svc.SubmitMove(ctx, sess.ID, "bot", 4, 5, 30) // strike 2
			So(err, ShouldBeNil)
			_, err = h.svc.SubmitMove(ctx, sess.ID, "bot", 6, 7, 40) // strike 3

			Convey("Then the fourth rapid move is rejected permanently", func() {
				So(errors.Is(err, model.ErrAntiCheat), ShouldBeTrue)

				h.clock.Advance(5 * time.Second)
				_, err = h.svc.SubmitMove(ctx, sess.ID, "bot", 6, 7, 5000)
				So(errors.Is(err, model.ErrAntiCheat), ShouldBeTrue)
			})
		})

		Convey("When a stranger spams rapid moves", func() {
			Convey("Then every attempt fails on enrollment, never on strikes", func() {
				for i := 0; i < 5; i++ {
					_, err := h.svc.SubmitMove(ctx, sess.ID, "mallory", 0, 1, 10)
					So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
					So(errors.Is(err, model.ErrAntiCheat), ShouldBeFalse)
				}
			})
		})
	})
}

func TestSettlementRetryRace(t *testing.T) {
	ctx := context.Background()
	alice := model.PlayerRef{UserID: "alice", Wallet: "wallet-a"}
	bob := model.PlayerRef{UserID: "bob", Wallet: "wallet-b"}

	Convey("Given a session stuck in settling after a ledger outage", t, func() {
		h := newHarness(false)
		Reset(h.svc.Stop)

		sess, err := h.svc.CreatePaid(ctx, alice, h.boardID, model.Coins(10))
		So(err, ShouldBeNil)
		_, err = h.svc.Join(ctx, sess.ID, bob)
		So(err, ShouldBeNil)
		_, err = h.playAllPairs(ctx, sess.ID, "alice")
		So(err, ShouldBeNil)

		h.sim.SetFailPayouts(true)
		_, err = h.svc.Complete(ctx, sess.ID, "bob")
		So(errors.Is(err, model.ErrSettlement), ShouldBeTrue)

		got, err := h.svc.GetSession(ctx, sess.ID)
		So(err, ShouldBeNil)
		So(got.Status, ShouldEqual, model.StatusSettling)

		Convey("When the ledger recovers and both players retry at once", func() {
			h.sim.SetFailPayouts(false)

			var wg sync.WaitGroup
			outs := make([]service.Outcome, 2)
			errs := make([]error, 2)
			for i, user := range []string{"alice", "bob"} {
				wg.Add(1)
				go func(i int, user string) {
					defer wg.Done()
					outs[i], errs[i] = h.svc.Complete(ctx, sess.ID, user)
				}(i, user)
			}
			wg.Wait()

			Convey("Then the payout and its record land exactly once", func() {
				for i := range errs {
					So(errs[i], ShouldBeNil)
					So(outs[i].Settled, ShouldBeTrue)
				}
				So(h.sim.PayoutCalls(), ShouldEqual, 1)

				var payouts int
				for _, tx := range h.store.Transactions(sess.ID) {
					if tx.Type == persistence.TxPayout {
						payouts++
					}
				}
				So(payouts, ShouldEqual, 1)

				settled, err := h.svc.GetSession(ctx, sess.ID)
				So(err, ShouldBeNil)
				So(settled.Status, ShouldEqual, model.StatusSettled)
			})
		})
	})
}

func TestLobbyPaging(t *testing.T) {
	ctx := context.Background()

	Convey("Given several waiting sessions", t, func() {
		h := newHarness(false)
		Reset(h.svc.Stop)

		var ids []uuid.UUID
		for i := 0; i < 5; i++ {
			p := model.PlayerRef{UserID: fmt.Sprintf("user-%d", i), Wallet: "wallet"}
			sess, err := h.svc.CreatePaid(ctx, p, h.boardID, model.Coins(1))
			So(err, ShouldBeNil)
			ids = append(ids, sess.ID)
			h.clock.Advance(time.Second)
		}

		Convey("Then paging walks oldest first", func() {
			page := h.svc.ListWaitingSessions(ctx, 0, 2)
			So(len(page), ShouldEqual, 2)
			So(page[0].ID, ShouldEqual, ids[0])
			So(page[1].ID, ShouldEqual, ids[1])

			next := h.svc.ListWaitingSessions(ctx, 2, 2)
			So(len(next), ShouldEqual, 2)
			So(next[0].ID, ShouldEqual, ids[2])

			tail := h.svc.ListWaitingSessions(ctx, 4, 10)
			So(len(tail), ShouldEqual, 1)

			So(h.svc.ListWaitingSessions(ctx, 99, 10), ShouldBeEmpty)
		})
	})
}
