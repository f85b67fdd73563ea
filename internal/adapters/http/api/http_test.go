package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/okian/twinpot/internal/adapters/board"
	"github.com/okian/twinpot/internal/adapters/http/api"
	"github.com/okian/twinpot/internal/adapters/ledger"
	"github.com/okian/twinpot/internal/adapters/notify"
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

// newTestServer wires the full engine behind an httptest server.
func newTestServer() (*httptest.Server, uuid.UUID, func()) {
	boardID := uuid.New()
	pairs := make([]board.Pair, 0, model.PairTarget)
	for i := 0; i < model.PairTarget; i++ {
		pairs = append(pairs, board.Pair{ID: uuid.New(), Image1URL: "a", Image2URL: "b"})
	}

	broadcaster := notify.NewBroadcaster()
	svc := service.New(
		service.WithBoardProvider(board.NewCatalog(board.WithBoards(board.Board{
			ID: boardID, Name: "classic", Active: true, Pairs: pairs,
		}))),
		service.WithLedger(ledger.NewSimLedger(ledger.WithLatencyRange(0, 0))),
		service.WithPersistence(persistence.NewMemStore()),
		service.WithNotifier(broadcaster),
		service.WithGuard(anticheat.NewGuard(anticheat.WithMaxStrikes(1_000_000))),
		service.WithSweepInterval(0),
	)
	if err := svc.Start(context.Background()); err != nil {
		panic(err)
	}

	mux := http.NewServeMux()
	api.NewServer(svc, broadcaster).Register(context.Background(), mux)
	ts := httptest.NewServer(mux)

	return ts, boardID, func() {
		ts.Close()
		svc.Stop()
	}
}

func postJSON(ts *httptest.Server, path string, body any) (*http.Response, map[string]any) {
	raw, _ := json.Marshal(body)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(raw))
	So(err, ShouldBeNil)
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func getJSON(ts *httptest.Server, path string, out any) *http.Response {
	resp, err := http.Get(ts.URL + path)
	So(err, ShouldBeNil)
	defer resp.Body.Close()
	_ = json.NewDecoder(resp.Body).Decode(out)
	return resp
}

func TestSessionEndpoints(t *testing.T) {
	Convey("Given the API over a live engine", t, func() {
		ts, boardID, teardown := newTestServer()
		Reset(teardown)

		Convey("When creating a free session", func() {
			resp, body := postJSON(ts, "/sessions/free", map[string]any{
				"user_id":  "alice",
				"board_id": boardID.String(),
			})

			Convey("Then the session is returned active", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusCreated)
				So(body["mode"], ShouldEqual, "free")
				So(body["status"], ShouldEqual, "active")
				So(len(body["cards"].([]any)), ShouldEqual, model.PairTarget*2)
			})

			Convey("And it can be fetched back", func() {
				var got map[string]any
				resp := getJSON(ts, "/sessions/"+body["id"].(string), &got)
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(got["id"], ShouldEqual, body["id"])
			})

			Convey("And a move scores", func() {
				resp, move := postJSON(ts, "/sessions/"+body["id"].(string)+"/moves", map[string]any{
					"user_id": "alice", "card1": 0, "card2": 1, "elapsed_ms": 900,
				})
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(move["correct"], ShouldEqual, true)
				So(move["points"].(float64), ShouldBeGreaterThan, 0)
			})

			Convey("And a malformed move is a bad request", func() {
				resp, _ := postJSON(ts, "/sessions/"+body["id"].(string)+"/moves", map[string]any{
					"user_id": "alice", "card1": 3, "card2": 3,
				})
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When creating a staked session and joining it", func() {
			resp, created := postJSON(ts, "/sessions/staked", map[string]any{
				"user_id": "alice", "wallet": "wallet-a",
				"board_id": boardID.String(), "stake": 10.0,
			})
			So(resp.StatusCode, ShouldEqual, http.StatusCreated)
			So(created["status"], ShouldEqual, "waiting")
			So(created["escrow_address"], ShouldNotBeEmpty)
			So(created["stake"], ShouldEqual, 10.0)

			sessionPath := "/sessions/" + created["id"].(string)

			Convey("Then it is listed in the lobby", func() {
				var lobbies []map[string]any
				resp := getJSON(ts, "/lobbies", &lobbies)
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(len(lobbies), ShouldEqual, 1)
			})

			Convey("Then a joiner activates it", func() {
				resp, joined := postJSON(ts, sessionPath+"/join", map[string]any{
					"user_id": "bob", "wallet": "wallet-b",
				})
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(joined["status"], ShouldEqual, "active")
				So(len(joined["participants"].([]any)), ShouldEqual, 2)

				Convey("And joining again conflicts", func() {
					resp, _ := postJSON(ts, sessionPath+"/join", map[string]any{
						"user_id": "carol", "wallet": "wallet-c",
					})
					So(resp.StatusCode, ShouldEqual, http.StatusConflict)
				})

				Convey("And full play settles through the complete endpoint", func() {
					for pair := 0; pair < model.PairTarget; pair++ {
						resp, _ := postJSON(ts, sessionPath+"/moves", map[string]any{
							"user_id": "alice", "card1": pair * 2, "card2": pair*2 + 1, "elapsed_ms": 1000,
						})
						So(resp.StatusCode, ShouldEqual, http.StatusOK)
					}

					resp, completed := postJSON(ts, sessionPath+"/complete", map[string]any{"user_id": "bob"})
					So(resp.StatusCode, ShouldEqual, http.StatusOK)
					So(completed["settled"], ShouldEqual, true)

					settlement := completed["settlement"].(map[string]any)
					So(settlement["winner_user_id"], ShouldEqual, "alice")
					So(settlement["pot"], ShouldEqual, 20.0)
					So(settlement["platform_fee"], ShouldEqual, 3.0)
					So(settlement["affiliate_fee"], ShouldEqual, 0.6)
					So(settlement["winner_payout"], ShouldEqual, 16.4)

					Convey("And the leaderboard reflects the win", func() {
						var entries []map[string]any
						resp := getJSON(ts, "/leaderboard?limit=5", &entries)
						So(resp.StatusCode, ShouldEqual, http.StatusOK)
						So(len(entries), ShouldEqual, 1)
						So(entries[0]["user_id"], ShouldEqual, "alice")
					})
				})
			})
		})

		Convey("When requesting an unknown session", func() {
			var got map[string]any
			resp := getJSON(ts, "/sessions/"+uuid.NewString(), &got)
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
			So(got["code"], ShouldEqual, "not_found")
		})

		Convey("When the session id is not a UUID", func() {
			var got map[string]any
			resp := getJSON(ts, "/sessions/not-a-uuid", &got)
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When creating with missing fields", func() {
			resp, _ := postJSON(ts, "/sessions/free", map[string]any{"board_id": boardID.String()})
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)

			resp, _ = postJSON(ts, "/sessions/staked", map[string]any{
				"user_id": "alice", "wallet": "wallet-a",
				"board_id": boardID.String(), "stake": 0,
			})
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When registering an affiliate link", func() {
			resp, body := postJSON(ts, "/affiliates", map[string]any{
				"referrer_id": "ref-1", "referred_user_id": "alice",
			})
			So(resp.StatusCode, ShouldEqual, http.StatusCreated)
			So(body["status"], ShouldEqual, "registered")

			Convey("And self-referral is rejected", func() {
				resp, _ := postJSON(ts, "/affiliates", map[string]any{
					"referrer_id": "alice", "referred_user_id": "alice",
				})
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When checking health", func() {
			var got map[string]any
			resp := getJSON(ts, "/healthz", &got)
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(got["status"], ShouldEqual, "ok")
		})
	})
}

func TestLeaderboardValidation(t *testing.T) {
	Convey("Given the API", t, func() {
		ts, _, teardown := newTestServer()
		Reset(teardown)

		Convey("Then a bad limit is rejected", func() {
			for _, limit := range []string{"abc", "-1", "0"} {
				var got map[string]any
				resp := getJSON(ts, fmt.Sprintf("/leaderboard?limit=%s", limit), &got)
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			}
		})
	})
}
