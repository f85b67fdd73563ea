// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/okian/twinpot/internal/adapters/persistence"
	service "github.com/okian/twinpot/internal/app"
	"github.com/okian/twinpot/internal/domain/model"
)

// Engine bundles the coordinator operations the handlers need. Using an
// interface bundle keeps the handler layer loosely coupled to the app wiring.
type Engine interface {
	CreateFree(ctx context.Context, player model.PlayerRef, boardID uuid.UUID) (model.Session, error)
	CreatePaid(ctx context.Context, player model.PlayerRef, boardID uuid.UUID, stake model.Amount) (model.Session, error)
	Join(ctx context.Context, sessionID uuid.UUID, player model.PlayerRef) (model.Session, error)
	SubmitMove(ctx context.Context, sessionID uuid.UUID, userID string, card1, card2 int, clientElapsedMs int64) (service.MoveResult, error)
	Complete(ctx context.Context, sessionID uuid.UUID, userID string) (service.Outcome, error)
	GetSession(ctx context.Context, sessionID uuid.UUID) (model.Session, error)
	ListWaitingSessions(ctx context.Context, skip, take int) []model.Session
	Leaderboard(ctx context.Context, n int) ([]persistence.LeaderboardEntry, error)
	RegisterAffiliate(ctx context.Context, referrerID, referredUserID string) error
}

// Subscriber provides per-session event streams for the SSE endpoint.
type Subscriber interface {
	Subscribe(sessionID uuid.UUID) (<-chan model.Event, func())
}

// Server wires HTTP routes for the game API.
type Server struct {
	sessionsHandler    *SessionsHandler
	movesHandler       *MovesHandler
	eventsHandler      *EventsHandler
	leaderboardHandler *LeaderboardHandler
	affiliatesHandler  *AffiliatesHandler
	healthHandler      *HealthHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(engine Engine, subs Subscriber) *Server {
	return &Server{
		sessionsHandler:    NewSessionsHandler(engine),
		movesHandler:       NewMovesHandler(engine),
		eventsHandler:      NewEventsHandler(subs),
		leaderboardHandler: NewLeaderboardHandler(engine),
		affiliatesHandler:  NewAffiliatesHandler(engine),
		healthHandler:      NewHealthHandler(),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("POST /sessions/free", MetricsMiddleware(s.sessionsHandler.HandleCreateFree, "create_free"))
	mux.HandleFunc("POST /sessions/staked", MetricsMiddleware(s.sessionsHandler.HandleCreateStaked, "create_staked"))
	mux.HandleFunc("POST /sessions/{id}/join", MetricsMiddleware(s.sessionsHandler.HandleJoin, "join"))
	mux.HandleFunc("GET /sessions/{id}", MetricsMiddleware(s.sessionsHandler.HandleGetSession, "get_session"))
	mux.HandleFunc("GET /sessions/{id}/events", s.eventsHandler.HandleStream)
	mux.HandleFunc("POST /sessions/{id}/moves", MetricsMiddleware(s.movesHandler.HandleSubmitMove, "submit_move"))
	mux.HandleFunc("POST /sessions/{id}/complete", MetricsMiddleware(s.movesHandler.HandleComplete, "complete"))
	mux.HandleFunc("GET /lobbies", MetricsMiddleware(s.sessionsHandler.HandleListLobbies, "lobbies"))
	mux.HandleFunc("GET /leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("POST /affiliates", MetricsMiddleware(s.affiliatesHandler.HandleRegister, "affiliates"))
}

// participantView mirrors the participant shape returned by session reads.
type participantView struct {
	UserID      string     `json:"user_id"`
	Wallet      string     `json:"wallet,omitempty"`
	Role        string     `json:"role"`
	Score       int        `json:"score"`
	Winner      *bool      `json:"winner,omitempty"`
	Payout      *float64   `json:"payout,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// sessionView mirrors the session shape returned by the API.
type sessionView struct {
	ID            string            `json:"id"`
	Mode          string            `json:"mode"`
	Stake         float64           `json:"stake"`
	BoardID       string            `json:"board_id"`
	LayoutHash    string            `json:"layout_hash"`
	EscrowAddress string            `json:"escrow_address,omitempty"`
	Status        string            `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	StartedAt     *time.Time        `json:"started_at,omitempty"`
	JoinDeadline  *time.Time        `json:"join_deadline,omitempty"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	Participants  []participantView `json:"participants"`
	Cards         []model.Card      `json:"cards"`
}

func toSessionView(s model.Session) sessionView {
	v := sessionView{
		ID:            s.ID.String(),
		Mode:          string(s.Mode),
		Stake:         s.Stake.Float(),
		BoardID:       s.BoardID.String(),
		LayoutHash:    s.LayoutHash,
		EscrowAddress: s.EscrowAddress,
		Status:        string(s.Status),
		CreatedAt:     s.CreatedAt,
		StartedAt:     s.StartedAt,
		JoinDeadline:  s.JoinDeadline,
		CompletedAt:   s.CompletedAt,
		Participants:  make([]participantView, 0, len(s.Participants)),
		Cards:         s.Cards,
	}
	for _, p := range s.Participants {
		pv := participantView{
			UserID:      p.UserID,
			Wallet:      p.Wallet,
			Role:        string(p.Role),
			Score:       p.Score,
			Winner:      p.Winner,
			CompletedAt: p.CompletedAt,
		}
		if p.Payout != nil {
			amt := p.Payout.Float()
			pv.Payout = &amt
		}
		v.Participants = append(v.Participants, pv)
	}
	return v
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError translates domain sentinels to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, model.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "invalid_argument", err)
	case errors.Is(err, model.ErrAlreadyMatched):
		writeError(w, http.StatusConflict, "already_matched", err)
	case errors.Is(err, model.ErrInvalidState):
		writeError(w, http.StatusConflict, "invalid_state", err)
	case errors.Is(err, model.ErrAntiCheat):
		writeError(w, http.StatusForbidden, "anticheat", err)
	case errors.Is(err, model.ErrSettlement):
		writeError(w, http.StatusBadGateway, "settlement_failed", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal", err)
	}
}

// pathSessionID parses the {id} path segment.
func pathSessionID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, ErrBadRequest
	}
	return id, nil
}
