package api

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/okian/twinpot/internal/domain/model"
)

// SessionsHandler serves session lifecycle endpoints.
type SessionsHandler struct {
	engine Engine
}

// NewSessionsHandler creates a sessions handler.
func NewSessionsHandler(engine Engine) *SessionsHandler {
	return &SessionsHandler{engine: engine}
}

// createRequest mirrors the request schema for session creation.
type createRequest struct {
	UserID  string  `json:"user_id"`
	Wallet  string  `json:"wallet"`
	BoardID string  `json:"board_id"`
	Stake   float64 `json:"stake"`
}

func (c createRequest) validate(staked bool) error {
	switch {
	case strings.TrimSpace(c.UserID) == "":
		return ErrBadRequest
	case strings.TrimSpace(c.BoardID) == "":
		return ErrBadRequest
	case staked && strings.TrimSpace(c.Wallet) == "":
		return ErrBadRequest
	case staked && c.Stake <= 0:
		return ErrBadRequest
	}
	return nil
}

// stakeAmount converts the request's coin amount to nano units.
func (c createRequest) stakeAmount() model.Amount {
	return model.Amount(math.Round(c.Stake * float64(model.NanosPerCoin)))
}

// HandleCreateFree serves POST /sessions/free.
func (h *SessionsHandler) HandleCreateFree(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err)
		return
	}
	if err := req.validate(false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err)
		return
	}
	boardID, err := uuid.Parse(req.BoardID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_board_id", err)
		return
	}

	sess, err := h.engine.CreateFree(r.Context(), model.PlayerRef{UserID: req.UserID, Wallet: req.Wallet}, boardID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionView(sess))
}

// HandleCreateStaked serves POST /sessions/staked.
func (h *SessionsHandler) HandleCreateStaked(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err)
		return
	}
	if err := req.validate(true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err)
		return
	}
	boardID, err := uuid.Parse(req.BoardID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_board_id", err)
		return
	}

	sess, err := h.engine.CreatePaid(r.Context(), model.PlayerRef{UserID: req.UserID, Wallet: req.Wallet}, boardID, req.stakeAmount())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionView(sess))
}

// joinRequest mirrors the request schema for POST /sessions/{id}/join.
type joinRequest struct {
	UserID string `json:"user_id"`
	Wallet string `json:"wallet"`
}

// HandleJoin serves POST /sessions/{id}/join.
func (h *SessionsHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathSessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_session_id", err)
		return
	}
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err)
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.Wallet) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", ErrBadRequest)
		return
	}

	sess, err := h.engine.Join(r.Context(), sessionID, model.PlayerRef{UserID: req.UserID, Wallet: req.Wallet})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionView(sess))
}

// HandleGetSession serves GET /sessions/{id}.
func (h *SessionsHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathSessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_session_id", err)
		return
	}

	sess, err := h.engine.GetSession(r.Context(), sessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionView(sess))
}

// HandleListLobbies serves GET /lobbies?skip=N&take=M.
func (h *SessionsHandler) HandleListLobbies(w http.ResponseWriter, r *http.Request) {
	skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
	take, _ := strconv.Atoi(r.URL.Query().Get("take"))

	lobbies := h.engine.ListWaitingSessions(r.Context(), skip, take)
	views := make([]sessionView, 0, len(lobbies))
	for _, sess := range lobbies {
		views = append(views, toSessionView(sess))
	}
	writeJSON(w, http.StatusOK, views)
}
