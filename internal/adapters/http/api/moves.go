package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// contextWithFloor detaches from the request's cancellation and applies a
// fixed deadline instead, so in-flight settlement survives a client
// disconnect.
func contextWithFloor(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), d)
}

// MovesHandler serves move submission and completion endpoints.
type MovesHandler struct {
	engine Engine
}

// NewMovesHandler creates a moves handler.
func NewMovesHandler(engine Engine) *MovesHandler {
	return &MovesHandler{engine: engine}
}

// moveRequest mirrors the request schema for POST /sessions/{id}/moves.
type moveRequest struct {
	UserID    string `json:"user_id"`
	Card1     int    `json:"card1"`
	Card2     int    `json:"card2"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

// HandleSubmitMove serves POST /sessions/{id}/moves.
func (h *MovesHandler) HandleSubmitMove(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathSessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_session_id", err)
		return
	}
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", ErrBadRequest)
		return
	}

	res, err := h.engine.SubmitMove(r.Context(), sessionID, req.UserID, req.Card1, req.Card2, req.ElapsedMs)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// completeRequest mirrors the request schema for POST /sessions/{id}/complete.
type completeRequest struct {
	UserID string `json:"user_id"`
}

// completeResponse reports the session state after a completion, with the
// settlement breakdown when this completion closed a staked pot.
type completeResponse struct {
	Session    sessionView     `json:"session"`
	Settled    bool            `json:"settled"`
	Settlement *settlementView `json:"settlement,omitempty"`
}

type settlementView struct {
	WinnerUserID string  `json:"winner_user_id"`
	Pot          float64 `json:"pot"`
	PlatformFee  float64 `json:"platform_fee"`
	AffiliateFee float64 `json:"affiliate_fee"`
	WinnerPayout float64 `json:"winner_payout"`
	ReferrerID   string  `json:"referrer_id,omitempty"`
}

// HandleComplete serves POST /sessions/{id}/complete.
func (h *MovesHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathSessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_session_id", err)
		return
	}
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", ErrBadRequest)
		return
	}

	ctx := r.Context()
	// Settlement may include a slow ledger call; keep a floor on the deadline
	// so a client disconnect does not abandon a half-finished settlement.
	ctx, cancel := contextWithFloor(ctx, 10*time.Second)
	defer cancel()

	out, err := h.engine.Complete(ctx, sessionID, req.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := completeResponse{Session: toSessionView(out.Session), Settled: out.Settled}
	if out.Plan != nil {
		resp.Settlement = &settlementView{
			WinnerUserID: out.Plan.WinnerUserID,
			Pot:          out.Plan.Pot.Float(),
			PlatformFee:  out.Plan.PlatformFee.Float(),
			AffiliateFee: out.Plan.AffiliateFee.Float(),
			WinnerPayout: out.Plan.WinnerPayout.Float(),
			ReferrerID:   out.Plan.ReferrerID,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
