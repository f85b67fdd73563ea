package api

import (
	"net/http"
	"strconv"
)

// defaultLeaderboardSize is used when the request omits ?limit.
const defaultLeaderboardSize = 10

// LeaderboardHandler serves the lifetime winnings leaderboard.
type LeaderboardHandler struct {
	engine Engine
}

// NewLeaderboardHandler creates a leaderboard handler.
func NewLeaderboardHandler(engine Engine) *LeaderboardHandler {
	return &LeaderboardHandler{engine: engine}
}

// HandleGetLeaderboard serves GET /leaderboard?limit=N.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := defaultLeaderboardSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", ErrBadRequest)
			return
		}
		limit = n
	}

	entries, err := h.engine.Leaderboard(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
