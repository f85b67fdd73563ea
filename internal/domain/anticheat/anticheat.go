// Package anticheat flags suspiciously fast repeated moves. The guard is a
// heuristic filter, not a proof of cheating: false positives are accepted in
// favor of server integrity.
package anticheat

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/twinpot/internal/domain/model"
	"github.com/okian/twinpot/pkg/metrics"
)

// Default guard configuration constants.
const (
	defaultMinMoveGap = 100 * time.Millisecond
	defaultMaxStrikes = 3
)

type key struct {
	session uuid.UUID
	user    string
}

// history is the rolling per (session, player) timing state.
type history struct {
	lastMove   time.Time
	hasLast    bool
	strikes    int
	totalMoves int
}

// Guard tracks move timing per (session, player). Once a player accumulates
// the strike limit within a session, every further move in that session is
// rejected; there is no automatic reset.
type Guard struct {
	mu         sync.Mutex
	histories  map[key]*history
	minMoveGap time.Duration
	maxStrikes int
	now        func() time.Time
}

// NewGuard creates a guard with configuration options.
func NewGuard(opts ...Option) *Guard {
	g := &Guard{
		histories:  make(map[key]*history),
		minMoveGap: defaultMinMoveGap,
		maxStrikes: defaultMaxStrikes,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Check validates the timing of one move submission. It returns
// model.ErrAntiCheat once the player's strike count reaches the limit.
func (g *Guard) Check(sessionID uuid.UUID, userID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	k := key{session: sessionID, user: userID}
	h, ok := g.histories[k]
	if !ok {
		h = &history{}
		g.histories[k] = h
	}

	if h.strikes >= g.maxStrikes {
		metrics.RecordAnticheatRejection()
		return fmt.Errorf("player %s blocked after %d strikes: %w", userID, h.strikes, model.ErrAntiCheat)
	}

	now := g.now()
	if h.hasLast && now.Sub(h.lastMove) < g.minMoveGap {
		h.strikes++
		metrics.RecordAnticheatStrike()
		if h.strikes >= g.maxStrikes {
			metrics.RecordAnticheatRejection()
			return fmt.Errorf("move gap under %s, strike %d: %w", g.minMoveGap, h.strikes, model.ErrAntiCheat)
		}
	}

	h.lastMove = now
	h.hasLast = true
	h.totalMoves++

	return nil
}

// Untrack drops all timing state for a session once it ends.
func (g *Guard) Untrack(sessionID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for k := range g.histories {
		if k.session == sessionID {
			delete(g.histories, k)
		}
	}
}

// DetectBotPattern screens for inhuman play patterns.
// TODO: check for perfectly periodic move timing and superhuman accuracy.
func (g *Guard) DetectBotPattern(sessionID uuid.UUID, userID string) bool {
	return true
}

// ValidateHeartbeat verifies the client is still responsive.
// TODO: track heartbeat timestamps and fail after 30s of silence.
func (g *Guard) ValidateHeartbeat(sessionID uuid.UUID, userID string) bool {
	return true
}

// ValidateStateHash compares a client-reported board hash with the server's.
// TODO: compare against the session layout fingerprint.
func (g *Guard) ValidateStateHash(sessionID uuid.UUID, clientStateHash string) bool {
	return true
}
