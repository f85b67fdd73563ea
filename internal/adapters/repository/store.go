// Package repository holds the authoritative in-memory runtime state for
// live sessions. It is ephemeral; the durable record lives behind the
// persistence port.
package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/twinpot/internal/domain/model"
)

// Store provides access to per-session runtime state. Entries for different
// sessions are fully independent; all mutation of one session goes through
// its Runtime's guarded accessors.
type Store interface {
	// Put registers runtime state for a session.
	Put(ctx context.Context, rt *Runtime)

	// Get returns the runtime for a session.
	// Returns model.ErrNotFound if the session is not live.
	Get(ctx context.Context, id uuid.UUID) (*Runtime, error)

	// Delete removes a session's runtime state.
	Delete(ctx context.Context, id uuid.UUID)

	// ByStatus returns the runtimes whose session is currently in status.
	ByStatus(ctx context.Context, status model.Status) []*Runtime

	// Count returns the number of live sessions.
	Count(ctx context.Context) int
}

// PlayerState is one player's ephemeral progress within a session. Access is
// serialized through Runtime.WithPlayer, never shared unguarded.
type PlayerState struct {
	mu sync.Mutex

	StartedAt time.Time
	Matched   map[int]struct{}
	Streak    int
	Score     int
	Moves     int
	Finished  bool
}

// Runtime bundles a session with its players' runtime state. The session
// mutex serializes lifecycle operations (join, completion, settlement,
// expiry); each player's state has its own lock so two players' moves can
// proceed concurrently.
type Runtime struct {
	mu      sync.Mutex
	session *model.Session
	players map[string]*PlayerState
}

// NewRuntime creates runtime state around a session owned by the coordinator.
func NewRuntime(session *model.Session) *Runtime {
	return &Runtime{
		session: session,
		players: make(map[string]*PlayerState),
	}
}

// State is the view of a session handed to WithState callbacks while the
// session lock is held.
type State struct {
	Session *model.Session
	rt      *Runtime
}

// StartPlayer creates fresh runtime state for a player whose play begins
// now. Only valid inside a WithState callback.
func (st *State) StartPlayer(userID string, startedAt time.Time) {
	st.rt.players[userID] = &PlayerState{
		StartedAt: startedAt,
		Matched:   make(map[int]struct{}),
	}
}

// PlayerScore returns a player's current runtime score, or 0 if the player
// has no runtime state.
func (st *State) PlayerScore(userID string) int {
	p, ok := st.rt.players[userID]
	if !ok {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Score
}

// WithState runs fn with exclusive access to the session. The lock covers
// only the in-memory transition; callers must not invoke ports inside fn.
func (r *Runtime) WithState(fn func(st *State) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(&State{Session: r.session, rt: r})
}

// Snapshot returns a deep copy of the session for use outside the lock.
func (r *Runtime) Snapshot() model.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *r.session
	cp.Participants = make([]*model.Participant, len(r.session.Participants))
	for i, p := range r.session.Participants {
		pc := *p
		cp.Participants[i] = &pc
	}
	cp.Cards = append([]model.Card(nil), r.session.Cards...)
	return cp
}

// WithPlayer runs fn with exclusive access to one player's state. The session
// lock is released before fn runs so the other player's moves are not held
// up.
func (r *Runtime) WithPlayer(userID string, fn func(p *PlayerState) error) error {
	r.mu.Lock()
	p, ok := r.players[userID]
	r.mu.Unlock()
	if !ok {
		return model.ErrNotFound
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return fn(p)
}

// Status returns the session's current status.
func (r *Runtime) Status() model.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.Status
}

// ID returns the session identifier.
func (r *Runtime) ID() uuid.UUID {
	return r.session.ID
}
