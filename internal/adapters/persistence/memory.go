package persistence

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/twinpot/internal/domain/model"
)

// ensure MemStore satisfies Store.
var _ Store = (*MemStore)(nil)

// MemStore implements the persistence port in memory. It backs tests and
// single-process deployments; the SQLite store is the durable option.
type MemStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]model.Session
	moves    []model.Move
	txs      []Transaction
	links    map[uuid.UUID]AffiliateLink
	payouts  []AffiliatePayout
}

// NewMemStore creates an empty in-memory persistence store.
func NewMemStore() *MemStore {
	return &MemStore{
		sessions: make(map[uuid.UUID]model.Session),
		links:    make(map[uuid.UUID]AffiliateLink),
	}
}

// SaveSession upserts the durable session projection.
func (s *MemStore) SaveSession(ctx context.Context, sess model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Deep-copy participants so later runtime mutation cannot leak in.
	cp := sess
	cp.Participants = make([]*model.Participant, len(sess.Participants))
	for i, p := range sess.Participants {
		pc := *p
		cp.Participants[i] = &pc
	}
	s.sessions[sess.ID] = cp
	return nil
}

// GetSession reads the durable session state.
func (s *MemStore) GetSession(ctx context.Context, id uuid.UUID) (model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return model.Session{}, fmt.Errorf("session %s: %w", id, model.ErrNotFound)
	}
	return sess, nil
}

// AppendMove durably records one move.
func (s *MemStore) AppendMove(ctx context.Context, m model.Move) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moves = append(s.moves, m)
	return nil
}

// Moves returns the recorded moves for a session, in append order.
func (s *MemStore) Moves(sessionID uuid.UUID) []model.Move {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Move
	for _, m := range s.moves {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	return out
}

// AppendTransaction durably records one funds movement.
func (s *MemStore) AppendTransaction(ctx context.Context, t Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs = append(s.txs, t)
	return nil
}

// Transactions returns the recorded transactions for a session.
func (s *MemStore) Transactions(sessionID uuid.UUID) []Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Transaction
	for _, t := range s.txs {
		if t.SessionID == sessionID {
			out = append(out, t)
		}
	}
	return out
}

// TopPlayers aggregates lifetime winnings over settled sessions.
func (s *MemStore) TopPlayers(ctx context.Context, n int) ([]LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type agg struct {
		winnings model.Amount
		won      int
	}
	totals := make(map[string]*agg)
	for _, sess := range s.sessions {
		for _, p := range sess.Participants {
			if p.Winner == nil || !*p.Winner || p.Payout == nil {
				continue
			}
			a, ok := totals[p.UserID]
			if !ok {
				a = &agg{}
				totals[p.UserID] = a
			}
			a.winnings += *p.Payout
			a.won++
		}
	}

	entries := make([]LeaderboardEntry, 0, len(totals))
	for userID, a := range totals {
		entries = append(entries, LeaderboardEntry{
			UserID:        userID,
			TotalWinnings: a.winnings,
			GamesWon:      a.won,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalWinnings != entries[j].TotalWinnings {
			return entries[i].TotalWinnings > entries[j].TotalWinnings
		}
		return entries[i].UserID < entries[j].UserID
	})
	if n < len(entries) {
		entries = entries[:n]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

// SaveAffiliateLink upserts a referral relationship.
func (s *MemStore) SaveAffiliateLink(ctx context.Context, link AffiliateLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[link.ID] = link
	return nil
}

// ActiveReferrer returns the referrer of a user if an active link exists.
func (s *MemStore) ActiveReferrer(ctx context.Context, userID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, link := range s.links {
		if link.ReferredUserID == userID && link.Active {
			return link.ReferrerID, true, nil
		}
	}
	return "", false, nil
}

// Accrue adds an affiliate fee to the referrer's lifetime earnings. The
// store mutex serializes concurrent accruals against the same referrer.
func (s *MemStore) Accrue(ctx context.Context, referrerID string, sessionID uuid.UUID, amount model.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, link := range s.links {
		if link.ReferrerID != referrerID || !link.Active {
			continue
		}
		link.TotalEarnings += amount
		s.links[id] = link
		s.payouts = append(s.payouts, AffiliatePayout{
			ID:        uuid.New(),
			LinkID:    link.ID,
			SessionID: sessionID,
			Amount:    amount,
			CreatedAt: time.Now().UTC(),
		})
		return nil
	}
	return fmt.Errorf("affiliate link for referrer %s: %w", referrerID, model.ErrNotFound)
}

// LinkEarnings returns the lifetime earnings recorded for a referrer.
func (s *MemStore) LinkEarnings(referrerID string) model.Amount {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total model.Amount
	for _, link := range s.links {
		if link.ReferrerID == referrerID {
			total += link.TotalEarnings
		}
	}
	return total
}

// Close is a no-op for the in-memory store.
func (s *MemStore) Close() error {
	return nil
}
