// Package model contains the domain types passed between layers.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Mode distinguishes free play from staked wagers.
type Mode string

// Session modes.
const (
	ModeFree   Mode = "free"
	ModeStaked Mode = "staked"
)

// Role identifies how a participant entered the session.
type Role string

// Participant roles.
const (
	RoleInitiator Role = "initiator"
	RoleJoiner    Role = "joiner"
)

// PairTarget is the number of card pairs dealt per session, fixed by policy.
const PairTarget = 9

// PlayerRef identifies a player together with the wallet that stakes and
// receives funds on their behalf.
type PlayerRef struct {
	UserID string
	Wallet string
}

// Participant is a player enrolled in a session. Winner and Payout stay nil
// until settlement.
type Participant struct {
	UserID      string
	Wallet      string
	Role        Role
	Score       int
	Winner      *bool
	Payout      *Amount
	CompletedAt *time.Time
}

// Card is one dealt card. Two cards share a pair index; matching requires
// submitting both instances of the same pair.
type Card struct {
	ID        int    `json:"id"`
	PairIndex int    `json:"pair_index"`
	ImageURL  string `json:"image_url"`
}

// PairIndexOf maps a card id to its logical pair index. Cards are dealt in
// pair order with ids 0..2N-1, so integer division recovers the pair.
func PairIndexOf(cardID int) int {
	return cardID / 2
}

// Session is one instance of the matching game. It is owned exclusively by
// the coordinator while active and becomes read-only once settled or
// cancelled.
type Session struct {
	ID            uuid.UUID
	Mode          Mode
	Stake         Amount
	BoardID       uuid.UUID
	LayoutHash    string
	EscrowAddress string
	Status        Status
	CreatedAt     time.Time
	StartedAt     *time.Time
	JoinDeadline  *time.Time
	CompletedAt   *time.Time
	Participants  []*Participant
	Cards         []Card
}

// Capacity returns the maximum participant count for the session's mode.
func (s *Session) Capacity() int {
	if s.Mode == ModeStaked {
		return 2
	}
	return 1
}

// Participant returns the enrolled participant for a user, or nil.
func (s *Session) Participant(userID string) *Participant {
	for _, p := range s.Participants {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// AllCompleted reports whether every participant has a completion timestamp.
func (s *Session) AllCompleted() bool {
	for _, p := range s.Participants {
		if p.CompletedAt == nil {
			return false
		}
	}
	return len(s.Participants) > 0
}

// Move records a single two-card flip. Immutable once recorded.
type Move struct {
	SessionID       uuid.UUID
	UserID          string
	MoveNumber      int
	Card1           int
	Card2           int
	Correct         bool
	Points          int
	ClientElapsedMs int64
	At              time.Time
}
