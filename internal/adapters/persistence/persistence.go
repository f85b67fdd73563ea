// Package persistence defines the durable storage port for sessions, moves,
// transactions, and affiliate state. Persistence failures never abort
// in-memory transitions; callers log and continue.
package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/okian/twinpot/internal/domain/model"
)

// TransactionType classifies a recorded funds movement.
type TransactionType string

// Transaction types.
const (
	TxStake        TransactionType = "stake"
	TxPayout       TransactionType = "payout"
	TxRefund       TransactionType = "refund"
	TxAffiliateFee TransactionType = "affiliate_fee"
)

// TransactionStatus tracks ledger confirmation of a transaction.
type TransactionStatus string

// Transaction statuses.
const (
	TxPending   TransactionStatus = "pending"
	TxConfirmed TransactionStatus = "confirmed"
	TxFailed    TransactionStatus = "failed"
)

// Transaction is a durable record of a funds movement tied to a session.
type Transaction struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	Wallet    string
	Type      TransactionType
	Amount    model.Amount
	Status    TransactionStatus
	CreatedAt time.Time
}

// AffiliateLink is a standing referral relationship entitling the referrer
// to a share of the referred player's staked winnings.
type AffiliateLink struct {
	ID             uuid.UUID
	ReferrerID     string
	ReferredUserID string
	Active         bool
	TotalEarnings  model.Amount
}

// AffiliatePayout records one affiliate fee owed from one settlement.
type AffiliatePayout struct {
	ID        uuid.UUID
	LinkID    uuid.UUID
	SessionID uuid.UUID
	Amount    model.Amount
	CreatedAt time.Time
}

// LeaderboardEntry is one row of the lifetime winnings leaderboard.
type LeaderboardEntry struct {
	Rank          int          `json:"rank"`
	UserID        string       `json:"user_id"`
	TotalWinnings model.Amount `json:"total_winnings"`
	GamesWon      int          `json:"games_won"`
}

// Store is the persistence port. Writes are at-least-once from the
// coordinator's perspective; implementations must tolerate repeated saves of
// the same session state.
type Store interface {
	// SaveSession upserts the durable session projection, participants
	// included.
	SaveSession(ctx context.Context, s model.Session) error

	// GetSession reads the durable session state.
	// Returns model.ErrNotFound for unknown sessions.
	GetSession(ctx context.Context, id uuid.UUID) (model.Session, error)

	// AppendMove durably records one move.
	AppendMove(ctx context.Context, m model.Move) error

	// AppendTransaction durably records one funds movement.
	AppendTransaction(ctx context.Context, t Transaction) error

	// TopPlayers returns the top-N lifetime winners.
	TopPlayers(ctx context.Context, n int) ([]LeaderboardEntry, error)

	// SaveAffiliateLink upserts a referral relationship.
	SaveAffiliateLink(ctx context.Context, link AffiliateLink) error

	// ActiveReferrer returns the referrer of a user if an active link exists.
	ActiveReferrer(ctx context.Context, userID string) (string, bool, error)

	// Accrue atomically adds an affiliate fee to a referrer's lifetime
	// earnings and records the per-settlement payout row. Concurrent
	// settlements referencing the same referrer must not lose updates.
	Accrue(ctx context.Context, referrerID string, sessionID uuid.UUID, amount model.Amount) error

	// Close releases underlying resources.
	Close() error
}
