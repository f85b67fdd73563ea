// Package ledger defines the escrow/payout port and a simulated in-memory
// implementation. Real funds movement is an external-service contract; the
// engine only depends on this interface.
package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/okian/twinpot/internal/domain/model"
)

// Ledger is the escrow port consumed by the coordinator and the settlement
// engine. All calls are fallible and may be retried by the caller, so
// implementations must tolerate at-least-once invocation.
type Ledger interface {
	// OpenEscrow locks the stake for a session and returns the escrow
	// address players pay into.
	OpenEscrow(ctx context.Context, sessionID uuid.UUID, stake model.Amount) (string, error)

	// Payout transfers the winner's share out of escrow.
	Payout(ctx context.Context, sessionID uuid.UUID, wallet string, amount model.Amount) error

	// Refund returns a stake after a cancelled session.
	Refund(ctx context.Context, sessionID uuid.UUID, wallet string, amount model.Amount) error
}
