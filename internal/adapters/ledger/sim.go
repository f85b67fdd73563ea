package ledger

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/twinpot/internal/domain/model"
	"github.com/okian/twinpot/pkg/metrics"
)

// Default simulated chain latency bounds.
const (
	defaultMinLatency = 20 * time.Millisecond
	defaultMaxLatency = 80 * time.Millisecond
	defaultRandomSeed = 42

	escrowAddressLen = 40
)

// ensure SimLedger satisfies Ledger.
var _ Ledger = (*SimLedger)(nil)

// SimLedger implements Ledger against in-memory balances with simulated
// chain latency. Payouts and refunds are idempotent per session, matching
// the at-least-once contract of the port.
type SimLedger struct {
	mu      sync.Mutex
	escrows map[uuid.UUID]string
	payouts map[uuid.UUID]model.Amount
	refunds map[uuid.UUID]model.Amount

	payoutCalls int
	refundCalls int

	minLatency  time.Duration
	maxLatency  time.Duration
	rng         *rand.Rand
	failPayouts bool
	failRefunds bool
}

// NewSimLedger creates a simulated ledger with configuration options.
func NewSimLedger(opts ...Option) *SimLedger {
	l := &SimLedger{
		escrows:    make(map[uuid.UUID]string),
		payouts:    make(map[uuid.UUID]model.Amount),
		refunds:    make(map[uuid.UUID]model.Amount),
		minLatency: defaultMinLatency,
		maxLatency: defaultMaxLatency,
		rng:        rand.New(rand.NewSource(defaultRandomSeed)), //nolint:gosec // deterministic seed for reproducible testing
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// OpenEscrow locks the stake and returns the escrow address.
func (l *SimLedger) OpenEscrow(ctx context.Context, sessionID uuid.UUID, stake model.Amount) (string, error) {
	if err := l.simulateLatency(ctx, "open_escrow"); err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if addr, ok := l.escrows[sessionID]; ok {
		return addr, nil
	}

	id := uuid.New()
	addr := "EQ" + hex.EncodeToString(id[:])[:escrowAddressLen]
	l.escrows[sessionID] = addr
	metrics.RecordLedgerCall("open_escrow", "ok")
	return addr, nil
}

// Payout transfers the winner's share. Repeated calls for the same session
// succeed without a second transfer.
func (l *SimLedger) Payout(ctx context.Context, sessionID uuid.UUID, wallet string, amount model.Amount) error {
	if err := l.simulateLatency(ctx, "payout"); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.failPayouts {
		metrics.RecordLedgerCall("payout", "error")
		return fmt.Errorf("payout for session %s: %w", sessionID, ErrUnconfirmed)
	}

	if _, ok := l.payouts[sessionID]; !ok {
		l.payouts[sessionID] = amount
		l.payoutCalls++
	}
	metrics.RecordLedgerCall("payout", "ok")
	return nil
}

// Refund returns a stake. Repeated calls for the same session succeed
// without a second transfer.
func (l *SimLedger) Refund(ctx context.Context, sessionID uuid.UUID, wallet string, amount model.Amount) error {
	if err := l.simulateLatency(ctx, "refund"); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.failRefunds {
		metrics.RecordLedgerCall("refund", "error")
		return fmt.Errorf("refund for session %s: %w", sessionID, ErrUnconfirmed)
	}

	if _, ok := l.refunds[sessionID]; !ok {
		l.refunds[sessionID] = amount
		l.refundCalls++
	}
	metrics.RecordLedgerCall("refund", "ok")
	return nil
}

// SetFailPayouts toggles payout failures at runtime, used by tests that
// exercise settlement retries.
func (l *SimLedger) SetFailPayouts(fail bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failPayouts = fail
}

// PayoutCalls reports how many distinct payouts were executed.
func (l *SimLedger) PayoutCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.payoutCalls
}

// RefundCalls reports how many distinct refunds were executed.
func (l *SimLedger) RefundCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refundCalls
}

// RefundFor returns the refunded amount for a session, if any.
func (l *SimLedger) RefundFor(sessionID uuid.UUID) (model.Amount, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	amount, ok := l.refunds[sessionID]
	return amount, ok
}

func (l *SimLedger) simulateLatency(ctx context.Context, op string) error {
	l.mu.Lock()
	span := l.maxLatency - l.minLatency
	latency := l.minLatency
	if span > 0 {
		latency += time.Duration(l.rng.Int63n(int64(span)))
	}
	l.mu.Unlock()

	start := time.Now()
	defer func() {
		metrics.RecordLedgerLatency(float64(time.Since(start).Milliseconds()))
	}()

	select {
	case <-ctx.Done():
		metrics.RecordLedgerCall(op, "cancelled")
		return fmt.Errorf("ledger %s cancelled: %w", op, ctx.Err())
	case <-time.After(latency):
		return nil
	}
}
