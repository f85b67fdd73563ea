// Package settlement computes and executes pot distribution for finished
// staked sessions.
package settlement

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/twinpot/internal/domain/model"
	"github.com/okian/twinpot/pkg/logger"
	"github.com/okian/twinpot/pkg/metrics"
)

// Default fee configuration in basis points.
const (
	defaultPlatformFeeBP  = 1500
	defaultAffiliateFeeBP = 300
)

// Ledger is the slice of the ledger port the engine needs.
type Ledger interface {
	Payout(ctx context.Context, sessionID uuid.UUID, wallet string, amount model.Amount) error
}

// AffiliateLedger resolves standing referral links and accrues the reserved
// affiliate fee into a referrer's lifetime earnings. Implementations must
// serialize Accrue calls touching the same referrer.
type AffiliateLedger interface {
	ActiveReferrer(ctx context.Context, userID string) (string, bool, error)
	Accrue(ctx context.Context, referrerID string, sessionID uuid.UUID, amount model.Amount) error
}

// Plan is the computed pot distribution for one session.
type Plan struct {
	SessionID    uuid.UUID
	WinnerUserID string
	WinnerWallet string
	Pot          model.Amount
	PlatformFee  model.Amount
	AffiliateFee model.Amount
	WinnerPayout model.Amount
	ReferrerID   string
}

// ComputePlan derives the pot distribution from a finished session. Winner is
// the strictly highest final score; ties go to the earliest completion.
func ComputePlan(s *model.Session, platformFeeBP, affiliateFeeBP int64) (Plan, error) {
	if !s.AllCompleted() {
		return Plan{}, fmt.Errorf("session %s has unfinished participants: %w", s.ID, model.ErrInvalidState)
	}

	ranked := make([]*model.Participant, len(s.Participants))
	copy(ranked, s.Participants)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].CompletedAt.Before(*ranked[j].CompletedAt)
	})
	winner := ranked[0]

	pot := s.Stake * model.Amount(len(s.Participants))
	platformFee := pot.BasisPoints(platformFeeBP)
	affiliateFee := pot.BasisPoints(affiliateFeeBP)

	return Plan{
		SessionID:    s.ID,
		WinnerUserID: winner.UserID,
		WinnerWallet: winner.Wallet,
		Pot:          pot,
		PlatformFee:  platformFee,
		AffiliateFee: affiliateFee,
		WinnerPayout: pot - platformFee - affiliateFee,
	}, nil
}

// Engine runs settlement at most once per session. Per-session exclusivity is
// provided by the coordinator's Settling transition; the engine adds the
// idempotent result cache so a retry after success never pays out twice.
type Engine struct {
	mu             sync.Mutex
	results        map[uuid.UUID]Plan
	locks          map[uuid.UUID]*sync.Mutex
	ledger         Ledger
	affiliates     AffiliateLedger
	platformFeeBP  int64
	affiliateFeeBP int64
	logger         logger.Logger
}

// NewEngine creates a settlement engine with configuration options.
func NewEngine(ledger Ledger, affiliates AffiliateLedger, opts ...Option) *Engine {
	e := &Engine{
		results:        make(map[uuid.UUID]Plan),
		locks:          make(map[uuid.UUID]*sync.Mutex),
		ledger:         ledger,
		affiliates:     affiliates,
		platformFeeBP:  defaultPlatformFeeBP,
		affiliateFeeBP: defaultAffiliateFeeBP,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = logger.Get().Named("settlement")
	}

	return e
}

// Settle distributes the pot of a finished staked session. A repeated call
// for an already settled session returns the recorded plan without touching
// the ledger again. A ledger failure surfaces as model.ErrSettlement and
// leaves no result recorded, so the session stays eligible for retry.
func (e *Engine) Settle(ctx context.Context, s *model.Session) (Plan, error) {
	// Serialize per session so a concurrent retry waits for the first
	// attempt and then hits the result cache instead of the ledger.
	lock := e.sessionLock(s.ID)
	lock.Lock()
	defer lock.Unlock()

	e.mu.Lock()
	if plan, ok := e.results[s.ID]; ok {
		e.mu.Unlock()
		return plan, nil
	}
	e.mu.Unlock()

	start := time.Now()

	plan, err := ComputePlan(s, e.platformFeeBP, e.affiliateFeeBP)
	if err != nil {
		return Plan{}, err
	}

	if err := e.ledger.Payout(ctx, s.ID, plan.WinnerWallet, plan.WinnerPayout); err != nil {
		metrics.RecordSettlementFailure()
		return Plan{}, fmt.Errorf("payout to %s not confirmed: %w", plan.WinnerWallet, model.ErrSettlement)
	}

	// The affiliate fee is reserved whether or not a link exists; it is only
	// accrued to a referrer when the winner has an active link.
	referrerID, ok, err := e.affiliates.ActiveReferrer(ctx, plan.WinnerUserID)
	if err != nil {
		e.logger.Warn(ctx, "affiliate lookup failed",
			logger.String("session_id", s.ID.String()),
			logger.Error(err),
		)
	} else if ok {
		plan.ReferrerID = referrerID
		if err := e.affiliates.Accrue(ctx, referrerID, s.ID, plan.AffiliateFee); err != nil {
			e.logger.Warn(ctx, "affiliate accrual failed",
				logger.String("session_id", s.ID.String()),
				logger.String("referrer_id", referrerID),
				logger.Error(err),
			)
		}
	}

	e.mu.Lock()
	e.results[s.ID] = plan
	e.mu.Unlock()

	metrics.RecordSettlementDuration(float64(time.Since(start).Milliseconds()))

	return plan, nil
}

func (e *Engine) sessionLock(id uuid.UUID) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[id] = lock
	}
	return lock
}

// Result returns the recorded plan for a session, if it settled.
func (e *Engine) Result(sessionID uuid.UUID) (Plan, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	plan, ok := e.results[sessionID]
	return plan, ok
}
