package service

import (
	"time"

	"github.com/okian/twinpot/internal/adapters/board"
	"github.com/okian/twinpot/internal/adapters/ledger"
	"github.com/okian/twinpot/internal/adapters/notify"
	"github.com/okian/twinpot/internal/adapters/persistence"
	"github.com/okian/twinpot/internal/adapters/repository"
	"github.com/okian/twinpot/internal/domain/anticheat"
	"github.com/okian/twinpot/internal/domain/scoring"
	"github.com/okian/twinpot/pkg/logger"
)

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithSessionStore sets the live session state store.
func WithSessionStore(store repository.Store) Option {
	return func(s *Service) {
		s.sessions = store
	}
}

// WithGuard sets the anti-cheat guard.
func WithGuard(g *anticheat.Guard) Option {
	return func(s *Service) {
		s.guard = g
	}
}

// WithScoringPolicy sets the scoring policy.
func WithScoringPolicy(p *scoring.Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

// WithBoardProvider sets the board port.
func WithBoardProvider(p board.Provider) Option {
	return func(s *Service) {
		s.boards = p
	}
}

// WithLedger sets the escrow/payout port.
func WithLedger(l ledger.Ledger) Option {
	return func(s *Service) {
		s.ledger = l
	}
}

// WithPersistence sets the durable store port.
func WithPersistence(store persistence.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithNotifier sets the notification port.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithFees sets settlement fees in basis points.
func WithFees(platformBP, affiliateBP int64) Option {
	return func(s *Service) {
		s.platformFeeBP = platformBP
		s.affiliateFeeBP = affiliateBP
	}
}

// WithJoinTimeout bounds how long a staked session waits for a joiner.
func WithJoinTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.joinTimeout = d
	}
}

// WithSweepInterval sets how often the expiry sweep runs. Zero disables the
// background sweep; SweepExpired stays callable directly.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Service) {
		s.sweepInterval = d
	}
}

// WithWorkerCount sets the number of ledger task workers.
func WithWorkerCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workerCount = n
		}
	}
}

// WithQueueSize bounds the ledger follow-up task queue.
func WithQueueSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithShardCount configures the default session store's sharding.
func WithShardCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// WithMaxLobbyLimit caps the page size of waiting-session listings.
func WithMaxLobbyLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLobbyLimit = n
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}
