// Package service wires the game session coordinator: it owns the session
// lifecycle, delegates moves to the anti-cheat guard and scoring policy, and
// drives settlement of staked pots.
package service

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/okian/twinpot/internal/adapters/board"
	"github.com/okian/twinpot/internal/adapters/ledger"
	taskqueue "github.com/okian/twinpot/internal/adapters/mq/queue"
	workerpool "github.com/okian/twinpot/internal/adapters/mq/worker"
	"github.com/okian/twinpot/internal/adapters/notify"
	"github.com/okian/twinpot/internal/adapters/persistence"
	"github.com/okian/twinpot/internal/adapters/repository"
	"github.com/okian/twinpot/internal/domain/anticheat"
	"github.com/okian/twinpot/internal/domain/model"
	"github.com/okian/twinpot/internal/domain/scoring"
	"github.com/okian/twinpot/internal/domain/settlement"
	"github.com/okian/twinpot/pkg/logger"
)

// Default coordinator configuration constants.
const (
	defaultJoinTimeout   = 10 * time.Minute
	defaultSweepInterval = 30 * time.Second
	defaultWorkerCount   = 4
	defaultQueueSize     = 10_000
	defaultShardCount    = 16
	defaultMaxLobbyLimit = 100
)

// Service implements the inbound command surface of the game session engine.
type Service struct {
	mu      sync.Mutex
	started bool
	stopCh  chan struct{}

	// Core components
	sessions repository.Store
	guard    *anticheat.Guard
	policy   *scoring.Policy
	engine   *settlement.Engine

	// External ports
	boards   board.Provider
	ledger   ledger.Ledger
	store    persistence.Store
	notifier notify.Notifier

	// Async ledger follow-ups
	tasks taskqueue.Queue
	pool  *workerpool.Pool

	// Configuration
	joinTimeout    time.Duration
	sweepInterval  time.Duration
	workerCount    int
	queueSize      int
	shardCount     int
	maxLobbyLimit  int
	platformFeeBP  int64
	affiliateFeeBP int64

	now func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	logger logger.Logger
}

// New constructs a Service with default configuration. Ports not supplied
// through options are filled with the in-process implementations on Start.
func New(opts ...Option) *Service {
	s := &Service{
		stopCh:         make(chan struct{}),
		joinTimeout:    defaultJoinTimeout,
		sweepInterval:  defaultSweepInterval,
		workerCount:    defaultWorkerCount,
		queueSize:      defaultQueueSize,
		shardCount:     defaultShardCount,
		maxLobbyLimit:  defaultMaxLobbyLimit,
		platformFeeBP:  -1,
		affiliateFeeBP: -1,
		now:            time.Now,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // presentation shuffle only
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes missing components and launches background work.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("engine")
	}

	if s.sessions == nil {
		s.sessions = repository.NewMemStore(repository.WithShardCount(s.shardCount))
	}
	if s.guard == nil {
		s.guard = anticheat.NewGuard()
	}
	if s.policy == nil {
		s.policy = scoring.NewPolicy()
	}
	if s.boards == nil {
		s.boards = board.NewCatalog()
	}
	if s.ledger == nil {
		s.ledger = ledger.NewSimLedger()
	}
	if s.store == nil {
		s.store = persistence.NewMemStore()
	}
	if s.notifier == nil {
		s.notifier = notify.NewBroadcaster()
	}
	if s.engine == nil {
		engineOpts := []settlement.Option{settlement.WithLogger(s.logger.Named("settlement"))}
		if s.platformFeeBP >= 0 {
			engineOpts = append(engineOpts, settlement.WithPlatformFee(s.platformFeeBP))
		}
		if s.affiliateFeeBP >= 0 {
			engineOpts = append(engineOpts, settlement.WithAffiliateFee(s.affiliateFeeBP))
		}
		s.engine = settlement.NewEngine(s.ledger, s.store, engineOpts...)
	}

	s.tasks = taskqueue.NewInMemoryQueue(taskqueue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.tasks, &ledgerTaskExecutor{svc: s},
		workerpool.WithWorkerCount(s.workerCount),
		workerpool.WithLogger(s.logger.Named("worker")),
	)
	s.pool.Start(ctx)

	go s.sweepLoop()

	s.started = true
	s.logger.Info(ctx, "game session engine started",
		logger.Duration("join_timeout", s.joinTimeout),
		logger.Duration("sweep_interval", s.sweepInterval),
		logger.Int("workers", s.workerCount),
	)

	return nil
}

// Stop gracefully shuts the service down.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}

	if s.tasks != nil {
		_ = s.tasks.Close()
	}
	if s.pool != nil {
		s.pool.Stop()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error(context.Background(), "closing persistence store", logger.Error(err))
		}
	}

	s.started = false
	s.logger.Info(context.Background(), "game session engine stopped")
}

// sweepLoop periodically cancels staked sessions whose join deadline passed.
func (s *Service) sweepLoop() {
	if s.sweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			ctx := context.Background()
			if n, err := s.SweepExpired(ctx); err != nil {
				s.logger.Error(ctx, "expiry sweep failed", logger.Error(err))
			} else if n > 0 {
				s.logger.Info(ctx, "expiry sweep cancelled sessions", logger.Int("count", n))
			}
		}
	}
}

// deal builds a shuffled card layout with the service's guarded RNG.
func (s *Service) deal(pairs []board.Pair, target int) []model.Card {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return board.Deal(pairs, target, s.rng)
}
