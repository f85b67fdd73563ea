package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/okian/twinpot/internal/adapters/board"
	"github.com/okian/twinpot/internal/adapters/persistence"
	"github.com/okian/twinpot/internal/adapters/repository"
	"github.com/okian/twinpot/internal/domain/model"
	"github.com/okian/twinpot/pkg/logger"
	"github.com/okian/twinpot/pkg/metrics"
)

// CreateFree starts a single-player practice session. The session is active
// immediately; no escrow or joiner is involved.
func (s *Service) CreateFree(ctx context.Context, player model.PlayerRef, boardID uuid.UUID) (model.Session, error) {
	if player.UserID == "" {
		return model.Session{}, fmt.Errorf("user id required: %w", model.ErrInvalidArgument)
	}

	b, err := s.boards.Resolve(ctx, boardID, model.PairTarget)
	if err != nil {
		return model.Session{}, err
	}

	now := s.now()
	dealt := b.Pairs[:model.PairTarget]
	session := &model.Session{
		ID:         uuid.New(),
		Mode:       model.ModeFree,
		BoardID:    b.ID,
		LayoutHash: board.Fingerprint(dealt),
		Status:     model.StatusCreated,
		CreatedAt:  now,
		StartedAt:  &now,
		Participants: []*model.Participant{
			{UserID: player.UserID, Wallet: player.Wallet, Role: model.RoleInitiator},
		},
		Cards: s.deal(dealt, model.PairTarget),
	}
	if err := session.Transition(model.StatusActive); err != nil {
		return model.Session{}, err
	}

	rt := repository.NewRuntime(session)
	_ = rt.WithState(func(st *repository.State) error {
		st.StartPlayer(player.UserID, now)
		return nil
	})
	s.sessions.Put(ctx, rt)

	snap := rt.Snapshot()
	s.saveSession(ctx, snap)
	metrics.RecordSessionCreated(string(model.ModeFree))

	s.logger.Info(ctx, "free session created",
		logger.String("session_id", session.ID.String()),
		logger.String("user_id", player.UserID),
	)
	return snap, nil
}

// CreatePaid opens a staked session. The initiator's stake is escrowed up
// front and the session waits for a joiner until the join deadline.
func (s *Service) CreatePaid(ctx context.Context, player model.PlayerRef, boardID uuid.UUID, stake model.Amount) (model.Session, error) {
	if player.UserID == "" || player.Wallet == "" {
		return model.Session{}, fmt.Errorf("user id and wallet required: %w", model.ErrInvalidArgument)
	}
	if stake <= 0 {
		return model.Session{}, fmt.Errorf("stake must be positive: %w", model.ErrInvalidArgument)
	}

	b, err := s.boards.Resolve(ctx, boardID, model.PairTarget)
	if err != nil {
		return model.Session{}, err
	}

	sessionID := uuid.New()
	escrow, err := s.callLedger(ctx, "open_escrow", func() (string, error) {
		return s.ledger.OpenEscrow(ctx, sessionID, stake)
	})
	if err != nil {
		return model.Session{}, fmt.Errorf("escrow for session %s: %w", sessionID, err)
	}

	now := s.now()
	deadline := now.Add(s.joinTimeout)
	dealt := b.Pairs[:model.PairTarget]
	session := &model.Session{
		ID:            sessionID,
		Mode:          model.ModeStaked,
		Stake:         stake,
		BoardID:       b.ID,
		LayoutHash:    board.Fingerprint(dealt),
		EscrowAddress: escrow,
		Status:        model.StatusCreated,
		CreatedAt:     now,
		JoinDeadline:  &deadline,
		Participants: []*model.Participant{
			{UserID: player.UserID, Wallet: player.Wallet, Role: model.RoleInitiator},
		},
		Cards: s.deal(dealt, model.PairTarget),
	}
	if err := session.Transition(model.StatusWaiting); err != nil {
		return model.Session{}, err
	}

	rt := repository.NewRuntime(session)
	s.sessions.Put(ctx, rt)

	snap := rt.Snapshot()
	s.saveSession(ctx, snap)
	s.recordTx(ctx, persistence.Transaction{
		ID:        uuid.New(),
		SessionID: sessionID,
		Wallet:    player.Wallet,
		Type:      persistence.TxStake,
		Amount:    stake,
		Status:    persistence.TxPending,
		CreatedAt: now,
	})
	metrics.RecordSessionCreated(string(model.ModeStaked))

	s.logger.Info(ctx, "staked session created",
		logger.String("session_id", sessionID.String()),
		logger.String("user_id", player.UserID),
		logger.String("stake", stake.String()),
		logger.String("escrow", escrow),
	)
	return snap, nil
}

// Join admits a second player into a waiting staked session and activates it.
// Both players' clocks start at the moment of admission.
func (s *Service) Join(ctx context.Context, sessionID uuid.UUID, player model.PlayerRef) (model.Session, error) {
	if player.UserID == "" || player.Wallet == "" {
		return model.Session{}, fmt.Errorf("user id and wallet required: %w", model.ErrInvalidArgument)
	}

	rt, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return model.Session{}, err
	}

	now := s.now()
	err = rt.WithState(func(st *repository.State) error {
		sess := st.Session
		if sess.Status != model.StatusWaiting {
			return fmt.Errorf("session %s is %s, not joinable: %w", sessionID, sess.Status, model.ErrInvalidState)
		}
		if sess.JoinDeadline != nil && now.After(*sess.JoinDeadline) {
			return fmt.Errorf("join deadline for session %s passed: %w", sessionID, model.ErrInvalidState)
		}
		if sess.Participant(player.UserID) != nil {
			return fmt.Errorf("user %s already in session: %w", player.UserID, model.ErrInvalidArgument)
		}
		if len(sess.Participants) >= sess.Capacity() {
			return fmt.Errorf("session %s is full: %w", sessionID, model.ErrInvalidState)
		}

		sess.Participants = append(sess.Participants, &model.Participant{
			UserID: player.UserID,
			Wallet: player.Wallet,
			Role:   model.RoleJoiner,
		})
		if err := sess.Transition(model.StatusActive); err != nil {
			return err
		}
		sess.StartedAt = &now
		for _, p := range sess.Participants {
			st.StartPlayer(p.UserID, now)
		}
		return nil
	})
	if err != nil {
		return model.Session{}, err
	}

	snap := rt.Snapshot()
	s.saveSession(ctx, snap)
	s.recordTx(ctx, persistence.Transaction{
		ID:        uuid.New(),
		SessionID: sessionID,
		Wallet:    player.Wallet,
		Type:      persistence.TxStake,
		Amount:    snap.Stake,
		Status:    persistence.TxPending,
		CreatedAt: now,
	})
	s.broadcast(ctx, model.Event{
		Type:      model.EventPlayerJoined,
		SessionID: sessionID,
		UserID:    player.UserID,
	})

	s.logger.Info(ctx, "player joined session",
		logger.String("session_id", sessionID.String()),
		logger.String("user_id", player.UserID),
	)
	return snap, nil
}

// GetSession returns the current session state. Live sessions come from the
// runtime store; finished ones fall back to the durable record.
func (s *Service) GetSession(ctx context.Context, sessionID uuid.UUID) (model.Session, error) {
	if rt, err := s.sessions.Get(ctx, sessionID); err == nil {
		return rt.Snapshot(), nil
	}
	return s.store.GetSession(ctx, sessionID)
}

// ListWaitingSessions pages through staked sessions open for a joiner, oldest
// first.
func (s *Service) ListWaitingSessions(ctx context.Context, skip, take int) []model.Session {
	if take <= 0 || take > s.maxLobbyLimit {
		take = s.maxLobbyLimit
	}
	if skip < 0 {
		skip = 0
	}

	runtimes := s.sessions.ByStatus(ctx, model.StatusWaiting)
	lobbies := make([]model.Session, 0, len(runtimes))
	for _, rt := range runtimes {
		snap := rt.Snapshot()
		if snap.Status != model.StatusWaiting {
			continue
		}
		lobbies = append(lobbies, snap)
	}
	sort.Slice(lobbies, func(i, j int) bool {
		return lobbies[i].CreatedAt.Before(lobbies[j].CreatedAt)
	})

	if skip >= len(lobbies) {
		return []model.Session{}
	}
	end := skip + take
	if end > len(lobbies) {
		end = len(lobbies)
	}
	return lobbies[skip:end]
}

// Leaderboard returns the top lifetime winners.
func (s *Service) Leaderboard(ctx context.Context, n int) ([]persistence.LeaderboardEntry, error) {
	if n <= 0 || n > s.maxLobbyLimit {
		n = s.maxLobbyLimit
	}
	return s.store.TopPlayers(ctx, n)
}

// RegisterAffiliate records a standing referral link entitling the referrer
// to a share of the referred player's staked winnings.
func (s *Service) RegisterAffiliate(ctx context.Context, referrerID, referredUserID string) error {
	if referrerID == "" || referredUserID == "" {
		return fmt.Errorf("referrer and referred user required: %w", model.ErrInvalidArgument)
	}
	if referrerID == referredUserID {
		return fmt.Errorf("self-referral not allowed: %w", model.ErrInvalidArgument)
	}
	return s.store.SaveAffiliateLink(ctx, persistence.AffiliateLink{
		ID:             uuid.New(),
		ReferrerID:     referrerID,
		ReferredUserID: referredUserID,
		Active:         true,
	})
}

// saveSession writes the durable projection. Persistence is best-effort from
// the coordinator's perspective; a failure is logged, never propagated.
func (s *Service) saveSession(ctx context.Context, snap model.Session) {
	if err := s.store.SaveSession(ctx, snap); err != nil {
		metrics.RecordPersistenceError()
		s.logger.Error(ctx, "session save failed",
			logger.String("session_id", snap.ID.String()),
			logger.Error(err),
		)
	}
}

// recordTx appends a transaction record, best-effort.
func (s *Service) recordTx(ctx context.Context, t persistence.Transaction) {
	if err := s.store.AppendTransaction(ctx, t); err != nil {
		metrics.RecordPersistenceError()
		s.logger.Error(ctx, "transaction record failed",
			logger.String("session_id", t.SessionID.String()),
			logger.String("type", string(t.Type)),
			logger.Error(err),
		)
	}
}

// broadcast stamps and fans out an event.
func (s *Service) broadcast(ctx context.Context, e model.Event) {
	e.TS = s.now()
	s.notifier.Broadcast(ctx, e)
}

// callLedger wraps a ledger call with call and latency metrics.
func (s *Service) callLedger(_ context.Context, op string, fn func() (string, error)) (string, error) {
	start := time.Now()
	out, err := fn()
	metrics.RecordLedgerLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordLedgerCall(op, "error")
		return "", err
	}
	metrics.RecordLedgerCall(op, "ok")
	return out, nil
}
