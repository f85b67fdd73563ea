package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/okian/twinpot/internal/adapters/persistence"
	"github.com/okian/twinpot/internal/adapters/repository"
	"github.com/okian/twinpot/internal/domain/model"
	"github.com/okian/twinpot/internal/domain/settlement"
	"github.com/okian/twinpot/pkg/logger"
	"github.com/okian/twinpot/pkg/metrics"
)

// MoveResult is the outcome of one two-card flip.
type MoveResult struct {
	Correct        bool `json:"correct"`
	Points         int  `json:"points"`
	Score          int  `json:"score"`
	Streak         int  `json:"streak"`
	PairIndex      int  `json:"pair_index"`
	RemainingPairs int  `json:"remaining_pairs"`
	Finished       bool `json:"finished"`
}

// Outcome is the result of completing a session. Plan is set only when this
// completion settled a staked pot.
type Outcome struct {
	Session model.Session
	Settled bool
	Plan    *settlement.Plan
}

// SubmitMove scores one two-card flip for a player in an active session.
func (s *Service) SubmitMove(ctx context.Context, sessionID uuid.UUID, userID string, card1, card2 int, clientElapsedMs int64) (MoveResult, error) {
	start := time.Now()

	rt, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		metrics.RecordMoveRejected("not_found")
		return MoveResult{}, err
	}
	if rt.Status() != model.StatusActive {
		metrics.RecordMoveRejected("inactive")
		return MoveResult{}, fmt.Errorf("session %s is not active: %w", sessionID, model.ErrInvalidState)
	}

	maxCard := model.PairTarget * 2
	if card1 == card2 || card1 < 0 || card2 < 0 || card1 >= maxCard || card2 >= maxCard {
		metrics.RecordMoveRejected("invalid_cards")
		return MoveResult{}, fmt.Errorf("cards %d,%d invalid: %w", card1, card2, model.ErrInvalidArgument)
	}

	var (
		res MoveResult
		mv  model.Move
	)
	err = rt.WithPlayer(userID, func(p *repository.PlayerState) error {
		if p.Finished {
			return fmt.Errorf("player %s already finished: %w", userID, model.ErrInvalidState)
		}
		// The player lookup above establishes enrollment, so the guard only
		// ever tracks session members.
		if gerr := s.guard.Check(sessionID, userID); gerr != nil {
			return gerr
		}

		pairIdx := model.PairIndexOf(card1)
		otherIdx := model.PairIndexOf(card2)
		if _, dup := p.Matched[pairIdx]; dup {
			return fmt.Errorf("pair %d: %w", pairIdx, model.ErrAlreadyMatched)
		}
		if _, dup := p.Matched[otherIdx]; dup {
			return fmt.Errorf("pair %d: %w", otherIdx, model.ErrAlreadyMatched)
		}

		elapsed := s.now().Sub(p.StartedAt)
		correct := pairIdx == otherIdx
		points := s.policy.Delta(correct, p.Streak, elapsed)
		if correct {
			p.Matched[pairIdx] = struct{}{}
			p.Streak++
		} else {
			p.Streak = 0
		}
		p.Score += points
		p.Moves++

		remaining := model.PairTarget - len(p.Matched)
		// Exhausting the time budget ends the run; the closing move still
		// scores, with the time bonus already clamped to zero.
		if remaining == 0 || elapsed >= s.policy.TimeBudget() {
			p.Finished = true
		}

		res = MoveResult{
			Correct:        correct,
			Points:         points,
			Score:          p.Score,
			Streak:         p.Streak,
			PairIndex:      pairIdx,
			RemainingPairs: remaining,
			Finished:       p.Finished,
		}
		mv = model.Move{
			SessionID:       sessionID,
			UserID:          userID,
			MoveNumber:      p.Moves,
			Card1:           card1,
			Card2:           card2,
			Correct:         correct,
			Points:          points,
			ClientElapsedMs: clientElapsedMs,
			At:              s.now(),
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, model.ErrAntiCheat):
			metrics.RecordMoveRejected("anticheat")
		case errors.Is(err, model.ErrAlreadyMatched):
			metrics.RecordMoveRejected("already_matched")
		case errors.Is(err, model.ErrNotFound):
			metrics.RecordMoveRejected("not_found")
		default:
			metrics.RecordMoveRejected("invalid_state")
		}
		return MoveResult{}, err
	}

	if perr := s.store.AppendMove(ctx, mv); perr != nil {
		metrics.RecordPersistenceError()
		s.logger.Error(ctx, "move record failed",
			logger.String("session_id", sessionID.String()),
			logger.Error(perr),
		)
	}

	metrics.RecordMoveProcessed()
	metrics.RecordMoveLatency(float64(time.Since(start).Milliseconds()))
	s.broadcast(ctx, model.Event{
		Type:      model.EventMoveResult,
		SessionID: sessionID,
		UserID:    userID,
		Payload:   res,
	})

	if res.Finished {
		if _, cerr := s.Complete(ctx, sessionID, userID); cerr != nil {
			s.logger.Error(ctx, "auto completion failed",
				logger.String("session_id", sessionID.String()),
				logger.String("user_id", userID),
				logger.Error(cerr),
			)
		}
	}

	return res, nil
}

// Complete finalizes a player's run. A free session ends immediately; a
// staked session settles once both players have finished. Completing an
// already finished session returns the recorded state.
func (s *Service) Complete(ctx context.Context, sessionID uuid.UUID, userID string) (Outcome, error) {
	rt, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		// Session already evicted; serve the durable record.
		sess, perr := s.store.GetSession(ctx, sessionID)
		if perr != nil {
			return Outcome{}, perr
		}
		out := Outcome{Session: sess, Settled: sess.Status == model.StatusSettled}
		if plan, ok := s.engine.Result(sessionID); ok {
			out.Plan = &plan
		}
		return out, nil
	}

	_ = rt.WithPlayer(userID, func(p *repository.PlayerState) error {
		p.Finished = true
		return nil
	})

	var settle, freeDone bool
	err = rt.WithState(func(st *repository.State) error {
		sess := st.Session
		part := sess.Participant(userID)
		if part == nil {
			return fmt.Errorf("user %s not in session %s: %w", userID, sessionID, model.ErrNotFound)
		}

		switch sess.Status {
		case model.StatusActive, model.StatusSettling:
		case model.StatusCompleted, model.StatusSettled:
			return nil
		default:
			return fmt.Errorf("session %s is %s: %w", sessionID, sess.Status, model.ErrInvalidState)
		}

		if part.CompletedAt == nil {
			now := s.now()
			part.CompletedAt = &now
			part.Score = st.PlayerScore(userID)
		}

		if sess.Mode == model.ModeFree {
			if sess.Status == model.StatusActive {
				if err := sess.Transition(model.StatusCompleted); err != nil {
					return err
				}
				now := s.now()
				sess.CompletedAt = &now
				freeDone = true
			}
			return nil
		}

		if sess.AllCompleted() {
			if sess.Status == model.StatusActive {
				if err := sess.Transition(model.StatusSettling); err != nil {
					return err
				}
			}
			settle = sess.Status == model.StatusSettling
		}
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	snap := rt.Snapshot()
	s.saveSession(ctx, snap)
	s.broadcast(ctx, model.Event{
		Type:      model.EventPlayerCompleted,
		SessionID: sessionID,
		UserID:    userID,
	})

	if freeDone {
		s.guard.Untrack(sessionID)
		s.sessions.Delete(ctx, sessionID)
		s.logger.Info(ctx, "free session completed",
			logger.String("session_id", sessionID.String()),
			logger.String("user_id", userID),
		)
		return Outcome{Session: snap}, nil
	}
	if !settle {
		return Outcome{Session: snap}, nil
	}

	// The pot is distributed outside the session lock; the Settling status
	// keeps other transitions out while the ledger call is in flight.
	plan, err := s.engine.Settle(ctx, &snap)
	if err != nil {
		return Outcome{Session: snap}, err
	}

	var finalized bool
	err = rt.WithState(func(st *repository.State) error {
		sess := st.Session
		if sess.Status == model.StatusSettled {
			return nil
		}
		if err := sess.Transition(model.StatusSettled); err != nil {
			return err
		}
		finalized = true
		now := s.now()
		sess.CompletedAt = &now
		for _, p := range sess.Participants {
			won := p.UserID == plan.WinnerUserID
			winner := won
			p.Winner = &winner
			if won {
				payout := plan.WinnerPayout
				p.Payout = &payout
			}
		}
		return nil
	})
	if err != nil {
		return Outcome{Session: snap}, err
	}

	snap = rt.Snapshot()
	if !finalized {
		// A concurrent completion performed the Settling to Settled
		// transition and owns the settlement records.
		return Outcome{Session: snap, Settled: true, Plan: &plan}, nil
	}
	s.saveSession(ctx, snap)
	now := s.now()
	s.recordTx(ctx, persistence.Transaction{
		ID:        uuid.New(),
		SessionID: sessionID,
		Wallet:    plan.WinnerWallet,
		Type:      persistence.TxPayout,
		Amount:    plan.WinnerPayout,
		Status:    persistence.TxConfirmed,
		CreatedAt: now,
	})
	if plan.ReferrerID != "" {
		s.recordTx(ctx, persistence.Transaction{
			ID:        uuid.New(),
			SessionID: sessionID,
			Wallet:    plan.ReferrerID,
			Type:      persistence.TxAffiliateFee,
			Amount:    plan.AffiliateFee,
			Status:    persistence.TxConfirmed,
			CreatedAt: now,
		})
	}

	s.broadcast(ctx, model.Event{
		Type:      model.EventSessionSettled,
		SessionID: sessionID,
		Payload:   plan,
	})
	metrics.RecordSessionSettled()
	s.guard.Untrack(sessionID)
	s.sessions.Delete(ctx, sessionID)

	s.logger.Info(ctx, "session settled",
		logger.String("session_id", sessionID.String()),
		logger.String("winner", plan.WinnerUserID),
		logger.String("payout", plan.WinnerPayout.String()),
	)
	return Outcome{Session: snap, Settled: true, Plan: &plan}, nil
}
