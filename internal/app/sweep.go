package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	taskqueue "github.com/okian/twinpot/internal/adapters/mq/queue"
	"github.com/okian/twinpot/internal/adapters/persistence"
	"github.com/okian/twinpot/internal/adapters/repository"
	"github.com/okian/twinpot/internal/domain/model"
	"github.com/okian/twinpot/pkg/logger"
	"github.com/okian/twinpot/pkg/metrics"
)

// SweepExpired cancels waiting staked sessions whose join deadline passed and
// queues the initiator's refund. Returns the number of sessions cancelled.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	now := s.now()
	cancelled := 0

	for _, rt := range s.sessions.ByStatus(ctx, model.StatusWaiting) {
		var initiator *model.Participant
		err := rt.WithState(func(st *repository.State) error {
			sess := st.Session
			// Re-check under the lock; a join may have raced the sweep.
			if sess.Status != model.StatusWaiting {
				return model.ErrInvalidState
			}
			if sess.JoinDeadline == nil || !now.After(*sess.JoinDeadline) {
				return model.ErrInvalidState
			}
			if err := sess.Transition(model.StatusCancelled); err != nil {
				return err
			}
			if len(sess.Participants) > 0 {
				p := *sess.Participants[0]
				initiator = &p
			}
			return nil
		})
		if err != nil {
			continue
		}

		sessionID := rt.ID()
		snap := rt.Snapshot()
		s.saveSession(ctx, snap)

		if initiator != nil && snap.Stake > 0 {
			task := taskqueue.Task{
				ID:        refundTaskID(sessionID),
				Kind:      taskqueue.KindRefund,
				SessionID: sessionID,
				Wallet:    initiator.Wallet,
				Amount:    snap.Stake,
			}
			if !s.tasks.Enqueue(ctx, task) {
				s.logger.Error(ctx, "refund enqueue rejected",
					logger.String("session_id", sessionID.String()),
				)
			}
		}

		s.broadcast(ctx, model.Event{
			Type:      model.EventSessionCancelled,
			SessionID: sessionID,
		})
		metrics.RecordSessionCancelled()
		s.guard.Untrack(sessionID)
		s.sessions.Delete(ctx, sessionID)
		cancelled++

		s.logger.Info(ctx, "waiting session expired",
			logger.String("session_id", sessionID.String()),
		)
	}

	return cancelled, nil
}

// refundTaskID is the idempotency key for a session's refund; one session
// refunds at most once.
func refundTaskID(sessionID uuid.UUID) string {
	return "refund:" + sessionID.String()
}

// ledgerTaskExecutor applies queued ledger follow-ups for the worker pool.
type ledgerTaskExecutor struct {
	svc *Service
}

func (e *ledgerTaskExecutor) Execute(ctx context.Context, t taskqueue.Task) error {
	switch t.Kind {
	case taskqueue.KindRefund:
		return e.refund(ctx, t)
	default:
		return fmt.Errorf("unknown task kind %q: %w", t.Kind, model.ErrInvalidArgument)
	}
}

func (e *ledgerTaskExecutor) refund(ctx context.Context, t taskqueue.Task) error {
	s := e.svc

	start := time.Now()
	err := s.ledger.Refund(ctx, t.SessionID, t.Wallet, t.Amount)
	metrics.RecordLedgerLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordLedgerCall("refund", "error")
		return fmt.Errorf("refund for session %s: %w", t.SessionID, err)
	}
	metrics.RecordLedgerCall("refund", "ok")

	s.recordTx(ctx, persistence.Transaction{
		ID:        uuid.New(),
		SessionID: t.SessionID,
		Wallet:    t.Wallet,
		Type:      persistence.TxRefund,
		Amount:    t.Amount,
		Status:    persistence.TxConfirmed,
		CreatedAt: s.now(),
	})

	s.logger.Info(ctx, "stake refunded",
		logger.String("session_id", t.SessionID.String()),
		logger.String("wallet", t.Wallet),
		logger.String("amount", t.Amount.String()),
	)
	return nil
}
