package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/okian/twinpot/internal/domain/model"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id             TEXT PRIMARY KEY,
	mode           TEXT NOT NULL,
	stake          INTEGER NOT NULL,
	board_id       TEXT NOT NULL,
	layout_hash    TEXT NOT NULL,
	escrow_address TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL,
	created_at     INTEGER NOT NULL,
	started_at     INTEGER,
	join_deadline  INTEGER,
	completed_at   INTEGER
);
CREATE TABLE IF NOT EXISTS participants (
	session_id   TEXT NOT NULL,
	user_id      TEXT NOT NULL,
	wallet       TEXT NOT NULL,
	role         TEXT NOT NULL,
	score        INTEGER NOT NULL DEFAULT 0,
	winner       INTEGER,
	payout       INTEGER,
	completed_at INTEGER,
	PRIMARY KEY (session_id, user_id)
);
CREATE TABLE IF NOT EXISTS moves (
	session_id        TEXT NOT NULL,
	user_id           TEXT NOT NULL,
	move_number       INTEGER NOT NULL,
	card1             INTEGER NOT NULL,
	card2             INTEGER NOT NULL,
	correct           INTEGER NOT NULL,
	points            INTEGER NOT NULL,
	client_elapsed_ms INTEGER NOT NULL,
	at                INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS transactions (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	wallet     TEXT NOT NULL,
	type       TEXT NOT NULL,
	amount     INTEGER NOT NULL,
	status     TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS affiliate_links (
	id               TEXT PRIMARY KEY,
	referrer_id      TEXT NOT NULL,
	referred_user_id TEXT NOT NULL,
	active           INTEGER NOT NULL,
	total_earnings   INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS affiliate_payouts (
	id         TEXT PRIMARY KEY,
	link_id    TEXT NOT NULL,
	session_id TEXT NOT NULL,
	amount     INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_moves_session ON moves(session_id);
`

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func millisPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

// ensure SQLiteStore satisfies Store.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements the persistence port over a single SQLite file.
// SQLite's single-writer model gives Accrue its serialization for free.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) the store at path. Use ":memory:" for an
// ephemeral database in tests.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %s: %w", path, err)
	}
	// Serialize access through one connection; modernc sqlite does not
	// support concurrent writers on a shared file handle.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// SaveSession upserts the durable session projection.
func (s *SQLiteStore) SaveSession(ctx context.Context, sess model.Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save session: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
INSERT INTO sessions (id, mode, stake, board_id, layout_hash, escrow_address, status, created_at, started_at, join_deadline, completed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	escrow_address = excluded.escrow_address,
	status         = excluded.status,
	started_at     = excluded.started_at,
	join_deadline  = excluded.join_deadline,
	completed_at   = excluded.completed_at`,
		sess.ID.String(), string(sess.Mode), int64(sess.Stake), sess.BoardID.String(),
		sess.LayoutHash, sess.EscrowAddress, string(sess.Status),
		toMillis(sess.CreatedAt), nullMillis(sess.StartedAt), nullMillis(sess.JoinDeadline), nullMillis(sess.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", sess.ID, err)
	}

	for _, p := range sess.Participants {
		var winner sql.NullInt64
		if p.Winner != nil {
			winner = sql.NullInt64{Int64: boolToInt(*p.Winner), Valid: true}
		}
		var payout sql.NullInt64
		if p.Payout != nil {
			payout = sql.NullInt64{Int64: int64(*p.Payout), Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO participants (session_id, user_id, wallet, role, score, winner, payout, completed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id, user_id) DO UPDATE SET
	score        = excluded.score,
	winner       = excluded.winner,
	payout       = excluded.payout,
	completed_at = excluded.completed_at`,
			sess.ID.String(), p.UserID, p.Wallet, string(p.Role), p.Score, winner, payout, nullMillis(p.CompletedAt),
		)
		if err != nil {
			return fmt.Errorf("upsert participant %s: %w", p.UserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save session: %w", err)
	}
	return nil
}

// GetSession reads the durable session state.
func (s *SQLiteStore) GetSession(ctx context.Context, id uuid.UUID) (model.Session, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, mode, stake, board_id, layout_hash, escrow_address, status, created_at, started_at, join_deadline, completed_at
FROM sessions WHERE id = ?`, id.String())

	var (
		sess                              model.Session
		idStr, modeStr, boardStr, status  string
		stake, createdAt                  int64
		startedAt, joinDeadline, doneAt   sql.NullInt64
	)
	err := row.Scan(&idStr, &modeStr, &stake, &boardStr, &sess.LayoutHash, &sess.EscrowAddress,
		&status, &createdAt, &startedAt, &joinDeadline, &doneAt)
	if err == sql.ErrNoRows {
		return model.Session{}, fmt.Errorf("session %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("read session %s: %w", id, err)
	}

	sess.ID, _ = uuid.Parse(idStr)
	sess.BoardID, _ = uuid.Parse(boardStr)
	sess.Mode = model.Mode(modeStr)
	sess.Stake = model.Amount(stake)
	sess.Status = model.Status(status)
	sess.CreatedAt = fromMillis(createdAt)
	sess.StartedAt = millisPtr(startedAt)
	sess.JoinDeadline = millisPtr(joinDeadline)
	sess.CompletedAt = millisPtr(doneAt)

	rows, err := s.db.QueryContext(ctx, `
SELECT user_id, wallet, role, score, winner, payout, completed_at
FROM participants WHERE session_id = ? ORDER BY role`, id.String())
	if err != nil {
		return model.Session{}, fmt.Errorf("read participants for %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p              model.Participant
			roleStr        string
			winner, payout sql.NullInt64
			completedAt    sql.NullInt64
		)
		if err := rows.Scan(&p.UserID, &p.Wallet, &roleStr, &p.Score, &winner, &payout, &completedAt); err != nil {
			return model.Session{}, fmt.Errorf("scan participant: %w", err)
		}
		p.Role = model.Role(roleStr)
		if winner.Valid {
			w := winner.Int64 != 0
			p.Winner = &w
		}
		if payout.Valid {
			amt := model.Amount(payout.Int64)
			p.Payout = &amt
		}
		p.CompletedAt = millisPtr(completedAt)
		sess.Participants = append(sess.Participants, &p)
	}
	if err := rows.Err(); err != nil {
		return model.Session{}, fmt.Errorf("iterate participants: %w", err)
	}
	return sess, nil
}

// AppendMove durably records one move.
func (s *SQLiteStore) AppendMove(ctx context.Context, m model.Move) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO moves (session_id, user_id, move_number, card1, card2, correct, points, client_elapsed_ms, at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.SessionID.String(), m.UserID, m.MoveNumber, m.Card1, m.Card2,
		boolToInt(m.Correct), m.Points, m.ClientElapsedMs, toMillis(m.At),
	)
	if err != nil {
		return fmt.Errorf("append move: %w", err)
	}
	return nil
}

// AppendTransaction durably records one funds movement.
func (s *SQLiteStore) AppendTransaction(ctx context.Context, t Transaction) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO transactions (id, session_id, wallet, type, amount, status, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID.String(), t.SessionID.String(), t.Wallet, string(t.Type),
		int64(t.Amount), string(t.Status), toMillis(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

// TopPlayers aggregates lifetime winnings over settled sessions.
func (s *SQLiteStore) TopPlayers(ctx context.Context, n int) ([]LeaderboardEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT user_id, SUM(payout), COUNT(*)
FROM participants
WHERE winner = 1 AND payout IS NOT NULL
GROUP BY user_id
ORDER BY SUM(payout) DESC, user_id ASC
LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []LeaderboardEntry
	for rows.Next() {
		var (
			e     LeaderboardEntry
			total int64
		)
		if err := rows.Scan(&e.UserID, &total, &e.GamesWon); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		e.TotalWinnings = model.Amount(total)
		e.Rank = len(entries) + 1
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leaderboard: %w", err)
	}
	return entries, nil
}

// SaveAffiliateLink upserts a referral relationship.
func (s *SQLiteStore) SaveAffiliateLink(ctx context.Context, link AffiliateLink) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO affiliate_links (id, referrer_id, referred_user_id, active, total_earnings)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	active         = excluded.active,
	total_earnings = excluded.total_earnings`,
		link.ID.String(), link.ReferrerID, link.ReferredUserID, boolToInt(link.Active), int64(link.TotalEarnings),
	)
	if err != nil {
		return fmt.Errorf("save affiliate link: %w", err)
	}
	return nil
}

// ActiveReferrer returns the referrer of a user if an active link exists.
func (s *SQLiteStore) ActiveReferrer(ctx context.Context, userID string) (string, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT referrer_id FROM affiliate_links WHERE referred_user_id = ? AND active = 1 LIMIT 1`, userID)

	var referrer string
	err := row.Scan(&referrer)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup referrer for %s: %w", userID, err)
	}
	return referrer, true, nil
}

// Accrue adds an affiliate fee to the referrer's lifetime earnings and
// records the payout row in the same transaction.
func (s *SQLiteStore) Accrue(ctx context.Context, referrerID string, sessionID uuid.UUID, amount model.Amount) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin accrue: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
SELECT id FROM affiliate_links WHERE referrer_id = ? AND active = 1 LIMIT 1`, referrerID)
	var linkID string
	if err := row.Scan(&linkID); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("affiliate link for referrer %s: %w", referrerID, model.ErrNotFound)
		}
		return fmt.Errorf("lookup link for %s: %w", referrerID, err)
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE affiliate_links SET total_earnings = total_earnings + ? WHERE id = ?`, int64(amount), linkID); err != nil {
		return fmt.Errorf("accrue earnings: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO affiliate_payouts (id, link_id, session_id, amount, created_at)
VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), linkID, sessionID.String(), int64(amount), toMillis(time.Now()),
	); err != nil {
		return fmt.Errorf("record affiliate payout: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit accrue: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
