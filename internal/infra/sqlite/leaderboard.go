package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/stagelight/fanquest/internal/domain"
)

// ─── Leaderboards ───────────────────────────────────────────────────────────

// UpsertLeaderboardEntry stores a user's score for a board period. The score
// only moves up. Closed periods are rejected with ErrPeriodClosed.
func (c *Conn) UpsertLeaderboardEntry(ctx context.Context, e domain.LeaderboardEntry, at time.Time) error {
	result, err := c.q.ExecContext(ctx,
		`INSERT INTO leaderboard_entries
			(board, period_key, user_id, score, display_name, avatar_url, created_at, updated_at)
		 SELECT ?1, ?2, ?3, ?4, ?5, ?6, ?7, ?7
		 WHERE NOT EXISTS (SELECT 1 FROM leaderboard_periods WHERE board = ?1 AND period_key = ?2)
		 ON CONFLICT(board, period_key, user_id) DO UPDATE SET
			score        = MAX(score, excluded.score),
			display_name = excluded.display_name,
			avatar_url   = excluded.avatar_url,
			updated_at   = excluded.updated_at`,
		string(e.Board), e.PeriodKey, e.UserID, e.Score, e.DisplayName, e.AvatarURL, at.Unix(),
	)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrPeriodClosed
	}
	return nil
}

// LeaderboardEntry returns a user's entry, or nil if the user has none.
func (c *Conn) LeaderboardEntry(ctx context.Context, board domain.Board, key, userID string) (*domain.LeaderboardEntry, error) {
	row := c.q.QueryRowContext(ctx,
		`SELECT id, board, period_key, user_id, score, display_name, avatar_url, created_at, updated_at
		 FROM leaderboard_entries WHERE board = ? AND period_key = ? AND user_id = ?`,
		string(board), key, userID,
	)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// RankForScore returns 1 + the number of entries with a strictly greater
// score. Ties share a rank.
func (c *Conn) RankForScore(ctx context.Context, board domain.Board, key string, score int64) (int, error) {
	var greater int
	err := c.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM leaderboard_entries WHERE board = ? AND period_key = ? AND score > ?`,
		string(board), key, score,
	).Scan(&greater)
	return greater + 1, err
}

// LeaderboardAfter returns up to limit entries ordered by (score DESC, id DESC)
// strictly after the cursor position. A nil cursor starts at the top.
func (c *Conn) LeaderboardAfter(ctx context.Context, board domain.Board, key string, after *Cursor, limit int) ([]domain.LeaderboardEntry, error) {
	var rows *sql.Rows
	var err error
	if after == nil {
		rows, err = c.q.QueryContext(ctx,
			`SELECT id, board, period_key, user_id, score, display_name, avatar_url, created_at, updated_at
			 FROM leaderboard_entries WHERE board = ? AND period_key = ?
			 ORDER BY score DESC, id DESC LIMIT ?`,
			string(board), key, limit,
		)
	} else {
		rows, err = c.q.QueryContext(ctx,
			`SELECT id, board, period_key, user_id, score, display_name, avatar_url, created_at, updated_at
			 FROM leaderboard_entries WHERE board = ?1 AND period_key = ?2
			   AND (score < ?3 OR (score = ?3 AND id < ?4))
			 ORDER BY score DESC, id DESC LIMIT ?5`,
			string(board), key, after.Score, after.ID, limit,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// Cursor is a position in the (score DESC, id DESC) ordering.
type Cursor struct {
	Score int64
	ID    int64
}

// ClosePeriod freezes a board period. Idempotent.
func (c *Conn) ClosePeriod(ctx context.Context, board domain.Board, key string, at time.Time) (bool, error) {
	result, err := c.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO leaderboard_periods (board, period_key, closed_at) VALUES (?, ?, ?)`,
		string(board), key, at.Unix(),
	)
	if err != nil {
		return false, err
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// OpenPeriods lists period keys of a board that have entries and are not closed.
func (c *Conn) OpenPeriods(ctx context.Context, board domain.Board) ([]string, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT DISTINCT e.period_key FROM leaderboard_entries e
		 WHERE e.board = ? AND NOT EXISTS (
			SELECT 1 FROM leaderboard_periods p WHERE p.board = e.board AND p.period_key = e.period_key)
		 ORDER BY e.period_key`,
		string(board),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func scanEntry(s scanner) (*domain.LeaderboardEntry, error) {
	var e domain.LeaderboardEntry
	var created, updated int64
	err := s.Scan(&e.ID, &e.Board, &e.PeriodKey, &e.UserID, &e.Score, &e.DisplayName, &e.AvatarURL, &created, &updated)
	if err != nil {
		return nil, err
	}
	e.CreatedAt = time.Unix(created, 0).UTC()
	e.UpdatedAt = time.Unix(updated, 0).UTC()
	return &e, nil
}
