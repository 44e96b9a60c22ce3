package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/stagelight/fanquest/internal/domain"
)

// ─── Quest Progress ─────────────────────────────────────────────────────────

// MergeQuestProgress upserts progress with max-merge semantics: the stored
// value never decreases. Returns the stored progress after the merge.
func (c *Conn) MergeQuestProgress(ctx context.Context, userID, code, periodKey string, progress int, at time.Time) (int, error) {
	if progress < 0 {
		progress = 0
	}
	var stored int
	err := c.q.QueryRowContext(ctx,
		`INSERT INTO quest_progress (user_id, quest_code, period_key, progress, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, quest_code, period_key) DO UPDATE SET
			progress   = MAX(progress, excluded.progress),
			updated_at = excluded.updated_at
		 RETURNING progress`,
		userID, code, periodKey, progress, at.Unix(),
	).Scan(&stored)
	return stored, err
}

// MergeTrackCounts upserts per-target counts, each with max-merge semantics,
// and returns the full stored map for the quest period.
func (c *Conn) MergeTrackCounts(ctx context.Context, userID, code, periodKey string, counts map[string]int, at time.Time) (map[string]int, error) {
	for key, n := range counts {
		if n < 0 {
			n = 0
		}
		_, err := c.q.ExecContext(ctx,
			`INSERT INTO quest_track_progress (user_id, quest_code, period_key, target_key, count, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(user_id, quest_code, period_key, target_key) DO UPDATE SET
				count      = MAX(count, excluded.count),
				updated_at = excluded.updated_at`,
			userID, code, periodKey, key, n, at.Unix(),
		)
		if err != nil {
			return nil, err
		}
	}
	return c.TrackCounts(ctx, userID, code, periodKey)
}

// TrackCounts returns the stored per-target counts.
func (c *Conn) TrackCounts(ctx context.Context, userID, code, periodKey string) (map[string]int, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT target_key, count FROM quest_track_progress
		 WHERE user_id = ? AND quest_code = ? AND period_key = ?`,
		userID, code, periodKey,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return nil, err
		}
		counts[k] = n
	}
	return counts, rows.Err()
}

// CompleteQuest flips completed false→true if progress has reached goal.
// Exactly one caller observes true for a given row.
func (c *Conn) CompleteQuest(ctx context.Context, userID, code, periodKey string, goal int, at time.Time) (bool, error) {
	result, err := c.q.ExecContext(ctx,
		`UPDATE quest_progress SET completed = 1, completed_at = ?, updated_at = ?
		 WHERE user_id = ? AND quest_code = ? AND period_key = ?
		   AND completed = 0 AND progress >= ?`,
		at.Unix(), at.Unix(), userID, code, periodKey, goal,
	)
	if err != nil {
		return false, err
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// ClaimQuest flips claimed false→true on a completed row. On a miss it
// reports ErrNotEligible (no row, or not completed) or ErrAlreadyClaimed.
func (c *Conn) ClaimQuest(ctx context.Context, userID, code, periodKey string, at time.Time) error {
	result, err := c.q.ExecContext(ctx,
		`UPDATE quest_progress SET claimed = 1, claimed_at = ?, updated_at = ?
		 WHERE user_id = ? AND quest_code = ? AND period_key = ?
		   AND completed = 1 AND claimed = 0`,
		at.Unix(), at.Unix(), userID, code, periodKey,
	)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n > 0 {
		return nil
	}

	qp, err := c.GetQuestProgress(ctx, userID, code, periodKey)
	if err != nil {
		return err
	}
	if qp != nil && qp.Claimed {
		return domain.ErrAlreadyClaimed
	}
	return domain.ErrNotEligible
}

// GetQuestProgress returns one progress row, or nil if none exists yet.
func (c *Conn) GetQuestProgress(ctx context.Context, userID, code, periodKey string) (*domain.QuestProgress, error) {
	row := c.q.QueryRowContext(ctx,
		`SELECT user_id, quest_code, period_key, progress, completed, claimed,
		        completed_at, claimed_at, updated_at
		 FROM quest_progress WHERE user_id = ? AND quest_code = ? AND period_key = ?`,
		userID, code, periodKey,
	)
	qp, err := scanQuestProgress(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	qp.TrackProgress, err = c.TrackCounts(ctx, userID, code, periodKey)
	if err != nil {
		return nil, err
	}
	return qp, nil
}

// CountCompleted returns how many of codes are completed for periodKey.
func (c *Conn) CountCompleted(ctx context.Context, userID, periodKey string, codes []string) (int, error) {
	if len(codes) == 0 {
		return 0, nil
	}
	n := 0
	for _, code := range codes {
		var done bool
		err := c.q.QueryRowContext(ctx,
			`SELECT completed FROM quest_progress WHERE user_id = ? AND quest_code = ? AND period_key = ?`,
			userID, code, periodKey,
		).Scan(&done)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if done {
			n++
		}
	}
	return n, nil
}

func scanQuestProgress(s scanner) (*domain.QuestProgress, error) {
	var qp domain.QuestProgress
	var completedAt, claimedAt sql.NullInt64
	var updated int64
	err := s.Scan(&qp.UserID, &qp.QuestCode, &qp.PeriodKey, &qp.Progress, &qp.Completed, &qp.Claimed,
		&completedAt, &claimedAt, &updated)
	if err != nil {
		return nil, err
	}
	qp.CompletedAt = timePtr(completedAt)
	qp.ClaimedAt = timePtr(claimedAt)
	qp.UpdatedAt = time.Unix(updated, 0).UTC()
	return &qp, nil
}
