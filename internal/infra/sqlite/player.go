package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/stagelight/fanquest/internal/domain"
)

// ─── Player Aggregate ───────────────────────────────────────────────────────

// EnsurePlayer creates the player row if it does not exist yet.
func (c *Conn) EnsurePlayer(ctx context.Context, userID string, at time.Time) error {
	_, err := c.q.ExecContext(ctx,
		`INSERT INTO players (user_id, created_at, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO NOTHING`,
		userID, at.Unix(), at.Unix(),
	)
	return err
}

// GetPlayer loads a player with pity counters. Returns nil if not found.
func (c *Conn) GetPlayer(ctx context.Context, userID string) (*domain.PlayerState, error) {
	row := c.q.QueryRowContext(ctx,
		`SELECT user_id, display_name, avatar_url, experience, currency,
		        daily_streak, weekly_streak, longest_daily_streak, last_daily_at, last_weekly_at,
		        issuance_date, issued_xp_events, issued_xp, issued_collectibles,
		        created_at, updated_at
		 FROM players WHERE user_id = ?`, userID)

	p, err := scanPlayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.Pity, err = c.Pity(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateProfile refreshes the display fields used by leaderboard snapshots.
func (c *Conn) UpdateProfile(ctx context.Context, userID, displayName, avatarURL string, at time.Time) error {
	_, err := c.q.ExecContext(ctx,
		`UPDATE players SET display_name = ?, avatar_url = ?, updated_at = ? WHERE user_id = ?`,
		displayName, avatarURL, at.Unix(), userID,
	)
	return err
}

// ApplyIssuance atomically adds to today's issuance counters, resetting them
// first when dateKey differs from the stored key. The cap check is part of
// the WHERE clause; false means a cap would have been exceeded and nothing
// was written. A zero cap is unlimited.
func (c *Conn) ApplyIssuance(ctx context.Context, userID, dateKey string,
	xpEvents int, xpAmount int64, collectibles int,
	capEvents int, capXP int64, capCollectibles int, at time.Time) (bool, error) {

	result, err := c.q.ExecContext(ctx,
		`UPDATE players SET
			issued_xp_events    = (CASE WHEN issuance_date = ?1 THEN issued_xp_events ELSE 0 END) + ?2,
			issued_xp           = (CASE WHEN issuance_date = ?1 THEN issued_xp ELSE 0 END) + ?3,
			issued_collectibles = (CASE WHEN issuance_date = ?1 THEN issued_collectibles ELSE 0 END) + ?4,
			issuance_date       = ?1,
			updated_at          = ?8
		 WHERE user_id = ?9
		   AND (?5 = 0 OR (CASE WHEN issuance_date = ?1 THEN issued_xp_events ELSE 0 END) + ?2 <= ?5)
		   AND (?6 = 0 OR (CASE WHEN issuance_date = ?1 THEN issued_xp ELSE 0 END) + ?3 <= ?6)
		   AND (?7 = 0 OR (CASE WHEN issuance_date = ?1 THEN issued_collectibles ELSE 0 END) + ?4 <= ?7)`,
		dateKey, xpEvents, xpAmount, collectibles,
		capEvents, capXP, capCollectibles,
		at.Unix(), userID,
	)
	if err != nil {
		return false, err
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// AddExperience increments total experience and appends to the experience log.
func (c *Conn) AddExperience(ctx context.Context, ev domain.ExperienceEvent) (int64, error) {
	if ev.Amount <= 0 {
		return 0, fmt.Errorf("%w: experience amount must be positive, got %d", domain.ErrInvalidInput, ev.Amount)
	}

	var total int64
	err := c.q.QueryRowContext(ctx,
		`UPDATE players SET experience = experience + ?, updated_at = ?
		 WHERE user_id = ? RETURNING experience`,
		ev.Amount, ev.CreatedAt.Unix(), ev.UserID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("add experience: %w", err)
	}

	_, err = c.q.ExecContext(ctx,
		`INSERT INTO experience_log (user_id, amount, source, day_key, week_key, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ev.UserID, ev.Amount, string(ev.Source), ev.DayKey, ev.WeekKey, ev.CreatedAt.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("log experience: %w", err)
	}
	return total, nil
}

// PeriodExperience sums logged experience for a day or ISO-week key.
func (c *Conn) PeriodExperience(ctx context.Context, userID string, board domain.Board, key string) (int64, error) {
	column := "day_key"
	if board == domain.BoardWeekly {
		column = "week_key"
	}
	var total int64
	err := c.q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM experience_log WHERE user_id = ? AND `+column+` = ?`,
		userID, key,
	).Scan(&total)
	return total, err
}

// ─── Currency ───────────────────────────────────────────────────────────────

// EarnCurrency credits the balance and writes the matching ledger entry.
func (c *Conn) EarnCurrency(ctx context.Context, userID string, amount int64, ref, reason string, at time.Time) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: earn amount must be positive, got %d", domain.ErrInvalidInput, amount)
	}
	var balance int64
	err := c.q.QueryRowContext(ctx,
		`UPDATE players SET currency = currency + ?, updated_at = ?
		 WHERE user_id = ? RETURNING currency`,
		amount, at.Unix(), userID,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("earn currency: %w", err)
	}
	return balance, c.insertLedger(ctx, domain.LedgerEntry{
		UserID: userID, Type: domain.LedgerEarn, Amount: amount, Balance: balance,
		Reference: ref, Description: reason, Timestamp: at,
	})
}

// SpendCurrency debits the balance only if it covers amount. This is the
// concurrency gate for paid grants: of two concurrent spends that together
// exceed the balance, exactly one succeeds.
func (c *Conn) SpendCurrency(ctx context.Context, userID string, amount int64, ref, reason string, at time.Time) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: spend amount must be positive, got %d", domain.ErrInvalidInput, amount)
	}
	var balance int64
	err := c.q.QueryRowContext(ctx,
		`UPDATE players SET currency = currency - ?1, updated_at = ?2
		 WHERE user_id = ?3 AND currency >= ?1 RETURNING currency`,
		amount, at.Unix(), userID,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrInsufficientCurrency
	}
	if err != nil {
		return 0, fmt.Errorf("spend currency: %w", err)
	}
	return balance, c.insertLedger(ctx, domain.LedgerEntry{
		UserID: userID, Type: domain.LedgerSpend, Amount: amount, Balance: balance,
		Reference: ref, Description: reason, Timestamp: at,
	})
}

func (c *Conn) insertLedger(ctx context.Context, e domain.LedgerEntry) error {
	_, err := c.q.ExecContext(ctx,
		`INSERT INTO currency_ledger (user_id, type, amount, balance, reference, description, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, string(e.Type), e.Amount, e.Balance, nullStr(e.Reference), nullStr(e.Description), e.Timestamp.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert ledger: %w", err)
	}
	return nil
}

// LedgerEntries returns the newest ledger entries for a user.
func (c *Conn) LedgerEntries(ctx context.Context, userID string, limit int) ([]domain.LedgerEntry, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT id, user_id, type, amount, balance, reference, description, timestamp
		 FROM currency_ledger WHERE user_id = ? ORDER BY id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var ts int64
		var ref, desc sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Amount, &e.Balance, &ref, &desc, &ts); err != nil {
			return nil, err
		}
		e.Reference = ref.String
		e.Description = desc.String
		e.Timestamp = time.Unix(ts, 0).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ─── Pity ───────────────────────────────────────────────────────────────────

// Pity returns the stored pity counters. Missing tiers read as zero.
func (c *Conn) Pity(ctx context.Context, userID string) (domain.PityCounters, error) {
	rows, err := c.q.QueryContext(ctx, `SELECT rarity, count FROM player_pity WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pity := domain.PityCounters{}
	for rows.Next() {
		var r string
		var n int
		if err := rows.Scan(&r, &n); err != nil {
			return nil, err
		}
		pity[domain.Rarity(r)] = n
	}
	return pity, rows.Err()
}

// SetPity writes every counter in pity. Call inside the grant transaction.
func (c *Conn) SetPity(ctx context.Context, userID string, pity domain.PityCounters) error {
	for r, n := range pity {
		if n < 0 {
			n = 0
		}
		_, err := c.q.ExecContext(ctx,
			`INSERT INTO player_pity (user_id, rarity, count) VALUES (?, ?, ?)
			 ON CONFLICT(user_id, rarity) DO UPDATE SET count = excluded.count`,
			userID, string(r), n,
		)
		if err != nil {
			return fmt.Errorf("set pity %s: %w", r, err)
		}
	}
	return nil
}

// ─── Streaks ────────────────────────────────────────────────────────────────

// CompareAndSetStreak moves a streak counter from (oldCount, oldLast) to
// (newCount, newLast). False means another writer changed it first.
func (c *Conn) CompareAndSetStreak(ctx context.Context, userID string, period domain.Period,
	oldCount int, oldLast *time.Time, newCount int, newLast time.Time) (bool, error) {

	var query string
	switch period {
	case domain.PeriodDaily:
		query = `UPDATE players SET daily_streak = ?1, last_daily_at = ?2,
				longest_daily_streak = MAX(longest_daily_streak, ?1), updated_at = ?2
			 WHERE user_id = ?3 AND daily_streak = ?4 AND COALESCE(last_daily_at, 0) = ?5`
	case domain.PeriodWeekly:
		query = `UPDATE players SET weekly_streak = ?1, last_weekly_at = ?2, updated_at = ?2
			 WHERE user_id = ?3 AND weekly_streak = ?4 AND COALESCE(last_weekly_at, 0) = ?5`
	default:
		return false, fmt.Errorf("%w: unknown period %q", domain.ErrInvalidInput, period)
	}

	var last int64
	if oldLast != nil {
		last = oldLast.Unix()
	}
	result, err := c.q.ExecContext(ctx, query, newCount, newLast.Unix(), userID, oldCount, last)
	if err != nil {
		return false, err
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

func scanPlayer(s scanner) (*domain.PlayerState, error) {
	var p domain.PlayerState
	var lastDaily, lastWeekly sql.NullInt64
	var created, updated int64
	err := s.Scan(&p.UserID, &p.DisplayName, &p.AvatarURL, &p.Experience, &p.Currency,
		&p.Streak.DailyCount, &p.Streak.WeeklyCount, &p.Streak.LongestDaily, &lastDaily, &lastWeekly,
		&p.Issuance.DateKey, &p.Issuance.XPEvents, &p.Issuance.XPAmount, &p.Issuance.Collectibles,
		&created, &updated)
	if err != nil {
		return nil, err
	}
	p.Streak.LastDailyAt = timePtr(lastDaily)
	p.Streak.LastWeeklyAt = timePtr(lastWeekly)
	p.CreatedAt = time.Unix(created, 0).UTC()
	p.UpdatedAt = time.Unix(updated, 0).UTC()
	return &p, nil
}
