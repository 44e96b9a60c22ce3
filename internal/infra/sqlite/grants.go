package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/stagelight/fanquest/internal/domain"
)

// ─── Collectible Grants ─────────────────────────────────────────────────────

// InsertGrant appends a collectible grant. A repeated (user, request id)
// pair fails with ErrAlreadyAwarded and writes nothing.
func (c *Conn) InsertGrant(ctx context.Context, g domain.CollectibleGrant) error {
	var streak sql.NullInt64
	if g.StreakCount > 0 {
		streak = sql.NullInt64{Int64: int64(g.StreakCount), Valid: true}
	}
	var seed sql.NullInt64
	if g.Seed != 0 {
		seed = sql.NullInt64{Int64: g.Seed, Valid: true}
	}

	result, err := c.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO collectible_grants
			(id, user_id, item_id, rarity, source, quest_code, streak_count, seed, pity_forced, request_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.UserID, g.ItemID, string(g.Rarity), string(g.Source),
		nullStr(g.QuestCode), streak, seed, boolInt(g.PityForced), nullStr(g.RequestID), g.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert grant: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrAlreadyAwarded
	}
	return nil
}

// GrantByRequest returns the grant recorded for an idempotency key, or nil.
func (c *Conn) GrantByRequest(ctx context.Context, userID, requestID string) (*domain.CollectibleGrant, error) {
	row := c.q.QueryRowContext(ctx,
		`SELECT id, user_id, item_id, rarity, source, quest_code, streak_count, seed, pity_forced, request_id, created_at
		 FROM collectible_grants WHERE user_id = ? AND request_id = ?`,
		userID, requestID,
	)
	g, err := scanGrant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return g, err
}

// ListGrants returns a user's newest grants.
func (c *Conn) ListGrants(ctx context.Context, userID string, limit int) ([]domain.CollectibleGrant, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT id, user_id, item_id, rarity, source, quest_code, streak_count, seed, pity_forced, request_id, created_at
		 FROM collectible_grants WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []domain.CollectibleGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, *g)
	}
	return grants, rows.Err()
}

// ─── Badges ─────────────────────────────────────────────────────────────────

// AwardBadge records a badge for (user, code, variant).
// Returns false if it was already awarded (idempotent).
func (c *Conn) AwardBadge(ctx context.Context, userID, code string, variant int, at time.Time) (bool, error) {
	result, err := c.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO badge_grants (user_id, badge_code, variant, granted_at) VALUES (?, ?, ?, ?)`,
		userID, code, variant, at.Unix(),
	)
	if err != nil {
		return false, err
	}
	n, _ := result.RowsAffected()
	return n > 0, nil // true = newly awarded
}

// ListBadges returns every badge a user holds.
func (c *Conn) ListBadges(ctx context.Context, userID string) ([]domain.BadgeGrant, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT user_id, badge_code, variant, granted_at FROM badge_grants
		 WHERE user_id = ? ORDER BY granted_at, badge_code, variant`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var badges []domain.BadgeGrant
	for rows.Next() {
		var b domain.BadgeGrant
		var ts int64
		if err := rows.Scan(&b.UserID, &b.BadgeCode, &b.Variant, &ts); err != nil {
			return nil, err
		}
		b.GrantedAt = time.Unix(ts, 0).UTC()
		badges = append(badges, b)
	}
	return badges, rows.Err()
}

func scanGrant(s scanner) (*domain.CollectibleGrant, error) {
	var g domain.CollectibleGrant
	var quest, request sql.NullString
	var streak, seed sql.NullInt64
	var created int64
	err := s.Scan(&g.ID, &g.UserID, &g.ItemID, &g.Rarity, &g.Source, &quest, &streak, &seed,
		&g.PityForced, &request, &created)
	if err != nil {
		return nil, err
	}
	g.QuestCode = quest.String
	g.StreakCount = int(streak.Int64)
	g.Seed = seed.Int64
	g.RequestID = request.String
	g.CreatedAt = time.Unix(created, 0).UTC()
	return &g, nil
}
