// Package sqlite provides SQLite-based persistent storage for fanquest.
// Uses WAL mode for concurrent reads and crash-safe writes. Every mutating
// method is a single conditional statement so callers never need a
// read-check-write sequence outside a transaction.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	msqlite "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Conn runs statements either directly against the database or inside a
// transaction opened by DB.InTx.
type Conn struct {
	q querier
}

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	Conn
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/state.db.
// Enables WAL mode, foreign keys, a 5-second busy timeout and immediate
// write transactions.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "state.db")
	dsn := "file:" + dbPath +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite is single-writer; one connection also serializes transactions
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	d := &DB{Conn: Conn{q: db}, db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// PingContext checks database connectivity with a deadline.
func (d *DB) PingContext(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// InTx runs fn inside one transaction. A busy or locked database is retried
// once before the error is returned. fn must only use the Conn it is given.
func (d *DB) InTx(ctx context.Context, fn func(tx *Conn) error) error {
	err := d.inTx(ctx, fn)
	if err != nil && IsBusy(err) {
		err = d.inTx(ctx, fn)
	}
	return err
}

func (d *DB) inTx(ctx context.Context, fn func(tx *Conn) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(&Conn{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// IsBusy reports whether err is SQLITE_BUSY or SQLITE_LOCKED.
func IsBusy(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case 5, 6: // SQLITE_BUSY, SQLITE_LOCKED
		return true
	}
	return false
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		// ─── Player aggregate ──────────────────────────────────────────
		`CREATE TABLE IF NOT EXISTS players (
			user_id              TEXT PRIMARY KEY,
			display_name         TEXT NOT NULL DEFAULT '',
			avatar_url           TEXT NOT NULL DEFAULT '',
			experience           INTEGER NOT NULL DEFAULT 0 CHECK (experience >= 0),
			currency             INTEGER NOT NULL DEFAULT 0 CHECK (currency >= 0),
			daily_streak         INTEGER NOT NULL DEFAULT 0,
			weekly_streak        INTEGER NOT NULL DEFAULT 0,
			longest_daily_streak INTEGER NOT NULL DEFAULT 0,
			last_daily_at        INTEGER,
			last_weekly_at       INTEGER,
			issuance_date        TEXT NOT NULL DEFAULT '',
			issued_xp_events     INTEGER NOT NULL DEFAULT 0,
			issued_xp            INTEGER NOT NULL DEFAULT 0,
			issued_collectibles  INTEGER NOT NULL DEFAULT 0,
			created_at           INTEGER NOT NULL,
			updated_at           INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS player_pity (
			user_id TEXT NOT NULL,
			rarity  TEXT NOT NULL,
			count   INTEGER NOT NULL DEFAULT 0 CHECK (count >= 0),
			PRIMARY KEY (user_id, rarity)
		)`,

		// Append-only experience awards (feeds period leaderboards)
		`CREATE TABLE IF NOT EXISTS experience_log (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    TEXT NOT NULL,
			amount     INTEGER NOT NULL,
			source     TEXT NOT NULL,
			day_key    TEXT NOT NULL,
			week_key   TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_xp_day ON experience_log(user_id, day_key)`,
		`CREATE INDEX IF NOT EXISTS idx_xp_week ON experience_log(user_id, week_key)`,

		// Currency ledger, one row per balance change
		`CREATE TABLE IF NOT EXISTS currency_ledger (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id     TEXT NOT NULL,
			type        TEXT NOT NULL,
			amount      INTEGER NOT NULL,
			balance     INTEGER NOT NULL,
			reference   TEXT,
			description TEXT,
			timestamp   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_user ON currency_ledger(user_id, id)`,

		// ─── Quests ────────────────────────────────────────────────────
		`CREATE TABLE IF NOT EXISTS quest_progress (
			user_id      TEXT NOT NULL,
			quest_code   TEXT NOT NULL,
			period_key   TEXT NOT NULL,
			progress     INTEGER NOT NULL DEFAULT 0,
			completed    BOOLEAN NOT NULL DEFAULT 0,
			claimed      BOOLEAN NOT NULL DEFAULT 0,
			completed_at INTEGER,
			claimed_at   INTEGER,
			updated_at   INTEGER NOT NULL,
			PRIMARY KEY (user_id, quest_code, period_key),
			CHECK (claimed = 0 OR completed = 1)
		)`,
		`CREATE TABLE IF NOT EXISTS quest_track_progress (
			user_id    TEXT NOT NULL,
			quest_code TEXT NOT NULL,
			period_key TEXT NOT NULL,
			target_key TEXT NOT NULL,
			count      INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (user_id, quest_code, period_key, target_key)
		)`,

		// ─── Grants ────────────────────────────────────────────────────
		`CREATE TABLE IF NOT EXISTS collectible_grants (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL,
			item_id      TEXT NOT NULL,
			rarity       TEXT NOT NULL,
			source       TEXT NOT NULL,
			quest_code   TEXT,
			streak_count INTEGER,
			seed         INTEGER,
			pity_forced  BOOLEAN NOT NULL DEFAULT 0,
			request_id   TEXT,
			created_at   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_grants_user ON collectible_grants(user_id, created_at)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_grants_request
			ON collectible_grants(user_id, request_id) WHERE request_id IS NOT NULL`,
		`CREATE TABLE IF NOT EXISTS badge_grants (
			user_id    TEXT NOT NULL,
			badge_code TEXT NOT NULL,
			variant    INTEGER NOT NULL DEFAULT 0,
			granted_at INTEGER NOT NULL,
			PRIMARY KEY (user_id, badge_code, variant)
		)`,

		// ─── Leaderboards ──────────────────────────────────────────────
		`CREATE TABLE IF NOT EXISTS leaderboard_entries (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			board        TEXT NOT NULL,
			period_key   TEXT NOT NULL,
			user_id      TEXT NOT NULL,
			score        INTEGER NOT NULL DEFAULT 0,
			display_name TEXT NOT NULL DEFAULT '',
			avatar_url   TEXT NOT NULL DEFAULT '',
			created_at   INTEGER NOT NULL,
			updated_at   INTEGER NOT NULL,
			UNIQUE (board, period_key, user_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_leaderboard_rank
			ON leaderboard_entries(board, period_key, score DESC, id DESC)`,
		`CREATE TABLE IF NOT EXISTS leaderboard_periods (
			board      TEXT NOT NULL,
			period_key TEXT NOT NULL,
			closed_at  INTEGER NOT NULL,
			PRIMARY KEY (board, period_key)
		)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func nullableUnix(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
