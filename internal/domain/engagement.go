// Package domain holds the pure types of the progression and rewards engine.
// Nothing in here touches storage or the network.
package domain

import "time"

// ─── Player Aggregate ───────────────────────────────────────────────────────

// PlayerState is the single per-user aggregate mutated by every engine
// component. It is upserted, never deleted.
type PlayerState struct {
	UserID      string        `json:"user_id"`
	DisplayName string        `json:"display_name"`
	AvatarURL   string        `json:"avatar_url,omitempty"`
	Experience  int64         `json:"experience"`
	Currency    int64         `json:"currency"`
	Pity        PityCounters  `json:"pity"`
	Streak      StreakState   `json:"streak"`
	Issuance    DailyIssuance `json:"daily_issuance"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// PityCounters counts consecutive rolls without a hit at or above each tier.
type PityCounters map[Rarity]int

// Clone returns an independent copy.
func (p PityCounters) Clone() PityCounters {
	out := make(PityCounters, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// ─── Streak Types ───────────────────────────────────────────────────────────

// StreakState tracks consecutive full-quest-set completions.
type StreakState struct {
	DailyCount   int        `json:"daily_count"`
	WeeklyCount  int        `json:"weekly_count"`
	LongestDaily int        `json:"longest_daily"`
	LastDailyAt  *time.Time `json:"last_daily_completion_at,omitempty"`
	LastWeeklyAt *time.Time `json:"last_weekly_completion_at,omitempty"`
}

// Count returns the counter for the given period.
func (s StreakState) Count(p Period) int {
	if p == PeriodWeekly {
		return s.WeeklyCount
	}
	return s.DailyCount
}

// Last returns the last completion time for the given period.
func (s StreakState) Last(p Period) *time.Time {
	if p == PeriodWeekly {
		return s.LastWeeklyAt
	}
	return s.LastDailyAt
}

// ─── Daily Issuance ─────────────────────────────────────────────────────────

// DailyIssuance holds what has been issued to a player for one date key.
// A different date key means the counters are stale and read as zero.
type DailyIssuance struct {
	DateKey      string `json:"date_key"`
	XPEvents     int    `json:"xp_events"`
	XPAmount     int64  `json:"xp_amount"`
	Collectibles int    `json:"collectibles"`
}

// For returns the issuance counters as seen from dateKey.
func (d DailyIssuance) For(dateKey string) DailyIssuance {
	if d.DateKey != dateKey {
		return DailyIssuance{DateKey: dateKey}
	}
	return d
}

// ─── Level / XP Types ───────────────────────────────────────────────────────

// LevelProgress is the result of walking the level curve for a total.
type LevelProgress struct {
	Level     int     `json:"level"`
	IntoLevel int64   `json:"into_level"`
	ToNext    int64   `json:"to_next"`
	Required  int64   `json:"required"`
	Percent   float64 `json:"percent"`
}

// XPSource categorizes how XP was earned.
type XPSource string

const (
	XPQuestClaim XPSource = "quest_claim"
	XPStreak     XPSource = "streak"
	XPEvent      XPSource = "event"
)

// ExperienceEvent is one append-only experience award.
type ExperienceEvent struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Amount    int64     `json:"amount"`
	Source    XPSource  `json:"source"`
	DayKey    string    `json:"day_key"`
	WeekKey   string    `json:"week_key"`
	CreatedAt time.Time `json:"created_at"`
}

// ─── Currency Ledger ────────────────────────────────────────────────────────

// LedgerType tags a currency movement.
type LedgerType string

const (
	LedgerEarn  LedgerType = "EARN"
	LedgerSpend LedgerType = "SPEND"
)

// LedgerEntry is one currency movement, written together with the balance
// change it describes.
type LedgerEntry struct {
	ID          int64      `json:"id"`
	UserID      string     `json:"user_id"`
	Type        LedgerType `json:"type"`
	Amount      int64      `json:"amount"`
	Balance     int64      `json:"balance"`
	Reference   string     `json:"reference,omitempty"`
	Description string     `json:"description,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}
