package domain

import "time"

// ─── Leaderboards ───────────────────────────────────────────────────────────

// Board names a scoring window family.
type Board string

const (
	BoardDaily   Board = "daily"
	BoardWeekly  Board = "weekly"
	BoardAllTime Board = "all-time"
)

// AllTimeKey is the fixed period key of the all-time board.
const AllTimeKey = "all-time"

// ParseBoard validates a board name.
func ParseBoard(s string) (Board, bool) {
	switch Board(s) {
	case BoardDaily, BoardWeekly, BoardAllTime:
		return Board(s), true
	}
	return "", false
}

// LeaderboardEntry is one user's snapshot for a board period.
type LeaderboardEntry struct {
	ID          int64     `json:"-"`
	Board       Board     `json:"board"`
	PeriodKey   string    `json:"period_key"`
	UserID      string    `json:"user_id"`
	Score       int64     `json:"score"`
	Rank        int       `json:"rank"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LeaderboardPage is one cursor page of a board period.
type LeaderboardPage struct {
	Board      Board              `json:"board"`
	PeriodKey  string             `json:"period_key"`
	Entries    []LeaderboardEntry `json:"entries"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

// RankResult answers a "my rank" query.
type RankResult struct {
	Board     Board  `json:"board"`
	PeriodKey string `json:"period_key"`
	UserID    string `json:"user_id"`
	Score     int64  `json:"score"`
	Rank      int    `json:"rank"`
	Ranked    bool   `json:"ranked"`
}
