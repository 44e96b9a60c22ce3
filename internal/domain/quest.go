package domain

import (
	"time"

	"github.com/gosimple/slug"
)

// ─── Quest Catalog ──────────────────────────────────────────────────────────

// Period is the window a quest or streak is scoped to.
type Period string

const (
	PeriodDaily  Period = "daily"
	PeriodWeekly Period = "weekly"
)

// GoalType says how quest progress is produced.
type GoalType string

const (
	GoalQuizScore   GoalType = "quiz_score"   // best score reported by the client
	GoalActions     GoalType = "actions"      // running count reported by the client
	GoalStreamTrack GoalType = "stream_track" // verified plays of specific tracks
	GoalStreamAlbum GoalType = "stream_album" // verified plays of tracks on an album
)

// Streaming reports whether progress comes from the verification engine.
func (g GoalType) Streaming() bool {
	return g == GoalStreamTrack || g == GoalStreamAlbum
}

// RewardSpec is what claiming a completed quest pays out.
type RewardSpec struct {
	Currency         int64  `json:"currency" toml:"currency"`
	Experience       int64  `json:"experience" toml:"experience"`
	CollectibleFloor Rarity `json:"collectible_floor,omitempty" toml:"collectible_floor"`
	BadgeCode        string `json:"badge_code,omitempty" toml:"badge_code"`
}

// StreamTarget is one track or album a streaming quest counts plays for.
// Plays is the per-target requirement; 0 means every play counts.
type StreamTarget struct {
	Key    string   `json:"key" toml:"key"`
	Track  string   `json:"track,omitempty" toml:"track"`
	Artist string   `json:"artist" toml:"artist"`
	Album  string   `json:"album,omitempty" toml:"album"`
	Tracks []string `json:"tracks,omitempty" toml:"tracks"`
	Plays  int      `json:"plays,omitempty" toml:"plays"`
}

// TargetKey returns the key the target's count is stored under. An explicit
// Key wins; otherwise it is the slug of artist and title.
func (t StreamTarget) TargetKey() string {
	if t.Key != "" {
		return t.Key
	}
	title := t.Track
	if title == "" {
		title = t.Album
	}
	return slug.Make(t.Artist + " " + title)
}

// QuestDefinition is an immutable catalog entry.
type QuestDefinition struct {
	Code      string         `json:"code" toml:"code"`
	Title     string         `json:"title" toml:"title"`
	Period    Period         `json:"period" toml:"period"`
	GoalType  GoalType       `json:"goal_type" toml:"goal_type"`
	GoalValue int            `json:"goal_value" toml:"goal_value"`
	Reward    RewardSpec     `json:"reward" toml:"reward"`
	Targets   []StreamTarget `json:"targets,omitempty" toml:"targets"`
}

// ─── Quest Progress ─────────────────────────────────────────────────────────

// QuestState is the derived lifecycle position of a progress row.
type QuestState string

const (
	QuestNew        QuestState = "new"
	QuestInProgress QuestState = "in_progress"
	QuestCompleted  QuestState = "completed"
	QuestClaimed    QuestState = "claimed"
)

// QuestProgress is keyed by (user, quest code, period key).
type QuestProgress struct {
	UserID        string         `json:"user_id"`
	QuestCode     string         `json:"quest_code"`
	PeriodKey     string         `json:"period_key"`
	Progress      int            `json:"progress"`
	Completed     bool           `json:"completed"`
	Claimed       bool           `json:"claimed"`
	TrackProgress map[string]int `json:"track_progress,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	ClaimedAt     *time.Time     `json:"claimed_at,omitempty"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// State returns the lifecycle position.
func (q QuestProgress) State() QuestState {
	switch {
	case q.Claimed:
		return QuestClaimed
	case q.Completed:
		return QuestCompleted
	case q.Progress > 0:
		return QuestInProgress
	default:
		return QuestNew
	}
}
