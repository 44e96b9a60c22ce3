package domain

import "time"

// ─── Collectibles ───────────────────────────────────────────────────────────

// CollectibleItem is a catalog card. Member and Set are the constraints a
// grant request may filter on.
type CollectibleItem struct {
	ID     string `json:"id" toml:"id"`
	Name   string `json:"name" toml:"name"`
	Rarity Rarity `json:"rarity" toml:"rarity"`
	Member string `json:"member,omitempty" toml:"member"`
	Set    string `json:"set,omitempty" toml:"set"`
}

// ItemConstraint narrows item selection. Zero value matches everything.
type ItemConstraint struct {
	Member   string   `json:"member,omitempty"`
	Set      string   `json:"set,omitempty"`
	Featured []string `json:"featured,omitempty"`
}

// Matches reports whether item satisfies the constraint.
func (c ItemConstraint) Matches(item CollectibleItem) bool {
	if c.Member != "" && c.Member != item.Member {
		return false
	}
	if c.Set != "" && c.Set != item.Set {
		return false
	}
	if len(c.Featured) > 0 {
		for _, id := range c.Featured {
			if id == item.ID {
				return true
			}
		}
		return false
	}
	return true
}

// GrantSource records why a collectible was issued.
type GrantSource string

const (
	SourceQuest  GrantSource = "quest"
	SourceCraft  GrantSource = "craft"
	SourceStreak GrantSource = "streak"
	SourceEvent  GrantSource = "event"
	SourceGacha  GrantSource = "gacha"
)

// ValidSource reports whether s is a known grant source.
func ValidSource(s GrantSource) bool {
	switch s {
	case SourceQuest, SourceCraft, SourceStreak, SourceEvent, SourceGacha:
		return true
	}
	return false
}

// CollectibleGrant is an immutable audit record of one issued item.
type CollectibleGrant struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	ItemID      string      `json:"item_id"`
	Rarity      Rarity      `json:"rarity"`
	Source      GrantSource `json:"source"`
	QuestCode   string      `json:"quest_code,omitempty"`
	StreakCount int         `json:"streak_count,omitempty"`
	Seed        int64       `json:"seed,omitempty"`
	PityForced  bool        `json:"pity_forced,omitempty"`
	RequestID   string      `json:"request_id,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// ─── Badges ─────────────────────────────────────────────────────────────────

// BadgeDefinition is a catalog badge.
type BadgeDefinition struct {
	Code        string `json:"code" toml:"code"`
	Name        string `json:"name" toml:"name"`
	Description string `json:"description,omitempty" toml:"description"`
}

// BadgeGrant is unique per (user, badge code, variant). Variant 0 means the
// badge has no streak-count variant.
type BadgeGrant struct {
	UserID    string    `json:"user_id"`
	BadgeCode string    `json:"badge_code"`
	Variant   int       `json:"variant"`
	GrantedAt time.Time `json:"granted_at"`
}
