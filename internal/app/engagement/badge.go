package engagement

import (
	"context"
	"sort"

	"github.com/stagelight/fanquest/internal/domain"
	"github.com/stagelight/fanquest/internal/infra/sqlite"
)

// Milestone is a streak count that unlocks a badge variant, and optionally
// a bonus collectible with a guaranteed rarity floor.
type Milestone struct {
	Count      int           `toml:"count" json:"count"`
	BadgeCode  string        `toml:"badge" json:"badge"`
	BonusFloor domain.Rarity `toml:"bonus_floor" json:"bonus_floor,omitempty"`
}

// DefaultMilestones returns the stock streak milestones.
func DefaultMilestones() map[domain.Period][]Milestone {
	return map[domain.Period][]Milestone{
		domain.PeriodDaily: {
			{Count: 3, BadgeCode: "daily-streak"},
			{Count: 7, BadgeCode: "daily-streak", BonusFloor: domain.RarityRare},
			{Count: 30, BadgeCode: "daily-streak", BonusFloor: domain.RarityEpic},
			{Count: 100, BadgeCode: "daily-streak", BonusFloor: domain.RarityLegendary},
		},
		domain.PeriodWeekly: {
			{Count: 4, BadgeCode: "weekly-streak", BonusFloor: domain.RarityRare},
			{Count: 12, BadgeCode: "weekly-streak", BonusFloor: domain.RarityEpic},
			{Count: 52, BadgeCode: "weekly-streak", BonusFloor: domain.RarityLegendary},
		},
	}
}

// reachedMilestones returns the milestones with Count <= count, lowest first.
func reachedMilestones(ms []Milestone, count int) []Milestone {
	var out []Milestone
	for _, m := range ms {
		if m.Count > 0 && m.Count <= count {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count < out[j].Count })
	return out
}

// BadgeView is a held badge with its catalog text.
type BadgeView struct {
	domain.BadgeGrant
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ListBadges returns a user's badges with names from the catalog. Badges
// the catalog no longer knows keep their code as name.
func ListBadges(ctx context.Context, db *sqlite.DB, catalog domain.Catalog, userID string) ([]BadgeView, error) {
	grants, err := db.ListBadges(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]BadgeView, 0, len(grants))
	for _, g := range grants {
		v := BadgeView{BadgeGrant: g, Name: g.BadgeCode}
		if def, ok := catalog.Badge(g.BadgeCode); ok {
			v.Name = def.Name
			v.Description = def.Description
		}
		views = append(views, v)
	}
	return views, nil
}
