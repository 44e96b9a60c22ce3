package catalog

import "github.com/stagelight/fanquest/internal/domain"

// Default returns the built-in catalog. It is small on purpose: enough
// quests to fill a daily and weekly board, and items in every tier.
// Deployments point catalog.path at their own TOML file.
func Default() File {
	return File{
		Quests: []domain.QuestDefinition{
			{
				Code:      "daily-quiz",
				Title:     "Score 8 or more in the daily trivia",
				Period:    domain.PeriodDaily,
				GoalType:  domain.GoalQuizScore,
				GoalValue: 8,
				Reward:    domain.RewardSpec{Currency: 20, Experience: 60},
			},
			{
				Code:      "daily-cheer",
				Title:     "Send 3 cheers",
				Period:    domain.PeriodDaily,
				GoalType:  domain.GoalActions,
				GoalValue: 3,
				Reward:    domain.RewardSpec{Currency: 10, Experience: 40},
			},
			{
				Code:      "daily-first-love",
				Title:     "Stream First Love 5 times",
				Period:    domain.PeriodDaily,
				GoalType:  domain.GoalStreamTrack,
				GoalValue: 5,
				Reward:    domain.RewardSpec{Currency: 30, Experience: 80, CollectibleFloor: domain.RarityCommon},
				Targets: []domain.StreamTarget{
					{Track: "First Love", Artist: "BTS", Plays: 5},
				},
			},
			{
				Code:      "weekly-wings",
				Title:     "Stream 10 tracks from WINGS",
				Period:    domain.PeriodWeekly,
				GoalType:  domain.GoalStreamAlbum,
				GoalValue: 10,
				Reward:    domain.RewardSpec{Currency: 120, Experience: 400, CollectibleFloor: domain.RarityRare},
				Targets: []domain.StreamTarget{
					{
						Album:  "WINGS",
						Artist: "BTS",
						Tracks: []string{"Blood Sweat & Tears", "First Love", "Lie", "Stigma", "Reflection", "Mama", "Awake", "Lost"},
					},
				},
			},
			{
				Code:      "weekly-quiz-master",
				Title:     "Reach a perfect trivia score",
				Period:    domain.PeriodWeekly,
				GoalType:  domain.GoalQuizScore,
				GoalValue: 10,
				Reward:    domain.RewardSpec{Currency: 80, Experience: 250, BadgeCode: "quiz-master"},
			},
		},
		Items: []domain.CollectibleItem{
			{ID: "pc-rm-debut", Name: "Debut Photocard", Rarity: domain.RarityCommon, Member: "RM", Set: "debut"},
			{ID: "pc-jin-debut", Name: "Debut Photocard", Rarity: domain.RarityCommon, Member: "Jin", Set: "debut"},
			{ID: "pc-suga-debut", Name: "Debut Photocard", Rarity: domain.RarityCommon, Member: "Suga", Set: "debut"},
			{ID: "pc-jhope-debut", Name: "Debut Photocard", Rarity: domain.RarityCommon, Member: "j-hope", Set: "debut"},
			{ID: "pc-jimin-wings", Name: "WINGS Photocard", Rarity: domain.RarityRare, Member: "Jimin", Set: "wings"},
			{ID: "pc-v-wings", Name: "WINGS Photocard", Rarity: domain.RarityRare, Member: "V", Set: "wings"},
			{ID: "pc-jk-wings", Name: "WINGS Photocard", Rarity: domain.RarityRare, Member: "Jung Kook", Set: "wings"},
			{ID: "poster-wings-tour", Name: "Wings Tour Poster", Rarity: domain.RarityEpic, Set: "wings"},
			{ID: "polaroid-suga-signed", Name: "Signed Polaroid", Rarity: domain.RarityEpic, Member: "Suga", Set: "live"},
			{ID: "lightstick-gold", Name: "Golden Lightstick", Rarity: domain.RarityLegendary, Set: "live"},
		},
		Badges: []domain.BadgeDefinition{
			{Code: "daily-streak", Name: "Daily Devotion", Description: "Finished every daily quest on consecutive days."},
			{Code: "weekly-streak", Name: "Weekly Regular", Description: "Finished every weekly quest in consecutive weeks."},
			{Code: "quiz-master", Name: "Quiz Master", Description: "Perfect trivia score."},
		},
	}
}
