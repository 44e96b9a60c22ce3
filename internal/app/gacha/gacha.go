// Package gacha resolves a grant request into a rarity tier and a concrete
// collectible. Resolution is split into pure steps (eligible distribution,
// pity override, pity update) and one impure draw that takes an injected
// random source.
//
// The resolver never writes anything. Persisting the updated pity counters
// and the grant, together with any currency deduction, is the caller's job
// and must happen in one transaction.
package gacha

import (
	"fmt"
	"sort"

	"github.com/stagelight/fanquest/internal/domain"
)

// ResetPolicy decides what a hit does to the pity counters of lower tiers.
type ResetPolicy string

const (
	// ResetCascade resets the resolved tier and every lower tier. A
	// legendary hit is also a hit "at or above" epic, so epic resets too.
	ResetCascade ResetPolicy = "cascade"

	// ResetExact resets only the resolved tier. Lower tiers keep counting
	// from where they were.
	ResetExact ResetPolicy = "exact"
)

// Band is the weight table used for players at or above MinExperience.
type Band struct {
	MinExperience int64                     `toml:"min_experience"`
	Weights       map[domain.Rarity]float64 `toml:"weights"`
}

// Config is the tunable part of the resolver.
type Config struct {
	Tiers          []domain.Rarity       `toml:"tiers"` // lowest first
	Bands          []Band                `toml:"bands"`
	PityThresholds map[domain.Rarity]int `toml:"pity_thresholds"`
	ResetPolicy    ResetPolicy           `toml:"reset_policy"`

	// PullCost is the currency price of one player-bought pull. Players
	// never set the price, the floor or the source of their own pulls.
	PullCost int64 `toml:"pull_cost"`
}

// DefaultConfig returns the reference tables: three experience bands that
// shift weight toward rarer tiers, and pity at 10/30/90 rolls.
func DefaultConfig() Config {
	return Config{
		Tiers: domain.AllRarities(),
		Bands: []Band{
			{MinExperience: 0, Weights: map[domain.Rarity]float64{
				domain.RarityCommon: 70, domain.RarityRare: 22, domain.RarityEpic: 7, domain.RarityLegendary: 1,
			}},
			{MinExperience: 5_000, Weights: map[domain.Rarity]float64{
				domain.RarityCommon: 62, domain.RarityRare: 26, domain.RarityEpic: 9, domain.RarityLegendary: 3,
			}},
			{MinExperience: 25_000, Weights: map[domain.Rarity]float64{
				domain.RarityCommon: 50, domain.RarityRare: 30, domain.RarityEpic: 15, domain.RarityLegendary: 5,
			}},
		},
		PityThresholds: map[domain.Rarity]int{
			domain.RarityRare:      10,
			domain.RarityEpic:      30,
			domain.RarityLegendary: 90,
		},
		ResetPolicy: ResetCascade,
		PullCost:    50,
	}
}

// Validate checks tiers are known and ordered, the policy is recognized
// and pulls have a price.
func (c Config) Validate() error {
	if len(c.Tiers) == 0 {
		return fmt.Errorf("gacha: no tiers configured")
	}
	for i, t := range c.Tiers {
		if !t.Valid() {
			return fmt.Errorf("gacha: unknown tier %q", t)
		}
		if i > 0 && t.Rank() <= c.Tiers[i-1].Rank() {
			return fmt.Errorf("gacha: tiers must be ordered lowest first")
		}
	}
	for t, n := range c.PityThresholds {
		if n < 0 {
			return fmt.Errorf("gacha: negative pity threshold for %s", t)
		}
	}
	switch c.ResetPolicy {
	case ResetCascade, ResetExact, "":
	default:
		return fmt.Errorf("gacha: unknown reset policy %q", c.ResetPolicy)
	}
	if c.PullCost <= 0 {
		return fmt.Errorf("gacha: pull_cost must be positive")
	}
	return nil
}

// BandFor returns the weight table for a player's experience: the band with
// the highest MinExperience not above xp. Falls back to the lowest band.
func (c Config) BandFor(xp int64) map[domain.Rarity]float64 {
	if len(c.Bands) == 0 {
		return nil
	}
	bands := make([]Band, len(c.Bands))
	copy(bands, c.Bands)
	sort.Slice(bands, func(i, j int) bool { return bands[i].MinExperience < bands[j].MinExperience })

	chosen := bands[0]
	for _, b := range bands {
		if xp >= b.MinExperience {
			chosen = b
		}
	}
	return chosen.Weights
}

func (c Config) policy() ResetPolicy {
	if c.ResetPolicy == "" {
		return ResetCascade
	}
	return c.ResetPolicy
}
