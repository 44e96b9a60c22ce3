package domain

import (
	"fmt"
	"strings"
)

// Rarity is a collectible tier. Tiers are totally ordered.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

var rarityOrder = map[Rarity]int{
	RarityCommon:    0,
	RarityRare:      1,
	RarityEpic:      2,
	RarityLegendary: 3,
}

// AllRarities returns every tier from lowest to highest.
func AllRarities() []Rarity {
	return []Rarity{RarityCommon, RarityRare, RarityEpic, RarityLegendary}
}

// Rank returns the position of the tier, or -1 for an unknown tier.
func (r Rarity) Rank() int {
	if n, ok := rarityOrder[r]; ok {
		return n
	}
	return -1
}

// Valid reports whether r is a known tier.
func (r Rarity) Valid() bool { return r.Rank() >= 0 }

// AtLeast reports whether r is the same tier as floor or a higher one.
// An empty floor accepts every tier.
func (r Rarity) AtLeast(floor Rarity) bool {
	if floor == "" {
		return true
	}
	return r.Rank() >= floor.Rank()
}

// ParseRarity parses a tier name. The empty string parses to "" (no floor).
func ParseRarity(s string) (Rarity, error) {
	r := Rarity(strings.ToLower(strings.TrimSpace(s)))
	if r == "" || r.Valid() {
		return r, nil
	}
	return "", fmt.Errorf("%w: unknown rarity %q", ErrInvalidInput, s)
}
