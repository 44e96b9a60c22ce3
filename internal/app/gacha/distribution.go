package gacha

import "github.com/stagelight/fanquest/internal/domain"

// Weighted is one tier of a distribution.
type Weighted struct {
	Tier   domain.Rarity
	Weight float64
}

// EligibleDistribution returns the configured tiers at or above floor with
// their weights, lowest first. Mass below the floor is dropped; negative
// weights count as zero.
func EligibleDistribution(tiers []domain.Rarity, weights map[domain.Rarity]float64, floor domain.Rarity) []Weighted {
	dist := make([]Weighted, 0, len(tiers))
	for _, t := range tiers {
		if !t.AtLeast(floor) {
			continue
		}
		w := weights[t]
		if w < 0 {
			w = 0
		}
		dist = append(dist, Weighted{Tier: t, Weight: w})
	}
	return dist
}

// PityOverride returns the tier a roll is forced to, if any. When several
// tiers have reached their threshold the highest wins. Tiers below floor
// are ignored since any floor-respecting result already satisfies them.
func PityOverride(tiers []domain.Rarity, pity domain.PityCounters, thresholds map[domain.Rarity]int, floor domain.Rarity) (domain.Rarity, bool) {
	for i := len(tiers) - 1; i >= 0; i-- {
		t := tiers[i]
		limit := thresholds[t]
		if limit <= 0 || !t.AtLeast(floor) {
			continue
		}
		if pity[t] >= limit {
			return t, true
		}
	}
	return "", false
}

// Draw samples a tier: sum the weights, draw uniformly in [0, total), then
// walk the tiers subtracting weight until the remainder goes negative. A
// zero total returns the lowest tier of dist. An empty dist returns "".
func Draw(dist []Weighted, rng domain.RandomSource) domain.Rarity {
	if len(dist) == 0 {
		return ""
	}

	var total float64
	for _, w := range dist {
		total += w.Weight
	}
	if total <= 0 {
		return dist[0].Tier
	}

	r := rng.Float64() * total
	last := dist[0].Tier
	for _, w := range dist {
		if w.Weight <= 0 {
			continue
		}
		last = w.Tier
		r -= w.Weight
		if r < 0 {
			return w.Tier
		}
	}
	// Float rounding left r at exactly zero
	return last
}

// NextPity returns the pity counters after resolving a roll to resolved.
// Higher tiers always count one more miss; the resolved tier resets; lower
// tiers reset under ResetCascade and are left as they were under ResetExact.
func NextPity(tiers []domain.Rarity, pity domain.PityCounters, resolved domain.Rarity, policy ResetPolicy) domain.PityCounters {
	next := pity.Clone()
	for _, t := range tiers {
		switch {
		case t.Rank() > resolved.Rank():
			next[t] = pity[t] + 1
		case t == resolved:
			next[t] = 0
		case policy != ResetExact:
			next[t] = 0
		}
	}
	return next
}
