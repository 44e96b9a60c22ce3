package gacha

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagelight/fanquest/internal/domain"
)

type fixedRand struct {
	f float64
	i int
}

func (r fixedRand) Float64() float64 { return r.f }
func (r fixedRand) Intn(n int) int {
	if r.i >= n {
		return n - 1
	}
	return r.i
}

type stubCatalog struct {
	items []domain.CollectibleItem
}

func (c stubCatalog) Quest(string) (domain.QuestDefinition, bool)            { return domain.QuestDefinition{}, false }
func (c stubCatalog) QuestsForPeriod(domain.Period) []domain.QuestDefinition { return nil }
func (c stubCatalog) Badge(string) (domain.BadgeDefinition, bool)            { return domain.BadgeDefinition{}, false }
func (c stubCatalog) ItemsByRarity(tier domain.Rarity, con domain.ItemConstraint) []domain.CollectibleItem {
	var out []domain.CollectibleItem
	for _, it := range c.items {
		if it.Rarity == tier && con.Matches(it) {
			out = append(out, it)
		}
	}
	return out
}

func fullCatalog() stubCatalog {
	return stubCatalog{items: []domain.CollectibleItem{
		{ID: "c1", Name: "Stage Pass", Rarity: domain.RarityCommon, Member: "mina"},
		{ID: "c2", Name: "Lightstick", Rarity: domain.RarityCommon, Member: "jun"},
		{ID: "r1", Name: "Tour Poster", Rarity: domain.RarityRare, Member: "mina"},
		{ID: "e1", Name: "Signed Polaroid", Rarity: domain.RarityEpic, Member: "jun"},
		{ID: "l1", Name: "Debut Photocard", Rarity: domain.RarityLegendary, Member: "mina"},
	}}
}

var tiers = domain.AllRarities()

func TestEligibleDistributionDropsBelowFloor(t *testing.T) {
	weights := DefaultConfig().BandFor(0)

	dist := EligibleDistribution(tiers, weights, domain.RarityEpic)
	require.Len(t, dist, 2)
	assert.Equal(t, domain.RarityEpic, dist[0].Tier)
	assert.Equal(t, domain.RarityLegendary, dist[1].Tier)
	assert.InDelta(t, 7.0, dist[0].Weight, 0.0001)

	all := EligibleDistribution(tiers, weights, "")
	assert.Len(t, all, 4)
}

func TestBandFor(t *testing.T) {
	cfg := DefaultConfig()
	assert.InDelta(t, 70.0, cfg.BandFor(0)[domain.RarityCommon], 0.0001)
	assert.InDelta(t, 70.0, cfg.BandFor(4_999)[domain.RarityCommon], 0.0001)
	assert.InDelta(t, 62.0, cfg.BandFor(5_000)[domain.RarityCommon], 0.0001)
	assert.InDelta(t, 50.0, cfg.BandFor(1_000_000)[domain.RarityCommon], 0.0001)
}

func TestDrawWalksCumulativeWeights(t *testing.T) {
	dist := []Weighted{
		{Tier: domain.RarityCommon, Weight: 70},
		{Tier: domain.RarityRare, Weight: 20},
		{Tier: domain.RarityEpic, Weight: 9},
		{Tier: domain.RarityLegendary, Weight: 1},
	}
	cases := []struct {
		f    float64
		want domain.Rarity
	}{
		{0.0, domain.RarityCommon},
		{0.699, domain.RarityCommon},
		{0.70, domain.RarityRare},
		{0.89, domain.RarityRare},
		{0.95, domain.RarityEpic},
		{0.995, domain.RarityLegendary},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Draw(dist, fixedRand{f: tc.f}), "f=%v", tc.f)
	}
}

func TestDrawZeroTotalReturnsLowestEligible(t *testing.T) {
	dist := []Weighted{
		{Tier: domain.RarityRare, Weight: 0},
		{Tier: domain.RarityEpic, Weight: 0},
	}
	assert.Equal(t, domain.RarityRare, Draw(dist, fixedRand{f: 0.9}))
	assert.Equal(t, domain.Rarity(""), Draw(nil, fixedRand{}))
}

func TestPityOverride(t *testing.T) {
	th := DefaultConfig().PityThresholds

	_, forced := PityOverride(tiers, domain.PityCounters{domain.RarityRare: 9}, th, "")
	assert.False(t, forced)

	tier, forced := PityOverride(tiers, domain.PityCounters{domain.RarityRare: 10}, th, "")
	assert.True(t, forced)
	assert.Equal(t, domain.RarityRare, tier)

	// highest reached tier wins
	tier, forced = PityOverride(tiers, domain.PityCounters{
		domain.RarityRare: 40, domain.RarityEpic: 30, domain.RarityLegendary: 5,
	}, th, "")
	assert.True(t, forced)
	assert.Equal(t, domain.RarityEpic, tier)

	// a forced tier below the floor is ignored
	_, forced = PityOverride(tiers, domain.PityCounters{domain.RarityRare: 15}, th, domain.RarityEpic)
	assert.False(t, forced)
}

func TestNextPityCascade(t *testing.T) {
	pity := domain.PityCounters{domain.RarityRare: 4, domain.RarityEpic: 12, domain.RarityLegendary: 50}

	next := NextPity(tiers, pity, domain.RarityEpic, ResetCascade)
	assert.Equal(t, 0, next[domain.RarityRare])
	assert.Equal(t, 0, next[domain.RarityEpic])
	assert.Equal(t, 51, next[domain.RarityLegendary])

	// input untouched
	assert.Equal(t, 12, pity[domain.RarityEpic])
}

func TestNextPityExact(t *testing.T) {
	pity := domain.PityCounters{domain.RarityRare: 4, domain.RarityEpic: 12, domain.RarityLegendary: 50}

	next := NextPity(tiers, pity, domain.RarityEpic, ResetExact)
	assert.Equal(t, 4, next[domain.RarityRare])
	assert.Equal(t, 0, next[domain.RarityEpic])
	assert.Equal(t, 51, next[domain.RarityLegendary])
}

func TestNextPityCommonIncrementsEverythingAbove(t *testing.T) {
	next := NextPity(tiers, domain.PityCounters{}, domain.RarityCommon, ResetCascade)
	assert.Equal(t, 0, next[domain.RarityCommon])
	assert.Equal(t, 1, next[domain.RarityRare])
	assert.Equal(t, 1, next[domain.RarityEpic])
	assert.Equal(t, 1, next[domain.RarityLegendary])
}

func TestResolveWeighted(t *testing.T) {
	r := NewResolver(DefaultConfig(), fullCatalog())

	res, err := r.Resolve(context.Background(), Request{}, fixedRand{f: 0.1})
	require.NoError(t, err)
	assert.Equal(t, domain.RarityCommon, res.Tier)
	assert.Equal(t, "c1", res.Item.ID)
	assert.False(t, res.Forced)
	assert.Equal(t, 1, res.Pity[domain.RarityLegendary])
}

func TestResolvePityForced(t *testing.T) {
	r := NewResolver(DefaultConfig(), fullCatalog())

	res, err := r.Resolve(context.Background(), Request{
		Pity: domain.PityCounters{domain.RarityLegendary: 90, domain.RarityEpic: 3},
	}, fixedRand{f: 0.0})
	require.NoError(t, err)
	assert.True(t, res.Forced)
	assert.Equal(t, domain.RarityLegendary, res.Tier)
	assert.Equal(t, "l1", res.Item.ID)
	assert.Equal(t, 0, res.Pity[domain.RarityLegendary])
	assert.Equal(t, 0, res.Pity[domain.RarityEpic])
}

func TestResolveRespectsFloor(t *testing.T) {
	r := NewResolver(DefaultConfig(), fullCatalog())

	for _, f := range []float64{0, 0.3, 0.6, 0.99} {
		res, err := r.Resolve(context.Background(), Request{Floor: domain.RarityEpic}, fixedRand{f: f})
		require.NoError(t, err)
		assert.True(t, res.Tier.AtLeast(domain.RarityEpic), "f=%v got %s", f, res.Tier)
	}
}

func TestResolveNoEligibleItems(t *testing.T) {
	r := NewResolver(DefaultConfig(), fullCatalog())

	_, err := r.Resolve(context.Background(), Request{
		Floor:      domain.RarityLegendary,
		Constraint: domain.ItemConstraint{Member: "jun"},
	}, fixedRand{})
	assert.ErrorIs(t, err, domain.ErrNoEligibleItems)
}

func TestResolveInvalidFloor(t *testing.T) {
	r := NewResolver(DefaultConfig(), fullCatalog())
	_, err := r.Resolve(context.Background(), Request{Floor: "mythic"}, fixedRand{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSeededSourceIsReproducible(t *testing.T) {
	seed, err := NewSeed()
	require.NoError(t, err)

	r := NewResolver(DefaultConfig(), fullCatalog())
	a, err := r.Resolve(context.Background(), Request{Experience: 6_000}, NewSource(seed))
	require.NoError(t, err)
	b, err := r.Resolve(context.Background(), Request{Experience: 6_000}, NewSource(seed))
	require.NoError(t, err)
	assert.Equal(t, a.Item.ID, b.Item.ID)
	assert.Equal(t, a.Tier, b.Tier)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.Tiers = []domain.Rarity{domain.RarityEpic, domain.RarityCommon}
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.ResetPolicy = "sometimes"
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.PullCost = 0
	assert.Error(t, bad.Validate())
}
