package gacha

import (
	"context"
	"fmt"

	"github.com/stagelight/fanquest/internal/domain"
)

// Request is one grant to resolve.
type Request struct {
	Experience int64
	Pity       domain.PityCounters
	Floor      domain.Rarity
	Constraint domain.ItemConstraint
}

// Result is a resolved roll. Pity holds the counters to persist.
type Result struct {
	Tier   domain.Rarity
	Item   domain.CollectibleItem
	Pity   domain.PityCounters
	Forced bool
}

// Resolver turns grant requests into items.
type Resolver struct {
	cfg     Config
	catalog domain.Catalog
}

// NewResolver creates a resolver over the catalog.
func NewResolver(cfg Config, catalog domain.Catalog) *Resolver {
	return &Resolver{cfg: cfg, catalog: catalog}
}

// Config returns the resolver's tables.
func (r *Resolver) Config() Config { return r.cfg }

// Resolve picks a tier (pity override first, weighted draw otherwise) and
// then a uniformly random catalog item of that tier.
func (r *Resolver) Resolve(ctx context.Context, req Request, rng domain.RandomSource) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if req.Floor != "" && !req.Floor.Valid() {
		return Result{}, fmt.Errorf("%w: unknown rarity floor %q", domain.ErrInvalidInput, req.Floor)
	}
	pity := req.Pity
	if pity == nil {
		pity = domain.PityCounters{}
	}

	tier, forced := PityOverride(r.cfg.Tiers, pity, r.cfg.PityThresholds, req.Floor)
	if !forced {
		dist := EligibleDistribution(r.cfg.Tiers, r.cfg.BandFor(req.Experience), req.Floor)
		tier = Draw(dist, rng)
	}
	if tier == "" {
		// Floor sits above every configured tier
		tier = req.Floor
	}

	items := r.catalog.ItemsByRarity(tier, req.Constraint)
	if len(items) == 0 {
		return Result{}, fmt.Errorf("%w: tier %s", domain.ErrNoEligibleItems, tier)
	}
	item := items[rng.Intn(len(items))]

	return Result{
		Tier:   tier,
		Item:   item,
		Pity:   NextPity(r.cfg.Tiers, pity, tier, r.cfg.policy()),
		Forced: forced,
	}, nil
}
