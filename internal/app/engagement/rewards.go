package engagement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/stagelight/fanquest/internal/app/gacha"
	"github.com/stagelight/fanquest/internal/domain"
	"github.com/stagelight/fanquest/internal/infra/metrics"
	"github.com/stagelight/fanquest/internal/infra/sqlite"
)

// Rewarder pays out experience, currency and collectibles inside a caller's
// transaction. Every payout goes through the daily caps; nothing here opens
// its own transaction.
type Rewarder struct {
	resolver *gacha.Resolver
	caps     DailyCaps
	loc      *time.Location
	newSeed  func() (int64, error)
	log      *logrus.Entry
}

// NewRewarder creates a rewarder.
func NewRewarder(resolver *gacha.Resolver, caps DailyCaps, loc *time.Location, logger *logrus.Logger) *Rewarder {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Rewarder{
		resolver: resolver,
		caps:     caps,
		loc:      loc,
		newSeed:  gacha.NewSeed,
		log:      logger.WithField("component", "rewards"),
	}
}

// Caps returns the configured daily caps.
func (r *Rewarder) Caps() DailyCaps { return r.caps }

// rollRequest describes one collectible roll and its provenance.
type rollRequest struct {
	Floor       domain.Rarity
	Constraint  domain.ItemConstraint
	Source      domain.GrantSource
	QuestCode   string
	StreakCount int
	RequestID   string
}

// awardExperience issues amount experience if it fits under today's caps.
// player must have been loaded through tx; its issuance and experience are
// updated in place so later payouts in the same transaction see them.
func (r *Rewarder) awardExperience(ctx context.Context, tx *sqlite.Conn, player *domain.PlayerState,
	amount int64, source domain.XPSource, at time.Time) (int64, bool, error) {

	if amount <= 0 {
		return 0, false, nil
	}
	dayKey := DayKey(at, r.loc)
	issued := player.Issuance.For(dayKey)

	d := CheckCaps(amount, 0, issued, r.caps)
	if d.XPCapped {
		metrics.CapRejections.WithLabelValues("xp").Inc()
		return 0, true, nil
	}

	ok, err := tx.ApplyIssuance(ctx, player.UserID, dayKey, 1, amount, 0,
		r.caps.XPEvents, r.caps.XPAmount, r.caps.Collectibles, at)
	if err != nil {
		return 0, false, fmt.Errorf("apply xp issuance: %w", err)
	}
	if !ok {
		metrics.CapRejections.WithLabelValues("xp").Inc()
		return 0, true, nil
	}

	total, err := tx.AddExperience(ctx, domain.ExperienceEvent{
		UserID:    player.UserID,
		Amount:    amount,
		Source:    source,
		DayKey:    dayKey,
		WeekKey:   WeekKey(at, r.loc),
		CreatedAt: at,
	})
	if err != nil {
		return 0, false, err
	}

	issued.XPEvents++
	issued.XPAmount += amount
	player.Issuance = issued
	player.Experience = total
	metrics.ExperienceAwarded.WithLabelValues(string(source)).Add(float64(amount))
	return amount, false, nil
}

// rollCollectible resolves and records one collectible. A cap hit returns
// (nil, true, nil) and writes nothing. The updated pity counters are
// persisted with the grant.
func (r *Rewarder) rollCollectible(ctx context.Context, tx *sqlite.Conn, player *domain.PlayerState,
	req rollRequest, at time.Time) (*domain.CollectibleGrant, bool, error) {

	dayKey := DayKey(at, r.loc)
	issued := player.Issuance.For(dayKey)
	if d := CheckCaps(0, 1, issued, r.caps); d.CollectibleCapped {
		metrics.CapRejections.WithLabelValues("collectible").Inc()
		return nil, true, nil
	}

	seed, err := r.newSeed()
	if err != nil {
		return nil, false, err
	}
	res, err := r.resolver.Resolve(ctx, gacha.Request{
		Experience: player.Experience,
		Pity:       player.Pity,
		Floor:      req.Floor,
		Constraint: req.Constraint,
	}, gacha.NewSource(seed))
	if err != nil {
		return nil, false, err
	}

	ok, err := tx.ApplyIssuance(ctx, player.UserID, dayKey, 0, 0, 1,
		r.caps.XPEvents, r.caps.XPAmount, r.caps.Collectibles, at)
	if err != nil {
		return nil, false, fmt.Errorf("apply collectible issuance: %w", err)
	}
	if !ok {
		metrics.CapRejections.WithLabelValues("collectible").Inc()
		return nil, true, nil
	}

	if err := tx.SetPity(ctx, player.UserID, res.Pity); err != nil {
		return nil, false, err
	}

	grant := domain.CollectibleGrant{
		ID:          uuid.NewString(),
		UserID:      player.UserID,
		ItemID:      res.Item.ID,
		Rarity:      res.Tier,
		Source:      req.Source,
		QuestCode:   req.QuestCode,
		StreakCount: req.StreakCount,
		Seed:        seed,
		PityForced:  res.Forced,
		RequestID:   req.RequestID,
		CreatedAt:   at,
	}
	if err := tx.InsertGrant(ctx, grant); err != nil {
		return nil, false, err
	}

	issued.Collectibles++
	player.Issuance = issued
	player.Pity = res.Pity

	metrics.GrantsTotal.WithLabelValues(string(req.Source), string(res.Tier)).Inc()
	if res.Forced {
		metrics.PityForced.WithLabelValues(string(res.Tier)).Inc()
	}
	r.log.WithFields(logrus.Fields{
		"user":   player.UserID,
		"item":   grant.ItemID,
		"rarity": grant.Rarity,
		"source": grant.Source,
		"forced": grant.PityForced,
	}).Debug("collectible granted")
	return &grant, false, nil
}

// ─── Paid / direct grants ───────────────────────────────────────────────────

// PullRequest is what a player may ask for when buying a pull: an optional
// featured-item constraint and an idempotency key.
type PullRequest struct {
	Constraint domain.ItemConstraint `json:"constraint"`
	RequestID  string                `json:"request_id,omitempty"`
}

// GrantRequest asks for one collectible. It is the trusted form used for
// event and craft grants; player pulls go through PullRequest and are
// priced by the resolver's configuration.
type GrantRequest struct {
	Cost       int64                 `json:"cost"`
	Floor      domain.Rarity         `json:"floor,omitempty"`
	Constraint domain.ItemConstraint `json:"constraint"`
	Source     domain.GrantSource    `json:"source"`
	RequestID  string                `json:"request_id,omitempty"`
}

// GrantResult is the recorded grant plus the player after it.
type GrantResult struct {
	Grant  domain.CollectibleGrant `json:"grant"`
	Player domain.PlayerState      `json:"player"`
	Replay bool                    `json:"replay,omitempty"`
}

// errReplay carries an earlier grant out of the transaction.
type errReplay struct{ grant domain.CollectibleGrant }

func (e *errReplay) Error() string { return "grant already recorded for request" }

// grant runs a direct grant in one transaction: replay check, currency
// deduction, cap, roll, pity and grant record. Any failure rolls all of it
// back, so currency is never spent without a recorded grant.
func (r *Rewarder) grant(ctx context.Context, db *sqlite.DB, userID string, req GrantRequest, at time.Time) (GrantResult, error) {
	if req.Source == "" {
		req.Source = domain.SourceGacha
	}
	if !domain.ValidSource(req.Source) {
		return GrantResult{}, fmt.Errorf("%w: unknown grant source %q", domain.ErrInvalidInput, req.Source)
	}
	if req.Cost < 0 {
		return GrantResult{}, fmt.Errorf("%w: negative cost", domain.ErrInvalidInput)
	}
	if req.Source == domain.SourceGacha && req.Cost == 0 {
		return GrantResult{}, fmt.Errorf("%w: gacha pulls must be paid for", domain.ErrInvalidInput)
	}
	if req.Floor != "" && !req.Floor.Valid() {
		return GrantResult{}, fmt.Errorf("%w: unknown rarity %q", domain.ErrInvalidInput, req.Floor)
	}

	var out GrantResult
	err := db.InTx(ctx, func(tx *sqlite.Conn) error {
		if err := tx.EnsurePlayer(ctx, userID, at); err != nil {
			return err
		}
		if req.RequestID != "" {
			prev, err := tx.GrantByRequest(ctx, userID, req.RequestID)
			if err != nil {
				return err
			}
			if prev != nil {
				return &errReplay{grant: *prev}
			}
		}

		if req.Cost > 0 {
			if _, err := tx.SpendCurrency(ctx, userID, req.Cost, req.RequestID, "collectible grant", at); err != nil {
				return err
			}
		}

		player, err := tx.GetPlayer(ctx, userID)
		if err != nil {
			return err
		}
		g, capped, err := r.rollCollectible(ctx, tx, player, rollRequest{
			Floor:      req.Floor,
			Constraint: req.Constraint,
			Source:     req.Source,
			RequestID:  req.RequestID,
		}, at)
		if err != nil {
			return err
		}
		if capped {
			return fmt.Errorf("%w: daily collectible cap reached", domain.ErrNotEligible)
		}
		out.Grant = *g
		return nil
	})

	var replay *errReplay
	switch {
	case errors.As(err, &replay):
		metrics.GrantReplays.Inc()
		return GrantResult{Grant: replay.grant, Replay: true}, domain.ErrAlreadyAwarded
	case errors.Is(err, domain.ErrAlreadyAwarded):
		// lost a race on the same request id; report the winner
		metrics.GrantReplays.Inc()
		prev, lookupErr := db.GrantByRequest(ctx, userID, req.RequestID)
		if lookupErr != nil || prev == nil {
			return GrantResult{}, err
		}
		return GrantResult{Grant: *prev, Replay: true}, domain.ErrAlreadyAwarded
	case err != nil:
		return GrantResult{}, err
	}

	if req.Cost > 0 {
		metrics.CurrencyFlow.WithLabelValues("spend").Add(float64(req.Cost))
	}
	return out, nil
}

// pull buys one unfloored collectible at the configured price.
func (r *Rewarder) pull(ctx context.Context, db *sqlite.DB, userID string, req PullRequest, at time.Time) (GrantResult, error) {
	return r.grant(ctx, db, userID, GrantRequest{
		Cost:       r.resolver.Config().PullCost,
		Constraint: req.Constraint,
		Source:     domain.SourceGacha,
		RequestID:  req.RequestID,
	}, at)
}
