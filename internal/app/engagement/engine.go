// Package engagement is the progression and rewards engine: leveling,
// daily issuance caps, quest tracking, streaks and badges, leaderboards,
// and the Engine facade the API handlers call.
//
// Every state change is a conditional write inside one store transaction.
// Nothing is cached per user in memory; two requests for the same user can
// run in any order and the store settles them.
package engagement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/stagelight/fanquest/internal/app/gacha"
	"github.com/stagelight/fanquest/internal/app/verify"
	"github.com/stagelight/fanquest/internal/domain"
	"github.com/stagelight/fanquest/internal/infra/metrics"
	"github.com/stagelight/fanquest/internal/infra/sqlite"
)

// Config tunes the engine.
type Config struct {
	Location            *time.Location
	Curve               Curve
	Caps                DailyCaps
	Milestones          map[domain.Period][]Milestone
	LeaderboardPageSize int
	LeaderboardMaxPage  int

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// DefaultConfig returns UTC, the default curve, no caps and the stock
// milestones.
func DefaultConfig() Config {
	return Config{
		Location:            time.UTC,
		Curve:               DefaultCurve(),
		Milestones:          DefaultMilestones(),
		LeaderboardPageSize: 25,
		LeaderboardMaxPage:  100,
	}
}

// Engine is the facade over every engine component.
type Engine struct {
	db       *sqlite.DB
	catalog  domain.Catalog
	verifier *verify.Verifier
	rewards  *Rewarder
	quests   *QuestTracker
	streaks  *StreakAwarder
	boards   *LeaderboardService
	curve    Curve
	loc      *time.Location
	now      func() time.Time
	flights  singleflight.Group
	log      *logrus.Entry
}

// NewEngine wires the components. verifier may be nil when no streaming
// provider is configured.
func NewEngine(db *sqlite.DB, catalog domain.Catalog, resolver *gacha.Resolver, verifier *verify.Verifier, cfg Config, logger *logrus.Logger) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Curve.Base <= 0 {
		cfg.Curve = DefaultCurve()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	rewards := NewRewarder(resolver, cfg.Caps, cfg.Location, logger)
	return &Engine{
		db:       db,
		catalog:  catalog,
		verifier: verifier,
		rewards:  rewards,
		quests:   NewQuestTracker(db, catalog, rewards, cfg.Location, logger),
		streaks:  NewStreakAwarder(db, rewards, cfg.Milestones, cfg.Location, logger),
		boards:   NewLeaderboardService(db, cfg.Location, cfg.LeaderboardPageSize, cfg.LeaderboardMaxPage, logger),
		curve:    cfg.Curve,
		loc:      cfg.Location,
		now:      cfg.Now,
		log:      logger.WithField("component", "engine"),
	}
}

// Leaderboards exposes the leaderboard service (period closer, CLI).
func (e *Engine) Leaderboards() *LeaderboardService { return e.boards }

// Curve returns the leveling curve.
func (e *Engine) Curve() Curve { return e.curve }

// ─── Aggregate state ────────────────────────────────────────────────────────

// PlayerView is the aggregate state returned by every mutating operation.
type PlayerView struct {
	domain.PlayerState
	Level domain.LevelProgress `json:"level"`
}

// Player returns the user's aggregate state, creating it on first sight.
func (e *Engine) Player(ctx context.Context, userID string) (PlayerView, error) {
	if err := validUser(userID); err != nil {
		return PlayerView{}, err
	}
	if err := e.db.EnsurePlayer(ctx, userID, e.now()); err != nil {
		return PlayerView{}, err
	}
	return e.view(ctx, userID)
}

func (e *Engine) view(ctx context.Context, userID string) (PlayerView, error) {
	p, err := e.db.GetPlayer(ctx, userID)
	if err != nil {
		return PlayerView{}, err
	}
	if p == nil {
		return PlayerView{}, fmt.Errorf("player %s vanished", userID)
	}
	p.Issuance = p.Issuance.For(DayKey(e.now(), e.loc))
	return PlayerView{PlayerState: *p, Level: e.curve.LevelProgress(p.Experience)}, nil
}

// UpdateProfile changes the display fields copied into leaderboard entries
// and refreshes the user's current entries.
func (e *Engine) UpdateProfile(ctx context.Context, userID, displayName, avatarURL string) (PlayerView, error) {
	if err := validUser(userID); err != nil {
		return PlayerView{}, err
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" || len(displayName) > 64 {
		return PlayerView{}, fmt.Errorf("%w: display name must be 1-64 characters", domain.ErrInvalidInput)
	}
	if len(avatarURL) > 512 {
		return PlayerView{}, fmt.Errorf("%w: avatar url too long", domain.ErrInvalidInput)
	}

	now := e.now()
	if err := e.db.EnsurePlayer(ctx, userID, now); err != nil {
		return PlayerView{}, err
	}
	if err := e.db.UpdateProfile(ctx, userID, displayName, avatarURL, now); err != nil {
		return PlayerView{}, err
	}
	e.submit(ctx, userID, now)
	return e.view(ctx, userID)
}

// ─── Grants ─────────────────────────────────────────────────────────────────

// GrantReward resolves and records one collectible, paying Cost currency
// if set. It trusts every field of req and is not reachable from players;
// see Pull. A replayed request id returns the original grant together with
// domain.ErrAlreadyAwarded.
func (e *Engine) GrantReward(ctx context.Context, userID string, req GrantRequest) (GrantResult, error) {
	if err := validUser(userID); err != nil {
		return GrantResult{}, err
	}
	res, err := e.rewards.grant(ctx, e.db, userID, req, e.now())
	return e.grantResult(ctx, userID, res, err)
}

// Pull sells the user one collectible at the configured pull cost. The
// balance check and deduction are the first write of the grant transaction,
// so a user without the currency gets domain.ErrInsufficientCurrency and
// nothing is recorded.
func (e *Engine) Pull(ctx context.Context, userID string, req PullRequest) (GrantResult, error) {
	if err := validUser(userID); err != nil {
		return GrantResult{}, err
	}
	res, err := e.rewards.pull(ctx, e.db, userID, req, e.now())
	return e.grantResult(ctx, userID, res, err)
}

func (e *Engine) grantResult(ctx context.Context, userID string, res GrantResult, err error) (GrantResult, error) {
	if err != nil && !errors.Is(err, domain.ErrAlreadyAwarded) {
		return GrantResult{}, err
	}
	v, verr := e.view(ctx, userID)
	if verr != nil {
		return GrantResult{}, verr
	}
	res.Player = v.PlayerState
	return res, err
}

// ─── Quests ─────────────────────────────────────────────────────────────────

// ProgressResult is a progress update plus any streak it triggered.
type ProgressResult struct {
	Outcome
	Streak *StreakOutcome `json:"streak,omitempty"`
	Player PlayerView     `json:"player"`
}

// RecordProgress merges a client-reported value into a quest.
func (e *Engine) RecordProgress(ctx context.Context, userID, code string, value int) (ProgressResult, error) {
	if err := validUser(userID); err != nil {
		return ProgressResult{}, err
	}
	now := e.now()
	out, err := e.quests.RecordProgress(ctx, userID, code, value, now)
	if err != nil {
		return ProgressResult{}, err
	}
	return e.afterProgress(ctx, userID, out, now)
}

// afterProgress offers the streak whenever the reported quest is complete,
// not only on the call that completed it. The completion commits before the
// streak step, so a streak step that failed is picked up by the next report;
// a re-offer within the same period changes nothing.
func (e *Engine) afterProgress(ctx context.Context, userID string, out Outcome, now time.Time) (ProgressResult, error) {
	res := ProgressResult{Outcome: out}
	if out.Progress.Completed {
		s, err := e.maybeStreak(ctx, userID, out.Quest.Period, now)
		if err != nil {
			return ProgressResult{}, err
		}
		res.Streak = s
	}
	v, err := e.view(ctx, userID)
	if err != nil {
		return ProgressResult{}, err
	}
	res.Player = v
	return res, nil
}

func (e *Engine) maybeStreak(ctx context.Context, userID string, p domain.Period, now time.Time) (*StreakOutcome, error) {
	all, err := e.quests.AllComplete(ctx, userID, p, now)
	if err != nil || !all {
		return nil, err
	}
	s, err := e.streaks.OnPeriodComplete(ctx, userID, p, now)
	if err != nil || (!s.Advanced && len(s.Badges) == 0) {
		return nil, err
	}
	return &s, nil
}

// ClaimOutcome is a claim's payout and the player after it.
type ClaimOutcome struct {
	ClaimResult
	Player PlayerView `json:"player"`
}

// ClaimReward claims a completed quest's reward and refreshes the user's
// leaderboard entries.
func (e *Engine) ClaimReward(ctx context.Context, userID, code string) (ClaimOutcome, error) {
	if err := validUser(userID); err != nil {
		return ClaimOutcome{}, err
	}
	now := e.now()
	res, err := e.quests.Claim(ctx, userID, code, now)
	if err != nil {
		return ClaimOutcome{}, err
	}
	if res.Experience > 0 {
		e.submit(ctx, userID, now)
	}
	v, err := e.view(ctx, userID)
	if err != nil {
		return ClaimOutcome{}, err
	}
	return ClaimOutcome{ClaimResult: res, Player: v}, nil
}

// ActiveQuests lists the current daily and weekly quests with progress.
func (e *Engine) ActiveQuests(ctx context.Context, userID string) ([]QuestView, error) {
	if err := validUser(userID); err != nil {
		return nil, err
	}
	return e.quests.Active(ctx, userID, e.now())
}

// Badges lists the user's badges.
func (e *Engine) Badges(ctx context.Context, userID string) ([]BadgeView, error) {
	if err := validUser(userID); err != nil {
		return nil, err
	}
	return ListBadges(ctx, e.db, e.catalog, userID)
}

// Ledger returns the user's latest currency movements, newest first.
func (e *Engine) Ledger(ctx context.Context, userID string, limit int) ([]domain.LedgerEntry, error) {
	if err := validUser(userID); err != nil {
		return nil, err
	}
	return e.db.LedgerEntries(ctx, userID, clampLimit(limit))
}

// Collection returns the user's latest collectible grants, newest first.
func (e *Engine) Collection(ctx context.Context, userID string, limit int) ([]domain.CollectibleGrant, error) {
	if err := validUser(userID); err != nil {
		return nil, err
	}
	return e.db.ListGrants(ctx, userID, clampLimit(limit))
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return 50
	case n > 500:
		return 500
	}
	return n
}

// ─── Streaming ──────────────────────────────────────────────────────────────

// VerifyResult summarizes one verification call.
type VerifyResult struct {
	Quests  []ProgressResult `json:"quests"`
	Pages   int              `json:"pages"`
	Partial bool             `json:"partial"`
	Player  PlayerView       `json:"player"`
}

// VerifyStreams reads the user's play history and credits streaming
// quests. Concurrent calls for one user share a single run. A provider
// failure after some pages were read is logged and the partial counts are
// still merged; only a run that gathered nothing reports
// domain.ErrUpstreamUnavailable.
func (e *Engine) VerifyStreams(ctx context.Context, userID, username string) (VerifyResult, error) {
	if err := validUser(userID); err != nil {
		return VerifyResult{}, err
	}
	if e.verifier == nil {
		return VerifyResult{}, fmt.Errorf("%w: no streaming provider configured", domain.ErrUpstreamUnavailable)
	}

	// the run is shared, so one caller going away must not fail the others
	shared := context.WithoutCancel(ctx)
	v, err, _ := e.flights.Do(userID, func() (any, error) {
		return e.verifyStreams(shared, userID, username)
	})
	if err != nil {
		return VerifyResult{}, err
	}
	return v.(VerifyResult), nil
}

func (e *Engine) verifyStreams(ctx context.Context, userID, username string) (VerifyResult, error) {
	start := time.Now()
	now := e.now()

	var quests []domain.QuestDefinition
	for _, p := range []domain.Period{domain.PeriodDaily, domain.PeriodWeekly} {
		quests = append(quests, e.catalog.QuestsForPeriod(p)...)
	}
	since := map[domain.Period]time.Time{
		domain.PeriodDaily:  PeriodStart(domain.PeriodDaily, now, e.loc),
		domain.PeriodWeekly: PeriodStart(domain.PeriodWeekly, now, e.loc),
	}

	found, verr := e.verifier.Verify(ctx, username, quests, since)
	metrics.VerifyLatency.Observe(time.Since(start).Seconds())
	switch {
	case verr == nil:
		metrics.VerifyOutcomes.WithLabelValues("ok").Inc()
	case found.Gathered():
		metrics.VerifyOutcomes.WithLabelValues("partial").Inc()
		e.log.WithField("user", userID).WithError(verr).Warn("streaming history incomplete, merging partial counts")
	default:
		metrics.VerifyOutcomes.WithLabelValues("failed").Inc()
		return VerifyResult{}, verr
	}

	res := VerifyResult{Pages: found.PagesFetched, Partial: found.Partial}
	for _, def := range quests {
		counts, ok := found.Counts[def.Code]
		if !ok {
			continue
		}
		out, err := e.quests.RecordTrackCounts(ctx, userID, def.Code, counts, now)
		if err != nil {
			return VerifyResult{}, err
		}
		pr, err := e.afterProgress(ctx, userID, out, now)
		if err != nil {
			return VerifyResult{}, err
		}
		res.Quests = append(res.Quests, pr)
	}

	v, err := e.view(ctx, userID)
	if err != nil {
		return VerifyResult{}, err
	}
	res.Player = v
	return res, nil
}

// ─── Leaderboards ───────────────────────────────────────────────────────────

// LeaderboardPage returns one page of board. An empty key means the
// current period.
func (e *Engine) LeaderboardPage(ctx context.Context, board domain.Board, key, cursor string, limit int) (domain.LeaderboardPage, error) {
	if key == "" {
		key = e.boards.PeriodKey(board, e.now())
	}
	return e.boards.Page(ctx, board, key, cursor, limit)
}

// MyRank returns the user's rank on board. An empty key means the current
// period.
func (e *Engine) MyRank(ctx context.Context, userID string, board domain.Board, key string) (domain.RankResult, error) {
	if err := validUser(userID); err != nil {
		return domain.RankResult{}, err
	}
	if key == "" {
		key = e.boards.PeriodKey(board, e.now())
	}
	return e.boards.Rank(ctx, board, key, userID)
}

// submit refreshes leaderboard entries. Failures are logged; the award
// they follow is already committed and the next submit repairs the board.
func (e *Engine) submit(ctx context.Context, userID string, at time.Time) {
	if err := e.boards.Submit(ctx, userID, at); err != nil {
		e.log.WithField("user", userID).WithError(err).Warn("leaderboard submit failed")
	}
}

func validUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return domain.ErrUnauthorized
	}
	return nil
}
