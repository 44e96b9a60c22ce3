package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stagelight/fanquest/internal/domain"
	"github.com/stagelight/fanquest/internal/infra/metrics"
	"github.com/stagelight/fanquest/internal/infra/sqlite"
)

// QuestTracker moves quest progress through new → in_progress → completed
// → claimed. Progress only ever grows; completion and claim each fire once.
type QuestTracker struct {
	db      *sqlite.DB
	catalog domain.Catalog
	rewards *Rewarder
	loc     *time.Location
	log     *logrus.Entry
}

// NewQuestTracker creates a quest tracker.
func NewQuestTracker(db *sqlite.DB, catalog domain.Catalog, rewards *Rewarder, loc *time.Location, logger *logrus.Logger) *QuestTracker {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &QuestTracker{
		db:      db,
		catalog: catalog,
		rewards: rewards,
		loc:     loc,
		log:     logger.WithField("component", "quests"),
	}
}

// Outcome is the stored state after a progress update.
type Outcome struct {
	Quest          domain.QuestDefinition `json:"quest"`
	Progress       domain.QuestProgress   `json:"progress"`
	NewlyCompleted bool                   `json:"newly_completed"`
}

func (q *QuestTracker) definition(code string) (domain.QuestDefinition, error) {
	def, ok := q.catalog.Quest(code)
	if !ok {
		return domain.QuestDefinition{}, fmt.Errorf("%w: %s", domain.ErrQuestNotFound, code)
	}
	return def, nil
}

// RecordProgress merges a client-reported value (best quiz score, running
// action count) into the quest's current period. Streaming quests only
// take verified counts through RecordTrackCounts.
func (q *QuestTracker) RecordProgress(ctx context.Context, userID, code string, value int, at time.Time) (Outcome, error) {
	def, err := q.definition(code)
	if err != nil {
		return Outcome{}, err
	}
	if def.GoalType.Streaming() {
		return Outcome{}, fmt.Errorf("%w: %s progress comes from stream verification", domain.ErrInvalidInput, code)
	}
	if value < 0 {
		return Outcome{}, fmt.Errorf("%w: negative progress", domain.ErrInvalidInput)
	}

	key := QuestPeriodKey(def.Period, at, q.loc)
	out := Outcome{Quest: def}
	err = q.db.InTx(ctx, func(tx *sqlite.Conn) error {
		if err := tx.EnsurePlayer(ctx, userID, at); err != nil {
			return err
		}
		if _, err := tx.MergeQuestProgress(ctx, userID, code, key, value, at); err != nil {
			return fmt.Errorf("merge progress: %w", err)
		}
		return q.finish(ctx, tx, userID, def, key, at, &out)
	})
	if err != nil {
		return Outcome{}, err
	}
	q.observe(userID, out)
	return out, nil
}

// RecordTrackCounts merges verified per-target play counts. Each target's
// count is max-merged first and progress is then recomputed from the merged
// map, so a short or failed fetch can never lower what was credited.
func (q *QuestTracker) RecordTrackCounts(ctx context.Context, userID, code string, counts map[string]int, at time.Time) (Outcome, error) {
	def, err := q.definition(code)
	if err != nil {
		return Outcome{}, err
	}
	if !def.GoalType.Streaming() {
		return Outcome{}, fmt.Errorf("%w: %s is not a streaming quest", domain.ErrInvalidInput, code)
	}

	key := QuestPeriodKey(def.Period, at, q.loc)
	out := Outcome{Quest: def}
	err = q.db.InTx(ctx, func(tx *sqlite.Conn) error {
		if err := tx.EnsurePlayer(ctx, userID, at); err != nil {
			return err
		}
		merged, err := tx.MergeTrackCounts(ctx, userID, code, key, counts, at)
		if err != nil {
			return fmt.Errorf("merge track counts: %w", err)
		}
		progress := AggregateTrackProgress(def.Targets, merged)
		if _, err := tx.MergeQuestProgress(ctx, userID, code, key, progress, at); err != nil {
			return fmt.Errorf("merge progress: %w", err)
		}
		return q.finish(ctx, tx, userID, def, key, at, &out)
	})
	if err != nil {
		return Outcome{}, err
	}
	q.observe(userID, out)
	return out, nil
}

// finish flips completed when the goal is reached and loads the row.
func (q *QuestTracker) finish(ctx context.Context, tx *sqlite.Conn, userID string, def domain.QuestDefinition, key string, at time.Time, out *Outcome) error {
	newly, err := tx.CompleteQuest(ctx, userID, def.Code, key, def.GoalValue, at)
	if err != nil {
		return fmt.Errorf("complete quest: %w", err)
	}
	qp, err := tx.GetQuestProgress(ctx, userID, def.Code, key)
	if err != nil {
		return err
	}
	out.Progress = *qp
	out.NewlyCompleted = newly
	return nil
}

func (q *QuestTracker) observe(userID string, out Outcome) {
	if !out.NewlyCompleted {
		return
	}
	metrics.QuestsCompleted.WithLabelValues(string(out.Quest.Period)).Inc()
	q.log.WithFields(logrus.Fields{
		"user":   userID,
		"quest":  out.Quest.Code,
		"period": out.Progress.PeriodKey,
	}).Info("quest completed")
}

// ─── Claim ──────────────────────────────────────────────────────────────────

// ClaimResult is what a claim paid out.
type ClaimResult struct {
	Quest             domain.QuestDefinition   `json:"quest"`
	PeriodKey         string                   `json:"period_key"`
	Currency          int64                    `json:"currency"`
	Experience        int64                    `json:"experience"`
	XPCapped          bool                     `json:"xp_capped"`
	Badge             string                   `json:"badge,omitempty"`
	Collectible       *domain.CollectibleGrant `json:"collectible,omitempty"`
	CollectibleCapped bool                     `json:"collectible_capped"`
}

// Claim flips claimed on a completed quest and pays its reward in the same
// transaction. Claiming an incomplete quest fails with ErrNotEligible and a
// second claim with ErrAlreadyClaimed; neither pays anything.
func (q *QuestTracker) Claim(ctx context.Context, userID, code string, at time.Time) (ClaimResult, error) {
	def, err := q.definition(code)
	if err != nil {
		return ClaimResult{}, err
	}
	key := QuestPeriodKey(def.Period, at, q.loc)
	res := ClaimResult{Quest: def, PeriodKey: key}

	err = q.db.InTx(ctx, func(tx *sqlite.Conn) error {
		if err := tx.EnsurePlayer(ctx, userID, at); err != nil {
			return err
		}
		if err := tx.ClaimQuest(ctx, userID, code, key, at); err != nil {
			return err
		}

		reward := def.Reward
		if reward.Currency > 0 {
			if _, err := tx.EarnCurrency(ctx, userID, reward.Currency, code+"/"+key, "quest reward", at); err != nil {
				return err
			}
			res.Currency = reward.Currency
		}

		player, err := tx.GetPlayer(ctx, userID)
		if err != nil {
			return err
		}
		res.Experience, res.XPCapped, err = q.rewards.awardExperience(ctx, tx, player, reward.Experience, domain.XPQuestClaim, at)
		if err != nil {
			return err
		}

		if reward.BadgeCode != "" {
			newly, err := tx.AwardBadge(ctx, userID, reward.BadgeCode, 0, at)
			if err != nil {
				return err
			}
			if newly {
				res.Badge = reward.BadgeCode
				metrics.BadgesAwarded.WithLabelValues(reward.BadgeCode).Inc()
			}
		}

		if reward.CollectibleFloor != "" {
			g, capped, err := q.rewards.rollCollectible(ctx, tx, player, rollRequest{
				Floor:     reward.CollectibleFloor,
				Source:    domain.SourceQuest,
				QuestCode: code,
			}, at)
			if err != nil {
				return err
			}
			res.Collectible = g
			res.CollectibleCapped = capped
		}
		return nil
	})
	if err != nil {
		return ClaimResult{}, err
	}

	metrics.QuestsClaimed.WithLabelValues(string(def.Period)).Inc()
	if res.Currency > 0 {
		metrics.CurrencyFlow.WithLabelValues("earn").Add(float64(res.Currency))
	}
	q.log.WithFields(logrus.Fields{
		"user":      userID,
		"quest":     code,
		"xp":        res.Experience,
		"xp_capped": res.XPCapped,
	}).Info("quest claimed")
	return res, nil
}

// ─── Queries ────────────────────────────────────────────────────────────────

// QuestView pairs a definition with the caller's progress in its current
// period.
type QuestView struct {
	Quest     domain.QuestDefinition `json:"quest"`
	PeriodKey string                 `json:"period_key"`
	State     domain.QuestState      `json:"state"`
	Progress  *domain.QuestProgress  `json:"progress,omitempty"`
}

// Active returns every daily and weekly quest with the user's progress.
func (q *QuestTracker) Active(ctx context.Context, userID string, at time.Time) ([]QuestView, error) {
	var views []QuestView
	for _, p := range []domain.Period{domain.PeriodDaily, domain.PeriodWeekly} {
		key := QuestPeriodKey(p, at, q.loc)
		for _, def := range q.catalog.QuestsForPeriod(p) {
			qp, err := q.db.GetQuestProgress(ctx, userID, def.Code, key)
			if err != nil {
				return nil, fmt.Errorf("load progress %s: %w", def.Code, err)
			}
			v := QuestView{Quest: def, PeriodKey: key, State: domain.QuestNew, Progress: qp}
			if qp != nil {
				v.State = qp.State()
			}
			views = append(views, v)
		}
	}
	return views, nil
}

// AllComplete reports whether every catalog quest of period is completed
// for the period containing at.
func (q *QuestTracker) AllComplete(ctx context.Context, userID string, p domain.Period, at time.Time) (bool, error) {
	defs := q.catalog.QuestsForPeriod(p)
	if len(defs) == 0 {
		return false, nil
	}
	codes := make([]string, len(defs))
	for i, d := range defs {
		codes[i] = d.Code
	}
	n, err := q.db.CountCompleted(ctx, userID, QuestPeriodKey(p, at, q.loc), codes)
	if err != nil {
		return false, err
	}
	return n == len(codes), nil
}
