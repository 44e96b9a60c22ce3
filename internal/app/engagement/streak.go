package engagement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stagelight/fanquest/internal/domain"
	"github.com/stagelight/fanquest/internal/infra/metrics"
	"github.com/stagelight/fanquest/internal/infra/sqlite"
)

// AdvanceStreak computes the next streak counter for a completion at now.
// A completion in the same period as last changes nothing; one in the
// period right after extends the streak; anything later starts over at 1.
// The second result is false when nothing changed.
func AdvanceStreak(count int, last *time.Time, now time.Time, p domain.Period, loc *time.Location) (int, bool) {
	switch {
	case last == nil || count <= 0:
		return 1, true
	case samePeriod(p, *last, now, loc):
		return count, false
	case previousPeriod(p, *last, now, loc):
		return count + 1, true
	default:
		return 1, true
	}
}

// errStreakMoved means the streak columns changed under us.
var errStreakMoved = errors.New("streak changed concurrently")

// StreakAwarder advances streak counters on full-set completion and awards
// milestone badges.
type StreakAwarder struct {
	db         *sqlite.DB
	rewards    *Rewarder
	milestones map[domain.Period][]Milestone
	loc        *time.Location
	log        *logrus.Entry
}

// NewStreakAwarder creates a streak awarder.
func NewStreakAwarder(db *sqlite.DB, rewards *Rewarder, milestones map[domain.Period][]Milestone, loc *time.Location, logger *logrus.Logger) *StreakAwarder {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &StreakAwarder{
		db:         db,
		rewards:    rewards,
		milestones: milestones,
		loc:        loc,
		log:        logger.WithField("component", "streaks"),
	}
}

// StreakOutcome reports a streak update.
type StreakOutcome struct {
	Period   domain.Period             `json:"period"`
	Count    int                       `json:"count"`
	Advanced bool                      `json:"advanced"`
	Badges   []domain.BadgeGrant       `json:"badges,omitempty"`
	Bonus    []domain.CollectibleGrant `json:"bonus,omitempty"`
}

// OnPeriodComplete records that the user finished every quest of the period
// containing at. The counter moves by compare-and-set, retried once when
// another writer got there first. Every milestone at or below the new count
// is then offered; the badge table's uniqueness makes re-offers no-ops, and
// only a newly inserted badge rolls its bonus collectible.
func (s *StreakAwarder) OnPeriodComplete(ctx context.Context, userID string, p domain.Period, at time.Time) (StreakOutcome, error) {
	var out StreakOutcome
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		out, err = s.apply(ctx, userID, p, at)
		if !errors.Is(err, errStreakMoved) {
			break
		}
	}
	if err != nil {
		return StreakOutcome{}, err
	}

	if out.Advanced {
		outcome := "extended"
		if out.Count == 1 {
			outcome = "reset"
		}
		metrics.StreakAdvances.WithLabelValues(string(p), outcome).Inc()
	}
	for _, b := range out.Badges {
		metrics.BadgesAwarded.WithLabelValues(b.BadgeCode).Inc()
		s.log.WithFields(logrus.Fields{"user": userID, "badge": b.BadgeCode, "variant": b.Variant}).Info("milestone badge awarded")
	}
	return out, nil
}

func (s *StreakAwarder) apply(ctx context.Context, userID string, p domain.Period, at time.Time) (StreakOutcome, error) {
	out := StreakOutcome{Period: p}
	err := s.db.InTx(ctx, func(tx *sqlite.Conn) error {
		if err := tx.EnsurePlayer(ctx, userID, at); err != nil {
			return err
		}
		player, err := tx.GetPlayer(ctx, userID)
		if err != nil {
			return err
		}

		count, last := player.Streak.Count(p), player.Streak.Last(p)
		next, advanced := AdvanceStreak(count, last, at, p, s.loc)
		if advanced {
			ok, err := tx.CompareAndSetStreak(ctx, userID, p, count, last, next, at)
			if err != nil {
				return fmt.Errorf("update streak: %w", err)
			}
			if !ok {
				return errStreakMoved
			}
		}
		out.Count = next
		out.Advanced = advanced

		for _, m := range reachedMilestones(s.milestones[p], next) {
			newly, err := tx.AwardBadge(ctx, userID, m.BadgeCode, m.Count, at)
			if err != nil {
				return fmt.Errorf("award badge %s: %w", m.BadgeCode, err)
			}
			if !newly {
				continue
			}
			out.Badges = append(out.Badges, domain.BadgeGrant{
				UserID: userID, BadgeCode: m.BadgeCode, Variant: m.Count, GrantedAt: at,
			})
			if m.BonusFloor == "" {
				continue
			}

			g, capped, err := s.rewards.rollCollectible(ctx, tx, player, rollRequest{
				Floor:       m.BonusFloor,
				Source:      domain.SourceStreak,
				StreakCount: m.Count,
			}, at)
			switch {
			case errors.Is(err, domain.ErrNoEligibleItems):
				s.log.WithField("user", userID).WithError(err).Warn("milestone bonus skipped")
			case err != nil:
				return err
			case capped:
				s.log.WithField("user", userID).Info("milestone bonus withheld by daily cap")
			default:
				out.Bonus = append(out.Bonus, *g)
			}
		}
		return nil
	})
	return out, err
}
