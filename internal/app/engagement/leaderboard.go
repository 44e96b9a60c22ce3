package engagement

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stagelight/fanquest/internal/domain"
	"github.com/stagelight/fanquest/internal/infra/metrics"
	"github.com/stagelight/fanquest/internal/infra/sqlite"
)

// Boards lists every leaderboard, in submit order.
var Boards = []domain.Board{domain.BoardDaily, domain.BoardWeekly, domain.BoardAllTime}

// LeaderboardService keeps daily, weekly and all-time boards.
type LeaderboardService struct {
	db       *sqlite.DB
	loc      *time.Location
	pageSize int
	maxPage  int
	log      *logrus.Entry
}

// NewLeaderboardService creates a leaderboard service. pageSize is the
// default page length and maxPage the largest a caller may ask for.
func NewLeaderboardService(db *sqlite.DB, loc *time.Location, pageSize, maxPage int, logger *logrus.Logger) *LeaderboardService {
	if loc == nil {
		loc = time.UTC
	}
	if pageSize <= 0 {
		pageSize = 25
	}
	if maxPage < pageSize {
		maxPage = 100
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LeaderboardService{
		db:       db,
		loc:      loc,
		pageSize: pageSize,
		maxPage:  maxPage,
		log:      logger.WithField("component", "leaderboard"),
	}
}

// PeriodKey returns the active period key of board at t.
func (l *LeaderboardService) PeriodKey(board domain.Board, t time.Time) string {
	return BoardKey(board, t, l.loc)
}

// Submit refreshes the user's entries on every board. Scores are the
// authoritative totals (all-time experience, or experience logged in the
// day/week), so resubmitting is harmless. A board whose period has already
// been closed is skipped.
func (l *LeaderboardService) Submit(ctx context.Context, userID string, at time.Time) error {
	player, err := l.db.GetPlayer(ctx, userID)
	if err != nil {
		return err
	}
	if player == nil {
		return nil
	}

	for _, board := range Boards {
		key := l.PeriodKey(board, at)
		score := player.Experience
		if board != domain.BoardAllTime {
			score, err = l.db.PeriodExperience(ctx, userID, board, key)
			if err != nil {
				return fmt.Errorf("period experience %s: %w", board, err)
			}
		}

		err := l.db.UpsertLeaderboardEntry(ctx, domain.LeaderboardEntry{
			Board:       board,
			PeriodKey:   key,
			UserID:      userID,
			Score:       score,
			DisplayName: player.DisplayName,
			AvatarURL:   player.AvatarURL,
		}, at)
		if errors.Is(err, domain.ErrPeriodClosed) {
			l.log.WithFields(logrus.Fields{"board": board, "period": key}).Debug("skip closed period")
			continue
		}
		if err != nil {
			return fmt.Errorf("upsert %s entry: %w", board, err)
		}
		metrics.LeaderboardSubmits.WithLabelValues(string(board)).Inc()
	}
	return nil
}

// Rank returns the user's rank: 1 + the number of entries with a strictly
// greater score. A user without an entry is reported unranked.
func (l *LeaderboardService) Rank(ctx context.Context, board domain.Board, key, userID string) (domain.RankResult, error) {
	res := domain.RankResult{Board: board, PeriodKey: key, UserID: userID}
	entry, err := l.db.LeaderboardEntry(ctx, board, key, userID)
	if err != nil {
		return res, err
	}
	if entry == nil {
		return res, nil
	}
	rank, err := l.db.RankForScore(ctx, board, key, entry.Score)
	if err != nil {
		return res, err
	}
	res.Score = entry.Score
	res.Rank = rank
	res.Ranked = true
	return res, nil
}

// Page returns entries ordered by (score desc, id desc) after cursor. Each
// entry carries its tie-sharing rank. NextCursor is empty on the last page.
func (l *LeaderboardService) Page(ctx context.Context, board domain.Board, key, cursor string, limit int) (domain.LeaderboardPage, error) {
	page := domain.LeaderboardPage{Board: board, PeriodKey: key, Entries: []domain.LeaderboardEntry{}}

	after, err := DecodeCursor(cursor)
	if err != nil {
		return page, err
	}
	if limit <= 0 {
		limit = l.pageSize
	}
	if limit > l.maxPage {
		limit = l.maxPage
	}

	entries, err := l.db.LeaderboardAfter(ctx, board, key, after, limit+1)
	if err != nil {
		return page, err
	}
	if len(entries) > limit {
		entries = entries[:limit]
		last := entries[len(entries)-1]
		page.NextCursor = EncodeCursor(sqlite.Cursor{Score: last.Score, ID: last.ID})
	}

	// Ranks depend only on score, so one count per distinct score.
	ranks := make(map[int64]int)
	for i := range entries {
		s := entries[i].Score
		r, ok := ranks[s]
		if !ok {
			r, err = l.db.RankForScore(ctx, board, key, s)
			if err != nil {
				return page, err
			}
			ranks[s] = r
		}
		entries[i].Rank = r
	}
	page.Entries = entries
	return page, nil
}

// ClosePast freezes every open period of board that ended before now.
// Returns the keys it closed.
func (l *LeaderboardService) ClosePast(ctx context.Context, board domain.Board, now time.Time) ([]string, error) {
	if board == domain.BoardAllTime {
		return nil, nil
	}
	current := l.PeriodKey(board, now)
	open, err := l.db.OpenPeriods(ctx, board)
	if err != nil {
		return nil, err
	}

	var closed []string
	for _, key := range open {
		// Keys of one board sort chronologically, so anything below the
		// current key is in the past.
		if key >= current {
			continue
		}
		ok, err := l.db.ClosePeriod(ctx, board, key, now)
		if err != nil {
			return closed, fmt.Errorf("close %s %s: %w", board, key, err)
		}
		if ok {
			closed = append(closed, key)
			metrics.PeriodsClosed.WithLabelValues(string(board)).Inc()
		}
	}
	return closed, nil
}

// ─── Cursor ─────────────────────────────────────────────────────────────────

// EncodeCursor renders a page position as an opaque string.
func EncodeCursor(c sqlite.Cursor) string {
	raw := strconv.FormatInt(c.Score, 10) + ":" + strconv.FormatInt(c.ID, 10)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses an opaque cursor. The empty string means "from the top".
func DecodeCursor(s string) (*sqlite.Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed cursor", domain.ErrInvalidInput)
	}
	score, id, ok := strings.Cut(string(raw), ":")
	if !ok {
		return nil, fmt.Errorf("%w: malformed cursor", domain.ErrInvalidInput)
	}
	c := &sqlite.Cursor{}
	if c.Score, err = strconv.ParseInt(score, 10, 64); err != nil {
		return nil, fmt.Errorf("%w: malformed cursor", domain.ErrInvalidInput)
	}
	if c.ID, err = strconv.ParseInt(id, 10, 64); err != nil {
		return nil, fmt.Errorf("%w: malformed cursor", domain.ErrInvalidInput)
	}
	return c, nil
}
