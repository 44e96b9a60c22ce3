// Package verify credits streaming quests from a user's play history.
//
// The verifier pulls history pages newest first, deduplicates plays,
// normalizes names and counts plays per quest target. It never writes:
// counts are handed to the quest tracker, whose max-merge makes a re-run
// or a concurrent run harmless.
package verify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stagelight/fanquest/internal/domain"
)

// Config bounds a verification call.
type Config struct {
	PageSize int           `toml:"page_size"`
	MaxPages int           `toml:"max_pages"`
	Timeout  time.Duration `toml:"timeout"`
}

// DefaultConfig returns 200 plays per page, 5 pages, 10 seconds.
func DefaultConfig() Config {
	return Config{PageSize: 200, MaxPages: 5, Timeout: 10 * time.Second}
}

// Result holds per-quest, per-target play counts.
type Result struct {
	Counts       map[string]map[string]int // quest code -> target key -> plays
	PagesFetched int
	PlaysCounted int
	Truncated    bool // stopped at MaxPages with more history available
	Partial      bool // a page failed; counts cover the earlier pages only
}

// Gathered reports whether any page was read.
func (r Result) Gathered() bool { return r.PagesFetched > 0 }

// Verifier matches play history against streaming quest targets.
type Verifier struct {
	provider domain.StreamingProvider
	cfg      Config
	log      *logrus.Entry
}

// New creates a verifier. Zero config fields fall back to defaults.
func New(provider domain.StreamingProvider, cfg Config, logger *logrus.Logger) *Verifier {
	def := DefaultConfig()
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = def.MaxPages
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Verifier{provider: provider, cfg: cfg, log: logger.WithField("component", "verify")}
}

// Verify counts plays of username against the streaming quests. since maps
// each quest period to the start of its active window; plays before a
// quest's window do not count toward it.
//
// A failing page stops pagination. The counts from earlier pages are still
// returned along with an error wrapping domain.ErrUpstreamUnavailable.
func (v *Verifier) Verify(ctx context.Context, username string, quests []domain.QuestDefinition, since map[domain.Period]time.Time) (Result, error) {
	res := Result{Counts: make(map[string]map[string]int)}
	if username == "" {
		return res, fmt.Errorf("%w: streaming username required", domain.ErrInvalidInput)
	}

	matchers := buildMatchers(quests, since)
	if len(matchers) == 0 {
		return res, nil
	}
	earliest := matchers[0].since
	for _, m := range matchers[1:] {
		if m.since.Before(earliest) {
			earliest = m.since
		}
	}

	ctx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
	defer cancel()

	seen := make(map[string]struct{})
	for page := 1; page <= v.cfg.MaxPages; page++ {
		hp, err := v.provider.RecentPlays(ctx, username, page, v.cfg.PageSize)
		if err != nil {
			res.Partial = true
			v.log.WithFields(logrus.Fields{"user": username, "page": page}).WithError(err).Warn("history fetch failed, keeping partial counts")
			return res, fmt.Errorf("%w: history page %d: %v", domain.ErrUpstreamUnavailable, page, err)
		}
		res.PagesFetched++

		var oldest time.Time
		for _, p := range hp.Plays {
			if p.NowPlaying || p.PlayedAt.IsZero() {
				continue
			}
			if oldest.IsZero() || p.PlayedAt.Before(oldest) {
				oldest = p.PlayedAt
			}

			track, artist, album := Normalize(p.Track), Normalize(p.Artist), Normalize(p.Album)
			key := track + "\x00" + artist + "\x00" + strconv.FormatInt(p.PlayedAt.Unix(), 10)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			for _, m := range matchers {
				if p.PlayedAt.Before(m.since) || !m.matches(track, artist, album) {
					continue
				}
				counts := res.Counts[m.quest]
				if counts == nil {
					counts = make(map[string]int)
					res.Counts[m.quest] = counts
				}
				counts[m.key]++
				res.PlaysCounted++
			}
		}

		if !hp.HasMore || len(hp.Plays) == 0 {
			break
		}
		if !oldest.IsZero() && oldest.Before(earliest) {
			break
		}
		if page == v.cfg.MaxPages {
			res.Truncated = true
		}
	}

	v.log.WithFields(logrus.Fields{
		"user":      username,
		"pages":     res.PagesFetched,
		"counted":   res.PlaysCounted,
		"truncated": res.Truncated,
	}).Debug("history verified")
	return res, nil
}

// ─── Matching ───────────────────────────────────────────────────────────────

type matcher struct {
	quest  string
	key    string
	since  time.Time
	track  string
	artist string
	album  string
	tracks map[string]struct{}
}

func (m matcher) matches(track, artist, album string) bool {
	if m.artist != "" && artist != m.artist {
		return false
	}
	if m.album == "" {
		return track == m.track
	}
	if album != m.album {
		return false
	}
	if len(m.tracks) == 0 {
		return true
	}
	_, ok := m.tracks[track]
	return ok
}

func buildMatchers(quests []domain.QuestDefinition, since map[domain.Period]time.Time) []matcher {
	var out []matcher
	for _, q := range quests {
		if !q.GoalType.Streaming() {
			continue
		}
		for _, t := range q.Targets {
			m := matcher{
				quest:  q.Code,
				key:    t.TargetKey(),
				since:  since[q.Period],
				artist: Normalize(t.Artist),
			}
			if q.GoalType == domain.GoalStreamAlbum || (t.Track == "" && t.Album != "") {
				m.album = Normalize(t.Album)
				if len(t.Tracks) > 0 {
					m.tracks = make(map[string]struct{}, len(t.Tracks))
					for _, tr := range t.Tracks {
						m.tracks[Normalize(tr)] = struct{}{}
					}
				}
			} else {
				m.track = Normalize(t.Track)
			}
			if m.track == "" && m.album == "" {
				continue
			}
			out = append(out, m)
		}
	}
	return out
}
