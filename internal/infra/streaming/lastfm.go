// Package streaming provides the play-history client used by stream
// verification. It speaks the Last.fm user.getrecenttracks JSON API, which
// several scrobbling services also expose.
package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/stagelight/fanquest/internal/domain"
	"github.com/stagelight/fanquest/internal/infra/metrics"
)

// DefaultBaseURL is the public Last.fm API endpoint.
const DefaultBaseURL = "https://ws.audioscrobbler.com/2.0/"

// Config holds client configuration.
type Config struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration // per request
	RateLimit float64       // requests per second, shared by all users
	Burst     int
	UserAgent string
}

// Client fetches recent plays. It is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New creates a client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "fanquest/1.0"
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
	}
}

// ─── Wire format ────────────────────────────────────────────────────────────

type textField struct {
	Text string `json:"#text"`
}

type recentTrack struct {
	Name   string    `json:"name"`
	Artist textField `json:"artist"`
	Album  textField `json:"album"`
	Date   *struct {
		UTS string `json:"uts"`
	} `json:"date,omitempty"`
	Attr *struct {
		NowPlaying string `json:"nowplaying"`
	} `json:"@attr,omitempty"`
}

type recentTracksResponse struct {
	RecentTracks struct {
		Track []recentTrack `json:"track"`
		Attr  struct {
			Page       string `json:"page"`
			TotalPages string `json:"totalPages"`
		} `json:"@attr"`
	} `json:"recenttracks"`
	Error   int    `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// apiUserNotFound is the Last.fm error code for an unknown user.
const apiUserNotFound = 6

// RecentPlays returns one page of the user's history, newest first.
func (c *Client) RecentPlays(ctx context.Context, username string, page, limit int) (domain.HistoryPage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.HistoryPage{}, fmt.Errorf("rate limit wait: %w", err)
	}

	q := url.Values{}
	q.Set("method", "user.getrecenttracks")
	q.Set("user", username)
	q.Set("api_key", c.apiKey)
	q.Set("format", "json")
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return domain.HistoryPage{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("error").Inc()
		return domain.HistoryPage{}, fmt.Errorf("fetch recent tracks: %w", err)
	}
	defer resp.Body.Close()
	metrics.UpstreamRequests.WithLabelValues(statusClass(resp.StatusCode)).Inc()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return domain.HistoryPage{}, fmt.Errorf("read response: %w", err)
	}

	var out recentTracksResponse
	if err := json.Unmarshal(body, &out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return domain.HistoryPage{}, fmt.Errorf("recent tracks: status %d", resp.StatusCode)
		}
		return domain.HistoryPage{}, fmt.Errorf("decode recent tracks: %w", err)
	}
	if out.Error != 0 {
		if out.Error == apiUserNotFound {
			return domain.HistoryPage{}, fmt.Errorf("%w: streaming user %q not found", domain.ErrInvalidInput, username)
		}
		return domain.HistoryPage{}, fmt.Errorf("recent tracks: api error %d: %s", out.Error, out.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.HistoryPage{}, fmt.Errorf("recent tracks: status %d", resp.StatusCode)
	}

	hp := domain.HistoryPage{Page: page}
	hp.TotalPages, _ = strconv.Atoi(out.RecentTracks.Attr.TotalPages)
	if p, err := strconv.Atoi(out.RecentTracks.Attr.Page); err == nil && p > 0 {
		hp.Page = p
	}
	hp.HasMore = hp.Page < hp.TotalPages

	for _, t := range out.RecentTracks.Track {
		play := domain.Play{Track: t.Name, Artist: t.Artist.Text, Album: t.Album.Text}
		if t.Attr != nil && t.Attr.NowPlaying == "true" {
			play.NowPlaying = true
		}
		if t.Date != nil {
			if uts, err := strconv.ParseInt(t.Date.UTS, 10, 64); err == nil {
				play.PlayedAt = time.Unix(uts, 0).UTC()
			}
		}
		hp.Plays = append(hp.Plays, play)
	}
	return hp, nil
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
