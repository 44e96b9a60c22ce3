package streaming

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagelight/fanquest/internal/domain"
)

const recentTracksPage = `{
  "recenttracks": {
    "track": [
      {"name": "First Love", "artist": {"#text": "BTS"}, "album": {"#text": "WINGS"},
       "@attr": {"nowplaying": "true"}},
      {"name": "First Love", "artist": {"#text": "BTS"}, "album": {"#text": "WINGS"},
       "date": {"uts": "1773057600", "#text": "09 Mar 2026, 12:00"}},
      {"name": "Spring Day", "artist": {"#text": "BTS"}, "album": {"#text": "You Never Walk Alone"},
       "date": {"uts": "1773054000"}}
    ],
    "@attr": {"user": "armyfan", "page": "1", "perPage": "3", "totalPages": "4", "total": "11"}
  }
}`

func TestRecentPlays_ParsesPage(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"method":  r.URL.Query().Get("method"),
			"user":    r.URL.Query().Get("user"),
			"api_key": r.URL.Query().Get("api_key"),
			"page":    r.URL.Query().Get("page"),
			"limit":   r.URL.Query().Get("limit"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(recentTracksPage))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "k3y"})
	hp, err := c.RecentPlays(context.Background(), "armyfan", 1, 3)
	require.NoError(t, err)

	assert.Equal(t, "user.getrecenttracks", gotQuery["method"])
	assert.Equal(t, "armyfan", gotQuery["user"])
	assert.Equal(t, "k3y", gotQuery["api_key"])
	assert.Equal(t, "1", gotQuery["page"])
	assert.Equal(t, "3", gotQuery["limit"])

	require.Len(t, hp.Plays, 3)
	assert.True(t, hp.Plays[0].NowPlaying)
	assert.True(t, hp.Plays[0].PlayedAt.IsZero())
	assert.Equal(t, "WINGS", hp.Plays[1].Album)
	assert.Equal(t, time.Unix(1773057600, 0).UTC(), hp.Plays[1].PlayedAt)
	assert.Equal(t, 4, hp.TotalPages)
	assert.True(t, hp.HasMore)
}

func TestRecentPlays_LastPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"recenttracks":{"track":[],"@attr":{"page":"2","totalPages":"2"}}}`))
	}))
	defer srv.Close()

	hp, err := New(Config{BaseURL: srv.URL}).RecentPlays(context.Background(), "armyfan", 2, 50)
	require.NoError(t, err)
	assert.False(t, hp.HasMore)
	assert.Empty(t, hp.Plays)
}

func TestRecentPlays_UserNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":6,"message":"User not found"}`))
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL}).RecentPlays(context.Background(), "ghost", 1, 50)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRecentPlays_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL}).RecentPlays(context.Background(), "armyfan", 1, 50)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestRecentPlays_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := New(Config{BaseURL: srv.URL}).RecentPlays(ctx, "armyfan", 1, 50)
	assert.Error(t, err)
}
