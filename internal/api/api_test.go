package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagelight/fanquest/internal/app/engagement"
	"github.com/stagelight/fanquest/internal/app/gacha"
	"github.com/stagelight/fanquest/internal/domain"
	"github.com/stagelight/fanquest/internal/health"
	"github.com/stagelight/fanquest/internal/infra/catalog"
	"github.com/stagelight/fanquest/internal/infra/sqlite"
	"github.com/stagelight/fanquest/internal/security"
)

var testSecret = []byte("test-secret-at-least-32-bytes-long!!")

type testEnv struct {
	handler http.Handler
	minter  *security.Minter
	checker *health.Checker
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlite.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cat, err := catalog.New(catalog.File{
		Quests: []domain.QuestDefinition{
			{
				Code: "quiz", Period: domain.PeriodDaily, GoalType: domain.GoalQuizScore, GoalValue: 8,
				Reward: domain.RewardSpec{Currency: 20, Experience: 60},
			},
		},
		Items: []domain.CollectibleItem{
			{ID: "c1", Rarity: domain.RarityCommon, Member: "RM", Name: "RM Photocard"},
			{ID: "c2", Rarity: domain.RarityCommon, Member: "Jin", Name: "Jin Photocard"},
			{ID: "r1", Rarity: domain.RarityRare, Member: "V", Name: "V Photocard"},
		},
	})
	require.NoError(t, err)

	gcfg := gacha.DefaultConfig()
	gcfg.PullCost = 15
	eng := engagement.NewEngine(db, cat, gacha.NewResolver(gcfg, cat), nil,
		engagement.DefaultConfig(), nil)
	verifier, err := security.NewVerifier(security.VerifierConfig{Secret: testSecret})
	require.NoError(t, err)
	minter, err := security.NewMinter(testSecret, nil, "")
	require.NoError(t, err)

	checker := health.NewChecker(db, dir, cat, nil)
	srv := NewServer(eng, cat, verifier, checker, cfg, nil)
	return &testEnv{handler: srv.Handler(), minter: minter, checker: checker}
}

func (e *testEnv) token(t *testing.T, user string) string {
	t.Helper()
	tok, err := e.minter.Mint(user, "", time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, user, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(t, user))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func errorType(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, w)
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, "no error object in %s", w.Body.String())
	return e["type"].(string)
}

// ═══════════════════════════════════════════════════════════════════════════
// Auth
// ═══════════════════════════════════════════════════════════════════════════

func TestMe_RequiresToken(t *testing.T) {
	env := newTestEnv(t, Config{})
	w := env.do(t, http.MethodGet, "/api/v1/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", errorType(t, w))
}

func TestMe_BadToken(t *testing.T) {
	env := newTestEnv(t, Config{})
	w := env.do(t, http.MethodGet, "/api/v1/me", "", "", "Authorization", "Bearer not.a.jwt")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMe_CreatesPlayer(t *testing.T) {
	env := newTestEnv(t, Config{})
	w := env.do(t, http.MethodGet, "/api/v1/me", "armyfan", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decodeBody(t, w)
	assert.Equal(t, "armyfan", body["user_id"])
	assert.EqualValues(t, 0, body["experience"])
	level := body["level"].(map[string]any)
	assert.EqualValues(t, 1, level["level"])
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t, Config{})
	w := env.do(t, http.MethodPut, "/api/v1/me/profile", "armyfan", `{"display_name":"ARMY Fan"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "ARMY Fan", decodeBody(t, w)["display_name"])

	w = env.do(t, http.MethodPut, "/api/v1/me/profile", "armyfan", `{"nickname":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", errorType(t, w))
}

// ═══════════════════════════════════════════════════════════════════════════
// Quests
// ═══════════════════════════════════════════════════════════════════════════

func TestQuestFlow(t *testing.T) {
	env := newTestEnv(t, Config{})

	w := env.do(t, http.MethodGet, "/api/v1/quests", "armyfan", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w)["quests"], 1)

	w = env.do(t, http.MethodPost, "/api/v1/quests/quiz/claim", "armyfan", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "not_eligible", errorType(t, w))

	w = env.do(t, http.MethodPost, "/api/v1/quests/quiz/progress", "armyfan", `{"value":9}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/v1/quests/quiz/claim", "armyfan", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.EqualValues(t, 20, body["currency"])
	assert.EqualValues(t, 60, body["experience"])

	w = env.do(t, http.MethodPost, "/api/v1/quests/quiz/claim", "armyfan", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_claimed", errorType(t, w))

	w = env.do(t, http.MethodGet, "/api/v1/me/ledger", "armyfan", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decodeBody(t, w)["entries"])
}

func TestProgress_Errors(t *testing.T) {
	env := newTestEnv(t, Config{})

	w := env.do(t, http.MethodPost, "/api/v1/quests/nope/progress", "armyfan", `{"value":1}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "quest_not_found", errorType(t, w))

	w = env.do(t, http.MethodPost, "/api/v1/quests/quiz/progress", "armyfan", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/quests/quiz/progress", "armyfan", `{"value":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ═══════════════════════════════════════════════════════════════════════════
// Grants
// ═══════════════════════════════════════════════════════════════════════════

func TestGrant_NewAndReplay(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.do(t, http.MethodPost, "/api/v1/quests/quiz/progress", "armyfan", `{"value":8}`)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/quests/quiz/claim", "armyfan", "").Code)

	w := env.do(t, http.MethodPost, "/api/v1/rewards/grant", "armyfan", `{}`,
		"Idempotency-Key", "req-1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decodeBody(t, w)
	first := body["grant"].(map[string]any)
	assert.Equal(t, "gacha", first["source"])
	assert.EqualValues(t, 5, body["player"].(map[string]any)["currency"])

	w = env.do(t, http.MethodPost, "/api/v1/rewards/grant", "armyfan", `{"request_id":"req-1"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body = decodeBody(t, w)
	assert.Equal(t, true, body["replay"])
	assert.Equal(t, first["item_id"], body["grant"].(map[string]any)["item_id"])
	assert.EqualValues(t, 5, body["player"].(map[string]any)["currency"])

	w = env.do(t, http.MethodGet, "/api/v1/me/collection", "armyfan", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w)["grants"], 1)
}

func TestGrant_ZeroBalance(t *testing.T) {
	env := newTestEnv(t, Config{})

	w := env.do(t, http.MethodPost, "/api/v1/rewards/grant", "armyfan", `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "insufficient_currency", errorType(t, w))

	w = env.do(t, http.MethodGet, "/api/v1/me/collection", "armyfan", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeBody(t, w)["grants"])
}

func TestGrant_RejectsClientPricing(t *testing.T) {
	env := newTestEnv(t, Config{})
	bodies := []string{
		`{"cost":0}`,
		`{"cost":0,"floor":"legendary","source":"event"}`,
		`{"floor":"legendary"}`,
		`{"source":"event"}`,
	}
	for _, b := range bodies {
		w := env.do(t, http.MethodPost, "/api/v1/rewards/grant", "armyfan", b)
		assert.Equal(t, http.StatusBadRequest, w.Code, b)
		assert.Equal(t, "invalid_input", errorType(t, w), b)
	}

	w := env.do(t, http.MethodGet, "/api/v1/me/collection", "armyfan", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeBody(t, w)["grants"])
}

// ═══════════════════════════════════════════════════════════════════════════
// Leaderboards and catalog
// ═══════════════════════════════════════════════════════════════════════════

func TestLeaderboard_Public(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.do(t, http.MethodPost, "/api/v1/quests/quiz/progress", "armyfan", `{"value":8}`)
	env.do(t, http.MethodPost, "/api/v1/quests/quiz/claim", "armyfan", "")

	w := env.do(t, http.MethodGet, "/api/v1/leaderboards/all-time", "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, "all-time", body["period_key"])
	entries := body["entries"].([]any)
	require.Len(t, entries, 1)
	assert.EqualValues(t, 1, entries[0].(map[string]any)["rank"])

	w = env.do(t, http.MethodGet, "/api/v1/leaderboards/all-time/me", "armyfan", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/v1/leaderboards/monthly", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/leaderboards/daily?cursor=%21%21%21", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCatalogItems(t *testing.T) {
	env := newTestEnv(t, Config{})

	w := env.do(t, http.MethodGet, "/api/v1/catalog/items", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w)["items"], 3)

	w = env.do(t, http.MethodGet, "/api/v1/catalog/items?q=jin", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	items := decodeBody(t, w)["items"].([]any)
	require.NotEmpty(t, items)
	assert.Equal(t, "c2", items[0].(map[string]any)["id"])

	w = env.do(t, http.MethodGet, "/api/v1/catalog/items?limit=-1", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ═══════════════════════════════════════════════════════════════════════════
// Middleware
// ═══════════════════════════════════════════════════════════════════════════

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, Config{RateLimit: 0.01, RateBurst: 2})
	for i := 0; i < 2; i++ {
		w := env.do(t, http.MethodGet, "/api/v1/catalog/items", "", "")
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := env.do(t, http.MethodGet, "/api/v1/catalog/items", "", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limited", errorType(t, w))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, Config{})

	w := env.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, "no checks have run yet")

	env.checker.RunOnce(context.Background())
	w = env.do(t, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "ok", decodeBody(t, w)["status"])
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t, Config{})
	w := env.do(t, http.MethodGet, "/api/v2/whatever", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", errorType(t, w))
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, Config{AllowedOrigin: "https://fans.example"})
	w := env.do(t, http.MethodOptions, "/api/v1/me", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://fans.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{domain.ErrUnauthorized, http.StatusUnauthorized},
		{domain.ErrPeriodClosed, http.StatusConflict},
		{domain.ErrNoEligibleItems, http.StatusNotFound},
		{domain.ErrUpstreamUnavailable, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		code, _ := classify(tt.err)
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}
