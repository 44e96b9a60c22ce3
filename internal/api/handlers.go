package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stagelight/fanquest/internal/app/engagement"
	"github.com/stagelight/fanquest/internal/domain"
)

const maxBody = 1 << 20

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid request body: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", domain.ErrInvalidInput, name)
	}
	return n, nil
}

// fail maps an engine error onto a status code and writes it.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, typ := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.WithField("path", r.URL.Path).WithError(err).Error("internal error")
		msg = "internal error"
	}
	writeError(w, status, typ, msg)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, domain.ErrQuestNotFound):
		return http.StatusNotFound, "quest_not_found"
	case errors.Is(err, domain.ErrInsufficientCurrency):
		return http.StatusUnprocessableEntity, "insufficient_currency"
	case errors.Is(err, domain.ErrNotEligible):
		return http.StatusUnprocessableEntity, "not_eligible"
	case errors.Is(err, domain.ErrAlreadyClaimed):
		return http.StatusConflict, "already_claimed"
	case errors.Is(err, domain.ErrAlreadyAwarded):
		return http.StatusConflict, "already_awarded"
	case errors.Is(err, domain.ErrPeriodClosed):
		return http.StatusConflict, "period_closed"
	case errors.Is(err, domain.ErrNoEligibleItems):
		return http.StatusNotFound, "no_eligible_items"
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable, "upstream_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// ─── Player ─────────────────────────────────────────────────────────────────

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	v, err := s.engine.Player(r.Context(), UserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type profileRequest struct {
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	v, err := s.engine.UpdateProfile(r.Context(), UserID(r.Context()), req.DisplayName, req.AvatarURL)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	entries, err := s.engine.Ledger(r.Context(), UserID(r.Context()), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	grants, err := s.engine.Collection(r.Context(), UserID(r.Context()), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if grants == nil {
		grants = []domain.CollectibleGrant{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"grants": grants})
}

func (s *Server) handleBadges(w http.ResponseWriter, r *http.Request) {
	badges, err := s.engine.Badges(r.Context(), UserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"badges": badges})
}

// ─── Rewards ────────────────────────────────────────────────────────────────

// handleGrant sells the caller one pull at the server's price. The body
// carries only a constraint and a request id; price, floor and source
// fields are unknown fields and rejected by decode. It answers 201 for a
// new grant and 200 with replay=true when the request id was seen before.
func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	var req engagement.PullRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.RequestID == "" {
		req.RequestID = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	}

	res, err := s.engine.Pull(r.Context(), UserID(r.Context()), req)
	switch {
	case errors.Is(err, domain.ErrAlreadyAwarded) && res.Replay:
		writeJSON(w, http.StatusOK, res)
	case err != nil:
		s.fail(w, r, err)
	default:
		writeJSON(w, http.StatusCreated, res)
	}
}

// ─── Quests ─────────────────────────────────────────────────────────────────

func (s *Server) handleQuests(w http.ResponseWriter, r *http.Request) {
	views, err := s.engine.ActiveQuests(r.Context(), UserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quests": views})
}

type progressRequest struct {
	Value *int `json:"value"`
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Value == nil {
		s.fail(w, r, fmt.Errorf("%w: value is required", domain.ErrInvalidInput))
		return
	}
	res, err := s.engine.RecordProgress(r.Context(), UserID(r.Context()), chi.URLParam(r, "code"), *req.Value)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.ClaimReward(r.Context(), UserID(r.Context()), chi.URLParam(r, "code"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ─── Streaming ──────────────────────────────────────────────────────────────

type verifyRequest struct {
	Username string `json:"username"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		s.fail(w, r, fmt.Errorf("%w: username is required", domain.ErrInvalidInput))
		return
	}
	res, err := s.engine.VerifyStreams(r.Context(), UserID(r.Context()), username)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ─── Leaderboards ───────────────────────────────────────────────────────────

func boardParam(r *http.Request) (domain.Board, error) {
	b, ok := domain.ParseBoard(chi.URLParam(r, "board"))
	if !ok {
		return "", fmt.Errorf("%w: unknown board %q", domain.ErrInvalidInput, chi.URLParam(r, "board"))
	}
	return b, nil
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := boardParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	page, err := s.engine.LeaderboardPage(r.Context(), board, q.Get("period"), q.Get("cursor"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleMyRank(w http.ResponseWriter, r *http.Request) {
	board, err := boardParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.engine.MyRank(r.Context(), UserID(r.Context()), board, r.URL.Query().Get("period"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ─── Catalog ────────────────────────────────────────────────────────────────

func (s *Server) handleCatalogItems(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var items []domain.CollectibleItem
	if q := r.URL.Query().Get("q"); q != "" {
		items = s.items.Search(q, limit)
	} else {
		items = s.items.Items()
		if limit > 0 && len(items) > limit {
			items = items[:limit]
		}
	}
	if items == nil {
		items = []domain.CollectibleItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
