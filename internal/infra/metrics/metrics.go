// Package metrics provides Prometheus metrics for fanquest: grants, quest
// lifecycle, caps, streaks, leaderboards, streaming verification and health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Gacha ──────────────────────────────────────────────────────────────────

// GrantsTotal counts collectible grants by source and rarity.
var GrantsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fanquest",
	Name:      "grants_total",
	Help:      "Total collectible grants.",
}, []string{"source", "rarity"})

// PityForced counts rolls decided by a pity override.
var PityForced = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fanquest",
	Name:      "pity_forced_total",
	Help:      "Rolls forced by a pity threshold.",
}, []string{"rarity"})

// GrantReplays counts grant requests answered from an earlier request id.
var GrantReplays = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "fanquest",
	Name:      "grant_replays_total",
	Help:      "Grant requests replayed by idempotency key.",
})

// ─── Quests ─────────────────────────────────────────────────────────────────

// QuestsCompleted counts completed quests by period.
var QuestsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fanquest",
	Name:      "quests_completed_total",
	Help:      "Quests that reached their goal.",
}, []string{"period"})

// QuestsClaimed counts claimed quest rewards by period.
var QuestsClaimed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fanquest",
	Name:      "quests_claimed_total",
	Help:      "Quest rewards claimed.",
}, []string{"period"})

// ─── Economy ────────────────────────────────────────────────────────────────

// ExperienceAwarded tracks experience issued by source.
var ExperienceAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fanquest",
	Name:      "experience_awarded_total",
	Help:      "Experience issued to players.",
}, []string{"source"})

// CurrencyFlow tracks currency earned and spent.
var CurrencyFlow = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fanquest",
	Name:      "currency_total",
	Help:      "Collectible currency moved, by direction.",
}, []string{"direction"})

// CapRejections counts awards dropped by a daily issuance cap.
var CapRejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fanquest",
	Name:      "cap_rejections_total",
	Help:      "Awards withheld by a daily cap.",
}, []string{"kind"})

// ─── Streaks ────────────────────────────────────────────────────────────────

// StreakAdvances counts streak updates by period and outcome.
var StreakAdvances = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fanquest",
	Name:      "streak_updates_total",
	Help:      "Streak updates by outcome (extended, reset).",
}, []string{"period", "outcome"})

// BadgesAwarded counts badge grants.
var BadgesAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fanquest",
	Name:      "badges_awarded_total",
	Help:      "Badges awarded.",
}, []string{"badge"})

// ─── Leaderboards ───────────────────────────────────────────────────────────

// LeaderboardSubmits counts leaderboard upserts by board.
var LeaderboardSubmits = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fanquest",
	Name:      "leaderboard_submits_total",
	Help:      "Leaderboard score submissions.",
}, []string{"board"})

// PeriodsClosed counts leaderboard periods frozen by the closer job.
var PeriodsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fanquest",
	Name:      "leaderboard_periods_closed_total",
	Help:      "Leaderboard periods frozen.",
}, []string{"board"})

// ─── Streaming ──────────────────────────────────────────────────────────────

// VerifyLatency tracks streaming verification duration in seconds.
var VerifyLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "fanquest",
	Name:      "verify_latency_seconds",
	Help:      "Streaming verification duration in seconds.",
	Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
})

// VerifyOutcomes counts verification calls by outcome (ok, partial, failed).
var VerifyOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fanquest",
	Name:      "verify_outcomes_total",
	Help:      "Streaming verification outcomes.",
}, []string{"outcome"})

// UpstreamRequests counts history provider requests by status class.
var UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fanquest",
	Name:      "upstream_requests_total",
	Help:      "Streaming provider requests by status.",
}, []string{"status"})

// ─── API ────────────────────────────────────────────────────────────────────

// HTTPRequests counts API requests by route and status code.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fanquest",
	Name:      "http_requests_total",
	Help:      "API requests by route and status.",
}, []string{"route", "code"})

// RateLimited counts requests rejected by the per-user limiter.
var RateLimited = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "fanquest",
	Name:      "rate_limited_total",
	Help:      "Requests rejected by the per-user rate limiter.",
})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "fanquest",
	Name:      "health_check_status",
	Help:      "Health check status (1=healthy, 0=unhealthy).",
}, []string{"check"})

// HealthRecoveries counts auto-recovery attempts.
var HealthRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fanquest",
	Name:      "health_recoveries_total",
	Help:      "Total auto-recovery attempts.",
}, []string{"check", "result"})

// ─── Scheduler ──────────────────────────────────────────────────────────────

// JobRuns counts background job executions by job and result.
var JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fanquest",
	Name:      "job_runs_total",
	Help:      "Background job runs.",
}, []string{"job", "result"})
