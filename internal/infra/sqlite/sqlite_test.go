package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stagelight/fanquest/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

var (
	ctx = context.Background()
	now = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
)

func newPlayer(t *testing.T, db *DB, id string) {
	t.Helper()
	if err := db.EnsurePlayer(ctx, id, now); err != nil {
		t.Fatalf("EnsurePlayer() error: %v", err)
	}
}

// ─── Database Lifecycle ─────────────────────────────────────────────────────

func TestOpen_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Join(dir, "state.db")); os.IsNotExist(err) {
		t.Error("state.db should exist")
	}
}

func TestOpen_Reopen(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	db.Close()

	db, err = Open(dir)
	if err != nil {
		t.Fatalf("second Open() error: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}
}

// ─── Players ────────────────────────────────────────────────────────────────

func TestEnsurePlayer_Idempotent(t *testing.T) {
	db := newTestDB(t)
	newPlayer(t, db, "u1")
	newPlayer(t, db, "u1")

	p, err := db.GetPlayer(ctx, "u1")
	if err != nil {
		t.Fatalf("GetPlayer() error: %v", err)
	}
	if p == nil || p.UserID != "u1" {
		t.Fatalf("GetPlayer() = %+v, want u1", p)
	}
	if p.Experience != 0 || p.Currency != 0 {
		t.Errorf("fresh player has xp=%d currency=%d, want 0/0", p.Experience, p.Currency)
	}
}

func TestGetPlayer_NotFound(t *testing.T) {
	db := newTestDB(t)
	p, err := db.GetPlayer(ctx, "ghost")
	if err != nil {
		t.Fatalf("GetPlayer() error: %v", err)
	}
	if p != nil {
		t.Errorf("expected nil, got %+v", p)
	}
}

func TestAddExperience_LogsPeriods(t *testing.T) {
	db := newTestDB(t)
	newPlayer(t, db, "u1")

	for _, amt := range []int64{10, 25} {
		_, err := db.AddExperience(ctx, domain.ExperienceEvent{
			UserID: "u1", Amount: amt, Source: domain.XPQuestClaim,
			DayKey: "2025-07-01", WeekKey: "2025-W27", CreatedAt: now,
		})
		if err != nil {
			t.Fatalf("AddExperience() error: %v", err)
		}
	}

	p, _ := db.GetPlayer(ctx, "u1")
	if p.Experience != 35 {
		t.Errorf("Experience = %d, want 35", p.Experience)
	}
	day, _ := db.PeriodExperience(ctx, "u1", domain.BoardDaily, "2025-07-01")
	week, _ := db.PeriodExperience(ctx, "u1", domain.BoardWeekly, "2025-W27")
	if day != 35 || week != 35 {
		t.Errorf("period xp day=%d week=%d, want 35/35", day, week)
	}
}

func TestAddExperience_RejectsNonPositive(t *testing.T) {
	db := newTestDB(t)
	newPlayer(t, db, "u1")
	_, err := db.AddExperience(ctx, domain.ExperienceEvent{UserID: "u1", Amount: 0, CreatedAt: now})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

// ─── Issuance Caps ──────────────────────────────────────────────────────────

func TestApplyIssuance_EventCap(t *testing.T) {
	db := newTestDB(t)
	newPlayer(t, db, "u1")

	for i := 0; i < 2; i++ {
		ok, err := db.ApplyIssuance(ctx, "u1", "2025-07-01", 1, 50, 0, 2, 0, 0, now)
		if err != nil {
			t.Fatalf("ApplyIssuance() error: %v", err)
		}
		if !ok {
			t.Fatalf("award %d should pass the cap", i+1)
		}
	}

	ok, err := db.ApplyIssuance(ctx, "u1", "2025-07-01", 1, 50, 0, 2, 0, 0, now)
	if err != nil {
		t.Fatalf("ApplyIssuance() error: %v", err)
	}
	if ok {
		t.Error("third award on the same day should be capped")
	}

	p, _ := db.GetPlayer(ctx, "u1")
	if p.Issuance.XPEvents != 2 || p.Issuance.XPAmount != 100 {
		t.Errorf("issuance = %+v, want 2 events / 100 xp", p.Issuance)
	}
}

func TestApplyIssuance_ResetsOnNewDay(t *testing.T) {
	db := newTestDB(t)
	newPlayer(t, db, "u1")

	_, _ = db.ApplyIssuance(ctx, "u1", "2025-07-01", 1, 10, 1, 1, 0, 1, now)
	ok, err := db.ApplyIssuance(ctx, "u1", "2025-07-02", 1, 10, 1, 1, 0, 1, now)
	if err != nil {
		t.Fatalf("ApplyIssuance() error: %v", err)
	}
	if !ok {
		t.Error("a new date key should reset the counters")
	}

	p, _ := db.GetPlayer(ctx, "u1")
	if p.Issuance.DateKey != "2025-07-02" || p.Issuance.XPEvents != 1 || p.Issuance.Collectibles != 1 {
		t.Errorf("issuance = %+v, want fresh counters for 2025-07-02", p.Issuance)
	}
}

func TestApplyIssuance_ConcurrentNeverExceedsCap(t *testing.T) {
	db := newTestDB(t)
	newPlayer(t, db, "u1")

	var wg sync.WaitGroup
	var mu sync.Mutex
	passed := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := db.ApplyIssuance(ctx, "u1", "2025-07-01", 1, 5, 0, 3, 0, 0, now)
			if err != nil {
				t.Errorf("ApplyIssuance() error: %v", err)
				return
			}
			if ok {
				mu.Lock()
				passed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if passed != 3 {
		t.Errorf("passed = %d, want exactly 3", passed)
	}
}

// ─── Currency ───────────────────────────────────────────────────────────────

func TestSpendCurrency_Insufficient(t *testing.T) {
	db := newTestDB(t)
	newPlayer(t, db, "u1")
	if _, err := db.EarnCurrency(ctx, "u1", 50, "quest:q1", "quest reward", now); err != nil {
		t.Fatalf("EarnCurrency() error: %v", err)
	}

	_, err := db.SpendCurrency(ctx, "u1", 80, "", "gacha", now)
	if !errors.Is(err, domain.ErrInsufficientCurrency) {
		t.Errorf("err = %v, want ErrInsufficientCurrency", err)
	}

	bal, err := db.SpendCurrency(ctx, "u1", 50, "", "gacha", now)
	if err != nil {
		t.Fatalf("SpendCurrency() error: %v", err)
	}
	if bal != 0 {
		t.Errorf("balance = %d, want 0", bal)
	}

	entries, _ := db.LedgerEntries(ctx, "u1", 10)
	if len(entries) != 2 {
		t.Fatalf("ledger entries = %d, want 2", len(entries))
	}
	if entries[0].Type != domain.LedgerSpend || entries[0].Balance != 0 {
		t.Errorf("newest entry = %+v, want SPEND with balance 0", entries[0])
	}
}

// ─── Pity ───────────────────────────────────────────────────────────────────

func TestSetPity_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	newPlayer(t, db, "u1")

	want := domain.PityCounters{domain.RarityEpic: 4, domain.RarityLegendary: 9}
	if err := db.SetPity(ctx, "u1", want); err != nil {
		t.Fatalf("SetPity() error: %v", err)
	}
	got, err := db.Pity(ctx, "u1")
	if err != nil {
		t.Fatalf("Pity() error: %v", err)
	}
	if got[domain.RarityEpic] != 4 || got[domain.RarityLegendary] != 9 {
		t.Errorf("Pity() = %v, want %v", got, want)
	}
}

// ─── Streak CAS ─────────────────────────────────────────────────────────────

func TestCompareAndSetStreak(t *testing.T) {
	db := newTestDB(t)
	newPlayer(t, db, "u1")

	ok, err := db.CompareAndSetStreak(ctx, "u1", domain.PeriodDaily, 0, nil, 1, now)
	if err != nil || !ok {
		t.Fatalf("first CAS = %v, %v; want true", ok, err)
	}

	// Stale expectation loses
	ok, err = db.CompareAndSetStreak(ctx, "u1", domain.PeriodDaily, 0, nil, 1, now)
	if err != nil {
		t.Fatalf("CAS error: %v", err)
	}
	if ok {
		t.Error("stale CAS should not apply")
	}

	p, _ := db.GetPlayer(ctx, "u1")
	if p.Streak.DailyCount != 1 || p.Streak.LongestDaily != 1 || p.Streak.LastDailyAt == nil {
		t.Errorf("streak = %+v, want daily 1 / longest 1 / last set", p.Streak)
	}
}

// ─── Quests ─────────────────────────────────────────────────────────────────

func TestMergeQuestProgress_NeverRegresses(t *testing.T) {
	db := newTestDB(t)

	for _, v := range []int{3, 5, 2, 4} {
		if _, err := db.MergeQuestProgress(ctx, "u1", "q1", "2025-07-01", v, now); err != nil {
			t.Fatalf("MergeQuestProgress(%d) error: %v", v, err)
		}
	}

	qp, err := db.GetQuestProgress(ctx, "u1", "q1", "2025-07-01")
	if err != nil {
		t.Fatalf("GetQuestProgress() error: %v", err)
	}
	if qp.Progress != 5 {
		t.Errorf("Progress = %d, want 5", qp.Progress)
	}
}

func TestMergeTrackCounts_PerKeyMax(t *testing.T) {
	db := newTestDB(t)

	_, _ = db.MergeTrackCounts(ctx, "u1", "q1", "2025-W27", map[string]int{"a": 5, "b": 1}, now)
	got, err := db.MergeTrackCounts(ctx, "u1", "q1", "2025-W27", map[string]int{"a": 3, "b": 2}, now)
	if err != nil {
		t.Fatalf("MergeTrackCounts() error: %v", err)
	}
	if got["a"] != 5 || got["b"] != 2 {
		t.Errorf("counts = %v, want a=5 b=2", got)
	}
}

func TestCompleteQuest_FiresOnce(t *testing.T) {
	db := newTestDB(t)
	_, _ = db.MergeQuestProgress(ctx, "u1", "q1", "k", 5, now)

	first, err := db.CompleteQuest(ctx, "u1", "q1", "k", 5, now)
	if err != nil || !first {
		t.Fatalf("first CompleteQuest = %v, %v; want true", first, err)
	}
	second, _ := db.CompleteQuest(ctx, "u1", "q1", "k", 5, now)
	if second {
		t.Error("second CompleteQuest should not fire")
	}
}

func TestCompleteQuest_BelowGoal(t *testing.T) {
	db := newTestDB(t)
	_, _ = db.MergeQuestProgress(ctx, "u1", "q1", "k", 4, now)
	done, _ := db.CompleteQuest(ctx, "u1", "q1", "k", 5, now)
	if done {
		t.Error("progress below goal should not complete")
	}
}

func TestClaimQuest_Transitions(t *testing.T) {
	db := newTestDB(t)

	if err := db.ClaimQuest(ctx, "u1", "q1", "k", now); !errors.Is(err, domain.ErrNotEligible) {
		t.Errorf("claim without row: err = %v, want ErrNotEligible", err)
	}

	_, _ = db.MergeQuestProgress(ctx, "u1", "q1", "k", 1, now)
	if err := db.ClaimQuest(ctx, "u1", "q1", "k", now); !errors.Is(err, domain.ErrNotEligible) {
		t.Errorf("claim before completion: err = %v, want ErrNotEligible", err)
	}

	_, _ = db.MergeQuestProgress(ctx, "u1", "q1", "k", 3, now)
	_, _ = db.CompleteQuest(ctx, "u1", "q1", "k", 3, now)
	if err := db.ClaimQuest(ctx, "u1", "q1", "k", now); err != nil {
		t.Fatalf("claim after completion: %v", err)
	}
	if err := db.ClaimQuest(ctx, "u1", "q1", "k", now); !errors.Is(err, domain.ErrAlreadyClaimed) {
		t.Errorf("second claim: err = %v, want ErrAlreadyClaimed", err)
	}
}

func TestCountCompleted(t *testing.T) {
	db := newTestDB(t)
	_, _ = db.MergeQuestProgress(ctx, "u1", "a", "k", 1, now)
	_, _ = db.CompleteQuest(ctx, "u1", "a", "k", 1, now)
	_, _ = db.MergeQuestProgress(ctx, "u1", "b", "k", 0, now)

	n, err := db.CountCompleted(ctx, "u1", "k", []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("CountCompleted() error: %v", err)
	}
	if n != 1 {
		t.Errorf("CountCompleted() = %d, want 1", n)
	}
}

// ─── Grants & Badges ────────────────────────────────────────────────────────

func TestInsertGrant_RequestIDIdempotent(t *testing.T) {
	db := newTestDB(t)
	g := domain.CollectibleGrant{
		ID: "g1", UserID: "u1", ItemID: "card-1", Rarity: domain.RarityRare,
		Source: domain.SourceGacha, RequestID: "req-1", Seed: 42, CreatedAt: now,
	}
	if err := db.InsertGrant(ctx, g); err != nil {
		t.Fatalf("InsertGrant() error: %v", err)
	}

	g.ID = "g2"
	if err := db.InsertGrant(ctx, g); !errors.Is(err, domain.ErrAlreadyAwarded) {
		t.Errorf("replayed request: err = %v, want ErrAlreadyAwarded", err)
	}

	got, err := db.GrantByRequest(ctx, "u1", "req-1")
	if err != nil || got == nil {
		t.Fatalf("GrantByRequest() = %v, %v", got, err)
	}
	if got.ID != "g1" || got.Seed != 42 {
		t.Errorf("GrantByRequest() = %+v, want g1 seed 42", got)
	}

	grants, _ := db.ListGrants(ctx, "u1", 10)
	if len(grants) != 1 {
		t.Errorf("ListGrants() = %d, want 1", len(grants))
	}
}

func TestAwardBadge_UniquePerVariant(t *testing.T) {
	db := newTestDB(t)

	first, _ := db.AwardBadge(ctx, "u1", "daily-streak", 7, now)
	again, _ := db.AwardBadge(ctx, "u1", "daily-streak", 7, now)
	other, _ := db.AwardBadge(ctx, "u1", "daily-streak", 14, now)

	if !first || again || !other {
		t.Errorf("awards = %v/%v/%v, want true/false/true", first, again, other)
	}
	badges, _ := db.ListBadges(ctx, "u1")
	if len(badges) != 2 {
		t.Errorf("ListBadges() = %d, want 2", len(badges))
	}
}

// ─── Leaderboards ───────────────────────────────────────────────────────────

func TestLeaderboard_ScoreMonotonicAndRank(t *testing.T) {
	db := newTestDB(t)
	upsert := func(user string, score int64) {
		t.Helper()
		err := db.UpsertLeaderboardEntry(ctx, domain.LeaderboardEntry{
			Board: domain.BoardDaily, PeriodKey: "2025-07-01", UserID: user, Score: score, DisplayName: user,
		}, now)
		if err != nil {
			t.Fatalf("UpsertLeaderboardEntry(%s) error: %v", user, err)
		}
	}

	upsert("a", 100)
	upsert("b", 100)
	upsert("c", 50)
	upsert("a", 10) // lower score must not overwrite

	e, _ := db.LeaderboardEntry(ctx, domain.BoardDaily, "2025-07-01", "a")
	if e.Score != 100 {
		t.Errorf("score = %d, want 100", e.Score)
	}

	for user, want := range map[string]int{"a": 1, "b": 1, "c": 3} {
		e, _ := db.LeaderboardEntry(ctx, domain.BoardDaily, "2025-07-01", user)
		rank, err := db.RankForScore(ctx, domain.BoardDaily, "2025-07-01", e.Score)
		if err != nil {
			t.Fatalf("RankForScore() error: %v", err)
		}
		if rank != want {
			t.Errorf("rank(%s) = %d, want %d", user, rank, want)
		}
	}
}

func TestLeaderboardAfter_CursorOrdering(t *testing.T) {
	db := newTestDB(t)
	for i, s := range []int64{30, 50, 50, 10} {
		_ = db.UpsertLeaderboardEntry(ctx, domain.LeaderboardEntry{
			Board: domain.BoardAllTime, PeriodKey: domain.AllTimeKey,
			UserID: string(rune('a' + i)), Score: s,
		}, now)
	}

	page1, err := db.LeaderboardAfter(ctx, domain.BoardAllTime, domain.AllTimeKey, nil, 2)
	if err != nil {
		t.Fatalf("LeaderboardAfter() error: %v", err)
	}
	if len(page1) != 2 || page1[0].UserID != "c" || page1[1].UserID != "b" {
		t.Fatalf("page1 = %+v, want c then b (score desc, id desc)", page1)
	}

	last := page1[len(page1)-1]
	page2, _ := db.LeaderboardAfter(ctx, domain.BoardAllTime, domain.AllTimeKey, &Cursor{Score: last.Score, ID: last.ID}, 2)
	if len(page2) != 2 || page2[0].UserID != "a" || page2[1].UserID != "d" {
		t.Fatalf("page2 = %+v, want a then d", page2)
	}
}

func TestClosePeriod_FreezesEntries(t *testing.T) {
	db := newTestDB(t)
	entry := domain.LeaderboardEntry{Board: domain.BoardDaily, PeriodKey: "2025-06-30", UserID: "u1", Score: 5}
	if err := db.UpsertLeaderboardEntry(ctx, entry, now); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	open, _ := db.OpenPeriods(ctx, domain.BoardDaily)
	if len(open) != 1 {
		t.Fatalf("OpenPeriods() = %v, want one", open)
	}

	closed, err := db.ClosePeriod(ctx, domain.BoardDaily, "2025-06-30", now)
	if err != nil || !closed {
		t.Fatalf("ClosePeriod() = %v, %v", closed, err)
	}

	entry.Score = 99
	if err := db.UpsertLeaderboardEntry(ctx, entry, now); !errors.Is(err, domain.ErrPeriodClosed) {
		t.Errorf("upsert into closed period: err = %v, want ErrPeriodClosed", err)
	}
	e, _ := db.LeaderboardEntry(ctx, domain.BoardDaily, "2025-06-30", "u1")
	if e.Score != 5 {
		t.Errorf("frozen score = %d, want 5", e.Score)
	}
}

// ─── Transactions ───────────────────────────────────────────────────────────

func TestInTx_RollbackOnError(t *testing.T) {
	db := newTestDB(t)
	newPlayer(t, db, "u1")

	boom := errors.New("boom")
	err := db.InTx(ctx, func(tx *Conn) error {
		if _, err := tx.EarnCurrency(ctx, "u1", 100, "", "test", now); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx() err = %v, want boom", err)
	}

	p, _ := db.GetPlayer(ctx, "u1")
	if p.Currency != 0 {
		t.Errorf("currency = %d after rollback, want 0", p.Currency)
	}
	entries, _ := db.LedgerEntries(ctx, "u1", 10)
	if len(entries) != 0 {
		t.Errorf("ledger entries = %d after rollback, want 0", len(entries))
	}
}
