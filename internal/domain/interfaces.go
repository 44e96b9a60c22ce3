package domain

import (
	"context"
	"net/http"
	"time"
)

// ─── Collaborator Interfaces ────────────────────────────────────────────────
// The engine depends on these; infrastructure implements them.

// Catalog is the read-only quest, item and badge lookup.
type Catalog interface {
	// Quest returns a quest definition by code.
	Quest(code string) (QuestDefinition, bool)

	// QuestsForPeriod returns every quest scoped to the period.
	QuestsForPeriod(p Period) []QuestDefinition

	// ItemsByRarity returns the items of a tier matching the constraint.
	ItemsByRarity(tier Rarity, c ItemConstraint) []CollectibleItem

	// Badge returns a badge definition by code.
	Badge(code string) (BadgeDefinition, bool)
}

// Play is one entry of a user's listening history.
type Play struct {
	Track      string
	Artist     string
	Album      string
	PlayedAt   time.Time
	NowPlaying bool
}

// HistoryPage is one page from a streaming-history provider.
type HistoryPage struct {
	Plays      []Play
	Page       int
	TotalPages int
	HasMore    bool
}

// StreamingProvider fetches paginated play history, newest first.
type StreamingProvider interface {
	RecentPlays(ctx context.Context, username string, page, limit int) (HistoryPage, error)
}

// IdentityVerifier resolves the caller of a request to a stable user id.
// It fails with ErrUnauthorized.
type IdentityVerifier interface {
	Identify(r *http.Request) (string, error)
}

// RandomSource is the randomness the gacha draws from. *math/rand.Rand
// satisfies it.
type RandomSource interface {
	Float64() float64
	Intn(n int) int
}
