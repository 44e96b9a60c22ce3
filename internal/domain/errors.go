package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure. Infrastructure wraps them with %w.

var (
	// Caller errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidInput = errors.New("invalid input")

	// Business preconditions
	ErrNotEligible          = errors.New("not eligible")
	ErrInsufficientCurrency = errors.New("not eligible: insufficient currency")
	ErrQuestNotFound        = errors.New("quest not found")
	ErrPeriodClosed         = errors.New("leaderboard period is closed")

	// Idempotency guards. These are normal outcomes, not faults.
	ErrAlreadyClaimed = errors.New("already claimed")
	ErrAlreadyAwarded = errors.New("already awarded")

	// Catalog
	ErrNoEligibleItems = errors.New("no eligible items")

	// Upstream
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// IsNotEligible reports whether err is a business-precondition failure.
func IsNotEligible(err error) bool {
	return errors.Is(err, ErrNotEligible) || errors.Is(err, ErrInsufficientCurrency)
}
