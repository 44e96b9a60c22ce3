package engagement

import "github.com/stagelight/fanquest/internal/domain"

// DailyCaps bounds what one player may be issued per date key.
// A zero field is unlimited.
type DailyCaps struct {
	XPEvents     int   // experience-awarding events
	XPAmount     int64 // total experience
	Collectibles int   // collectible grants
}

// CapDecision is the outcome of checking a pending batch against the caps.
type CapDecision struct {
	XPAwarded           int64
	CollectiblesAwarded int
	XPCapped            bool
	CollectibleCapped   bool
}

// CheckCaps decides whether a pending batch fits under today's caps. Each
// part of the batch is all-or-nothing; an over-cap batch is never truncated.
// issued must already be normalized to today's date key.
//
// The decision is advisory. Commit it with sqlite.Conn.ApplyIssuance, which
// re-checks the caps atomically.
func CheckCaps(pendingXP int64, pendingCollectibles int, issued domain.DailyIssuance, caps DailyCaps) CapDecision {
	var d CapDecision

	if pendingXP > 0 {
		overEvents := caps.XPEvents > 0 && issued.XPEvents+1 > caps.XPEvents
		overAmount := caps.XPAmount > 0 && issued.XPAmount+pendingXP > caps.XPAmount
		if overEvents || overAmount {
			d.XPCapped = true
		} else {
			d.XPAwarded = pendingXP
		}
	}

	if pendingCollectibles > 0 {
		if caps.Collectibles > 0 && issued.Collectibles+pendingCollectibles > caps.Collectibles {
			d.CollectibleCapped = true
		} else {
			d.CollectiblesAwarded = pendingCollectibles
		}
	}

	return d
}
