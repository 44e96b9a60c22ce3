package engagement

import "github.com/stagelight/fanquest/internal/domain"

// MergeProgress is the non-regression merge: the larger of the stored and
// incoming values wins.
func MergeProgress(stored, incoming int) int {
	if incoming > stored {
		return incoming
	}
	return stored
}

// MergeTrackCounts merges per-target counts key by key with MergeProgress.
// Keys missing from incoming keep their stored value.
func MergeTrackCounts(stored, incoming map[string]int) map[string]int {
	out := make(map[string]int, len(stored)+len(incoming))
	for k, v := range stored {
		out[k] = v
	}
	for k, v := range incoming {
		out[k] = MergeProgress(out[k], v)
	}
	return out
}

// AggregateTrackProgress derives quest progress from per-target counts.
// Each target contributes its count, capped at its own play requirement
// when it has one. Counts for keys that are not targets are ignored.
func AggregateTrackProgress(targets []domain.StreamTarget, counts map[string]int) int {
	total := 0
	for _, t := range targets {
		n := counts[t.TargetKey()]
		if n < 0 {
			n = 0
		}
		if t.Plays > 0 && n > t.Plays {
			n = t.Plays
		}
		total += n
	}
	return total
}
