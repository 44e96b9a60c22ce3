package cli

import (
	"fmt"
	"strings"

	"github.com/stagelight/fanquest/internal/domain"
)

// ─── Level Bar ──────────────────────────────────────────────────────────────
// Renders: Lv 7 [===========>..................]  38% | 120 / 313 XP

const barWidth = 30 // Characters for the progress bar

func renderBar(pct float64) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	filled := int(pct / 100 * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}
	empty := barWidth - filled

	switch {
	case filled == barWidth:
		return strings.Repeat("=", filled)
	case filled > 0:
		return strings.Repeat("=", filled-1) + ">" + strings.Repeat(".", empty)
	default:
		return strings.Repeat(".", barWidth)
	}
}

// formatLevel renders a level progress line.
func formatLevel(lp domain.LevelProgress, maxLevel int) string {
	if maxLevel > 0 && lp.Level >= maxLevel {
		return fmt.Sprintf("Lv %d [%s] max level", lp.Level, renderBar(100))
	}
	return fmt.Sprintf("Lv %d [%s] %3.0f%% | %d / %d XP",
		lp.Level, renderBar(lp.Percent), lp.Percent, lp.IntoLevel, lp.Required)
}
