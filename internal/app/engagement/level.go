package engagement

import (
	"math"

	"github.com/stagelight/fanquest/internal/domain"
)

// Curve is the exponential experience curve. XP for a level is
// Base * Growth^(level-1), rounded, never below 1.
type Curve struct {
	Base     float64
	Growth   float64
	MaxLevel int
}

// DefaultCurve returns base 100, growth 1.25.
func DefaultCurve() Curve {
	return Curve{Base: 100, Growth: 1.25, MaxLevel: 500}
}

// XPForLevel returns the experience required to advance from level to
// level+1.
func (c Curve) XPForLevel(level int) int64 {
	if level < 1 {
		level = 1
	}
	xp := int64(math.Round(c.Base * math.Pow(c.Growth, float64(level-1))))
	if xp < 1 {
		return 1
	}
	return xp
}

// LevelProgress consumes totalXP greedily from level 1 and reports the
// level reached and how far into it the remainder goes. It depends only on
// the total, so any sequence of awards reaching the same total yields the
// same result.
func (c Curve) LevelProgress(totalXP int64) domain.LevelProgress {
	if totalXP < 0 {
		totalXP = 0
	}

	level := 1
	remaining := totalXP
	for c.MaxLevel <= 0 || level < c.MaxLevel {
		need := c.XPForLevel(level)
		if remaining < need {
			break
		}
		remaining -= need
		level++
	}

	required := c.XPForLevel(level)
	if c.MaxLevel > 0 && level >= c.MaxLevel {
		return domain.LevelProgress{Level: level, IntoLevel: remaining, Required: required, Percent: 100}
	}

	pct := float64(remaining) / float64(required) * 100.0
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return domain.LevelProgress{
		Level:     level,
		IntoLevel: remaining,
		ToNext:    required - remaining,
		Required:  required,
		Percent:   pct,
	}
}
