package engagement

import (
	"fmt"
	"time"

	"github.com/stagelight/fanquest/internal/domain"
)

// DayKey returns the calendar date of t in loc as "YYYY-MM-DD".
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// WeekKey returns the ISO week of t in loc as "YYYY-Www". Weeks start on
// Monday; week 1 is the one containing the year's first Thursday.
func WeekKey(t time.Time, loc *time.Location) string {
	year, week := t.In(loc).ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// BoardKey returns the period key of a leaderboard at time t.
func BoardKey(board domain.Board, t time.Time, loc *time.Location) string {
	switch board {
	case domain.BoardDaily:
		return DayKey(t, loc)
	case domain.BoardWeekly:
		return WeekKey(t, loc)
	default:
		return domain.AllTimeKey
	}
}

// QuestPeriodKey returns the key quest progress for period is stored under.
func QuestPeriodKey(p domain.Period, t time.Time, loc *time.Location) string {
	if p == domain.PeriodWeekly {
		return WeekKey(t, loc)
	}
	return DayKey(t, loc)
}

// PeriodStart returns the first instant of the period containing t.
func PeriodStart(p domain.Period, t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	if p != domain.PeriodWeekly {
		return day
	}
	offset := (int(day.Weekday()) + 6) % 7 // days since Monday
	return day.AddDate(0, 0, -offset)
}

// previousPeriod reports whether last falls in the period immediately
// before the one containing now.
func previousPeriod(p domain.Period, last, now time.Time, loc *time.Location) bool {
	start := PeriodStart(p, now, loc)
	var prev time.Time
	if p == domain.PeriodWeekly {
		prev = start.AddDate(0, 0, -7)
	} else {
		prev = start.AddDate(0, 0, -1)
	}
	return QuestPeriodKey(p, last, loc) == QuestPeriodKey(p, prev, loc)
}

// samePeriod reports whether a and b fall in the same period.
func samePeriod(p domain.Period, a, b time.Time, loc *time.Location) bool {
	return QuestPeriodKey(p, a, loc) == QuestPeriodKey(p, b, loc)
}
