// Package streak derives daily/weekly completion streaks and the reward
// bonus percentage from authoritative quest state. Reconcile is pure and
// idempotent; the gateway applies it inside the same atomic operation as
// the XP grant it feeds.
package streak

import (
	"fmt"
	"time"
)

// QuestState is the slice of the quest document that streaks derive from.
type QuestState struct {
	DailyDone  bool   // today's completion conditions satisfied
	WeeklyDone bool   // this week's completion conditions satisfied
	DailyKey   string // period key of the last recorded daily completion, "" if none
	WeeklyKey  string // period key of the last recorded weekly completion

	DailyCurrent  int
	DailyBest     int
	WeeklyCurrent int
	WeeklyBest    int
}

// Outcome is the reconciled streak state plus the derived bonus.
type Outcome struct {
	DailyCurrent  int
	DailyBest     int
	DailyKey      string
	WeeklyCurrent int
	WeeklyBest    int
	WeeklyKey     string
	BonusPercent  int
}

// DayKey formats t's UTC date as the daily period key.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// WeekKey formats t's ISO year-week as the weekly period key.
func WeekKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// Reconcile advances or resets both cadences for the period containing now.
// For each cadence independently: a completion in a new period advances the
// streak by 1 when the gap is exactly one unit, else restarts it at 1; a
// gap of more than one unit with no completion resets the running streak to
// 0 without touching the best high-water mark.
func Reconcile(state QuestState, now time.Time) Outcome {
	out := Outcome{
		DailyCurrent:  state.DailyCurrent,
		DailyBest:     state.DailyBest,
		DailyKey:      state.DailyKey,
		WeeklyCurrent: state.WeeklyCurrent,
		WeeklyBest:    state.WeeklyBest,
		WeeklyKey:     state.WeeklyKey,
	}

	today := DayKey(now)
	out.DailyCurrent, out.DailyBest, out.DailyKey = reconcileCadence(
		state.DailyDone, state.DailyKey, today, state.DailyCurrent, state.DailyBest,
		dayGap,
	)

	thisWeek := WeekKey(now)
	out.WeeklyCurrent, out.WeeklyBest, out.WeeklyKey = reconcileCadence(
		state.WeeklyDone, state.WeeklyKey, thisWeek, state.WeeklyCurrent, state.WeeklyBest,
		weekGap,
	)

	out.BonusPercent = bonusFor(out.DailyCurrent, dailyBreakpoints) +
		bonusFor(out.WeeklyCurrent, weeklyBreakpoints)
	if out.BonusPercent > maxTotalBonus {
		out.BonusPercent = maxTotalBonus
	}
	return out
}

// reconcileCadence handles one cadence. gap returns the number of whole
// periods between two keys, or -1 when either key is unparsable.
func reconcileCadence(done bool, lastKey, nowKey string, current, best int, gap func(a, b string) int) (int, int, string) {
	if lastKey == nowKey {
		// Same period: completion already counted, nothing to move.
		return current, best, lastKey
	}

	g := -1
	if lastKey != "" {
		g = gap(lastKey, nowKey)
	}

	if done {
		switch {
		case g == 1:
			current++
		default:
			// First-ever completion, an unparsable key, or a gap of
			// more than one unit all restart the streak.
			current = 1
		}
		if current > best {
			best = current
		}
		return current, best, nowKey
	}

	// No completion this period. A gap beyond one unit kills the running
	// streak; the best mark survives. The key stays on the last completed
	// period so a later completion still sees the true gap.
	if g > 1 || (g < 0 && lastKey != "") {
		current = 0
	}
	return current, best, lastKey
}

// dayGap returns whole days between two day keys.
func dayGap(a, b string) int {
	ta, errA := time.Parse("2006-01-02", a)
	tb, errB := time.Parse("2006-01-02", b)
	if errA != nil || errB != nil {
		return -1
	}
	return int(tb.Sub(ta).Hours() / 24)
}

// weekGap returns whole ISO weeks between two week keys.
func weekGap(a, b string) int {
	ta, okA := parseWeekKey(a)
	tb, okB := parseWeekKey(b)
	if !okA || !okB {
		return -1
	}
	return int(tb.Sub(ta).Hours() / (24 * 7))
}

// parseWeekKey resolves "YYYY-Www" to the Monday of that ISO week.
func parseWeekKey(key string) (time.Time, bool) {
	var year, week int
	if _, err := fmt.Sscanf(key, "%04d-W%02d", &year, &week); err != nil {
		return time.Time{}, false
	}
	// January 4th is always inside ISO week 1.
	jan4 := time.Date(year, 1, 4, 0, 0, 0, 0, time.UTC)
	_, w := jan4.ISOWeek()
	monday := jan4.AddDate(0, 0, -(int(jan4.Weekday())+6)%7)
	return monday.AddDate(0, 0, (week-w)*7), true
}

// breakpoint maps a minimum streak length to a bonus percentage.
type breakpoint struct {
	atLeast int
	percent int
}

// Distinct day/week breakpoints; each list is ascending and the highest
// satisfied entry wins.
var (
	dailyBreakpoints = []breakpoint{
		{3, 5}, {7, 10}, {14, 15}, {30, 20},
	}
	weeklyBreakpoints = []breakpoint{
		{2, 5}, {4, 10}, {8, 15},
	}
)

const maxTotalBonus = 40

func bonusFor(current int, table []breakpoint) int {
	bonus := 0
	for _, bp := range table {
		if current >= bp.atLeast {
			bonus = bp.percent
		}
	}
	return bonus
}
