package domain

import "math"

// ─── Experience & Levels ────────────────────────────────────────────────────
// XP is reputation, not spendable credit: it only grows, and levels are
// derived from the lifetime total rather than stored.

// XPForLevel returns the cumulative XP needed to reach a level.
// Level 1 costs nothing; above that the curve is 100 * (level-1)^1.5.
func XPForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	return int64(100 * math.Pow(float64(level-1), 1.5))
}

// LevelFromXP returns the level a lifetime XP total has reached.
func LevelFromXP(xp int64) int {
	level := 1
	for XPForLevel(level+1) <= xp {
		level++
	}
	return level
}

// LevelProgress describes where an account sits on the level curve.
type LevelProgress struct {
	Level       int   `json:"level"`
	TotalXP     int64 `json:"total_xp"`
	XPIntoLevel int64 `json:"xp_into_level"`
	XPForNext   int64 `json:"xp_for_next"`
	ProgressPct int   `json:"progress_pct"`
}

// ProgressOf derives level progression from a lifetime XP total.
func ProgressOf(xp int64) LevelProgress {
	level := LevelFromXP(xp)
	current := XPForLevel(level)
	next := XPForLevel(level + 1)
	p := LevelProgress{
		Level:       level,
		TotalXP:     xp,
		XPIntoLevel: xp - current,
		XPForNext:   next - current,
	}
	if p.XPForNext > 0 {
		p.ProgressPct = int(p.XPIntoLevel * 100 / p.XPForNext)
	}
	return p
}
