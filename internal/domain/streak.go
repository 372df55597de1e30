package domain

import "time"

// ─── Streak Types ───────────────────────────────────────────────────────────
// Per (participant, commitment) continuity tracking. One calendar day counts
// at most once; grace units bridge single-day gaps.

// StreakState tracks daily continuity for one participant on one commitment.
// Mutated only by the streak engine, exactly once per unique calendar day.
type StreakState struct {
	ParticipantID   string    `json:"participant_id"`
	CommitmentID    string    `json:"commitment_id"`
	Current         int       `json:"current"`
	Longest         int       `json:"longest"`
	LastCounted     time.Time `json:"last_counted"` // date only, UTC midnight
	GraceRemaining  int       `json:"grace_remaining"`
	GraceRefilled   time.Time `json:"grace_refilled"` // start of current refill period
	FiredMilestones []int     `json:"fired_milestones"`
}

// HasFired reports whether the given milestone threshold already fired for
// this streak's lifetime. Milestones fire once ever: a reset-and-regrowth
// past the same value does not fire again.
func (s StreakState) HasFired(threshold int) bool {
	for _, t := range s.FiredMilestones {
		if t == threshold {
			return true
		}
	}
	return false
}

// AdvanceResult describes what a single streak advancement did.
type AdvanceResult struct {
	Counted          bool `json:"counted"` // false when the day was already counted
	Incremented      bool `json:"incremented"`
	Reset            bool `json:"reset"`
	GraceConsumed    int  `json:"grace_consumed"`
	Current          int  `json:"current"`
	MilestoneReached bool `json:"milestone_reached"`
	MilestoneValue   int  `json:"milestone_value,omitempty"`
}

// DayOf truncates a timestamp to its UTC calendar day.
func DayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole calendar days from a to b (both truncated).
func DaysBetween(a, b time.Time) int {
	return int(DayOf(b).Sub(DayOf(a)).Hours() / 24)
}

// ─── Badges ─────────────────────────────────────────────────────────────────

// Badge is a named streak achievement with a credit payout. Awarded at most
// once per account.
type Badge struct {
	Name      string `json:"name"`
	Threshold int    `json:"threshold"` // streak length that unlocks it
	Reward    int64  `json:"reward"`
}
