package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/taskme-network/taskme/internal/domain"
)

// ─── Streak Operations ──────────────────────────────────────────────────────

const dateLayout = "2006-01-02"

// GetStreak returns the streak state for (participant, commitment), or nil
// when none exists yet.
func (c conn) GetStreak(participantID, commitmentID string) (*domain.StreakState, error) {
	var s domain.StreakState
	var lastCounted, graceRefilled sql.NullString
	var firedJSON string
	err := c.q.QueryRow(`
		SELECT participant_id, commitment_id, current, longest, last_counted,
			grace_remaining, grace_refilled, fired_milestones
		FROM streaks WHERE participant_id = ? AND commitment_id = ?
	`, participantID, commitmentID).Scan(&s.ParticipantID, &s.CommitmentID,
		&s.Current, &s.Longest, &lastCounted, &s.GraceRemaining, &graceRefilled, &firedJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastCounted.Valid {
		s.LastCounted, _ = time.Parse(dateLayout, lastCounted.String)
	}
	if graceRefilled.Valid {
		s.GraceRefilled, _ = time.Parse(dateLayout, graceRefilled.String)
	}
	if err := json.Unmarshal([]byte(firedJSON), &s.FiredMilestones); err != nil {
		return nil, err
	}
	return &s, nil
}

// UpsertStreak writes the full streak state.
func (c conn) UpsertStreak(s domain.StreakState) error {
	fired, err := json.Marshal(s.FiredMilestones)
	if err != nil {
		return err
	}
	if s.FiredMilestones == nil {
		fired = []byte("[]")
	}
	var lastCounted, graceRefilled any
	if !s.LastCounted.IsZero() {
		lastCounted = s.LastCounted.Format(dateLayout)
	}
	if !s.GraceRefilled.IsZero() {
		graceRefilled = s.GraceRefilled.Format(dateLayout)
	}
	_, err = c.q.Exec(`
		INSERT INTO streaks (participant_id, commitment_id, current, longest,
			last_counted, grace_remaining, grace_refilled, fired_milestones)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(participant_id, commitment_id) DO UPDATE SET
			current          = excluded.current,
			longest          = excluded.longest,
			last_counted     = excluded.last_counted,
			grace_remaining  = excluded.grace_remaining,
			grace_refilled   = excluded.grace_refilled,
			fired_milestones = excluded.fired_milestones
	`, s.ParticipantID, s.CommitmentID, s.Current, s.Longest,
		lastCounted, s.GraceRemaining, graceRefilled, string(fired))
	return err
}
