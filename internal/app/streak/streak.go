// Package streak implements daily continuity tracking per
// (participant, commitment): consecutive-day counting with a grace
// allotment for missed days and milestone detection against a configured
// ascending threshold list.
//
// Advance is idempotent per calendar day — retried reward dispatch for the
// same day is a no-op — and milestones fire once ever per streak lifetime.
package streak

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/taskme-network/taskme/internal/domain"
	"github.com/taskme-network/taskme/internal/infra/observability"
	"github.com/taskme-network/taskme/internal/infra/sqlite"
)

// Store is the slice of the persistence layer the engine needs. Satisfied
// by *sqlite.DB and *sqlite.Tx.
type Store interface {
	GetStreak(participantID, commitmentID string) (*domain.StreakState, error)
	UpsertStreak(s domain.StreakState) error
}

// Config controls grace and milestone behavior. Externally supplied — the
// engine hard-codes nothing.
type Config struct {
	Milestones      []int // ascending thresholds, e.g. 7, 30, 100
	GraceAllotment  int   // forgiven gap days per refill period
	GraceRefillDays int   // days between allotment refills
}

// DefaultConfig returns the stock streak policy.
func DefaultConfig() Config {
	return Config{
		Milestones:      []int{7, 30, 100},
		GraceAllotment:  1,
		GraceRefillDays: 30,
	}
}

// Engine tracks streaks. Advance for a given (participant, commitment) is
// serialized by an in-process lock.
type Engine struct {
	db  *sqlite.DB
	cfg Config

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// Injectable clock for testing.
	now func() time.Time
}

// New creates a streak engine.
func New(db *sqlite.DB, cfg Config) *Engine {
	sort.Ints(cfg.Milestones)
	return &Engine{
		db:    db,
		cfg:   cfg,
		locks: make(map[string]*sync.Mutex),
		now:   time.Now,
	}
}

// Lock acquires the per-streak lock and returns the unlock function.
func (e *Engine) Lock(participantID, commitmentID string) func() {
	key := participantID + "|" + commitmentID
	e.mu.Lock()
	l, ok := e.locks[key]
	if !ok {
		l = &sync.Mutex{}
		e.locks[key] = l
	}
	e.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Advance counts one approved contribution day for the streak.
func (e *Engine) Advance(participantID, commitmentID string, occurredOn time.Time) (domain.AdvanceResult, error) {
	unlock := e.Lock(participantID, commitmentID)
	defer unlock()

	var res domain.AdvanceResult
	err := e.db.WithTx(func(tx *sqlite.Tx) error {
		var err error
		res, err = e.AdvanceIn(tx, participantID, commitmentID, occurredOn)
		return err
	})
	return res, err
}

// AdvanceIn is Advance's transactional core. The caller must hold the
// streak lock (see Lock) and owns the surrounding transaction.
func (e *Engine) AdvanceIn(st Store, participantID, commitmentID string, occurredOn time.Time) (domain.AdvanceResult, error) {
	day := domain.DayOf(occurredOn)

	state, err := st.GetStreak(participantID, commitmentID)
	if err != nil {
		return domain.AdvanceResult{}, err
	}
	if state == nil {
		state = &domain.StreakState{
			ParticipantID:  participantID,
			CommitmentID:   commitmentID,
			GraceRemaining: e.cfg.GraceAllotment,
			GraceRefilled:  day,
		}
	}

	// Periodic grace refill.
	if e.cfg.GraceRefillDays > 0 && !state.GraceRefilled.IsZero() &&
		domain.DaysBetween(state.GraceRefilled, day) >= e.cfg.GraceRefillDays {
		state.GraceRemaining = e.cfg.GraceAllotment
		state.GraceRefilled = day
	}

	res := domain.AdvanceResult{Current: state.Current}

	switch {
	case !state.LastCounted.IsZero() && !day.After(state.LastCounted):
		// Already counted (same day) or an out-of-order past day: no-op.
		return res, nil

	case state.LastCounted.IsZero():
		state.Current = 1
		res.Incremented = true

	default:
		gap := domain.DaysBetween(state.LastCounted, day)
		if gap == 1 {
			state.Current++
			res.Incremented = true
		} else if missed := gap - 1; missed <= state.GraceRemaining {
			state.GraceRemaining -= missed
			state.Current++
			res.Incremented = true
			res.GraceConsumed = missed
		} else {
			state.Current = 1
			res.Reset = true
		}
	}

	res.Counted = true
	state.LastCounted = day
	if state.Current > state.Longest {
		state.Longest = state.Current
	}

	// Milestones fire once ever per streak lifetime. Current grows one day
	// at a time, so at most one threshold crosses per advance.
	for _, threshold := range e.cfg.Milestones {
		if state.Current >= threshold && !state.HasFired(threshold) {
			state.FiredMilestones = append(state.FiredMilestones, threshold)
			res.MilestoneReached = true
			res.MilestoneValue = threshold
			observability.MilestonesFired.WithLabelValues(fmt.Sprint(threshold)).Inc()
		}
	}

	if err := st.UpsertStreak(*state); err != nil {
		return domain.AdvanceResult{}, err
	}

	res.Current = state.Current
	if res.Incremented {
		observability.StreakIncrements.Inc()
	}
	if res.Reset {
		observability.StreakResets.Inc()
	}
	return res, nil
}

// Get returns the streak state for (participant, commitment); a fresh zero
// state when none exists yet.
func (e *Engine) Get(participantID, commitmentID string) (domain.StreakState, error) {
	state, err := e.db.GetStreak(participantID, commitmentID)
	if err != nil {
		return domain.StreakState{}, err
	}
	if state == nil {
		return domain.StreakState{
			ParticipantID:  participantID,
			CommitmentID:   commitmentID,
			GraceRemaining: e.cfg.GraceAllotment,
		}, nil
	}
	return *state, nil
}
