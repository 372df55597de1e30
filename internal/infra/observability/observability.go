// Package observability registers the Prometheus metrics for the economy
// core: ledger movement, approval verdicts, streak progression, and reward
// dispatch. Served at /metrics when enabled in config.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Ledger Metrics ─────────────────────────────────────────────────────────

// LedgerEntries counts committed ledger entries by reason code.
var LedgerEntries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "taskme",
	Subsystem: "ledger",
	Name:      "entries_total",
	Help:      "Total committed ledger entries by reason.",
}, []string{"reason"})

// LedgerReplays counts idempotent replays that returned an existing entry.
var LedgerReplays = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "taskme",
	Subsystem: "ledger",
	Name:      "idempotent_replays_total",
	Help:      "Total apply calls answered by an existing entry.",
})

// LedgerInsufficientFunds counts rejected spends.
var LedgerInsufficientFunds = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "taskme",
	Subsystem: "ledger",
	Name:      "insufficient_funds_total",
	Help:      "Total spends rejected for insufficient funds.",
})

// CreditsMinted tracks total positive credit movement.
var CreditsMinted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "taskme",
	Subsystem: "ledger",
	Name:      "credits_minted_total",
	Help:      "Total credits minted (positive entries).",
})

// CreditsBurned tracks total negative credit movement.
var CreditsBurned = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "taskme",
	Subsystem: "ledger",
	Name:      "credits_burned_total",
	Help:      "Total credits burned (negative entries).",
})

// ─── Approval Metrics ───────────────────────────────────────────────────────

// ReviewsRecorded counts reviewer verdicts by outcome.
var ReviewsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "taskme",
	Subsystem: "approval",
	Name:      "reviews_total",
	Help:      "Total recorded proof reviews by verdict.",
}, []string{"verdict"})

// ContributionsFinalized counts contributions reaching a terminal state.
var ContributionsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "taskme",
	Subsystem: "approval",
	Name:      "contributions_finalized_total",
	Help:      "Total contributions reaching a terminal state.",
}, []string{"status"})

// SweepClosures counts contributions closed by the review-deadline sweep.
var SweepClosures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "taskme",
	Subsystem: "approval",
	Name:      "sweep_closures_total",
	Help:      "Total contributions closed as rejected by the deadline sweep.",
})

// ─── Streak Metrics ─────────────────────────────────────────────────────────

// StreakIncrements counts streak day increments.
var StreakIncrements = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "taskme",
	Subsystem: "streak",
	Name:      "increments_total",
	Help:      "Total streak day increments.",
})

// StreakResets counts streak resets after grace exhaustion.
var StreakResets = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "taskme",
	Subsystem: "streak",
	Name:      "resets_total",
	Help:      "Total streak resets.",
})

// MilestonesFired counts milestone thresholds reached.
var MilestonesFired = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "taskme",
	Subsystem: "streak",
	Name:      "milestones_fired_total",
	Help:      "Total streak milestones fired by threshold.",
}, []string{"threshold"})

// ─── Dispatch Metrics ───────────────────────────────────────────────────────

// RewardsCredited counts reward credits applied by trigger kind.
var RewardsCredited = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "taskme",
	Subsystem: "dispatch",
	Name:      "rewards_credited_total",
	Help:      "Total reward credits applied by trigger kind.",
}, []string{"kind"})

// XPAwarded tracks total experience points granted.
var XPAwarded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "taskme",
	Subsystem: "dispatch",
	Name:      "xp_awarded_total",
	Help:      "Total experience points granted.",
})

// DispatchFailures counts reward chains that aborted and will retry.
var DispatchFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "taskme",
	Subsystem: "dispatch",
	Name:      "failures_total",
	Help:      "Total reward dispatch chains that aborted.",
})
