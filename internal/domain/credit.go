package domain

import "time"

// ─── Credit Types ───────────────────────────────────────────────────────────
// These live in domain because they represent core business rules.
// The ledger service owns all value movement; entries are append-only.

// ReasonCode represents the business reason for a ledger entry.
type ReasonCode string

const (
	ReasonContributionReward ReasonCode = "contribution_reward"
	ReasonMilestoneReward    ReasonCode = "milestone_reward"
	ReasonBadgeReward        ReasonCode = "badge_reward"
	ReasonPeerReviewReward   ReasonCode = "peer_review_reward"
	ReasonCreationCost       ReasonCode = "creation_cost"
	ReasonAdminAdjustment    ReasonCode = "admin_adjustment"
	ReasonRefund             ReasonCode = "refund"
	ReasonSignupBonus        ReasonCode = "signup_bonus"
)

// ValidReason reports whether r is a known reason code.
func ValidReason(r ReasonCode) bool {
	switch r {
	case ReasonContributionReward, ReasonMilestoneReward, ReasonBadgeReward,
		ReasonPeerReviewReward, ReasonCreationCost, ReasonAdminAdjustment,
		ReasonRefund, ReasonSignupBonus:
		return true
	}
	return false
}

// Account is one ledger identity. Balance is derived state: it must always
// equal the sum of signed amounts of all entries for the account.
type Account struct {
	ID             string    `json:"id"`
	Balance        int64     `json:"balance"`
	LifetimeEarned int64     `json:"lifetime_earned"`
	LifetimeSpent  int64     `json:"lifetime_spent"`
	XP             int64     `json:"xp"`
	UnlimitedSpend bool      `json:"unlimited_spend,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// LedgerEntry is a single immutable row in the credit ledger.
// Corrections are new entries (reason "refund") referencing the original
// through Ref; entries are never updated or deleted.
type LedgerEntry struct {
	ID             string     `json:"id"`
	AccountID      string     `json:"account_id"`
	Amount         int64      `json:"amount"` // signed, smallest credit unit
	Reason         ReasonCode `json:"reason"`
	IdempotencyKey string     `json:"idempotency_key"`
	Ref            string     `json:"ref,omitempty"` // original entry for refunds
	BalanceAfter   int64      `json:"balance_after"`
	CreatedAt      time.Time  `json:"created_at"`
}

// RewardEvent is the audit record of one reward decision. A trigger key
// produces at most one RewardEvent — this is the dispatcher's idempotency
// contract on top of the ledger's own key check.
type RewardEvent struct {
	ID        string    `json:"id"`
	Trigger   string    `json:"trigger"` // approval id or milestone id
	AccountID string    `json:"account_id"`
	Amount    int64     `json:"amount"`
	EntryID   string    `json:"entry_id"`
	CreatedAt time.Time `json:"created_at"`
}

// EconomyStats summarizes minted, burned, and circulating credits.
// Derived entirely from committed ledger entries.
type EconomyStats struct {
	TotalMinted      int64 `json:"total_minted"`
	TotalBurned      int64 `json:"total_burned"`
	TotalCirculating int64 `json:"total_circulating"`
	AccountCount     int64 `json:"account_count"`
}
