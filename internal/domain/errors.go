package domain

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.
//
// Taxonomy:
//   validation — malformed input, caller's fault, no retry without change
//   conflict   — duplicate review, already-finalized state, do not retry
//   business   — insufficient funds, surfaced to the end user
//   transient  — storage/lock contention, safe to retry the whole operation
//   invariant  — internal bug, abort and escalate, never auto-corrected

var (
	// Ledger errors
	ErrUnknownAccount    = errors.New("account does not exist")
	ErrAccountExists     = errors.New("account already exists")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrZeroAmount        = errors.New("ledger amount must be nonzero")

	// Workflow errors
	ErrUnknownCommitment   = errors.New("commitment not found")
	ErrUnknownContribution = errors.New("contribution not found")
	ErrUnknownProof        = errors.New("proof not found")
	ErrDuplicateReview     = errors.New("reviewer already reviewed this proof")
	ErrSelfReview          = errors.New("reviewer may not review their own submission")
	ErrAlreadyFinalized    = errors.New("proof already reached a terminal verdict")
	ErrEvidenceRequired    = errors.New("commitment requires evidence")
	ErrEvidenceNotAllowed  = errors.New("evidence type not allowed by commitment")
	ErrEvidenceTooLarge    = errors.New("declared evidence size exceeds ceiling")

	// Internal errors
	ErrInvariantViolation = errors.New("ledger invariant violated")
	ErrTransient          = errors.New("transient storage contention")
)

// InsufficientFundsError carries the shortfall so user-visible failures can
// state it, not just "denied".
type InsufficientFundsError struct {
	AccountID string
	Needed    int64
	Available int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds on %s: need %d, have %d (short %d)",
		e.AccountID, e.Needed, e.Available, e.Needed-e.Available)
}

// Unwrap lets errors.Is(err, ErrInsufficientFunds) match.
func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// Shortfall returns how many credits were missing.
func (e *InsufficientFundsError) Shortfall() int64 { return e.Needed - e.Available }

// ValidationError marks malformed caller input with a field hint.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// IsConflict reports whether err belongs to the conflict class — the caller
// should not retry the same call.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateReview) ||
		errors.Is(err, ErrSelfReview) ||
		errors.Is(err, ErrAlreadyFinalized) ||
		errors.Is(err, ErrAccountExists)
}

// IsValidation reports whether err is the caller's malformed input.
func IsValidation(err error) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return true
	}
	return errors.Is(err, ErrZeroAmount) ||
		errors.Is(err, ErrEvidenceRequired) ||
		errors.Is(err, ErrEvidenceNotAllowed) ||
		errors.Is(err, ErrEvidenceTooLarge)
}

// IsNotFound reports whether err names a missing aggregate.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUnknownAccount) ||
		errors.Is(err, ErrUnknownCommitment) ||
		errors.Is(err, ErrUnknownContribution) ||
		errors.Is(err, ErrUnknownProof)
}
