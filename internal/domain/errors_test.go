package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestInsufficientFundsError(t *testing.T) {
	err := &InsufficientFundsError{AccountID: "alice", Needed: 30, Available: 10}

	if !errors.Is(err, ErrInsufficientFunds) {
		t.Error("errors.Is(err, ErrInsufficientFunds) = false, want true")
	}
	if got := err.Shortfall(); got != 20 {
		t.Errorf("Shortfall() = %d, want 20", got)
	}

	// Wrapping must preserve both the sentinel and the typed error.
	wrapped := fmt.Errorf("apply: %w", err)
	if !errors.Is(wrapped, ErrInsufficientFunds) {
		t.Error("wrapped error lost ErrInsufficientFunds")
	}
	var ife *InsufficientFundsError
	if !errors.As(wrapped, &ife) {
		t.Error("wrapped error lost *InsufficientFundsError")
	}
}

func TestErrorClassifiers(t *testing.T) {
	tests := []struct {
		err        error
		validation bool
		conflict   bool
		notFound   bool
	}{
		{&ValidationError{Field: "amount", Msg: "nonzero"}, true, false, false},
		{ErrZeroAmount, true, false, false},
		{ErrEvidenceRequired, true, false, false},
		{ErrDuplicateReview, false, true, false},
		{ErrSelfReview, false, true, false},
		{ErrAlreadyFinalized, false, true, false},
		{ErrUnknownAccount, false, false, true},
		{ErrUnknownContribution, false, false, true},
		{fmt.Errorf("wrapped: %w", ErrUnknownProof), false, false, true},
		{ErrTransient, false, false, false},
	}

	for _, tt := range tests {
		if got := IsValidation(tt.err); got != tt.validation {
			t.Errorf("IsValidation(%v) = %v, want %v", tt.err, got, tt.validation)
		}
		if got := IsConflict(tt.err); got != tt.conflict {
			t.Errorf("IsConflict(%v) = %v, want %v", tt.err, got, tt.conflict)
		}
		if got := IsNotFound(tt.err); got != tt.notFound {
			t.Errorf("IsNotFound(%v) = %v, want %v", tt.err, got, tt.notFound)
		}
	}
}
