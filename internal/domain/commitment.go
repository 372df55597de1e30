// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of the architecture — it depends on nothing.
package domain

import "time"

// ─── Evidence Types ─────────────────────────────────────────────────────────

// EvidenceType classifies a piece of evidence attached to a contribution.
type EvidenceType string

const (
	EvidenceNone        EvidenceType = "none"
	EvidenceAttestation EvidenceType = "attestation"
	EvidencePhoto       EvidenceType = "photo"
	EvidenceDocument    EvidenceType = "document"
	EvidencePeer        EvidenceType = "peer"
)

// ValidEvidenceType reports whether t is a known evidence type.
func ValidEvidenceType(t EvidenceType) bool {
	switch t {
	case EvidenceNone, EvidenceAttestation, EvidencePhoto, EvidenceDocument, EvidencePeer:
		return true
	}
	return false
}

// EvidenceDescriptor references an externally stored file by opaque handle.
// The core never reads file bytes — it validates only the declared type
// against the commitment's allowed set and the declared size against a
// configured ceiling. Content sniffing is the storage service's job.
type EvidenceDescriptor struct {
	Handle    string       `json:"handle"` // storage URL or key
	Type      EvidenceType `json:"type"`
	SizeBytes int64        `json:"size_bytes"`
}

// ─── Commitment ─────────────────────────────────────────────────────────────

// Commitment is a goal definition: what must be done, what evidence proves
// it, and how many independent approvals that evidence needs.
type Commitment struct {
	ID             string         `json:"id"`
	OwnerID        string         `json:"owner_id"`
	Title          string         `json:"title"`
	RequiredProofs []EvidenceType `json:"required_proofs"`
	MinApprovals   int            `json:"min_approvals"`   // ≥1 when peer evidence required
	RewardAmount   int64          `json:"reward_amount"`   // credited per approved contribution
	CreationCost   int64          `json:"creation_cost"`   // already charged at creation
	ReviewDeadline time.Duration  `json:"review_deadline"` // awaiting_review older than this is swept
	CreatedAt      time.Time      `json:"created_at"`
}

// RequiresPeerReview reports whether any required proof type needs
// independent reviewer verdicts.
func (c Commitment) RequiresPeerReview() bool {
	for _, t := range c.RequiredProofs {
		if t == EvidencePeer {
			return true
		}
	}
	return false
}

// RequiresProof reports whether the commitment needs any evidence at all.
func (c Commitment) RequiresProof() bool {
	for _, t := range c.RequiredProofs {
		if t != EvidenceNone {
			return true
		}
	}
	return false
}

// AllowsEvidence reports whether the given evidence type is in the
// commitment's required set.
func (c Commitment) AllowsEvidence(t EvidenceType) bool {
	for _, rt := range c.RequiredProofs {
		if rt == t {
			return true
		}
	}
	return false
}

// ─── Contribution ───────────────────────────────────────────────────────────

// ContributionStatus is the state of one logged progress event.
type ContributionStatus string

const (
	ContributionAwaitingReview ContributionStatus = "awaiting_review"
	ContributionApproved       ContributionStatus = "approved"
	ContributionRejected       ContributionStatus = "rejected"
	ContributionWithdrawn      ContributionStatus = "withdrawn"
)

// Terminal reports whether the status admits no further transitions.
func (s ContributionStatus) Terminal() bool {
	return s == ContributionApproved || s == ContributionRejected || s == ContributionWithdrawn
}

// Contribution is one progress event against a commitment. Evidence is
// validated synchronously on submission, so a contribution is born either
// awaiting_review or approved; mutated only by the approval workflow and
// the dispatcher; never deleted (rejected rows are retained for audit).
type Contribution struct {
	ID            string             `json:"id"`
	CommitmentID  string             `json:"commitment_id"`
	ParticipantID string             `json:"participant_id"`
	Value         int64              `json:"value"`
	OccurredOn    time.Time          `json:"occurred_on"` // when the activity happened
	Status        ContributionStatus `json:"status"`
	SubmittedAt   time.Time          `json:"submitted_at"`
}

// ─── Proof & Reviews ────────────────────────────────────────────────────────

// ProofStatus mirrors ContributionStatus but is tracked per proof: a
// contribution needing peer approval is approved only once every required
// proof reaches a terminal verdict.
type ProofStatus string

const (
	ProofAwaitingReview ProofStatus = "awaiting_review"
	ProofApproved       ProofStatus = "approved"
	ProofRejected       ProofStatus = "rejected"
	ProofWithdrawn      ProofStatus = "withdrawn"
)

// Terminal reports whether the proof status is final.
func (s ProofStatus) Terminal() bool {
	return s == ProofApproved || s == ProofRejected || s == ProofWithdrawn
}

// Proof is one piece of evidence attached to a contribution.
type Proof struct {
	ID             string       `json:"id"`
	ContributionID string       `json:"contribution_id"`
	Type           EvidenceType `json:"type"`
	Handle         string       `json:"handle"`
	SizeBytes      int64        `json:"size_bytes"`
	Status         ProofStatus  `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Verdict is a reviewer's decision on a proof.
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictReject  Verdict = "reject"
)

// ProofReview is one reviewer's verdict on a proof. At most one review per
// (reviewer, proof) pair; a reviewer never reviews their own submission.
type ProofReview struct {
	ID         string    `json:"id"`
	ProofID    string    `json:"proof_id"`
	ReviewerID string    `json:"reviewer_id"`
	Verdict    Verdict   `json:"verdict"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// AggregateVerdict recomputes a proof's status from the full review set.
// Rejection is immediate: a single reject is terminal regardless of how
// many approvals exist or arrive later. Approval requires minApprovals
// distinct approve verdicts. Recomputing from scratch on every call keeps
// the result order-independent.
func AggregateVerdict(reviews []ProofReview, minApprovals int) ProofStatus {
	approvals := 0
	for _, r := range reviews {
		if r.Verdict == VerdictReject {
			return ProofRejected
		}
		if r.Verdict == VerdictApprove {
			approvals++
		}
	}
	if approvals >= minApprovals {
		return ProofApproved
	}
	return ProofAwaitingReview
}
