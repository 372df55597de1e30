package domain

import "testing"

func TestAggregateVerdict(t *testing.T) {
	approve := ProofReview{Verdict: VerdictApprove}
	reject := ProofReview{Verdict: VerdictReject}

	tests := []struct {
		name         string
		reviews      []ProofReview
		minApprovals int
		want         ProofStatus
	}{
		{"no reviews", nil, 1, ProofAwaitingReview},
		{"quorum of one", []ProofReview{approve}, 1, ProofApproved},
		{"below quorum", []ProofReview{approve}, 2, ProofAwaitingReview},
		{"quorum of two", []ProofReview{approve, approve}, 2, ProofApproved},
		{"single reject blocks", []ProofReview{reject}, 1, ProofRejected},
		{"reject beats quorum", []ProofReview{approve, approve, reject}, 2, ProofRejected},
		{"reject first, approvals later", []ProofReview{reject, approve, approve}, 2, ProofRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AggregateVerdict(tt.reviews, tt.minApprovals)
			if got != tt.want {
				t.Errorf("AggregateVerdict() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAggregateVerdictOrderIndependent(t *testing.T) {
	// Same review set in any order must reach the same status.
	a := ProofReview{ReviewerID: "a", Verdict: VerdictApprove}
	b := ProofReview{ReviewerID: "b", Verdict: VerdictApprove}
	r := ProofReview{ReviewerID: "c", Verdict: VerdictReject}

	orders := [][]ProofReview{
		{a, b, r},
		{r, a, b},
		{a, r, b},
	}
	for _, reviews := range orders {
		if got := AggregateVerdict(reviews, 2); got != ProofRejected {
			t.Errorf("AggregateVerdict(%v) = %q, want %q", reviews, got, ProofRejected)
		}
	}
}

func TestContributionStatusTerminal(t *testing.T) {
	terminal := []ContributionStatus{ContributionApproved, ContributionRejected, ContributionWithdrawn}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%q.Terminal() = false, want true", s)
		}
	}
	if ContributionAwaitingReview.Terminal() {
		t.Errorf("%q.Terminal() = true, want false", ContributionAwaitingReview)
	}
}

func TestCommitmentEvidenceHelpers(t *testing.T) {
	cm := Commitment{RequiredProofs: []EvidenceType{EvidencePhoto, EvidencePeer}}

	if !cm.RequiresPeerReview() {
		t.Error("RequiresPeerReview() = false, want true")
	}
	if !cm.RequiresProof() {
		t.Error("RequiresProof() = false, want true")
	}
	if !cm.AllowsEvidence(EvidencePhoto) {
		t.Error("AllowsEvidence(photo) = false, want true")
	}
	if cm.AllowsEvidence(EvidenceDocument) {
		t.Error("AllowsEvidence(document) = true, want false")
	}

	honor := Commitment{RequiredProofs: []EvidenceType{EvidenceNone}}
	if honor.RequiresProof() {
		t.Error("honor-system commitment should not require proof")
	}
	if honor.RequiresPeerReview() {
		t.Error("honor-system commitment should not require peer review")
	}
}
