// Package approval implements the evidence state machine: a contribution
// is submitted with zero or more proofs, independent reviewers record
// verdicts, and the aggregate reaches exactly one terminal outcome.
//
// States: pending → awaiting_review → approved | rejected | withdrawn.
// Aggregation is recomputed from the full review set on every call, under
// a per-contribution lock, so verdicts arriving out of order or
// concurrently can never double-finalize a contribution.
package approval

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskme-network/taskme/internal/domain"
	"github.com/taskme-network/taskme/internal/infra/observability"
	"github.com/taskme-network/taskme/internal/infra/sqlite"
)

// Config controls server-side evidence validation.
type Config struct {
	MaxEvidenceBytes int64 // declared-size ceiling per proof
}

// DefaultConfig returns stock validation limits.
func DefaultConfig() Config {
	return Config{MaxEvidenceBytes: 25 << 20}
}

// Workflow is the approval state machine service.
type Workflow struct {
	db  *sqlite.DB
	cfg Config

	mu    sync.Mutex
	locks map[string]*sync.Mutex // contributionID → lock

	// OnDecided is invoked after a contribution's deciding transaction
	// commits, with the contribution lock still held. Wired to the reward
	// dispatcher, which only takes account and streak locks, so the lock
	// order stays acyclic.
	OnDecided func(contributionID string)

	// OnReviewRecorded is invoked after a reviewer verdict commits.
	// Wired to the dispatcher's peer-review reward path.
	OnReviewRecorded func(review domain.ProofReview)

	// Injectable clock for testing.
	now func() time.Time
}

// New creates an approval workflow.
func New(db *sqlite.DB, cfg Config) *Workflow {
	return &Workflow{
		db:    db,
		cfg:   cfg,
		locks: make(map[string]*sync.Mutex),
		now:   time.Now,
	}
}

// Lock acquires the per-contribution lock and returns the unlock function.
func (w *Workflow) Lock(contributionID string) func() {
	w.mu.Lock()
	l, ok := w.locks[contributionID]
	if !ok {
		l = &sync.Mutex{}
		w.locks[contributionID] = l
	}
	w.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// ReviewOutcome reports the statuses after one recorded verdict.
type ReviewOutcome struct {
	Review             domain.ProofReview        `json:"review"`
	ProofStatus        domain.ProofStatus        `json:"proof_status"`
	ContributionStatus domain.ContributionStatus `json:"contribution_status"`
}

// ─── Submission ─────────────────────────────────────────────────────────────

// Submit records a contribution with its evidence. When the commitment
// requires no peer evidence the contribution goes straight to approved
// once declared type/size validation passes; otherwise it waits for
// reviews.
func (w *Workflow) Submit(commitmentID, participantID string, value int64, occurredOn time.Time, evidence []domain.EvidenceDescriptor) (*domain.Contribution, error) {
	cm, err := w.db.GetCommitment(commitmentID)
	if err != nil {
		return nil, err
	}
	if participantID == "" {
		return nil, &domain.ValidationError{Field: "participant", Msg: "must not be empty"}
	}
	if err := w.validateEvidence(cm, evidence); err != nil {
		return nil, err
	}

	now := w.now()
	contribution := domain.Contribution{
		ID:            uuid.NewString(),
		CommitmentID:  commitmentID,
		ParticipantID: participantID,
		Value:         value,
		OccurredOn:    occurredOn,
		SubmittedAt:   now,
		Status:        domain.ContributionApproved,
	}
	if cm.RequiresPeerReview() {
		contribution.Status = domain.ContributionAwaitingReview
	}

	err = w.db.WithTx(func(tx *sqlite.Tx) error {
		if err := tx.InsertContribution(contribution); err != nil {
			return err
		}
		for _, ev := range evidence {
			proof := domain.Proof{
				ID:             uuid.NewString(),
				ContributionID: contribution.ID,
				Type:           ev.Type,
				Handle:         ev.Handle,
				SizeBytes:      ev.SizeBytes,
				// Non-peer evidence is validated server-side and terminal
				// immediately; peer evidence waits for reviewer verdicts.
				Status:    domain.ProofApproved,
				CreatedAt: now,
			}
			if ev.Type == domain.EvidencePeer {
				proof.Status = domain.ProofAwaitingReview
			}
			if err := tx.InsertProof(proof); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if contribution.Status.Terminal() {
		observability.ContributionsFinalized.WithLabelValues(string(contribution.Status)).Inc()
		w.decided(contribution.ID)
	}
	return &contribution, nil
}

func (w *Workflow) validateEvidence(cm *domain.Commitment, evidence []domain.EvidenceDescriptor) error {
	if cm.RequiresProof() && len(evidence) == 0 {
		return domain.ErrEvidenceRequired
	}
	for _, ev := range evidence {
		if !domain.ValidEvidenceType(ev.Type) {
			return &domain.ValidationError{Field: "evidence", Msg: fmt.Sprintf("unknown type %q", ev.Type)}
		}
		if !cm.AllowsEvidence(ev.Type) {
			return fmt.Errorf("%w: %s", domain.ErrEvidenceNotAllowed, ev.Type)
		}
		if w.cfg.MaxEvidenceBytes > 0 && ev.SizeBytes > w.cfg.MaxEvidenceBytes {
			return fmt.Errorf("%w: %d bytes declared, ceiling %d",
				domain.ErrEvidenceTooLarge, ev.SizeBytes, w.cfg.MaxEvidenceBytes)
		}
	}
	return nil
}

// ─── Reviews ────────────────────────────────────────────────────────────────

// RecordReview appends one reviewer verdict and re-aggregates the proof and
// contribution statuses from the full review set.
func (w *Workflow) RecordReview(proofID, reviewerID string, verdict domain.Verdict, comment string) (*ReviewOutcome, error) {
	if verdict != domain.VerdictApprove && verdict != domain.VerdictReject {
		return nil, &domain.ValidationError{Field: "verdict", Msg: fmt.Sprintf("must be approve or reject, got %q", verdict)}
	}

	proof, err := w.db.GetProof(proofID)
	if err != nil {
		return nil, err
	}

	unlock := w.Lock(proof.ContributionID)
	defer unlock()

	contribution, err := w.db.GetContribution(proof.ContributionID)
	if err != nil {
		return nil, err
	}
	if contribution.Status.Terminal() {
		return nil, domain.ErrAlreadyFinalized
	}
	// Re-read under the lock: a concurrent verdict may have finalized it.
	proof, err = w.db.GetProof(proofID)
	if err != nil {
		return nil, err
	}
	if proof.Status.Terminal() {
		return nil, domain.ErrAlreadyFinalized
	}
	if reviewerID == contribution.ParticipantID {
		return nil, domain.ErrSelfReview
	}

	cm, err := w.db.GetCommitment(contribution.CommitmentID)
	if err != nil {
		return nil, err
	}

	review := domain.ProofReview{
		ID:         uuid.NewString(),
		ProofID:    proofID,
		ReviewerID: reviewerID,
		Verdict:    verdict,
		Comment:    comment,
		CreatedAt:  w.now(),
	}

	outcome := &ReviewOutcome{Review: review}
	err = w.db.WithTx(func(tx *sqlite.Tx) error {
		if err := tx.InsertReview(review); err != nil {
			return err
		}
		status, err := w.aggregate(tx, contribution, cm, proofID)
		if err != nil {
			return err
		}
		outcome.ProofStatus, outcome.ContributionStatus = status.proof, status.contribution
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.ReviewsRecorded.WithLabelValues(string(verdict)).Inc()
	if w.OnReviewRecorded != nil {
		w.OnReviewRecorded(review)
	}
	if outcome.ContributionStatus.Terminal() {
		observability.ContributionsFinalized.WithLabelValues(string(outcome.ContributionStatus)).Inc()
		w.decided(contribution.ID)
	}
	return outcome, nil
}

type aggregateStatus struct {
	proof        domain.ProofStatus
	contribution domain.ContributionStatus
}

// aggregate recomputes the focus proof's status from its full review set,
// then the contribution's status from all of its proofs. Runs inside the
// caller's transaction and contribution lock.
func (w *Workflow) aggregate(tx *sqlite.Tx, contribution *domain.Contribution, cm *domain.Commitment, proofID string) (aggregateStatus, error) {
	var out aggregateStatus

	reviews, err := tx.ReviewsByProof(proofID)
	if err != nil {
		return out, err
	}
	out.proof = domain.AggregateVerdict(reviews, cm.MinApprovals)
	if err := tx.UpdateProofStatus(proofID, out.proof); err != nil {
		return out, err
	}

	proofs, err := tx.ProofsByContribution(contribution.ID)
	if err != nil {
		return out, err
	}
	out.contribution = contributionStatusOf(proofs)
	if out.contribution != contribution.Status {
		if err := tx.UpdateContributionStatus(contribution.ID, out.contribution); err != nil {
			return out, err
		}
	}
	return out, nil
}

// contributionStatusOf derives the contribution status from its proofs:
// any rejected proof rejects the whole contribution, all proofs approved
// approves it, anything else keeps waiting.
func contributionStatusOf(proofs []domain.Proof) domain.ContributionStatus {
	allApproved := true
	for _, p := range proofs {
		switch p.Status {
		case domain.ProofRejected:
			return domain.ContributionRejected
		case domain.ProofApproved:
		default:
			allApproved = false
		}
	}
	if allApproved {
		return domain.ContributionApproved
	}
	return domain.ContributionAwaitingReview
}

// ─── Withdrawal ─────────────────────────────────────────────────────────────

// Withdraw closes a contribution before it reaches a verdict. Withdrawing
// an already-withdrawn contribution is a no-op; withdrawing one that
// reached approved or rejected fails with AlreadyFinalized.
func (w *Workflow) Withdraw(contributionID string) error {
	unlock := w.Lock(contributionID)
	defer unlock()

	contribution, err := w.db.GetContribution(contributionID)
	if err != nil {
		return err
	}
	if contribution.Status == domain.ContributionWithdrawn {
		return nil
	}
	if contribution.Status.Terminal() {
		return domain.ErrAlreadyFinalized
	}

	return w.db.WithTx(func(tx *sqlite.Tx) error {
		proofs, err := tx.ProofsByContribution(contributionID)
		if err != nil {
			return err
		}
		for _, p := range proofs {
			if !p.Status.Terminal() {
				if err := tx.UpdateProofStatus(p.ID, domain.ProofWithdrawn); err != nil {
					return err
				}
			}
		}
		return tx.UpdateContributionStatus(contributionID, domain.ContributionWithdrawn)
	})
}

// ─── Deadline Sweep ─────────────────────────────────────────────────────────

// SweepExpired closes contributions stuck in awaiting_review past their
// commitment's review deadline as rejected. It runs under the same
// per-contribution lock as RecordReview, so a late human verdict and the
// sweep can never both finalize — whichever lands first under the lock
// wins the terminal state.
func (w *Workflow) SweepExpired() (int, error) {
	ids, err := w.db.StaleAwaitingReview(w.now())
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, id := range ids {
		ok, err := w.sweepOne(id)
		if err != nil {
			log.Printf("[approval] sweep %s: %v", id, err)
			continue
		}
		if ok {
			closed++
			observability.SweepClosures.Inc()
			observability.ContributionsFinalized.WithLabelValues(string(domain.ContributionRejected)).Inc()
			w.decided(id)
		}
	}
	return closed, nil
}

func (w *Workflow) sweepOne(contributionID string) (bool, error) {
	unlock := w.Lock(contributionID)
	defer unlock()

	contribution, err := w.db.GetContribution(contributionID)
	if err != nil {
		return false, err
	}
	if contribution.Status != domain.ContributionAwaitingReview {
		return false, nil // a verdict landed between the scan and the lock
	}

	err = w.db.WithTx(func(tx *sqlite.Tx) error {
		proofs, err := tx.ProofsByContribution(contributionID)
		if err != nil {
			return err
		}
		for _, p := range proofs {
			if !p.Status.Terminal() {
				if err := tx.UpdateProofStatus(p.ID, domain.ProofRejected); err != nil {
					return err
				}
			}
		}
		return tx.UpdateContributionStatus(contributionID, domain.ContributionRejected)
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// ─── Queries ────────────────────────────────────────────────────────────────

// GetContribution returns a contribution with its proofs.
func (w *Workflow) GetContribution(id string) (*domain.Contribution, []domain.Proof, error) {
	contribution, err := w.db.GetContribution(id)
	if err != nil {
		return nil, nil, err
	}
	proofs, err := w.db.ProofsByContribution(id)
	if err != nil {
		return nil, nil, err
	}
	return contribution, proofs, nil
}

func (w *Workflow) decided(contributionID string) {
	if w.OnDecided != nil {
		w.OnDecided(contributionID)
	}
}
