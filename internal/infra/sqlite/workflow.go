package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/taskme-network/taskme/internal/domain"
)

// ─── Commitment Operations ──────────────────────────────────────────────────

// InsertCommitment creates a goal definition.
func (c conn) InsertCommitment(cm domain.Commitment) error {
	proofs, err := json.Marshal(cm.RequiredProofs)
	if err != nil {
		return err
	}
	_, err = c.q.Exec(`
		INSERT INTO commitments (id, owner_id, title, required_proofs, min_approvals,
			reward_amount, creation_cost, review_deadline_hours, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, cm.ID, cm.OwnerID, cm.Title, string(proofs), cm.MinApprovals,
		cm.RewardAmount, cm.CreationCost, int(cm.ReviewDeadline.Hours()),
		cm.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

// GetCommitment retrieves a commitment by id.
func (c conn) GetCommitment(id string) (*domain.Commitment, error) {
	var cm domain.Commitment
	var proofsJSON, createdStr string
	var deadlineHours int
	err := c.q.QueryRow(`
		SELECT id, owner_id, title, required_proofs, min_approvals,
			reward_amount, creation_cost, review_deadline_hours, created_at
		FROM commitments WHERE id = ?
	`, id).Scan(&cm.ID, &cm.OwnerID, &cm.Title, &proofsJSON, &cm.MinApprovals,
		&cm.RewardAmount, &cm.CreationCost, &deadlineHours, &createdStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUnknownCommitment
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(proofsJSON), &cm.RequiredProofs); err != nil {
		return nil, err
	}
	cm.ReviewDeadline = time.Duration(deadlineHours) * time.Hour
	cm.CreatedAt = parseTime(createdStr)
	return &cm, nil
}

// ─── Contribution Operations ────────────────────────────────────────────────

// InsertContribution records a submitted progress event.
func (c conn) InsertContribution(ct domain.Contribution) error {
	_, err := c.q.Exec(`
		INSERT INTO contributions (id, commitment_id, participant_id, value, occurred_on, status, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ct.ID, ct.CommitmentID, ct.ParticipantID, ct.Value,
		ct.OccurredOn.UTC().Format(time.RFC3339), string(ct.Status),
		ct.SubmittedAt.UTC().Format(time.RFC3339))
	return err
}

// GetContribution retrieves a contribution by id.
func (c conn) GetContribution(id string) (*domain.Contribution, error) {
	var ct domain.Contribution
	var status, occurredStr, submittedStr string
	err := c.q.QueryRow(`
		SELECT id, commitment_id, participant_id, value, occurred_on, status, submitted_at
		FROM contributions WHERE id = ?
	`, id).Scan(&ct.ID, &ct.CommitmentID, &ct.ParticipantID, &ct.Value,
		&occurredStr, &status, &submittedStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUnknownContribution
	}
	if err != nil {
		return nil, err
	}
	ct.Status = domain.ContributionStatus(status)
	ct.OccurredOn = parseTime(occurredStr)
	ct.SubmittedAt = parseTime(submittedStr)
	return &ct, nil
}

// UpdateContributionStatus transitions a contribution.
func (c conn) UpdateContributionStatus(id string, status domain.ContributionStatus) error {
	res, err := c.q.Exec(`UPDATE contributions SET status = ? WHERE id = ?`,
		string(status), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrUnknownContribution
	}
	return nil
}

// StaleAwaitingReview returns ids of contributions still awaiting review
// whose commitment's deadline has passed as of now.
func (c conn) StaleAwaitingReview(now time.Time) ([]string, error) {
	rows, err := c.q.Query(`
		SELECT ct.id
		FROM contributions ct
		JOIN commitments cm ON cm.id = ct.commitment_id
		WHERE ct.status = 'awaiting_review'
		  AND datetime(ct.submitted_at, '+' || cm.review_deadline_hours || ' hours') <= datetime(?)
	`, now.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ContributionsByStatus returns ids of the most recent contributions in a
// given status, newest first.
func (c conn) ContributionsByStatus(status domain.ContributionStatus, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := c.q.Query(`
		SELECT id FROM contributions
		WHERE status = ? ORDER BY submitted_at DESC, id LIMIT ?
	`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ─── Proof Operations ───────────────────────────────────────────────────────

// InsertProof attaches evidence to a contribution.
func (c conn) InsertProof(p domain.Proof) error {
	_, err := c.q.Exec(`
		INSERT INTO proofs (id, contribution_id, type, handle, size_bytes, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.ContributionID, string(p.Type), p.Handle, p.SizeBytes,
		string(p.Status), p.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

// GetProof retrieves a proof by id.
func (c conn) GetProof(id string) (*domain.Proof, error) {
	row := c.q.QueryRow(`
		SELECT id, contribution_id, type, handle, size_bytes, status, created_at
		FROM proofs WHERE id = ?
	`, id)
	p, err := scanProof(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUnknownProof
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ProofsByContribution returns all proofs attached to a contribution.
func (c conn) ProofsByContribution(contributionID string) ([]domain.Proof, error) {
	rows, err := c.q.Query(`
		SELECT id, contribution_id, type, handle, size_bytes, status, created_at
		FROM proofs WHERE contribution_id = ? ORDER BY created_at, id
	`, contributionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Proof
	for rows.Next() {
		p, err := scanProof(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateProofStatus transitions a proof.
func (c conn) UpdateProofStatus(id string, status domain.ProofStatus) error {
	res, err := c.q.Exec(`UPDATE proofs SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrUnknownProof
	}
	return nil
}

// ─── Review Operations ──────────────────────────────────────────────────────

// InsertReview appends one reviewer verdict. The UNIQUE(proof, reviewer)
// constraint surfaces as ErrDuplicateReview.
func (c conn) InsertReview(r domain.ProofReview) error {
	_, err := c.q.Exec(`
		INSERT INTO proof_reviews (id, proof_id, reviewer_id, verdict, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.ID, r.ProofID, r.ReviewerID, string(r.Verdict), r.Comment,
		r.CreatedAt.UTC().Format(time.RFC3339))
	if isUniqueViolation(err) {
		return domain.ErrDuplicateReview
	}
	return err
}

// ReviewsByProof returns the full review set for a proof, oldest first.
func (c conn) ReviewsByProof(proofID string) ([]domain.ProofReview, error) {
	rows, err := c.q.Query(`
		SELECT id, proof_id, reviewer_id, verdict, comment, created_at
		FROM proof_reviews WHERE proof_id = ? ORDER BY created_at, id
	`, proofID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ProofReview
	for rows.Next() {
		var r domain.ProofReview
		var verdict, createdStr string
		if err := rows.Scan(&r.ID, &r.ProofID, &r.ReviewerID, &verdict, &r.Comment, &createdStr); err != nil {
			return nil, err
		}
		r.Verdict = domain.Verdict(verdict)
		r.CreatedAt = parseTime(createdStr)
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanProof(r rowScanner) (domain.Proof, error) {
	var p domain.Proof
	var typ, status, createdStr string
	err := r.Scan(&p.ID, &p.ContributionID, &typ, &p.Handle, &p.SizeBytes, &status, &createdStr)
	if err != nil {
		return p, err
	}
	p.Type = domain.EvidenceType(typ)
	p.Status = domain.ProofStatus(status)
	p.CreatedAt = parseTime(createdStr)
	return p, nil
}
