package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taskme-network/taskme/internal/domain"
)

// ─── Ledger Handlers ────────────────────────────────────────────────────────

// SetSignupBonus sets the opening credit for new accounts.
func (s *Server) SetSignupBonus(amount int64) { s.signupBonus = amount }

type createAccountRequest struct {
	Account string `json:"account"`
}

// POST /api/ledger/accounts
func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	account, err := s.ledger.CreateAccount(req.Account, s.signupBonus)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

type applyRequest struct {
	Account        string            `json:"account"`
	Amount         int64             `json:"amount"`
	Reason         domain.ReasonCode `json:"reason"`
	IdempotencyKey string            `json:"idempotency_key"`
}

// POST /api/ledger/apply
func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	entry, err := s.ledger.Apply(req.Account, req.Amount, req.Reason, req.IdempotencyKey)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// GET /api/ledger/{account}/balance
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account")
	account, err := s.ledger.GetAccount(accountID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account":         account.ID,
		"balance":         account.Balance,
		"lifetime_earned": account.LifetimeEarned,
		"lifetime_spent":  account.LifetimeSpent,
	})
}

// GET /api/ledger/{account}/entries?limit=N
func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.ledger.Entries(accountID, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account": accountID,
		"entries": entries,
	})
}

// GET /api/ledger/{account}/level
func (s *Server) handleLevel(w http.ResponseWriter, r *http.Request) {
	progress, err := s.ledger.Progress(chi.URLParam(r, "account"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// GET /api/ledger/{account}/badges
func (s *Server) handleBadges(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account")
	badges, err := s.ledger.Badges(accountID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account": accountID,
		"badges":  badges,
	})
}

// GET /api/ledger/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ledger.Stats()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ─── Commitment Handlers ────────────────────────────────────────────────────

type createCommitmentRequest struct {
	Owner               string                `json:"owner"`
	Title               string                `json:"title"`
	RequiredProofs      []domain.EvidenceType `json:"required_proofs"`
	MinApprovals        int                   `json:"min_approvals"`
	RewardAmount        int64                 `json:"reward_amount"`
	ReviewDeadlineHours int                   `json:"review_deadline_hours"`
}

// POST /api/commitments
func (s *Server) handleCreateCommitment(w http.ResponseWriter, r *http.Request) {
	var req createCommitmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	cm, err := s.dispatcher.CreateCommitment(req.Owner, req.Title, req.RequiredProofs,
		req.MinApprovals, req.RewardAmount, time.Duration(req.ReviewDeadlineHours)*time.Hour)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cm)
}

// GET /api/commitments/{id}
func (s *Server) handleGetCommitment(w http.ResponseWriter, r *http.Request) {
	cm, err := s.dispatcher.GetCommitment(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cm)
}

// ─── Contribution Handlers ──────────────────────────────────────────────────

type submitContributionRequest struct {
	CommitmentID  string                      `json:"commitment_id"`
	ParticipantID string                      `json:"participant_id"`
	Value         int64                       `json:"value"`
	OccurredOn    string                      `json:"occurred_on"` // YYYY-MM-DD
	Evidence      []domain.EvidenceDescriptor `json:"evidence"`
}

// POST /api/contributions
func (s *Server) handleSubmitContribution(w http.ResponseWriter, r *http.Request) {
	var req submitContributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	occurredOn := time.Now().UTC()
	if req.OccurredOn != "" {
		parsed, err := time.Parse(time.DateOnly, req.OccurredOn)
		if err != nil {
			writeError(w, http.StatusBadRequest, "occurred_on must be YYYY-MM-DD")
			return
		}
		occurredOn = parsed
	}

	contribution, err := s.approvals.Submit(req.CommitmentID, req.ParticipantID,
		req.Value, occurredOn, req.Evidence)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, contribution)
}

// GET /api/contributions/{id}
func (s *Server) handleGetContribution(w http.ResponseWriter, r *http.Request) {
	contribution, proofs, err := s.approvals.GetContribution(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"contribution": contribution,
		"proofs":       proofs,
	})
}

// POST /api/contributions/{id}/withdraw
func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.approvals.Withdraw(id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"contribution": id,
		"status":       string(domain.ContributionWithdrawn),
	})
}

// ─── Review Handlers ────────────────────────────────────────────────────────

type recordReviewRequest struct {
	ReviewerID string         `json:"reviewer_id"`
	Verdict    domain.Verdict `json:"verdict"`
	Comment    string         `json:"comment"`
}

// POST /api/proofs/{id}/reviews
func (s *Server) handleRecordReview(w http.ResponseWriter, r *http.Request) {
	var req recordReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	outcome, err := s.approvals.RecordReview(chi.URLParam(r, "id"), req.ReviewerID, req.Verdict, req.Comment)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, outcome)
}

// ─── Streak Handlers ────────────────────────────────────────────────────────

// GET /api/streaks/{participant}/{commitment}
func (s *Server) handleGetStreak(w http.ResponseWriter, r *http.Request) {
	state, err := s.streaks.Get(chi.URLParam(r, "participant"), chi.URLParam(r, "commitment"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// ─── Proposal Handlers ──────────────────────────────────────────────────────

type proposeRequest struct {
	Owner               string                `json:"owner"`
	Source              string                `json:"source"`
	Title               string                `json:"title"`
	RequiredProofs      []domain.EvidenceType `json:"required_proofs"`
	MinApprovals        int                   `json:"min_approvals"`
	RewardAmount        int64                 `json:"reward_amount"`
	ReviewDeadlineHours int                   `json:"review_deadline_hours"`
}

// POST /api/proposals
func (s *Server) handlePropose(w http.ResponseWriter, r *http.Request) {
	var req proposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	p, err := s.proposals.Propose(req.Owner, req.Source, req.Title, req.RequiredProofs,
		req.MinApprovals, req.RewardAmount, time.Duration(req.ReviewDeadlineHours)*time.Hour)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GET /api/proposals?owner=X
func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner query parameter required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"proposals": s.proposals.Pending(owner),
	})
}

type confirmProposalRequest struct {
	Owner string `json:"owner"`
}

// POST /api/proposals/{id}/confirm
func (s *Server) handleConfirmProposal(w http.ResponseWriter, r *http.Request) {
	var req confirmProposalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	cm, err := s.proposals.Confirm(req.Owner, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cm)
}

// POST /api/proposals/{id}/discard
func (s *Server) handleDiscardProposal(w http.ResponseWriter, r *http.Request) {
	var req confirmProposalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.proposals.Discard(req.Owner, chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "discarded"})
}
