// Package intake accepts commitment proposals from untrusted sources —
// assistant integrations, import tools — and holds them until the owning
// user explicitly confirms. A proposal NEVER creates a commitment or moves
// credits by itself: validation caps its fields on arrival, and only a
// confirm call from the owner turns it into a real commitment (charging
// the creation cost at that point, not before).
package intake

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskme-network/taskme/internal/app/dispatch"
	"github.com/taskme-network/taskme/internal/domain"
)

// Limits bound what a proposal may ask for. Anything outside them is
// rejected at intake, before the user ever sees the proposal.
type Limits struct {
	MaxTitleLen       int
	MaxRewardAmount   int64
	MinReviewDeadline time.Duration
	MaxReviewDeadline time.Duration
	MaxMinApprovals   int
	ProposalTTL       time.Duration
}

// DefaultLimits returns the stock intake bounds.
func DefaultLimits() Limits {
	return Limits{
		MaxTitleLen:       140,
		MaxRewardAmount:   100,
		MinReviewDeadline: time.Hour,
		MaxReviewDeadline: 14 * 24 * time.Hour,
		MaxMinApprovals:   5,
		ProposalTTL:       24 * time.Hour,
	}
}

// Proposal is an unconfirmed commitment suggestion. Source labels where it
// came from; it is display metadata only and grants nothing.
type Proposal struct {
	ID             string                `json:"id"`
	OwnerID        string                `json:"owner_id"`
	Source         string                `json:"source"`
	Title          string                `json:"title"`
	RequiredProofs []domain.EvidenceType `json:"required_proofs"`
	MinApprovals   int                   `json:"min_approvals"`
	RewardAmount   int64                 `json:"reward_amount"`
	ReviewDeadline time.Duration         `json:"review_deadline"`
	CreatedAt      time.Time             `json:"created_at"`
	ExpiresAt      time.Time             `json:"expires_at"`
}

// ErrUnknownProposal is returned when a proposal id does not exist or has
// already been confirmed, discarded, or expired.
var ErrUnknownProposal = fmt.Errorf("intake: unknown proposal")

// ErrNotOwner is returned when someone other than the proposal's owner
// tries to confirm or discard it.
var ErrNotOwner = fmt.Errorf("intake: not the proposal owner")

// Service holds pending proposals in memory. Proposals are ephemeral: a
// restart drops them, which is acceptable because nothing has been charged
// or created yet.
type Service struct {
	dispatcher *dispatch.Dispatcher
	limits     Limits

	mu      sync.Mutex
	pending map[string]*Proposal

	// Injectable clock for testing.
	now func() time.Time
}

// New creates an intake service.
func New(d *dispatch.Dispatcher, limits Limits) *Service {
	return &Service{
		dispatcher: d,
		limits:     limits,
		pending:    make(map[string]*Proposal),
		now:        time.Now,
	}
}

// Propose validates and stores an unconfirmed proposal. The returned
// proposal carries its id and expiry for the confirmation flow.
func (s *Service) Propose(ownerID, source, title string, proofs []domain.EvidenceType, minApprovals int, rewardAmount int64, reviewDeadline time.Duration) (*Proposal, error) {
	title = strings.TrimSpace(title)
	if ownerID == "" {
		return nil, &domain.ValidationError{Field: "owner", Msg: "must not be empty"}
	}
	if title == "" {
		return nil, &domain.ValidationError{Field: "title", Msg: "must not be empty"}
	}
	if len(title) > s.limits.MaxTitleLen {
		return nil, &domain.ValidationError{Field: "title", Msg: fmt.Sprintf("longer than %d characters", s.limits.MaxTitleLen)}
	}
	if rewardAmount < 0 || rewardAmount > s.limits.MaxRewardAmount {
		return nil, &domain.ValidationError{Field: "reward_amount", Msg: fmt.Sprintf("must be between 0 and %d", s.limits.MaxRewardAmount)}
	}
	if minApprovals < 0 || minApprovals > s.limits.MaxMinApprovals {
		return nil, &domain.ValidationError{Field: "min_approvals", Msg: fmt.Sprintf("must be between 0 and %d", s.limits.MaxMinApprovals)}
	}
	if reviewDeadline < s.limits.MinReviewDeadline || reviewDeadline > s.limits.MaxReviewDeadline {
		return nil, &domain.ValidationError{Field: "review_deadline", Msg: fmt.Sprintf("must be between %s and %s", s.limits.MinReviewDeadline, s.limits.MaxReviewDeadline)}
	}
	for _, t := range proofs {
		if !domain.ValidEvidenceType(t) {
			return nil, &domain.ValidationError{Field: "required_proofs", Msg: fmt.Sprintf("unknown type %q", t)}
		}
	}

	now := s.now()
	p := &Proposal{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		Source:         source,
		Title:          title,
		RequiredProofs: proofs,
		MinApprovals:   minApprovals,
		RewardAmount:   rewardAmount,
		ReviewDeadline: reviewDeadline,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.limits.ProposalTTL),
	}

	s.mu.Lock()
	s.prune(now)
	s.pending[p.ID] = p
	s.mu.Unlock()
	return p, nil
}

// Confirm turns a pending proposal into a real commitment. Only the owner
// may confirm; the creation cost is charged here, inside CreateCommitment.
func (s *Service) Confirm(ownerID, proposalID string) (*domain.Commitment, error) {
	s.mu.Lock()
	p, err := s.take(ownerID, proposalID)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	cm, err := s.dispatcher.CreateCommitment(p.OwnerID, p.Title, p.RequiredProofs,
		p.MinApprovals, p.RewardAmount, p.ReviewDeadline)
	if err != nil {
		// Put it back so the owner can retry (e.g. after topping up).
		s.mu.Lock()
		s.pending[p.ID] = p
		s.mu.Unlock()
		return nil, err
	}
	return cm, nil
}

// Discard drops a pending proposal without creating anything.
func (s *Service) Discard(ownerID, proposalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.take(ownerID, proposalID)
	return err
}

// Pending lists the owner's live proposals.
func (s *Service) Pending(ownerID string) []Proposal {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune(s.now())

	var out []Proposal
	for _, p := range s.pending {
		if p.OwnerID == ownerID {
			out = append(out, *p)
		}
	}
	return out
}

// take removes and returns a live proposal. Caller holds s.mu.
func (s *Service) take(ownerID, proposalID string) (*Proposal, error) {
	s.prune(s.now())
	p, ok := s.pending[proposalID]
	if !ok {
		return nil, ErrUnknownProposal
	}
	if p.OwnerID != ownerID {
		return nil, ErrNotOwner
	}
	delete(s.pending, proposalID)
	return p, nil
}

// prune drops expired proposals. Caller holds s.mu.
func (s *Service) prune(now time.Time) {
	for id, p := range s.pending {
		if now.After(p.ExpiresAt) {
			delete(s.pending, id)
		}
	}
}
