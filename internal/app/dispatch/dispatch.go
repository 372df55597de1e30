// Package dispatch orchestrates the reward chain that runs when a
// contribution reaches a verdict: contribution reward, experience points,
// streak advance, milestone reward, and badge awards, all inside one
// transaction while the account and streak locks are held. Either every
// effect commits or none does; idempotency keys make redelivery of the
// same decision a no-op.
package dispatch

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/taskme-network/taskme/internal/app/ledger"
	"github.com/taskme-network/taskme/internal/app/streak"
	"github.com/taskme-network/taskme/internal/domain"
	"github.com/taskme-network/taskme/internal/infra/observability"
	"github.com/taskme-network/taskme/internal/infra/sqlite"
)

// Config is the reward policy. All amounts are in the smallest credit unit.
type Config struct {
	MilestoneRewards map[int]int64                 // streak threshold → payout
	Badges           []domain.Badge                // streak badges, awarded once per account
	PeerReviewReward int64                         // credited to a reviewer per recorded verdict
	CreationCosts    map[domain.EvidenceType]int64 // commitment creation cost by evidence type
	RefundOnReject   bool                          // refund creation cost to the owner on first rejection

	// Experience grants. XP rides the same triggers as credits but lands
	// on the account's lifetime XP total instead of the ledger.
	ContributionXP int64         // per approved contribution
	MilestoneXP    map[int]int64 // streak threshold → XP
	PeerReviewXP   int64         // per recorded verdict
}

// DefaultConfig returns the stock reward policy. Badges carry no payout by
// default; operators can attach one in config.
func DefaultConfig() Config {
	return Config{
		MilestoneRewards: map[int]int64{7: 50, 30: 250, 100: 1000},
		Badges: []domain.Badge{
			{Name: "Streak Master", Threshold: 7},
			{Name: "Marathon Runner", Threshold: 30},
			{Name: "Legend", Threshold: 100},
		},
		PeerReviewReward: 5,
		CreationCosts: map[domain.EvidenceType]int64{
			domain.EvidenceNone:        5,
			domain.EvidenceAttestation: 10,
			domain.EvidencePhoto:       15,
			domain.EvidenceDocument:    15,
			domain.EvidencePeer:        25,
		},
		ContributionXP: 10,
		MilestoneXP:    map[int]int64{7: 25, 30: 100, 100: 500},
		PeerReviewXP:   3,
	}
}

// Dispatcher runs the reward chain. It owns no state of its own — every
// effect lives in the ledger, streak, or reward-event tables.
type Dispatcher struct {
	db      *sqlite.DB
	ledger  *ledger.Service
	streaks *streak.Engine
	cfg     Config
	pub     domain.Publisher

	// Injectable clock for testing.
	now func() time.Time
}

// New creates a dispatcher.
func New(db *sqlite.DB, lg *ledger.Service, se *streak.Engine, cfg Config, pub domain.Publisher) *Dispatcher {
	if pub == nil {
		pub = domain.NopPublisher{}
	}
	return &Dispatcher{
		db:      db,
		ledger:  lg,
		streaks: se,
		cfg:     cfg,
		pub:     pub,
		now:     time.Now,
	}
}

// ─── Approval Callback ──────────────────────────────────────────────────────

// HandleDecided is the approval workflow's OnDecided hook. Dispatch errors
// are logged and counted; the decision itself is already committed, and a
// later redelivery (or Redeliver) retries the chain safely.
func (d *Dispatcher) HandleDecided(contributionID string) {
	if err := d.Dispatch(contributionID); err != nil {
		observability.DispatchFailures.Inc()
		log.Printf("[dispatch] contribution %s: %v", contributionID, err)
	}
}

// Dispatch runs the reward chain for one decided contribution. Safe to call
// any number of times for the same contribution.
func (d *Dispatcher) Dispatch(contributionID string) error {
	contribution, err := d.db.GetContribution(contributionID)
	if err != nil {
		return err
	}

	switch contribution.Status {
	case domain.ContributionApproved:
		return d.dispatchApproved(contribution)
	case domain.ContributionRejected:
		return d.dispatchRejected(contribution)
	case domain.ContributionWithdrawn:
		return nil
	default:
		return fmt.Errorf("contribution %s not decided yet (%s)", contributionID, contribution.Status)
	}
}

func (d *Dispatcher) dispatchApproved(contribution *domain.Contribution) error {
	cm, err := d.db.GetCommitment(contribution.CommitmentID)
	if err != nil {
		return err
	}

	// Lock order is fixed everywhere: account before streak.
	unlockAccount := d.ledger.LockAccount(contribution.ParticipantID)
	defer unlockAccount()
	unlockStreak := d.streaks.Lock(contribution.ParticipantID, contribution.CommitmentID)
	defer unlockStreak()

	var events []domain.Event
	err = d.db.WithTx(func(tx *sqlite.Tx) error {
		events = events[:0]

		if cm.RewardAmount > 0 {
			key := fmt.Sprintf("contribution:%s:reward", contribution.ID)
			credited, err := d.credit(tx, contribution.ParticipantID, cm.RewardAmount,
				domain.ReasonContributionReward, key, "contribution")
			if err != nil {
				return err
			}
			if credited != nil {
				events = append(events, *credited)
			}
		}

		leveled, err := d.awardXP(tx, contribution.ParticipantID, d.cfg.ContributionXP,
			fmt.Sprintf("xp:contribution:%s", contribution.ID))
		if err != nil {
			return err
		}
		if leveled != nil {
			events = append(events, *leveled)
		}

		adv, err := d.streaks.AdvanceIn(tx, contribution.ParticipantID, contribution.CommitmentID, contribution.OccurredOn)
		if err != nil {
			return err
		}

		if adv.MilestoneReached {
			events = append(events, domain.Event{
				Type:          domain.EventStreakMilestone,
				ParticipantID: contribution.ParticipantID,
				CommitmentID:  contribution.CommitmentID,
				Threshold:     adv.MilestoneValue,
			})
			if amount := d.cfg.MilestoneRewards[adv.MilestoneValue]; amount > 0 {
				key := fmt.Sprintf("milestone:%s:%s:%d",
					contribution.ParticipantID, contribution.CommitmentID, adv.MilestoneValue)
				credited, err := d.credit(tx, contribution.ParticipantID, amount,
					domain.ReasonMilestoneReward, key, "milestone")
				if err != nil {
					return err
				}
				if credited != nil {
					events = append(events, *credited)
				}
			}
			if xp := d.cfg.MilestoneXP[adv.MilestoneValue]; xp > 0 {
				key := fmt.Sprintf("xp:milestone:%s:%s:%d",
					contribution.ParticipantID, contribution.CommitmentID, adv.MilestoneValue)
				leveled, err := d.awardXP(tx, contribution.ParticipantID, xp, key)
				if err != nil {
					return err
				}
				if leveled != nil {
					events = append(events, *leveled)
				}
			}
		}

		badgeEvents, err := d.awardBadges(tx, contribution.ParticipantID, adv.Current)
		if err != nil {
			return err
		}
		events = append(events, badgeEvents...)

		return nil
	})
	if err != nil {
		return err
	}

	d.publishVerdict(contribution.ID, domain.ContributionApproved)
	for _, ev := range events {
		d.publish(ev)
	}
	return nil
}

func (d *Dispatcher) dispatchRejected(contribution *domain.Contribution) error {
	if d.cfg.RefundOnReject {
		cm, err := d.db.GetCommitment(contribution.CommitmentID)
		if err != nil {
			return err
		}
		if cm.CreationCost > 0 {
			unlock := d.ledger.LockAccount(cm.OwnerID)
			var event *domain.Event
			err := d.db.WithTx(func(tx *sqlite.Tx) error {
				key := fmt.Sprintf("commitment:%s:refund", cm.ID)
				var cerr error
				event, cerr = d.credit(tx, cm.OwnerID, cm.CreationCost, domain.ReasonRefund, key, "refund")
				return cerr
			})
			unlock()
			if err != nil {
				return err
			}
			if event != nil {
				d.publish(*event)
			}
		}
	}

	d.publishVerdict(contribution.ID, domain.ContributionRejected)
	return nil
}

// ─── Review Callback ────────────────────────────────────────────────────────

// HandleReview is the approval workflow's OnReviewRecorded hook: it pays
// the reviewer the peer-review reward and XP, once per review.
func (d *Dispatcher) HandleReview(review domain.ProofReview) {
	if d.cfg.PeerReviewReward <= 0 && d.cfg.PeerReviewXP <= 0 {
		return
	}

	unlock := d.ledger.LockAccount(review.ReviewerID)
	var events []domain.Event
	err := d.db.WithTx(func(tx *sqlite.Tx) error {
		events = events[:0]

		if d.cfg.PeerReviewReward > 0 {
			key := fmt.Sprintf("review:%s:reward", review.ID)
			credited, err := d.credit(tx, review.ReviewerID, d.cfg.PeerReviewReward,
				domain.ReasonPeerReviewReward, key, "peer_review")
			if err != nil {
				return err
			}
			if credited != nil {
				events = append(events, *credited)
			}
		}

		leveled, err := d.awardXP(tx, review.ReviewerID, d.cfg.PeerReviewXP,
			fmt.Sprintf("xp:review:%s", review.ID))
		if err != nil {
			return err
		}
		if leveled != nil {
			events = append(events, *leveled)
		}
		return nil
	})
	unlock()
	if err != nil {
		observability.DispatchFailures.Inc()
		log.Printf("[dispatch] review %s reward: %v", review.ID, err)
		return
	}
	for _, ev := range events {
		d.publish(ev)
	}
}

// ─── Commitment Creation ────────────────────────────────────────────────────

// CreateCommitment persists a commitment and charges its creation cost to
// the owner in the same transaction. Insufficient funds aborts the whole
// creation.
func (d *Dispatcher) CreateCommitment(ownerID, title string, proofs []domain.EvidenceType, minApprovals int, rewardAmount int64, reviewDeadline time.Duration) (*domain.Commitment, error) {
	if title == "" {
		return nil, &domain.ValidationError{Field: "title", Msg: "must not be empty"}
	}
	if len(proofs) == 0 {
		proofs = []domain.EvidenceType{domain.EvidenceNone}
	}
	for _, t := range proofs {
		if !domain.ValidEvidenceType(t) {
			return nil, &domain.ValidationError{Field: "required_proofs", Msg: fmt.Sprintf("unknown type %q", t)}
		}
	}
	hasPeer := false
	for _, t := range proofs {
		if t == domain.EvidencePeer {
			hasPeer = true
		}
	}
	if hasPeer && minApprovals < 1 {
		return nil, &domain.ValidationError{Field: "min_approvals", Msg: "must be at least 1 for peer-reviewed commitments"}
	}

	cm := domain.Commitment{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		Title:          title,
		RequiredProofs: proofs,
		MinApprovals:   minApprovals,
		RewardAmount:   rewardAmount,
		CreationCost:   d.creationCost(proofs),
		ReviewDeadline: reviewDeadline,
		CreatedAt:      d.now(),
	}

	unlock := d.ledger.LockAccount(ownerID)
	defer unlock()

	err := d.db.WithTx(func(tx *sqlite.Tx) error {
		if cm.CreationCost > 0 {
			key := fmt.Sprintf("commitment:%s:creation", cm.ID)
			if _, err := d.ledger.ApplyIn(tx, ownerID, -cm.CreationCost, domain.ReasonCreationCost, key); err != nil {
				return err
			}
		}
		return tx.InsertCommitment(cm)
	})
	if err != nil {
		return nil, err
	}
	return &cm, nil
}

// GetCommitment returns a commitment by id.
func (d *Dispatcher) GetCommitment(id string) (*domain.Commitment, error) {
	return d.db.GetCommitment(id)
}

// creationCost is the most expensive required evidence type's cost.
func (d *Dispatcher) creationCost(proofs []domain.EvidenceType) int64 {
	var cost int64
	for _, t := range proofs {
		if c := d.cfg.CreationCosts[t]; c > cost {
			cost = c
		}
	}
	return cost
}

// ─── Redelivery ─────────────────────────────────────────────────────────────

// Redeliver re-runs the reward chain for recently approved contributions.
// Idempotency keys make this a no-op for anything already rewarded; it
// exists to pick up decisions whose dispatch was cut short by a crash.
func (d *Dispatcher) Redeliver(limit int) (int, error) {
	ids, err := d.db.ContributionsByStatus(domain.ContributionApproved, limit)
	if err != nil {
		return 0, err
	}
	dispatched := 0
	for _, id := range ids {
		if err := d.Dispatch(id); err != nil {
			observability.DispatchFailures.Inc()
			log.Printf("[dispatch] redeliver %s: %v", id, err)
			continue
		}
		dispatched++
	}
	return dispatched, nil
}

// ─── Internals ──────────────────────────────────────────────────────────────

// credit applies one reward entry plus its audit reward event. Returns the
// reward.credited event to publish after commit, or nil on replay.
func (d *Dispatcher) credit(tx *sqlite.Tx, accountID string, amount int64, reason domain.ReasonCode, key, kind string) (*domain.Event, error) {
	entry, err := d.ledger.ApplyIn(tx, accountID, amount, reason, key)
	if err != nil {
		return nil, err
	}

	fresh, err := tx.InsertRewardEvent(domain.RewardEvent{
		ID:        uuid.NewString(),
		Trigger:   key,
		AccountID: accountID,
		Amount:    amount,
		EntryID:   entry.ID,
		CreatedAt: d.now(),
	})
	if err != nil {
		return nil, err
	}
	if !fresh {
		return nil, nil
	}

	observability.RewardsCredited.WithLabelValues(kind).Inc()
	return &domain.Event{
		Type:      domain.EventRewardCredited,
		AccountID: accountID,
		Amount:    amount,
		Reason:    reason,
	}, nil
}

// awardXP grants experience points once per trigger key and reports any
// resulting level-up. XP is not spendable credit, so grants are
// deduplicated through the reward-event audit table instead of the ledger.
func (d *Dispatcher) awardXP(tx *sqlite.Tx, accountID string, amount int64, key string) (*domain.Event, error) {
	if amount <= 0 {
		return nil, nil
	}
	fresh, err := tx.InsertRewardEvent(domain.RewardEvent{
		ID:        uuid.NewString(),
		Trigger:   key,
		AccountID: accountID,
		Amount:    amount,
		CreatedAt: d.now(),
	})
	if err != nil {
		return nil, err
	}
	if !fresh {
		return nil, nil
	}

	total, err := tx.AddXP(accountID, amount)
	if err != nil {
		return nil, err
	}
	observability.XPAwarded.Add(float64(amount))

	if newLevel := domain.LevelFromXP(total); newLevel > domain.LevelFromXP(total-amount) {
		return &domain.Event{
			Type:      domain.EventLevelUp,
			AccountID: accountID,
			Level:     newLevel,
		}, nil
	}
	return nil, nil
}

// awardBadges grants any badge whose threshold the streak just reached.
// AwardBadge's primary key makes each grant once-ever per account.
func (d *Dispatcher) awardBadges(tx *sqlite.Tx, accountID string, current int) ([]domain.Event, error) {
	var events []domain.Event
	for _, b := range d.cfg.Badges {
		if current < b.Threshold {
			continue
		}
		granted, err := tx.AwardBadge(accountID, b.Name, d.now())
		if err != nil {
			return nil, err
		}
		if !granted {
			continue
		}
		if b.Reward > 0 {
			key := fmt.Sprintf("badge:%s:%s", accountID, b.Name)
			credited, err := d.credit(tx, accountID, b.Reward, domain.ReasonBadgeReward, key, "badge")
			if err != nil {
				return nil, err
			}
			if credited != nil {
				events = append(events, *credited)
			}
		}
	}
	return events, nil
}

func (d *Dispatcher) publishVerdict(contributionID string, status domain.ContributionStatus) {
	d.publish(domain.Event{
		Type:           domain.EventProofVerdict,
		ContributionID: contributionID,
		Verdict:        status,
	})
}

func (d *Dispatcher) publish(ev domain.Event) {
	ev.Timestamp = d.now().Unix()
	d.pub.Publish(ev)
}
