package dispatch

import (
	"errors"
	"testing"
	"time"

	"github.com/taskme-network/taskme/internal/app/approval"
	"github.com/taskme-network/taskme/internal/app/ledger"
	"github.com/taskme-network/taskme/internal/app/streak"
	"github.com/taskme-network/taskme/internal/domain"
	"github.com/taskme-network/taskme/internal/infra/sqlite"
)

type fixture struct {
	db         *sqlite.DB
	ledger     *ledger.Service
	streaks    *streak.Engine
	workflow   *approval.Workflow
	dispatcher *Dispatcher
	events     *eventRecorder
}

type eventRecorder struct {
	events []domain.Event
}

func (r *eventRecorder) Publish(ev domain.Event) { r.events = append(r.events, ev) }

func (r *eventRecorder) count(typ domain.EventType) int {
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("sqlite.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	rec := &eventRecorder{}
	lg := ledger.New(db)
	se := streak.New(db, streak.Config{Milestones: []int{7, 30, 100}, GraceAllotment: 1, GraceRefillDays: 30})
	d := New(db, lg, se, cfg, rec)
	wf := approval.New(db, approval.DefaultConfig())
	wf.OnDecided = d.HandleDecided
	wf.OnReviewRecorded = d.HandleReview

	return &fixture{db: db, ledger: lg, streaks: se, workflow: wf, dispatcher: d, events: rec}
}

func (f *fixture) createAccount(t *testing.T, id string, seed int64) {
	t.Helper()
	if _, err := f.ledger.CreateAccount(id, 0); err != nil {
		t.Fatal(err)
	}
	if seed > 0 {
		if _, err := f.ledger.Apply(id, seed, domain.ReasonAdminAdjustment, "seed:"+id); err != nil {
			t.Fatal(err)
		}
	}
}

func (f *fixture) balance(t *testing.T, id string) int64 {
	t.Helper()
	b, err := f.ledger.GetBalance(id)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// TestApprovalRewardChain walks the canonical flow: a participant with 100
// credits and a 6-day streak gets two approvals on a peer-reviewed
// contribution worth 20. The approval credits the reward, advances the
// streak to 7, and fires the milestone worth 50 — all in one unit, leaving
// the balance at exactly 170.
func TestApprovalRewardChain(t *testing.T) {
	cfg := Config{
		MilestoneRewards: map[int]int64{7: 50},
		PeerReviewReward: 5,
	}
	f := newFixture(t, cfg)

	f.createAccount(t, "alice", 100)
	f.createAccount(t, "bob", 0)
	f.createAccount(t, "carol", 0)

	today := time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)

	if err := f.db.InsertCommitment(domain.Commitment{
		ID: "cm1", OwnerID: "owner", Title: "Run 5k daily",
		RequiredProofs: []domain.EvidenceType{domain.EvidencePeer},
		MinApprovals:   2, RewardAmount: 20,
		ReviewDeadline: 72 * time.Hour, CreatedAt: yesterday,
	}); err != nil {
		t.Fatal(err)
	}
	if err := f.db.UpsertStreak(domain.StreakState{
		ParticipantID: "alice", CommitmentID: "cm1",
		Current: 6, Longest: 6, LastCounted: domain.DayOf(yesterday),
		GraceRemaining: 1, GraceRefilled: domain.DayOf(yesterday),
	}); err != nil {
		t.Fatal(err)
	}

	ct, err := f.workflow.Submit("cm1", "alice", 1, today, []domain.EvidenceDescriptor{
		{Handle: "s3://proofs/run.gpx", Type: domain.EvidencePeer, SizeBytes: 2048},
	})
	if err != nil {
		t.Fatal(err)
	}
	proofs, _ := f.db.ProofsByContribution(ct.ID)
	proofID := proofs[0].ID

	if _, err := f.workflow.RecordReview(proofID, "bob", domain.VerdictApprove, ""); err != nil {
		t.Fatal(err)
	}
	if got := f.balance(t, "alice"); got != 100 {
		t.Errorf("balance after 1/2 approvals = %d, want 100 (nothing credited yet)", got)
	}

	if _, err := f.workflow.RecordReview(proofID, "carol", domain.VerdictApprove, ""); err != nil {
		t.Fatal(err)
	}

	if got := f.balance(t, "alice"); got != 170 {
		t.Errorf("balance = %d, want 170 (100 + 20 reward + 50 milestone)", got)
	}
	state, err := f.streaks.Get("alice", "cm1")
	if err != nil {
		t.Fatal(err)
	}
	if state.Current != 7 || !state.HasFired(7) {
		t.Errorf("streak = %+v, want current 7 with milestone fired", state)
	}

	// Reviewers earned the peer-review reward.
	if got := f.balance(t, "bob"); got != 5 {
		t.Errorf("bob balance = %d, want 5", got)
	}
	if got := f.balance(t, "carol"); got != 5 {
		t.Errorf("carol balance = %d, want 5", got)
	}

	if n := f.events.count(domain.EventStreakMilestone); n != 1 {
		t.Errorf("milestone events = %d, want 1", n)
	}
	if n := f.events.count(domain.EventProofVerdict); n != 1 {
		t.Errorf("verdict events = %d, want 1", n)
	}
	// alice's reward + milestone + two reviewer rewards
	if n := f.events.count(domain.EventRewardCredited); n != 4 {
		t.Errorf("reward events = %d, want 4", n)
	}

	// Redelivering the decision changes nothing: every credit already has
	// its idempotency key on file.
	if err := f.dispatcher.Dispatch(ct.ID); err != nil {
		t.Fatalf("redispatch error = %v", err)
	}
	if got := f.balance(t, "alice"); got != 170 {
		t.Errorf("balance after redispatch = %d, want 170", got)
	}
	if err := f.ledger.CheckInvariant("alice"); err != nil {
		t.Errorf("CheckInvariant() error = %v", err)
	}

	// A duplicate review is refused and moves nothing.
	if _, err := f.workflow.RecordReview(proofID, "bob", domain.VerdictApprove, ""); !errors.Is(err, domain.ErrAlreadyFinalized) && !errors.Is(err, domain.ErrDuplicateReview) {
		t.Errorf("duplicate review error = %v, want conflict", err)
	}
	if got := f.balance(t, "alice"); got != 170 {
		t.Errorf("balance after duplicate review = %d, want 170", got)
	}
}

func TestRejectedContributionPaysNothing(t *testing.T) {
	f := newFixture(t, Config{PeerReviewReward: 0})
	f.createAccount(t, "alice", 50)
	f.createAccount(t, "bob", 0)

	now := time.Now().UTC()
	if err := f.db.InsertCommitment(domain.Commitment{
		ID: "cm1", OwnerID: "owner", Title: "Daily pages",
		RequiredProofs: []domain.EvidenceType{domain.EvidencePeer},
		MinApprovals:   1, RewardAmount: 20,
		ReviewDeadline: 72 * time.Hour, CreatedAt: now,
	}); err != nil {
		t.Fatal(err)
	}

	ct, err := f.workflow.Submit("cm1", "alice", 1, now, []domain.EvidenceDescriptor{
		{Handle: "s3://proofs/pages.pdf", Type: domain.EvidencePeer, SizeBytes: 100},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.workflow.RecordReview(proofIDOf(t, f, ct.ID), "bob", domain.VerdictReject, "blank pages"); err != nil {
		t.Fatal(err)
	}

	if got := f.balance(t, "alice"); got != 50 {
		t.Errorf("balance after rejection = %d, want 50", got)
	}
	state, _ := f.streaks.Get("alice", "cm1")
	if state.Current != 0 {
		t.Errorf("streak advanced on rejection: %+v", state)
	}
	if n := f.events.count(domain.EventProofVerdict); n != 1 {
		t.Errorf("verdict events = %d, want 1", n)
	}
}

func proofIDOf(t *testing.T, f *fixture, contributionID string) string {
	t.Helper()
	proofs, err := f.db.ProofsByContribution(contributionID)
	if err != nil || len(proofs) == 0 {
		t.Fatalf("ProofsByContribution() = %v, %v", proofs, err)
	}
	return proofs[0].ID
}

func TestCreateCommitmentChargesCost(t *testing.T) {
	cfg := Config{CreationCosts: map[domain.EvidenceType]int64{
		domain.EvidencePhoto: 15,
		domain.EvidencePeer:  25,
	}}
	f := newFixture(t, cfg)
	f.createAccount(t, "owner", 30)

	cm, err := f.dispatcher.CreateCommitment("owner", "Climb weekly",
		[]domain.EvidenceType{domain.EvidencePhoto, domain.EvidencePeer}, 1, 10, 48*time.Hour)
	if err != nil {
		t.Fatalf("CreateCommitment() error = %v", err)
	}
	if cm.CreationCost != 25 {
		t.Errorf("CreationCost = %d, want 25 (most expensive type)", cm.CreationCost)
	}
	if got := f.balance(t, "owner"); got != 5 {
		t.Errorf("owner balance = %d, want 5", got)
	}

	// A second commitment the owner cannot afford aborts atomically.
	_, err = f.dispatcher.CreateCommitment("owner", "Another one",
		[]domain.EvidenceType{domain.EvidencePeer}, 1, 10, 48*time.Hour)
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("unaffordable CreateCommitment() error = %v, want ErrInsufficientFunds", err)
	}
	if got := f.balance(t, "owner"); got != 5 {
		t.Errorf("balance after failed creation = %d, want 5", got)
	}
}

func TestCreateCommitmentValidation(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.createAccount(t, "owner", 100)

	if _, err := f.dispatcher.CreateCommitment("owner", "", nil, 0, 10, time.Hour); !domain.IsValidation(err) {
		t.Errorf("empty title error = %v, want validation", err)
	}
	_, err := f.dispatcher.CreateCommitment("owner", "Peer goal",
		[]domain.EvidenceType{domain.EvidencePeer}, 0, 10, time.Hour)
	if !domain.IsValidation(err) {
		t.Errorf("peer with zero approvals error = %v, want validation", err)
	}
}

func TestRefundOnReject(t *testing.T) {
	cfg := Config{
		RefundOnReject: true,
		CreationCosts:  map[domain.EvidenceType]int64{domain.EvidencePeer: 25},
	}
	f := newFixture(t, cfg)
	f.createAccount(t, "owner", 25)
	f.createAccount(t, "alice", 0)
	f.createAccount(t, "bob", 0)

	cm, err := f.dispatcher.CreateCommitment("owner", "Peer goal",
		[]domain.EvidenceType{domain.EvidencePeer}, 1, 10, 48*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if got := f.balance(t, "owner"); got != 0 {
		t.Fatalf("owner balance after creation = %d, want 0", got)
	}

	now := time.Now().UTC()
	ct, err := f.workflow.Submit(cm.ID, "alice", 1, now, []domain.EvidenceDescriptor{
		{Handle: "s3://x", Type: domain.EvidencePeer, SizeBytes: 10},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.workflow.RecordReview(proofIDOf(t, f, ct.ID), "bob", domain.VerdictReject, ""); err != nil {
		t.Fatal(err)
	}

	if got := f.balance(t, "owner"); got != 25 {
		t.Errorf("owner balance after refund = %d, want 25", got)
	}

	// Redispatching the rejection does not refund twice.
	if err := f.dispatcher.Dispatch(ct.ID); err != nil {
		t.Fatal(err)
	}
	if got := f.balance(t, "owner"); got != 25 {
		t.Errorf("owner balance after redispatch = %d, want 25", got)
	}
}

// TestXPAwardsAndLevelUp drives alice across the level-2 threshold (100 XP)
// with two approved contributions worth 60 XP each, and checks the
// reviewer's per-verdict XP alongside.
func TestXPAwardsAndLevelUp(t *testing.T) {
	f := newFixture(t, Config{ContributionXP: 60, PeerReviewXP: 3})
	f.createAccount(t, "alice", 0)
	f.createAccount(t, "bob", 0)

	base := time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)
	if err := f.db.InsertCommitment(domain.Commitment{
		ID: "cm1", OwnerID: "owner", Title: "Write daily",
		RequiredProofs: []domain.EvidenceType{domain.EvidencePeer},
		MinApprovals:   1, RewardAmount: 0,
		ReviewDeadline: 72 * time.Hour, CreatedAt: base,
	}); err != nil {
		t.Fatal(err)
	}

	var last *domain.Contribution
	for i := 0; i < 2; i++ {
		ct, err := f.workflow.Submit("cm1", "alice", 1, base.AddDate(0, 0, i), []domain.EvidenceDescriptor{
			{Handle: "s3://x", Type: domain.EvidencePeer, SizeBytes: 10},
		})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.workflow.RecordReview(proofIDOf(t, f, ct.ID), "bob", domain.VerdictApprove, ""); err != nil {
			t.Fatal(err)
		}
		last = ct
	}

	account, err := f.ledger.GetAccount("alice")
	if err != nil {
		t.Fatal(err)
	}
	if account.XP != 120 {
		t.Errorf("alice XP = %d, want 120", account.XP)
	}
	progress, err := f.ledger.Progress("alice")
	if err != nil {
		t.Fatal(err)
	}
	if progress.Level != 2 {
		t.Errorf("alice level = %d, want 2 (crossed 100 XP)", progress.Level)
	}
	if n := f.events.count(domain.EventLevelUp); n != 1 {
		t.Errorf("level.up events = %d, want 1", n)
	}

	// The reviewer earned per-verdict XP.
	reviewer, err := f.ledger.GetAccount("bob")
	if err != nil {
		t.Fatal(err)
	}
	if reviewer.XP != 6 {
		t.Errorf("bob XP = %d, want 6", reviewer.XP)
	}

	// Redelivery grants nothing twice: the trigger keys are on file.
	if err := f.dispatcher.Dispatch(last.ID); err != nil {
		t.Fatal(err)
	}
	account, _ = f.ledger.GetAccount("alice")
	if account.XP != 120 {
		t.Errorf("alice XP after redispatch = %d, want 120", account.XP)
	}
}

func TestBadgeAwardWithPayout(t *testing.T) {
	cfg := Config{
		MilestoneRewards: map[int]int64{},
		Badges:           []domain.Badge{{Name: "Streak Master", Threshold: 2, Reward: 10}},
	}
	f := newFixture(t, cfg)
	f.createAccount(t, "alice", 0)
	f.createAccount(t, "bob", 0)

	base := time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)
	if err := f.db.InsertCommitment(domain.Commitment{
		ID: "cm1", OwnerID: "owner", Title: "Stretch daily",
		RequiredProofs: []domain.EvidenceType{domain.EvidencePeer},
		MinApprovals:   1, RewardAmount: 0,
		ReviewDeadline: 72 * time.Hour, CreatedAt: base,
	}); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		ct, err := f.workflow.Submit("cm1", "alice", 1, base.AddDate(0, 0, i), []domain.EvidenceDescriptor{
			{Handle: "s3://x", Type: domain.EvidencePeer, SizeBytes: 10},
		})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.workflow.RecordReview(proofIDOf(t, f, ct.ID), "bob", domain.VerdictApprove, ""); err != nil {
			t.Fatal(err)
		}
	}

	if got := f.balance(t, "alice"); got != 10 {
		t.Errorf("alice balance = %d, want 10 (badge payout only)", got)
	}
	badges, err := f.ledger.Badges("alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(badges) != 1 || badges[0] != "Streak Master" {
		t.Errorf("badges = %v, want [Streak Master]", badges)
	}
}
