package intake

import (
	"errors"
	"testing"
	"time"

	"github.com/taskme-network/taskme/internal/app/dispatch"
	"github.com/taskme-network/taskme/internal/app/ledger"
	"github.com/taskme-network/taskme/internal/app/streak"
	"github.com/taskme-network/taskme/internal/domain"
	"github.com/taskme-network/taskme/internal/infra/sqlite"
)

func newTestIntake(t *testing.T) (*Service, *ledger.Service) {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("sqlite.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	lg := ledger.New(db)
	se := streak.New(db, streak.DefaultConfig())
	d := dispatch.New(db, lg, se, dispatch.Config{
		CreationCosts: map[domain.EvidenceType]int64{domain.EvidencePeer: 25},
	}, nil)
	return New(d, DefaultLimits()), lg
}

func TestProposeConfirmFlow(t *testing.T) {
	s, lg := newTestIntake(t)
	if _, err := lg.CreateAccount("alice", 100); err != nil {
		t.Fatal(err)
	}

	p, err := s.Propose("alice", "assistant", "Run 5k daily",
		[]domain.EvidenceType{domain.EvidencePeer}, 2, 20, 72*time.Hour)
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}

	// Nothing exists and nothing is charged until the owner confirms.
	if balance, _ := lg.GetBalance("alice"); balance != 100 {
		t.Errorf("balance after propose = %d, want 100", balance)
	}
	if pending := s.Pending("alice"); len(pending) != 1 {
		t.Errorf("pending = %d, want 1", len(pending))
	}

	cm, err := s.Confirm("alice", p.ID)
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if cm.Title != "Run 5k daily" || cm.MinApprovals != 2 {
		t.Errorf("commitment = %+v, want proposal fields carried over", cm)
	}
	if balance, _ := lg.GetBalance("alice"); balance != 75 {
		t.Errorf("balance after confirm = %d, want 75 (creation cost charged)", balance)
	}

	// Confirmed proposals are gone.
	if _, err := s.Confirm("alice", p.ID); !errors.Is(err, ErrUnknownProposal) {
		t.Errorf("double confirm error = %v, want ErrUnknownProposal", err)
	}
}

func TestConfirmWrongOwner(t *testing.T) {
	s, lg := newTestIntake(t)
	if _, err := lg.CreateAccount("alice", 100); err != nil {
		t.Fatal(err)
	}

	p, err := s.Propose("alice", "assistant", "Read nightly", nil, 0, 5, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Confirm("mallory", p.ID); !errors.Is(err, ErrNotOwner) {
		t.Errorf("foreign confirm error = %v, want ErrNotOwner", err)
	}
	// The proposal survives the failed confirm.
	if pending := s.Pending("alice"); len(pending) != 1 {
		t.Errorf("pending after foreign confirm = %d, want 1", len(pending))
	}
}

func TestConfirmInsufficientFundsKeepsProposal(t *testing.T) {
	s, lg := newTestIntake(t)
	if _, err := lg.CreateAccount("alice", 10); err != nil {
		t.Fatal(err)
	}

	p, err := s.Propose("alice", "assistant", "Peer goal",
		[]domain.EvidenceType{domain.EvidencePeer}, 1, 10, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Confirm("alice", p.ID); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("confirm error = %v, want ErrInsufficientFunds", err)
	}
	// The owner can top up and retry the same proposal.
	if pending := s.Pending("alice"); len(pending) != 1 {
		t.Errorf("pending after failed confirm = %d, want 1", len(pending))
	}
}

func TestProposeValidationCaps(t *testing.T) {
	s, _ := newTestIntake(t)
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'x'
	}

	tests := []struct {
		name string
		call func() error
	}{
		{"empty owner", func() error {
			_, err := s.Propose("", "a", "t", nil, 0, 5, 24*time.Hour)
			return err
		}},
		{"empty title", func() error {
			_, err := s.Propose("alice", "a", "  ", nil, 0, 5, 24*time.Hour)
			return err
		}},
		{"title too long", func() error {
			_, err := s.Propose("alice", "a", string(long), nil, 0, 5, 24*time.Hour)
			return err
		}},
		{"reward above cap", func() error {
			_, err := s.Propose("alice", "a", "t", nil, 0, 10_000, 24*time.Hour)
			return err
		}},
		{"negative reward", func() error {
			_, err := s.Propose("alice", "a", "t", nil, 0, -5, 24*time.Hour)
			return err
		}},
		{"deadline too short", func() error {
			_, err := s.Propose("alice", "a", "t", nil, 0, 5, time.Minute)
			return err
		}},
		{"unknown evidence type", func() error {
			_, err := s.Propose("alice", "a", "t", []domain.EvidenceType{"hologram"}, 0, 5, 24*time.Hour)
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !domain.IsValidation(err) {
				t.Errorf("error = %v, want validation", err)
			}
		})
	}
}

func TestProposalExpiry(t *testing.T) {
	s, lg := newTestIntake(t)
	if _, err := lg.CreateAccount("alice", 100); err != nil {
		t.Fatal(err)
	}

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	p, err := s.Propose("alice", "assistant", "Expires", nil, 0, 5, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	s.now = func() time.Time { return base.Add(25 * time.Hour) }
	if _, err := s.Confirm("alice", p.ID); !errors.Is(err, ErrUnknownProposal) {
		t.Errorf("confirm after TTL error = %v, want ErrUnknownProposal", err)
	}
	if pending := s.Pending("alice"); len(pending) != 0 {
		t.Errorf("pending after TTL = %d, want 0", len(pending))
	}
}

func TestDiscard(t *testing.T) {
	s, lg := newTestIntake(t)
	if _, err := lg.CreateAccount("alice", 100); err != nil {
		t.Fatal(err)
	}

	p, err := s.Propose("alice", "assistant", "Drop me", nil, 0, 5, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Discard("alice", p.ID); err != nil {
		t.Fatalf("Discard() error = %v", err)
	}
	if err := s.Discard("alice", p.ID); !errors.Is(err, ErrUnknownProposal) {
		t.Errorf("double discard error = %v, want ErrUnknownProposal", err)
	}
}
