// Package ledger implements the credit ledger: an append-only transaction
// log with a derived balance per account.
//
// Guarantees:
//  1. balance == sum of signed amounts of all committed entries, always
//  2. an idempotency key produces at most one entry, ever
//  3. a spend that would drive the balance negative is rejected before
//     any row is written
//
// Per-account writes are serialized by an in-process lock; the UNIQUE
// idempotency-key index is the backstop should two processes ever share
// the database file.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskme-network/taskme/internal/domain"
	"github.com/taskme-network/taskme/internal/infra/observability"
	"github.com/taskme-network/taskme/internal/infra/sqlite"
)

// Store is the slice of the persistence layer the ledger needs. Both
// *sqlite.DB and *sqlite.Tx satisfy it, so Apply can run standalone or
// inside a dispatcher-owned transaction.
type Store interface {
	GetAccount(id string) (*domain.Account, error)
	EntryByKey(key string) (*domain.LedgerEntry, error)
	InsertEntry(e domain.LedgerEntry) error
}

// Service is the credit ledger.
type Service struct {
	db *sqlite.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex // accountID → lock

	// Injectable clock for testing.
	now func() time.Time
}

// New creates a ledger service.
func New(db *sqlite.DB) *Service {
	return &Service{
		db:    db,
		locks: make(map[string]*sync.Mutex),
		now:   time.Now,
	}
}

// LockAccount acquires the per-account write lock and returns the unlock
// function. The reward dispatcher uses this to hold the lock across its
// whole transaction.
func (s *Service) LockAccount(accountID string) func() {
	s.mu.Lock()
	l, ok := s.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[accountID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// ─── Account Lifecycle ──────────────────────────────────────────────────────

// CreateAccount registers a new ledger identity. When signupBonus is
// positive the opening credit goes through the normal Apply path so it is
// visible in the entry log like any other movement.
func (s *Service) CreateAccount(accountID string, signupBonus int64) (*domain.Account, error) {
	if accountID == "" {
		return nil, &domain.ValidationError{Field: "account", Msg: "must not be empty"}
	}
	if err := s.db.CreateAccount(accountID, false, s.now()); err != nil {
		return nil, err
	}
	if signupBonus > 0 {
		key := fmt.Sprintf("signup:%s", accountID)
		if _, err := s.Apply(accountID, signupBonus, domain.ReasonSignupBonus, key); err != nil {
			return nil, fmt.Errorf("signup bonus: %w", err)
		}
	}
	return s.db.GetAccount(accountID)
}

// GetAccount returns the account with its committed balance.
func (s *Service) GetAccount(accountID string) (*domain.Account, error) {
	return s.db.GetAccount(accountID)
}

// SetUnlimitedSpend grants or revokes the spend-floor bypass capability.
// This is a role flag on the account — never an identity-name list.
func (s *Service) SetUnlimitedSpend(accountID string, unlimited bool) error {
	return s.db.SetUnlimitedSpend(accountID, unlimited)
}

// ─── Apply ──────────────────────────────────────────────────────────────────

// Apply appends one signed entry to an account's ledger and moves the
// balance in the same transaction. If an entry with the same idempotency
// key already exists, the existing entry is returned and nothing changes.
func (s *Service) Apply(accountID string, amount int64, reason domain.ReasonCode, idempotencyKey string) (*domain.LedgerEntry, error) {
	unlock := s.LockAccount(accountID)
	defer unlock()

	var entry *domain.LedgerEntry
	err := s.db.WithTx(func(tx *sqlite.Tx) error {
		var err error
		entry, err = s.ApplyIn(tx, accountID, amount, reason, idempotencyKey)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ApplyIn is Apply's transactional core. The caller must hold the account
// lock (see LockAccount) and owns the surrounding transaction.
func (s *Service) ApplyIn(st Store, accountID string, amount int64, reason domain.ReasonCode, idempotencyKey string) (*domain.LedgerEntry, error) {
	if amount == 0 {
		return nil, domain.ErrZeroAmount
	}
	if !domain.ValidReason(reason) {
		return nil, &domain.ValidationError{Field: "reason", Msg: fmt.Sprintf("unknown reason code %q", reason)}
	}
	if idempotencyKey == "" {
		return nil, &domain.ValidationError{Field: "idempotency_key", Msg: "must not be empty"}
	}

	// Replay check first: a retried operation returns the original entry.
	if existing, err := st.EntryByKey(idempotencyKey); err != nil {
		return nil, err
	} else if existing != nil {
		observability.LedgerReplays.Inc()
		return existing, nil
	}

	account, err := st.GetAccount(accountID)
	if err != nil {
		return nil, err
	}

	balanceAfter := account.Balance + amount
	if amount < 0 && balanceAfter < 0 && !account.UnlimitedSpend {
		observability.LedgerInsufficientFunds.Inc()
		return nil, &domain.InsufficientFundsError{
			AccountID: accountID,
			Needed:    -amount,
			Available: account.Balance,
		}
	}

	entry := domain.LedgerEntry{
		ID:             uuid.NewString(),
		AccountID:      accountID,
		Amount:         amount,
		Reason:         reason,
		IdempotencyKey: idempotencyKey,
		BalanceAfter:   balanceAfter,
		CreatedAt:      s.now(),
	}
	if err := st.InsertEntry(entry); err != nil {
		return nil, err
	}

	observability.LedgerEntries.WithLabelValues(string(reason)).Inc()
	if amount > 0 {
		observability.CreditsMinted.Add(float64(amount))
	} else {
		observability.CreditsBurned.Add(float64(-amount))
	}
	return &entry, nil
}

// ─── Queries ────────────────────────────────────────────────────────────────

// GetBalance returns the committed balance for an account.
func (s *Service) GetBalance(accountID string) (int64, error) {
	account, err := s.db.GetAccount(accountID)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// Entries returns the most recent entries for an account, newest first.
func (s *Service) Entries(accountID string, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if _, err := s.db.GetAccount(accountID); err != nil {
		return nil, err
	}
	return s.db.ListEntries(accountID, limit)
}

// Badges returns the badge names awarded to an account.
func (s *Service) Badges(accountID string) ([]string, error) {
	if _, err := s.db.GetAccount(accountID); err != nil {
		return nil, err
	}
	return s.db.ListBadges(accountID)
}

// Progress returns the account's level progression derived from its
// lifetime XP.
func (s *Service) Progress(accountID string) (domain.LevelProgress, error) {
	account, err := s.db.GetAccount(accountID)
	if err != nil {
		return domain.LevelProgress{}, err
	}
	return domain.ProgressOf(account.XP), nil
}

// Stats aggregates minted/burned/circulating totals over the whole ledger.
func (s *Service) Stats() (domain.EconomyStats, error) {
	return s.db.EconomyStats()
}

// CheckInvariant verifies balance == sum(entries) for one account and
// returns ErrInvariantViolation on mismatch. Never repairs anything.
func (s *Service) CheckInvariant(accountID string) error {
	account, err := s.db.GetAccount(accountID)
	if err != nil {
		return err
	}
	sum, err := s.db.SumEntries(accountID)
	if err != nil {
		return err
	}
	if sum != account.Balance {
		return fmt.Errorf("%w: account %s balance=%d sum(entries)=%d",
			domain.ErrInvariantViolation, accountID, account.Balance, sum)
	}
	return nil
}
