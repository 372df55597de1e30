package sqlite

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/taskme-network/taskme/internal/domain"
)

// ─── Account Operations ─────────────────────────────────────────────────────

// CreateAccount inserts a new ledger account.
func (c conn) CreateAccount(id string, unlimitedSpend bool, now time.Time) error {
	_, err := c.q.Exec(`
		INSERT INTO accounts (id, unlimited_spend, created_at)
		VALUES (?, ?, ?)
	`, id, boolToInt(unlimitedSpend), now.UTC().Format(time.RFC3339))
	if isUniqueViolation(err) {
		return domain.ErrAccountExists
	}
	return err
}

// GetAccount retrieves an account by id.
func (c conn) GetAccount(id string) (*domain.Account, error) {
	var a domain.Account
	var unlimited int
	var createdStr string
	err := c.q.QueryRow(`
		SELECT id, balance, lifetime_earned, lifetime_spent, xp, unlimited_spend, created_at
		FROM accounts WHERE id = ?
	`, id).Scan(&a.ID, &a.Balance, &a.LifetimeEarned, &a.LifetimeSpent, &a.XP, &unlimited, &createdStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUnknownAccount
	}
	if err != nil {
		return nil, err
	}
	a.UnlimitedSpend = unlimited == 1
	a.CreatedAt = parseTime(createdStr)
	return &a, nil
}

// SetUnlimitedSpend flips the spend-floor bypass capability on an account.
func (c conn) SetUnlimitedSpend(id string, unlimited bool) error {
	res, err := c.q.Exec(`UPDATE accounts SET unlimited_spend = ? WHERE id = ?`,
		boolToInt(unlimited), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrUnknownAccount
	}
	return nil
}

// AddXP adds experience points to an account and returns the new lifetime
// total. XP never decreases.
func (c conn) AddXP(accountID string, amount int64) (int64, error) {
	res, err := c.q.Exec(`UPDATE accounts SET xp = xp + ? WHERE id = ?`, amount, accountID)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, domain.ErrUnknownAccount
	}
	var total int64
	err = c.q.QueryRow(`SELECT xp FROM accounts WHERE id = ?`, accountID).Scan(&total)
	return total, err
}

// ─── Ledger Entry Operations ────────────────────────────────────────────────

// EntryByKey returns the entry with the given idempotency key, or nil when
// no such entry exists.
func (c conn) EntryByKey(key string) (*domain.LedgerEntry, error) {
	return c.scanEntry(c.q.QueryRow(`
		SELECT id, account_id, amount, reason, idempotency_key, ref, balance_after, created_at
		FROM ledger_entries WHERE idempotency_key = ?
	`, key))
}

// InsertEntry appends one ledger entry and moves the account balance in the
// same statement pair. Callers hold the per-account lock and run this inside
// a transaction; the UNIQUE key constraint is the last line of defense.
func (c conn) InsertEntry(e domain.LedgerEntry) error {
	_, err := c.q.Exec(`
		INSERT INTO ledger_entries (id, account_id, amount, reason, idempotency_key, ref, balance_after, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.AccountID, e.Amount, string(e.Reason), e.IdempotencyKey, e.Ref,
		e.BalanceAfter, e.CreatedAt.UTC().Format(time.RFC3339))
	if isUniqueViolation(err) {
		return domain.ErrTransient // concurrent writer got there first; replay resolves it
	}
	if err != nil {
		return err
	}

	earned, spent := int64(0), int64(0)
	if e.Amount > 0 {
		earned = e.Amount
	} else {
		spent = -e.Amount
	}
	_, err = c.q.Exec(`
		UPDATE accounts
		SET balance = ?, lifetime_earned = lifetime_earned + ?, lifetime_spent = lifetime_spent + ?
		WHERE id = ?
	`, e.BalanceAfter, earned, spent, e.AccountID)
	return err
}

// ListEntries returns the most recent entries for an account.
func (c conn) ListEntries(accountID string, limit int) ([]domain.LedgerEntry, error) {
	rows, err := c.q.Query(`
		SELECT id, account_id, amount, reason, idempotency_key, ref, balance_after, created_at
		FROM ledger_entries WHERE account_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.LedgerEntry
	for rows.Next() {
		e, err := scanEntryRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SumEntries returns the signed sum of all entries for an account.
// Used to verify the balance invariant.
func (c conn) SumEntries(accountID string) (int64, error) {
	var sum sql.NullInt64
	err := c.q.QueryRow(`
		SELECT SUM(amount) FROM ledger_entries WHERE account_id = ?
	`, accountID).Scan(&sum)
	return sum.Int64, err
}

// EconomyStats aggregates minted/burned/circulating totals from the ledger.
func (c conn) EconomyStats() (domain.EconomyStats, error) {
	var s domain.EconomyStats
	var minted, burned sql.NullInt64
	err := c.q.QueryRow(`
		SELECT
			SUM(CASE WHEN amount > 0 THEN amount ELSE 0 END),
			SUM(CASE WHEN amount < 0 THEN -amount ELSE 0 END)
		FROM ledger_entries
	`).Scan(&minted, &burned)
	if err != nil {
		return s, err
	}
	s.TotalMinted = minted.Int64
	s.TotalBurned = burned.Int64
	var circulating sql.NullInt64
	if err := c.q.QueryRow(`SELECT SUM(balance), COUNT(*) FROM accounts`).
		Scan(&circulating, &s.AccountCount); err != nil {
		return s, err
	}
	s.TotalCirculating = circulating.Int64
	return s, nil
}

// ─── Reward Event Operations ────────────────────────────────────────────────

// InsertRewardEvent records a reward decision. Returns false when the
// trigger already produced an event (idempotent replay).
func (c conn) InsertRewardEvent(ev domain.RewardEvent) (bool, error) {
	res, err := c.q.Exec(`
		INSERT OR IGNORE INTO reward_events (id, trigger_key, account_id, amount, entry_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.Trigger, ev.AccountID, ev.Amount, ev.EntryID,
		ev.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// RewardEventByTrigger returns the reward event for a trigger, or nil.
func (c conn) RewardEventByTrigger(trigger string) (*domain.RewardEvent, error) {
	var ev domain.RewardEvent
	var createdStr string
	err := c.q.QueryRow(`
		SELECT id, trigger_key, account_id, amount, entry_id, created_at
		FROM reward_events WHERE trigger_key = ?
	`, trigger).Scan(&ev.ID, &ev.Trigger, &ev.AccountID, &ev.Amount, &ev.EntryID, &createdStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ev.CreatedAt = parseTime(createdStr)
	return &ev, nil
}

// ─── Badge Operations ───────────────────────────────────────────────────────

// AwardBadge records a badge for an account. Returns false when the account
// already holds the badge.
func (c conn) AwardBadge(accountID, badge string, now time.Time) (bool, error) {
	res, err := c.q.Exec(`
		INSERT OR IGNORE INTO badge_awards (account_id, badge, awarded_at)
		VALUES (?, ?, ?)
	`, accountID, badge, now.UTC().Format(time.RFC3339))
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// ListBadges returns the badges held by an account.
func (c conn) ListBadges(accountID string) ([]string, error) {
	rows, err := c.q.Query(`
		SELECT badge FROM badge_awards WHERE account_id = ? ORDER BY awarded_at
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ─── Scan Helpers ───────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func (c conn) scanEntry(row *sql.Row) (*domain.LedgerEntry, error) {
	e, err := scanEntryRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func scanEntryRow(r rowScanner) (domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	var reason, createdStr string
	err := r.Scan(&e.ID, &e.AccountID, &e.Amount, &reason, &e.IdempotencyKey,
		&e.Ref, &e.BalanceAfter, &createdStr)
	if err != nil {
		return e, err
	}
	e.Reason = domain.ReasonCode(reason)
	e.CreatedAt = parseTime(createdStr)
	return e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	t, _ := time.Parse("2006-01-02 15:04:05", s)
	return t
}
