package sqlite

// ─── Schema ─────────────────────────────────────────────────────────────────

// Migrations returns the schema migration statements.
// Each string is a single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		// Ledger accounts. Balance is derived from entries but stored here
		// so reads are O(1); the two are updated in the same transaction.
		// XP is lifetime experience; levels are computed, never stored.
		`CREATE TABLE IF NOT EXISTS accounts (
			id              TEXT PRIMARY KEY,
			balance         INTEGER NOT NULL DEFAULT 0,
			lifetime_earned INTEGER NOT NULL DEFAULT 0,
			lifetime_spent  INTEGER NOT NULL DEFAULT 0,
			xp              INTEGER NOT NULL DEFAULT 0,
			unlimited_spend INTEGER NOT NULL DEFAULT 0,
			created_at      TEXT NOT NULL DEFAULT (datetime('now'))
		)`,

		// Append-only credit ledger. The UNIQUE idempotency key is the
		// replay backstop beneath the per-account lock.
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id              TEXT PRIMARY KEY,
			account_id      TEXT NOT NULL REFERENCES accounts(id),
			amount          INTEGER NOT NULL,
			reason          TEXT NOT NULL,
			idempotency_key TEXT NOT NULL UNIQUE,
			ref             TEXT NOT NULL DEFAULT '',
			balance_after   INTEGER NOT NULL,
			created_at      TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_account ON ledger_entries(account_id, created_at)`,

		// Goal definitions.
		`CREATE TABLE IF NOT EXISTS commitments (
			id              TEXT PRIMARY KEY,
			owner_id        TEXT NOT NULL,
			title           TEXT NOT NULL,
			required_proofs TEXT NOT NULL DEFAULT '[]',
			min_approvals   INTEGER NOT NULL DEFAULT 1,
			reward_amount   INTEGER NOT NULL DEFAULT 0,
			creation_cost   INTEGER NOT NULL DEFAULT 0,
			review_deadline_hours INTEGER NOT NULL DEFAULT 24,
			created_at      TEXT NOT NULL DEFAULT (datetime('now'))
		)`,

		// Progress events. Never deleted — rejected rows are audit history.
		`CREATE TABLE IF NOT EXISTS contributions (
			id             TEXT PRIMARY KEY,
			commitment_id  TEXT NOT NULL REFERENCES commitments(id),
			participant_id TEXT NOT NULL,
			value          INTEGER NOT NULL DEFAULT 1,
			occurred_on    TEXT NOT NULL,
			status         TEXT NOT NULL,
			submitted_at   TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_contrib_status ON contributions(status, submitted_at)`,
		`CREATE INDEX IF NOT EXISTS idx_contrib_participant ON contributions(participant_id, commitment_id)`,

		// Evidence attached to contributions.
		`CREATE TABLE IF NOT EXISTS proofs (
			id              TEXT PRIMARY KEY,
			contribution_id TEXT NOT NULL REFERENCES contributions(id),
			type            TEXT NOT NULL,
			handle          TEXT NOT NULL DEFAULT '',
			size_bytes      INTEGER NOT NULL DEFAULT 0,
			status          TEXT NOT NULL,
			created_at      TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_proof_contribution ON proofs(contribution_id)`,

		// One verdict per (proof, reviewer).
		`CREATE TABLE IF NOT EXISTS proof_reviews (
			id          TEXT PRIMARY KEY,
			proof_id    TEXT NOT NULL REFERENCES proofs(id),
			reviewer_id TEXT NOT NULL,
			verdict     TEXT NOT NULL,
			comment     TEXT NOT NULL DEFAULT '',
			created_at  TEXT NOT NULL DEFAULT (datetime('now')),
			UNIQUE(proof_id, reviewer_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_review_proof ON proof_reviews(proof_id)`,

		// Daily continuity per (participant, commitment). Fired milestones
		// are stored as a JSON array so a threshold fires once ever.
		`CREATE TABLE IF NOT EXISTS streaks (
			participant_id   TEXT NOT NULL,
			commitment_id    TEXT NOT NULL,
			current          INTEGER NOT NULL DEFAULT 0,
			longest          INTEGER NOT NULL DEFAULT 0,
			last_counted     TEXT,
			grace_remaining  INTEGER NOT NULL DEFAULT 0,
			grace_refilled   TEXT,
			fired_milestones TEXT NOT NULL DEFAULT '[]',
			PRIMARY KEY (participant_id, commitment_id)
		)`,

		// Reward decision audit: one row per trigger, enforced by UNIQUE.
		`CREATE TABLE IF NOT EXISTS reward_events (
			id         TEXT PRIMARY KEY,
			trigger_key TEXT NOT NULL UNIQUE,
			account_id TEXT NOT NULL,
			amount     INTEGER NOT NULL,
			entry_id   TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,

		// Badge awards: at most one per (account, badge).
		`CREATE TABLE IF NOT EXISTS badge_awards (
			account_id TEXT NOT NULL,
			badge      TEXT NOT NULL,
			awarded_at TEXT NOT NULL DEFAULT (datetime('now')),
			PRIMARY KEY (account_id, badge)
		)`,
	}
}
