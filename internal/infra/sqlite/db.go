// Package sqlite is the persistence layer for the taskme economy core.
// One database file holds accounts, the append-only credit ledger,
// commitments, contributions, proofs, reviews, streaks, and reward events.
package sqlite

import (
	"database/sql"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// queryer is satisfied by both *sql.DB and *sql.Tx so every row operation
// can run standalone or inside a caller-owned transaction.
type queryer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// conn carries the row operations. DB and Tx both embed it, so the same
// operation set is available with and without an explicit transaction.
type conn struct {
	q queryer
}

// DB wraps the sqlite database.
type DB struct {
	conn
	db *sql.DB
}

// Tx is an open transaction exposing the full operation set.
type Tx struct {
	conn
	tx *sql.Tx
}

// Open opens (or creates) the database under dir and runs all migrations.
func Open(dir string) (*DB, error) {
	path := filepath.Join(dir, "taskme.db")
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)

	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Single writer connection: sqlite serializes writes anyway, and one
	// connection keeps BEGIN IMMEDIATE from fighting the pool.
	sqldb.SetMaxOpenConns(1)

	db := &DB{conn: conn{q: sqldb}, db: sqldb}
	if err := db.migrate(); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the underlying database.
func (db *DB) Close() error { return db.db.Close() }

// WithTx runs fn inside one immediate transaction. The commit is the only
// point at which any of fn's writes become durable — the reward dispatcher
// uses this as its atomic unit of work.
func (db *DB) WithTx(fn func(*Tx) error) error {
	tx, err := db.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(&Tx{conn: conn{q: tx}, tx: tx}); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// migrate applies every schema statement. Statements are idempotent
// (CREATE TABLE IF NOT EXISTS), so migrate is safe to run on every Open.
func (db *DB) migrate() error {
	for _, stmt := range Migrations() {
		if _, err := db.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:min(len(stmt), 48)], err)
		}
	}
	return nil
}
