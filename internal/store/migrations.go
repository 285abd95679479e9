package store

import (
	"database/sql"
	"fmt"
)

// Migration represents one schema change applied in its own transaction.
type Migration struct {
	Version int
	Name    string
	Up      func(tx *sql.Tx) error
}

var allMigrations = []Migration{
	{
		Version: 1,
		Name:    "create_pool_tables",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
			CREATE TABLE IF NOT EXISTS transactions (
				id           TEXT PRIMARY KEY,
				amount       TEXT NOT NULL,
				date         TEXT NOT NULL,
				description  TEXT NOT NULL DEFAULT '',
				counterparty TEXT NOT NULL DEFAULT ''
			);

			CREATE TABLE IF NOT EXISTS ledger_entries (
				id         TEXT PRIMARY KEY,
				amount     TEXT NOT NULL,
				date       TEXT NOT NULL,
				memo       TEXT NOT NULL DEFAULT '',
				reference  TEXT NOT NULL DEFAULT '',
				reconciled INTEGER NOT NULL DEFAULT 0
			);
			`)
			return err
		},
	},
	{
		Version: 2,
		Name:    "create_proposal_tables",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
			CREATE TABLE IF NOT EXISTS proposals (
				id                     TEXT PRIMARY KEY,
				transaction_id         TEXT NOT NULL,
				ledger_entry_ids       TEXT NOT NULL,
				match_type             TEXT NOT NULL,
				match_score            REAL NOT NULL,
				weighted_score         REAL NOT NULL,
				amount_difference      TEXT NOT NULL,
				date_difference_days   INTEGER NOT NULL,
				description_similarity REAL,
				explanation            TEXT NOT NULL DEFAULT '',
				status                 TEXT NOT NULL DEFAULT 'pending',
				reviewed_by            TEXT NOT NULL DEFAULT '',
				review_notes           TEXT NOT NULL DEFAULT '',
				reviewed_at            TEXT,
				created_at             TEXT NOT NULL
			);

			CREATE TABLE IF NOT EXISTS proposal_entries (
				proposal_id     TEXT NOT NULL REFERENCES proposals(id),
				ledger_entry_id TEXT NOT NULL,
				PRIMARY KEY (proposal_id, ledger_entry_id)
			);

			CREATE INDEX IF NOT EXISTS idx_proposals_status ON proposals(status);
			CREATE INDEX IF NOT EXISTS idx_proposals_transaction ON proposals(transaction_id);
			CREATE INDEX IF NOT EXISTS idx_proposal_entries_entry ON proposal_entries(ledger_entry_id);
			`)
			return err
		},
	},
}

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) runMigrations() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, migration := range allMigrations {
		if applied[migration.Version] {
			continue
		}

		s.logger.WithField("migration", migration.Name).Debug("Applying schema migration")

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if err := migration.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Name, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
			migration.Version, migration.Name,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
