// Package store persists transaction and ledger pools plus reconciliation
// proposals in SQLite, and owns the review lifecycle. Review is the only code
// path that flips a ledger entry's reconciled flag; the matching engine never
// touches persisted state.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/pkg/errors"
	"ledger-reconciliation-service/pkg/logger"
)

// Store provides SQLite-backed persistence for pools and proposals.
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

// NewStore opens (or creates) the database at path and applies pending
// schema migrations.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.StoreError(errors.CodeStoreUnavailable, path, err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, errors.StoreError(errors.CodeStoreUnavailable, "enabling foreign keys", err)
	}

	s := &Store{
		db:     db,
		logger: logger.GetGlobalLogger().WithComponent("proposal_store"),
	}

	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, errors.StoreError(errors.CodeStoreUnavailable, "applying migrations", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const dateFormat = time.RFC3339

// SaveTransactions upserts a batch of transactions in one database
// transaction. Re-importing the same file is idempotent.
func (s *Store) SaveTransactions(ctx context.Context, txns []*models.Transaction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StoreError(errors.CodeStoreUnavailable, "saving transactions", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT OR REPLACE INTO transactions (id, amount, date, description, counterparty)
	VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.StoreError(errors.CodeStoreUnavailable, "saving transactions", err)
	}
	defer stmt.Close()

	for _, txn := range txns {
		if _, err := stmt.ExecContext(ctx,
			txn.ID, txn.Amount.String(), txn.Date.UTC().Format(dateFormat),
			txn.Description, txn.Counterparty,
		); err != nil {
			return errors.StoreError(errors.CodeStoreUnavailable, "saving transaction "+txn.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.StoreError(errors.CodeStoreUnavailable, "saving transactions", err)
	}
	return nil
}

// SaveLedgerEntries upserts a batch of ledger entries in one database
// transaction, preserving an existing reconciled flag so re-import cannot
// silently un-reconcile an entry.
func (s *Store) SaveLedgerEntries(ctx context.Context, entries []*models.LedgerEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StoreError(errors.CodeStoreUnavailable, "saving ledger entries", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO ledger_entries (id, amount, date, memo, reference, reconciled)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		amount = excluded.amount,
		date = excluded.date,
		memo = excluded.memo,
		reference = excluded.reference`)
	if err != nil {
		return errors.StoreError(errors.CodeStoreUnavailable, "saving ledger entries", err)
	}
	defer stmt.Close()

	for _, entry := range entries {
		if _, err := stmt.ExecContext(ctx,
			entry.ID, entry.Amount.String(), entry.Date.UTC().Format(dateFormat),
			entry.Memo, entry.Reference, entry.Reconciled,
		); err != nil {
			return errors.StoreError(errors.CodeStoreUnavailable, "saving ledger entry "+entry.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.StoreError(errors.CodeStoreUnavailable, "saving ledger entries", err)
	}
	return nil
}

// UnmatchedTransactions returns transactions with no pending or approved
// proposal attached. Rejected proposals release their transaction back into
// the pool.
func (s *Store) UnmatchedTransactions(ctx context.Context) ([]*models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT t.id, t.amount, t.date, t.description, t.counterparty
	FROM transactions t
	WHERE t.id NOT IN (
		SELECT p.transaction_id FROM proposals p WHERE p.status != 'rejected'
	)
	ORDER BY t.date, t.id`)
	if err != nil {
		return nil, errors.StoreError(errors.CodeStoreUnavailable, "loading transaction pool", err)
	}
	defer rows.Close()

	var txns []*models.Transaction
	for rows.Next() {
		var (
			txn              models.Transaction
			amountStr, dates string
		)
		if err := rows.Scan(&txn.ID, &amountStr, &dates, &txn.Description, &txn.Counterparty); err != nil {
			return nil, errors.StoreError(errors.CodeStoreUnavailable, "scanning transaction row", err)
		}
		if txn.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, errors.StoreError(errors.CodeStoreUnavailable, "decoding amount for "+txn.ID, err)
		}
		if txn.Date, err = time.Parse(dateFormat, dates); err != nil {
			return nil, errors.StoreError(errors.CodeStoreUnavailable, "decoding date for "+txn.ID, err)
		}
		txns = append(txns, &txn)
	}
	return txns, rows.Err()
}

// UnreconciledLedgerEntries returns ledger entries eligible for matching:
// not reconciled and not held by a pending or approved proposal.
func (s *Store) UnreconciledLedgerEntries(ctx context.Context) ([]*models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT le.id, le.amount, le.date, le.memo, le.reference, le.reconciled
	FROM ledger_entries le
	WHERE le.reconciled = 0
	  AND le.id NOT IN (
		SELECT pe.ledger_entry_id
		FROM proposal_entries pe
		JOIN proposals p ON p.id = pe.proposal_id
		WHERE p.status != 'rejected'
	  )
	ORDER BY le.date, le.id`)
	if err != nil {
		return nil, errors.StoreError(errors.CodeStoreUnavailable, "loading ledger pool", err)
	}
	defer rows.Close()

	var entries []*models.LedgerEntry
	for rows.Next() {
		var (
			entry            models.LedgerEntry
			amountStr, dates string
		)
		if err := rows.Scan(&entry.ID, &amountStr, &dates, &entry.Memo, &entry.Reference, &entry.Reconciled); err != nil {
			return nil, errors.StoreError(errors.CodeStoreUnavailable, "scanning ledger row", err)
		}
		if entry.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, errors.StoreError(errors.CodeStoreUnavailable, "decoding amount for "+entry.ID, err)
		}
		if entry.Date, err = time.Parse(dateFormat, dates); err != nil {
			return nil, errors.StoreError(errors.CodeStoreUnavailable, "decoding date for "+entry.ID, err)
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// SaveProposals persists one run's committed proposals atomically. Either all
// proposals land as pending or none do. Fails if any ledger entry is already
// held by a pending or approved proposal.
func (s *Store) SaveProposals(ctx context.Context, proposals []*models.ReconciliationProposal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StoreError(errors.CodeStoreUnavailable, "saving proposals", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range proposals {
		if err := p.Validate(); err != nil {
			return errors.StoreError(errors.CodeWriteConflict, "proposal "+p.ID, err)
		}

		for _, entryID := range p.LedgerEntryIDs {
			var held int
			err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*)
			FROM proposal_entries pe
			JOIN proposals pr ON pr.id = pe.proposal_id
			WHERE pe.ledger_entry_id = ? AND pr.status != 'rejected'`, entryID).Scan(&held)
			if err != nil {
				return errors.StoreError(errors.CodeStoreUnavailable, "checking ledger entry "+entryID, err)
			}
			if held > 0 {
				return errors.StoreError(errors.CodeWriteConflict,
					"ledger entry "+entryID+" is already held by another proposal", nil)
			}
		}

		idsJSON, err := json.Marshal(p.LedgerEntryIDs)
		if err != nil {
			return errors.StoreError(errors.CodeStoreUnavailable, "encoding proposal "+p.ID, err)
		}

		var similarity sql.NullFloat64
		if p.DescriptionSimilarity != nil {
			similarity = sql.NullFloat64{Float64: *p.DescriptionSimilarity, Valid: true}
		}

		if _, err := tx.ExecContext(ctx, `
		INSERT INTO proposals
		(id, transaction_id, ledger_entry_ids, match_type, match_score, weighted_score,
		 amount_difference, date_difference_days, description_similarity, explanation,
		 status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.TransactionID, string(idsJSON), string(p.MatchType),
			p.MatchScore, p.WeightedScore, p.AmountDifference.String(),
			p.DateDifferenceDays, similarity, p.Explanation,
			string(p.Status), p.CreatedAt.UTC().Format(dateFormat),
		); err != nil {
			return errors.StoreError(errors.CodeStoreUnavailable, "inserting proposal "+p.ID, err)
		}

		for _, entryID := range p.LedgerEntryIDs {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO proposal_entries (proposal_id, ledger_entry_id) VALUES (?, ?)",
				p.ID, entryID,
			); err != nil {
				return errors.StoreError(errors.CodeStoreUnavailable, "linking proposal "+p.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.StoreError(errors.CodeStoreUnavailable, "saving proposals", err)
	}

	s.logger.WithField("proposals", len(proposals)).Info("Saved run proposals")
	return nil
}

// GetProposal loads one proposal by ID.
func (s *Store) GetProposal(ctx context.Context, id string) (*models.ReconciliationProposal, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, transaction_id, ledger_entry_ids, match_type, match_score, weighted_score,
	       amount_difference, date_difference_days, description_similarity, explanation,
	       status, reviewed_by, review_notes, reviewed_at, created_at
	FROM proposals WHERE id = ?`, id)

	p, err := scanProposal(row)
	if err == sql.ErrNoRows {
		return nil, errors.StoreError(errors.CodeProposalNotFound, id, nil)
	}
	if err != nil {
		return nil, errors.StoreError(errors.CodeStoreUnavailable, "loading proposal "+id, err)
	}
	return p, nil
}

// ListProposals returns proposals with the given status, ordered by creation
// time. An empty status returns everything.
func (s *Store) ListProposals(ctx context.Context, status models.ProposalStatus) ([]*models.ReconciliationProposal, error) {
	query := `
	SELECT id, transaction_id, ledger_entry_ids, match_type, match_score, weighted_score,
	       amount_difference, date_difference_days, description_similarity, explanation,
	       status, reviewed_by, review_notes, reviewed_at, created_at
	FROM proposals`
	args := []interface{}{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.StoreError(errors.CodeStoreUnavailable, "listing proposals", err)
	}
	defer rows.Close()

	var proposals []*models.ReconciliationProposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, errors.StoreError(errors.CodeStoreUnavailable, "scanning proposal row", err)
		}
		proposals = append(proposals, p)
	}
	return proposals, rows.Err()
}

// Review transitions a pending proposal to approved or rejected. Approval
// marks every consumed ledger entry reconciled; rejection releases the
// transaction and entries back into future pools. A proposal can be reviewed
// exactly once.
func (s *Store) Review(ctx context.Context, id string, verdict models.ProposalStatus, reviewer, notes string) (*models.ReconciliationProposal, error) {
	if verdict != models.StatusApproved && verdict != models.StatusRejected {
		return nil, errors.StoreError(errors.CodeInvalidVerdict, string(verdict), nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.StoreError(errors.CodeStoreUnavailable, "reviewing proposal", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
	SELECT id, transaction_id, ledger_entry_ids, match_type, match_score, weighted_score,
	       amount_difference, date_difference_days, description_similarity, explanation,
	       status, reviewed_by, review_notes, reviewed_at, created_at
	FROM proposals WHERE id = ?`, id)

	p, err := scanProposal(row)
	if err == sql.ErrNoRows {
		return nil, errors.StoreError(errors.CodeProposalNotFound, id, nil)
	}
	if err != nil {
		return nil, errors.StoreError(errors.CodeStoreUnavailable, "loading proposal "+id, err)
	}

	if p.Status != models.StatusPending {
		return nil, errors.StoreError(errors.CodeWriteConflict,
			"proposal "+id+" already reviewed as "+string(p.Status), nil)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
	UPDATE proposals
	SET status = ?, reviewed_by = ?, review_notes = ?, reviewed_at = ?
	WHERE id = ?`,
		string(verdict), reviewer, notes, now.Format(dateFormat), id,
	); err != nil {
		return nil, errors.StoreError(errors.CodeStoreUnavailable, "updating proposal "+id, err)
	}

	if verdict == models.StatusApproved {
		for _, entryID := range p.LedgerEntryIDs {
			if _, err := tx.ExecContext(ctx,
				"UPDATE ledger_entries SET reconciled = 1 WHERE id = ?", entryID,
			); err != nil {
				return nil, errors.StoreError(errors.CodeStoreUnavailable, "reconciling entry "+entryID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.StoreError(errors.CodeStoreUnavailable, "reviewing proposal", err)
	}

	p.Status = verdict
	p.ReviewedBy = reviewer
	p.ReviewNotes = notes
	p.ReviewedAt = &now

	s.logger.WithFields(logger.Fields{
		"proposal_id": id,
		"verdict":     verdict,
		"reviewer":    reviewer,
	}).Info("Proposal reviewed")

	return p, nil
}

// scanner matches both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanProposal(row scanner) (*models.ReconciliationProposal, error) {
	var (
		p             models.ReconciliationProposal
		idsJSON       string
		matchType     string
		status        string
		amountDiffStr string
		similarity    sql.NullFloat64
		reviewedAt    sql.NullString
		createdAt     string
	)

	if err := row.Scan(
		&p.ID, &p.TransactionID, &idsJSON, &matchType, &p.MatchScore, &p.WeightedScore,
		&amountDiffStr, &p.DateDifferenceDays, &similarity, &p.Explanation,
		&status, &p.ReviewedBy, &p.ReviewNotes, &reviewedAt, &createdAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(idsJSON), &p.LedgerEntryIDs); err != nil {
		return nil, err
	}

	p.MatchType = models.MatchType(matchType)
	p.Status = models.ProposalStatus(status)

	var err error
	if p.AmountDifference, err = decimal.NewFromString(amountDiffStr); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = time.Parse(dateFormat, createdAt); err != nil {
		return nil, err
	}

	if similarity.Valid {
		sim := similarity.Float64
		p.DescriptionSimilarity = &sim
	}
	if reviewedAt.Valid {
		t, err := time.Parse(dateFormat, reviewedAt.String)
		if err != nil {
			return nil, err
		}
		p.ReviewedAt = &t
	}

	return &p, nil
}
