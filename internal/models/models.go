// Package models defines the core record types flowing through a
// reconciliation run: bank/card transactions, general-ledger entries, and the
// proposals the engine produces for human review.
//
// Transactions and ledger entries are immutable inputs owned by upstream
// ingestion; the engine only reads them. Proposals are created by the engine
// as pending and transitioned by a reviewer, never by the engine itself.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MatchType identifies which strategy produced a proposal.
type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchWindowed MatchType = "windowed"
	MatchFuzzy    MatchType = "fuzzy"
	MatchPartial  MatchType = "partial"
)

// String returns the string representation of MatchType
func (mt MatchType) String() string {
	return string(mt)
}

// IsValid checks if the match type is one of the four strategies
func (mt MatchType) IsValid() bool {
	switch mt {
	case MatchExact, MatchWindowed, MatchFuzzy, MatchPartial:
		return true
	default:
		return false
	}
}

// ProposalStatus is the review state of a proposal.
type ProposalStatus string

const (
	StatusPending  ProposalStatus = "pending"
	StatusApproved ProposalStatus = "approved"
	StatusRejected ProposalStatus = "rejected"
)

// IsValid checks if the proposal status is valid
func (ps ProposalStatus) IsValid() bool {
	return ps == StatusPending || ps == StatusApproved || ps == StatusRejected
}

// Transaction represents a normalized bank or card transaction.
type Transaction struct {
	ID           string          `json:"id"`
	Amount       decimal.Decimal `json:"amount"`
	Date         time.Time       `json:"date"`
	Description  string          `json:"description"`
	Counterparty string          `json:"counterparty,omitempty"`
}

// NewTransaction creates a new Transaction instance
func NewTransaction(id string, amount decimal.Decimal, date time.Time, description string) *Transaction {
	return &Transaction{
		ID:          id,
		Amount:      amount,
		Date:        date,
		Description: description,
	}
}

// Validate performs basic validation on the Transaction
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("transaction ID cannot be empty")
	}

	if t.Date.IsZero() {
		return fmt.Errorf("transaction date cannot be zero")
	}

	return nil
}

// AbsAmount returns the absolute value of the transaction amount
func (t *Transaction) AbsAmount() decimal.Decimal {
	return t.Amount.Abs()
}

// String returns a string representation of the Transaction
func (t *Transaction) String() string {
	return fmt.Sprintf("Transaction{ID: %s, Amount: %s, Date: %s, Description: %q}",
		t.ID, t.Amount.String(), t.Date.Format("2006-01-02"), t.Description)
}

// LedgerEntry represents a general-ledger posting.
type LedgerEntry struct {
	ID         string          `json:"id"`
	Amount     decimal.Decimal `json:"amount"`
	Date       time.Time       `json:"date"`
	Memo       string          `json:"memo"`
	Reference  string          `json:"reference,omitempty"`
	Reconciled bool            `json:"reconciled"`
}

// NewLedgerEntry creates a new LedgerEntry instance
func NewLedgerEntry(id string, amount decimal.Decimal, date time.Time, memo string) *LedgerEntry {
	return &LedgerEntry{
		ID:     id,
		Amount: amount,
		Date:   date,
		Memo:   memo,
	}
}

// Validate performs basic validation on the LedgerEntry
func (le *LedgerEntry) Validate() error {
	if strings.TrimSpace(le.ID) == "" {
		return fmt.Errorf("ledger entry ID cannot be empty")
	}

	if le.Date.IsZero() {
		return fmt.Errorf("ledger entry date cannot be zero")
	}

	return nil
}

// AbsAmount returns the absolute value of the ledger entry amount
func (le *LedgerEntry) AbsAmount() decimal.Decimal {
	return le.Amount.Abs()
}

// String returns a string representation of the LedgerEntry
func (le *LedgerEntry) String() string {
	return fmt.Sprintf("LedgerEntry{ID: %s, Amount: %s, Date: %s, Memo: %q}",
		le.ID, le.Amount.String(), le.Date.Format("2006-01-02"), le.Memo)
}

// ReconciliationProposal is an engine-produced candidate correspondence
// between one transaction and one or more ledger entries, pending review.
//
// MatchScore is the producing strategy's own score and is what the commit
// threshold gates on; WeightedScore folds in the caller's strategy trust
// weights and is what ranked this proposal above its competitors.
type ReconciliationProposal struct {
	ID                    string          `json:"id"`
	TransactionID         string          `json:"transaction_id"`
	LedgerEntryIDs        []string        `json:"ledger_entry_ids"`
	MatchType             MatchType       `json:"match_type"`
	MatchScore            float64         `json:"match_score"`
	WeightedScore         float64         `json:"weighted_score"`
	AmountDifference      decimal.Decimal `json:"amount_difference"`
	DateDifferenceDays    int             `json:"date_difference_days"`
	DescriptionSimilarity *float64        `json:"description_similarity,omitempty"`
	Explanation           string          `json:"explanation"`
	Status                ProposalStatus  `json:"status"`
	ReviewedBy            string          `json:"reviewed_by,omitempty"`
	ReviewNotes           string          `json:"review_notes,omitempty"`
	ReviewedAt            *time.Time      `json:"reviewed_at,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
}

// Validate checks the proposal's structural invariants
func (p *ReconciliationProposal) Validate() error {
	if strings.TrimSpace(p.TransactionID) == "" {
		return fmt.Errorf("proposal transaction ID cannot be empty")
	}

	if len(p.LedgerEntryIDs) == 0 {
		return fmt.Errorf("proposal must consume at least one ledger entry")
	}

	if !p.MatchType.IsValid() {
		return fmt.Errorf("invalid match type: %s", p.MatchType)
	}

	if p.MatchScore < 0.0 || p.MatchScore > 1.0 {
		return fmt.Errorf("match score must be between 0.0 and 1.0: %f", p.MatchScore)
	}

	if p.WeightedScore < 0.0 || p.WeightedScore > 1.0 {
		return fmt.Errorf("weighted score must be between 0.0 and 1.0: %f", p.WeightedScore)
	}

	if !p.Status.IsValid() {
		return fmt.Errorf("invalid proposal status: %s", p.Status)
	}

	return nil
}

// String returns a string representation of the proposal
func (p *ReconciliationProposal) String() string {
	return fmt.Sprintf("Proposal{Txn: %s, Ledger: %v, Type: %s, Score: %.3f, Status: %s}",
		p.TransactionID, p.LedgerEntryIDs, p.MatchType, p.MatchScore, p.Status)
}

// Utility functions for parsing and comparing record fields

// ParseAmount parses a signed decimal amount from string, rejecting anything
// that does not parse exactly. Silent coercion to zero would corrupt the
// tolerance checks downstream, so the error is surfaced per record.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	// Strip common currency symbols and thousand separators
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return d, nil
}

// ParseDate attempts to parse a date from string using the formats commonly
// seen in exported transaction and ledger files.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date string cannot be empty")
	}

	formats := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02",
		"01/02/2006",
		"2006/01/02",
	}

	var lastErr error
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}

// DateOnly truncates a time to its calendar date at midnight UTC. Matching
// compares calendar dates, not clock times.
func DateOnly(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateDiffDays returns the absolute difference between two dates in whole
// calendar days.
func DateDiffDays(a, b time.Time) int {
	diff := DateOnly(a).Sub(DateOnly(b))
	if diff < 0 {
		diff = -diff
	}
	return int(diff.Hours() / 24)
}

// AmountsWithinTolerance compares the absolute values of two amounts against
// an absolute tolerance.
func AmountsWithinTolerance(a, b, tolerance decimal.Decimal) bool {
	diff := a.Abs().Sub(b.Abs()).Abs()
	return diff.LessThanOrEqual(tolerance)
}
