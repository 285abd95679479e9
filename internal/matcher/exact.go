package matcher

import (
	"fmt"

	"github.com/shopspring/decimal"

	"ledger-reconciliation-service/internal/models"
)

// MatchExact returns a candidate iff the absolute amounts differ by at most
// tolerance and the dates by at most one day. Exact matches are same-day,
// same-amount postings and carry maximal, non-degraded confidence.
func MatchExact(txn *models.Transaction, entry *models.LedgerEntry, tolerance decimal.Decimal) *MatchCandidate {
	if !models.AmountsWithinTolerance(txn.Amount, entry.Amount, tolerance) {
		return nil
	}

	dateDiff := models.DateDiffDays(txn.Date, entry.Date)
	if dateDiff > 1 {
		return nil
	}

	return &MatchCandidate{
		Strategy:           models.MatchExact,
		LedgerEntryIDs:     []string{entry.ID},
		ExactScore:         1.0,
		AmountDifference:   txn.Amount.Abs().Sub(entry.Amount.Abs()).Abs(),
		DateDifferenceDays: dateDiff,
		Explanation: fmt.Sprintf("Exact match: amount %s vs %s, %d day(s) apart",
			txn.Amount.Abs(), entry.Amount.Abs(), dateDiff),
	}
}
