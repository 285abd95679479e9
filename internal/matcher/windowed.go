package matcher

import (
	"fmt"

	"github.com/shopspring/decimal"

	"ledger-reconciliation-service/internal/models"
)

// MatchWindowed returns a candidate for an amount match within tolerance
// whose dates fall within windowDays of each other. Postings frequently lag
// bank clearing by several business days, so the score decays linearly with
// date distance but never below 0.5:
//
//	score = max(0.5, 1.0 - (dateDiff/windowDays) * 0.3)
func MatchWindowed(txn *models.Transaction, entry *models.LedgerEntry, tolerance decimal.Decimal, windowDays int) *MatchCandidate {
	if !models.AmountsWithinTolerance(txn.Amount, entry.Amount, tolerance) {
		return nil
	}

	dateDiff := models.DateDiffDays(txn.Date, entry.Date)
	if dateDiff > windowDays {
		return nil
	}

	score := 1.0 - (float64(dateDiff)/float64(windowDays))*0.3
	if score < 0.5 {
		score = 0.5
	}

	return &MatchCandidate{
		Strategy:           models.MatchWindowed,
		LedgerEntryIDs:     []string{entry.ID},
		WindowedScore:      score,
		AmountDifference:   txn.Amount.Abs().Sub(entry.Amount.Abs()).Abs(),
		DateDifferenceDays: dateDiff,
		Explanation: fmt.Sprintf("Windowed match: amount %s vs %s, %d day(s) apart within %d-day window",
			txn.Amount.Abs(), entry.Amount.Abs(), dateDiff, windowDays),
	}
}
