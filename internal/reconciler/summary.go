package reconciler

import (
	"time"

	"github.com/shopspring/decimal"

	"ledger-reconciliation-service/internal/models"
)

// RunResult is the complete outcome of one reconciliation run: the committed
// proposals plus aggregate statistics. A run that commits zero proposals is a
// valid, fully-reported outcome.
type RunResult struct {
	Proposals []*models.ReconciliationProposal `json:"proposals"`
	Summary   RunSummary                       `json:"summary"`

	UnmatchedTransactionIDs []string `json:"unmatched_transaction_ids,omitempty"`
}

// RunSummary accumulates per-run statistics. Pure summarization; no
// decisions are made here.
type RunSummary struct {
	TotalTransactions int `json:"total_transactions"`
	MatchedCount      int `json:"matched_count"`
	UnmatchedCount    int `json:"unmatched_count"`

	ExactCount    int `json:"exact_count"`
	WindowedCount int `json:"windowed_count"`
	FuzzyCount    int `json:"fuzzy_count"`
	PartialCount  int `json:"partial_count"`

	// AutoMatchRate is the share of transactions matched by the two
	// high-confidence strategies (exact and windowed).
	AutoMatchRate float64 `json:"auto_match_rate"`

	TotalAmountMatched   decimal.Decimal `json:"total_amount_matched"`
	TotalAmountUnmatched decimal.Decimal `json:"total_amount_unmatched"`

	Duration time.Duration `json:"duration"`
}

// MatchTypeCounts returns the per-strategy committed counts keyed by match
// type, for callers that report the breakdown as a map.
func (s *RunSummary) MatchTypeCounts() map[models.MatchType]int {
	return map[models.MatchType]int{
		models.MatchExact:    s.ExactCount,
		models.MatchWindowed: s.WindowedCount,
		models.MatchFuzzy:    s.FuzzyCount,
		models.MatchPartial:  s.PartialCount,
	}
}

func buildRunResult(proposals []*models.ReconciliationProposal, total int, transactions []*models.Transaction, duration time.Duration) *RunResult {
	summary := RunSummary{
		TotalTransactions:    total,
		MatchedCount:         len(proposals),
		UnmatchedCount:       total - len(proposals),
		TotalAmountMatched:   decimal.Zero,
		TotalAmountUnmatched: decimal.Zero,
		Duration:             duration,
	}

	matchedTxns := make(map[string]bool, len(proposals))
	for _, p := range proposals {
		matchedTxns[p.TransactionID] = true

		switch p.MatchType {
		case models.MatchExact:
			summary.ExactCount++
		case models.MatchWindowed:
			summary.WindowedCount++
		case models.MatchFuzzy:
			summary.FuzzyCount++
		case models.MatchPartial:
			summary.PartialCount++
		}
	}

	if total > 0 {
		summary.AutoMatchRate = float64(summary.ExactCount+summary.WindowedCount) / float64(total)
	}

	var unmatchedIDs []string
	for _, txn := range transactions {
		if matchedTxns[txn.ID] {
			summary.TotalAmountMatched = summary.TotalAmountMatched.Add(txn.AbsAmount())
		} else {
			summary.TotalAmountUnmatched = summary.TotalAmountUnmatched.Add(txn.AbsAmount())
			unmatchedIDs = append(unmatchedIDs, txn.ID)
		}
	}

	return &RunResult{
		Proposals:               proposals,
		Summary:                 summary,
		UnmatchedTransactionIDs: unmatchedIDs,
	}
}
