package matcher

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"ledger-reconciliation-service/internal/models"
)

// MatchPartial searches for combinations of ledger entries whose summed
// absolute amounts land within tolerance of the transaction's absolute
// amount, modeling a single payment recorded as several split postings.
//
// Candidate entries are filtered on combination feasibility: any entry whose
// absolute amount already exceeds the target plus tolerance can never be part
// of a valid combination. The feasible set is capped at candidateLimit
// (largest amounts kept) to bound the C(n, k) enumeration, and combination
// sizes run from 1 to maxEntries. Each accepted combination scores 1/size, so
// fewer consumed entries are preferred and many-entry coincidental sums rank
// below genuine one-to-one matches.
func MatchPartial(txn *models.Transaction, pool []*models.LedgerEntry, tolerance decimal.Decimal, maxEntries, candidateLimit int) []*MatchCandidate {
	target := txn.Amount.Abs()
	ceiling := target.Add(tolerance)

	var feasible []*models.LedgerEntry
	for _, entry := range pool {
		if entry.AbsAmount().LessThanOrEqual(ceiling) {
			feasible = append(feasible, entry)
		}
	}

	if len(feasible) == 0 {
		return nil
	}

	// Largest amounts first: they shorten combinations and let the sum
	// enumeration prune early. Ties break on ID for determinism.
	sort.Slice(feasible, func(i, j int) bool {
		a, b := feasible[i].AbsAmount(), feasible[j].AbsAmount()
		if !a.Equal(b) {
			return a.GreaterThan(b)
		}
		return feasible[i].ID < feasible[j].ID
	})

	if len(feasible) > candidateLimit {
		feasible = feasible[:candidateLimit]
	}

	if maxEntries > len(feasible) {
		maxEntries = len(feasible)
	}

	var candidates []*MatchCandidate
	combo := make([]*models.LedgerEntry, 0, maxEntries)

	var enumerate func(start int, sum decimal.Decimal)
	enumerate = func(start int, sum decimal.Decimal) {
		if len(combo) > 0 {
			diff := sum.Sub(target).Abs()
			if diff.LessThanOrEqual(tolerance) {
				candidates = append(candidates, buildPartialCandidate(txn, combo, diff))
			}
		}

		if len(combo) == maxEntries {
			return
		}

		for i := start; i < len(feasible); i++ {
			next := sum.Add(feasible[i].AbsAmount())
			if next.GreaterThan(ceiling) {
				// Entries are sorted descending, so a smaller one
				// further along may still fit.
				continue
			}
			combo = append(combo, feasible[i])
			enumerate(i+1, next)
			combo = combo[:len(combo)-1]
		}
	}

	enumerate(0, decimal.Zero)
	return candidates
}

func buildPartialCandidate(txn *models.Transaction, combo []*models.LedgerEntry, diff decimal.Decimal) *MatchCandidate {
	ids := make([]string, len(combo))
	maxDateDiff := 0
	sum := decimal.Zero

	for i, entry := range combo {
		ids[i] = entry.ID
		sum = sum.Add(entry.AbsAmount())
		if d := models.DateDiffDays(txn.Date, entry.Date); d > maxDateDiff {
			maxDateDiff = d
		}
	}
	sort.Strings(ids)

	return &MatchCandidate{
		Strategy:           models.MatchPartial,
		LedgerEntryIDs:     ids,
		PartialScore:       1.0 / float64(len(combo)),
		AmountDifference:   diff,
		DateDifferenceDays: maxDateDiff,
		Explanation: fmt.Sprintf("Partial match: %d entries (%s) summing to %s against %s",
			len(combo), strings.Join(ids, ", "), sum, txn.Amount.Abs()),
	}
}
