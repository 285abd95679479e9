package matcher

import (
	"github.com/shopspring/decimal"

	"ledger-reconciliation-service/internal/models"
)

// MatchCandidate is an ephemeral, engine-internal proposal for one
// transaction produced by a single strategy. Exactly one of the four
// subscores is non-zero.
type MatchCandidate struct {
	Strategy       models.MatchType
	LedgerEntryIDs []string

	ExactScore    float64
	WindowedScore float64
	FuzzyScore    float64
	PartialScore  float64

	AmountDifference   decimal.Decimal
	DateDifferenceDays int
	// Similarity is set for fuzzy candidates only.
	Similarity *float64

	Explanation string
}

// StrategyScore returns the single non-zero subscore, i.e. the producing
// strategy's own confidence in this candidate.
func (c *MatchCandidate) StrategyScore() float64 {
	switch c.Strategy {
	case models.MatchExact:
		return c.ExactScore
	case models.MatchWindowed:
		return c.WindowedScore
	case models.MatchFuzzy:
		return c.FuzzyScore
	case models.MatchPartial:
		return c.PartialScore
	default:
		return 0.0
	}
}

// WeightedScore combines the candidate's subscores under the caller's
// strategy trust weights. Since exactly one subscore is non-zero this reduces
// to weight[strategy] x subscore; it is used to rank competing candidates for
// the same transaction.
func (c *MatchCandidate) WeightedScore(w StrategyWeights) float64 {
	return w.Exact*c.ExactScore +
		w.Windowed*c.WindowedScore +
		w.Fuzzy*c.FuzzyScore +
		w.Partial*c.PartialScore
}

// strategyPriority orders strategies for deterministic tie-breaking when
// weighted scores are equal.
func strategyPriority(t models.MatchType) int {
	switch t {
	case models.MatchExact:
		return 0
	case models.MatchWindowed:
		return 1
	case models.MatchFuzzy:
		return 2
	case models.MatchPartial:
		return 3
	default:
		return 4
	}
}

// Less reports whether c should rank ahead of other. Higher weighted score
// wins; ties fall to fewer consumed entries, then strategy priority, then the
// lowest first ledger ID, so a run's outcome never depends on pool ordering
// accidents.
func (c *MatchCandidate) Less(other *MatchCandidate, w StrategyWeights) bool {
	cs, os := c.WeightedScore(w), other.WeightedScore(w)
	if cs != os {
		return cs > os
	}

	if len(c.LedgerEntryIDs) != len(other.LedgerEntryIDs) {
		return len(c.LedgerEntryIDs) < len(other.LedgerEntryIDs)
	}

	if cp, op := strategyPriority(c.Strategy), strategyPriority(other.Strategy); cp != op {
		return cp < op
	}

	return c.LedgerEntryIDs[0] < other.LedgerEntryIDs[0]
}
