// Package matcher implements the four reconciliation matching strategies and
// the unified scoring that merges them.
//
// Each strategy is a pure function scoring one transaction against ledger
// entry candidate(s) and returning a typed MatchCandidate or nothing:
//   - exact: same amount within tolerance, dates at most one day apart
//   - windowed: same amount within tolerance, dates within a wider window
//   - fuzzy: similar description text with corroborating amount/date evidence
//   - partial: a combination of ledger entries summing to the transaction
//
// Exactly one subscore is non-zero per candidate, so the weighted score
// reduces to weight[strategy] x subscore and the weights read directly as
// "how much this strategy is trusted".
//
// Example usage:
//
//	cfg := matcher.DefaultEngineConfig()
//	cfg.DateWindowDays = 7
//
//	if c := matcher.MatchExact(txn, entry, cfg.AmountTolerance); c != nil {
//		score := c.WeightedScore(cfg.Weights)
//		...
//	}
package matcher

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// EngineConfig holds the tunable parameters for a reconciliation run.
// Invalid configuration is a caller-input error surfaced by Validate before
// any matching begins, never a mid-run failure.
type EngineConfig struct {
	// AmountTolerance is the maximum absolute difference between compared
	// amounts for the exact, windowed, and partial strategies.
	AmountTolerance decimal.Decimal `json:"amount_tolerance"`

	// DateWindowDays is the maximum day-distance for the windowed strategy.
	DateWindowDays int `json:"date_window_days"`

	// FuzzyThreshold is the minimum description similarity (0.0 to 1.0)
	// required before a fuzzy candidate is produced.
	FuzzyThreshold float64 `json:"fuzzy_threshold"`

	// PartialMaxEntries caps the number of ledger entries one partial
	// combination may consume.
	PartialMaxEntries int `json:"partial_max_entries"`

	// PartialCandidateLimit caps the feasible set the partial matcher
	// enumerates combinations over, keeping C(n, k) tractable.
	PartialCandidateLimit int `json:"partial_candidate_limit"`

	// MinScore is the minimum strategy score a winning candidate needs
	// before the driver commits it.
	MinScore float64 `json:"min_score"`

	// Weights are the per-strategy trust weights used to rank candidates.
	Weights StrategyWeights `json:"weights"`
}

// StrategyWeights defines how much each matching strategy is trusted when
// ranking competing candidates. Weights need not sum to 1.0, but each must
// lie in [0, 1] so weighted scores stay in [0, 1].
type StrategyWeights struct {
	Exact    float64 `json:"exact"`
	Windowed float64 `json:"windowed"`
	Fuzzy    float64 `json:"fuzzy"`
	Partial  float64 `json:"partial"`
}

// DefaultEngineConfig returns the configuration used for routine runs.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		AmountTolerance:       decimal.NewFromFloat(0.01),
		DateWindowDays:        5,
		FuzzyThreshold:        0.85,
		PartialMaxEntries:     3,
		PartialCandidateLimit: 20,
		MinScore:              0.5,
		Weights: StrategyWeights{
			Exact:    0.5,
			Windowed: 0.2,
			Fuzzy:    0.2,
			Partial:  0.1,
		},
	}
}

// StrictEngineConfig returns a configuration for conservative matching:
// a narrow date window, high fuzzy bar, and no partial combinations.
func StrictEngineConfig() *EngineConfig {
	return &EngineConfig{
		AmountTolerance:       decimal.NewFromFloat(0.01),
		DateWindowDays:        3,
		FuzzyThreshold:        0.9,
		PartialMaxEntries:     1,
		PartialCandidateLimit: 10,
		MinScore:              0.8,
		Weights: StrategyWeights{
			Exact:    0.7,
			Windowed: 0.2,
			Fuzzy:    0.1,
			Partial:  0.0,
		},
	}
}

// RelaxedEngineConfig returns a configuration for exploratory matching over
// low-quality data.
func RelaxedEngineConfig() *EngineConfig {
	return &EngineConfig{
		AmountTolerance:       decimal.NewFromFloat(0.05),
		DateWindowDays:        10,
		FuzzyThreshold:        0.7,
		PartialMaxEntries:     4,
		PartialCandidateLimit: 30,
		MinScore:              0.4,
		Weights: StrategyWeights{
			Exact:    0.3,
			Windowed: 0.2,
			Fuzzy:    0.3,
			Partial:  0.2,
		},
	}
}

// Validate checks the configuration before a run starts.
func (c *EngineConfig) Validate() error {
	if c.AmountTolerance.IsNegative() {
		return fmt.Errorf("amount tolerance cannot be negative: %s", c.AmountTolerance)
	}

	if c.DateWindowDays < 1 {
		return fmt.Errorf("date window days must be at least 1: %d", c.DateWindowDays)
	}

	if c.FuzzyThreshold < 0.0 || c.FuzzyThreshold > 1.0 {
		return fmt.Errorf("fuzzy threshold must be between 0.0 and 1.0: %f", c.FuzzyThreshold)
	}

	if c.PartialMaxEntries < 1 {
		return fmt.Errorf("partial max entries must be at least 1: %d", c.PartialMaxEntries)
	}

	if c.PartialCandidateLimit < c.PartialMaxEntries {
		return fmt.Errorf("partial candidate limit must be at least partial max entries: %d < %d",
			c.PartialCandidateLimit, c.PartialMaxEntries)
	}

	if c.MinScore < 0.0 || c.MinScore > 1.0 {
		return fmt.Errorf("minimum score must be between 0.0 and 1.0: %f", c.MinScore)
	}

	if err := c.Weights.Validate(); err != nil {
		return fmt.Errorf("invalid weights: %w", err)
	}

	return nil
}

// Validate checks that each weight lies in [0, 1] and that at least one
// strategy carries weight.
func (w *StrategyWeights) Validate() error {
	for _, entry := range []struct {
		name  string
		value float64
	}{
		{"exact", w.Exact},
		{"windowed", w.Windowed},
		{"fuzzy", w.Fuzzy},
		{"partial", w.Partial},
	} {
		if entry.value < 0.0 || entry.value > 1.0 {
			return fmt.Errorf("%s weight must be between 0.0 and 1.0: %f", entry.name, entry.value)
		}
	}

	if w.Exact+w.Windowed+w.Fuzzy+w.Partial == 0.0 {
		return fmt.Errorf("weights cannot all be zero")
	}

	return nil
}

// Clone creates a deep copy of the configuration
func (c *EngineConfig) Clone() *EngineConfig {
	if c == nil {
		return nil
	}

	clone := *c
	return &clone
}

// String returns a human-readable description of the configuration
func (c *EngineConfig) String() string {
	return fmt.Sprintf("EngineConfig{AmountTolerance: %s, DateWindow: %dd, FuzzyThreshold: %.2f, PartialMax: %d, MinScore: %.2f}",
		c.AmountTolerance, c.DateWindowDays, c.FuzzyThreshold, c.PartialMaxEntries, c.MinScore)
}
