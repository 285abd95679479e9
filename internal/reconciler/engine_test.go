package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger-reconciliation-service/internal/matcher"
	"ledger-reconciliation-service/internal/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func txn(id string, amount float64, d time.Time, desc string) *models.Transaction {
	return &models.Transaction{
		ID:          id,
		Amount:      decimal.NewFromFloat(amount),
		Date:        d,
		Description: desc,
	}
}

func entry(id string, amount float64, d time.Time, memo string) *models.LedgerEntry {
	return &models.LedgerEntry{
		ID:     id,
		Amount: decimal.NewFromFloat(amount),
		Date:   d,
		Memo:   memo,
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(nil)
	require.NoError(t, err)
	return engine
}

func TestNewEngine(t *testing.T) {
	t.Run("nil config uses defaults", func(t *testing.T) {
		engine, err := NewEngine(nil)
		require.NoError(t, err)
		assert.Equal(t, 5, engine.Config().DateWindowDays)
	})

	t.Run("invalid config rejected", func(t *testing.T) {
		cfg := matcher.DefaultEngineConfig()
		cfg.AmountTolerance = decimal.NewFromFloat(-1)
		_, err := NewEngine(cfg)
		require.Error(t, err)
	})

	t.Run("config is copied", func(t *testing.T) {
		cfg := matcher.DefaultEngineConfig()
		engine, err := NewEngine(cfg)
		require.NoError(t, err)

		cfg.DateWindowDays = 99
		assert.Equal(t, 5, engine.Config().DateWindowDays)
	})
}

func TestRunExactMatch(t *testing.T) {
	engine := newTestEngine(t)
	d := date(2024, 1, 15)

	result, err := engine.Run(context.Background(),
		[]*models.Transaction{txn("T1", 100.00, d, "Coffee expense")},
		[]*models.LedgerEntry{entry("L1", 100.00, d, "Coffee expense")})
	require.NoError(t, err)

	require.Len(t, result.Proposals, 1)
	p := result.Proposals[0]
	assert.Equal(t, models.MatchExact, p.MatchType)
	assert.Equal(t, 1.0, p.MatchScore)
	assert.Equal(t, "T1", p.TransactionID)
	assert.Equal(t, []string{"L1"}, p.LedgerEntryIDs)
	assert.Equal(t, models.StatusPending, p.Status)
	assert.NotEmpty(t, p.ID)
	assert.NotEmpty(t, p.Explanation)

	assert.Equal(t, 1, result.Summary.ExactCount)
	assert.Equal(t, 1.0, result.Summary.AutoMatchRate)
}

func TestRunWindowedMatch(t *testing.T) {
	engine := newTestEngine(t)

	result, err := engine.Run(context.Background(),
		[]*models.Transaction{txn("T1", 100.00, date(2024, 1, 15), "")},
		[]*models.LedgerEntry{entry("L1", 100.00, date(2024, 1, 18), "")})
	require.NoError(t, err)

	require.Len(t, result.Proposals, 1)
	p := result.Proposals[0]
	assert.Equal(t, models.MatchWindowed, p.MatchType)
	assert.GreaterOrEqual(t, p.MatchScore, 0.7)
	assert.LessOrEqual(t, p.MatchScore, 0.9)
	assert.Equal(t, 3, p.DateDifferenceDays)
}

func TestRunPartialMatch(t *testing.T) {
	engine := newTestEngine(t)
	d := date(2024, 1, 15)

	result, err := engine.Run(context.Background(),
		[]*models.Transaction{txn("T1", 100.00, d, "")},
		[]*models.LedgerEntry{
			entry("L1", 60.00, d, ""),
			entry("L2", 40.00, d, ""),
		})
	require.NoError(t, err)

	require.Len(t, result.Proposals, 1)
	p := result.Proposals[0]
	assert.Equal(t, models.MatchPartial, p.MatchType)
	assert.Equal(t, 0.5, p.MatchScore)
	assert.ElementsMatch(t, []string{"L1", "L2"}, p.LedgerEntryIDs)
	assert.LessOrEqual(t, len(p.LedgerEntryIDs), engine.Config().PartialMaxEntries)
	assert.True(t, p.AmountDifference.LessThanOrEqual(engine.Config().AmountTolerance))
}

func TestRunEmptyDescriptionNeverFuzzyMatches(t *testing.T) {
	engine := newTestEngine(t)

	// Amounts differ, dates far apart: only fuzzy could conceivably fire,
	// and it must not with an empty description.
	result, err := engine.Run(context.Background(),
		[]*models.Transaction{txn("T1", 100.00, date(2024, 1, 15), "")},
		[]*models.LedgerEntry{entry("L1", 73.00, date(2024, 3, 1), "Coffee expense")})
	require.NoError(t, err)

	assert.Empty(t, result.Proposals)
	assert.Equal(t, []string{"T1"}, result.UnmatchedTransactionIDs)
}

func TestRunExclusiveAssignment(t *testing.T) {
	engine := newTestEngine(t)
	d := date(2024, 1, 15)

	result, err := engine.Run(context.Background(),
		[]*models.Transaction{
			txn("T1", 100.00, d, ""),
			txn("T2", 100.00, d, ""),
		},
		[]*models.LedgerEntry{entry("L1", 100.00, d, "")})
	require.NoError(t, err)

	require.Len(t, result.Proposals, 1)
	assert.Equal(t, "T1", result.Proposals[0].TransactionID)
	assert.Equal(t, 1, result.Summary.UnmatchedCount)
	assert.Equal(t, []string{"T2"}, result.UnmatchedTransactionIDs)
}

func TestRunNoLedgerEntryConsumedTwice(t *testing.T) {
	engine := newTestEngine(t)
	d := date(2024, 1, 15)

	result, err := engine.Run(context.Background(),
		[]*models.Transaction{
			txn("T1", 100.00, d, ""),
			txn("T2", 60.00, d, ""),
			txn("T3", 40.00, d, ""),
		},
		[]*models.LedgerEntry{
			entry("L1", 60.00, d, ""),
			entry("L2", 40.00, d, ""),
		})
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, p := range result.Proposals {
		for _, id := range p.LedgerEntryIDs {
			assert.False(t, seen[id], "ledger entry %s consumed twice", id)
			seen[id] = true
		}
	}
}

func TestRunScoresWithinBounds(t *testing.T) {
	engine := newTestEngine(t)
	d := date(2024, 1, 15)

	result, err := engine.Run(context.Background(),
		[]*models.Transaction{
			txn("T1", 100.00, d, "Coffee expense"),
			txn("T2", 55.50, d.AddDate(0, 0, 2), "Office rent payment"),
			txn("T3", 200.00, d, ""),
		},
		[]*models.LedgerEntry{
			entry("L1", 100.00, d, "Coffee expense"),
			entry("L2", 55.50, d, "Office rent payment"),
			entry("L3", 120.00, d, ""),
			entry("L4", 80.00, d, ""),
		})
	require.NoError(t, err)

	require.NotEmpty(t, result.Proposals)
	for _, p := range result.Proposals {
		assert.GreaterOrEqual(t, p.MatchScore, 0.0)
		assert.LessOrEqual(t, p.MatchScore, 1.0)
		assert.GreaterOrEqual(t, p.WeightedScore, 0.0)
		assert.LessOrEqual(t, p.WeightedScore, 1.0)
		assert.GreaterOrEqual(t, p.MatchScore, engine.Config().MinScore)
		require.NoError(t, p.Validate())
	}
}

func TestRunBelowThresholdNotCommitted(t *testing.T) {
	cfg := matcher.DefaultEngineConfig()
	cfg.MinScore = 0.6

	engine, err := NewEngine(cfg)
	require.NoError(t, err)
	d := date(2024, 1, 15)

	// Only a two-entry partial (strategy score 0.5) is possible; it falls
	// below the raised threshold.
	result, err := engine.Run(context.Background(),
		[]*models.Transaction{txn("T1", 100.00, d, "")},
		[]*models.LedgerEntry{
			entry("L1", 60.00, d, ""),
			entry("L2", 40.00, d, ""),
		})
	require.NoError(t, err)

	assert.Empty(t, result.Proposals)
	assert.Equal(t, 1, result.Summary.UnmatchedCount)
}

func TestRunPrefersExactOverFuzzy(t *testing.T) {
	engine := newTestEngine(t)
	d := date(2024, 1, 15)

	// L1 matches on text only; L2 matches exactly on amount and date.
	result, err := engine.Run(context.Background(),
		[]*models.Transaction{txn("T1", 100.00, d, "Coffee expense")},
		[]*models.LedgerEntry{
			entry("L1", 95.00, d, "Coffee expense"),
			entry("L2", 100.00, d, "posting ref 99887766"),
		})
	require.NoError(t, err)

	require.Len(t, result.Proposals, 1)
	assert.Equal(t, models.MatchExact, result.Proposals[0].MatchType)
	assert.Equal(t, []string{"L2"}, result.Proposals[0].LedgerEntryIDs)
}

func TestRunFuzzyTrustingWeightsCanOutrankExact(t *testing.T) {
	cfg := matcher.DefaultEngineConfig()
	cfg.Weights = matcher.StrategyWeights{Exact: 0.1, Windowed: 0.1, Fuzzy: 0.9, Partial: 0.1}

	engine, err := NewEngine(cfg)
	require.NoError(t, err)
	d := date(2024, 1, 15)

	// L1 carries an exact hit and a perfect fuzzy hit; L2 only a weaker
	// fuzzy hit. Under fuzzy-trusting weights L1's fuzzy candidate must
	// win the ranking, so every strategy has to be consulted for an entry
	// even when exact already matched it.
	result, err := engine.Run(context.Background(),
		[]*models.Transaction{txn("T1", 100.00, d, "Coffee expense")},
		[]*models.LedgerEntry{
			entry("L1", 100.00, d, "Coffee expense"),
			entry("L2", 60.00, d, "Coffee expense"),
		})
	require.NoError(t, err)

	require.Len(t, result.Proposals, 1)
	p := result.Proposals[0]
	assert.Equal(t, []string{"L1"}, p.LedgerEntryIDs)
	assert.Equal(t, models.MatchFuzzy, p.MatchType)
}

func TestRunDeterministicAcrossPoolOrder(t *testing.T) {
	engine := newTestEngine(t)
	d := date(2024, 1, 15)

	entries := func(reversed bool) []*models.LedgerEntry {
		pool := []*models.LedgerEntry{
			entry("L1", 100.00, d, ""),
			entry("L2", 100.00, d, ""),
		}
		if reversed {
			pool[0], pool[1] = pool[1], pool[0]
		}
		return pool
	}

	first, err := engine.Run(context.Background(),
		[]*models.Transaction{txn("T1", 100.00, d, "")}, entries(false))
	require.NoError(t, err)
	second, err := engine.Run(context.Background(),
		[]*models.Transaction{txn("T1", 100.00, d, "")}, entries(true))
	require.NoError(t, err)

	require.Len(t, first.Proposals, 1)
	require.Len(t, second.Proposals, 1)
	assert.Equal(t, first.Proposals[0].LedgerEntryIDs, second.Proposals[0].LedgerEntryIDs)
}

func TestRunCancelledContext(t *testing.T) {
	engine := newTestEngine(t)
	d := date(2024, 1, 15)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := engine.Run(ctx,
		[]*models.Transaction{txn("T1", 100.00, d, "")},
		[]*models.LedgerEntry{entry("L1", 100.00, d, "")})
	require.Error(t, err)
	assert.Nil(t, result)
}

func TestRunEmptyPools(t *testing.T) {
	engine := newTestEngine(t)

	result, err := engine.Run(context.Background(), nil, nil)
	require.NoError(t, err)

	assert.Empty(t, result.Proposals)
	assert.Equal(t, 0, result.Summary.TotalTransactions)
	assert.Equal(t, 0.0, result.Summary.AutoMatchRate)
}

func TestRunSummaryAccounting(t *testing.T) {
	engine := newTestEngine(t)
	d := date(2024, 1, 15)

	result, err := engine.Run(context.Background(),
		[]*models.Transaction{
			txn("T1", 100.00, d, ""),                   // exact
			txn("T2", 50.00, d, ""),                    // windowed (3 days)
			txn("T3", 999.00, d, ""),                   // unmatched
		},
		[]*models.LedgerEntry{
			entry("L1", 100.00, d, ""),
			entry("L2", 50.00, d.AddDate(0, 0, 3), ""),
		})
	require.NoError(t, err)

	s := result.Summary
	assert.Equal(t, 3, s.TotalTransactions)
	assert.Equal(t, 2, s.MatchedCount)
	assert.Equal(t, 1, s.UnmatchedCount)
	assert.Equal(t, 1, s.ExactCount)
	assert.Equal(t, 1, s.WindowedCount)
	assert.InDelta(t, 2.0/3.0, s.AutoMatchRate, 1e-9)
	assert.Equal(t, "150", s.TotalAmountMatched.String())
	assert.Equal(t, "999", s.TotalAmountUnmatched.String())

	counts := s.MatchTypeCounts()
	assert.Equal(t, 1, counts[models.MatchExact])
	assert.Equal(t, 1, counts[models.MatchWindowed])
	assert.Equal(t, 0, counts[models.MatchFuzzy])
	assert.Equal(t, 0, counts[models.MatchPartial])
}
