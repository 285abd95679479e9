// Package reconciler drives a reconciliation run: it collects candidates from
// all four matching strategies against the live ledger pool, ranks them under
// the configured strategy weights, and commits mutually exclusive proposals.
//
// A run is a single synchronous batch computation. Assignment is greedy in
// transaction-pool order: an earlier transaction can consume a ledger entry
// that would have produced a higher-scoring match for a later one. That is a
// deliberate simplicity/throughput tradeoff, documented rather than hidden;
// the engine does not attempt globally optimal bipartite assignment.
//
// Example usage:
//
//	engine, err := reconciler.NewEngine(matcher.DefaultEngineConfig())
//	if err != nil { ... }
//	result, err := engine.Run(ctx, transactions, entries)
package reconciler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ledger-reconciliation-service/internal/matcher"
	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/pkg/errors"
	"ledger-reconciliation-service/pkg/logger"
)

// Engine runs reconciliation over pre-filtered pools of unreconciled
// transactions and ledger entries. It performs no filtering of its own; the
// caller scopes the pools by date range and account.
//
// Runs must not execute concurrently against overlapping pools without
// external mutual exclusion: interleaved pool mutation would break the
// exclusive-assignment guarantee.
type Engine struct {
	config *matcher.EngineConfig
	logger logger.Logger
}

// NewEngine creates an engine after validating the configuration. Invalid
// configuration is rejected here, before any matching can begin.
func NewEngine(config *matcher.EngineConfig) (*Engine, error) {
	if config == nil {
		config = matcher.DefaultEngineConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "engine_config", config.String(), err)
	}

	return &Engine{
		config: config.Clone(),
		logger: logger.GetGlobalLogger().WithComponent("reconciliation_engine"),
	}, nil
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() *matcher.EngineConfig {
	return e.config.Clone()
}

// Run executes one reconciliation pass and returns the committed proposals
// with summary statistics. Inputs are read-only; the only state mutated is
// the run-local ledger pool. Cancelling the context aborts the run with no
// partial result.
func (e *Engine) Run(ctx context.Context, transactions []*models.Transaction, entries []*models.LedgerEntry) (*RunResult, error) {
	startTime := time.Now()

	e.logger.WithFields(logger.Fields{
		"transactions":   len(transactions),
		"ledger_entries": len(entries),
	}).Info("Starting reconciliation run")

	// Live pool, mutated as entries are consumed.
	pool := make([]*models.LedgerEntry, len(entries))
	copy(pool, entries)

	var proposals []*models.ReconciliationProposal

	for _, txn := range transactions {
		if err := ctx.Err(); err != nil {
			return nil, errors.ReconciliationError(errors.CodeRunAborted, "matching", err)
		}

		best := e.bestCandidate(txn, pool)
		if best == nil {
			e.logger.WithField("transaction_id", txn.ID).Debug("No candidate above threshold")
			continue
		}

		proposals = append(proposals, e.buildProposal(txn, best))
		pool = removeEntries(pool, best.LedgerEntryIDs)

		e.logger.WithFields(logger.Fields{
			"transaction_id": txn.ID,
			"ledger_ids":     best.LedgerEntryIDs,
			"match_type":     best.Strategy,
			"score":          best.StrategyScore(),
		}).Debug("Committed proposal")
	}

	result := buildRunResult(proposals, len(transactions), transactions, time.Since(startTime))

	e.logger.WithFields(logger.Fields{
		"proposals":       len(proposals),
		"auto_match_rate": result.Summary.AutoMatchRate,
		"unmatched":       result.Summary.UnmatchedCount,
		"duration":        result.Summary.Duration,
	}).Info("Reconciliation run completed")

	return result, nil
}

// bestCandidate collects candidates from all four strategies against the
// current pool, ranks them by weighted score, and returns the winner when its
// strategy score clears the commit threshold.
func (e *Engine) bestCandidate(txn *models.Transaction, pool []*models.LedgerEntry) *matcher.MatchCandidate {
	var candidates []*matcher.MatchCandidate

	// Every strategy is consulted for every entry; the weighted ranking,
	// not collection order, decides which candidate wins.
	for _, entry := range pool {
		if c := matcher.MatchExact(txn, entry, e.config.AmountTolerance); c != nil {
			candidates = append(candidates, c)
		}

		if c := matcher.MatchWindowed(txn, entry, e.config.AmountTolerance, e.config.DateWindowDays); c != nil {
			candidates = append(candidates, c)
		}

		if c := matcher.MatchFuzzy(txn, entry, e.config.FuzzyThreshold); c != nil {
			candidates = append(candidates, c)
		}
	}

	candidates = append(candidates, matcher.MatchPartial(
		txn, pool, e.config.AmountTolerance, e.config.PartialMaxEntries, e.config.PartialCandidateLimit)...)

	var best *matcher.MatchCandidate
	for _, c := range candidates {
		if best == nil || c.Less(best, e.config.Weights) {
			best = c
		}
	}

	if best == nil || best.StrategyScore() < e.config.MinScore {
		return nil
	}

	return best
}

func (e *Engine) buildProposal(txn *models.Transaction, c *matcher.MatchCandidate) *models.ReconciliationProposal {
	return &models.ReconciliationProposal{
		ID:                    uuid.NewString(),
		TransactionID:         txn.ID,
		LedgerEntryIDs:        c.LedgerEntryIDs,
		MatchType:             c.Strategy,
		MatchScore:            c.StrategyScore(),
		WeightedScore:         c.WeightedScore(e.config.Weights),
		AmountDifference:      c.AmountDifference,
		DateDifferenceDays:    c.DateDifferenceDays,
		DescriptionSimilarity: c.Similarity,
		Explanation:           c.Explanation,
		Status:                models.StatusPending,
		CreatedAt:             time.Now().UTC(),
	}
}

// removeEntries drops the consumed entries from the pool, preserving order.
func removeEntries(pool []*models.LedgerEntry, consumed []string) []*models.LedgerEntry {
	consumedSet := make(map[string]bool, len(consumed))
	for _, id := range consumed {
		consumedSet[id] = true
	}

	remaining := pool[:0]
	for _, entry := range pool {
		if !consumedSet[entry.ID] {
			remaining = append(remaining, entry)
		}
	}
	return remaining
}
