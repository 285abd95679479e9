package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/pkg/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := NewStore(filepath.Join(t.TempDir(), "recon.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testTxn(id string, amount float64) *models.Transaction {
	return &models.Transaction{
		ID:          id,
		Amount:      decimal.NewFromFloat(amount),
		Date:        time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Description: "test transaction",
	}
}

func testEntry(id string, amount float64) *models.LedgerEntry {
	return &models.LedgerEntry{
		ID:     id,
		Amount: decimal.NewFromFloat(amount),
		Date:   time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Memo:   "test entry",
	}
}

func testProposal(id, txnID string, entryIDs ...string) *models.ReconciliationProposal {
	return &models.ReconciliationProposal{
		ID:             id,
		TransactionID:  txnID,
		LedgerEntryIDs: entryIDs,
		MatchType:      models.MatchExact,
		MatchScore:     1.0,
		WeightedScore:  0.5,
		Status:         models.StatusPending,
		CreatedAt:      time.Now().UTC(),
	}
}

func TestSavePoolsAndLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTransactions(ctx, []*models.Transaction{testTxn("T1", 100.00), testTxn("T2", 50.00)}))
	require.NoError(t, s.SaveLedgerEntries(ctx, []*models.LedgerEntry{testEntry("L1", 100.00)}))

	txns, err := s.UnmatchedTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "T1", txns[0].ID)
	assert.Equal(t, "100", txns[0].Amount.String())
	assert.Equal(t, "test transaction", txns[0].Description)

	entries, err := s.UnreconciledLedgerEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "L1", entries[0].ID)
	assert.False(t, entries[0].Reconciled)
}

func TestSavePoolsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, s.SaveTransactions(ctx, []*models.Transaction{testTxn("T1", 100.00)}))
		require.NoError(t, s.SaveLedgerEntries(ctx, []*models.LedgerEntry{testEntry("L1", 100.00)}))
	}

	txns, err := s.UnmatchedTransactions(ctx)
	require.NoError(t, err)
	assert.Len(t, txns, 1)

	entries, err := s.UnreconciledLedgerEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSaveProposalsAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sim := 0.93
	p := testProposal("P1", "T1", "L1", "L2")
	p.MatchType = models.MatchFuzzy
	p.MatchScore = 0.9
	p.WeightedScore = 0.18
	p.DescriptionSimilarity = &sim
	p.AmountDifference = decimal.NewFromFloat(0.01)
	p.DateDifferenceDays = 2
	p.Explanation = "Fuzzy match: 93% description similarity"

	require.NoError(t, s.SaveProposals(ctx, []*models.ReconciliationProposal{p}))

	got, err := s.GetProposal(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, "T1", got.TransactionID)
	assert.Equal(t, []string{"L1", "L2"}, got.LedgerEntryIDs)
	assert.Equal(t, models.MatchFuzzy, got.MatchType)
	assert.Equal(t, 0.9, got.MatchScore)
	assert.Equal(t, "0.01", got.AmountDifference.String())
	require.NotNil(t, got.DescriptionSimilarity)
	assert.Equal(t, 0.93, *got.DescriptionSimilarity)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Nil(t, got.ReviewedAt)
}

func TestGetProposalNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetProposal(context.Background(), "missing")
	require.Error(t, err)

	reconcilerErr, ok := errors.AsReconcilerError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeProposalNotFound, reconcilerErr.Code)
}

func TestSaveProposalsRejectsHeldEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveProposals(ctx, []*models.ReconciliationProposal{testProposal("P1", "T1", "L1")}))

	err := s.SaveProposals(ctx, []*models.ReconciliationProposal{testProposal("P2", "T2", "L1")})
	require.Error(t, err)

	reconcilerErr, ok := errors.AsReconcilerError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeWriteConflict, reconcilerErr.Code)

	// All-or-nothing: the failed batch left nothing behind.
	_, err = s.GetProposal(ctx, "P2")
	assert.Error(t, err)
}

func TestPendingProposalsExcludeRecordsFromPools(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTransactions(ctx, []*models.Transaction{testTxn("T1", 100.00), testTxn("T2", 50.00)}))
	require.NoError(t, s.SaveLedgerEntries(ctx, []*models.LedgerEntry{testEntry("L1", 100.00), testEntry("L2", 50.00)}))
	require.NoError(t, s.SaveProposals(ctx, []*models.ReconciliationProposal{testProposal("P1", "T1", "L1")}))

	txns, err := s.UnmatchedTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "T2", txns[0].ID)

	entries, err := s.UnreconciledLedgerEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "L2", entries[0].ID)
}

func TestReviewApprove(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTransactions(ctx, []*models.Transaction{testTxn("T1", 100.00)}))
	require.NoError(t, s.SaveLedgerEntries(ctx, []*models.LedgerEntry{testEntry("L1", 100.00)}))
	require.NoError(t, s.SaveProposals(ctx, []*models.ReconciliationProposal{testProposal("P1", "T1", "L1")}))

	p, err := s.Review(ctx, "P1", models.StatusApproved, "alice", "looks right")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, p.Status)
	assert.Equal(t, "alice", p.ReviewedBy)
	assert.Equal(t, "looks right", p.ReviewNotes)
	require.NotNil(t, p.ReviewedAt)

	// The approved pairing never re-enters a pool.
	txns, err := s.UnmatchedTransactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, txns)

	entries, err := s.UnreconciledLedgerEntries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReviewReject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTransactions(ctx, []*models.Transaction{testTxn("T1", 100.00)}))
	require.NoError(t, s.SaveLedgerEntries(ctx, []*models.LedgerEntry{testEntry("L1", 100.00)}))
	require.NoError(t, s.SaveProposals(ctx, []*models.ReconciliationProposal{testProposal("P1", "T1", "L1")}))

	p, err := s.Review(ctx, "P1", models.StatusRejected, "bob", "wrong counterparty")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, p.Status)

	// Rejection releases both sides back into the pools.
	txns, err := s.UnmatchedTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "T1", txns[0].ID)

	entries, err := s.UnreconciledLedgerEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "L1", entries[0].ID)
	assert.False(t, entries[0].Reconciled)
}

func TestReviewOnlyOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveProposals(ctx, []*models.ReconciliationProposal{testProposal("P1", "T1", "L1")}))

	_, err := s.Review(ctx, "P1", models.StatusApproved, "alice", "")
	require.NoError(t, err)

	_, err = s.Review(ctx, "P1", models.StatusRejected, "bob", "")
	require.Error(t, err)

	reconcilerErr, ok := errors.AsReconcilerError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeWriteConflict, reconcilerErr.Code)
}

func TestReviewInvalidVerdict(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Review(context.Background(), "P1", models.StatusPending, "alice", "")
	require.Error(t, err)

	reconcilerErr, ok := errors.AsReconcilerError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeInvalidVerdict, reconcilerErr.Code)
}

func TestReviewNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Review(context.Background(), "missing", models.StatusApproved, "alice", "")
	require.Error(t, err)

	reconcilerErr, ok := errors.AsReconcilerError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeProposalNotFound, reconcilerErr.Code)
}

func TestListProposals(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveProposals(ctx, []*models.ReconciliationProposal{
		testProposal("P1", "T1", "L1"),
		testProposal("P2", "T2", "L2"),
	}))
	_, err := s.Review(ctx, "P1", models.StatusApproved, "alice", "")
	require.NoError(t, err)

	all, err := s.ListProposals(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending, err := s.ListProposals(ctx, models.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "P2", pending[0].ID)

	approved, err := s.ListProposals(ctx, models.StatusApproved)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, "P1", approved[0].ID)
}

func TestReconciledEntriesStayReconciledOnReimport(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveLedgerEntries(ctx, []*models.LedgerEntry{testEntry("L1", 100.00)}))
	require.NoError(t, s.SaveProposals(ctx, []*models.ReconciliationProposal{testProposal("P1", "T1", "L1")}))
	_, err := s.Review(ctx, "P1", models.StatusApproved, "alice", "")
	require.NoError(t, err)

	// Re-importing the same entry must not clear the reconciled flag.
	require.NoError(t, s.SaveLedgerEntries(ctx, []*models.LedgerEntry{testEntry("L1", 100.00)}))

	entries, err := s.UnreconciledLedgerEntries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
