package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/internal/store"
)

// Flags for the review and proposals commands
var (
	reviewDBPath string
	verdict      string
	reviewer     string
	reviewNotes  string

	listDBPath string
	listStatus string
)

// reviewCmd transitions one pending proposal.
var reviewCmd = &cobra.Command{
	Use:   "review <proposal-id>",
	Short: "Approve or reject a pending proposal",
	Long: `Review transitions a pending proposal to approved or rejected.

Approval marks the proposal's ledger entries as reconciled; they never
re-enter a matching pool. Rejection releases both the transaction and the
ledger entries back into future pools. Each proposal can be reviewed
exactly once.

Examples:
  reconciler review 4f7c... --db recon.db --verdict approved --reviewer alice
  reconciler review 4f7c... --db recon.db --verdict rejected --reviewer bob \
    --notes "amounts match but wrong counterparty"`,

	Args: cobra.ExactArgs(1),
	RunE: runReview,
}

// proposalsCmd lists persisted proposals.
var proposalsCmd = &cobra.Command{
	Use:   "proposals",
	Short: "List persisted proposals",
	Long: `Proposals lists persisted proposals, optionally filtered by status.

Examples:
  reconciler proposals --db recon.db
  reconciler proposals --db recon.db --status pending`,

	RunE: runListProposals,
}

func init() {
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(proposalsCmd)

	reviewCmd.Flags().StringVar(&reviewDBPath, "db", "", "SQLite database holding proposals (required)")
	reviewCmd.Flags().StringVar(&verdict, "verdict", "", "review verdict: approved or rejected (required)")
	reviewCmd.Flags().StringVar(&reviewer, "reviewer", "", "reviewer identity (required)")
	reviewCmd.Flags().StringVar(&reviewNotes, "notes", "", "free-form review notes")
	reviewCmd.MarkFlagRequired("db")
	reviewCmd.MarkFlagRequired("verdict")
	reviewCmd.MarkFlagRequired("reviewer")

	proposalsCmd.Flags().StringVar(&listDBPath, "db", "", "SQLite database holding proposals (required)")
	proposalsCmd.Flags().StringVar(&listStatus, "status", "", "filter by status: pending, approved, rejected")
	proposalsCmd.MarkFlagRequired("db")
}

func runReview(cmd *cobra.Command, args []string) error {
	proposalID := args[0]

	proposalStore, err := store.NewStore(reviewDBPath)
	if err != nil {
		return err
	}
	defer proposalStore.Close()

	p, err := proposalStore.Review(context.Background(), proposalID,
		models.ProposalStatus(verdict), reviewer, reviewNotes)
	if err != nil {
		return err
	}

	fmt.Printf("Proposal %s %s by %s\n", p.ID, p.Status, p.ReviewedBy)
	if p.Status == models.StatusApproved {
		fmt.Printf("Reconciled ledger entries: %s\n", strings.Join(p.LedgerEntryIDs, ", "))
	} else {
		fmt.Printf("Released back to pool: transaction %s, ledger entries %s\n",
			p.TransactionID, strings.Join(p.LedgerEntryIDs, ", "))
	}

	return nil
}

func runListProposals(cmd *cobra.Command, args []string) error {
	if listStatus != "" && !models.ProposalStatus(listStatus).IsValid() {
		return fmt.Errorf("invalid status %q (use pending, approved, or rejected)", listStatus)
	}

	proposalStore, err := store.NewStore(listDBPath)
	if err != nil {
		return err
	}
	defer proposalStore.Close()

	proposals, err := proposalStore.ListProposals(context.Background(), models.ProposalStatus(listStatus))
	if err != nil {
		return err
	}

	if len(proposals) == 0 {
		fmt.Println("No proposals found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTRANSACTION\tLEDGER\tTYPE\tSCORE\tSTATUS")
	for _, p := range proposals {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.3f\t%s\n",
			p.ID, p.TransactionID, strings.Join(p.LedgerEntryIDs, "+"),
			p.MatchType, p.MatchScore, p.Status)
	}
	return w.Flush()
}
