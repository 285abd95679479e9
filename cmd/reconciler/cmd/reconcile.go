package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ledger-reconciliation-service/cmd/reconciler/config"
	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/internal/parsers"
	"ledger-reconciliation-service/internal/reconciler"
	"ledger-reconciliation-service/internal/reporter"
	"ledger-reconciliation-service/internal/store"
	"ledger-reconciliation-service/pkg/logger"
)

// Flags for the reconcile command
var (
	transactionsFile string
	ledgerFile       string
	dbPath           string
	outputFormat     string
	outputFile       string
	profile          string

	amountTolerance   float64
	dateWindowDays    int
	fuzzyThreshold    float64
	partialMaxEntries int
	minScore          float64
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Match transactions against ledger entries",
	Long: `Reconcile loads a transaction pool and a ledger pool from CSV files,
runs all four matching strategies, and reports the committed proposals.

Already-reconciled ledger entries are excluded from the pool. With --db,
proposals are persisted as pending for later review and re-running against
the same database only matches records not already held by a pending or
approved proposal.

Examples:
  # One-shot reconciliation to the console
  reconciler reconcile -t txns.csv -l ledger.csv

  # Persist proposals for review
  reconciler reconcile -t txns.csv -l ledger.csv --db recon.db

  # Tighter matching, JSON report to a file
  reconciler reconcile -t txns.csv -l ledger.csv --profile strict \
    --output-format json --output-file report.json`,

	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringVarP(&transactionsFile, "transactions-file", "t", "", "path to transaction CSV file (required)")
	reconcileCmd.Flags().StringVarP(&ledgerFile, "ledger-file", "l", "", "path to ledger entry CSV file (required)")
	reconcileCmd.Flags().StringVar(&dbPath, "db", "", "SQLite database for persisting proposals (optional)")

	reconcileCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv")
	reconcileCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")

	reconcileCmd.Flags().StringVar(&profile, "profile", "default", "matching profile: default, strict, relaxed")
	reconcileCmd.Flags().Float64VarP(&amountTolerance, "amount-tolerance", "a", -1, "absolute amount tolerance (e.g. 0.01)")
	reconcileCmd.Flags().IntVarP(&dateWindowDays, "date-window", "d", 0, "windowed matching span in days")
	reconcileCmd.Flags().Float64Var(&fuzzyThreshold, "fuzzy-threshold", -1, "minimum description similarity (0-1)")
	reconcileCmd.Flags().IntVar(&partialMaxEntries, "partial-max-entries", 0, "max ledger entries per partial match")
	reconcileCmd.Flags().Float64Var(&minScore, "min-score", -1, "commit threshold on the strategy score (0-1)")

	reconcileCmd.MarkFlagRequired("transactions-file")
	reconcileCmd.MarkFlagRequired("ledger-file")

	viper.BindPFlag("transactions-file", reconcileCmd.Flags().Lookup("transactions-file"))
	viper.BindPFlag("ledger-file", reconcileCmd.Flags().Lookup("ledger-file"))
	viper.BindPFlag("db", reconcileCmd.Flags().Lookup("db"))
	viper.BindPFlag("output-format", reconcileCmd.Flags().Lookup("output-format"))
	viper.BindPFlag("output-file", reconcileCmd.Flags().Lookup("output-file"))
	viper.BindPFlag("profile", reconcileCmd.Flags().Lookup("profile"))
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	// Viper values allow config file and environment overrides.
	transactionsFile = viper.GetString("transactions-file")
	ledgerFile = viper.GetString("ledger-file")
	dbPath = viper.GetString("db")
	outputFormat = viper.GetString("output-format")
	outputFile = viper.GetString("output-file")
	profile = viper.GetString("profile")

	if transactionsFile == "" {
		return fmt.Errorf("transactions-file is required")
	}
	if ledgerFile == "" {
		return fmt.Errorf("ledger-file is required")
	}

	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	log := logger.GetGlobalLogger().WithComponent("cli")

	engineConfig, err := config.CreateEngineConfig(profile, config.EngineOverrides{
		AmountTolerance:   amountTolerance,
		DateWindowDays:    dateWindowDays,
		FuzzyThreshold:    fuzzyThreshold,
		PartialMaxEntries: partialMaxEntries,
		MinScore:          minScore,
	})
	if err != nil {
		return err
	}

	engine, err := reconciler.NewEngine(engineConfig)
	if err != nil {
		return err
	}

	transactions, txnStats, err := parsers.ParseTransactionsFile(ctx, transactionsFile)
	if err != nil {
		return err
	}
	log.WithField("file", transactionsFile).Info("Loaded transactions: " + txnStats.Summary())
	reportSkips(txnStats)

	entries, ledgerStats, err := parsers.ParseLedgerFile(ctx, ledgerFile)
	if err != nil {
		return err
	}
	log.WithField("file", ledgerFile).Info("Loaded ledger entries: " + ledgerStats.Summary())
	reportSkips(ledgerStats)

	var proposalStore *store.Store
	if dbPath != "" {
		proposalStore, err = store.NewStore(dbPath)
		if err != nil {
			return err
		}
		defer proposalStore.Close()

		if err := proposalStore.SaveTransactions(ctx, transactions); err != nil {
			return err
		}
		if err := proposalStore.SaveLedgerEntries(ctx, entries); err != nil {
			return err
		}

		// The store knows which records earlier runs already claimed.
		if transactions, err = proposalStore.UnmatchedTransactions(ctx); err != nil {
			return err
		}
		if entries, err = proposalStore.UnreconciledLedgerEntries(ctx); err != nil {
			return err
		}
	} else {
		entries = filterUnreconciled(entries)
	}

	result, err := engine.Run(ctx, transactions, entries)
	if err != nil {
		return err
	}

	if proposalStore != nil {
		if err := proposalStore.SaveProposals(ctx, result.Proposals); err != nil {
			return err
		}
	}

	return writeReport(result)
}

// filterUnreconciled drops entries already marked reconciled when no store is
// mediating the pool.
func filterUnreconciled(entries []*models.LedgerEntry) []*models.LedgerEntry {
	eligible := entries[:0]
	for _, entry := range entries {
		if !entry.Reconciled {
			eligible = append(eligible, entry)
		}
	}
	return eligible
}

func reportSkips(stats *parsers.ParseStats) {
	for _, skip := range stats.Skipped {
		fmt.Fprintf(os.Stderr, "skipped row: %s\n", skip.Message)
	}
}

func writeReport(result *reconciler.RunResult) error {
	reportConfig, err := config.CreateReportConfig(outputFormat)
	if err != nil {
		return err
	}

	generator, err := reporter.NewReportGenerator(reportConfig)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if outputFile != "" {
		file, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer file.Close()
		out = file
	}

	return generator.GenerateReport(result, out)
}
