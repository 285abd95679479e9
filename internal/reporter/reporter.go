// Package reporter renders reconciliation run results for human and
// programmatic consumption.
//
// Supported output formats:
//   - Console: human-readable tabular output for terminal display
//   - JSON: structured data for programmatic consumption
//   - CSV: proposal rows for spreadsheet review
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/internal/reconciler"
)

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	IncludeProposals bool `json:"include_proposals"`
	IncludeUnmatched bool `json:"include_unmatched"`

	CSVHeaders bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:           FormatConsole,
		IncludeProposals: true,
		IncludeUnmatched: true,
		CSVHeaders:       true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	return nil
}

// ReportGenerator renders run results in the configured format
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{config: config}, nil
}

// GenerateReport renders the run result to the provided writer
func (rg *ReportGenerator) GenerateReport(result *reconciler.RunResult, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("run result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatCSV:
		return rg.generateCSVReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) generateConsoleReport(result *reconciler.RunResult, writer io.Writer) error {
	summary := result.Summary

	fmt.Fprintf(writer, "RECONCILIATION RUN REPORT\n")
	fmt.Fprintf(writer, "Generated: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(writer, "Run Duration: %v\n\n", summary.Duration)

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	fmt.Fprintf(writer, "%-28s %d\n", "Total Transactions:", summary.TotalTransactions)
	fmt.Fprintf(writer, "%-28s %d\n", "Matched:", summary.MatchedCount)
	fmt.Fprintf(writer, "%-28s %d\n", "Unmatched:", summary.UnmatchedCount)
	fmt.Fprintf(writer, "%-28s %.1f%%\n", "Auto-Match Rate:", summary.AutoMatchRate*100)
	fmt.Fprintf(writer, "%-28s %s\n", "Amount Matched:", summary.TotalAmountMatched.StringFixed(2))
	fmt.Fprintf(writer, "%-28s %s\n\n", "Amount Unmatched:", summary.TotalAmountUnmatched.StringFixed(2))

	fmt.Fprintf(writer, "=== STRATEGY BREAKDOWN ===\n")
	fmt.Fprintf(writer, "%-12s %d\n", "Exact:", summary.ExactCount)
	fmt.Fprintf(writer, "%-12s %d\n", "Windowed:", summary.WindowedCount)
	fmt.Fprintf(writer, "%-12s %d\n", "Fuzzy:", summary.FuzzyCount)
	fmt.Fprintf(writer, "%-12s %d\n\n", "Partial:", summary.PartialCount)

	if rg.config.IncludeProposals && len(result.Proposals) > 0 {
		fmt.Fprintf(writer, "=== PROPOSALS ===\n")
		fmt.Fprintf(writer, "%-38s %-12s %-10s %-8s %s\n",
			"TRANSACTION", "LEDGER", "TYPE", "SCORE", "EXPLANATION")
		for _, p := range result.Proposals {
			fmt.Fprintf(writer, "%-38s %-12s %-10s %-8.3f %s\n",
				p.TransactionID,
				strings.Join(p.LedgerEntryIDs, "+"),
				p.MatchType,
				p.MatchScore,
				p.Explanation)
		}
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeUnmatched && len(result.UnmatchedTransactionIDs) > 0 {
		fmt.Fprintf(writer, "=== UNMATCHED TRANSACTIONS ===\n")
		for _, id := range result.UnmatchedTransactionIDs {
			fmt.Fprintf(writer, "  %s\n", id)
		}
	}

	return nil
}

func (rg *ReportGenerator) generateJSONReport(result *reconciler.RunResult, writer io.Writer) error {
	out := *result
	if !rg.config.IncludeProposals {
		out.Proposals = nil
	}
	if !rg.config.IncludeUnmatched {
		out.UnmatchedTransactionIDs = nil
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(&out)
}

func (rg *ReportGenerator) generateCSVReport(result *reconciler.RunResult, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	defer csvWriter.Flush()

	if rg.config.CSVHeaders {
		headers := []string{
			"Proposal_ID",
			"Transaction_ID",
			"Ledger_Entry_IDs",
			"Match_Type",
			"Match_Score",
			"Weighted_Score",
			"Amount_Difference",
			"Date_Difference_Days",
			"Description_Similarity",
			"Status",
			"Explanation",
		}
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, p := range result.Proposals {
		similarity := ""
		if p.DescriptionSimilarity != nil {
			similarity = strconv.FormatFloat(*p.DescriptionSimilarity, 'f', 4, 64)
		}

		record := []string{
			p.ID,
			p.TransactionID,
			strings.Join(p.LedgerEntryIDs, ";"),
			string(p.MatchType),
			strconv.FormatFloat(p.MatchScore, 'f', 4, 64),
			strconv.FormatFloat(p.WeightedScore, 'f', 4, 64),
			p.AmountDifference.String(),
			strconv.Itoa(p.DateDifferenceDays),
			similarity,
			string(p.Status),
			p.Explanation,
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write proposal row: %w", err)
		}
	}

	if rg.config.IncludeUnmatched {
		for _, id := range result.UnmatchedTransactionIDs {
			record := []string{"", id, "", "unmatched", "", "", "", "", "", "", ""}
			if err := csvWriter.Write(record); err != nil {
				return fmt.Errorf("failed to write unmatched row: %w", err)
			}
		}
	}

	return nil
}

// FormatMatchTypeCounts renders the per-strategy breakdown as a stable,
// comma-separated string for log lines and summaries.
func FormatMatchTypeCounts(counts map[models.MatchType]int) string {
	order := []models.MatchType{
		models.MatchExact, models.MatchWindowed, models.MatchFuzzy, models.MatchPartial,
	}
	parts := make([]string, 0, len(order))
	for _, mt := range order {
		parts = append(parts, fmt.Sprintf("%s=%d", mt, counts[mt]))
	}
	return strings.Join(parts, ", ")
}
