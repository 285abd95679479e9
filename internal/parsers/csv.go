// Package parsers loads the two reconciliation pools from CSV exports.
// Malformed rows are skipped per record with a reported reason; a bad row is
// never coerced into a zero amount or a guessed date.
package parsers

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/pkg/errors"
)

// ParseStats reports what happened to each record of one input file.
type ParseStats struct {
	TotalLines   int
	RecordsValid int
	Skipped      []*errors.ReconcilerError
}

// AddSkip records one skipped row with its reason.
func (ps *ParseStats) AddSkip(err *errors.ReconcilerError) {
	ps.Skipped = append(ps.Skipped, err)
}

// SkipCount returns the number of skipped rows.
func (ps *ParseStats) SkipCount() int {
	return len(ps.Skipped)
}

// Summary returns a one-line description of the parse outcome.
func (ps *ParseStats) Summary() string {
	return fmt.Sprintf("%d rows read, %d valid, %d skipped",
		ps.TotalLines, ps.RecordsValid, ps.SkipCount())
}

// Transaction files carry these columns; counterparty is optional.
var transactionColumns = []string{"id", "amount", "date", "description"}

// Ledger files carry these columns; reference and reconciled are optional.
var ledgerColumns = []string{"id", "amount", "date", "memo"}

// ParseTransactionsFile loads the transaction pool from a CSV file with a
// header row. Required columns: id, amount, date, description. Optional:
// counterparty.
func ParseTransactionsFile(ctx context.Context, path string) ([]*models.Transaction, *ParseStats, error) {
	file, reader, err := openCSV(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	columns, err := readHeader(reader, path, transactionColumns)
	if err != nil {
		return nil, nil, err
	}

	stats := &ParseStats{}
	var txns []*models.Transaction

	err = forEachRecord(ctx, reader, path, stats, func(record []string, line int) {
		txn, parseErr := transactionFromRecord(record, columns, path, line)
		if parseErr != nil {
			stats.AddSkip(parseErr)
			return
		}
		txns = append(txns, txn)
		stats.RecordsValid++
	})
	if err != nil {
		return nil, stats, err
	}

	return txns, stats, nil
}

// ParseLedgerFile loads the ledger pool from a CSV file with a header row.
// Required columns: id, amount, date, memo. Optional: reference, reconciled.
func ParseLedgerFile(ctx context.Context, path string) ([]*models.LedgerEntry, *ParseStats, error) {
	file, reader, err := openCSV(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	columns, err := readHeader(reader, path, ledgerColumns)
	if err != nil {
		return nil, nil, err
	}

	stats := &ParseStats{}
	var entries []*models.LedgerEntry

	err = forEachRecord(ctx, reader, path, stats, func(record []string, line int) {
		entry, parseErr := ledgerEntryFromRecord(record, columns, path, line)
		if parseErr != nil {
			stats.AddSkip(parseErr)
			return
		}
		entries = append(entries, entry)
		stats.RecordsValid++
	})
	if err != nil {
		return nil, stats, err
	}

	return entries, stats, nil
}

func openCSV(path string) (*os.File, *csv.Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		if os.IsPermission(err) {
			return nil, nil, errors.FileError(errors.CodeFilePermission, path, err)
		}
		return nil, nil, errors.FileError(errors.CodeInvalidFormat, path, err)
	}

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	// Rows with missing trailing optional fields are handled per record.
	reader.FieldsPerRecord = -1

	return file, reader, nil
}

// readHeader maps column names to indexes, lower-cased, and verifies the
// required columns are all present.
func readHeader(reader *csv.Reader, path string, required []string) (map[string]int, error) {
	header, err := reader.Read()
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, path, 1, "", "", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}

	for _, name := range required {
		if _, ok := columns[name]; !ok {
			return nil, errors.ParseError(errors.CodeMissingColumn, path, 1, name, "", nil)
		}
	}

	return columns, nil
}

func forEachRecord(ctx context.Context, reader *csv.Reader, path string, stats *ParseStats, handle func(record []string, line int)) error {
	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return errors.ParseError(errors.CodeInvalidFormat, path, line, "", "", err).
				WithSuggestion("parsing was cancelled")
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			stats.TotalLines++
			stats.AddSkip(errors.ParseError(errors.CodeInvalidFormat, path, line, "", "", err))
			continue
		}

		stats.TotalLines++
		handle(record, line)
	}
	return nil
}

func field(record []string, columns map[string]int, name string) string {
	idx, ok := columns[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func transactionFromRecord(record []string, columns map[string]int, path string, line int) (*models.Transaction, *errors.ReconcilerError) {
	txn := &models.Transaction{
		ID:           field(record, columns, "id"),
		Description:  field(record, columns, "description"),
		Counterparty: field(record, columns, "counterparty"),
	}

	amountStr := field(record, columns, "amount")
	amount, err := models.ParseAmount(amountStr)
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidData, path, line, "amount", amountStr, err)
	}
	txn.Amount = amount

	dateStr := field(record, columns, "date")
	date, err := models.ParseDate(dateStr)
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidData, path, line, "date", dateStr, err)
	}
	txn.Date = date

	if err := txn.Validate(); err != nil {
		return nil, errors.ParseError(errors.CodeInvalidData, path, line, "id", txn.ID, err)
	}

	return txn, nil
}

func ledgerEntryFromRecord(record []string, columns map[string]int, path string, line int) (*models.LedgerEntry, *errors.ReconcilerError) {
	entry := &models.LedgerEntry{
		ID:        field(record, columns, "id"),
		Memo:      field(record, columns, "memo"),
		Reference: field(record, columns, "reference"),
	}

	amountStr := field(record, columns, "amount")
	amount, err := models.ParseAmount(amountStr)
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidData, path, line, "amount", amountStr, err)
	}
	entry.Amount = amount

	dateStr := field(record, columns, "date")
	date, err := models.ParseDate(dateStr)
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidData, path, line, "date", dateStr, err)
	}
	entry.Date = date

	switch reconciled := strings.ToLower(field(record, columns, "reconciled")); reconciled {
	case "", "0", "false", "no":
		entry.Reconciled = false
	case "1", "true", "yes":
		entry.Reconciled = true
	default:
		return nil, errors.ParseError(errors.CodeInvalidData, path, line, "reconciled", reconciled, nil)
	}

	if err := entry.Validate(); err != nil {
		return nil, errors.ParseError(errors.CodeInvalidData, path, line, "id", entry.ID, err)
	}

	return entry, nil
}
