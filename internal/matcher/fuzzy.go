package matcher

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"

	"ledger-reconciliation-service/internal/models"
)

// Cleaning patterns for description text. Dates, long numeric identifiers,
// and punctuation carry no matching signal and routinely differ between a
// bank feed and a ledger memo for the same event.
var (
	datePattern        = regexp.MustCompile(`\b\d{4}[-/]\d{1,2}[-/]\d{1,2}\b|\b\d{1,2}[-/]\d{1,2}[-/]\d{2,4}\b`)
	longNumberPattern  = regexp.MustCompile(`\d{6,}`)
	punctuationPattern = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
	whitespacePattern  = regexp.MustCompile(`\s+`)
)

// CleanDescription normalizes free text for similarity comparison:
// lower-cased, with dates, numeric identifiers of six or more digits, and
// punctuation stripped, and whitespace collapsed.
func CleanDescription(s string) string {
	s = strings.ToLower(s)
	s = datePattern.ReplaceAllString(s, " ")
	s = longNumberPattern.ReplaceAllString(s, " ")
	s = punctuationPattern.ReplaceAllString(s, " ")
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// TextSimilarity returns a normalized Levenshtein ratio in [0, 1] between two
// already-cleaned strings.
func TextSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	return levenshtein.RatioForStrings([]rune(a), []rune(b), levenshtein.DefaultOptions)
}

// MatchFuzzy returns a candidate when the cleaned transaction description and
// ledger memo are similar enough, folding in corroborating amount and date
// evidence:
//
//	score = 0.6*similarity + 0.3*amountScore + 0.1*dateScore
//
// Missing or empty text on either side is the normal negative result, never
// an error and never a guess.
func MatchFuzzy(txn *models.Transaction, entry *models.LedgerEntry, threshold float64) *MatchCandidate {
	desc := CleanDescription(txn.Description)
	memo := CleanDescription(entry.Memo)

	if desc == "" || memo == "" {
		return nil
	}

	similarity := TextSimilarity(desc, memo)
	if similarity < threshold {
		return nil
	}

	amountScore := fuzzyAmountScore(txn, entry)

	dateDiff := models.DateDiffDays(txn.Date, entry.Date)
	dateScore := 1.0 - float64(dateDiff)/30.0
	if dateScore < 0.0 {
		dateScore = 0.0
	}

	score := 0.6*similarity + 0.3*amountScore + 0.1*dateScore
	sim := similarity

	return &MatchCandidate{
		Strategy:           models.MatchFuzzy,
		LedgerEntryIDs:     []string{entry.ID},
		FuzzyScore:         score,
		AmountDifference:   txn.Amount.Abs().Sub(entry.Amount.Abs()).Abs(),
		DateDifferenceDays: dateDiff,
		Similarity:         &sim,
		Explanation: fmt.Sprintf("Fuzzy match: %.0f%% description similarity, amounts %s vs %s",
			similarity*100, txn.Amount.Abs(), entry.Amount.Abs()),
	}
}

// fuzzyAmountScore rewards amount closeness relative to the larger of the two
// amounts: 1 - diff/max(|txn|, |entry|). The denominator is floored so two
// zero amounts score as identical instead of dividing by zero.
func fuzzyAmountScore(txn *models.Transaction, entry *models.LedgerEntry) float64 {
	txnAbs := txn.Amount.Abs()
	entryAbs := entry.Amount.Abs()

	larger := txnAbs
	if entryAbs.GreaterThan(larger) {
		larger = entryAbs
	}

	if larger.IsZero() {
		return 1.0
	}

	diff := txnAbs.Sub(entryAbs).Abs()
	ratio, _ := diff.Div(larger).Float64()

	score := 1.0 - ratio
	if score < 0.0 {
		score = 0.0
	}
	return score
}
