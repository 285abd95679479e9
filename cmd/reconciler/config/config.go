// Package config assembles engine and report configuration from CLI flags.
package config

import (
	"fmt"

	"github.com/shopspring/decimal"

	"ledger-reconciliation-service/internal/matcher"
	"ledger-reconciliation-service/internal/reporter"
)

// EngineOverrides carries the CLI flag values that adjust the selected
// profile. Negative numeric values mean "not set, keep the profile default".
type EngineOverrides struct {
	AmountTolerance   float64
	DateWindowDays    int
	FuzzyThreshold    float64
	PartialMaxEntries int
	MinScore          float64
}

// CreateEngineConfig builds an engine configuration from a named profile and
// CLI overrides. Validation happens in the engine constructor.
func CreateEngineConfig(profile string, overrides EngineOverrides) (*matcher.EngineConfig, error) {
	var cfg *matcher.EngineConfig

	switch profile {
	case "", "default":
		cfg = matcher.DefaultEngineConfig()
	case "strict":
		cfg = matcher.StrictEngineConfig()
	case "relaxed":
		cfg = matcher.RelaxedEngineConfig()
	default:
		return nil, fmt.Errorf("unknown matching profile %q (use default, strict, or relaxed)", profile)
	}

	if overrides.AmountTolerance >= 0 {
		cfg.AmountTolerance = decimal.NewFromFloat(overrides.AmountTolerance)
	}
	if overrides.DateWindowDays > 0 {
		cfg.DateWindowDays = overrides.DateWindowDays
	}
	if overrides.FuzzyThreshold >= 0 {
		cfg.FuzzyThreshold = overrides.FuzzyThreshold
	}
	if overrides.PartialMaxEntries > 0 {
		cfg.PartialMaxEntries = overrides.PartialMaxEntries
	}
	if overrides.MinScore >= 0 {
		cfg.MinScore = overrides.MinScore
	}

	return cfg, nil
}

// CreateReportConfig builds a report configuration for the requested format.
func CreateReportConfig(format string) (*reporter.ReportConfig, error) {
	cfg := reporter.DefaultReportConfig()
	cfg.Format = reporter.OutputFormat(format)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
