package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger-reconciliation-service/internal/reporter"
)

func noOverrides() EngineOverrides {
	return EngineOverrides{
		AmountTolerance: -1,
		FuzzyThreshold:  -1,
		MinScore:        -1,
	}
}

func TestCreateEngineConfigProfiles(t *testing.T) {
	tests := []struct {
		profile    string
		wantWindow int
	}{
		{"", 5},
		{"default", 5},
		{"strict", 3},
		{"relaxed", 10},
	}

	for _, tt := range tests {
		t.Run("profile "+tt.profile, func(t *testing.T) {
			cfg, err := CreateEngineConfig(tt.profile, noOverrides())
			require.NoError(t, err)
			assert.Equal(t, tt.wantWindow, cfg.DateWindowDays)
			require.NoError(t, cfg.Validate())
		})
	}
}

func TestCreateEngineConfigUnknownProfile(t *testing.T) {
	_, err := CreateEngineConfig("aggressive", noOverrides())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aggressive")
}

func TestCreateEngineConfigOverrides(t *testing.T) {
	overrides := EngineOverrides{
		AmountTolerance:   0.05,
		DateWindowDays:    7,
		FuzzyThreshold:    0.9,
		PartialMaxEntries: 2,
		MinScore:          0.6,
	}

	cfg, err := CreateEngineConfig("default", overrides)
	require.NoError(t, err)

	assert.Equal(t, "0.05", cfg.AmountTolerance.String())
	assert.Equal(t, 7, cfg.DateWindowDays)
	assert.Equal(t, 0.9, cfg.FuzzyThreshold)
	assert.Equal(t, 2, cfg.PartialMaxEntries)
	assert.Equal(t, 0.6, cfg.MinScore)
}

func TestCreateEngineConfigUnsetOverridesKeepDefaults(t *testing.T) {
	cfg, err := CreateEngineConfig("default", noOverrides())
	require.NoError(t, err)

	assert.Equal(t, "0.01", cfg.AmountTolerance.String())
	assert.Equal(t, 5, cfg.DateWindowDays)
	assert.Equal(t, 0.85, cfg.FuzzyThreshold)
	assert.Equal(t, 3, cfg.PartialMaxEntries)
	assert.Equal(t, 0.5, cfg.MinScore)
}

func TestCreateReportConfig(t *testing.T) {
	cfg, err := CreateReportConfig("json")
	require.NoError(t, err)
	assert.Equal(t, reporter.FormatJSON, cfg.Format)

	_, err = CreateReportConfig("xml")
	assert.Error(t, err)
}
