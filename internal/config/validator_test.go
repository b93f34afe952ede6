package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	blerrors "github.com/standardbeagle/bladelsp/internal/errors"
)

func TestValidator_DefaultsAreValid(t *testing.T) {
	assert.NoError(t, NewValidator().ValidateAndSetDefaults(Default()))
}

func TestValidator_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"pattern capacity", func(c *Config) { c.Cache.PatternCapacity = 0 }, "cache.pattern_capacity"},
		{"hover capacity", func(c *Config) { c.Cache.HoverCapacity = -1 }, "cache.hover_capacity"},
		{"version policy", func(c *Config) { c.Cache.VersionPolicy = "newest" }, "cache.version_policy"},
		{"extraction permits", func(c *Config) { c.Admission.ExtractionPermits = 0 }, "admission.extraction_permits"},
		{"hover permits", func(c *Config) { c.Admission.HoverPermits = 0 }, "admission.hover_permits"},
		{"low water", func(c *Config) { c.Admission.LowWaterRatio = 1.5 }, "admission.low_water_ratio"},
		{"max size", func(c *Config) { c.Extraction.MaxFileSize = 0 }, "extraction.max_file_size"},
		{"min above max", func(c *Config) { c.Extraction.MinContentSize = 100; c.Extraction.MaxFileSize = 10 }, "extraction.min_content_size"},
		{"budget", func(c *Config) { c.Performance.Budgets[OpHover] = 0 }, "performance.budgets.hover"},
		{"report interval", func(c *Config) { c.Performance.ReportInterval = 0 }, "performance.report_interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := NewValidator().ValidateAndSetDefaults(cfg)
			require.Error(t, err)

			var cerr *blerrors.ConfigError
			require.True(t, errors.As(err, &cerr))
			assert.Equal(t, tt.field, cerr.Field)
		})
	}
}

func TestValidator_SetsSmartDefaults(t *testing.T) {
	cfg := Default()
	cfg.Cache.VersionPolicy = ""
	cfg.Performance.Budgets = nil
	cfg.Watch.DebounceMs = 0

	require.NoError(t, NewValidator().ValidateAndSetDefaults(cfg))
	assert.Equal(t, VersionPolicyHighest, cfg.Cache.VersionPolicy)
	assert.Equal(t, 50*time.Millisecond, cfg.Performance.Budgets[OpHover])
	assert.Equal(t, 100, cfg.Watch.DebounceMs)
}
