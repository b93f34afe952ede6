package config

import (
	"fmt"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// tomlFile mirrors Config with TOML-friendly scalar types. Durations are
// strings accepted by time.ParseDuration.
type tomlFile struct {
	Cache struct {
		PatternCapacity *int    `toml:"pattern_capacity"`
		HoverCapacity   *int    `toml:"hover_capacity"`
		VersionPolicy   *string `toml:"version_policy"`
	} `toml:"cache"`
	Admission struct {
		ExtractionPermits *int     `toml:"extraction_permits"`
		HoverPermits      *int     `toml:"hover_permits"`
		LowWaterRatio     *float64 `toml:"low_water_ratio"`
	} `toml:"admission"`
	Extraction struct {
		MinContentSize  *int   `toml:"min_content_size"`
		MaxFileSize     string `toml:"max_file_size"`
		MaxSyntaxErrors *int   `toml:"max_syntax_errors"`
		Structured      *bool  `toml:"structured"`
	} `toml:"extraction"`
	Performance struct {
		ReportInterval string            `toml:"report_interval"`
		SlowLogRate    *float64          `toml:"slow_log_rate"`
		SlowLogBurst   *int              `toml:"slow_log_burst"`
		Budgets        map[string]string `toml:"budgets"`
	} `toml:"performance"`
	Watch struct {
		DebounceMs     *int     `toml:"debounce_ms"`
		FollowSymlinks *bool    `toml:"follow_symlinks"`
		Exclude        []string `toml:"exclude"`
	} `toml:"watch"`
	FileTypes struct {
		Blade []string `toml:"blade"`
		PHP   []string `toml:"php"`
	} `toml:"file_types"`
}

func parseTOML(data []byte) (*Config, error) {
	var f tomlFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config: %w", err)
	}

	cfg := Default()
	setInt(&cfg.Cache.PatternCapacity, f.Cache.PatternCapacity)
	setInt(&cfg.Cache.HoverCapacity, f.Cache.HoverCapacity)
	if f.Cache.VersionPolicy != nil {
		cfg.Cache.VersionPolicy = *f.Cache.VersionPolicy
	}

	setInt(&cfg.Admission.ExtractionPermits, f.Admission.ExtractionPermits)
	setInt(&cfg.Admission.HoverPermits, f.Admission.HoverPermits)
	if f.Admission.LowWaterRatio != nil {
		cfg.Admission.LowWaterRatio = *f.Admission.LowWaterRatio
	}

	setInt(&cfg.Extraction.MinContentSize, f.Extraction.MinContentSize)
	setInt(&cfg.Extraction.MaxSyntaxErrors, f.Extraction.MaxSyntaxErrors)
	if f.Extraction.MaxFileSize != "" {
		sz, err := parseSize(f.Extraction.MaxFileSize)
		if err != nil {
			return nil, fmt.Errorf("extraction.max_file_size: %w", err)
		}
		cfg.Extraction.MaxFileSize = sz
	}
	if f.Extraction.Structured != nil {
		cfg.Extraction.DisableStructured = !*f.Extraction.Structured
	}

	if f.Performance.ReportInterval != "" {
		d, err := time.ParseDuration(f.Performance.ReportInterval)
		if err != nil {
			return nil, fmt.Errorf("performance.report_interval: %w", err)
		}
		cfg.Performance.ReportInterval = d
	}
	if f.Performance.SlowLogRate != nil {
		cfg.Performance.SlowLogRate = *f.Performance.SlowLogRate
	}
	setInt(&cfg.Performance.SlowLogBurst, f.Performance.SlowLogBurst)
	for op, s := range f.Performance.Budgets {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("performance.budgets.%s: %w", op, err)
		}
		cfg.Performance.Budgets[op] = d
	}

	setInt(&cfg.Watch.DebounceMs, f.Watch.DebounceMs)
	if f.Watch.FollowSymlinks != nil {
		cfg.Watch.FollowSymlinks = *f.Watch.FollowSymlinks
	}
	cfg.Watch.Exclude = append(cfg.Watch.Exclude, f.Watch.Exclude...)

	if len(f.FileTypes.Blade) > 0 {
		cfg.FileTypes.Blade = f.FileTypes.Blade
	}
	if len(f.FileTypes.PHP) > 0 {
		cfg.FileTypes.PHP = f.FileTypes.PHP
	}
	return cfg, nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
