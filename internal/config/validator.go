package config

import (
	"errors"
	"fmt"
	"strconv"

	blerrors "github.com/standardbeagle/bladelsp/internal/errors"
)

// Validator validates configuration and sets smart defaults
type Validator struct{}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAndSetDefaults validates configuration and fills zero values
// that have a sensible default
func (v *Validator) ValidateAndSetDefaults(cfg *Config) error {
	if cfg == nil {
		return blerrors.NewConfigError("config", "", errors.New("config is nil"))
	}
	v.setSmartDefaults(cfg)

	if err := v.validateCache(&cfg.Cache); err != nil {
		return err
	}
	if err := v.validateAdmission(&cfg.Admission); err != nil {
		return err
	}
	if err := v.validateExtraction(&cfg.Extraction); err != nil {
		return err
	}
	return v.validatePerformance(&cfg.Performance)
}

func (v *Validator) validateCache(c *Cache) error {
	if c.PatternCapacity <= 0 {
		return blerrors.NewConfigError("cache.pattern_capacity", strconv.Itoa(c.PatternCapacity),
			errors.New("must be positive"))
	}
	if c.HoverCapacity <= 0 {
		return blerrors.NewConfigError("cache.hover_capacity", strconv.Itoa(c.HoverCapacity),
			errors.New("must be positive"))
	}
	switch c.VersionPolicy {
	case VersionPolicyHighest, VersionPolicyLast:
	default:
		return blerrors.NewConfigError("cache.version_policy", c.VersionPolicy,
			fmt.Errorf("must be %q or %q", VersionPolicyHighest, VersionPolicyLast))
	}
	return nil
}

func (v *Validator) validateAdmission(a *Admission) error {
	if a.ExtractionPermits <= 0 {
		return blerrors.NewConfigError("admission.extraction_permits", strconv.Itoa(a.ExtractionPermits),
			errors.New("must be positive"))
	}
	if a.HoverPermits <= 0 {
		return blerrors.NewConfigError("admission.hover_permits", strconv.Itoa(a.HoverPermits),
			errors.New("must be positive"))
	}
	if a.LowWaterRatio <= 0 || a.LowWaterRatio >= 1 {
		return blerrors.NewConfigError("admission.low_water_ratio", fmt.Sprintf("%g", a.LowWaterRatio),
			errors.New("must be between 0 and 1 exclusive"))
	}
	return nil
}

func (v *Validator) validateExtraction(e *Extraction) error {
	if e.MinContentSize < 0 {
		return blerrors.NewConfigError("extraction.min_content_size", strconv.Itoa(e.MinContentSize),
			errors.New("must not be negative"))
	}
	if e.MaxFileSize <= 0 {
		return blerrors.NewConfigError("extraction.max_file_size", strconv.FormatInt(e.MaxFileSize, 10),
			errors.New("must be positive"))
	}
	if int64(e.MinContentSize) > e.MaxFileSize {
		return blerrors.NewConfigError("extraction.min_content_size", strconv.Itoa(e.MinContentSize),
			fmt.Errorf("exceeds max_file_size %d", e.MaxFileSize))
	}
	return nil
}

func (v *Validator) validatePerformance(p *Performance) error {
	for op, d := range p.Budgets {
		if d <= 0 {
			return blerrors.NewConfigError("performance.budgets."+op, d.String(), errors.New("must be positive"))
		}
	}
	if p.ReportInterval <= 0 {
		return blerrors.NewConfigError("performance.report_interval", p.ReportInterval.String(),
			errors.New("must be positive"))
	}
	return nil
}

func (v *Validator) setSmartDefaults(cfg *Config) {
	if cfg.Cache.VersionPolicy == "" {
		cfg.Cache.VersionPolicy = VersionPolicyHighest
	}
	if cfg.Performance.Budgets == nil {
		cfg.Performance.Budgets = DefaultBudgets()
	}
	if cfg.Performance.SlowLogRate <= 0 {
		cfg.Performance.SlowLogRate = 1
	}
	if cfg.Performance.SlowLogBurst <= 0 {
		cfg.Performance.SlowLogBurst = 1
	}
	if cfg.Extraction.MaxSyntaxErrors <= 0 {
		cfg.Extraction.MaxSyntaxErrors = 10
	}
	if cfg.Watch.DebounceMs <= 0 {
		cfg.Watch.DebounceMs = 100
	}
}
