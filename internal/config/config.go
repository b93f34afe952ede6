package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// DefaultConfigFile is looked up in the working directory when no path is given
const DefaultConfigFile = ".bladelsp.kdl"

// Version policies for concurrent pattern writes
const (
	VersionPolicyHighest = "highest" // older versions never replace newer ones
	VersionPolicyLast    = "last"    // last completed write wins
)

// Operation names with latency budgets
const (
	OpHover      = "hover"
	OpDefinition = "definition"
	OpCompletion = "completion"
	OpUpdate     = "update"
)

type Config struct {
	Cache       Cache
	Admission   Admission
	Extraction  Extraction
	Performance Performance
	Watch       Watch
	FileTypes   FileTypes
}

type Cache struct {
	PatternCapacity int    // LRU bound for per-file pattern sets
	HoverCapacity   int    // LRU bound for hover answers
	VersionPolicy   string // "highest" or "last"
}

type Admission struct {
	ExtractionPermits int
	HoverPermits      int
	LowWaterRatio     float64 // under load when available permits drop below this share
}

type Extraction struct {
	MinContentSize    int   // bytes; smaller content short-circuits to an empty set
	MaxFileSize       int64 // bytes; larger content fails with file_too_large
	MaxSyntaxErrors   int   // syntax errors reported per file
	DisableStructured bool  // regex only
}

type Performance struct {
	Budgets        map[string]time.Duration
	ReportInterval time.Duration
	SlowLogRate    float64 // slow operation warnings per second
	SlowLogBurst   int
}

type Watch struct {
	DebounceMs     int
	FollowSymlinks bool
	Exclude        []string
}

type FileTypes struct {
	Blade []string
	PHP   []string
}

// DefaultBudgets returns the default per-operation latency budgets
func DefaultBudgets() map[string]time.Duration {
	return map[string]time.Duration{
		OpHover:      50 * time.Millisecond,
		OpDefinition: 100 * time.Millisecond,
		OpCompletion: 200 * time.Millisecond,
		OpUpdate:     10 * time.Millisecond,
	}
}

// Default returns a configuration with every field populated
func Default() *Config {
	return &Config{
		Cache: Cache{
			PatternCapacity: 256,
			HoverCapacity:   1024,
			VersionPolicy:   VersionPolicyHighest,
		},
		Admission: Admission{
			ExtractionPermits: max(2, runtime.NumCPU()/2),
			HoverPermits:      16,
			LowWaterRatio:     0.25,
		},
		Extraction: Extraction{
			MinContentSize:  3,
			MaxFileSize:     5 * 1024 * 1024,
			MaxSyntaxErrors: 10,
		},
		Performance: Performance{
			Budgets:        DefaultBudgets(),
			ReportInterval: 60 * time.Second,
			SlowLogRate:    1,
			SlowLogBurst:   5,
		},
		Watch: Watch{
			DebounceMs: 100,
			Exclude: []string{
				"**/vendor/**",
				"**/node_modules/**",
				"**/.git/**",
				"**/storage/**",
			},
		},
		FileTypes: FileTypes{
			Blade: []string{"**/*.blade.php"},
			PHP:   []string{"**/*.php", "**/*.phtml"},
		},
	}
}

// Load reads configuration from path. An empty path looks for
// .bladelsp.kdl in the working directory. Missing files yield defaults.
// Files ending in .toml are parsed as TOML, everything else as KDL.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFile
	}

	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := Default()
		return cfg, NewValidator().ValidateAndSetDefaults(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var cfg *Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		cfg, err = parseTOML(content)
	} else {
		cfg, err = parseKDL(string(content))
	}
	if err != nil {
		return nil, err
	}

	if err := NewValidator().ValidateAndSetDefaults(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Budget returns the budget for op and whether one is configured
func (p Performance) Budget(op string) (time.Duration, bool) {
	d, ok := p.Budgets[op]
	return d, ok
}
