package config

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// parseKDL overlays a KDL document onto the defaults:
//
//	cache { pattern_capacity 256; hover_capacity 1024; version_policy "highest" }
//	admission { extraction_permits 4; hover_permits 16; low_water_ratio 0.25 }
//	extraction { min_content_size 3; max_file_size "5MB"; structured true }
//	performance { report_interval "60s"; budgets { hover "50ms" } }
//	watch { debounce_ms 100; exclude "**/vendor/**" }
//	file_types { blade "**/*.blade.php"; php "**/*.php" }
func parseKDL(content string) (*Config, error) {
	cfg := Default()

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse KDL config: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "cache":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "pattern_capacity":
					if v, ok := firstIntArg(cn); ok {
						cfg.Cache.PatternCapacity = v
					}
				case "hover_capacity":
					if v, ok := firstIntArg(cn); ok {
						cfg.Cache.HoverCapacity = v
					}
				}
				assignSimpleString(cn, "version_policy", func(v string) { cfg.Cache.VersionPolicy = v })
			}
		case "admission":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "extraction_permits":
					if v, ok := firstIntArg(cn); ok {
						cfg.Admission.ExtractionPermits = v
					}
				case "hover_permits":
					if v, ok := firstIntArg(cn); ok {
						cfg.Admission.HoverPermits = v
					}
				case "low_water_ratio":
					if v, ok := firstFloatArg(cn); ok {
						cfg.Admission.LowWaterRatio = v
					}
				}
			}
		case "extraction":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "min_content_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Extraction.MinContentSize = v
					}
				case "max_file_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Extraction.MaxFileSize = int64(v)
					}
					if s, ok := firstStringArg(cn); ok {
						if sz, err := parseSize(s); err == nil {
							cfg.Extraction.MaxFileSize = sz
						}
					}
				case "max_syntax_errors":
					if v, ok := firstIntArg(cn); ok {
						cfg.Extraction.MaxSyntaxErrors = v
					}
				case "structured":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Extraction.DisableStructured = !b
					}
				}
			}
		case "performance":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "report_interval":
					if d, ok := firstDurationArg(cn); ok {
						cfg.Performance.ReportInterval = d
					}
				case "slow_log_rate":
					if v, ok := firstFloatArg(cn); ok {
						cfg.Performance.SlowLogRate = v
					}
				case "slow_log_burst":
					if v, ok := firstIntArg(cn); ok {
						cfg.Performance.SlowLogBurst = v
					}
				case "budgets":
					for _, bn := range cn.Children {
						if d, ok := firstDurationArg(bn); ok {
							cfg.Performance.Budgets[nodeName(bn)] = d
						}
					}
				}
			}
		case "watch":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "debounce_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Watch.DebounceMs = v
					}
				case "follow_symlinks":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Watch.FollowSymlinks = b
					}
				case "exclude":
					cfg.Watch.Exclude = append(cfg.Watch.Exclude, collectStringArgs(cn)...)
				}
			}
		case "file_types":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "blade":
					cfg.FileTypes.Blade = collectStringArgs(cn)
				case "php":
					cfg.FileTypes.PHP = collectStringArgs(cn)
				}
			}
		default:
			log.Printf("WARNING: unknown section '%s' in KDL config", nodeName(n))
		}
	}

	return cfg, nil
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

func firstFloatArg(n *document.Node) (float64, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		log.Printf("WARNING: invalid float value for '%s' in KDL config, expected number but got %T", nodeName(n), n.Arguments[0].Value)
		return 0, false
	}
}

// firstDurationArg accepts "250ms"-style strings or a bare number of milliseconds
func firstDurationArg(n *document.Node) (time.Duration, bool) {
	if s, ok := firstStringArg(n); ok {
		d, err := time.ParseDuration(s)
		if err != nil {
			log.Printf("WARNING: invalid duration %q for '%s' in KDL config", s, nodeName(n))
			return 0, false
		}
		return d, true
	}
	if v, ok := firstIntArg(n); ok {
		return time.Duration(v) * time.Millisecond, true
	}
	return 0, false
}

func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}

	// Block form: exclude { "pattern" } stores each string as a child node name
	if len(out) == 0 && len(n.Children) > 0 {
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

func assignSimpleString(n *document.Node, target string, set func(string)) {
	if nodeName(n) == target {
		if s, ok := firstStringArg(n); ok {
			set(s)
		}
	}
}

// parseSize handles size strings like "10MB", "500KB", "1GB"
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	var multiplier int64 = 1
	var numStr string

	switch {
	case strings.HasSuffix(s, "GB"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		numStr = strings.TrimSuffix(s, "B")
	default:
		numStr = s
	}

	num, err := strconv.ParseInt(strings.TrimSpace(numStr), 10, 64)
	if err != nil {
		return 0, err
	}
	return num * multiplier, nil
}
