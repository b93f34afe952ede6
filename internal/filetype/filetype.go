// Package filetype classifies source files by naming convention.
package filetype

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/standardbeagle/bladelsp/internal/config"
)

// Kind is the extraction-relevant type of a file.
type Kind int

const (
	Unknown Kind = iota
	Blade
	PHP
)

func (k Kind) String() string {
	switch k {
	case Blade:
		return "blade"
	case PHP:
		return "php"
	}
	return "unknown"
}

// Classifier maps file paths to kinds using glob patterns. Blade patterns
// are checked first since every Blade template also ends in .php.
type Classifier struct {
	blade []string
	php   []string
}

// NewClassifier builds a classifier from configured patterns.
func NewClassifier(ft config.FileTypes) *Classifier {
	return &Classifier{blade: ft.Blade, php: ft.PHP}
}

// Default returns a classifier with the built-in patterns.
func Default() *Classifier {
	return NewClassifier(config.Default().FileTypes)
}

// Classify returns the kind for path.
func (c *Classifier) Classify(path string) Kind {
	p := strings.TrimLeft(filepath.ToSlash(path), "/")
	if vol := filepath.VolumeName(path); vol != "" {
		p = strings.TrimLeft(strings.TrimPrefix(p, filepath.ToSlash(vol)), "/")
	}
	if matchAny(c.blade, p) {
		return Blade
	}
	if matchAny(c.php, p) {
		return PHP
	}
	return Unknown
}

func matchAny(patterns []string, path string) bool {
	for _, pattern := range patterns {
		matched, err := doublestar.Match(pattern, path)
		if err != nil {
			continue
		}
		if matched {
			return true
		}
	}
	return false
}
