package hover

import (
	"github.com/hbollon/go-edlib"

	"github.com/standardbeagle/bladelsp/internal/extract"
)

// SuggestThreshold is the minimum Jaro-Winkler similarity for a directive
// suggestion.
const SuggestThreshold = 0.85

var knownDirectives = extract.BladeDirectives()

// Suggest returns the built-in directive most similar to name
func Suggest(name string) (string, bool) {
	best, bestScore := "", float32(0)
	for _, d := range knownDirectives {
		score, err := edlib.StringsSimilarity(name, d, edlib.JaroWinkler)
		if err != nil {
			continue
		}
		if score > bestScore {
			best, bestScore = d, score
		}
	}
	if bestScore < SuggestThreshold {
		return "", false
	}
	return best, true
}
