package wsfuzz

import (
	"strings"

	"golang.org/x/text/cases"
)

// DefaultIndicators are matched when no indicator list is configured
var DefaultIndicators = []string{"error", "stacktrace", "trace"}

// IndicatorSet holds case-folded substrings that flag a response for review
type IndicatorSet []string

// NewIndicatorSet folds, trims and de-duplicates indicators, keeping the first occurrence order
func NewIndicatorSet(indicators ...string) IndicatorSet {
	fold := cases.Fold()
	seen := make(map[string]struct{}, len(indicators))
	set := make(IndicatorSet, 0, len(indicators))

	for _, indicator := range indicators {
		indicator = strings.TrimSpace(indicator)
		if indicator == "" {
			continue
		}
		folded := fold.String(indicator)
		if _, ok := seen[folded]; ok {
			continue
		}
		seen[folded] = struct{}{}
		set = append(set, folded)
	}

	return set
}

// ParseIndicators splits a comma-separated indicator list
func ParseIndicators(csv string) IndicatorSet {
	return NewIndicatorSet(strings.Split(csv, ",")...)
}

// Classify returns every indicator found in data, compared case-insensitively.
// Binary data is decoded as lossy UTF-8 before matching.
func (s IndicatorSet) Classify(data []byte) []string {
	if len(s) == 0 || len(data) == 0 {
		return nil
	}

	// Casers are stateful, so each call gets its own
	text := cases.Fold().String(strings.ToValidUTF8(string(data), "\uFFFD"))

	var matched []string
	for _, indicator := range s {
		if strings.Contains(text, indicator) {
			matched = append(matched, indicator)
		}
	}
	return matched
}
