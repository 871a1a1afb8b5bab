package extract

import (
	"sort"
	"strings"
)

// AnomalyResult is the deterministic keyword-weighted score for a chunk.
// Matched lists the terms that contributed, sorted ascending.
type AnomalyResult struct {
	Score   float64
	Matched []string
}

// ScoreAnomalies sums weight*occurrences over the configured keyword table.
// Matching is case-insensitive substring; no model is involved, so the same
// text and table always score identically.
func ScoreAnomalies(text string, keywords map[string]float64) AnomalyResult {
	if len(keywords) == 0 || text == "" {
		return AnomalyResult{}
	}
	lower := strings.ToLower(text)

	terms := make([]string, 0, len(keywords))
	for term := range keywords {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	res := AnomalyResult{}
	for _, term := range terms {
		n := strings.Count(lower, strings.ToLower(term))
		if n == 0 {
			continue
		}
		res.Score += float64(n) * keywords[term]
		res.Matched = append(res.Matched, term)
	}
	return res
}
