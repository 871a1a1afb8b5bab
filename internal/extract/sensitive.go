package extract

import (
	"regexp"
	"strings"
)

// PatternHit is one sensitive-data pattern's aggregate for a chunk. Masked
// keeps only the tail of the first match; raw values never leave this
// package.
type PatternHit struct {
	Pattern string
	Masked  string
	Count   int
}

var sensitivePatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{name: "ssn", re: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{name: "credit_card", re: regexp.MustCompile(`\b(?:\d[ -]?){12}\d{1,4}\b`)},
	{name: "email", re: regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{name: "phone", re: regexp.MustCompile(`\(?\d{3}\)?[ .-]\d{3}[ .-]\d{4}\b`)},
}

// DetectSensitive scans chunk text for sensitive-data patterns. Output order
// follows the fixed pattern table, so results are deterministic.
func DetectSensitive(text string) []PatternHit {
	out := []PatternHit{}
	for _, p := range sensitivePatterns {
		matches := p.re.FindAllString(text, -1)
		if p.name == "credit_card" {
			matches = filterCardLike(matches)
		}
		if len(matches) == 0 {
			continue
		}
		out = append(out, PatternHit{
			Pattern: p.name,
			Masked:  maskValue(matches[0]),
			Count:   len(matches),
		})
	}
	return out
}

// filterCardLike keeps only matches whose digit count is plausible for a
// card number. The regex alone accepts 13+ digits with separators.
func filterCardLike(matches []string) []string {
	out := matches[:0]
	for _, m := range matches {
		n := 0
		for _, r := range m {
			if r >= '0' && r <= '9' {
				n++
			}
		}
		if n >= 13 && n <= 16 {
			out = append(out, m)
		}
	}
	return out
}

// maskValue keeps the last four characters of the raw match.
func maskValue(raw string) string {
	raw = strings.TrimSpace(raw)
	runes := []rune(raw)
	if len(runes) <= 4 {
		return "****"
	}
	return "****" + string(runes[len(runes)-4:])
}
