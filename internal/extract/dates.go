package extract

import (
	"regexp"
	"strings"
	"time"
)

// DateHit is one date-like string found in chunk text. Parsed stays nil when
// the raw form does not resolve to a real calendar date.
type DateHit struct {
	Raw    string
	Parsed *time.Time
}

var datePatterns = []struct {
	re      *regexp.Regexp
	layouts []string
}{
	{
		re:      regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
		layouts: []string{"2006-01-02"},
	},
	{
		re:      regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`),
		layouts: []string{"1/2/2006", "1/2/06"},
	},
	{
		re: regexp.MustCompile(`\b(?:Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|Jun(?:e)?|Jul(?:y)?|Aug(?:ust)?|Sep(?:tember)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)\.? \d{1,2},? \d{4}\b`),
		layouts: []string{
			"January 2, 2006", "January 2 2006",
			"Jan 2, 2006", "Jan 2 2006",
			"Jan. 2, 2006", "Jan. 2 2006",
		},
	},
}

// ExtractDates scans text for date mentions in document order per pattern.
// Best-effort by contract: malformed dates come back with Parsed=nil.
func ExtractDates(text string) []DateHit {
	out := []DateHit{}
	seen := map[string]bool{}
	for _, p := range datePatterns {
		for _, raw := range p.re.FindAllString(text, -1) {
			if seen[raw] {
				continue
			}
			seen[raw] = true
			out = append(out, DateHit{Raw: raw, Parsed: parseDate(raw, p.layouts)})
		}
	}
	return out
}

func parseDate(raw string, layouts []string) *time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
