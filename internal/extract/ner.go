package extract

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Mention is an aggregated (text, label) occurrence count within one text.
type Mention struct {
	Text  string
	Label string
	Count int
}

const (
	LabelPerson = "PERSON"
	LabelOrg    = "ORG"
)

// Candidate spans: runs of capitalized words, initials allowed ("J. Doe").
var spanRe = regexp.MustCompile(`[A-Z][A-Za-z&]*\.?(?:[ ][A-Z][A-Za-z&]*\.?){0,4}`)

var orgSuffixes = map[string]bool{
	"inc": true, "llc": true, "corp": true, "ltd": true, "co": true,
	"company": true, "bank": true, "group": true, "partners": true,
	"associates": true, "holdings": true, "trust": true, "fund": true,
	"llp": true, "plc": true,
}

// Words that start sentences and look like name heads. Stripped from the
// front of a span before classification.
var leadingStopwords = map[string]bool{
	"the": true, "this": true, "that": true, "these": true, "those": true,
	"a": true, "an": true, "and": true, "but": true, "however": true,
	"when": true, "where": true, "after": true, "before": true,
	"during": true, "please": true, "dear": true, "regarding": true,
}

var honorifics = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
	"sen": true, "gov": true, "judge": true, "rep": true, "atty": true,
}

// ExtractEntities pulls candidate named entities out of chunk text with
// capitalization heuristics and aggregates mention counts. Output is sorted
// by (text, label) so repeated runs over the same text are identical.
func ExtractEntities(text string, blocklist []string) []Mention {
	blocked := map[string]bool{}
	for _, b := range blocklist {
		blocked[strings.ToLower(strings.TrimSpace(b))] = true
	}

	counts := map[[2]string]int{}
	for _, span := range spanRe.FindAllString(text, -1) {
		mention, label, ok := classifySpan(span)
		if !ok {
			continue
		}
		if !keepMention(mention, blocked) {
			continue
		}
		counts[[2]string{mention, label}]++
	}

	out := make([]Mention, 0, len(counts))
	for key, n := range counts {
		out = append(out, Mention{Text: key[0], Label: key[1], Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Text != out[j].Text {
			return out[i].Text < out[j].Text
		}
		return out[i].Label < out[j].Label
	})
	return out
}

func classifySpan(span string) (mention, label string, ok bool) {
	words := strings.Fields(span)

	// Drop a sentence-initial stopword and re-check what remains still looks
	// like a name.
	for len(words) > 0 && leadingStopwords[normalizeWord(words[0])] {
		words = words[1:]
	}
	if len(words) == 0 {
		return "", "", false
	}
	if !startsUpper(words[0]) {
		return "", "", false
	}

	person := false
	if honorifics[normalizeWord(words[0])] && len(words) > 1 {
		words = words[1:]
		person = true
	}

	last := normalizeWord(words[len(words)-1])
	switch {
	case orgSuffixes[last]:
		label = LabelOrg
	case len(words) == 1 && isAcronym(words[0]):
		label = LabelOrg
	case person || len(words) >= 2:
		label = LabelPerson
	default:
		// Single capitalized word: too often just a sentence start.
		return "", "", false
	}

	return strings.Join(words, " "), label, true
}

func keepMention(mention string, blocked map[string]bool) bool {
	if len([]rune(mention)) < 3 {
		return false
	}
	if blocked[strings.ToLower(mention)] {
		return false
	}
	digitsOnly := true
	for _, r := range mention {
		if !unicode.IsDigit(r) {
			digitsOnly = false
			break
		}
	}
	return !digitsOnly
}

func normalizeWord(w string) string {
	return strings.ToLower(strings.Trim(w, ".,;:"))
}

func startsUpper(w string) bool {
	for _, r := range w {
		return unicode.IsUpper(r)
	}
	return false
}

func isAcronym(w string) bool {
	w = strings.Trim(w, ".")
	if len(w) < 2 || len(w) > 6 {
		return false
	}
	for _, r := range w {
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}
