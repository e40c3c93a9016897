package validation

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// minKeywordRunes is the shortest token kept as a keyword
const minKeywordRunes = 3

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"but": true, "by": true, "for": true, "from": true, "has": true, "have": true, "how": true,
	"in": true, "into": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"or": true, "our": true, "that": true, "the": true, "their": true, "this": true, "to": true,
	"was": true, "what": true, "when": true, "where": true, "which": true, "who": true,
	"why": true, "will": true, "with": true, "you": true, "your": true, "about": true,
	"over": true, "using": true, "via": true, "vs": true,
}

// tokenize splits text into lower-case alphanumeric tokens
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Keywords extracts the distinct topic keywords in order of first appearance.
// Stop words and tokens shorter than three runes are dropped.
func Keywords(topic string) []string {
	seen := make(map[string]bool)
	var keywords []string
	for _, tok := range tokenize(topic) {
		if stopWords[tok] || utf8.RuneCountInString(tok) < minKeywordRunes || seen[tok] {
			continue
		}
		seen[tok] = true
		keywords = append(keywords, tok)
	}
	return keywords
}

// KeywordScore returns the fraction of keywords present in body and the ones missing.
// Matching is case-insensitive on whole tokens; no keywords scores 1.
func KeywordScore(body string, keywords []string) (float64, []string) {
	if len(keywords) == 0 {
		return 1, nil
	}

	present := make(map[string]bool)
	for _, tok := range tokenize(body) {
		present[tok] = true
	}

	var missing []string
	for _, kw := range keywords {
		if !present[kw] {
			missing = append(missing, kw)
		}
	}
	return float64(len(keywords)-len(missing)) / float64(len(keywords)), missing
}

// LengthScore is 1 - min(1, |actual-target|/target); a non-positive target scores 0
func LengthScore(actual, target int) float64 {
	if target <= 0 {
		return 0
	}
	diff := actual - target
	if diff < 0 {
		diff = -diff
	}
	return 1 - min(1, float64(diff)/float64(target))
}
