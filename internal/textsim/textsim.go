// Package textsim provides the text heuristics used by the planner:
// keyword extraction, keyword-set similarity, and cue-pattern matching for
// implicit dependency inference.
//
// The heuristics are deliberately simple. They sit behind the [Matcher]
// interface so a stronger strategy (embeddings, structured resource tags)
// can be substituted without touching the graph or batch code.
package textsim

import (
	"slices"
	"strings"
	"unicode"
)

// DefaultStopWords are dropped during keyword extraction. Only words longer
// than three characters are listed since shorter tokens never qualify.
var DefaultStopWords = []string{
	"about", "after", "also", "based", "been", "before", "being", "both",
	"build", "each", "from", "have", "into", "make", "more", "most", "must",
	"need", "needs", "only", "other", "over", "same", "should", "some",
	"such", "than", "that", "their", "them", "then", "there", "these",
	"they", "this", "those", "through", "under", "until", "update", "used",
	"using", "very", "when", "where", "which", "while", "will", "with",
	"within", "without", "would", "your", "create", "implement", "integrate",
	"task", "tasks",
}

// MinKeywordLength is the exclusive lower bound on keyword length.
const MinKeywordLength = 3

// Tokenize lowercases s and splits it on anything that is not a letter or
// digit.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Extractor turns a description into its set of content keywords.
type Extractor struct {
	stop map[string]struct{}
}

// NewExtractor creates an Extractor with the given stop words. A nil slice
// uses DefaultStopWords; an empty non-nil slice disables stop-word removal.
func NewExtractor(stopWords []string) *Extractor {
	if stopWords == nil {
		stopWords = DefaultStopWords
	}
	stop := make(map[string]struct{}, len(stopWords))
	for _, w := range stopWords {
		stop[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	return &Extractor{stop: stop}
}

// Keywords returns the distinct content keywords of s in first-seen order.
func (e *Extractor) Keywords(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tok := range Tokenize(s) {
		if len(tok) <= MinKeywordLength || seen[tok] {
			continue
		}
		if _, stop := e.stop[tok]; stop {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

// KeywordSet is Keywords as a set.
func (e *Extractor) KeywordSet(s string) map[string]bool {
	kws := e.Keywords(s)
	set := make(map[string]bool, len(kws))
	for _, k := range kws {
		set[k] = true
	}
	return set
}

// Jaccard returns |a ∩ b| / |a ∪ b|. Two empty sets have similarity 0.
func Jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// ContainsWord reports whether text contains word as a whole word,
// case-insensitively.
func ContainsWord(text, word string) bool {
	return slices.Contains(Tokenize(text), strings.ToLower(word))
}

// Normalize lowercases s, strips punctuation and collapses whitespace. Two
// descriptions that normalize equal are considered duplicates.
func Normalize(s string) string {
	return strings.Join(Tokenize(s), " ")
}
