package textsim

import (
	"fmt"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cueCacheSize bounds the compiled (cue, keyword) patterns kept per matcher.
const cueCacheSize = 1024

// Cue is a linguistic pattern suggesting that a description depends on
// something named by a keyword. Pattern is a regular expression template in
// which {kw} is replaced by the quoted keyword.
type Cue struct {
	Name       string  `mapstructure:"name" json:"name" yaml:"name"`
	Pattern    string  `mapstructure:"pattern" json:"pattern" yaml:"pattern"`
	Confidence float64 `mapstructure:"confidence" json:"confidence" yaml:"confidence"`
}

// DefaultCues are the built-in dependency cues.
var DefaultCues = []Cue{
	{Name: "after", Pattern: `\bafter\b[^.]*\b{kw}\b`, Confidence: 0.9},
	{Name: "based on", Pattern: `\bbased on\b[^.]*\b{kw}\b`, Confidence: 0.85},
	{Name: "using from", Pattern: `\busing\b[^.]*\bfrom\b[^.]*\b{kw}\b`, Confidence: 0.8},
	{Name: "integrate with", Pattern: `\bintegrat\w*\b[^.]*\bwith\b[^.]*\b{kw}\b`, Confidence: 0.7},
}

// Match is a cue hit for one keyword.
type Match struct {
	Cue        string
	Keyword    string
	Confidence float64
}

// Matcher is the strategy used to infer implicit dependencies and measure
// description similarity.
type Matcher interface {
	// Keywords returns the content keywords of a description.
	Keywords(description string) []string

	// MatchCue reports the strongest cue in description that refers to
	// keyword. ok is false when no cue matches.
	MatchCue(description, keyword string) (m Match, ok bool)

	// Similarity returns a 0..1 similarity between two descriptions.
	Similarity(a, b string) float64
}

// CueMatcher is the regex-based Matcher.
type CueMatcher struct {
	extractor *Extractor
	cues      []Cue
	cache     *lru.Cache[string, *regexp.Regexp]
}

// NewCueMatcher creates a matcher. Nil arguments select the defaults.
// Cue templates are validated eagerly by compiling them with a placeholder
// keyword.
func NewCueMatcher(stopWords []string, cues []Cue) (*CueMatcher, error) {
	if cues == nil {
		cues = DefaultCues
	}
	for i, c := range cues {
		if !strings.Contains(c.Pattern, "{kw}") {
			return nil, fmt.Errorf("cue %d (%s): pattern must contain {kw}", i, c.Name)
		}
		if c.Confidence <= 0 || c.Confidence > 1 {
			return nil, fmt.Errorf("cue %d (%s): confidence %v outside (0, 1]", i, c.Name, c.Confidence)
		}
		if _, err := regexp.Compile(expand(c.Pattern, "placeholder")); err != nil {
			return nil, fmt.Errorf("cue %d (%s): %w", i, c.Name, err)
		}
	}
	cache, err := lru.New[string, *regexp.Regexp](cueCacheSize)
	if err != nil {
		return nil, err
	}
	return &CueMatcher{
		extractor: NewExtractor(stopWords),
		cues:      append([]Cue(nil), cues...),
		cache:     cache,
	}, nil
}

// DefaultMatcher returns a matcher with the built-in stop words and cues.
func DefaultMatcher() *CueMatcher {
	m, err := NewCueMatcher(nil, nil)
	if err != nil {
		panic(err) // built-in cues always compile
	}
	return m
}

func expand(pattern, keyword string) string {
	return "(?i)" + strings.ReplaceAll(pattern, "{kw}", regexp.QuoteMeta(keyword))
}

func (m *CueMatcher) compiled(pattern, keyword string) *regexp.Regexp {
	key := pattern + "\x00" + keyword
	if re, ok := m.cache.Get(key); ok {
		return re
	}
	re := regexp.MustCompile(expand(pattern, keyword))
	m.cache.Add(key, re)
	return re
}

// Keywords implements Matcher.
func (m *CueMatcher) Keywords(description string) []string {
	return m.extractor.Keywords(description)
}

// MatchCue implements Matcher.
func (m *CueMatcher) MatchCue(description, keyword string) (Match, bool) {
	var best Match
	found := false
	for _, c := range m.cues {
		if found && c.Confidence <= best.Confidence {
			continue
		}
		if m.compiled(c.Pattern, keyword).MatchString(description) {
			best = Match{Cue: c.Name, Keyword: keyword, Confidence: c.Confidence}
			found = true
		}
	}
	return best, found
}

// Similarity implements Matcher using keyword-set Jaccard similarity.
func (m *CueMatcher) Similarity(a, b string) float64 {
	return Jaccard(m.extractor.KeywordSet(a), m.extractor.KeywordSet(b))
}

// Cues returns a copy of the configured cues.
func (m *CueMatcher) Cues() []Cue {
	return append([]Cue(nil), m.cues...)
}
