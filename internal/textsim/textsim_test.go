package textsim

import (
	"fmt"
	"math"
	"slices"
	"testing"
)

func TestExtractor_Keywords(t *testing.T) {
	e := NewExtractor(nil)
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"short and stop words dropped", "Build the API after the schema", []string{"schema"}},
		{"dedup and lowercase", "Schema schema SCHEMA migration", []string{"schema", "migration"}},
		{"punctuation splits", "login-endpoint, user.profile", []string{"login", "endpoint", "user", "profile"}},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Keywords(tt.in)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Keywords(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestExtractor_CustomStopWords(t *testing.T) {
	e := NewExtractor([]string{"schema"})
	if got := e.Keywords("after schema"); !slices.Equal(got, []string{"after"}) {
		t.Errorf("Keywords() = %v", got)
	}
	if got := NewExtractor([]string{}).Keywords("with this"); len(got) != 2 {
		t.Errorf("empty stop list should keep every long token, got %v", got)
	}
}

func TestJaccard(t *testing.T) {
	set := func(ks ...string) map[string]bool {
		m := map[string]bool{}
		for _, k := range ks {
			m[k] = true
		}
		return m
	}
	tests := []struct {
		name string
		a, b map[string]bool
		want float64
	}{
		{"both empty", set(), set(), 0},
		{"identical", set("a", "b"), set("a", "b"), 1},
		{"disjoint", set("a"), set("b"), 0},
		{"half", set("a", "b"), set("b", "c"), 1.0 / 3.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Jaccard(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Jaccard() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestContainsWordAndNormalize(t *testing.T) {
	if !ContainsWord("Update the Database schema", "database") {
		t.Error("expected whole-word match")
	}
	if ContainsWord("databases everywhere", "database") {
		t.Error("partial word must not match")
	}
	if got := Normalize("  Write   the Tests! "); got != "write the tests" {
		t.Errorf("Normalize() = %q", got)
	}
}

func TestCueMatcher_MatchCue(t *testing.T) {
	m := DefaultMatcher()
	tests := []struct {
		name     string
		desc     string
		keyword  string
		wantOK   bool
		wantConf float64
	}{
		{"after", "Write tests after the migration lands", "migration", true, 0.9},
		{"based on", "Generate client based on the openapi document", "openapi", true, 0.85},
		{"using from", "Render page using tokens from the theme", "theme", true, 0.8},
		{"integrate with", "Integrate the widget with payments", "payments", true, 0.7},
		{"strongest wins", "After payments, integrate checkout with payments", "payments", true, 0.9},
		{"cue across sentence boundary", "Do it after lunch. Then payments.", "payments", false, 0},
		{"no cue", "Refactor payments", "payments", false, 0},
		{"keyword must be whole word", "after paymentsservice", "payments", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.MatchCue(tt.desc, tt.keyword)
			if ok != tt.wantOK {
				t.Fatalf("MatchCue() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.Confidence != tt.wantConf {
				t.Errorf("Confidence = %v, want %v", got.Confidence, tt.wantConf)
			}
		})
	}
}

func TestNewCueMatcher_InvalidCues(t *testing.T) {
	tests := []struct {
		name string
		cue  Cue
	}{
		{"missing placeholder", Cue{Name: "x", Pattern: `\bafter\b`, Confidence: 0.5}},
		{"bad confidence", Cue{Name: "x", Pattern: `{kw}`, Confidence: 1.5}},
		{"bad regex", Cue{Name: "x", Pattern: `({kw}`, Confidence: 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewCueMatcher(nil, []Cue{tt.cue}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestCueMatcher_Similarity(t *testing.T) {
	m := DefaultMatcher()
	if got := m.Similarity("refactor payments module", "refactor payments module"); got != 1 {
		t.Errorf("Similarity(identical) = %v", got)
	}
	if got := m.Similarity("refactor payments", "design logo"); got != 0 {
		t.Errorf("Similarity(disjoint) = %v", got)
	}
}

func TestCueMatcher_CacheIsBounded(t *testing.T) {
	m := DefaultMatcher()
	for i := range 3 * cueCacheSize {
		m.MatchCue("Build the client after the schema is ready", fmt.Sprintf("kw%d", i))
	}
	if n := m.cache.Len(); n > cueCacheSize {
		t.Errorf("cache holds %d patterns, want at most %d", n, cueCacheSize)
	}

	match, ok := m.MatchCue("Build the client after the schema is ready", "schema")
	if !ok || match.Cue != "after" {
		t.Errorf("MatchCue() after eviction = %+v, %v", match, ok)
	}
}
