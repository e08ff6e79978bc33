// Package matcher associates noisy supplier product names with canonical ingredient names.
package matcher

import (
	"regexp"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/unicode/norm"
)

// DefaultCutoff is the minimum similarity ratio accepted as a match.
const DefaultCutoff = 0.8

var nonAlphabetPattern = regexp.MustCompile(`[^а-яА-ЯёЁ ]`)

// Result is the outcome of matching one candidate against the vocabulary.
// Matched is false when no entry reached the cutoff; Name and Score are then empty.
type Result struct {
	Matched bool
	Name    string
	Score   float64
}

// Matcher holds a normalized snapshot of the ingredient vocabulary.
type Matcher struct {
	cutoff     float64
	names      []string
	normalized [][]string
}

// New creates a Matcher over vocabulary. The slice order decides ties.
// A cutoff outside (0, 1] falls back to DefaultCutoff.
func New(vocabulary []string, cutoff float64) *Matcher {
	if cutoff <= 0 || cutoff > 1 {
		cutoff = DefaultCutoff
	}
	m := &Matcher{
		cutoff:     cutoff,
		names:      make([]string, 0, len(vocabulary)),
		normalized: make([][]string, 0, len(vocabulary)),
	}
	for _, name := range vocabulary {
		m.names = append(m.names, name)
		m.normalized = append(m.normalized, runes(normalize(name)))
	}
	return m
}

// Cutoff returns the similarity threshold in use.
func (m *Matcher) Cutoff() float64 {
	return m.cutoff
}

// Len returns the vocabulary size.
func (m *Matcher) Len() int {
	return len(m.names)
}

// Match finds the ingredient for a raw product name. The first two words of the
// cleaned name are tried first, then the first word alone.
func (m *Matcher) Match(productName string) Result {
	words := strings.Fields(Clean(productName))
	if len(words) == 0 {
		return Result{}
	}
	if len(words) > 2 {
		words = words[:2]
	}
	if res := m.BestMatch(strings.Join(words, " ")); res.Matched || len(words) == 1 {
		return res
	}
	return m.BestMatch(words[0])
}

// BestMatch returns the vocabulary entry most similar to candidate, provided its ratio
// is at least the cutoff. On equal ratios the earlier vocabulary entry wins.
func (m *Matcher) BestMatch(candidate string) Result {
	target := runes(normalize(candidate))
	if len(target) == 0 {
		return Result{}
	}

	sm := difflib.NewMatcher(nil, target)
	best := Result{}
	for i, entry := range m.normalized {
		sm.SetSeq1(entry)
		// Upper bounds first; equal to best cannot win because ties keep the earlier entry.
		if bound := sm.RealQuickRatio(); bound < m.cutoff || (best.Matched && bound <= best.Score) {
			continue
		}
		if bound := sm.QuickRatio(); bound < m.cutoff || (best.Matched && bound <= best.Score) {
			continue
		}
		score := sm.Ratio()
		if score < m.cutoff || (best.Matched && score <= best.Score) {
			continue
		}
		best = Result{Matched: true, Name: m.names[i], Score: score}
	}
	return best
}

// Clean keeps only Cyrillic letters and spaces of a product name.
func Clean(name string) string {
	return nonAlphabetPattern.ReplaceAllString(norm.NFC.String(name), "")
}

// Similarity returns the ratio BestMatch computes between a vocabulary entry and a candidate.
func Similarity(entry, candidate string) float64 {
	return difflib.NewMatcher(runes(normalize(entry)), runes(normalize(candidate))).Ratio()
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(norm.NFC.String(s))), " ")
}

func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
