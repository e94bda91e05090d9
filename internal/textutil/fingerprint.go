package textutil

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

var tokenSplitPattern = regexp.MustCompile(`[^a-z0-9]+`)

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "your": {}, "you": {}, "how": {},
	"what": {}, "are": {}, "from": {}, "that": {}, "this": {}, "best": {}, "guide": {},
}

// Fingerprint is a term-frequency vector used to compare short texts such as
// keywords and titles.
type Fingerprint struct {
	tokens map[string]float64
	norm   float64
}

// NewFingerprint creates a fingerprint from the provided text.
// Returns nil if the text produces no usable tokens.
func NewFingerprint(text string) *Fingerprint {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	counts := make(map[string]float64, len(tokens))
	for _, token := range tokens {
		counts[token]++
	}
	var norm float64
	for _, count := range counts {
		norm += count * count
	}
	return &Fingerprint{tokens: counts, norm: math.Sqrt(norm)}
}

// Tokenize splits text into lowercase tokens, dropping stop words and tokens
// shorter than 3 characters.
func Tokenize(text string) []string {
	raw := tokenSplitPattern.Split(strings.ToLower(foldAccents(text)), -1)
	terms := make([]string, 0, len(raw))
	for _, token := range raw {
		if len(token) < 3 {
			continue
		}
		if _, stop := stopWords[token]; stop {
			continue
		}
		terms = append(terms, token)
	}
	return terms
}

// CosineSimilarity computes the cosine similarity between two fingerprints.
// Returns 0 if either fingerprint is nil.
func CosineSimilarity(a, b *Fingerprint) float64 {
	if a == nil || b == nil || a.norm == 0 || b.norm == 0 {
		return 0
	}
	var dot float64
	for token, count := range a.tokens {
		if other, ok := b.tokens[token]; ok {
			dot += count * other
		}
	}
	return dot / (a.norm * b.norm)
}

// Ranked is one candidate scored against a query.
type Ranked struct {
	Index int
	Score float64
}

// RankBySimilarity scores every candidate against query and returns the
// indices of candidates with a positive score, best first. Ties keep the
// candidates' original order.
func RankBySimilarity(query string, candidates []string) []Ranked {
	q := NewFingerprint(query)
	if q == nil {
		return nil
	}
	ranked := make([]Ranked, 0, len(candidates))
	for idx, candidate := range candidates {
		score := CosineSimilarity(q, NewFingerprint(candidate))
		if score > 0 {
			ranked = append(ranked, Ranked{Index: idx, Score: score})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	return ranked
}
