// Package similarity finds reusable cache entries for prompts that are not
// exact fingerprint matches. It is a coarse bag-of-words heuristic over
// token sets, not semantic similarity, and scans every entry per query.
package similarity

import (
	"strings"

	"github.com/halvard/meshgen/internal/fingerprint"
	"github.com/halvard/meshgen/internal/storage"
)

// DefaultThreshold is the minimum Jaccard score the reuse engine accepts.
const DefaultThreshold = 0.92

// EntrySource supplies the cache entries to scan, in stable order.
type EntrySource interface {
	AllCacheEntries() ([]storage.CacheEntry, error)
}

// Index scans cache entries for the best token-overlap match.
type Index struct {
	source EntrySource
}

// NewIndex creates an Index over the given entry source.
func NewIndex(source EntrySource) *Index {
	return &Index{source: source}
}

// FindSimilar returns the highest-scoring cache entry whose Jaccard
// similarity to the query prompt is >= threshold, or false if none
// qualifies. An empty query never matches. Ties go to the first entry in
// scan order that reached the maximum score.
func (idx *Index) FindSimilar(prompt string, threshold float64) (storage.CacheEntry, bool, error) {
	query := Tokens(prompt)
	if len(query) == 0 {
		return storage.CacheEntry{}, false, nil
	}

	entries, err := idx.source.AllCacheEntries()
	if err != nil {
		return storage.CacheEntry{}, false, err
	}

	var best storage.CacheEntry
	bestScore := 0.0
	for _, e := range entries {
		candidate := Tokens(e.Prompt)
		if len(candidate) == 0 {
			continue
		}
		if j := Jaccard(query, candidate); j > bestScore {
			bestScore = j
			best = e
		}
	}

	if bestScore >= threshold {
		return best, true, nil
	}
	return storage.CacheEntry{}, false, nil
}

// Tokens splits a prompt into its set of normalized whitespace-delimited tokens.
func Tokens(prompt string) map[string]struct{} {
	fields := strings.Fields(fingerprint.Normalize(prompt))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// Jaccard computes |intersection| / |union| of two token sets.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
