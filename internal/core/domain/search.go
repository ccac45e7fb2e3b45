package domain

import (
	"sort"
)

// Search defaults.
const (
	// DefaultTopK is the number of hits kept after re-ranking when the caller passes 0.
	DefaultTopK = 10

	// DefaultMinRerankScore drops candidates the re-ranker scores below this value.
	DefaultMinRerankScore = 0.5
)

// SearchOptions configures a search query.
type SearchOptions struct {
	// TopK is the maximum number of hits after re-ranking.
	TopK int

	// MinScore overrides DefaultMinRerankScore when positive.
	MinScore float64

	// DocumentIDs restricts candidates to these documents. Nil means no
	// restriction; a non-nil empty slice matches nothing.
	DocumentIDs []uint16
}

// SearchHit is one re-ranked atom.
type SearchHit struct {
	AtomID Sid
	Score  float64
	Text   string
}

// SearchResults groups hits by document key. Within each group hits are
// ordered by ascending atom id, i.e. in document order.
type SearchResults map[string][]SearchHit

// Len returns the total number of hits across all documents.
func (r SearchResults) Len() int {
	n := 0
	for _, hits := range r {
		n += len(hits)
	}
	return n
}

// BestScore returns the highest score within one document group.
func (r SearchResults) BestScore(key string) float64 {
	best := 0.0
	for i, h := range r[key] {
		if i == 0 || h.Score > best {
			best = h.Score
		}
	}
	return best
}

// Keys returns document keys ordered by best score descending, then by key.
func (r SearchResults) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		bi, bj := r.BestScore(keys[i]), r.BestScore(keys[j])
		if bi != bj {
			return bi > bj
		}
		return keys[i] < keys[j]
	})
	return keys
}
