// Package rerank holds what the rerank backends share.
package rerank

import (
	"sort"

	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Select drops hits below minScore, orders the rest by score descending
// (ties by candidate index) and keeps at most topK. A non-positive topK keeps all.
func Select(hits []driven.RerankHit, minScore float64, topK int) []driven.RerankHit {
	out := make([]driven.RerankHit, 0, len(hits))
	for _, h := range hits {
		if h.Score >= minScore {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Index < out[j].Index
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}
