package driven

import "context"

// Reranker scores candidate texts against the raw query, typically with a
// cross-encoder.
type Reranker interface {
	// Rerank returns hits for candidates scoring at least minScore, ordered by
	// score descending and truncated to topK. Index refers to the candidates slice.
	Rerank(ctx context.Context, query string, candidates []string, minScore float64, topK int) ([]RerankHit, error)

	// Name identifies the backend for logging.
	Name() string
}

// RerankHit is a scored candidate.
type RerankHit struct {
	Index int
	Score float64
}
