// Package cosine reranks by cosine similarity between the query and candidate
// embeddings. It needs no extra model server.
package cosine

import (
	"context"
	"fmt"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/rerank"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure Reranker implements the interface.
var _ driven.Reranker = (*Reranker)(nil)

// Reranker scores candidates with an embedding service.
type Reranker struct {
	embedder driven.EmbeddingService
}

// New creates a cosine reranker.
func New(embedder driven.EmbeddingService) *Reranker {
	return &Reranker{embedder: embedder}
}

// Name identifies the backend.
func (r *Reranker) Name() string {
	return "cosine"
}

// Rerank embeds the query with the candidates in one batch and scores each
// candidate by cosine similarity.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []string, minScore float64, topK int) ([]driven.RerankHit, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	texts := make([]string, 0, len(candidates)+1)
	texts = append(texts, query)
	texts = append(texts, candidates...)

	vectors, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrRerankerUnavailable, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", domain.ErrRerankerUnavailable, len(vectors), len(texts))
	}

	q := domain.Normalize(vectors[0])
	hits := make([]driven.RerankHit, len(candidates))
	for i, v := range vectors[1:] {
		hits[i] = driven.RerankHit{Index: i, Score: domain.Dot(q, domain.Normalize(v))}
	}
	return rerank.Select(hits, minScore, topK), nil
}
