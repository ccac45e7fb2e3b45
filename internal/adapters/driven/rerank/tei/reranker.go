// Package tei reranks with a cross-encoder served by Hugging Face
// text-embeddings-inference (POST /rerank).
package tei

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/httpapi"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/rerank"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure Reranker implements the interface.
var _ driven.Reranker = (*Reranker)(nil)

// Default configuration values.
const (
	DefaultBaseURL = "http://localhost:8080"
	DefaultTimeout = 30 * time.Second
)

// Config holds configuration for the TEI reranker.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// Reranker calls a TEI /rerank endpoint.
type Reranker struct {
	api     *httpapi.Client
	baseURL string
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
	Truncate  bool     `json:"truncate"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// New creates a TEI reranker.
func New(cfg Config) *Reranker {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Reranker{
		api: httpapi.New("tei", cfg.Timeout, domain.ErrRerankerUnavailable,
			httpapi.WithHTTPClient(cfg.HTTPClient),
			httpapi.WithRateLimit(cfg.RequestsPerSecond, httpapi.DefaultBackoff)),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// Name identifies the backend.
func (r *Reranker) Name() string {
	return "tei"
}

// Rerank scores candidates with the cross-encoder. Scores are sigmoid-normalised
// by the server.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []string, minScore float64, topK int) ([]driven.RerankHit, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	var results []rerankResult
	err := r.api.Do(ctx, httpapi.Request{
		URL:  r.baseURL + "/rerank",
		Body: rerankRequest{Query: query, Texts: candidates, Truncate: true},
	}, &results)
	if err != nil {
		return nil, err
	}

	hits := make([]driven.RerankHit, 0, len(results))
	for _, res := range results {
		if res.Index < 0 || res.Index >= len(candidates) {
			return nil, fmt.Errorf("%w: tei returned index %d for %d candidates",
				domain.ErrRerankerUnavailable, res.Index, len(candidates))
		}
		hits = append(hits, driven.RerankHit{Index: res.Index, Score: res.Score})
	}
	return rerank.Select(hits, minScore, topK), nil
}

// Ping checks the server health endpoint.
func (r *Reranker) Ping(ctx context.Context) error {
	return r.api.Do(ctx, httpapi.Request{Method: http.MethodGet, URL: r.baseURL + "/health"}, nil)
}
