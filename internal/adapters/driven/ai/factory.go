// Package ai builds the embedding and rerank adapters from settings.
package ai

import (
	"context"
	"fmt"
	"time"

	ollamaembed "github.com/custodia-labs/sercha-rag/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/sercha-rag/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/rerank/cosine"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/rerank/tei"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// Services holds the model-backed collaborators of the retrieval service.
type Services struct {
	Embedding driven.EmbeddingService
	Reranker  driven.Reranker
}

// Close releases all resources held by Services.
func (s *Services) Close() {
	if s.Embedding != nil {
		s.Embedding.Close()
	}
}

// NewServices creates the embedding service and reranker. When validate is
// set the embedding provider (and a tei reranker) must answer a ping.
func NewServices(ctx context.Context, settings *domain.AppSettings, validate bool) (*Services, error) {
	var (
		embedder driven.EmbeddingService
		err      error
	)
	if validate {
		embedder, err = CreateAndValidateEmbeddingService(ctx, &settings.Embedding)
	} else {
		embedder, err = CreateEmbeddingService(&settings.Embedding)
	}
	if err != nil {
		return nil, err
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: no embedding provider configured. Run 'sercha-rag config set embedding.provider ollama' to fix",
			domain.ErrEmbeddingUnavailable)
	}

	reranker, err := CreateReranker(&settings.Rerank, embedder)
	if err != nil {
		embedder.Close()
		return nil, err
	}
	if validate {
		if err := pingReranker(ctx, reranker); err != nil {
			embedder.Close()
			return nil, err
		}
	}

	return &Services{Embedding: embedder, Reranker: reranker}, nil
}

// CreateAndValidateEmbeddingService creates an embedding service and validates connectivity.
func CreateAndValidateEmbeddingService(ctx context.Context, settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	svc, err := CreateEmbeddingService(settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := svc.Ping(ctx); err != nil {
		svc.Close()
		return nil, fmt.Errorf("%w: service unreachable (%w). Check 'sercha-rag config get embedding.base_url'",
			domain.ErrEmbeddingUnavailable, err)
	}

	return svc, nil
}

// ValidateEmbeddingConfig creates a service from settings and pings it.
func ValidateEmbeddingConfig(settings *domain.EmbeddingSettings) error {
	if settings == nil || !settings.IsConfigured() {
		return nil
	}

	svc, err := CreateEmbeddingService(settings)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return svc.Ping(ctx)
}

// ValidateRerankConfig checks the provider and, for tei, pings the server.
func ValidateRerankConfig(settings *domain.RerankSettings) error {
	if settings == nil {
		return nil
	}
	if !settings.Provider.IsValid() {
		return fmt.Errorf("%w: unsupported rerank provider: %s", domain.ErrValidation, settings.Provider)
	}
	if settings.MinScore < 0 || settings.MinScore > 1 {
		return fmt.Errorf("%w: rerank min score %.2f outside [0, 1]", domain.ErrValidation, settings.MinScore)
	}
	if settings.Provider != domain.RerankProviderTEI {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return tei.New(tei.Config{BaseURL: settings.BaseURL}).Ping(ctx)
}

// CreateEmbeddingService creates the appropriate embedding service based on settings.
// Returns nil if the provider is not configured.
func CreateEmbeddingService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderOllama:
		return createOllamaEmbedding(settings), nil
	case domain.AIProviderOpenAI:
		return createOpenAIEmbedding(settings)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", settings.Provider)
	}
}

// CreateReranker creates the configured reranker. The cosine backend reuses embedder.
func CreateReranker(settings *domain.RerankSettings, embedder driven.EmbeddingService) (driven.Reranker, error) {
	provider := domain.RerankProviderCosine
	if settings != nil && settings.Provider != "" {
		provider = settings.Provider
	}

	switch provider {
	case domain.RerankProviderTEI:
		return tei.New(tei.Config{BaseURL: settings.BaseURL}), nil
	case domain.RerankProviderCosine:
		if embedder == nil {
			return nil, fmt.Errorf("%w: cosine reranking needs an embedding service", domain.ErrRerankerUnavailable)
		}
		return cosine.New(embedder), nil
	default:
		return nil, fmt.Errorf("%w: unsupported rerank provider: %s", domain.ErrValidation, provider)
	}
}

// pinger is implemented by rerankers backed by a server.
type pinger interface {
	Ping(ctx context.Context) error
}

func pingReranker(ctx context.Context, r driven.Reranker) error {
	p, ok := r.(pinger)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %s reranker unreachable (%w)", domain.ErrRerankerUnavailable, r.Name(), err)
	}
	return nil
}

// createOllamaEmbedding creates an Ollama embedding service.
func createOllamaEmbedding(settings *domain.EmbeddingSettings) driven.EmbeddingService {
	dimensions := settings.Dimensions
	if dimensions == 0 {
		dimensions = domain.EmbeddingDimensions()[settings.Model]
	}
	if dimensions == 0 {
		dimensions = ollamaembed.DefaultDimensions
	}

	return ollamaembed.NewEmbeddingService(ollamaembed.Config{
		BaseURL:           settings.BaseURL,
		Model:             settings.Model,
		Dimensions:        dimensions,
		RequestsPerSecond: settings.RequestsPerSecond,
	})
}

// createOpenAIEmbedding creates an OpenAI embedding service.
func createOpenAIEmbedding(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	dimensions := settings.Dimensions
	if dimensions == 0 {
		dimensions = domain.EmbeddingDimensions()[settings.Model]
	}

	return openaiembed.NewEmbeddingService(openaiembed.Config{
		APIKey:            settings.APIKey,
		BaseURL:           settings.BaseURL,
		Model:             settings.Model,
		Dimensions:        dimensions,
		RequestsPerSecond: settings.RequestsPerSecond,
	})
}
