package domain

const unknownDescription = "Unknown"

// AIProvider identifies an embedding service provider.
type AIProvider string

// Available embedding providers.
const (
	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API or any compatible /v1/embeddings server.
	AIProviderOpenAI AIProvider = "openai"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	default:
		return unknownDescription
	}
}

// RerankProvider identifies the re-ranking backend.
type RerankProvider string

// Available re-ranking backends.
const (
	// RerankProviderTEI is a cross-encoder served by a text-embeddings-inference
	// compatible /rerank endpoint.
	RerankProviderTEI RerankProvider = "tei"

	// RerankProviderCosine scores candidates by embedding similarity to the query.
	// It needs no extra model server.
	RerankProviderCosine RerankProvider = "cosine"
)

// IsValid returns true if the rerank provider is recognised.
func (p RerankProvider) IsValid() bool {
	return p == RerankProviderTEI || p == RerankProviderCosine
}

// String returns the string representation.
func (p RerankProvider) String() string {
	return string(p)
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	Provider AIProvider

	Model string

	// BaseURL is the API endpoint. Empty selects the provider default.
	BaseURL string

	// APIKey is the API key (for OpenAI).
	APIKey string

	// Dimensions overrides the known model dimension table when positive.
	Dimensions int

	// RequestsPerSecond throttles calls to the provider. Zero disables throttling.
	RequestsPerSecond float64
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// RerankSettings holds re-ranker configuration.
type RerankSettings struct {
	Provider RerankProvider

	// BaseURL is the /rerank server for the tei provider.
	BaseURL string

	// MinScore drops candidates scored below it.
	MinScore float64
}

// ExpertiseSettings configures the folder of expertise domains.
type ExpertiseSettings struct {
	// Dir holds one subdirectory per domain.
	Dir string

	// Extensions lists the file suffixes indexed as documents.
	Extensions []string
}

// PipelineConfig holds segmenter pipeline configuration.
// Uses generic map-based config for extensibility - new processors can be added
// without modifying this struct.
type PipelineConfig struct {
	// Processors is the ordered list of processor names to run.
	Processors []string

	// ProcessorConfigs holds per-processor configuration as generic maps.
	// Key is processor name, value is processor-specific config.
	ProcessorConfigs map[string]map[string]any
}

// GetProcessorConfig returns config for a specific processor, or nil if not set.
func (c *PipelineConfig) GetProcessorConfig(name string) map[string]any {
	if c.ProcessorConfigs == nil {
		return nil
	}
	return c.ProcessorConfigs[name]
}

// DefaultPipelineConfig splits text into sentences, then folds very short
// sentences into their neighbour.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Processors: []string{"sentence", "merge"},
		ProcessorConfigs: map[string]map[string]any{
			"merge": {
				"min_length": 40,
			},
		},
	}
}

// AppSettings holds all application settings.
type AppSettings struct {
	// DataDir holds the SQLite database.
	DataDir string

	Embedding EmbeddingSettings

	Rerank RerankSettings

	Segmenter PipelineConfig

	Expertise ExpertiseSettings
}

// DefaultAppSettings returns settings with sensible defaults.
// The embedding provider defaults to a local Ollama instance.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Embedding: EmbeddingSettings{
			Provider: AIProviderOllama,
			Model:    DefaultEmbeddingModels()[AIProviderOllama],
		},
		Rerank: RerankSettings{
			Provider: RerankProviderCosine,
			MinScore: DefaultMinRerankScore,
		},
		Segmenter: DefaultPipelineConfig(),
		Expertise: ExpertiseSettings{
			Extensions: []string{".md", ".txt"},
		},
	}
}

// AllEmbeddingProviders returns providers that support embeddings.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "nomic-embed-text",
		AIProviderOpenAI: "text-embedding-3-small",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
	}
}
