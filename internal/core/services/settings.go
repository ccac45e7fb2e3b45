package services

import (
	"fmt"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyDataDir          = "data_dir"
	keyEmbedProvider    = "embedding.provider"
	keyEmbedModel       = "embedding.model"
	keyEmbedBaseURL     = "embedding.base_url"
	keyEmbedAPIKey      = "embedding.api_key"
	keyEmbedDimensions  = "embedding.dimensions"
	keyEmbedRPS         = "embedding.requests_per_second"
	keyRerankProvider   = "rerank.provider"
	keyRerankBaseURL    = "rerank.base_url"
	keyRerankMinScore   = "rerank.min_score"
	keyPipeline         = "pipeline.processors"
	keyExpertiseDir     = "expertise.dir"
	keyExpertiseExts    = "expertise.extensions"
	pipelineKeyPrefix   = "pipeline."
	defaultOllamaServer = "http://localhost:11434"
)

// processorConfigKeys are the per-processor options read from "pipeline.<name>.<key>".
var processorConfigKeys = []string{"chunk_size", "overlap", "max_length", "min_length"}

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore, aiValidator driven.AIConfigValidator) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
	}
}

// Get retrieves current application settings.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	defaults := domain.DefaultAppSettings()

	settings := &domain.AppSettings{
		DataDir: s.getString(keyDataDir, defaults.DataDir),
		Embedding: domain.EmbeddingSettings{
			Provider:          s.getProvider(keyEmbedProvider, defaults.Embedding.Provider),
			Model:             s.getString(keyEmbedModel, defaults.Embedding.Model),
			BaseURL:           s.configStore.GetString(keyEmbedBaseURL), // empty selects the provider default
			APIKey:            s.configStore.GetString(keyEmbedAPIKey),
			Dimensions:        s.configStore.GetInt(keyEmbedDimensions),
			RequestsPerSecond: s.configStore.GetFloat(keyEmbedRPS),
		},
		Rerank: domain.RerankSettings{
			Provider: s.getRerankProvider(defaults.Rerank.Provider),
			BaseURL:  s.configStore.GetString(keyRerankBaseURL),
			MinScore: s.getFloat(keyRerankMinScore, defaults.Rerank.MinScore),
		},
		Segmenter: s.GetPipelineConfig(),
		Expertise: domain.ExpertiseSettings{
			Dir:        s.configStore.GetString(keyExpertiseDir),
			Extensions: s.getStringSlice(keyExpertiseExts, defaults.Expertise.Extensions),
		},
	}

	return settings, nil
}

// Save persists application settings.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	values := []struct {
		key   string
		value any
	}{
		{keyDataDir, settings.DataDir},
		{keyEmbedProvider, settings.Embedding.Provider.String()},
		{keyEmbedModel, settings.Embedding.Model},
		{keyEmbedBaseURL, settings.Embedding.BaseURL},
		{keyEmbedDimensions, settings.Embedding.Dimensions},
		{keyEmbedRPS, settings.Embedding.RequestsPerSecond},
		{keyRerankProvider, settings.Rerank.Provider.String()},
		{keyRerankBaseURL, settings.Rerank.BaseURL},
		{keyRerankMinScore, settings.Rerank.MinScore},
		{keyPipeline, settings.Segmenter.Processors},
		{keyExpertiseDir, settings.Expertise.Dir},
		{keyExpertiseExts, settings.Expertise.Extensions},
	}
	for _, v := range values {
		if err := s.configStore.Set(v.key, v.value); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}

	if settings.Embedding.APIKey != "" {
		if err := s.configStore.Set(keyEmbedAPIKey, settings.Embedding.APIKey); err != nil {
			return fmt.Errorf("save embedding api_key: %w", err)
		}
	}

	for name, cfg := range settings.Segmenter.ProcessorConfigs {
		for k, v := range cfg {
			if err := s.configStore.Set(pipelineKeyPrefix+name+"."+k, v); err != nil {
				return fmt.Errorf("save pipeline %s.%s: %w", name, k, err)
			}
		}
	}

	return nil
}

// SetEmbeddingProvider configures the embedding provider.
func (s *SettingsService) SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.IsValid() {
		return fmt.Errorf("%w: invalid embedding provider: %s", domain.ErrValidation, provider)
	}

	// Validate API key if required
	if provider.RequiresAPIKey() && apiKey == "" {
		return fmt.Errorf("%w: API key required for %s", domain.ErrValidation, provider)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	settings.Embedding.Provider = provider

	// Set model - use provided or default
	if model != "" {
		settings.Embedding.Model = model
	} else if defaultModel, ok := domain.DefaultEmbeddingModels()[provider]; ok {
		settings.Embedding.Model = defaultModel
	}

	if provider == domain.AIProviderOllama {
		if settings.Embedding.BaseURL == "" {
			settings.Embedding.BaseURL = defaultOllamaServer
		}
	} else {
		settings.Embedding.BaseURL = ""
	}

	settings.Embedding.APIKey = apiKey

	// A dimension override belongs to the previous model.
	settings.Embedding.Dimensions = 0

	return s.Save(settings)
}

// SetRerankProvider configures the re-ranker.
func (s *SettingsService) SetRerankProvider(provider domain.RerankProvider, baseURL string) error {
	if !provider.IsValid() {
		return fmt.Errorf("%w: invalid rerank provider: %s", domain.ErrValidation, provider)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	settings.Rerank.Provider = provider
	if provider == domain.RerankProviderTEI {
		settings.Rerank.BaseURL = baseURL
	} else {
		settings.Rerank.BaseURL = ""
	}

	if s.aiValidator != nil {
		if err := s.aiValidator.ValidateRerank(&settings.Rerank); err != nil {
			return err
		}
	}

	return s.Save(settings)
}

// Validate checks that the current settings can run ingestion and search.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}

	if !settings.Embedding.IsConfigured() {
		return fmt.Errorf("%w: embedding provider %q is not configured",
			domain.ErrEmbeddingUnavailable, settings.Embedding.Provider)
	}
	if !settings.Rerank.Provider.IsValid() {
		return fmt.Errorf("%w: invalid rerank provider: %s", domain.ErrValidation, settings.Rerank.Provider)
	}
	if settings.Rerank.MinScore < 0 || settings.Rerank.MinScore > 1 {
		return fmt.Errorf("%w: rerank min_score %.2f outside [0, 1]", domain.ErrValidation, settings.Rerank.MinScore)
	}
	if len(settings.Segmenter.Processors) == 0 {
		return fmt.Errorf("%w: pipeline has no processors", domain.ErrValidation)
	}

	return nil
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// ValidateEmbeddingConfig validates the current embedding configuration by pinging the provider.
func (s *SettingsService) ValidateEmbeddingConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateEmbedding(&settings.Embedding)
}

// GetPipelineConfig returns the post-processor pipeline configuration.
// Returns default configuration if nothing is configured.
func (s *SettingsService) GetPipelineConfig() domain.PipelineConfig {
	defaults := domain.DefaultPipelineConfig()

	if processors := s.configStore.GetStringSlice(keyPipeline); len(processors) > 0 {
		defaults.Processors = processors
	}

	for _, name := range defaults.Processors {
		cfg := s.loadProcessorConfig(pipelineKeyPrefix + name + ".")
		if len(cfg) == 0 {
			continue
		}
		if defaults.ProcessorConfigs == nil {
			defaults.ProcessorConfigs = make(map[string]map[string]any)
		}
		existing := defaults.ProcessorConfigs[name]
		if existing == nil {
			existing = make(map[string]any)
		}
		for k, v := range cfg {
			existing[k] = v
		}
		defaults.ProcessorConfigs[name] = existing
	}

	return defaults
}

// loadProcessorConfig loads config keys with a given prefix into a map.
func (s *SettingsService) loadProcessorConfig(prefix string) map[string]any {
	cfg := make(map[string]any)
	for _, key := range processorConfigKeys {
		if val, exists := s.configStore.Get(prefix + key); exists {
			cfg[key] = val
		}
	}
	return cfg
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetFloat(key)
}

func (s *SettingsService) getStringSlice(key string, defaultVal []string) []string {
	if val := s.configStore.GetStringSlice(key); len(val) > 0 {
		return val
	}
	return defaultVal
}

func (s *SettingsService) getProvider(key string, defaultVal domain.AIProvider) domain.AIProvider {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	provider := domain.AIProvider(val)
	if !provider.IsValid() {
		return defaultVal
	}
	return provider
}

func (s *SettingsService) getRerankProvider(defaultVal domain.RerankProvider) domain.RerankProvider {
	provider := domain.RerankProvider(s.configStore.GetString(keyRerankProvider))
	if !provider.IsValid() {
		return defaultVal
	}
	return provider
}
