package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/ai"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/config/file"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/vector/flat"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/cli"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/services"
	"github.com/custodia-labs/sercha-rag/internal/logger"
	"github.com/custodia-labs/sercha-rag/internal/normalisers"
	"github.com/custodia-labs/sercha-rag/internal/postprocessors"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	configStore, err := file.NewConfigStore("")
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	settingsService := services.NewSettingsService(configStore, ai.NewConfigValidator())
	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	dataDir := settings.DataDir
	if dataDir == "" {
		dataDir = filepath.Dir(configStore.Path())
	}
	store, err := sqlite.NewStore(dataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	segmenter, err := postprocessors.NewDefaultSegmenter(settings.Segmenter)
	if err != nil {
		return fmt.Errorf("build segmenter: %w", err)
	}

	// Commands that do not search or ingest still work without a provider.
	var (
		embedder driven.EmbeddingService
		reranker driven.Reranker
	)
	models, err := ai.NewServices(ctx, settings, false)
	if err != nil {
		logger.Warn("semantic search unavailable: %v", err)
	} else {
		defer models.Close()
		embedder, reranker = models.Embedding, models.Reranker
	}

	dimensions := 0
	if embedder != nil {
		dimensions = embedder.Dimensions()
	}

	retrieval := services.NewRetrievalService(store, flat.New(dimensions), embedder, reranker, segmenter,
		services.WithMinScore(settings.Rerank.MinScore))
	registry := normalisers.NewDefaultRegistry()
	cli.SetVersion(version)
	cli.SetDeps(cli.Deps{
		Settings:    settingsService,
		Retrieval:   retrieval,
		Expertise:   services.NewExpertiseService(retrieval, registry, settings.Expertise),
		ConfigStore: configStore,
		Normalisers: registry,
		Startup: func(ctx context.Context) error {
			if err := retrieval.Hydrate(ctx); err != nil {
				logger.Warn("hydration failed, retrieval is unavailable: %v", err)
			}
			return nil
		},
	})

	return cli.Execute()
}
