package postprocessors

import (
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/postprocessors/chunker"
	"github.com/custodia-labs/sercha-rag/internal/postprocessors/merge"
	"github.com/custodia-labs/sercha-rag/internal/postprocessors/sentence"
)

// RegisterDefaults registers all built-in processors with the registry.
func RegisterDefaults(r *Registry) {
	r.Register("sentence", buildSentence)
	r.Register("chunker", buildChunker)
	r.Register("merge", buildMerge)
}

// NewDefaultSegmenter builds the segmenter described by cfg using the
// built-in processors.
func NewDefaultSegmenter(cfg domain.PipelineConfig) (*Pipeline, error) {
	r := NewRegistry()
	RegisterDefaults(r)
	return r.BuildPipeline(cfg)
}

// buildSentence supports:
//   - max_length (int): hard cap in characters for a single sentence (default: none)
func buildSentence(cfg map[string]any) (driven.PostProcessor, error) {
	var opts []sentence.Option
	if size := getIntFromConfig(cfg, "max_length"); size > 0 {
		opts = append(opts, sentence.WithMaxLength(size))
	}
	return sentence.New(opts...), nil
}

// buildChunker supports:
//   - chunk_size (int): Characters per chunk (default: 1000)
//   - overlap (int): Overlapping characters between chunks (default: 200)
func buildChunker(cfg map[string]any) (driven.PostProcessor, error) {
	var opts []chunker.Option

	if size := getIntFromConfig(cfg, "chunk_size"); size > 0 {
		opts = append(opts, chunker.WithChunkSize(size))
	}
	if _, ok := cfg["overlap"]; ok {
		opts = append(opts, chunker.WithOverlap(getIntFromConfig(cfg, "overlap")))
	}

	return chunker.New(opts...), nil
}

// buildMerge supports:
//   - min_length (int): chunks shorter than this are joined with the next (default: 40)
//   - max_length (int): a merge never grows a chunk past this (default: none)
func buildMerge(cfg map[string]any) (driven.PostProcessor, error) {
	var opts []merge.Option
	if n := getIntFromConfig(cfg, "min_length"); n > 0 {
		opts = append(opts, merge.WithMinLength(n))
	}
	if n := getIntFromConfig(cfg, "max_length"); n > 0 {
		opts = append(opts, merge.WithMaxLength(n))
	}
	return merge.New(opts...), nil
}

// getIntFromConfig safely extracts an int from generic config map.
// Handles int, int64, and float64 types that may come from TOML/JSON parsing.
func getIntFromConfig(cfg map[string]any, key string) int {
	val, ok := cfg[key]
	if !ok {
		return 0
	}

	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
