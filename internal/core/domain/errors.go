package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates an input or constraint check failed:
	// an address component out of range, an id owned by another key,
	// empty atom text, a malformed vector blob.
	ErrValidation = errors.New("validation failed")

	// ErrConsistency indicates the relational store and the vector index disagree,
	// or persisted data could not be read back.
	ErrConsistency = errors.New("consistency violation")

	// ErrTransaction indicates a transaction could not be committed.
	ErrTransaction = errors.New("transaction failed")

	// ErrNotImplemented indicates functionality is not yet available.
	ErrNotImplemented = errors.New("not implemented")

	// ErrNotReady indicates the retrieval service has not finished hydration.
	ErrNotReady = errors.New("retrieval service not ready")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	// Ingestion and search are disabled without embeddings.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrRerankerUnavailable indicates the re-ranking model could not be reached.
	ErrRerankerUnavailable = errors.New("reranker unavailable")

	// ErrUnsupportedType indicates an unknown provider, segmenter or normaliser name.
	ErrUnsupportedType = errors.New("unsupported type")
)
