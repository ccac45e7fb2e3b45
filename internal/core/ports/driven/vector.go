package driven

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// VectorIndex holds one in-memory nearest-neighbour partition per domain.
// Entries are keyed by Sid and stored unit-normalised so cosine similarity is
// a dot product. The index is derived state and can always be rebuilt from
// the atoms in the relational store.
type VectorIndex interface {
	// EnsureDomain creates the partition if absent.
	EnsureDomain(ctx context.Context, domainID uint16) error

	// Add appends vectors under the given ids. No deduplication is performed.
	Add(ctx context.Context, domainID uint16, ids []domain.Sid, vectors [][]float32) error

	// RemoveDomain drops the partition.
	RemoveDomain(ctx context.Context, domainID uint16) error

	// RemoveDocument drops every entry of one document, across all item ids.
	// Returns the number of entries removed.
	RemoveDocument(ctx context.Context, domainID, documentID uint16) (int, error)

	// Query returns up to max(k*8, 64) nearest entries, similarity descending,
	// deduplicated by id. A nil allowedDocs admits every document; otherwise
	// only the listed documents are admitted, so an empty list yields no hits.
	// An unknown domain yields no hits.
	Query(ctx context.Context, domainID uint16, vector []float32, k int, allowedDocs []uint16) ([]VectorHit, error)

	// IDs returns the live ids of a partition in ascending order.
	IDs(ctx context.Context, domainID uint16) ([]domain.Sid, error)

	// Len returns the number of entries in a partition. An id added twice
	// counts twice; IDs reports distinct ids.
	Len(domainID uint16) int

	// Close releases resources.
	Close() error
}

// VectorHit represents a similarity search result.
type VectorHit struct {
	ID domain.Sid

	// Similarity is the cosine similarity score (-1..1).
	Similarity float64
}
