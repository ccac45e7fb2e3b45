package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// RetrievalService coordinates the relational store and the vector index.
// Used by the CLI, MCP and expertise adapters.
//
// A domain reference (ref) is a domain key or, when no domain has that key,
// a decimal domain id.
type RetrievalService interface {
	// Hydrate purges temporary domains and rebuilds every persistent partition.
	Hydrate(ctx context.Context) error

	// State reports the lifecycle state.
	State() domain.LifecycleState

	// AddDomain creates the domain or returns the existing one with that key.
	AddDomain(ctx context.Context, key string, temporary bool, description string) (*domain.SemanticDomain, error)

	// HasDomain reports whether ref resolves to a domain.
	HasDomain(ctx context.Context, ref string) (bool, error)

	// GetDomain resolves ref. Returns domain.ErrNotFound when absent.
	GetDomain(ctx context.Context, ref string) (*domain.SemanticDomain, error)

	// ListDomains returns all domains ordered by id.
	ListDomains(ctx context.Context) ([]domain.SemanticDomain, error)

	// RemoveDomain deletes the domain, its documents and atoms, and its partition.
	// Returns false when ref did not resolve.
	RemoveDomain(ctx context.Context, ref string) (bool, error)

	// AddDocument segments, embeds and stores text under (domainID, key),
	// replacing any atoms previously stored for that key.
	AddDocument(ctx context.Context, domainID uint16, key, text string, mtime time.Time, description string) (*domain.SemanticDocument, error)

	// GetDocument looks a document up by key within a domain.
	GetDocument(ctx context.Context, domainID uint16, key string) (*domain.SemanticDocument, error)

	// RemoveDocument deletes a document's index entries and rows.
	// Returns false when the document did not exist.
	RemoveDocument(ctx context.Context, domainID, documentID uint16) (bool, error)

	// ListDocuments returns a domain's documents ordered by id.
	ListDocuments(ctx context.Context, domainID uint16) ([]domain.SemanticDocument, error)

	// Search returns re-ranked hits grouped by document key.
	Search(ctx context.Context, ref, query string, opts domain.SearchOptions) (domain.SearchResults, error)

	// Reconcile rebuilds one domain's partition from its persisted atoms.
	Reconcile(ctx context.Context, domainID uint16) (*domain.ReconcileReport, error)
}
