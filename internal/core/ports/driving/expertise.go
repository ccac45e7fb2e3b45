package driving

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// ExpertiseService mirrors a folder tree into persistent domains.
// Each subdirectory is a domain; readable files within it are documents.
type ExpertiseService interface {
	// Sync reconciles every subdirectory with its domain. Per-file failures
	// are collected in the report rather than aborting the run.
	Sync(ctx context.Context) (*domain.SyncReport, error)

	// Watch re-syncs whenever the folder changes, until ctx is cancelled.
	Watch(ctx context.Context, onSync func(*domain.SyncReport)) error

	// Search queries one expertise domain by key.
	// Returns domain.ErrNotFound when the domain does not exist.
	Search(ctx context.Context, domainKey, query string, topK int) (domain.SearchResults, error)
}
