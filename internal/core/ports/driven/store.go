package driven

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// Transactor exposes the nestable transaction protocol of the relational store.
//
// Begin returns a context carrying the transaction; store calls made with
// that context run inside it, and calls made with any other context do not.
// Begin on a context that already carries an open transaction only
// increments a depth counter. The matching Commit decrements it and only the
// outermost Commit reaches the database. Rollback at any depth discards the
// whole transaction and resets the depth to zero.
type Transactor interface {
	Begin(ctx context.Context) (context.Context, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// Depth returns the nesting depth of the transaction carried by ctx;
	// zero means none is open.
	Depth(ctx context.Context) int
}

// DomainStore persists semantic domains.
type DomainStore interface {
	// SetDomain creates the domain or returns the id of the existing one with
	// the same key, unchanged. A zero-valued d.ID with explicitID false lets the
	// store assign max(id)+1.
	SetDomain(ctx context.Context, d *domain.SemanticDomain, explicitID bool) (domain.UpsertResult, error)

	// GetDomain retrieves a domain by id.
	GetDomain(ctx context.Context, id uint16) (*domain.SemanticDomain, error)

	// GetDomainByKey retrieves a domain by key.
	GetDomainByKey(ctx context.Context, key string) (*domain.SemanticDomain, error)

	// ListDomains returns domains ordered by id. A nil temporary lists all.
	ListDomains(ctx context.Context, temporary *bool) ([]domain.SemanticDomain, error)

	// UnsetDomain deletes a domain with its documents and atoms.
	// Returns false when the domain did not exist.
	UnsetDomain(ctx context.Context, id uint16) (bool, error)
}

// DocumentStore persists semantic documents.
type DocumentStore interface {
	// SetDocument creates or updates a document by (domain, key). An existing
	// key keeps its id; new keys receive max(id in domain)+1 unless explicitID is set.
	SetDocument(ctx context.Context, doc *domain.SemanticDocument, explicitID bool) (domain.UpsertResult, error)

	GetDocument(ctx context.Context, domainID, documentID uint16) (*domain.SemanticDocument, error)

	GetDocumentByKey(ctx context.Context, domainID uint16, key string) (*domain.SemanticDocument, error)

	// ListDocuments returns a domain's documents ordered by id.
	ListDocuments(ctx context.Context, domainID uint16) ([]domain.SemanticDocument, error)

	// UnsetDocument deletes a document and its atoms.
	UnsetDocument(ctx context.Context, domainID, documentID uint16) (bool, error)
}

// AtomStore persists atoms keyed by Sid.
type AtomStore interface {
	// SetAtom creates or replaces the atom at a.ID.
	// Empty text or a nil vector fail with domain.ErrValidation.
	SetAtom(ctx context.Context, a *domain.Atom) error

	// GetAtom retrieves one atom by Sid.
	GetAtom(ctx context.Context, id domain.Sid) (*domain.Atom, error)

	// GetAtoms retrieves the given atoms; missing ids are omitted.
	GetAtoms(ctx context.Context, ids []domain.Sid) (map[domain.Sid]*domain.Atom, error)

	// ListAtoms returns every atom of a domain ordered by Sid.
	ListAtoms(ctx context.Context, domainID uint16) ([]domain.Atom, error)

	// UnsetAtoms deletes every atom of a document. Returns the count removed.
	UnsetAtoms(ctx context.Context, domainID, documentID uint16) (int, error)
}

// SemanticStore is the relational source of truth for domains, documents and atoms.
type SemanticStore interface {
	Transactor
	DomainStore
	DocumentStore
	AtomStore

	// Close releases the database handle.
	Close() error
}
