package domain

import "time"

// SemanticDomain is a named partition of documents. Every domain owns exactly
// one vector index partition.
type SemanticDomain struct {
	// ID is the 16-bit domain id, assigned sequentially from 0.
	ID uint16

	// Key is the unique external name, e.g. an expertise folder name.
	Key string

	// Meta is an optional free-form description.
	Meta string

	// Temporary domains are purged on the next hydration.
	Temporary bool

	Created time.Time
}

// SemanticDocument is one keyed text source within a domain.
type SemanticDocument struct {
	// ID is unique within the domain and assigned sequentially from 0.
	ID uint16

	DomainID uint16

	// Key is unique within the domain, typically a file path or URL.
	Key string

	Meta string

	// Mtime is the modification time of the source when it was ingested.
	Mtime time.Time

	Created time.Time
}

// Atom is one embedded chunk of a document's text.
type Atom struct {
	// ID packs the owning domain and document with the chunk's ordinal.
	ID Sid

	Text string

	// Vector is the raw embedding as produced by the embedding model.
	Vector []float32

	Created time.Time
}

// DomainID returns the owning domain decoded from the atom id.
func (a *Atom) DomainID() uint16 {
	return a.ID.DomainID()
}

// DocumentID returns the owning document decoded from the atom id.
func (a *Atom) DocumentID() uint16 {
	return a.ID.DocumentID()
}

// UpsertResult reports the id touched by a create-or-update and whether it was new.
type UpsertResult struct {
	ID      uint16
	Created bool
}

// LifecycleState tracks retrieval service readiness.
type LifecycleState int

// Lifecycle states of the retrieval service.
const (
	StateUninitialized LifecycleState = iota
	StateHydrating
	StateReady
)

// String returns the string representation.
func (s LifecycleState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateHydrating:
		return "hydrating"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}
