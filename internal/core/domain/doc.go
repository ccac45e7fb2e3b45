// Package domain defines the core entities of the semantic retrieval engine.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Sid: the packed 64-bit address shared by atoms and vector entries
//   - SemanticDomain: a named partition of documents
//   - SemanticDocument: a keyed text source within a domain
//   - Atom: one embedded chunk of a document
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
