// Package sqlite provides the SQLite implementation of driven.SemanticStore.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. One database holds three tables:
//
//   - semantic_domain: 16-bit domain ids keyed by name
//   - semantic_document: 16-bit document ids keyed by (domain, key)
//   - semantic_atom: chunk text and raw float32 vector keyed by Sid
//
// Deleting a domain cascades to its documents, and deleting a document
// cascades to its atoms.
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.sercha-rag/data/semantic.db
//
// # Transactions
//
// Begin/Commit nest through a depth counter; only the outermost Commit reaches
// SQLite. Every statement issued while a transaction is open joins it, whichever
// goroutine issues it. Sequential id assignment is serialised by a writer mutex.
package sqlite
