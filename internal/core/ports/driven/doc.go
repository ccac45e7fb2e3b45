// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - SemanticStore: domains, documents and atoms (SQLite)
//   - VectorIndex: per-domain nearest-neighbour partitions (in memory)
//   - EmbeddingService: text to vector
//   - Segmenter: text to ordered chunks
//   - Reranker: scores candidates against the query
//   - ConfigStore: application configuration
//
// # Optional Interfaces
//
//   - NormaliserRegistry: converts expertise files to text. Without it files are read verbatim.
//   - AIConfigValidator: pings providers before settings are saved.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or infrastructure package
package driven
