// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the engine to function:
//
//   - EmbeddingService: Maps text to vectors, order-preserving in batches
//   - VectorIndex: Exact nearest-neighbour search under metadata filters
//   - ModelBackend: Retrying, failing-over access to generation providers
//   - PromptStore: Prompt templates by id
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the engine degrades gracefully:
//
//   - EmbeddingCache: Content-hash cache in front of the EmbeddingService
//   - CorpusStore: Durable copy of ingested documents, used for rebuilds
//   - SnapshotStore: Opaque byte sink for index snapshots
//   - SchemaStore: Named output schemas for callers that refer to them by id
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
