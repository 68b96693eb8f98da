// Package domain defines the core business entities for exportrag.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: An immutable corpus entry with regulatory metadata
//   - ScoredDocument: A document matched by a query, with its boost
//   - MetadataFilter: A hard constraint over document metadata
//   - OutputSchema: The declared shape of a structured result, and its validator
//   - GenerationRequest / GenerationResult: The structured generation contract
//   - GateResult: The confidence gate decision
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
