package mcp

import (
	"github.com/custodia-labs/exportrag/internal/core/ports/driven"
	"github.com/custodia-labs/exportrag/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Retrieval ranks context documents. Required.
	Retrieval driving.RetrievalService

	// Generation produces schema-validated results. Needs Schemas.
	Generation driving.GenerationService

	// Advisor answers questions end to end.
	Advisor driving.AdvisorService

	// Ingest reports index statistics.
	Ingest driving.IngestService

	// Schemas resolves task names to output schemas.
	Schemas driven.SchemaStore
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Retrieval == nil {
		return ErrMissingRetrievalService
	}
	// The remaining ports are optional; their tools are not registered.
	return nil
}
