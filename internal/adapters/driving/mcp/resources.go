package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// URIScheme is the custom URI scheme for exportrag resources.
	uriScheme = "exportrag://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	if s.ports.Schemas != nil {
		// Static resource for listing task schemas.
		s.server.AddResource(&mcp.Resource{
			URI:         uriScheme + "schemas",
			Name:        "schemas",
			Description: "Output schemas available as generation tasks",
			MIMEType:    "application/json",
		}, s.handleSchemasResource)

		// Template for a single schema.
		s.server.AddResourceTemplate(&mcp.ResourceTemplate{
			URITemplate: uriScheme + "schemas/{name}",
			Name:        "schema",
			Description: "Field definitions of an output schema",
			MIMEType:    "application/json",
		}, s.handleSchemaResource)
	}

	if s.ports.Ingest != nil {
		s.server.AddResource(&mcp.Resource{
			URI:         uriScheme + "index/stats",
			Name:        "index-stats",
			Description: "Size, dimensions and generation of the vector index",
			MIMEType:    "application/json",
		}, s.handleStatsResource)
	}
}

// handleSchemasResource returns the schema names with their descriptions.
func (s *Server) handleSchemasResource(
	_ context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	type schemaInfo struct {
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
		URI         string `json:"uri"`
	}

	names := s.ports.Schemas.Names()
	infos := make([]schemaInfo, 0, len(names))
	for _, name := range names {
		schema, err := s.ports.Schemas.Get(name)
		if err != nil {
			return nil, fmt.Errorf("loading schema %s: %w", name, err)
		}
		infos = append(infos, schemaInfo{
			Name:        name,
			Description: schema.Description,
			URI:         uriScheme + "schemas/" + name,
		})
	}

	return jsonResource(req.Params.URI, infos)
}

// handleSchemaResource returns one schema.
func (s *Server) handleSchemaResource(
	_ context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	name := extractSchemaName(req.Params.URI)
	if name == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	schema, err := s.ports.Schemas.Get(name)
	if err != nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	return jsonResource(req.Params.URI, schema)
}

// handleStatsResource returns the index statistics.
func (s *Server) handleStatsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	stats, err := s.ports.Ingest.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("index stats: %w", err)
	}
	return jsonResource(req.Params.URI, stats)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", uri, err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractSchemaName extracts the name from a URI like exportrag://schemas/{name}.
func extractSchemaName(uri string) string {
	const prefix = uriScheme + "schemas/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	name := strings.TrimPrefix(uri, prefix)
	if strings.Contains(name, "/") {
		return ""
	}
	return name
}
