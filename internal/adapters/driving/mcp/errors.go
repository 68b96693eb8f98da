// Package mcp provides an MCP (Model Context Protocol) server adapter for exportrag.
// It lets AI assistants retrieve regulation context and request
// schema-validated, confidence-gated answers.
package mcp

import "errors"

// ErrMissingRetrievalService is returned when the retrieval service is not provided.
var ErrMissingRetrievalService = errors.New("mcp: retrieval service is required")
