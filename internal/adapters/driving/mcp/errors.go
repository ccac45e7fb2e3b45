// Package mcp exposes the retrieval engine as an MCP (Model Context Protocol)
// server so agents can list domains and run semantic searches.
package mcp

import "errors"

// ErrMissingRetrievalService is returned when the retrieval service is not provided.
var ErrMissingRetrievalService = errors.New("mcp: retrieval service is required")
