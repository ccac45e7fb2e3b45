package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Domain   string  `json:"domain" jsonschema:"domain key or numeric id to search"`
	Query    string  `json:"query" jsonschema:"the natural language query"`
	TopK     int     `json:"top_k,omitempty" jsonschema:"maximum number of passages to return (default 10)"`
	MinScore float64 `json:"min_score,omitempty" jsonschema:"drop passages scored below this value (default 0.5)"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Documents []DocumentHits `json:"documents"`
	Count     int            `json:"count"`
}

// DocumentHits groups the passages found in one document.
type DocumentHits struct {
	Key  string      `json:"key"`
	Hits []HitOutput `json:"hits"`
}

// HitOutput is one re-ranked passage.
type HitOutput struct {
	AtomID string  `json:"atom_id"`
	Score  float64 `json:"score"`
	Text   string  `json:"text"`
}

// ListDomainsInput is the (empty) input schema for the list_domains tool.
type ListDomainsInput struct{}

// ListDomainsOutput is the output schema for the list_domains tool.
type ListDomainsOutput struct {
	Domains []DomainOutput `json:"domains"`
}

// DomainOutput describes one domain.
type DomainOutput struct {
	ID          uint16 `json:"id"`
	Key         string `json:"key"`
	Description string `json:"description,omitempty"`
	Temporary   bool   `json:"temporary,omitempty"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Semantic search within one domain; passages are grouped by document",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_domains",
		Description: "List the domains available for search",
	}, s.handleListDomains)
}

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	opts := domain.SearchOptions{TopK: input.TopK, MinScore: input.MinScore}
	results, err := s.ports.Retrieval.Search(ctx, input.Domain, input.Query, opts)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Documents: make([]DocumentHits, 0, len(results)),
		Count:     results.Len(),
	}
	for _, key := range results.Keys() {
		group := DocumentHits{Key: key, Hits: make([]HitOutput, len(results[key]))}
		for i, h := range results[key] {
			group.Hits[i] = HitOutput{AtomID: h.AtomID.String(), Score: h.Score, Text: h.Text}
		}
		output.Documents = append(output.Documents, group)
	}

	return nil, output, nil
}

// handleListDomains handles the list_domains tool invocation.
func (s *Server) handleListDomains(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ ListDomainsInput,
) (*mcp.CallToolResult, ListDomainsOutput, error) {
	domains, err := s.ports.Retrieval.ListDomains(ctx)
	if err != nil {
		return nil, ListDomainsOutput{}, err
	}
	return nil, ListDomainsOutput{Domains: toDomainOutputs(domains)}, nil
}

func toDomainOutputs(domains []domain.SemanticDomain) []DomainOutput {
	out := make([]DomainOutput, len(domains))
	for i, d := range domains {
		out[i] = DomainOutput{ID: d.ID, Key: d.Key, Description: d.Meta, Temporary: d.Temporary}
	}
	return out
}
