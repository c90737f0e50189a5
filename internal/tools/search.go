package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/steward/internal/store"
	"github.com/HendryAvila/steward/internal/templates"
)

// SearchProposalsTool handles the steward_search_proposals MCP tool.
type SearchProposalsTool struct {
	store    Store
	renderer templates.Renderer
}

// NewSearchProposalsTool creates a SearchProposalsTool.
func NewSearchProposalsTool(store Store, renderer templates.Renderer) *SearchProposalsTool {
	return &SearchProposalsTool{store: store, renderer: renderer}
}

// Definition returns the MCP tool definition for steward_search_proposals.
func (t *SearchProposalsTool) Definition() mcp.Tool {
	return mcp.NewTool("steward_search_proposals",
		mcp.WithDescription(
			"Full-text search over stored proposals (title, summary and category). "+
				"Use it to find earlier evaluations of similar ideas before submitting a new one.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search keywords"),
		),
		mcp.WithString("coop", mcp.Description("Filter by cooperative id")),
		mcp.WithString("decision",
			mcp.Description("Filter by decision"),
			mcp.Enum("advance", "revise", "block"),
		),
		mcp.WithNumber("limit", mcp.Description("Max results (default: 10)")),
		mcp.WithString("format",
			mcp.Description("Result format: markdown (default) or json"),
			mcp.Enum(formatJSON, formatMarkdown),
		),
	)
}

// Handle processes the steward_search_proposals tool call.
func (t *SearchProposalsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := strings.TrimSpace(req.GetString("query", ""))
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}
	decision, ok := parseDecision(req.GetString("decision", ""))
	if !ok {
		return mcp.NewToolResultError("'decision' must be advance, revise or block"), nil
	}
	format, bad := formatArg(req, formatMarkdown)
	if bad != nil {
		return bad, nil
	}

	results, err := t.store.Search(query, store.SearchOptions{
		CoopID:   req.GetString("coop", ""),
		Decision: decision,
		Limit:    intArg(req, "limit", 10),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	if format == formatJSON {
		if results == nil {
			results = []store.SearchResult{}
		}
		return jsonResult(results)
	}

	summaries := make([]store.Summary, len(results))
	for i, r := range results {
		summaries[i] = r.Summary
	}
	return renderResult(t.renderer, templates.Proposals, templates.ProposalsData{
		Heading: fmt.Sprintf("Search: %s", query),
		Rows:    listRows(summaries),
	})
}
