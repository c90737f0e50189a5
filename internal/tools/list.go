package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/steward/internal/store"
	"github.com/HendryAvila/steward/internal/templates"
)

// ListProposalsTool handles the steward_list_proposals MCP tool.
type ListProposalsTool struct {
	store    Store
	renderer templates.Renderer
}

// NewListProposalsTool creates a ListProposalsTool.
func NewListProposalsTool(store Store, renderer templates.Renderer) *ListProposalsTool {
	return &ListProposalsTool{store: store, renderer: renderer}
}

// Definition returns the MCP tool definition for steward_list_proposals.
func (t *ListProposalsTool) Definition() mcp.Tool {
	return mcp.NewTool("steward_list_proposals",
		mcp.WithDescription("List recently evaluated proposals, newest first, with totals per decision."),
		mcp.WithString("coop", mcp.Description("Only list proposals of this cooperative")),
		mcp.WithNumber("limit", mcp.Description("Max results (default: 10)")),
		mcp.WithString("format",
			mcp.Description("Result format: markdown (default) or json"),
			mcp.Enum(formatJSON, formatMarkdown),
		),
	)
}

type listResult struct {
	Proposals []store.Summary `json:"proposals"`
	Stats     *store.Stats    `json:"stats,omitempty"`
}

// Handle processes the steward_list_proposals tool call.
func (t *ListProposalsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, bad := formatArg(req, formatMarkdown)
	if bad != nil {
		return bad, nil
	}
	coop := req.GetString("coop", "")
	limit := intArg(req, "limit", 10)

	recent, err := t.store.Recent(coop, limit)
	if err != nil {
		return nil, fmt.Errorf("listing proposals: %w", err)
	}
	// Totals span every coop, so they only make sense unfiltered.
	var stats *store.Stats
	if coop == "" {
		if stats, err = t.store.Stats(); err != nil {
			return nil, fmt.Errorf("loading stats: %w", err)
		}
	}

	if format == formatJSON {
		return jsonResult(listResult{Proposals: recent, Stats: stats})
	}

	heading := "Recent proposals"
	if coop != "" {
		heading = fmt.Sprintf("Recent proposals for %s", coop)
	}
	data := templates.ProposalsData{Heading: heading, Rows: listRows(recent)}
	if stats != nil {
		data.Totals = stats.ByDecision
	}
	return renderResult(t.renderer, templates.Proposals, data)
}
