package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/steward/internal/pipeline"
	"github.com/HendryAvila/steward/internal/store"
	"github.com/HendryAvila/steward/internal/templates"
)

// GetProposalTool handles the steward_get_proposal MCP tool.
type GetProposalTool struct {
	store    Store
	renderer templates.Renderer
}

// NewGetProposalTool creates a GetProposalTool.
func NewGetProposalTool(store Store, renderer templates.Renderer) *GetProposalTool {
	return &GetProposalTool{store: store, renderer: renderer}
}

// Definition returns the MCP tool definition for steward_get_proposal.
func (t *GetProposalTool) Definition() mcp.Tool {
	return mcp.NewTool("steward_get_proposal",
		mcp.WithDescription("Fetch a stored evaluation by proposal id. The record digest is verified before it is returned."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Proposal id, e.g. prop_a1b2c3"),
		),
		mcp.WithString("format",
			mcp.Description("Result format: json (default) or markdown"),
			mcp.Enum(formatJSON, formatMarkdown),
		),
	)
}

// Handle processes the steward_get_proposal tool call.
func (t *GetProposalTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := strings.TrimSpace(req.GetString("id", ""))
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	format, bad := formatArg(req, formatJSON)
	if bad != nil {
		return bad, nil
	}

	out, err := t.store.Get(id)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("proposal %s not found", id)), nil
	case errors.Is(err, pipeline.ErrRecordTampered):
		return mcp.NewToolResultError(fmt.Sprintf("proposal %s failed integrity verification", id)), nil
	default:
		return nil, fmt.Errorf("loading proposal %s: %w", id, err)
	}

	return outputResult(t.renderer, format, out)
}
