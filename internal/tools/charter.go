package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/steward/internal/charter"
)

// GetCharterTool handles the steward_get_charter MCP tool.
type GetCharterTool struct {
	charters    charter.Registry
	defaultCoop string
}

// NewGetCharterTool creates a GetCharterTool.
func NewGetCharterTool(charters charter.Registry, defaultCoop string) *GetCharterTool {
	return &GetCharterTool{charters: charters, defaultCoop: defaultCoop}
}

// Definition returns the MCP tool definition for steward_get_charter.
func (t *GetCharterTool) Definition() mcp.Tool {
	return mcp.NewTool("steward_get_charter",
		mcp.WithDescription(
			"Show the charter currently in force for a cooperative: mission goals and their weights, "+
				"governance thresholds, excluded sectors and screening rules, plus its digest.",
		),
		mcp.WithString("coop",
			mcp.Description("Cooperative id (default: the server's default coop)"),
		),
	)
}

// Handle processes the steward_get_charter tool call.
func (t *GetCharterTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	coop := req.GetString("coop", t.defaultCoop)
	cfg, err := t.charters.ActiveConfig(coop)
	if err != nil {
		if errors.Is(err, charter.ErrUnknownCoop) {
			return mcp.NewToolResultError(fmt.Sprintf("no charter published for coop %q", coop)), nil
		}
		return nil, fmt.Errorf("resolving charter: %w", err)
	}

	text, err := charterYAML(cfg)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(text), nil
}

// charterYAML renders cfg as YAML headed by its digest.
func charterYAML(cfg *charter.Config) (string, error) {
	digest, err := cfg.Digest()
	if err != nil {
		return "", fmt.Errorf("digesting charter: %w", err)
	}
	body, err := charter.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("# digest: %s\n%s", digest, body), nil
}
