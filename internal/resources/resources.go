// Package resources implements MCP resource handlers for Steward.
//
// Resources provide read-only data the host can pull in as context.
// They use URI-based addressing (steward://...) following MCP
// conventions.
package resources

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/steward/internal/charter"
)

// CharterURI is the address of the default coop's charter.
const CharterURI = "steward://charter/default"

// Handler serves charter resources.
type Handler struct {
	charters    charter.Registry
	defaultCoop string
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(charters charter.Registry, defaultCoop string) *Handler {
	return &Handler{charters: charters, defaultCoop: defaultCoop}
}

// CharterResource returns the MCP resource definition for the default
// charter.
func (h *Handler) CharterResource() mcp.Resource {
	return mcp.NewResource(
		CharterURI,
		"Default cooperative charter",
		mcp.WithResourceDescription("Goals, weights, governance thresholds and screening rules the engine scores against"),
		mcp.WithMIMEType("application/yaml"),
	)
}

// HandleCharter returns the charter in force for the default coop as
// YAML. A missing charter is reported in the resource body.
func (h *Handler) HandleCharter(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	cfg, err := h.charters.ActiveConfig(h.defaultCoop)
	if err != nil {
		if errors.Is(err, charter.ErrUnknownCoop) {
			return errorResource(req.Params.URI, err.Error()), nil
		}
		return nil, fmt.Errorf("resolving charter: %w", err)
	}

	data, err := charter.Marshal(cfg)
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/yaml",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
