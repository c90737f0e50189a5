// Package prompts implements MCP prompt handlers for Steward.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to run a specific sequence of tool calls. Unlike
// tools, prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// ReviewPrompt handles the steward-review MCP prompt. It walks the AI
// through evaluating a proposal and explaining the outcome to its
// author.
type ReviewPrompt struct {
	defaultCoop string
}

// NewReviewPrompt creates a ReviewPrompt.
func NewReviewPrompt(defaultCoop string) *ReviewPrompt {
	return &ReviewPrompt{defaultCoop: defaultCoop}
}

// Definition returns the MCP prompt definition for registration.
func (p *ReviewPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("steward-review",
		mcp.WithPromptDescription(
			"Review a funding proposal before it goes to a member vote. "+
				"Scores it against the coop charter, suggests stronger variants "+
				"and lists what the author still needs to answer.",
		),
		mcp.WithArgument("proposal",
			mcp.ArgumentDescription("Full proposal text"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("coop",
			mcp.ArgumentDescription("Cooperative id whose charter applies"),
		),
	)
}

// Handle processes the steward-review prompt request.
func (p *ReviewPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	text := ""
	coop := p.defaultCoop
	if args := req.Params.Arguments; args != nil {
		text = args["proposal"]
		if c, ok := args["coop"]; ok && c != "" {
			coop = c
		}
	}
	if text == "" {
		return nil, fmt.Errorf("argument 'proposal' is required")
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Review a proposal for %s", coop),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"Please review this proposal for cooperative '%s' before it goes to a vote.\n\n"+
						"1. Run `steward_search_proposals` with a few keywords from it to find earlier, similar proposals\n"+
						"2. Run `steward_evaluate_proposal` with coop='%s' and the text below\n"+
						"3. Explain the decision and every decision reason in plain language\n"+
						"4. If there is a recommended alternative, describe what changes and why it scores higher\n"+
						"5. List the blocking questions first, then the nice-to-know ones, as questions for the author\n\n"+
						"Proposal:\n\n%s",
					coop, coop, text,
				)),
			},
		},
	}, nil
}
