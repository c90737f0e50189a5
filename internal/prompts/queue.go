package prompts

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// QueuePrompt handles the steward-queue MCP prompt.
// It asks the AI to summarize what is waiting on authors.
type QueuePrompt struct{}

// NewQueuePrompt creates a QueuePrompt.
func NewQueuePrompt() *QueuePrompt {
	return &QueuePrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *QueuePrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("steward-queue",
		mcp.WithPromptDescription(
			"Summarize recently evaluated proposals: what is ready for a vote "+
				"and what is waiting on its author.",
		),
	)
}

// Handle processes the steward-queue prompt request.
func (p *QueuePrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "Steward proposal queue",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					"Please run `steward_list_proposals` to see recent evaluations.\n\n" +
						"Then:\n" +
						"1. Group them into ready for a vote (advance), needs revision (revise) and blocked\n" +
						"2. For each proposal needing revision, run `steward_get_proposal` and list its blocking questions\n" +
						"3. For blocked proposals, say in one line why they were blocked\n" +
						"4. End with the totals per decision",
				),
			},
		},
	}, nil
}
