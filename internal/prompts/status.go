package prompts

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// ClientStatusPrompt handles the client-status MCP prompt.
// It instructs the AI to read and present the orchestration state.
type ClientStatusPrompt struct{}

// NewClientStatusPrompt creates a ClientStatusPrompt.
func NewClientStatusPrompt() *ClientStatusPrompt {
	return &ClientStatusPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *ClientStatusPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("client-status",
		mcp.WithPromptDescription(
			"Check the Stack Overflow client health: rate limiting, "+
				"API key state, quota, queue depth and cache usage.",
		),
	)
}

// Handle processes the client-status prompt request.
func (p *ClientStatusPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "Stack Overflow Client Status",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					"Please check the Stack Overflow client health:\n\n" +
						"1. Run `get_rate_limit_status` — am I being throttled, and until when?\n" +
						"2. Run `get_authentication_status` — is the API key valid, and how much daily quota is left?\n" +
						"3. Run `get_queue_status` — are requests piling up?\n" +
						"4. Summarize in one short paragraph whether it's safe to keep querying",
				),
			},
		},
	}, nil
}
