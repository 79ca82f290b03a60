// Package prompts implements MCP prompt handlers.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// ResearchErrorPrompt handles the research-error MCP prompt.
// It guides the AI through researching an error message on Stack Overflow.
type ResearchErrorPrompt struct{}

// NewResearchErrorPrompt creates a ResearchErrorPrompt.
func NewResearchErrorPrompt() *ResearchErrorPrompt {
	return &ResearchErrorPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *ResearchErrorPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("research-error",
		mcp.WithPromptDescription(
			"Research an error message on Stack Overflow. "+
				"Searches for matching questions, fetches the highest voted answers, "+
				"and synthesizes a fix.",
		),
		mcp.WithArgument("error_message",
			mcp.ArgumentDescription("The error message or symptom to research"),
		),
		mcp.WithArgument("technology",
			mcp.ArgumentDescription("Language or framework tag to narrow the search, e.g. 'go' or 'postgresql'"),
		),
	)
}

// Handle processes the research-error prompt request.
func (p *ResearchErrorPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	errMsg := "<paste the error here>"
	technology := ""
	if args := req.Params.Arguments; args != nil {
		if v, ok := args["error_message"]; ok && v != "" {
			errMsg = v
		}
		if v, ok := args["technology"]; ok {
			technology = v
		}
	}

	tagHint := ""
	if technology != "" {
		tagHint = fmt.Sprintf("3. Also run `search_by_tags` with tags='%s' to catch questions that phrase the error differently\n", technology)
	}

	return &mcp.GetPromptResult{
		Description: "Research an error on Stack Overflow",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"I'm hitting this error:\n\n```\n%s\n```\n\n"+
						"Please:\n"+
						"1. Strip paths, line numbers and values specific to my machine from the message\n"+
						"2. Run `search_questions` with the cleaned message\n"+
						"%s"+
						"4. For the most promising result, run `get_question_with_answers` with its question ID\n"+
						"5. Summarize the accepted or highest voted answer and how it applies to my situation",
					errMsg, tagHint,
				)),
			},
		},
	}, nil
}
