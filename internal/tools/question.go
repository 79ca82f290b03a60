package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/stackmcp/internal/format"
)

// GetQuestionTool handles the get_question MCP tool.
// It fetches one question body without its answers.
type GetQuestionTool struct {
	provider *Provider
}

// NewGetQuestionTool creates a GetQuestionTool bound to the shared provider.
func NewGetQuestionTool(p *Provider) *GetQuestionTool {
	return &GetQuestionTool{provider: p}
}

// Definition returns the MCP tool definition for registration.
func (t *GetQuestionTool) Definition() mcp.Tool {
	return mcp.NewTool("get_question",
		mcp.WithDescription(
			"Fetch the full body of one Stack Overflow question by ID, with a short "+
				"score summary of its answers. Detail lookups are dispatched ahead of "+
				"queued searches. Use get_question_with_answers for full answer content.",
		),
		mcp.WithNumber("question_id",
			mcp.Required(),
			mcp.Description("Numeric Stack Overflow question ID"),
		),
		mcp.WithBoolean("include_answers",
			mcp.Description("Include a score summary of the answers (default true)"),
		),
		mcp.WithBoolean("convert_to_markdown",
			mcp.Description("Convert the HTML body to markdown (default true)"),
		),
	)
}

// Handle processes the get_question tool call.
func (t *GetQuestionTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := intArg(req, "question_id", 0)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if id <= 0 {
		return mcp.NewToolResultError("'question_id' is required and must be a positive integer"), nil
	}
	includeAnswers, err := boolArg(req, "include_answers", true)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	convert, err := boolArg(req, "convert_to_markdown", true)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	client, errResult := clientOrError(t.provider)
	if errResult != nil {
		return errResult, nil
	}

	qa, err := client.GetQuestionDetails(ctx, id, includeAnswers)
	if err != nil {
		return clientErrorResult(err), nil
	}
	return mcp.NewToolResultText(format.QuestionDetail(qa, convert, t.provider.MaxContentLength())), nil
}
