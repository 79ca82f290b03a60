package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/stackmcp/internal/format"
)

// GetQuestionWithAnswersTool handles the get_question_with_answers MCP tool.
// It fetches a question body together with its answers, highest voted first.
type GetQuestionWithAnswersTool struct {
	provider *Provider
}

// NewGetQuestionWithAnswersTool creates a GetQuestionWithAnswersTool bound to the shared provider.
func NewGetQuestionWithAnswersTool(p *Provider) *GetQuestionWithAnswersTool {
	return &GetQuestionWithAnswersTool{provider: p}
}

// Definition returns the MCP tool definition for registration.
func (t *GetQuestionWithAnswersTool) Definition() mcp.Tool {
	return mcp.NewTool("get_question_with_answers",
		mcp.WithDescription(
			"Fetch a Stack Overflow question and its answers by question ID. "+
				"Answers come sorted by votes with the accepted answer marked. "+
				"This is the most expensive tool (two API calls); prefer get_question when answers are not needed.",
		),
		mcp.WithNumber("question_id",
			mcp.Required(),
			mcp.Description("Numeric Stack Overflow question ID"),
		),
		mcp.WithNumber("max_answers",
			mcp.Description("Maximum number of answers to include (default 5, max 20)"),
		),
		mcp.WithBoolean("convert_to_markdown",
			mcp.Description("Convert HTML bodies to markdown (default true)"),
		),
	)
}

// Handle processes the get_question_with_answers tool call.
func (t *GetQuestionWithAnswersTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := intArg(req, "question_id", 0)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if id <= 0 {
		return mcp.NewToolResultError("'question_id' is required and must be a positive integer"), nil
	}
	maxAnswers, err := intArg(req, "max_answers", 5)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if maxAnswers < 1 || maxAnswers > 20 {
		return mcp.NewToolResultError("'max_answers' must be between 1 and 20"), nil
	}
	convert, err := boolArg(req, "convert_to_markdown", true)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	client, errResult := clientOrError(t.provider)
	if errResult != nil {
		return errResult, nil
	}

	qa, err := client.GetQuestionDetails(ctx, id, true)
	if err != nil {
		return clientErrorResult(err), nil
	}
	return mcp.NewToolResultText(format.QuestionThread(qa, maxAnswers, convert, t.provider.MaxContentLength())), nil
}
