package tools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/stackmcp/internal/format"
)

// SearchQuestionsTool handles the search_questions MCP tool.
// It searches Stack Overflow questions by title text.
type SearchQuestionsTool struct {
	provider *Provider
}

// NewSearchQuestionsTool creates a SearchQuestionsTool bound to the shared provider.
func NewSearchQuestionsTool(p *Provider) *SearchQuestionsTool {
	return &SearchQuestionsTool{provider: p}
}

// Definition returns the MCP tool definition for registration.
func (t *SearchQuestionsTool) Definition() mcp.Tool {
	return mcp.NewTool("search_questions",
		mcp.WithDescription(
			"Search Stack Overflow questions by title text. "+
				"Returns a ranked list with scores, answer counts, tags and question IDs. "+
				"Use get_question or get_question_with_answers with a returned ID for full content. "+
				"Results are cached, so repeating a search is cheap.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Text to search for in question titles"),
		),
		mcp.WithString("sort",
			mcp.Description("Sort order: relevance (default), votes, activity, or creation"),
		),
		mcp.WithNumber("page",
			mcp.Description("Result page, starting at 1"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results per page (default 10, max 100)"),
		),
	)
}

// Handle processes the search_questions tool call.
func (t *SearchQuestionsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := strings.TrimSpace(req.GetString("query", ""))
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}
	sort := req.GetString("sort", "relevance")
	page, limit, errResult := pagingArgs(req)
	if errResult != nil {
		return errResult, nil
	}

	client, errResult := clientOrError(t.provider)
	if errResult != nil {
		return errResult, nil
	}

	result, err := client.SearchQuestions(ctx, query, sort, page, limit)
	if err != nil {
		return clientErrorResult(err), nil
	}
	return mcp.NewToolResultText(format.SearchResults(result, page, limit, t.provider.MaxContentLength())), nil
}
