package tools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/stackmcp/internal/format"
)

// SearchByTagsTool handles the search_by_tags MCP tool.
// It finds questions carrying every tag in a given set.
type SearchByTagsTool struct {
	provider *Provider
}

// NewSearchByTagsTool creates a SearchByTagsTool bound to the shared provider.
func NewSearchByTagsTool(p *Provider) *SearchByTagsTool {
	return &SearchByTagsTool{provider: p}
}

// Definition returns the MCP tool definition for registration.
func (t *SearchByTagsTool) Definition() mcp.Tool {
	return mcp.NewTool("search_by_tags",
		mcp.WithDescription(
			"Find Stack Overflow questions tagged with ALL of the given tags. "+
				"Pass tags as a comma-separated list, e.g. 'go,concurrency'. "+
				"Use this instead of search_questions when you care about topic rather than title wording.",
		),
		mcp.WithString("tags",
			mcp.Required(),
			mcp.Description("Comma-separated tags; every returned question carries all of them"),
		),
		mcp.WithString("sort",
			mcp.Description("Sort order: activity (default), votes, creation, or hot"),
		),
		mcp.WithNumber("page",
			mcp.Description("Result page, starting at 1"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results per page (default 10, max 100)"),
		),
	)
}

// Handle processes the search_by_tags tool call.
func (t *SearchByTagsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw := req.GetString("tags", "")
	var tags []string
	for _, tag := range strings.Split(raw, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	if len(tags) == 0 {
		return mcp.NewToolResultError("'tags' is required: pass one or more comma-separated tags"), nil
	}
	sort := req.GetString("sort", "activity")
	page, limit, errResult := pagingArgs(req)
	if errResult != nil {
		return errResult, nil
	}

	client, errResult := clientOrError(t.provider)
	if errResult != nil {
		return errResult, nil
	}

	result, err := client.SearchByTags(ctx, tags, sort, page, limit)
	if err != nil {
		return clientErrorResult(err), nil
	}
	return mcp.NewToolResultText(format.SearchResults(result, page, limit, t.provider.MaxContentLength())), nil
}
