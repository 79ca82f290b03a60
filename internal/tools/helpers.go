package tools

import (
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/stackmcp/internal/stackexchange"
)

// intArg reads an integer argument. MCP transports numbers as float64,
// so the raw value needs a conversion before use.
func intArg(req mcp.CallToolRequest, key string, def int) (int, error) {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return def, nil
	}
	f, ok := raw.(float64)
	if !ok {
		return 0, fmt.Errorf("'%s' must be a number", key)
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("'%s' must be a whole number", key)
	}
	return int(f), nil
}

// boolArg reads a boolean argument with a default.
func boolArg(req mcp.CallToolRequest, key string, def bool) (bool, error) {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return def, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, fmt.Errorf("'%s' must be a boolean", key)
	}
	return b, nil
}

// clientOrError fetches the shared client, rendering a construction
// failure as a tool error result.
func clientOrError(p *Provider) (*stackexchange.Client, *mcp.CallToolResult) {
	client, err := p.Client()
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("client initialization failed: %v", err))
	}
	return client, nil
}

// pagingArgs reads and validates the page/limit arguments shared by
// the search tools. A non-nil result is the validation error to return.
func pagingArgs(req mcp.CallToolRequest) (page, limit int, errResult *mcp.CallToolResult) {
	page, err := intArg(req, "page", 1)
	if err != nil {
		return 0, 0, mcp.NewToolResultError(err.Error())
	}
	if page < 1 {
		return 0, 0, mcp.NewToolResultError("'page' must be a positive integer")
	}
	limit, err = intArg(req, "limit", 10)
	if err != nil {
		return 0, 0, mcp.NewToolResultError(err.Error())
	}
	if limit < 1 || limit > 100 {
		return 0, 0, mcp.NewToolResultError("'limit' must be between 1 and 100")
	}
	return page, limit, nil
}

// clientErrorResult maps a client error onto a tool error result with a
// message the calling model can act on.
func clientErrorResult(err error) *mcp.CallToolResult {
	var cerr *stackexchange.Error
	if !errors.As(err, &cerr) {
		return mcp.NewToolResultError(fmt.Sprintf("request failed: %v", err))
	}
	switch cerr.Kind {
	case stackexchange.KindValidation:
		return mcp.NewToolResultError(cerr.Message)
	case stackexchange.KindNotFound:
		return mcp.NewToolResultError(cerr.Message)
	case stackexchange.KindRateLimit:
		return mcp.NewToolResultError(
			"Rate limited by the Stack Exchange API. Wait before retrying; " +
				"check get_rate_limit_status for the backoff deadline.")
	case stackexchange.KindAuth:
		return mcp.NewToolResultError(
			"Authentication failed: " + cerr.Message +
				". Check get_authentication_status for details.")
	default:
		return mcp.NewToolResultError(fmt.Sprintf("request failed: %v", err))
	}
}
