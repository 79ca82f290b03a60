// Package resources implements MCP resource handlers.
//
// Resources provide read-only data that the host can consume for
// context. They use URI-based addressing (stackoverflow://...)
// following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/stackmcp/internal/stackexchange"
)

// ClientSource hands out the shared Stack Exchange client, building it
// on first use.
type ClientSource interface {
	Client() (*stackexchange.Client, error)
}

// Handler manages the server's resource endpoints.
type Handler struct {
	source ClientSource
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(source ClientSource) *Handler {
	return &Handler{source: source}
}

// StatusResource returns the MCP resource definition for the combined
// orchestration status.
func (h *Handler) StatusResource() mcp.Resource {
	return mcp.NewResource(
		"stackoverflow://status",
		"Stack Overflow Client Status",
		mcp.WithResourceDescription("Rate limit, authentication, queue and cache state in one document"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleStatus returns the combined status document as JSON.
func (h *Handler) HandleStatus(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	client, err := h.source.Client()
	if err != nil {
		return nil, fmt.Errorf("initializing client: %w", err)
	}

	status := struct {
		RateLimit      stackexchange.RateLimitStatus `json:"rate_limit"`
		Authentication stackexchange.AuthStatus      `json:"authentication"`
		Queue          stackexchange.QueueStatus     `json:"queue"`
		Cache          stackexchange.CacheStats      `json:"cache"`
	}{
		RateLimit:      client.GetRateLimitStatus(),
		Authentication: client.GetAuthenticationStatus(),
		Queue:          client.GetQueueStatus(),
		Cache:          client.CacheStats(),
	}

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling status: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
