package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// The three status tools expose orchestration state (throttling, auth,
// queue depth) as markdown reports without touching the network.

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// RateLimitStatusTool handles the get_rate_limit_status MCP tool.
type RateLimitStatusTool struct {
	provider *Provider
}

// NewRateLimitStatusTool creates a RateLimitStatusTool bound to the shared provider.
func NewRateLimitStatusTool(p *Provider) *RateLimitStatusTool {
	return &RateLimitStatusTool{provider: p}
}

// Definition returns the MCP tool definition for registration.
func (t *RateLimitStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("get_rate_limit_status",
		mcp.WithDescription(
			"Report the current rate limiting state: whether the client is backing off, "+
				"until when, the current backoff duration, and what the API last said about remaining quota. "+
				"Reading this never triggers an API call.",
		),
	)
}

// Handle processes the get_rate_limit_status tool call.
func (t *RateLimitStatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	client, errResult := clientOrError(t.provider)
	if errResult != nil {
		return errResult, nil
	}
	status := client.GetRateLimitStatus()

	var sb strings.Builder
	sb.WriteString("# Stack Overflow API Rate Limit Status\n\n")
	fmt.Fprintf(&sb, "**Rate Limited:** %s\n", yesNo(status.IsRateLimited))
	fmt.Fprintf(&sb, "**Current Backoff:** %.1f seconds\n", status.CurrentBackoff)
	if status.IsRateLimited {
		wait := time.Until(status.BackoffUntil).Seconds()
		if wait < 0 {
			wait = 0
		}
		fmt.Fprintf(&sb, "**Wait Time:** %.1f seconds\n", wait)
	}
	if status.RemainingRequests != nil {
		fmt.Fprintf(&sb, "**Remaining Requests:** %d\n", *status.RemainingRequests)
	}
	if status.ResetTime != nil {
		fmt.Fprintf(&sb, "**Quota Resets:** %s\n", status.ResetTime.UTC().Format("2006-01-02 15:04:05"))
	}

	sb.WriteString("\n## Request Window\n")
	fmt.Fprintf(&sb, "**Requests This Window:** %d\n", status.RequestsThisWindow)
	elapsed := time.Since(status.WindowStart).Seconds()
	remaining := 60 - elapsed
	if remaining < 0 {
		remaining = 0
	}
	fmt.Fprintf(&sb, "**Window Elapsed:** %.1f seconds\n", elapsed)
	fmt.Fprintf(&sb, "**Window Remaining:** %.1f seconds\n", remaining)

	return mcp.NewToolResultText(sb.String()), nil
}

// AuthStatusTool handles the get_authentication_status MCP tool.
type AuthStatusTool struct {
	provider *Provider
}

// NewAuthStatusTool creates an AuthStatusTool bound to the shared provider.
func NewAuthStatusTool(p *Provider) *AuthStatusTool {
	return &AuthStatusTool{provider: p}
}

// Definition returns the MCP tool definition for registration.
func (t *AuthStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("get_authentication_status",
		mcp.WithDescription(
			"Report API key state: whether a key is configured, whether it validated, "+
				"the last validation error if any, and the daily quota the API reported. "+
				"Reading this never triggers an API call.",
		),
	)
}

// Handle processes the get_authentication_status tool call.
func (t *AuthStatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	client, errResult := clientOrError(t.provider)
	if errResult != nil {
		return errResult, nil
	}
	status := client.GetAuthenticationStatus()

	var sb strings.Builder
	sb.WriteString("# Stack Overflow API Authentication Status\n\n")
	fmt.Fprintf(&sb, "**API Key Configured:** %s\n", yesNo(status.APIKeyConfigured))
	fmt.Fprintf(&sb, "**Authentication Tested:** %s\n", yesNo(status.AuthenticationTested))
	fmt.Fprintf(&sb, "**Is Authenticated:** %s\n", yesNo(status.IsAuthenticated))
	if status.APIKeyValid != nil {
		fmt.Fprintf(&sb, "**API Key Valid:** %s\n", yesNo(*status.APIKeyValid))
	} else {
		sb.WriteString("**API Key Valid:** Unknown (not tested)\n")
	}

	if status.AuthenticationError != "" {
		sb.WriteString("\n## Authentication Error\n")
		fmt.Fprintf(&sb, "**Error:** %s\n", status.AuthenticationError)
	}

	if status.DailyQuota != nil || status.DailyQuotaRemaining != nil {
		sb.WriteString("\n## API Quota\n")
		switch {
		case status.DailyQuota != nil && status.DailyQuotaRemaining != nil:
			used := *status.DailyQuota - *status.DailyQuotaRemaining
			percent := 0.0
			if *status.DailyQuota > 0 {
				percent = float64(used) / float64(*status.DailyQuota) * 100
			}
			fmt.Fprintf(&sb, "**Daily Quota:** %d requests\n", *status.DailyQuota)
			fmt.Fprintf(&sb, "**Remaining:** %d requests\n", *status.DailyQuotaRemaining)
			fmt.Fprintf(&sb, "**Used:** %d requests (%.1f%%)\n", used, percent)
		case status.DailyQuotaRemaining != nil:
			fmt.Fprintf(&sb, "**Remaining Quota:** %d requests\n", *status.DailyQuotaRemaining)
		default:
			fmt.Fprintf(&sb, "**Daily Quota:** %d requests\n", *status.DailyQuota)
		}
	}

	if status.LastValidationTime != nil {
		fmt.Fprintf(&sb, "\n**Last Validation:** %s\n", status.LastValidationTime.UTC().Format("2006-01-02 15:04:05"))
	}

	switch {
	case !status.APIKeyConfigured:
		sb.WriteString("\n## Configuration Guide\n" +
			"To configure API authentication:\n" +
			"1. Register an API key: https://stackapps.com/apps/oauth/register\n" +
			"2. Set the environment variable: `export STACKOVERFLOW_API_KEY=your_key_here`\n" +
			"3. Restart the MCP server\n\n" +
			"**Benefits:** higher rate limits (10,000 requests/day vs 300/day) " +
			"and more reliable service during peak usage.\n")
	case !status.IsAuthenticated:
		sb.WriteString("\n## Troubleshooting\n" +
			"An API key is configured but authentication is not active:\n" +
			"1. Verify the key is correct and has not expired\n" +
			"2. Check network connectivity to api.stackexchange.com\n" +
			"3. Regenerate the key if the problem persists\n")
	}

	return mcp.NewToolResultText(sb.String()), nil
}

// QueueStatusTool handles the get_queue_status MCP tool.
type QueueStatusTool struct {
	provider *Provider
}

// NewQueueStatusTool creates a QueueStatusTool bound to the shared provider.
func NewQueueStatusTool(p *Provider) *QueueStatusTool {
	return &QueueStatusTool{provider: p}
}

// Definition returns the MCP tool definition for registration.
func (t *QueueStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("get_queue_status",
		mcp.WithDescription(
			"Report request queue depth, in-flight request count, completed and failed counts, "+
				"the concurrency ceiling and access mode, plus response cache occupancy. "+
				"Reading this never triggers an API call.",
		),
	)
}

// Handle processes the get_queue_status tool call.
func (t *QueueStatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	client, errResult := clientOrError(t.provider)
	if errResult != nil {
		return errResult, nil
	}
	queue := client.GetQueueStatus()
	cache := client.CacheStats()

	var sb strings.Builder
	sb.WriteString("# Request Queue Status\n\n")
	sb.WriteString("## Queue\n")
	fmt.Fprintf(&sb, "**Queued Requests:** %d\n", queue.Queued)
	fmt.Fprintf(&sb, "**Processing Requests:** %d\n", queue.Processing)
	fmt.Fprintf(&sb, "**Completed Requests:** %d\n", queue.Completed)
	fmt.Fprintf(&sb, "**Failed Requests:** %d\n", queue.Failed)
	fmt.Fprintf(&sb, "**Max Concurrent:** %d\n", queue.MaxConcurrent)
	fmt.Fprintf(&sb, "**Worker Running:** %s\n", yesNo(queue.WorkerRunning))

	sb.WriteString("\n## Cache\n")
	fmt.Fprintf(&sb, "**Total Entries:** %d\n", cache.TotalEntries)
	fmt.Fprintf(&sb, "**Valid Entries:** %d\n", cache.ValidEntries)
	fmt.Fprintf(&sb, "**Max Size:** %d\n", cache.MaxSize)
	fmt.Fprintf(&sb, "**TTL:** %.0f seconds\n", cache.TTLSeconds)

	sb.WriteString("\n## Access\n")
	fmt.Fprintf(&sb, "**Access Mode:** %s\n", queue.AccessMode)
	fmt.Fprintf(&sb, "**Auto Switch Enabled:** %s\n", yesNo(queue.AutoSwitchEnabled))

	if queue.Completed > 0 {
		total := queue.Queued + queue.Processing + queue.Completed + queue.Failed
		rate := float64(queue.Completed) / float64(total) * 100
		sb.WriteString("\n## Throughput\n")
		fmt.Fprintf(&sb, "**Total Requests Seen:** %d\n", total)
		fmt.Fprintf(&sb, "**Completion Rate:** %.1f%%\n", rate)
	}

	return mcp.NewToolResultText(sb.String()), nil
}
