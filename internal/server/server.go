// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates concrete implementations
// and injects them into the tools/prompts/resources that depend on
// them. No business logic lives here — only wiring.
package server

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/HendryAvila/stackmcp/internal/config"
	"github.com/HendryAvila/stackmcp/internal/prompts"
	"github.com/HendryAvila/stackmcp/internal/resources"
	"github.com/HendryAvila/stackmcp/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates and configures the MCP server with all tools, prompts,
// and resources registered. This is the single place where all
// dependencies are resolved.
//
// The returned cleanup function shuts down the request queue and
// response cache and must be called on shutdown (typically via defer).
func New(cfg config.Config, log *logrus.Logger) (*server.MCPServer, func(), error) {
	// Metrics land on the default registry, which is what the optional
	// METRICS_ADDR promhttp listener serves.
	provider := tools.NewProvider(cfg, log, prometheus.DefaultRegisterer)
	cleanup := func() {
		if err := provider.Close(); err != nil {
			log.WithError(err).Warn("client shutdown")
		}
	}

	s := server.NewMCPServer(
		"stackmcp",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register query tools ---

	searchTool := tools.NewSearchQuestionsTool(provider)
	s.AddTool(searchTool.Definition(), searchTool.Handle)

	tagsTool := tools.NewSearchByTagsTool(provider)
	s.AddTool(tagsTool.Definition(), tagsTool.Handle)

	questionTool := tools.NewGetQuestionTool(provider)
	s.AddTool(questionTool.Definition(), questionTool.Handle)

	answersTool := tools.NewGetQuestionWithAnswersTool(provider)
	s.AddTool(answersTool.Definition(), answersTool.Handle)

	// --- Register status tools ---

	rateLimitTool := tools.NewRateLimitStatusTool(provider)
	s.AddTool(rateLimitTool.Definition(), rateLimitTool.Handle)

	authTool := tools.NewAuthStatusTool(provider)
	s.AddTool(authTool.Definition(), authTool.Handle)

	queueTool := tools.NewQueueStatusTool(provider)
	s.AddTool(queueTool.Definition(), queueTool.Handle)

	// --- Register prompts ---

	researchPrompt := prompts.NewResearchErrorPrompt()
	s.AddPrompt(researchPrompt.Definition(), researchPrompt.Handle)

	statusPrompt := prompts.NewClientStatusPrompt()
	s.AddPrompt(statusPrompt.Definition(), statusPrompt.Handle)

	// --- Register resources ---

	resourceHandler := resources.NewHandler(provider)
	s.AddResource(resourceHandler.StatusResource(), resourceHandler.HandleStatus)

	return s, cleanup, nil
}

// serverInstructions returns the system instructions that tell the AI
// how to use the server effectively.
func serverInstructions() string {
	return `You have access to a Stack Overflow MCP server.

## WHEN TO USE IT

Reach for these tools when:
- Debugging an error message you don't immediately recognize
- Checking how a library or API is actually used in the wild
- Looking for known pitfalls before choosing an approach
- The user explicitly asks "what does Stack Overflow say about..."

You do NOT need these tools for questions you can answer confidently
from your own knowledge.

## WORKFLOW

1. Search first: use search_questions for error messages and phrased
   questions, search_by_tags when the topic matters more than wording.
2. Then drill down: every search result includes a Question ID. Use
   get_question_with_answers to read the accepted and top voted
   answers for the most promising result.
3. Cite your source: include the question link when you base advice on
   an answer, so the user can verify.

## GOOD SEARCH QUERIES

- Strip user-specific noise from error messages: paths, line numbers,
  variable names, memory addresses.
- Keep the stable part: "dial tcp i/o timeout" finds answers,
  "dial tcp 10.0.3.7:5432 i/o timeout myapp main.go:42" does not.
- Prefer 3-8 significant words. Very long queries match nothing.

## RATE LIMITING AND QUOTA

Requests are queued, cached and rate limited behind the scenes:
- Repeating a search is cheap — responses are cached for several minutes.
- If a tool reports rate limiting, STOP issuing queries and tell the
  user. Check get_rate_limit_status for when requests resume.
- get_authentication_status shows whether an API key is active and how
  much daily quota remains. Without a key the daily quota is small.

## RESULT HYGIENE

- Prefer accepted (✅) and high scoring answers, but check dates: a
  10 year old accepted answer may be obsolete.
- Answers are community content. Treat them as leads to verify, not
  ground truth.`
}
