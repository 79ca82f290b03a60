// stackmcp: Stack Overflow MCP Server
//
// An MCP server that lets any AI coding tool (Claude Code, OpenCode,
// Gemini CLI, Codex, Cursor, VS Code Copilot) search Stack Overflow
// and read questions and answers, with rate limiting, caching and
// request queueing handled behind the tools.
//
// Usage:
//
//	stackmcp serve    # Start MCP server (stdio transport)
//	stackmcp update   # Update to the latest version
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/HendryAvila/stackmcp/internal/config"
	mcpserver "github.com/HendryAvila/stackmcp/internal/server"
	"github.com/HendryAvila/stackmcp/internal/updater"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "update":
		runUpdate()
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("stackmcp v%s\n", mcpserver.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// All logging goes to stderr: stdout belongs to the MCP stdio
	// transport.
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	if cfg.SourceFile != "" {
		log.WithField("file", cfg.SourceFile).Info("loaded config file")
	}
	log.WithFields(logrus.Fields{
		"access_mode":     cfg.AccessMode,
		"api_key_present": cfg.APIKey != "",
		"max_concurrent":  cfg.MaxConcurrentReqs,
	}).Info("starting stackmcp")

	s, cleanup, err := mcpserver.New(cfg, log)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	// Background version check — prints to stderr so it doesn't
	// interfere with MCP's stdio transport on stdout.
	go checkForUpdates()

	if cfg.MetricsListenAddress != "" {
		go serveMetrics(cfg.MetricsListenAddress, log)
	}

	// Graceful shutdown on interrupt: run cleanup so in-flight
	// requests get a terminal outcome before the process exits.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cleanup()
		os.Exit(0)
	}()

	return server.ServeStdio(s)
}

// serveMetrics exposes the default Prometheus registry over HTTP. This
// is opt-in via METRICS_ADDR since most MCP hosts never scrape it.
func serveMetrics(addr string, log *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.WithField("addr", addr).Info("serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Warn("metrics listener stopped")
	}
}

// checkForUpdates runs a non-blocking version check and prints a notice
// to stderr if an update is available. This runs in a goroutine during
// "serve" and is best-effort — network failures are silently ignored.
func checkForUpdates() {
	result := updater.CheckVersion(mcpserver.Version)
	if result.UpdateAvailable {
		fmt.Fprintf(os.Stderr,
			"\n  📦 Update available: v%s → v%s\n"+
				"     Run: stackmcp update\n"+
				"     Release: %s\n\n",
			result.CurrentVersion, result.LatestVersion, result.ReleaseURL,
		)
	}
}

// runUpdate performs a self-update to the latest version.
func runUpdate() {
	fmt.Fprintf(os.Stderr, "🔍 Checking for updates...\n")

	result := updater.CheckVersion(mcpserver.Version)
	if !result.UpdateAvailable {
		fmt.Fprintf(os.Stderr, "✅ Already at the latest version (v%s)\n", result.CurrentVersion)
		return
	}

	fmt.Fprintf(os.Stderr, "📦 New version available: v%s → v%s\n", result.CurrentVersion, result.LatestVersion)
	fmt.Fprintf(os.Stderr, "⬇️  Downloading...\n")

	if err := updater.SelfUpdate(mcpserver.Version); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Update failed: %v\n", err)
		fmt.Fprintf(os.Stderr, "\n   You can download manually from:\n   %s\n", result.ReleaseURL)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "✅ Updated to v%s!\n", result.LatestVersion)
	fmt.Fprintf(os.Stderr, "   Restart stackmcp to use the new version.\n")
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `stackmcp v%s — Stack Overflow MCP Server

Usage:
  stackmcp serve    Start the MCP server (stdio transport)
  stackmcp update   Update to the latest version

Environment:
  STACKOVERFLOW_API_KEY      Stack Exchange API key (optional, raises daily quota)
  STACKOVERFLOW_ACCESS_MODE  auto | authenticated | unauthenticated (default: auto)
  LOG_LEVEL                  debug | info | warn | error (default: info)
  METRICS_ADDR               Optional address for a Prometheus /metrics listener

Configuration:
  Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "stackoverflow": {
        "command": "stackmcp",
        "args": ["serve"]
      }
    }
  }

Learn more: https://github.com/HendryAvila/stackmcp
`, mcpserver.Version)
}
