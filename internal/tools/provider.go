// Package tools implements the MCP tools exposed by the server. Each
// tool is a small struct with a Definition for registration and a
// Handle method; all of them share one Provider-owned client so the
// queue, cache and rate-limit state are global to the process.
package tools

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/HendryAvila/stackmcp/internal/config"
	"github.com/HendryAvila/stackmcp/internal/stackexchange"
)

// Provider owns the shared Stack Exchange client and hands it to every
// tool handler. The client is built on the first call that needs it,
// not at server startup; a failed build is retried on the next call.
type Provider struct {
	cfg config.Config
	log *logrus.Logger
	reg prometheus.Registerer

	mu     sync.Mutex
	client *stackexchange.Client
}

// NewProvider prepares a provider. No client exists yet; the first
// tool call constructs it and registers its metrics on reg (which may
// be nil to disable metrics).
func NewProvider(cfg config.Config, log *logrus.Logger, reg prometheus.Registerer) *Provider {
	return &Provider{cfg: cfg, log: log, reg: reg}
}

// Client returns the shared Stack Exchange client, building it on
// first use. When an API key is configured, validation runs in the
// background so the triggering call does not pay for the probe.
func (p *Provider) Client() (*stackexchange.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}

	client, err := stackexchange.New(stackexchange.Options{
		APIKey:        p.cfg.APIKey,
		BaseURL:       p.cfg.BaseURL,
		Mode:          stackexchange.AccessMode(p.cfg.AccessMode),
		MaxConcurrent: p.cfg.MaxConcurrentReqs,
		RetryDelay:    p.cfg.RetryDelay(),
		CacheTTL:      p.cfg.CacheTTL(),
		CacheSize:     p.cfg.CacheMaxSize,
		Logger:        p.log,
		Registry:      p.reg,
	})
	if err != nil {
		return nil, err
	}
	p.client = client

	if p.cfg.APIKey != "" {
		go func() {
			if _, err := client.ValidateAPIKey(context.Background()); err != nil {
				p.log.WithError(err).Warn("api key validation failed")
			}
		}()
	}
	return p.client, nil
}

// MaxContentLength returns the configured cap on rendered tool output.
func (p *Provider) MaxContentLength() int {
	return p.cfg.MaxContentLength
}

// Close releases the client's queue and cache, if one was ever built.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}
