package main

import (
	"fmt"

	"github.com/yairfalse/scandeck/catalog"
	"github.com/yairfalse/scandeck/config"
	"github.com/yairfalse/scandeck/metricscache"
	"github.com/yairfalse/scandeck/orchestrator"
	"github.com/yairfalse/scandeck/regional"
	"github.com/yairfalse/scandeck/remote/resthttp"
	"github.com/yairfalse/scandeck/telemetry"
)

// stack is the wired component graph every command works against.
type stack struct {
	cfg          *config.Config
	client       *resthttp.Client
	catalog      *catalog.Catalog
	orchestrator *orchestrator.Orchestrator
	cache        *metricscache.Cache
	regional     *regional.Aggregator
}

func loadCommandConfig() (*config.Config, error) {
	var cfg *config.Config
	if flagConfigPath != "" {
		loaded, err := config.LoadConfig(flagConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if flagEndpoint != "" {
		cfg.Remote.Endpoint = flagEndpoint
	}
	if cfg.Remote.Endpoint == "" {
		return nil, fmt.Errorf("a backend endpoint is required (--endpoint or config file)")
	}
	return cfg, nil
}

// buildStack wires the backend client, catalog, orchestrator and caches from
// the effective config.
func buildStack() (*stack, error) {
	cfg, err := loadCommandConfig()
	if err != nil {
		return nil, err
	}

	client, err := resthttp.New(resthttp.Config{
		BaseURL:         cfg.Remote.Endpoint,
		Token:           cfg.Token(),
		Timeout:         cfg.Remote.Timeout,
		RetryMaxElapsed: cfg.Remote.RetryMax,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}

	cat := catalog.New(client).WithMetrics(telemetry.Core)

	orch := orchestrator.New(cat, client).
		WithMetrics(telemetry.Core).
		WithConcurrency(cfg.Scan.Concurrency).
		WithResetWindow(cfg.Scan.ResetWindow)

	cache := metricscache.New(client).
		WithTTL(cfg.Cache.TTL).
		WithMetrics(telemetry.Core)

	agg := regional.New(cat, cache).
		WithTTL(cfg.Cache.TTL).
		WithConcurrency(cfg.Scan.Concurrency).
		WithMetrics(telemetry.Core)

	return &stack{
		cfg:          cfg,
		client:       client,
		catalog:      cat,
		orchestrator: orch,
		cache:        cache,
		regional:     agg,
	}, nil
}
