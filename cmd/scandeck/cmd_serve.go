package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yairfalse/scandeck/api"
	"github.com/yairfalse/scandeck/internal/daemon"
	"github.com/yairfalse/scandeck/telemetry"
)

var (
	serveListenAddr      string
	serveCatalogInterval time.Duration
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard backend daemon",
	Long: `Run Scandeck in serve mode for the dashboard UI.

The daemon exposes the scan-control and metrics API, keeps the tenant
catalog fresh on an interval, and serves Prometheus metrics.

Endpoints:
- POST /api/v1/scan starts a run; GET /api/v1/scan reports progress
- GET /api/v1/metrics/{key} serves cached snapshots (30s TTL)
- GET /api/v1/regions/{region}/metrics assembles the regional view
- /health, /-/ready, /metrics for operations`,
	Example: `  scandeck serve --endpoint https://scan.example.com
  scandeck serve --listen :9090 --catalog-interval 1m
  scandeck serve --config scandeck.yaml`,
	RunE: runServeCmd,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveListenAddr, "listen", "", "Listen address (overrides config)")
	serveCmd.Flags().DurationVar(&serveCatalogInterval, "catalog-interval", 0, "Catalog refresh interval (overrides config)")
}

func runServeCmd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := buildStack()
	if err != nil {
		return err
	}
	if serveListenAddr != "" {
		s.cfg.Serve.ListenAddr = serveListenAddr
	}
	if serveCatalogInterval > 0 {
		s.cfg.Serve.CatalogInterval = serveCatalogInterval
	}

	shutdown, err := telemetry.InitOTEL(ctx, telemetry.Config{
		ServiceName:    "scandeck",
		ServiceVersion: version,
		OTELEndpoint:   s.cfg.Serve.OTELEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(shutdownCtx)
	}()

	// The metric set exists only after InitOTEL; rewire the components that
	// took a nil set from buildStack.
	s.orchestrator.WithMetrics(telemetry.Core)
	s.catalog.WithMetrics(telemetry.Core)
	s.cache.WithMetrics(telemetry.Core)
	s.regional.WithMetrics(telemetry.Core)

	server := api.NewServer(s.orchestrator, s.cache, s.regional, s.catalog, telemetry.PrometheusRegistry)

	d, err := daemon.NewDaemon(daemon.Config{
		ListenAddr:      s.cfg.Serve.ListenAddr,
		CatalogInterval: s.cfg.Serve.CatalogInterval,
	}, server.Handler(), s.catalog)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	fmt.Printf("Scandeck serving on %s (catalog refresh every %s)\n",
		s.cfg.Serve.ListenAddr, s.cfg.Serve.CatalogInterval)

	return d.Run(ctx)
}
