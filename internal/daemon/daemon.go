// Package daemon composes serve mode: the HTTP surface, the periodic catalog
// refresh loop, and signal handling, run as one actor group.
package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/oklog/run"

	"github.com/yairfalse/scandeck/telemetry"
)

// Config holds daemon configuration
type Config struct {
	ListenAddr      string
	CatalogInterval time.Duration
}

// Refresher is the catalog surface the refresh loop drives.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Daemon runs the dashboard backend until signalled or failed.
type Daemon struct {
	listenAddr      string
	catalogInterval time.Duration
	handler         http.Handler
	catalog         Refresher
	logger          *telemetry.Logger
	startTime       time.Time
	refreshCount    atomic.Int64
}

// NewDaemon creates a new daemon instance
func NewDaemon(config Config, handler http.Handler, catalog Refresher) (*Daemon, error) {
	if config.ListenAddr == "" {
		return nil, errors.New("listen address is required")
	}
	if config.CatalogInterval <= 0 {
		config.CatalogInterval = 5 * time.Minute
	}
	return &Daemon{
		listenAddr:      config.ListenAddr,
		catalogInterval: config.CatalogInterval,
		handler:         handler,
		catalog:         catalog,
		logger:          telemetry.NewLogger("daemon"),
		startTime:       time.Now(),
	}, nil
}

// Run blocks until the context is cancelled, a signal arrives, or one of the
// actors fails.
func (d *Daemon) Run(ctx context.Context) error {
	// The catalog must resolve once before the server reports ready, but a
	// failure here only delays readiness until the loop retries.
	if err := d.refreshCatalog(ctx); err != nil {
		d.logger.WithContext(ctx).Warn().Err(err).Msg("initial catalog refresh failed")
	}

	var g run.Group

	listener, err := net.Listen("tcp", d.listenAddr)
	if err != nil {
		return err
	}
	server := &http.Server{
		Handler:           d.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Add(func() error {
		d.logger.Info().Str("addr", listener.Addr().String()).Msg("http server listening")
		return server.Serve(listener)
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	})

	loopCtx, cancelLoop := context.WithCancel(ctx)
	g.Add(func() error {
		return d.refreshLoop(loopCtx)
	}, func(error) {
		cancelLoop()
	})

	g.Add(run.SignalHandler(ctx, os.Interrupt))

	err = g.Run()
	var sig run.SignalError
	if errors.As(err, &sig) || errors.Is(err, http.ErrServerClosed) || errors.Is(err, context.Canceled) {
		d.logger.Info().Msg("daemon stopped")
		return nil
	}
	return err
}

// refreshLoop keeps the catalog current on a fixed interval.
func (d *Daemon) refreshLoop(ctx context.Context) error {
	ticker := time.NewTicker(d.catalogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := d.refreshCatalog(ctx); err != nil {
				d.logger.WithContext(ctx).Warn().Err(err).Msg("catalog refresh failed, keeping previous snapshot")
			}
		}
	}
}

func (d *Daemon) refreshCatalog(ctx context.Context) error {
	if err := d.catalog.Refresh(ctx); err != nil {
		return err
	}
	d.refreshCount.Add(1)
	return nil
}

// Health returns daemon health status
func (d *Daemon) Health() HealthStatus {
	return HealthStatus{
		Status: "healthy",
		Uptime: int64(time.Since(d.startTime).Seconds()),
	}
}

// HealthStatus represents daemon health
type HealthStatus struct {
	Status string
	Uptime int64
}

// RefreshCount returns how many catalog refreshes have succeeded.
func (d *Daemon) RefreshCount() int64 {
	return d.refreshCount.Load()
}
