// Package api exposes the dashboard's HTTP surface: scan control, cached
// metrics, regional views, tenant listing, health and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yairfalse/scandeck/catalog"
	"github.com/yairfalse/scandeck/orchestrator"
	"github.com/yairfalse/scandeck/telemetry"
	"github.com/yairfalse/scandeck/types"
)

// Runner is the orchestrator surface the server drives.
type Runner interface {
	StartRun(ctx context.Context, mode types.ScanMode) (*types.AggregatedScanResult, error)
	Snapshot() types.RunSnapshot
	LastResult() *types.AggregatedScanResult
}

// MetricsReader serves single-key metric snapshots.
type MetricsReader interface {
	GetOrFetch(ctx context.Context, key string, forceRefresh bool) (*types.MetricsSnapshot, time.Time, error)
}

// RegionalReader serves assembled regional views.
type RegionalReader interface {
	Load(ctx context.Context, region string, forceRefresh bool) (types.RegionalMetrics, error)
}

// TenantReader lists the resolved catalog.
type TenantReader interface {
	Tenants() []types.Target
	Regions() []string
	RefreshedAt() time.Time
}

// Server routes dashboard requests to the scan and metrics components.
type Server struct {
	runner   Runner
	metrics  MetricsReader
	regional RegionalReader
	tenants  TenantReader
	registry *prometheus.Registry
	logger   *telemetry.Logger
	started  time.Time
}

// NewServer wires the HTTP surface. registry may be nil to skip /metrics.
func NewServer(runner Runner, metrics MetricsReader, regional RegionalReader, tenants TenantReader, registry *prometheus.Registry) *Server {
	return &Server{
		runner:   runner,
		metrics:  metrics,
		regional: regional,
		tenants:  tenants,
		registry: registry,
		logger:   telemetry.NewLogger("api"),
		started:  time.Now(),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/scan", s.handleStartScan)
	mux.HandleFunc("GET /api/v1/scan", s.handleScanStatus)
	mux.HandleFunc("GET /api/v1/scan/result", s.handleScanResult)
	mux.HandleFunc("GET /api/v1/metrics/{key}", s.handleMetrics)
	mux.HandleFunc("GET /api/v1/regions/{region}/metrics", s.handleRegionalMetrics)
	mux.HandleFunc("GET /api/v1/tenants", s.handleTenants)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /-/ready", s.handleReady)

	if s.registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	return mux
}

type scanRequest struct {
	Mode   string `json:"mode"`
	Tenant string `json:"tenant,omitempty"`
	Region string `json:"region,omitempty"`
}

// handleStartScan kicks off a run and returns immediately; clients poll
// GET /api/v1/scan for progress. A new request supersedes a run in flight.
func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var mode types.ScanMode
	switch types.ScanKind(req.Mode) {
	case types.ScanKindSingle:
		mode = types.SingleMode(req.Tenant)
	case types.ScanKindFanOut:
		mode = types.FanOutMode(req.Region)
	default:
		writeError(w, http.StatusBadRequest, "mode must be single or fan-out")
		return
	}
	if err := mode.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The run outlives the request; progress is read via the snapshot.
	go func() {
		ctx := context.WithoutCancel(r.Context())
		if _, err := s.runner.StartRun(ctx, mode); err != nil && !errors.Is(err, orchestrator.ErrRunSuperseded) {
			s.logger.WithContext(ctx).Warn().Err(err).Str("mode", mode.String()).Msg("scan run failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"mode": mode.String(), "status": "accepted"})
}

func (s *Server) handleScanStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.runner.Snapshot())
}

func (s *Server) handleScanResult(w http.ResponseWriter, _ *http.Request) {
	result := s.runner.LastResult()
	if result == nil {
		writeError(w, http.StatusNotFound, "no settled scan result")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	force := r.URL.Query().Get("refresh") == "true"

	snapshot, fetchedAt, err := s.metrics.GetOrFetch(r.Context(), key, force)
	if err != nil {
		if snapshot == nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		// Refresh failed but a stale value survives; serve it and say so.
		w.Header().Set("X-Scandeck-Stale", "true")
	}

	w.Header().Set("X-Scandeck-Fetched-At", fetchedAt.UTC().Format(time.RFC3339))
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleRegionalMetrics(w http.ResponseWriter, r *http.Request) {
	region := r.PathValue("region")
	force := r.URL.Query().Get("refresh") == "true"

	view, err := s.regional.Load(r.Context(), region, force)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, regionalResponse{
		RegionalMetrics: view,
		Totals:          view.AggregateTotals(),
		Settled:         view.SettledCount(),
	})
}

type regionalResponse struct {
	types.RegionalMetrics
	Totals  types.ScanTotals `json:"totals"`
	Settled int              `json:"settled"`
}

func (s *Server) handleTenants(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tenants":      s.tenants.Tenants(),
		"regions":      s.tenants.Regions(),
		"refreshed_at": s.tenants.RefreshedAt(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}

// handleReady reports ready once the catalog has been resolved at least once.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.tenants.RefreshedAt().IsZero() {
		writeError(w, http.StatusServiceUnavailable, "catalog not yet resolved")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

var _ TenantReader = (*catalog.Catalog)(nil)
