package resthttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/scandeck/remote"
	"github.com/yairfalse/scandeck/types"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(Config{BaseURL: server.URL, Token: "test-token"})
	require.NoError(t, err)
	return client
}

func TestClient_SubmitScan(t *testing.T) {
	var gotAuth string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/scans", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		var req struct {
			TargetID string   `json:"target_id"`
			Regions  []string `json:"regions"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "t1", req.TargetID)

		_ = json.NewEncoder(w).Encode(types.ScanResult{
			Findings: []types.Finding{
				{ID: "f1", TargetID: "t1", Region: "us-east-1", Severity: types.SeverityHigh},
			},
			Totals:       types.ScanTotals{Resources: 42, Findings: 1},
			ResultHandle: "res-123",
		})
	}))

	result, err := client.SubmitScan(context.Background(), types.Target{
		ID:      "t1",
		Regions: []string{"us-east-1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "res-123", result.ResultHandle)
	assert.Equal(t, 42, result.Totals.Resources)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, types.SeverityHigh, result.Findings[0].Severity)
}

func TestClient_FetchMetrics(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/metrics/us-east-1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(types.MetricsSnapshot{
			Key:           "us-east-1",
			ResourceCount: 10,
			FindingCount:  3,
		})
	}))

	snapshot, err := client.FetchMetrics(context.Background(), "us-east-1")
	require.NoError(t, err)
	assert.Equal(t, 10, snapshot.ResourceCount)
	assert.Equal(t, 3, snapshot.FindingCount)
}

func TestClient_ListTenants(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/tenants", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]types.Target{
			{ID: "t1", Regions: []string{"us-east-1"}},
			{ID: "t2", Regions: []string{"eu-west-1"}},
		})
	}))

	tenants, err := client.ListTenants(context.Background())
	require.NoError(t, err)
	require.Len(t, tenants, 2)
	assert.Equal(t, "t1", tenants[0].ID)
}

func TestClient_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "no such tenant", http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	client, err := New(Config{BaseURL: server.URL, RetryMaxElapsed: 2 * time.Second})
	require.NoError(t, err)

	_, err = client.FetchMetrics(context.Background(), "missing")
	require.Error(t, err)

	var statusErr *remote.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ServerErrorIsRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(types.MetricsSnapshot{Key: "t1", FindingCount: 1})
	}))
	t.Cleanup(server.Close)

	client, err := New(Config{BaseURL: server.URL, RetryMaxElapsed: 10 * time.Second})
	require.NoError(t, err)

	snapshot, err := client.FetchMetrics(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, snapshot.FindingCount)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
