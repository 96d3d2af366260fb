// Package catalog holds the tenant catalog and resolves scan modes into
// concrete target lists.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/yairfalse/scandeck/telemetry"
	"github.com/yairfalse/scandeck/types"
)

var (
	// ErrNotFound means the tenant id is absent from the catalog.
	ErrNotFound = errors.New("tenant not found in catalog")

	// ErrInvalidTarget means the target exists but has no region configured
	// and therefore cannot be scanned.
	ErrInvalidTarget = errors.New("target has no configured regions")
)

// TenantLister is the slice of the remote backend the catalog needs.
type TenantLister interface {
	ListTenants(ctx context.Context) ([]types.Target, error)
}

// indexEntry keys the btree by tenant id.
type indexEntry struct {
	id     string
	target types.Target
}

// Catalog is the in-memory tenant catalog. The snapshot (order, index,
// region buckets) is replaced wholesale on every refresh so readers always
// observe a complete catalog, never a half-written one.
type Catalog struct {
	mu sync.RWMutex

	lister  TenantLister
	logger  *telemetry.Logger
	metrics *telemetry.CoreMetrics

	// order preserves the backend's catalog order; fan-out resolution
	// iterates it so runs contact targets in a stable order.
	order []types.Target

	// index provides id lookups without walking order.
	index *btree.BTreeG[indexEntry]

	// byRegion maps a region to positions in order.
	byRegion map[string][]int

	refreshedAt time.Time
}

// New creates an empty catalog backed by the given lister.
func New(lister TenantLister) *Catalog {
	return &Catalog{
		lister:   lister,
		logger:   telemetry.NewLogger("catalog"),
		index:    newIndex(),
		byRegion: make(map[string][]int),
	}
}

// WithMetrics sets the metric set used for catalog gauges.
func (c *Catalog) WithMetrics(m *telemetry.CoreMetrics) *Catalog {
	c.metrics = m
	return c
}

func newIndex() *btree.BTreeG[indexEntry] {
	return btree.NewG[indexEntry](32, func(a, b indexEntry) bool {
		return a.id < b.id
	})
}

// Refresh replaces the catalog snapshot from the backend.
func (c *Catalog) Refresh(ctx context.Context) error {
	tenants, err := c.lister.ListTenants(ctx)
	if err != nil {
		c.logger.WithContext(ctx).Error().Err(err).Msg("catalog refresh failed")
		return fmt.Errorf("failed to list tenants: %w", err)
	}

	index := newIndex()
	byRegion := make(map[string][]int)
	for i, t := range tenants {
		index.ReplaceOrInsert(indexEntry{id: t.ID, target: t})
		for _, region := range t.Regions {
			byRegion[region] = append(byRegion[region], i)
		}
	}

	c.mu.Lock()
	c.order = tenants
	c.index = index
	c.byRegion = byRegion
	c.refreshedAt = time.Now()
	c.mu.Unlock()

	c.metrics.RecordCatalogSize(ctx, len(tenants))
	c.logger.WithContext(ctx).Info().
		Int("tenants", len(tenants)).
		Int("regions", len(byRegion)).
		Msg("catalog refreshed")

	return nil
}

// ResolveSingle returns the target for a tenant id.
func (c *Catalog) ResolveSingle(tenantID string) (types.Target, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.index.Get(indexEntry{id: tenantID})
	if !ok {
		return types.Target{}, fmt.Errorf("%w: %s", ErrNotFound, tenantID)
	}
	if !entry.target.HasRegions() {
		return types.Target{}, fmt.Errorf("%w: %s", ErrInvalidTarget, tenantID)
	}
	return entry.target, nil
}

// ResolveFanOut returns all targets configured for the region, preserving
// catalog order. An empty result is not an error; the caller decides whether
// an empty fan-out set is fatal.
func (c *Catalog) ResolveFanOut(region string) []types.Target {
	c.mu.RLock()
	defer c.mu.RUnlock()

	positions := c.byRegion[region]
	targets := make([]types.Target, 0, len(positions))
	for _, pos := range positions {
		targets = append(targets, c.order[pos])
	}
	return targets
}

// Tenants returns a copy of the full catalog in catalog order.
func (c *Catalog) Tenants() []types.Target {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tenants := make([]types.Target, len(c.order))
	copy(tenants, c.order)
	return tenants
}

// Regions returns every region at least one tenant is configured for.
func (c *Catalog) Regions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	regions := make([]string, 0, len(c.byRegion))
	for region := range c.byRegion {
		regions = append(regions, region)
	}
	return regions
}

// Len returns the number of tenants in the catalog.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// RefreshedAt returns when the catalog was last refreshed.
func (c *Catalog) RefreshedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshedAt
}
