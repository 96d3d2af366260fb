package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/scandeck/types"
)

// fakeLister returns a fixed tenant list, or an error.
type fakeLister struct {
	tenants []types.Target
	err     error
	calls   int
}

func (f *fakeLister) ListTenants(_ context.Context) ([]types.Target, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.tenants, nil
}

func testTenants() []types.Target {
	return []types.Target{
		{ID: "t1", Name: "alpha", Regions: []string{"us-east-1"}},
		{ID: "t2", Name: "bravo", Regions: []string{"us-east-1", "eu-west-1"}},
		{ID: "t3", Name: "charlie", Regions: []string{"eu-west-1"}},
		{ID: "t4", Name: "delta", Regions: nil}, // misconfigured
	}
}

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c := New(&fakeLister{tenants: testTenants()})
	require.NoError(t, c.Refresh(context.Background()))
	return c
}

func TestCatalog_ResolveSingle(t *testing.T) {
	c := newTestCatalog(t)

	target, err := c.ResolveSingle("t2")
	require.NoError(t, err)
	assert.Equal(t, "bravo", target.Name)
}

func TestCatalog_ResolveSingle_NotFound(t *testing.T) {
	c := newTestCatalog(t)

	_, err := c.ResolveSingle("t99")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCatalog_ResolveSingle_NoRegions(t *testing.T) {
	c := newTestCatalog(t)

	_, err := c.ResolveSingle("t4")
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestCatalog_ResolveFanOut_PreservesCatalogOrder(t *testing.T) {
	c := newTestCatalog(t)

	targets := c.ResolveFanOut("us-east-1")
	require.Len(t, targets, 2)
	assert.Equal(t, "t1", targets[0].ID)
	assert.Equal(t, "t2", targets[1].ID)

	targets = c.ResolveFanOut("eu-west-1")
	require.Len(t, targets, 2)
	assert.Equal(t, "t2", targets[0].ID)
	assert.Equal(t, "t3", targets[1].ID)
}

func TestCatalog_ResolveFanOut_EmptyRegionIsNotAnError(t *testing.T) {
	c := newTestCatalog(t)

	targets := c.ResolveFanOut("ap-south-1")
	assert.Empty(t, targets)
	assert.NotNil(t, targets)
}

func TestCatalog_RefreshReplacesSnapshot(t *testing.T) {
	lister := &fakeLister{tenants: testTenants()}
	c := New(lister)
	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, 4, c.Len())

	lister.tenants = []types.Target{
		{ID: "t5", Regions: []string{"ap-south-1"}},
	}
	require.NoError(t, c.Refresh(context.Background()))

	assert.Equal(t, 1, c.Len())
	assert.Empty(t, c.ResolveFanOut("us-east-1"))
	assert.Len(t, c.ResolveFanOut("ap-south-1"), 1)

	_, err := c.ResolveSingle("t1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCatalog_RefreshFailureKeepsOldSnapshot(t *testing.T) {
	lister := &fakeLister{tenants: testTenants()}
	c := New(lister)
	require.NoError(t, c.Refresh(context.Background()))

	lister.err = errors.New("backend down")
	err := c.Refresh(context.Background())
	require.Error(t, err)

	// Old catalog still serves
	assert.Equal(t, 4, c.Len())
	_, err = c.ResolveSingle("t1")
	assert.NoError(t, err)
}

func TestCatalog_Regions(t *testing.T) {
	c := newTestCatalog(t)

	regions := c.Regions()
	assert.ElementsMatch(t, []string{"us-east-1", "eu-west-1"}, regions)
}
