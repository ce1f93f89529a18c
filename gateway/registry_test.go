package gateway

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAdapter is a minimal ProviderAdapter for registry/deployment tests
// that never dispatch a real request.
type stubAdapter struct{ name string }

func (s *stubAdapter) Name() string                { return s.name }
func (s *stubAdapter) Capabilities() Capability     { return CapChat }
func (s *stubAdapter) Chat(context.Context, *GatewayRequest) (*GatewayResponse, error) {
	return nil, nil
}
func (s *stubAdapter) ChatStream(context.Context, *GatewayRequest) (<-chan StreamEvent, error) {
	return nil, nil
}
func (s *stubAdapter) Embed(context.Context, *GatewayRequest) (*GatewayResponse, error) {
	return nil, nil
}
func (s *stubAdapter) ImageGen(context.Context, *GatewayRequest) (*GatewayResponse, error) {
	return nil, nil
}
func (s *stubAdapter) Audio(context.Context, *GatewayRequest) (*GatewayResponse, error) {
	return nil, nil
}
func (s *stubAdapter) Moderate(context.Context, *GatewayRequest) (*GatewayResponse, error) {
	return nil, nil
}
func (s *stubAdapter) Rerank(context.Context, *GatewayRequest) (*GatewayResponse, error) {
	return nil, nil
}
func (s *stubAdapter) HealthCheck(context.Context) error { return nil }
func (s *stubAdapter) ListModels(context.Context) ([]ModelInfo, error) {
	return nil, nil
}
func (s *stubAdapter) CalculateCost(GatewayResponse) float64 { return 0 }

func TestDeploymentRegistry_RegisterAndGet(t *testing.T) {
	r := NewDeploymentRegistry()
	dep := NewDeployment("dep-1", "gpt-test", &stubAdapter{name: "p"}, []string{"fast", "eu"})
	r.Register(dep)

	got, ok := r.Get("dep-1")
	require.True(t, ok)
	assert.Same(t, dep, got)

	_, ok = r.Get("nonexistent")
	assert.False(t, ok)
}

func TestDeploymentRegistry_ByModelPreservesInsertionOrder(t *testing.T) {
	r := NewDeploymentRegistry()
	a := NewDeployment("dep-a", "gpt-test", &stubAdapter{name: "a"}, nil)
	b := NewDeployment("dep-b", "gpt-test", &stubAdapter{name: "b"}, nil)
	r.Register(a)
	r.Register(b)

	deps := r.ByModel("gpt-test")
	require.Len(t, deps, 2)
	assert.Equal(t, "dep-a", deps[0].ID)
	assert.Equal(t, "dep-b", deps[1].ID)
}

func TestDeploymentRegistry_ByTagAndByGroup(t *testing.T) {
	r := NewDeploymentRegistry()
	dep := NewDeployment("dep-1", "gpt-test", &stubAdapter{name: "p"}, []string{"fast", "eu"})
	dep.Group = "tier-1"
	r.Register(dep)

	assert.Len(t, r.ByTag("fast"), 1)
	assert.Len(t, r.ByTag("eu"), 1)
	assert.Empty(t, r.ByTag("nonexistent-tag"))

	assert.Len(t, r.ByGroup("tier-1"), 1)
	assert.Empty(t, r.ByGroup("tier-2"))
}

func TestDeploymentRegistry_Unregister(t *testing.T) {
	r := NewDeploymentRegistry()
	dep := NewDeployment("dep-1", "gpt-test", &stubAdapter{name: "p"}, []string{"fast"})
	dep.Group = "tier-1"
	r.Register(dep)

	r.Unregister("dep-1")

	_, ok := r.Get("dep-1")
	assert.False(t, ok)
	assert.Empty(t, r.ByModel("gpt-test"))
	assert.Empty(t, r.ByTag("fast"))
	assert.Empty(t, r.ByGroup("tier-1"))

	// Unregistering an unknown id is a no-op, not an error.
	r.Unregister("never-existed")
}

func TestDeploymentRegistry_Lookup(t *testing.T) {
	r := NewDeploymentRegistry()
	fastEU := NewDeployment("fast-eu", "gpt-test", &stubAdapter{name: "1"}, []string{"fast", "eu"})
	fastEU.Group = "tier-1"
	slowUS := NewDeployment("slow-us", "gpt-test", &stubAdapter{name: "2"}, []string{"slow", "us"})
	slowUS.Group = "tier-2"
	r.Register(fastEU)
	r.Register(slowUS)

	// No prefs: all deployments for the model.
	all := r.Lookup("gpt-test", RoutingPrefs{})
	assert.Len(t, all, 2)

	// Tag filter narrows to the matching deployment.
	byTag := r.Lookup("gpt-test", RoutingPrefs{Tags: []string{"fast"}})
	require.Len(t, byTag, 1)
	assert.Equal(t, "fast-eu", byTag[0].ID)

	// Group filter narrows to the matching deployment.
	byGroup := r.Lookup("gpt-test", RoutingPrefs{Group: "tier-2"})
	require.Len(t, byGroup, 1)
	assert.Equal(t, "slow-us", byGroup[0].ID)

	// A tag that no deployment has yields no candidates.
	assert.Empty(t, r.Lookup("gpt-test", RoutingPrefs{Tags: []string{"nonexistent"}}))

	// A model with zero deployments registered yields nil, not a panic.
	assert.Empty(t, r.Lookup("no-such-model", RoutingPrefs{}))
}

func TestDeploymentRegistry_AllDeploymentIDs(t *testing.T) {
	r := NewDeploymentRegistry()
	assert.Empty(t, r.AllDeploymentIDs())

	r.Register(NewDeployment("dep-1", "m1", &stubAdapter{name: "1"}, nil))
	r.Register(NewDeployment("dep-2", "m2", &stubAdapter{name: "2"}, nil))

	ids := r.AllDeploymentIDs()
	sort.Strings(ids)
	assert.Equal(t, []string{"dep-1", "dep-2"}, ids)
}

// TestDeploymentRegistry_SnapshotIsolation verifies the copy-on-write
// contract: a slice returned by ByModel before a subsequent Register call
// is not mutated by that later registration (spec §5's "readers use a
// snapshot" invariant).
func TestDeploymentRegistry_SnapshotIsolation(t *testing.T) {
	r := NewDeploymentRegistry()
	r.Register(NewDeployment("dep-1", "gpt-test", &stubAdapter{name: "1"}, nil))

	before := r.ByModel("gpt-test")
	require.Len(t, before, 1)

	r.Register(NewDeployment("dep-2", "gpt-test", &stubAdapter{name: "2"}, nil))

	assert.Len(t, before, 1, "previously obtained snapshot slice must not grow")
	assert.Len(t, r.ByModel("gpt-test"), 2)
}
