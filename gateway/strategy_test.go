package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStrategy(t *testing.T, strat Strategy) (*StrategySelector, *HealthTracker, *UsageTracker, *PricingCatalog) {
	t.Helper()
	clock := newFakeClock()
	health := NewHealthTracker(DefaultHealthConfig(), clock, nil)
	usage := NewUsageTracker(clock)
	pricing := NewPricingCatalog(nil)
	return NewStrategySelector(strat, 0, health, usage, pricing), health, usage, pricing
}

func TestStrategySelector_NoCandidates(t *testing.T) {
	s, _, _, _ := newTestStrategy(t, StrategyRoundRobin)
	_, err := s.Select(nil)
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestStrategySelector_SingleCandidateShortCircuits(t *testing.T) {
	s, _, _, _ := newTestStrategy(t, StrategyRoundRobin)
	dep := NewDeployment("dep-1", "gpt-test", &stubAdapter{name: "p"}, nil)
	picked, err := s.Select([]*Deployment{dep})
	require.NoError(t, err)
	assert.Same(t, dep, picked)
}

func TestStrategySelector_RoundRobinCycles(t *testing.T) {
	s, _, _, _ := newTestStrategy(t, StrategyRoundRobin)
	a := NewDeployment("a", "m", &stubAdapter{name: "a"}, nil)
	b := NewDeployment("b", "m", &stubAdapter{name: "b"}, nil)
	c := NewDeployment("c", "m", &stubAdapter{name: "c"}, nil)
	candidates := []*Deployment{a, b, c}

	var picks []string
	for i := 0; i < 6; i++ {
		d, err := s.Select(candidates)
		require.NoError(t, err)
		picks = append(picks, d.ID)
	}
	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c"}, picks)
}

func TestStrategySelector_PriorityPicksHighest(t *testing.T) {
	s, _, _, _ := newTestStrategy(t, StrategyPriority)
	low := NewDeployment("low", "m", &stubAdapter{name: "low"}, nil)
	low.Priority = 1
	high := NewDeployment("high", "m", &stubAdapter{name: "high"}, nil)
	high.Priority = 10

	picked, err := s.Select([]*Deployment{low, high})
	require.NoError(t, err)
	assert.Equal(t, "high", picked.ID)
}

func TestStrategySelector_LeastLatencyPicksLowestEMA(t *testing.T) {
	s, health, _, _ := newTestStrategy(t, StrategyLeastLatency)
	fast := NewDeployment("fast", "m", &stubAdapter{name: "fast"}, nil)
	slow := NewDeployment("slow", "m", &stubAdapter{name: "slow"}, nil)

	health.RecordSuccess("fast", 10_000_000, 30) // 10ms
	health.RecordSuccess("slow", 500_000_000, 30) // 500ms

	picked, err := s.Select([]*Deployment{slow, fast})
	require.NoError(t, err)
	assert.Equal(t, "fast", picked.ID)
}

func TestStrategySelector_LeastCostPrefersKnownCheaperModel(t *testing.T) {
	s, _, _, pricing := newTestStrategy(t, StrategyLeastCost)
	pricing.Set("cheap-model", PriceEntry{InputCostPerToken: 0.000001, OutputCostPerToken: 0.000002})
	pricing.Set("pricey-model", PriceEntry{InputCostPerToken: 0.0001, OutputCostPerToken: 0.0002})

	cheap := NewDeployment("cheap", "cheap-model", &stubAdapter{name: "cheap"}, nil)
	pricey := NewDeployment("pricey", "pricey-model", &stubAdapter{name: "pricey"}, nil)

	picked, err := s.Select([]*Deployment{pricey, cheap})
	require.NoError(t, err)
	assert.Equal(t, "cheap", picked.ID)
}

func TestStrategySelector_LeastCostUnknownModelSortsLast(t *testing.T) {
	s, _, _, pricing := newTestStrategy(t, StrategyLeastCost)
	pricing.Set("known-model", PriceEntry{InputCostPerToken: 0.0001, OutputCostPerToken: 0.0002})

	known := NewDeployment("known", "known-model", &stubAdapter{name: "known"}, nil)
	unknown := NewDeployment("unknown", "mystery-model", &stubAdapter{name: "unknown"}, nil)

	picked, err := s.Select([]*Deployment{unknown, known})
	require.NoError(t, err)
	assert.Equal(t, "known", picked.ID)
}

func TestStrategySelector_LeastBusyPicksFewestActive(t *testing.T) {
	s, _, usage, _ := newTestStrategy(t, StrategyLeastBusy)
	busy := NewDeployment("busy", "m", &stubAdapter{name: "busy"}, nil)
	idle := NewDeployment("idle", "m", &stubAdapter{name: "idle"}, nil)

	usage.Admit("", busy, 0)
	usage.Admit("", busy, 0)
	usage.Admit("", idle, 0)

	picked, err := s.Select([]*Deployment{busy, idle})
	require.NoError(t, err)
	assert.Equal(t, "idle", picked.ID)
}

func TestStrategySelector_WeightedRespectsDeterministicDraw(t *testing.T) {
	s, _, _, _ := newTestStrategy(t, StrategyWeighted)
	light := NewDeployment("light", "m", &stubAdapter{name: "light"}, nil)
	light.Weight = 1
	heavy := NewDeployment("heavy", "m", &stubAdapter{name: "heavy"}, nil)
	heavy.Weight = 9

	// total weight 10: draw 0.05*10=0.5 -> falls in [0,1) -> "light".
	s.WithRNG(func() float64 { return 0.05 })
	picked, err := s.Select([]*Deployment{light, heavy})
	require.NoError(t, err)
	assert.Equal(t, "light", picked.ID)

	// draw 0.5*10=5 -> falls past light's [0,1) bucket, into heavy's [1,10).
	s.WithRNG(func() float64 { return 0.5 })
	picked, err = s.Select([]*Deployment{light, heavy})
	require.NoError(t, err)
	assert.Equal(t, "heavy", picked.ID)
}

func TestStrategySelector_ABTestSplitsByRNG(t *testing.T) {
	s, _, _, _ := newTestStrategy(t, StrategyABTest)
	s.abSplit = 0.5
	first := NewDeployment("first", "m", &stubAdapter{name: "first"}, nil)
	second := NewDeployment("second", "m", &stubAdapter{name: "second"}, nil)

	s.WithRNG(func() float64 { return 0.1 }) // < abSplit -> first
	picked, err := s.Select([]*Deployment{first, second})
	require.NoError(t, err)
	assert.Equal(t, "first", picked.ID)

	s.WithRNG(func() float64 { return 0.9 }) // >= abSplit -> second
	picked, err = s.Select([]*Deployment{first, second})
	require.NoError(t, err)
	assert.Equal(t, "second", picked.ID)
}

func TestStrategySelector_TiesBreakByRoundRobin(t *testing.T) {
	s, _, _, _ := newTestStrategy(t, StrategyPriority)
	a := NewDeployment("a", "m", &stubAdapter{name: "a"}, nil)
	b := NewDeployment("b", "m", &stubAdapter{name: "b"}, nil)
	// Equal priority (both zero): tie-break falls through to round robin.
	first, err := s.Select([]*Deployment{a, b})
	require.NoError(t, err)
	second, err := s.Select([]*Deployment{a, b})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID, "tied candidates must alternate via round robin")
}
