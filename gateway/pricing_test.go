package gateway

import (
	"testing"

	"github.com/BaSui01/agentflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPricingCatalog_GetSetRoundTrip(t *testing.T) {
	p := NewPricingCatalog(nil)
	_, ok := p.Get("gpt-test")
	assert.False(t, ok)

	entry := PriceEntry{InputCostPerToken: 0.00001, OutputCostPerToken: 0.00003, MaxContextLength: 8192}
	p.Set("gpt-test", entry)

	got, ok := p.Get("gpt-test")
	require.True(t, ok)
	assert.Equal(t, entry, got)
}

func TestPricingCatalog_Price(t *testing.T) {
	p := NewPricingCatalog(map[string]PriceEntry{
		"gpt-test": {InputCostPerToken: 0.00001, OutputCostPerToken: 0.00003},
	})

	cost := p.Price("gpt-test", types.TokenUsage{PromptTokens: 1000, CompletionTokens: 500})
	assert.InDelta(t, 1000*0.00001+500*0.00003, cost, 1e-9)

	// Unknown model prices at zero rather than erroring -- pricing is
	// advisory telemetry, not an admission gate.
	assert.Equal(t, 0.0, p.Price("unknown-model", types.TokenUsage{PromptTokens: 100}))
}

func TestPricingCatalog_CostPer1K(t *testing.T) {
	p := NewPricingCatalog(map[string]PriceEntry{
		"gpt-test": {InputCostPerToken: 0.001, OutputCostPerToken: 0.002},
	})
	assert.InDelta(t, (0.001+0.002)*500, p.CostPer1K("gpt-test"), 1e-9)

	// Unknown models return a negative sentinel so LeastCost sorts them last.
	assert.Equal(t, -1.0, p.CostPer1K("unknown-model"))
}

func TestPricingCatalog_FitsContext(t *testing.T) {
	p := NewPricingCatalog(map[string]PriceEntry{
		"gpt-test": {MaxContextLength: 4096},
	})
	assert.True(t, p.FitsContext("gpt-test", 4096))
	assert.False(t, p.FitsContext("gpt-test", 4097))

	// Unknown model, or a model with no declared context length, is
	// assumed to fit -- there's no data to reject on.
	assert.True(t, p.FitsContext("unknown-model", 1_000_000))
}
