package gateway

import (
	"sync"

	"github.com/BaSui01/agentflow/types"
)

// PriceEntry is one row of the pricing table (spec §6.3: "Pricing: JSON
// table model → {input_cost_per_token, output_cost_per_token,
// max_context_length}"). MaxContextLength is supplemented from
// original_source's base/pricing.rs (see SPEC_FULL.md §3) and is read by
// FitsContext; the FallbackController does not consult it when planning
// ContextWindow candidates.
type PriceEntry struct {
	InputCostPerToken  float64
	OutputCostPerToken float64
	MaxContextLength   int
}

// PricingCatalog is C2: token → cost per model.
type PricingCatalog struct {
	mu      sync.RWMutex
	entries map[string]PriceEntry
}

func NewPricingCatalog(entries map[string]PriceEntry) *PricingCatalog {
	if entries == nil {
		entries = make(map[string]PriceEntry)
	}
	return &PricingCatalog{entries: entries}
}

func (p *PricingCatalog) Get(model string) (PriceEntry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[model]
	return e, ok
}

func (p *PricingCatalog) Set(model string, e PriceEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[model] = e
}

// Price computes cost from token usage; unknown models price at 0 and are
// reported as such rather than erroring, since pricing is advisory
// telemetry, not an admission gate.
func (p *PricingCatalog) Price(model string, usage types.TokenUsage) float64 {
	e, ok := p.Get(model)
	if !ok {
		return 0
	}
	return float64(usage.PromptTokens)*e.InputCostPerToken + float64(usage.CompletionTokens)*e.OutputCostPerToken
}

// CostPer1K returns the blended per-1k-token cost used by the LeastCost
// strategy; unknown models sort last (treated as +Inf).
func (p *PricingCatalog) CostPer1K(model string) float64 {
	e, ok := p.Get(model)
	if !ok {
		return -1 // sentinel: caller treats negative as "unknown, sort last"
	}
	return (e.InputCostPerToken + e.OutputCostPerToken) * 500 // *1000/2 blended estimate
}

// FitsContext reports whether a model's declared context window can hold
// the given token count; unknown models are assumed to fit (no data to
// reject on).
func (p *PricingCatalog) FitsContext(model string, tokens int) bool {
	e, ok := p.Get(model)
	if !ok || e.MaxContextLength == 0 {
		return true
	}
	return tokens <= e.MaxContextLength
}
