package tokenizer

// GatewayEstimator adapts the package's model-aware Tokenizer registry to
// gateway.TokenEstimator (spec §9 Open Question: usage falls back to a
// tokenizer estimate, marked estimated=true, when a provider's terminal
// chunk carries none). It is the single-text-argument shape the
// dispatcher needs, independent of which concrete Tokenizer a model
// resolves to (tiktoken-exact or the CJK-aware character estimator).
type GatewayEstimator struct {
	model string
}

// NewGatewayEstimator returns an estimator that counts tokens the way
// model would if it has a registered tokenizer, else falls back to the
// generic character-based estimator via GetTokenizerOrEstimator.
func NewGatewayEstimator(model string) *GatewayEstimator {
	return &GatewayEstimator{model: model}
}

// EstimateTokens implements gateway.TokenEstimator.
func (g *GatewayEstimator) EstimateTokens(text string) int {
	t := GetTokenizerOrEstimator(g.model)
	n, err := t.CountTokens(text)
	if err != nil {
		return len(text) / 4
	}
	return n
}
