package mistral

import (
	"github.com/BaSui01/agentflow/llm/providers"
	"github.com/BaSui01/agentflow/llm/providers/openaicompat"
	"go.uber.org/zap"
)

// NewGatewayAdapter builds Mistral AI's gateway.ProviderAdapter.
func NewGatewayAdapter(cfg providers.MistralConfig, logger *zap.Logger) *openaicompat.Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.mistral.ai"
	}
	base := openaicompat.New(openaicompat.Config{
		ProviderName: "mistral",
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		DefaultModel: cfg.Model,
		Timeout:      cfg.Timeout,
	}, logger)
	return openaicompat.NewAdapter(base, 0)
}
