package grok

import (
	"github.com/BaSui01/agentflow/llm/providers"
	"github.com/BaSui01/agentflow/llm/providers/openaicompat"
	"go.uber.org/zap"
)

// NewGatewayAdapter builds xAI Grok's gateway.ProviderAdapter.
func NewGatewayAdapter(cfg providers.GrokConfig, logger *zap.Logger) *openaicompat.Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.x.ai"
	}
	base := openaicompat.New(openaicompat.Config{
		ProviderName:  "grok",
		APIKey:        cfg.APIKey,
		BaseURL:       cfg.BaseURL,
		DefaultModel:  cfg.Model,
		FallbackModel: "grok-beta",
		Timeout:       cfg.Timeout,
	}, logger)
	return openaicompat.NewAdapter(base, 0)
}
