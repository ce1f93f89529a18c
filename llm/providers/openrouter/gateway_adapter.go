package openrouter

import (
	"github.com/BaSui01/agentflow/llm/providers"
	"github.com/BaSui01/agentflow/llm/providers/openaicompat"
	"go.uber.org/zap"
)

// NewGatewayAdapter builds OpenRouter's gateway.ProviderAdapter.
func NewGatewayAdapter(cfg providers.OpenRouterConfig, logger *zap.Logger) *openaicompat.Adapter {
	return openaicompat.NewAdapter(NewOpenRouterProvider(cfg, logger).Provider, 0)
}
