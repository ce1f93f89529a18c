package custom

import (
	"github.com/BaSui01/agentflow/llm/providers"
	"github.com/BaSui01/agentflow/llm/providers/openaicompat"
	"go.uber.org/zap"
)

// NewGatewayAdapter builds a generic OpenAI-compatible gateway.ProviderAdapter.
func NewGatewayAdapter(name string, cfg providers.GenericConfig, logger *zap.Logger) *openaicompat.Adapter {
	return openaicompat.NewAdapter(NewCustomProvider(name, cfg, logger).Provider, 0)
}
