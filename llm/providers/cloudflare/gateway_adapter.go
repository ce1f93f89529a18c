package cloudflare

import (
	"github.com/BaSui01/agentflow/llm/providers"
	"github.com/BaSui01/agentflow/llm/providers/openaicompat"
	"go.uber.org/zap"
)

// NewGatewayAdapter builds Cloudflare Workers AI's gateway.ProviderAdapter.
func NewGatewayAdapter(cfg providers.CloudflareConfig, logger *zap.Logger) *openaicompat.Adapter {
	return openaicompat.NewAdapter(NewCloudflareProvider(cfg, logger).Provider, 0)
}
