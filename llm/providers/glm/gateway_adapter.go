package glm

import (
	"github.com/BaSui01/agentflow/llm/providers"
	"github.com/BaSui01/agentflow/llm/providers/openaicompat"
	"go.uber.org/zap"
)

// NewGatewayAdapter builds Zhipu GLM's gateway.ProviderAdapter.
func NewGatewayAdapter(cfg providers.GLMConfig, logger *zap.Logger) *openaicompat.Adapter {
	base := openaicompat.New(openaicompat.Config{
		ProviderName:  "glm",
		APIKey:        cfg.APIKey,
		BaseURL:       cfg.BaseURL,
		DefaultModel:  cfg.Model,
		FallbackModel: "glm-4",
		Timeout:       cfg.Timeout,
	}, logger)
	return openaicompat.NewAdapter(base, 0)
}
