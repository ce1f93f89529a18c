package doubao

import (
	"github.com/BaSui01/agentflow/llm/providers"
	"github.com/BaSui01/agentflow/llm/providers/openaicompat"
	"go.uber.org/zap"
)

// NewGatewayAdapter builds ByteDance Doubao's gateway.ProviderAdapter.
func NewGatewayAdapter(cfg providers.DoubaoConfig, logger *zap.Logger) *openaicompat.Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://ark.cn-beijing.volces.com"
	}
	base := openaicompat.New(openaicompat.Config{
		ProviderName:  "doubao",
		APIKey:        cfg.APIKey,
		BaseURL:       cfg.BaseURL,
		DefaultModel:  cfg.Model,
		FallbackModel: "Doubao-1.5-pro-32k",
		Timeout:       cfg.Timeout,
		EndpointPath:  "/api/v3/chat/completions",
	}, logger)
	return openaicompat.NewAdapter(base, 0)
}
