package qwen

import (
	"github.com/BaSui01/agentflow/gateway"
	"github.com/BaSui01/agentflow/llm/providers"
	"github.com/BaSui01/agentflow/llm/providers/openaicompat"
	"go.uber.org/zap"
)

// NewGatewayAdapter builds Qwen's gateway.ProviderAdapter.
func NewGatewayAdapter(cfg providers.QwenConfig, logger *zap.Logger) *openaicompat.Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://dashscope.aliyuncs.com"
	}
	base := openaicompat.New(openaicompat.Config{
		ProviderName:  "qwen",
		APIKey:        cfg.APIKey,
		BaseURL:       cfg.BaseURL,
		DefaultModel:  cfg.Model,
		FallbackModel: "qwen3-235b-a22b",
		Timeout:       cfg.Timeout,
		EndpointPath:  "/compatible-mode/v1/chat/completions",
		EmbeddingEndpoint: "/compatible-mode/v1/embeddings",
	}, logger)
	return openaicompat.NewAdapter(base, 0).WithCapabilities(gateway.CapChat | gateway.CapChatStream | gateway.CapEmbed)
}

var _ gateway.ProviderAdapter = (*openaicompat.Adapter)(nil)
