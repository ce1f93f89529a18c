package openai

import (
	"github.com/BaSui01/agentflow/gateway"
	"github.com/BaSui01/agentflow/llm/providers"
	"github.com/BaSui01/agentflow/llm/providers/openaicompat"
	"go.uber.org/zap"
)

// NewGatewayAdapter builds OpenAI's gateway.ProviderAdapter over the Chat
// Completions dialect (the embedded openaicompat.Provider). The Responses
// API branch (OpenAIProvider.Completion's UseResponsesAPI path) is not
// wired into the gateway dispatch path; it remains reachable only through
// the legacy llm.Provider interface.
func NewGatewayAdapter(cfg providers.OpenAIConfig, logger *zap.Logger) *openaicompat.Adapter {
	base := openaicompat.New(openaicompat.Config{
		ProviderName:  "openai",
		APIKey:        cfg.APIKey,
		BaseURL:       cfg.BaseURL,
		DefaultModel:  cfg.Model,
		FallbackModel: "gpt-5.2",
		Timeout:       cfg.Timeout,
	}, logger)
	return openaicompat.NewAdapter(base, 0).WithCapabilities(gateway.CapChat | gateway.CapChatStream | gateway.CapEmbed)
}
