// Package cloudflare implements the Cloudflare Workers AI provider
// (spec §6.2), following the same embed-and-override pattern the teacher
// uses for DeepSeek/Qwen/GLM/Grok/Doubao: Workers AI is OpenAI-compatible
// at the wire-format level but scopes its endpoint path by account id.
package cloudflare

import (
	"fmt"

	"github.com/BaSui01/agentflow/llm/providers"
	"github.com/BaSui01/agentflow/llm/providers/openaicompat"
	"go.uber.org/zap"
)

// CloudflareProvider implements the Workers AI LLM provider.
type CloudflareProvider struct {
	*openaicompat.Provider
}

// NewCloudflareProvider creates a new Workers AI provider instance.
func NewCloudflareProvider(cfg providers.CloudflareConfig, logger *zap.Logger) *CloudflareProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.cloudflare.com"
	}
	endpoint := fmt.Sprintf("/client/v4/accounts/%s/ai/v1/chat/completions", cfg.AccountID)
	return &CloudflareProvider{
		Provider: openaicompat.New(openaicompat.Config{
			ProviderName: "cloudflare",
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			Timeout:      cfg.Timeout,
			EndpointPath: endpoint,
		}, logger),
	}
}
