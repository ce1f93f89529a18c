// Package openrouter implements the OpenRouter aggregator provider
// (spec §6.2): an OpenAI-compatible endpoint fronting many upstream model
// vendors, distinguished mainly by two optional attribution headers.
package openrouter

import (
	"net/http"

	"github.com/BaSui01/agentflow/llm/providers"
	"github.com/BaSui01/agentflow/llm/providers/openaicompat"
	"go.uber.org/zap"
)

// OpenRouterProvider implements the OpenRouter LLM provider.
type OpenRouterProvider struct {
	*openaicompat.Provider
}

// NewOpenRouterProvider creates a new OpenRouter provider instance.
func NewOpenRouterProvider(cfg providers.OpenRouterConfig, logger *zap.Logger) *OpenRouterProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://openrouter.ai/api"
	}
	p := &OpenRouterProvider{
		Provider: openaicompat.New(openaicompat.Config{
			ProviderName: "openrouter",
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			Timeout:      cfg.Timeout,
		}, logger),
	}
	p.SetBuildHeaders(func(req *http.Request, apiKey string) {
		req.Header.Set("Authorization", "Bearer "+apiKey)
		req.Header.Set("Content-Type", "application/json")
		if cfg.SiteURL != "" {
			req.Header.Set("HTTP-Referer", cfg.SiteURL)
		}
		if cfg.SiteName != "" {
			req.Header.Set("X-Title", cfg.SiteName)
		}
	})
	return p
}
