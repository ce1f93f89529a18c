// Package custom implements the generic OpenAI-compatible adapter (spec
// §6.2 "generic OpenAI-compatible") for operator-specified endpoints that
// speak the OpenAI wire dialect but aren't one of the named providers.
package custom

import (
	"github.com/BaSui01/agentflow/llm/providers"
	"github.com/BaSui01/agentflow/llm/providers/openaicompat"
	"go.uber.org/zap"
)

// CustomProvider implements a generic OpenAI-compatible LLM provider.
type CustomProvider struct {
	*openaicompat.Provider
}

// NewCustomProvider creates a new generic provider instance. name becomes
// the provider identity surfaced in deployment metadata, responses, and
// error envelopes; the operator supplies both it and cfg.BaseURL.
func NewCustomProvider(name string, cfg providers.GenericConfig, logger *zap.Logger) *CustomProvider {
	return &CustomProvider{
		Provider: openaicompat.New(openaicompat.Config{
			ProviderName: name,
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			Timeout:      cfg.Timeout,
		}, logger),
	}
}
