package config

import (
	"fmt"
	"time"

	"github.com/BaSui01/agentflow/gateway"
	"github.com/BaSui01/agentflow/llm/providers"
	"github.com/BaSui01/agentflow/llm/providers/anthropic"
	"github.com/BaSui01/agentflow/llm/providers/cloudflare"
	"github.com/BaSui01/agentflow/llm/providers/custom"
	"github.com/BaSui01/agentflow/llm/providers/deepseek"
	"github.com/BaSui01/agentflow/llm/providers/doubao"
	"github.com/BaSui01/agentflow/llm/providers/glm"
	"github.com/BaSui01/agentflow/llm/providers/grok"
	"github.com/BaSui01/agentflow/llm/providers/mistral"
	"github.com/BaSui01/agentflow/llm/providers/openai"
	"github.com/BaSui01/agentflow/llm/providers/openrouter"
	"github.com/BaSui01/agentflow/llm/providers/qwen"
	"go.uber.org/zap"
)

// BuildDeployments turns the YAML-declared DeploymentConfig list into
// gateway.Deployment values backed by real llm/providers/* adapters (spec
// §6.3: "Deployments are created at config load"). One unresolvable
// provider name fails the whole load rather than silently dropping a
// deployment an operator believes is live.
func BuildDeployments(cfgs []DeploymentConfig, logger *zap.Logger) ([]*gateway.Deployment, error) {
	deployments := make([]*gateway.Deployment, 0, len(cfgs))
	for _, c := range cfgs {
		adapter, err := buildAdapter(c, logger)
		if err != nil {
			return nil, fmt.Errorf("deployment %q: %w", c.ID, err)
		}
		d := gateway.NewDeployment(c.ID, c.LogicalModel, adapter, c.Tags)
		d.Group = c.Group
		if c.Weight > 0 {
			d.Weight = c.Weight
		}
		d.Priority = c.Priority
		d.TPMLimit = c.TPMLimit
		d.RPMLimit = c.RPMLimit
		d.CooldownOnFailureS = c.CooldownOnFailureS
		if d.CooldownOnFailureS <= 0 {
			d.CooldownOnFailureS = 30
		}
		deployments = append(deployments, d)
	}
	return deployments, nil
}

func buildAdapter(c DeploymentConfig, logger *zap.Logger) (gateway.ProviderAdapter, error) {
	base := providers.BaseProviderConfig{
		APIKey:  c.APIKey,
		BaseURL: c.BaseURL,
		Model:   c.Model,
		Timeout: orDefault(c.Timeout, 60*time.Second),
	}

	switch c.Provider {
	case "openai":
		return openai.NewGatewayAdapter(providers.OpenAIConfig{BaseProviderConfig: base}, logger), nil
	case "anthropic", "claude":
		cfg := providers.ClaudeConfig{BaseProviderConfig: base, AuthType: c.AuthType, AnthropicVersion: c.AnthropicVersion}
		return anthropic.NewAdapter(cfg, logger), nil
	case "deepseek":
		return deepseek.NewGatewayAdapter(providers.DeepSeekConfig{BaseProviderConfig: base}, logger), nil
	case "qwen":
		return qwen.NewGatewayAdapter(providers.QwenConfig{BaseProviderConfig: base}, logger), nil
	case "glm":
		return glm.NewGatewayAdapter(providers.GLMConfig{BaseProviderConfig: base}, logger), nil
	case "grok":
		return grok.NewGatewayAdapter(providers.GrokConfig{BaseProviderConfig: base}, logger), nil
	case "doubao":
		return doubao.NewGatewayAdapter(providers.DoubaoConfig{BaseProviderConfig: base}, logger), nil
	case "mistral":
		return mistral.NewGatewayAdapter(providers.MistralConfig{BaseProviderConfig: base}, logger), nil
	case "cloudflare":
		return cloudflare.NewGatewayAdapter(providers.CloudflareConfig{BaseProviderConfig: base, AccountID: c.AccountID}, logger), nil
	case "openrouter":
		return openrouter.NewGatewayAdapter(providers.OpenRouterConfig{BaseProviderConfig: base, SiteURL: c.SiteURL, SiteName: c.SiteName}, logger), nil
	case "custom":
		return custom.NewGatewayAdapter(c.ID, providers.GenericConfig{BaseProviderConfig: base}, logger), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", c.Provider)
	}
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
