package deepseek

import (
	"context"

	"github.com/BaSui01/agentflow/gateway"
	"github.com/BaSui01/agentflow/llm/providers"
	"github.com/BaSui01/agentflow/llm/providers/openaicompat"
	"go.uber.org/zap"
)

// GatewayAdapter is DeepSeek's gateway.ProviderAdapter. It embeds the shared
// openaicompat.Adapter and applies DeepSeek's reasoning-mode model override
// (see deepseekRequestHook) directly against gateway.GatewayRequest.Chat,
// since the legacy RequestHook is typed against *llm.ChatRequest and isn't
// reachable from this path.
type GatewayAdapter struct {
	*openaicompat.Adapter
}

// NewGatewayAdapter builds DeepSeek's adapter for the gateway dispatch path.
func NewGatewayAdapter(cfg providers.DeepSeekConfig, logger *zap.Logger) *GatewayAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.deepseek.com"
	}
	base := openaicompat.New(openaicompat.Config{
		ProviderName:  "deepseek",
		APIKey:        cfg.APIKey,
		BaseURL:       cfg.BaseURL,
		DefaultModel:  cfg.Model,
		FallbackModel: "deepseek-chat",
		Timeout:       cfg.Timeout,
		EndpointPath:  "/chat/completions",
	}, logger)
	return &GatewayAdapter{Adapter: openaicompat.NewAdapter(base, 0)}
}

func reasoningModel(req *gateway.GatewayRequest, requested string) string {
	if requested != "" || req.Chat == nil {
		return requested
	}
	mode, _ := req.Chat.Metadata["reasoning_mode"].(string)
	if mode == "thinking" || mode == "extended" {
		return "deepseek-reasoner"
	}
	return requested
}

func (a *GatewayAdapter) Chat(ctx context.Context, req *gateway.GatewayRequest) (*gateway.GatewayResponse, error) {
	req.Model = reasoningModel(req, req.Model)
	return a.Adapter.Chat(ctx, req)
}

func (a *GatewayAdapter) ChatStream(ctx context.Context, req *gateway.GatewayRequest) (<-chan gateway.StreamEvent, error) {
	req.Model = reasoningModel(req, req.Model)
	return a.Adapter.ChatStream(ctx, req)
}

var _ gateway.ProviderAdapter = (*GatewayAdapter)(nil)
