package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/BaSui01/agentflow/gateway"
	"github.com/BaSui01/agentflow/gateway/streambridge"
	"github.com/BaSui01/agentflow/gwerr"
	"github.com/BaSui01/agentflow/httpclient"
	"github.com/BaSui01/agentflow/llm/providers"
	"github.com/BaSui01/agentflow/llm/retry"
)

// Adapter wraps a *Provider to satisfy gateway.ProviderAdapter (spec §4.2).
// It keeps the base Provider's transport/header/rewriter machinery and adds
// the unified operation set + gwerr-based error mapping the gateway core
// expects, so every OpenAI-compatible upstream (DeepSeek, Qwen, GLM, Grok,
// Doubao, MiniMax, OpenRouter, custom endpoints) gets ProviderAdapter
// conformance by embedding Adapter instead of Provider directly.
type Adapter struct {
	*Provider
	caps gateway.Capability
	hc   *httpclient.Client

	// CostPer1K returns (inputCostPer1K, outputCostPer1K) for a model; nil
	// means cost accounting is left entirely to gateway.PricingCatalog.
	CostPer1K func(model string) (in, out float64)
}

// defaultCapabilities is what every OpenAI-compatible chat adapter supports
// out of the box; providers that also expose embeddings/images override
// this at construction time.
const defaultCapabilities = gateway.CapChat | gateway.CapChatStream

// NewAdapter builds a ProviderAdapter around a base Provider. maxConns
// configures the shared httpclient.Client's per-host connection bound
// (spec §5); pass 0 to use the transport's default.
func NewAdapter(p *Provider, maxConns int) *Adapter {
	hc := httpclient.New(maxConns).WithRetry(&retry.RetryPolicy{
		MaxRetries:   2,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}, p.Logger)
	return &Adapter{Provider: p, caps: defaultCapabilities, hc: hc}
}

// WithCapabilities overrides the advertised capability bitset (spec §4.2:
// "capabilities declared statically").
func (a *Adapter) WithCapabilities(caps gateway.Capability) *Adapter {
	a.caps = caps
	return a
}

func (a *Adapter) Capabilities() gateway.Capability { return a.caps }

func (a *Adapter) resolveAPIKeyGW(ctx context.Context, req *gateway.GatewayRequest) string {
	if req.APIKey != "" {
		return req.APIKey
	}
	return a.resolveAPIKey(ctx)
}

func chooseModelGW(req *gateway.GatewayRequest, defaultModel, fallbackModel string) string {
	if req.Model != "" {
		return req.Model
	}
	if defaultModel != "" {
		return defaultModel
	}
	return fallbackModel
}

// Chat implements gateway.ProviderAdapter (spec §4.2 "chat").
func (a *Adapter) Chat(ctx context.Context, req *gateway.GatewayRequest) (*gateway.GatewayResponse, error) {
	if !a.caps.Has(gateway.CapChat) {
		return nil, gwerr.New(gwerr.KindInvalidRequest, a.Name(), "chat not supported by this deployment")
	}
	ctx, cancel := httpclient.Deadline(ctx, a.Cfg.Timeout)
	defer cancel()

	apiKey := a.resolveAPIKeyGW(ctx, req)
	model := chooseModelGW(req, a.Cfg.DefaultModel, a.Cfg.FallbackModel)
	body := providers.ConvertGatewayRequestToOpenAI(req, model, false)
	// Cfg.RequestHook is typed against *llm.ChatRequest (the legacy
	// Provider.Completion/Stream path) and is not invoked here; a
	// provider-specific Adapter override (e.g. DeepSeek reasoning mode)
	// should inspect req.Chat.Metadata/Extra directly instead.

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, gwerr.New(gwerr.KindInternal, a.Name(), fmt.Sprintf("marshal request: %v", err))
	}
	resp, err := a.hc.DoWithRetry(ctx, func() (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint(a.Cfg.EndpointPath), bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		a.buildHeaders(httpReq, apiKey)
		return httpReq, nil
	})
	if err != nil {
		return nil, providers.MapNetworkErrorGW(err, a.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, providers.MapHTTPErrorGW(resp.StatusCode, msg, a.Name())
	}

	var oaResp providers.OpenAICompatResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaResp); err != nil {
		return nil, gwerr.New(gwerr.KindResponseParsing, a.Name(), err.Error()).WithCause(err)
	}
	return providers.ToGatewayResponse(oaResp), nil
}

// ChatStream implements gateway.ProviderAdapter (spec §4.2 "chat_stream",
// §4.8 StreamBridge). The upstream SSE body is handed to a streambridge
// Bridge rather than parsed inline, so framing/backpressure/cancellation
// follow one shared implementation across every adapter.
func (a *Adapter) ChatStream(ctx context.Context, req *gateway.GatewayRequest) (<-chan gateway.StreamEvent, error) {
	if !a.caps.Has(gateway.CapChatStream) {
		return nil, gwerr.New(gwerr.KindInvalidRequest, a.Name(), "streaming not supported by this deployment")
	}
	reqCtx, cancel := httpclient.Deadline(ctx, a.Cfg.Timeout)
	_ = cancel // owned by reqCtx's own deadline timer; see note above NewBridge call

	apiKey := a.resolveAPIKeyGW(reqCtx, req)
	model := chooseModelGW(req, a.Cfg.DefaultModel, a.Cfg.FallbackModel)
	body := providers.ConvertGatewayRequestToOpenAI(req, model, true)
	// Cfg.RequestHook is typed against *llm.ChatRequest (the legacy
	// Provider.Completion/Stream path) and is not invoked here; a
	// provider-specific Adapter override (e.g. DeepSeek reasoning mode)
	// should inspect req.Chat.Metadata/Extra directly instead.

	payload, err := json.Marshal(body)
	if err != nil {
		cancel()
		return nil, gwerr.New(gwerr.KindInternal, a.Name(), fmt.Sprintf("marshal request: %v", err))
	}
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, a.endpoint(a.Cfg.EndpointPath), bytes.NewReader(payload))
	if err != nil {
		cancel()
		return nil, gwerr.New(gwerr.KindInternal, a.Name(), fmt.Sprintf("build request: %v", err))
	}
	a.buildHeaders(httpReq, apiKey)

	resp, err := a.hc.Do(httpReq)
	if err != nil {
		cancel()
		return nil, providers.MapNetworkErrorGW(err, a.Name())
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		defer cancel()
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, providers.MapHTTPErrorGW(resp.StatusCode, msg, a.Name())
	}

	// reqCtx carries its own timeout (set by httpclient.Deadline above); the
	// bridge derives its own cancellable context from it and releases the
	// connection on Close()/pump exit, so cancel need not be called here —
	// it fires naturally when the deadline elapses.
	cfg := streambridge.DefaultConfig()
	bridge := streambridge.NewBridge(reqCtx, resp.Body, providers.DecodeGatewayChunk, cfg)
	return bridge.Events(), nil
}

// Embed implements gateway.ProviderAdapter (spec §4.2 "embed") against the
// OpenAI-compatible /v1/embeddings shape. Only advertised (CapEmbed) for
// adapters built with WithCapabilities(CapEmbed|...) — by default an
// openaicompat.Adapter only declares chat/chat_stream.
func (a *Adapter) Embed(ctx context.Context, req *gateway.GatewayRequest) (*gateway.GatewayResponse, error) {
	if !a.caps.Has(gateway.CapEmbed) {
		return nil, a.unsupported(gateway.CapEmbed, "embeddings")
	}
	if req.Embedding == nil || len(req.Embedding.Input) == 0 {
		return nil, gwerr.New(gwerr.KindInvalidRequest, a.Name(), "embedding input is required")
	}
	ctx, cancel := httpclient.Deadline(ctx, a.Cfg.Timeout)
	defer cancel()

	apiKey := a.resolveAPIKeyGW(ctx, req)
	model := chooseModelGW(req, a.Cfg.DefaultModel, a.Cfg.FallbackModel)
	body := providers.OpenAICompatEmbeddingRequest{Model: model, Input: req.Embedding.Input}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, gwerr.New(gwerr.KindInternal, a.Name(), fmt.Sprintf("marshal request: %v", err))
	}
	resp, err := a.hc.DoWithRetry(ctx, func() (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint(a.Cfg.EmbeddingEndpoint), bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		a.buildHeaders(httpReq, apiKey)
		return httpReq, nil
	})
	if err != nil {
		return nil, providers.MapNetworkErrorGW(err, a.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, providers.MapHTTPErrorGW(resp.StatusCode, msg, a.Name())
	}

	var oaResp providers.OpenAICompatEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaResp); err != nil {
		return nil, gwerr.New(gwerr.KindResponseParsing, a.Name(), err.Error()).WithCause(err)
	}
	return providers.ToGatewayEmbeddingResponse(oaResp), nil
}

func (a *Adapter) ImageGen(ctx context.Context, req *gateway.GatewayRequest) (*gateway.GatewayResponse, error) {
	return nil, a.unsupported(gateway.CapImageGen, "image generation")
}

func (a *Adapter) Audio(ctx context.Context, req *gateway.GatewayRequest) (*gateway.GatewayResponse, error) {
	var want gateway.Capability
	if req.Audio != nil {
		switch req.Audio.Operation {
		case "transcriptions":
			want = gateway.CapAudioTranscribe
		case "translations":
			want = gateway.CapAudioTranslate
		case "speech":
			want = gateway.CapAudioSpeech
		}
	}
	return nil, a.unsupported(want, "audio")
}

func (a *Adapter) Moderate(ctx context.Context, req *gateway.GatewayRequest) (*gateway.GatewayResponse, error) {
	return nil, a.unsupported(gateway.CapModerate, "moderation")
}

func (a *Adapter) Rerank(ctx context.Context, req *gateway.GatewayRequest) (*gateway.GatewayResponse, error) {
	return nil, a.unsupported(gateway.CapRerank, "rerank")
}

func (a *Adapter) unsupported(want gateway.Capability, op string) error {
	if want != 0 && a.caps.Has(want) {
		// capability is declared but this base adapter has no concrete
		// implementation; a provider-specific adapter overriding this
		// method is required to actually serve the operation.
		return gwerr.New(gwerr.KindInvalidRequest, a.Name(), op+" capability declared but not implemented by this adapter")
	}
	return gwerr.New(gwerr.KindInvalidRequest, a.Name(), op+" not supported by this deployment")
}

func (a *Adapter) HealthCheck(ctx context.Context) error {
	_, err := a.Provider.HealthCheck(ctx)
	if err != nil {
		return providers.MapNetworkErrorGW(err, a.Name())
	}
	return nil
}

func (a *Adapter) ListModels(ctx context.Context) ([]gateway.ModelInfo, error) {
	models, err := a.Provider.ListModels(ctx)
	if err != nil {
		return nil, providers.MapNetworkErrorGW(err, a.Name())
	}
	out := make([]gateway.ModelInfo, 0, len(models))
	for _, m := range models {
		out = append(out, gateway.ModelInfo{ID: m.ID})
	}
	return out, nil
}

func (a *Adapter) CalculateCost(resp gateway.GatewayResponse) float64 {
	if a.CostPer1K == nil {
		return resp.Cost
	}
	in, out := a.CostPer1K(resp.Model)
	return float64(resp.Usage.PromptTokens)/1000*in + float64(resp.Usage.CompletionTokens)/1000*out
}

var _ gateway.ProviderAdapter = (*Adapter)(nil)
