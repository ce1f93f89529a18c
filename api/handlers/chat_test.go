package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/agentflow/api"
	"github.com/BaSui01/agentflow/gateway"
	"github.com/BaSui01/agentflow/gwerr"
	"github.com/BaSui01/agentflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeAdapter is a minimal gateway.ProviderAdapter stub, grounded on the
// same fake-upstream-per-test pattern the deleted llm-level provider tests
// used (mockProvider above, in the pre-gateway version of this file).
type fakeAdapter struct {
	name       string
	chatFunc   func(ctx context.Context, req *gateway.GatewayRequest) (*gateway.GatewayResponse, error)
	streamFunc func(ctx context.Context, req *gateway.GatewayRequest) (<-chan gateway.StreamEvent, error)
}

func (f *fakeAdapter) Name() string                     { return f.name }
func (f *fakeAdapter) Capabilities() gateway.Capability { return gateway.CapChat | gateway.CapChatStream }

func (f *fakeAdapter) Chat(ctx context.Context, req *gateway.GatewayRequest) (*gateway.GatewayResponse, error) {
	return f.chatFunc(ctx, req)
}
func (f *fakeAdapter) ChatStream(ctx context.Context, req *gateway.GatewayRequest) (<-chan gateway.StreamEvent, error) {
	return f.streamFunc(ctx, req)
}
func (f *fakeAdapter) Embed(ctx context.Context, req *gateway.GatewayRequest) (*gateway.GatewayResponse, error) {
	return nil, gwerr.New(gwerr.KindInvalidRequest, f.name, "embed not supported")
}
func (f *fakeAdapter) ImageGen(ctx context.Context, req *gateway.GatewayRequest) (*gateway.GatewayResponse, error) {
	return nil, gwerr.New(gwerr.KindInvalidRequest, f.name, "image not supported")
}
func (f *fakeAdapter) Audio(ctx context.Context, req *gateway.GatewayRequest) (*gateway.GatewayResponse, error) {
	return nil, gwerr.New(gwerr.KindInvalidRequest, f.name, "audio not supported")
}
func (f *fakeAdapter) Moderate(ctx context.Context, req *gateway.GatewayRequest) (*gateway.GatewayResponse, error) {
	return nil, gwerr.New(gwerr.KindInvalidRequest, f.name, "moderate not supported")
}
func (f *fakeAdapter) Rerank(ctx context.Context, req *gateway.GatewayRequest) (*gateway.GatewayResponse, error) {
	return nil, gwerr.New(gwerr.KindInvalidRequest, f.name, "rerank not supported")
}
func (f *fakeAdapter) HealthCheck(ctx context.Context) error { return nil }
func (f *fakeAdapter) ListModels(ctx context.Context) ([]gateway.ModelInfo, error) {
	return nil, nil
}
func (f *fakeAdapter) CalculateCost(usage gateway.GatewayResponse) float64 { return 0 }

// newTestDispatcher wires a real gateway.Dispatcher around a single
// deployment backed by adapter, using the gateway's own in-memory
// components (registry/health/usage/strategy/fallback/pricing) rather than
// mocking the dispatcher itself — exercises the same admit/dispatch path
// production wiring uses.
func newTestDispatcher(t *testing.T, adapter gateway.ProviderAdapter) *gateway.Dispatcher {
	t.Helper()
	registry := gateway.NewDeploymentRegistry()
	dep := gateway.NewDeployment("dep-1", "gpt-test", adapter, nil)
	registry.Register(dep)

	clock := gateway.SystemClock{}
	health := gateway.NewHealthTracker(gateway.DefaultHealthConfig(), clock, zap.NewNop())
	usage := gateway.NewUsageTracker(clock)
	pricing := gateway.NewPricingCatalog(nil)
	strategy := gateway.NewStrategySelector(gateway.StrategyRoundRobin, 0, health, usage, pricing)
	fallback := gateway.NewFallbackController(gateway.FallbackConfig{}, 3)

	return gateway.NewDispatcher(registry, health, usage, strategy, fallback, pricing, clock, nil, zap.NewNop(), gateway.DispatcherConfig{})
}

func chatCompletionBody(stream bool) string {
	body := map[string]any{
		"model": "gpt-test",
		"messages": []map[string]string{
			{"role": "user", "content": "hello"},
		},
		"stream": stream,
	}
	b, _ := json.Marshal(body)
	return string(b)
}

func TestChatCompletionsHandler_NonStreaming(t *testing.T) {
	adapter := &fakeAdapter{
		name: "mock",
		chatFunc: func(ctx context.Context, req *gateway.GatewayRequest) (*gateway.GatewayResponse, error) {
			require.Equal(t, "gpt-test", req.Model)
			require.Len(t, req.Chat.Messages, 1)
			return &gateway.GatewayResponse{
				ID:        "resp-1",
				Model:     "gpt-test",
				Choices:   []gateway.ChatChunkChoice{{Index: 0, Delta: gateway.ChunkDelta{Role: "assistant", Content: "hi there"}, FinishReason: "stop"}},
				Usage:     types.TokenUsage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7},
				CreatedAt: time.Now(),
			}, nil
		},
	}
	handler := NewChatCompletionsHandler(newTestDispatcher(t, adapter), nil, zap.NewNop())

	r := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(chatCompletionBody(false)))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var resp api.ChatCompletionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "chat.completion", resp.Object)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "hi there", resp.Choices[0].Message.Content)
	assert.Equal(t, "stop", resp.Choices[0].FinishReason)
	assert.Equal(t, 7, resp.Usage.TotalTokens)
}

func TestChatCompletionsHandler_Streaming(t *testing.T) {
	adapter := &fakeAdapter{
		name: "mock",
		streamFunc: func(ctx context.Context, req *gateway.GatewayRequest) (<-chan gateway.StreamEvent, error) {
			out := make(chan gateway.StreamEvent, 2)
			out <- gateway.StreamEvent{Chunk: &gateway.ChatChunk{ID: "c1", Choices: []gateway.ChatChunkChoice{{Delta: gateway.ChunkDelta{Content: "hi"}}}}}
			out <- gateway.StreamEvent{Chunk: &gateway.ChatChunk{ID: "c1", Choices: []gateway.ChatChunkChoice{{FinishReason: "stop"}}}}
			close(out)
			return out, nil
		},
	}
	handler := NewChatCompletionsHandler(newTestDispatcher(t, adapter), nil, zap.NewNop())

	r := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(chatCompletionBody(true)))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	scanner := bufio.NewScanner(strings.NewReader(w.Body.String()))
	var dataLines []string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			dataLines = append(dataLines, strings.TrimPrefix(line, "data: "))
		}
	}
	require.Len(t, dataLines, 3) // two chunks + [DONE]
	assert.Equal(t, "[DONE]", dataLines[2])

	var chunk api.ChatCompletionChunk
	require.NoError(t, json.Unmarshal([]byte(dataLines[0]), &chunk))
	assert.Equal(t, "hi", chunk.Choices[0].Delta.Content)
}

func TestChatCompletionsHandler_ValidationError(t *testing.T) {
	adapter := &fakeAdapter{name: "mock"}
	handler := NewChatCompletionsHandler(newTestDispatcher(t, adapter), nil, zap.NewNop())

	body := `{"model":"","messages":[]}`
	r := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var env gwerr.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "invalid_request", env.Error.Type)
}

func TestChatCompletionsHandler_ModelNotFound(t *testing.T) {
	adapter := &fakeAdapter{name: "mock"}
	handler := NewChatCompletionsHandler(newTestDispatcher(t, adapter), nil, zap.NewNop())

	body := `{"model":"does-not-exist","messages":[{"role":"user","content":"hi"}]}`
	r := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusNotFound, w.Code)
}
