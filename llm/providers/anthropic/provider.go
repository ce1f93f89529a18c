// Package anthropic implements Anthropic Claude's gateway.ProviderAdapter
// (spec §4.2, §6.2). Claude's wire dialect differs from the OpenAI-
// compatible providers in every dimension the spec calls out: auth header
// (x-api-key, not Bearer), a separate system field instead of a system
// role message, content as an array of typed blocks instead of a string,
// and an event-typed SSE stream instead of one JSON object per line.
//
// Grounded on providers/anthropic/provider.go (the teacher's legacy
// ClaudeProvider), adapted from the llm.Provider/llm.ChatRequest contract
// to gateway.ProviderAdapter/gateway.GatewayRequest; the request/response
// wire types and conversion logic are carried over largely unchanged since
// they describe Anthropic's API, not the teacher's internal abstraction.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/agentflow/gateway"
	"github.com/BaSui01/agentflow/gateway/streambridge"
	"github.com/BaSui01/agentflow/gwerr"
	"github.com/BaSui01/agentflow/httpclient"
	"github.com/BaSui01/agentflow/llm/providers"
	"go.uber.org/zap"
)

// Adapter implements gateway.ProviderAdapter for Anthropic Claude.
type Adapter struct {
	cfg    providers.ClaudeConfig
	hc     *httpclient.Client
	logger *zap.Logger
	caps   gateway.Capability
}

// NewAdapter builds the Claude gateway adapter.
func NewAdapter(cfg providers.ClaudeConfig, logger *zap.Logger) *Adapter {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second // Claude responses can run long
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if cfg.AnthropicVersion == "" {
		cfg.AnthropicVersion = "2023-06-01"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		cfg:    cfg,
		hc:     httpclient.New(0),
		logger: logger,
		caps:   gateway.CapChat | gateway.CapChatStream,
	}
}

func (a *Adapter) Name() string                     { return "anthropic" }
func (a *Adapter) Capabilities() gateway.Capability { return a.caps }

func (a *Adapter) buildHeaders(req *http.Request, apiKey string) {
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", a.cfg.AnthropicVersion)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

func (a *Adapter) endpoint(path string) string {
	return fmt.Sprintf("%s%s", strings.TrimRight(a.cfg.BaseURL, "/"), path)
}

func (a *Adapter) apiKey(req *gateway.GatewayRequest) string {
	if req.APIKey != "" {
		return req.APIKey
	}
	return a.cfg.APIKey
}

// --- Anthropic wire types ---

type claudeMessage struct {
	Role    string          `json:"role"`
	Content []claudeContent `json:"content"`
}

type claudeContent struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type claudeTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type claudeRequest struct {
	Model       string          `json:"model"`
	Messages    []claudeMessage `json:"messages"`
	System      string          `json:"system,omitempty"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float32         `json:"temperature,omitempty"`
	TopP        float32         `json:"top_p,omitempty"`
	StopSeq     []string        `json:"stop_sequences,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
	Tools       []claudeTool    `json:"tools,omitempty"`
}

type claudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type claudeResponse struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Role         string          `json:"role"`
	Content      []claudeContent `json:"content"`
	Model        string          `json:"model"`
	StopReason   string          `json:"stop_reason"`
	StopSequence string          `json:"stop_sequence,omitempty"`
	Usage        *claudeUsage    `json:"usage,omitempty"`
}

type claudeStreamEvent struct {
	Type         string          `json:"type"`
	Index        int             `json:"index,omitempty"`
	Delta        *claudeDelta    `json:"delta,omitempty"`
	ContentBlock *claudeContent  `json:"content_block,omitempty"`
	Message      *claudeResponse `json:"message,omitempty"`
	Usage        *claudeUsage    `json:"usage,omitempty"`
}

type claudeDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

type claudeErrorResp struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func convertToClaudeMessages(msgs []gatewayMessage) (string, []claudeMessage) {
	var system string
	var out []claudeMessage
	for _, m := range msgs {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		if m.Role == "tool" {
			out = append(out, claudeMessage{
				Role: "user",
				Content: []claudeContent{{
					Type:      "tool_result",
					ToolUseID: m.ToolCallID,
					Content:   m.Content,
				}},
			})
			continue
		}
		cm := claudeMessage{Role: m.Role}
		if m.Content != "" {
			cm.Content = append(cm.Content, claudeContent{Type: "text", Text: m.Content})
		}
		for _, tc := range m.ToolCalls {
			cm.Content = append(cm.Content, claudeContent{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: tc.Arguments})
		}
		if len(cm.Content) > 0 {
			out = append(out, cm)
		}
	}
	return system, out
}

// gatewayMessage/gatewayToolCall are a minimal projection of types.Message/
// types.ToolCall so this file's wire-conversion logic stays decoupled from
// the exact shape of the gateway's chat payload type.
type gatewayMessage struct {
	Role       string
	Content    string
	ToolCallID string
	ToolCalls  []gatewayToolCall
}

type gatewayToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

func toGatewayMessages(p *gateway.ChatPayload) []gatewayMessage {
	if p == nil {
		return nil
	}
	out := make([]gatewayMessage, 0, len(p.Messages))
	for _, m := range p.Messages {
		gm := gatewayMessage{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			gm.ToolCalls = append(gm.ToolCalls, gatewayToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
		}
		out = append(out, gm)
	}
	return out
}

func convertToClaudeTools(p *gateway.ChatPayload) []claudeTool {
	if p == nil || len(p.Tools) == 0 {
		return nil
	}
	out := make([]claudeTool, 0, len(p.Tools))
	for _, t := range p.Tools {
		out = append(out, claudeTool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters})
	}
	return out
}

func chooseClaudeModel(req *gateway.GatewayRequest, defaultModel string) string {
	if req.Model != "" {
		return req.Model
	}
	if defaultModel != "" {
		return defaultModel
	}
	return "claude-3-5-sonnet-20241022"
}

func chooseMaxTokens(p *gateway.ChatPayload) int {
	if p != nil && p.MaxTokens > 0 {
		return p.MaxTokens
	}
	return 4096 // Claude requires max_tokens to be set
}

func (a *Adapter) buildRequest(req *gateway.GatewayRequest, stream bool) claudeRequest {
	system, messages := convertToClaudeMessages(toGatewayMessages(req.Chat))
	var temp, topP float32
	var stop []string
	if req.Chat != nil {
		temp = float32(req.Chat.Temperature)
		topP = float32(req.Chat.TopP)
		stop = req.Chat.Stop
	}
	return claudeRequest{
		Model:       chooseClaudeModel(req, a.cfg.Model),
		Messages:    messages,
		System:      system,
		MaxTokens:   chooseMaxTokens(req.Chat),
		Temperature: temp,
		TopP:        topP,
		StopSeq:     stop,
		Stream:      stream,
		Tools:       convertToClaudeTools(req.Chat),
	}
}

// Chat implements gateway.ProviderAdapter.
func (a *Adapter) Chat(ctx context.Context, req *gateway.GatewayRequest) (*gateway.GatewayResponse, error) {
	ctx, cancel := httpclient.Deadline(ctx, a.cfg.Timeout)
	defer cancel()

	body := a.buildRequest(req, false)
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, gwerr.New(gwerr.KindInternal, a.Name(), fmt.Sprintf("marshal request: %v", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint("/v1/messages"), bytes.NewReader(payload))
	if err != nil {
		return nil, gwerr.New(gwerr.KindInternal, a.Name(), fmt.Sprintf("build request: %v", err))
	}
	a.buildHeaders(httpReq, a.apiKey(req))

	resp, err := a.hc.Do(httpReq)
	if err != nil {
		return nil, providers.MapNetworkErrorGW(err, a.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := readClaudeErrMsg(resp.Body)
		return nil, mapClaudeError(resp.StatusCode, msg, a.Name())
	}

	var cr claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, gwerr.New(gwerr.KindResponseParsing, a.Name(), err.Error()).WithCause(err)
	}
	return toGatewayResponse(cr), nil
}

func toGatewayResponse(cr claudeResponse) *gateway.GatewayResponse {
	var content string
	var toolCalls []streambridge.ToolCallDelta
	for _, c := range cr.Content {
		switch c.Type {
		case "text":
			content += c.Text
		case "tool_use":
			toolCalls = append(toolCalls, streambridge.ToolCallDelta{ID: c.ID, Name: c.Name, Arguments: string(c.Input)})
		}
	}
	resp := &gateway.GatewayResponse{
		ID:    cr.ID,
		Model: cr.Model,
		Choices: []gateway.ChatChunkChoice{{
			Index:        0,
			FinishReason: finishReason(cr.StopReason),
			Delta:        gateway.ChunkDelta{Role: "assistant", Content: content, ToolCalls: toolCalls},
		}},
	}
	if cr.Usage != nil {
		resp.Usage.PromptTokens = cr.Usage.InputTokens
		resp.Usage.CompletionTokens = cr.Usage.OutputTokens
		resp.Usage.TotalTokens = cr.Usage.InputTokens + cr.Usage.OutputTokens
	}
	return resp
}

// finishReason defaults to "stop" when Claude's stop_reason is absent
// (spec §4.1: "transformer ... defaults finish reason to 'stop'").
func finishReason(stopReason string) string {
	if stopReason == "" {
		return "stop"
	}
	return stopReason
}

// ChatStream implements gateway.ProviderAdapter using a stateful Decoder
// closure: unlike the OpenAI-compatible dialect (one complete chunk per
// line), Claude's tool-call arguments arrive as partial JSON fragments
// across several content_block_delta events and must be accumulated
// before being handed to the bridge.
func (a *Adapter) ChatStream(ctx context.Context, req *gateway.GatewayRequest) (<-chan gateway.StreamEvent, error) {
	ctx, cancel := httpclient.Deadline(ctx, a.cfg.Timeout)
	_ = cancel

	body := a.buildRequest(req, true)
	payload, err := json.Marshal(body)
	if err != nil {
		cancel()
		return nil, gwerr.New(gwerr.KindInternal, a.Name(), fmt.Sprintf("marshal request: %v", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint("/v1/messages"), bytes.NewReader(payload))
	if err != nil {
		cancel()
		return nil, gwerr.New(gwerr.KindInternal, a.Name(), fmt.Sprintf("build request: %v", err))
	}
	a.buildHeaders(httpReq, a.apiKey(req))

	resp, err := a.hc.Do(httpReq)
	if err != nil {
		cancel()
		return nil, providers.MapNetworkErrorGW(err, a.Name())
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		defer cancel()
		msg := readClaudeErrMsg(resp.Body)
		return nil, mapClaudeError(resp.StatusCode, msg, a.Name())
	}

	bridge := streambridge.NewBridge(ctx, resp.Body, newClaudeDecoder(), streambridge.DefaultConfig())
	return bridge.Events(), nil
}

// newClaudeDecoder returns a streambridge.Decoder closing over one stream's
// accumulation state (current id/model, in-flight tool-call arguments).
func newClaudeDecoder() streambridge.Decoder {
	var currentID, currentModel string
	toolCalls := make(map[int]*streambridge.ToolCallDelta)

	return func(data []byte) (*streambridge.Chunk, error) {
		var event claudeStreamEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, err
		}

		chunk := &streambridge.Chunk{ID: currentID, Model: currentModel}

		switch event.Type {
		case "message_start":
			if event.Message != nil {
				currentID = event.Message.ID
				currentModel = event.Message.Model
				chunk.ID, chunk.Model = currentID, currentModel
			}

		case "content_block_start":
			if event.ContentBlock != nil && event.ContentBlock.Type == "tool_use" {
				toolCalls[event.Index] = &streambridge.ToolCallDelta{ID: event.ContentBlock.ID, Name: event.ContentBlock.Name}
			}

		case "content_block_delta":
			if event.Delta != nil {
				switch event.Delta.Type {
				case "text_delta":
					chunk.Choices = []streambridge.ChoiceDelta{{Index: event.Index, Delta: streambridge.Delta{Role: "assistant", Content: event.Delta.Text}}}
				case "input_json_delta":
					if tc, ok := toolCalls[event.Index]; ok {
						tc.Arguments += event.Delta.PartialJSON
					}
				}
			}

		case "content_block_stop":
			if tc, ok := toolCalls[event.Index]; ok {
				chunk.Choices = []streambridge.ChoiceDelta{{Index: event.Index, Delta: streambridge.Delta{Role: "assistant", ToolCalls: []streambridge.ToolCallDelta{*tc}}}}
				delete(toolCalls, event.Index)
			}

		case "message_delta":
			if event.Delta != nil && event.Delta.StopReason != "" {
				chunk.Choices = []streambridge.ChoiceDelta{{FinishReason: finishReason(event.Delta.StopReason)}}
			}

		case "message_stop":
			if event.Usage != nil {
				chunk.Usage = &streambridge.Usage{
					PromptTokens:     event.Usage.InputTokens,
					CompletionTokens: event.Usage.OutputTokens,
					TotalTokens:      event.Usage.InputTokens + event.Usage.OutputTokens,
				}
			}
			if len(chunk.Choices) == 0 {
				chunk.Choices = []streambridge.ChoiceDelta{{FinishReason: "stop"}}
			}
		}

		return chunk, nil
	}
}

func (a *Adapter) Embed(ctx context.Context, req *gateway.GatewayRequest) (*gateway.GatewayResponse, error) {
	return nil, gwerr.New(gwerr.KindInvalidRequest, a.Name(), "embeddings not supported by this deployment")
}

func (a *Adapter) ImageGen(ctx context.Context, req *gateway.GatewayRequest) (*gateway.GatewayResponse, error) {
	return nil, gwerr.New(gwerr.KindInvalidRequest, a.Name(), "image generation not supported by this deployment")
}

func (a *Adapter) Audio(ctx context.Context, req *gateway.GatewayRequest) (*gateway.GatewayResponse, error) {
	return nil, gwerr.New(gwerr.KindInvalidRequest, a.Name(), "audio not supported by this deployment")
}

func (a *Adapter) Moderate(ctx context.Context, req *gateway.GatewayRequest) (*gateway.GatewayResponse, error) {
	return nil, gwerr.New(gwerr.KindInvalidRequest, a.Name(), "moderation not supported by this deployment")
}

func (a *Adapter) Rerank(ctx context.Context, req *gateway.GatewayRequest) (*gateway.GatewayResponse, error) {
	return nil, gwerr.New(gwerr.KindInvalidRequest, a.Name(), "rerank not supported by this deployment")
}

func (a *Adapter) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint("/v1/models"), nil)
	if err != nil {
		return gwerr.New(gwerr.KindInternal, a.Name(), err.Error())
	}
	a.buildHeaders(httpReq, a.cfg.APIKey)
	resp, err := a.hc.Do(httpReq)
	if err != nil {
		return providers.MapNetworkErrorGW(err, a.Name())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg := readClaudeErrMsg(resp.Body)
		return mapClaudeError(resp.StatusCode, msg, a.Name())
	}
	return nil
}

func (a *Adapter) ListModels(ctx context.Context) ([]gateway.ModelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint("/v1/models"), nil)
	if err != nil {
		return nil, gwerr.New(gwerr.KindInternal, a.Name(), err.Error())
	}
	a.buildHeaders(httpReq, a.cfg.APIKey)
	resp, err := a.hc.Do(httpReq)
	if err != nil {
		return nil, providers.MapNetworkErrorGW(err, a.Name())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg := readClaudeErrMsg(resp.Body)
		return nil, mapClaudeError(resp.StatusCode, msg, a.Name())
	}
	var listResp struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listResp); err != nil {
		return nil, gwerr.New(gwerr.KindResponseParsing, a.Name(), err.Error()).WithCause(err)
	}
	out := make([]gateway.ModelInfo, 0, len(listResp.Data))
	for _, m := range listResp.Data {
		out = append(out, gateway.ModelInfo{ID: m.ID})
	}
	return out, nil
}

func (a *Adapter) CalculateCost(resp gateway.GatewayResponse) float64 { return resp.Cost }

func readClaudeErrMsg(body io.Reader) string {
	data, _ := io.ReadAll(body)
	var errResp claudeErrorResp
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
	}
	return string(data)
}

func mapClaudeError(status int, msg string, provider string) *gwerr.Error {
	return providers.MapHTTPErrorGW(status, msg, provider)
}

var _ gateway.ProviderAdapter = (*Adapter)(nil)
