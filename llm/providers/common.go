package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/agentflow/gateway"
	"github.com/BaSui01/agentflow/gateway/streambridge"
	"github.com/BaSui01/agentflow/gwerr"
	"github.com/BaSui01/agentflow/llm"
	"github.com/BaSui01/agentflow/types"
)

func timeUnix(sec int64) time.Time { return time.Unix(sec, 0) }

// MapHTTPError 将 HTTP 状态代码映射到 llm. 合适的重试标记出错
// 这是所有提供者使用的常见错误映射功能
func MapHTTPError(status int, msg string, provider string) *llm.Error {
	switch status {
	case http.StatusUnauthorized:
		return &llm.Error{
			Code:       llm.ErrUnauthorized,
			Message:    msg,
			HTTPStatus: status,
			Provider:   provider,
		}
	case http.StatusForbidden:
		return &llm.Error{
			Code:       llm.ErrForbidden,
			Message:    msg,
			HTTPStatus: status,
			Provider:   provider,
		}
	case http.StatusTooManyRequests:
		return &llm.Error{
			Code:       llm.ErrRateLimited,
			Message:    msg,
			HTTPStatus: status,
			Retryable:  true,
			Provider:   provider,
		}
	case http.StatusBadRequest:
		// 检查配额/信用关键字
		msgLower := strings.ToLower(msg)
		if strings.Contains(msgLower, "quota") ||
			strings.Contains(msgLower, "credit") ||
			strings.Contains(msgLower, "limit") {
			return &llm.Error{
				Code:       llm.ErrQuotaExceeded,
				Message:    msg,
				HTTPStatus: status,
				Provider:   provider,
			}
		}
		return &llm.Error{
			Code:       llm.ErrInvalidRequest,
			Message:    msg,
			HTTPStatus: status,
			Provider:   provider,
		}
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return &llm.Error{
			Code:       llm.ErrUpstreamError,
			Message:    msg,
			HTTPStatus: status,
			Retryable:  true,
			Provider:   provider,
		}
	case 529: // Model overloaded (used by some providers)
		return &llm.Error{
			Code:       llm.ErrModelOverloaded,
			Message:    msg,
			HTTPStatus: status,
			Retryable:  true,
			Provider:   provider,
		}
	default:
		return &llm.Error{
			Code:       llm.ErrUpstreamError,
			Message:    msg,
			HTTPStatus: status,
			Retryable:  status >= 500,
			Provider:   provider,
		}
	}
}

// MapHTTPErrorGW is MapHTTPError's counterpart for the gateway.ProviderAdapter
// stack: it produces a *gwerr.Error (spec §7 taxonomy) instead of *llm.Error.
// Its dispatch is its own: 404 maps to ModelNotFound, 408/504 to Timeout,
// and a 400 body is checked for context-length and content-filter wording
// rather than for quota wording.
func MapHTTPErrorGW(status int, msg string, provider string) *gwerr.Error {
	switch status {
	case http.StatusUnauthorized:
		return gwerr.New(gwerr.KindAuthentication, provider, msg).WithHTTPStatus(status)
	case http.StatusForbidden:
		return gwerr.New(gwerr.KindAuthentication, provider, msg).WithHTTPStatus(status)
	case http.StatusTooManyRequests:
		return gwerr.New(gwerr.KindRateLimit, provider, msg).WithHTTPStatus(status)
	case http.StatusBadRequest:
		msgLower := strings.ToLower(msg)
		if strings.Contains(msgLower, "context") && strings.Contains(msgLower, "length") {
			return gwerr.New(gwerr.KindContextLenExceeded, provider, msg).WithHTTPStatus(status)
		}
		if strings.Contains(msgLower, "content") && (strings.Contains(msgLower, "filter") || strings.Contains(msgLower, "policy")) {
			return gwerr.New(gwerr.KindContentFiltered, provider, msg).WithHTTPStatus(status)
		}
		return gwerr.New(gwerr.KindInvalidRequest, provider, msg).WithHTTPStatus(status)
	case http.StatusNotFound:
		return gwerr.New(gwerr.KindModelNotFound, provider, msg).WithHTTPStatus(status)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return gwerr.New(gwerr.KindTimeout, provider, msg).WithHTTPStatus(status)
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		return gwerr.New(gwerr.KindServiceUnavailable, provider, msg).WithHTTPStatus(status)
	case 529: // model overloaded, used by some providers (e.g. Anthropic)
		return gwerr.New(gwerr.KindServiceUnavailable, provider, msg).WithHTTPStatus(status)
	default:
		if status >= 500 {
			return gwerr.New(gwerr.KindServiceUnavailable, provider, msg).WithHTTPStatus(status)
		}
		return gwerr.New(gwerr.KindAPI, provider, msg).WithHTTPStatus(status)
	}
}

// MapNetworkErrorGW classifies a transport-level failure (dial/read/write
// errors that never produced an HTTP status) per spec §7's Network/Timeout
// rows.
func MapNetworkErrorGW(err error, provider string) *gwerr.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return gwerr.New(gwerr.KindTimeout, provider, err.Error()).WithCause(err)
	}
	return gwerr.New(gwerr.KindNetwork, provider, err.Error()).WithCause(err)
}

// ConvertGatewayRequestToOpenAI builds the wire request body for an
// OpenAI-compatible upstream from a normalized *gateway.GatewayRequest. Only
// the Chat/Completion payload is handled here; the gateway's embedding/
// image/audio/moderation/rerank kinds have their own shapes and are
// converted per-operation by the adapter.
func ConvertGatewayRequestToOpenAI(req *gateway.GatewayRequest, model string, stream bool) OpenAICompatRequest {
	p := req.Chat
	body := OpenAICompatRequest{
		Model:  model,
		Stream: stream,
	}
	if p == nil {
		return body
	}
	body.Messages = make([]OpenAICompatMessage, 0, len(p.Messages))
	for _, m := range p.Messages {
		body.Messages = append(body.Messages, OpenAICompatMessage{
			Role:    string(m.Role),
			Content: m.Content,
			Name:    m.Name,
		})
	}
	body.Tools = make([]OpenAICompatTool, 0, len(p.Tools))
	for _, t := range p.Tools {
		body.Tools = append(body.Tools, OpenAICompatTool{
			Type: "function",
			Function: OpenAICompatFunction{
				Name: t.Name,
			},
		})
	}
	body.MaxTokens = p.MaxTokens
	body.Temperature = float32(p.Temperature)
	body.TopP = float32(p.TopP)
	body.Stop = p.Stop
	if p.ToolChoice != "" {
		body.ToolChoice = p.ToolChoice
	}
	return body
}

// ToGatewayResponse builds a *gateway.GatewayResponse from a decoded
// OpenAICompatResponse. Model carries the upstream's model id;
// Provider/Deployment/Cost are left for the Dispatcher to fill in (spec §4.9 ACCOUNT/EMIT), matching how
// ToLLMChatResponse leaves CreatedAt for its caller to set.
func ToGatewayResponse(oa OpenAICompatResponse) *gateway.GatewayResponse {
	resp := &gateway.GatewayResponse{
		ID:    oa.ID,
		Model: oa.Model,
	}
	if oa.Created != 0 {
		resp.CreatedAt = timeUnix(oa.Created)
	}
	resp.Choices = make([]gateway.ChatChunkChoice, 0, len(oa.Choices))
	for _, c := range oa.Choices {
		cd := gateway.ChatChunkChoice{Index: c.Index, FinishReason: c.FinishReason}
		cd.Delta.Role = string(types.RoleAssistant)
		cd.Delta.Content = c.Message.Content
		resp.Choices = append(resp.Choices, cd)
	}
	if oa.Usage != nil {
		resp.Usage = types.TokenUsage{
			PromptTokens:     oa.Usage.PromptTokens,
			CompletionTokens: oa.Usage.CompletionTokens,
			TotalTokens:      oa.Usage.TotalTokens,
		}
	}
	return resp
}

// DecodeGatewayChunk is a gateway/streambridge.Decoder for the OpenAI SSE
// dialect: one JSON object per `data:` line, already unwrapped from its SSE
// framing by the bridge itself (spec §4.8).
func DecodeGatewayChunk(data []byte) (*gateway.ChatChunk, error) {
	var oa OpenAICompatResponse
	if err := json.Unmarshal(data, &oa); err != nil {
		return nil, err
	}
	chunk := &gateway.ChatChunk{ID: oa.ID, Model: oa.Model, Created: oa.Created}
	chunk.Choices = make([]gateway.ChatChunkChoice, 0, len(oa.Choices))
	for _, c := range oa.Choices {
		cd := gateway.ChatChunkChoice{Index: c.Index, FinishReason: c.FinishReason}
		if c.Delta != nil {
			cd.Delta.Role = c.Delta.Role
			cd.Delta.Content = c.Delta.Content
			for _, tc := range c.Delta.ToolCalls {
				cd.Delta.ToolCalls = append(cd.Delta.ToolCalls, streambridge.ToolCallDelta{
					ID:        tc.ID,
					Name:      tc.Function.Name,
					Arguments: string(tc.Function.Arguments),
				})
			}
		}
		if cd.FinishReason == "" && len(chunk.Choices) == 0 {
			// default finish reason is left empty here; the transformer
			// contract (spec §4.1) only requires defaulting to "stop" on
			// the terminal chunk, which callers detect via IsTerminal().
		}
		chunk.Choices = append(chunk.Choices, cd)
	}
	if oa.Usage != nil {
		chunk.Usage = &streambridge.Usage{
			PromptTokens:     oa.Usage.PromptTokens,
			CompletionTokens: oa.Usage.CompletionTokens,
			TotalTokens:      oa.Usage.TotalTokens,
		}
	}
	return chunk, nil
}

// ReadErrorMessage 读取响应体中的错误消息
// 尝试解析 JSON 错误响应，失败时返回原始文本
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil {
		return "failed to read error response"
	}

	// 尝试解析为通用错误响应
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    any    `json:"code"`
		} `json:"error"`
	}

	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
		}
		return errResp.Error.Message
	}

	// 倒转到原始文本
	return string(data)
}

// OpenAI 兼容 API 常见类型
// 这些类型被Deepseek, qwen, glm, doubao, grok等兼容OpenAI的提供者所使用.
// 单个提供者软件包目前定义了自己的拷贝;未来的重构可以在这些软件包上统一.

// OpenAICompatMessage代表一种与OpenAI兼容的信息格式.
type OpenAICompatMessage struct {
	Role       string                `json:"role"`
	Content    string                `json:"content,omitempty"`
	Name       string                `json:"name,omitempty"`
	ToolCalls  []OpenAICompatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string                `json:"tool_call_id,omitempty"`
}

// OpenAI CompatToolCall代表了一个OpenAI相容的工具调用.
type OpenAICompatToolCall struct {
	ID       string              `json:"id"`
	Type     string              `json:"type"`
	Function OpenAICompatFunction `json:"function"`
}

// OpenAICompatFunction代表一个与OpenAI相容的函数定义.
type OpenAICompatFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// OpenAICompatTooll代表了一个OpenAI相容的工具定义.
type OpenAICompatTool struct {
	Type     string              `json:"type"`
	Function OpenAICompatFunction `json:"function"`
}

// OpenAICompat Request 代表 OpenAI 兼容的聊天完成请求.
type OpenAICompatRequest struct {
	Model       string                `json:"model"`
	Messages    []OpenAICompatMessage `json:"messages"`
	Tools       []OpenAICompatTool    `json:"tools,omitempty"`
	ToolChoice  interface{}           `json:"tool_choice,omitempty"`
	MaxTokens   int                   `json:"max_tokens,omitempty"`
	Temperature float32               `json:"temperature,omitempty"`
	TopP        float32               `json:"top_p,omitempty"`
	Stop        []string              `json:"stop,omitempty"`
	Stream      bool                  `json:"stream,omitempty"`
}

// OpenAICompatChoice代表OpenAI相容响应中的单一选择.
type OpenAICompatChoice struct {
	Index        int                  `json:"index"`
	FinishReason string               `json:"finish_reason"`
	Message      OpenAICompatMessage  `json:"message"`
	Delta        *OpenAICompatMessage `json:"delta,omitempty"`
}

// OpenAI CompatUsage 表示OpenAI相容响应中的符号用法.
type OpenAICompatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// OpenAICompatResponse代表了一个与OpenAI兼容的聊天完成响应.
type OpenAICompatResponse struct {
	ID      string               `json:"id"`
	Model   string               `json:"model"`
	Choices []OpenAICompatChoice `json:"choices"`
	Usage   *OpenAICompatUsage   `json:"usage,omitempty"`
	Created int64                `json:"created,omitempty"`
}

// OpenAICompatEmbeddingRequest is the OpenAI-compatible /v1/embeddings
// request body (spec §4.2 "embed").
type OpenAICompatEmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// OpenAICompatEmbeddingData is one embedding vector entry.
type OpenAICompatEmbeddingData struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

// OpenAICompatEmbeddingResponse is the OpenAI-compatible /v1/embeddings
// response body.
type OpenAICompatEmbeddingResponse struct {
	Model string                      `json:"model"`
	Data  []OpenAICompatEmbeddingData `json:"data"`
	Usage *OpenAICompatUsage          `json:"usage,omitempty"`
}

// ToGatewayEmbeddingResponse builds a *gateway.GatewayResponse carrying
// Embeddings from a decoded OpenAICompatEmbeddingResponse, mirroring
// ToGatewayResponse's chat-shaped counterpart.
func ToGatewayEmbeddingResponse(oa OpenAICompatEmbeddingResponse) *gateway.GatewayResponse {
	vectors := make([][]float64, len(oa.Data))
	for _, d := range oa.Data {
		if d.Index >= 0 && d.Index < len(vectors) {
			vectors[d.Index] = d.Embedding
		}
	}
	resp := &gateway.GatewayResponse{Model: oa.Model, Embeddings: vectors}
	if oa.Usage != nil {
		resp.Usage = types.TokenUsage{
			PromptTokens: oa.Usage.PromptTokens,
			TotalTokens:  oa.Usage.TotalTokens,
		}
	}
	return resp
}

// OpenAICompatErrorResp 代表 OpenAI 兼容的错误响应.
type OpenAICompatErrorResp struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
		Param   string `json:"param"`
	} `json:"error"`
}

// 转换Messages To OpenAI 转换 llm 。 信件切片到 OpenAI 兼容格式 。
func ConvertMessagesToOpenAI(msgs []llm.Message) []OpenAICompatMessage {
	out := make([]OpenAICompatMessage, 0, len(msgs))
	for _, m := range msgs {
		oa := OpenAICompatMessage{
			Role:       string(m.Role),
			Name:       m.Name,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		if len(m.ToolCalls) > 0 {
			oa.ToolCalls = make([]OpenAICompatToolCall, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				oa.ToolCalls = append(oa.ToolCalls, OpenAICompatToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: OpenAICompatFunction{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
		}
		out = append(out, oa)
	}
	return out
}

// 转换 Tools To OpenAI 转换 llm 。 ToolSchema切片为OpenAI相容格式.
func ConvertToolsToOpenAI(tools []llm.ToolSchema) []OpenAICompatTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]OpenAICompatTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, OpenAICompatTool{
			Type: "function",
			Function: OpenAICompatFunction{
				Name:      t.Name,
				Arguments: t.Parameters,
			},
		})
	}
	return out
}

// ToLLMChatResponse将一个OpenAI相容的响应转换为llm. 聊天回应.
func ToLLMChatResponse(oa OpenAICompatResponse, provider string) *llm.ChatResponse {
	choices := make([]llm.ChatChoice, 0, len(oa.Choices))
	for _, c := range oa.Choices {
		msg := llm.Message{
			Role:    llm.RoleAssistant,
			Content: c.Message.Content,
			Name:    c.Message.Name,
		}
		if len(c.Message.ToolCalls) > 0 {
			msg.ToolCalls = make([]llm.ToolCall, 0, len(c.Message.ToolCalls))
			for _, tc := range c.Message.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
					ID:        tc.ID,
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				})
			}
		}
		choices = append(choices, llm.ChatChoice{
			Index:        c.Index,
			FinishReason: c.FinishReason,
			Message:      msg,
		})
	}
	resp := &llm.ChatResponse{
		ID:       oa.ID,
		Provider: provider,
		Model:    oa.Model,
		Choices:  choices,
	}
	if oa.Usage != nil {
		resp.Usage = llm.ChatUsage{
			PromptTokens:     oa.Usage.PromptTokens,
			CompletionTokens: oa.Usage.CompletionTokens,
			TotalTokens:      oa.Usage.TotalTokens,
		}
	}
	return resp
}

// 根据请求和默认选择模式
func ChooseModel(req *llm.ChatRequest, defaultModel, fallbackModel string) string {
	if req != nil && req.Model != "" {
		return req.Model
	}
	if defaultModel != "" {
		return defaultModel
	}
	return fallbackModel
}

// SafeCloseBody 安全关闭 HTTP 响应机体并记录出错
func SafeCloseBody(body io.ReadCloser) {
	if body != nil {
		_ = body.Close()
	}
}

// ListModelsOpenAICompat 通用的 OpenAI 兼容 Provider 模型列表获取函数
func ListModelsOpenAICompat(ctx context.Context, client *http.Client, baseURL, apiKey, providerName, modelsEndpoint string, buildHeadersFunc func(*http.Request, string)) ([]llm.Model, error) {
	endpoint := fmt.Sprintf("%s%s", strings.TrimRight(baseURL, "/"), modelsEndpoint)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	buildHeadersFunc(httpReq, apiKey)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, &llm.Error{
			Code:       llm.ErrUpstreamError,
			Message:    err.Error(),
			HTTPStatus: http.StatusBadGateway,
			Retryable:  true,
			Provider:   providerName,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := ReadErrorMessage(resp.Body)
		return nil, MapHTTPError(resp.StatusCode, msg, providerName)
	}

	var modelsResp struct {
		Object string       `json:"object"`
		Data   []llm.Model  `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&modelsResp); err != nil {
		return nil, &llm.Error{
			Code:       llm.ErrUpstreamError,
			Message:    err.Error(),
			HTTPStatus: http.StatusBadGateway,
			Retryable:  true,
			Provider:   providerName,
		}
	}

	return modelsResp.Data, nil
}

