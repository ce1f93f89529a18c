package api

import (
	"encoding/json"

	"github.com/BaSui01/agentflow/gateway"
	"github.com/BaSui01/agentflow/types"
)

// OpenAI-compatible wire types (spec §6.1). These are distinct from the
// legacy ChatRequest/ChatResponse above (api/types.go), which remain the
// wire shape for the teacher's original /api/v1/chat endpoint; the
// gateway's /v1/chat/completions surface speaks the OpenAI dialect every
// client SDK already targets.

// ChatCompletionMessage is one OpenAI chat message.
type ChatCompletionMessage struct {
	Role       string          `json:"role"`
	Content    string          `json:"content,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCalls  []types.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

// ChatCompletionTool is an OpenAI function-tool declaration.
type ChatCompletionTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description,omitempty"`
		Parameters  json.RawMessage `json:"parameters,omitempty"`
	} `json:"function"`
}

// ChatCompletionRequest is the OpenAI /v1/chat/completions request body.
type ChatCompletionRequest struct {
	Model       string                  `json:"model"`
	Messages    []ChatCompletionMessage `json:"messages"`
	MaxTokens   int                     `json:"max_tokens,omitempty"`
	Temperature float64                 `json:"temperature,omitempty"`
	TopP        float64                 `json:"top_p,omitempty"`
	Stop        []string                `json:"stop,omitempty"`
	Tools       []ChatCompletionTool    `json:"tools,omitempty"`
	ToolChoice  json.RawMessage         `json:"tool_choice,omitempty"`
	Stream      bool                    `json:"stream,omitempty"`
	User        string                  `json:"user,omitempty"`
	Metadata    map[string]any          `json:"metadata,omitempty"`
}

// ChatCompletionChoice is one non-streaming response choice.
type ChatCompletionChoice struct {
	Index        int                   `json:"index"`
	Message      ChatCompletionMessage `json:"message"`
	FinishReason string                `json:"finish_reason,omitempty"`
}

// ChatCompletionUsage is the OpenAI usage block.
type ChatCompletionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionResponse is the OpenAI /v1/chat/completions response body.
type ChatCompletionResponse struct {
	ID      string                  `json:"id"`
	Object  string                  `json:"object"`
	Created int64                   `json:"created"`
	Model   string                  `json:"model"`
	Choices []ChatCompletionChoice  `json:"choices"`
	Usage   ChatCompletionUsage     `json:"usage"`
}

// ChatCompletionChunkChoice is one streaming delta choice.
type ChatCompletionChunkChoice struct {
	Index        int                   `json:"index"`
	Delta        ChatCompletionMessage `json:"delta"`
	FinishReason *string               `json:"finish_reason"`
}

// ChatCompletionChunk is one OpenAI SSE `data:` payload.
type ChatCompletionChunk struct {
	ID      string                      `json:"id"`
	Object  string                      `json:"object"`
	Created int64                       `json:"created"`
	Model   string                      `json:"model"`
	Choices []ChatCompletionChunkChoice `json:"choices"`
	Usage   *ChatCompletionUsage        `json:"usage,omitempty"`
}

// EmbeddingRequest is the OpenAI /v1/embeddings request body.
type EmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// EmbeddingData is one embedding vector entry.
type EmbeddingData struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

// EmbeddingResponse is the OpenAI /v1/embeddings response body.
type EmbeddingResponse struct {
	Object string              `json:"object"`
	Data   []EmbeddingData     `json:"data"`
	Model  string              `json:"model"`
	Usage  ChatCompletionUsage `json:"usage"`
}

// ToGatewayRequest converts an OpenAI wire request into the gateway's
// normalized GatewayRequest (spec §3/§6.1).
func (r *ChatCompletionRequest) ToGatewayRequest(requestID, apiKey string) *gateway.GatewayRequest {
	messages := make([]types.Message, len(r.Messages))
	for i, m := range r.Messages {
		messages[i] = types.Message{
			Role:       types.Role(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
		}
	}
	tools := make([]types.ToolSchema, len(r.Tools))
	for i, t := range r.Tools {
		tools[i] = types.ToolSchema{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
		}
	}
	toolChoice := ""
	if len(r.ToolChoice) > 0 {
		var s string
		if err := json.Unmarshal(r.ToolChoice, &s); err == nil {
			toolChoice = s
		} else {
			toolChoice = string(r.ToolChoice)
		}
	}
	return &gateway.GatewayRequest{
		RequestID: requestID,
		Kind:      gateway.KindChat,
		Model:     r.Model,
		APIKey:    apiKey,
		Streaming: r.Stream,
		Chat: &gateway.ChatPayload{
			Messages:    messages,
			MaxTokens:   r.MaxTokens,
			Temperature: r.Temperature,
			TopP:        r.TopP,
			Stop:        r.Stop,
			Tools:       tools,
			ToolChoice:  toolChoice,
			Metadata:    r.Metadata,
		},
	}
}

// FromGatewayResponse renders a GatewayResponse as the OpenAI wire shape.
func FromGatewayResponse(resp *gateway.GatewayResponse) *ChatCompletionResponse {
	choices := make([]ChatCompletionChoice, len(resp.Choices))
	for i, c := range resp.Choices {
		choices[i] = ChatCompletionChoice{
			Index: c.Index,
			Message: ChatCompletionMessage{
				Role:    valueOr(c.Delta.Role, "assistant"),
				Content: c.Delta.Content,
			},
			FinishReason: c.FinishReason,
		}
	}
	return &ChatCompletionResponse{
		ID:      resp.ID,
		Object:  "chat.completion",
		Created: resp.CreatedAt.Unix(),
		Model:   resp.Model,
		Choices: choices,
		Usage: ChatCompletionUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
}

// FromGatewayChunk renders one streambridge.Chunk as an OpenAI SSE chunk.
func FromGatewayChunk(model string, c *gateway.ChatChunk) *ChatCompletionChunk {
	choices := make([]ChatCompletionChunkChoice, len(c.Choices))
	for i, ch := range c.Choices {
		var fr *string
		if ch.FinishReason != "" {
			f := ch.FinishReason
			fr = &f
		}
		choices[i] = ChatCompletionChunkChoice{
			Index: ch.Index,
			Delta: ChatCompletionMessage{
				Role:    ch.Delta.Role,
				Content: ch.Delta.Content,
			},
			FinishReason: fr,
		}
	}
	out := &ChatCompletionChunk{
		ID:      c.ID,
		Object:  "chat.completion.chunk",
		Created: c.Created,
		Model:   model,
		Choices: choices,
	}
	if c.Usage != nil {
		out.Usage = &ChatCompletionUsage{
			PromptTokens:     c.Usage.PromptTokens,
			CompletionTokens: c.Usage.CompletionTokens,
			TotalTokens:      c.Usage.TotalTokens,
		}
	}
	return out
}

// FromGatewayEmbeddingResponse renders a GatewayResponse carrying
// Embeddings as the OpenAI /v1/embeddings wire shape.
func FromGatewayEmbeddingResponse(resp *gateway.GatewayResponse) *EmbeddingResponse {
	data := make([]EmbeddingData, len(resp.Embeddings))
	for i, vec := range resp.Embeddings {
		data[i] = EmbeddingData{Object: "embedding", Index: i, Embedding: vec}
	}
	return &EmbeddingResponse{
		Object: "list",
		Data:   data,
		Model:  resp.Model,
		Usage: ChatCompletionUsage{
			PromptTokens: resp.Usage.PromptTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
