package gateway

import (
	"time"

	"github.com/BaSui01/agentflow/gateway/streambridge"
	"github.com/BaSui01/agentflow/types"
)

// RequestKind is the discriminant of GatewayRequest.kind (spec §3).
type RequestKind string

const (
	KindChat       RequestKind = "chat"
	KindCompletion RequestKind = "completion"
	KindEmbedding  RequestKind = "embedding"
	KindImage      RequestKind = "image"
	KindAudio      RequestKind = "audio"
	KindModeration RequestKind = "moderation"
	KindRerank     RequestKind = "rerank"
)

// RoutingPrefs narrows deployment selection by tag/group (spec §4.3).
type RoutingPrefs struct {
	Tags  []string
	Group string
}

// CachingPrefs controls whether/how this request may be served from or
// written to the prompt cache. The cache itself is an adjacent, non-core
// collaborator (spec §1 Purpose mentions caching only in passing); this
// struct is the narrow surface the core threads through to it.
type CachingPrefs struct {
	Disabled bool
}

// GatewayRequest is the normalized inbound request (spec §3).
type GatewayRequest struct {
	RequestID    string
	Kind         RequestKind
	Model        string
	APIKey       string
	Streaming    bool
	RoutingPrefs RoutingPrefs
	CachingPrefs CachingPrefs
	Deadline     time.Time

	// Payload is kind-specific; Chat/Completion populate Chat, others
	// populate the corresponding field. Exactly one is non-nil.
	Chat       *ChatPayload
	Embedding  *EmbeddingPayload
	Image      *ImagePayload
	Audio      *AudioPayload
	Moderation *ModerationPayload
	Rerank     *RerankPayload
}

// Validate enforces the spec §3 invariant: streaming ⇒ kind ∈ {Chat, Completion}.
func (r *GatewayRequest) Validate() error {
	if r.Streaming && r.Kind != KindChat && r.Kind != KindCompletion {
		return errStreamingKindInvalid
	}
	return nil
}

var errStreamingKindInvalid = &kindError{"streaming is only valid for chat/completion requests"}

type kindError struct{ msg string }

func (e *kindError) Error() string { return e.msg }

// ChatPayload carries a chat/completion request body.
type ChatPayload struct {
	Messages    []types.Message
	MaxTokens   int
	Temperature float64
	TopP        float64
	Stop        []string
	Tools       []types.ToolSchema
	ToolChoice  string
	Metadata    map[string]any
	Extra       map[string]any // vendor passthrough params, pre-filtering
}

type EmbeddingPayload struct {
	Input []string
}

type ImagePayload struct {
	Prompt string
	N      int
	Size   string
}

type AudioPayload struct {
	Operation string // transcriptions | translations | speech
	Audio     []byte
	Text      string
}

type ModerationPayload struct {
	Input string
}

type RerankPayload struct {
	Query     string
	Documents []string
}

// ChatChunk is the normalized stream element (spec §3). The concrete type
// lives in gateway/streambridge (C12), which has no dependency on the
// gateway package itself; gateway aliases it so callers only ever import
// one name for it.
type ChatChunk = streambridge.Chunk
type ChatChunkChoice = streambridge.ChoiceDelta
type ChunkDelta = streambridge.Delta

// GatewayResponse is the normalized non-streaming response.
type GatewayResponse struct {
	ID         string
	Provider   string
	Deployment string
	Model      string
	Choices    []ChatChunkChoice
	Embeddings [][]float64 // set for KindEmbedding responses; Choices unused
	Usage      types.TokenUsage
	Estimated  bool // true when Usage was derived from the tokenizer, not
	               // provider-supplied (spec §9 Open Question)
	Cost       float64
	CreatedAt  time.Time
}
