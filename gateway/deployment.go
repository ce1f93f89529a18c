package gateway

import (
	"context"
	"time"

	"github.com/BaSui01/agentflow/gateway/streambridge"
)

// Capability is a bitset of operations a ProviderAdapter advertises,
// supplemented from the original source's provider capability registry
// (litellm-rs `src/core/providers/capabilities.rs`) — spec §4.2 calls for
// "a registry lookup by capability" without naming a concrete
// representation; a bitset is the idiomatic Go analogue of the Rust
// bitflags type there.
type Capability uint16

const (
	CapChat Capability = 1 << iota
	CapChatStream
	CapEmbed
	CapImageGen
	CapAudioTranscribe
	CapAudioTranslate
	CapAudioSpeech
	CapModerate
	CapRerank
)

func (c Capability) Has(want Capability) bool { return c&want == want }

// ProviderAdapter is the unified operation set (spec §4.2). Deployments
// carry an opaque reference to one so the strategy layer never sees
// provider internals (spec §4.3).
type ProviderAdapter interface {
	Name() string
	Capabilities() Capability

	Chat(ctx context.Context, req *GatewayRequest) (*GatewayResponse, error)
	ChatStream(ctx context.Context, req *GatewayRequest) (<-chan StreamEvent, error)
	Embed(ctx context.Context, req *GatewayRequest) (*GatewayResponse, error)
	ImageGen(ctx context.Context, req *GatewayRequest) (*GatewayResponse, error)
	Audio(ctx context.Context, req *GatewayRequest) (*GatewayResponse, error)
	Moderate(ctx context.Context, req *GatewayRequest) (*GatewayResponse, error)
	Rerank(ctx context.Context, req *GatewayRequest) (*GatewayResponse, error)

	HealthCheck(ctx context.Context) error
	ListModels(ctx context.Context) ([]ModelInfo, error)
	CalculateCost(usage GatewayResponse) float64
}

// StreamEvent is one element of a ChatChunkStream plus its terminal error,
// mirroring the teacher's llm.StreamChunk{Err} shape.
type StreamEvent = streambridge.Event

// ModelInfo is a provider-declared model entry (spec §4.2 ListModels),
// supplemented with context-length/modality metadata per
// original_source's azure_ai/models.rs (see SPEC_FULL.md §3).
type ModelInfo struct {
	ID            string
	MaxContext    int
	Modalities    []string
}

// Deployment is the unit of dispatch (spec §3).
type Deployment struct {
	ID               string
	LogicalModel     string
	Adapter          ProviderAdapter
	Tags             map[string]struct{}
	Group            string
	Weight           uint32
	Priority         uint32
	TPMLimit         *int64
	RPMLimit         *int64
	CooldownOnFailureS int
	MaxRetries       int

	registeredAt time.Time // registration order, used as a stable tie-break
}

func (d *Deployment) HasTag(tag string) bool {
	_, ok := d.Tags[tag]
	return ok
}

// NewDeployment constructs a Deployment with its tag set built from a
// slice, matching how config.yaml declares tags as a list (spec §6.3).
func NewDeployment(id, logicalModel string, adapter ProviderAdapter, tags []string) *Deployment {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	return &Deployment{
		ID:           id,
		LogicalModel: logicalModel,
		Adapter:      adapter,
		Tags:         set,
		Weight:       1,
		MaxRetries:   2,
	}
}
