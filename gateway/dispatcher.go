package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/agentflow/gwerr"
	"go.uber.org/zap"
)

// TokenEstimator is the fallback token counter used when a terminal chunk
// carries no provider-supplied usage (spec §9 Open Question: "prefer
// provider-supplied usage when present on the terminal chunk, else
// estimate via tokenizer, and mark the usage record as estimated=true").
type TokenEstimator interface {
	EstimateTokens(text string) int
}

// Dispatcher is C13: the top-level per-request state machine.
type Dispatcher struct {
	registry   *DeploymentRegistry
	health     *HealthTracker
	usage      *UsageTracker
	strategy   *StrategySelector
	fallback   *FallbackController
	pricing    *PricingCatalog
	clock      Clock
	estimator  TokenEstimator
	logger     *zap.Logger

	streamIdleTimeout time.Duration
}

type DispatcherConfig struct {
	StreamIdleTimeout time.Duration
}

func NewDispatcher(
	registry *DeploymentRegistry,
	health *HealthTracker,
	usage *UsageTracker,
	strategy *StrategySelector,
	fallback *FallbackController,
	pricing *PricingCatalog,
	clock Clock,
	estimator TokenEstimator,
	logger *zap.Logger,
	cfg DispatcherConfig,
) *Dispatcher {
	if cfg.StreamIdleTimeout <= 0 {
		cfg.StreamIdleTimeout = 30 * time.Second
	}
	return &Dispatcher{
		registry: registry, health: health, usage: usage, strategy: strategy,
		fallback: fallback, pricing: pricing, clock: clock, estimator: estimator,
		logger: logger, streamIdleTimeout: cfg.StreamIdleTimeout,
	}
}

// admitGuard enforces spec §4.9's invariant: "every admit() that returns
// Allow has a matching complete() in all terminal paths, including error
// and cancellation." release() is safe to call multiple times; only the
// first call fires.
type admitGuard struct {
	once       sync.Once
	tracker    *UsageTracker
	key, depID string
}

func (g *admitGuard) release(tokensUsed int64) {
	g.once.Do(func() {
		g.tracker.Complete(g.key, g.depID, tokensUsed)
	})
}

// resolveEligible implements RESOLVE+FILTER: registry lookup narrowed by
// health, excluding any deployment id in excl. Admission is checked
// afterwards, per candidate, by admitOne.
func (d *Dispatcher) resolveEligible(req *GatewayRequest, excl map[string]struct{}) ([]*Deployment, *gwerr.Error) {
	all := d.registry.Lookup(req.Model, req.RoutingPrefs)
	if len(all) == 0 {
		return nil, gwerr.New(gwerr.KindModelNotFound, "", "no deployment registered for model "+req.Model)
	}

	eligible := make([]*Deployment, 0, len(all))
	for _, dep := range all {
		if _, skip := excl[dep.ID]; skip {
			continue
		}
		if !d.health.IsEligible(dep.ID) {
			continue
		}
		eligible = append(eligible, dep)
	}
	if len(eligible) == 0 {
		return nil, gwerr.New(gwerr.KindServiceUnavailable, "", "no healthy deployment available for model "+req.Model)
	}
	return eligible, nil
}

// Dispatch runs the full ACCEPT→EMIT state machine for a non-streaming
// request (spec §4.9).
func (d *Dispatcher) Dispatch(ctx context.Context, req *GatewayRequest) (*GatewayResponse, error) {
	originalModel := req.Model
	excluded := make(map[string]struct{})
	hop := 0

	for {
		eligible, rerr := d.resolveEligible(req, excluded)
		if rerr != nil {
			return nil, rerr
		}

		// FILTER by admission: try candidates in strategy order until one
		// admits, since admit() may reject/throttle a specific deployment
		// without that deployment being unhealthy.
		dep, admDecision, admErr := d.admitOne(eligible, req)
		if admErr != nil {
			return nil, admErr
		}
		if dep == nil {
			return nil, admissionError(admDecision)
		}

		guard := &admitGuard{tracker: d.usage, key: req.APIKey, depID: dep.ID}
		start := d.clock.Now()

		resp, err := dep.Adapter.Chat(ctx, req)
		if err != nil {
			guard.release(0)
			d.health.RecordFailure(dep.ID, dep.CooldownOnFailureS)

			perr := asProviderError(err, dep)
			class, retryable := d.fallback.Classify(perr)
			if !retryable || hop >= d.fallback.HopCap() {
				return nil, perr
			}

			candidates := d.fallback.Plan(originalModel, class)
			if len(candidates) == 0 {
				return nil, perr
			}

			next := candidates[0]
			for _, c := range candidates {
				if c != req.Model {
					next = c
					break
				}
			}
			req.Model = next
			excluded[dep.ID] = struct{}{}
			hop++
			continue
		}

		latency := d.clock.Now().Sub(start)
		d.health.RecordSuccess(dep.ID, latency, dep.CooldownOnFailureS)

		usage := resp.Usage
		if usage.TotalTokens == 0 && d.estimator != nil {
			resp.Estimated = true
			usage.TotalTokens = d.estimator.EstimateTokens(flattenChat(req))
			resp.Usage = usage
		}
		resp.Cost = d.pricing.Price(dep.LogicalModel, usage)
		resp.Model = originalModel
		resp.Provider = dep.Adapter.Name()
		resp.Deployment = dep.ID

		guard.release(int64(usage.TotalTokens))
		return resp, nil
	}
}

// admitOne tries Admit against each eligible deployment in strategy order
// until one Allows, surfacing the first Throttle/Reject only if none admit.
func (d *Dispatcher) admitOne(eligible []*Deployment, req *GatewayRequest) (*Deployment, AdmissionDecision, error) {
	remaining := make([]*Deployment, len(eligible))
	copy(remaining, eligible)

	var lastDecision AdmissionDecision
	for len(remaining) > 0 {
		dep, err := d.strategy.Select(remaining)
		if err != nil {
			return nil, AdmissionDecision{}, gwerr.New(gwerr.KindServiceUnavailable, "", "no candidate available")
		}
		decision := d.usage.Admit(req.APIKey, dep, estimatedInputTokens(req))
		if decision.Outcome == Allow {
			return dep, decision, nil
		}
		lastDecision = decision
		remaining = removeDeployment(remaining, dep.ID)
	}
	return nil, lastDecision, nil
}

func admissionError(d AdmissionDecision) error {
	switch d.Outcome {
	case Throttle:
		return &gwerr.Error{Kind: gwerr.KindRateLimit, Message: "admission throttled", RetryAfter: time.Duration(d.RetryAfterS) * time.Second}
	default:
		return gwerr.New(gwerr.KindServiceUnavailable, "", "admission rejected: "+d.RejectReason)
	}
}

func estimatedInputTokens(req *GatewayRequest) int64 {
	if req.Chat == nil {
		return 0
	}
	var n int64
	for _, m := range req.Chat.Messages {
		n += int64(len(m.Content)) / 4
	}
	return n
}

func flattenChat(req *GatewayRequest) string {
	if req.Chat == nil {
		return ""
	}
	var sb []byte
	for _, m := range req.Chat.Messages {
		sb = append(sb, m.Content...)
	}
	return string(sb)
}

func asProviderError(err error, dep *Deployment) *gwerr.Error {
	if pe, ok := gwerr.As(err); ok {
		if pe.Provider == "" {
			pe.Provider = dep.Adapter.Name()
		}
		return pe
	}
	return gwerr.New(gwerr.KindInternal, dep.Adapter.Name(), err.Error()).WithCause(err)
}
