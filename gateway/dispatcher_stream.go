package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/BaSui01/agentflow/gwerr"
	"github.com/BaSui01/agentflow/types"
	"go.uber.org/zap"
)

// DispatchStream runs ACCEPT→ISSUE for a streaming request and returns a
// consumer channel wrapped with accounting hooks (spec §4.9 ISSUE step:
// "Ok(stream) → wrap with accounting hooks (§4.8), return"). Fallback is
// only attempted pre-first-byte (spec §4.7); once any chunk has reached
// the caller, a mid-stream error surfaces as a terminal chunk with
// finish_reason="error" and no silent substitution.
func (d *Dispatcher) DispatchStream(ctx context.Context, req *GatewayRequest) (<-chan StreamEvent, error) {
	originalModel := req.Model
	excluded := make(map[string]struct{})
	hop := 0

	for {
		eligible, rerr := d.resolveEligible(req, excluded)
		if rerr != nil {
			return nil, rerr
		}

		dep, _, admErr := d.admitOne(eligible, req)
		if admErr != nil {
			return nil, admErr
		}
		if dep == nil {
			return nil, gwerr.New(gwerr.KindServiceUnavailable, "", "admission rejected")
		}

		guard := &admitGuard{tracker: d.usage, key: req.APIKey, depID: dep.ID}
		start := d.clock.Now()

		upstream, err := dep.Adapter.ChatStream(ctx, req)
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

		out := make(chan StreamEvent, 8)
		go d.pumpStream(dep, req, guard, start, upstream, out)
		return out, nil
	}
}

// pumpStream relays upstream events and performs the terminal accounting
// (health + usage completion). There is no retry path here: once the
// stream has started relaying, a mid-stream error is surfaced verbatim,
// never silently substituted with a fallback model (spec §4.7).
func (d *Dispatcher) pumpStream(dep *Deployment, req *GatewayRequest, guard *admitGuard, start time.Time, upstream <-chan StreamEvent, out chan<- StreamEvent) {
	defer close(out)

	var totalTokens int64
	var completionText strings.Builder
	sawTerminal := false

	for ev := range upstream {
		if ev.Err != nil {
			d.health.RecordFailure(dep.ID, dep.CooldownOnFailureS)
			guard.release(totalTokens)
			out <- ev
			return
		}

		if ev.Chunk.Usage != nil {
			totalTokens = int64(ev.Chunk.Usage.TotalTokens)
		}
		for _, c := range ev.Chunk.Choices {
			completionText.WriteString(c.Delta.Content)
		}
		if ev.Chunk.IsTerminal() {
			sawTerminal = true
		}
		out <- ev
		if sawTerminal {
			break
		}
	}

	if !sawTerminal {
		// The upstream closed without a terminal chunk: this is a
		// mid-stream failure, not a success (a closed circuit should not
		// stay closed on a deployment that drops connections). Only
		// report finish_reason="length" when the completion plausibly
		// exhausted the requested token budget; everything else is
		// "error" (spec §4.8).
		d.health.RecordFailure(dep.ID, dep.CooldownOnFailureS)
		guard.release(totalTokens)

		reason := "error"
		if budgetExhausted(req, d.estimator, totalTokens, completionText.String()) {
			reason = "length"
		}
		out <- StreamEvent{Chunk: &ChatChunk{Choices: []ChatChunkChoice{{FinishReason: reason}}}}
		return
	}

	d.health.RecordSuccess(dep.ID, d.clock.Now().Sub(start), dep.CooldownOnFailureS)
	guard.release(totalTokens)

	cost := d.pricing.Price(dep.LogicalModel, types.TokenUsage{TotalTokens: int(totalTokens)})
	if d.logger != nil {
		d.logger.Debug("stream completed",
			zap.String("deployment", dep.ID),
			zap.Int64("tokens", totalTokens),
			zap.Float64("cost", cost),
		)
	}
}

// budgetExhausted estimates whether the completion emitted so far reached
// the request's max_tokens, using provider-supplied usage when available
// and falling back to the dispatcher's token estimator (or a char/4
// heuristic when no estimator is configured) over the accumulated content.
func budgetExhausted(req *GatewayRequest, estimator TokenEstimator, totalTokens int64, completionText string) bool {
	if req == nil || req.Chat == nil || req.Chat.MaxTokens <= 0 {
		return false
	}
	completionTokens := totalTokens
	if completionTokens == 0 {
		if estimator != nil {
			completionTokens = int64(estimator.EstimateTokens(completionText))
		} else {
			completionTokens = int64(len(completionText)) / 4
		}
	}
	return completionTokens >= int64(req.Chat.MaxTokens)
}
