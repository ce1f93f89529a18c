package gateway

import (
	"errors"
	"math/rand"
	"sort"
	"sync/atomic"
)

// Strategy is the configured selection algorithm (spec §4.6).
type Strategy string

const (
	StrategyRoundRobin   Strategy = "round_robin"
	StrategyWeighted     Strategy = "weighted"
	StrategyLeastLatency Strategy = "least_latency"
	StrategyLeastCost    Strategy = "least_cost"
	StrategyUsageBased   Strategy = "usage_based"
	StrategyLeastBusy    Strategy = "least_busy"
	StrategyPriority     Strategy = "priority"
	StrategyABTest       Strategy = "ab_test"
)

var ErrNoCandidates = errors.New("strategy selector: no candidates")

// StrategySelector is C10: picks exactly one deployment from an already
// health/tag-filtered candidate list (spec §4.6); the dispatcher checks
// admission for the picked deployment afterwards. Weighted-random
// selection is grounded on llm/apikey_pool.go's SelectKey cumulative-weight
// algorithm; round-robin/priority/least-X comparisons are grounded on
// llm/router_multi_provider.go's selectByCostMulti/selectByHealthMulti/
// selectByQPSMulti filter-then-sort pattern.
type StrategySelector struct {
	strategy Strategy
	abSplit  float64

	rrCounter atomic.Uint64
	rng       func() float64 // injected for deterministic tests; default rand.Float64

	health  *HealthTracker
	usage   *UsageTracker
	pricing *PricingCatalog
}

func NewStrategySelector(strategy Strategy, abSplit float64, health *HealthTracker, usage *UsageTracker, pricing *PricingCatalog) *StrategySelector {
	return &StrategySelector{
		strategy: strategy,
		abSplit:  abSplit,
		rng:      rand.Float64,
		health:   health,
		usage:    usage,
		pricing:  pricing,
	}
}

// WithRNG overrides the random source, used by ABTest/Weighted tests that
// must pin the draw to assert determinism-given-seed (spec §4.6: "MUST be
// deterministic given identical inputs except where a random draw is
// specified").
func (s *StrategySelector) WithRNG(rng func() float64) *StrategySelector {
	s.rng = rng
	return s
}

// Select picks one deployment from candidates, which callers MUST present
// in stable registration order — every strategy's tie-break collapses to
// that order.
func (s *StrategySelector) Select(candidates []*Deployment) (*Deployment, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}

	switch s.strategy {
	case StrategyWeighted:
		return s.selectWeighted(candidates), nil
	case StrategyLeastLatency:
		return s.selectBy(candidates, func(d *Deployment) float64 {
			return float64(s.health.AvgLatencyUS(d.ID))
		}), nil
	case StrategyLeastCost:
		return s.selectBy(candidates, func(d *Deployment) float64 {
			c := s.pricing.CostPer1K(d.LogicalModel)
			if c < 0 {
				return 1e18
			}
			return c
		}), nil
	case StrategyUsageBased:
		return s.selectBy(candidates, func(d *Deployment) float64 {
			u := s.usage.Snapshot(d.ID)
			return usagePressure(u)
		}), nil
	case StrategyLeastBusy:
		return s.selectBy(candidates, func(d *Deployment) float64 {
			return float64(s.usage.Snapshot(d.ID).ActiveRequests)
		}), nil
	case StrategyPriority:
		return s.selectBy(candidates, func(d *Deployment) float64 {
			return -float64(d.Priority) // max priority == min negated
		}), nil
	case StrategyABTest:
		first, second := candidates[0], candidates[1%len(candidates)]
		if s.rng() < s.abSplit {
			return first, nil
		}
		return second, nil
	case StrategyRoundRobin:
		fallthrough
	default:
		return s.selectRoundRobin(candidates), nil
	}
}

func (s *StrategySelector) selectRoundRobin(candidates []*Deployment) *Deployment {
	n := uint64(len(candidates))
	idx := s.rrCounter.Add(1) - 1
	return candidates[idx%n]
}

func (s *StrategySelector) selectWeighted(candidates []*Deployment) *Deployment {
	var total uint64
	for _, d := range candidates {
		w := d.Weight
		if w == 0 {
			w = 1
		}
		total += uint64(w)
	}
	if total == 0 {
		return s.selectRoundRobin(candidates)
	}
	draw := uint64(s.rng() * float64(total))
	if draw >= total {
		draw = total - 1
	}
	var cumulative uint64
	for _, d := range candidates {
		w := d.Weight
		if w == 0 {
			w = 1
		}
		cumulative += uint64(w)
		if draw < cumulative {
			return d
		}
	}
	return s.selectRoundRobin(candidates) // tie-break: RoundRobin
}

// selectBy picks the candidate minimizing score. Among equal scores,
// LeastCost next compares average latency and UsageBased next compares
// active requests; any remaining tie goes to round robin, stable because
// sort.SliceStable preserves the caller's registration-order input on
// equal scores.
func (s *StrategySelector) selectBy(candidates []*Deployment, score func(*Deployment) float64) *Deployment {
	ordered := make([]*Deployment, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return score(ordered[i]) < score(ordered[j])
	})
	best := score(ordered[0])
	tied := ordered[:0:0]
	for _, d := range ordered {
		if score(d) == best {
			tied = append(tied, d)
		}
	}
	var next func(*Deployment) float64
	if s.strategy == StrategyLeastCost {
		next = func(d *Deployment) float64 { return float64(s.health.AvgLatencyUS(d.ID)) }
	} else if s.strategy == StrategyUsageBased {
		next = func(d *Deployment) float64 { return float64(s.usage.Snapshot(d.ID).ActiveRequests) }
	}
	if next != nil && len(tied) > 1 {
		sort.SliceStable(tied, func(i, j int) bool { return next(tied[i]) < next(tied[j]) })
		for i := range tied {
			if next(tied[i]) != next(tied[0]) {
				tied = tied[:i]
				break
			}
		}
	}
	if len(tied) == 1 {
		return tied[0]
	}
	return s.selectRoundRobin(tied)
}

func usagePressure(u DeploymentUsage) float64 {
	tpmP, rpmP := 0.0, 0.0
	if u.TPMLimit != nil && *u.TPMLimit > 0 {
		tpmP = float64(u.TPMCurrent) / float64(*u.TPMLimit)
	}
	if u.RPMLimit != nil && *u.RPMLimit > 0 {
		rpmP = float64(u.RPMCurrent) / float64(*u.RPMLimit)
	}
	if tpmP > rpmP {
		return tpmP
	}
	return rpmP
}
