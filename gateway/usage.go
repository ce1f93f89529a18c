package gateway

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// AdmissionOutcome is the result of UsageTracker.Admit (spec §4.5).
type AdmissionOutcome int

const (
	Allow AdmissionOutcome = iota
	Throttle
	Reject
)

// AdmissionDecision is returned by Admit.
type AdmissionDecision struct {
	Outcome      AdmissionOutcome
	RetryAfterS  int
	RejectReason string
}

// usageCell holds the admission state for one key or one deployment
// (spec §3 DeploymentUsage). TPM/RPM admission is backed by
// golang.org/x/time/rate token buckets — the same limiter the teacher
// uses for its per-IP/per-tenant HTTP rate limiting
// (cmd/agentflow/middleware.go's RateLimiter/TenantRateLimiter) —
// configured with burst equal to the per-minute cap and a refill rate of
// limit/60s, so the bucket fully replenishes every minute like a TPM/RPM
// cap without hand-rolling fixed-window reset bookkeeping.
// active_requests has no token-bucket equivalent (it's concurrency, not
// a rate) and stays a mutex-guarded int64 (spec §4.5: "Allow MUST
// increment active_requests and rpm in the same atomic section as the
// check to avoid admit-races").
type usageCell struct {
	mu         sync.Mutex
	active     int64
	rpmLimiter *rate.Limiter
	tpmLimiter *rate.Limiter
	rpmLimit   *int64
	tpmLimit   *int64
}

func newRateLimiter(perMinute *int64) *rate.Limiter {
	if perMinute == nil || *perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(float64(*perMinute)/60.0), int(*perMinute))
}

// reserve attempts to admit n units against lim at now without partially
// mutating state on a non-allow result: a reservation that would require
// waiting is canceled before returning, so a rejected check always rolls
// back cleanly (spec §4.5's no-partial-admission invariant). lim == nil
// means unlimited.
func reserve(lim *rate.Limiter, now time.Time, n int) (bool, time.Duration) {
	if lim == nil {
		return true, 0
	}
	r := lim.ReserveN(now, n)
	if !r.OK() {
		return false, 0
	}
	if d := r.DelayFrom(now); d > 0 {
		r.Cancel()
		return false, d
	}
	return true, 0
}

// checkAndIncrement is the compound admit step for a single cell. It
// returns Allow (and has already incremented active_requests) or the
// Throttle reason, never partially mutating state on a non-Allow result.
func (c *usageCell) checkAndIncrement(now time.Time, estimatedTokens int64) AdmissionDecision {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active < 0 {
		c.active = 0 // defensive: invariant active_requests ≥ 0 (spec §3)
	}

	if ok, delay := reserve(c.rpmLimiter, now, 1); !ok {
		return AdmissionDecision{Outcome: Throttle, RetryAfterS: secondsFromDelay(delay)}
	}
	if ok, delay := reserve(c.tpmLimiter, now, int(estimatedTokens)); !ok {
		return AdmissionDecision{Outcome: Throttle, RetryAfterS: secondsFromDelay(delay)}
	}

	c.active++
	return AdmissionDecision{Outcome: Allow}
}

func secondsFromDelay(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	s := int(d.Seconds())
	if s < 1 {
		s = 1
	}
	return s
}

func (c *usageCell) complete(tokensUsed int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active--
	if c.active < 0 {
		c.active = 0
	}
}

func (c *usageCell) snapshot(now time.Time) DeploymentUsage {
	c.mu.Lock()
	defer c.mu.Unlock()
	u := DeploymentUsage{
		ActiveRequests: c.active,
		TPMLimit:       c.tpmLimit,
		RPMLimit:       c.rpmLimit,
	}
	if c.rpmLimiter != nil && c.rpmLimit != nil {
		u.RPMCurrent = *c.rpmLimit - int64(c.rpmLimiter.TokensAt(now))
	}
	if c.tpmLimiter != nil && c.tpmLimit != nil {
		u.TPMCurrent = *c.tpmLimit - int64(c.tpmLimiter.TokensAt(now))
	}
	return u
}

// DeploymentUsage is the read-only view of a usage cell (spec §3).
type DeploymentUsage struct {
	TPMCurrent     int64
	RPMCurrent     int64
	ActiveRequests int64
	TPMLimit       *int64
	RPMLimit       *int64
	MinuteResetAt  time.Time
}

// UsageTracker is C9: per-deployment and per-key TPM/RPM/active tracking.
type UsageTracker struct {
	clock Clock

	mu    sync.RWMutex
	byDep map[string]*usageCell
	byKey map[string]*usageCell
}

func NewUsageTracker(clock Clock) *UsageTracker {
	return &UsageTracker{
		clock: clock,
		byDep: make(map[string]*usageCell),
		byKey: make(map[string]*usageCell),
	}
}

func (t *UsageTracker) cellFor(m map[string]*usageCell, mu *sync.RWMutex, id string, tpmLimit, rpmLimit *int64) *usageCell {
	mu.RLock()
	c, ok := m[id]
	mu.RUnlock()
	if ok {
		return c
	}
	mu.Lock()
	defer mu.Unlock()
	if c, ok = m[id]; ok {
		return c
	}
	c = &usageCell{
		tpmLimit:   tpmLimit,
		rpmLimit:   rpmLimit,
		tpmLimiter: newRateLimiter(tpmLimit),
		rpmLimiter: newRateLimiter(rpmLimit),
	}
	m[id] = c
	return c
}

// RegisterDeploymentLimits seeds a deployment's cell with its configured
// tpm/rpm limits ahead of the first Admit; it has no effect on a cell that
// already exists. Admit seeds the cell the same way on first admission.
func (t *UsageTracker) RegisterDeploymentLimits(deploymentID string, tpmLimit, rpmLimit *int64) {
	t.cellFor(t.byDep, &t.mu, deploymentID, tpmLimit, rpmLimit)
}

// Admit implements spec §4.5's admit(key, deployment). estimatedTokens
// gates the tpm check; callers that cannot estimate pass 0. The
// deployment's cell is lazily seeded with dep's configured TPM/RPM limits
// on first admission (cellFor only applies tpmLimit/rpmLimit when it
// creates the cell, so later calls for the same deployment ID are safe to
// pass the same values repeatedly).
func (t *UsageTracker) Admit(key string, dep *Deployment, estimatedTokens int64) AdmissionDecision {
	now := t.clock.Now()

	depCell := t.cellFor(t.byDep, &t.mu, dep.ID, dep.TPMLimit, dep.RPMLimit)
	depDecision := depCell.checkAndIncrement(now, estimatedTokens)
	if depDecision.Outcome != Allow {
		return depDecision
	}

	if key == "" {
		return depDecision
	}

	keyCell := t.cellFor(t.byKey, &t.mu, key, nil, nil)
	keyDecision := keyCell.checkAndIncrement(now, estimatedTokens)
	if keyDecision.Outcome != Allow {
		// Roll back the deployment-side increment: no partial admission.
		depCell.complete(0)
		return keyDecision
	}

	return AdmissionDecision{Outcome: Allow}
}

// Complete implements spec §4.5's complete(key, deployment, tokens_used, cost).
// cost is recorded by the caller's pricing ledger; UsageTracker only tracks
// the active-request counter here — tpm/rpm consumption was already
// reserved against the token bucket at Admit time.
func (t *UsageTracker) Complete(key, deploymentID string, tokensUsed int64) {
	t.cellFor(t.byDep, &t.mu, deploymentID, nil, nil).complete(tokensUsed)
	if key != "" {
		t.cellFor(t.byKey, &t.mu, key, nil, nil).complete(tokensUsed)
	}
}

// Snapshot returns the current DeploymentUsage for a deployment, e.g. for
// the UsageBased strategy. A deployment with no cell yet reads as zero
// usage with no limits; Snapshot does not create the cell, so a later
// Admit still seeds it with the deployment's configured limits.
func (t *UsageTracker) Snapshot(deploymentID string) DeploymentUsage {
	t.mu.RLock()
	c, ok := t.byDep[deploymentID]
	t.mu.RUnlock()
	if !ok {
		return DeploymentUsage{}
	}
	return c.snapshot(t.clock.Now())
}
