package gateway

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// CircuitState mirrors the teacher's circuitbreaker.State (Closed/Open/
// HalfOpen), grounded on llm/circuitbreaker/breaker.go.
type CircuitState int32

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "Closed"
	case CircuitOpen:
		return "Open"
	case CircuitHalfOpen:
		return "HalfOpen"
	default:
		return "Unknown"
	}
}

// Status is the parallel health rollup (spec §4.4).
type Status int32

const (
	StatusHealthy Status = iota
	StatusDegraded
	StatusUnhealthy
	StatusCooldown
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "Healthy"
	case StatusDegraded:
		return "Degraded"
	case StatusUnhealthy:
		return "Unhealthy"
	case StatusCooldown:
		return "Cooldown"
	default:
		return "Unknown"
	}
}

// minuteWindow is a 60-bucket rolling counter of successes/failures keyed
// by wall-clock second, grounded on llm/health_monitor.go's QPSCounter
// (bumpWindow/CAS bucket rotation), reused here for the HealthTracker's
// "success_rate over last minute" rollup rather than QPS.
type minuteWindow struct {
	lastSec    atomic.Int64
	successBkt [60]atomic.Int64
	failureBkt [60]atomic.Int64
	mu         sync.Mutex
}

func (w *minuteWindow) record(now time.Time, success bool) {
	w.advance(now)
	sec := now.Unix() % 60
	if success {
		w.successBkt[sec].Add(1)
	} else {
		w.failureBkt[sec].Add(1)
	}
}

func (w *minuteWindow) advance(now time.Time) {
	nowSec := now.Unix()
	last := w.lastSec.Load()
	if last == nowSec {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	last = w.lastSec.Load()
	if last == nowSec {
		return
	}
	if nowSec-last >= 60 || last == 0 {
		for i := range w.successBkt {
			w.successBkt[i].Store(0)
			w.failureBkt[i].Store(0)
		}
	} else {
		for s := last + 1; s <= nowSec; s++ {
			w.successBkt[s%60].Store(0)
			w.failureBkt[s%60].Store(0)
		}
	}
	w.lastSec.Store(nowSec)
}

func (w *minuteWindow) rateBP(now time.Time) (successRateBP int64, total int64) {
	w.advance(now)
	var succ, fail int64
	for i := range w.successBkt {
		succ += w.successBkt[i].Load()
		fail += w.failureBkt[i].Load()
	}
	total = succ + fail
	if total == 0 {
		return 10000, 0
	}
	return (succ * 10000) / total, total
}

// DeploymentHealth is the atomic-cell state for one deployment (spec §3).
// All hot fields are atomics; the circuit-state transition is the only
// compound update and takes the short mutex (spec §5).
type DeploymentHealth struct {
	consecutiveFailures atomic.Int64
	lastSuccessAt       atomic.Int64 // unix nanos
	lastFailureAt       atomic.Int64
	avgLatencyUS        atomic.Int64 // EMA, integer microseconds
	window              minuteWindow

	mu           sync.Mutex
	circuitState CircuitState
	cooldownUntil time.Time
	cooldownStepS int // current cooldown length, doubles on repeated HalfOpen failure
}

func newDeploymentHealth() *DeploymentHealth {
	return &DeploymentHealth{circuitState: CircuitClosed}
}

// HealthConfig parameterizes the circuit breaker thresholds (per-deployment
// CooldownOnFailureS feeds cooldownStepS's initial value).
type HealthConfig struct {
	FailureThreshold    int64
	DegradedFailureFloor int64
	MaxCooldownS        int
}

func DefaultHealthConfig() HealthConfig {
	return HealthConfig{FailureThreshold: 5, DegradedFailureFloor: 2, MaxCooldownS: 600}
}

// HealthTracker is C8: per-deployment success/failure + circuit state.
type HealthTracker struct {
	cfg    HealthConfig
	clock  Clock
	logger *zap.Logger

	mu    sync.RWMutex
	cells map[string]*DeploymentHealth
}

func NewHealthTracker(cfg HealthConfig, clock Clock, logger *zap.Logger) *HealthTracker {
	return &HealthTracker{cfg: cfg, clock: clock, logger: logger, cells: make(map[string]*DeploymentHealth)}
}

func (t *HealthTracker) cell(deploymentID string) *DeploymentHealth {
	t.mu.RLock()
	c, ok := t.cells[deploymentID]
	t.mu.RUnlock()
	if ok {
		return c
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok = t.cells[deploymentID]; ok {
		return c
	}
	c = newDeploymentHealth()
	t.cells[deploymentID] = c
	return c
}

// RecordSuccess updates latency EMA (α≈1/5) and resets the failure streak,
// transitioning HalfOpen→Closed (spec §4.4).
func (t *HealthTracker) RecordSuccess(deploymentID string, latency time.Duration, initialCooldownS int) {
	c := t.cell(deploymentID)
	now := t.clock.Now()
	c.consecutiveFailures.Store(0)
	c.lastSuccessAt.Store(now.UnixNano())
	c.window.record(now, true)
	t.updateEMA(c, latency)

	c.mu.Lock()
	if c.circuitState == CircuitHalfOpen {
		c.circuitState = CircuitClosed
		c.cooldownStepS = 0
		if t.logger != nil {
			t.logger.Info("circuit closed", zap.String("deployment", deploymentID))
		}
	}
	c.mu.Unlock()
}

func (t *HealthTracker) updateEMA(c *DeploymentHealth, latency time.Duration) {
	observed := latency.Microseconds()
	old := c.avgLatencyUS.Load()
	if old == 0 {
		c.avgLatencyUS.Store(observed)
		return
	}
	newVal := (observed + 4*old) / 5
	c.avgLatencyUS.Store(newVal)
}

// RecordFailure advances the consecutive-failure streak, applies the
// Closed→Open and HalfOpen→Open transitions, and doubles the cooldown on
// repeated HalfOpen failure up to HealthConfig.MaxCooldownS (spec §4.4).
func (t *HealthTracker) RecordFailure(deploymentID string, initialCooldownS int) {
	c := t.cell(deploymentID)
	now := t.clock.Now()
	n := c.consecutiveFailures.Add(1)
	c.lastFailureAt.Store(now.UnixNano())
	c.window.record(now, false)

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.circuitState {
	case CircuitClosed:
		if n >= t.cfg.FailureThreshold {
			c.cooldownStepS = initialCooldownS
			if c.cooldownStepS <= 0 {
				c.cooldownStepS = 1
			}
			c.circuitState = CircuitOpen
			c.cooldownUntil = now.Add(time.Duration(c.cooldownStepS) * time.Second)
			if t.logger != nil {
				t.logger.Warn("circuit opened", zap.String("deployment", deploymentID), zap.Int64("failures", n))
			}
		}
	case CircuitHalfOpen:
		c.cooldownStepS *= 2
		if t.cfg.MaxCooldownS > 0 && c.cooldownStepS > t.cfg.MaxCooldownS {
			c.cooldownStepS = t.cfg.MaxCooldownS
		}
		c.circuitState = CircuitOpen
		c.cooldownUntil = now.Add(time.Duration(c.cooldownStepS) * time.Second)
		if t.logger != nil {
			t.logger.Warn("circuit reopened after half-open failure", zap.String("deployment", deploymentID), zap.Int("cooldown_s", c.cooldownStepS))
		}
	case CircuitOpen:
		// Already open; nothing further to do.
	}
}

// maybeAdvanceToHalfOpen transitions Open→HalfOpen once cooldown_until has
// passed. Invariant (spec §3): circuit_state = Open ⇒ cooldown_until > now;
// this is the only place that invariant's boundary is crossed.
func (t *HealthTracker) maybeAdvanceToHalfOpen(c *DeploymentHealth, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.circuitState == CircuitOpen && !now.Before(c.cooldownUntil) {
		c.circuitState = CircuitHalfOpen
	}
}

// Rollup computes the spec §4.4 Status for a deployment.
func (t *HealthTracker) Rollup(deploymentID string) Status {
	c := t.cell(deploymentID)
	now := t.clock.Now()
	t.maybeAdvanceToHalfOpen(c, now)

	c.mu.Lock()
	state := c.circuitState
	c.mu.Unlock()

	if state == CircuitOpen || state == CircuitHalfOpen {
		return StatusCooldown
	}

	successBP, total := c.window.rateBP(now)
	failures := c.consecutiveFailures.Load()

	if failures >= t.cfg.FailureThreshold {
		return StatusUnhealthy
	}
	if total > 0 && successBP < 9500 {
		return StatusDegraded
	}
	if failures >= t.cfg.DegradedFailureFloor {
		return StatusDegraded
	}
	return StatusHealthy
}

// IsEligible reports whether a deployment may currently receive traffic:
// not Unhealthy and not Cooldown (spec §4.9 FILTER step).
func (t *HealthTracker) IsEligible(deploymentID string) bool {
	switch t.Rollup(deploymentID) {
	case StatusUnhealthy, StatusCooldown:
		return false
	default:
		return true
	}
}

// AvgLatencyUS returns the current EMA latency in microseconds, used by
// the LeastLatency strategy.
func (t *HealthTracker) AvgLatencyUS(deploymentID string) int64 {
	return t.cell(deploymentID).avgLatencyUS.Load()
}

// CircuitStateOf exposes the raw circuit state, e.g. for diagnostics/metrics.
func (t *HealthTracker) CircuitStateOf(deploymentID string) CircuitState {
	c := t.cell(deploymentID)
	t.maybeAdvanceToHalfOpen(c, t.clock.Now())
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.circuitState
}
