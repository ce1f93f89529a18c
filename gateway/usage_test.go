package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

func TestUsageTracker_AdmitUnlimitedAlwaysAllows(t *testing.T) {
	clock := newFakeClock()
	tr := NewUsageTracker(clock)
	dep := NewDeployment("dep-1", "gpt-test", &stubAdapter{name: "p"}, nil)

	for i := 0; i < 5; i++ {
		d := tr.Admit("key-1", dep, 100)
		assert.Equal(t, Allow, d.Outcome)
	}
	assert.Equal(t, int64(5), tr.Snapshot("dep-1").ActiveRequests)
}

func TestUsageTracker_AdmitThrottlesOnRPMBurst(t *testing.T) {
	clock := newFakeClock()
	tr := NewUsageTracker(clock)
	dep := NewDeployment("dep-1", "gpt-test", &stubAdapter{name: "p"}, nil)
	dep.RPMLimit = int64Ptr(2)

	d1 := tr.Admit("", dep, 0)
	d2 := tr.Admit("", dep, 0)
	d3 := tr.Admit("", dep, 0)

	assert.Equal(t, Allow, d1.Outcome)
	assert.Equal(t, Allow, d2.Outcome)
	assert.Equal(t, Throttle, d3.Outcome)
	assert.GreaterOrEqual(t, d3.RetryAfterS, 1)
}

func TestUsageTracker_AdmitThrottlesWhenEstimateExceedsTPMBurst(t *testing.T) {
	clock := newFakeClock()
	tr := NewUsageTracker(clock)
	dep := NewDeployment("dep-1", "gpt-test", &stubAdapter{name: "p"}, nil)
	dep.TPMLimit = int64Ptr(100)

	d := tr.Admit("", dep, 150)
	assert.Equal(t, Throttle, d.Outcome)
}

func TestUsageTracker_AdmitRollsBackDeploymentOnDeploymentThrottleBeforeKeyCheck(t *testing.T) {
	clock := newFakeClock()
	tr := NewUsageTracker(clock)
	dep := NewDeployment("dep-1", "gpt-test", &stubAdapter{name: "p"}, nil)
	dep.RPMLimit = int64Ptr(1)

	// First admission consumes the deployment's sole RPM token.
	first := tr.Admit("key-1", dep, 0)
	require.Equal(t, Allow, first.Outcome)
	assert.Equal(t, int64(1), tr.Snapshot("dep-1").ActiveRequests)

	// Second is throttled at the deployment check, before the key cell is
	// ever touched -- active_requests must not have been incremented.
	second := tr.Admit("key-1", dep, 0)
	assert.Equal(t, Throttle, second.Outcome)
	assert.Equal(t, int64(1), tr.Snapshot("dep-1").ActiveRequests, "a throttled admit must not bump active_requests")
}

func TestUsageTracker_CompleteDecrementsActiveRequests(t *testing.T) {
	clock := newFakeClock()
	tr := NewUsageTracker(clock)
	dep := NewDeployment("dep-1", "gpt-test", &stubAdapter{name: "p"}, nil)

	tr.Admit("key-1", dep, 0)
	tr.Admit("key-1", dep, 0)
	assert.Equal(t, int64(2), tr.Snapshot("dep-1").ActiveRequests)

	tr.Complete("key-1", "dep-1", 42)
	assert.Equal(t, int64(1), tr.Snapshot("dep-1").ActiveRequests)

	tr.Complete("key-1", "dep-1", 42)
	assert.Equal(t, int64(0), tr.Snapshot("dep-1").ActiveRequests)

	// Completing beyond zero never goes negative (spec §3 invariant).
	tr.Complete("key-1", "dep-1", 0)
	assert.Equal(t, int64(0), tr.Snapshot("dep-1").ActiveRequests)
}

func TestUsageTracker_SnapshotReflectsConfiguredLimits(t *testing.T) {
	clock := newFakeClock()
	tr := NewUsageTracker(clock)
	dep := NewDeployment("dep-1", "gpt-test", &stubAdapter{name: "p"}, nil)
	dep.TPMLimit = int64Ptr(1000)
	dep.RPMLimit = int64Ptr(10)

	tr.Admit("", dep, 50)

	snap := tr.Snapshot("dep-1")
	require.NotNil(t, snap.TPMLimit)
	require.NotNil(t, snap.RPMLimit)
	assert.Equal(t, int64(1000), *snap.TPMLimit)
	assert.Equal(t, int64(10), *snap.RPMLimit)
}
