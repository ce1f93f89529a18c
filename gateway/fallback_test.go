package gateway

import (
	"testing"

	"github.com/BaSui01/agentflow/gwerr"
	"github.com/stretchr/testify/assert"
)

func TestFallbackController_HopCapDefaultsWhenNonPositive(t *testing.T) {
	assert.Equal(t, 3, NewFallbackController(FallbackConfig{}, 0).HopCap())
	assert.Equal(t, 3, NewFallbackController(FallbackConfig{}, -1).HopCap())
	assert.Equal(t, 5, NewFallbackController(FallbackConfig{}, 5).HopCap())
}

func TestFallbackController_PlanUsesClassSpecificListFirst(t *testing.T) {
	cfg := FallbackConfig{
		ContextWindow: map[string][]string{"gpt-small": {"gpt-large"}},
		General:       map[string][]string{"gpt-small": {"gpt-fallback"}},
	}
	f := NewFallbackController(cfg, 3)

	plan := f.Plan("gpt-small", gwerr.ClassContextWindow)
	assert.Equal(t, []string{"gpt-large"}, plan)
}

func TestFallbackController_PlanFallsBackToGeneralList(t *testing.T) {
	cfg := FallbackConfig{
		General: map[string][]string{"gpt-small": {"gpt-fallback"}},
	}
	f := NewFallbackController(cfg, 3)

	// No rate_limit-specific entry for gpt-small, so Plan falls through to
	// the General list for the same model.
	plan := f.Plan("gpt-small", gwerr.ClassRateLimit)
	assert.Equal(t, []string{"gpt-fallback"}, plan)
}

func TestFallbackController_PlanGeneralClassDoesNotDoubleFallThrough(t *testing.T) {
	cfg := FallbackConfig{
		General: map[string][]string{"gpt-small": {"gpt-fallback"}},
	}
	f := NewFallbackController(cfg, 3)

	plan := f.Plan("gpt-small", gwerr.ClassGeneral)
	assert.Equal(t, []string{"gpt-fallback"}, plan)
}

func TestFallbackController_PlanNoMatchReturnsNil(t *testing.T) {
	f := NewFallbackController(FallbackConfig{}, 3)
	assert.Nil(t, f.Plan("gpt-small", gwerr.ClassGeneral))
	assert.Nil(t, f.Plan("unknown-model", gwerr.ClassRateLimit))
}

func TestFallbackController_PlanEmptyClassPropagates(t *testing.T) {
	cfg := FallbackConfig{General: map[string][]string{"gpt-small": {"gpt-fallback"}}}
	f := NewFallbackController(cfg, 3)
	assert.Nil(t, f.Plan("gpt-small", ""))
}

func TestFallbackController_ClassifyDelegatesToGwerr(t *testing.T) {
	f := NewFallbackController(FallbackConfig{}, 3)
	class, ok := f.Classify(gwerr.New(gwerr.KindRateLimit, "p", ""))
	assert.True(t, ok)
	assert.Equal(t, gwerr.ClassRateLimit, class)

	class, ok = f.Classify(gwerr.New(gwerr.KindInvalidRequest, "p", ""))
	assert.False(t, ok)
	assert.Equal(t, gwerr.FallbackClass(""), class)
}
