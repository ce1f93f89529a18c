package handlers

import (
	"context"
	"fmt"

	"github.com/BaSui01/agentflow/gateway"
)

// DeploymentHealthCheck plugs a gateway.HealthTracker into HealthHandler's
// generic HealthCheck registry (spec §6.2 /health reflecting router state),
// rather than adding a bespoke gateway-only endpoint.
type DeploymentHealthCheck struct {
	registry *gateway.DeploymentRegistry
	health   *gateway.HealthTracker
}

// NewDeploymentHealthCheck builds a HealthCheck that fails when every
// deployment for at least one logical model is ineligible.
func NewDeploymentHealthCheck(registry *gateway.DeploymentRegistry, health *gateway.HealthTracker) *DeploymentHealthCheck {
	return &DeploymentHealthCheck{registry: registry, health: health}
}

func (c *DeploymentHealthCheck) Name() string { return "gateway_deployments" }

func (c *DeploymentHealthCheck) Check(ctx context.Context) error {
	ids := c.registry.AllDeploymentIDs()
	if len(ids) == 0 {
		return fmt.Errorf("no deployments registered")
	}
	unhealthy := 0
	for _, id := range ids {
		if !c.health.IsEligible(id) {
			unhealthy++
		}
	}
	if unhealthy == len(ids) {
		return fmt.Errorf("all %d deployments unhealthy", len(ids))
	}
	return nil
}
