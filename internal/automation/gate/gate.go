// Package gate enforces per-plan limits on rules: active-rule quota and
// allowed trigger/action kinds. The gate runs synchronously at
// creation and update time; enforcement drift after a plan change is
// handled by suspension, never deletion.
package gate

import (
	"fmt"

	c "nimbus/internal/automation/config"
	"nimbus/internal/automation/models"
	dErrors "nimbus/pkg/domain-errors"
)

type Gate struct {
	config *c.Config
}

func New(config *c.Config) *Gate {
	return &Gate{config: config}
}

// Profile derives the capability profile for a plan. Pure function over
// plan state; delinquent billing degrades any tier to the free limits.
func (g *Gate) Profile(plan models.Plan) models.CapabilityProfile {
	tier := plan.Tier
	if !plan.BillingOK || !tier.IsValid() {
		tier = models.PlanFree
	}

	limits := g.config.Tiers[tier]
	profile := models.CapabilityProfile{
		MaxActiveRules:  limits.MaxActiveRules,
		AllowedTriggers: make(map[models.TriggerKind]bool, len(limits.AllowedTriggers)),
		AllowedActions:  make(map[models.ActionKind]bool, len(limits.AllowedActions)),
	}
	for _, kind := range limits.AllowedTriggers {
		profile.AllowedTriggers[kind] = true
	}
	for _, kind := range limits.AllowedActions {
		profile.AllowedActions[kind] = true
	}
	return profile
}

// CheckKinds rejects trigger/action kinds outside the profile. The
// error names the missing capability so the caller can surface an
// upgrade-actionable message.
func (g *Gate) CheckKinds(profile models.CapabilityProfile, trigger models.TriggerKind, action models.ActionKind) error {
	if !profile.AllowsTrigger(trigger) {
		return dErrors.Newf(dErrors.CodeCapability,
			"trigger kind %q is not available on your plan", trigger)
	}
	if !profile.AllowsAction(action) {
		return dErrors.Newf(dErrors.CodeCapability,
			"action kind %q is not available on your plan", action)
	}
	return nil
}

// CheckQuota rejects activating one more rule when the owner is at the
// plan's active-rule limit. The error names the limit.
func (g *Gate) CheckQuota(profile models.CapabilityProfile, activeCount int) error {
	if activeCount >= profile.MaxActiveRules {
		return dErrors.Wrap(
			fmt.Errorf("%d active rules", activeCount),
			dErrors.CodeQuotaExceeded,
			fmt.Sprintf("plan limit of %d active rules reached", profile.MaxActiveRules),
		)
	}
	return nil
}
