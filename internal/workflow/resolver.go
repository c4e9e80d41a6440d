package workflow

import (
	"fmt"

	"github.com/nimbusbank/approval-engine/internal/models"
)

// ResolvePlan computes the effective stage plan for a request: the
// definition's template stages with the matching amount rule's overrides
// applied. Pure function over an already-loaded definition; resolving the
// same (definition, amount, currency) always yields the same plan.
//
// For amount-based definitions a request must never be created with an
// undefined approval bar: no matching rule is ErrNoApplicableRule and two
// matching rules at the same priority are ErrAmbiguousRule, never a
// silently-chosen default.
func ResolvePlan(def *models.WorkflowDefinition, amount int64, currency string) ([]models.PlannedStage, error) {
	plan := make([]models.PlannedStage, 0, len(def.Stages))
	for _, stage := range def.Stages {
		plan = append(plan, models.PlannedStage{
			StageOrder:        stage.StageOrder,
			StageKey:          stage.StageKey,
			ApproverGroup:     stage.ApproverGroup,
			RequiredApprovals: stage.RequiredApprovals,
			SLAHours:          stage.SLAHours,
		})
	}

	if !def.AmountBased {
		return plan, nil
	}

	rule, err := selectRule(def, amount, currency)
	if err != nil {
		return nil, err
	}

	for _, override := range rule.Overrides {
		for i := range plan {
			if plan[i].StageOrder != override.StageOrder {
				continue
			}
			if override.RequiredApprovals != nil {
				plan[i].RequiredApprovals = *override.RequiredApprovals
			}
			if override.ApproverGroup != nil {
				plan[i].ApproverGroup = *override.ApproverGroup
			}
		}
	}

	return plan, nil
}

// selectRule picks the single matching rule with the lowest priority value
func selectRule(def *models.WorkflowDefinition, amount int64, currency string) (*models.AmountRule, error) {
	var best *models.AmountRule
	tied := false

	for i := range def.AmountRules {
		rule := &def.AmountRules[i]
		if !rule.Matches(amount, currency) {
			continue
		}
		switch {
		case best == nil || rule.Priority < best.Priority:
			best = rule
			tied = false
		case rule.Priority == best.Priority:
			tied = true
		}
	}

	if best == nil {
		return nil, fmt.Errorf("%w: definition %q amount %d %s",
			ErrNoApplicableRule, def.Name, amount, currency)
	}
	if tied {
		return nil, fmt.Errorf("%w: definition %q priority %d amount %d %s",
			ErrAmbiguousRule, def.Name, best.Priority, amount, currency)
	}
	return best, nil
}
