package models

import "time"

// WorkflowDefinition is an immutable, versioned approval workflow template.
// Once published, a definition is never mutated; superseding configuration
// is published as a new version under the same name.
type WorkflowDefinition struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Version     int             `json:"version"`
	AmountBased bool            `json:"amount_based"`
	Stages      []StageTemplate `json:"stages"`
	AmountRules []AmountRule    `json:"amount_rules,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// StageTemplate describes one stage of a definition with its default quorum
type StageTemplate struct {
	ID                int64  `json:"id"`
	DefinitionID      int64  `json:"definition_id"`
	StageOrder        int    `json:"stage_order"` // 1-based, unique per definition
	StageKey          string `json:"stage_key"`
	ApproverGroup     string `json:"approver_group"`
	RequiredApprovals int    `json:"required_approvals"`
	SLAHours          int    `json:"sla_hours"`
}

// AmountRule selects a stage plan variant for a monetary range.
// Amounts are minor units (cents); MaxAmount nil means unbounded above.
// Lower priority values take precedence; equal-priority overlaps for the
// same currency are rejected at publish time.
type AmountRule struct {
	ID           int64           `json:"id"`
	DefinitionID int64           `json:"definition_id"`
	Currency     string          `json:"currency"`
	MinAmount    int64           `json:"min_amount"`
	MaxAmount    *int64          `json:"max_amount,omitempty"`
	Priority     int             `json:"priority"`
	Overrides    []StageOverride `json:"overrides,omitempty"`
}

// Matches reports whether amount/currency falls inside the rule's range,
// inclusive of MinAmount and exclusive of MaxAmount.
func (r AmountRule) Matches(amount int64, currency string) bool {
	if r.Currency != currency {
		return false
	}
	if amount < r.MinAmount {
		return false
	}
	if r.MaxAmount != nil && amount >= *r.MaxAmount {
		return false
	}
	return true
}

// Overlaps reports whether two rules' amount ranges intersect.
func (r AmountRule) Overlaps(other AmountRule) bool {
	if r.Currency != other.Currency {
		return false
	}
	if r.MaxAmount != nil && other.MinAmount >= *r.MaxAmount {
		return false
	}
	if other.MaxAmount != nil && r.MinAmount >= *other.MaxAmount {
		return false
	}
	return true
}

// StageOverride substitutes quorum and/or approver group for one stage
// when its parent rule matches. Nil fields keep the template default.
type StageOverride struct {
	ID                int64   `json:"id"`
	RuleID            int64   `json:"rule_id"`
	StageOrder        int     `json:"stage_order"`
	RequiredApprovals *int    `json:"required_approvals,omitempty"`
	ApproverGroup     *string `json:"approver_group,omitempty"`
}

// PlannedStage is one entry of a resolved stage plan: the effective quorum
// and approver group a request's stage will be created with.
type PlannedStage struct {
	StageOrder        int    `json:"stage_order"`
	StageKey          string `json:"stage_key"`
	ApproverGroup     string `json:"approver_group"`
	RequiredApprovals int    `json:"required_approvals"`
	SLAHours          int    `json:"sla_hours"`
}
