package workflow

import (
	"context"
	"fmt"

	"github.com/nimbusbank/approval-engine/internal/models"
)

// AwaitingActions lists ACTIVE stages addressed to one of the caller's
// groups that the caller has not yet decided on. Lock-free read.
func (e *Engine) AwaitingActions(ctx context.Context, approverUserID string, groups []string) ([]*models.AwaitingStage, error) {
	if approverUserID == "" {
		return nil, fmt.Errorf("approver is required")
	}
	return e.stageRepo.ListAwaiting(approverUserID, groups)
}

// MyEngagements lists every decision the caller has recorded, across all
// requests, with the current stage and request state
func (e *Engine) MyEngagements(ctx context.Context, approverUserID string) ([]*models.Engagement, error) {
	if approverUserID == "" {
		return nil, fmt.Errorf("approver is required")
	}
	return e.approvalRepo.ListEngagements(approverUserID)
}

// Summary computes the live aggregate view from current state on every
// call; nothing is cached that could drift
func (e *Engine) Summary(ctx context.Context) (*models.WorkflowSummary, error) {
	byModule, err := e.requestRepo.CountByModuleStatus()
	if err != nil {
		return nil, err
	}
	activeStages, err := e.stageRepo.CountActiveByStageKey()
	if err != nil {
		return nil, err
	}
	return &models.WorkflowSummary{
		ByModule:     byModule,
		ActiveStages: activeStages,
	}, nil
}
