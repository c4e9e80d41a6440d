package models

import "time"

// WorkflowRequest is one business action travelling through an approval
// workflow. At most one ACTIVE request may exist for a given
// (reference_id, reference_type, action_key) tuple.
type WorkflowRequest struct {
	ID                string        `json:"id"`
	DefinitionID      int64         `json:"definition_id"`
	DefinitionVersion int           `json:"definition_version"`
	ReferenceID       string        `json:"reference_id"`
	ReferenceType     string        `json:"reference_type"`
	ModuleName        string        `json:"module_name"`
	ActionKey         string        `json:"action_key"`
	Amount            int64         `json:"amount"` // minor units
	Currency          string        `json:"currency"`
	Payload           string        `json:"payload"` // opaque JSON blob
	CurrentStageOrder int           `json:"current_stage_order"`
	Status            RequestStatus `json:"status"`
	Version           int64         `json:"version"` // optimistic concurrency token
	CreatedBy         string        `json:"created_by"`
	CreatedAt         time.Time     `json:"created_at"`
	LastUpdatedAt     time.Time     `json:"last_updated_at"`
}

// WorkflowRequestStage tracks one stage of one request. Quorum and group
// are resolved from the definition at request-creation time and frozen.
type WorkflowRequestStage struct {
	ID                int64       `json:"id"`
	RequestID         string      `json:"request_id"`
	StageOrder        int         `json:"stage_order"`
	StageKey          string      `json:"stage_key"`
	ApproverGroup     string      `json:"approver_group"`
	RequiredApprovals int         `json:"required_approvals"`
	SLAHours          int         `json:"sla_hours"`
	ApprovalsObtained int         `json:"approvals_obtained"`
	Status            StageStatus `json:"status"`
	StartedAt         *time.Time  `json:"started_at,omitempty"`
	CompletedAt       *time.Time  `json:"completed_at,omitempty"`
}

// StageApproval is a single approver's decision on a stage. At most one
// row may exist per (stage, approver) pair.
type StageApproval struct {
	ID             int64     `json:"id"`
	StageID        int64     `json:"stage_id"`
	RequestID      string    `json:"request_id"`
	ApproverUserID string    `json:"approver_user_id"`
	Decision       Decision  `json:"decision"`
	Remarks        string    `json:"remarks,omitempty"`
	DecidedAt      time.Time `json:"decided_at"`
}

// RequestDetail bundles a request with its stages and their approvals
type RequestDetail struct {
	Request   *WorkflowRequest        `json:"request"`
	Stages    []*WorkflowRequestStage `json:"stages"`
	Approvals []*StageApproval        `json:"approvals,omitempty"`
}

// AwaitingStage is one row of the awaiting-actions listing: an ACTIVE
// stage addressed to the caller's group that the caller has not decided yet.
type AwaitingStage struct {
	Stage   *WorkflowRequestStage `json:"stage"`
	Request *WorkflowRequest      `json:"request"`
}

// Engagement is one row of the my-engagements listing: a decision the
// caller has made, with the current state of its stage and request.
type Engagement struct {
	Approval *StageApproval        `json:"approval"`
	Stage    *WorkflowRequestStage `json:"stage"`
	Request  *WorkflowRequest      `json:"request"`
}

// ModuleCount aggregates requests per module and status
type ModuleCount struct {
	ModuleName string        `json:"module_name"`
	Status     RequestStatus `json:"status"`
	Count      int           `json:"count"`
}

// StageCount aggregates currently ACTIVE stages per stage key
type StageCount struct {
	StageKey string `json:"stage_key"`
	Count    int    `json:"count"`
}

// WorkflowSummary is the live aggregate view, computed per call
type WorkflowSummary struct {
	ByModule     []ModuleCount `json:"by_module"`
	ActiveStages []StageCount  `json:"active_stages"`
}
