package models

import "time"

// AuditEvent is one row of the append-only workflow ledger. Events are
// written in the same transaction as the state change they describe and
// are never updated or deleted.
type AuditEvent struct {
	ID        int64     `json:"id"`
	RequestID string    `json:"request_id"`
	StageID   *int64    `json:"stage_id,omitempty"`
	EventType string    `json:"event_type"`
	Actor     string    `json:"actor"`
	Detail    string    `json:"detail"` // JSON snapshot
	CreatedAt time.Time `json:"created_at"`
}

// Audit event type constants
const (
	EventRequestCreated   = "REQUEST_CREATED"
	EventDecisionRecorded = "DECISION_RECORDED"
	EventStageCompleted   = "STAGE_COMPLETED"
	EventRequestApproved  = "REQUEST_APPROVED"
	EventRequestRejected  = "REQUEST_REJECTED"
)
