package models

// RequestStatus represents the lifecycle state of a workflow request
type RequestStatus string

const (
	RequestActive   RequestStatus = "ACTIVE"
	RequestApproved RequestStatus = "APPROVED"
	RequestRejected RequestStatus = "REJECTED"
)

var validRequestStatuses = map[RequestStatus]bool{
	RequestActive:   true,
	RequestApproved: true,
	RequestRejected: true,
}

var terminalRequestStatuses = map[RequestStatus]bool{
	RequestApproved: true,
	RequestRejected: true,
}

// IsValid returns true if the status is a known request status
func (s RequestStatus) IsValid() bool {
	return validRequestStatuses[s]
}

// IsTerminal returns true if no further transitions are allowed
func (s RequestStatus) IsTerminal() bool {
	return terminalRequestStatuses[s]
}

// String returns the string representation of the status
func (s RequestStatus) String() string {
	return string(s)
}

// StageStatus represents the state of a single approval stage
type StageStatus string

const (
	StagePending   StageStatus = "PENDING"
	StageActive    StageStatus = "ACTIVE"
	StageCompleted StageStatus = "COMPLETED"
	StageRejected  StageStatus = "REJECTED"
)

var validStageStatuses = map[StageStatus]bool{
	StagePending:   true,
	StageActive:    true,
	StageCompleted: true,
	StageRejected:  true,
}

// IsValid returns true if the status is a known stage status
func (s StageStatus) IsValid() bool {
	return validStageStatuses[s]
}

// IsTerminal returns true if the stage can no longer accept decisions
func (s StageStatus) IsTerminal() bool {
	return s == StageCompleted || s == StageRejected
}

// String returns the string representation of the status
func (s StageStatus) String() string {
	return string(s)
}

// Decision is an approver's verdict on a stage
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// IsValid returns true if the decision is APPROVE or REJECT
func (d Decision) IsValid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// DecisionOutcome describes what a recorded decision caused
type DecisionOutcome string

const (
	OutcomeRecordedPending DecisionOutcome = "RECORDED_PENDING"
	OutcomeStageCompleted  DecisionOutcome = "STAGE_COMPLETED"
	OutcomeRequestApproved DecisionOutcome = "REQUEST_APPROVED"
	OutcomeRequestRejected DecisionOutcome = "REQUEST_REJECTED"
)
