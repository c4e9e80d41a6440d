package workflow

import "errors"

// Configuration errors: surfaced at publish or request-creation time,
// never retried, block the operation entirely.
var (
	// ErrInvalidDefinition is returned when a definition fails publish-time validation
	ErrInvalidDefinition = errors.New("invalid workflow definition")

	// ErrAmbiguousRule is returned when two amount rules match at equal priority
	ErrAmbiguousRule = errors.New("ambiguous amount rules")

	// ErrNoApplicableRule is returned when no amount rule covers the request's amount
	ErrNoApplicableRule = errors.New("no applicable amount rule")
)

// Integrity violations: rejected outright, caller must inspect existing state.
var (
	// ErrDuplicateActiveRequest is returned when a live request already exists
	// for the same (referenceId, referenceType, actionKey) tuple
	ErrDuplicateActiveRequest = errors.New("active request already exists for reference")

	// ErrDuplicateApproval is returned when an approver already decided on a stage
	ErrDuplicateApproval = errors.New("approver already decided on stage")
)

// Concurrency errors: retryable by the caller after a fresh read.
var (
	// ErrConcurrentModification is returned when an optimistic write lost the race
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrLockTimeout is returned when a per-stage or per-request lock could
	// not be acquired within the configured bound
	ErrLockTimeout = errors.New("lock acquisition timed out")
)

// State errors: caller logic bugs, not retried.
var (
	// ErrRequestNotActive is returned when mutating a terminal request
	ErrRequestNotActive = errors.New("request is not active")

	// ErrStageNotActive is returned when deciding on a stage that is not active
	ErrStageNotActive = errors.New("stage is not active")

	// ErrStageMismatch is returned when a stage does not belong to the given request
	ErrStageMismatch = errors.New("stage does not belong to request")
)

// Not-found errors.
var (
	// ErrDefinitionNotFound is returned when no definition matches the lookup
	ErrDefinitionNotFound = errors.New("workflow definition not found")

	// ErrRequestNotFound is returned when no request matches the lookup
	ErrRequestNotFound = errors.New("workflow request not found")

	// ErrStageNotFound is returned when no stage matches the lookup
	ErrStageNotFound = errors.New("workflow stage not found")
)
