package workflow

import (
	"context"
	"errors"
	"sync"

	"github.com/nimbusbank/approval-engine/internal/models"
	"go.uber.org/zap"
)

// BulkDecision is one item of a bulk decision batch
type BulkDecision struct {
	RequestID string          `json:"request_id"`
	StageID   int64           `json:"stage_id"`
	Decision  models.Decision `json:"decision"`
	Remarks   string          `json:"remarks,omitempty"`
}

// BulkOutcome is the per-item result, index-aligned with the input batch.
// Either Outcome is set, or ErrorCode/Message describe the typed failure.
type BulkOutcome struct {
	Index     int                    `json:"index"`
	RequestID string                 `json:"request_id"`
	StageID   int64                  `json:"stage_id"`
	Outcome   models.DecisionOutcome `json:"outcome,omitempty"`
	ErrorCode string                 `json:"error_code,omitempty"`
	Message   string                 `json:"message,omitempty"`
}

// ApplyBatch applies each decision independently under its own per-stage
// critical section. One item's failure becomes an error outcome for that
// item only; the batch is never rolled back as a whole. Items on distinct
// stages run in parallel, same-stage items serialize on the stage lock.
func (e *Engine) ApplyBatch(ctx context.Context, approverUserID string, decisions []BulkDecision) []BulkOutcome {
	outcomes := make([]BulkOutcome, len(decisions))

	workers := e.bulkWorkers
	if workers > len(decisions) {
		workers = len(decisions)
	}

	indexes := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)

	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range indexes {
				item := decisions[i]
				outcome := BulkOutcome{
					Index:     i,
					RequestID: item.RequestID,
					StageID:   item.StageID,
				}

				result, err := e.RecordDecision(ctx, item.RequestID, item.StageID, approverUserID, item.Decision, item.Remarks)
				if err != nil {
					outcome.ErrorCode = ErrorCode(err)
					outcome.Message = err.Error()
				} else {
					outcome.Outcome = result
				}
				outcomes[i] = outcome
			}
		}()
	}

	for i := range decisions {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	failed := 0
	for _, outcome := range outcomes {
		if outcome.ErrorCode != "" {
			failed++
		}
	}
	e.logger.Info("Bulk decision batch applied",
		zap.String("approver", approverUserID),
		zap.Int("items", len(decisions)),
		zap.Int("failed", failed))

	return outcomes
}

// ErrorCode maps the engine's typed errors onto stable codes carried in
// API payloads
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidDefinition):
		return "INVALID_DEFINITION"
	case errors.Is(err, ErrAmbiguousRule):
		return "AMBIGUOUS_RULE"
	case errors.Is(err, ErrNoApplicableRule):
		return "NO_APPLICABLE_RULE"
	case errors.Is(err, ErrDuplicateActiveRequest):
		return "DUPLICATE_ACTIVE_REQUEST"
	case errors.Is(err, ErrDuplicateApproval):
		return "DUPLICATE_APPROVAL"
	case errors.Is(err, ErrConcurrentModification):
		return "CONCURRENT_MODIFICATION"
	case errors.Is(err, ErrLockTimeout):
		return "LOCK_TIMEOUT"
	case errors.Is(err, ErrRequestNotActive):
		return "REQUEST_NOT_ACTIVE"
	case errors.Is(err, ErrStageNotActive):
		return "STAGE_NOT_ACTIVE"
	case errors.Is(err, ErrStageMismatch):
		return "STAGE_MISMATCH"
	case errors.Is(err, ErrDefinitionNotFound):
		return "DEFINITION_NOT_FOUND"
	case errors.Is(err, ErrRequestNotFound):
		return "REQUEST_NOT_FOUND"
	case errors.Is(err, ErrStageNotFound):
		return "STAGE_NOT_FOUND"
	default:
		return "INTERNAL"
	}
}

// Retryable reports whether the caller may retry after a fresh read
func Retryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrLockTimeout)
}
