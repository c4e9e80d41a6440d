package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nimbusbank/approval-engine/internal/models"
	"github.com/nimbusbank/approval-engine/internal/repository"
	"github.com/nimbusbank/approval-engine/pkg/database"
	"go.uber.org/zap"
)

// Engine drives the request lifecycle and the approval tally. All
// mutating paths run inside a per-key critical section wrapping a single
// database transaction, with the matching audit event appended in that
// same transaction.
type Engine struct {
	db             *database.DB
	definitionRepo *repository.DefinitionRepository
	requestRepo    *repository.RequestRepository
	stageRepo      *repository.StageRepository
	approvalRepo   *repository.ApprovalRepository
	auditRepo      *repository.AuditRepository
	stageLocks     *keyedMutex
	referenceLocks *keyedMutex
	lockTimeout    time.Duration
	bulkWorkers    int
	logger         *zap.Logger
}

// NewEngine creates a new workflow engine
func NewEngine(
	db *database.DB,
	definitionRepo *repository.DefinitionRepository,
	requestRepo *repository.RequestRepository,
	stageRepo *repository.StageRepository,
	approvalRepo *repository.ApprovalRepository,
	auditRepo *repository.AuditRepository,
	lockTimeout time.Duration,
	bulkWorkers int,
	logger *zap.Logger,
) *Engine {
	if lockTimeout <= 0 {
		lockTimeout = 3 * time.Second
	}
	if bulkWorkers < 1 {
		bulkWorkers = 4
	}
	return &Engine{
		db:             db,
		definitionRepo: definitionRepo,
		requestRepo:    requestRepo,
		stageRepo:      stageRepo,
		approvalRepo:   approvalRepo,
		auditRepo:      auditRepo,
		stageLocks:     newKeyedMutex(),
		referenceLocks: newKeyedMutex(),
		lockTimeout:    lockTimeout,
		bulkWorkers:    bulkWorkers,
		logger:         logger,
	}
}

// CreateRequestInput carries everything needed to open a workflow request
type CreateRequestInput struct {
	DefinitionID  int64
	ReferenceID   string
	ReferenceType string
	ModuleName    string
	ActionKey     string
	Amount        int64 // minor units
	Currency      string
	Payload       string // opaque JSON
	CreatedBy     string
}

func (in CreateRequestInput) validate() error {
	if in.DefinitionID == 0 {
		return fmt.Errorf("definition id is required")
	}
	if in.ReferenceID == "" || in.ReferenceType == "" {
		return fmt.Errorf("reference id and type are required")
	}
	if in.ModuleName == "" || in.ActionKey == "" {
		return fmt.Errorf("module name and action key are required")
	}
	if in.Amount < 0 {
		return fmt.Errorf("amount must not be negative")
	}
	if in.Currency == "" {
		return fmt.Errorf("currency is required")
	}
	if in.CreatedBy == "" {
		return fmt.Errorf("creator is required")
	}
	return nil
}

// CreateRequest opens a new request: resolves the stage plan from the
// definition, persists the request with its stage trackers (stage 1
// ACTIVE, rest PENDING) and the REQUEST_CREATED event in one transaction.
// A live request for the same reference tuple fails with
// ErrDuplicateActiveRequest.
func (e *Engine) CreateRequest(ctx context.Context, input CreateRequestInput) (*models.RequestDetail, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	def, err := e.definitionRepo.GetByID(input.DefinitionID)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, fmt.Errorf("%w: id %d", ErrDefinitionNotFound, input.DefinitionID)
	}

	plan, err := ResolvePlan(def, input.Amount, input.Currency)
	if err != nil {
		return nil, err
	}

	referenceKey := fmt.Sprintf("%s|%s|%s", input.ReferenceID, input.ReferenceType, input.ActionKey)
	release, err := e.referenceLocks.Acquire(referenceKey, e.lockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	existing, err := e.requestRepo.FindActiveByReference(input.ReferenceID, input.ReferenceType, input.ActionKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: request %s", ErrDuplicateActiveRequest, existing.ID)
	}

	payload := input.Payload
	if payload == "" {
		payload = "{}"
	}

	request := &models.WorkflowRequest{
		ID:                uuid.NewString(),
		DefinitionID:      def.ID,
		DefinitionVersion: def.Version,
		ReferenceID:       input.ReferenceID,
		ReferenceType:     input.ReferenceType,
		ModuleName:        input.ModuleName,
		ActionKey:         input.ActionKey,
		Amount:            input.Amount,
		Currency:          input.Currency,
		Payload:           payload,
		CurrentStageOrder: 1,
		Status:            models.RequestActive,
		Version:           1,
		CreatedBy:         input.CreatedBy,
	}

	err = e.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := e.requestRepo.Create(tx, request); err != nil {
			if errors.Is(err, repository.ErrUniqueViolation) {
				return fmt.Errorf("%w: reference %s", ErrDuplicateActiveRequest, referenceKey)
			}
			return err
		}

		if _, err := e.stageRepo.CreateFromPlan(tx, request.ID, plan, time.Now().UTC()); err != nil {
			return err
		}

		return e.auditRepo.Append(tx, &models.AuditEvent{
			RequestID: request.ID,
			EventType: models.EventRequestCreated,
			Actor:     input.CreatedBy,
			Detail: auditDetail(map[string]interface{}{
				"definition_id":      def.ID,
				"definition_version": def.Version,
				"amount":             input.Amount,
				"currency":           input.Currency,
				"stages":             len(plan),
			}),
		})
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Workflow request created",
		zap.String("request_id", request.ID),
		zap.String("module", input.ModuleName),
		zap.String("action", input.ActionKey),
		zap.Int64("amount", input.Amount),
		zap.String("currency", input.Currency),
		zap.Int("stages", len(plan)))

	return e.GetRequest(ctx, request.ID)
}

// RecordDecision applies one approver's verdict to an ACTIVE stage.
// The duplicate check, approval insert, tally update and any resulting
// stage advance or rejection are linearized per stage: two racing
// decisions on the same stage can never both observe a stale count.
func (e *Engine) RecordDecision(ctx context.Context, requestID string, stageID int64, approverUserID string, decision models.Decision, remarks string) (models.DecisionOutcome, error) {
	if approverUserID == "" {
		return "", fmt.Errorf("approver is required")
	}
	if !decision.IsValid() {
		return "", fmt.Errorf("invalid decision %q", decision)
	}

	release, err := e.stageLocks.Acquire(fmt.Sprintf("stage:%d", stageID), e.lockTimeout)
	if err != nil {
		return "", err
	}
	defer release()

	stage, err := e.stageRepo.GetByID(stageID)
	if err != nil {
		return "", err
	}
	if stage == nil {
		return "", fmt.Errorf("%w: id %d", ErrStageNotFound, stageID)
	}
	if stage.RequestID != requestID {
		return "", fmt.Errorf("%w: stage %d belongs to request %s", ErrStageMismatch, stageID, stage.RequestID)
	}

	request, err := e.requestRepo.GetByID(requestID)
	if err != nil {
		return "", err
	}
	if request == nil {
		return "", fmt.Errorf("%w: id %s", ErrRequestNotFound, requestID)
	}
	if request.Status != models.RequestActive {
		return "", fmt.Errorf("%w: request %s is %s", ErrRequestNotActive, requestID, request.Status)
	}
	if stage.Status != models.StageActive {
		return "", fmt.Errorf("%w: stage %d is %s", ErrStageNotActive, stageID, stage.Status)
	}

	exists, err := e.approvalRepo.Exists(stageID, approverUserID)
	if err != nil {
		return "", err
	}
	if exists {
		return "", fmt.Errorf("%w: approver %s stage %d", ErrDuplicateApproval, approverUserID, stageID)
	}

	now := time.Now().UTC()
	var outcome models.DecisionOutcome

	err = e.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		approval := &models.StageApproval{
			StageID:        stageID,
			RequestID:      requestID,
			ApproverUserID: approverUserID,
			Decision:       decision,
			Remarks:        remarks,
			DecidedAt:      now,
		}
		if err := e.approvalRepo.Create(tx, approval); err != nil {
			if errors.Is(err, repository.ErrUniqueViolation) {
				return fmt.Errorf("%w: approver %s stage %d", ErrDuplicateApproval, approverUserID, stageID)
			}
			return err
		}

		if err := e.auditRepo.Append(tx, &models.AuditEvent{
			RequestID: requestID,
			StageID:   &stageID,
			EventType: models.EventDecisionRecorded,
			Actor:     approverUserID,
			Detail: auditDetail(map[string]interface{}{
				"decision": decision,
				"remarks":  remarks,
			}),
		}); err != nil {
			return err
		}

		if decision == models.DecisionReject {
			// One rejection vetoes the whole request, independent of quorum.
			if err := e.rejectRequest(tx, request, stage, approverUserID, now); err != nil {
				return err
			}
			outcome = models.OutcomeRequestRejected
			return nil
		}

		newCount := stage.ApprovalsObtained + 1
		if err := e.stageRepo.SetApprovals(tx, stageID, newCount); err != nil {
			return err
		}

		if newCount < stage.RequiredApprovals {
			outcome = models.OutcomeRecordedPending
			return nil
		}

		advanced, err := e.advanceStage(tx, request, stage, approverUserID, now)
		if err != nil {
			return err
		}
		outcome = advanced
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return "", fmt.Errorf("%w: request %s", ErrConcurrentModification, requestID)
		}
		return "", err
	}

	e.logger.Info("Decision recorded",
		zap.String("request_id", requestID),
		zap.Int64("stage_id", stageID),
		zap.String("approver", approverUserID),
		zap.String("decision", string(decision)),
		zap.String("outcome", string(outcome)))

	return outcome, nil
}

// advanceStage completes the quorum-satisfied stage and either activates
// the next stage or approves the whole request. Called with the stage
// lock held, inside the decision's transaction.
func (e *Engine) advanceStage(tx *sql.Tx, request *models.WorkflowRequest, stage *models.WorkflowRequestStage, actor string, now time.Time) (models.DecisionOutcome, error) {
	if err := e.stageRepo.MarkCompleted(tx, stage.ID, now); err != nil {
		return "", err
	}

	if err := e.auditRepo.Append(tx, &models.AuditEvent{
		RequestID: request.ID,
		StageID:   &stage.ID,
		EventType: models.EventStageCompleted,
		Actor:     actor,
		Detail: auditDetail(map[string]interface{}{
			"stage_order":        stage.StageOrder,
			"stage_key":          stage.StageKey,
			"required_approvals": stage.RequiredApprovals,
		}),
	}); err != nil {
		return "", err
	}

	next, err := e.stageRepo.GetByRequestAndOrder(request.ID, stage.StageOrder+1)
	if err != nil {
		return "", err
	}

	if next != nil {
		if err := e.stageRepo.Activate(tx, next.ID, now); err != nil {
			return "", err
		}
		if err := e.requestRepo.UpdateStateVersioned(tx, request.ID, models.RequestActive, next.StageOrder, request.Version); err != nil {
			return "", err
		}
		return models.OutcomeStageCompleted, nil
	}

	if err := e.requestRepo.UpdateStateVersioned(tx, request.ID, models.RequestApproved, stage.StageOrder, request.Version); err != nil {
		return "", err
	}

	if err := e.auditRepo.Append(tx, &models.AuditEvent{
		RequestID: request.ID,
		EventType: models.EventRequestApproved,
		Actor:     actor,
		Detail:    auditDetail(map[string]interface{}{"final_stage_order": stage.StageOrder}),
	}); err != nil {
		return "", err
	}
	return models.OutcomeRequestApproved, nil
}

// rejectRequest terminates the stage and the request. Remaining PENDING
// stages are left PENDING and are never activated; completed stages keep
// their history.
func (e *Engine) rejectRequest(tx *sql.Tx, request *models.WorkflowRequest, stage *models.WorkflowRequestStage, actor string, now time.Time) error {
	if err := e.stageRepo.MarkRejected(tx, stage.ID, now); err != nil {
		return err
	}

	if err := e.requestRepo.UpdateStateVersioned(tx, request.ID, models.RequestRejected, stage.StageOrder, request.Version); err != nil {
		return err
	}

	return e.auditRepo.Append(tx, &models.AuditEvent{
		RequestID: request.ID,
		StageID:   &stage.ID,
		EventType: models.EventRequestRejected,
		Actor:     actor,
		Detail: auditDetail(map[string]interface{}{
			"stage_order": stage.StageOrder,
			"stage_key":   stage.StageKey,
		}),
	})
}

// GetRequest returns a request with its stages and approvals
func (e *Engine) GetRequest(ctx context.Context, id string) (*models.RequestDetail, error) {
	request, err := e.requestRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, fmt.Errorf("%w: id %s", ErrRequestNotFound, id)
	}

	stages, err := e.stageRepo.ListByRequest(id)
	if err != nil {
		return nil, err
	}
	approvals, err := e.approvalRepo.ListByRequest(id)
	if err != nil {
		return nil, err
	}

	return &models.RequestDetail{
		Request:   request,
		Stages:    stages,
		Approvals: approvals,
	}, nil
}

// AuditTrail returns a request's append-only event history
func (e *Engine) AuditTrail(ctx context.Context, requestID string) ([]*models.AuditEvent, error) {
	request, err := e.requestRepo.GetByID(requestID)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, fmt.Errorf("%w: id %s", ErrRequestNotFound, requestID)
	}
	return e.auditRepo.ListByRequest(requestID)
}

func auditDetail(fields map[string]interface{}) string {
	data, err := json.Marshal(fields)
	if err != nil {
		return "{}"
	}
	return string(data)
}
