package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/nimbusbank/approval-engine/internal/models"
	"go.uber.org/zap"
)

// StageRepository handles per-request stage tracker database operations
type StageRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStageRepository creates a new stage repository
func NewStageRepository(db *sql.DB, logger *zap.Logger) *StageRepository {
	return &StageRepository{
		db:     db,
		logger: logger,
	}
}

const stageColumns = `id, request_id, stage_order, stage_key, approver_group,
	required_approvals, sla_hours, approvals_obtained, status, started_at, completed_at`

// CreateFromPlan materializes stage trackers for a request from its
// resolved plan: the first stage ACTIVE with startedAt set, the rest
// PENDING. Quorum and group are frozen here.
func (r *StageRepository) CreateFromPlan(tx *sql.Tx, requestID string, plan []models.PlannedStage, now time.Time) ([]*models.WorkflowRequestStage, error) {
	stages := make([]*models.WorkflowRequestStage, 0, len(plan))

	for i, planned := range plan {
		stage := &models.WorkflowRequestStage{
			RequestID:         requestID,
			StageOrder:        planned.StageOrder,
			StageKey:          planned.StageKey,
			ApproverGroup:     planned.ApproverGroup,
			RequiredApprovals: planned.RequiredApprovals,
			SLAHours:          planned.SLAHours,
			Status:            models.StagePending,
		}
		if i == 0 {
			stage.Status = models.StageActive
			stage.StartedAt = &now
		}

		result, err := tx.Exec(
			`INSERT INTO workflow_request_stages (
				request_id, stage_order, stage_key, approver_group,
				required_approvals, sla_hours, status, started_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			stage.RequestID,
			stage.StageOrder,
			stage.StageKey,
			stage.ApproverGroup,
			stage.RequiredApprovals,
			stage.SLAHours,
			stage.Status,
			stage.StartedAt,
		)
		if err != nil {
			r.logger.Error("Failed to create stage tracker",
				zap.String("request_id", requestID),
				zap.Int("stage_order", stage.StageOrder),
				zap.Error(err))
			return nil, fmt.Errorf("failed to create stage tracker: %w", err)
		}
		stage.ID, _ = result.LastInsertId()
		stages = append(stages, stage)
	}

	return stages, nil
}

// GetByID retrieves a stage tracker by ID
func (r *StageRepository) GetByID(id int64) (*models.WorkflowRequestStage, error) {
	query := `SELECT ` + stageColumns + ` FROM workflow_request_stages WHERE id = ?`

	stage, err := scanStage(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get stage", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get stage: %w", err)
	}
	return stage, nil
}

// GetByRequestAndOrder retrieves one stage of a request by its order
func (r *StageRepository) GetByRequestAndOrder(requestID string, stageOrder int) (*models.WorkflowRequestStage, error) {
	query := `SELECT ` + stageColumns + `
		FROM workflow_request_stages
		WHERE request_id = ? AND stage_order = ?`

	stage, err := scanStage(r.db.QueryRow(query, requestID, stageOrder))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get stage by order",
			zap.String("request_id", requestID),
			zap.Int("stage_order", stageOrder),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get stage: %w", err)
	}
	return stage, nil
}

// ListByRequest retrieves all stage trackers of a request in stage order
func (r *StageRepository) ListByRequest(requestID string) ([]*models.WorkflowRequestStage, error) {
	query := `SELECT ` + stageColumns + `
		FROM workflow_request_stages
		WHERE request_id = ?
		ORDER BY stage_order ASC`

	rows, err := r.db.Query(query, requestID)
	if err != nil {
		r.logger.Error("Failed to list stages", zap.String("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}
	defer rows.Close()

	var stages []*models.WorkflowRequestStage
	for rows.Next() {
		stage, err := scanStage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stage: %w", err)
		}
		stages = append(stages, stage)
	}
	return stages, rows.Err()
}

// SetApprovals writes the new approval count for a stage
func (r *StageRepository) SetApprovals(tx *sql.Tx, id int64, approvalsObtained int) error {
	_, err := tx.Exec(
		`UPDATE workflow_request_stages SET approvals_obtained = ? WHERE id = ?`,
		approvalsObtained, id,
	)
	if err != nil {
		r.logger.Error("Failed to set approvals", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to set approvals: %w", err)
	}
	return nil
}

// MarkCompleted finishes a stage after its quorum was met
func (r *StageRepository) MarkCompleted(tx *sql.Tx, id int64, at time.Time) error {
	return r.setTerminal(tx, id, models.StageCompleted, at)
}

// MarkRejected finishes a stage after a REJECT decision
func (r *StageRepository) MarkRejected(tx *sql.Tx, id int64, at time.Time) error {
	return r.setTerminal(tx, id, models.StageRejected, at)
}

func (r *StageRepository) setTerminal(tx *sql.Tx, id int64, status models.StageStatus, at time.Time) error {
	_, err := tx.Exec(
		`UPDATE workflow_request_stages SET status = ?, completed_at = ? WHERE id = ?`,
		status, at, id,
	)
	if err != nil {
		r.logger.Error("Failed to finish stage", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to finish stage: %w", err)
	}
	return nil
}

// Activate moves a PENDING stage to ACTIVE with its start timestamp
func (r *StageRepository) Activate(tx *sql.Tx, id int64, at time.Time) error {
	_, err := tx.Exec(
		`UPDATE workflow_request_stages SET status = ?, started_at = ? WHERE id = ?`,
		models.StageActive, at, id,
	)
	if err != nil {
		r.logger.Error("Failed to activate stage", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to activate stage: %w", err)
	}
	return nil
}

// ListAwaiting returns ACTIVE stages addressed to one of the caller's
// groups where the caller has not yet recorded a decision
func (r *StageRepository) ListAwaiting(approverUserID string, groups []string) ([]*models.AwaitingStage, error) {
	if len(groups) == 0 {
		return nil, nil
	}

	placeholders := ""
	args := make([]interface{}, 0, len(groups)+3)
	args = append(args, models.StageActive, models.RequestActive)
	for i, group := range groups {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args = append(args, group)
	}
	args = append(args, approverUserID)

	query := `
		SELECT s.id, s.request_id, s.stage_order, s.stage_key, s.approver_group,
			s.required_approvals, s.sla_hours, s.approvals_obtained, s.status,
			s.started_at, s.completed_at,
			r.id, r.definition_id, r.definition_version, r.reference_id, r.reference_type,
			r.module_name, r.action_key, r.amount, r.currency, r.payload,
			r.current_stage_order, r.status, r.version, r.created_by, r.created_at, r.last_updated_at
		FROM workflow_request_stages s
		JOIN workflow_requests r ON r.id = s.request_id
		WHERE s.status = ? AND r.status = ?
			AND s.approver_group IN (` + placeholders + `)
			AND NOT EXISTS (
				SELECT 1 FROM stage_approvals a
				WHERE a.stage_id = s.id AND a.approver_user_id = ?
			)
		ORDER BY r.created_at ASC, s.stage_order ASC
	`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		r.logger.Error("Failed to list awaiting stages", zap.String("approver", approverUserID), zap.Error(err))
		return nil, fmt.Errorf("failed to list awaiting stages: %w", err)
	}
	defer rows.Close()

	var awaiting []*models.AwaitingStage
	for rows.Next() {
		var stage models.WorkflowRequestStage
		var request models.WorkflowRequest
		var startedAt, completedAt sql.NullTime
		if err := rows.Scan(
			&stage.ID, &stage.RequestID, &stage.StageOrder, &stage.StageKey, &stage.ApproverGroup,
			&stage.RequiredApprovals, &stage.SLAHours, &stage.ApprovalsObtained, &stage.Status,
			&startedAt, &completedAt,
			&request.ID, &request.DefinitionID, &request.DefinitionVersion, &request.ReferenceID, &request.ReferenceType,
			&request.ModuleName, &request.ActionKey, &request.Amount, &request.Currency, &request.Payload,
			&request.CurrentStageOrder, &request.Status, &request.Version, &request.CreatedBy,
			&request.CreatedAt, &request.LastUpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan awaiting stage: %w", err)
		}
		if startedAt.Valid {
			stage.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			stage.CompletedAt = &completedAt.Time
		}
		awaiting = append(awaiting, &models.AwaitingStage{Stage: &stage, Request: &request})
	}
	return awaiting, rows.Err()
}

// CountActiveByStageKey aggregates ACTIVE stages per stage key, live
func (r *StageRepository) CountActiveByStageKey() ([]models.StageCount, error) {
	rows, err := r.db.Query(`
		SELECT stage_key, COUNT(*)
		FROM workflow_request_stages
		WHERE status = ?
		GROUP BY stage_key
		ORDER BY stage_key ASC
	`, models.StageActive)
	if err != nil {
		r.logger.Error("Failed to count active stages", zap.Error(err))
		return nil, fmt.Errorf("failed to count active stages: %w", err)
	}
	defer rows.Close()

	var counts []models.StageCount
	for rows.Next() {
		var count models.StageCount
		if err := rows.Scan(&count.StageKey, &count.Count); err != nil {
			return nil, fmt.Errorf("failed to scan stage count: %w", err)
		}
		counts = append(counts, count)
	}
	return counts, rows.Err()
}

func scanStage(row rowScanner) (*models.WorkflowRequestStage, error) {
	var stage models.WorkflowRequestStage
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&stage.ID,
		&stage.RequestID,
		&stage.StageOrder,
		&stage.StageKey,
		&stage.ApproverGroup,
		&stage.RequiredApprovals,
		&stage.SLAHours,
		&stage.ApprovalsObtained,
		&stage.Status,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if startedAt.Valid {
		stage.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		stage.CompletedAt = &completedAt.Time
	}
	return &stage, nil
}
