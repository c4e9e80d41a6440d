package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/nimbusbank/approval-engine/internal/models"
	"go.uber.org/zap"
)

// ApprovalRepository handles stage approval database operations
type ApprovalRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewApprovalRepository creates a new approval repository
func NewApprovalRepository(db *sql.DB, logger *zap.Logger) *ApprovalRepository {
	return &ApprovalRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a decision row. A second decision by the same approver
// on the same stage trips the unique index and surfaces as
// ErrUniqueViolation.
func (r *ApprovalRepository) Create(tx *sql.Tx, approval *models.StageApproval) error {
	result, err := tx.Exec(
		`INSERT INTO stage_approvals (stage_id, request_id, approver_user_id, decision, remarks, decided_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		approval.StageID,
		approval.RequestID,
		approval.ApproverUserID,
		approval.Decision,
		approval.Remarks,
		approval.DecidedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create approval",
			zap.Int64("stage_id", approval.StageID),
			zap.String("approver", approval.ApproverUserID),
			zap.Error(err))
		return fmt.Errorf("failed to create approval: %w", mapSQLiteError(err))
	}

	approval.ID, _ = result.LastInsertId()
	return nil
}

// Exists reports whether the approver already decided on the stage
func (r *ApprovalRepository) Exists(stageID int64, approverUserID string) (bool, error) {
	var one int
	err := r.db.QueryRow(
		`SELECT 1 FROM stage_approvals WHERE stage_id = ? AND approver_user_id = ?`,
		stageID, approverUserID,
	).Scan(&one)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		r.logger.Error("Failed to check approval existence",
			zap.Int64("stage_id", stageID),
			zap.String("approver", approverUserID),
			zap.Error(err))
		return false, fmt.Errorf("failed to check approval: %w", err)
	}
	return true, nil
}

// ListByRequest retrieves all decisions across a request's stages
func (r *ApprovalRepository) ListByRequest(requestID string) ([]*models.StageApproval, error) {
	rows, err := r.db.Query(
		`SELECT id, stage_id, request_id, approver_user_id, decision, remarks, decided_at
		 FROM stage_approvals
		 WHERE request_id = ?
		 ORDER BY decided_at ASC, id ASC`,
		requestID,
	)
	if err != nil {
		r.logger.Error("Failed to list approvals", zap.String("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	defer rows.Close()

	return collectApprovals(rows)
}

// ListEngagements retrieves every decision an approver has made, joined
// with the current stage and request state
func (r *ApprovalRepository) ListEngagements(approverUserID string) ([]*models.Engagement, error) {
	query := `
		SELECT a.id, a.stage_id, a.request_id, a.approver_user_id, a.decision, a.remarks, a.decided_at,
			s.id, s.request_id, s.stage_order, s.stage_key, s.approver_group,
			s.required_approvals, s.sla_hours, s.approvals_obtained, s.status, s.started_at, s.completed_at,
			r.id, r.definition_id, r.definition_version, r.reference_id, r.reference_type,
			r.module_name, r.action_key, r.amount, r.currency, r.payload,
			r.current_stage_order, r.status, r.version, r.created_by, r.created_at, r.last_updated_at
		FROM stage_approvals a
		JOIN workflow_request_stages s ON s.id = a.stage_id
		JOIN workflow_requests r ON r.id = a.request_id
		WHERE a.approver_user_id = ?
		ORDER BY a.decided_at DESC, a.id DESC
	`

	rows, err := r.db.Query(query, approverUserID)
	if err != nil {
		r.logger.Error("Failed to list engagements", zap.String("approver", approverUserID), zap.Error(err))
		return nil, fmt.Errorf("failed to list engagements: %w", err)
	}
	defer rows.Close()

	var engagements []*models.Engagement
	for rows.Next() {
		var approval models.StageApproval
		var stage models.WorkflowRequestStage
		var request models.WorkflowRequest
		var startedAt, completedAt sql.NullTime

		if err := rows.Scan(
			&approval.ID, &approval.StageID, &approval.RequestID, &approval.ApproverUserID,
			&approval.Decision, &approval.Remarks, &approval.DecidedAt,
			&stage.ID, &stage.RequestID, &stage.StageOrder, &stage.StageKey, &stage.ApproverGroup,
			&stage.RequiredApprovals, &stage.SLAHours, &stage.ApprovalsObtained, &stage.Status,
			&startedAt, &completedAt,
			&request.ID, &request.DefinitionID, &request.DefinitionVersion, &request.ReferenceID, &request.ReferenceType,
			&request.ModuleName, &request.ActionKey, &request.Amount, &request.Currency, &request.Payload,
			&request.CurrentStageOrder, &request.Status, &request.Version, &request.CreatedBy,
			&request.CreatedAt, &request.LastUpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan engagement: %w", err)
		}

		if startedAt.Valid {
			stage.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			stage.CompletedAt = &completedAt.Time
		}

		engagements = append(engagements, &models.Engagement{
			Approval: &approval,
			Stage:    &stage,
			Request:  &request,
		})
	}
	return engagements, rows.Err()
}

func collectApprovals(rows *sql.Rows) ([]*models.StageApproval, error) {
	var approvals []*models.StageApproval
	for rows.Next() {
		var approval models.StageApproval
		var decidedAt time.Time
		if err := rows.Scan(
			&approval.ID,
			&approval.StageID,
			&approval.RequestID,
			&approval.ApproverUserID,
			&approval.Decision,
			&approval.Remarks,
			&decidedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		approval.DecidedAt = decidedAt
		approvals = append(approvals, &approval)
	}
	return approvals, rows.Err()
}
