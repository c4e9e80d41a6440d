package repository

import (
	"database/sql"
	"fmt"

	"github.com/nimbusbank/approval-engine/internal/models"
	"go.uber.org/zap"
)

// RequestRepository handles workflow request database operations
type RequestRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *sql.DB, logger *zap.Logger) *RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: logger,
	}
}

const requestColumns = `id, definition_id, definition_version, reference_id, reference_type,
	module_name, action_key, amount, currency, payload, current_stage_order,
	status, version, created_by, created_at, last_updated_at`

// Create inserts a new workflow request. A concurrent creation for the
// same live reference tuple trips the partial unique index and surfaces
// as ErrUniqueViolation.
func (r *RequestRepository) Create(tx *sql.Tx, request *models.WorkflowRequest) error {
	query := `
		INSERT INTO workflow_requests (
			id, definition_id, definition_version, reference_id, reference_type,
			module_name, action_key, amount, currency, payload,
			current_stage_order, status, version, created_by
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := tx.Exec(query,
		request.ID,
		request.DefinitionID,
		request.DefinitionVersion,
		request.ReferenceID,
		request.ReferenceType,
		request.ModuleName,
		request.ActionKey,
		request.Amount,
		request.Currency,
		request.Payload,
		request.CurrentStageOrder,
		request.Status,
		request.Version,
		request.CreatedBy,
	)
	if err != nil {
		r.logger.Error("Failed to create request", zap.String("id", request.ID), zap.Error(err))
		return fmt.Errorf("failed to create request: %w", mapSQLiteError(err))
	}
	return nil
}

// GetByID retrieves a workflow request by ID
func (r *RequestRepository) GetByID(id string) (*models.WorkflowRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM workflow_requests WHERE id = ?`

	request, err := scanRequest(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get request", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return request, nil
}

// FindActiveByReference returns the live request for a reference tuple,
// or nil if none exists
func (r *RequestRepository) FindActiveByReference(referenceID, referenceType, actionKey string) (*models.WorkflowRequest, error) {
	query := `SELECT ` + requestColumns + `
		FROM workflow_requests
		WHERE reference_id = ? AND reference_type = ? AND action_key = ? AND status = ?`

	request, err := scanRequest(r.db.QueryRow(query, referenceID, referenceType, actionKey, models.RequestActive))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to find active request",
			zap.String("reference_id", referenceID),
			zap.String("action_key", actionKey),
			zap.Error(err))
		return nil, fmt.Errorf("failed to find active request: %w", err)
	}
	return request, nil
}

// UpdateStateVersioned moves a request to a new status and stage pointer,
// guarded by the optimistic version token. A stale token matches zero
// rows and returns ErrVersionConflict.
func (r *RequestRepository) UpdateStateVersioned(tx *sql.Tx, id string, status models.RequestStatus, currentStageOrder int, version int64) error {
	query := `
		UPDATE workflow_requests
		SET status = ?, current_stage_order = ?, version = version + 1,
			last_updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?
	`

	result, err := tx.Exec(query, status, currentStageOrder, id, version)
	if err != nil {
		r.logger.Error("Failed to update request state", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to update request state: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// CountByModuleStatus aggregates requests per (module, status), live
func (r *RequestRepository) CountByModuleStatus() ([]models.ModuleCount, error) {
	rows, err := r.db.Query(`
		SELECT module_name, status, COUNT(*)
		FROM workflow_requests
		GROUP BY module_name, status
		ORDER BY module_name ASC, status ASC
	`)
	if err != nil {
		r.logger.Error("Failed to count requests by module", zap.Error(err))
		return nil, fmt.Errorf("failed to count requests: %w", err)
	}
	defer rows.Close()

	var counts []models.ModuleCount
	for rows.Next() {
		var count models.ModuleCount
		if err := rows.Scan(&count.ModuleName, &count.Status, &count.Count); err != nil {
			return nil, fmt.Errorf("failed to scan module count: %w", err)
		}
		counts = append(counts, count)
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row rowScanner) (*models.WorkflowRequest, error) {
	var request models.WorkflowRequest
	err := row.Scan(
		&request.ID,
		&request.DefinitionID,
		&request.DefinitionVersion,
		&request.ReferenceID,
		&request.ReferenceType,
		&request.ModuleName,
		&request.ActionKey,
		&request.Amount,
		&request.Currency,
		&request.Payload,
		&request.CurrentStageOrder,
		&request.Status,
		&request.Version,
		&request.CreatedBy,
		&request.CreatedAt,
		&request.LastUpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &request, nil
}
