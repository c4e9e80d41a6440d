package repository

import (
	"database/sql"
	"fmt"

	"github.com/nimbusbank/approval-engine/internal/models"
	"go.uber.org/zap"
)

// AuditRepository handles the append-only workflow ledger. It exposes no
// update or delete operations.
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Append writes one event inside the transaction of the state change it
// describes, so the ledger can never diverge from live state
func (r *AuditRepository) Append(tx *sql.Tx, event *models.AuditEvent) error {
	result, err := tx.Exec(
		`INSERT INTO audit_events (request_id, stage_id, event_type, actor, detail)
		 VALUES (?, ?, ?, ?, ?)`,
		event.RequestID,
		event.StageID,
		event.EventType,
		event.Actor,
		event.Detail,
	)
	if err != nil {
		r.logger.Error("Failed to append audit event",
			zap.String("request_id", event.RequestID),
			zap.String("event_type", event.EventType),
			zap.Error(err))
		return fmt.Errorf("failed to append audit event: %w", err)
	}

	event.ID, _ = result.LastInsertId()
	return nil
}

// ListByRequest retrieves a request's events in insertion order
func (r *AuditRepository) ListByRequest(requestID string) ([]*models.AuditEvent, error) {
	rows, err := r.db.Query(
		`SELECT id, request_id, stage_id, event_type, actor, detail, created_at
		 FROM audit_events
		 WHERE request_id = ?
		 ORDER BY id ASC`,
		requestID,
	)
	if err != nil {
		r.logger.Error("Failed to list audit events", zap.String("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []*models.AuditEvent
	for rows.Next() {
		var event models.AuditEvent
		var stageID sql.NullInt64
		if err := rows.Scan(
			&event.ID,
			&event.RequestID,
			&stageID,
			&event.EventType,
			&event.Actor,
			&event.Detail,
			&event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if stageID.Valid {
			event.StageID = &stageID.Int64
		}
		events = append(events, &event)
	}
	return events, rows.Err()
}
