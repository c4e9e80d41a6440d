package repository

import (
	"database/sql"
	"fmt"

	"github.com/nimbusbank/approval-engine/internal/models"
	"go.uber.org/zap"
)

// DefinitionRepository handles workflow definition database operations.
// Definitions are write-once: there is no update path, only new versions.
type DefinitionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDefinitionRepository creates a new definition repository
func NewDefinitionRepository(db *sql.DB, logger *zap.Logger) *DefinitionRepository {
	return &DefinitionRepository{
		db:     db,
		logger: logger,
	}
}

// Create persists a definition with its stage templates, amount rules and
// stage overrides. Must be called inside a transaction so a half-written
// definition can never be observed.
func (r *DefinitionRepository) Create(tx *sql.Tx, def *models.WorkflowDefinition) error {
	result, err := tx.Exec(
		`INSERT INTO workflow_definitions (name, version, amount_based) VALUES (?, ?, ?)`,
		def.Name, def.Version, def.AmountBased,
	)
	if err != nil {
		r.logger.Error("Failed to create definition", zap.String("name", def.Name), zap.Error(err))
		return fmt.Errorf("failed to create definition: %w", err)
	}

	defID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	def.ID = defID

	for i := range def.Stages {
		stage := &def.Stages[i]
		stage.DefinitionID = defID

		result, err := tx.Exec(
			`INSERT INTO stage_templates (definition_id, stage_order, stage_key, approver_group, required_approvals, sla_hours)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			defID, stage.StageOrder, stage.StageKey, stage.ApproverGroup, stage.RequiredApprovals, stage.SLAHours,
		)
		if err != nil {
			return fmt.Errorf("failed to create stage template: %w", err)
		}
		stage.ID, _ = result.LastInsertId()
	}

	for i := range def.AmountRules {
		rule := &def.AmountRules[i]
		rule.DefinitionID = defID

		result, err := tx.Exec(
			`INSERT INTO amount_rules (definition_id, currency, min_amount, max_amount, priority)
			 VALUES (?, ?, ?, ?, ?)`,
			defID, rule.Currency, rule.MinAmount, rule.MaxAmount, rule.Priority,
		)
		if err != nil {
			return fmt.Errorf("failed to create amount rule: %w", err)
		}
		rule.ID, _ = result.LastInsertId()

		for j := range rule.Overrides {
			override := &rule.Overrides[j]
			override.RuleID = rule.ID

			result, err := tx.Exec(
				`INSERT INTO stage_overrides (rule_id, stage_order, required_approvals, approver_group)
				 VALUES (?, ?, ?, ?)`,
				rule.ID, override.StageOrder, override.RequiredApprovals, override.ApproverGroup,
			)
			if err != nil {
				return fmt.Errorf("failed to create stage override: %w", err)
			}
			override.ID, _ = result.LastInsertId()
		}
	}

	return nil
}

// GetByID retrieves a definition with its stages, rules and overrides
func (r *DefinitionRepository) GetByID(id int64) (*models.WorkflowDefinition, error) {
	var def models.WorkflowDefinition

	err := r.db.QueryRow(
		`SELECT id, name, version, amount_based, created_at FROM workflow_definitions WHERE id = ?`,
		id,
	).Scan(&def.ID, &def.Name, &def.Version, &def.AmountBased, &def.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get definition", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get definition: %w", err)
	}

	if err := r.loadChildren(&def); err != nil {
		return nil, err
	}
	return &def, nil
}

// GetLatestByName retrieves the highest published version for a name
func (r *DefinitionRepository) GetLatestByName(name string) (*models.WorkflowDefinition, error) {
	var def models.WorkflowDefinition

	err := r.db.QueryRow(
		`SELECT id, name, version, amount_based, created_at
		 FROM workflow_definitions
		 WHERE name = ?
		 ORDER BY version DESC
		 LIMIT 1`,
		name,
	).Scan(&def.ID, &def.Name, &def.Version, &def.AmountBased, &def.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get definition by name", zap.String("name", name), zap.Error(err))
		return nil, fmt.Errorf("failed to get definition: %w", err)
	}

	if err := r.loadChildren(&def); err != nil {
		return nil, err
	}
	return &def, nil
}

// List retrieves all definitions, newest first, without children
func (r *DefinitionRepository) List() ([]*models.WorkflowDefinition, error) {
	rows, err := r.db.Query(
		`SELECT id, name, version, amount_based, created_at
		 FROM workflow_definitions
		 ORDER BY name ASC, version DESC`,
	)
	if err != nil {
		r.logger.Error("Failed to list definitions", zap.Error(err))
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}
	defer rows.Close()

	var defs []*models.WorkflowDefinition
	for rows.Next() {
		var def models.WorkflowDefinition
		if err := rows.Scan(&def.ID, &def.Name, &def.Version, &def.AmountBased, &def.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan definition: %w", err)
		}
		defs = append(defs, &def)
	}
	return defs, rows.Err()
}

func (r *DefinitionRepository) loadChildren(def *models.WorkflowDefinition) error {
	stageRows, err := r.db.Query(
		`SELECT id, definition_id, stage_order, stage_key, approver_group, required_approvals, sla_hours
		 FROM stage_templates
		 WHERE definition_id = ?
		 ORDER BY stage_order ASC`,
		def.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to load stage templates: %w", err)
	}
	defer stageRows.Close()

	for stageRows.Next() {
		var stage models.StageTemplate
		if err := stageRows.Scan(&stage.ID, &stage.DefinitionID, &stage.StageOrder, &stage.StageKey,
			&stage.ApproverGroup, &stage.RequiredApprovals, &stage.SLAHours); err != nil {
			return fmt.Errorf("failed to scan stage template: %w", err)
		}
		def.Stages = append(def.Stages, stage)
	}
	if err := stageRows.Err(); err != nil {
		return err
	}

	ruleRows, err := r.db.Query(
		`SELECT id, definition_id, currency, min_amount, max_amount, priority
		 FROM amount_rules
		 WHERE definition_id = ?
		 ORDER BY priority ASC, id ASC`,
		def.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to load amount rules: %w", err)
	}
	defer ruleRows.Close()

	for ruleRows.Next() {
		var rule models.AmountRule
		if err := ruleRows.Scan(&rule.ID, &rule.DefinitionID, &rule.Currency,
			&rule.MinAmount, &rule.MaxAmount, &rule.Priority); err != nil {
			return fmt.Errorf("failed to scan amount rule: %w", err)
		}
		def.AmountRules = append(def.AmountRules, rule)
	}
	if err := ruleRows.Err(); err != nil {
		return err
	}

	for i := range def.AmountRules {
		rule := &def.AmountRules[i]

		overrideRows, err := r.db.Query(
			`SELECT id, rule_id, stage_order, required_approvals, approver_group
			 FROM stage_overrides
			 WHERE rule_id = ?
			 ORDER BY stage_order ASC`,
			rule.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to load stage overrides: %w", err)
		}

		for overrideRows.Next() {
			var override models.StageOverride
			if err := overrideRows.Scan(&override.ID, &override.RuleID, &override.StageOrder,
				&override.RequiredApprovals, &override.ApproverGroup); err != nil {
				overrideRows.Close()
				return fmt.Errorf("failed to scan stage override: %w", err)
			}
			rule.Overrides = append(rule.Overrides, override)
		}
		if err := overrideRows.Err(); err != nil {
			overrideRows.Close()
			return err
		}
		overrideRows.Close()
	}

	return nil
}
