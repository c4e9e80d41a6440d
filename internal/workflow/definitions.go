package workflow

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nimbusbank/approval-engine/internal/models"
	"github.com/nimbusbank/approval-engine/internal/repository"
	"github.com/nimbusbank/approval-engine/pkg/database"
	"go.uber.org/zap"
)

// DefinitionStore publishes and serves immutable workflow definitions.
// Publishing validates the whole template; a definition that passes is
// never mutated again, superseding configuration gets the next version
// under the same name.
type DefinitionStore struct {
	db             *database.DB
	definitionRepo *repository.DefinitionRepository
	logger         *zap.Logger
}

// NewDefinitionStore creates a new definition store
func NewDefinitionStore(db *database.DB, definitionRepo *repository.DefinitionRepository, logger *zap.Logger) *DefinitionStore {
	return &DefinitionStore{
		db:             db,
		definitionRepo: definitionRepo,
		logger:         logger,
	}
}

// Publish validates and persists a definition as the next version of its
// name. Validation failures wrap ErrInvalidDefinition and block the
// publish entirely; nothing is written.
func (s *DefinitionStore) Publish(ctx context.Context, def *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	if err := validateDefinition(def); err != nil {
		return nil, err
	}

	latest, err := s.definitionRepo.GetLatestByName(def.Name)
	if err != nil {
		return nil, err
	}
	def.Version = 1
	if latest != nil {
		def.Version = latest.Version + 1
	}

	if err := s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		return s.definitionRepo.Create(tx, def)
	}); err != nil {
		return nil, err
	}

	s.logger.Info("Workflow definition published",
		zap.String("name", def.Name),
		zap.Int("version", def.Version),
		zap.Int("stages", len(def.Stages)),
		zap.Int("amount_rules", len(def.AmountRules)))

	return s.definitionRepo.GetByID(def.ID)
}

// Get retrieves a definition with stages, rules and overrides
func (s *DefinitionStore) Get(ctx context.Context, id int64) (*models.WorkflowDefinition, error) {
	def, err := s.definitionRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, fmt.Errorf("%w: id %d", ErrDefinitionNotFound, id)
	}
	return def, nil
}

// GetLatest retrieves the newest version published under a name
func (s *DefinitionStore) GetLatest(ctx context.Context, name string) (*models.WorkflowDefinition, error) {
	def, err := s.definitionRepo.GetLatestByName(name)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, fmt.Errorf("%w: name %q", ErrDefinitionNotFound, name)
	}
	return def, nil
}

// List retrieves all published definitions without children
func (s *DefinitionStore) List(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	return s.definitionRepo.List()
}

// validateDefinition enforces the publish-time configuration invariants:
// contiguous 1-based stage orders, positive quorums, and unambiguous
// amount rules (no equal-priority range overlap per currency).
func validateDefinition(def *models.WorkflowDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}
	if len(def.Stages) == 0 {
		return fmt.Errorf("%w: at least one stage is required", ErrInvalidDefinition)
	}

	seen := make(map[int]bool, len(def.Stages))
	for _, stage := range def.Stages {
		if stage.StageOrder < 1 || stage.StageOrder > len(def.Stages) {
			return fmt.Errorf("%w: stage order %d out of range 1..%d",
				ErrInvalidDefinition, stage.StageOrder, len(def.Stages))
		}
		if seen[stage.StageOrder] {
			return fmt.Errorf("%w: duplicate stage order %d", ErrInvalidDefinition, stage.StageOrder)
		}
		seen[stage.StageOrder] = true

		if stage.StageKey == "" {
			return fmt.Errorf("%w: stage %d missing stage key", ErrInvalidDefinition, stage.StageOrder)
		}
		if stage.ApproverGroup == "" {
			return fmt.Errorf("%w: stage %d missing approver group", ErrInvalidDefinition, stage.StageOrder)
		}
		if stage.RequiredApprovals < 1 {
			return fmt.Errorf("%w: stage %d requires a quorum of at least 1",
				ErrInvalidDefinition, stage.StageOrder)
		}
		if stage.SLAHours < 0 {
			return fmt.Errorf("%w: stage %d has negative SLA hours", ErrInvalidDefinition, stage.StageOrder)
		}
	}

	if def.AmountBased && len(def.AmountRules) == 0 {
		return fmt.Errorf("%w: amount-based definition needs at least one amount rule", ErrInvalidDefinition)
	}
	if !def.AmountBased && len(def.AmountRules) > 0 {
		return fmt.Errorf("%w: amount rules on a non-amount-based definition", ErrInvalidDefinition)
	}

	for i, rule := range def.AmountRules {
		if rule.Currency == "" {
			return fmt.Errorf("%w: amount rule %d missing currency", ErrInvalidDefinition, i)
		}
		if rule.MinAmount < 0 {
			return fmt.Errorf("%w: amount rule %d has negative minimum", ErrInvalidDefinition, i)
		}
		if rule.MaxAmount != nil && *rule.MaxAmount <= rule.MinAmount {
			return fmt.Errorf("%w: amount rule %d has empty range", ErrInvalidDefinition, i)
		}
		for _, override := range rule.Overrides {
			if !seen[override.StageOrder] {
				return fmt.Errorf("%w: amount rule %d overrides unknown stage %d",
					ErrInvalidDefinition, i, override.StageOrder)
			}
			if override.RequiredApprovals != nil && *override.RequiredApprovals < 1 {
				return fmt.Errorf("%w: amount rule %d override on stage %d requires a quorum of at least 1",
					ErrInvalidDefinition, i, override.StageOrder)
			}
		}
	}

	// Equal-priority overlap for the same currency would make resolution
	// ambiguous; reject here rather than at request-creation time.
	for i := range def.AmountRules {
		for j := i + 1; j < len(def.AmountRules); j++ {
			a, b := def.AmountRules[i], def.AmountRules[j]
			if a.Priority == b.Priority && a.Overlaps(b) {
				return fmt.Errorf("%w: amount rules %d and %d overlap at priority %d for %s",
					ErrInvalidDefinition, i, j, a.Priority, a.Currency)
			}
		}
	}

	return nil
}
