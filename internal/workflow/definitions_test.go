package workflow

import (
	"context"
	"testing"

	"github.com/nimbusbank/approval-engine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDefinition() *models.WorkflowDefinition {
	def := twoStageDefinition(true)
	def.ID = 0
	def.AmountRules = []models.AmountRule{
		{Currency: "USD", MinAmount: 0, MaxAmount: int64Ptr(100000), Priority: 10},
		{Currency: "USD", MinAmount: 100000, Priority: 10,
			Overrides: []models.StageOverride{{StageOrder: 1, RequiredApprovals: intPtr(3)}}},
	}
	return def
}

func TestValidateDefinition(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*models.WorkflowDefinition)
		wantErr bool
	}{
		{
			name:   "valid definition passes",
			mutate: func(def *models.WorkflowDefinition) {},
		},
		{
			name:    "missing name",
			mutate:  func(def *models.WorkflowDefinition) { def.Name = "" },
			wantErr: true,
		},
		{
			name:    "no stages",
			mutate:  func(def *models.WorkflowDefinition) { def.Stages = nil },
			wantErr: true,
		},
		{
			name: "duplicate stage order",
			mutate: func(def *models.WorkflowDefinition) {
				def.Stages[1].StageOrder = 1
			},
			wantErr: true,
		},
		{
			name: "stage order out of range",
			mutate: func(def *models.WorkflowDefinition) {
				def.Stages[1].StageOrder = 5
			},
			wantErr: true,
		},
		{
			name: "zero quorum",
			mutate: func(def *models.WorkflowDefinition) {
				def.Stages[0].RequiredApprovals = 0
			},
			wantErr: true,
		},
		{
			name: "missing approver group",
			mutate: func(def *models.WorkflowDefinition) {
				def.Stages[0].ApproverGroup = ""
			},
			wantErr: true,
		},
		{
			name: "amount-based without rules",
			mutate: func(def *models.WorkflowDefinition) {
				def.AmountRules = nil
			},
			wantErr: true,
		},
		{
			name: "rules on non-amount-based definition",
			mutate: func(def *models.WorkflowDefinition) {
				def.AmountBased = false
			},
			wantErr: true,
		},
		{
			name: "empty amount range",
			mutate: func(def *models.WorkflowDefinition) {
				def.AmountRules[0].MaxAmount = int64Ptr(0)
			},
			wantErr: true,
		},
		{
			name: "equal-priority overlap same currency",
			mutate: func(def *models.WorkflowDefinition) {
				def.AmountRules[1].MinAmount = 50000
			},
			wantErr: true,
		},
		{
			name: "overlap at different priority is allowed",
			mutate: func(def *models.WorkflowDefinition) {
				def.AmountRules[1].MinAmount = 50000
				def.AmountRules[1].Priority = 5
			},
		},
		{
			name: "overlap in different currency is allowed",
			mutate: func(def *models.WorkflowDefinition) {
				def.AmountRules[1].MinAmount = 50000
				def.AmountRules[1].Currency = "EUR"
			},
		},
		{
			name: "override targets unknown stage",
			mutate: func(def *models.WorkflowDefinition) {
				def.AmountRules[1].Overrides[0].StageOrder = 7
			},
			wantErr: true,
		},
		{
			name: "override with zero quorum",
			mutate: func(def *models.WorkflowDefinition) {
				def.AmountRules[1].Overrides[0].RequiredApprovals = intPtr(0)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := validDefinition()
			tt.mutate(def)

			err := validateDefinition(def)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDefinition)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPublishAssignsVersions(t *testing.T) {
	_, store := newTestEngine(t)
	ctx := context.Background()

	first, err := store.Publish(ctx, validDefinition())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Version)

	second, err := store.Publish(ctx, validDefinition())
	require.NoError(t, err)
	assert.Equal(t, 2, second.Version)
	assert.NotEqual(t, first.ID, second.ID)

	// Earlier versions remain readable: live requests keep referencing them.
	loaded, err := store.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Version)
	assert.Len(t, loaded.Stages, 2)
	assert.Len(t, loaded.AmountRules, 2)
	require.Len(t, loaded.AmountRules[1].Overrides, 1)
	assert.Equal(t, 3, *loaded.AmountRules[1].Overrides[0].RequiredApprovals)
}

func TestPublishRejectsInvalidDefinition(t *testing.T) {
	_, store := newTestEngine(t)

	def := validDefinition()
	def.Stages = nil

	_, err := store.Publish(context.Background(), def)
	assert.ErrorIs(t, err, ErrInvalidDefinition)

	defs, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, defs, "nothing may be written for a rejected publish")
}

func TestGetLatestReturnsNewestVersion(t *testing.T) {
	_, store := newTestEngine(t)
	ctx := context.Background()

	_, err := store.Publish(ctx, validDefinition())
	require.NoError(t, err)
	_, err = store.Publish(ctx, validDefinition())
	require.NoError(t, err)

	latest, err := store.GetLatest(ctx, "payment-release")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)

	_, err = store.GetLatest(ctx, "no-such-workflow")
	assert.ErrorIs(t, err, ErrDefinitionNotFound)
}
