package workflow

import (
	"testing"

	"github.com/nimbusbank/approval-engine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }
func strPtr(v string) *string { return &v }

func twoStageDefinition(amountBased bool) *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		ID:          1,
		Name:        "payment-release",
		Version:     1,
		AmountBased: amountBased,
		Stages: []models.StageTemplate{
			{StageOrder: 1, StageKey: "CHECKER", ApproverGroup: "ops-checkers", RequiredApprovals: 2, SLAHours: 24},
			{StageOrder: 2, StageKey: "MANAGER", ApproverGroup: "ops-managers", RequiredApprovals: 1, SLAHours: 48},
		},
	}
}

func TestResolvePlanNonAmountBased(t *testing.T) {
	def := twoStageDefinition(false)

	plan, err := ResolvePlan(def, 999999, "USD")
	require.NoError(t, err)
	require.Len(t, plan, 2)

	assert.Equal(t, 2, plan[0].RequiredApprovals)
	assert.Equal(t, "ops-checkers", plan[0].ApproverGroup)
	assert.Equal(t, 1, plan[1].RequiredApprovals)
}

func TestResolvePlanAppliesOverrides(t *testing.T) {
	def := twoStageDefinition(true)
	def.AmountRules = []models.AmountRule{
		{
			Currency: "USD", MinAmount: 0, MaxAmount: int64Ptr(100000), Priority: 10,
		},
		{
			Currency: "USD", MinAmount: 100000, MaxAmount: nil, Priority: 10,
			Overrides: []models.StageOverride{
				{StageOrder: 1, RequiredApprovals: intPtr(3)},
				{StageOrder: 2, ApproverGroup: strPtr("senior-managers")},
			},
		},
	}

	// Above the threshold: stage 1 quorum raised, stage 2 group swapped.
	plan, err := ResolvePlan(def, 150000, "USD")
	require.NoError(t, err)
	assert.Equal(t, 3, plan[0].RequiredApprovals)
	assert.Equal(t, "ops-checkers", plan[0].ApproverGroup)
	assert.Equal(t, 1, plan[1].RequiredApprovals)
	assert.Equal(t, "senior-managers", plan[1].ApproverGroup)

	// Below the threshold: template defaults untouched.
	plan, err = ResolvePlan(def, 50000, "USD")
	require.NoError(t, err)
	assert.Equal(t, 2, plan[0].RequiredApprovals)
	assert.Equal(t, "ops-managers", plan[1].ApproverGroup)
}

func TestResolvePlanRangeBoundaries(t *testing.T) {
	def := twoStageDefinition(true)
	def.AmountRules = []models.AmountRule{
		{Currency: "USD", MinAmount: 1000, MaxAmount: int64Ptr(5000), Priority: 1},
	}

	tests := []struct {
		name    string
		amount  int64
		wantErr error
	}{
		{name: "below minimum", amount: 999, wantErr: ErrNoApplicableRule},
		{name: "at minimum is inclusive", amount: 1000},
		{name: "inside range", amount: 3000},
		{name: "at maximum is exclusive", amount: 5000, wantErr: ErrNoApplicableRule},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolvePlan(def, tt.amount, "USD")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResolvePlanNoApplicableRule(t *testing.T) {
	def := twoStageDefinition(true)
	def.AmountRules = []models.AmountRule{
		{Currency: "EUR", MinAmount: 0, Priority: 1},
	}

	// Currency with no rule coverage must fail, never fall back to the
	// template defaults.
	_, err := ResolvePlan(def, 100, "USD")
	assert.ErrorIs(t, err, ErrNoApplicableRule)
}

func TestResolvePlanAmbiguousRules(t *testing.T) {
	def := twoStageDefinition(true)
	def.AmountRules = []models.AmountRule{
		{Currency: "USD", MinAmount: 0, MaxAmount: int64Ptr(10000), Priority: 5},
		{Currency: "USD", MinAmount: 5000, MaxAmount: nil, Priority: 5},
	}

	_, err := ResolvePlan(def, 7000, "USD")
	assert.ErrorIs(t, err, ErrAmbiguousRule)

	// Outside the overlap only one rule matches.
	_, err = ResolvePlan(def, 2000, "USD")
	assert.NoError(t, err)
}

func TestResolvePlanLowestPriorityWins(t *testing.T) {
	def := twoStageDefinition(true)
	def.AmountRules = []models.AmountRule{
		{Currency: "USD", MinAmount: 0, Priority: 20,
			Overrides: []models.StageOverride{{StageOrder: 1, RequiredApprovals: intPtr(5)}}},
		{Currency: "USD", MinAmount: 0, Priority: 3,
			Overrides: []models.StageOverride{{StageOrder: 1, RequiredApprovals: intPtr(4)}}},
	}

	plan, err := ResolvePlan(def, 100, "USD")
	require.NoError(t, err)
	assert.Equal(t, 4, plan[0].RequiredApprovals)
}

func TestResolvePlanIsDeterministic(t *testing.T) {
	def := twoStageDefinition(true)
	def.AmountRules = []models.AmountRule{
		{Currency: "USD", MinAmount: 0, Priority: 1,
			Overrides: []models.StageOverride{{StageOrder: 1, RequiredApprovals: intPtr(3)}}},
	}

	first, err := ResolvePlan(def, 42, "USD")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := ResolvePlan(def, 42, "USD")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestResolvePlanDoesNotMutateDefinition(t *testing.T) {
	def := twoStageDefinition(true)
	def.AmountRules = []models.AmountRule{
		{Currency: "USD", MinAmount: 0, Priority: 1,
			Overrides: []models.StageOverride{{StageOrder: 1, RequiredApprovals: intPtr(9)}}},
	}

	_, err := ResolvePlan(def, 42, "USD")
	require.NoError(t, err)

	assert.Equal(t, 2, def.Stages[0].RequiredApprovals, "template must stay frozen")
}
