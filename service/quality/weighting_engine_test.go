package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vms-quality-service/service/models"
	"vms-quality-service/testutil"
)

func dim(vt models.ValidationType, raw float64, applicable bool) models.DimensionScore {
	return models.DimensionScore{
		RunID:          "run-1",
		EntityType:     models.EntityVolunteer,
		ValidationType: vt,
		Applicable:     applicable,
		RawScore:       raw,
		TotalChecks:    10,
	}
}

func TestValidateWeights(t *testing.T) {
	assert.ErrorIs(t, ValidateWeights(nil), ErrConfiguration)
	assert.ErrorIs(t, ValidateWeights(models.DimensionWeights{
		models.ValidationCount: -0.5,
	}), ErrConfiguration)
	assert.ErrorIs(t, ValidateWeights(models.DimensionWeights{
		models.ValidationCount:        0,
		models.ValidationCompleteness: 0,
	}), ErrConfiguration)
	assert.ErrorIs(t, ValidateWeights(models.DimensionWeights{
		"nonsense": 1.0,
	}), ErrConfiguration)

	assert.NoError(t, ValidateWeights(models.DimensionWeights{
		models.ValidationCount:        0.5,
		models.ValidationCompleteness: 0.5,
	}))
}

func TestCalculateComposite_WeightedSum(t *testing.T) {
	engine := NewWeightingEngine()
	cfg := testutil.DefaultTestConfig()
	cfg.DefaultWeights = models.DimensionWeights{
		models.ValidationCompleteness: 0.25,
		models.ValidationDataType:     0.30,
		models.ValidationRelationship: 0.25,
		models.ValidationBusinessRule: 0.20,
	}

	dims := []models.DimensionScore{
		dim(models.ValidationCompleteness, 90.0, true),
		dim(models.ValidationDataType, 100.0, true),
		dim(models.ValidationRelationship, 83.9, true),
		dim(models.ValidationBusinessRule, 100.0, true),
	}

	score, dims, err := engine.CalculateComposite("run-1", models.EntityVolunteer, dims, cfg)
	require.NoError(t, err)

	// 0.25*90 + 0.30*100 + 0.25*83.9 + 0.20*100 = 93.475
	assert.InDelta(t, 93.475, score.CompositeScore, 1e-9)
	assert.Equal(t, models.SeverityWarning, score.SeverityBand)

	var contributionSum float64
	for _, d := range dims {
		contributionSum += d.WeightedContribution
	}
	assert.InDelta(t, score.CompositeScore, contributionSum, 1e-9)
}

func TestCalculateComposite_RenormalizesOverApplicable(t *testing.T) {
	engine := NewWeightingEngine()
	cfg := testutil.DefaultTestConfig()

	// count维度不适用：其权重应在剩余维度间重归一，而非视count为0分
	dims := []models.DimensionScore{
		dim(models.ValidationCount, 0, false),
		dim(models.ValidationCompleteness, 80.0, true),
		dim(models.ValidationDataType, 80.0, true),
		dim(models.ValidationRelationship, 80.0, true),
		dim(models.ValidationBusinessRule, 80.0, true),
	}

	score, dims, err := engine.CalculateComposite("run-1", models.EntityVolunteer, dims, cfg)
	require.NoError(t, err)

	// 全部适用维度均为80分时，无论权重如何归一，综合分必为80
	assert.InDelta(t, 80.0, score.CompositeScore, 1e-6)
	assert.Equal(t, float64(0), dims[0].WeightedContribution)
}

func TestCalculateComposite_AllNotApplicable(t *testing.T) {
	engine := NewWeightingEngine()
	cfg := testutil.DefaultTestConfig()

	dims := []models.DimensionScore{
		dim(models.ValidationCount, 0, false),
		dim(models.ValidationCompleteness, 0, false),
	}

	score, _, err := engine.CalculateComposite("run-1", models.EntityVolunteer, dims, cfg)
	require.NoError(t, err)
	assert.Equal(t, float64(0), score.CompositeScore)
	assert.Equal(t, models.SeverityCritical, score.SeverityBand)
}

func TestCalculateComposite_EntityWeightOverride(t *testing.T) {
	engine := NewWeightingEngine()
	cfg := testutil.DefaultTestConfig()
	cfg.EntityWeights = map[models.EntityType]models.DimensionWeights{
		models.EntityVolunteer: {
			models.ValidationCompleteness: 1.0,
		},
	}

	dims := []models.DimensionScore{
		dim(models.ValidationCompleteness, 70.0, true),
		dim(models.ValidationDataType, 100.0, true),
	}

	score, _, err := engine.CalculateComposite("run-1", models.EntityVolunteer, dims, cfg)
	require.NoError(t, err)
	// data_type在该实体的权重表中为0，综合分完全由completeness决定
	assert.InDelta(t, 70.0, score.CompositeScore, 1e-9)
}
