package quality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"vms-quality-service/service/models"
	"vms-quality-service/testutil"
)

func finding(sev models.Severity) models.QualityFinding {
	return models.QualityFinding{
		EntityType:     models.EntityVolunteer,
		ValidationType: models.ValidationCompleteness,
		Severity:       sev,
		Tag:            models.FindingTagCheckFailed,
		Message:        "test",
		Timestamp:      time.Now(),
	}
}

func TestCalculateDimensionScore_NotApplicableWhenNoChecks(t *testing.T) {
	calc := NewScoreCalculator()
	cfg := testutil.DefaultTestConfig()

	score := calc.CalculateDimensionScore("run-1", models.EntityVolunteer,
		models.ValidationCompleteness, &ValidationResult{TotalChecks: 0}, cfg)

	assert.False(t, score.Applicable, "无检查项的维度应为不适用哨兵而非0分或100分")
	assert.Equal(t, float64(0), score.RawScore)
}

func TestCalculateDimensionScore_PassRateBaseline(t *testing.T) {
	calc := NewScoreCalculator()
	cfg := testutil.DefaultTestConfig()

	score := calc.CalculateDimensionScore("run-1", models.EntityVolunteer,
		models.ValidationCompleteness,
		&ValidationResult{TotalChecks: 100, PassedChecks: 90}, cfg)

	assert.True(t, score.Applicable)
	assert.InDelta(t, 90.0, score.RawScore, 1e-9)
	assert.Equal(t, models.SeverityWarning, score.SeverityBand)
}

func TestCalculateDimensionScore_SeverityWeightedPenalty(t *testing.T) {
	calc := NewScoreCalculator()
	cfg := testutil.DefaultTestConfig()

	// 通过率100%但带一条Critical：100 - 1.0*10 = 90
	result := &ValidationResult{
		TotalChecks:  10,
		PassedChecks: 10,
		Findings:     []models.QualityFinding{finding(models.SeverityCritical)},
	}
	score := calc.CalculateDimensionScore("run-1", models.EntityVolunteer,
		models.ValidationCompleteness, result, cfg)
	assert.InDelta(t, 90.0, score.RawScore, 1e-9)

	// Info级Finding的罚分更平缓：100 - 0.2*10 = 98
	result.Findings = []models.QualityFinding{finding(models.SeverityInfo)}
	score = calc.CalculateDimensionScore("run-1", models.EntityVolunteer,
		models.ValidationCompleteness, result, cfg)
	assert.InDelta(t, 98.0, score.RawScore, 1e-9)
}

func TestCalculateDimensionScore_MonotonicNonIncreasing(t *testing.T) {
	calc := NewScoreCalculator()
	cfg := testutil.DefaultTestConfig()

	result := &ValidationResult{TotalChecks: 10, PassedChecks: 8}
	previous := 101.0
	for i := 0; i < 20; i++ {
		score := calc.CalculateDimensionScore("run-1", models.EntityVolunteer,
			models.ValidationDataType, result, cfg)
		assert.LessOrEqual(t, score.RawScore, previous, "得分应随Finding增多单调不增")
		previous = score.RawScore
		result.Findings = append(result.Findings, finding(models.SeverityError))
	}
}

func TestCalculateDimensionScore_ClampedToRange(t *testing.T) {
	calc := NewScoreCalculator()
	cfg := testutil.DefaultTestConfig()

	// 大量Critical把分数压穿0，应钳制到0
	result := &ValidationResult{TotalChecks: 10, PassedChecks: 10}
	for i := 0; i < 50; i++ {
		result.Findings = append(result.Findings, finding(models.SeverityCritical))
	}
	score := calc.CalculateDimensionScore("run-1", models.EntityVolunteer,
		models.ValidationCompleteness, result, cfg)

	assert.Equal(t, float64(0), score.RawScore)
	assert.Equal(t, models.SeverityCritical, score.SeverityBand)
}
