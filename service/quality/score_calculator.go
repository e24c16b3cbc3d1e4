/*
 * @module service/quality/score_calculator
 * @description 维度得分计算器：通过率基线 + 按严重度加权的罚分相减，钳制在[0,100]
 * @architecture 服务层 - 评分
 * @documentReference dev_docs/quality_engine_req.md
 * @stateFlow Finding汇总 -> 基线分 -> 逐Finding罚分 -> 钳制 -> 维度分级
 * @rules total_checks为0返回不适用哨兵而非0或100；得分随Finding增多单调不增
 * @dependencies service/models
 * @refs service/quality/weighting_engine.go
 */

package quality

import (
	"vms-quality-service/service/models"
)

// ScoreCalculator 维度得分计算器
type ScoreCalculator struct{}

// NewScoreCalculator 创建维度得分计算器
func NewScoreCalculator() *ScoreCalculator {
	return &ScoreCalculator{}
}

// CalculateDimensionScore 由一个(实体,维度)的校验结果计算维度得分
// 两段式模型：先按通过率计基线分，再对每条Finding按严重度权重×维度罚分系数扣分。
// 大多数检查通过但存在Critical Finding的维度仍会被显著压低；大量Info级Finding则平缓降级。
func (c *ScoreCalculator) CalculateDimensionScore(runID string, entity models.EntityType,
	vt models.ValidationType, result *ValidationResult, cfg *models.QualityConfig) models.DimensionScore {

	score := models.DimensionScore{
		RunID:          runID,
		EntityType:     entity,
		ValidationType: vt,
		TotalChecks:    result.TotalChecks,
		PassedChecks:   result.PassedChecks,
		FindingCount:   len(result.Findings),
	}

	if result.TotalChecks == 0 {
		// 无检查项的维度不适用，由权重引擎从合成中剔除并重归一
		score.Applicable = false
		return score
	}

	score.Applicable = true
	raw := 100.0 * float64(result.PassedChecks) / float64(result.TotalChecks)

	multiplier := cfg.PenaltyMultipliers[vt]
	if multiplier <= 0 {
		multiplier = 1.0
	}
	for _, finding := range result.Findings {
		raw -= cfg.SeverityWeights.Weight(finding.Severity) * multiplier
	}

	score.RawScore = clampScore(raw)
	score.SeverityBand = ClassifyScore(score.RawScore, cfg.ThresholdsFor(entity))
	return score
}

// clampScore 钳制到[0,100]
func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
