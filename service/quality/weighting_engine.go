/*
 * @module service/quality/weighting_engine
 * @description 权重合成引擎：维度得分按实体权重归一化合成综合质量得分
 * @architecture 服务层 - 评分
 * @documentReference dev_docs/quality_engine_req.md
 * @stateFlow 剔除不适用维度 -> 权重重归一 -> 加权求和 -> 阈值分级
 * @rules 权重在加载期校验（无负值、和非零）；剔除不适用维度后重归一，综合分恒在[0,100]
 * @dependencies service/models
 * @refs service/quality/threshold_manager.go
 */

package quality

import (
	"fmt"

	"vms-quality-service/service/models"
)

// WeightingEngine 综合得分权重合成引擎
type WeightingEngine struct{}

// NewWeightingEngine 创建权重合成引擎
func NewWeightingEngine() *WeightingEngine {
	return &WeightingEngine{}
}

// ValidateWeights 校验维度权重：拒绝负权重与零和权重
func ValidateWeights(weights models.DimensionWeights) error {
	if len(weights) == 0 {
		return fmt.Errorf("%w: 维度权重为空", ErrConfiguration)
	}
	sum := 0.0
	for vt, w := range weights {
		if !models.IsValidValidationType(vt) {
			return fmt.Errorf("%w: 未知校验维度 %s", ErrConfiguration, vt)
		}
		if w < 0 {
			return fmt.Errorf("%w: 维度 %s 权重为负 (%f)", ErrConfiguration, vt, w)
		}
		sum += w
	}
	if sum <= 0 {
		return fmt.Errorf("%w: 维度权重之和为零，无法归一化", ErrConfiguration)
	}
	return nil
}

// CalculateComposite 合成一个实体在一次运行中的综合质量得分
// 综合分 = Σ(维度raw_score × 归一化权重)，仅对适用维度计算；
// 同时回填各维度的weighted_contribution
func (e *WeightingEngine) CalculateComposite(runID string, entity models.EntityType,
	dims []models.DimensionScore, cfg *models.QualityConfig) (models.QualityScore, []models.DimensionScore, error) {

	weights := cfg.WeightsFor(entity)
	if err := ValidateWeights(weights); err != nil {
		return models.QualityScore{}, nil, err
	}

	// 剔除不适用维度后重归一
	weightSum := 0.0
	for _, dim := range dims {
		if dim.Applicable {
			weightSum += weights[dim.ValidationType]
		}
	}

	score := models.QualityScore{
		RunID:      runID,
		EntityType: entity,
	}

	if weightSum <= 0 {
		// 全部维度不适用（例如空快照且无检查项），综合分记0并标记Critical
		score.CompositeScore = 0
		score.SeverityBand = models.SeverityCritical
		score.DimensionScores = dims
		return score, dims, nil
	}

	composite := 0.0
	for i := range dims {
		if !dims[i].Applicable {
			dims[i].WeightedContribution = 0
			continue
		}
		normalized := weights[dims[i].ValidationType] / weightSum
		dims[i].WeightedContribution = dims[i].RawScore * normalized
		composite += dims[i].WeightedContribution
	}

	score.CompositeScore = clampScore(composite)
	score.SeverityBand = ClassifyScore(score.CompositeScore, cfg.ThresholdsFor(entity))
	score.DimensionScores = dims
	return score, dims, nil
}
