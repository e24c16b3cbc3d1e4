/*
 * @module service/quality/threshold_manager
 * @description 阈值分级器：将数值得分映射为严重度档位，纯函数、只打标不改分
 * @architecture 服务层 - 评分
 * @documentReference dev_docs/quality_engine_req.md
 * @stateFlow 得分 -> 自上而下比对降序切分点 -> 严重度档位
 * @rules 分级是[0,100]的完全、不重叠划分，各档位下界含等号；阈值策略变化不需要重算得分
 * @dependencies service/models
 * @refs service/config/provider.go
 */

package quality

import (
	"fmt"

	"vms-quality-service/service/models"
)

// ClassifyScore 将得分映射为严重度档位
// 切分点降序比对：score >= Info档下界 -> info，以此类推，低于error档下界统一为critical
func ClassifyScore(score float64, thresholds models.ThresholdConfig) models.Severity {
	switch {
	case score >= thresholds.Info:
		return models.SeverityInfo
	case score >= thresholds.Warning:
		return models.SeverityWarning
	case score >= thresholds.Error:
		return models.SeverityError
	default:
		return models.SeverityCritical
	}
}

// ValidateThresholds 校验阈值切分点：必须严格降序 Critical < Error < Warning < Info 且在[0,100]内
func ValidateThresholds(t models.ThresholdConfig) error {
	cuts := []struct {
		name  string
		value float64
	}{
		{"info", t.Info},
		{"warning", t.Warning},
		{"error", t.Error},
		{"critical", t.Critical},
	}

	for _, cut := range cuts {
		if cut.value < 0 || cut.value > 100 {
			return fmt.Errorf("%w: 阈值 %s=%f 超出[0,100]", ErrConfiguration, cut.name, cut.value)
		}
	}
	for i := 1; i < len(cuts); i++ {
		if cuts[i].value >= cuts[i-1].value {
			return fmt.Errorf("%w: 阈值必须严格降序，%s(%f) >= %s(%f)",
				ErrConfiguration, cuts[i].name, cuts[i].value, cuts[i-1].name, cuts[i-1].value)
		}
	}
	return nil
}
