/*
 * @module service/quality/completeness_validator
 * @description 字段完整性校验器：按必填字段统计填充率，低于下限按差距梯度定级
 * @architecture 服务层 - 校验器
 * @documentReference dev_docs/quality_engine_req.md
 * @stateFlow 逐记录统计必填字段填充情况 -> 按字段聚合填充率 -> 低于下限产出梯度Finding
 * @rules 每个低于下限的字段聚合为一条Finding；通过数按"全部必填字段齐备的记录数"计
 * @dependencies context, service/models
 * @refs service/quality/validator.go
 */

package quality

import (
	"context"
	"fmt"
	"strings"
	"time"

	"vms-quality-service/service/models"
)

// CompletenessValidator 字段完整性校验器
type CompletenessValidator struct{}

// Type 校验维度
func (v *CompletenessValidator) Type() models.ValidationType {
	return models.ValidationCompleteness
}

// Validate 执行完整性检查
func (v *CompletenessValidator) Validate(ctx context.Context, input *ValidationInput) (*ValidationResult, error) {
	required := input.Schema.RequiredFields()
	total := input.Snapshot.Count()

	result := &ValidationResult{TotalChecks: total}
	if total == 0 || len(required) == 0 {
		// 无记录或无必填字段，该维度不适用
		result.TotalChecks = 0
		return result, nil
	}

	populated := make(map[string]int64, len(required))
	var completeRecords int64

	for _, record := range input.Snapshot.Records {
		complete := true
		for _, field := range required {
			if isPopulated(record[field]) {
				populated[field]++
			} else {
				complete = false
			}
		}
		if complete {
			completeRecords++
		}
	}
	result.PassedChecks = completeRecords

	cfg := input.Config.Completeness
	now := time.Now()

	for _, field := range required {
		pct := float64(populated[field]) / float64(total) * 100.0
		if pct >= cfg.FloorPercent {
			continue
		}

		gap := cfg.FloorPercent - pct
		result.Findings = append(result.Findings, models.QualityFinding{
			EntityType:     input.Entity,
			ValidationType: models.ValidationCompleteness,
			Severity:       gapSeverity(gap, cfg),
			Tag:            models.FindingTagCheckFailed,
			FieldName:      field,
			ExpectedValue:  fmt.Sprintf("%.1f%%", cfg.FloorPercent),
			ActualValue:    fmt.Sprintf("%.1f%%", pct),
			Message: fmt.Sprintf("字段 %s 填充率 %.1f%% 低于下限 %.1f%%（%d/%d 条记录已填充）",
				field, pct, cfg.FloorPercent, populated[field], total),
			Timestamp: now,
		})
	}

	return result, nil
}

// gapSeverity 按低于下限的差距梯度定级
func gapSeverity(gap float64, cfg models.CompletenessConfig) models.Severity {
	switch {
	case gap <= cfg.WarningGap:
		return models.SeverityWarning
	case gap <= cfg.ErrorGap:
		return models.SeverityError
	default:
		return models.SeverityCritical
	}
}

// isPopulated 字段值是否视为已填充（nil、空串、纯空白视为缺失）
func isPopulated(value interface{}) bool {
	if value == nil {
		return false
	}
	if str, ok := value.(string); ok {
		return strings.TrimSpace(str) != ""
	}
	return true
}
