/*
 * @module service/quality/relationship_validator
 * @description 关联完整性校验器：外键可解析性与基数约束检查
 * @architecture 服务层 - 校验器
 * @documentReference dev_docs/quality_engine_req.md
 * @stateFlow 收集被引用实体主键集合 -> 逐记录解析引用 -> 断裂引用产出Finding
 * @rules 必填引用缺失与引用无法解析均视为断裂；可选引用仅在有值且无法解析时报告
 * @dependencies context, service/models, github.com/spf13/cast
 * @refs service/meta/entity_schema.go
 */

package quality

import (
	"context"
	"fmt"
	"time"

	"vms-quality-service/service/models"

	"github.com/spf13/cast"
)

// RelationshipValidator 关联完整性校验器
type RelationshipValidator struct{}

// Type 校验维度
func (v *RelationshipValidator) Type() models.ValidationType {
	return models.ValidationRelationship
}

// Validate 执行关联完整性检查
func (v *RelationshipValidator) Validate(ctx context.Context, input *ValidationInput) (*ValidationResult, error) {
	refs := input.Schema.References
	result := &ValidationResult{}
	if len(refs) == 0 || input.Snapshot.Count() == 0 {
		return result, nil
	}

	now := time.Now()
	keyField := input.Schema.KeyField

	for _, ref := range refs {
		targetKeys, ok := input.RelatedKeys[ref.TargetEntity]
		if !ok {
			return nil, &DataUnavailableError{
				Provider: "snapshot",
				Err:      fmt.Errorf("被引用实体 %s 的快照不可用", ref.TargetEntity),
			}
		}

		for _, record := range input.Snapshot.Records {
			value := cast.ToString(record[ref.Field])

			if value == "" {
				if !ref.Required {
					continue // 可选引用允许为空
				}
				result.TotalChecks++
				result.Findings = append(result.Findings, models.QualityFinding{
					EntityType:     input.Entity,
					ValidationType: models.ValidationRelationship,
					Severity:       models.SeverityError,
					Tag:            models.FindingTagCheckFailed,
					FieldName:      ref.Field,
					ExpectedValue:  fmt.Sprintf("存在于 %s 的主键", ref.TargetEntity),
					ActualValue:    "",
					Message: fmt.Sprintf("记录 %s 的必填引用 %s 为空，应指向一条 %s 记录",
						cast.ToString(record[keyField]), ref.Field, ref.TargetEntity),
					Timestamp: now,
				})
				continue
			}

			result.TotalChecks++
			if _, exists := targetKeys[value]; exists {
				result.PassedChecks++
				continue
			}

			result.Findings = append(result.Findings, models.QualityFinding{
				EntityType:     input.Entity,
				ValidationType: models.ValidationRelationship,
				Severity:       models.SeverityError,
				Tag:            models.FindingTagCheckFailed,
				FieldName:      ref.Field,
				ExpectedValue:  fmt.Sprintf("存在于 %s 的主键", ref.TargetEntity),
				ActualValue:    value,
				Message: fmt.Sprintf("记录 %s 的引用 %s=%s 无法在 %s 中解析",
					cast.ToString(record[keyField]), ref.Field, value, ref.TargetEntity),
				Timestamp: now,
			})
		}
	}

	return result, nil
}
