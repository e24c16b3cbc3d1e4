/*
 * @module service/quality/datatype_validator
 * @description 数据类型校验器：按字段元数据检查取值是否符合声明的类型与格式
 * @architecture 服务层 - 校验器
 * @documentReference dev_docs/quality_engine_req.md
 * @stateFlow 遍历有类型约束的字段 -> 逐记录检查取值 -> 按字段聚合Finding并附样例诊断
 * @rules 缺失值由完整性维度负责，此处跳过；每个含不合规值的字段产出一条带expected/actual样例的Finding
 * @dependencies context, regexp, service/meta, service/models, github.com/spf13/cast
 * @refs service/meta/entity_schema.go
 */

package quality

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"vms-quality-service/service/meta"
	"vms-quality-service/service/models"

	"github.com/spf13/cast"
)

// DataTypeValidator 数据类型校验器
type DataTypeValidator struct{}

// Type 校验维度
func (v *DataTypeValidator) Type() models.ValidationType {
	return models.ValidationDataType
}

var (
	emailPattern = regexp.MustCompile(`^[\w.+-]+@[\w.-]+\.[a-zA-Z]{2,}$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 ().-]{6,18}$`)
	urlPattern   = regexp.MustCompile(`^https?://[^\s]+$`)
)

// 日期时间解析格式，按常见程度排序
var dateTimeFormats = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"}

// Validate 执行数据类型检查
func (v *DataTypeValidator) Validate(ctx context.Context, input *ValidationInput) (*ValidationResult, error) {
	constrained := constrainedFields(input.Schema)

	result := &ValidationResult{TotalChecks: int64(len(constrained))}
	if len(constrained) == 0 || input.Snapshot.Count() == 0 {
		result.TotalChecks = 0
		return result, nil
	}

	now := time.Now()
	for _, field := range constrained {
		violations, sample := v.checkField(input.Snapshot, field)
		if violations == 0 {
			result.PassedChecks++
			continue
		}

		result.Findings = append(result.Findings, models.QualityFinding{
			EntityType:     input.Entity,
			ValidationType: models.ValidationDataType,
			Severity:       models.SeverityError,
			Tag:            models.FindingTagCheckFailed,
			FieldName:      field.Name,
			ExpectedValue:  expectedDescription(field),
			ActualValue:    sample,
			Message: fmt.Sprintf("字段 %s 存在 %d 个不符合类型 %s 的取值，样例: %q",
				field.Name, violations, field.Type, sample),
			Timestamp: now,
		})
	}

	return result, nil
}

// checkField 统计某字段的不合规取值数并保留首个样例
func (v *DataTypeValidator) checkField(snapshot *EntitySnapshot, field meta.FieldSchema) (int, string) {
	violations := 0
	sample := ""

	for _, record := range snapshot.Records {
		value, ok := record[field.Name]
		if !ok || value == nil {
			continue // 缺失值由完整性维度负责
		}
		if str, isStr := value.(string); isStr && str == "" {
			continue
		}

		if !conforms(value, field) {
			violations++
			if sample == "" {
				sample = cast.ToString(value)
			}
		}
	}

	return violations, sample
}

// conforms 取值是否符合字段声明
func conforms(value interface{}, field meta.FieldSchema) bool {
	str := cast.ToString(value)

	if field.MaxLength > 0 && len([]rune(str)) > field.MaxLength {
		return false
	}

	switch field.Type {
	case meta.FieldInt:
		_, err := cast.ToInt64E(value)
		return err == nil
	case meta.FieldFloat:
		_, err := cast.ToFloat64E(value)
		return err == nil
	case meta.FieldBool:
		_, err := cast.ToBoolE(value)
		return err == nil
	case meta.FieldDate:
		_, err := time.Parse("2006-01-02", str)
		return err == nil
	case meta.FieldDateTime:
		for _, format := range dateTimeFormats {
			if _, err := time.Parse(format, str); err == nil {
				return true
			}
		}
		return false
	case meta.FieldEnum:
		for _, allowed := range field.EnumValues {
			if str == allowed {
				return true
			}
		}
		return false
	case meta.FieldEmail:
		return emailPattern.MatchString(str)
	case meta.FieldPhone:
		return phonePattern.MatchString(str)
	case meta.FieldURL:
		return urlPattern.MatchString(str)
	case meta.FieldString:
		if field.Pattern != "" {
			matched, err := regexp.MatchString(field.Pattern, str)
			return err == nil && matched
		}
		return true
	default:
		return true
	}
}

// constrainedFields 返回带类型约束的字段（既无格式也无长度约束的纯字符串字段跳过）
func constrainedFields(schema meta.EntitySchema) []meta.FieldSchema {
	var fields []meta.FieldSchema
	for _, f := range schema.Fields {
		if f.Type == meta.FieldString && f.Pattern == "" && f.MaxLength == 0 {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

// expectedDescription 字段期望格式的诊断描述
func expectedDescription(field meta.FieldSchema) string {
	if field.Type == meta.FieldEnum {
		return fmt.Sprintf("enum%v", field.EnumValues)
	}
	if field.Pattern != "" {
		return fmt.Sprintf("%s(%s)", field.Type, field.Pattern)
	}
	if field.MaxLength > 0 {
		return fmt.Sprintf("%s(len<=%d)", field.Type, field.MaxLength)
	}
	return string(field.Type)
}
