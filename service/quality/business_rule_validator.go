/*
 * @module service/quality/business_rule_validator
 * @description 业务规则校验器：对声明式规则的通用解释器，规则是数据而非代码
 * @architecture 服务层 - 校验器
 * @documentReference dev_docs/quality_engine_req.md
 * @stateFlow 取实体启用规则 -> 逐规则逐记录解释谓词 -> 按规则聚合失败为Finding
 * @rules 新增规则只需新增配置记录，不修改校验器；规则自带严重程度；未知规则种类视为规则配置错误
 * @dependencies context, regexp, service/meta, service/models, github.com/spf13/cast
 * @refs service/quality/expression.go, service/config/provider.go
 */

package quality

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"vms-quality-service/service/meta"
	"vms-quality-service/service/models"

	"github.com/spf13/cast"
)

// 规则种类
const (
	RuleKindFieldFormat     = "field_format"
	RuleKindCrossField      = "cross_field"
	RuleKindStateTransition = "state_transition"
	RuleKindNaming          = "naming"
	RuleKindExpression      = "expression"
)

// BusinessRuleValidator 业务规则校验器（通用规则解释器）
type BusinessRuleValidator struct {
	Evaluator *ExpressionEvaluator
}

// Type 校验维度
func (v *BusinessRuleValidator) Type() models.ValidationType {
	return models.ValidationBusinessRule
}

// Validate 解释执行实体的全部启用规则
func (v *BusinessRuleValidator) Validate(ctx context.Context, input *ValidationInput) (*ValidationResult, error) {
	rules := input.Config.RulesFor(input.Entity)
	result := &ValidationResult{}
	if len(rules) == 0 || input.Snapshot.Count() == 0 {
		return result, nil
	}

	now := time.Now()
	keyField := input.Schema.KeyField

	for _, rule := range rules {
		var failures int64
		var evaluated int64
		sampleKey := ""

		for _, record := range input.Snapshot.Records {
			passed, applicable, err := v.evaluate(rule, record)
			if err != nil {
				return nil, fmt.Errorf("规则 %s 解释失败: %w", rule.ID, err)
			}
			if !applicable {
				continue
			}
			evaluated++
			if passed {
				continue
			}
			failures++
			if sampleKey == "" {
				sampleKey = cast.ToString(record[keyField])
			}
		}

		result.TotalChecks += evaluated
		result.PassedChecks += evaluated - failures

		if failures > 0 {
			result.Findings = append(result.Findings, models.QualityFinding{
				EntityType:     input.Entity,
				ValidationType: models.ValidationBusinessRule,
				Severity:       rule.Severity,
				Tag:            models.FindingTagCheckFailed,
				FieldName:      rule.Field,
				Message: fmt.Sprintf("规则 %s(%s) 有 %d/%d 条记录未通过: %s（样例记录 %s）",
					rule.Name, rule.ID, failures, evaluated, rule.Message, sampleKey),
				Timestamp: now,
			})
		}
	}

	return result, nil
}

// evaluate 对单条记录解释单条规则
// 返回(是否通过, 是否适用, 错误)，记录缺少规则目标字段时视为不适用
func (v *BusinessRuleValidator) evaluate(rule models.BusinessRule, record map[string]interface{}) (bool, bool, error) {
	switch rule.Kind {
	case RuleKindFieldFormat:
		return v.evalFieldFormat(rule, record)
	case RuleKindCrossField:
		return v.evalCrossField(rule, record)
	case RuleKindStateTransition:
		return v.evalStateTransition(rule, record)
	case RuleKindNaming:
		return v.evalNaming(rule, record)
	case RuleKindExpression:
		source := cast.ToString(rule.Params["source"])
		if source == "" {
			return false, false, fmt.Errorf("expression规则缺少source参数")
		}
		passed, err := v.Evaluator.Eval(source, record)
		return passed, true, err
	default:
		return false, false, fmt.Errorf("未知的规则种类: %s", rule.Kind)
	}
}

// evalFieldFormat 字段格式规则：长度边界、正则、枚举
func (v *BusinessRuleValidator) evalFieldFormat(rule models.BusinessRule, record map[string]interface{}) (bool, bool, error) {
	raw, exists := record[rule.Field]
	if !exists || raw == nil {
		return true, false, nil
	}
	value := cast.ToString(raw)
	if value == "" {
		return true, false, nil
	}

	if minLen, ok := rule.Params["min_length"]; ok {
		if len(value) < cast.ToInt(minLen) {
			return false, true, nil
		}
	}
	if maxLen, ok := rule.Params["max_length"]; ok {
		if len(value) > cast.ToInt(maxLen) {
			return false, true, nil
		}
	}
	if pattern := cast.ToString(rule.Params["pattern"]); pattern != "" {
		matched, err := regexp.MatchString(pattern, value)
		if err != nil {
			return false, false, fmt.Errorf("规则正则非法: %w", err)
		}
		if !matched {
			return false, true, nil
		}
	}
	if allowed, ok := rule.Params["allowed_values"]; ok {
		values := cast.ToStringSlice(allowed)
		found := false
		for _, a := range values {
			if value == a {
				found = true
				break
			}
		}
		if !found {
			return false, true, nil
		}
	}

	return true, true, nil
}

// evalCrossField 跨字段一致性规则：left_field operator right_field
func (v *BusinessRuleValidator) evalCrossField(rule models.BusinessRule, record map[string]interface{}) (bool, bool, error) {
	leftField := cast.ToString(rule.Params["left_field"])
	rightField := cast.ToString(rule.Params["right_field"])
	operator := cast.ToString(rule.Params["operator"])
	if leftField == "" || rightField == "" || operator == "" {
		return false, false, fmt.Errorf("cross_field规则需要left_field/operator/right_field参数")
	}

	left, leftOK := record[leftField]
	right, rightOK := record[rightField]
	if !leftOK || !rightOK || left == nil || right == nil {
		return true, false, nil
	}

	switch operator {
	case "eq":
		return cast.ToString(left) == cast.ToString(right), true, nil
	case "ne":
		return cast.ToString(left) != cast.ToString(right), true, nil
	case "lte":
		l, errL := cast.ToFloat64E(left)
		r, errR := cast.ToFloat64E(right)
		if errL != nil || errR != nil {
			return false, true, nil
		}
		return l <= r, true, nil
	case "gte":
		l, errL := cast.ToFloat64E(left)
		r, errR := cast.ToFloat64E(right)
		if errL != nil || errR != nil {
			return false, true, nil
		}
		return l >= r, true, nil
	case "before", "not_after":
		l, errL := parseAnyTime(cast.ToString(left))
		r, errR := parseAnyTime(cast.ToString(right))
		if errL != nil || errR != nil {
			return false, true, nil
		}
		if operator == "before" {
			return l.Before(r), true, nil
		}
		return !l.After(r), true, nil
	default:
		return false, false, fmt.Errorf("未知的比较算子: %s", operator)
	}
}

// evalStateTransition 状态迁移合法性规则
// 记录同时携带from_field时检查(前态,现态)迁移是否合法，否则仅检查现态是否在状态机内
func (v *BusinessRuleValidator) evalStateTransition(rule models.BusinessRule, record map[string]interface{}) (bool, bool, error) {
	stateField := cast.ToString(rule.Params["field"])
	if stateField == "" {
		stateField = "status"
	}
	fromField := cast.ToString(rule.Params["from_field"])

	transitions := transitionTable(rule)
	if len(transitions) == 0 {
		return false, false, fmt.Errorf("state_transition规则缺少迁移表")
	}

	current := cast.ToString(record[stateField])
	if current == "" {
		return true, false, nil
	}

	if _, known := transitions[current]; !known {
		return false, true, nil
	}

	if fromField == "" {
		return true, true, nil
	}
	previous := cast.ToString(record[fromField])
	if previous == "" || previous == current {
		return true, true, nil
	}

	for _, next := range transitions[previous] {
		if next == current {
			return true, true, nil
		}
	}
	return false, true, nil
}

// transitionTable 取规则的状态迁移表，未内联配置时回退到领域内置状态机
func transitionTable(rule models.BusinessRule) map[string][]string {
	if raw, ok := rule.Params["transitions"]; ok {
		table := make(map[string][]string)
		for state, nexts := range cast.ToStringMap(raw) {
			table[state] = cast.ToStringSlice(nexts)
		}
		return table
	}
	if rule.Entity == models.EntityEvent {
		return meta.EventStatusTransitions
	}
	return nil
}

// evalNaming 命名约定规则：前缀/后缀/正则
func (v *BusinessRuleValidator) evalNaming(rule models.BusinessRule, record map[string]interface{}) (bool, bool, error) {
	raw, exists := record[rule.Field]
	if !exists || raw == nil {
		return true, false, nil
	}
	value := cast.ToString(raw)
	if value == "" {
		return true, false, nil
	}

	if prefix := cast.ToString(rule.Params["prefix"]); prefix != "" && !strings.HasPrefix(value, prefix) {
		return false, true, nil
	}
	if suffix := cast.ToString(rule.Params["suffix"]); suffix != "" && !strings.HasSuffix(value, suffix) {
		return false, true, nil
	}
	if pattern := cast.ToString(rule.Params["pattern"]); pattern != "" {
		matched, err := regexp.MatchString(pattern, value)
		if err != nil {
			return false, false, fmt.Errorf("命名规则正则非法: %w", err)
		}
		if !matched {
			return false, true, nil
		}
	}

	return true, true, nil
}

// parseAnyTime 按常见格式解析时间
func parseAnyTime(value string) (time.Time, error) {
	formats := []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"}
	for _, format := range formats {
		if t, err := time.Parse(format, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("无法解析时间: %s", value)
}
