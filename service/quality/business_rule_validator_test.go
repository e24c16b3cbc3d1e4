package quality

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vms-quality-service/service/meta"
	"vms-quality-service/service/models"
	"vms-quality-service/testutil"
)

func ruleInput(entity models.EntityType, rules []models.BusinessRule,
	records ...map[string]interface{}) *ValidationInput {

	cfg := testutil.DefaultTestConfig()
	cfg.Rules = rules
	schema, _ := meta.SchemaFor(entity)
	return &ValidationInput{
		Entity: entity,
		Schema: schema,
		Snapshot: &EntitySnapshot{
			Entity:  entity,
			Records: records,
		},
		Config: cfg,
	}
}

func newRuleValidator() *BusinessRuleValidator {
	return &BusinessRuleValidator{Evaluator: NewExpressionEvaluator()}
}

func TestBusinessRuleValidator_FieldFormat(t *testing.T) {
	v := newRuleValidator()
	rules := []models.BusinessRule{{
		ID:       "name-length",
		Name:     "姓名长度",
		Entity:   models.EntityVolunteer,
		Kind:     RuleKindFieldFormat,
		Field:    "name",
		Severity: models.SeverityWarning,
		Message:  "姓名长度不合规",
		Params:   models.JSONB{"min_length": 2, "max_length": 10},
	}}

	input := ruleInput(models.EntityVolunteer, rules,
		map[string]interface{}{"id": "v1", "name": "张三"},
		map[string]interface{}{"id": "v2", "name": "A"},
	)

	result, err := v.Validate(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.TotalChecks)
	assert.Equal(t, int64(1), result.PassedChecks)
	// 同一规则的全部失败聚合为一条Finding，严重度取自规则定义
	require.Len(t, result.Findings, 1)
	assert.Equal(t, models.SeverityWarning, result.Findings[0].Severity)
	assert.Contains(t, result.Findings[0].Message, "v2")
}

func TestBusinessRuleValidator_CrossField(t *testing.T) {
	v := newRuleValidator()
	rules := []models.BusinessRule{{
		ID:       "event-dates",
		Name:     "起止时间顺序",
		Entity:   models.EntityEvent,
		Kind:     RuleKindCrossField,
		Severity: models.SeverityError,
		Message:  "开始时间晚于结束时间",
		Params: models.JSONB{
			"left_field":  "starts_at",
			"operator":    "not_after",
			"right_field": "ends_at",
		},
	}}

	input := ruleInput(models.EntityEvent, rules,
		map[string]interface{}{"id": "e1", "starts_at": "2026-05-01T09:00:00Z", "ends_at": "2026-05-01T12:00:00Z"},
		map[string]interface{}{"id": "e2", "starts_at": "2026-05-02T09:00:00Z", "ends_at": "2026-05-01T12:00:00Z"},
		map[string]interface{}{"id": "e3", "starts_at": "2026-05-03T09:00:00Z"}, // ends_at缺失则不适用
	)

	result, err := v.Validate(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.TotalChecks)
	assert.Equal(t, int64(1), result.PassedChecks)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, models.SeverityError, result.Findings[0].Severity)
}

func TestBusinessRuleValidator_StateTransition(t *testing.T) {
	v := newRuleValidator()
	rules := []models.BusinessRule{{
		ID:       "event-status",
		Name:     "活动状态流转",
		Entity:   models.EntityEvent,
		Kind:     RuleKindStateTransition,
		Severity: models.SeverityWarning,
		Message:  "状态流转非法",
		Params:   models.JSONB{"from_field": "previous_status"},
	}}

	input := ruleInput(models.EntityEvent, rules,
		map[string]interface{}{"id": "e1", "status": "published", "previous_status": "draft"},     // 合法迁移
		map[string]interface{}{"id": "e2", "status": "completed", "previous_status": "draft"},     // 跳级迁移
		map[string]interface{}{"id": "e3", "status": "nonexistent", "previous_status": "draft"},   // 未知状态
		map[string]interface{}{"id": "e4", "status": "confirmed", "previous_status": "confirmed"}, // 无变化
	)

	result, err := v.Validate(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, int64(4), result.TotalChecks)
	assert.Equal(t, int64(2), result.PassedChecks)
	require.Len(t, result.Findings, 1)
	assert.Contains(t, result.Findings[0].Message, "2/4")
}

func TestBusinessRuleValidator_Expression(t *testing.T) {
	v := newRuleValidator()
	rules := []models.BusinessRule{{
		ID:       "hours-range",
		Name:     "参与时长范围",
		Entity:   models.EntityParticipation,
		Kind:     RuleKindExpression,
		Severity: models.SeverityWarning,
		Message:  "时长超出合理范围",
		Params: models.JSONB{
			"source": `package rules

func Check(record map[string]interface{}) bool {
	v, ok := record["hours"]
	if !ok || v == nil {
		return true
	}
	h, ok := v.(float64)
	if !ok {
		return true
	}
	return h >= 0 && h <= 24
}`,
		},
	}}

	input := ruleInput(models.EntityParticipation, rules,
		map[string]interface{}{"id": "p1", "volunteer_id": "v1", "event_id": "e1", "hours": 3.5},
		map[string]interface{}{"id": "p2", "volunteer_id": "v1", "event_id": "e1", "hours": 48.0},
	)

	result, err := v.Validate(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.TotalChecks)
	assert.Equal(t, int64(1), result.PassedChecks)
	require.Len(t, result.Findings, 1)
}

func TestBusinessRuleValidator_DisabledRuleSkipped(t *testing.T) {
	v := newRuleValidator()
	disabled := false
	rules := []models.BusinessRule{{
		ID:       "disabled-rule",
		Entity:   models.EntityVolunteer,
		Kind:     RuleKindFieldFormat,
		Field:    "name",
		Severity: models.SeverityError,
		Params:   models.JSONB{"min_length": 100},
		Enabled:  &disabled,
	}}

	input := ruleInput(models.EntityVolunteer, rules,
		map[string]interface{}{"id": "v1", "name": "短名"},
	)

	result, err := v.Validate(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.TotalChecks, "停用规则不应参与校验")
	assert.Empty(t, result.Findings)
}

func TestExpressionEvaluator_CompileCacheAndErrors(t *testing.T) {
	e := NewExpressionEvaluator()

	source := `func Check(record map[string]interface{}) bool { return record["x"] != nil }`
	require.NoError(t, e.Validate(source))

	passed, err := e.Eval(source, map[string]interface{}{"x": 1})
	require.NoError(t, err)
	assert.True(t, passed)

	passed, err = e.Eval(source, map[string]interface{}{})
	require.NoError(t, err)
	assert.False(t, passed)

	// 无Check入口的源码应拒绝
	assert.Error(t, e.Validate(`func NotCheck() bool { return true }`))
	// 语法错误应拒绝
	assert.Error(t, e.Validate(`func Check(`))
}
