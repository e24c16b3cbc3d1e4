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

func datatypeInput(entity models.EntityType, records ...map[string]interface{}) *ValidationInput {
	schema, _ := meta.SchemaFor(entity)
	return &ValidationInput{
		Entity: entity,
		Schema: schema,
		Snapshot: &EntitySnapshot{
			Entity:  entity,
			Records: records,
		},
		Config: testutil.DefaultTestConfig(),
	}
}

func TestDataTypeValidator_AllConforming(t *testing.T) {
	v := &DataTypeValidator{}
	input := datatypeInput(models.EntityVolunteer, map[string]interface{}{
		"id":          "v1",
		"email":       "a@example.org",
		"phone":       "+1 415 555-0134",
		"status":      "active",
		"joined_at":   "2024-03-01",
		"hours_total": 12.5,
	})

	result, err := v.Validate(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, result.TotalChecks, result.PassedChecks)
	assert.Empty(t, result.Findings)
}

func TestDataTypeValidator_ViolationsAggregatedPerField(t *testing.T) {
	v := &DataTypeValidator{}
	input := datatypeInput(models.EntityVolunteer,
		map[string]interface{}{"id": "v1", "email": "not-an-email", "status": "active"},
		map[string]interface{}{"id": "v2", "email": "also@bad", "status": "active"},
		map[string]interface{}{"id": "v3", "email": "ok@example.org", "status": "unknown_state"},
	)

	result, err := v.Validate(context.Background(), input)
	require.NoError(t, err)

	// email与status各聚合为一条Finding，而非逐记录一条
	require.Len(t, result.Findings, 2)
	byField := map[string]models.QualityFinding{}
	for _, f := range result.Findings {
		byField[f.FieldName] = f
		assert.Equal(t, models.SeverityError, f.Severity)
		assert.NotEmpty(t, f.ExpectedValue)
		assert.NotEmpty(t, f.ActualValue, "Finding应携带不合规样例便于诊断")
	}
	assert.Contains(t, byField, "email")
	assert.Contains(t, byField, "status")
}

func TestDataTypeValidator_MaxLengthEnforced(t *testing.T) {
	v := &DataTypeValidator{}
	long := make([]rune, 0, 130)
	for i := 0; i < 130; i++ {
		long = append(long, '名')
	}
	input := datatypeInput(models.EntityVolunteer,
		map[string]interface{}{"id": "v1", "name": "正常姓名", "email": "a@example.org"},
		map[string]interface{}{"id": "v2", "name": string(long), "email": "b@example.org"},
	)

	result, err := v.Validate(context.Background(), input)
	require.NoError(t, err)

	var found bool
	for _, f := range result.Findings {
		if f.FieldName == "name" {
			found = true
			assert.Contains(t, f.ExpectedValue, "len<=120")
		}
	}
	assert.True(t, found, "超出声明最大长度的取值应产出Finding")
}

func TestDataTypeValidator_MissingValuesSkipped(t *testing.T) {
	v := &DataTypeValidator{}
	// 缺失与空串值属于完整性维度，类型检查不重复计失败
	input := datatypeInput(models.EntityVolunteer,
		map[string]interface{}{"id": "v1", "email": nil, "status": ""},
	)

	result, err := v.Validate(context.Background(), input)
	require.NoError(t, err)
	assert.Empty(t, result.Findings)
	assert.Equal(t, result.TotalChecks, result.PassedChecks)
}

func TestDataTypeValidator_DateTimeFormats(t *testing.T) {
	v := &DataTypeValidator{}
	input := datatypeInput(models.EntityEvent,
		map[string]interface{}{"id": "e1", "status": "published", "starts_at": "2026-05-01T09:00:00Z"},
		map[string]interface{}{"id": "e2", "status": "published", "starts_at": "2026-05-01 09:00:00"},
	)

	result, err := v.Validate(context.Background(), input)
	require.NoError(t, err)
	for _, f := range result.Findings {
		assert.NotEqual(t, "starts_at", f.FieldName, "两种常见日期时间格式都应被接受")
	}
}

func TestDataTypeValidator_EmptySnapshotNotApplicable(t *testing.T) {
	v := &DataTypeValidator{}
	input := datatypeInput(models.EntityVolunteer)

	result, err := v.Validate(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.TotalChecks)
}
