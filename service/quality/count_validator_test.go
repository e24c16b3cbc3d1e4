package quality

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vms-quality-service/service/meta"
	"vms-quality-service/service/models"
	"vms-quality-service/testutil"
)

// fakeRefCounts 固定返回值的权威计数提供方
type fakeRefCounts struct {
	count int64
	err   error
}

func (f *fakeRefCounts) GetReferenceCount(ctx context.Context, entity models.EntityType,
	filters map[string]interface{}) (int64, error) {
	return f.count, f.err
}

func volunteerSnapshot(records ...map[string]interface{}) *EntitySnapshot {
	return &EntitySnapshot{
		Entity:  models.EntityVolunteer,
		Records: records,
		TakenAt: time.Now(),
	}
}

func countInput(snapshot *EntitySnapshot, refCount int64, cfg models.CountCheckConfig) *ValidationInput {
	config := testutil.DefaultTestConfig()
	config.CountChecks = map[models.EntityType]models.CountCheckConfig{
		models.EntityVolunteer: cfg,
	}
	schema, _ := meta.SchemaFor(models.EntityVolunteer)
	return &ValidationInput{
		Entity:    models.EntityVolunteer,
		Schema:    schema,
		Snapshot:  snapshot,
		Config:    config,
		RefCounts: &fakeRefCounts{count: refCount},
	}
}

func TestCountValidator_ExactMatch(t *testing.T) {
	v := &CountValidator{}
	input := countInput(volunteerSnapshot(
		testutil.VolunteerRecord("v1", "A", "a@example.org"),
		testutil.VolunteerRecord("v2", "B", "b@example.org"),
	), 2, models.CountCheckConfig{})

	result, err := v.Validate(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.TotalChecks)
	assert.Equal(t, int64(1), result.PassedChecks)
	assert.Empty(t, result.Findings)
}

func TestCountValidator_ScopeAdjustmentExplainsMismatch(t *testing.T) {
	v := &CountValidator{}

	// 原始本地5条，其中2条status=archived被导入范围有意排除；权威计数3
	records := []map[string]interface{}{
		{"id": "v1", "status": "active"},
		{"id": "v2", "status": "active"},
		{"id": "v3", "status": "pending"},
		{"id": "v4", "status": "archived"},
		{"id": "v5", "status": "archived"},
	}
	input := countInput(volunteerSnapshot(records...), 3, models.CountCheckConfig{
		Exclusions: []models.ExclusionFilter{{Field: "status", Values: []string{"archived"}}},
	})

	result, err := v.Validate(context.Background(), input)
	require.NoError(t, err)

	// 调整后一致：检查通过，但保留一条Info级说明而非Error
	assert.Equal(t, int64(1), result.PassedChecks)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, models.SeverityInfo, result.Findings[0].Severity)
	assert.Equal(t, models.FindingTagScopeAdjustment, result.Findings[0].Tag)
}

func TestCountValidator_BeyondTolerance(t *testing.T) {
	v := &CountValidator{}
	input := countInput(volunteerSnapshot(
		testutil.VolunteerRecord("v1", "A", "a@example.org"),
	), 10, models.CountCheckConfig{TolerancePercent: 5})

	result, err := v.Validate(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.PassedChecks)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, models.SeverityError, result.Findings[0].Severity)
	assert.Equal(t, models.FindingTagCheckFailed, result.Findings[0].Tag)
}

func TestCountValidator_WithinTolerance(t *testing.T) {
	v := &CountValidator{}
	records := make([]map[string]interface{}, 98)
	for i := range records {
		records[i] = map[string]interface{}{"id": fmt.Sprintf("v%d", i)}
	}
	input := countInput(volunteerSnapshot(records...), 100, models.CountCheckConfig{TolerancePercent: 5})

	result, err := v.Validate(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.PassedChecks)
	assert.Empty(t, result.Findings)
}

func TestCountValidator_ReferenceUnavailable(t *testing.T) {
	v := &CountValidator{}
	input := countInput(volunteerSnapshot(), 0, models.CountCheckConfig{})
	input.RefCounts = &fakeRefCounts{err: fmt.Errorf("connection refused")}

	_, err := v.Validate(context.Background(), input)
	require.Error(t, err)
	assert.True(t, IsDataUnavailable(err), "上游不可达应归因为数据不可用而非检查失败")
}

func TestCountValidator_Idempotent(t *testing.T) {
	v := &CountValidator{}
	input := countInput(volunteerSnapshot(
		testutil.VolunteerRecord("v1", "A", "a@example.org"),
	), 5, models.CountCheckConfig{})

	first, err := v.Validate(context.Background(), input)
	require.NoError(t, err)
	second, err := v.Validate(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, first.PassedChecks, second.PassedChecks)
	assert.Len(t, second.Findings, len(first.Findings))
}
