package quality

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vms-quality-service/service/meta"
	"vms-quality-service/service/models"
	"vms-quality-service/testutil"
)

func completenessInput(snapshot *EntitySnapshot) *ValidationInput {
	schema, _ := meta.SchemaFor(models.EntityVolunteer)
	return &ValidationInput{
		Entity:   models.EntityVolunteer,
		Schema:   schema,
		Snapshot: snapshot,
		Config:   testutil.DefaultTestConfig(),
	}
}

func TestCompletenessValidator_PassRatePerRecord(t *testing.T) {
	v := &CompletenessValidator{}

	// 100条记录，90条必填齐备，10条缺email
	records := make([]map[string]interface{}, 0, 100)
	for i := 0; i < 90; i++ {
		records = append(records, testutil.VolunteerRecord(fmt.Sprintf("v%d", i), "Name", "a@example.org"))
	}
	for i := 90; i < 100; i++ {
		records = append(records, testutil.VolunteerRecord(fmt.Sprintf("v%d", i), "Name", ""))
	}

	result, err := v.Validate(context.Background(), completenessInput(volunteerSnapshot(records...)))
	require.NoError(t, err)

	assert.Equal(t, int64(100), result.TotalChecks)
	assert.Equal(t, int64(90), result.PassedChecks)

	// email填充率90%，低于下限95%，差距5 -> Warning
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "email", result.Findings[0].FieldName)
	assert.Equal(t, models.SeverityWarning, result.Findings[0].Severity)
}

func TestCompletenessValidator_GapGradient(t *testing.T) {
	v := &CompletenessValidator{}

	makeRecords := func(missing int) []map[string]interface{} {
		records := make([]map[string]interface{}, 0, 100)
		for i := 0; i < 100-missing; i++ {
			records = append(records, testutil.VolunteerRecord(fmt.Sprintf("v%d", i), "Name", "a@example.org"))
		}
		for i := 100 - missing; i < 100; i++ {
			records = append(records, testutil.VolunteerRecord(fmt.Sprintf("v%d", i), "Name", "   "))
		}
		return records
	}

	cases := []struct {
		missing int
		want    models.Severity
	}{
		{8, models.SeverityWarning},   // 填充率92%，差距3 <= warning_gap 5
		{15, models.SeverityError},    // 填充率85%，差距10 <= error_gap 15
		{40, models.SeverityCritical}, // 填充率60%，差距35
	}
	for _, c := range cases {
		result, err := v.Validate(context.Background(), completenessInput(volunteerSnapshot(makeRecords(c.missing)...)))
		require.NoError(t, err)
		require.Len(t, result.Findings, 1, "missing=%d", c.missing)
		assert.Equal(t, c.want, result.Findings[0].Severity, "missing=%d", c.missing)
	}
}

func TestCompletenessValidator_WhitespaceCountsAsMissing(t *testing.T) {
	v := &CompletenessValidator{}
	records := []map[string]interface{}{
		{"id": "v1", "name": "  ", "email": "a@example.org"},
	}

	result, err := v.Validate(context.Background(), completenessInput(volunteerSnapshot(records...)))
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.PassedChecks)
}

func TestCompletenessValidator_EmptySnapshotNotApplicable(t *testing.T) {
	v := &CompletenessValidator{}

	result, err := v.Validate(context.Background(), completenessInput(volunteerSnapshot()))
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.TotalChecks, "空快照应返回不适用而非满分或0分")
	assert.Empty(t, result.Findings)
}
