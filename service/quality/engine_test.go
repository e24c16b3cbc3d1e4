package quality

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vms-quality-service/service/alerting"
	"vms-quality-service/service/models"
	"vms-quality-service/testutil"
)

// brokenLock 始终无法取锁的分布式锁
type brokenLock struct{}

func (brokenLock) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return false, fmt.Errorf("lock backend unreachable")
}

func (brokenLock) Unlock(ctx context.Context, key string) error { return nil }

func (brokenLock) Refresh(ctx context.Context, key string, ttl time.Duration) error {
	return fmt.Errorf("lock backend unreachable")
}

func (brokenLock) IsLocked(ctx context.Context, key string) (bool, error) {
	return false, fmt.Errorf("lock backend unreachable")
}

// mapSnapshotProvider 以内存表驱动的快照提供方
type mapSnapshotProvider struct {
	snapshots map[models.EntityType][]map[string]interface{}
	failFor   map[models.EntityType]bool
}

func (p *mapSnapshotProvider) GetSnapshot(ctx context.Context, entity models.EntityType) (*EntitySnapshot, error) {
	if p.failFor[entity] {
		return nil, fmt.Errorf("snapshot source down")
	}
	return &EntitySnapshot{
		Entity:  entity,
		Records: p.snapshots[entity],
		TakenAt: time.Now(),
	}, nil
}

// mapRefCounts 按实体返回预设权威计数
type mapRefCounts struct {
	counts map[models.EntityType]int64
	err    error
}

func (p *mapRefCounts) GetReferenceCount(ctx context.Context, entity models.EntityType,
	filters map[string]interface{}) (int64, error) {
	if p.err != nil {
		return 0, p.err
	}
	return p.counts[entity], nil
}

// capturingPublisher 收集发布的告警事件
type capturingPublisher struct {
	mu     sync.Mutex
	events []alerting.AlertEvent
}

func (p *capturingPublisher) Publish(ctx context.Context, event alerting.AlertEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) Close() error { return nil }

func (p *capturingPublisher) kinds() []alerting.AlertKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	kinds := make([]alerting.AlertKind, 0, len(p.events))
	for _, e := range p.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func healthyVolunteerData() *mapSnapshotProvider {
	return &mapSnapshotProvider{
		snapshots: map[models.EntityType][]map[string]interface{}{
			models.EntityVolunteer: {
				{"id": "v1", "name": "Ada", "email": "ada@example.org", "status": "active", "organization_id": "o1"},
				{"id": "v2", "name": "Lin", "email": "lin@example.org", "status": "active", "organization_id": "o1"},
				{"id": "v3", "name": "Sam", "email": "sam@example.org", "status": "pending", "organization_id": ""},
			},
			models.EntityOrganization: {
				{"id": "o1", "name": "Acme School", "type": "school"},
			},
		},
		failFor: map[models.EntityType]bool{},
	}
}

func newTestEngine(t *testing.T, tdb *testutil.TestDB, snapshots SnapshotProvider,
	refCounts ReferenceCountProvider, alerts alerting.AlertPublisher,
	cfg *models.QualityConfig) *ValidationEngine {
	t.Helper()
	return NewValidationEngine(tdb.DB, snapshots, refCounts, nil, alerts, nil,
		func() *models.QualityConfig { return cfg })
}

func TestRunValidation_CompletedRun(t *testing.T) {
	tdb := testutil.NewTestDB()
	defer tdb.Close()

	engine := newTestEngine(t, tdb, healthyVolunteerData(),
		&mapRefCounts{counts: map[models.EntityType]int64{models.EntityVolunteer: 3}},
		alerting.NopPublisher{}, testutil.DefaultTestConfig())

	run, err := engine.RunValidation(context.Background(), "volunteer", nil)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.NotNil(t, run.FinishedAt)
	assert.Greater(t, run.TotalChecks, int64(0))
	assert.Equal(t, run.TotalChecks, run.PassedChecks)

	// 综合得分已落库且可经latest语义取回
	score, err := engine.GetQualityScore(context.Background(), models.EntityVolunteer, "latest")
	require.NoError(t, err)
	assert.Equal(t, run.ID, score.RunID)
	assert.InDelta(t, 100.0, score.CompositeScore, 1e-9)
	assert.NotEmpty(t, score.DimensionScores)
}

func TestRunValidation_PartialFailureOnReferenceOutage(t *testing.T) {
	tdb := testutil.NewTestDB()
	defer tdb.Close()

	engine := newTestEngine(t, tdb, healthyVolunteerData(),
		&mapRefCounts{err: fmt.Errorf("registry unreachable")},
		alerting.NopPublisher{}, testutil.DefaultTestConfig())

	run, err := engine.RunValidation(context.Background(), "volunteer", nil)
	require.NoError(t, err, "单个校验器失败不应中止运行")

	assert.Equal(t, models.RunStatusPartialFailure, run.Status)
	require.NotNil(t, run.FailedValidators)

	// 失败的count维度降级为data_unavailable类Critical Finding
	full, err := engine.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	var unavailable int
	for _, f := range full.Findings {
		if f.Tag == models.FindingTagDataUnavailable {
			unavailable++
			assert.Equal(t, models.SeverityCritical, f.Severity)
		}
	}
	assert.Equal(t, 1, unavailable)
}

func TestRunValidation_SnapshotOutageDegradesAllDimensions(t *testing.T) {
	tdb := testutil.NewTestDB()
	defer tdb.Close()

	snapshots := healthyVolunteerData()
	snapshots.failFor[models.EntityVolunteer] = true

	engine := newTestEngine(t, tdb, snapshots,
		&mapRefCounts{counts: map[models.EntityType]int64{}},
		alerting.NopPublisher{}, testutil.DefaultTestConfig())

	run, err := engine.RunValidation(context.Background(), "volunteer", nil)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusPartialFailure, run.Status)

	full, err := engine.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	// 请求的五个维度各有一条data_unavailable Finding
	assert.Len(t, full.Findings, len(models.AllValidationTypes()))
	for _, f := range full.Findings {
		assert.Equal(t, models.FindingTagDataUnavailable, f.Tag)
	}
}

func TestRunValidation_InvalidConfigFailsRun(t *testing.T) {
	tdb := testutil.NewTestDB()
	defer tdb.Close()

	cfg := testutil.DefaultTestConfig()
	cfg.DefaultWeights = models.DimensionWeights{models.ValidationCount: -1}

	publisher := &capturingPublisher{}
	engine := newTestEngine(t, tdb, healthyVolunteerData(),
		&mapRefCounts{}, publisher, cfg)

	run, err := engine.RunValidation(context.Background(), "volunteer", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
	require.NotNil(t, run)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.NotEmpty(t, run.ErrorMessage)
	assert.Contains(t, publisher.kinds(), alerting.AlertRunFailed)
}

func TestRunValidation_AllEntitiesFailedIsPartialFailure(t *testing.T) {
	tdb := testutil.NewTestDB()
	defer tdb.Close()

	// failed状态仅保留给配置非法的运行；执行期全体实体失败也只降级为partial_failure
	engine := NewValidationEngine(tdb.DB, healthyVolunteerData(),
		&mapRefCounts{counts: map[models.EntityType]int64{models.EntityVolunteer: 3}},
		nil, alerting.NopPublisher{}, brokenLock{},
		func() *models.QualityConfig { return testutil.DefaultTestConfig() })

	run, err := engine.RunValidation(context.Background(), "volunteer", nil)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusPartialFailure, run.Status)
	require.NotNil(t, run.FailedValidators)
	list, ok := run.FailedValidators["list"].([]string)
	require.True(t, ok)
	assert.Contains(t, list, "volunteer:*")
}

func TestRunValidation_UnknownScopeRejected(t *testing.T) {
	tdb := testutil.NewTestDB()
	defer tdb.Close()

	engine := newTestEngine(t, tdb, healthyVolunteerData(),
		&mapRefCounts{}, alerting.NopPublisher{}, testutil.DefaultTestConfig())

	_, err := engine.RunValidation(context.Background(), "martian", nil)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = engine.RunValidation(context.Background(), "volunteer",
		[]models.ValidationType{"telepathy"})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestRunValidation_AlertOnDegradedScore(t *testing.T) {
	tdb := testutil.NewTestDB()
	defer tdb.Close()

	// 大面积缺失邮箱，把completeness压入critical档
	records := []map[string]interface{}{}
	for i := 0; i < 20; i++ {
		records = append(records, map[string]interface{}{
			"id": fmt.Sprintf("v%d", i), "name": "N", "email": "",
		})
	}
	snapshots := &mapSnapshotProvider{
		snapshots: map[models.EntityType][]map[string]interface{}{
			models.EntityVolunteer:    records,
			models.EntityOrganization: {},
		},
		failFor: map[models.EntityType]bool{},
	}

	publisher := &capturingPublisher{}
	engine := newTestEngine(t, tdb, snapshots,
		&mapRefCounts{counts: map[models.EntityType]int64{models.EntityVolunteer: 20}},
		publisher, testutil.DefaultTestConfig())

	run, err := engine.RunValidation(context.Background(), "volunteer", nil)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)

	assert.Contains(t, publisher.kinds(), alerting.AlertScoreDegraded)
}

func TestListRuns_Pagination(t *testing.T) {
	tdb := testutil.NewTestDB()
	defer tdb.Close()

	engine := newTestEngine(t, tdb, healthyVolunteerData(),
		&mapRefCounts{counts: map[models.EntityType]int64{models.EntityVolunteer: 3}},
		alerting.NopPublisher{}, testutil.DefaultTestConfig())

	for i := 0; i < 3; i++ {
		_, err := engine.RunValidation(context.Background(), "volunteer", nil)
		require.NoError(t, err)
	}

	runs, total, err := engine.ListRuns(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, runs, 2)
}
