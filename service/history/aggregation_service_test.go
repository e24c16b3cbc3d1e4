package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vms-quality-service/service/models"
	"vms-quality-service/testutil"
)

func newAggregationFixture(t *testing.T) (*testutil.TestDB, *HistoryService, *AggregationService) {
	t.Helper()
	tdb := testutil.NewTestDB()
	cache := NewAggregationCache()
	hist := NewHistoryService(tdb.DB, cache)
	return tdb, hist, NewAggregationService(hist, cache)
}

func queryRange() (time.Time, time.Time) {
	return time.Now().AddDate(0, 0, -60), time.Now().Add(time.Hour)
}

func TestRollingAverage(t *testing.T) {
	tdb, _, agg := newAggregationFixture(t)
	defer tdb.Close()

	seedDailySeries(tdb, models.EntityVolunteer, models.MetricComposite,
		[]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	from, to := queryRange()

	avg, n, err := agg.RollingAverage(context.Background(), models.EntityVolunteer,
		models.MetricComposite, 4, from, to)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.InDelta(t, 8.5, avg, 1e-9)

	// n超过序列长度时取全部
	avg, n, err = agg.RollingAverage(context.Background(), models.EntityVolunteer,
		models.MetricComposite, 100, from, to)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.InDelta(t, 5.5, avg, 1e-9)
}

func TestRollingAverage_EmptySeries(t *testing.T) {
	tdb, _, agg := newAggregationFixture(t)
	defer tdb.Close()
	from, to := queryRange()

	avg, n, err := agg.RollingAverage(context.Background(), models.EntityTeacher,
		models.MetricComposite, 7, from, to)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0.0, avg)
}

func TestMovingWindows_SinglePass(t *testing.T) {
	tdb, _, agg := newAggregationFixture(t)
	defer tdb.Close()

	seedDailySeries(tdb, models.EntityEvent, models.MetricComposite,
		[]float64{60, 70, 80, 90, 100, 90, 80, 70, 60, 50})
	from, to := queryRange()

	stats, err := agg.MovingWindows(context.Background(), models.EntityEvent,
		models.MetricComposite, []int{3, 5, 20}, from, to)
	require.NoError(t, err)
	require.Len(t, stats, 3)

	// 尾部3点: 70,60,50
	assert.Equal(t, 3, stats[0].Points)
	assert.InDelta(t, 60.0, stats[0].Average, 1e-9)
	assert.Equal(t, 50.0, stats[0].Min)
	assert.Equal(t, 70.0, stats[0].Max)

	// 尾部5点: 90,80,70,60,50
	assert.Equal(t, 5, stats[1].Points)
	assert.InDelta(t, 70.0, stats[1].Average, 1e-9)
	assert.Equal(t, 90.0, stats[1].Max)

	// 序列不足20点时退化为全序列
	assert.Equal(t, 10, stats[2].Points)
	assert.InDelta(t, 75.0, stats[2].Average, 1e-9)
	assert.Equal(t, 50.0, stats[2].Min)
	assert.Equal(t, 100.0, stats[2].Max)
}

func TestMovingWindows_Empty(t *testing.T) {
	stats := movingWindows(nil, []int{7, 14})
	require.Len(t, stats, 2)
	assert.Equal(t, 0, stats[0].Points)
	assert.Equal(t, 7, stats[0].WindowSize)
}

func TestDetectTrendPatterns_DeclineThenPlateau(t *testing.T) {
	tdb, _, agg := newAggregationFixture(t)
	defer tdb.Close()

	seedDailySeries(tdb, models.EntityVolunteer, models.MetricComposite,
		[]float64{100, 95, 90, 85, 85, 85, 85, 85})
	from, to := queryRange()

	patterns, err := agg.DetectTrendPatterns(context.Background(), models.EntityVolunteer,
		models.MetricComposite, from, to, 3, 0.5)
	require.NoError(t, err)
	require.Len(t, patterns, 2)

	assert.Equal(t, models.TrendDeclining, patterns[0].Direction)
	assert.InDelta(t, -15.0, patterns[0].Delta, 1e-9)

	assert.Equal(t, models.TrendStable, patterns[1].Direction)
	assert.Equal(t, "decline_then_plateau", patterns[1].Shape)
}

func TestDetectTrendPatterns_Recovery(t *testing.T) {
	base := time.Now().AddDate(0, 0, -10)
	values := []float64{100, 90, 80, 90, 100, 110}
	var records []models.QualityHistoryRecord
	for i, v := range values {
		records = append(records, models.QualityHistoryRecord{
			Value:      v,
			RecordedAt: base.AddDate(0, 0, i),
		})
	}

	patterns := detectPatterns(records, 3, 0.5)
	require.Len(t, patterns, 2)
	assert.Equal(t, models.TrendDeclining, patterns[0].Direction)
	assert.Equal(t, models.TrendImproving, patterns[1].Direction)
	assert.Equal(t, "recovery", patterns[1].Shape)
}

func TestDetectTrendPatterns_TooShort(t *testing.T) {
	base := time.Now()
	records := []models.QualityHistoryRecord{
		{Value: 90, RecordedAt: base},
		{Value: 91, RecordedAt: base.AddDate(0, 0, 1)},
	}
	assert.Nil(t, detectPatterns(records, 3, 0.5))
}

func TestOptimizePerformance(t *testing.T) {
	tdb, _, agg := newAggregationFixture(t)
	defer tdb.Close()
	from, to := queryRange()

	t.Run("空序列", func(t *testing.T) {
		advice, err := agg.OptimizePerformance(context.Background(), models.EntityTeacher,
			models.MetricComposite, from, to)
		require.NoError(t, err)
		assert.Equal(t, 0, advice.Points)
		assert.Equal(t, "raw", advice.Sampling)
		assert.Equal(t, "none", advice.Caching)
	})

	t.Run("平坦稀疏序列建议激进缓存", func(t *testing.T) {
		seedDailySeries(tdb, models.EntityOrganization, models.MetricComposite,
			[]float64{95, 95, 95, 95, 95, 95, 95})

		advice, err := agg.OptimizePerformance(context.Background(), models.EntityOrganization,
			models.MetricComposite, from, to)
		require.NoError(t, err)
		assert.Equal(t, 7, advice.Points)
		assert.Equal(t, "raw", advice.Sampling, "每天一个点无需降采样")
		assert.Equal(t, "aggressive", advice.Caching)
		assert.InDelta(t, 0.0, advice.Volatility, 1e-9)
		assert.NotEmpty(t, advice.Reasons)
	})

	t.Run("高密度波动序列建议降采样且不缓存", func(t *testing.T) {
		// 两小时内密集写入的震荡序列
		base := time.Now().Add(-2 * time.Hour)
		for i := 0; i < 120; i++ {
			v := 90.0
			if i%2 == 0 {
				v = 40.0
			}
			tdb.CreateHistoryRecord(models.EntityEvent, models.MetricComposite, v,
				base.Add(time.Duration(i)*time.Minute))
		}

		advice, err := agg.OptimizePerformance(context.Background(), models.EntityEvent,
			models.MetricComposite, from, to)
		require.NoError(t, err)
		assert.Equal(t, "daily", advice.Sampling)
		assert.Equal(t, "none", advice.Caching)
		assert.Greater(t, advice.Volatility, 0.15)
	})
}

func TestGenerateSummary(t *testing.T) {
	tdb, _, agg := newAggregationFixture(t)
	defer tdb.Close()

	seedDailySeries(tdb, models.EntityOrganization, models.MetricComposite,
		[]float64{80, 85, 90, 95, 100})
	from, to := queryRange()

	summary, err := agg.GenerateSummary(context.Background(), models.EntityOrganization,
		models.MetricComposite, from, to)
	require.NoError(t, err)

	assert.False(t, summary.FromCache)
	assert.Equal(t, 5, summary.Points)
	assert.InDelta(t, 90.0, summary.Mean, 1e-9)
	assert.Equal(t, 80.0, summary.Min)
	assert.Equal(t, 100.0, summary.Max)
	assert.Equal(t, 80.0, summary.First)
	assert.Equal(t, 100.0, summary.Last)
	assert.Equal(t, 0, summary.Anomalies)
	require.Len(t, summary.Windows, 3)
	assert.Equal(t, 5, summary.Windows[0].Points)
}

func TestGenerateSummary_CacheHitAndInvalidation(t *testing.T) {
	tdb, hist, agg := newAggregationFixture(t)
	defer tdb.Close()

	seedDailySeries(tdb, models.EntityVolunteer, models.MetricComposite,
		[]float64{90, 91, 92, 93})
	from, to := queryRange()

	first, err := agg.GenerateSummary(context.Background(), models.EntityVolunteer,
		models.MetricComposite, from, to)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := agg.GenerateSummary(context.Background(), models.EntityVolunteer,
		models.MetricComposite, from, to)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Points, second.Points)

	// 新历史记录写入后缓存失效，汇总必须重算
	_, err = hist.Record(context.Background(), "run-x", models.EntityVolunteer,
		models.MetricComposite, 94, testTrendConfig(), testAnomalyConfig())
	require.NoError(t, err)

	third, err := agg.GenerateSummary(context.Background(), models.EntityVolunteer,
		models.MetricComposite, from, to)
	require.NoError(t, err)
	assert.False(t, third.FromCache)
	assert.Equal(t, first.Points+1, third.Points)
}
