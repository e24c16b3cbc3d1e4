/*
 * @module service/history/aggregation_service
 * @description 聚合服务：滚动平均、多尺度移动窗口、趋势形态识别与缓存汇总报表
 * @architecture 服务层
 * @documentReference dev_docs/quality_engine_req.md
 * @stateFlow 读取历史序列 -> 单遍聚合 -> 依赖键缓存 -> 新记录写入时整体失效
 * @rules 聚合结果按(实体,指标)依赖键缓存，底层序列变化后返回的必须是重算结果而非陈旧值
 * @dependencies gorm.io/gorm, service/models
 * @refs service/history/history_service.go, service/history/cache.go
 */

package history

import (
	"context"
	"fmt"
	"math"
	"time"

	"vms-quality-service/service/models"
)

// WindowStat 单个移动窗口的统计摘要
type WindowStat struct {
	WindowSize int     `json:"window_size"` // 点数
	Average    float64 `json:"average"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Points     int     `json:"points"` // 实际参与的点数，序列不足时小于WindowSize
}

// TrendPattern 识别出的趋势形态片段
type TrendPattern struct {
	Shape     string                `json:"shape"` // decline_then_plateau 等复合形态，或单段方向名
	Direction models.TrendDirection `json:"direction"`
	StartAt   time.Time             `json:"start_at"`
	EndAt     time.Time             `json:"end_at"`
	Points    int                   `json:"points"`
	Delta     float64               `json:"delta"` // 片段首尾值变化
}

// SeriesSummary 序列汇总报表
type SeriesSummary struct {
	EntityType models.EntityType `json:"entity_type"`
	MetricName string            `json:"metric_name"`
	From       time.Time         `json:"from"`
	To         time.Time         `json:"to"`
	Points     int               `json:"points"`
	Mean       float64           `json:"mean"`
	StdDev     float64           `json:"std_dev"`
	Variance   float64           `json:"variance"`
	Min        float64           `json:"min"`
	Max        float64           `json:"max"`
	First      float64           `json:"first"`
	Last       float64           `json:"last"`
	Anomalies  int               `json:"anomalies"`
	Windows    []WindowStat      `json:"windows"`
	Patterns   []TrendPattern    `json:"patterns"`
	GeneratedAt time.Time        `json:"generated_at"`
	FromCache  bool              `json:"from_cache"`
}

// AggregationService 历史序列聚合服务
type AggregationService struct {
	history *HistoryService
	cache   *AggregationCache
}

// NewAggregationService 创建聚合服务
func NewAggregationService(history *HistoryService, cache *AggregationCache) *AggregationService {
	return &AggregationService{history: history, cache: cache}
}

// RollingAverage 最近n个点的滚动平均，序列不足n个点时取全部
func (s *AggregationService) RollingAverage(ctx context.Context, entity models.EntityType,
	metric string, n int, from, to time.Time) (float64, int, error) {

	records, err := s.history.GetHistory(ctx, entity, metric, from, to)
	if err != nil {
		return 0, 0, err
	}
	if len(records) == 0 {
		return 0, 0, nil
	}
	if n > 0 && len(records) > n {
		records = records[len(records)-n:]
	}

	var sum float64
	for _, r := range records {
		sum += r.Value
	}
	return sum / float64(len(records)), len(records), nil
}

// MovingWindows 一次遍历生成多个窗口尺度的统计摘要
func (s *AggregationService) MovingWindows(ctx context.Context, entity models.EntityType,
	metric string, windowSizes []int, from, to time.Time) ([]WindowStat, error) {

	records, err := s.history.GetHistory(ctx, entity, metric, from, to)
	if err != nil {
		return nil, err
	}
	return movingWindows(records, windowSizes), nil
}

// movingWindows 单遍后缀累加：各窗口共享同一次遍历，不按窗口重复扫描
func movingWindows(records []models.QualityHistoryRecord, windowSizes []int) []WindowStat {
	stats := make([]WindowStat, len(windowSizes))
	for i, size := range windowSizes {
		stats[i] = WindowStat{WindowSize: size}
	}
	if len(records) == 0 {
		return stats
	}

	largest := 0
	for _, size := range windowSizes {
		if size > largest {
			largest = size
		}
	}
	start := len(records) - largest
	if start < 0 {
		start = 0
	}

	var sum float64
	min, max := records[len(records)-1].Value, records[len(records)-1].Value
	count := 0
	// 从序列尾部向前累加，途经各窗口边界时固化对应统计
	for i := len(records) - 1; i >= start; i-- {
		v := records[i].Value
		sum += v
		count++
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		for j, size := range windowSizes {
			if count == size || (i == start && count < size && stats[j].Points == 0) {
				stats[j].Average = sum / float64(count)
				stats[j].Min = min
				stats[j].Max = max
				stats[j].Points = count
			}
		}
	}
	return stats
}

// DetectTrendPatterns 方向游程分段并识别复合形态
// minSegment为单段最小点数，过短的方向抖动并入邻段
func (s *AggregationService) DetectTrendPatterns(ctx context.Context, entity models.EntityType,
	metric string, from, to time.Time, minSegment int, deadZone float64) ([]TrendPattern, error) {

	records, err := s.history.GetHistory(ctx, entity, metric, from, to)
	if err != nil {
		return nil, err
	}
	return detectPatterns(records, minSegment, deadZone), nil
}

func detectPatterns(records []models.QualityHistoryRecord, minSegment int, deadZone float64) []TrendPattern {
	if minSegment < 2 {
		minSegment = 2
	}
	if len(records) < minSegment {
		return nil
	}

	// 逐点差分定方向
	direction := func(delta float64) models.TrendDirection {
		switch {
		case delta > deadZone:
			return models.TrendImproving
		case delta < -deadZone:
			return models.TrendDeclining
		default:
			return models.TrendStable
		}
	}

	var segments []TrendPattern
	segStart := 0
	current := direction(records[1].Value - records[0].Value)
	for i := 2; i < len(records); i++ {
		d := direction(records[i].Value - records[i-1].Value)
		if d == current {
			continue
		}
		segments = appendSegment(segments, records, segStart, i-1, current, minSegment)
		segStart = i - 1
		current = d
	}
	segments = appendSegment(segments, records, segStart, len(records)-1, current, minSegment)

	// 相邻段复合命名
	for i := 1; i < len(segments); i++ {
		prev, cur := segments[i-1].Direction, segments[i].Direction
		switch {
		case prev == models.TrendDeclining && cur == models.TrendStable:
			segments[i].Shape = "decline_then_plateau"
		case prev == models.TrendImproving && cur == models.TrendStable:
			segments[i].Shape = "improve_then_plateau"
		case prev == models.TrendDeclining && cur == models.TrendImproving:
			segments[i].Shape = "recovery"
		case prev == models.TrendImproving && cur == models.TrendDeclining:
			segments[i].Shape = "regression"
		}
	}
	return segments
}

func appendSegment(segments []TrendPattern, records []models.QualityHistoryRecord,
	start, end int, dir models.TrendDirection, minSegment int) []TrendPattern {

	points := end - start + 1
	if points < minSegment {
		// 抖动段并入前段
		if n := len(segments); n > 0 {
			segments[n-1].EndAt = records[end].RecordedAt
			segments[n-1].Points += points - 1
			segments[n-1].Delta = records[end].Value - recordValueAt(records, segments[n-1].StartAt)
		}
		return segments
	}
	return append(segments, TrendPattern{
		Shape:     string(dir),
		Direction: dir,
		StartAt:   records[start].RecordedAt,
		EndAt:     records[end].RecordedAt,
		Points:    points,
		Delta:     records[end].Value - records[start].Value,
	})
}

func recordValueAt(records []models.QualityHistoryRecord, at time.Time) float64 {
	for _, r := range records {
		if r.RecordedAt.Equal(at) {
			return r.Value
		}
	}
	return 0
}

// PerformanceAdvice 聚合性能建议，只读不改动任何存量数据
type PerformanceAdvice struct {
	EntityType   models.EntityType `json:"entity_type"`
	MetricName   string            `json:"metric_name"`
	Points       int               `json:"points"`
	SpanDays     float64           `json:"span_days"`
	PointsPerDay float64           `json:"points_per_day"`
	Volatility   float64           `json:"volatility"` // 变异系数 σ/|μ|
	Sampling     string            `json:"sampling"`   // raw / hourly / daily
	Caching      string            `json:"caching"`    // none / standard / aggressive
	Reasons      []string          `json:"reasons"`
}

// 采样与缓存建议的判定阈值
const (
	densePointsPerDay    = 48.0  // 超过该密度建议小时级降采样
	extremePointsPerDay  = 300.0 // 超过该密度建议天级降采样
	lowVolatility        = 0.02  // 低于该变异系数的序列近乎平坦，可激进缓存
	highVolatility       = 0.15  // 高于该变异系数的序列波动大，不建议缓存
	largeSeriesThreshold = 1000  // 超过该点数的序列聚合成本显著
)

// OptimizePerformance 检视序列规模与波动性，给出采样与缓存策略建议
// 仅为咨询性质：不修改存量数据，也不改变后续聚合行为
func (s *AggregationService) OptimizePerformance(ctx context.Context, entity models.EntityType,
	metric string, from, to time.Time) (*PerformanceAdvice, error) {

	records, err := s.history.GetHistory(ctx, entity, metric, from, to)
	if err != nil {
		return nil, err
	}

	advice := &PerformanceAdvice{
		EntityType: entity,
		MetricName: metric,
		Points:     len(records),
		Sampling:   "raw",
		Caching:    "standard",
	}
	if len(records) == 0 {
		advice.Caching = "none"
		advice.Reasons = append(advice.Reasons, "序列为空，无聚合成本")
		return advice, nil
	}

	span := records[len(records)-1].RecordedAt.Sub(records[0].RecordedAt)
	advice.SpanDays = span.Hours() / 24.0
	if advice.SpanDays > 0 {
		advice.PointsPerDay = float64(len(records)) / advice.SpanDays
	} else {
		advice.PointsPerDay = float64(len(records))
	}

	values := make([]float64, 0, len(records))
	for _, r := range records {
		values = append(values, r.Value)
	}
	mean, std := meanStdDev(values)
	if mean != 0 {
		advice.Volatility = std / math.Abs(mean)
	}

	switch {
	case advice.PointsPerDay > extremePointsPerDay:
		advice.Sampling = "daily"
		advice.Reasons = append(advice.Reasons,
			fmt.Sprintf("点密度 %.0f/天 过高，建议按天降采样后再聚合", advice.PointsPerDay))
	case advice.PointsPerDay > densePointsPerDay:
		advice.Sampling = "hourly"
		advice.Reasons = append(advice.Reasons,
			fmt.Sprintf("点密度 %.0f/天 较高，建议按小时降采样", advice.PointsPerDay))
	}

	switch {
	case advice.Volatility < lowVolatility:
		advice.Caching = "aggressive"
		advice.Reasons = append(advice.Reasons,
			fmt.Sprintf("变异系数 %.4f，序列近乎平坦，聚合结果可长期缓存", advice.Volatility))
	case advice.Volatility > highVolatility:
		advice.Caching = "none"
		advice.Reasons = append(advice.Reasons,
			fmt.Sprintf("变异系数 %.4f，序列波动大，缓存命中价值低", advice.Volatility))
	}

	if len(records) > largeSeriesThreshold && advice.Caching == "standard" {
		advice.Caching = "aggressive"
		advice.Reasons = append(advice.Reasons,
			fmt.Sprintf("序列含 %d 个点，重复聚合成本显著，建议缓存", len(records)))
	}

	return advice, nil
}

// GenerateSummary 生成序列汇总报表，命中缓存时直接返回
func (s *AggregationService) GenerateSummary(ctx context.Context, entity models.EntityType,
	metric string, from, to time.Time) (*SeriesSummary, error) {

	query := fmt.Sprintf("summary:%d:%d", from.Unix(), to.Unix())
	if s.cache != nil {
		if cached, ok := s.cache.Get(entity, metric, query); ok {
			if summary, ok := cached.(*SeriesSummary); ok {
				hit := *summary
				hit.FromCache = true
				return &hit, nil
			}
		}
	}

	records, err := s.history.GetHistory(ctx, entity, metric, from, to)
	if err != nil {
		return nil, err
	}

	summary := &SeriesSummary{
		EntityType:  entity,
		MetricName:  metric,
		From:        from,
		To:          to,
		Points:      len(records),
		GeneratedAt: time.Now(),
	}
	if len(records) > 0 {
		values := make([]float64, 0, len(records))
		summary.Min, summary.Max = records[0].Value, records[0].Value
		for _, r := range records {
			values = append(values, r.Value)
			if r.Value < summary.Min {
				summary.Min = r.Value
			}
			if r.Value > summary.Max {
				summary.Max = r.Value
			}
			if r.IsAnomaly {
				summary.Anomalies++
			}
		}
		summary.Mean, summary.StdDev = meanStdDev(values)
		summary.Variance = variance(values)
		summary.First = records[0].Value
		summary.Last = records[len(records)-1].Value
		summary.Windows = movingWindows(records, []int{7, 14, 30})
		summary.Patterns = detectPatterns(records, 3, 0.5)
	}

	if s.cache != nil {
		s.cache.Set(entity, metric, query, summary)
	}
	return summary, nil
}
