/*
 * @module service/history/history_service
 * @description 历史与趋势服务：只追加的得分时间序列、线性趋势拟合与统计离群检测
 * @architecture 服务层
 * @documentReference dev_docs/quality_engine_req.md
 * @stateFlow 运行评分 -> 追加历史记录(趋势/异常注解) -> 缓存失效 -> 趋势/异常查询
 * @rules 序列recorded_at严格递增，后写记录的时间戳单调推进而非重复；少于最小点数的趋势返回insufficient_data而非stable
 * @dependencies gorm.io/gorm, service/models
 * @refs service/history/aggregation_service.go, service/quality/engine.go
 */

package history

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gorm.io/gorm"

	"vms-quality-service/service/models"
)

// maxAnomalyScore 异常分的有限上界（σ倍数）
// 平坦序列的σ为0，偏离倍数无定义，封顶为该值以保持JSON可序列化
const maxAnomalyScore = 1000.0

// TrendResult 趋势计算结果
// Direction为insufficient_data时其余数值字段无意义
type TrendResult struct {
	EntityType  models.EntityType     `json:"entity_type"`
	MetricName  string                `json:"metric_name"`
	Direction   models.TrendDirection `json:"trend_direction"`
	Magnitude   float64               `json:"trend_magnitude"`  // 窗口内的预计得分变化量
	Confidence  float64               `json:"trend_confidence"` // R²，0-1
	SlopePerDay float64               `json:"slope_per_day"`
	Points      int                   `json:"points"`
	WindowDays  int                   `json:"window_days"`
}

// HistoryService 历史与趋势服务
type HistoryService struct {
	db    *gorm.DB
	cache *AggregationCache
}

// NewHistoryService 创建历史与趋势服务
func NewHistoryService(db *gorm.DB, cache *AggregationCache) *HistoryService {
	return &HistoryService{db: db, cache: cache}
}

// Record 追加一条历史记录并附带趋势/异常注解
// 只追加、从不更新；若时间戳不晚于序列末点，则单调推进1毫秒（后写逻辑取代而非重复）
func (s *HistoryService) Record(ctx context.Context, runID string, entity models.EntityType,
	metric string, value float64, trendCfg models.TrendConfig, anomalyCfg models.AnomalyConfig) (*models.QualityHistoryRecord, error) {

	trailing, err := s.trailing(ctx, entity, metric, maxInt(anomalyCfg.WindowSize, trendCfg.MinPoints, 32))
	if err != nil {
		return nil, fmt.Errorf("查询历史序列失败: %w", err)
	}

	recordedAt := time.Now()
	if len(trailing) > 0 {
		last := trailing[len(trailing)-1].RecordedAt
		if !recordedAt.After(last) {
			recordedAt = last.Add(time.Millisecond)
		}
	}

	record := &models.QualityHistoryRecord{
		RunID:      runID,
		EntityType: entity,
		MetricName: metric,
		Value:      value,
		RecordedAt: recordedAt,
	}

	// 趋势注解：窗口内含新点的序列，窗口外的旧点不参与拟合
	cutoff := recordedAt.AddDate(0, 0, -trendCfg.WindowDays)
	points := make([]seriesPoint, 0, len(trailing)+1)
	for _, r := range trailing {
		if trendCfg.WindowDays > 0 && r.RecordedAt.Before(cutoff) {
			continue
		}
		points = append(points, seriesPoint{At: r.RecordedAt, Value: r.Value})
	}
	points = append(points, seriesPoint{At: recordedAt, Value: value})
	trend := computeTrend(points, trendCfg, trendCfg.WindowDays)
	record.TrendDirection = trend.Direction
	record.TrendMagnitude = trend.Magnitude
	record.TrendConfidence = trend.Confidence

	// 异常注解：相对既有尾部窗口的纯统计离群检验，与趋势计算相互独立
	record.IsAnomaly, record.AnomalyScore = deviationFromTrailing(trailing, value, anomalyCfg)

	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("追加历史记录失败: %w", err)
	}

	if s.cache != nil {
		s.cache.Invalidate(entity, metric)
	}

	if record.IsAnomaly {
		slog.Warn("检测到质量指标异常点",
			"entity", entity,
			"metric", metric,
			"value", value,
			"anomaly_score", record.AnomalyScore)
	}

	return record, nil
}

// GetHistory 查询时间范围内的历史序列（升序）
func (s *HistoryService) GetHistory(ctx context.Context, entity models.EntityType,
	metric string, from, to time.Time) ([]models.QualityHistoryRecord, error) {

	var records []models.QualityHistoryRecord
	err := s.db.WithContext(ctx).
		Where("entity_type = ? AND metric_name = ? AND recorded_at >= ? AND recorded_at <= ?",
			entity, metric, from, to).
		Order("recorded_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("查询历史记录失败: %w", err)
	}
	return records, nil
}

// ComputeTrend 计算窗口内的趋势
func (s *HistoryService) ComputeTrend(ctx context.Context, entity models.EntityType,
	metric string, windowDays int, cfg models.TrendConfig) (*TrendResult, error) {

	if windowDays <= 0 {
		windowDays = cfg.WindowDays
	}
	from := time.Now().AddDate(0, 0, -windowDays)

	records, err := s.GetHistory(ctx, entity, metric, from, time.Now())
	if err != nil {
		return nil, err
	}

	points := make([]seriesPoint, 0, len(records))
	for _, r := range records {
		points = append(points, seriesPoint{At: r.RecordedAt, Value: r.Value})
	}

	result := computeTrend(points, cfg, windowDays)
	result.EntityType = entity
	result.MetricName = metric
	return &result, nil
}

// GetAnomalies 查询时间范围内被标记为异常的历史记录
func (s *HistoryService) GetAnomalies(ctx context.Context, entity models.EntityType,
	metric string, from, to time.Time) ([]models.QualityHistoryRecord, error) {

	var records []models.QualityHistoryRecord
	err := s.db.WithContext(ctx).
		Where("entity_type = ? AND metric_name = ? AND is_anomaly = ? AND recorded_at >= ? AND recorded_at <= ?",
			entity, metric, true, from, to).
		Order("recorded_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("查询异常记录失败: %w", err)
	}
	return records, nil
}

// trailing 取序列尾部最多limit条（升序返回）
func (s *HistoryService) trailing(ctx context.Context, entity models.EntityType,
	metric string, limit int) ([]models.QualityHistoryRecord, error) {

	var records []models.QualityHistoryRecord
	err := s.db.WithContext(ctx).
		Where("entity_type = ? AND metric_name = ?", entity, metric).
		Order("recorded_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	// 反转为升序
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// computeTrend 纯趋势计算：线性拟合斜率定方向（带死区防抖），R²为置信度
func computeTrend(points []seriesPoint, cfg models.TrendConfig, windowDays int) TrendResult {
	result := TrendResult{
		WindowDays: windowDays,
		Points:     len(points),
	}

	minPoints := cfg.MinPoints
	if minPoints < 3 {
		minPoints = 3
	}
	if len(points) < minPoints {
		result.Direction = models.TrendInsufficientData
		return result
	}

	slope, r2 := linearFit(points)
	result.SlopePerDay = slope
	result.Magnitude = slope * float64(windowDays)
	result.Confidence = r2

	switch {
	case slope > cfg.SlopeDeadZone:
		result.Direction = models.TrendImproving
	case slope < -cfg.SlopeDeadZone:
		result.Direction = models.TrendDeclining
	default:
		result.Direction = models.TrendStable
	}
	return result
}

// deviationFromTrailing 新值相对尾部窗口均值的σ倍数偏离检验
func deviationFromTrailing(trailing []models.QualityHistoryRecord, value float64,
	cfg models.AnomalyConfig) (bool, float64) {

	window := cfg.WindowSize
	if window <= 0 {
		window = 20
	}
	if len(trailing) > window {
		trailing = trailing[len(trailing)-window:]
	}
	// 窗口过小不足以估计分布
	if len(trailing) < 3 {
		return false, 0
	}

	values := make([]float64, 0, len(trailing))
	for _, r := range trailing {
		values = append(values, r.Value)
	}
	mean, std := meanStdDev(values)
	if std == 0 {
		if value == mean {
			return false, 0
		}
		// 平坦序列的任何偏离都是显著的，异常分封顶为有限值
		return true, maxAnomalyScore
	}

	score := math.Abs(value-mean) / std
	if score > maxAnomalyScore {
		score = maxAnomalyScore
	}
	return score >= cfg.SigmaThreshold, score
}

// DetectAnomalies 纯统计离群扫描：逐点相对其前向滚动窗口检验
// 与趋势计算相互独立，可用于对既有序列重新扫描
func DetectAnomalies(series []models.QualityHistoryRecord, cfg models.AnomalyConfig) []models.QualityHistoryRecord {
	var anomalies []models.QualityHistoryRecord
	for i := range series {
		if flagged, score := deviationFromTrailing(series[:i], series[i].Value, cfg); flagged {
			flaggedRecord := series[i]
			flaggedRecord.IsAnomaly = true
			flaggedRecord.AnomalyScore = score
			anomalies = append(anomalies, flaggedRecord)
		}
	}
	return anomalies
}

// maxInt 多值取最大
func maxInt(values ...int) int {
	max := 0
	for _, v := range values {
		if v > max {
			max = v
		}
	}
	return max
}
