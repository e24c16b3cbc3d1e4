/*
 * @module service/models/history_models
 * @description 质量得分历史记录模型，按(实体,指标)构成只追加的时间序列，附带趋势注解
 * @architecture 数据模型层
 * @documentReference dev_docs/quality_engine_req.md
 * @stateFlow 运行评分 -> 追加历史记录 -> 趋势/异常注解 -> 聚合查询
 * @rules 同一(entity_type, metric_name)序列的recorded_at严格递增；记录只追加不更新
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/history/history_service.go
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// QualityHistoryRecord 质量指标历史快照
type QualityHistoryRecord struct {
	ID              string         `gorm:"type:varchar(50);primaryKey" json:"id"`
	RunID           string         `gorm:"type:varchar(50);not null;index" json:"run_id"`
	EntityType      EntityType     `gorm:"type:varchar(30);not null;index:idx_history_series" json:"entity_type"`
	MetricName      string         `gorm:"type:varchar(50);not null;index:idx_history_series" json:"metric_name"` // composite或某个校验维度
	Value           float64        `json:"value"`
	RecordedAt      time.Time      `gorm:"not null;index:idx_history_series" json:"recorded_at"`
	TrendDirection  TrendDirection `gorm:"type:varchar(30)" json:"trend_direction"`
	TrendMagnitude  float64        `json:"trend_magnitude"`
	TrendConfidence float64        `json:"trend_confidence"` // 0-1
	IsAnomaly       bool           `gorm:"default:false;index" json:"is_anomaly"`
	AnomalyScore    float64        `json:"anomaly_score"` // 偏离滚动均值的σ倍数
	CreatedAt       time.Time      `json:"created_at"`
}

// TableName 指定表名
func (QualityHistoryRecord) TableName() string {
	return "quality_history_records"
}

// BeforeCreate 创建前钩子
func (h *QualityHistoryRecord) BeforeCreate(tx *gorm.DB) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	if h.RecordedAt.IsZero() {
		h.RecordedAt = time.Now()
	}
	return nil
}
