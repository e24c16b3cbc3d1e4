/*
 * @module service/models/quality_models
 * @description 质量评分模型：维度得分与综合得分，每次运行重新计算，落库后不可变
 * @architecture 数据模型层
 * @documentReference dev_docs/quality_engine_req.md
 * @stateFlow Finding汇总 -> 维度得分 -> 权重合成 -> 阈值分级 -> 落库
 * @rules raw_score与composite_score均在[0,100]；total_checks为0的维度记为不适用并从合成权重中剔除
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/quality/score_calculator.go, service/quality/weighting_engine.go
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DimensionScore 一个(实体,校验维度)在一次运行中的得分
type DimensionScore struct {
	ID                   string         `gorm:"type:varchar(50);primaryKey" json:"id"`
	RunID                string         `gorm:"type:varchar(50);not null;index" json:"run_id"`
	EntityType           EntityType     `gorm:"type:varchar(30);not null;index" json:"entity_type"`
	ValidationType       ValidationType `gorm:"type:varchar(30);not null" json:"validation_type"`
	Applicable           bool           `gorm:"default:true" json:"applicable"` // total_checks为0时为false（不适用哨兵）
	RawScore             float64        `json:"raw_score"`
	WeightedContribution float64        `json:"weighted_contribution"`
	TotalChecks          int64          `json:"total_checks"`
	PassedChecks         int64          `json:"passed_checks"`
	FindingCount         int            `json:"finding_count"`
	SeverityBand         Severity       `gorm:"type:varchar(20)" json:"severity_band"`
	CreatedAt            time.Time      `json:"created_at"`
}

// TableName 指定表名
func (DimensionScore) TableName() string {
	return "dimension_scores"
}

// BeforeCreate 创建前钩子
func (d *DimensionScore) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	return nil
}

// QualityScore 一个实体在一次运行中的综合质量得分
// 每(实体,运行)至多一条，计算完成后不可变
type QualityScore struct {
	ID              string           `gorm:"type:varchar(50);primaryKey" json:"id"`
	RunID           string           `gorm:"type:varchar(50);not null;index:idx_quality_scores_run_entity,unique" json:"run_id"`
	EntityType      EntityType       `gorm:"type:varchar(30);not null;index:idx_quality_scores_run_entity,unique" json:"entity_type"`
	CompositeScore  float64          `json:"composite_score"`
	SeverityBand    Severity         `gorm:"type:varchar(20);not null" json:"severity_band"`
	DimensionScores []DimensionScore `gorm:"-" json:"dimension_scores,omitempty"` // 按run_id+entity_type关联加载
	ScoredAt        time.Time        `json:"scored_at"`
	CreatedAt       time.Time        `json:"created_at"`
}

// TableName 指定表名
func (QualityScore) TableName() string {
	return "quality_scores"
}

// BeforeCreate 创建前钩子
func (q *QualityScore) BeforeCreate(tx *gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	if q.ScoredAt.IsZero() {
		q.ScoredAt = time.Now()
	}
	return nil
}
