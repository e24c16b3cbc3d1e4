/*
 * @module service/models/validation_models
 * @description 校验运行与检查结果模型，一次运行拥有其产生的全部Finding（级联删除）
 * @architecture 数据模型层
 * @documentReference dev_docs/quality_engine_req.md
 * @stateFlow 运行创建(running) -> 校验器执行 -> 运行终态(completed/partial_failure/failed)
 * @rules Finding不可变、每次运行重新生成；Finding不脱离其父运行单独出现在报表中
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/quality/engine.go
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ValidationRun 一次校验运行记录
type ValidationRun struct {
	ID                   string           `gorm:"type:varchar(50);primaryKey" json:"run_id"`
	StartedAt            time.Time        `json:"started_at"`
	FinishedAt           *time.Time       `json:"finished_at,omitempty"`
	EntityScope          string           `gorm:"type:varchar(50);not null;index" json:"entity_scope"` // 单个实体类型或"all"
	ValidationTypesScope JSONB            `gorm:"type:jsonb" json:"validation_types_scope"`            // {"list": [...]}
	Status               RunStatus        `gorm:"type:varchar(30);not null;index" json:"status"`
	TotalChecks          int64            `json:"total_checks"`
	PassedChecks         int64            `json:"passed"`
	FailedChecks         int64            `json:"failed"`
	FailedValidators     JSONB            `gorm:"type:jsonb" json:"failed_validators,omitempty"` // 部分失败时记录失败的(实体,维度)对
	ErrorMessage         string           `gorm:"type:text" json:"error_message,omitempty"`
	Findings             []QualityFinding `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE" json:"findings,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// TableName 指定表名
func (ValidationRun) TableName() string {
	return "validation_runs"
}

// BeforeCreate 创建前钩子
func (r *ValidationRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// QualityFinding 单个检查结论，由校验器产出且不可变
type QualityFinding struct {
	ID             string         `gorm:"type:varchar(50);primaryKey" json:"id"`
	RunID          string         `gorm:"type:varchar(50);not null;index" json:"run_id"`
	EntityType     EntityType     `gorm:"type:varchar(30);not null;index" json:"entity_type"`
	ValidationType ValidationType `gorm:"type:varchar(30);not null;index" json:"validation_type"`
	Severity       Severity       `gorm:"type:varchar(20);not null;index" json:"severity"`
	Tag            FindingTag     `gorm:"type:varchar(30);not null" json:"tag"`
	FieldName      string         `gorm:"type:varchar(100)" json:"field_name,omitempty"`
	ExpectedValue  string         `gorm:"type:text" json:"expected_value,omitempty"`
	ActualValue    string         `gorm:"type:text" json:"actual_value,omitempty"`
	Message        string         `gorm:"type:text;not null" json:"message"`
	Timestamp      time.Time      `json:"timestamp"`
	CreatedAt      time.Time      `json:"created_at"`
}

// TableName 指定表名
func (QualityFinding) TableName() string {
	return "quality_findings"
}

// BeforeCreate 创建前钩子
func (f *QualityFinding) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now()
	}
	return nil
}
