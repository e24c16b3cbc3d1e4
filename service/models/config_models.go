/*
 * @module service/models/config_models
 * @description 质量配置模型：维度权重、严重度权重、阈值切分点、数量比对配置与声明式业务规则
 * @architecture 数据模型层
 * @documentReference dev_docs/quality_engine_req.md
 * @stateFlow 配置加载 -> 校验(权重可归一、阈值降序) -> 作为只读输入传入各组件
 * @rules 配置为显式传参的只读对象，不存在全局可变配置状态；业务规则是数据而非代码
 * @dependencies github.com/lib/pq, gorm.io/gorm, github.com/google/uuid
 * @refs service/config/provider.go, service/quality/business_rule_validator.go
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// SeverityWeights 各严重程度的罚分权重
type SeverityWeights struct {
	Critical float64 `mapstructure:"critical" json:"critical"`
	Error    float64 `mapstructure:"error" json:"error"`
	Warning  float64 `mapstructure:"warning" json:"warning"`
	Info     float64 `mapstructure:"info" json:"info"`
}

// Weight 按严重程度取罚分权重
func (s SeverityWeights) Weight(sev Severity) float64 {
	switch sev {
	case SeverityCritical:
		return s.Critical
	case SeverityError:
		return s.Error
	case SeverityWarning:
		return s.Warning
	default:
		return s.Info
	}
}

// DimensionWeights 各校验维度在综合得分中的权重（归一化前）
type DimensionWeights map[ValidationType]float64

// ThresholdConfig 严重度分级切分点，按降序排列
// score >= Info 为info档；>= Warning 为warning档；>= Error 为error档；其余为critical档
// Critical为最低切分点，仅参与降序校验
type ThresholdConfig struct {
	Info     float64 `mapstructure:"info" json:"info"`
	Warning  float64 `mapstructure:"warning" json:"warning"`
	Error    float64 `mapstructure:"error" json:"error"`
	Critical float64 `mapstructure:"critical" json:"critical"`
}

// ExclusionFilter 数量比对的导入范围排除过滤器
// 外部权威系统若有意不包含某些子类记录，本地先按过滤器剔除后再比对
type ExclusionFilter struct {
	Field  string   `mapstructure:"field" json:"field"`
	Values []string `mapstructure:"values" json:"values"`
}

// CountCheckConfig 数量比对配置
type CountCheckConfig struct {
	TolerancePercent float64           `mapstructure:"tolerance_percent" json:"tolerance_percent"`
	Exclusions       []ExclusionFilter `mapstructure:"exclusions" json:"exclusions"`
}

// CompletenessConfig 完整性校验配置
type CompletenessConfig struct {
	FloorPercent float64 `mapstructure:"floor_percent" json:"floor_percent"` // 完整率下限
	WarningGap   float64 `mapstructure:"warning_gap" json:"warning_gap"`     // 低于下限不超过该值 -> warning
	ErrorGap     float64 `mapstructure:"error_gap" json:"error_gap"`         // 低于下限不超过该值 -> error，再低 -> critical
}

// TrendConfig 趋势计算配置
type TrendConfig struct {
	WindowDays    int     `mapstructure:"window_days" json:"window_days"`
	MinPoints     int     `mapstructure:"min_points" json:"min_points"`           // 少于该数量返回insufficient_data
	SlopeDeadZone float64 `mapstructure:"slope_dead_zone" json:"slope_dead_zone"` // 斜率死区，避免方向抖动
}

// AnomalyConfig 异常检测配置
type AnomalyConfig struct {
	WindowSize     int     `mapstructure:"window_size" json:"window_size"`         // 滚动窗口点数
	SigmaThreshold float64 `mapstructure:"sigma_threshold" json:"sigma_threshold"` // 偏离σ倍数阈值
}

// BusinessRule 声明式业务规则，由通用解释器执行
// Kind: field_format / cross_field / state_transition / naming / expression
type BusinessRule struct {
	ID       string     `mapstructure:"id" json:"id"`
	Name     string     `mapstructure:"name" json:"name"`
	Entity   EntityType `mapstructure:"entity" json:"entity"`
	Kind     string     `mapstructure:"kind" json:"kind"`
	Field    string     `mapstructure:"field" json:"field,omitempty"`
	Severity Severity   `mapstructure:"severity" json:"severity"`
	Message  string     `mapstructure:"message" json:"message"`
	Params   JSONB      `mapstructure:"params" json:"params,omitempty"`
	Enabled  *bool      `mapstructure:"enabled" json:"enabled,omitempty"` // 缺省视为启用
}

// IsEnabled 规则是否启用
func (r BusinessRule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// BusinessRuleDef 业务规则持久化模型（内置规则在迁移时播种）
type BusinessRuleDef struct {
	ID               string         `gorm:"type:varchar(50);primaryKey" json:"id"`
	Name             string         `gorm:"type:varchar(100);not null" json:"name"`
	Kind             string         `gorm:"type:varchar(30);not null" json:"kind"`
	ApplicableEntity pq.StringArray `gorm:"type:text[]" json:"applicable_entity"`
	Field            string         `gorm:"type:varchar(100)" json:"field"`
	Severity         Severity       `gorm:"type:varchar(20);not null" json:"severity"`
	Message          string         `gorm:"type:text" json:"message"`
	Params           JSONB          `gorm:"type:jsonb" json:"params"`
	IsBuiltIn        bool           `gorm:"default:false" json:"is_built_in"`
	IsEnabled        bool           `gorm:"default:true" json:"is_enabled"`
	Version          string         `gorm:"type:varchar(20);default:'1.0'" json:"version"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// TableName 指定表名
func (BusinessRuleDef) TableName() string {
	return "business_rule_defs"
}

// BeforeCreate 创建前钩子
func (b *BusinessRuleDef) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	return nil
}

// QualityConfig 质量引擎的全量配置（版本化、只读）
type QualityConfig struct {
	Version            string                             `mapstructure:"version" json:"version"`
	SeverityWeights    SeverityWeights                    `mapstructure:"severity_weights" json:"severity_weights"`
	PenaltyMultipliers map[ValidationType]float64         `mapstructure:"penalty_multipliers" json:"penalty_multipliers"`
	DefaultWeights     DimensionWeights                   `mapstructure:"default_weights" json:"default_weights"`
	EntityWeights      map[EntityType]DimensionWeights    `mapstructure:"entity_weights" json:"entity_weights"`
	DefaultThresholds  ThresholdConfig                    `mapstructure:"default_thresholds" json:"default_thresholds"`
	EntityThresholds   map[EntityType]ThresholdConfig     `mapstructure:"entity_thresholds" json:"entity_thresholds"`
	CountChecks        map[EntityType]CountCheckConfig    `mapstructure:"count_checks" json:"count_checks"`
	Completeness       CompletenessConfig                 `mapstructure:"completeness" json:"completeness"`
	Rules              []BusinessRule                     `mapstructure:"rules" json:"rules"`
	Trend              TrendConfig                        `mapstructure:"trend" json:"trend"`
	Anomaly            AnomalyConfig                      `mapstructure:"anomaly" json:"anomaly"`
	MaxParallel        int                                `mapstructure:"max_parallel" json:"max_parallel"`
	ValidatorTimeoutMS int64                              `mapstructure:"validator_timeout_ms" json:"validator_timeout_ms"`
}

// WeightsFor 返回实体的维度权重，未单独配置时回退到默认权重
func (c *QualityConfig) WeightsFor(entity EntityType) DimensionWeights {
	if w, ok := c.EntityWeights[entity]; ok {
		return w
	}
	return c.DefaultWeights
}

// ThresholdsFor 返回实体的阈值切分点，未单独配置时回退到默认阈值
func (c *QualityConfig) ThresholdsFor(entity EntityType) ThresholdConfig {
	if t, ok := c.EntityThresholds[entity]; ok {
		return t
	}
	return c.DefaultThresholds
}

// ValidatorTimeout 校验器执行预算
func (c *QualityConfig) ValidatorTimeout() time.Duration {
	if c.ValidatorTimeoutMS <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.ValidatorTimeoutMS) * time.Millisecond
}

// RulesFor 返回实体启用的业务规则
func (c *QualityConfig) RulesFor(entity EntityType) []BusinessRule {
	var rules []BusinessRule
	for _, r := range c.Rules {
		if r.Entity == entity && r.IsEnabled() {
			rules = append(rules, r)
		}
	}
	return rules
}
