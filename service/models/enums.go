/*
 * @module service/models/enums
 * @description 数据质量校验的枚举定义：实体类型、校验维度、严重程度、趋势方向、运行状态
 * @architecture 数据模型层
 * @documentReference dev_docs/quality_engine_req.md
 * @stateFlow 枚举作为封闭集合，校验器和评分引擎按标签分发，不使用继承体系
 * @rules 实体类型为封闭集合，新增实体只需注册字段元数据，不修改校验器代码
 * @dependencies 无
 * @refs service/meta/entity_schema.go
 */

package models

// EntityType 业务实体类型（封闭集合，对应志愿服务领域的各类记录）
type EntityType string

const (
	EntityVolunteer     EntityType = "volunteer"     // 志愿者
	EntityTeacher       EntityType = "teacher"       // 教师联系人
	EntityOrganization  EntityType = "organization"  // 合作机构
	EntityEvent         EntityType = "event"         // 志愿活动
	EntityParticipation EntityType = "participation" // 活动参与记录
)

// AllEntityTypes 返回全部实体类型
func AllEntityTypes() []EntityType {
	return []EntityType{
		EntityVolunteer,
		EntityTeacher,
		EntityOrganization,
		EntityEvent,
		EntityParticipation,
	}
}

// IsValidEntityType 检查实体类型是否合法
func IsValidEntityType(t EntityType) bool {
	for _, e := range AllEntityTypes() {
		if e == t {
			return true
		}
	}
	return false
}

// ValidationType 校验维度类型
type ValidationType string

const (
	ValidationCount        ValidationType = "count"         // 数量比对
	ValidationCompleteness ValidationType = "completeness"  // 字段完整性
	ValidationDataType     ValidationType = "data_type"     // 数据类型
	ValidationRelationship ValidationType = "relationship"  // 关联完整性
	ValidationBusinessRule ValidationType = "business_rule" // 业务规则
)

// AllValidationTypes 返回全部校验维度
func AllValidationTypes() []ValidationType {
	return []ValidationType{
		ValidationCount,
		ValidationCompleteness,
		ValidationDataType,
		ValidationRelationship,
		ValidationBusinessRule,
	}
}

// IsValidValidationType 检查校验维度是否合法
func IsValidValidationType(t ValidationType) bool {
	for _, v := range AllValidationTypes() {
		if v == t {
			return true
		}
	}
	return false
}

// Severity 严重程度
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// RunStatus 校验运行状态
type RunStatus string

const (
	RunStatusRunning        RunStatus = "running"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusPartialFailure RunStatus = "partial_failure"
	RunStatusFailed         RunStatus = "failed"
)

// TrendDirection 趋势方向
type TrendDirection string

const (
	TrendImproving        TrendDirection = "improving"
	TrendStable           TrendDirection = "stable"
	TrendDeclining        TrendDirection = "declining"
	TrendInsufficientData TrendDirection = "insufficient_data" // 数据点不足，区别于stable
)

// FindingTag 检查项失败的归因标签
// validator_error 表示校验器自身执行失败，data_unavailable 表示数据源不可达，
// 两者必须区分，避免"检查未运行"与"检查未通过"混淆
type FindingTag string

const (
	FindingTagCheckFailed     FindingTag = "check_failed"     // 检查执行后未通过
	FindingTagValidatorError  FindingTag = "validator_error"  // 校验器执行异常
	FindingTagDataUnavailable FindingTag = "data_unavailable" // 快照或参照数据不可用
	FindingTagTimeout         FindingTag = "timeout"          // 校验器执行超时
	FindingTagScopeAdjustment FindingTag = "scope_adjustment" // 数量比对的导入范围调整说明
)

// MetricComposite 综合得分在历史序列中的指标名
const MetricComposite = "composite"
