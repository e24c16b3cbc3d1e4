/*
 * @module service/meta/entity_schema
 * @description 志愿服务领域实体的字段元数据：类型、必填、枚举、引用与状态机定义
 * @architecture 元数据层
 * @documentReference dev_docs/quality_engine_req.md
 * @stateFlow 静态元数据定义，校验器按"实体类型+字段元数据"泛化运行
 * @rules 实体为封闭标签集合+查表字段元数据，不使用类继承体系；新增实体只需注册元数据
 * @dependencies service/models
 * @refs service/quality/datatype_validator.go, service/quality/relationship_validator.go
 */

package meta

import (
	"vms-quality-service/service/models"
)

// FieldType 字段声明类型
type FieldType string

const (
	FieldString   FieldType = "string"
	FieldInt      FieldType = "int"
	FieldFloat    FieldType = "float"
	FieldBool     FieldType = "bool"
	FieldDate     FieldType = "date"     // 2006-01-02
	FieldDateTime FieldType = "datetime" // RFC3339 或 2006-01-02 15:04:05
	FieldEnum     FieldType = "enum"
	FieldEmail    FieldType = "email"
	FieldPhone    FieldType = "phone"
	FieldURL      FieldType = "url"
)

// FieldSchema 单个字段的元数据
type FieldSchema struct {
	Name       string    `json:"name"`
	Type       FieldType `json:"type"`
	Required   bool      `json:"required"`
	EnumValues []string  `json:"enum_values,omitempty"`
	Pattern    string    `json:"pattern,omitempty"`
	MaxLength  int       `json:"max_length,omitempty"`
}

// Reference 外键引用声明：字段指向目标实体的主键
type Reference struct {
	Field        string            `json:"field"`
	TargetEntity models.EntityType `json:"target_entity"`
	Required     bool              `json:"required"` // 必填引用缺失视为断裂
}

// EntitySchema 一个实体类型的完整元数据
type EntitySchema struct {
	Entity     models.EntityType `json:"entity"`
	KeyField   string            `json:"key_field"`
	Fields     []FieldSchema     `json:"fields"`
	References []Reference       `json:"references,omitempty"`
}

// RequiredFields 返回必填字段名
func (s EntitySchema) RequiredFields() []string {
	var names []string
	for _, f := range s.Fields {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}

// FieldByName 按名称查找字段元数据
func (s EntitySchema) FieldByName(name string) (FieldSchema, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSchema{}, false
}

// entitySchemas 领域实体元数据表
var entitySchemas = map[models.EntityType]EntitySchema{
	models.EntityVolunteer: {
		Entity:   models.EntityVolunteer,
		KeyField: "id",
		Fields: []FieldSchema{
			{Name: "id", Type: FieldString, Required: true},
			{Name: "name", Type: FieldString, Required: true, MaxLength: 120},
			{Name: "email", Type: FieldEmail, Required: true},
			{Name: "phone", Type: FieldPhone},
			{Name: "status", Type: FieldEnum, EnumValues: []string{"active", "inactive", "pending", "archived"}},
			{Name: "joined_at", Type: FieldDate},
			{Name: "hours_total", Type: FieldFloat},
			{Name: "organization_id", Type: FieldString},
		},
		References: []Reference{
			{Field: "organization_id", TargetEntity: models.EntityOrganization},
		},
	},
	models.EntityTeacher: {
		Entity:   models.EntityTeacher,
		KeyField: "id",
		Fields: []FieldSchema{
			{Name: "id", Type: FieldString, Required: true},
			{Name: "name", Type: FieldString, Required: true, MaxLength: 120},
			{Name: "email", Type: FieldEmail, Required: true},
			{Name: "school_name", Type: FieldString},
			{Name: "status", Type: FieldEnum, EnumValues: []string{"active", "inactive"}},
		},
	},
	models.EntityOrganization: {
		Entity:   models.EntityOrganization,
		KeyField: "id",
		Fields: []FieldSchema{
			{Name: "id", Type: FieldString, Required: true},
			{Name: "name", Type: FieldString, Required: true, MaxLength: 200},
			{Name: "type", Type: FieldEnum, EnumValues: []string{"business", "school", "nonprofit", "government"}},
			{Name: "website", Type: FieldURL},
			{Name: "contact_email", Type: FieldEmail},
		},
	},
	models.EntityEvent: {
		Entity:   models.EntityEvent,
		KeyField: "id",
		Fields: []FieldSchema{
			{Name: "id", Type: FieldString, Required: true},
			{Name: "title", Type: FieldString, Required: true, MaxLength: 200},
			{Name: "event_type", Type: FieldEnum, EnumValues: []string{"career_fair", "classroom_speaker", "mentoring", "workplace_visit", "virtual_session"}},
			{Name: "status", Type: FieldEnum, Required: true, EnumValues: []string{"draft", "published", "confirmed", "completed", "cancelled"}},
			{Name: "starts_at", Type: FieldDateTime, Required: true},
			{Name: "ends_at", Type: FieldDateTime},
			{Name: "capacity", Type: FieldInt},
			{Name: "organization_id", Type: FieldString},
		},
		References: []Reference{
			{Field: "organization_id", TargetEntity: models.EntityOrganization},
		},
	},
	models.EntityParticipation: {
		Entity:   models.EntityParticipation,
		KeyField: "id",
		Fields: []FieldSchema{
			{Name: "id", Type: FieldString, Required: true},
			{Name: "volunteer_id", Type: FieldString, Required: true},
			{Name: "event_id", Type: FieldString, Required: true},
			{Name: "status", Type: FieldEnum, EnumValues: []string{"registered", "attended", "no_show", "cancelled"}},
			{Name: "hours", Type: FieldFloat},
			{Name: "signed_up_at", Type: FieldDateTime},
		},
		References: []Reference{
			{Field: "volunteer_id", TargetEntity: models.EntityVolunteer, Required: true},
			{Field: "event_id", TargetEntity: models.EntityEvent, Required: true},
		},
	},
}

// SchemaFor 返回实体的字段元数据
func SchemaFor(entity models.EntityType) (EntitySchema, bool) {
	s, ok := entitySchemas[entity]
	return s, ok
}

// AllSchemas 返回全部实体元数据
func AllSchemas() []EntitySchema {
	schemas := make([]EntitySchema, 0, len(entitySchemas))
	for _, t := range models.AllEntityTypes() {
		if s, ok := entitySchemas[t]; ok {
			schemas = append(schemas, s)
		}
	}
	return schemas
}

// EventStatusTransitions 活动状态机的合法迁移表，供状态迁移类业务规则使用
var EventStatusTransitions = map[string][]string{
	"draft":     {"published", "cancelled"},
	"published": {"confirmed", "cancelled"},
	"confirmed": {"completed", "cancelled"},
	"completed": {},
	"cancelled": {},
}
