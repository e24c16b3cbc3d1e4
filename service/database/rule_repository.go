/*
 * @module service/database/rule_repository
 * @description 业务规则持久化仓库：规则增删改查与向解释器规则的展开转换
 * @architecture 数据访问层
 * @documentReference dev_docs/quality_engine_req.md
 * @stateFlow 管理接口维护规则 -> 运行入口加载启用规则 -> 按适用实体展开 -> 交给规则解释器
 * @rules 规则是数据：新增规则只写库不改代码；内置规则可停用不可删除
 * @dependencies gorm.io/gorm
 * @refs service/quality/business_rule_validator.go
 */

package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"vms-quality-service/service/models"
)

// RuleRepository 业务规则仓库
type RuleRepository struct {
	db *gorm.DB
}

// NewRuleRepository 创建业务规则仓库
func NewRuleRepository(db *gorm.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

// ListRules 列出全部规则定义
func (r *RuleRepository) ListRules(ctx context.Context) ([]models.BusinessRuleDef, error) {
	var defs []models.BusinessRuleDef
	err := r.db.WithContext(ctx).Order("created_at ASC").Find(&defs).Error
	if err != nil {
		return nil, fmt.Errorf("查询业务规则失败: %w", err)
	}
	return defs, nil
}

// GetRule 按ID查询规则定义
func (r *RuleRepository) GetRule(ctx context.Context, id string) (*models.BusinessRuleDef, error) {
	var def models.BusinessRuleDef
	if err := r.db.WithContext(ctx).First(&def, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &def, nil
}

// CreateRule 新增规则定义
func (r *RuleRepository) CreateRule(ctx context.Context, def *models.BusinessRuleDef) error {
	if err := r.db.WithContext(ctx).Create(def).Error; err != nil {
		return fmt.Errorf("创建业务规则失败: %w", err)
	}
	return nil
}

// UpdateRule 更新规则定义
func (r *RuleRepository) UpdateRule(ctx context.Context, def *models.BusinessRuleDef) error {
	if err := r.db.WithContext(ctx).Save(def).Error; err != nil {
		return fmt.Errorf("更新业务规则失败: %w", err)
	}
	return nil
}

// SetEnabled 启用或停用规则
func (r *RuleRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	result := r.db.WithContext(ctx).Model(&models.BusinessRuleDef{}).
		Where("id = ?", id).Update("is_enabled", enabled)
	if result.Error != nil {
		return fmt.Errorf("更新规则启用状态失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteRule 删除规则定义，内置规则拒绝删除
func (r *RuleRepository) DeleteRule(ctx context.Context, id string) error {
	def, err := r.GetRule(ctx, id)
	if err != nil {
		return err
	}
	if def.IsBuiltIn {
		return fmt.Errorf("内置规则 %s 不可删除，可停用", id)
	}
	return r.db.WithContext(ctx).Delete(&models.BusinessRuleDef{}, "id = ?", id).Error
}

// LoadEnabledRules 加载启用的规则并按适用实体展开为解释器规则
func (r *RuleRepository) LoadEnabledRules(ctx context.Context) ([]models.BusinessRule, error) {
	var defs []models.BusinessRuleDef
	err := r.db.WithContext(ctx).Where("is_enabled = ?", true).Find(&defs).Error
	if err != nil {
		return nil, fmt.Errorf("加载启用规则失败: %w", err)
	}

	var rules []models.BusinessRule
	for _, def := range defs {
		for _, entity := range def.ApplicableEntity {
			et := models.EntityType(entity)
			if !models.IsValidEntityType(et) {
				continue
			}
			rules = append(rules, models.BusinessRule{
				ID:       fmt.Sprintf("%s@%s", def.ID, entity),
				Name:     def.Name,
				Entity:   et,
				Kind:     def.Kind,
				Field:    def.Field,
				Severity: def.Severity,
				Message:  def.Message,
				Params:   def.Params,
			})
		}
	}
	return rules, nil
}
